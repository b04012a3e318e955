package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"taskrouter/internal/config"
	"taskrouter/internal/types"
)

const (
	// streamMarker prefixes every data line of a streamed response body.
	streamMarker = "data: "

	// streamDone is the sentinel line ending a well-formed stream.
	streamDone = "[DONE]"

	maxPayloadFiles    = 16
	maxPayloadFileSize = 256 * 1024
)

// HTTPAdapter reaches a backend tool over HTTP: the request is serialized
// to JSON and POSTed to the configured endpoint; streaming mode parses a
// line-delimited, marker-prefixed body.
type HTTPAdapter struct {
	cfg     config.ToolConfig
	client  *http.Client
	logger  *zap.Logger
	execLog *ExecLog
	cancels *cancelRegistry
}

// NewHTTPAdapter wraps an HTTP-backed tool configuration. The client is
// injected to ease testing; nil selects http.DefaultClient.
func NewHTTPAdapter(cfg config.ToolConfig, client *http.Client, execLog *ExecLog, logger *zap.Logger) *HTTPAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPAdapter{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		execLog: execLog,
		cancels: newCancelRegistry(),
	}
}

// Name returns the capability registry key.
func (a *HTTPAdapter) Name() string { return a.cfg.Name }

// taskPayload is the JSON body POSTed to the tool endpoint.
type taskPayload struct {
	Prompt     string        `json:"prompt"`
	WorkingDir string        `json:"working_dir,omitempty"`
	Files      []filePayload `json:"files,omitempty"`
	Stream     bool          `json:"stream,omitempty"`
	SessionID  string        `json:"session_id,omitempty"`
}

type filePayload struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// taskResponse covers the response shapes the known backends produce.
type taskResponse struct {
	Output  string `json:"output"`
	Content string `json:"content"`
	Text    string `json:"text"`
	Error   string `json:"error"`
}

func (r taskResponse) text() string {
	switch {
	case r.Output != "":
		return r.Output
	case r.Content != "":
		return r.Content
	default:
		return r.Text
	}
}

// streamFragment is one decoded line of a streamed body.
type streamFragment struct {
	Content string `json:"content"`
	Text    string `json:"text"`
	Error   string `json:"error"`
}

// IsAvailable probes the endpoint with a bounded GET. Any HTTP response
// counts as reachable; only transport failures mark the tool unavailable.
func (a *HTTPAdapter) IsAvailable(ctx context.Context) bool {
	if a.cfg.Endpoint == "" {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, a.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return true
}

// Execute POSTs the task and waits for the full response.
func (a *HTTPAdapter) Execute(ctx context.Context, req types.TaskRequest) types.ToolResult {
	if a.cfg.Endpoint == "" {
		return failure(req.SessionID, notConfigured(a.cfg.Name))
	}

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()
	untrack := a.cancels.track(req.SessionID, cancel)
	defer untrack()

	resp, err := a.post(runCtx, req, false)
	if err != nil {
		result := failure(req.SessionID, a.transportError(runCtx, req.SessionID, err))
		a.execLog.Record(a.cfg.Name, req.Prompt, "", result.Error)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result := failure(req.SessionID, resp.Status)
		a.execLog.Record(a.cfg.Name, req.Prompt, "", result.Error)
		return result
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result := failure(req.SessionID, a.transportError(runCtx, req.SessionID, err))
		a.execLog.Record(a.cfg.Name, req.Prompt, "", result.Error)
		return result
	}

	var parsed taskResponse
	output := string(body)
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			result := failure(req.SessionID, parsed.Error)
			a.execLog.Record(a.cfg.Name, req.Prompt, "", result.Error)
			return result
		}
		if t := parsed.text(); t != "" {
			output = t
		}
	}

	a.execLog.Record(a.cfg.Name, req.Prompt, output, "")
	return types.ToolResult{Success: true, Output: output, SessionID: req.SessionID}
}

// Stream POSTs the task in streaming mode and decodes the marker-prefixed
// line-delimited body into output events.
func (a *HTTPAdapter) Stream(ctx context.Context, req types.TaskRequest, sink Sink) {
	if err := sink(types.RoutingEvent(a.cfg.Name, req.SessionID)); err != nil {
		return
	}

	if a.cfg.Endpoint == "" {
		_ = sink(types.ErrorEvent(notConfigured(a.cfg.Name)))
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()
	untrack := a.cancels.track(req.SessionID, cancel)
	defer untrack()

	resp, err := a.post(runCtx, req, true)
	if err != nil {
		_ = sink(types.ErrorEvent(a.transportError(runCtx, req.SessionID, err)))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = sink(types.ErrorEvent(resp.Status))
		return
	}

	var output strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, streamMarker) {
			continue
		}
		payload := strings.TrimPrefix(line, streamMarker)
		if payload == streamDone {
			break
		}

		var fragment streamFragment
		if err := json.Unmarshal([]byte(payload), &fragment); err != nil {
			// Malformed fragments are skipped, matching the lenient
			// decoding of the backends' own clients.
			continue
		}
		if fragment.Error != "" {
			a.execLog.Record(a.cfg.Name, req.Prompt, output.String(), fragment.Error)
			_ = sink(types.ErrorEvent(fragment.Error))
			return
		}

		chunk := fragment.Content
		if chunk == "" {
			chunk = fragment.Text
		}
		if chunk == "" {
			continue
		}
		output.WriteString(chunk)
		if err := sink(types.OutputEvent(chunk)); err != nil {
			cancel()
			return
		}
	}

	if err := scanner.Err(); err != nil {
		_ = sink(types.ErrorEvent(a.transportError(runCtx, req.SessionID, err)))
		return
	}

	a.execLog.Record(a.cfg.Name, req.Prompt, output.String(), "")
	_ = sink(types.CompleteEvent("completed", nil))
}

// Cancel closes the HTTP stream for the session, if one is in flight.
func (a *HTTPAdapter) Cancel(sessionID string) {
	a.cancels.cancel(sessionID)
}

// post builds and sends the JSON request.
func (a *HTTPAdapter) post(ctx context.Context, req types.TaskRequest, stream bool) (*http.Response, error) {
	payload := taskPayload{
		Prompt:     req.Prompt,
		WorkingDir: req.Directory,
		Files:      a.collectFiles(req),
		Stream:     stream,
		SessionID:  req.SessionID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	return a.client.Do(httpReq)
}

// transportError renders a transport failure, distinguishing timeout and
// cancellation from ordinary network errors.
func (a *HTTPAdapter) transportError(runCtx context.Context, sessionID string, err error) string {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("Tool %s timed out after %s", a.cfg.Name, a.cfg.Timeout())
	}
	if a.cancels.wasCancelled(sessionID) || errors.Is(runCtx.Err(), context.Canceled) {
		return "cancelled"
	}
	return err.Error()
}

// collectFiles resolves the request's include globs into bounded file
// payloads with a language tag inferred from the extension.
func (a *HTTPAdapter) collectFiles(req types.TaskRequest) []filePayload {
	if len(req.Include) == 0 {
		return nil
	}

	var files []filePayload
	for _, pattern := range req.Include {
		matches, err := filepath.Glob(filepath.Join(req.Directory, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if len(files) >= maxPayloadFiles {
				return files
			}
			if excluded(path, req) {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() || info.Size() > maxPayloadFileSize {
				continue
			}
			content, err := os.ReadFile(path)
			if err != nil {
				continue
			}

			rel := path
			if req.Directory != "" {
				if r, err := filepath.Rel(req.Directory, path); err == nil {
					rel = r
				}
			}
			files = append(files, filePayload{
				Path:     rel,
				Content:  string(content),
				Language: languageFor(path),
			})
		}
	}
	return files
}

func excluded(path string, req types.TaskRequest) bool {
	base := filepath.Base(path)
	for _, pattern := range req.Exclude {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(filepath.Join(req.Directory, pattern), path); ok {
			return true
		}
	}
	return false
}

// languageFor maps a file extension to its language tag.
func languageFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".rb":
		return "ruby"
	case ".sh":
		return "shell"
	case ".md":
		return "markdown"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}
