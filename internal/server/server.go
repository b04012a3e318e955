// Package server exposes the dispatch core over HTTP. The handlers are a
// thin shell: decode the request, call into the orchestrator, encode the
// reply. Streaming dispatches are written as the same marker-prefixed,
// line-delimited format the HTTP adapter consumes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taskrouter/internal/adapter"
	"taskrouter/internal/orchestrator"
	"taskrouter/internal/session"
	"taskrouter/internal/types"
)

// Server is the HTTP API over one orchestrator.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	mux    *http.ServeMux
}

// New builds the server and registers its routes.
func New(orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{orch: orch, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /v1/tasks", s.handleTask)
	s.mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /v1/tools", s.handleTools)
	s.mux.HandleFunc("GET /v1/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /v1/sessions/stats", s.handleStats)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleSession)
	s.mux.HandleFunc("POST /v1/sessions/cleanup", s.handleCleanup)
	s.mux.HandleFunc("POST /v1/sessions/{id}/cancel", s.handleCancel)

	return s
}

// Handler returns the root handler, usable directly with httptest.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps lookup failures to 404 and everything else to 500.
func statusFor(err error) int {
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, adapter.ErrUnknownTool) {
		return http.StatusNotFound
	}
	if errors.Is(err, session.ErrSessionTerminal) || errors.Is(err, session.ErrSessionExists) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	var req types.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Stream {
		s.streamTask(w, r, req)
		return
	}

	result, err := s.orch.Dispatch(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// streamTask writes events as "data: <json>\n" lines, flushed per event,
// terminated by "data: [DONE]".
func (s *Server) streamTask(w http.ResponseWriter, r *http.Request, req types.TaskRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	// Resolve routing before committing to a 200: once the stream header is
	// written an unknown tool could only surface as an empty body, which the
	// wire format reads as a successful completion.
	analysis := s.orch.Analyze(req)
	if _, err := s.orch.Adapters().Get(analysis.SuggestedTool); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	sink := func(ev types.StreamEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := s.orch.DispatchStream(r.Context(), req, sink); err != nil {
		// Session bookkeeping failed after the adapter already delivered its
		// terminal event; the stream itself is complete.
		s.logger.Warn("streaming dispatch failed", zap.Error(err))
	}
	_, _ = w.Write([]byte("data: [DONE]\n"))
	flusher.Flush()
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req types.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.orch.Analyze(req))
}

// toolStatus augments a capability with a live availability probe.
type toolStatus struct {
	types.Capability
	Available bool `json:"available"`
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	entries := s.orch.Adapters().All()
	statuses := make([]toolStatus, len(entries))

	// Probes are bounded individually; run them in parallel so the
	// endpoint answers within one probe budget, not their sum.
	g, ctx := errgroup.WithContext(r.Context())
	for i, entry := range entries {
		g.Go(func() error {
			statuses[i] = toolStatus{
				Capability: entry.Capability,
				Available:  entry.Adapter.IsAvailable(ctx),
			}
			return nil
		})
	}
	_ = g.Wait()

	s.writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.orch.Sessions()

	if tool := r.URL.Query().Get("tool"); tool != "" {
		s.writeJSON(w, http.StatusOK, sessions.ByTool(tool))
		return
	}
	if r.URL.Query().Get("active") == "true" {
		s.writeJSON(w, http.StatusOK, sessions.Active())
		return
	}
	s.writeJSON(w, http.StatusOK, sessions.All())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.Sessions().Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orch.Sessions().GetStats())
}

type cleanupRequest struct {
	MaxAgeMs int64 `json:"max_age_ms"`
}

type cleanupResponse struct {
	Removed int `json:"removed"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	removed := s.orch.Sessions().Cleanup(time.Duration(req.MaxAgeMs) * time.Millisecond)
	s.writeJSON(w, http.StatusOK, cleanupResponse{Removed: removed})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Cancel(r.PathValue("id")); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
