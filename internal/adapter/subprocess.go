package adapter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskrouter/internal/config"
	"taskrouter/internal/types"
)

// waitDelay gives a killed process time to release its pipes before Wait
// gives up; without it a stalled child can leak past the timeout.
const waitDelay = 5 * time.Second

// SubprocessAdapter runs a backend tool as a local process. The prompt is
// appended as the final argument; stdout is the result, a non-zero exit is
// a failure carrying stderr, and a hard wall-clock ceiling terminates
// stalled processes.
type SubprocessAdapter struct {
	cfg     config.ToolConfig
	logger  *zap.Logger
	execLog *ExecLog
	cancels *cancelRegistry
}

// NewSubprocessAdapter wraps a subprocess-backed tool configuration.
func NewSubprocessAdapter(cfg config.ToolConfig, execLog *ExecLog, logger *zap.Logger) *SubprocessAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubprocessAdapter{
		cfg:     cfg,
		logger:  logger,
		execLog: execLog,
		cancels: newCancelRegistry(),
	}
}

// Name returns the capability registry key.
func (a *SubprocessAdapter) Name() string { return a.cfg.Name }

// command returns the executable name for this tool.
func (a *SubprocessAdapter) command() string { return a.cfg.Command }

// args translates the request into the tool's argument vector: configured
// base flags, extra accessible directories, then the prompt.
func (a *SubprocessAdapter) args(req types.TaskRequest) []string {
	args := make([]string, 0, len(a.cfg.Args)+2*len(a.cfg.AllowedDirs)+1)
	args = append(args, a.cfg.Args...)

	dirFlag := a.cfg.DirFlag
	if dirFlag == "" {
		dirFlag = "--add-dir"
	}
	for _, dir := range a.cfg.AllowedDirs {
		args = append(args, dirFlag, dir)
	}

	args = append(args, req.Prompt)
	return args
}

// IsAvailable checks the executable exists on PATH. Lookup is local and
// fast; no process is spawned, so the probe cannot block.
func (a *SubprocessAdapter) IsAvailable(ctx context.Context) bool {
	if a.cfg.Command == "" {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout())
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		_, err := exec.LookPath(a.cfg.Command)
		done <- err == nil
	}()

	select {
	case ok := <-done:
		return ok
	case <-probeCtx.Done():
		return false
	}
}

// Execute runs the tool synchronously to completion. Every failure path is
// converted into a {success:false} result.
func (a *SubprocessAdapter) Execute(ctx context.Context, req types.TaskRequest) types.ToolResult {
	if a.cfg.Command == "" {
		return failure(req.SessionID, notConfigured(a.cfg.Name))
	}

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()
	untrack := a.cancels.track(req.SessionID, cancel)
	defer untrack()

	cmd := a.buildCmd(runCtx, req)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	a.logger.Debug("subprocess finished",
		zap.String("tool", a.cfg.Name),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("success", err == nil))

	result := a.interpret(runCtx, req, err, stdout.String(), stderr.String())
	a.execLog.Record(a.cfg.Name, req.Prompt, result.Output, result.Error)
	return result
}

// interpret maps a process outcome onto the result contract: exit 0 means
// success, a deadline means a distinct timeout failure, anything else is a
// failure carrying stderr.
func (a *SubprocessAdapter) interpret(runCtx context.Context, req types.TaskRequest, runErr error, stdout, stderr string) types.ToolResult {
	if runErr == nil {
		return types.ToolResult{Success: true, Output: stdout, SessionID: req.SessionID}
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return failure(req.SessionID,
			fmt.Sprintf("Tool %s timed out after %s", a.cfg.Name, a.cfg.Timeout()))
	}
	if a.cancels.wasCancelled(req.SessionID) || errors.Is(runCtx.Err(), context.Canceled) {
		return failure(req.SessionID, "cancelled")
	}

	errText := strings.TrimSpace(stderr)
	if errText == "" {
		errText = runErr.Error()
	}
	return failure(req.SessionID, errText)
}

// Stream runs the tool and forwards stdout line by line as output events.
func (a *SubprocessAdapter) Stream(ctx context.Context, req types.TaskRequest, sink Sink) {
	if err := sink(types.RoutingEvent(a.cfg.Name, req.SessionID)); err != nil {
		return
	}

	if a.cfg.Command == "" {
		_ = sink(types.ErrorEvent(notConfigured(a.cfg.Name)))
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()
	untrack := a.cancels.track(req.SessionID, cancel)
	defer untrack()

	cmd := a.buildCmd(runCtx, req)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = sink(types.ErrorEvent(fmt.Sprintf("failed to open stdout pipe: %v", err)))
		return
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		_ = sink(types.ErrorEvent(fmt.Sprintf("failed to start %s: %v", a.cfg.Command, err)))
		return
	}

	var output strings.Builder
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text() + "\n"
		output.WriteString(line)
		if err := sink(types.OutputEvent(line)); err != nil {
			// Sink gave up; terminate the backend and stop emitting.
			cancel()
			_ = cmd.Wait()
			return
		}
	}

	waitErr := cmd.Wait()

	switch {
	case waitErr == nil:
		exitCode := 0
		a.execLog.Record(a.cfg.Name, req.Prompt, output.String(), "")
		_ = sink(types.CompleteEvent("completed", &exitCode))

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		msg := fmt.Sprintf("Tool %s timed out after %s", a.cfg.Name, a.cfg.Timeout())
		a.execLog.Record(a.cfg.Name, req.Prompt, output.String(), msg)
		_ = sink(types.ErrorEvent(msg))

	case a.cancels.wasCancelled(req.SessionID) || errors.Is(runCtx.Err(), context.Canceled):
		a.execLog.Record(a.cfg.Name, req.Prompt, output.String(), "cancelled")
		_ = sink(types.ErrorEvent("cancelled"))

	default:
		errText := strings.TrimSpace(stderr.String())
		if errText == "" {
			errText = waitErr.Error()
		}
		a.execLog.Record(a.cfg.Name, req.Prompt, output.String(), errText)
		_ = sink(types.ErrorEvent(errText))
	}
}

// Cancel terminates the session's running process, if any.
func (a *SubprocessAdapter) Cancel(sessionID string) {
	a.cancels.cancel(sessionID)
}

// buildCmd assembles the exec.Cmd for one request: working directory,
// environment overrides, and the translated argument vector.
func (a *SubprocessAdapter) buildCmd(ctx context.Context, req types.TaskRequest) *exec.Cmd {
	cmd := exec.CommandContext(ctx, a.cfg.Command, a.args(req)...)
	cmd.WaitDelay = waitDelay
	if req.Directory != "" {
		cmd.Dir = req.Directory
	}
	if len(req.Env) > 0 {
		env := os.Environ()
		for k, v := range req.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	return cmd
}
