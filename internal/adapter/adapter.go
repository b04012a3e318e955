// Package adapter wraps each backend coding tool in a uniform execution
// contract: probe, execute, stream, cancel. Two transports exist, a
// subprocess runner and an HTTP client; both convert every failure into an
// ordinary result or error event so callers can react uniformly.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"taskrouter/internal/types"
)

// ErrUnknownTool is returned by the factory for names with no registry entry.
var ErrUnknownTool = errors.New("unknown tool")

// Sink receives stream events in production order. Returning an error stops
// the stream and terminates the backend.
type Sink func(types.StreamEvent) error

// Adapter is the uniform execution wrapper around one backend tool.
//
// Execute and Stream never report failures through panics or returned
// errors: misconfiguration, spawn failures, non-2xx responses, and exceeded
// time budgets all surface as {success:false} results or error events.
type Adapter interface {
	// Name returns the capability registry key.
	Name() string

	// IsAvailable probes the backend within a bounded time budget. A tool
	// with no configured command or endpoint is immediately unavailable.
	IsAvailable(ctx context.Context) bool

	// Execute runs the backend to completion and returns its terminal
	// result. The call suspends until the backend exits, bounded by the
	// tool's wall-clock ceiling.
	Execute(ctx context.Context, req types.TaskRequest) types.ToolResult

	// Stream emits exactly one routing event, zero or more output events,
	// and exactly one terminal event. No event follows the terminal one.
	Stream(ctx context.Context, req types.TaskRequest, sink Sink)

	// Cancel signals best-effort termination for a session's backend.
	// Adapters that cannot cancel are no-ops. Never fails.
	Cancel(sessionID string)
}

func notConfigured(name string) string {
	return fmt.Sprintf("Tool %s is not configured", name)
}

func failure(sessionID, errText string) types.ToolResult {
	return types.ToolResult{Success: false, Error: errText, SessionID: sessionID}
}

// cancelRegistry maps in-flight session ids to their cancel functions so
// Cancel can reach a running execution.
type cancelRegistry struct {
	mu        sync.Mutex
	inflight  map[string]context.CancelFunc
	cancelled map[string]bool
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{
		inflight:  make(map[string]context.CancelFunc),
		cancelled: make(map[string]bool),
	}
}

// track registers a cancel function for a session and returns an untrack
// callback. Sessions without an id are not trackable.
func (r *cancelRegistry) track(sessionID string, cancel context.CancelFunc) func() {
	if sessionID == "" {
		return func() {}
	}
	r.mu.Lock()
	r.inflight[sessionID] = cancel
	delete(r.cancelled, sessionID)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.inflight, sessionID)
		r.mu.Unlock()
	}
}

// cancel fires the cancel function for a session, if one is in flight.
func (r *cancelRegistry) cancel(sessionID string) {
	r.mu.Lock()
	cancelFn, ok := r.inflight[sessionID]
	if ok {
		r.cancelled[sessionID] = true
	}
	r.mu.Unlock()

	if ok {
		cancelFn()
	}
}

// wasCancelled reports whether a session was terminated via cancel, and
// clears the flag.
func (r *cancelRegistry) wasCancelled(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled[sessionID] {
		delete(r.cancelled, sessionID)
		return true
	}
	return false
}
