// Package orchestrator ties the core together: it analyzes a task request,
// selects an adapter through the factory, creates a session, invokes the
// adapter, and records the outcome. No retries happen here; a caller that
// wants a different tool re-analyzes and dispatches again.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"taskrouter/internal/adapter"
	"taskrouter/internal/analyzer"
	"taskrouter/internal/session"
	"taskrouter/internal/types"
)

// Orchestrator coordinates one dispatch at a time per caller. The session
// manager tolerates concurrent orchestrator callers.
type Orchestrator struct {
	factory  *adapter.Factory
	sessions *session.Manager
	logger   *zap.Logger
}

// New builds an orchestrator over an adapter factory and session registry.
func New(factory *adapter.Factory, sessions *session.Manager, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{factory: factory, sessions: sessions, logger: logger}
}

// Analyze exposes the pure analyzer to callers of the core.
func (o *Orchestrator) Analyze(req types.TaskRequest) types.TaskAnalysis {
	return analyzer.Analyze(req.Prompt, analyzer.Context{Directory: req.Directory})
}

// Sessions exposes the session registry's query surface.
func (o *Orchestrator) Sessions() *session.Manager { return o.sessions }

// Adapters exposes the factory's lookup surface.
func (o *Orchestrator) Adapters() *adapter.Factory { return o.factory }

// Dispatch analyzes the request, routes it to the suggested tool, and runs
// it to completion. The returned error is reserved for orchestration bugs
// (unknown tool, stale session id); execution failures come back inside the
// result.
func (o *Orchestrator) Dispatch(ctx context.Context, req types.TaskRequest) (types.ToolResult, error) {
	analysis := o.Analyze(req)

	entry, err := o.factory.Get(analysis.SuggestedTool)
	if err != nil {
		return types.ToolResult{}, err
	}

	sess, err := o.openSession(entry.Capability.Name, req, analysis)
	if err != nil {
		return types.ToolResult{}, err
	}
	req.SessionID = sess.ID

	o.logger.Info("dispatching task",
		zap.String("tool", entry.Capability.Name),
		zap.String("session", sess.ID),
		zap.String("task_type", string(analysis.TaskType)),
		zap.Int("complexity", analysis.Complexity))

	result := entry.Adapter.Execute(ctx, req)

	if result.Success {
		if err := o.sessions.AddMessage(sess.ID, session.RoleAssistant, result.Output); err != nil {
			return result, err
		}
		if err := o.sessions.Complete(sess.ID, session.StatusCompleted); err != nil {
			return result, err
		}
	} else {
		if err := o.sessions.AddMessage(sess.ID, session.RoleSystem, result.Error); err != nil {
			return result, err
		}
		if err := o.sessions.Complete(sess.ID, session.StatusFailed); err != nil {
			return result, err
		}
	}

	return result, nil
}

// DispatchStream analyzes and routes the request, then streams events to
// sink. Session bookkeeping rides along on the event flow: output chunks
// are accumulated into one assistant message, and the terminal event
// decides the session's final status.
func (o *Orchestrator) DispatchStream(ctx context.Context, req types.TaskRequest, sink adapter.Sink) error {
	analysis := o.Analyze(req)

	entry, err := o.factory.Get(analysis.SuggestedTool)
	if err != nil {
		return err
	}

	sess, err := o.openSession(entry.Capability.Name, req, analysis)
	if err != nil {
		return err
	}
	req.SessionID = sess.ID

	o.logger.Info("dispatching streaming task",
		zap.String("tool", entry.Capability.Name),
		zap.String("session", sess.ID))

	recorder := &sessionRecorder{
		orch:      o,
		sessionID: sess.ID,
		sink:      sink,
	}
	entry.Adapter.Stream(ctx, req, recorder.record)
	return recorder.err
}

// openSession creates the session and seeds it with the user prompt and
// analysis metadata.
func (o *Orchestrator) openSession(tool string, req types.TaskRequest, analysis types.TaskAnalysis) (session.Session, error) {
	metadata := map[string]string{
		"task_type":  string(analysis.TaskType),
		"complexity": fmt.Sprintf("%d", analysis.Complexity),
		"confidence": fmt.Sprintf("%.2f", analysis.Confidence),
	}

	sess, err := o.sessions.Create(tool, req.SessionID, metadata)
	if err != nil {
		return session.Session{}, err
	}
	if err := o.sessions.AddMessage(sess.ID, session.RoleUser, req.Prompt); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// sessionRecorder forwards events to the caller's sink while mirroring them
// into the session registry.
type sessionRecorder struct {
	orch      *Orchestrator
	sessionID string
	sink      adapter.Sink

	output []byte
	err    error
}

func (r *sessionRecorder) record(ev types.StreamEvent) error {
	switch ev.Type {
	case types.EventOutput:
		// Chunks are appended verbatim: HTTP fragments are partial text and
		// subprocess lines already carry their delimiter.
		r.output = append(r.output, ev.Data.Content...)

	case types.EventComplete:
		r.finish(session.StatusCompleted, "")

	case types.EventError:
		r.finish(session.StatusFailed, ev.Data.Message)
	}

	return r.sink(ev)
}

func (r *sessionRecorder) finish(status session.Status, errMsg string) {
	sessions := r.orch.sessions
	if len(r.output) > 0 {
		if err := sessions.AddMessage(r.sessionID, session.RoleAssistant, string(r.output)); err != nil {
			r.err = err
			return
		}
	}
	if errMsg != "" {
		if err := sessions.AddMessage(r.sessionID, session.RoleSystem, errMsg); err != nil {
			r.err = err
			return
		}
	}
	if err := sessions.Complete(r.sessionID, status); err != nil {
		r.err = err
	}
}

// Cancel signals best-effort termination for a session's backend, looking
// up the owning tool through the session registry.
func (o *Orchestrator) Cancel(sessionID string) error {
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	entry, err := o.factory.Get(sess.Tool)
	if err != nil {
		return err
	}
	entry.Adapter.Cancel(sessionID)
	return nil
}
