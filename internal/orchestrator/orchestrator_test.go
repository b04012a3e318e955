package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskrouter/internal/adapter"
	"taskrouter/internal/config"
	"taskrouter/internal/session"
	"taskrouter/internal/types"
)

// echoOrchestrator wires the core over an echo-backed reasoning tool and a
// deliberately failing generation tool.
func echoOrchestrator(t *testing.T) (*Orchestrator, *session.Manager) {
	t.Helper()
	cfg := &config.Config{
		Tools: []config.ToolConfig{
			{
				Name:           "reasoning-tool",
				Command:        "echo",
				TimeoutSeconds: 10,
				Priority:       1,
			},
			{
				Name:           "generation-tool",
				Command:        "/bin/sh",
				Args:           []string{"-c", "echo nope >&2; exit 1"},
				TimeoutSeconds: 10,
				Priority:       2,
			},
		},
	}
	sessions := session.NewManager(nil, nil)
	factory := adapter.NewFactory(cfg, nil, nil)
	return New(factory, sessions, nil), sessions
}

func TestDispatchSuccess(t *testing.T) {
	orch, sessions := echoOrchestrator(t)

	// A refactoring prompt routes to the echo-backed reasoning tool.
	result, err := orch.Dispatch(context.Background(), types.TaskRequest{
		Prompt: "refactor the database layer",
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("result failed: %s", result.Error)
	}
	if strings.TrimSpace(result.Output) != "refactor the database layer" {
		t.Errorf("output = %q", result.Output)
	}
	if result.SessionID == "" {
		t.Fatal("no session id assigned")
	}

	sess, err := sessions.Get(result.SessionID)
	if err != nil {
		t.Fatalf("session not tracked: %v", err)
	}
	if sess.Status != session.StatusCompleted {
		t.Errorf("session status = %s, want %s", sess.Status, session.StatusCompleted)
	}
	if sess.Tool != "reasoning-tool" {
		t.Errorf("session tool = %s", sess.Tool)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("got %d messages, want user + assistant", len(sess.Messages))
	}
	if sess.Messages[0].Role != session.RoleUser || sess.Messages[1].Role != session.RoleAssistant {
		t.Errorf("message roles = %s, %s", sess.Messages[0].Role, sess.Messages[1].Role)
	}
	if sess.Metadata["task_type"] != "refactoring" {
		t.Errorf("metadata = %v", sess.Metadata)
	}
}

func TestDispatchFailureRecordedInSession(t *testing.T) {
	orch, sessions := echoOrchestrator(t)

	// A generation prompt routes to the failing generation tool.
	result, err := orch.Dispatch(context.Background(), types.TaskRequest{
		Prompt: "generate a csv parser",
	})
	if err != nil {
		t.Fatalf("Dispatch raised: %v", err)
	}
	if result.Success {
		t.Fatal("failing tool reported success")
	}
	if !strings.Contains(result.Error, "nope") {
		t.Errorf("error = %q", result.Error)
	}

	sess, err := sessions.Get(result.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != session.StatusFailed {
		t.Errorf("session status = %s, want %s", sess.Status, session.StatusFailed)
	}
	if len(sess.Messages) != 2 || sess.Messages[1].Role != session.RoleSystem {
		t.Errorf("messages = %+v", sess.Messages)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	cfg := &config.Config{
		Tools: []config.ToolConfig{{Name: "generation-tool", Command: "echo"}},
	}
	sessions := session.NewManager(nil, nil)
	orch := New(adapter.NewFactory(cfg, nil, nil), sessions, nil)

	// Routes to reasoning-tool, which is not registered.
	_, err := orch.Dispatch(context.Background(), types.TaskRequest{
		Prompt: "refactor the database layer",
	})
	if !errors.Is(err, adapter.ErrUnknownTool) {
		t.Fatalf("Dispatch error = %v, want ErrUnknownTool", err)
	}
	if got := len(sessions.All()); got != 0 {
		t.Errorf("%d sessions created for failed routing, want 0", got)
	}
}

func TestDispatchStream(t *testing.T) {
	orch, sessions := echoOrchestrator(t)

	var events []types.StreamEvent
	err := orch.DispatchStream(context.Background(), types.TaskRequest{
		Prompt: "refactor the session manager",
	}, func(ev types.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("DispatchStream failed: %v", err)
	}

	if len(events) < 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Type != types.EventRouting {
		t.Errorf("first event = %s", events[0].Type)
	}
	last := events[len(events)-1]
	if last.Type != types.EventComplete {
		t.Fatalf("terminal event = %s", last.Type)
	}

	sess, err := sessions.Get(events[0].Data.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != session.StatusCompleted {
		t.Errorf("session status = %s", sess.Status)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("got %d messages", len(sess.Messages))
	}
	// Echo emits the prompt as one delimited line; the archived assistant
	// message is exactly the streamed bytes, nothing inserted.
	if sess.Messages[1].Content != "refactor the session manager\n" {
		t.Errorf("assistant message = %q", sess.Messages[1].Content)
	}
}

func TestDispatchStreamArchivesChunksVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"content\":\"hel\"}\n")
		fmt.Fprint(w, "data: {\"content\":\"lo wor\"}\n")
		fmt.Fprint(w, "data: {\"content\":\"ld\"}\n")
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	cfg := &config.Config{
		Tools: []config.ToolConfig{
			{Name: "generation-tool", Endpoint: srv.URL, TimeoutSeconds: 10},
		},
	}
	sessions := session.NewManager(nil, nil)
	orch := New(adapter.NewFactory(cfg, srv.Client(), nil), sessions, nil)

	err := orch.DispatchStream(context.Background(), types.TaskRequest{
		Prompt: "generate a greeting",
	}, func(types.StreamEvent) error { return nil })
	if err != nil {
		t.Fatalf("DispatchStream failed: %v", err)
	}

	list := sessions.ByTool("generation-tool")
	if len(list) != 1 {
		t.Fatalf("got %d sessions", len(list))
	}
	// Fragments are partial text; the archived message must not gain
	// separators the backend never produced.
	if got := list[0].Messages[1].Content; got != "hello world" {
		t.Errorf("assistant message = %q, want %q", got, "hello world")
	}
}

func TestDispatchStreamFailure(t *testing.T) {
	orch, sessions := echoOrchestrator(t)

	var terminal types.StreamEvent
	err := orch.DispatchStream(context.Background(), types.TaskRequest{
		Prompt: "generate a parser",
	}, func(ev types.StreamEvent) error {
		if ev.IsTerminal() {
			terminal = ev
		}
		return nil
	})
	if err != nil {
		t.Fatalf("DispatchStream raised: %v", err)
	}
	if terminal.Type != types.EventError {
		t.Fatalf("terminal event = %s, want %s", terminal.Type, types.EventError)
	}

	list := sessions.ByTool("generation-tool")
	if len(list) != 1 {
		t.Fatalf("got %d sessions", len(list))
	}
	if list[0].Status != session.StatusFailed {
		t.Errorf("session status = %s", list[0].Status)
	}
}

func TestCancelUnknownSession(t *testing.T) {
	orch, _ := echoOrchestrator(t)

	if err := orch.Cancel("no-such-session"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Cancel error = %v, want ErrSessionNotFound", err)
	}
}

func TestCancelKnownSession(t *testing.T) {
	orch, sessions := echoOrchestrator(t)
	s, err := sessions.Create("reasoning-tool", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Nothing is running; cancel is still a clean no-op.
	if err := orch.Cancel(s.ID); err != nil {
		t.Errorf("Cancel failed: %v", err)
	}
}
