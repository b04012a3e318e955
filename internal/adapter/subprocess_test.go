package adapter

import (
	"context"
	"strings"
	"testing"
	"time"

	"taskrouter/internal/config"
	"taskrouter/internal/types"
)

// shellTool builds a tool config that runs the prompt as a shell script.
func shellTool(name string, timeoutSeconds int) config.ToolConfig {
	return config.ToolConfig{
		Name:           name,
		Command:        "/bin/sh",
		Args:           []string{"-c"},
		TimeoutSeconds: timeoutSeconds,
	}
}

// collect runs Stream and returns every event the sink saw.
func collect(t *testing.T, a Adapter, req types.TaskRequest) []types.StreamEvent {
	t.Helper()
	var events []types.StreamEvent
	a.Stream(context.Background(), req, func(ev types.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	return events
}

// checkOrdering asserts the stream contract: routing first, exactly one
// terminal event, terminal last.
func checkOrdering(t *testing.T, events []types.StreamEvent) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	if events[0].Type != types.EventRouting {
		t.Errorf("first event = %s, want %s", events[0].Type, types.EventRouting)
	}
	terminals := 0
	for i, ev := range events {
		if ev.IsTerminal() {
			terminals++
			if i != len(events)-1 {
				t.Errorf("terminal event at index %d of %d", i, len(events))
			}
		}
	}
	if terminals != 1 {
		t.Errorf("got %d terminal events, want exactly 1", terminals)
	}
}

func TestSubprocessExecuteSuccess(t *testing.T) {
	a := NewSubprocessAdapter(shellTool("reasoning-tool", 10), nil, nil)

	result := a.Execute(context.Background(), types.TaskRequest{
		Prompt:    "echo hello",
		SessionID: "s1",
	})

	if !result.Success {
		t.Fatalf("Execute failed: %s", result.Error)
	}
	if strings.TrimSpace(result.Output) != "hello" {
		t.Errorf("output = %q, want hello", result.Output)
	}
	if result.SessionID != "s1" {
		t.Errorf("session id = %q, want s1", result.SessionID)
	}
}

func TestSubprocessExecuteNonZeroExit(t *testing.T) {
	a := NewSubprocessAdapter(shellTool("reasoning-tool", 10), nil, nil)

	result := a.Execute(context.Background(), types.TaskRequest{
		Prompt: "echo oops >&2; exit 3",
	})

	if result.Success {
		t.Fatal("Execute succeeded on exit 3")
	}
	if !strings.Contains(result.Error, "oops") {
		t.Errorf("error = %q, want stderr content", result.Error)
	}
}

func TestSubprocessExecuteNotConfigured(t *testing.T) {
	a := NewSubprocessAdapter(config.ToolConfig{Name: "reasoning-tool"}, nil, nil)

	result := a.Execute(context.Background(), types.TaskRequest{Prompt: "anything"})

	if result.Success {
		t.Fatal("Execute succeeded with no command")
	}
	if result.Error != "Tool reasoning-tool is not configured" {
		t.Errorf("error = %q, want %q", result.Error, "Tool reasoning-tool is not configured")
	}
}

func TestSubprocessExecuteTimeout(t *testing.T) {
	a := NewSubprocessAdapter(shellTool("reasoning-tool", 1), nil, nil)

	result := a.Execute(context.Background(), types.TaskRequest{Prompt: "sleep 5"})

	if result.Success {
		t.Fatal("Execute succeeded past the timeout")
	}
	if !strings.Contains(result.Error, "timed out after 1s") {
		t.Errorf("error = %q, want timeout message", result.Error)
	}
}

func TestSubprocessExecuteCancel(t *testing.T) {
	a := NewSubprocessAdapter(shellTool("reasoning-tool", 30), nil, nil)

	done := make(chan types.ToolResult, 1)
	go func() {
		done <- a.Execute(context.Background(), types.TaskRequest{
			Prompt:    "sleep 10",
			SessionID: "cancel-me",
		})
	}()

	time.Sleep(200 * time.Millisecond)
	a.Cancel("cancel-me")

	select {
	case result := <-done:
		if result.Success {
			t.Fatal("cancelled execution reported success")
		}
		if result.Error != "cancelled" {
			t.Errorf("error = %q, want cancelled", result.Error)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled execution did not return")
	}
}

func TestSubprocessStreamOrdering(t *testing.T) {
	a := NewSubprocessAdapter(shellTool("reasoning-tool", 10), nil, nil)

	events := collect(t, a, types.TaskRequest{
		Prompt:    "echo one; echo two; echo three",
		SessionID: "s1",
	})

	checkOrdering(t, events)

	if events[0].Data.Tool != "reasoning-tool" || events[0].Data.SessionID != "s1" {
		t.Errorf("routing data = %+v", events[0].Data)
	}

	var lines []string
	for _, ev := range events {
		if ev.Type == types.EventOutput {
			lines = append(lines, ev.Data.Content)
		}
	}
	want := []string{"one\n", "two\n", "three\n"}
	if len(lines) != len(want) {
		t.Fatalf("output lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	last := events[len(events)-1]
	if last.Type != types.EventComplete {
		t.Fatalf("terminal event = %s, want %s", last.Type, types.EventComplete)
	}
	if last.Data.ExitCode == nil || *last.Data.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", last.Data.ExitCode)
	}
}

func TestSubprocessStreamNotConfigured(t *testing.T) {
	a := NewSubprocessAdapter(config.ToolConfig{Name: "generation-tool"}, nil, nil)

	events := collect(t, a, types.TaskRequest{Prompt: "anything"})

	checkOrdering(t, events)
	last := events[len(events)-1]
	if last.Type != types.EventError {
		t.Fatalf("terminal event = %s, want %s", last.Type, types.EventError)
	}
	if last.Data.Message != "Tool generation-tool is not configured" {
		t.Errorf("message = %q", last.Data.Message)
	}
}

func TestSubprocessStreamFailure(t *testing.T) {
	a := NewSubprocessAdapter(shellTool("reasoning-tool", 10), nil, nil)

	events := collect(t, a, types.TaskRequest{Prompt: "echo partial; echo bad >&2; exit 1"})

	checkOrdering(t, events)
	last := events[len(events)-1]
	if last.Type != types.EventError {
		t.Fatalf("terminal event = %s, want %s", last.Type, types.EventError)
	}
	if !strings.Contains(last.Data.Message, "bad") {
		t.Errorf("message = %q, want stderr content", last.Data.Message)
	}
}

func TestSubprocessStreamCancel(t *testing.T) {
	a := NewSubprocessAdapter(shellTool("reasoning-tool", 30), nil, nil)

	var events []types.StreamEvent
	a.Stream(context.Background(), types.TaskRequest{
		Prompt:    "echo started; sleep 10; echo done",
		SessionID: "stream-cancel",
	}, func(ev types.StreamEvent) error {
		events = append(events, ev)
		if ev.Type == types.EventOutput {
			a.Cancel("stream-cancel")
		}
		return nil
	})

	checkOrdering(t, events)
	last := events[len(events)-1]
	if last.Type != types.EventError {
		t.Fatalf("terminal event = %s, want %s", last.Type, types.EventError)
	}
	if last.Data.Message != "cancelled" {
		t.Errorf("message = %q, want cancelled", last.Data.Message)
	}
	for _, ev := range events {
		if ev.Type == types.EventOutput && strings.TrimSpace(ev.Data.Content) == "done" {
			t.Error("output after cancellation point was emitted")
		}
	}
}

func TestSubprocessStreamSinkError(t *testing.T) {
	a := NewSubprocessAdapter(shellTool("reasoning-tool", 10), nil, nil)

	var count int
	a.Stream(context.Background(), types.TaskRequest{
		Prompt: "echo one; echo two; echo three",
	}, func(ev types.StreamEvent) error {
		count++
		if ev.Type == types.EventOutput {
			return context.Canceled
		}
		return nil
	})

	// Routing plus the first output, then the sink's refusal stops the stream.
	if count != 2 {
		t.Errorf("sink called %d times, want 2", count)
	}
}

func TestSubprocessIsAvailable(t *testing.T) {
	ctx := context.Background()

	available := NewSubprocessAdapter(shellTool("reasoning-tool", 10), nil, nil)
	if !available.IsAvailable(ctx) {
		t.Error("/bin/sh reported unavailable")
	}

	missing := NewSubprocessAdapter(config.ToolConfig{
		Name:    "reasoning-tool",
		Command: "no-such-binary-anywhere",
	}, nil, nil)
	if missing.IsAvailable(ctx) {
		t.Error("missing binary reported available")
	}

	unconfigured := NewSubprocessAdapter(config.ToolConfig{Name: "reasoning-tool"}, nil, nil)
	if unconfigured.IsAvailable(ctx) {
		t.Error("unconfigured tool reported available")
	}
}

func TestSubprocessArgs(t *testing.T) {
	a := NewSubprocessAdapter(config.ToolConfig{
		Name:        "reasoning-tool",
		Command:     "claude",
		Args:        []string{"-p", "--output-format", "text"},
		AllowedDirs: []string{"/tmp/work"},
	}, nil, nil)

	got := a.args(types.TaskRequest{Prompt: "do the thing"})
	want := []string{"-p", "--output-format", "text", "--add-dir", "/tmp/work", "do the thing"}
	if len(got) != len(want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, got[i], want[i])
		}
	}
	if got[len(got)-1] != "do the thing" {
		t.Error("prompt is not the final argument")
	}
}
