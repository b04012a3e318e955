package types

import "testing"

func TestEventConstructors(t *testing.T) {
	routing := RoutingEvent("reasoning-tool", "s1")
	if routing.Type != EventRouting || routing.Data.Tool != "reasoning-tool" || routing.Data.SessionID != "s1" {
		t.Errorf("routing event = %+v", routing)
	}

	output := OutputEvent("chunk")
	if output.Type != EventOutput || output.Data.Content != "chunk" {
		t.Errorf("output event = %+v", output)
	}

	errEv := ErrorEvent("boom")
	if errEv.Type != EventError || errEv.Data.Message != "boom" {
		t.Errorf("error event = %+v", errEv)
	}

	code := 0
	complete := CompleteEvent("completed", &code)
	if complete.Type != EventComplete || complete.Data.Status != "completed" {
		t.Errorf("complete event = %+v", complete)
	}
	if complete.Data.ExitCode == nil || *complete.Data.ExitCode != 0 {
		t.Errorf("exit code = %v", complete.Data.ExitCode)
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		ev   StreamEvent
		want bool
	}{
		{RoutingEvent("t", "s"), false},
		{OutputEvent("x"), false},
		{ErrorEvent("x"), true},
		{CompleteEvent("completed", nil), true},
	}
	for _, tt := range tests {
		if got := tt.ev.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.ev.Type, got, tt.want)
		}
	}
}
