// Package types holds the shared data model for taskrouter: task requests,
// analyses, tool capabilities, results, and stream events. Everything here is
// plain data; behavior lives in the packages that consume these types.
package types

// TaskType is the coarse category of a coding request used to bias tool
// selection.
type TaskType string

const (
	TaskCodeGeneration TaskType = "code-generation"
	TaskRefactoring    TaskType = "refactoring"
	TaskDebugging      TaskType = "debugging"
	TaskReview         TaskType = "review"
	TaskDocumentation  TaskType = "documentation"
	TaskArchitecture   TaskType = "architecture"
	TaskQuickFix       TaskType = "quick-fix"
)

// TaskRequest describes one coding task handed to the dispatch layer.
// It is immutable once constructed; adapters read it, never mutate it.
type TaskRequest struct {
	// Prompt is the free-form task description.
	Prompt string `json:"prompt"`

	// Directory is the working directory the tool runs in.
	Directory string `json:"directory"`

	// Env holds optional environment variable overrides for the backend.
	Env map[string]string `json:"env,omitempty"`

	// Include/Exclude are optional glob patterns scoping file context.
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`

	// Stream requests incremental event delivery instead of one result.
	Stream bool `json:"stream,omitempty"`

	// SessionID is an optional pre-assigned session identifier.
	SessionID string `json:"session_id,omitempty"`
}

// TaskAnalysis is the analyzer's verdict for one request. Produced fresh per
// request, never mutated or persisted.
type TaskAnalysis struct {
	TaskType      TaskType `json:"task_type"`
	Complexity    int      `json:"complexity"` // always in [1,10]
	SuggestedTool string   `json:"suggested_tool"`
	Confidence    float64  `json:"confidence"` // always in [0,1]
	Reasoning     string   `json:"reasoning"`
}

// ToolResult is the terminal outcome of one non-streaming execution.
type ToolResult struct {
	Success   bool   `json:"success"`
	Output    string `json:"output"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id"`
}

// EventType tags a StreamEvent.
type EventType string

const (
	EventRouting  EventType = "routing"
	EventOutput   EventType = "output"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// EventData carries the type-dependent payload of a stream event.
type EventData struct {
	Tool      string `json:"tool,omitempty"`       // routing
	SessionID string `json:"session_id,omitempty"` // routing
	Content   string `json:"content,omitempty"`    // output
	Message   string `json:"message,omitempty"`    // error
	Status    string `json:"status,omitempty"`     // complete
	ExitCode  *int   `json:"exit_code,omitempty"`  // complete
}

// StreamEvent is one element of a streaming execution. Per invocation the
// sequence is exactly one routing event, zero or more output events, and
// exactly one terminal event (complete or error).
type StreamEvent struct {
	Type EventType `json:"type"`
	Data EventData `json:"data"`
}

// IsTerminal reports whether the event ends the stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// RoutingEvent builds the mandatory first event of a stream.
func RoutingEvent(tool, sessionID string) StreamEvent {
	return StreamEvent{Type: EventRouting, Data: EventData{Tool: tool, SessionID: sessionID}}
}

// OutputEvent wraps one incremental chunk of backend output.
func OutputEvent(content string) StreamEvent {
	return StreamEvent{Type: EventOutput, Data: EventData{Content: content}}
}

// ErrorEvent builds a terminal error event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Data: EventData{Message: message}}
}

// CompleteEvent builds a terminal completion event. exitCode may be nil for
// backends without a process exit code (HTTP tools).
func CompleteEvent(status string, exitCode *int) StreamEvent {
	return StreamEvent{Type: EventComplete, Data: EventData{Status: status, ExitCode: exitCode}}
}

// Tier classifies how heavy a tool is.
type Tier string

const (
	TierSimple  Tier = "simple"
	TierMedium  Tier = "medium"
	TierComplex Tier = "complex"
)

// Capability is the static declaration of what a backend tool is good at and
// how it should be scheduled. Loaded from configuration at startup and
// read-only thereafter.
type Capability struct {
	// Name is the registry key (e.g. "reasoning-tool").
	Name string `json:"name"`

	// Strengths lists task types this tool handles well, strongest first.
	Strengths []TaskType `json:"strengths"`

	// Tier is the complexity tier the tool is sized for.
	Tier Tier `json:"tier"`

	// RequiresGit marks tools that need version-control awareness.
	RequiresGit bool `json:"requires_git"`

	// RequiresRuntime marks tools that need a language runtime present.
	RequiresRuntime bool `json:"requires_runtime"`

	// Priority breaks ties between equally suited tools; lower is preferred.
	Priority int `json:"priority"`
}
