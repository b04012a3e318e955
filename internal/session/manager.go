// Package session tracks tool invocations as sessions: an ordered message
// history plus a terminal status. The in-memory registry is the only shared
// mutable state in the core and must tolerate concurrent callers; a single
// mutex guards every registry operation, and no operation blocks while
// holding it beyond a map mutation.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session lookup and lifecycle errors. These are raised to the caller:
// operating on an unknown or already-terminal session is an orchestration
// bug, not an environmental condition.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionTerminal = errors.New("session already terminal")
	ErrSessionExists   = errors.New("session already exists")
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Status is the lifecycle state of a session. Transitions are monotonic:
// active moves to completed or failed, and terminal states never change.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// terminal reports whether a status permits no further transitions.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Message is one entry of a session's conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the tracked record of one end-to-end tool invocation.
type Session struct {
	ID        string            `json:"id"`
	Tool      string            `json:"tool"`
	Messages  []Message         `json:"messages"`
	StartTime time.Time         `json:"start_time"`
	EndTime   *time.Time        `json:"end_time,omitempty"`
	Status    Status            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// clone deep-copies a session so callers never alias registry state.
func (s *Session) clone() Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Stats summarizes the registry at a point in time. Counts are computed
// from the current snapshot; there are no incremental counters to keep in
// sync.
type Stats struct {
	Total     int            `json:"total"`
	Active    int            `json:"active"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	ByTool    map[string]int `json:"by_tool"`
}

// Archiver receives sessions removed by cleanup and at shutdown. Archive
// failures are logged and otherwise ignored; the registry mutation has
// already happened.
type Archiver interface {
	Archive(sessions []Session) error
}

// Manager is the in-memory session registry. Construct one per process and
// pass it to the orchestrator; there is no package-level instance.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	archive Archiver
	logger  *zap.Logger
}

// NewManager creates an empty registry. archive may be nil.
func NewManager(archive Archiver, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		archive:  archive,
		logger:   logger,
	}
}

// Create registers a new active session. When id is empty one is generated
// from the tool name, a monotonic timestamp, and a random suffix. A
// pre-assigned id that is already tracked fails with ErrSessionExists
// rather than silently discarding the existing session's history.
func (m *Manager) Create(tool, id string, metadata map[string]string) (Session, error) {
	if id == "" {
		id = fmt.Sprintf("%s-%d-%s", tool, time.Now().UnixNano(), uuid.NewString()[:8])
	}

	s := &Session{
		ID:        id,
		Tool:      tool,
		Messages:  make([]Message, 0, 4),
		StartTime: time.Now(),
		Status:    StatusActive,
		Metadata:  metadata,
	}

	m.mu.Lock()
	if _, taken := m.sessions[id]; taken {
		m.mu.Unlock()
		return Session{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Debug("session created", zap.String("id", id), zap.String("tool", tool))
	return s.clone(), nil
}

// AddMessage appends a timestamped message to the session's history.
func (m *Manager) AddMessage(id string, role Role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	return nil
}

// Complete moves a session to a terminal status and stamps its end time.
// Completing an already-terminal session fails with ErrSessionTerminal
// rather than silently overwriting the recorded outcome.
func (m *Manager) Complete(id string, status Status) error {
	if !status.terminal() {
		return fmt.Errorf("invalid terminal status: %s", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.Status.terminal() {
		return fmt.Errorf("%w: %s", ErrSessionTerminal, id)
	}

	now := time.Now()
	s.Status = status
	s.EndTime = &now
	return nil
}

// Get returns a copy of the session.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.clone(), nil
}

// All returns copies of every tracked session.
func (m *Manager) All() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	return out
}

// ByTool returns copies of every session owned by a tool.
func (m *Manager) ByTool(tool string) []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Session
	for _, s := range m.sessions {
		if s.Tool == tool {
			out = append(out, s.clone())
		}
	}
	return out
}

// Active returns copies of every non-terminal session.
func (m *Manager) Active() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Session
	for _, s := range m.sessions {
		if !s.Status.terminal() {
			out = append(out, s.clone())
		}
	}
	return out
}

// Cleanup removes every terminal session whose end time is older than
// now-maxAge and returns the count removed. Removed sessions are handed to
// the archiver. Idempotent: a second sweep with the same cutoff and no new
// terminal sessions removes zero.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var removed []Session
	for id, s := range m.sessions {
		if s.Status.terminal() && s.EndTime != nil && s.EndTime.Before(cutoff) {
			removed = append(removed, s.clone())
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	if len(removed) > 0 {
		m.archiveSessions(removed)
		m.logger.Debug("cleaned up sessions", zap.Int("removed", len(removed)))
	}
	return len(removed)
}

// Flush archives every tracked session and empties the registry. Intended
// for process shutdown.
func (m *Manager) Flush() int {
	m.mu.Lock()
	flushed := make([]Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		flushed = append(flushed, s.clone())
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if len(flushed) > 0 {
		m.archiveSessions(flushed)
	}
	return len(flushed)
}

// GetStats computes registry statistics from the current snapshot.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{ByTool: make(map[string]int)}
	for _, s := range m.sessions {
		stats.Total++
		stats.ByTool[s.Tool]++
		switch s.Status {
		case StatusActive:
			stats.Active++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// archiveSessions hands sessions to the archiver outside the registry lock.
func (m *Manager) archiveSessions(sessions []Session) {
	if m.archive == nil {
		return
	}
	if err := m.archive.Archive(sessions); err != nil {
		m.logger.Warn("session archive failed", zap.Error(err), zap.Int("count", len(sessions)))
	}
}
