package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ExecLog appends one timestamp-named JSON document per execution attempt
// to a per-tool log directory. It is a side channel: write failures are
// swallowed and never affect the returned result.
type ExecLog struct {
	dir    string
	logger *zap.Logger
}

// NewExecLog creates an execution log rooted at dir. An empty dir disables
// logging; Record becomes a no-op.
func NewExecLog(dir string, logger *zap.Logger) *ExecLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecLog{dir: dir, logger: logger}
}

type execRecord struct {
	Tool      string    `json:"tool"`
	Timestamp time.Time `json:"timestamp"`
	Prompt    string    `json:"prompt"`
	Output    string    `json:"output"`
	Error     string    `json:"error,omitempty"`
}

// Record writes one attempt, success or failure, to the log directory.
func (l *ExecLog) Record(tool, prompt, output, errText string) {
	if l == nil || l.dir == "" {
		return
	}

	now := time.Now()
	rec := execRecord{
		Tool:      tool,
		Timestamp: now,
		Prompt:    prompt,
		Output:    output,
		Error:     errText,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		l.logger.Debug("execution log marshal failed", zap.Error(err))
		return
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		l.logger.Debug("execution log mkdir failed", zap.Error(err))
		return
	}

	name := fmt.Sprintf("%s-%s.json", tool, now.Format("20060102-150405.000000000"))
	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0o644); err != nil {
		l.logger.Debug("execution log write failed", zap.Error(err))
	}
}
