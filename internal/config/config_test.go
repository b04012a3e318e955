package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskrouter/internal/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Len(t, cfg.Tools, 2)
	assert.NoError(t, cfg.Validate())

	reasoning, ok := cfg.Tool("reasoning-tool")
	require.True(t, ok)
	assert.Equal(t, "claude", reasoning.Command)
	assert.Equal(t, 1, reasoning.Priority)
	assert.Equal(t, string(types.TierComplex), reasoning.Tier)
	assert.True(t, reasoning.RequiresGit)

	generation, ok := cfg.Tool("generation-tool")
	require.True(t, ok)
	assert.NotEmpty(t, generation.Endpoint)
	assert.Empty(t, generation.Command)
	assert.Equal(t, 2, generation.Priority)

	assert.Equal(t, "127.0.0.1:8787", cfg.Server.Addr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Tools, 2)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
tools:
  - name: reasoning-tool
    command: mytool
    args: ["--flag"]
    timeout_seconds: 120
    strengths: [architecture, debugging]
    tier: complex
    priority: 1
server:
  addr: "0.0.0.0:9000"
session:
  archive_path: /tmp/sessions.db
  cleanup_max_age_minutes: 30
log_dir: /tmp/logs
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Tools, 1)
	tool := cfg.Tools[0]
	assert.Equal(t, "mytool", tool.Command)
	assert.Equal(t, []string{"--flag"}, tool.Args)
	assert.Equal(t, 2*time.Minute, tool.Timeout())
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/sessions.db", cfg.Session.ArchivePath)
	assert.Equal(t, 30, cfg.Session.CleanupMaxAgeMinutes)
	assert.Equal(t, "/tmp/logs", cfg.LogDir)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools: [not: closed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TASKROUTER_ADDR", "127.0.0.1:9999")
	t.Setenv("TASKROUTER_LOG_DIR", "/tmp/override-logs")
	t.Setenv("TASKROUTER_SESSION_DB", "/tmp/override.db")
	t.Setenv("TASKROUTER_REASONING_TOOL_COMMAND", "other-cli")
	t.Setenv("TASKROUTER_GENERATION_TOOL_ENDPOINT", "http://localhost:7000/gen")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "/tmp/override-logs", cfg.LogDir)
	assert.Equal(t, "/tmp/override.db", cfg.Session.ArchivePath)

	reasoning, ok := cfg.Tool("reasoning-tool")
	require.True(t, ok)
	assert.Equal(t, "other-cli", reasoning.Command)

	generation, ok := cfg.Tool("generation-tool")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:7000/gen", generation.Endpoint)
}

func TestValidateRejectsDuplicates(t *testing.T) {
	cfg := &Config{Tools: []ToolConfig{{Name: "a"}, {Name: "a"}}}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Tools: []ToolConfig{{Name: ""}}}
	assert.Error(t, cfg.Validate())
}

func TestTimeoutDefaults(t *testing.T) {
	tool := ToolConfig{}
	assert.Equal(t, 30*time.Second, tool.Timeout())
	assert.Equal(t, 4*time.Second, tool.ProbeTimeout())

	tool = ToolConfig{TimeoutSeconds: 5, ProbeTimeoutSeconds: 1}
	assert.Equal(t, 5*time.Second, tool.Timeout())
	assert.Equal(t, time.Second, tool.ProbeTimeout())
}

func TestCapability(t *testing.T) {
	tool := ToolConfig{
		Name:      "reasoning-tool",
		Strengths: []string{"architecture", "debugging"},
		Tier:      "complex",
		Priority:  1,
	}
	cap := tool.Capability()
	assert.Equal(t, "reasoning-tool", cap.Name)
	assert.Equal(t, []types.TaskType{types.TaskArchitecture, types.TaskDebugging}, cap.Strengths)
	assert.Equal(t, types.TierComplex, cap.Tier)

	// Missing tier falls back to medium.
	assert.Equal(t, types.TierMedium, ToolConfig{Name: "x"}.Capability().Tier)
}
