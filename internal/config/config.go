// Package config loads and validates taskrouter configuration, including
// the capability registry for every backend tool. Configuration is read
// once at startup; the resulting registry is read-only thereafter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taskrouter/internal/types"
)

// Config holds all taskrouter configuration.
type Config struct {
	// Tools is the capability registry: one entry per backend tool.
	Tools []ToolConfig `yaml:"tools"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Session configures the session manager and its archive store.
	Session SessionConfig `yaml:"session"`

	// LogDir is where per-tool execution logs are written. Empty disables
	// the side channel.
	LogDir string `yaml:"log_dir"`
}

// ToolConfig describes one backend tool: its capability declaration plus
// how to reach it. Exactly one of Command or Endpoint should be set; a tool
// with neither is reported as not configured at execution time.
type ToolConfig struct {
	Name string `yaml:"name"`

	// Command and Args configure a subprocess-backed tool. The prompt is
	// appended as the final argument at execution time.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// AllowedDirs lists extra directories the subprocess may access; each
	// is passed via the flag named by DirFlag (default "--add-dir").
	AllowedDirs []string `yaml:"allowed_dirs"`
	DirFlag     string   `yaml:"dir_flag"`

	// Endpoint configures an HTTP-backed tool.
	Endpoint string `yaml:"endpoint"`

	// TimeoutSeconds is the hard wall-clock ceiling for one execution.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// ProbeTimeoutSeconds bounds the availability probe.
	ProbeTimeoutSeconds int `yaml:"probe_timeout_seconds"`

	// Capability metadata.
	Strengths       []string `yaml:"strengths"`
	Tier            string   `yaml:"tier"`
	RequiresGit     bool     `yaml:"requires_git"`
	RequiresRuntime bool     `yaml:"requires_runtime"`
	Priority        int      `yaml:"priority"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SessionConfig configures session retention.
type SessionConfig struct {
	// ArchivePath is the SQLite file terminal sessions are flushed to.
	// Empty disables archiving.
	ArchivePath string `yaml:"archive_path"`

	// CleanupMaxAgeMinutes is the default cutoff for the cleanup sweep.
	CleanupMaxAgeMinutes int `yaml:"cleanup_max_age_minutes"`
}

// Timeout returns the execution ceiling as a duration.
func (t ToolConfig) Timeout() time.Duration {
	if t.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// ProbeTimeout returns the availability probe ceiling.
func (t ToolConfig) ProbeTimeout() time.Duration {
	if t.ProbeTimeoutSeconds <= 0 {
		return 4 * time.Second
	}
	return time.Duration(t.ProbeTimeoutSeconds) * time.Second
}

// Capability converts the static metadata into the shared capability type.
func (t ToolConfig) Capability() types.Capability {
	strengths := make([]types.TaskType, 0, len(t.Strengths))
	for _, s := range t.Strengths {
		strengths = append(strengths, types.TaskType(s))
	}
	tier := types.Tier(t.Tier)
	if tier == "" {
		tier = types.TierMedium
	}
	return types.Capability{
		Name:            t.Name,
		Strengths:       strengths,
		Tier:            tier,
		RequiresGit:     t.RequiresGit,
		RequiresRuntime: t.RequiresRuntime,
		Priority:        t.Priority,
	}
}

// DefaultConfig returns the built-in registry: a reasoning tool wrapping the
// claude CLI and a generation tool wrapping a local HTTP service.
func DefaultConfig() *Config {
	return &Config{
		Tools: []ToolConfig{
			{
				Name:           "reasoning-tool",
				Command:        "claude",
				Args:           []string{"-p", "--output-format", "text", "--permission-mode", "acceptEdits"},
				DirFlag:        "--add-dir",
				TimeoutSeconds: 30,
				Strengths: []string{
					string(types.TaskArchitecture), string(types.TaskRefactoring),
					string(types.TaskDebugging), string(types.TaskReview),
				},
				Tier:        string(types.TierComplex),
				RequiresGit: true,
				Priority:    1,
			},
			{
				Name:           "generation-tool",
				Endpoint:       "http://127.0.0.1:8900/v1/generate",
				TimeoutSeconds: 30,
				Strengths: []string{
					string(types.TaskCodeGeneration), string(types.TaskDocumentation),
					string(types.TaskQuickFix),
				},
				Tier:            string(types.TierSimple),
				RequiresRuntime: true,
				Priority:        2,
			},
		},
		Server: ServerConfig{Addr: "127.0.0.1:8787"},
		Session: SessionConfig{
			CleanupMaxAgeMinutes: 60,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".taskrouter", "config.yaml")
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants: unique, non-empty tool names.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Tools))
	for _, tool := range c.Tools {
		if tool.Name == "" {
			return fmt.Errorf("tool with empty name in config")
		}
		if _, dup := seen[tool.Name]; dup {
			return fmt.Errorf("duplicate tool name in config: %s", tool.Name)
		}
		seen[tool.Name] = struct{}{}
	}
	return nil
}

// Tool returns the configuration for a named tool.
func (c *Config) Tool(name string) (ToolConfig, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolConfig{}, false
}

// applyEnvOverrides lets the environment patch the loaded config:
//
//	TASKROUTER_ADDR               server listen address
//	TASKROUTER_LOG_DIR            execution log directory
//	TASKROUTER_SESSION_DB         session archive path
//	TASKROUTER_<TOOL>_COMMAND     per-tool command override
//	TASKROUTER_<TOOL>_ENDPOINT    per-tool endpoint override
//
// Tool names are upcased with dashes mapped to underscores, e.g.
// TASKROUTER_REASONING_TOOL_COMMAND.
func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("TASKROUTER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if dir := os.Getenv("TASKROUTER_LOG_DIR"); dir != "" {
		c.LogDir = dir
	}
	if db := os.Getenv("TASKROUTER_SESSION_DB"); db != "" {
		c.Session.ArchivePath = db
	}

	for i := range c.Tools {
		key := strings.ToUpper(strings.ReplaceAll(c.Tools[i].Name, "-", "_"))
		if cmd := os.Getenv("TASKROUTER_" + key + "_COMMAND"); cmd != "" {
			c.Tools[i].Command = cmd
		}
		if ep := os.Getenv("TASKROUTER_" + key + "_ENDPOINT"); ep != "" {
			c.Tools[i].Endpoint = ep
		}
	}
}
