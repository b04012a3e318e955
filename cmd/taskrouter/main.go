package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskrouter/internal/adapter"
	"taskrouter/internal/config"
	"taskrouter/internal/logging"
	"taskrouter/internal/orchestrator"
	"taskrouter/internal/session"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Shared state built in PersistentPreRunE
	logger   *zap.Logger
	cfg      *config.Config
	store    *session.Store
	sessions *session.Manager
	orch     *orchestrator.Orchestrator
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "taskrouter",
	Short: "taskrouter - dispatch coding tasks to pluggable backend tools",
	Long: `taskrouter classifies a free-form coding task, picks the backend tool
best suited for it (local CLI or HTTP service), runs it, and tracks the
invocation as a session with full message history.

Use "taskrouter run" for one-shot dispatch or "taskrouter serve" to expose
the same core over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return err
		}

		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}

		var archiver session.Archiver
		if cfg.Session.ArchivePath != "" {
			store, err = session.OpenStore(cfg.Session.ArchivePath)
			if err != nil {
				return err
			}
			archiver = store
		}

		sessions = session.NewManager(archiver, logging.Component(logger, "session"))
		factory := adapter.NewFactory(cfg, http.DefaultClient, logging.Component(logger, "adapter"))
		orch = orchestrator.New(factory, sessions, logging.Component(logger, "orchestrator"))
		return nil
	},
}

// shutdown flushes tracked sessions to the archive and releases resources.
// Called from main after Execute returns so it runs on failure paths too;
// a cobra PersistentPostRun hook is skipped when RunE errors.
func shutdown() {
	if sessions != nil && store != nil {
		sessions.Flush()
	}
	if store != nil {
		_ = store.Close()
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.taskrouter/config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	err := rootCmd.Execute()
	shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
