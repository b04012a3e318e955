package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	sessionsTool       string
	sessionsActiveOnly bool
	cleanupMaxAge      time.Duration
)

// sessionsCmd lists tracked sessions.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and inspect execution sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		list := sessions.All()
		if sessionsTool != "" {
			list = sessions.ByTool(sessionsTool)
		} else if sessionsActiveOnly {
			list = sessions.Active()
		}

		for _, s := range list {
			end := "-"
			if s.EndTime != nil {
				end = s.EndTime.Format(time.RFC3339)
			}
			fmt.Printf("%-48s %-16s %-10s started=%s ended=%s messages=%d\n",
				s.ID, s.Tool, s.Status, s.StartTime.Format(time.RFC3339), end, len(s.Messages))
		}

		stats := sessions.GetStats()
		fmt.Printf("\n%d total (%d active, %d completed, %d failed)\n",
			stats.Total, stats.Active, stats.Completed, stats.Failed)
		return nil
	},
}

// sessionsShowCmd prints one session as JSON.
var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one session including its message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := sessions.Get(args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// sessionsCleanupCmd sweeps old terminal sessions.
var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove terminal sessions older than --max-age",
	RunE: func(cmd *cobra.Command, args []string) error {
		removed := sessions.Cleanup(cleanupMaxAge)
		fmt.Printf("removed %d session(s)\n", removed)
		return nil
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsTool, "tool", "", "only sessions owned by this tool")
	sessionsCmd.Flags().BoolVar(&sessionsActiveOnly, "active", false, "only active sessions")
	sessionsCleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", time.Hour, "terminal sessions older than this are removed")

	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsCleanupCmd)
}
