package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskrouter/internal/types"
)

var (
	runDirectory string
	runInclude   []string
	runExclude   []string
	runStream    bool
	runSession   string
)

// runCmd dispatches a single task and prints the result.
var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Dispatch one coding task to the best-suited tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := runDirectory
		if dir == "" {
			var err error
			dir, err = os.Getwd()
			if err != nil {
				return err
			}
		}

		req := types.TaskRequest{
			Prompt:    args[0],
			Directory: dir,
			Include:   runInclude,
			Exclude:   runExclude,
			Stream:    runStream,
			SessionID: runSession,
		}

		if runStream {
			return streamTask(cmd, req)
		}

		result, err := orch.Dispatch(cmd.Context(), req)
		if err != nil {
			return err
		}

		if !result.Success {
			fmt.Printf("(session %s)\n", result.SessionID)
			return errors.New(result.Error)
		}
		fmt.Print(result.Output)
		fmt.Printf("(session %s)\n", result.SessionID)
		return nil
	},
}

// streamTask prints routing and output events as they arrive.
func streamTask(cmd *cobra.Command, req types.TaskRequest) error {
	var failed string
	err := orch.DispatchStream(cmd.Context(), req, func(ev types.StreamEvent) error {
		switch ev.Type {
		case types.EventRouting:
			fmt.Printf("[%s] session %s\n", ev.Data.Tool, ev.Data.SessionID)
		case types.EventOutput:
			fmt.Print(ev.Data.Content)
		case types.EventError:
			failed = ev.Data.Message
		case types.EventComplete:
			fmt.Printf("[%s]\n", ev.Data.Status)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if failed != "" {
		return errors.New(failed)
	}
	return nil
}

// analyzeCmd prints the task analysis without dispatching.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <prompt>",
	Short: "Show how a prompt would be classified and routed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		analysis := orch.Analyze(types.TaskRequest{Prompt: args[0]})
		out, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runDirectory, "dir", "d", "", "working directory (default: cwd)")
	runCmd.Flags().StringArrayVar(&runInclude, "include", nil, "glob of files to attach (HTTP tools)")
	runCmd.Flags().StringArrayVar(&runExclude, "exclude", nil, "glob of files to skip")
	runCmd.Flags().BoolVar(&runStream, "stream", false, "stream incremental output")
	runCmd.Flags().StringVar(&runSession, "session", "", "pre-assigned session id")
}
