package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// toolsCmd lists the capability registry with live availability.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List configured tools and their availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := orch.Adapters().All()
		available := make([]bool, len(entries))

		g, ctx := errgroup.WithContext(cmd.Context())
		for i, entry := range entries {
			g.Go(func() error {
				available[i] = entry.Adapter.IsAvailable(ctx)
				return nil
			})
		}
		_ = g.Wait()

		for i, entry := range entries {
			cap := entry.Capability
			status := "unavailable"
			if available[i] {
				status = "available"
			}
			fmt.Printf("%-18s %-12s tier=%-8s priority=%d strengths=%v\n",
				cap.Name, status, cap.Tier, cap.Priority, cap.Strengths)
		}
		return nil
	},
}
