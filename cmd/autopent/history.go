package main

import (
	"fmt"
	"strings"

	"github.com/hakim/autopent/internal/storage"
	"github.com/hakim/autopent/internal/target"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show assessment history for a target",
	Long: `Display a formatted table of past assessment runs for a target.

Runs are listed newest-first. Each row shows the run ID (truncated), start time,
stored status, final pipeline state, number of correlated vulnerabilities and
the stages that ran.

Use --limit to cap the number of rows shown (default: 10).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Get flags
		rawTarget, _ := cmd.Flags().GetString("target")
		limit, _ := cmd.Flags().GetInt("limit")
		host := target.Normalize(rawTarget)

		// Step 2: Open bbolt store
		store, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		// Step 3: List runs (sorted newest-first by store.ListRuns)
		runs, err := store.ListRuns(host)
		if err != nil {
			return fmt.Errorf("listing runs for %s: %w", host, err)
		}

		if len(runs) == 0 {
			fmt.Printf("No assessment history found for %s\n", host)
			return nil
		}

		// Step 4: Apply limit
		if limit > 0 && len(runs) > limit {
			runs = runs[:limit]
		}

		// Step 5: Print formatted table
		const separator = "────────────────────────────────────────────────────────────────────────────────"

		fmt.Printf("\nAssessment History for %s\n", host)
		fmt.Println(separator)
		fmt.Printf("  %-3s  %-12s  %-17s  %-10s  %-10s  %-7s  %s\n", "#", "Run ID", "Started", "Status", "State", "Matches", "Stages")
		fmt.Println(separator)

		for i, run := range runs {
			fmt.Printf("  %-3d  %-12s  %-17s  %-10s  %-10s  %-7d  %s\n",
				i+1,
				shortID(run.ID),
				run.StartedAt.UTC().Format("2006-01-02 15:04"),
				colorStatus(run.Status),
				run.State,
				run.MatchCount,
				formatStages(run.StagesRun))
		}

		fmt.Println(separator)
		fmt.Printf("Total: %d run(s)\n\n", len(runs))

		return nil
	},
}

// formatStages joins the StagesRun slice into a comma-separated string.
// Returns "-" when no stages are recorded.
func formatStages(stages []string) string {
	if len(stages) == 0 {
		return "-"
	}
	return strings.Join(stages, ", ")
}

func init() {
	historyCmd.Flags().StringP("target", "t", "", "Target URL, hostname or IP address (required)")
	historyCmd.Flags().Int("limit", 10, "Maximum number of runs to display")
	historyCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(historyCmd)
}
