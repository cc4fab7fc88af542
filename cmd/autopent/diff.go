package main

import (
	"fmt"
	"path/filepath"

	"github.com/hakim/autopent/internal/diff"
	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/report"
	"github.com/hakim/autopent/internal/storage"
	"github.com/hakim/autopent/internal/target"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare two assessment runs and report what changed",
	Long: `Compare two stored runs and report the change in correlated
vulnerabilities, reconnaissance source outcomes, scanner outcomes, resolved
address and exploitation result.

Select the runs explicitly with --old and --new (run IDs, see 'autopent
history'), or pass --target to compare the two most recent runs of a target.

Results are saved to:
  - {new_run_dir}/reports/diff.md     (markdown change report)
  - {new_run_dir}/raw/diff.json       (structured diff JSON)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Get flags
		oldID, _ := cmd.Flags().GetString("old")
		newID, _ := cmd.Flags().GetString("new")
		rawTarget, _ := cmd.Flags().GetString("target")

		// Step 2: Open bbolt store
		store, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		// Step 3: Resolve both runs
		previous, current, err := resolveRuns(store, oldID, newID, rawTarget)
		if err != nil {
			return err
		}
		if previous == nil {
			warn("No previous run found for comparison")
			return nil
		}

		info("Previous run: %s (%s)", previous.ID, previous.RunDir)
		info("Current run:  %s (%s)", current.ID, current.RunDir)

		// Step 4: Load both snapshots
		currentSnap, err := diff.LoadSnapshot(current.RunDir)
		if err != nil {
			return fmt.Errorf("loading current snapshot: %w", err)
		}
		previousSnap, err := diff.LoadSnapshot(previous.RunDir)
		if err != nil {
			return fmt.Errorf("loading previous snapshot: %w", err)
		}

		// Step 5: Compute diff
		result := diff.ComputeDiff(currentSnap, previousSnap)

		// Step 6: Write diff markdown report
		diffReportPath := filepath.Join(storage.ReportsDir(current.RunDir), "diff.md")
		if err := storage.EnsureDir(storage.ReportsDir(current.RunDir)); err != nil {
			return fmt.Errorf("creating reports directory: %w", err)
		}
		if err := report.WriteDiffReport(result, previous.ID, current.ID, diffReportPath); err != nil {
			// Warn but do not abort, raw JSON is still persisted below
			warn("Failed to write diff report: %v", err)
		} else {
			success("Diff report written to %s", diffReportPath)
		}

		// Step 7: Save diff result as JSON
		if err := storage.WriteRawJSON(current.RunDir, "diff.json", result); err != nil {
			return fmt.Errorf("writing diff.json: %w", err)
		}
		success("Diff JSON written to %s", filepath.Join(storage.RawDir(current.RunDir), "diff.json"))

		// Step 8: Print summary
		fmt.Println()
		if result.Empty() {
			success("No changes detected")
			return nil
		}
		success("Diff complete!")
		fmt.Printf("    Vulnerabilities: +%d new, -%d resolved (%d -> %d)\n",
			len(result.Matches.New), len(result.Matches.Resolved),
			result.PreviousMatchCount, result.CurrentMatchCount)
		fmt.Printf("    Recon sources:   %d changed\n", len(result.ReconChanges))
		fmt.Printf("    Scanners:        %d changed\n", len(result.ScanChanges))
		if result.AddressChange != nil {
			fmt.Printf("    Address:         %s -> %s\n", result.AddressChange.Previous, result.AddressChange.Current)
		}
		if result.ExploitChanged {
			fmt.Println("    Exploitation:    outcome changed")
		}

		return nil
	},
}

// resolveRuns returns the (previous, current) run pair. Explicit IDs win;
// otherwise the two newest runs of target are used. previous is nil when
// the target has only one run.
func resolveRuns(store *storage.Store, oldID, newID, rawTarget string) (*models.RunMeta, *models.RunMeta, error) {
	if oldID != "" && newID != "" {
		previous, err := getRun(store, oldID)
		if err != nil {
			return nil, nil, err
		}
		current, err := getRun(store, newID)
		if err != nil {
			return nil, nil, err
		}
		return previous, current, nil
	}

	if rawTarget == "" {
		return nil, nil, fmt.Errorf("either --old and --new, or --target is required")
	}

	host := target.Normalize(rawTarget)
	runs, err := store.ListRuns(host)
	if err != nil {
		return nil, nil, fmt.Errorf("listing runs for %s: %w", host, err)
	}
	if len(runs) == 0 {
		return nil, nil, fmt.Errorf("no runs found for %s. Run 'autopent run -t %s' first", host, rawTarget)
	}
	if len(runs) == 1 {
		return nil, runs[0], nil
	}
	// runs is sorted newest-first.
	return runs[1], runs[0], nil
}

func getRun(store *storage.Store, id string) (*models.RunMeta, error) {
	meta, err := store.GetRun(id)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	if meta == nil {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return meta, nil
}

func init() {
	diffCmd.Flags().String("old", "", "ID of the previous run")
	diffCmd.Flags().String("new", "", "ID of the current run")
	diffCmd.Flags().StringP("target", "t", "", "Compare the two most recent runs of this target")
	rootCmd.AddCommand(diffCmd)
}
