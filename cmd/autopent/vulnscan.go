package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/hakim/autopent/internal/correlate"
	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/tools"
	"github.com/hakim/autopent/internal/vulnscan"
	"github.com/spf13/cobra"
)

var vulnscanCmd = &cobra.Command{
	Use:   "vulnscan",
	Short: "Run only the scanners and correlate their output",
	Long: `Run the configured scanners sequentially against the target and print the
exploit modules their combined output correlates with. Nothing is exploited
and no report is written.

Examples:
  autopent vulnscan -t http://testphp.vulnweb.com
  autopent vulnscan -t 10.0.0.5 --preset network --output`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rawTarget, _ := cmd.Flags().GetString("target")
		presetName, _ := cmd.Flags().GetString("preset")
		showOutput, _ := cmd.Flags().GetBool("output")

		scanners := vulnscan.FromConfig(cfg.Scanners)
		if presetName != "" {
			preset, err := vulnscan.GetPreset(presetName)
			if err != nil {
				return err
			}
			if scanners, err = preset.Apply(scanners); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		agg := &vulnscan.Aggregator{
			Scanners: scanners,
			Invoker:  tools.NewInvoker(cfg.Tools.MaxOutputBytes, logger),
			Logger:   logger,
		}
		agg.OnTool = func(out models.ScanOutput) {
			line := fmt.Sprintf("%s finished: %s, exit %d (%s)", out.Tool, out.Kind, out.ExitCode, out.Duration.Round(time.Millisecond))
			if out.Kind == models.OutputOK {
				success("%s", line)
			} else {
				warn("%s", line)
			}
		}

		info("Running %d scanner(s) against %s", len(scanners), rawTarget)
		result := agg.Scan(ctx, rawTarget)

		if showOutput {
			for _, out := range result.Outputs {
				fmt.Printf("\n── %s ──\n%s\n", out.Tool, out.Output)
			}
		}

		matches := correlate.NewDefault(cfg.Exploit.Signatures).Correlate(result.Combined)
		fmt.Println()
		if len(matches) == 0 {
			info("No known vulnerability signatures found")
			return nil
		}
		success("Correlated vulnerabilities (%d):", len(matches))
		for _, m := range matches {
			fmt.Printf("    %-16s %s\n", m.Signature, m.Exploit)
		}
		return nil
	},
}

func init() {
	vulnscanCmd.Flags().StringP("target", "t", "", "Target URL, hostname or IP address (required)")
	vulnscanCmd.Flags().String("preset", "", "Scanner preset: full, web, network")
	vulnscanCmd.Flags().Bool("output", false, "Print raw scanner output")
	vulnscanCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(vulnscanCmd)
}
