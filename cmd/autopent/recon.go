package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/hakim/autopent/internal/recon"
	"github.com/spf13/cobra"
)

var reconCmd = &cobra.Command{
	Use:   "recon",
	Short: "Run only the reconnaissance stage",
	Long: `Resolve the target and query WHOIS, DNS records, HTTP headers and any
configured IP intelligence services concurrently, then print every entry.

Examples:
  autopent recon -t example.com
  autopent recon -t http://127.0.0.1:8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rawTarget, _ := cmd.Flags().GetString("target")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		agg := recon.New(cfg, logger)
		info("Gathering reconnaissance for %s", rawTarget)
		bundle := agg.Gather(ctx, rawTarget)

		fmt.Println()
		for _, entry := range bundle.Entries() {
			fmt.Println(colorEntry(entry.Value))
		}
		fmt.Println()

		if !bundle.Resolved() {
			return fmt.Errorf("target %s could not be resolved", rawTarget)
		}
		return nil
	},
}

func init() {
	reconCmd.Flags().StringP("target", "t", "", "Target URL, hostname or IP address (required)")
	reconCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(reconCmd)
}
