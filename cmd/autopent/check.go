package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hakim/autopent/internal/exploit"
	"github.com/hakim/autopent/internal/tools"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for required external tools and services",
	Long: `Verify that the external scanners are installed and available, and report
which optional services (Metasploit RPC, intelligence APIs, analysis endpoint)
are configured. Shows installation status, version information, and provides
installation instructions for missing tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		results := tools.CheckTools(tools.DefaultTools())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Tool\tStatus\tVersion\tPurpose")
		fmt.Fprintln(w, "----\t------\t-------\t-------")

		foundCount := 0
		requiredMissing := 0

		for _, result := range results {
			status := skipPrefix
			version := "-"

			if result.Found {
				status = successPrefix
				foundCount++
				if result.Version != "" && result.Version != "unknown" {
					version = result.Version
				}
			} else if result.Tool.Required {
				status = warnPrefix
				requiredMissing++
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				result.Tool.Name,
				status,
				version,
				result.Tool.Purpose)
		}

		w.Flush()

		// Print installation instructions for missing tools
		fmt.Println()
		missingTools := false
		for _, result := range results {
			if !result.Found {
				if !missingTools {
					fmt.Println("Missing tools:")
					missingTools = true
				}
				required := ""
				if result.Tool.Required {
					required = " (REQUIRED)"
				}
				fmt.Printf("  %s%s\n    Install: %s\n",
					result.Tool.Name,
					required,
					result.Tool.InstallCmd)
			}
		}

		fmt.Println()
		checkServices(cmd.Context())

		fmt.Println()
		fmt.Printf("Summary: %d/%d tools found", foundCount, len(results))
		if requiredMissing > 0 {
			fmt.Printf(", %d required tools missing", requiredMissing)
		}
		fmt.Println()

		if requiredMissing > 0 {
			return fmt.Errorf("required tools are missing")
		}

		return nil
	},
}

// checkServices reports the optional network collaborators.
func checkServices(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Exploit.Configured() {
		client := exploit.NewMSFClient(cfg.Exploit, logger)
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		version, err := client.Version(pingCtx)
		cancel()
		if err != nil {
			warn("Metasploit RPC at %s: %v", client.BaseURL, err)
		} else {
			success("Metasploit RPC at %s: version %s", client.BaseURL, version)
		}
	} else {
		fmt.Printf("%s Metasploit RPC not configured (exploitation will be skipped)\n", skipPrefix)
	}

	intel := []struct{ name, key string }{
		{"Shodan", cfg.Intel.Shodan.APIKey},
		{"BinaryEdge", cfg.Intel.BinaryEdge.APIKey},
		{"ONYPHE", cfg.Intel.Onyphe.APIKey},
	}
	for _, svc := range intel {
		if svc.key != "" {
			success("%s API key configured", svc.name)
		} else {
			fmt.Printf("%s %s API key not set\n", skipPrefix, svc.name)
		}
	}

	if cfg.Analysis.Configured() {
		success("Analysis endpoint configured (model %s)", cfg.Analysis.Model)
	} else {
		fmt.Printf("%s Analysis not configured (reports will carry a placeholder)\n", skipPrefix)
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
