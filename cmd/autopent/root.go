package main

import (
	"fmt"

	"github.com/hakim/autopent/internal/config"
	"github.com/hakim/autopent/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "autopent",
	Short: "Automated web application penetration testing pipeline",
	Long: `autopent runs an end-to-end assessment against a single web target.

It gathers reconnaissance (address, WHOIS, DNS records, HTTP headers and
optional Shodan/BinaryEdge/ONYPHE intelligence), runs nikto, sqlmap and nmap,
correlates their output with known exploit modules, optionally launches one
exploit through the Metasploit RPC daemon, asks an OpenAI-compatible model for
remediation advice and renders a PDF or Markdown report.

Only assess systems you are authorised to test.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		skipConfig := map[string]bool{
			"init":    true,
			"help":    true,
			"version": true,
		}

		if skipConfig[cmd.Name()] {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logCfg := cfg.Logging
		if verbose {
			logCfg.Level = "debug"
		}
		logger, err = logging.New(logCfg)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./autopent.yaml, ./configs, ~/.config/autopent)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")

	// Version flag
	rootCmd.Version = "0.1.0-dev"
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
