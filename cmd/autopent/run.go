package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/pipeline"
	"github.com/hakim/autopent/internal/report"
	"github.com/hakim/autopent/internal/storage"
	"github.com/hakim/autopent/internal/tools"
	"github.com/hakim/autopent/internal/vulnscan"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full assessment pipeline against one target",
	Long: `Run the complete assessment for a target URL, hostname or IP address.

Stages run in order: recon, scan, correlate, exploit, analyze, report. Every
stage except exploitation degrades gracefully; a target whose address cannot
be resolved aborts the run after the exploit stage and no report is written.

Results are saved to:
  {scan_dir}/{target}_{timestamp}/raw/          (structured JSON per stage)
  {scan_dir}/{target}_{timestamp}/reports/      (PDF and/or Markdown report)

Run metadata is persisted to the configured database so history and diff work
across runs. Press Ctrl-C to cancel; completed stages are kept.

Examples:
  autopent run -t http://testphp.vulnweb.com
  autopent run -t 10.0.0.5 --preset network
  autopent run -t https://app.lab.internal --report-format both
  autopent run -t app.lab.internal --scope-domains "*.lab.internal" --metrics-addr :9464`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions{}
		opts.target, _ = cmd.Flags().GetString("target")
		opts.preset, _ = cmd.Flags().GetString("preset")
		opts.timeout, _ = cmd.Flags().GetDuration("timeout")
		opts.webhookURL, _ = cmd.Flags().GetString("notify-webhook")
		opts.metricsAddr, _ = cmd.Flags().GetString("metrics-addr")
		opts.scopeDomains = splitCSV(mustString(cmd, "scope-domains"))
		opts.scopeCIDRs = splitCSV(mustString(cmd, "scope-cidrs"))
		opts.reportFormat, _ = cmd.Flags().GetString("report-format")
		opts.scanDir, _ = cmd.Flags().GetString("scan-dir")
		return runAssessment(opts)
	},
}

// runOptions carries the per-run choices of the run and wizard commands.
type runOptions struct {
	target       string
	preset       string
	timeout      time.Duration
	webhookURL   string
	metricsAddr  string
	scopeDomains []string
	scopeCIDRs   []string
	reportFormat string
	scanDir      string
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

// runAssessment validates scope, builds the pipeline from the loaded
// configuration and runs it once.
func runAssessment(opts runOptions) error {
	// ── 1. Options override configuration ──────────────────────────────────
	if opts.reportFormat != "" {
		cfg.Report.Format = opts.reportFormat
	}
	if opts.webhookURL == "" {
		opts.webhookURL = cfg.Notify.WebhookURL
	}
	if opts.scanDir == "" {
		opts.scanDir = cfg.ScanDir
	}

	// ── 2. Scope validation ────────────────────────────────────────────────
	scope := pipeline.NewScope(cfg.Scope)
	if len(opts.scopeDomains) > 0 {
		scope.AllowedDomains = opts.scopeDomains
	}
	if len(opts.scopeCIDRs) > 0 {
		scope.AllowedCIDRs = opts.scopeCIDRs
	}
	if !scope.Empty() {
		if err := scope.Check(opts.target); err != nil {
			return fmt.Errorf("scope check failed: %w", err)
		}
		info("Scope validated: %s is in scope", opts.target)
	}

	// ── 3. Apply preset ────────────────────────────────────────────────────
	scanners := vulnscan.FromConfig(cfg.Scanners)
	if opts.preset != "" {
		preset, err := vulnscan.GetPreset(opts.preset)
		if err != nil {
			return err
		}
		scanners, err = preset.Apply(scanners)
		if err != nil {
			return err
		}
		info("Using preset: %s (%s)", preset.Name, preset.Description)
	}

	// ── 4. Pre-flight tool check ───────────────────────────────────────────
	// A missing scanner is recorded as a tool error by the pipeline, so
	// this only warns.
	for _, s := range scanners {
		binary := strings.Fields(s.Command)[0]
		if r := tools.CheckTool(tools.ToolRequirement{Name: s.Name, Binary: binary}); !r.Found {
			warn("Scanner %s not found in PATH (%s); its record will carry a tool error", s.Name, binary)
		}
	}

	// ── 5. Open bbolt store ────────────────────────────────────────────────
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	// ── 6. Build the pipeline ──────────────────────────────────────────────
	metrics := pipeline.NewMetrics()
	deps, err := pipeline.DefaultDeps(cfg, scanners, store, metrics, logger)
	if err != nil {
		return err
	}

	p, err := pipeline.New(deps, pipeline.Options{
		ScanDir: opts.scanDir,
		Timeout: opts.timeout,
		OnStageStart: func(stage models.RunState, index, total int) {
			info("Stage %d/%d: %s...", index+1, total, stage)
		},
		OnStageDone: func(stage models.RunState, index, total int, err error, elapsed time.Duration) {
			if err != nil {
				warn("Stage %d/%d: %s degraded (%s): %v",
					index+1, total, stage, elapsed.Round(time.Millisecond), err)
			} else {
				success("Stage %d/%d: %s complete (%s)",
					index+1, total, stage, elapsed.Round(time.Millisecond))
			}
		},
	})
	if err != nil {
		return err
	}
	defer p.Close()

	// ── 7. Optional metrics endpoint ───────────────────────────────────────
	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, metrics)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	// ── 8. Run the pipeline ────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info("Starting assessment of %s", opts.target)
	result, runErr := p.Run(ctx, opts.target)
	if result == nil {
		return fmt.Errorf("pipeline failed: %w", runErr)
	}
	if runErr != nil {
		warn("Run interrupted: %v (partial results kept)", runErr)
	}

	// ── 9. Webhook notification (non-fatal) ────────────────────────────────
	if opts.webhookURL != "" {
		notifyCfg := pipeline.NotifyConfig{WebhookURL: opts.webhookURL}
		notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if notifyErr := notifyCfg.SendCompletion(notifyCtx, result); notifyErr != nil {
			warn("Webhook notification failed: %v", notifyErr)
		} else {
			success("Completion notification sent to %s", opts.webhookURL)
		}
		cancel()
	}

	// ── 10. Print final summary ────────────────────────────────────────────
	printSummary(result)

	if result.Aborted() {
		return fmt.Errorf("assessment aborted: %s", result.AbortReason)
	}
	return runErr
}

func init() {
	runCmd.Flags().StringP("target", "t", "", "Target URL, hostname or IP address (required)")
	runCmd.Flags().String("preset", "", "Scanner preset: full, web, network")
	runCmd.Flags().Duration("timeout", 2*time.Hour, "Total pipeline timeout")
	runCmd.Flags().String("notify-webhook", "", "HTTP webhook URL to POST a completion summary to")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9464)")
	runCmd.Flags().String("scope-domains", "", "Comma-separated allowed domain patterns (e.g. example.com,*.example.com)")
	runCmd.Flags().String("scope-cidrs", "", "Comma-separated allowed CIDR ranges for IP targets")
	runCmd.Flags().String("report-format", "", "Report format: "+strings.Join([]string{report.FormatPDF, report.FormatMarkdown, report.FormatBoth}, ", "))
	runCmd.Flags().String("scan-dir", "", "Root directory for run output (default from config)")

	runCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(runCmd)
}

// serveMetrics starts a metrics endpoint in the background.
func serveMetrics(addr string, m *pipeline.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnw("Metrics server stopped", "addr", addr, "error", err)
		}
	}()
	info("Serving metrics on http://%s/metrics", addr)
	return srv
}

func printSummary(result *models.AssessmentResult) {
	fmt.Println()
	if result.Aborted() {
		warn("Assessment aborted!")
	} else {
		success("Assessment finished!")
	}
	fmt.Printf("    Target:    %s\n", result.Target.Host)
	fmt.Printf("    Run ID:    %s\n", result.RunID)
	fmt.Printf("    State:     %s\n", colorState(result.State))
	fmt.Printf("    Elapsed:   %s\n", result.Elapsed().Round(time.Second))
	fmt.Printf("    Stages:    %s\n", strings.Join(result.StagesRun, " -> "))
	fmt.Printf("    Matches:   %d\n", len(result.Matches))

	if result.Exploit != nil {
		fmt.Printf("    Exploit:   %s\n", colorEntry(result.Exploit.Message))
	}
	if result.ReportPath != "" {
		fmt.Printf("    Report:    %s\n", result.ReportPath)
	} else if result.ReportError != "" {
		fmt.Printf("    Report:    not written (%s)\n", result.ReportError)
	}
	if result.Aborted() {
		fmt.Printf("    Reason:    %s\n", result.AbortReason)
	}

	if len(result.StageErrors) > 0 {
		fmt.Println()
		warn("Stage errors:")
		stages := make([]string, 0, len(result.StageErrors))
		for stage := range result.StageErrors {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		for _, stage := range stages {
			fmt.Printf("    %-12s %s\n", stage+":", result.StageErrors[stage])
		}
	}
}
