package pipeline

import (
	"fmt"

	"github.com/hakim/autopent/internal/analysis"
	"github.com/hakim/autopent/internal/config"
	"github.com/hakim/autopent/internal/correlate"
	"github.com/hakim/autopent/internal/exploit"
	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/recon"
	"github.com/hakim/autopent/internal/report"
	"github.com/hakim/autopent/internal/tools"
	"github.com/hakim/autopent/internal/vulnscan"
	"go.uber.org/zap"
)

// DefaultDeps builds the standard collaborators from cfg. Recon and scanner
// observations are fed into metrics when it is non-nil. scanners overrides
// the configured scanners when non-empty (presets).
func DefaultDeps(cfg *config.Config, scanners []vulnscan.Scanner, store StoreInterface, metrics *Metrics, logger *zap.SugaredLogger) (Deps, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(scanners) == 0 {
		scanners = vulnscan.FromConfig(cfg.Scanners)
	}

	renderer, err := report.New(cfg.Report.Format, logger)
	if err != nil {
		return Deps{}, fmt.Errorf("pipeline: %w", err)
	}

	ra := recon.New(cfg, logger.With("component", "recon"))
	ra.OnSource = func(entry models.SourceResult) { metrics.SourceObserved(entry) }

	invoker := tools.NewInvoker(cfg.Tools.MaxOutputBytes, logger.With("component", "invoker"))
	va := &vulnscan.Aggregator{Scanners: scanners, Invoker: invoker, Logger: logger.With("component", "vulnscan")}
	va.OnTool = func(out models.ScanOutput) { metrics.ToolInvoked(out) }

	deps := Deps{
		Recon:      ra,
		Scanner:    va,
		Correlator: correlate.NewDefault(cfg.Exploit.Signatures),
		Exploiter:  exploit.New(cfg.Exploit, logger.With("component", "exploit")),
		Renderer:   renderer,
		Store:      store,
		Metrics:    metrics,
		Logger:     logger,
	}
	if cfg.Analysis.Configured() {
		deps.Analyzer = analysis.NewOpenAIAnalyzer(cfg.Analysis, logger.With("component", "analysis"))
	}
	return deps, nil
}
