// Package pipeline drives one assessment run through its stages:
// Init → Recon → Scan → Correlate → Exploit → Analyze → Report → Done.
// Aborted is reachable only from Exploit, when the exploitation outcome
// reports that the target could not be resolved.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hakim/autopent/internal/analysis"
	"github.com/hakim/autopent/internal/diff"
	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/report"
	"github.com/hakim/autopent/internal/storage"
	"github.com/hakim/autopent/internal/target"
	"github.com/hakim/autopent/internal/vulnscan"
	"go.uber.org/zap"
)

// ReconGatherer is the Reconnaissance Aggregator contract.
type ReconGatherer interface {
	Gather(ctx context.Context, rawTarget string) *models.ReconBundle
}

// VulnScanner is the Vulnerability Scan Aggregator contract.
type VulnScanner interface {
	Scan(ctx context.Context, rawTarget string) *vulnscan.Result
}

// Correlator maps combined scanner output to exploit suggestions.
type Correlator interface {
	Correlate(text string) []models.VulnerabilityMatch
}

// Exploiter is the Exploitation Coordinator contract.
type Exploiter interface {
	Attempt(ctx context.Context, bundle *models.ReconBundle, matches []models.VulnerabilityMatch) models.ExploitOutcome
}

// StoreInterface is the minimal bbolt contract required by the orchestrator.
// Using an interface keeps the package testable without a real database.
type StoreInterface interface {
	SaveRun(meta *models.RunMeta) error
	UpdateRunStatus(id string, status models.RunStatus) error
	SaveResult(result *models.AssessmentResult) error
}

// Deps are the collaborators of a Pipeline. Recon, Scanner, Correlator and
// Exploiter are required; the rest are optional.
type Deps struct {
	Recon      ReconGatherer
	Scanner    VulnScanner
	Correlator Correlator
	Exploiter  Exploiter
	Analyzer   analysis.Analyzer
	Renderer   report.Renderer
	Store      StoreInterface
	Metrics    *Metrics
	Logger     *zap.SugaredLogger
}

// Options controls how Run behaves.
type Options struct {
	// ScanDir is the root under which a fresh run directory is created.
	ScanDir string

	// RunDir, when set, is used as the run directory instead of creating one
	// under ScanDir.
	RunDir string

	// Timeout caps the total wall-clock time of a run. Zero means no timeout
	// beyond the caller's context.
	Timeout time.Duration

	// OnStageStart is called immediately before each stage executes.
	// index is 0-based; total is the number of stages.
	OnStageStart func(stage models.RunState, index, total int)

	// OnStageDone is called immediately after each stage returns (or panics).
	// err is nil on success; elapsed is the wall time for that stage alone.
	OnStageDone func(stage models.RunState, index, total int, err error, elapsed time.Duration)
}

// Pipeline runs assessments. A Pipeline may be reused for several runs; each
// run owns its own result. Close releases the analysis client.
type Pipeline struct {
	deps Deps
	opts Options
}

// New validates deps and creates a Pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	var errs []error
	if deps.Recon == nil {
		errs = append(errs, errors.New("recon aggregator is required"))
	}
	if deps.Scanner == nil {
		errs = append(errs, errors.New("scan aggregator is required"))
	}
	if deps.Correlator == nil {
		errs = append(errs, errors.New("correlation engine is required"))
	}
	if deps.Exploiter == nil {
		errs = append(errs, errors.New("exploitation coordinator is required"))
	}
	if opts.ScanDir == "" && opts.RunDir == "" {
		errs = append(errs, errors.New("scan directory is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("pipeline: %w", errors.Join(errs...))
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	return &Pipeline{deps: deps, opts: opts}, nil
}

// Close shuts the analysis client down.
func (p *Pipeline) Close() error {
	if p.deps.Analyzer == nil {
		return nil
	}
	return p.deps.Analyzer.Close()
}

// Metrics returns the pipeline's collectors, nil when metrics are disabled.
func (p *Pipeline) Metrics() *Metrics {
	return p.deps.Metrics
}

// run is the mutable state of one in-flight assessment.
type run struct {
	raw      string
	dir      string
	result   *models.AssessmentResult
	combined string
}

type stage struct {
	state models.RunState
	exec  func(ctx context.Context, r *run) error
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{models.StateRecon, p.recon},
		{models.StateScan, p.scan},
		{models.StateCorrelate, p.correlate},
		{models.StateExploit, p.exploit},
		{models.StateAnalyze, p.analyze},
		{models.StateReport, p.report},
	}
}

// Run executes one assessment of rawTarget.
//
// Stage failures other than an unresolvable target are recorded in
// StageErrors and the run continues; the returned error is non-nil only for
// invalid input, a failure to create the run record, or cancellation. On
// cancellation the partial result is returned together with the error.
func (p *Pipeline) Run(ctx context.Context, rawTarget string) (*models.AssessmentResult, error) {
	logger := p.deps.Logger

	// ── 1. Validate input ─────────────────────────────────────────────────────
	t := target.Parse(rawTarget)
	if t.Host == "" {
		return nil, fmt.Errorf("pipeline: target is required")
	}

	// ── 2. Apply optional timeout ─────────────────────────────────────────────
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	// ── 3. Create the run directory and record ────────────────────────────────
	meta := models.NewRunMeta(t.Host)
	dir, err := p.runDir(t.Host, meta.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("pipeline: creating run directory: %w", err)
	}
	meta.RunDir = dir
	meta.Status = models.StatusRunning

	if p.deps.Store != nil {
		if err := p.deps.Store.SaveRun(meta); err != nil {
			return nil, fmt.Errorf("pipeline: saving initial run record: %w", err)
		}
	}

	r := &run{
		raw: rawTarget,
		dir: dir,
		result: &models.AssessmentResult{
			RunID:       meta.ID,
			Target:      t,
			State:       models.StateInit,
			StartedAt:   meta.StartedAt,
			Matches:     []models.VulnerabilityMatch{},
			StageErrors: make(map[string]string),
		},
	}
	result := r.result
	logger.Infow("Starting assessment", "run_id", meta.ID, "target", t.Host, "run_dir", dir)

	// ── 4. Execute stages ─────────────────────────────────────────────────────
	stages := p.stages()
	total := len(stages)
	var runErr error

	for i, s := range stages {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("pipeline cancelled before %s: %w", s.state, err)
			break
		}

		result.State = s.state
		if p.opts.OnStageStart != nil {
			p.opts.OnStageStart(s.state, i, total)
		}

		stageStart := time.Now()
		stageErr := runStageIsolated(ctx, s, r)
		elapsed := time.Since(stageStart)

		result.StagesRun = append(result.StagesRun, string(s.state))
		p.deps.Metrics.ObserveStage(s.state, elapsed)

		if stageErr != nil {
			result.StageErrors[string(s.state)] = stageErr.Error()
			logger.Warnw("Stage degraded", "stage", s.state, "duration", elapsed, "error", stageErr)
		} else {
			logger.Infow("Stage complete", "stage", s.state, "duration", elapsed)
		}

		if p.opts.OnStageDone != nil {
			p.opts.OnStageDone(s.state, i, total, stageErr, elapsed)
		}

		if result.Aborted() {
			logger.Errorw("Assessment aborted", "stage", s.state, "reason", result.AbortReason)
			break
		}

		// Persist progress after each stage so an interrupted run leaves
		// a readable record.
		meta.StagesRun = result.StagesRun
		meta.State = result.State
		p.saveMeta(meta)
	}

	// ── 5. Determine final state and persist ──────────────────────────────────
	if runErr == nil && !result.Aborted() {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("pipeline cancelled during %s: %w", result.State, err)
		} else {
			result.State = models.StateDone
		}
	}
	result.CompletedAt = time.Now()
	if len(result.StageErrors) == 0 {
		result.StageErrors = nil
	}

	p.finish(meta, result, runErr)
	logger.Infow("Assessment finished",
		"run_id", meta.ID,
		"state", result.State,
		"duration", result.Elapsed().Round(time.Millisecond),
		"matches", len(result.Matches),
	)

	return result, runErr
}

// ── Stages ────────────────────────────────────────────────────────────────────

func (p *Pipeline) recon(ctx context.Context, r *run) error {
	bundle := p.deps.Recon.Gather(ctx, r.raw)
	if bundle == nil {
		return errors.New("recon aggregator returned no bundle")
	}
	r.result.Recon = bundle
	p.writeRaw(r, diff.FileRecon, bundle)
	return nil
}

func (p *Pipeline) scan(ctx context.Context, r *run) error {
	res := p.deps.Scanner.Scan(ctx, r.raw)
	if res == nil {
		return errors.New("scan aggregator returned no result")
	}
	r.result.Scans = res.Outputs
	r.combined = res.Combined
	p.writeRaw(r, diff.FileScans, res.Outputs)
	return nil
}

func (p *Pipeline) correlate(ctx context.Context, r *run) error {
	matches := p.deps.Correlator.Correlate(r.combined)
	if matches == nil {
		matches = []models.VulnerabilityMatch{}
	}
	r.result.Matches = matches
	p.writeRaw(r, diff.FileMatches, matches)
	return nil
}

func (p *Pipeline) exploit(ctx context.Context, r *run) error {
	outcome := p.deps.Exploiter.Attempt(ctx, r.result.Recon, r.result.Matches)
	r.result.Exploit = &outcome
	p.writeRaw(r, diff.FileExploit, outcome)

	if outcome.Unresolved() {
		r.result.State = models.StateAborted
		r.result.AbortReason = outcome.Message
		r.result.AbortKind = models.FailureFatalTargetUnresolved
		return fmt.Errorf("%w: %s", models.ErrTargetUnresolved, outcome.Message)
	}
	return nil
}

func (p *Pipeline) analyze(ctx context.Context, r *run) error {
	if p.deps.Analyzer == nil {
		r.result.Analysis = unavailable(analysis.ErrDisabled)
		return nil
	}

	text, err := p.deps.Analyzer.Analyze(ctx, analysis.Input{
		Target:  r.result.Target.Host,
		Scans:   r.result.Scans,
		Matches: r.result.Matches,
		Exploit: r.result.Exploit,
	})
	if err != nil {
		r.result.Analysis = unavailable(err)
		if errors.Is(err, analysis.ErrDisabled) {
			return nil
		}
		return err
	}
	r.result.Analysis = text
	return nil
}

func (p *Pipeline) report(ctx context.Context, r *run) error {
	if p.deps.Renderer == nil {
		r.result.ReportError = "no report renderer configured"
		return nil
	}

	path, err := p.deps.Renderer.Render(ctx, report.Input{
		Result: r.result,
		Dir:    storage.ReportsDir(r.dir),
	})
	if err != nil {
		r.result.ReportError = err.Error()
		return err
	}
	r.result.ReportPath = path
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// runStageIsolated runs a single stage inside a deferred recover so that a
// panic in stage code is caught and returned as an error rather than crashing
// the orchestrator process.
func runStageIsolated(ctx context.Context, s stage, r *run) (retErr error) {
	defer func() {
		if rec := recover(); rec != nil {
			retErr = fmt.Errorf("stage %q panicked: %v", s.state, rec)
		}
	}()
	return s.exec(ctx, r)
}

func unavailable(err error) string {
	return fmt.Sprintf("[analysis unavailable: %v]", err)
}

func (p *Pipeline) runDir(host string, startedAt time.Time) (string, error) {
	if p.opts.RunDir == "" {
		return storage.CreateRunDir(p.opts.ScanDir, host, startedAt)
	}
	for _, dir := range []string{p.opts.RunDir, storage.ReportsDir(p.opts.RunDir), storage.RawDir(p.opts.RunDir)} {
		if err := storage.EnsureDir(dir); err != nil {
			return "", err
		}
	}
	return p.opts.RunDir, nil
}

// writeRaw stores a stage's output under raw/. Failures are logged only.
func (p *Pipeline) writeRaw(r *run, name string, v interface{}) {
	if err := storage.WriteRawJSON(r.dir, name, v); err != nil {
		p.deps.Logger.Warnw("Could not write raw stage output", "file", name, "error", err)
	}
}

func (p *Pipeline) saveMeta(meta *models.RunMeta) {
	if p.deps.Store == nil {
		return
	}
	if err := p.deps.Store.SaveRun(meta); err != nil {
		// Non-fatal: the stage completed, just warn.
		p.deps.Logger.Warnw("Could not persist run progress", "run_id", meta.ID, "error", err)
	}
}

// finish records the terminal run metadata, the full result and the run
// metrics.
func (p *Pipeline) finish(meta *models.RunMeta, result *models.AssessmentResult, runErr error) {
	status := resolveFinalStatus(result, runErr)

	meta.State = result.State
	meta.StagesRun = result.StagesRun
	meta.ReportPath = result.ReportPath
	meta.MatchCount = len(result.Matches)

	outcome := string(result.State)
	if runErr != nil {
		outcome = "cancelled"
	}
	p.deps.Metrics.RunFinished(outcome)

	if p.deps.Store == nil {
		return
	}
	p.saveMeta(meta)
	if err := p.deps.Store.UpdateRunStatus(meta.ID, status); err != nil {
		p.deps.Logger.Warnw("Could not update final run status", "run_id", meta.ID, "error", err)
	}
	if err := p.deps.Store.SaveResult(result); err != nil {
		p.deps.Logger.Warnw("Could not store assessment result", "run_id", meta.ID, "error", err)
	}
}

// resolveFinalStatus maps the terminal state of a run to its stored status.
func resolveFinalStatus(result *models.AssessmentResult, runErr error) models.RunStatus {
	switch {
	case runErr != nil:
		return models.StatusFailed
	case result.Aborted():
		return models.StatusAborted
	case len(result.StageErrors) > 0:
		return models.StatusPartial
	}
	return models.StatusComplete
}
