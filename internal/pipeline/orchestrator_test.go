package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hakim/autopent/internal/analysis"
	"github.com/hakim/autopent/internal/correlate"
	"github.com/hakim/autopent/internal/diff"
	"github.com/hakim/autopent/internal/exploit"
	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/recon"
	"github.com/hakim/autopent/internal/report"
	"github.com/hakim/autopent/internal/storage"
	"github.com/hakim/autopent/internal/tools"
	"github.com/hakim/autopent/internal/vulnscan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

type fakeResolver struct {
	addrs []string
	err   error
}

func (r *fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	return r.addrs, r.err
}

// fakeInvoker answers every command with the output registered for the first
// word of the command line.
type fakeInvoker struct {
	mu      sync.Mutex
	outputs map[string]tools.Output
	calls   []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, commandLine string, timeout time.Duration) tools.Output {
	f.mu.Lock()
	f.calls = append(f.calls, commandLine)
	f.mu.Unlock()

	name := strings.Fields(commandLine)[0]
	out, ok := f.outputs[name]
	if !ok {
		out = tools.Output{Kind: models.OutputOK, Text: ""}
	}
	out.Command = commandLine
	return out
}

type fakeAnalyzer struct {
	text   string
	err    error
	calls  int
	closed bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, in analysis.Input) (string, error) {
	f.calls++
	return f.text, f.err
}

func (f *fakeAnalyzer) Close() error {
	f.closed = true
	return nil
}

type fakeRenderer struct {
	err    error
	calls  int
	cancel context.CancelFunc
}

func (f *fakeRenderer) Render(ctx context.Context, in report.Input) (string, error) {
	f.calls++
	if f.cancel != nil {
		f.cancel()
	}
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(in.Dir, "report.pdf"), nil
}

type fakeStore struct {
	mu       sync.Mutex
	metas    map[string]models.RunMeta
	statuses map[string]models.RunStatus
	results  map[string]*models.AssessmentResult
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		metas:    make(map[string]models.RunMeta),
		statuses: make(map[string]models.RunStatus),
		results:  make(map[string]*models.AssessmentResult),
	}
}

func (s *fakeStore) SaveRun(meta *models.RunMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.metas[meta.ID] = *meta
	return nil
}

func (s *fakeStore) UpdateRunStatus(id string, status models.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func (s *fakeStore) SaveResult(result *models.AssessmentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.RunID] = result
	return nil
}

type panickingRecon struct{}

func (panickingRecon) Gather(ctx context.Context, rawTarget string) *models.ReconBundle {
	panic("resolver exploded")
}

// cancellingScanner cancels the run while the scan stage is active.
type cancellingScanner struct {
	cancel context.CancelFunc
}

func (c *cancellingScanner) Scan(ctx context.Context, rawTarget string) *vulnscan.Result {
	c.cancel()
	out := models.ScanOutput{Tool: "nikto", Kind: models.OutputCancelled, ExitCode: -1, Output: "[!] command cancelled"}
	return &vulnscan.Result{Outputs: []models.ScanOutput{out}, Combined: out.Output}
}

// ── Harness ───────────────────────────────────────────────────────────────────

type harness struct {
	deps     Deps
	resolver *fakeResolver
	invoker  *fakeInvoker
	analyzer *fakeAnalyzer
	renderer *fakeRenderer
	store    *fakeStore
	scanDir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		resolver: &fakeResolver{addrs: []string{"93.184.216.34"}},
		invoker:  &fakeInvoker{outputs: map[string]tools.Output{}},
		analyzer: &fakeAnalyzer{text: "Patch the FTP service."},
		renderer: &fakeRenderer{},
		store:    newFakeStore(),
		scanDir:  t.TempDir(),
	}

	ra := &recon.Aggregator{Resolver: h.resolver, SourceTimeout: time.Second}
	va := &vulnscan.Aggregator{
		Scanners: []vulnscan.Scanner{
			{Name: "nikto", Command: "nikto -h {url}", Timeout: time.Second},
			{Name: "sqlmap", Command: "sqlmap -u {url} --batch", Timeout: time.Second},
			{Name: "nmap", Command: "nmap --script vuln {host}", Timeout: time.Second},
		},
		Invoker: h.invoker,
	}

	h.deps = Deps{
		Recon:      ra,
		Scanner:    va,
		Correlator: correlate.New(correlate.DefaultSignatures()),
		Exploiter:  &exploit.Coordinator{},
		Analyzer:   h.analyzer,
		Renderer:   h.renderer,
		Store:      h.store,
		Metrics:    NewMetrics(),
	}
	return h
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(h.deps, Options{ScanDir: h.scanDir})
	require.NoError(t, err)
	return p
}

var allStages = []string{"recon", "scan", "correlate", "exploit", "analyze", "report"}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestRunLocalhost(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(t)

	result, err := p.Run(context.Background(), "localhost")
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, result.State)
	assert.Equal(t, allStages, result.StagesRun)
	assert.Empty(t, result.StageErrors)

	require.NotNil(t, result.Recon)
	assert.True(t, strings.HasPrefix(result.Recon.IPAddress.Value, "[+] IP Address: 127.0.0.1"))
	assert.True(t, strings.HasPrefix(result.Recon.WHOIS.Value, models.SkipMarker))
	assert.True(t, strings.HasPrefix(result.Recon.DNSRecords.Value, models.SkipMarker))
	assert.Empty(t, result.Recon.Intel)

	assert.Len(t, result.Scans, 3)
	assert.Empty(t, result.Matches)
	require.NotNil(t, result.Exploit)
	assert.False(t, result.Exploit.Attempted)
	assert.Equal(t, "Patch the FTP service.", result.Analysis)
	assert.NotEmpty(t, result.ReportPath)

	// Stored run record and result.
	meta := h.store.metas[result.RunID]
	assert.Equal(t, models.StateDone, meta.State)
	assert.Equal(t, allStages, meta.StagesRun)
	assert.Equal(t, models.StatusComplete, h.store.statuses[result.RunID])
	assert.Same(t, result, h.store.results[result.RunID])

	// Raw stage output is written for the diff command.
	for _, name := range []string{diff.FileRecon, diff.FileScans, diff.FileMatches, diff.FileExploit} {
		assert.FileExists(t, filepath.Join(storage.RawDir(meta.RunDir), name))
	}

	m := p.Metrics()
	assert.Equal(t, 1.0, counterValue(t, m, "autopent_runs_total", "state", "done"))
	assert.Equal(t, 6, seriesCount(t, m, "autopent_stage_duration_seconds"))
}

func TestRunCorrelatesVsftpd(t *testing.T) {
	h := newHarness(t)
	h.invoker.outputs["nmap"] = tools.Output{
		Kind: models.OutputOK,
		Text: "21/tcp open  ftp     vsftpd 2.3.4\n| ftp-vsftpd-backdoor: VULNERABLE",
	}
	p := h.pipeline(t)

	result, err := p.Run(context.Background(), "http://ftp.example.com")
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, result.State)
	assert.Equal(t, []models.VulnerabilityMatch{
		{Signature: "vsftpd 2.3.4", Exploit: "exploit/unix/ftp/vsftpd_234_backdoor"},
	}, result.Matches)

	require.NotNil(t, result.Exploit)
	assert.True(t, result.Exploit.Attempted)
	assert.False(t, result.Exploit.Success)
	assert.Equal(t, "exploit/unix/ftp/vsftpd_234_backdoor", result.Exploit.Module)
	assert.Equal(t, exploit.MessageNotConfigured, result.Exploit.Message)

	assert.Equal(t, 1, h.store.metas[result.RunID].MatchCount)
	assert.Contains(t, h.invoker.calls, "nmap --script vuln ftp.example.com")
}

func TestRunAbortsOnUnresolvedTarget(t *testing.T) {
	h := newHarness(t)
	h.resolver.err = errors.New("no such host")
	h.resolver.addrs = nil
	h.invoker.outputs["nmap"] = tools.Output{Kind: models.OutputOK, Text: "vsftpd 2.3.4"}
	p := h.pipeline(t)

	result, err := p.Run(context.Background(), "nonexistent.example.com")
	require.NoError(t, err)

	assert.Equal(t, models.StateAborted, result.State)
	assert.True(t, result.Aborted())
	assert.Equal(t, models.FailureFatalTargetUnresolved, result.AbortKind)
	assert.Contains(t, result.AbortReason, models.ResolutionFailureMarker)

	require.NotNil(t, result.Exploit)
	assert.False(t, result.Exploit.Success)
	assert.Contains(t, result.Exploit.Message, models.ResolutionFailureMarker)

	assert.Equal(t, []string{"recon", "scan", "correlate", "exploit"}, result.StagesRun)
	assert.Empty(t, result.ReportPath)
	assert.Equal(t, 0, h.analyzer.calls)
	assert.Equal(t, 0, h.renderer.calls)
	assert.Equal(t, models.StatusAborted, h.store.statuses[result.RunID])
	assert.Equal(t, 1.0, counterValue(t, p.Metrics(), "autopent_runs_total", "state", "aborted"))
}

func TestRunAllScannersTimeOut(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"nikto", "sqlmap", "nmap"} {
		h.invoker.outputs[name] = tools.Output{
			Kind:     models.OutputTimeout,
			ExitCode: -1,
			Text:     fmt.Sprintf("%s %s after 1s", models.FailureMarker, models.TimeoutMarker),
		}
	}
	p := h.pipeline(t)

	result, err := p.Run(context.Background(), "example.com")
	require.NoError(t, err)

	require.Len(t, result.Scans, 3)
	for _, s := range result.Scans {
		assert.Equal(t, models.OutputTimeout, s.Kind)
		assert.Contains(t, s.Output, models.TimeoutMarker)
	}
	assert.Empty(t, result.Matches)
	assert.NotNil(t, result.Matches)
	assert.False(t, result.Exploit.Attempted)
	assert.Equal(t, models.StateDone, result.State)
}

func TestRunDegradedAnalysis(t *testing.T) {
	h := newHarness(t)
	h.analyzer.err = errors.New("rate limited")
	p := h.pipeline(t)

	result, err := p.Run(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, result.State)
	assert.Equal(t, "[analysis unavailable: rate limited]", result.Analysis)
	assert.Equal(t, "rate limited", result.StageErrors["analyze"])
	assert.NotEmpty(t, result.ReportPath)
	assert.Equal(t, models.StatusPartial, h.store.statuses[result.RunID])
}

func TestRunWithoutAnalyzer(t *testing.T) {
	h := newHarness(t)
	h.deps.Analyzer = nil
	p := h.pipeline(t)

	result, err := p.Run(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, "[analysis unavailable: analysis client not configured]", result.Analysis)
	assert.Empty(t, result.StageErrors)
	assert.NoError(t, p.Close())
}

func TestRunDegradedReport(t *testing.T) {
	h := newHarness(t)
	h.renderer.err = errors.New("disk full")
	p := h.pipeline(t)

	result, err := p.Run(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, result.State)
	assert.Empty(t, result.ReportPath)
	assert.Equal(t, "disk full", result.ReportError)
	assert.Equal(t, "disk full", result.StageErrors["report"])
}

func TestRunRecoversStagePanic(t *testing.T) {
	h := newHarness(t)
	h.deps.Recon = panickingRecon{}
	p := h.pipeline(t)

	result, err := p.Run(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Contains(t, result.StageErrors["recon"], "panicked")
	assert.Nil(t, result.Recon)
	assert.Len(t, result.Scans, 3)

	// Without reconnaissance data the address is unknown.
	assert.Equal(t, models.StateAborted, result.State)
}

func TestRunCancellationKeepsPartialResult(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.deps.Scanner = &cancellingScanner{cancel: cancel}
	p := h.pipeline(t)

	result, err := p.Run(ctx, "localhost")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, result)
	assert.Equal(t, models.StateScan, result.State)
	assert.Equal(t, []string{"recon", "scan"}, result.StagesRun)
	assert.NotNil(t, result.Recon)
	assert.Len(t, result.Scans, 1)
	assert.Nil(t, result.Exploit)
	assert.Equal(t, models.StatusFailed, h.store.statuses[result.RunID])
	assert.Equal(t, 1.0, counterValue(t, p.Metrics(), "autopent_runs_total", "state", "cancelled"))
}

func TestRunCancelledDuringLastStage(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.renderer.cancel = cancel
	p := h.pipeline(t)

	result, err := p.Run(ctx, "localhost")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, result)
	assert.Equal(t, models.StateReport, result.State)
	assert.Equal(t, allStages, result.StagesRun)
	assert.NotEmpty(t, result.ReportPath)
	assert.Equal(t, models.StatusFailed, h.store.statuses[result.RunID])
	assert.Equal(t, 1.0, counterValue(t, p.Metrics(), "autopent_runs_total", "state", "cancelled"))
}

func TestRunStageCallbacks(t *testing.T) {
	h := newHarness(t)
	var started, done []string
	p, err := New(h.deps, Options{
		RunDir: filepath.Join(t.TempDir(), "run"),
		OnStageStart: func(stage models.RunState, index, total int) {
			assert.Equal(t, 6, total)
			started = append(started, string(stage))
		},
		OnStageDone: func(stage models.RunState, index, total int, err error, elapsed time.Duration) {
			done = append(done, string(stage))
		},
	})
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "localhost")
	require.NoError(t, err)
	assert.Equal(t, allStages, started)
	assert.Equal(t, allStages, done)
	assert.DirExists(t, filepath.Join(filepath.Dir(result.ReportPath)))
}

func TestRunInvalidInput(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(t)

	_, err := p.Run(context.Background(), "   ")
	assert.Error(t, err)

	h.store.saveErr = errors.New("database locked")
	_, err = p.Run(context.Background(), "example.com")
	assert.ErrorContains(t, err, "database locked")
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Options{})
	require.Error(t, err)
	for _, want := range []string{"recon", "scan aggregator", "correlation", "exploitation", "scan directory"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestCloseReleasesAnalyzer(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(t)
	require.NoError(t, p.Close())
	assert.True(t, h.analyzer.closed)
}

func TestRunWithRealStore(t *testing.T) {
	h := newHarness(t)
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "autopent.db"))
	require.NoError(t, err)
	defer store.Close()
	h.deps.Store = store
	p := h.pipeline(t)

	result, err := p.Run(context.Background(), "localhost")
	require.NoError(t, err)

	meta, err := store.GetRun(result.RunID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, models.StatusComplete, meta.Status)
	assert.NotNil(t, meta.CompletedAt)
	assert.Equal(t, "localhost", meta.Target)

	stored, err := store.GetResult(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, stored.State)

	_, err = os.Stat(meta.RunDir)
	assert.NoError(t, err)
}
