package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hakim/autopent/internal/diff"
	"github.com/hakim/autopent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportTime = time.Date(2026, 5, 1, 13, 45, 9, 0, time.UTC)

func sampleResult() *models.AssessmentResult {
	started := reportTime.Add(-3 * time.Minute)
	return &models.AssessmentResult{
		RunID:       "run-42",
		Target:      models.Target{Raw: "http://ftp.example.com", Host: "ftp.example.com", Kind: models.TargetHostname},
		State:       models.StateDone,
		StartedAt:   started,
		CompletedAt: reportTime,
		Recon: &models.ReconBundle{
			Address:    "10.0.0.5",
			IPAddress:  models.SourceResult{Source: models.SourceIPAddress, Status: models.SourceOK, Value: "[+] IP Address: 10.0.0.5"},
			WHOIS:      models.SourceResult{Source: models.SourceWHOIS, Status: models.SourceFailed, Value: "[!] WHOIS failed: timeout"},
			DNSRecords: models.SourceResult{Source: models.SourceDNSRecords, Status: models.SourceOK, Value: "[+] DNS Records: A: 10.0.0.5"},
			Headers:    models.SourceResult{Source: models.SourceHeaders, Status: models.SourceOK, Value: "[+] HTTP Headers: HTTP 200 OK"},
		},
		Scans: []models.ScanOutput{
			{Tool: "nmap", Kind: models.OutputOK, Output: "21/tcp open ftp vsftpd 2.3.4\n"},
			{Tool: "nikto", Kind: models.OutputTimeout, ExitCode: -1, Output: "[!] command timed out after 5m0s"},
		},
		Matches:  []models.VulnerabilityMatch{{Signature: "vsftpd 2.3.4", Exploit: "exploit/unix/ftp/vsftpd_234_backdoor"}},
		Exploit:  &models.ExploitOutcome{Attempted: true, Module: "exploit/unix/ftp/vsftpd_234_backdoor", Message: "exploitation framework not configured"},
		Analysis: "Upgrade vsftpd to a release without the backdoor (café)",
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "security_report_example.com_20260501_134509.pdf", FileName("example.com", reportTime, "pdf"))
	assert.Equal(t, "security_report___1_20260501_134509.md", FileName("::1", reportTime, "md"))
	assert.Equal(t, "security_report_target_20260501_134509.md", FileName("", reportTime, "md"))
}

func TestMarkdownRenderer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	path, err := (&MarkdownRenderer{}).Render(context.Background(), Input{Result: sampleResult(), Dir: dir, Now: reportTime})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "security_report_ftp.example.com_20260501_134509.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)

	titles := []string{"## Target", "## Reconnaissance Results", "## Vulnerability Scan Results",
		"## Correlated Vulnerabilities", "## Exploitation Results", "## AI-Powered Recommendations"}
	last := -1
	for _, title := range titles {
		idx := strings.Index(body, title)
		require.GreaterOrEqual(t, idx, 0, "missing %s", title)
		assert.Greater(t, idx, last, "%s out of order", title)
		last = idx
	}
	assert.Contains(t, body, "[!] WHOIS failed: timeout")
	assert.Contains(t, body, "- **vsftpd 2.3.4:** exploit/unix/ftp/vsftpd_234_backdoor")
	assert.Contains(t, body, "exploitation framework not configured")
	assert.Contains(t, body, "```\n21/tcp open ftp vsftpd 2.3.4\n```")
}

func TestMarkdownEmptySections(t *testing.T) {
	r := &models.AssessmentResult{Target: models.Target{Host: "example.com"}}
	body := Markdown(Input{Result: r})
	assert.Contains(t, body, "Reconnaissance did not run.")
	assert.Contains(t, body, noneFound)
	assert.Contains(t, body, "No analysis available.")
}

func TestPDFRenderer(t *testing.T) {
	dir := t.TempDir()

	path, err := (&PDFRenderer{}).Render(context.Background(), Input{Result: sampleResult(), Dir: dir, Now: reportTime})
	require.NoError(t, err)
	assert.Equal(t, "security_report_ftp.example.com_20260501_134509.pdf", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
}

func TestRendererWithoutResult(t *testing.T) {
	_, err := (&PDFRenderer{}).Render(context.Background(), Input{Dir: t.TempDir()})
	assert.Error(t, err)
}

type failingRenderer struct{}

func (failingRenderer) Render(ctx context.Context, in Input) (string, error) {
	return "", os.ErrPermission
}

func TestMulti(t *testing.T) {
	dir := t.TempDir()
	m := &Multi{Renderers: []Renderer{failingRenderer{}, &MarkdownRenderer{}, &PDFRenderer{}}}

	path, err := m.Render(context.Background(), Input{Result: sampleResult(), Dir: dir, Now: reportTime})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".md"))
	assert.FileExists(t, filepath.Join(dir, "security_report_ftp.example.com_20260501_134509.pdf"))

	_, err = (&Multi{Renderers: []Renderer{failingRenderer{}}}).Render(context.Background(), Input{Result: sampleResult(), Dir: dir})
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestNew(t *testing.T) {
	for format, want := range map[string]interface{}{
		"":         &PDFRenderer{},
		"pdf":      &PDFRenderer{},
		"markdown": &MarkdownRenderer{},
	} {
		r, err := New(format, nil)
		require.NoError(t, err)
		assert.IsType(t, want, r)
	}

	r, err := New("both", nil)
	require.NoError(t, err)
	assert.Len(t, r.(*Multi).Renderers, 2)

	_, err = New("html", nil)
	assert.Error(t, err)
}

func TestDiffMarkdown(t *testing.T) {
	dr := &diff.DiffResult{
		Matches: diff.MatchDiff{
			New:      []models.VulnerabilityMatch{{Signature: "SMBv1", Exploit: "exploit/windows/smb/ms17_010_eternalblue"}},
			Resolved: []models.VulnerabilityMatch{},
		},
		ScanChanges:       []diff.StatusChange{{Name: "nmap", Previous: "ok", Current: "timeout"}},
		CurrentMatchCount: 1,
	}

	body := DiffMarkdown(dr, "old-run", "new-run")
	assert.Contains(t, body, "## New Vulnerabilities (+1)")
	assert.Contains(t, body, "| SMBv1 | exploit/windows/smb/ms17_010_eternalblue |")
	assert.Contains(t, body, "| nmap | ok | timeout |")
	assert.NotContains(t, body, "Resolved Vulnerabilities")

	empty := DiffMarkdown(&diff.DiffResult{}, "a", "b")
	assert.Contains(t, empty, "No changes detected.")

	path := filepath.Join(t.TempDir(), "diff.md")
	require.NoError(t, WriteDiffReport(dr, "old-run", "new-run", path))
	assert.FileExists(t, path)
}
