// Package report renders the final assessment result as PDF and Markdown
// documents.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hakim/autopent/internal/models"
	"go.uber.org/zap"
)

// Report formats accepted by New.
const (
	FormatPDF      = "pdf"
	FormatMarkdown = "markdown"
	FormatBoth     = "both"
)

// Input is what a Renderer needs to produce one report.
type Input struct {
	Result *models.AssessmentResult
	Dir    string    // output directory, created when missing
	Now    time.Time // timestamp used in the file name; zero means time.Now
}

// Renderer writes a report and returns its path.
type Renderer interface {
	Render(ctx context.Context, in Input) (string, error)
}

// New returns the renderer for format.
func New(format string, logger *zap.SugaredLogger) (Renderer, error) {
	switch format {
	case "", FormatPDF:
		return &PDFRenderer{}, nil
	case FormatMarkdown:
		return &MarkdownRenderer{}, nil
	case FormatBoth:
		return &Multi{Renderers: []Renderer{&PDFRenderer{}, &MarkdownRenderer{}}, Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown report format %q (want pdf, markdown or both)", format)
}

// Multi writes every report and returns the path of the first one that
// succeeded.
type Multi struct {
	Renderers []Renderer
	Logger    *zap.SugaredLogger
}

func (m *Multi) Render(ctx context.Context, in Input) (string, error) {
	var first string
	var errs []error
	for _, r := range m.Renderers {
		path, err := r.Render(ctx, in)
		if err != nil {
			errs = append(errs, err)
			if m.Logger != nil {
				m.Logger.Warnw("Report renderer failed", "error", err)
			}
			continue
		}
		if first == "" {
			first = path
		}
	}
	if first == "" {
		if len(errs) == 0 {
			return "", errors.New("no report renderers configured")
		}
		return "", errors.Join(errs...)
	}
	return first, nil
}

// FileName returns security_report_<host>_<YYYYmmdd_HHMMSS>.<ext>.
func FileName(host string, now time.Time, ext string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, host)
	if safe == "" {
		safe = "target"
	}
	return fmt.Sprintf("security_report_%s_%s.%s", safe, now.Format("20060102_150405"), ext)
}

func outputPath(in Input, ext string) (string, error) {
	if in.Result == nil {
		return "", errors.New("no assessment result to report")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	dir := in.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory %s: %w", dir, err)
	}
	return filepath.Join(dir, FileName(in.Result.Target.Host, now, ext)), nil
}

// section is one titled block of report content shared by all formats.
type section struct {
	Title string
	Items []item
}

// item is either a key/value line, a plain paragraph or a preformatted block.
type item struct {
	Heading string
	Key     string
	Text    string
	Pre     bool
}

const noneFound = "None found."

func buildSections(r *models.AssessmentResult) []section {
	return []section{
		targetSection(r),
		reconSection(r),
		scanSection(r),
		matchSection(r),
		exploitSection(r),
		analysisSection(r),
	}
}

func targetSection(r *models.AssessmentResult) section {
	s := section{Title: "Target"}
	s.Items = append(s.Items,
		item{Key: "Target", Text: r.Target.Raw},
		item{Key: "Host", Text: r.Target.Host},
		item{Key: "Run ID", Text: r.RunID},
		item{Key: "Started", Text: r.StartedAt.Format(time.RFC3339)},
	)
	if !r.CompletedAt.IsZero() {
		s.Items = append(s.Items, item{Key: "Duration", Text: r.Elapsed().Round(time.Second).String()})
	}
	if r.Recon != nil && r.Recon.Address != "" {
		s.Items = append(s.Items, item{Key: "Address", Text: r.Recon.Address})
	}
	return s
}

func reconSection(r *models.AssessmentResult) section {
	s := section{Title: "Reconnaissance Results"}
	if r.Recon == nil {
		s.Items = append(s.Items, item{Text: "Reconnaissance did not run."})
		return s
	}
	for _, e := range r.Recon.Entries() {
		s.Items = append(s.Items, item{Text: e.Value})
	}
	return s
}

func scanSection(r *models.AssessmentResult) section {
	s := section{Title: "Vulnerability Scan Results"}
	if len(r.Scans) == 0 {
		s.Items = append(s.Items, item{Text: "No scanners ran."})
		return s
	}
	for _, o := range r.Scans {
		heading := fmt.Sprintf("%s (%s, exit %d, %s)", o.Tool, o.Kind, o.ExitCode, o.Duration.Round(time.Millisecond))
		text := o.Output
		if strings.TrimSpace(text) == "" {
			text = "(no output)"
		}
		s.Items = append(s.Items, item{Heading: heading, Text: text, Pre: true})
	}
	return s
}

func matchSection(r *models.AssessmentResult) section {
	s := section{Title: "Correlated Vulnerabilities"}
	if len(r.Matches) == 0 {
		s.Items = append(s.Items, item{Text: noneFound})
		return s
	}
	for _, m := range r.Matches {
		s.Items = append(s.Items, item{Key: m.Signature, Text: m.Exploit})
	}
	return s
}

func exploitSection(r *models.AssessmentResult) section {
	s := section{Title: "Exploitation Results"}
	if r.Exploit == nil {
		s.Items = append(s.Items, item{Text: "Exploitation did not run."})
		return s
	}
	e := r.Exploit
	s.Items = append(s.Items,
		item{Key: "Attempted", Text: yesNo(e.Attempted)},
		item{Key: "Success", Text: yesNo(e.Success)},
	)
	if e.Module != "" {
		s.Items = append(s.Items, item{Key: "Module", Text: e.Module})
	}
	s.Items = append(s.Items, item{Key: "Message", Text: e.Message})
	return s
}

func analysisSection(r *models.AssessmentResult) section {
	s := section{Title: "AI-Powered Recommendations"}
	text := r.Analysis
	if strings.TrimSpace(text) == "" {
		text = "No analysis available."
	}
	s.Items = append(s.Items, item{Text: text})
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
