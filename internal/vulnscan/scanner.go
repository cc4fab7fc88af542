// Package vulnscan runs the configured vulnerability scanners against a
// target one after another and collects their raw output.
package vulnscan

import (
	"context"
	"strings"
	"time"

	"github.com/hakim/autopent/internal/config"
	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/target"
	"github.com/hakim/autopent/internal/tools"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a scanner without a configured timeout.
const DefaultTimeout = 5 * time.Minute

// Invoker runs one command line. *tools.Invoker satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, commandLine string, timeout time.Duration) tools.Output
}

// Scanner is one external scanning tool. Command may reference {url} and {host}.
type Scanner struct {
	Name    string
	Command string
	Timeout time.Duration
}

// Result holds every scanner's output in invocation order and their
// newline-joined concatenation.
type Result struct {
	Outputs  []models.ScanOutput `json:"outputs"`
	Combined string              `json:"combined"`
}

// Aggregator runs its scanners sequentially through the Invoker.
type Aggregator struct {
	Scanners []Scanner
	Invoker  Invoker

	// OnTool, when set, observes each finished scanner.
	OnTool func(out models.ScanOutput)

	Logger *zap.SugaredLogger
}

// New creates an Aggregator for the configured scanners
func New(scanners []config.ScannerConfig, invoker Invoker, logger *zap.SugaredLogger) *Aggregator {
	return &Aggregator{
		Scanners: FromConfig(scanners),
		Invoker:  invoker,
		Logger:   logger,
	}
}

// FromConfig converts scanner configuration entries
func FromConfig(cfgs []config.ScannerConfig) []Scanner {
	out := make([]Scanner, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Scanner{
			Name:    c.Name,
			Command: c.Command,
			Timeout: config.Duration(c.Timeout, DefaultTimeout),
		})
	}
	return out
}

// Scan runs every scanner against rawTarget. Each scanner contributes exactly
// one ScanOutput, failed ones included. When ctx is cancelled no further
// scanners are started and the outputs collected so far are returned.
func (a *Aggregator) Scan(ctx context.Context, rawTarget string) *Result {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	t := target.Parse(rawTarget)
	targetURL := target.URL(rawTarget)
	result := &Result{Outputs: make([]models.ScanOutput, 0, len(a.Scanners))}

	for _, s := range a.Scanners {
		if ctx.Err() != nil {
			logger.Warnw("Scan cancelled, skipping remaining scanners", "target", t.Host, "tool", s.Name)
			break
		}

		commandLine := Expand(s.Command, t.Host, targetURL)
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}

		logger.Infow("Running scanner", "tool", s.Name, "target", t.Host, "timeout", timeout)

		out := a.Invoker.Invoke(ctx, commandLine, timeout)
		rec := models.ScanOutput{
			Tool:      s.Name,
			Command:   commandLine,
			Kind:      out.Kind,
			ExitCode:  out.ExitCode,
			Truncated: out.Truncated,
			Duration:  out.Duration,
			Output:    out.Text,
		}
		result.Outputs = append(result.Outputs, rec)

		if out.Failed() {
			logger.Warnw("Scanner did not complete", "tool", s.Name, "kind", out.Kind, "duration", out.Duration)
		} else {
			logger.Infow("Scanner finished", "tool", s.Name, "exit_code", out.ExitCode, "duration", out.Duration)
		}

		if a.OnTool != nil {
			a.OnTool(rec)
		}
	}

	result.Combined = Combine(result.Outputs)
	return result
}

// Combine concatenates scanner outputs in order, separated by newlines.
func Combine(outputs []models.ScanOutput) string {
	texts := make([]string, len(outputs))
	for i, o := range outputs {
		texts[i] = o.Output
	}
	return strings.Join(texts, "\n")
}

// Expand substitutes the {host} and {url} placeholders, quoting values that
// would otherwise be split by the command-line parser.
func Expand(command, host, url string) string {
	r := strings.NewReplacer("{host}", quoteArg(host), "{url}", quoteArg(url))
	return r.Replace(command)
}

func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\r\n'\"\\#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
