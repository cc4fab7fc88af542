package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/hakim/autopent/internal/models"
	"go.uber.org/zap"
)

// DefaultMaxOutputBytes caps buffered stdout per invocation.
const DefaultMaxOutputBytes = 1 << 20

// Output is the outcome of one invocation. Text is never empty for a failed
// invocation and always begins with models.FailureMarker in that case.
type Output struct {
	Command   string
	Text      string
	Kind      models.OutputKind
	ExitCode  int
	Truncated bool
	Duration  time.Duration
	Stderr    string
}

// Failed reports whether the invocation did not produce regular tool output.
func (o Output) Failed() bool {
	return o.Kind != models.OutputOK
}

// Invoker runs external command lines with a bounded wall-clock timeout.
// Invoke never returns an error: every failure is encoded in Output.
type Invoker struct {
	MaxOutputBytes int
	Logger         *zap.SugaredLogger
}

// NewInvoker returns an Invoker with the given output cap (<= 0 selects the default).
func NewInvoker(maxOutputBytes int, logger *zap.SugaredLogger) *Invoker {
	if maxOutputBytes <= 0 {
		maxOutputBytes = DefaultMaxOutputBytes
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Invoker{MaxOutputBytes: maxOutputBytes, Logger: logger}
}

// Invoke splits commandLine with shell quoting rules, runs it without a shell
// and captures stdout. A zero timeout means only ctx bounds the run.
func (inv *Invoker) Invoke(ctx context.Context, commandLine string, timeout time.Duration) (out Output) {
	out = Output{Command: commandLine, ExitCode: -1}
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	args, err := shlex.Split(commandLine)
	if err != nil || len(args) == 0 {
		reason := "empty command line"
		if err != nil {
			reason = fmt.Sprintf("invalid command line: %v", err)
		}
		out.Kind = models.OutputError
		out.Text = failureText(reason)
		return out
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	inv.Logger.Debugw("Invoking tool", "command", commandLine, "timeout", timeout)

	res, runErr := RunTool(runCtx, inv.MaxOutputBytes, args[0], args[1:]...)
	out = inv.classify(ctx, runCtx, timeout, res, runErr, out)

	inv.Logger.Debugw("Tool finished",
		"command", commandLine,
		"kind", out.Kind,
		"exit_code", out.ExitCode,
		"truncated", out.Truncated,
		"duration", time.Since(start))

	return out
}

func (inv *Invoker) classify(parent, runCtx context.Context, timeout time.Duration, res *ToolResult, runErr error, out Output) Output {
	if res == nil {
		out.Kind = models.OutputError
		out.Text = failureText(errorReason(runErr))
		return out
	}

	out.ExitCode = res.ExitCode
	out.Stderr = res.Stderr
	out.Truncated = res.StdoutTruncated
	stdout := string(res.Stdout)

	switch {
	case runErr == nil:
		out.Kind = models.OutputOK
		out.Text = stdout
	case parent.Err() != nil:
		out.Kind = models.OutputCancelled
		out.Text = joinOutput(fmt.Sprintf("%s command cancelled", models.FailureMarker), stdout)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		out.Kind = models.OutputTimeout
		out.Text = fmt.Sprintf("%s %s after %s", models.FailureMarker, models.TimeoutMarker, timeout)
	case res.ExitCode >= 0:
		// Non-zero exit still yields the tool's own output
		out.Kind = models.OutputOK
		out.Text = stdout
	default:
		out.Kind = models.OutputError
		out.Text = joinOutput(failureText(errorReason(runErr)), stdout)
	}

	if out.Truncated && out.Kind == models.OutputOK {
		out.Text += fmt.Sprintf("\n[output truncated after %d bytes]", inv.MaxOutputBytes)
	}
	return out
}

func failureText(reason string) string {
	return fmt.Sprintf("%s command failed: %s", models.FailureMarker, reason)
}

func errorReason(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func joinOutput(marker, stdout string) string {
	if strings.TrimSpace(stdout) == "" {
		return marker
	}
	return marker + "\n" + stdout
}
