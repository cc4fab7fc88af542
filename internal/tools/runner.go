package tools

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// ToolResult contains the result of a tool execution
type ToolResult struct {
	Stdout          []byte
	Stderr          string
	ExitCode        int
	StdoutTruncated bool
}

// stderrLimit caps captured stderr; it is only used for error text.
const stderrLimit = 64 * 1024

// cappedBuffer keeps the first limit bytes written to it and discards the rest
// while still reporting full writes, so the child never blocks on a full pipe.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit <= 0 {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}

	room := b.limit - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// RunTool executes a tool binary with the given arguments and returns the result.
// Stdout is capped at stdoutLimit bytes (zero means unlimited). The child runs in
// its own process group so that cancelling ctx kills everything it spawned.
// A nil result means the process never started.
func RunTool(ctx context.Context, stdoutLimit int, binary string, args ...string) (*ToolResult, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	setProcessGroup(cmd)

	// Set WaitDelay for subprocess cleanup after context cancellation
	cmd.WaitDelay = 5 * time.Second

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	// Read stdout and stderr concurrently to prevent deadlocks
	stdoutBuf := newCappedBuffer(stdoutLimit)
	stderrBuf := newCappedBuffer(stderrLimit)

	stdoutDone := make(chan error, 1)
	stderrDone := make(chan error, 1)

	go func() {
		_, err := io.Copy(stdoutBuf, stdoutPipe)
		stdoutDone <- err
	}()

	go func() {
		_, err := io.Copy(stderrBuf, stderrPipe)
		stderrDone <- err
	}()

	<-stdoutDone
	<-stderrDone

	err = cmd.Wait()

	result := &ToolResult{
		Stdout:          stdoutBuf.Bytes(),
		Stderr:          string(stderrBuf.Bytes()),
		ExitCode:        cmd.ProcessState.ExitCode(),
		StdoutTruncated: stdoutBuf.Truncated(),
	}

	if err != nil {
		// Context cancellation is expected, return result with error
		if ctx.Err() != nil {
			return result, fmt.Errorf("command cancelled: %w", ctx.Err())
		}
		// Non-zero exit code
		return result, fmt.Errorf("command failed with exit code %d: %w", result.ExitCode, err)
	}

	return result, nil
}
