package exploit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hakim/autopent/internal/config"
	"github.com/hakim/autopent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFramework struct {
	attempt Attempt
	err     error
	calls   []string
	address string
	l       Listener
}

func (f *fakeFramework) Attempt(ctx context.Context, address, moduleID string, l Listener) (Attempt, error) {
	f.calls = append(f.calls, moduleID)
	f.address = address
	f.l = l
	return f.attempt, f.err
}

func resolvedBundle() *models.ReconBundle {
	return &models.ReconBundle{
		Address:   "10.0.0.5",
		IPAddress: models.SourceResult{Source: models.SourceIPAddress, Status: models.SourceOK, Value: "[+] IP Address: 10.0.0.5"},
	}
}

func unresolvedBundle() *models.ReconBundle {
	return &models.ReconBundle{
		IPAddress: models.SourceResult{
			Source: models.SourceIPAddress,
			Status: models.SourceFailed,
			Kind:   models.FailureResolution,
			Value:  "[!] could not resolve target: no such host",
		},
	}
}

var twoMatches = []models.VulnerabilityMatch{
	{Signature: "vsftpd 2.3.4", Exploit: "exploit/unix/ftp/vsftpd_234_backdoor"},
	{Signature: "SQL Injection", Exploit: "exploit/unix/webapp/sqlmap_sqli"},
}

func TestAttemptNoMatches(t *testing.T) {
	fw := &fakeFramework{}
	c := &Coordinator{Framework: fw}

	out := c.Attempt(context.Background(), resolvedBundle(), nil)

	assert.False(t, out.Attempted)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Message)
	assert.Empty(t, fw.calls)
}

func TestAttemptFirstMatchWins(t *testing.T) {
	fw := &fakeFramework{attempt: Attempt{JobID: "3", UUID: "abc"}}
	c := &Coordinator{Framework: fw, Listener: Listener{Host: "10.0.0.9", Port: 4444}}

	out := c.Attempt(context.Background(), resolvedBundle(), twoMatches)

	assert.True(t, out.Attempted)
	assert.True(t, out.Success)
	assert.Equal(t, "exploit/unix/ftp/vsftpd_234_backdoor", out.Module)
	assert.Equal(t, []string{"exploit/unix/ftp/vsftpd_234_backdoor"}, fw.calls)
	assert.Equal(t, "10.0.0.5", fw.address)
	assert.Equal(t, Listener{Host: "10.0.0.9", Port: 4444}, fw.l)
	assert.True(t, strings.HasPrefix(out.Message, models.SuccessMarker))
	assert.Contains(t, out.Message, "job 3")
}

func TestAttemptUnresolvedTargetRefused(t *testing.T) {
	fw := &fakeFramework{}
	c := &Coordinator{Framework: fw}

	out := c.Attempt(context.Background(), unresolvedBundle(), twoMatches)

	assert.False(t, out.Success)
	assert.True(t, out.Attempted)
	assert.Contains(t, out.Message, models.ResolutionFailureMarker)
	assert.True(t, out.Unresolved())
	assert.Empty(t, fw.calls)
}

func TestAttemptUnresolvedWithoutMatches(t *testing.T) {
	c := &Coordinator{}

	out := c.Attempt(context.Background(), unresolvedBundle(), nil)

	assert.False(t, out.Attempted)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, models.ResolutionFailureMarker)

	out = c.Attempt(context.Background(), nil, nil)
	assert.True(t, out.Unresolved())
}

func TestAttemptFrameworkNotConfigured(t *testing.T) {
	c := &Coordinator{}

	out := c.Attempt(context.Background(), resolvedBundle(), twoMatches)

	assert.True(t, out.Attempted)
	assert.False(t, out.Success)
	assert.Equal(t, MessageNotConfigured, out.Message)
	assert.False(t, out.Unresolved())
}

func TestAttemptFrameworkError(t *testing.T) {
	fw := &fakeFramework{err: errors.New("connection refused")}
	c := &Coordinator{Framework: fw}

	out := c.Attempt(context.Background(), resolvedBundle(), twoMatches)

	assert.True(t, out.Attempted)
	assert.False(t, out.Success)
	assert.True(t, strings.HasPrefix(out.Message, models.FailureMarker))
	assert.Contains(t, out.Message, "connection refused")
	assert.False(t, out.Unresolved())
}

func TestNewOnlyConfiguresFrameworkWhenEnabled(t *testing.T) {
	cfg := config.DefaultConfig().Exploit
	assert.Nil(t, New(cfg, nil).Framework)

	cfg.RPCPass = "secret"
	c := New(cfg, nil)
	require.NotNil(t, c.Framework)
	client, ok := c.Framework.(*MSFClient)
	require.True(t, ok)
	assert.Equal(t, "https://127.0.0.1:55553", client.BaseURL)
	assert.Equal(t, 4444, c.Listener.Port)
}
