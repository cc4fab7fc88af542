// Package exploit decides whether and how to launch an exploit module for the
// correlated vulnerabilities of a target.
package exploit

import (
	"context"
	"fmt"
	"time"

	"github.com/hakim/autopent/internal/config"
	"github.com/hakim/autopent/internal/models"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single framework attempt.
const DefaultTimeout = 60 * time.Second

// MessageNotConfigured is the outcome message when no framework is available.
const MessageNotConfigured = "exploitation framework not configured"

// Listener is the callback address handed to payloads.
type Listener struct {
	Host string
	Port int
}

// Attempt identifies a launched module run.
type Attempt struct {
	JobID string
	UUID  string
}

// Framework launches exploit modules. *MSFClient satisfies it.
type Framework interface {
	Attempt(ctx context.Context, address, moduleID string, l Listener) (Attempt, error)
}

// Coordinator turns correlation matches into at most one exploit attempt.
type Coordinator struct {
	Framework Framework // nil when no framework is configured
	Listener  Listener
	Timeout   time.Duration
	Logger    *zap.SugaredLogger
}

// New creates a Coordinator from the exploit configuration. The Metasploit
// client is only created when the configuration enables it.
func New(cfg config.ExploitConfig, logger *zap.SugaredLogger) *Coordinator {
	c := &Coordinator{
		Listener: Listener{Host: cfg.LHOST, Port: cfg.LPORT},
		Timeout:  config.Duration(cfg.Timeout, DefaultTimeout),
		Logger:   logger,
	}
	if cfg.Configured() {
		c.Framework = NewMSFClient(cfg, logger)
	}
	return c
}

// Attempt selects the first match and tries its exploit against the resolved
// address in bundle. An unresolved target is refused with a message carrying
// the resolution-failure marker. Attempted is false only when nothing matched.
func (c *Coordinator) Attempt(ctx context.Context, bundle *models.ReconBundle, matches []models.VulnerabilityMatch) models.ExploitOutcome {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var module string
	if len(matches) > 0 {
		module = matches[0].Exploit
	}

	if bundle == nil || !bundle.Resolved() {
		reason := "no reconnaissance data"
		if bundle != nil {
			reason = bundle.IPAddress.Value
		}
		logger.Warnw("Refusing exploitation of unresolved target", "module", module)
		return models.ExploitOutcome{
			Attempted: module != "",
			Success:   false,
			Module:    module,
			Message:   fmt.Sprintf("%s %s, exploitation refused (%s)", models.FailureMarker, models.ResolutionFailureMarker, reason),
		}
	}

	if module == "" {
		return models.ExploitOutcome{
			Message: fmt.Sprintf("%s no correlated vulnerability, exploitation not attempted", models.SkipMarker),
		}
	}

	if c.Framework == nil {
		logger.Infow("Exploit selected but no framework configured", "module", module)
		return models.ExploitOutcome{
			Attempted: true,
			Module:    module,
			Message:   MessageNotConfigured,
		}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Infow("Attempting exploit", "module", module, "address", bundle.Address, "signature", matches[0].Signature)

	attempt, err := c.Framework.Attempt(ctx, bundle.Address, module, c.Listener)
	if err != nil {
		logger.Warnw("Exploit attempt failed", "module", module, "error", err)
		return models.ExploitOutcome{
			Attempted: true,
			Module:    module,
			Message:   fmt.Sprintf("%s %s failed: %v", models.FailureMarker, module, err),
		}
	}

	msg := fmt.Sprintf("%s %s launched against %s as job %s", models.SuccessMarker, module, bundle.Address, attempt.JobID)
	if attempt.UUID != "" {
		msg += " (uuid " + attempt.UUID + ")"
	}
	return models.ExploitOutcome{
		Attempted: true,
		Success:   true,
		Module:    module,
		Message:   msg,
	}
}
