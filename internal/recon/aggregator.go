// Package recon gathers passive information about a target from independent
// sources. Every source is fault isolated: its failure becomes a marker entry
// in the bundle and never prevents the other sources from completing.
package recon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/hakim/autopent/internal/config"
	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/target"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// DefaultSourceTimeout bounds each source when no timeout is configured.
const DefaultSourceTimeout = 30 * time.Second

// Resolver resolves hostnames. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Aggregator runs the resolution step and then all lookup sources
// concurrently for one target.
type Aggregator struct {
	Resolver Resolver
	WHOIS    Source
	DNS      Source
	Headers  Source
	Intel    []Source

	// SourceTimeout bounds every lookup, resolution included.
	SourceTimeout time.Duration

	// OnSource, when set, observes each finished entry.
	OnSource func(entry models.SourceResult)

	Logger *zap.SugaredLogger
}

// Gather builds the ReconBundle for rawTarget. It always returns a bundle;
// failures are recorded as entries.
func (a *Aggregator) Gather(ctx context.Context, rawTarget string) *models.ReconBundle {
	logger := a.logger()
	t := target.Parse(rawTarget)
	bundle := &models.ReconBundle{Target: t}

	logger.Infow("Starting reconnaissance", "target", t.Host, "kind", t.Kind, "loopback", t.Loopback)

	bundle.IPAddress, bundle.Address = a.resolve(ctx, t)
	a.observe(bundle.IPAddress)

	req := Request{Target: t, Address: bundle.Address, URL: target.URL(rawTarget)}

	var wg conc.WaitGroup

	if t.Kind == models.TargetIP || t.Loopback {
		reason := "target is an IP address"
		if t.Loopback {
			reason = "loopback target"
		}
		bundle.WHOIS = skippedEntry(models.SourceWHOIS, reason)
		bundle.DNSRecords = skippedEntry(models.SourceDNSRecords, reason)
		a.observe(bundle.WHOIS)
		a.observe(bundle.DNSRecords)
	} else {
		wg.Go(func() { bundle.WHOIS = a.run(ctx, models.SourceWHOIS, a.WHOIS, req) })
		wg.Go(func() { bundle.DNSRecords = a.run(ctx, models.SourceDNSRecords, a.DNS, req) })
	}

	wg.Go(func() { bundle.Headers = a.run(ctx, models.SourceHeaders, a.Headers, req) })

	if bundle.Resolved() && !target.IsLoopbackIP(bundle.Address) && len(a.Intel) > 0 {
		bundle.Intel = make([]models.SourceResult, len(a.Intel))
		for i, src := range a.Intel {
			wg.Go(func() { bundle.Intel[i] = a.run(ctx, src.Name(), src, req) })
		}
	}

	wg.Wait()

	logger.Infow("Reconnaissance complete",
		"target", t.Host,
		"address", bundle.Address,
		"resolved", bundle.Resolved(),
		"intel_sources", len(bundle.Intel))

	return bundle
}

// resolve determines the address of t. Loopback names short-circuit to the
// loopback address and IP literals pass through unchanged.
func (a *Aggregator) resolve(ctx context.Context, t models.Target) (models.SourceResult, string) {
	switch {
	case t.Kind == models.TargetIP && t.Loopback:
		return okEntry(models.SourceIPAddress, t.Host+" (loopback)"), t.Host
	case t.Kind == models.TargetIP:
		return okEntry(models.SourceIPAddress, t.Host), t.Host
	case t.Loopback:
		return okEntry(models.SourceIPAddress, target.LoopbackAddress+" (loopback)"), target.LoopbackAddress
	case t.Host == "":
		return resolutionFailure("empty target"), ""
	}

	resolver := a.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	addrs, err := resolver.LookupHost(ctx, t.Host)
	if err != nil {
		a.logger().Warnw("Target resolution failed", "target", t.Host, "error", err)
		return resolutionFailure(err.Error()), ""
	}

	addr := preferIPv4(addrs)
	if addr == "" {
		return resolutionFailure("no addresses returned"), ""
	}
	return okEntry(models.SourceIPAddress, addr), addr
}

func resolutionFailure(reason string) models.SourceResult {
	return models.SourceResult{
		Source: models.SourceIPAddress,
		Status: models.SourceFailed,
		Kind:   models.FailureResolution,
		Value:  fmt.Sprintf("%s %s: %s", models.FailureMarker, models.ResolutionFailureMarker, reason),
	}
}

func preferIPv4(addrs []string) string {
	first := ""
	for _, s := range addrs {
		ip, err := netip.ParseAddr(s)
		if err != nil {
			continue
		}
		if ip.Is4() || ip.Is4In6() {
			return ip.Unmap().String()
		}
		if first == "" {
			first = ip.String()
		}
	}
	return first
}

type lookupResult struct {
	payload string
	err     error
}

// run executes one source under its own timeout. A source that ignores its
// context is abandoned when the deadline passes; its late result is dropped.
func (a *Aggregator) run(ctx context.Context, name string, src Source, req Request) models.SourceResult {
	if src == nil {
		entry := skippedEntry(name, "source not configured")
		a.observe(entry)
		return entry
	}

	timeout := a.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan lookupResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- lookupResult{err: fmt.Errorf("%w: panic: %v", models.ErrSourceUnavailable, r)}
			}
		}()
		payload, err := src.Lookup(ctx, req)
		done <- lookupResult{payload: payload, err: err}
	}()

	var entry models.SourceResult
	select {
	case res := <-done:
		entry = entryFor(name, res.payload, res.err)
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", models.ErrTimeout, timeout)
		}
		entry = failedEntry(name, err)
	}

	a.logger().Debugw("Recon source finished",
		"source", name,
		"status", entry.Status,
		"duration", time.Since(start))
	a.observe(entry)
	return entry
}

func (a *Aggregator) observe(entry models.SourceResult) {
	if a.OnSource != nil {
		a.OnSource(entry)
	}
}

func (a *Aggregator) timeout() time.Duration {
	if a.SourceTimeout > 0 {
		return a.SourceTimeout
	}
	return DefaultSourceTimeout
}

func (a *Aggregator) logger() *zap.SugaredLogger {
	if a.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return a.Logger
}

// New builds an Aggregator with the standard sources configured from cfg.
func New(cfg *config.Config, logger *zap.SugaredLogger) *Aggregator {
	return &Aggregator{
		Resolver:      net.DefaultResolver,
		WHOIS:         NewWhoisSource(cfg.Recon.WhoisServer),
		DNS:           NewDNSSource(cfg.Recon.DNSServer),
		Headers:       NewHeaderSource(config.Duration(cfg.Recon.HeaderTimeout, DefaultHeaderTimeout), cfg.Recon.UserAgent),
		Intel:         NewIntelSources(cfg.Intel),
		SourceTimeout: config.Duration(cfg.Recon.SourceTimeout, DefaultSourceTimeout),
		Logger:        logger,
	}
}
