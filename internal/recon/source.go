package recon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hakim/autopent/internal/models"
)

// Request carries everything a source may need about the target.
// Address is empty when resolution failed.
type Request struct {
	Target  models.Target
	Address string
	URL     string
}

// Source is one independent reconnaissance lookup. Lookup returns the
// payload text placed after the success marker.
type Source interface {
	Name() string
	Lookup(ctx context.Context, req Request) (string, error)
}

// SkipError marks a lookup that was deliberately not performed.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// Skip returns an error that makes the aggregator record a skip entry.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

var labels = map[string]string{
	models.SourceIPAddress:  "IP Address",
	models.SourceWHOIS:      "WHOIS",
	models.SourceDNSRecords: "DNS Records",
	models.SourceHeaders:    "HTTP Headers",
}

// Label is the human-readable name used in entry text.
func Label(source string) string {
	if l, ok := labels[source]; ok {
		return l
	}
	return source
}

func okEntry(source, payload string) models.SourceResult {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		payload = "(no data)"
	}
	return models.SourceResult{
		Source: source,
		Status: models.SourceOK,
		Value:  fmt.Sprintf("%s %s: %s", models.SuccessMarker, Label(source), payload),
	}
}

func skippedEntry(source, reason string) models.SourceResult {
	return models.SourceResult{
		Source: source,
		Status: models.SourceSkipped,
		Value:  fmt.Sprintf("%s %s skipped: %s", models.SkipMarker, Label(source), reason),
	}
}

func failedEntry(source string, err error) models.SourceResult {
	return models.SourceResult{
		Source: source,
		Status: models.SourceFailed,
		Kind:   models.KindOf(err),
		Value:  fmt.Sprintf("%s %s failed: %v", models.FailureMarker, Label(source), err),
	}
}

// entryFor converts a lookup outcome into a bundle entry.
func entryFor(source, payload string, err error) models.SourceResult {
	var skip *SkipError
	switch {
	case err == nil:
		return okEntry(source, payload)
	case errors.As(err, &skip):
		return skippedEntry(source, skip.Reason)
	default:
		return failedEntry(source, err)
	}
}
