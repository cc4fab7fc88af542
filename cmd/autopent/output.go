package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hakim/autopent/internal/models"
)

var (
	infoPrefix    = color.New(color.FgCyan).Sprint("[*]")
	successPrefix = color.New(color.FgGreen).Sprint("[+]")
	warnPrefix    = color.New(color.FgRed).Sprint("[!]")
	skipPrefix    = color.New(color.FgYellow).Sprint("[-]")
)

func info(format string, a ...interface{}) {
	fmt.Printf("%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func success(format string, a ...interface{}) {
	fmt.Printf("%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func warn(format string, a ...interface{}) {
	fmt.Printf("%s %s\n", warnPrefix, fmt.Sprintf(format, a...))
}

// colorEntry colours the leading marker of a recon entry or tool record.
func colorEntry(value string) string {
	for marker, prefix := range map[string]string{
		models.SuccessMarker: successPrefix,
		models.FailureMarker: warnPrefix,
		models.SkipMarker:    skipPrefix,
	} {
		if strings.HasPrefix(value, marker) {
			return prefix + strings.TrimPrefix(value, marker)
		}
	}
	return value
}

func colorState(state models.RunState) string {
	switch state {
	case models.StateDone:
		return color.New(color.FgGreen).Sprint(state)
	case models.StateAborted:
		return color.New(color.FgRed, color.Bold).Sprint(state)
	default:
		return color.New(color.FgYellow).Sprint(state)
	}
}

func colorStatus(s models.RunStatus) string {
	switch s {
	case models.StatusComplete:
		return color.New(color.FgGreen).Sprint(s)
	case models.StatusFailed, models.StatusAborted:
		return color.New(color.FgRed).Sprint(s)
	case models.StatusPartial, models.StatusRunning:
		return color.New(color.FgYellow).Sprint(s)
	default:
		return string(s)
	}
}

// splitCSV splits a comma-separated string into a trimmed, non-empty slice.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// shortID returns the first 8 characters of a UUID followed by "..." for
// compact table display. Falls back to the full ID when shorter than 8 chars.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
