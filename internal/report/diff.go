package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hakim/autopent/internal/diff"
	"github.com/hakim/autopent/internal/models"
)

// WriteDiffReport generates a markdown report capturing the delta between two
// assessment runs and writes it to outputPath.
func WriteDiffReport(result *diff.DiffResult, previousID, currentID, outputPath string) error {
	return writeFile(outputPath, DiffMarkdown(result, previousID, currentID))
}

// DiffMarkdown renders the run comparison.
func DiffMarkdown(result *diff.DiffResult, previousID, currentID string) string {
	var b strings.Builder

	b.WriteString("# Assessment Diff Report\n\n")
	b.WriteString(fmt.Sprintf("**Previous run:** %s\n", previousID))
	b.WriteString(fmt.Sprintf("**Current run:** %s\n", currentID))
	b.WriteString(fmt.Sprintf("**Date:** %s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC")))

	// If there are zero changes across all categories, short-circuit.
	if result.Empty() {
		b.WriteString("No changes detected.\n")
		return b.String()
	}

	writeDiffSummaryTable(&b, result)
	writeMatchList(&b, "New Vulnerabilities", "+", result.Matches.New)
	writeMatchList(&b, "Resolved Vulnerabilities", "-", result.Matches.Resolved)
	writeAddressChange(&b, result.AddressChange)
	writeStatusChanges(&b, "Reconnaissance Changes", "Source", result.ReconChanges)
	writeStatusChanges(&b, "Scanner Changes", "Tool", result.ScanChanges)
	writeExploitChange(&b, result)

	return b.String()
}

// ---------------------------------------------------------------------------
// Section writers
// ---------------------------------------------------------------------------

func writeDiffSummaryTable(b *strings.Builder, r *diff.DiffResult) {
	b.WriteString("## Summary\n\n")
	b.WriteString("| Category | Previous | Current | Change |\n")
	b.WriteString("|----------|----------|---------|--------|\n")
	b.WriteString(fmt.Sprintf("| Correlated vulnerabilities | %d | %d | %s |\n",
		r.PreviousMatchCount, r.CurrentMatchCount, formatChange(len(r.Matches.New), len(r.Matches.Resolved))))
	b.WriteString(fmt.Sprintf("| Recon sources changed | | | %d |\n", len(r.ReconChanges)))
	b.WriteString(fmt.Sprintf("| Scanners changed | | | %d |\n", len(r.ScanChanges)))
	b.WriteString("\n")
}

// writeMatchList renders one match section. Skipped when empty.
func writeMatchList(b *strings.Builder, title, sign string, matches []models.VulnerabilityMatch) {
	if len(matches) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s (%s%d)\n\n", title, sign, len(matches)))
	b.WriteString("| Signature | Exploit |\n")
	b.WriteString("|-----------|---------|\n")
	for _, m := range matches {
		b.WriteString(fmt.Sprintf("| %s | %s |\n", m.Signature, m.Exploit))
	}
	b.WriteString("\n")
}

func writeAddressChange(b *strings.Builder, c *diff.StatusChange) {
	if c == nil {
		return
	}
	b.WriteString("## Address Change\n\n")
	b.WriteString(fmt.Sprintf("%s -> %s\n\n", orDash(c.Previous), orDash(c.Current)))
}

// writeStatusChanges renders a previous/current table. Skipped when empty.
func writeStatusChanges(b *strings.Builder, title, column string, changes []diff.StatusChange) {
	if len(changes) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s\n\n", title))
	b.WriteString(fmt.Sprintf("| %s | Previous | Current |\n", column))
	b.WriteString("|--------|----------|---------|\n")
	for _, c := range changes {
		b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", c.Name, orDash(c.Previous), orDash(c.Current)))
	}
	b.WriteString("\n")
}

func writeExploitChange(b *strings.Builder, r *diff.DiffResult) {
	if !r.ExploitChanged {
		return
	}
	b.WriteString("## Exploitation Change\n\n")
	b.WriteString(fmt.Sprintf("- **Previous:** %s\n", describeExploit(r.PreviousExploit)))
	b.WriteString(fmt.Sprintf("- **Current:** %s\n\n", describeExploit(r.CurrentExploit)))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// formatChange returns a human-readable change string such as "+3 / -1".
// When there are no additions and no removals it returns "none".
func formatChange(added, removed int) string {
	if added == 0 && removed == 0 {
		return "none"
	}
	parts := make([]string, 0, 2)
	if added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d", removed))
	}
	return strings.Join(parts, " / ")
}

func describeExploit(o *models.ExploitOutcome) string {
	if o == nil {
		return "not run"
	}
	switch {
	case o.Success:
		return "succeeded with " + o.Module
	case o.Attempted && o.Module != "":
		return "attempted " + o.Module + ", not successful"
	case o.Attempted:
		return "attempted, not successful"
	}
	return "not attempted"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
