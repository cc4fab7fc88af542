// Package diff computes the delta between two stored assessment runs.
// It reads the per-stage JSON files written to each run's raw directory and
// reports what changed in correlated vulnerabilities, reconnaissance sources,
// scanner outcomes and exploitation.
package diff

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hakim/autopent/internal/models"
	"github.com/hakim/autopent/internal/storage"
)

// Raw file names shared with the pipeline.
const (
	FileRecon   = "recon.json"
	FileScans   = "scans.json"
	FileMatches = "matches.json"
	FileExploit = "exploit.json"
)

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Snapshot holds the structured data of one run. Fields are empty when the
// corresponding file is absent, e.g. for a run that aborted early.
type Snapshot struct {
	RunDir  string
	Recon   *models.ReconBundle
	Scans   []models.ScanOutput
	Matches []models.VulnerabilityMatch
	Exploit *models.ExploitOutcome
}

// LoadSnapshot reads the canonical JSON files from {runDir}/raw/. Missing
// files are treated as empty.
func LoadSnapshot(runDir string) (*Snapshot, error) {
	snap := &Snapshot{RunDir: runDir}
	rawDir := storage.RawDir(runDir)

	files := []struct {
		name   string
		target interface{}
	}{
		{FileRecon, &snap.Recon},
		{FileScans, &snap.Scans},
		{FileMatches, &snap.Matches},
		{FileExploit, &snap.Exploit},
	}
	for _, f := range files {
		if err := loadOptionalJSON(filepath.Join(rawDir, f.name), f.target); err != nil {
			return nil, fmt.Errorf("loading %s: %w", f.name, err)
		}
	}

	return snap, nil
}

func loadOptionalJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// ---------------------------------------------------------------------------
// Matches
// ---------------------------------------------------------------------------

// MatchDiff classifies correlated vulnerabilities of two runs. All slices are
// non-nil and keep the order of the run they come from.
type MatchDiff struct {
	New       []models.VulnerabilityMatch
	Resolved  []models.VulnerabilityMatch
	Unchanged []models.VulnerabilityMatch
}

func matchKey(m models.VulnerabilityMatch) string {
	return strings.ToLower(m.Signature)
}

// CompareMatches compares matches by signature, case-insensitively.
func CompareMatches(previous, current []models.VulnerabilityMatch) MatchDiff {
	md := MatchDiff{
		New:       []models.VulnerabilityMatch{},
		Resolved:  []models.VulnerabilityMatch{},
		Unchanged: []models.VulnerabilityMatch{},
	}

	prev := make(map[string]bool, len(previous))
	for _, m := range previous {
		prev[matchKey(m)] = true
	}
	curr := make(map[string]bool, len(current))
	for _, m := range current {
		curr[matchKey(m)] = true
	}

	for _, m := range current {
		if prev[matchKey(m)] {
			md.Unchanged = append(md.Unchanged, m)
		} else {
			md.New = append(md.New, m)
		}
	}
	for _, m := range previous {
		if !curr[matchKey(m)] {
			md.Resolved = append(md.Resolved, m)
		}
	}

	return md
}

// ---------------------------------------------------------------------------
// DiffResult
// ---------------------------------------------------------------------------

// StatusChange records a recon source or scanner whose outcome changed.
// An empty side means the entry was absent in that run.
type StatusChange struct {
	Name     string
	Previous string
	Current  string
}

// DiffResult holds the complete delta between a previous and a current run.
type DiffResult struct {
	Matches       MatchDiff
	ReconChanges  []StatusChange
	ScanChanges   []StatusChange
	AddressChange *StatusChange

	PreviousExploit *models.ExploitOutcome
	CurrentExploit  *models.ExploitOutcome
	ExploitChanged  bool

	CurrentMatchCount  int
	PreviousMatchCount int
}

// Empty reports whether nothing changed between the runs.
func (d *DiffResult) Empty() bool {
	return len(d.Matches.New) == 0 && len(d.Matches.Resolved) == 0 &&
		len(d.ReconChanges) == 0 && len(d.ScanChanges) == 0 &&
		d.AddressChange == nil && !d.ExploitChanged
}

// ComputeDiff calculates the delta between current and previous snapshots.
// Both arguments must be non-nil.
func ComputeDiff(current, previous *Snapshot) *DiffResult {
	dr := &DiffResult{
		Matches:            CompareMatches(previous.Matches, current.Matches),
		ReconChanges:       []StatusChange{},
		ScanChanges:        []StatusChange{},
		PreviousExploit:    previous.Exploit,
		CurrentExploit:     current.Exploit,
		CurrentMatchCount:  len(current.Matches),
		PreviousMatchCount: len(previous.Matches),
	}

	diffRecon(dr, current.Recon, previous.Recon)
	diffScans(dr, current.Scans, previous.Scans)
	dr.ExploitChanged = exploitState(previous.Exploit) != exploitState(current.Exploit)

	return dr
}

func diffRecon(dr *DiffResult, current, previous *models.ReconBundle) {
	prevAddr, currAddr := "", ""
	var prevEntries, currEntries []models.SourceResult
	if previous != nil {
		prevAddr = previous.Address
		prevEntries = previous.Entries()
	}
	if current != nil {
		currAddr = current.Address
		currEntries = current.Entries()
	}

	if prevAddr != currAddr {
		dr.AddressChange = &StatusChange{Name: models.SourceIPAddress, Previous: prevAddr, Current: currAddr}
	}

	prev := make(map[string]string, len(prevEntries))
	for _, e := range prevEntries {
		prev[e.Source] = string(e.Status)
	}
	curr := make(map[string]string, len(currEntries))
	for _, e := range currEntries {
		curr[e.Source] = string(e.Status)
		if p := prev[e.Source]; p != string(e.Status) {
			dr.ReconChanges = append(dr.ReconChanges, StatusChange{Name: e.Source, Previous: p, Current: string(e.Status)})
		}
	}
	for _, e := range prevEntries {
		if _, ok := curr[e.Source]; !ok {
			dr.ReconChanges = append(dr.ReconChanges, StatusChange{Name: e.Source, Previous: string(e.Status)})
		}
	}
}

func diffScans(dr *DiffResult, current, previous []models.ScanOutput) {
	prev := make(map[string]string, len(previous))
	for _, o := range previous {
		prev[o.Tool] = string(o.Kind)
	}
	curr := make(map[string]string, len(current))
	for _, o := range current {
		curr[o.Tool] = string(o.Kind)
		if p := prev[o.Tool]; p != string(o.Kind) {
			dr.ScanChanges = append(dr.ScanChanges, StatusChange{Name: o.Tool, Previous: p, Current: string(o.Kind)})
		}
	}
	for _, o := range previous {
		if _, ok := curr[o.Tool]; !ok {
			dr.ScanChanges = append(dr.ScanChanges, StatusChange{Name: o.Tool, Previous: string(o.Kind)})
		}
	}
}

func exploitState(o *models.ExploitOutcome) string {
	if o == nil {
		return ""
	}
	return fmt.Sprintf("%t/%t/%s", o.Attempted, o.Success, o.Module)
}
