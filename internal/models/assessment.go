package models

import (
	"strings"
	"time"
)

// Target is a normalized host identifier derived from user input.
type Target struct {
	Raw      string     `json:"raw"`
	Host     string     `json:"host"`
	Kind     TargetKind `json:"kind"`
	Loopback bool       `json:"loopback"`
}

// SourceResult is one entry of a ReconBundle. Value always starts with the
// marker matching Status and is never empty.
type SourceResult struct {
	Source string       `json:"source"`
	Status SourceStatus `json:"status"`
	Kind   FailureKind  `json:"kind,omitempty"`
	Value  string       `json:"value"`
}

// Failed reports whether the lookup failed (skips are not failures).
func (r SourceResult) Failed() bool {
	return r.Status == SourceFailed
}

// ReconBundle holds the outcome of every reconnaissance source for one target.
// Intel entries are present only when a non-loopback address was resolved.
type ReconBundle struct {
	Target     Target         `json:"target"`
	Address    string         `json:"address,omitempty"`
	IPAddress  SourceResult   `json:"ip_address"`
	WHOIS      SourceResult   `json:"whois"`
	DNSRecords SourceResult   `json:"dns_records"`
	Headers    SourceResult   `json:"headers"`
	Intel      []SourceResult `json:"intel,omitempty"`
}

// Resolved reports whether the target address could be determined.
func (b *ReconBundle) Resolved() bool {
	return b.Address != "" && !b.IPAddress.Failed()
}

// Entries returns every present entry in canonical order: the four fixed
// sources followed by intel sources in configuration order.
func (b *ReconBundle) Entries() []SourceResult {
	var out []SourceResult
	for _, r := range []SourceResult{b.IPAddress, b.WHOIS, b.DNSRecords, b.Headers} {
		if r.Source != "" {
			out = append(out, r)
		}
	}
	return append(out, b.Intel...)
}

// Get returns the entry for the named source.
func (b *ReconBundle) Get(source string) (SourceResult, bool) {
	for _, r := range b.Entries() {
		if r.Source == source {
			return r, true
		}
	}
	return SourceResult{}, false
}

// ScanOutput is the raw output of one scanning tool.
type ScanOutput struct {
	Tool      string        `json:"tool"`
	Command   string        `json:"command"`
	Kind      OutputKind    `json:"kind"`
	ExitCode  int           `json:"exit_code"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
	Output    string        `json:"output"`
}

// VulnerabilityMatch pairs a matched signature with its suggested exploit module.
type VulnerabilityMatch struct {
	Signature string `json:"signature"`
	Exploit   string `json:"exploit"`
}

// ExploitOutcome is the result of the exploitation stage.
type ExploitOutcome struct {
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
	Module    string `json:"module,omitempty"`
	Message   string `json:"message"`
}

// Unresolved reports whether the outcome signals a target that could not be resolved.
func (o ExploitOutcome) Unresolved() bool {
	return !o.Success && strings.Contains(o.Message, ResolutionFailureMarker)
}

// AssessmentResult is the terminal aggregate of one pipeline run. Fields are
// filled stage by stage; a cancelled run keeps whatever completed.
type AssessmentResult struct {
	RunID       string               `json:"run_id"`
	Target      Target               `json:"target"`
	State       RunState             `json:"state"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at,omitempty"`
	Recon       *ReconBundle         `json:"recon,omitempty"`
	Scans       []ScanOutput         `json:"scans,omitempty"`
	Matches     []VulnerabilityMatch `json:"matches"`
	Exploit     *ExploitOutcome      `json:"exploit,omitempty"`
	Analysis    string               `json:"analysis,omitempty"`
	ReportPath  string               `json:"report_path,omitempty"`
	ReportError string               `json:"report_error,omitempty"`
	AbortReason string               `json:"abort_reason,omitempty"`
	AbortKind   FailureKind          `json:"abort_kind,omitempty"`
	StagesRun   []string             `json:"stages_run,omitempty"`
	StageErrors map[string]string    `json:"stage_errors,omitempty"`
}

// Aborted reports whether the run stopped on a fatal failure.
func (r *AssessmentResult) Aborted() bool {
	return r.State == StateAborted
}

// Elapsed is the wall time of the run, or time since start while it is still running.
func (r *AssessmentResult) Elapsed() time.Duration {
	if r.CompletedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
