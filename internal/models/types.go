package models

// RunState represents a pipeline state. The terminal states are Done and Aborted.
type RunState string

const (
	StateInit      RunState = "init"
	StateRecon     RunState = "recon"
	StateScan      RunState = "scan"
	StateCorrelate RunState = "correlate"
	StateExploit   RunState = "exploit"
	StateAnalyze   RunState = "analyze"
	StateReport    RunState = "report"
	StateDone      RunState = "done"
	StateAborted   RunState = "aborted"
)

// Terminal reports whether no further transition can happen from s.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// RunStatus represents the persisted lifecycle of a stored run
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusComplete RunStatus = "complete"
	StatusPartial  RunStatus = "partial"
	StatusAborted  RunStatus = "aborted"
	StatusFailed   RunStatus = "failed"
)

// TargetKind classifies a normalized target
type TargetKind string

const (
	TargetIP       TargetKind = "ip"
	TargetHostname TargetKind = "hostname"
)

// SourceStatus is the outcome of a single recon lookup
type SourceStatus string

const (
	SourceOK      SourceStatus = "ok"
	SourceFailed  SourceStatus = "failed"
	SourceSkipped SourceStatus = "skipped"
)

// OutputKind is the outcome class of a tool invocation
type OutputKind string

const (
	OutputOK        OutputKind = "ok"
	OutputTimeout   OutputKind = "timeout"
	OutputError     OutputKind = "error"
	OutputCancelled OutputKind = "cancelled"
)

// Result-string markers. Every recon entry and every failed tool record starts
// with exactly one of the first three.
const (
	SuccessMarker = "[+]"
	FailureMarker = "[!]"
	SkipMarker    = "[-]"

	// ResolutionFailureMarker is carried verbatim from the recon IPAddress entry
	// into the exploit outcome message; the orchestrator aborts on it.
	ResolutionFailureMarker = "could not resolve target"

	TimeoutMarker = "command timed out"
)

// Canonical recon source names.
const (
	SourceIPAddress  = "IPAddress"
	SourceWHOIS      = "WHOIS"
	SourceDNSRecords = "DNSRecords"
	SourceHeaders    = "Headers"
)
