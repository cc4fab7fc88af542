package models

import (
	"context"
	"errors"
)

// FailureKind names one class of the error taxonomy.
type FailureKind string

const (
	FailureNone                  FailureKind = ""
	FailureTimeout               FailureKind = "timeout"
	FailureResolution            FailureKind = "resolution_failure"
	FailureSourceUnavailable     FailureKind = "source_unavailable"
	FailureToolExecution         FailureKind = "tool_execution_error"
	FailureFatalTargetUnresolved FailureKind = "fatal_target_unresolved"
)

// Sentinel errors, one per failure kind.
var (
	ErrTimeout           = errors.New("operation timed out")
	ErrResolutionFailure = errors.New(ResolutionFailureMarker)
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrToolExecution     = errors.New("tool execution failed")
	ErrTargetUnresolved  = errors.New("target unresolved")
)

// KindOf maps an error chain to its failure kind. Errors that match none of the
// sentinels are treated as SourceUnavailable.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrTargetUnresolved):
		return FailureFatalTargetUnresolved
	case errors.Is(err, ErrResolutionFailure):
		return FailureResolution
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrToolExecution):
		return FailureToolExecution
	default:
		return FailureSourceUnavailable
	}
}

// Fatal reports whether the kind must abort a pipeline run.
func (k FailureKind) Fatal() bool {
	return k == FailureFatalTargetUnresolved
}
