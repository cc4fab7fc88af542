package models

import (
	"time"

	"github.com/google/uuid"
)

// RunMeta contains metadata about a stored pipeline run
type RunMeta struct {
	ID          string     `json:"id"`
	Target      string     `json:"target"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      RunStatus  `json:"status"`
	State       RunState   `json:"state"`
	RunDir      string     `json:"run_dir"`
	StagesRun   []string   `json:"stages_run,omitempty"`
	ReportPath  string     `json:"report_path,omitempty"`
	MatchCount  int        `json:"match_count"`
}

// NewRunMeta creates run metadata with a fresh ID
func NewRunMeta(target string) *RunMeta {
	return &RunMeta{
		ID:        uuid.New().String(),
		Target:    target,
		StartedAt: time.Now(),
		Status:    StatusPending,
		State:     StateInit,
		StagesRun: []string{},
	}
}
