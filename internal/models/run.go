package models

import (
	"time"

	"github.com/adr-pipeline/internal/types"
)

// Run is one full-cycle execution of the pipeline, identified by its
// correlation id. The run coordinator is the only writer; the status API and
// the recovery routine read it.
type Run struct {
	RunID        string          `json:"runId" db:"run_id"`
	RequestedBy  string          `json:"requestedBy" db:"requested_by"`
	Status       types.RunStatus `json:"status" db:"status"`
	CurrentStep  *string         `json:"currentStep,omitempty" db:"current_step"`
	Progress     string          `json:"progress" db:"progress"`
	RequestedAt  time.Time       `json:"requestedAt" db:"requested_at"`
	StartedAt    *time.Time      `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
	ErrorMessage *string         `json:"errorMessage,omitempty" db:"error_message"`
}

// StepCounters aggregates what one pipeline step did. Each step fills the
// fields that apply to it and leaves the rest at zero.
type StepCounters struct {
	Inserted        int `json:"inserted"`
	Updated         int `json:"updated"`
	Created         int `json:"created"`
	Skipped         int `json:"skipped"`
	Verified        int `json:"verified"`
	Requested       int `json:"requested"`
	Checked         int `json:"checked"`
	Completed       int `json:"completed"`
	StillProcessing int `json:"stillProcessing"`
	Failed          int `json:"failed"`
	Total           int `json:"total"`
}

// StepResult is the persisted outcome of one step within a run.
type StepResult struct {
	RunID      string         `json:"runId" db:"run_id"`
	Step       types.StepName `json:"step" db:"step"`
	StartedAt  time.Time      `json:"startedAt" db:"started_at"`
	DurationMS int64          `json:"durationMs" db:"duration_ms"`
	Counters   StepCounters   `json:"counters"`
}

// RunView is a run together with its recorded step results, as returned by the
// status API.
type RunView struct {
	Run   Run          `json:"run"`
	Steps []StepResult `json:"steps"`
}
