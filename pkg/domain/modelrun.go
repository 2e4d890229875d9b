package domain

import "time"

// RunState is the lifecycle state of a model run.
type RunState string

const (
	RunCreated  RunState = "CREATED"
	RunRunning  RunState = "RUNNING"
	RunSuccess  RunState = "SUCCESS"
	RunFailed   RunState = "FAILED"
	RunCanceled RunState = "CANCELED"
)

// Terminal reports whether no further transition is possible from s.
func (s RunState) Terminal() bool {
	return s == RunSuccess || s == RunFailed || s == RunCanceled
}

// Valid reports whether s is a known state.
func (s RunState) Valid() bool {
	switch s {
	case RunCreated, RunRunning, RunSuccess, RunFailed, RunCanceled:
		return true
	}
	return false
}

// Schedule records when a run changed state.
type Schedule struct {
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ModelRun tracks one execution of a predictive model. All references are
// weak: deleting a referenced resource does not touch the run.
type ModelRun struct {
	Handle
	State            RunState         `json:"state"`
	ExperimentID     string           `json:"experiment_id"`
	FunctionalDataID string           `json:"funcdata_id,omitempty"`
	ImageGroupID     string           `json:"image_group_id,omitempty"`
	ModelID          string           `json:"model_id"`
	Arguments        map[string]Value `json:"arguments,omitempty"`
	Schedule         Schedule         `json:"schedule"`
	Error            string           `json:"error,omitempty"`
	Results          []string         `json:"results,omitempty"`
}
