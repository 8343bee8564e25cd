package domain

import "time"

// RunStep is one of the two sequential steps of a daily run.
type RunStep string

const (
	RunStepExtract RunStep = "extract"
	RunStepLoad    RunStep = "load"
)

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Run is the history record of one step for one source.
type Run struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Step       RunStep    `json:"step"`
	ExecDate   time.Time  `json:"execDate"`
	Path       string     `json:"path"`
	Target     string     `json:"target,omitempty"` // table, for load steps
	Status     string     `json:"status"`
	Rows       int        `json:"rows"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// RunStore persists run history.
type RunStore interface {
	CreateRun(r *Run) error
	FinishRun(r *Run) error
	GetRun(id string) (*Run, error)
	ListRuns(source string, limit int) ([]Run, error)
	LastRun(source string, step RunStep) (*Run, error)
}
