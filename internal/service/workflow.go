package service

import (
	"context"
	"fmt"
	"time"

	"intake/internal/domain"
)

// Workflow is the daily definition for one source: extract, then load.
// Each configured source gets its own independent value.
type Workflow struct {
	Source string
	Steps  []domain.RunStep
}

// NewWorkflow returns the workflow of source.
func NewWorkflow(source string) *Workflow {
	return &Workflow{
		Source: source,
		Steps:  []domain.RunStep{domain.RunStepExtract, domain.RunStepLoad},
	}
}

// Workflows builds one workflow per source name.
func Workflows(sources []string) []*Workflow {
	out := make([]*Workflow, 0, len(sources))
	for _, s := range sources {
		out = append(out, NewWorkflow(s))
	}
	return out
}

// ID names the workflow the way operators refer to it.
func (w *Workflow) ID() string {
	return "etl_" + w.Source
}

// Execute runs the steps in order for execDate. The first failing step
// stops the workflow.
func (w *Workflow) Execute(ctx context.Context, p *PipelineService, execDate time.Time) error {
	if !p.running.TryLock(w.Source) {
		return fmt.Errorf("%w: %s", ErrRunInProgress, w.Source)
	}
	defer p.running.Unlock(w.Source)

	for _, step := range w.Steps {
		var err error
		switch step {
		case domain.RunStepExtract:
			_, err = p.extract(ctx, w.Source, execDate, StepOptions{})
		case domain.RunStepLoad:
			_, err = p.load(ctx, w.Source, execDate, StepOptions{})
		default:
			err = fmt.Errorf("unknown step %q", step)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", step, w.Source, err)
		}
	}
	return nil
}

// ExecDate is the logical date a run fired at t covers: the day before t,
// in UTC.
func ExecDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}
