package rowflow

import (
	"time"
)

// Result is the outcome of one pipeline execution.
type Result struct {
	RunID    string        `json:"run_id"`
	Pipeline string        `json:"pipeline"`
	Started  time.Time     `json:"started"`
	Elapsed  time.Duration `json:"elapsed"`
	Steps    []StepResult  `json:"steps"`
	// FailedStep is the step whose error stopped the pipeline.
	FailedStep string `json:"failed_step,omitempty"`
	// Error is the text of the first fatal error.
	Error string `json:"error,omitempty"`
	// Err is the first fatal error, nil if the pipeline finished or was stopped.
	Err error `json:"-"`
	// Stopped is set when the pipeline was stopped on request rather than finishing.
	Stopped bool `json:"stopped,omitempty"`
}

// Step returns the result of the named step.
func (r *Result) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// StepResult holds the counters of one step at the end of a run.
type StepResult struct {
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	State        State         `json:"state"`
	RowsRead     int64         `json:"rows_read"`
	RowsWritten  int64         `json:"rows_written"`
	RowsRejected int64         `json:"rows_rejected"`
	Elapsed      time.Duration `json:"elapsed"`
	Error        string        `json:"error,omitempty"`
}

// StepStats is a live view of an executing step.
type StepStats struct {
	Name         string
	Type         string
	State        State
	RowsRead     int64
	RowsWritten  int64
	RowsRejected int64
	Failed       bool
}

// Reporter receives the result of every pipeline run by a PipelineMaster.
type Reporter interface {
	Report(r *Result) error
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(r *Result) error

func (f ReporterFunc) Report(r *Result) error {
	return f(r)
}
