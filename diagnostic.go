package rowflow

import (
	"github.com/rowflow/rowflow/keyvalue"
)

type Diagnostic interface {
	WithPipelineContext(pipeline, runID string) PipelineDiagnostic

	PipelineMasterOpened()
	PipelineMasterClosed()

	ReportFailed(reporter string, err error)
}

type PipelineDiagnostic interface {
	WithStepContext(step string) NodeDiagnostic

	StartingPipeline()
	StartedPipeline(steps int)
	StoppingPipeline()
	FinishedPipeline(r *Result)

	Error(msg string, err error, ctx ...keyvalue.T)
}

type NodeDiagnostic interface {
	StateChanged(from, to State)
	RowRejected(err error)

	Error(msg string, err error, ctx ...keyvalue.T)
	Info(msg string, ctx ...keyvalue.T)
	Debug(msg string, ctx ...keyvalue.T)
}

// NopDiagnostic discards every event.
type NopDiagnostic struct{}

func (NopDiagnostic) WithPipelineContext(string, string) PipelineDiagnostic { return NopDiagnostic{} }
func (NopDiagnostic) WithStepContext(string) NodeDiagnostic                 { return NopDiagnostic{} }
func (NopDiagnostic) PipelineMasterOpened()                                 {}
func (NopDiagnostic) PipelineMasterClosed()                                 {}
func (NopDiagnostic) ReportFailed(string, error)                            {}
func (NopDiagnostic) StartingPipeline()                                     {}
func (NopDiagnostic) StartedPipeline(int)                                   {}
func (NopDiagnostic) StoppingPipeline()                                     {}
func (NopDiagnostic) FinishedPipeline(*Result)                              {}
func (NopDiagnostic) StateChanged(State, State)                             {}
func (NopDiagnostic) RowRejected(error)                                     {}
func (NopDiagnostic) Error(string, error, ...keyvalue.T)                    {}
func (NopDiagnostic) Info(string, ...keyvalue.T)                            {}
func (NopDiagnostic) Debug(string, ...keyvalue.T)                           {}
