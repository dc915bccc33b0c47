package rowflow

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/models"
	"github.com/rowflow/rowflow/pipeline"
)

// Status is the outcome of one call to Transform.ProcessRow.
type Status int

const (
	// Continue means a row was handled and the step wants to be called again.
	Continue Status = iota
	// Idle means no row was handled this cycle, e.g. the step is still buffering.
	Idle
	// Finished means the step has no more work. Its outputs are marked done.
	Finished
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Idle:
		return "idle"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// Transform is the business logic of a step.
// The runtime calls Init once, ProcessRow until it reports Finished or an error,
// and Dispose exactly once on every exit path, including failures and stops.
// All three calls happen on the step's own goroutine.
type Transform interface {
	Init(sc *StepContext) error
	ProcessRow(sc *StepContext) (Status, error)
	Dispose(sc *StepContext) error
}

// Inputs are the schemas flowing into a step.
type Inputs struct {
	Step string
	// Main is the schema shared by all main inputs, nil when the step has none.
	Main *models.RowSchema
	// Info holds the schema of each info input by producing step.
	Info map[string]*models.RowSchema
}

// TransformMeta is the configured, not yet running form of a step.
type TransformMeta interface {
	// OutputSchema derives the schema of the step's output from its inputs.
	// It is called once while the pipeline is built, before any row flows,
	// and must not have side effects.
	OutputSchema(in Inputs) (*models.RowSchema, error)
	// NewTransform returns fresh runtime state for one execution.
	NewTransform() Transform
}

// FullDrainer is implemented by steps that read some inputs to their end
// before reading other inputs or producing any output.
type FullDrainer interface {
	// InfoSteps names the producing steps whose rows are fully drained.
	InfoSteps() []string
}

// Plugin builds the metadata of a step from its definition.
type Plugin func(def pipeline.StepDef) (TransformMeta, error)

// DecodeOptions decodes free form step options into out.
// Values are weakly typed so "10" decodes into an int; unknown keys are an error.
// A boolean is never turned into text.
func DecodeOptions(options map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncKind(rejectBoolText),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return errors.Wrap(dec.Decode(options), "invalid options")
}

func rejectBoolText(from, to reflect.Kind, data interface{}) (interface{}, error) {
	if from == reflect.Bool && to == reflect.String {
		return nil, fmt.Errorf("boolean %v where text is expected, quote the value", data)
	}
	return data, nil
}
