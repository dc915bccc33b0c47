package rowflow

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/models"
	"github.com/rowflow/rowflow/pipeline"
)

const AbortType = "Abort"

// AbortOptions configures a step that fails the pipeline.
type AbortOptions struct {
	// Threshold is the number of rows passed through before failing.
	Threshold int64 `mapstructure:"threshold"`
	Message   string `mapstructure:"message"`
}

type abortMeta struct {
	AbortOptions
}

func newAbortMeta(def pipeline.StepDef) (TransformMeta, error) {
	m := &abortMeta{}
	if err := DecodeOptions(def.Options, &m.AbortOptions); err != nil {
		return nil, err
	}
	if m.Threshold < 0 {
		return nil, fmt.Errorf("threshold must be >= 0, got %d", m.Threshold)
	}
	if m.Message == "" {
		m.Message = "aborted"
	}
	return m, nil
}

func (m *abortMeta) OutputSchema(in Inputs) (*models.RowSchema, error) {
	if in.Main == nil {
		return nil, errors.New("no input")
	}
	return in.Main, nil
}

func (m *abortMeta) NewTransform() Transform {
	return &abort{meta: m}
}

type abort struct {
	meta *abortMeta
	seen int64
}

func (a *abort) Init(*StepContext) error {
	a.seen = 0
	return nil
}

func (a *abort) ProcessRow(sc *StepContext) (Status, error) {
	r, ok, err := sc.GetRow()
	if err != nil {
		return Finished, err
	}
	if !ok {
		return Finished, nil
	}
	a.seen++
	if a.seen > a.meta.Threshold {
		return Finished, fmt.Errorf("%s after %d rows", a.meta.Message, a.meta.Threshold)
	}
	if err := sc.PutRow(r); err != nil {
		return Finished, err
	}
	return Continue, nil
}

func (a *abort) Dispose(*StepContext) error {
	return nil
}
