package rowflow

import (
	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/models"
	"github.com/rowflow/rowflow/pipeline"
)

const DummyType = "Dummy"

type dummyMeta struct{}

// newDummyMeta builds a step that passes every row through unchanged.
func newDummyMeta(def pipeline.StepDef) (TransformMeta, error) {
	if err := DecodeOptions(def.Options, &struct{}{}); err != nil {
		return nil, err
	}
	return dummyMeta{}, nil
}

func (dummyMeta) OutputSchema(in Inputs) (*models.RowSchema, error) {
	if in.Main == nil {
		return nil, errors.New("no input")
	}
	return in.Main, nil
}

func (dummyMeta) NewTransform() Transform {
	return dummy{}
}

type dummy struct{}

func (dummy) Init(*StepContext) error {
	return nil
}

func (dummy) ProcessRow(sc *StepContext) (Status, error) {
	r, ok, err := sc.GetRow()
	if err != nil {
		return Finished, err
	}
	if !ok {
		return Finished, nil
	}
	if err := sc.PutRow(r); err != nil {
		return Finished, err
	}
	return Continue, nil
}

func (dummy) Dispose(*StepContext) error {
	return nil
}
