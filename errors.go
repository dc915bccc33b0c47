package rowflow

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/edge"
	"github.com/rowflow/rowflow/models"
)

var (
	ErrPipelineMasterClosed = errors.New("pipeline master is closed")
	ErrPipelineMasterOpen   = errors.New("pipeline master is open")
	// errStopped is observed by a step when the pipeline is stopping between two rows.
	errStopped = errors.New("pipeline stopping")
)

// GraphError is a pipeline construction failure. The pipeline never started.
type GraphError struct {
	// Step is the offending step, empty for errors about the whole graph.
	Step string
	Err  error
}

func (e *GraphError) Error() string {
	if e.Step == "" {
		return "invalid pipeline: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid pipeline: step %q: %v", e.Step, e.Err)
}

func (e *GraphError) Cause() error {
	return e.Err
}

func graphError(step string, err error) error {
	return &GraphError{Step: step, Err: err}
}

// StepError is the failure of an executing step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Cause() error {
	return e.Err
}

// isCancellation reports whether err only says that the pipeline is being stopped.
func isCancellation(err error) bool {
	switch errors.Cause(err) {
	case edge.ErrCancelled, errStopped, context.Canceled:
		return true
	}
	return false
}

// Fields appended to rows sent on an error hop.
const (
	ErrorCountField       = "error_count"
	ErrorDescriptionField = "error_description"
	ErrorFieldsField      = "error_fields"
	ErrorCodeField        = "error_code"

	ErrorCodeConversion = "CONVERSION"
	ErrorCodeGeneric    = "ERROR"
)

// errorSchema extends base with the fields of info it lacks, then with the error description fields.
func errorSchema(base *models.RowSchema, info ...*models.RowSchema) (*models.RowSchema, error) {
	var s *models.RowSchema
	if base == nil {
		s = models.NewRowSchema()
	} else {
		s = base.Clone()
	}
	for _, is := range info {
		for _, f := range is.Fields() {
			if s.IndexOf(f.Name) >= 0 {
				continue
			}
			if err := s.Add(f.Clone()); err != nil {
				return nil, errors.Wrap(err, "error hop")
			}
		}
	}
	for _, f := range []*models.ValueMeta{
		models.NewValueMeta(ErrorCountField, models.TypeInteger),
		models.NewValueMeta(ErrorDescriptionField, models.TypeString),
		models.NewValueMeta(ErrorFieldsField, models.TypeString),
		models.NewValueMeta(ErrorCodeField, models.TypeString),
	} {
		if err := s.Add(f); err != nil {
			return nil, errors.Wrap(err, "error hop")
		}
	}
	return s, nil
}

// errorRow projects r, described by from, onto the data fields of the error schema
// and fills in the error fields. Fields missing from r are null.
func errorRow(to *models.RowSchema, from *models.RowSchema, r models.Row, rowErr error) models.Row {
	out := make(models.Row, to.Len())
	data := to.Len() - 4
	for i := 0; i < data; i++ {
		dst := to.Field(i)
		j := from.IndexOf(dst.Name)
		if j < 0 || j >= len(r) {
			continue
		}
		if src := from.Field(j); src.Type == dst.Type && src.Storage == dst.Storage {
			out[i] = r[j]
			continue
		}
		out[i] = convertValue(from.Field(j), dst, r[j])
	}
	code := ErrorCodeGeneric
	var fields string
	if ce, ok := models.AsConversionError(rowErr); ok {
		code = ErrorCodeConversion
		fields = ce.Field
	}
	out[data] = int64(1)
	out[data+1] = rowErr.Error()
	out[data+2] = fields
	out[data+3] = code
	return out
}

// convertValue moves a stored value between two fields, returning null when it does not fit.
func convertValue(src, dst *models.ValueMeta, v interface{}) interface{} {
	n, err := src.Normalize(v)
	if err != nil {
		return nil
	}
	n, err = models.ConvertData(src, dst, n)
	if err != nil {
		return nil
	}
	s, err := dst.ConvertToStorage(n)
	if err != nil {
		return nil
	}
	return s
}
