package rowflow

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/rowflow/rowflow/edge"
	"github.com/rowflow/rowflow/models"
)

// StepContext is a transform's only access to the pipeline:
// its own input and output edges, their schemas and its diagnostics.
type StepContext struct {
	n *node
}

func (sc *StepContext) Name() string {
	return sc.n.name
}

// Pipeline returns the name of the executing pipeline.
func (sc *StepContext) Pipeline() string {
	return sc.n.pe.def.Name
}

func (sc *StepContext) RunID() string {
	return sc.n.pe.id
}

// Context is cancelled once the pipeline is stopping.
func (sc *StepContext) Context() context.Context {
	return sc.n.pe.ctx
}

func (sc *StepContext) Clock() clock.Clock {
	return sc.n.pe.clock
}

func (sc *StepContext) Diag() NodeDiagnostic {
	return sc.n.diag
}

// InputSchema returns the schema of the main input rows, nil for steps without main inputs.
func (sc *StepContext) InputSchema() *models.RowSchema {
	return sc.n.inSchema
}

// InfoSchema returns the schema of the rows read from the named info step.
func (sc *StepContext) InfoSchema(step string) *models.RowSchema {
	return sc.n.infoSchemas[step]
}

func (sc *StepContext) OutputSchema() *models.RowSchema {
	return sc.n.outSchema
}

// HasErrorHandling reports whether the step has an error hop.
func (sc *StepContext) HasErrorHandling() bool {
	return sc.n.errOut != nil
}

// GetRow reads the next row from the main inputs.
// It returns ok == false once every main input is done.
// Rows of different inputs interleave in no particular order.
func (sc *StepContext) GetRow() (row models.Row, ok bool, err error) {
	n := sc.n
	switch len(n.ins) {
	case 0:
		return nil, false, nil
	case 1:
		row, ok, err = n.ins[0].Get()
	default:
		if n.merged == nil {
			n.merged = edge.NewMerged(n.ins)
		}
		row, ok, err = n.merged.Get()
	}
	if ok {
		n.rowsRead.Add(1)
	}
	return
}

// GetRowFrom reads the next row sent by the named info step.
func (sc *StepContext) GetRowFrom(step string) (models.Row, bool, error) {
	in, ok := sc.n.info[step]
	if !ok {
		return nil, false, fmt.Errorf("%q is not an info input of %q", step, sc.n.name)
	}
	row, ok, err := in.Get()
	if ok {
		sc.n.rowsRead.Add(1)
	}
	return row, ok, err
}

// PutRow sends r to every output. r must match OutputSchema and must not be modified afterwards.
func (sc *StepContext) PutRow(r models.Row) error {
	n := sc.n
	if len(r) != n.outSchema.Len() {
		return fmt.Errorf("row has %d values, output schema has %d fields", len(r), n.outSchema.Len())
	}
	for _, out := range n.outs {
		if err := out.Put(r); err != nil {
			return err
		}
	}
	n.rowsWritten.Add(1)
	return nil
}

// PutError reports a per-row failure of r, described by schema.
// With an error hop the row is sent there, extended with the error fields, and nil is returned.
// The error hop holds the main input fields followed by the info input fields the main input lacks.
// r is matched to them by name, so a row read from an info input keeps its own fields.
// Without one rowErr is returned and the step is expected to fail with it.
func (sc *StepContext) PutError(schema *models.RowSchema, r models.Row, rowErr error) error {
	n := sc.n
	if n.errOut == nil {
		return rowErr
	}
	n.rowsRejected.Add(1)
	n.diag.RowRejected(rowErr)
	return n.errOut.Put(errorRow(n.errSchema, schema, r, rowErr))
}
