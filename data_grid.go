package rowflow

import (
	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/models"
	"github.com/rowflow/rowflow/pipeline"
)

const DataGridType = "DataGrid"

// DataGridOptions configures a step emitting a fixed set of rows.
type DataGridOptions struct {
	Fields []FieldOptions `mapstructure:"fields"`
	// Rows hold one text literal per field. A null literal is a null value.
	Rows [][]interface{} `mapstructure:"rows"`
}

type dataGridMeta struct {
	name   string
	schema *models.RowSchema
	rows   []models.Row
}

func newDataGridMeta(def pipeline.StepDef) (TransformMeta, error) {
	var o DataGridOptions
	if err := DecodeOptions(def.Options, &o); err != nil {
		return nil, err
	}
	schema, err := fieldsSchema(def.Name, o.Fields)
	if err != nil {
		return nil, err
	}
	m := &dataGridMeta{
		name:   def.Name,
		schema: schema,
		rows:   make([]models.Row, len(o.Rows)),
	}
	for i, literals := range o.Rows {
		if m.rows[i], err = literalRow(schema, literals); err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
	}
	return m, nil
}

func (m *dataGridMeta) OutputSchema(in Inputs) (*models.RowSchema, error) {
	if in.Main != nil {
		return nil, errors.New("a data grid takes no input")
	}
	return m.schema, nil
}

func (m *dataGridMeta) NewTransform() Transform {
	return &dataGrid{meta: m}
}

type dataGrid struct {
	meta *dataGridMeta
	next int
}

func (g *dataGrid) Init(*StepContext) error {
	g.next = 0
	return nil
}

func (g *dataGrid) ProcessRow(sc *StepContext) (Status, error) {
	if g.next >= len(g.meta.rows) {
		return Finished, nil
	}
	// Rows are shared across runs, which is fine as nothing modifies a row once put.
	r := g.meta.rows[g.next]
	g.next++
	if err := sc.PutRow(r); err != nil {
		return Finished, err
	}
	return Continue, nil
}

func (g *dataGrid) Dispose(*StepContext) error {
	return nil
}
