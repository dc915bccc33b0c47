package rowflow

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/models"
	"github.com/rowflow/rowflow/pipeline"
)

const CollectorType = "Collector"

type collectorMeta struct{}

func newCollectorMeta(def pipeline.StepDef) (TransformMeta, error) {
	if err := DecodeOptions(def.Options, &struct{}{}); err != nil {
		return nil, err
	}
	return collectorMeta{}, nil
}

func (collectorMeta) OutputSchema(in Inputs) (*models.RowSchema, error) {
	if in.Main == nil {
		return nil, errors.New("no input")
	}
	return in.Main, nil
}

func (collectorMeta) NewTransform() Transform {
	return new(Collector)
}

// Collector keeps every row it reads in memory and forwards it to its outputs.
// Retrieve it with ExecutingPipeline.Transform once the pipeline is done.
type Collector struct {
	mu     sync.Mutex
	schema *models.RowSchema
	rows   []models.Row
}

func (c *Collector) Init(sc *StepContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schema = sc.InputSchema()
	c.rows = nil
	return nil
}

func (c *Collector) ProcessRow(sc *StepContext) (Status, error) {
	r, ok, err := sc.GetRow()
	if err != nil {
		return Finished, err
	}
	if !ok {
		return Finished, nil
	}
	c.mu.Lock()
	c.rows = append(c.rows, r)
	c.mu.Unlock()
	if err := sc.PutRow(r); err != nil {
		return Finished, err
	}
	return Continue, nil
}

func (c *Collector) Dispose(*StepContext) error {
	return nil
}

// Schema returns the schema of the collected rows.
func (c *Collector) Schema() *models.RowSchema {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schema
}

// Rows returns the rows collected so far, in arrival order.
func (c *Collector) Rows() []models.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := make([]models.Row, len(c.rows))
	copy(rows, c.rows)
	return rows
}

// NormalizedRows returns the collected rows with every value decoded.
func (c *Collector) NormalizedRows() ([]models.Row, error) {
	schema := c.Schema()
	rows := c.Rows()
	for i, r := range rows {
		n, err := schema.Normalize(r)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		rows[i] = n
	}
	return rows, nil
}
