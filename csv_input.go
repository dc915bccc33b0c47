package rowflow

import (
	"encoding/csv"
	"io"
	"os"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/models"
	"github.com/rowflow/rowflow/pipeline"
)

const CSVInputType = "CSVInput"

// CSVInputOptions configures a step reading rows from a delimited text file.
type CSVInputOptions struct {
	Filename  string `mapstructure:"filename"`
	Delimiter string `mapstructure:"delimiter"`
	// Header is true when the first record holds field names. Defaults to true.
	Header *bool          `mapstructure:"header"`
	Fields []FieldOptions `mapstructure:"fields"`
	// LazyConversion keeps every field as undecoded bytes.
	LazyConversion bool `mapstructure:"lazy_conversion"`
}

type csvInputMeta struct {
	CSVInputOptions
	comma  rune
	header bool
	schema *models.RowSchema
	// text describes the raw records, used for rows routed to the error hop.
	text *models.RowSchema
}

func newCSVInputMeta(def pipeline.StepDef) (TransformMeta, error) {
	m := &csvInputMeta{comma: ',', header: true}
	if err := DecodeOptions(def.Options, &m.CSVInputOptions); err != nil {
		return nil, err
	}
	if m.Filename == "" {
		return nil, errors.New("filename is required")
	}
	if m.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(m.Delimiter)
		if size != len(m.Delimiter) {
			return nil, errors.Errorf("delimiter must be a single character, got %q", m.Delimiter)
		}
		m.comma = r
	}
	if m.Header != nil {
		m.header = *m.Header
	}
	schema, err := fieldsSchema(def.Name, m.Fields)
	if err != nil {
		return nil, err
	}
	m.schema = models.NewRowSchema()
	m.text = models.NewRowSchema()
	for _, f := range schema.Fields() {
		if m.LazyConversion {
			f = f.WithStorage(models.StorageBinaryString)
		}
		if err := m.schema.Add(f); err != nil {
			return nil, err
		}
		t := models.NewValueMeta(f.Name, models.TypeString)
		t.Origin = def.Name
		if err := m.text.Add(t); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *csvInputMeta) OutputSchema(in Inputs) (*models.RowSchema, error) {
	if in.Main != nil {
		return nil, errors.New("a CSV input takes no input")
	}
	return m.schema, nil
}

func (m *csvInputMeta) NewTransform() Transform {
	return &csvInput{meta: m}
}

type csvInput struct {
	meta *csvInputMeta
	f    *os.File
	r    *csv.Reader
	line int
}

func (c *csvInput) Init(sc *StepContext) error {
	f, err := os.Open(c.meta.Filename)
	if err != nil {
		return err
	}
	c.f = f
	c.r = csv.NewReader(f)
	c.r.Comma = c.meta.comma
	c.r.FieldsPerRecord = c.meta.schema.Len()
	// Records are copied into rows, so the reader may reuse its buffers.
	c.r.ReuseRecord = true
	if c.meta.header {
		if _, err := c.r.Read(); err != nil && err != io.EOF {
			return errors.Wrap(err, "header")
		}
		c.line++
	}
	return nil
}

func (c *csvInput) ProcessRow(sc *StepContext) (Status, error) {
	record, err := c.r.Read()
	if err == io.EOF {
		return Finished, nil
	}
	if err != nil {
		return Finished, errors.Wrap(err, c.meta.Filename)
	}
	c.line++
	schema := c.meta.schema
	r := make(models.Row, schema.Len())
	if c.meta.LazyConversion {
		for i, s := range record {
			r[i] = []byte(s)
		}
	} else {
		text := c.meta.text
		for i, s := range record {
			v, err := models.ConvertData(text.Field(i), schema.Field(i), s)
			if err != nil {
				raw := make(models.Row, len(record))
				for j, s := range record {
					raw[j] = s
				}
				err = errors.Wrapf(err, "line %d", c.line)
				if err := sc.PutError(text, raw, err); err != nil {
					return Finished, err
				}
				return Continue, nil
			}
			r[i] = v
		}
	}
	if err := sc.PutRow(r); err != nil {
		return Finished, err
	}
	return Continue, nil
}

func (c *csvInput) Dispose(*StepContext) error {
	if c.f == nil {
		return nil
	}
	return c.f.Close()
}
