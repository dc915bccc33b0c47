package rowflow

import (
	"bufio"
	"encoding/csv"
	"os"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/models"
	"github.com/rowflow/rowflow/pipeline"
)

const CSVOutputType = "CSVOutput"

// CSVOutputOptions configures a step writing its input rows to a delimited text file.
type CSVOutputOptions struct {
	Filename  string `mapstructure:"filename"`
	Delimiter string `mapstructure:"delimiter"`
	// Header writes the field names as the first record. Defaults to true.
	Header *bool `mapstructure:"header"`
	// Append adds to an existing file instead of truncating it.
	Append bool `mapstructure:"append"`
}

type csvOutputMeta struct {
	CSVOutputOptions
	comma  rune
	header bool
}

func newCSVOutputMeta(def pipeline.StepDef) (TransformMeta, error) {
	m := &csvOutputMeta{comma: ',', header: true}
	if err := DecodeOptions(def.Options, &m.CSVOutputOptions); err != nil {
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
	return m, nil
}

func (m *csvOutputMeta) OutputSchema(in Inputs) (*models.RowSchema, error) {
	if in.Main == nil {
		return nil, errors.New("no input")
	}
	return in.Main, nil
}

func (m *csvOutputMeta) NewTransform() Transform {
	return &csvOutput{meta: m}
}

type csvOutput struct {
	meta *csvOutputMeta
	f    *os.File
	buf  *bufio.Writer
	w    *csv.Writer
}

func (c *csvOutput) Init(sc *StepContext) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if c.meta.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(c.meta.Filename, flags, 0644)
	if err != nil {
		return err
	}
	c.f = f
	c.buf = bufio.NewWriter(f)
	c.w = csv.NewWriter(c.buf)
	c.w.Comma = c.meta.comma
	if c.meta.header {
		if err := c.w.Write(sc.InputSchema().Names()); err != nil {
			return err
		}
	}
	return nil
}

func (c *csvOutput) ProcessRow(sc *StepContext) (Status, error) {
	r, ok, err := sc.GetRow()
	if err != nil {
		return Finished, err
	}
	if !ok {
		return Finished, c.flush()
	}
	record, err := sc.InputSchema().Strings(r)
	if err != nil {
		if err := sc.PutError(sc.InputSchema(), r, err); err != nil {
			return Finished, err
		}
		return Continue, nil
	}
	if err := c.w.Write(record); err != nil {
		return Finished, errors.Wrap(err, c.meta.Filename)
	}
	if err := sc.PutRow(r); err != nil {
		return Finished, err
	}
	return Continue, nil
}

func (c *csvOutput) flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	return c.buf.Flush()
}

func (c *csvOutput) Dispose(*StepContext) error {
	if c.f == nil {
		return nil
	}
	return c.f.Close()
}
