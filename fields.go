package rowflow

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/models"
)

// FieldOptions declares one field of a step that produces rows from scratch.
type FieldOptions struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	Length    int    `mapstructure:"length"`
	Precision int    `mapstructure:"precision"`
	// Mask is the date layout used to read and write the field as text.
	Mask string `mapstructure:"mask"`
	// Storage is "normal" or "binary-string".
	Storage string `mapstructure:"storage"`
}

// ValueMeta returns the field described by o, attributed to step origin.
func (o FieldOptions) ValueMeta(origin string) (*models.ValueMeta, error) {
	if o.Name == "" {
		return nil, errors.New("field name must not be empty")
	}
	typ := models.TypeString
	if o.Type != "" {
		var err error
		if typ, err = models.ParseValueType(o.Type); err != nil {
			return nil, errors.Wrapf(err, "field %q", o.Name)
		}
	}
	m := models.NewValueMeta(o.Name, typ)
	if o.Length > 0 {
		m.Length = o.Length
	}
	if o.Precision > 0 {
		m.Precision = o.Precision
	}
	m.Mask = o.Mask
	m.Origin = origin
	if o.Storage != "" {
		s, err := models.ParseStorageType(o.Storage)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", o.Name)
		}
		m = m.WithStorage(s)
	}
	return m, nil
}

func fieldsSchema(origin string, fields []FieldOptions) (*models.RowSchema, error) {
	if len(fields) == 0 {
		return nil, errors.New("no fields")
	}
	s := models.NewRowSchema()
	for i, f := range fields {
		m, err := f.ValueMeta(origin)
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i)
		}
		if err := s.Add(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// literalRow converts text literals into a row stored as schema requires.
// A nil literal is a null value.
func literalRow(schema *models.RowSchema, literals []interface{}) (models.Row, error) {
	if len(literals) != schema.Len() {
		return nil, fmt.Errorf("%d values for %d fields", len(literals), schema.Len())
	}
	text := models.NewValueMeta("", models.TypeString)
	r := make(models.Row, len(literals))
	for i, l := range literals {
		f := schema.Field(i)
		text.Name = f.Name
		text.Mask = f.Mask
		v, err := models.ConvertData(text, f, l)
		if err != nil {
			return nil, err
		}
		if r[i], err = f.ConvertToStorage(v); err != nil {
			return nil, err
		}
	}
	return r, nil
}
