package models

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// RowSchema is the ordered field description shared by every row on one edge.
// A schema is frozen once it is attached to an edge; use Clone to derive a new one.
type RowSchema struct {
	fields []*ValueMeta
	index  map[string]int
}

// NewRowSchema returns a schema of the given fields.
// It panics on duplicate names, use Add to check instead.
func NewRowSchema(fields ...*ValueMeta) *RowSchema {
	s := &RowSchema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if err := s.Add(f); err != nil {
			panic(err)
		}
	}
	return s
}

// Add appends a field. Names must be unique within a schema.
func (s *RowSchema) Add(m *ValueMeta) error {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[m.Name]; ok {
		return fmt.Errorf("duplicate field %q", m.Name)
	}
	s.index[m.Name] = len(s.fields)
	s.fields = append(s.fields, m)
	return nil
}

func (s *RowSchema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

func (s *RowSchema) Field(i int) *ValueMeta {
	return s.fields[i]
}

// Fields returns the field list. Callers must not modify it.
func (s *RowSchema) Fields() []*ValueMeta {
	return s.fields
}

// IndexOf returns the position of the named field or -1.
func (s *RowSchema) IndexOf(name string) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Search returns the named field or nil.
func (s *RowSchema) Search(name string) *ValueMeta {
	i := s.IndexOf(name)
	if i < 0 {
		return nil
	}
	return s.fields[i]
}

func (s *RowSchema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Clone returns a deep copy that can be extended.
func (s *RowSchema) Clone() *RowSchema {
	c := &RowSchema{
		fields: make([]*ValueMeta, len(s.fields)),
		index:  make(map[string]int, len(s.fields)),
	}
	for i, f := range s.fields {
		c.fields[i] = f.Clone()
		c.index[f.Name] = i
	}
	return c
}

// Compatible returns an error unless o has the same field names and types in the same order.
// Storage types may differ.
func (s *RowSchema) Compatible(o *RowSchema) error {
	if s.Len() != o.Len() {
		return fmt.Errorf("field count differs: %d != %d", s.Len(), o.Len())
	}
	for i, f := range s.fields {
		g := o.fields[i]
		if f.Name != g.Name {
			return fmt.Errorf("field %d name differs: %q != %q", i, f.Name, g.Name)
		}
		if f.Type != g.Type {
			return fmt.Errorf("field %q type differs: %s != %s", f.Name, f.Type, g.Type)
		}
	}
	return nil
}

// Normalize returns a new row holding the decoded form of every value of r.
func (s *RowSchema) Normalize(r Row) (Row, error) {
	if len(r) < len(s.fields) {
		return nil, fmt.Errorf("row has %d values, schema has %d fields", len(r), len(s.fields))
	}
	n := make(Row, len(s.fields))
	for i, f := range s.fields {
		v, err := f.Normalize(r[i])
		if err != nil {
			return nil, err
		}
		n[i] = v
	}
	return n, nil
}

// Strings renders r as text using each field's textual form.
func (s *RowSchema) Strings(r Row) ([]string, error) {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		t, err := f.Text(r[i])
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i)
		}
		out[i] = t
	}
	return out, nil
}

func (s *RowSchema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Equal reports whether o has the same field names and types in the same order.
func (s *RowSchema) Equal(o *RowSchema) bool {
	return s.Compatible(o) == nil
}

// Merge returns a new schema holding the fields of s followed by the fields of o.
func (s *RowSchema) Merge(o *RowSchema) (*RowSchema, error) {
	var m *RowSchema
	if s == nil {
		m = NewRowSchema()
	} else {
		m = s.Clone()
	}
	for i := 0; i < o.Len(); i++ {
		if err := m.Add(o.Field(i).Clone()); err != nil {
			return nil, err
		}
	}
	return m, nil
}
