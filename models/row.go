package models

import (
	"github.com/mitchellh/copystructure"
	"github.com/pkg/errors"
)

// Row is one tuple of values, index aligned to a RowSchema.
// A nil element is a null value.
// Rows are not modified once they have been put on an edge.
type Row []interface{}

// Copy returns a shallow copy of r with room for extra more values.
func (r Row) Copy(extra int) Row {
	c := make(Row, len(r), len(r)+extra)
	copy(c, r)
	return c
}

// DeepCopy returns a copy of r that shares no backing storage with it,
// including the contents of []byte values.
func (r Row) DeepCopy() (Row, error) {
	if r == nil {
		return nil, nil
	}
	c, err := copystructure.Copy(r)
	if err != nil {
		return nil, errors.Wrap(err, "copy row")
	}
	return c.(Row), nil
}

// EqualRows reports whether two rows hold the same values once both are decoded.
// Storage representation is not observable through EqualRows.
func EqualRows(sa *RowSchema, a Row, sb *RowSchema, b Row) (bool, error) {
	if sa.Len() != sb.Len() {
		return false, nil
	}
	na, err := sa.Normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := sb.Normalize(b)
	if err != nil {
		return false, err
	}
	for i, f := range sa.fields {
		if f.Compare(na[i], nb[i]) != 0 {
			return false, nil
		}
	}
	return true, nil
}
