package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultDateMask is the layout used to format and parse dates
// when a field carries no conversion mask.
const DefaultDateMask = "2006/01/02 15:04:05.000"

// ValueMeta describes one field of a RowSchema.
type ValueMeta struct {
	Name      string
	Type      ValueType
	Length    int
	Precision int
	// Mask is the conversion mask for the textual form of the value.
	// Only dates use it: it is a time layout.
	Mask    string
	Storage StorageType
	// StorageMeta describes how BinaryString bytes are decoded.
	// When nil the bytes are UTF-8 text formatted with Mask.
	StorageMeta *ValueMeta
	// Origin is the name of the step that introduced the field.
	Origin string
}

// NewValueMeta returns a field with normal storage.
func NewValueMeta(name string, typ ValueType) *ValueMeta {
	return &ValueMeta{
		Name:      name,
		Type:      typ,
		Length:    -1,
		Precision: -1,
	}
}

// Clone returns a deep copy of m.
func (m *ValueMeta) Clone() *ValueMeta {
	if m == nil {
		return nil
	}
	c := *m
	c.StorageMeta = m.StorageMeta.Clone()
	return &c
}

// IsLazy reports whether values are kept as undecoded bytes.
func (m *ValueMeta) IsLazy() bool {
	return m.Storage == StorageBinaryString
}

// WithStorage returns a clone of m using storage s.
// Switching to BinaryString attaches a String storage meta when none is set.
func (m *ValueMeta) WithStorage(s StorageType) *ValueMeta {
	c := m.Clone()
	c.Storage = s
	if s == StorageBinaryString && c.StorageMeta == nil {
		c.StorageMeta = &ValueMeta{Name: c.Name, Type: TypeString, Mask: c.Mask, Length: -1, Precision: -1}
	}
	return c
}

func (m *ValueMeta) String() string {
	s := fmt.Sprintf("%s %s", m.Name, m.Type)
	if m.Length >= 0 {
		if m.Precision >= 0 {
			s += fmt.Sprintf("(%d,%d)", m.Length, m.Precision)
		} else {
			s += fmt.Sprintf("(%d)", m.Length)
		}
	}
	if m.Storage != StorageNormal {
		s += "<" + m.Storage.String() + ">"
	}
	return s
}

func (m *ValueMeta) storageMask() string {
	if m.StorageMeta != nil && m.StorageMeta.Mask != "" {
		return m.StorageMeta.Mask
	}
	return m.Mask
}

// Normalize returns the decoded form of v as stored for this field.
// Normal values are returned unchanged, BinaryString values are parsed.
func (m *ValueMeta) Normalize(v interface{}) (interface{}, error) {
	if v == nil || m.Storage == StorageNormal {
		return v, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, conversionError(m, v, m.Type, fmt.Errorf("expected []byte for %s storage, got %T", m.Storage, v))
	}
	return parseText(m, string(b), m.Type, m.storageMask())
}

// ConvertToStorage returns normal value v in the representation
// this field's storage type requires.
func (m *ValueMeta) ConvertToStorage(v interface{}) (interface{}, error) {
	if v == nil || m.Storage == StorageNormal {
		return v, nil
	}
	if b, ok := v.([]byte); ok && m.Type != TypeBinary {
		// already encoded
		return b, nil
	}
	s, err := formatText(m, v, m.storageMask())
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Text returns the textual form of v, which is stored for this field.
func (m *ValueMeta) Text(v interface{}) (string, error) {
	n, err := m.Normalize(v)
	if err != nil {
		return "", err
	}
	if n == nil {
		return "", nil
	}
	return formatText(m, n, m.Mask)
}

// Compare orders two normal values of this field. Nulls sort first.
func (m *ValueMeta) Compare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case float64:
		if bv, ok := b.(float64); ok {
			// NaN sorts after every other number and only equals NaN.
			an, bn := math.IsNaN(av), math.IsNaN(bv)
			switch {
			case an || bn:
				switch {
				case an && bn:
					return 0
				case an:
					return 1
				}
				return -1
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			switch {
			case av.Before(bv):
				return -1
			case av.After(bv):
				return 1
			}
			return 0
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv)
		}
	}
	// Mismatched Go types only happen for badly typed rows; order them by type then text.
	ta, tb := fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)
	if ta != tb {
		return strings.Compare(ta, tb)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// ConvertData converts normal value v of field src into a normal value of field dst.
func ConvertData(src, dst *ValueMeta, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch dst.Type {
	case TypeNone:
		return v, nil
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return formatText(src, v, src.Mask)
	case TypeInteger:
		switch v := v.(type) {
		case int64:
			return v, nil
		case float64:
			i := int64(v)
			if float64(i) == v {
				return i, nil
			}
			return nil, conversionError(src, v, dst.Type, errors.New("number has a fractional part"))
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		case time.Time:
			return v.UnixNano() / int64(time.Millisecond), nil
		case string:
			return parseText(src, v, TypeInteger, dst.Mask)
		case []byte:
			return parseText(src, string(v), TypeInteger, dst.Mask)
		}
	case TypeNumber:
		switch v := v.(type) {
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		case bool:
			if v {
				return float64(1), nil
			}
			return float64(0), nil
		case time.Time:
			return float64(v.UnixNano() / int64(time.Millisecond)), nil
		case string:
			return parseText(src, v, TypeNumber, dst.Mask)
		case []byte:
			return parseText(src, string(v), TypeNumber, dst.Mask)
		}
	case TypeBoolean:
		switch v := v.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case float64:
			return v != 0, nil
		case string:
			return parseText(src, v, TypeBoolean, dst.Mask)
		case []byte:
			return parseText(src, string(v), TypeBoolean, dst.Mask)
		}
	case TypeDate:
		switch v := v.(type) {
		case time.Time:
			return v, nil
		case int64:
			return time.Unix(0, v*int64(time.Millisecond)).UTC(), nil
		case string:
			return parseText(src, v, TypeDate, dst.Mask)
		case []byte:
			return parseText(src, string(v), TypeDate, dst.Mask)
		}
	case TypeBinary:
		switch v := v.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
	}
	return nil, conversionError(src, v, dst.Type, fmt.Errorf("unsupported conversion of %T", v))
}

func parseText(m *ValueMeta, s string, typ ValueType, mask string) (interface{}, error) {
	if typ != TypeString && typ != TypeBinary && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	switch typ {
	case TypeString, TypeNone:
		return s, nil
	case TypeInteger:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, conversionError(m, s, typ, err)
		}
		return i, nil
	case TypeNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, conversionError(m, s, typ, err)
		}
		return f, nil
	case TypeBoolean:
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "Y", "YES", "TRUE", "1":
			return true, nil
		case "N", "NO", "FALSE", "0":
			return false, nil
		}
		return nil, conversionError(m, s, typ, errors.New("not a boolean"))
	case TypeDate:
		if mask == "" {
			mask = DefaultDateMask
		}
		t, err := time.Parse(mask, strings.TrimSpace(s))
		if err != nil {
			return nil, conversionError(m, s, typ, err)
		}
		return t, nil
	case TypeBinary:
		return []byte(s), nil
	}
	return nil, conversionError(m, s, typ, errors.New("unknown type"))
}

func formatText(m *ValueMeta, v interface{}, mask string) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		if v {
			return "Y", nil
		}
		return "N", nil
	case time.Time:
		if mask == "" {
			mask = DefaultDateMask
		}
		return v.Format(mask), nil
	case []byte:
		return string(v), nil
	}
	return "", conversionError(m, v, TypeString, fmt.Errorf("unsupported value %T", v))
}
