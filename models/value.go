package models

import (
	"fmt"
	"strings"
)

// ValueType is the logical type of a field.
type ValueType int

const (
	TypeNone ValueType = iota
	TypeString
	TypeInteger
	TypeNumber
	TypeBoolean
	TypeDate
	TypeBinary
)

func (t ValueType) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeString:
		return "String"
	case TypeInteger:
		return "Integer"
	case TypeNumber:
		return "Number"
	case TypeBoolean:
		return "Boolean"
	case TypeDate:
		return "Date"
	case TypeBinary:
		return "Binary"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// ParseValueType returns the type named by s, ignoring case.
// The empty string parses as TypeNone.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TypeNone, nil
	case "string":
		return TypeString, nil
	case "integer", "int":
		return TypeInteger, nil
	case "number", "float":
		return TypeNumber, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "date":
		return TypeDate, nil
	case "binary":
		return TypeBinary, nil
	}
	return TypeNone, fmt.Errorf("unknown value type %q", s)
}

// StorageType is the in-memory representation of a field's values.
type StorageType int

const (
	// StorageNormal values are decoded Go values of the field type.
	StorageNormal StorageType = iota
	// StorageBinaryString values are the undecoded textual form as []byte.
	// They are decoded on demand with the field's storage metadata.
	StorageBinaryString
)

func (s StorageType) String() string {
	switch s {
	case StorageNormal:
		return "normal"
	case StorageBinaryString:
		return "binary-string"
	default:
		return fmt.Sprintf("StorageType(%d)", int(s))
	}
}

func ParseStorageType(s string) (StorageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return StorageNormal, nil
	case "binary-string", "binary_string", "lazy", "binary":
		return StorageBinaryString, nil
	}
	return StorageNormal, fmt.Errorf("unknown storage type %q", s)
}
