package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConversionError reports a value that could not be decoded or converted.
// It is a per-row error: the row can be routed elsewhere and processing continue.
type ConversionError struct {
	Field string
	Value interface{}
	From  ValueType
	To    ValueType
	Err   error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("field %q: cannot convert %v from %s to %s", e.Field, printable(e.Value), e.From, e.To)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Cause satisfies the causer interface used by errors.Cause.
func (e *ConversionError) Cause() error {
	return e.Err
}

// IsConversionError reports whether err, or any error it wraps, is a *ConversionError.
func IsConversionError(err error) bool {
	_, ok := AsConversionError(err)
	return ok
}

// AsConversionError unwraps err until a *ConversionError is found.
func AsConversionError(err error) (*ConversionError, bool) {
	for err != nil {
		if ce, ok := err.(*ConversionError); ok {
			return ce, true
		}
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			return nil, false
		}
		next := cause.Cause()
		if next == err {
			return nil, false
		}
		err = next
	}
	return nil, false
}

func printable(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return fmt.Sprintf("%q", b)
	}
	return v
}

func conversionError(m *ValueMeta, v interface{}, to ValueType, err error) error {
	return &ConversionError{
		Field: m.Name,
		Value: v,
		From:  m.Type,
		To:    to,
		Err:   errors.WithStack(err),
	}
}
