package models

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	keyNull byte = iota
	keyString
	keyInteger
	keyNumber
	keyBoolean
	keyDate
	keyBinary
)

// AppendKey appends an unambiguous encoding of normal value v to buf.
// Equal values always produce equal encodings, so the result can be hashed
// or compared bytewise to test composite key equality. All NaNs encode alike.
func AppendKey(buf []byte, v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return append(buf, keyNull), nil
	case string:
		buf = append(buf, keyString)
		buf = appendUvarint(buf, uint64(len(v)))
		return append(buf, v...), nil
	case int64:
		buf = append(buf, keyInteger)
		return appendUint64(buf, uint64(v)), nil
	case float64:
		switch {
		case v == 0:
			// -0 == +0
			v = 0
		case math.IsNaN(v):
			v = math.NaN()
		}
		buf = append(buf, keyNumber)
		return appendUint64(buf, math.Float64bits(v)), nil
	case bool:
		buf = append(buf, keyBoolean)
		if v {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case time.Time:
		buf = append(buf, keyDate)
		buf = appendUint64(buf, uint64(v.Unix()))
		return appendUint64(buf, uint64(v.Nanosecond())), nil
	case []byte:
		buf = append(buf, keyBinary)
		buf = appendUvarint(buf, uint64(len(v)))
		return append(buf, v...), nil
	}
	return buf, fmt.Errorf("cannot use %T as a key value", v)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendUvarint(buf []byte, v uint64) []byte {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	return append(buf, b[:n]...)
}
