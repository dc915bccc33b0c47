// Package expvar provides expvar.Var types with typed access to their raw values.
// They back the counters kept by edges and executing steps.
package expvar

import (
	"bytes"
	"expvar"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

type IntVar interface {
	expvar.Var
	IntValue() int64
}

type StringVar interface {
	expvar.Var
	StringValue() string
}

// Int is a 64-bit integer variable that satisfies the expvar.Var interface.
type Int struct {
	i int64
}

func (v *Int) String() string {
	return strconv.FormatInt(v.IntValue(), 10)
}

func (v *Int) Add(delta int64) {
	atomic.AddInt64(&v.i, delta)
}

func (v *Int) Set(value int64) {
	atomic.StoreInt64(&v.i, value)
}

func (v *Int) IntValue() int64 {
	return atomic.LoadInt64(&v.i)
}

// IntFunc is an integer variable whose value is computed on read.
type IntFunc func() int64

func (f IntFunc) String() string {
	return strconv.FormatInt(f.IntValue(), 10)
}

func (f IntFunc) IntValue() int64 {
	if f == nil {
		return 0
	}
	return f()
}

// String is a string variable, and satisfies the expvar.Var interface.
type String struct {
	mu sync.RWMutex
	s  string
}

func (v *String) String() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return strconv.Quote(v.s)
}

func (v *String) Set(value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.s = value
}

func (v *String) StringValue() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.s
}

// Map is a string-to-expvar.Var map variable that satisfies the expvar.Var interface.
type Map struct {
	mu sync.RWMutex
	m  map[string]expvar.Var
}

func NewMap() *Map {
	return &Map{m: make(map[string]expvar.Var)}
}

func (v *Map) String() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "{")
	first := true
	v.DoSorted(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprintf(&b, ", ")
		}
		fmt.Fprintf(&b, "%q: %v", kv.Key, kv.Value)
		first = false
	})
	fmt.Fprintf(&b, "}")
	return b.String()
}

func (v *Map) Get(key string) expvar.Var {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.m[key]
}

func (v *Map) Set(key string, av expvar.Var) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m[key] = av
}

// Int returns the *Int stored under key, creating it when missing.
func (v *Map) Int(key string) *Int {
	v.mu.RLock()
	av, ok := v.m[key]
	v.mu.RUnlock()
	if !ok {
		// check again under the write lock
		v.mu.Lock()
		av, ok = v.m[key]
		if !ok {
			av = new(Int)
			v.m[key] = av
		}
		v.mu.Unlock()
	}
	iv, _ := av.(*Int)
	return iv
}

// IntValue returns the value of an integer var stored under key, or zero.
func (v *Map) IntValue(key string) int64 {
	if iv, ok := v.Get(key).(IntVar); ok {
		return iv.IntValue()
	}
	return 0
}

// DoSorted calls f for each entry in the map in sorted key order.
// The map is locked during the iteration,
// but existing entries may be concurrently updated.
func (v *Map) DoSorted(f func(expvar.KeyValue)) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.m))
	for key := range v.m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f(expvar.KeyValue{Key: k, Value: v.m[k]})
	}
}
