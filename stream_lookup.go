package rowflow

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/keyvalue"
	"github.com/rowflow/rowflow/models"
	"github.com/rowflow/rowflow/pipeline"
)

const StreamLookupType = "StreamLookup"

// ErrIndexNotReady is returned when a stream lookup is asked to probe
// before its lookup input has been read to the end.
var ErrIndexNotReady = errors.New("lookup index is not ready")

// LookupKey pairs a key field of the lookup rows with the field of the main rows it is matched against.
type LookupKey struct {
	Lookup string `mapstructure:"lookup"`
	Stream string `mapstructure:"stream"`
}

// LookupValue is a field of the lookup rows appended to every main row.
type LookupValue struct {
	Name string `mapstructure:"name"`
	// Rename is the output field name, Name when empty.
	Rename string `mapstructure:"rename"`
	// Default is the literal used when no lookup row matches. Empty means null.
	Default string `mapstructure:"default"`
	// DefaultType is the output type of the field, the lookup field type when empty.
	DefaultType string `mapstructure:"default_type"`
}

func (v LookupValue) outputName() string {
	if v.Rename != "" {
		return v.Rename
	}
	return v.Name
}

// StreamLookupOptions configures a stream lookup step.
type StreamLookupOptions struct {
	// LookupStep produces the rows the index is built from.
	LookupStep string        `mapstructure:"lookup_step"`
	Keys       []LookupKey   `mapstructure:"keys"`
	Values     []LookupValue `mapstructure:"values"`
	// SortedList keeps the index in a B-tree instead of a hash map.
	SortedList bool `mapstructure:"sorted_list"`
	// IntegerPair packs a key of exactly two integer fields into one 64 bit value.
	IntegerPair bool `mapstructure:"integer_pair"`
	// MemoryPreservation deep copies every value row kept by the index.
	MemoryPreservation bool `mapstructure:"memory_preservation"`
}

type streamLookupMeta struct {
	StreamLookupOptions
	name         string
	defaultTypes []models.ValueType
}

func newStreamLookupMeta(def pipeline.StepDef) (TransformMeta, error) {
	m := &streamLookupMeta{name: def.Name}
	if err := DecodeOptions(def.Options, &m.StreamLookupOptions); err != nil {
		return nil, err
	}
	if m.LookupStep == "" {
		return nil, errors.New("lookup_step is required")
	}
	if m.LookupStep == def.Name {
		return nil, errors.New("a step cannot look up its own rows")
	}
	if m.IntegerPair && m.SortedList {
		return nil, errors.New("integer_pair and sorted_list are exclusive")
	}
	if m.IntegerPair && len(m.Keys) != 2 {
		return nil, errors.Errorf("integer_pair needs exactly 2 key fields, got %d", len(m.Keys))
	}
	for i, k := range m.Keys {
		if k.Lookup == "" || k.Stream == "" {
			return nil, errors.Errorf("key %d: lookup and stream fields are required", i)
		}
	}
	m.defaultTypes = make([]models.ValueType, len(m.Values))
	for i, v := range m.Values {
		if v.Name == "" {
			return nil, errors.Errorf("value %d: name is required", i)
		}
		if v.DefaultType == "" {
			continue
		}
		t, err := models.ParseValueType(v.DefaultType)
		if err != nil {
			return nil, errors.Wrapf(err, "value %q", v.Name)
		}
		m.defaultTypes[i] = t
	}
	return m, nil
}

func (m *streamLookupMeta) InfoSteps() []string {
	return []string{m.LookupStep}
}

// OutputSchema appends the looked up value fields to the main input fields.
func (m *streamLookupMeta) OutputSchema(in Inputs) (*models.RowSchema, error) {
	if in.Main == nil {
		return nil, errors.New("no main input")
	}
	lookup, ok := in.Info[m.LookupStep]
	if !ok {
		return nil, fmt.Errorf("lookup step %q is not an input", m.LookupStep)
	}
	for _, k := range m.Keys {
		lf := lookup.Search(k.Lookup)
		if lf == nil {
			return nil, fmt.Errorf("key field %q not found in lookup rows", k.Lookup)
		}
		if in.Main.IndexOf(k.Stream) < 0 {
			return nil, fmt.Errorf("key field %q not found in main rows", k.Stream)
		}
		if m.IntegerPair && lf.Type != models.TypeInteger {
			return nil, fmt.Errorf("integer_pair key field %q is %s, not Integer", k.Lookup, lf.Type)
		}
	}
	values := models.NewRowSchema()
	for i, v := range m.Values {
		lf := lookup.Search(v.Name)
		if lf == nil {
			return nil, fmt.Errorf("value field %q not found in lookup rows", v.Name)
		}
		out := lf.Clone()
		out.Name = v.outputName()
		out.Origin = m.name
		if t := m.defaultTypes[i]; t != models.TypeNone {
			out.Type = t
		}
		if err := values.Add(out); err != nil {
			return nil, err
		}
	}
	return in.Main.Merge(values)
}

func (m *streamLookupMeta) NewTransform() Transform {
	return &streamLookup{meta: m}
}

type lookupState int

const (
	lookupUninitialized lookupState = iota
	lookupBuilding
	lookupReady
	lookupProbing
	lookupDone
)

func (s lookupState) String() string {
	switch s {
	case lookupUninitialized:
		return "uninitialized"
	case lookupBuilding:
		return "building"
	case lookupReady:
		return "ready"
	case lookupProbing:
		return "probing"
	case lookupDone:
		return "done"
	}
	return "unknown"
}

type lookupKeyField struct {
	lookupIdx int
	streamIdx int
	lookup    *models.ValueMeta
	stream    *models.ValueMeta
}

type lookupValueField struct {
	lookupIdx int
	// lookup is the decoded form of the lookup field
	lookup *models.ValueMeta
	out    *models.ValueMeta
	// def is the stored default, defErr why it could not be computed
	def    interface{}
	defErr error
}

type streamLookup struct {
	meta  *streamLookupMeta
	state lookupState

	lookupSchema *models.RowSchema
	keys         []lookupKeyField
	values       []lookupValueField
	index        lookupIndex
	built        int
}

func (t *streamLookup) Init(sc *StepContext) error {
	m := t.meta
	main := sc.InputSchema()
	t.lookupSchema = sc.InfoSchema(m.LookupStep)
	if t.lookupSchema == nil {
		return fmt.Errorf("lookup step %q is not an input", m.LookupStep)
	}
	out := sc.OutputSchema()

	t.keys = make([]lookupKeyField, len(m.Keys))
	keyMetas := make([]*models.ValueMeta, len(m.Keys))
	for i, k := range m.Keys {
		f := lookupKeyField{
			lookupIdx: t.lookupSchema.IndexOf(k.Lookup),
			streamIdx: main.IndexOf(k.Stream),
		}
		f.lookup = t.lookupSchema.Field(f.lookupIdx)
		f.stream = main.Field(f.streamIdx)
		t.keys[i] = f
		keyMetas[i] = f.lookup.WithStorage(models.StorageNormal)
	}

	t.values = make([]lookupValueField, len(m.Values))
	for i, v := range m.Values {
		idx := t.lookupSchema.IndexOf(v.Name)
		f := lookupValueField{
			lookupIdx: idx,
			lookup:    t.lookupSchema.Field(idx).WithStorage(models.StorageNormal),
			out:       out.Field(main.Len() + i),
		}
		f.def, f.defErr = defaultValue(f.out, v.Default)
		t.values[i] = f
	}

	switch {
	case m.IntegerPair:
		t.index = newIntegerPairIndex()
	case m.SortedList:
		t.index = newSortedIndex(keyMetas)
	default:
		t.index = newHashIndex()
	}
	t.state = lookupUninitialized
	return nil
}

// defaultValue converts the default literal of a value field to its stored form.
func defaultValue(out *models.ValueMeta, literal string) (interface{}, error) {
	if literal == "" {
		return nil, nil
	}
	text := models.NewValueMeta(out.Name, models.TypeString)
	v, err := models.ConvertData(text, out, literal)
	if err != nil {
		return nil, errors.Wrap(err, "default")
	}
	return out.ConvertToStorage(v)
}

func (t *streamLookup) ProcessRow(sc *StepContext) (Status, error) {
	switch t.state {
	case lookupUninitialized:
		t.state = lookupBuilding
		sc.Diag().Debug("building lookup index", keyvalue.KV("lookup_step", t.meta.LookupStep))
		fallthrough
	case lookupBuilding:
		return t.build(sc)
	case lookupReady:
		t.state = lookupProbing
		fallthrough
	case lookupProbing:
		return t.probe(sc)
	case lookupDone:
		return Finished, nil
	}
	return Finished, errors.Wrapf(ErrIndexNotReady, "state %s", t.state)
}

// build adds one lookup row to the index.
func (t *streamLookup) build(sc *StepContext) (Status, error) {
	r, ok, err := sc.GetRowFrom(t.meta.LookupStep)
	if err != nil {
		return Finished, err
	}
	if !ok {
		t.state = lookupReady
		sc.Diag().Debug("lookup index ready", keyvalue.KV("rows", strconv.Itoa(t.built)), keyvalue.KV("keys", strconv.Itoa(t.index.len())))
		return Idle, nil
	}
	key, value, err := t.entry(r)
	if err == nil {
		err = t.index.put(key, value)
	}
	if err != nil {
		if err := sc.PutError(t.lookupSchema, r, err); err != nil {
			return Finished, err
		}
		return Idle, nil
	}
	t.built++
	return Idle, nil
}

// entry decodes the key and value fields of a lookup row.
func (t *streamLookup) entry(r models.Row) (key, value models.Row, err error) {
	key = make(models.Row, len(t.keys))
	for i, k := range t.keys {
		if key[i], err = k.lookup.Normalize(r[k.lookupIdx]); err != nil {
			return nil, nil, err
		}
	}
	value = make(models.Row, len(t.values))
	for i, v := range t.values {
		if value[i], err = t.lookupSchema.Field(v.lookupIdx).Normalize(r[v.lookupIdx]); err != nil {
			return nil, nil, err
		}
	}
	if t.meta.MemoryPreservation {
		if value, err = value.DeepCopy(); err != nil {
			return nil, nil, err
		}
	}
	return key, value, nil
}

// probe joins one main row with the index.
func (t *streamLookup) probe(sc *StepContext) (Status, error) {
	r, ok, err := sc.GetRow()
	if err != nil {
		return Finished, err
	}
	if !ok {
		t.state = lookupDone
		return Finished, nil
	}
	out, err := t.join(r)
	if err != nil {
		if err := sc.PutError(sc.InputSchema(), r, err); err != nil {
			return Finished, err
		}
		return Continue, nil
	}
	if err := sc.PutRow(out); err != nil {
		return Finished, err
	}
	return Continue, nil
}

func (t *streamLookup) join(r models.Row) (models.Row, error) {
	key := make(models.Row, len(t.keys))
	for i, k := range t.keys {
		v, err := k.stream.Normalize(r[k.streamIdx])
		if err != nil {
			return nil, err
		}
		if key[i], err = models.ConvertData(k.stream, k.lookup, v); err != nil {
			return nil, err
		}
	}
	value, found, err := t.index.get(key)
	if err != nil {
		return nil, err
	}
	out := r.Copy(len(t.values))
	for i, v := range t.values {
		if !found {
			if v.defErr != nil {
				return nil, v.defErr
			}
			out = append(out, v.def)
			continue
		}
		c, err := models.ConvertData(v.lookup, v.out, value[i])
		if err != nil {
			return nil, err
		}
		if c, err = v.out.ConvertToStorage(c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *streamLookup) Dispose(*StepContext) error {
	t.index = nil
	return nil
}
