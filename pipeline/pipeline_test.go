package pipeline

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func def(hops ...HopDef) *Definition {
	names := map[string]bool{}
	d := &Definition{Name: "test"}
	for _, h := range hops {
		for _, n := range []string{h.From, h.To} {
			if !names[n] {
				names[n] = true
				d.Steps = append(d.Steps, StepDef{Name: n, Type: "Dummy"})
			}
		}
	}
	return d
}

func hop(from, to string) HopDef {
	return HopDef{From: from, To: to}
}

func withHops(d *Definition, hops ...HopDef) *Definition {
	d.Hops = hops
	return d
}

func graph(t *testing.T, hops ...HopDef) *Graph {
	t.Helper()
	g, err := NewGraph(withHops(def(hops...), hops...))
	require.NoError(t, err)
	return g
}

func TestGraph_Sort(t *testing.T) {
	g := graph(t,
		hop("src", "a"),
		hop("src", "b"),
		hop("a", "join"),
		hop("b", "join"),
		hop("join", "out"),
	)
	sorted, err := g.Sort()
	require.NoError(t, err)
	pos := make(map[string]int)
	for i, n := range sorted {
		pos[n] = i
	}
	assert.Len(t, sorted, 5)
	for _, h := range g.Definition().Hops {
		assert.Less(t, pos[h.From], pos[h.To], "%s must come before %s", h.From, h.To)
	}
}

func TestGraph_SortKeepsDefinitionOrder(t *testing.T) {
	d := &Definition{Steps: []StepDef{{Name: "x"}, {Name: "y"}, {Name: "z"}}}
	g, err := NewGraph(d)
	require.NoError(t, err)
	sorted, err := g.Sort()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, sorted)
}

func TestGraph_Cycle(t *testing.T) {
	g := graph(t, hop("a", "b"), hop("b", "c"), hop("c", "a"))
	_, err := g.Sort()
	require.Error(t, err)
	assert.Equal(t, ErrCycle, errors.Cause(err))
}

func TestNewGraph_Errors(t *testing.T) {
	testCases := map[string]*Definition{
		"empty": {},
		"duplicate step": {
			Steps: []StepDef{{Name: "a"}, {Name: "a"}},
		},
		"unknown step": {
			Steps: []StepDef{{Name: "a"}},
			Hops:  []HopDef{hop("a", "missing")},
		},
		"self loop": {
			Steps: []StepDef{{Name: "a"}},
			Hops:  []HopDef{hop("a", "a")},
		},
		"duplicate hop": {
			Steps: []StepDef{{Name: "a"}, {Name: "b"}},
			Hops:  []HopDef{hop("a", "b"), hop("a", "b")},
		},
		"two error hops": {
			Steps: []StepDef{{Name: "a"}, {Name: "b"}, {Name: "c"}},
			Hops:  []HopDef{{From: "a", To: "b", Error: true}, {From: "a", To: "c", Error: true}},
		},
		"negative capacity": {
			Steps: []StepDef{{Name: "a"}, {Name: "b"}},
			Hops:  []HopDef{{From: "a", To: "b", Capacity: -1}},
		},
	}
	for name, d := range testCases {
		d := d
		t.Run(name, func(t *testing.T) {
			_, err := NewGraph(d)
			assert.Error(t, err)
		})
	}
}

func TestGraph_CheckFullDrain(t *testing.T) {
	testCases := []struct {
		name string
		hops []HopDef
		info []string
		ok   bool
	}{
		{
			name: "independent inputs",
			hops: []HopDef{hop("lookup", "sl"), hop("data", "sl"), hop("sl", "out")},
			info: []string{"lookup"},
			ok:   true,
		},
		{
			name: "own output feeds the drained input",
			hops: []HopDef{hop("data", "sl"), hop("sl", "mid"), hop("mid", "lookup"), hop("lookup", "sl")},
			info: []string{"lookup"},
		},
		{
			name: "shared producer",
			hops: []HopDef{hop("src", "lookup"), hop("src", "data"), hop("lookup", "sl"), hop("data", "sl")},
			info: []string{"lookup"},
		},
		{
			name: "info step feeds main directly",
			hops: []HopDef{hop("lookup", "data"), hop("lookup", "sl"), hop("data", "sl")},
			info: []string{"lookup"},
		},
		{
			name: "not an input",
			hops: []HopDef{hop("lookup", "x"), hop("data", "sl")},
			info: []string{"lookup"},
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			g := graph(t, tc.hops...)
			err := g.CheckFullDrain("sl", tc.info)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func TestGraph_CheckFullDrain_Cause(t *testing.T) {
	g := graph(t, hop("data", "sl"), hop("sl", "lookup"), hop("lookup", "sl"))
	err := g.CheckFullDrain("sl", []string{"lookup"})
	require.Error(t, err)
	assert.Equal(t, ErrFullDrainDeadlock, errors.Cause(err))
}

func TestParse(t *testing.T) {
	data := []byte(`
name: lookup
steps:
  - name: lookup
    type: DataGrid
    options:
      fields:
        - name: Value
          type: String
  - name: sl
    type: StreamLookup
    options:
      lookup_step: lookup
hops:
  - from: lookup
    to: sl
    capacity: 10
  - from: sl
    to: errors
    error: true
`)
	d, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "lookup", d.Name)
	require.Len(t, d.Steps, 2)
	assert.Equal(t, "StreamLookup", d.Steps[1].Type)
	assert.Equal(t, "lookup", d.Steps[1].Options["lookup_step"])
	assert.Equal(t, HopDef{From: "lookup", To: "sl", Capacity: 10}, d.Hops[0])
	assert.True(t, d.Hops[1].Error)

	s, ok := d.Step("sl")
	assert.True(t, ok)
	assert.Equal(t, "sl", s.Name)
}

func TestParse_TextScalars(t *testing.T) {
	data := []byte(`
name: flags
steps:
  - name: grid
    type: DataGrid
    options:
      fields:
        - name: N
          type: String
        - name: on
          type: Boolean
      rows:
        - ["Y", true]
        - [yes, false]
        - [off, no]
`)
	d, err := Parse(data)
	require.NoError(t, err)
	opts := d.Steps[0].Options

	fields := opts["fields"].([]interface{})
	assert.Equal(t, "N", fields[0].(map[string]interface{})["name"])
	assert.Equal(t, "on", fields[1].(map[string]interface{})["name"])

	exp := []interface{}{
		[]interface{}{"Y", true},
		[]interface{}{"yes", false},
		[]interface{}{"off", "no"},
	}
	assert.Equal(t, exp, opts["rows"])
}

func TestParse_JSON(t *testing.T) {
	d, err := Parse([]byte(`{"name": "j", "steps": [{"name": "N", "type": "Dummy"}], "hops": []}`))
	require.NoError(t, err)
	assert.Equal(t, "j", d.Name)
	assert.Equal(t, "N", d.Steps[0].Name)
}

func TestGraph_Dot(t *testing.T) {
	g := graph(t, hop("a", "b"))
	dot := string(g.Dot())
	assert.True(t, strings.HasPrefix(dot, `digraph "test" {`))
	assert.Contains(t, dot, `"a" -> "b";`)
}
