package rowflow_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowflow/rowflow"
	"github.com/rowflow/rowflow/models"
	"github.com/rowflow/rowflow/pipeline"
)

func field(name, typ, storage string) map[string]interface{} {
	return map[string]interface{}{
		"name":    name,
		"type":    typ,
		"storage": storage,
	}
}

func grid(fields []map[string]interface{}, rows ...[]interface{}) map[string]interface{} {
	fs := make([]interface{}, len(fields))
	for i, f := range fields {
		fs[i] = f
	}
	return map[string]interface{}{
		"fields": fs,
		"rows":   rows,
	}
}

func storage(binary bool) string {
	if binary {
		return "binary-string"
	}
	return "normal"
}

// lookupPipeline joins the rows of step "Data" with the rows of step "Lookup".
func lookupPipeline(lookup, data, options map[string]interface{}) *pipeline.Definition {
	options["lookup_step"] = "Lookup"
	return &pipeline.Definition{
		Name: "stream_lookup",
		Steps: []pipeline.StepDef{
			{Name: "Lookup", Type: rowflow.DataGridType, Options: lookup},
			{Name: "Data", Type: rowflow.DataGridType, Options: data},
			{Name: "Stream lookup", Type: rowflow.StreamLookupType, Options: options},
			{Name: "Output", Type: rowflow.CollectorType},
		},
		Hops: []pipeline.HopDef{
			{From: "Lookup", To: "Stream lookup"},
			{From: "Data", To: "Stream lookup"},
			{From: "Stream lookup", To: "Output"},
		},
	}
}

func collected(t *testing.T, pe *rowflow.ExecutingPipeline, step string) []models.Row {
	t.Helper()
	c, ok := pe.Transform(step).(*rowflow.Collector)
	require.True(t, ok, "%s is not a collector", step)
	rows, err := c.NormalizedRows()
	require.NoError(t, err)
	return rows
}

func runPipeline(t *testing.T, pm *rowflow.PipelineMaster, def *pipeline.Definition) (*rowflow.ExecutingPipeline, *rowflow.Result, error) {
	t.Helper()
	pe, err := pm.StartPipeline(context.Background(), def)
	require.NoError(t, err)
	r, err := pe.Wait()
	return pe, r, err
}

func TestStreamLookup_Storage(t *testing.T) {
	want := []models.Row{
		{"Name1", "1", "Value1"},
		{"Name2", "2", "Value2"},
	}
	for _, strategy := range []string{"hash", "sorted"} {
		for _, binaryLookup := range []bool{false, true} {
			for _, binaryData := range []bool{false, true} {
				for _, preserve := range []bool{false, true} {
					name := fmt.Sprintf("%s/lookup_binary=%v/data_binary=%v/memory_preservation=%v", strategy, binaryLookup, binaryData, preserve)
					t.Run(name, func(t *testing.T) {
						pm := newPipelineMaster(t)
						lookup := grid([]map[string]interface{}{
							field("Value", "String", storage(binaryLookup)),
							field("Id", "String", storage(binaryLookup)),
						}, []interface{}{"Value1", "1"}, []interface{}{"Value2", "2"})
						data := grid([]map[string]interface{}{
							field("Name", "String", storage(binaryData)),
							field("Id", "String", storage(binaryData)),
						}, []interface{}{"Name1", "1"}, []interface{}{"Name2", "2"})
						options := map[string]interface{}{
							"keys":                []interface{}{map[string]interface{}{"lookup": "Id", "stream": "Id"}},
							"values":              []interface{}{map[string]interface{}{"name": "Value"}},
							"sorted_list":         strategy == "sorted",
							"memory_preservation": preserve,
						}
						pe, r, err := runPipeline(t, pm, lookupPipeline(lookup, data, options))
						require.NoError(t, err)

						got := collected(t, pe, "Output")
						if !cmp.Equal(want, got) {
							t.Fatalf("unexpected rows -want/+got:\n%s\n%s", cmp.Diff(want, got), spew.Sdump(got))
						}
						schema, ok := pe.Schema("Stream lookup")
						require.True(t, ok)
						assert.Equal(t, []string{"Name", "Id", "Value"}, schema.Names())
						assert.Equal(t, binaryLookup, schema.Field(2).IsLazy())

						s, ok := r.Step("Stream lookup")
						require.True(t, ok)
						assert.Equal(t, rowflow.StateFinished, s.State)
						assert.Equal(t, int64(4), s.RowsRead)
						assert.Equal(t, int64(2), s.RowsWritten)
					})
				}
			}
		}
	}
}

func TestStreamLookup_MissAndDefaults(t *testing.T) {
	pm := newPipelineMaster(t)
	lookup := grid([]map[string]interface{}{
		field("Id", "Integer", ""),
		field("Label", "String", ""),
		field("Score", "String", ""),
		field("Note", "String", ""),
	}, []interface{}{"1", "one", "10", "first"})
	data := grid([]map[string]interface{}{
		field("Id", "String", "binary-string"),
	}, []interface{}{"1"}, []interface{}{"7"}, []interface{}{nil})
	options := map[string]interface{}{
		"keys": []interface{}{map[string]interface{}{"lookup": "Id", "stream": "Id"}},
		"values": []interface{}{
			map[string]interface{}{"name": "Label", "default": "unknown"},
			map[string]interface{}{"name": "Score", "default": "42", "default_type": "Integer"},
			map[string]interface{}{"name": "Note", "rename": "Comment"},
		},
	}
	pe, _, err := runPipeline(t, pm, lookupPipeline(lookup, data, options))
	require.NoError(t, err)

	want := []models.Row{
		{"1", "one", int64(10), "first"},
		{"7", "unknown", int64(42), nil},
		{nil, "unknown", int64(42), nil},
	}
	got := collected(t, pe, "Output")
	if !cmp.Equal(want, got) {
		t.Fatalf("unexpected rows -want/+got:\n%s", cmp.Diff(want, got))
	}
	schema, _ := pe.Schema("Stream lookup")
	assert.Equal(t, []string{"Id", "Label", "Score", "Comment"}, schema.Names())
	assert.Equal(t, models.TypeInteger, schema.Field(2).Type)
	assert.Equal(t, "Stream lookup", schema.Field(3).Origin)
}

func TestStreamLookup_DuplicateKeysLastWins(t *testing.T) {
	for _, sorted := range []bool{false, true} {
		t.Run(fmt.Sprintf("sorted=%v", sorted), func(t *testing.T) {
			pm := newPipelineMaster(t)
			lookup := grid([]map[string]interface{}{
				field("Id", "String", ""),
				field("Value", "String", ""),
			}, []interface{}{"1", "first"}, []interface{}{"2", "other"}, []interface{}{"1", "last"})
			data := grid([]map[string]interface{}{
				field("Id", "String", ""),
			}, []interface{}{"1"}, []interface{}{"2"})
			options := map[string]interface{}{
				"keys":        []interface{}{map[string]interface{}{"lookup": "Id", "stream": "Id"}},
				"values":      []interface{}{map[string]interface{}{"name": "Value"}},
				"sorted_list": sorted,
			}
			pe, _, err := runPipeline(t, pm, lookupPipeline(lookup, data, options))
			require.NoError(t, err)
			want := []models.Row{{"1", "last"}, {"2", "other"}}
			if got := collected(t, pe, "Output"); !cmp.Equal(want, got) {
				t.Fatalf("unexpected rows -want/+got:\n%s", cmp.Diff(want, got))
			}
		})
	}
}

func TestStreamLookup_IntegerPair(t *testing.T) {
	pm := newPipelineMaster(t)
	lookup := grid([]map[string]interface{}{
		field("A", "Integer", ""),
		field("B", "Integer", ""),
		field("Value", "String", ""),
	},
		[]interface{}{"1", "2", "small"},
		[]interface{}{"-1", "2147483647", "edge"},
		[]interface{}{"4294967296", "1", "wide"},
		[]interface{}{nil, "1", "null"},
	)
	data := grid([]map[string]interface{}{
		field("X", "Integer", "binary-string"),
		field("Y", "String", ""),
	},
		[]interface{}{"1", "2"},
		[]interface{}{"-1", "2147483647"},
		[]interface{}{"4294967296", "1"},
		[]interface{}{nil, "1"},
		[]interface{}{"2", "1"},
	)
	options := map[string]interface{}{
		"keys": []interface{}{
			map[string]interface{}{"lookup": "A", "stream": "X"},
			map[string]interface{}{"lookup": "B", "stream": "Y"},
		},
		"values":       []interface{}{map[string]interface{}{"name": "Value", "default": "none"}},
		"integer_pair": true,
	}
	pe, _, err := runPipeline(t, pm, lookupPipeline(lookup, data, options))
	require.NoError(t, err)
	want := []models.Row{
		{int64(1), "2", "small"},
		{int64(-1), "2147483647", "edge"},
		{int64(4294967296), "1", "wide"},
		{nil, "1", "null"},
		{int64(2), "1", "none"},
	}
	if got := collected(t, pe, "Output"); !cmp.Equal(want, got) {
		t.Fatalf("unexpected rows -want/+got:\n%s", cmp.Diff(want, got))
	}
}

func TestStreamLookup_IntegerPairRequiresIntegers(t *testing.T) {
	pm := newPipelineMaster(t)
	lookup := grid([]map[string]interface{}{
		field("A", "Integer", ""),
		field("B", "String", ""),
	})
	data := grid([]map[string]interface{}{
		field("A", "Integer", ""),
		field("B", "String", ""),
	})
	options := map[string]interface{}{
		"keys": []interface{}{
			map[string]interface{}{"lookup": "A", "stream": "A"},
			map[string]interface{}{"lookup": "B", "stream": "B"},
		},
		"integer_pair": true,
	}
	_, err := pm.NewExecutingPipeline(lookupPipeline(lookup, data, options))
	require.Error(t, err)
	var gerr *rowflow.GraphError
	require.True(t, errors.As(err, &gerr), "%T", err)
	assert.Equal(t, "Stream lookup", gerr.Step)
}

func TestStreamLookup_NoKeys(t *testing.T) {
	pm := newPipelineMaster(t)
	lookup := grid([]map[string]interface{}{
		field("Value", "String", ""),
	}, []interface{}{"first"}, []interface{}{"last"})
	data := grid([]map[string]interface{}{
		field("Name", "String", ""),
	}, []interface{}{"a"}, []interface{}{"b"})
	options := map[string]interface{}{
		"values": []interface{}{map[string]interface{}{"name": "Value"}},
	}
	pe, _, err := runPipeline(t, pm, lookupPipeline(lookup, data, options))
	require.NoError(t, err)
	want := []models.Row{{"a", "last"}, {"b", "last"}}
	if got := collected(t, pe, "Output"); !cmp.Equal(want, got) {
		t.Fatalf("unexpected rows -want/+got:\n%s", cmp.Diff(want, got))
	}
}

func badDefaultPipeline(errorHop bool) *pipeline.Definition {
	lookup := grid([]map[string]interface{}{
		field("Id", "String", ""),
		field("Value", "String", ""),
	}, []interface{}{"1", "10"})
	data := grid([]map[string]interface{}{
		field("Id", "String", ""),
	}, []interface{}{"1"}, []interface{}{"2"}, []interface{}{"1"})
	options := map[string]interface{}{
		"keys": []interface{}{map[string]interface{}{"lookup": "Id", "stream": "Id"}},
		"values": []interface{}{
			map[string]interface{}{"name": "Value", "default": "abc", "default_type": "Integer"},
		},
	}
	def := lookupPipeline(lookup, data, options)
	if errorHop {
		def.Steps = append(def.Steps, pipeline.StepDef{Name: "Errors", Type: rowflow.CollectorType})
		def.Hops = append(def.Hops, pipeline.HopDef{From: "Stream lookup", To: "Errors", Error: true})
	}
	return def
}

func TestStreamLookup_ConversionErrorFails(t *testing.T) {
	pm := newPipelineMaster(t)
	_, r, err := runPipeline(t, pm, badDefaultPipeline(false))
	require.Error(t, err)
	assert.True(t, models.IsConversionError(err), "%v", err)
	assert.Equal(t, "Stream lookup", r.FailedStep)
	s, _ := r.Step("Stream lookup")
	assert.Equal(t, rowflow.StateFailed, s.State)
}

func TestStreamLookup_ConversionErrorRouted(t *testing.T) {
	pm := newPipelineMaster(t)
	pe, r, err := runPipeline(t, pm, badDefaultPipeline(true))
	require.NoError(t, err)

	want := []models.Row{{"1", int64(10)}, {"1", int64(10)}}
	if got := collected(t, pe, "Output"); !cmp.Equal(want, got) {
		t.Fatalf("unexpected rows -want/+got:\n%s", cmp.Diff(want, got))
	}
	errs := collected(t, pe, "Errors")
	require.Len(t, errs, 1)
	schema, _ := pe.Schema("Errors")
	assert.Equal(t, []string{"Id", "Value", rowflow.ErrorCountField, rowflow.ErrorDescriptionField, rowflow.ErrorFieldsField, rowflow.ErrorCodeField}, schema.Names())
	assert.Equal(t, "2", errs[0][0])
	assert.Nil(t, errs[0][1])
	assert.Equal(t, int64(1), errs[0][2])
	assert.Equal(t, "Value", errs[0][4])
	assert.Equal(t, rowflow.ErrorCodeConversion, errs[0][5])

	s, _ := r.Step("Stream lookup")
	assert.Equal(t, int64(2), s.RowsWritten)
	assert.Equal(t, int64(1), s.RowsRejected)
}

func TestStreamLookup_LookupRowRejected(t *testing.T) {
	in := writeFile(t, "lookup.csv", "id,value\n1,Value1\nx,Broken\n")
	pm := newPipelineMaster(t)
	lookup := map[string]interface{}{
		"filename": in,
		"fields": []interface{}{
			map[string]interface{}{"name": "Id", "type": "Integer"},
			map[string]interface{}{"name": "Value", "type": "String"},
		},
		"lazy_conversion": true,
	}
	data := grid([]map[string]interface{}{
		field("Id", "Integer", ""),
	}, []interface{}{"1"}, []interface{}{"2"})
	options := map[string]interface{}{
		"keys":   []interface{}{map[string]interface{}{"lookup": "Id", "stream": "Id"}},
		"values": []interface{}{map[string]interface{}{"name": "Value"}},
	}
	def := lookupPipeline(lookup, data, options)
	def.Steps[0].Type = rowflow.CSVInputType
	def.Steps = append(def.Steps, pipeline.StepDef{Name: "Errors", Type: rowflow.CollectorType})
	def.Hops = append(def.Hops, pipeline.HopDef{From: "Stream lookup", To: "Errors", Error: true})

	pe, r, err := runPipeline(t, pm, def)
	require.NoError(t, err)

	want := []models.Row{{int64(1), "Value1"}, {int64(2), nil}}
	if got := collected(t, pe, "Output"); !cmp.Equal(want, got) {
		t.Fatalf("unexpected rows -want/+got:\n%s", cmp.Diff(want, got))
	}
	errs := collected(t, pe, "Errors")
	require.Len(t, errs, 1)
	schema, _ := pe.Schema("Errors")
	assert.Equal(t, []string{"Id", "Value", rowflow.ErrorCountField, rowflow.ErrorDescriptionField, rowflow.ErrorFieldsField, rowflow.ErrorCodeField}, schema.Names())
	// The key does not decode, the lookup only field is kept.
	assert.Nil(t, errs[0][0])
	assert.Equal(t, "Broken", errs[0][1])
	assert.Equal(t, "Id", errs[0][4])
	assert.Equal(t, rowflow.ErrorCodeConversion, errs[0][5])

	s, _ := r.Step("Stream lookup")
	assert.Equal(t, int64(1), s.RowsRejected)
	assert.Equal(t, int64(2), s.RowsWritten)
}

func TestStreamLookup_LookupNotAnInput(t *testing.T) {
	pm := newPipelineMaster(t)
	def := &pipeline.Definition{
		Name: "p",
		Steps: []pipeline.StepDef{
			{Name: "Data", Type: rowflow.DataGridType, Options: grid([]map[string]interface{}{field("Id", "String", "")})},
			{Name: "Lookup", Type: rowflow.DataGridType, Options: grid([]map[string]interface{}{field("Id", "String", "")})},
			{Name: "Stream lookup", Type: rowflow.StreamLookupType, Options: map[string]interface{}{"lookup_step": "Lookup"}},
		},
		Hops: []pipeline.HopDef{
			{From: "Data", To: "Stream lookup"},
		},
	}
	_, err := pm.NewExecutingPipeline(def)
	require.Error(t, err)
	var gerr *rowflow.GraphError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "Stream lookup", gerr.Step)
}

func TestStreamLookup_UnknownOption(t *testing.T) {
	pm := newPipelineMaster(t)
	def := lookupPipeline(
		grid([]map[string]interface{}{field("Id", "String", "")}),
		grid([]map[string]interface{}{field("Id", "String", "")}),
		map[string]interface{}{"hash_size": 10},
	)
	_, err := pm.NewExecutingPipeline(def)
	assert.Error(t, err)
}
