package pipeline

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	yamlv3 "gopkg.in/yaml.v3"
)

// Definition is the static description of a pipeline: its steps and the hops between them.
type Definition struct {
	Name  string    `json:"name"`
	Steps []StepDef `json:"steps"`
	Hops  []HopDef  `json:"hops"`
}

// StepDef names a step, the transform type implementing it and its options.
// Options are decoded by the transform plugin registered for Type.
type StepDef struct {
	Name    string                 `json:"name"`
	Type    string                 `json:"type"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// HopDef is a directed edge from the output of one step to the input of another.
type HopDef struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Capacity is the number of rows the edge buffers.
	// Zero selects the pipeline default.
	Capacity int `json:"capacity,omitempty"`
	// Error marks the hop as the error output of From.
	// Rows failing per-row conversion are sent on it.
	Error bool `json:"error,omitempty"`
}

// Step returns the definition of the named step.
func (d *Definition) Step(name string) (StepDef, bool) {
	for _, s := range d.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepDef{}, false
}

// Load reads a YAML or JSON pipeline definition.
func Load(r io.Reader) (*Definition, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read pipeline definition")
	}
	return Parse(data)
}

// Parse decodes a YAML or JSON pipeline definition.
// Plain scalars are resolved with YAML 1.2 rules, so only true and false are
// booleans and words such as N, yes or off stay text.
func Parse(data []byte) (*Definition, error) {
	var doc interface{}
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode pipeline definition")
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "decode pipeline definition")
	}
	def := new(Definition)
	if err := yaml.Unmarshal(js, def); err != nil {
		return nil, errors.Wrap(err, "decode pipeline definition")
	}
	return def, nil
}

// LoadFile reads a pipeline definition from path.
// A definition without a name is named after the file.
func LoadFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	def, err := Load(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if def.Name == "" {
		def.Name = path
	}
	return def, nil
}

// Marshal encodes d as YAML.
func (d *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}
