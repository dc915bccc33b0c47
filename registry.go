package rowflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnknownStepType is returned when no plugin is registered for a step type.
var ErrUnknownStepType = errors.New("unknown step type")

// Registry maps step types to the plugins that implement them.
// Registries are plain values: every PipelineMaster is given its own.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
	}
}

// NewDefaultRegistry returns a registry holding the built-in transforms.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(DataGridType, newDataGridMeta)
	r.MustRegister(DummyType, newDummyMeta)
	r.MustRegister(CollectorType, newCollectorMeta)
	r.MustRegister(AbortType, newAbortMeta)
	r.MustRegister(CSVInputType, newCSVInputMeta)
	r.MustRegister(CSVOutputType, newCSVOutputMeta)
	r.MustRegister(StreamLookupType, newStreamLookupMeta)
	return r
}

func (r *Registry) Register(typ string, p Plugin) error {
	if typ == "" {
		return errors.New("step type must not be empty")
	}
	if p == nil {
		return fmt.Errorf("nil plugin for step type %q", typ)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[typ]; ok {
		return fmt.Errorf("step type %q already registered", typ)
	}
	r.plugins[typ] = p
	return nil
}

func (r *Registry) MustRegister(typ string, p Plugin) {
	if err := r.Register(typ, p); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(typ string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[typ]
	if !ok {
		return nil, errors.Wrap(ErrUnknownStepType, typ)
	}
	return p, nil
}

// Types returns the registered step types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.plugins))
	for t := range r.plugins {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
