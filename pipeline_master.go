package rowflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rowflow/rowflow/pipeline"
)

// DefaultEdgeCapacity is the number of rows a hop buffers when its definition sets no capacity.
const DefaultEdgeCapacity = 10000

// PipelineMaster builds and runs pipelines.
// It owns the step registry, the clock and the reporters that receive every result.
type PipelineMaster struct {
	// Unique id for this pipeline master instance
	id string

	Registry *Registry
	Clock    clock.Clock
	// DefaultEdgeCapacity is used for hops without a capacity.
	DefaultEdgeCapacity int
	// Reporters receive the result of every finished pipeline.
	Reporters []Reporter

	diag Diagnostic

	mu      sync.RWMutex
	opened  bool
	closed  bool
	running map[string]*ExecutingPipeline
	wg      sync.WaitGroup
}

// NewPipelineMaster creates a master using registry to resolve step types.
// A nil registry means the built-in steps only.
func NewPipelineMaster(id string, registry *Registry, d Diagnostic) *PipelineMaster {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	if d == nil {
		d = NopDiagnostic{}
	}
	return &PipelineMaster{
		id:                  id,
		Registry:            registry,
		Clock:               clock.New(),
		DefaultEdgeCapacity: DefaultEdgeCapacity,
		diag:                d,
		running:             make(map[string]*ExecutingPipeline),
	}
}

func (pm *PipelineMaster) ID() string {
	return pm.id
}

func (pm *PipelineMaster) Open() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.opened {
		return ErrPipelineMasterOpen
	}
	if pm.closed {
		return ErrPipelineMasterClosed
	}
	pm.opened = true
	pm.diag.PipelineMasterOpened()
	return nil
}

// Close stops every running pipeline and waits for them to finish.
func (pm *PipelineMaster) Close() error {
	pm.mu.Lock()
	if pm.closed || !pm.opened {
		pm.mu.Unlock()
		return nil
	}
	pm.closed = true
	running := make([]*ExecutingPipeline, 0, len(pm.running))
	for _, pe := range pm.running {
		running = append(running, pe)
	}
	pm.mu.Unlock()

	for _, pe := range running {
		pe.requestStop()
	}
	pm.wg.Wait()
	pm.diag.PipelineMasterClosed()
	return nil
}

// NewExecutingPipeline validates def and wires its graph without starting it.
// Any error is a *GraphError.
func (pm *PipelineMaster) NewExecutingPipeline(def *pipeline.Definition) (*ExecutingPipeline, error) {
	pm.mu.RLock()
	closed := pm.closed
	pm.mu.RUnlock()
	if closed {
		return nil, ErrPipelineMasterClosed
	}
	return newExecutingPipeline(pm, def)
}

// StartPipeline builds def and starts it.
// Construction errors are returned before any step runs.
func (pm *PipelineMaster) StartPipeline(ctx context.Context, def *pipeline.Definition) (*ExecutingPipeline, error) {
	pe, err := pm.NewExecutingPipeline(def)
	if err != nil {
		return nil, err
	}

	pm.mu.Lock()
	if pm.closed || !pm.opened {
		pm.mu.Unlock()
		return nil, ErrPipelineMasterClosed
	}
	pm.running[pe.id] = pe
	pm.wg.Add(1)
	pm.mu.Unlock()

	if err := pe.Start(ctx); err != nil {
		pm.mu.Lock()
		delete(pm.running, pe.id)
		pm.mu.Unlock()
		pm.wg.Done()
		return nil, err
	}
	return pe, nil
}

// Run starts def and blocks until it reached a terminal state.
func (pm *PipelineMaster) Run(ctx context.Context, def *pipeline.Definition) (*Result, error) {
	pe, err := pm.StartPipeline(ctx, def)
	if err != nil {
		return nil, err
	}
	return pe.Wait()
}

// Running returns the pipelines currently executing.
func (pm *PipelineMaster) Running() []*ExecutingPipeline {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	running := make([]*ExecutingPipeline, 0, len(pm.running))
	for _, pe := range pm.running {
		running = append(running, pe)
	}
	return running
}

// pipelineFinished is called once by every pipeline when its result is final.
func (pm *PipelineMaster) pipelineFinished(pe *ExecutingPipeline) {
	pm.report(pe.result)
	pm.mu.Lock()
	_, tracked := pm.running[pe.id]
	delete(pm.running, pe.id)
	pm.mu.Unlock()
	if tracked {
		pm.wg.Done()
	}
}

func (pm *PipelineMaster) report(r *Result) {
	for i, rep := range pm.Reporters {
		if err := rep.Report(r); err != nil {
			pm.diag.ReportFailed(fmt.Sprintf("%T#%d", rep, i), err)
		}
	}
}
