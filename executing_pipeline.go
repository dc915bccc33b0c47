package rowflow

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/edge"
	"github.com/rowflow/rowflow/models"
	"github.com/rowflow/rowflow/pipeline"
)

// ExecutingPipeline is a pipeline whose graph has been validated and wired.
// Every step runs on its own goroutine once Start is called.
type ExecutingPipeline struct {
	pm    *PipelineMaster
	def   *pipeline.Definition
	graph *pipeline.Graph
	id    string
	diag  PipelineDiagnostic
	clock clock.Clock

	// nodes in topological order
	nodes  []*node
	lookup map[string]*node
	edges  []edge.Edge

	ctx       context.Context
	cancelCtx context.CancelFunc

	startOnce     sync.Once
	started       time.Time
	stopOnce      sync.Once
	stopCh        chan struct{}
	runCh         chan struct{}
	inits         chan struct{}
	dones         chan nodeResult
	stopRequested int32

	finished chan struct{}
	result   *Result
}

type nodeResult struct {
	name string
	err  error
}

func newExecutingPipeline(pm *PipelineMaster, def *pipeline.Definition) (*ExecutingPipeline, error) {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	pe := &ExecutingPipeline{
		pm:        pm,
		def:       def,
		id:        id,
		diag:      pm.diag.WithPipelineContext(def.Name, id),
		clock:     pm.Clock,
		lookup:    make(map[string]*node, len(def.Steps)),
		ctx:       ctx,
		cancelCtx: cancel,
		stopCh:    make(chan struct{}),
		runCh:     make(chan struct{}),
		finished:  make(chan struct{}),
	}
	if err := pe.link(); err != nil {
		cancel()
		return nil, err
	}
	pe.inits = make(chan struct{}, len(pe.nodes))
	pe.dones = make(chan nodeResult, len(pe.nodes))
	return pe, nil
}

// link validates the graph, infers every schema and wires the edges.
func (pe *ExecutingPipeline) link() error {
	g, err := pipeline.NewGraph(pe.def)
	if err != nil {
		return graphError("", err)
	}
	pe.graph = g

	metas := make(map[string]TransformMeta, len(pe.def.Steps))
	for _, s := range pe.def.Steps {
		plugin, err := pe.pm.Registry.Get(s.Type)
		if err != nil {
			return graphError(s.Name, err)
		}
		meta, err := plugin(s)
		if err != nil {
			return graphError(s.Name, err)
		}
		if fd, ok := meta.(FullDrainer); ok {
			if err := g.CheckFullDrain(s.Name, fd.InfoSteps()); err != nil {
				return graphError(s.Name, err)
			}
		}
		metas[s.Name] = meta
	}

	order, err := g.Sort()
	if err != nil {
		return graphError("", err)
	}

	// Walk the steps so that every producer's schemas are known before its consumers.
	for _, name := range order {
		s, _ := g.Step(name)
		n := newNode(pe, name, s.Type, metas[name])
		in := Inputs{
			Step: name,
			Info: make(map[string]*models.RowSchema),
		}
		for _, h := range pe.def.Hops {
			if h.To != name {
				continue
			}
			p := pe.lookup[h.From]
			schema := p.outSchema
			if h.Error {
				schema = p.errSchema
			}
			switch {
			case n.isInfo[h.From]:
				in.Info[h.From] = schema
			case in.Main == nil:
				in.Main = schema
			default:
				if err := in.Main.Compatible(schema); err != nil {
					return graphError(name, errors.Wrapf(err, "input from %q does not match the other inputs", h.From))
				}
			}
		}
		out, err := n.meta.OutputSchema(in)
		if err != nil {
			return graphError(name, errors.Wrap(err, "schema"))
		}
		if out == nil {
			out = models.NewRowSchema()
		}
		n.inSchema = in.Main
		n.infoSchemas = in.Info
		n.outSchema = out
		if _, ok := g.ErrorHop(name); ok {
			base := in.Main
			if base == nil {
				base = out
			}
			var info []*models.RowSchema
			for _, h := range pe.def.Hops {
				if h.To == name && n.isInfo[h.From] {
					info = append(info, in.Info[h.From])
				}
			}
			if n.errSchema, err = errorSchema(base, info...); err != nil {
				return graphError(name, err)
			}
		}
		pe.lookup[name] = n
		pe.nodes = append(pe.nodes, n)
	}

	for _, h := range pe.def.Hops {
		from, to := pe.lookup[h.From], pe.lookup[h.To]
		capacity := h.Capacity
		if capacity == 0 {
			capacity = pe.pm.DefaultEdgeCapacity
		}
		schema := from.outSchema
		if h.Error {
			schema = from.errSchema
		}
		e := edge.NewChannelEdge(h.From, h.To, schema, capacity)
		if h.Error {
			from.errOut = e
		} else {
			from.outs = append(from.outs, e)
		}
		if to.isInfo[h.From] {
			to.info[h.From] = e
		} else {
			to.ins = append(to.ins, e)
		}
		pe.edges = append(pe.edges, e)
	}
	return nil
}

// ID is the unique id of this run.
func (pe *ExecutingPipeline) ID() string {
	return pe.id
}

func (pe *ExecutingPipeline) Name() string {
	return pe.def.Name
}

// Schema returns the output schema inferred for a step.
func (pe *ExecutingPipeline) Schema(step string) (*models.RowSchema, bool) {
	n, ok := pe.lookup[step]
	if !ok {
		return nil, false
	}
	return n.outSchema, true
}

// Transform returns the running transform of a step, nil before Start.
func (pe *ExecutingPipeline) Transform(step string) Transform {
	n, ok := pe.lookup[step]
	if !ok {
		return nil
	}
	return n.t
}

// Start launches one goroutine per step.
// Cancelling ctx stops the pipeline as if Stop had been called.
func (pe *ExecutingPipeline) Start(ctx context.Context) error {
	first := false
	pe.startOnce.Do(func() { first = true })
	if !first {
		return errors.New("pipeline already started")
	}
	pe.diag.StartingPipeline()
	pe.started = pe.clock.Now()
	go pe.monitor()
	for _, n := range pe.nodes {
		n.start()
	}
	go func() {
		select {
		case <-ctx.Done():
			pe.requestStop()
		case <-pe.finished:
		}
	}()
	pe.diag.StartedPipeline(len(pe.nodes))
	return nil
}

// Wait blocks until every step reached a terminal state.
// The returned error is the first step failure, nil if the pipeline finished or was stopped.
func (pe *ExecutingPipeline) Wait() (*Result, error) {
	<-pe.finished
	return pe.result, pe.result.Err
}

// Stop cancels every edge and waits for all steps to unwind.
func (pe *ExecutingPipeline) Stop() (*Result, error) {
	pe.requestStop()
	started := true
	pe.startOnce.Do(func() { started = false })
	if !started {
		return nil, nil
	}
	return pe.Wait()
}

func (pe *ExecutingPipeline) requestStop() {
	if atomic.CompareAndSwapInt32(&pe.stopRequested, 0, 1) {
		pe.diag.StoppingPipeline()
	}
	pe.cancel()
}

// cancel wakes every blocked edge operation of the pipeline.
func (pe *ExecutingPipeline) cancel() {
	pe.stopOnce.Do(func() {
		close(pe.stopCh)
		pe.cancelCtx()
		for _, e := range pe.edges {
			e.Cancel()
		}
	})
}

func (pe *ExecutingPipeline) stopping() bool {
	select {
	case <-pe.stopCh:
		return true
	default:
		return false
	}
}

// waitRun is called by a step once it is initialized.
// It returns false if the pipeline stops before every step is initialized.
func (pe *ExecutingPipeline) waitRun() bool {
	pe.inits <- struct{}{}
	select {
	case <-pe.runCh:
		return true
	case <-pe.stopCh:
		return false
	}
}

func (pe *ExecutingPipeline) nodeDone(n *node, err error) {
	pe.dones <- nodeResult{name: n.name, err: err}
}

func (pe *ExecutingPipeline) monitor() {
	var firstErr error
	var failed string
	inits, done := 0, 0
	for done < len(pe.nodes) {
		select {
		case <-pe.inits:
			inits++
			if inits == len(pe.nodes) {
				close(pe.runCh)
			}
		case d := <-pe.dones:
			done++
			if d.err != nil && firstErr == nil {
				firstErr = d.err
				failed = d.name
				// fail fast
				pe.cancel()
			}
		}
	}
	pe.cancelCtx()
	pe.result = pe.buildResult(firstErr, failed)
	pe.diag.FinishedPipeline(pe.result)
	pe.pm.pipelineFinished(pe)
	close(pe.finished)
}

func (pe *ExecutingPipeline) buildResult(firstErr error, failed string) *Result {
	r := &Result{
		RunID:      pe.id,
		Pipeline:   pe.def.Name,
		Started:    pe.started,
		Elapsed:    pe.clock.Since(pe.started),
		FailedStep: failed,
		Err:        firstErr,
		Stopped:    firstErr == nil && atomic.LoadInt32(&pe.stopRequested) == 1,
	}
	if firstErr != nil {
		r.Error = firstErr.Error()
	}
	for _, s := range pe.def.Steps {
		n := pe.lookup[s.Name]
		sr := StepResult{
			Name:         n.name,
			Type:         n.typ,
			State:        n.State(),
			RowsRead:     n.rowsRead.IntValue(),
			RowsWritten:  n.rowsWritten.IntValue(),
			RowsRejected: n.rowsRejected.IntValue(),
			Elapsed:      n.elapsed,
		}
		if err := n.Wait(); err != nil {
			sr.Error = err.Error()
		}
		r.Steps = append(r.Steps, sr)
	}
	return r
}

// Stats returns a live view of every step, in definition order.
func (pe *ExecutingPipeline) Stats() []StepStats {
	stats := make([]StepStats, 0, len(pe.def.Steps))
	for _, s := range pe.def.Steps {
		stats = append(stats, pe.lookup[s.Name].stats())
	}
	return stats
}

// EdgeStats returns the traffic of every edge, in hop definition order.
func (pe *ExecutingPipeline) EdgeStats() []edge.Stats {
	stats := make([]edge.Stats, len(pe.edges))
	for i, e := range pe.edges {
		stats[i] = edge.ReadStats(e)
	}
	return stats
}

// Dot returns the executing graph in graphviz format, annotated with live counters.
func (pe *ExecutingPipeline) Dot(labels bool) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph %q {\n", pe.def.Name)
	for _, n := range pe.nodes {
		n.edot(&buf, labels)
	}
	buf.WriteString("}")
	return buf.Bytes()
}
