package rowflow

import (
	"bytes"
	"expvar"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/edge"
	kexpvar "github.com/rowflow/rowflow/expvar"
	"github.com/rowflow/rowflow/models"
)

const (
	statRowsRead     = "rows_read"
	statRowsWritten  = "rows_written"
	statRowsRejected = "rows_rejected"
	statState        = "state"
)

// node is the runtime of one step: it owns the step's goroutine,
// its edges and its lifecycle state.
type node struct {
	name string
	typ  string
	meta TransformMeta
	t    Transform
	pe   *ExecutingPipeline
	diag NodeDiagnostic
	sc   *StepContext

	ins    []edge.Edge
	info   map[string]edge.Edge
	outs   []edge.Edge
	errOut edge.Edge
	isInfo map[string]bool

	inSchema    *models.RowSchema
	infoSchemas map[string]*models.RowSchema
	outSchema   *models.RowSchema
	errSchema   *models.RowSchema

	merged *edge.Merged

	state        int32
	statMap      *kexpvar.Map
	stateVar     *kexpvar.String
	rowsRead     *kexpvar.Int
	rowsWritten  *kexpvar.Int
	rowsRejected *kexpvar.Int

	started time.Time
	elapsed time.Duration

	errCh      chan error
	finishedMu sync.Mutex
	finished   bool
	err        error
}

func newNode(pe *ExecutingPipeline, name, typ string, meta TransformMeta) *node {
	n := &node{
		name:     name,
		typ:      typ,
		meta:     meta,
		pe:       pe,
		diag:     pe.diag.WithStepContext(name),
		info:     make(map[string]edge.Edge),
		isInfo:   make(map[string]bool),
		statMap:  kexpvar.NewMap(),
		stateVar: new(kexpvar.String),
		errCh:    make(chan error, 1),
	}
	if fd, ok := meta.(FullDrainer); ok {
		for _, s := range fd.InfoSteps() {
			n.isInfo[s] = true
		}
	}
	n.rowsRead = n.statMap.Int(statRowsRead)
	n.rowsWritten = n.statMap.Int(statRowsWritten)
	n.rowsRejected = n.statMap.Int(statRowsRejected)
	n.statMap.Set(statState, n.stateVar)
	n.stateVar.Set(StateCreated.String())
	n.sc = &StepContext{n: n}
	return n
}

func (n *node) State() State {
	return State(atomic.LoadInt32(&n.state))
}

func (n *node) setState(to State) {
	from := State(atomic.SwapInt32(&n.state, int32(to)))
	n.stateVar.Set(to.String())
	n.diag.StateChanged(from, to)
}

func (n *node) start() {
	n.t = n.meta.NewTransform()
	go func() {
		var err error
		defer func() {
			// Handle panic in the transform
			if r := recover(); r != nil {
				trace := make([]byte, 4096)
				l := runtime.Stack(trace, false)
				err = fmt.Errorf("%v: Trace:%s", r, string(trace[:l]))
			}
			if derr := n.dispose(); derr != nil && err == nil {
				err = derr
			}
			if n.merged != nil {
				n.merged.Close()
			}
			// Always mark outputs done
			n.closeChildEdges()
			n.elapsed = n.pe.clock.Since(n.started)
			switch {
			case err == nil:
				n.setState(StateFinished)
			case isCancellation(err):
				err = nil
				n.setState(StateStopped)
			default:
				n.cancelParentEdges()
				n.diag.Error("step failed", err)
				err = &StepError{Step: n.name, Err: err}
				n.setState(StateFailed)
			}
			n.errCh <- err
			n.pe.nodeDone(n, err)
		}()
		err = n.run()
	}()
}

func (n *node) run() error {
	n.started = n.pe.clock.Now()
	if err := n.t.Init(n.sc); err != nil {
		return errors.Wrap(err, "init")
	}
	n.setState(StateInitialized)
	// Rows only flow once every step is initialized.
	if !n.pe.waitRun() {
		return errStopped
	}
	n.setState(StateRunning)
	for {
		if n.pe.stopping() {
			return errStopped
		}
		status, err := n.t.ProcessRow(n.sc)
		if err != nil {
			return err
		}
		if status == Finished {
			return nil
		}
	}
}

func (n *node) dispose() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispose: %v", r)
		}
	}()
	if n.t == nil {
		return nil
	}
	return errors.Wrap(n.t.Dispose(n.sc), "dispose")
}

// Wait blocks until the step reached a terminal state and returns its error.
func (n *node) Wait() error {
	n.finishedMu.Lock()
	defer n.finishedMu.Unlock()
	if !n.finished {
		n.finished = true
		n.err = <-n.errCh
	}
	return n.err
}

func (n *node) closeChildEdges() {
	for _, child := range n.outs {
		child.MarkDone()
	}
	if n.errOut != nil {
		n.errOut.MarkDone()
	}
}

func (n *node) cancelParentEdges() {
	for _, in := range n.ins {
		in.Cancel()
	}
	for _, in := range n.info {
		in.Cancel()
	}
}

func (n *node) stats() StepStats {
	state := n.State()
	return StepStats{
		Name:         n.name,
		Type:         n.typ,
		State:        state,
		RowsRead:     n.rowsRead.IntValue(),
		RowsWritten:  n.rowsWritten.IntValue(),
		RowsRejected: n.rowsRejected.IntValue(),
		Failed:       state == StateFailed,
	}
}

// edot writes the node and its outgoing edges in graphviz format.
func (n *node) edot(buf *bytes.Buffer, labels bool) {
	if labels {
		fmt.Fprintf(buf, "\n%q [label=\"%s ", n.name, n.name)
		n.statMap.DoSorted(func(kv expvar.KeyValue) {
			fmt.Fprintf(buf, "%s=%s ", kv.Key, kv.Value.String())
		})
		buf.WriteString("\"];\n")
	} else {
		fmt.Fprintf(buf, "\n%q [", n.name)
		n.statMap.DoSorted(func(kv expvar.KeyValue) {
			var s string
			if sv, ok := kv.Value.(kexpvar.StringVar); ok {
				s = sv.StringValue()
			} else {
				s = kv.Value.String()
			}
			fmt.Fprintf(buf, "%s=\"%s\" ", kv.Key, s)
		})
		buf.WriteString("];\n")
	}
	for _, out := range n.outs {
		fmt.Fprintf(buf, "%q -> %q [processed=\"%d\"];\n", n.name, out.Destination(), out.Collected())
	}
	if n.errOut != nil {
		fmt.Fprintf(buf, "%q -> %q [processed=\"%d\" style=dashed];\n", n.name, n.errOut.Destination(), n.errOut.Collected())
	}
}
