package edge

import (
	"sync"

	"github.com/rowflow/rowflow/expvar"
	"github.com/rowflow/rowflow/models"
)

// Edge is the bounded connection between the output of one step and the input of another.
// An edge has one producer and one consuming step.
// Edges are safe for concurrent use.
type Edge interface {
	// Put enqueues a row, blocking while the edge is at capacity.
	// It returns ErrCancelled if the edge is cancelled while waiting
	// and ErrClosed if MarkDone has already been called.
	Put(models.Row) error
	// Get blocks until a row is available.
	// It returns ok == false once the edge is done and drained,
	// and ErrCancelled if the edge has been cancelled.
	Get() (row models.Row, ok bool, err error)
	// MarkDone declares that no more rows will be put.
	// Rows already buffered are still delivered. MarkDone is idempotent.
	MarkDone()
	// Cancel immediately wakes all blocked producers and consumers.
	// Buffered rows are dropped. Cancel is idempotent.
	Cancel()

	// Origin is the name of the producing step.
	Origin() string
	// Destination is the name of the consuming step.
	Destination() string
	// Schema describes every row on the edge.
	Schema() *models.RowSchema

	// Collected returns the number of rows put on the edge.
	Collected() int64
	// Emitted returns the number of rows read from the edge.
	Emitted() int64
}

type edgeState int

const (
	edgeOpen edgeState = iota
	edgeDone
	edgeCancelled
)

// channelEdge is an implementation of Edge using channels.
type channelEdge struct {
	origin      string
	destination string
	schema      *models.RowSchema

	cancelling chan struct{}
	rows       chan models.Row

	collected *expvar.Int
	emitted   *expvar.Int

	mu    sync.Mutex
	state edgeState
}

// NewChannelEdge returns a new edge that holds at most size buffered rows.
// A size of zero makes every Put wait for the matching Get.
func NewChannelEdge(origin, destination string, schema *models.RowSchema, size int) Edge {
	if size < 0 {
		size = 0
	}
	return &channelEdge{
		origin:      origin,
		destination: destination,
		schema:      schema,
		cancelling:  make(chan struct{}),
		rows:        make(chan models.Row, size),
		collected:   new(expvar.Int),
		emitted:     new(expvar.Int),
	}
}

func (e *channelEdge) Put(r models.Row) error {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	switch state {
	case edgeCancelled:
		return ErrCancelled
	case edgeDone:
		return ErrClosed
	}
	select {
	case e.rows <- r:
		e.collected.Add(1)
		return nil
	case <-e.cancelling:
		return ErrCancelled
	}
}

func (e *channelEdge) Get() (models.Row, bool, error) {
	// Cancellation wins over buffered rows.
	select {
	case <-e.cancelling:
		return nil, false, ErrCancelled
	default:
	}
	select {
	case r, ok := <-e.rows:
		if !ok {
			return nil, false, nil
		}
		e.emitted.Add(1)
		return r, true, nil
	case <-e.cancelling:
		return nil, false, ErrCancelled
	}
}

func (e *channelEdge) MarkDone() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != edgeOpen {
		return
	}
	close(e.rows)
	e.state = edgeDone
}

func (e *channelEdge) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == edgeCancelled {
		//nothing to do, already cancelled
		return
	}
	close(e.cancelling)
	e.state = edgeCancelled
}

func (e *channelEdge) Origin() string {
	return e.origin
}

func (e *channelEdge) Destination() string {
	return e.destination
}

func (e *channelEdge) Schema() *models.RowSchema {
	return e.schema
}

func (e *channelEdge) Collected() int64 {
	return e.collected.IntValue()
}

func (e *channelEdge) Emitted() int64 {
	return e.emitted.IntValue()
}
