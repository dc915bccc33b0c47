package edge

import (
	"sync"

	"github.com/rowflow/rowflow/models"
)

// Merged reads several edges as a single stream of rows.
// Each edge is drained by its own goroutine so that a slow or empty edge
// never holds back the others. FIFO order is kept per edge only.
type Merged struct {
	edges []Edge

	once sync.Once
	out  chan mergedItem
	done chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
}

type mergedItem struct {
	row models.Row
	err error
}

// NewMerged returns a reader over edges.
func NewMerged(edges []Edge) *Merged {
	return &Merged{
		edges: edges,
		out:   make(chan mergedItem),
		done:  make(chan struct{}),
	}
}

func (m *Merged) start() {
	m.wg.Add(len(m.edges))
	for _, e := range m.edges {
		go m.forward(e)
	}
	go func() {
		m.wg.Wait()
		close(m.out)
	}()
}

func (m *Merged) forward(e Edge) {
	defer m.wg.Done()
	for {
		r, ok, err := e.Get()
		if err != nil {
			select {
			case m.out <- mergedItem{err: err}:
			case <-m.done:
			}
			return
		}
		if !ok {
			return
		}
		select {
		case m.out <- mergedItem{row: r}:
		case <-m.done:
			return
		}
	}
}

// Get returns the next row from any edge.
// It returns ok == false once every edge is done and drained.
func (m *Merged) Get() (models.Row, bool, error) {
	m.once.Do(m.start)
	it, ok := <-m.out
	if !ok {
		return nil, false, nil
	}
	if it.err != nil {
		return nil, false, it.err
	}
	return it.row, true, nil
}

// Close releases the forwarding goroutines. Rows not yet read are left on their edges.
func (m *Merged) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}
