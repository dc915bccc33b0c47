package edge_test

import (
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rowflow/rowflow/edge"
	"github.com/rowflow/rowflow/models"
)

const defaultEdgeBufferSize = 1000

var schema = models.NewRowSchema(
	models.NewValueMeta("name", models.TypeString),
	models.NewValueMeta("id", models.TypeInteger),
)

var row = models.Row{"Name1", int64(1)}

func TestEdge_PutGet(t *testing.T) {
	e := edge.NewChannelEdge("a", "b", schema, defaultEdgeBufferSize)

	if err := e.Put(row); err != nil {
		t.Fatal(err)
	}
	got, ok, err := e.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("did not get row back out of edge")
	}
	if !cmp.Equal(row, got) {
		t.Errorf("unexpected row after passing through edge -want/+got:\n%s", cmp.Diff(row, got))
	}
	if exp, got := int64(1), e.Collected(); exp != got {
		t.Errorf("unexpected collected count: exp %d got %d", exp, got)
	}
	if exp, got := int64(1), e.Emitted(); exp != got {
		t.Errorf("unexpected emitted count: exp %d got %d", exp, got)
	}
	if e.Origin() != "a" || e.Destination() != "b" || e.Schema() != schema {
		t.Error("edge lost its tags")
	}
}

func TestEdge_FIFOAndDone(t *testing.T) {
	e := edge.NewChannelEdge("a", "b", schema, 4)
	go func() {
		for i := 0; i < 100; i++ {
			if err := e.Put(models.Row{"n", int64(i)}); err != nil {
				t.Error(err)
				return
			}
		}
		e.MarkDone()
		// idempotent
		e.MarkDone()
	}()

	var ids []int64
	for {
		r, ok, err := e.Get()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		ids = append(ids, r[1].(int64))
	}
	if len(ids) != 100 {
		t.Fatalf("unexpected row count: exp 100 got %d", len(ids))
	}
	for i, id := range ids {
		if id != int64(i) {
			t.Fatalf("rows out of order at %d: got %d", i, id)
		}
	}
	// End is sticky.
	if _, ok, err := e.Get(); ok || err != nil {
		t.Errorf("expected end of stream, got ok=%v err=%v", ok, err)
	}
}

func TestEdge_PutAfterDone(t *testing.T) {
	e := edge.NewChannelEdge("a", "b", schema, 1)
	e.MarkDone()
	if err := e.Put(row); err != edge.ErrClosed {
		t.Errorf("unexpected error: exp %v got %v", edge.ErrClosed, err)
	}
}

func TestEdge_Backpressure(t *testing.T) {
	e := edge.NewChannelEdge("a", "b", schema, 2)
	for i := 0; i < 2; i++ {
		if err := e.Put(row); err != nil {
			t.Fatal(err)
		}
	}
	put := make(chan error, 1)
	go func() {
		put <- e.Put(row)
	}()
	select {
	case <-put:
		t.Fatal("put on a full edge did not block")
	case <-time.After(20 * time.Millisecond):
	}
	if _, _, err := e.Get(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-put:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("put did not resume after space was freed")
	}
}

func TestEdge_CancelWakesBlocked(t *testing.T) {
	full := edge.NewChannelEdge("a", "b", schema, 0)
	empty := edge.NewChannelEdge("c", "d", schema, 0)

	putErr := make(chan error, 1)
	getErr := make(chan error, 1)
	go func() { putErr <- full.Put(row) }()
	go func() {
		_, _, err := empty.Get()
		getErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	full.Cancel()
	empty.Cancel()
	// idempotent
	full.Cancel()

	for _, ch := range []chan error{putErr, getErr} {
		select {
		case err := <-ch:
			if err != edge.ErrCancelled {
				t.Errorf("unexpected error: exp %v got %v", edge.ErrCancelled, err)
			}
		case <-time.After(time.Second):
			t.Fatal("cancel did not wake a blocked call")
		}
	}
	if err := full.Put(row); err != edge.ErrCancelled {
		t.Errorf("put after cancel: exp %v got %v", edge.ErrCancelled, err)
	}
}

func TestEdge_CancelDropsBuffered(t *testing.T) {
	e := edge.NewChannelEdge("a", "b", schema, 10)
	_ = e.Put(row)
	e.MarkDone()
	e.Cancel()
	if _, ok, err := e.Get(); ok || err != edge.ErrCancelled {
		t.Errorf("expected cancellation, got ok=%v err=%v", ok, err)
	}
}

func TestMerged(t *testing.T) {
	var edges []edge.Edge
	for i := 0; i < 3; i++ {
		e := edge.NewChannelEdge("src", "dst", schema, 1)
		edges = append(edges, e)
		go func(i int, e edge.Edge) {
			for j := 0; j < 10; j++ {
				_ = e.Put(models.Row{"n", int64(i*100 + j)})
			}
			e.MarkDone()
		}(i, e)
	}
	m := edge.NewMerged(edges)
	defer m.Close()

	perEdge := make(map[int64][]int64)
	var all []int64
	for {
		r, ok, err := m.Get()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		id := r[1].(int64)
		perEdge[id/100] = append(perEdge[id/100], id)
		all = append(all, id)
	}
	if len(all) != 30 {
		t.Fatalf("unexpected merged row count: exp 30 got %d", len(all))
	}
	for src, ids := range perEdge {
		if !sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }) {
			t.Errorf("rows from edge %d out of order: %v", src, ids)
		}
	}
}

func TestMerged_Cancelled(t *testing.T) {
	a := edge.NewChannelEdge("a", "c", schema, 1)
	b := edge.NewChannelEdge("b", "c", schema, 1)
	m := edge.NewMerged([]edge.Edge{a, b})
	defer m.Close()
	a.Cancel()
	if _, _, err := m.Get(); err != edge.ErrCancelled {
		t.Errorf("unexpected error: exp %v got %v", edge.ErrCancelled, err)
	}
	b.Cancel()
}

var gotRow models.Row
var gotOK bool

func BenchmarkPutGet(b *testing.B) {
	e := edge.NewChannelEdge("a", "b", schema, defaultEdgeBufferSize)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = e.Put(row)
			gotRow, gotOK, _ = e.Get()
		}
	})
}
