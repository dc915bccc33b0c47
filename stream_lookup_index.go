package rowflow

import (
	"bytes"
	"math"

	"github.com/cespare/xxhash"
	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/rowflow/rowflow/models"
)

// lookupIndex maps decoded composite keys to value rows.
// All strategies keep the last value inserted for a key.
type lookupIndex interface {
	put(key, value models.Row) error
	get(key models.Row) (models.Row, bool, error)
	len() int
}

// hashIndex buckets entries by the xxhash of their encoded key.
type hashIndex struct {
	buckets map[uint64][]hashEntry
	size    int
	buf     []byte
}

type hashEntry struct {
	key   []byte
	value models.Row
}

func newHashIndex() *hashIndex {
	return &hashIndex{buckets: make(map[uint64][]hashEntry)}
}

func (idx *hashIndex) encode(key models.Row) ([]byte, error) {
	buf := idx.buf[:0]
	for i, v := range key {
		var err error
		if buf, err = models.AppendKey(buf, v); err != nil {
			return nil, errors.Wrapf(err, "key field %d", i)
		}
	}
	idx.buf = buf
	return buf, nil
}

func (idx *hashIndex) put(key, value models.Row) error {
	k, err := idx.encode(key)
	if err != nil {
		return err
	}
	h := xxhash.Sum64(k)
	bucket := idx.buckets[h]
	for i := range bucket {
		if bytes.Equal(bucket[i].key, k) {
			bucket[i].value = value
			return nil
		}
	}
	// k aliases the scratch buffer
	stored := make([]byte, len(k))
	copy(stored, k)
	idx.buckets[h] = append(bucket, hashEntry{key: stored, value: value})
	idx.size++
	return nil
}

func (idx *hashIndex) get(key models.Row) (models.Row, bool, error) {
	k, err := idx.encode(key)
	if err != nil {
		return nil, false, err
	}
	for _, e := range idx.buckets[xxhash.Sum64(k)] {
		if bytes.Equal(e.key, k) {
			return e.value, true, nil
		}
	}
	return nil, false, nil
}

func (idx *hashIndex) len() int {
	return idx.size
}

// sortedIndex keeps entries in a B-tree ordered by their key fields.
// Lookups are exact matches.
type sortedIndex struct {
	metas []*models.ValueMeta
	tree  *btree.BTree
}

const sortedIndexDegree = 32

func newSortedIndex(metas []*models.ValueMeta) *sortedIndex {
	return &sortedIndex{
		metas: metas,
		tree:  btree.New(sortedIndexDegree),
	}
}

type sortedItem struct {
	metas []*models.ValueMeta
	key   models.Row
	value models.Row
}

func (a *sortedItem) Less(than btree.Item) bool {
	b := than.(*sortedItem)
	for i, m := range a.metas {
		if c := m.Compare(a.key[i], b.key[i]); c != 0 {
			return c < 0
		}
	}
	return false
}

func (idx *sortedIndex) put(key, value models.Row) error {
	if len(key) != len(idx.metas) {
		return errors.Errorf("key has %d values, index has %d fields", len(key), len(idx.metas))
	}
	idx.tree.ReplaceOrInsert(&sortedItem{metas: idx.metas, key: key, value: value})
	return nil
}

func (idx *sortedIndex) get(key models.Row) (models.Row, bool, error) {
	if len(key) != len(idx.metas) {
		return nil, false, errors.Errorf("key has %d values, index has %d fields", len(key), len(idx.metas))
	}
	item := idx.tree.Get(&sortedItem{metas: idx.metas, key: key})
	if item == nil {
		return nil, false, nil
	}
	return item.(*sortedItem).value, true, nil
}

func (idx *sortedIndex) len() int {
	return idx.tree.Len()
}

// integerPairIndex packs keys of two 32 bit integers into one uint64.
// Pairs that do not fit, or hold a null, go to a generic hash index.
type integerPairIndex struct {
	packed   map[uint64]models.Row
	fallback *hashIndex
}

func newIntegerPairIndex() *integerPairIndex {
	return &integerPairIndex{
		packed:   make(map[uint64]models.Row),
		fallback: newHashIndex(),
	}
}

func packPair(key models.Row) (uint64, bool) {
	if len(key) != 2 {
		return 0, false
	}
	a, ok := key[0].(int64)
	if !ok || a < math.MinInt32 || a > math.MaxInt32 {
		return 0, false
	}
	b, ok := key[1].(int64)
	if !ok || b < math.MinInt32 || b > math.MaxInt32 {
		return 0, false
	}
	return uint64(uint32(a))<<32 | uint64(uint32(b)), true
}

func (idx *integerPairIndex) put(key, value models.Row) error {
	if p, ok := packPair(key); ok {
		idx.packed[p] = value
		return nil
	}
	return idx.fallback.put(key, value)
}

func (idx *integerPairIndex) get(key models.Row) (models.Row, bool, error) {
	if p, ok := packPair(key); ok {
		v, ok := idx.packed[p]
		return v, ok, nil
	}
	return idx.fallback.get(key)
}

func (idx *integerPairIndex) len() int {
	return len(idx.packed) + idx.fallback.len()
}
