// Package bptree provides the ordered, price-keyed store that backs the
// "cold" tail of each side's PriceStore (the cache in package pricestore
// holds the hot top-of-book). It is a thin domain wrapper around
// tidwall/btree.BTreeG, the same copy-on-write B-tree the teacher project
// already reaches for when it needs an ordered, mutable-in-place price
// index (see the PriceLevels type in the project this was adapted from).
// The library keeps leaves ordered and supports directional iteration,
// which is what §4.3.2's deferred tree walk and §4.5's rebalance need;
// wrapping it here means the engine gets one real B-tree implementation
// instead of a second hand-rolled one living beside it.
package bptree

import "github.com/tidwall/btree"

// Direction selects which way an iterator walks the tree.
type Direction int

const (
	Increasing Direction = iota
	Decreasing
)

// Entry is the keyed payload stored at each tree position.
type Entry[K any, V any] struct {
	Key   K
	Value V
}

// Tree is an order-preserving map from K to V, keyed by a caller-supplied
// comparator. In this engine K is always fixedpoint.FP (a price) and V is
// *pricestore.Elem.
type Tree[K any, V any] struct {
	less func(a, b K) bool
	tr   *btree.BTreeG[Entry[K, V]]
}

// New creates an empty tree ordered by less.
func New[K any, V any](less func(a, b K) bool) *Tree[K, V] {
	entryLess := func(a, b Entry[K, V]) bool { return less(a.Key, b.Key) }
	return &Tree[K, V]{
		less: less,
		tr:   btree.NewBTreeG(entryLess),
	}
}

func (t *Tree[K, V]) Len() int { return t.tr.Len() }

// Get performs the point lookup §4.7 describes once the summary has
// narrowed a price down to "it must be in the tree".
func (t *Tree[K, V]) Get(key K) (V, bool) {
	e, ok := t.tr.Get(Entry[K, V]{Key: key})
	return e.Value, ok
}

// Set inserts or replaces the value stored at key.
func (t *Tree[K, V]) Set(key K, value V) {
	t.tr.Set(Entry[K, V]{Key: key, Value: value})
}

// Delete removes key, reporting whether it was present.
func (t *Tree[K, V]) Delete(key K) bool {
	_, ok := t.tr.Delete(Entry[K, V]{Key: key})
	return ok
}

// Min returns the smallest key's entry.
func (t *Tree[K, V]) Min() (K, V, bool) {
	e, ok := t.tr.Min()
	return e.Key, e.Value, ok
}

// Max returns the largest key's entry.
func (t *Tree[K, V]) Max() (K, V, bool) {
	e, ok := t.tr.Max()
	return e.Key, e.Value, ok
}

// PopMin removes and returns the smallest key's entry, used by rebalance to
// pull the side-appropriate extreme out of the tree into the cache.
func (t *Tree[K, V]) PopMin() (K, V, bool) {
	k, v, ok := t.Min()
	if !ok {
		return k, v, false
	}
	t.Delete(k)
	return k, v, true
}

// PopMax removes and returns the largest key's entry.
func (t *Tree[K, V]) PopMax() (K, V, bool) {
	k, v, ok := t.Max()
	if !ok {
		return k, v, false
	}
	t.Delete(k)
	return k, v, true
}

// Walk visits entries starting at the extreme implied by dir (Increasing
// starts at Min, Decreasing starts at Max) and continues until fn returns
// false. match_against_tree uses this to sweep the opposite side best-first;
// §4.3.2 requires deferring in-tree mutation until after the walk, which
// callers enforce by only reading through fn and applying changes afterward
// via Set/Delete.
func (t *Tree[K, V]) Walk(dir Direction, fn func(key K, value V) bool) {
	switch dir {
	case Increasing:
		t.tr.Scan(func(e Entry[K, V]) bool { return fn(e.Key, e.Value) })
	case Decreasing:
		t.tr.Reverse(func(e Entry[K, V]) bool { return fn(e.Key, e.Value) })
	}
}
