// Package cache implements the short ordered vector described in §3/§4.7:
// for each side of the book, the best few prices are kept in a flat,
// sorted slice rather than the B+ tree, so the common case (inserting or
// matching against the top of book) never has to touch a tree node. It is
// the same idea the teacher project's BuyBook/SellBook types express via
// container/heap's sort.Interface, generalized here into an explicit sorted
// vector (the cache must support binary-searchable point lookup, which a
// heap cannot) bounded by maxCacheSize.
package cache

import (
	"sort"

	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
)

// Elem pairs a price key with its stored payload.
type Elem[V any] struct {
	Price fixedpoint.FP
	Value V
}

// Cache is a side-aware sorted vector. The best price for the side always
// sits at index Len()-1: ascending order for BUY (highest bid last),
// descending order for SELL (lowest ask last), matching §3's definition.
type Cache[V any] struct {
	side    common.Side
	maxSize int
	items   []Elem[V]
}

func New[V any](side common.Side, maxSize int) *Cache[V] {
	return &Cache[V]{side: side, maxSize: maxSize}
}

func (c *Cache[V]) Len() int      { return len(c.items) }
func (c *Cache[V]) IsEmpty() bool { return len(c.items) == 0 }
func (c *Cache[V]) MaxSize() int  { return c.maxSize }
func (c *Cache[V]) HasRoom() bool { return len(c.items) < c.maxSize }

// better reports whether price a outranks price b for this side: higher is
// better for BUY, lower is better for SELL.
func (c *Cache[V]) better(a, b fixedpoint.FP) bool {
	if c.side == common.Buy {
		return a.Cmp(b) > 0
	}
	return a.Cmp(b) < 0
}

// sortLess is the strict ordering the backing slice is kept in: ascending
// for BUY, descending for SELL, so the best entry always lands at the end.
func (c *Cache[V]) sortLess(a, b fixedpoint.FP) bool {
	if c.side == common.Buy {
		return a.Cmp(b) < 0
	}
	return a.Cmp(b) > 0
}

// Best returns the top-of-book entry for this side (index Len()-1).
func (c *Cache[V]) Best() (Elem[V], bool) {
	if len(c.items) == 0 {
		return Elem[V]{}, false
	}
	return c.items[len(c.items)-1], true
}

// Worst returns the entry furthest from the top of book (index 0) — for
// BUY this is the lowest cached bid, for SELL the highest cached ask.
func (c *Cache[V]) Worst() (Elem[V], bool) {
	if len(c.items) == 0 {
		return Elem[V]{}, false
	}
	return c.items[0], true
}

func (c *Cache[V]) search(price fixedpoint.FP) int {
	return sort.Search(len(c.items), func(i int) bool {
		return !c.sortLess(c.items[i].Price, price)
	})
}

// Get performs the point lookup §4.7 describes for a price believed to be
// in the cache's range.
func (c *Cache[V]) Get(price fixedpoint.FP) (V, bool) {
	i := c.search(price)
	if i < len(c.items) && c.items[i].Price.Cmp(price) == 0 {
		return c.items[i].Value, true
	}
	var zero V
	return zero, false
}

// Insert places price/value into sorted position. If the cache is already
// at maxSize, the current worst entry is evicted (its slot freed for the
// new, necessarily-better-or-equal price) and returned so the caller can
// demote it into the tree, per §4.7's "cache full but price still
// qualifies" branch.
func (c *Cache[V]) Insert(price fixedpoint.FP, value V) (evicted Elem[V], didEvict bool) {
	i := c.search(price)
	c.items = append(c.items, Elem[V]{})
	copy(c.items[i+1:], c.items[i:])
	c.items[i] = Elem[V]{Price: price, Value: value}

	if len(c.items) > c.maxSize {
		evicted = c.items[0]
		c.items = c.items[1:]
		return evicted, true
	}
	return Elem[V]{}, false
}

// Remove deletes price from the cache, reporting whether it was present.
func (c *Cache[V]) Remove(price fixedpoint.FP) bool {
	i := c.search(price)
	if i >= len(c.items) || c.items[i].Price.Cmp(price) != 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true
}

// Items returns entries ordered worst (index 0) to best (index Len()-1),
// the order match_against_cache walks backward over (best first).
func (c *Cache[V]) Items() []Elem[V] { return c.items }

// TotalQty sums Value-derived quantity across every cached entry, used to
// recompute MarketSummary.CacheQty after a mutation. qtyOf extracts the
// matchable quantity from V (distinct from any pending-crank component).
func (c *Cache[V]) TotalQty(qtyOf func(V) fixedpoint.FP) fixedpoint.FP {
	total := fixedpoint.Zero
	for _, e := range c.items {
		total, _ = total.Add(qtyOf(e.Value))
	}
	return total
}
