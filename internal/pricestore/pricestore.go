// Package pricestore implements the hybrid cache+tree price index
// described in §3/§4.7 (PriceStoreElem, Cache<T>, BPlusTree<T>) and the
// MarketSummary that caches their extremes so most decisions never need to
// touch the tree at all.
package pricestore

import (
	"fenrir/internal/bptree"
	"fenrir/internal/cache"
	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
	"fenrir/internal/pricelevel"
)

// Elem is PriceStoreElem (§3): for one price, the quantity available to
// match now, the quantity matched but not yet settled, and the price
// level it belongs to. It is erased from the store once both quantities
// reach zero.
type Elem struct {
	Qty                 fixedpoint.FP
	MakerCrankPendingQty fixedpoint.FP
	PriceLevelID        pricelevel.ID
}

func (e *Elem) IsGhost() bool { return e.Qty.IsZero() && !e.MakerCrankPendingQty.IsZero() }
func (e *Elem) IsDead() bool  { return e.Qty.IsZero() && e.MakerCrankPendingQty.IsZero() }

// Summary caches per-side aggregates computed from the cache and tree so
// add_order's spread test and most bookkeeping only need to read this
// struct (§3 MarketSummary).
type Summary struct {
	CacheQty  fixedpoint.FP
	CacheMax  fixedpoint.FP // zero if cache empty
	CacheMin  fixedpoint.FP
	CacheSize int
	TreeBound fixedpoint.FP // TreeMax for buy side, TreeMin for sell side; zero if tree empty
}

// Store is one side's price index: a bounded cache of the best prices plus
// a B+ tree (here, bptree.Tree) holding the rest, with a Summary kept
// precisely current after every mutation.
type Store struct {
	side    common.Side
	cache   *cache.Cache[*Elem]
	tree    *bptree.Tree[fixedpoint.FP, *Elem]
	Summary Summary
}

// The tree is always kept in plain ascending price order; side-specific
// "best" semantics come from whether callers read Min() or Max() off it.
func priceLess(a, b fixedpoint.FP) bool { return a.Cmp(b) < 0 }

func New(side common.Side, maxCacheSize int) *Store {
	return &Store{
		side:  side,
		cache: cache.New[*Elem](side, maxCacheSize),
		tree:  bptree.New[fixedpoint.FP, *Elem](priceLess),
	}
}

func (s *Store) Side() common.Side { return s.side }

// BelongsInCache implements §4.7's insertion policy: a new price goes to
// the cache iff the cache has room and the price is better than the tree's
// current best (so it wouldn't immediately be shadowed), or the cache is
// full but the price still outranks the cache's current worst entry.
func (s *Store) BelongsInCache(price fixedpoint.FP) bool {
	if s.cache.HasRoom() {
		if s.Summary.TreeBound.IsZero() {
			return true
		}
		if s.side == common.Buy {
			return price.Cmp(s.Summary.TreeBound) > 0
		}
		return price.Cmp(s.Summary.TreeBound) < 0
	}
	if s.Summary.CacheSize == 0 {
		return false
	}
	if s.side == common.Buy {
		// BUY: displaces the cache's current worst (lowest) entry iff the
		// new price is at least as good.
		return price.Cmp(s.Summary.CacheMin) >= 0
	}
	// SELL: CacheMin always holds cache.Worst() (§4.7's symmetric "worst"
	// entry is the highest ask for this side), so displacing it requires
	// the new price to be at least as good, i.e. no higher.
	return price.Cmp(s.Summary.CacheMin) <= 0
}

// Insert places a new element at price, routing it to the cache or tree per
// BelongsInCache, then refreshes the summary.
func (s *Store) Insert(price fixedpoint.FP, elem *Elem) {
	if s.BelongsInCache(price) {
		if evicted, did := s.cache.Insert(price, elem); did {
			s.tree.Set(evicted.Price, evicted.Value)
		}
	} else {
		s.tree.Set(price, elem)
	}
	s.RecomputeSummary()
}

// Get performs the "check cache range, else point-lookup the tree" search
// §4.7 describes.
func (s *Store) Get(price fixedpoint.FP) (*Elem, bool) {
	if e, ok := s.cache.Get(price); ok {
		return e, true
	}
	return s.tree.Get(price)
}

// Delete removes the element at price from whichever structure holds it.
func (s *Store) Delete(price fixedpoint.FP) {
	if s.cache.Remove(price) {
		s.RecomputeSummary()
		return
	}
	s.tree.Delete(price)
	s.RecomputeSummary()
}

// BestPrice returns the effective top-of-book for this side: the cache's
// best entry if present (qty==0 ghost entries are skipped by callers doing
// matching, but still count for summary bound purposes), else the tree's
// extreme.
func (s *Store) BestPrice() (fixedpoint.FP, bool) {
	if e, ok := s.cache.Best(); ok {
		return e.Price, true
	}
	if !s.Summary.TreeBound.IsZero() {
		return s.Summary.TreeBound, true
	}
	return fixedpoint.Zero, false
}

// RecomputeSummary rebuilds Summary from the current cache/tree contents;
// called after every mutating operation (§3 MarketSummary, §4.6 crank end,
// §4.5 rebalance end).
func (s *Store) RecomputeSummary() {
	sum := Summary{CacheSize: s.cache.Len()}
	if worst, ok := s.cache.Worst(); ok {
		sum.CacheMin = worst.Price
	}
	if best, ok := s.cache.Best(); ok {
		sum.CacheMax = best.Price
	}
	sum.CacheQty = s.cache.TotalQty(func(e *Elem) fixedpoint.FP { return e.Qty })

	// The tree holds whatever didn't fit in the cache: prices worse than the
	// cache's range. BUY's tree bound (best resting price outside the
	// cache) is therefore the tree's Max; SELL's is the tree's Min.
	if s.side == common.Buy {
		if k, _, ok := s.tree.Max(); ok {
			sum.TreeBound = k
		}
	} else {
		if k, _, ok := s.tree.Min(); ok {
			sum.TreeBound = k
		}
	}
	s.Summary = sum
}

// Cache exposes the underlying cache for matching/rebalance code that needs
// direct iteration or mutation beyond Store's own helpers.
func (s *Store) Cache() *cache.Cache[*Elem] { return s.cache }

// Tree exposes the underlying tree for matching/rebalance code.
func (s *Store) Tree() *bptree.Tree[fixedpoint.FP, *Elem] { return s.tree }
