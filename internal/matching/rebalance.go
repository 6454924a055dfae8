package matching

import (
	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
	"fenrir/internal/pricestore"
)

// Rebalance implements §4.5: move up to limit extreme elements per side from
// the tree into the cache while the cache has room, so the next spread test
// or match can serve more of the book without ever touching the tree.
func (b *Book) Rebalance(limit int) {
	rebalanceSide(b.buyStore, common.Buy, limit)
	rebalanceSide(b.sellStore, common.Sell, limit)
}

func rebalanceSide(store *pricestore.Store, side common.Side, limit int) {
	for i := 0; i < limit; i++ {
		if !store.Cache().HasRoom() || store.Tree().Len() == 0 {
			return
		}
		var price fixedpoint.FP
		var elem *pricestore.Elem
		var ok bool
		if side == common.Buy {
			price, elem, ok = store.Tree().PopMax()
		} else {
			price, elem, ok = store.Tree().PopMin()
		}
		if !ok {
			return
		}
		if evicted, didEvict := store.Cache().Insert(price, elem); didEvict {
			// Shouldn't happen: HasRoom was checked just above, but handle it
			// defensively in case maxCacheSize shrank underneath us.
			store.Tree().Set(evicted.Price, evicted.Value)
		}
		store.RecomputeSummary()
	}
}
