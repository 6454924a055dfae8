package matching

import (
	"fenrir/internal/bptree"
	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
	"fenrir/internal/orderpool"
	"fenrir/internal/pricestore"
)

// matchOrder implements §4.3: walk the opposite side's cache first (it is
// always checked completely before the tree is touched at all, per §4.7),
// then its tree, filling the taker against resting makers until either the
// taker is fully satisfied, the opposite side runs dry, or (for a limit
// order) the next candidate price no longer crosses. Every fill is recorded
// as a pending ExecutionQueueEvent; settlement happens later in Crank.
func (b *Book) matchOrder(id orderpool.ID, order *orderpool.Order, ts int64) {
	opp := b.oppositeStore(order.Metadata.Side)

	b.matchAgainstCache(id, order, opp, ts)
	if done, _ := order.TakerRemaining(); done.IsZero() {
		return
	}
	b.matchAgainstTree(id, order, opp, ts)
}

// crossesPrice reports whether a resting price at level `restingPrice`
// still crosses the taker's limit (always true for a market order).
func crossesPrice(side common.Side, limitPrice, restingPrice fixedpoint.FP, isMarket bool) bool {
	if isMarket {
		return true
	}
	if side == common.Buy {
		return limitPrice.Cmp(restingPrice) >= 0
	}
	return limitPrice.Cmp(restingPrice) <= 0
}

// fillAgainstElem implements §4.3.1's per-level fill arithmetic, shared by
// both the cache and tree walks: compute how much of the taker's remaining
// quantity this maker elem can absorb, apply the market-buy collateral
// clamp if applicable, and if anything is left after clamping/dust-zeroing,
// push an Event and update both sides' pending-crank bookkeeping.
//
// It returns the quantity actually filled (zero if the clamp left nothing
// worth executing) and whether the taker is now fully satisfied.
func (b *Book) fillAgainstElem(id orderpool.ID, order *orderpool.Order, elem *pricestore.Elem, restingPrice fixedpoint.FP, ts int64) (filled fixedpoint.FP, takerDone bool) {
	remaining, _ := order.TakerRemaining()
	if remaining.IsZero() || elem.Qty.IsZero() {
		return fixedpoint.Zero, remaining.IsZero()
	}

	fillQty := minFP(elem.Qty, remaining)

	if order.Metadata.IsMarketBuy() {
		avail := order.Metadata.MarketBuyRemainingCollateral
		cost, err := restingPrice.Mul(fillQty, fixedpoint.RoundUp)
		if err == nil && cost.Cmp(avail) > 0 {
			// Clamp fillQty down to what remaining collateral can actually
			// afford at this price, rounded down to a whole instrument tick.
			affordable, err := avail.Div(restingPrice, fixedpoint.RoundTrunc)
			if err != nil {
				affordable = fixedpoint.Zero
			}
			affordable, err = affordable.FloorToDecimals(b.IDecimals)
			if err != nil {
				affordable = fixedpoint.Zero
			}
			fillQty = minFP(fillQty, affordable)
		}
		if fillQty.IsZero() {
			// Dust: not enough collateral left to buy even one tick at this
			// price. The taker can never fill another unit; the caller
			// (add_order's finalize branch) relies on MarketBuyRemainingCollateral
			// reaching zero, so we zero it out here rather than leaving an
			// unspendable sliver.
			order.Metadata.MarketBuyRemainingCollateral = fixedpoint.Zero
			return fixedpoint.Zero, true
		}
	}

	elem.Qty, _ = elem.Qty.Sub(fillQty)
	elem.MakerCrankPendingQty, _ = elem.MakerCrankPendingQty.Add(fillQty)
	order.Metadata.TakerCrankPendingQty, _ = order.Metadata.TakerCrankPendingQty.Add(fillQty)

	if order.Metadata.IsMarketBuy() {
		cost, _ := restingPrice.Mul(fillQty, fixedpoint.RoundUp)
		order.Metadata.MarketBuyRemainingCollateral = order.Metadata.MarketBuyRemainingCollateral.SaturatingSub(cost)
	}

	b.Queue.PushBack(Event{
		Qty:           fillQty,
		TakerOrderID:  id,
		PriceLevelID:  elem.PriceLevelID,
		TimestampSecs: ts,
	})

	remaining, _ = order.TakerRemaining()
	return fillQty, remaining.IsZero() || (order.Metadata.IsMarketBuy() && order.Metadata.MarketBuyRemainingCollateral.IsZero())
}

// matchAgainstCache implements §4.3.1: walk the cache best-first (its
// backing slice is ordered worst..best, so we iterate from the end),
// skipping already-ghosted zero-qty entries, stopping the instant a
// candidate price no longer crosses.
func (b *Book) matchAgainstCache(id orderpool.ID, order *orderpool.Order, opp *pricestore.Store, ts int64) {
	items := opp.Cache().Items()
	for i := len(items) - 1; i >= 0; i-- {
		e := items[i]
		if !crossesPrice(order.Metadata.Side, order.Metadata.LimitPrice, e.Price, order.Metadata.IsMarket()) {
			break
		}
		_, done := b.fillAgainstElem(id, order, e.Value, e.Price, ts)
		if done {
			return
		}
	}
}

// matchAgainstTree implements §4.3.2: the same fill logic as the cache
// walk, but over the tree's extreme-first ordering, with mutation of each
// visited element deferred until after the walk decides to consume it —
// the tree is never mutated mid-scan for an entry the walk hasn't
// committed to filling.
func (b *Book) matchAgainstTree(id orderpool.ID, order *orderpool.Order, opp *pricestore.Store, ts int64) {
	dir := bptreeDirectionFor(opp.Side())
	seen := map[fixedpoint.FP]bool{}
	for {
		remaining, _ := order.TakerRemaining()
		if remaining.IsZero() {
			return
		}
		price, elem, ok := extremeForWalkUnvisited(opp, dir, seen)
		if !ok {
			return
		}
		seen[price] = true
		if !crossesPrice(order.Metadata.Side, order.Metadata.LimitPrice, price, order.Metadata.IsMarket()) {
			return
		}
		_, done := b.fillAgainstElem(id, order, elem, price, ts)
		if elem.IsDead() {
			opp.Tree().Delete(price)
		}
		if done {
			return
		}
	}
}

// bptreeDirectionFor reports which tree extreme is "best" for a side: the
// tree only ever holds prices worse than the cache's range, so BUY's best
// resting tree price is the Max and SELL's is the Min (mirroring
// pricestore.Store.RecomputeSummary's TreeBound convention).
func bptreeDirectionFor(side common.Side) common.Side { return side }

func extremeForWalk(opp *pricestore.Store, side common.Side) (fixedpoint.FP, *pricestore.Elem, bool) {
	if side == common.Buy {
		return opp.Tree().Max()
	}
	return opp.Tree().Min()
}

// simulateFullyCoverable implements the FOK pre-match simulation (§4.2 step
// 3, §9): walk the opposite side's cache then tree exactly as matchOrder
// would, accumulating how much quantity (or, for a market buy, how much
// collateral-affordable quantity) is available, but never mutate any book
// state. Returns true iff the full order quantity could be filled right now.
func (b *Book) simulateFullyCoverable(p AddOrderParams) bool {
	opp := b.oppositeStore(p.Side)
	remaining := p.Qty
	collateral := p.MarketBuyMaxCollateral

	consider := func(price, qty fixedpoint.FP) bool {
		if remaining.IsZero() {
			return true
		}
		if !crossesPrice(p.Side, p.Price, price, p.isMarket()) {
			return true
		}
		fillQty := minFP(qty, remaining)
		if p.Side == common.Buy && p.isMarket() {
			cost, err := price.Mul(fillQty, fixedpoint.RoundUp)
			if err == nil && cost.Cmp(collateral) > 0 {
				affordable, err := collateral.Div(price, fixedpoint.RoundTrunc)
				if err != nil {
					affordable = fixedpoint.Zero
				}
				affordable, _ = affordable.FloorToDecimals(b.IDecimals)
				fillQty = minFP(fillQty, affordable)
			}
			cost, _ = price.Mul(fillQty, fixedpoint.RoundUp)
			collateral = collateral.SaturatingSub(cost)
		}
		remaining, _ = remaining.Sub(fillQty)
		return remaining.IsZero()
	}

	items := opp.Cache().Items()
	for i := len(items) - 1; i >= 0; i-- {
		e := items[i]
		if e.Value.Qty.IsZero() {
			continue
		}
		if consider(e.Price, e.Value.Qty) {
			return remaining.IsZero()
		}
	}

	dir := bptreeDirectionFor(opp.Side())
	seen := map[fixedpoint.FP]bool{}
	for {
		price, elem, ok := extremeForWalkUnvisited(opp, dir, seen)
		if !ok {
			break
		}
		seen[price] = true
		if elem.Qty.IsZero() {
			continue
		}
		if consider(price, elem.Qty) {
			break
		}
	}
	return remaining.IsZero()
}

// extremeForWalkUnvisited returns the best tree entry whose price is not yet
// in seen, walking in price order without mutating the tree. It drives both
// simulateFullyCoverable's read-only scan and matchAgainstTree, which leaves
// an exhausted entry in the tree while its fills await the crank and so must
// move past it rather than revisit it.
func extremeForWalkUnvisited(opp *pricestore.Store, side common.Side, seen map[fixedpoint.FP]bool) (fixedpoint.FP, *pricestore.Elem, bool) {
	var found fixedpoint.FP
	var foundElem *pricestore.Elem
	ok := false
	dir := bptree.Increasing
	if side == common.Buy {
		dir = bptree.Decreasing
	}
	opp.Tree().Walk(dir, func(key fixedpoint.FP, value *pricestore.Elem) bool {
		if seen[key] {
			return true
		}
		found, foundElem, ok = key, value, true
		return false
	})
	return found, foundElem, ok
}
