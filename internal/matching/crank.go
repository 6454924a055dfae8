package matching

import (
	"fenrir/internal/account"
	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
	"fenrir/internal/orderpool"
	"fenrir/internal/pricelevel"
)

// Crank implements §4.6: drain up to limit queued ExecutionQueueEvents in
// FIFO order, settling the collateral movement each one represents, then
// refresh both sides' summaries once at the end (rather than after every
// individual settlement, since nothing downstream reads the summary mid-drain).
func (b *Book) Crank(limit int, ts int64) error {
	for i := 0; i < limit; i++ {
		ev, ok := b.Queue.PopFront()
		if !ok {
			break
		}
		if err := b.settleEvent(ev, ts); err != nil {
			return err
		}
	}
	b.buyStore.RecomputeSummary()
	b.sellStore.RecomputeSummary()
	b.emitPriceUpdate(ts)
	return nil
}

// settleEvent implements one iteration of §4.6's per-event loop: walk the
// maker price level from the head, consuming up to ev.Qty across however
// many resting maker orders that takes, settling collateral fill by fill,
// then update the taker order's own bookkeeping.
func (b *Book) settleEvent(ev Event, ts int64) error {
	level, ok := b.Levels.Get(pricelevel.ID(ev.PriceLevelID))
	if !ok {
		return common.ErrPriceStoreElemNotFound
	}
	taker, ok := b.Orders.Get(ev.TakerOrderID)
	if !ok {
		return common.ErrUnknownOrder
	}
	takerAcct, err := b.Accounts.Get(taker.Metadata.AccountKey)
	if err != nil {
		return err
	}

	remaining := ev.Qty
	for remaining.Cmp(fixedpoint.Zero) > 0 {
		entry, ok := level.Front()
		if !ok {
			return common.ErrCrankUnfulfilledQty
		}
		makerID := entry.OrderID
		maker, ok := b.Orders.Get(makerID)
		if !ok {
			return common.ErrUnknownOrder
		}
		makerAcct, err := b.Accounts.Get(maker.Metadata.AccountKey)
		if err != nil {
			return err
		}

		execFillQty := minFP(remaining, entry.Qty)

		if err := b.settleFill(taker, maker, takerAcct, makerAcct, execFillQty, ts); err != nil {
			return err
		}

		maker.Metadata.UnfilledQty, _ = maker.Metadata.UnfilledQty.Sub(execFillQty)

		store := b.storeFor(maker.Metadata.Side)
		elem, ok := store.Get(maker.Metadata.LimitPrice)
		if !ok {
			return common.ErrPriceStoreElemNotFound
		}
		elem.MakerCrankPendingQty, _ = elem.MakerCrankPendingQty.Sub(execFillQty)
		if elem.IsDead() {
			store.Delete(maker.Metadata.LimitPrice)
		}

		b.sink().Execution(common.IndexingExecutionEvent{
			MakerAccountKey: maker.Metadata.AccountKey,
			TakerAccountKey: taker.Metadata.AccountKey,
			Price:           maker.Metadata.LimitPrice.Raw,
			Qty:             execFillQty.Raw,
			TimestampSecs:   ts,
		})

		if execFillQty.Cmp(entry.Qty) == 0 {
			level.PopFront()
		} else {
			newQty, _ := entry.Qty.Sub(execFillQty)
			level.UpdateFront(pricelevel.Order{OrderID: makerID, Qty: newQty})
		}

		if maker.IsFinalized() {
			b.releaseResidualOnFinalize(makerAcct, maker)
			b.finalizeOrder(makerAcct, makerID, maker, ts)
		}

		remaining, _ = remaining.Sub(execFillQty)
	}

	if level.IsEmpty() {
		b.Levels.Free(pricelevel.ID(ev.PriceLevelID))
	}

	taker.Metadata.UnfilledQty, _ = taker.Metadata.UnfilledQty.Sub(ev.Qty)
	taker.Metadata.TakerCrankPendingQty, _ = taker.Metadata.TakerCrankPendingQty.Sub(ev.Qty)

	if taker.IsFinalized() {
		b.releaseResidualOnFinalize(takerAcct, taker)
		b.finalizeOrder(takerAcct, ev.TakerOrderID, taker, ts)
	}

	return nil
}

// settleFill implements §4.8: move the fill's collateral from each side's
// escrowed Order.Collateral into the counterparty's account balance, then
// (§4.6 step 2) refund a buy taker the difference between its reserved
// limit price and a strictly-better maker fill price. Fee tiers are
// consulted here (§6) even though the schedule's numbers are currently
// reserved at zero, so the call site exists for when a real tier registry
// is wired in.
func (b *Book) settleFill(taker, maker *orderpool.Order, takerAcct, makerAcct *account.Account, fillQty fixedpoint.FP, ts int64) error {
	_ = ts
	price := maker.Metadata.LimitPrice

	var buyOrder, sellOrder *orderpool.Order
	var buyAcct, sellAcct *account.Account
	if maker.Metadata.Side == common.Sell {
		buyOrder, buyAcct = taker, takerAcct
		sellOrder, sellAcct = maker, makerAcct
	} else {
		buyOrder, buyAcct = maker, makerAcct
		sellOrder, sellAcct = taker, takerAcct
	}

	notional, err := price.Mul(fillQty, fixedpoint.RoundTrunc)
	if err != nil {
		return err
	}

	takerFeeBps, makerFeeBps := b.Fees.TakerMakerFee(b.FeeType, 0)
	_ = b.Fees.ProtocolFee(b.FeeType, 0)
	_, _ = takerFeeBps.Apply(notional.Raw)
	_, _ = makerFeeBps.Apply(fillQty.Raw)

	buyOrder.Collateral = buyOrder.Collateral.SaturatingSub(notional)
	sellAcct.ReleaseQuote(notional)

	sellOrder.Collateral = sellOrder.Collateral.SaturatingSub(fillQty)
	buyAcct.ReleaseInstrument(fillQty)

	if taker == buyOrder && !taker.Metadata.IsMarket() && taker.Metadata.LimitPrice.Cmp(price) > 0 {
		surplus, _ := taker.Metadata.LimitPrice.Sub(price)
		refund, _ := surplus.Mul(fillQty, fixedpoint.RoundTrunc)
		if !refund.IsZero() {
			takerAcct.ReleaseQuote(refund)
			taker.Collateral = taker.Collateral.SaturatingSub(refund)
		}
	}

	return nil
}

// releaseResidualOnFinalize returns whatever collateral an order still
// holds back to its owner's account once it has nothing left to execute or
// await settlement for.
func (b *Book) releaseResidualOnFinalize(acct *account.Account, order *orderpool.Order) {
	if order.Collateral.IsZero() {
		return
	}
	if order.Metadata.Side == common.Buy {
		acct.ReleaseQuote(order.Collateral)
	} else {
		acct.ReleaseInstrument(order.Collateral)
	}
	order.Collateral = fixedpoint.Zero
}
