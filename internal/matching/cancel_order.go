package matching

import (
	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
	"fenrir/internal/orderpool"
	"fenrir/internal/pricelevel"
)

// CancelOrder implements §4.4: cancel whatever portion of orderID's resting
// quantity has not already been matched and queued for settlement. The
// portion still pending a crank can never be cancelled — it belongs to a
// maker fill that is already committed, just not yet settled.
func (b *Book) CancelOrder(owner string, orderID uint32, ts int64) error {
	id := orderpool.ID(orderID)
	order, ok := b.Orders.Get(id)
	if !ok {
		return common.ErrUnknownOrder
	}

	acct, err := b.Accounts.Get(order.Metadata.AccountKey)
	if err != nil {
		return err
	}
	if !acct.IsOwnerOrProtocol(owner) {
		return common.ErrNotOwner
	}

	if order.Metadata.UnfilledQty.Cmp(order.Metadata.TakerCrankPendingQty) <= 0 {
		return common.ErrPendingCrank
	}
	if order.PriceLevelID == 0 {
		return common.ErrUnknownOrder
	}

	level, ok := b.Levels.Get(pricelevel.ID(order.PriceLevelID))
	if !ok {
		return common.ErrUnknownOrder
	}

	store := b.storeFor(order.Metadata.Side)
	price := order.Metadata.LimitPrice
	elem, ok := store.Get(price)
	if !ok {
		return common.ErrPriceStoreElemNotFound
	}

	cancellable, entryQty, found, err := cancellableQty(level, elem.MakerCrankPendingQty, id)
	if !found {
		return common.ErrUnknownOrder
	}
	if err != nil {
		return err
	}

	if cancellable.Cmp(entryQty) == 0 {
		level.RemoveOrder(id)
	} else {
		remainder, _ := entryQty.Sub(cancellable)
		level.UpdateOrder(id, remainder)
	}

	elem.Qty, _ = elem.Qty.Sub(cancellable)
	if elem.IsDead() {
		store.Delete(price)
	} else {
		store.RecomputeSummary()
	}

	if level.IsEmpty() {
		b.Levels.Free(pricelevel.ID(order.PriceLevelID))
		order.PriceLevelID = 0
	}

	order.Metadata.UnfilledQty, _ = order.Metadata.UnfilledQty.Sub(cancellable)
	b.releaseResidualCollateral(acct, order, cancellable)

	if order.IsFinalized() {
		b.finalizeOrder(acct, id, order, ts)
	}

	b.emitPriceUpdate(ts)
	return nil
}

// cancellableQty implements §4.4 step 3's FIFO pending-qty attribution: the
// level's aggregate MakerCrankPendingQty is virtually assigned to the
// earliest list entries first, since those are the ones a crank will settle
// first. Returns the quantity of the target order that can still be
// cancelled, that order's full resting quantity, whether it was found in
// the list at all, and ErrPendingCrank if the whole entry is already
// spoken for.
func cancellableQty(level *pricelevel.Level, levelPending fixedpoint.FP, target orderpool.ID) (cancellable, entryQty fixedpoint.FP, found bool, err error) {
	pending := levelPending
	level.Each(func(o pricelevel.Order) bool {
		if o.OrderID != target {
			if pending.Cmp(o.Qty) >= 0 {
				pending, _ = pending.Sub(o.Qty)
			} else {
				pending = fixedpoint.Zero
			}
			return true
		}
		found = true
		entryQty = o.Qty
		if pending.Cmp(o.Qty) >= 0 {
			err = common.ErrPendingCrank
			return false
		}
		cancellable, _ = o.Qty.Sub(pending)
		return false
	})
	return cancellable, entryQty, found, err
}
