package matching

import (
	"fenrir/internal/account"
	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
	"fenrir/internal/orderpool"
	"fenrir/internal/pricelevel"
	"fenrir/internal/pricestore"
)

// AddOrderParams carries add_order's arguments (§4.1).
type AddOrderParams struct {
	Owner                  string
	AccountKey             common.AccountKey
	Side                   common.Side
	Behavior               common.Behavior
	Price                  fixedpoint.FP // zero means market order
	Qty                    fixedpoint.FP
	ClientOrderID          uint64
	MarketBuyMaxCollateral fixedpoint.FP
	TimestampSecs          int64
}

func (p AddOrderParams) isMarket() bool { return p.Price.IsZero() }

// validate implements §4.2 step 1.
func (b *Book) validate(p AddOrderParams) error {
	if !p.Side.Valid() {
		return common.ErrInvalidSide
	}
	if !p.Behavior.Valid() {
		return common.ErrInvalidBehavior
	}
	if fixedpoint.ExceedsDecimals(p.Price.Raw, b.QDecimals) {
		return common.ErrInvalidConfig
	}
	if fixedpoint.ExceedsDecimals(p.Qty.Raw, b.IDecimals) {
		return common.ErrInvalidConfig
	}
	if p.isMarket() {
		if p.Behavior != common.IOC && p.Behavior != common.FOK {
			return common.ErrInvalidBehavior
		}
		if p.Side == common.Buy && p.MarketBuyMaxCollateral.IsZero() {
			return common.ErrInvalidMaxCollateralAmt
		}
		if p.Side == common.Sell && !p.MarketBuyMaxCollateral.IsZero() {
			return common.ErrInvalidMaxCollateralAmt
		}
	} else if !p.MarketBuyMaxCollateral.IsZero() {
		return common.ErrInvalidMaxCollateralAmt
	}
	return nil
}

// AddOrder implements the full §4.2 control flow: validate, test the
// spread, apply the behavior gate, acquire collateral, allocate the Order,
// match if crossing, then either return unbooked, cancel the residual, or
// book it.
func (b *Book) AddOrder(p AddOrderParams) (uint32, error) {
	if err := b.validate(p); err != nil {
		return 0, err
	}
	acct, err := b.Accounts.Get(p.AccountKey)
	if err != nil {
		return 0, err
	}
	if !acct.IsOwnerOrProtocol(p.Owner) {
		return 0, common.ErrNotOwner
	}

	crosses := b.crossesSpread(p.Side, p.Price)

	switch {
	case p.Behavior == common.IOC && !p.isMarket() && !crosses:
		b.sink().Finalize(common.IndexingFinalizeEvent{AccountKey: p.AccountKey, OriginalQty: p.Qty.Raw, Price: p.Price.Raw, TimestampSecs: p.TimestampSecs})
		return 0, nil
	case p.Behavior == common.POST && crosses:
		b.sink().Finalize(common.IndexingFinalizeEvent{AccountKey: p.AccountKey, OriginalQty: p.Qty.Raw, Price: p.Price.Raw, TimestampSecs: p.TimestampSecs})
		return 0, nil
	case p.Behavior == common.FOK:
		if !crosses || !b.simulateFullyCoverable(p) {
			b.sink().Finalize(common.IndexingFinalizeEvent{AccountKey: p.AccountKey, OriginalQty: p.Qty.Raw, Price: p.Price.Raw, TimestampSecs: p.TimestampSecs})
			return 0, nil
		}
	}

	collateral, err := b.acquireCollateral(acct, p)
	if err != nil {
		return 0, err
	}

	md := orderpool.Metadata{
		Side:          p.Side,
		Behavior:      p.Behavior,
		LimitPrice:    p.Price,
		OriginalQty:   p.Qty,
		UnfilledQty:   p.Qty,
		ClientOrderID: p.ClientOrderID,
		OwnerAddress:  p.Owner,
		AccountKey:    p.AccountKey,
	}
	if p.isMarket() && p.Side == common.Buy {
		md.MarketBuyRemainingCollateral = p.MarketBuyMaxCollateral
	}

	id := b.Orders.Alloc(md, collateral)
	order, _ := b.Orders.Get(id)
	acct.AddActiveOrder(uint32(id))

	if crosses {
		b.matchOrder(id, order, p.TimestampSecs)
	}

	remaining, _ := order.TakerRemaining()
	switch {
	case remaining.IsZero():
		b.emitPriceUpdate(p.TimestampSecs)
		return uint32(id), nil

	case order.Metadata.Behavior == common.IOC || order.Metadata.IsMarket():
		cancelled := remaining
		order.Metadata.UnfilledQty = order.Metadata.TakerCrankPendingQty
		b.releaseResidualCollateral(acct, order, cancelled)
		if order.IsFinalized() {
			b.finalizeOrder(acct, id, order, p.TimestampSecs)
			b.emitPriceUpdate(p.TimestampSecs)
			return 0, nil
		}
		b.emitPriceUpdate(p.TimestampSecs)
		return uint32(id), nil

	default:
		b.bookResidual(id, order, p.TimestampSecs)
		b.emitPriceUpdate(p.TimestampSecs)
		return uint32(id), nil
	}
}

func (b *Book) sink() common.Sink {
	if b.Sink == nil {
		return common.NopSink{}
	}
	return b.Sink
}

// acquireCollateral implements §4.2 step 4: a buy withdraws price*qty (or
// the declared market-buy cap) of quote; a sell withdraws qty of
// instrument.
func (b *Book) acquireCollateral(acct *account.Account, p AddOrderParams) (fixedpoint.FP, error) {
	if p.Side == common.Buy {
		amount := p.MarketBuyMaxCollateral
		if !p.isMarket() {
			var err error
			amount, err = p.Price.Mul(p.Qty, fixedpoint.RoundNoLoss)
			if err != nil {
				return fixedpoint.FP{}, err
			}
		}
		if err := acct.ReserveQuote(amount); err != nil {
			return fixedpoint.FP{}, err
		}
		return amount, nil
	}
	if err := acct.ReserveInstrument(p.Qty); err != nil {
		return fixedpoint.FP{}, err
	}
	return p.Qty, nil
}

// releaseResidualCollateral refunds the cancelled-on-arrival portion of an
// IOC/market order back to its owner: buy refunds price*qtyCancelled of
// quote (or, for a market buy, whatever collateral is left unspent), sell
// refunds qtyCancelled of instrument.
func (b *Book) releaseResidualCollateral(acct *account.Account, order *orderpool.Order, cancelledQty fixedpoint.FP) {
	if order.Metadata.Side == common.Buy {
		if order.Metadata.IsMarket() {
			acct.ReleaseQuote(order.Metadata.MarketBuyRemainingCollateral)
			order.Collateral = order.Collateral.SaturatingSub(order.Metadata.MarketBuyRemainingCollateral)
			order.Metadata.MarketBuyRemainingCollateral = fixedpoint.Zero
			return
		}
		refund, _ := order.Metadata.LimitPrice.Mul(cancelledQty, fixedpoint.RoundTrunc)
		acct.ReleaseQuote(refund)
		order.Collateral = order.Collateral.SaturatingSub(refund)
		return
	}
	acct.ReleaseInstrument(cancelledQty)
	order.Collateral = order.Collateral.SaturatingSub(cancelledQty)
}

// finalizeOrder drops an exhausted taker order's slot back to the pool and
// emits its IndexingFinalizeEvent, removing it from its account's active set.
func (b *Book) finalizeOrder(acct *account.Account, id orderpool.ID, order *orderpool.Order, ts int64) {
	b.sink().Finalize(common.IndexingFinalizeEvent{
		AccountKey:    order.Metadata.AccountKey,
		OriginalQty:   order.Metadata.OriginalQty.Raw,
		Price:         order.Metadata.LimitPrice.Raw,
		TimestampSecs: ts,
	})
	acct.RemoveActiveOrder(uint32(id))
	b.Orders.Free(id)
}

// bookResidual implements §4.2 step 7's final branch: insert the resting
// remainder into the matching side's PriceStore (allocating a fresh level
// if none exists at this price yet) and append the PriceLevelOrder.
func (b *Book) bookResidual(id orderpool.ID, order *orderpool.Order, ts int64) {
	store := b.storeFor(order.Metadata.Side)
	price := order.Metadata.LimitPrice
	restQty, _ := order.Metadata.UnfilledQty.Sub(order.Metadata.TakerCrankPendingQty)

	elem, ok := store.Get(price)
	if !ok {
		levelID := b.Levels.Alloc(price)
		elem = &pricestore.Elem{PriceLevelID: levelID}
		store.Insert(price, elem)
	}
	elem.Qty, _ = elem.Qty.Add(restQty)
	level, _ := b.Levels.Get(elem.PriceLevelID)
	level.PushBack(pricelevel.Order{OrderID: id, Qty: restQty})
	order.PriceLevelID = uint32(elem.PriceLevelID)
	store.RecomputeSummary()
}
