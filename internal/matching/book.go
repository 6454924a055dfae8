// Package matching implements the MatchingEngine and Crank components
// (§4.2-§4.6, §2 rows 8-9): the two-phase submit/settle pipeline that is
// the hard part of this whole system. A Book binds one market's two
// PriceStores, its OrderPool, PriceLevel pool, execution queue, and the
// MarketAccount registry it settles collateral against.
package matching

import (
	"fenrir/internal/account"
	"fenrir/internal/common"
	"fenrir/internal/fees"
	"fenrir/internal/fixedpoint"
	"fenrir/internal/nodelist"
	"fenrir/internal/orderpool"
	"fenrir/internal/pricelevel"
	"fenrir/internal/pricestore"
)

// Event is ExecutionQueueEvent (§3): a match recorded during add_order,
// awaiting settlement by a later crank call.
type Event struct {
	Qty           fixedpoint.FP
	TakerOrderID  orderpool.ID
	PriceLevelID  pricelevel.ID
	TimestampSecs int64
}

// queueCapacity bounds how many Events live in one nodelist chunk.
const queueCapacity = 32

// Book is one market's matching engine state: everything component #11's
// Orderbook facade binds together, minus the account registry it shares
// with the rest of the market (passed in so deposit/withdraw and matching
// settlement see the same accounts).
type Book struct {
	IDecimals    uint8
	QDecimals    uint8
	MaxCacheSize int

	buyStore  *pricestore.Store
	sellStore *pricestore.Store
	Orders    *orderpool.Pool
	Levels    *pricelevel.Pool
	Accounts  *account.Registry
	Queue     *nodelist.List[Event]

	Sink   common.Sink
	Fees   fees.Schedule
	FeeType fees.Type

	InstrumentType string
	QuoteType      string
}

func NewBook(iDecimals, qDecimals uint8, maxCacheSize int, accounts *account.Registry, sink common.Sink, schedule fees.Schedule, feeType fees.Type, instrumentType, quoteType string) *Book {
	return &Book{
		IDecimals:      iDecimals,
		QDecimals:      qDecimals,
		MaxCacheSize:   maxCacheSize,
		buyStore:       pricestore.New(common.Buy, maxCacheSize),
		sellStore:      pricestore.New(common.Sell, maxCacheSize),
		Orders:         orderpool.NewPool(),
		Levels:         pricelevel.NewPool(),
		Accounts:       accounts,
		Queue:          nodelist.New[Event](queueCapacity),
		Sink:           sink,
		Fees:           schedule,
		FeeType:        feeType,
		InstrumentType: instrumentType,
		QuoteType:      quoteType,
	}
}

func (b *Book) storeFor(side common.Side) *pricestore.Store {
	if side == common.Buy {
		return b.buyStore
	}
	return b.sellStore
}

func (b *Book) oppositeStore(side common.Side) *pricestore.Store {
	return b.storeFor(side.Opposite())
}

// BuyStore and SellStore expose the two sides read-only, for the facade's
// summary-reporting API.
func (b *Book) BuyStore() *pricestore.Store  { return b.buyStore }
func (b *Book) SellStore() *pricestore.Store { return b.sellStore }

// SideSummary is a read-only snapshot of one side's MarketSummary (§3),
// exposed through the Orderbook facade for callers that only want
// top-of-book bounds and sizes.
type SideSummary struct {
	CacheQty  fixedpoint.FP
	CacheMax  fixedpoint.FP
	CacheMin  fixedpoint.FP
	CacheSize int
	TreeBound fixedpoint.FP
}

func (b *Book) SideSummary(side common.Side) SideSummary {
	s := b.storeFor(side).Summary
	return SideSummary{
		CacheQty:  s.CacheQty,
		CacheMax:  s.CacheMax,
		CacheMin:  s.CacheMin,
		CacheSize: s.CacheSize,
		TreeBound: s.TreeBound,
	}
}

func minFP(a, b fixedpoint.FP) fixedpoint.FP {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}

// crossesSpread implements §4.2 step 2: a market order always crosses; a
// limit order crosses if it reaches into the opposite side's best price.
func (b *Book) crossesSpread(side common.Side, price fixedpoint.FP) bool {
	if price.IsZero() {
		return true
	}
	switch side {
	case common.Sell:
		maxBid, ok := b.buyStore.BestPrice()
		return ok && price.Cmp(maxBid) <= 0
	case common.Buy:
		minAsk, ok := b.sellStore.BestPrice()
		return ok && price.Cmp(minAsk) >= 0
	}
	return false
}

// emitPriceUpdate recomputes and emits the top-of-book snapshot (§6
// PriceUpdateEvent); called at the end of every public operation that may
// have moved the touched side's best price.
func (b *Book) emitPriceUpdate(ts int64) {
	var maxBid, minAsk uint64
	var bidSize, askSize uint64
	if p, ok := b.buyStore.BestPrice(); ok {
		maxBid = p.Raw
	}
	if p, ok := b.sellStore.BestPrice(); ok {
		minAsk = p.Raw
	}
	bidSize = b.buyStore.Summary.CacheQty.Raw
	askSize = b.sellStore.Summary.CacheQty.Raw
	b.sink().PriceUpdate(common.PriceUpdateEvent{
		InstrumentType:        b.InstrumentType,
		QuoteType:             b.QuoteType,
		MaxBid:                maxBid,
		BidSize:               bidSize,
		MinAsk:                minAsk,
		AskSize:               askSize,
		TimestampMicroSeconds: ts * 1_000_000,
	})
}
