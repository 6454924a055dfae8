// Package orderpool implements Order and the OrderPool that allocates and
// recycles them (§3 Order, §4.9). Orders are stored by slot in a table;
// freed slots are pushed onto a LIFO free list threaded through the record
// itself, so repeated add_order/cancel_order traffic amortizes to zero
// extra allocation after the pool has warmed up.
package orderpool

import (
	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
)

// ID is a handle into the pool. IDs are not a stable identity: once an
// order finalizes its slot returns to the free list and a later add_order
// may reuse the same ID for an unrelated order (§4.9). Callers must treat
// "the live metadata at this ID" as the only valid notion of identity.
type ID uint32

// Metadata is the plain value describing one order's behavior and state
// (§3 OrderMetadata).
type Metadata struct {
	Side                        common.Side
	Behavior                    common.Behavior
	LimitPrice                  fixedpoint.FP // zero means market order
	OriginalQty                 fixedpoint.FP
	UnfilledQty                 fixedpoint.FP
	TakerCrankPendingQty        fixedpoint.FP
	ClientOrderID               uint64
	OwnerAddress                string
	AccountKey                  common.AccountKey
	MarketBuyRemainingCollateral fixedpoint.FP
}

func (m Metadata) IsMarket() bool { return m.LimitPrice.IsZero() }
func (m Metadata) IsMarketBuy() bool {
	return m.IsMarket() && m.Side == common.Buy
}

// Order owns the resting collateral reservoir (quote for a buy, instrument
// for a sell), its metadata, and the price level it is attached to (zero
// when taker-only or not yet booked). next threads the free list (zero for
// the slot at the bottom of the stack); live reports whether the slot
// currently holds an order rather than sitting on the free list.
type Order struct {
	Metadata     Metadata
	PriceLevelID uint32
	Collateral   fixedpoint.FP
	next         ID
	live         bool
}

// IsFinalized reports whether the order has no remaining execution capacity
// and no quantity still pending a crank (§3 Order lifecycle). A market buy
// that has exhausted its collateral is also considered finalized even if
// unfilled quantity remains, once none of its fills is still pending a
// crank: matching logic relies on this (see §9 open
// questions), because a collateral-exhausted market buy can never fill
// another unit regardless of how much quantity is nominally left.
func (o *Order) IsFinalized() bool {
	if !o.live {
		return true
	}
	if o.Metadata.IsMarketBuy() && o.Metadata.MarketBuyRemainingCollateral.IsZero() {
		return o.Metadata.TakerCrankPendingQty.IsZero()
	}
	return o.Metadata.UnfilledQty.IsZero() && o.Metadata.TakerCrankPendingQty.IsZero()
}

// TakerRemaining is the quantity still available to match as a taker in the
// current add_order call: unfilled minus whatever is already pending a
// crank from earlier fills in the same walk.
func (o *Order) TakerRemaining() (fixedpoint.FP, error) {
	return o.Metadata.UnfilledQty.Sub(o.Metadata.TakerCrankPendingQty)
}

// Pool is the keyed table of Order records plus its free-list stack.
type Pool struct {
	orders     map[ID]*Order
	free       ID
	nextID     ID
	generation map[ID]uint32
}

func NewPool() *Pool {
	return &Pool{orders: make(map[ID]*Order), generation: make(map[ID]uint32)}
}

// Alloc pops the free list or grows the pool, returning a fresh handle with
// the record populated from md (§4.2 step 5, §4.9).
func (p *Pool) Alloc(md Metadata, collateral fixedpoint.FP) ID {
	var id ID
	if p.free != 0 {
		id = p.free
		rec := p.orders[id]
		p.free = rec.next
	} else {
		p.nextID++
		id = p.nextID
		p.orders[id] = &Order{}
	}
	rec := p.orders[id]
	*rec = Order{Metadata: md, Collateral: collateral, live: true}
	return id
}

// Get returns the live record at id, or ok=false if the slot is free (the
// id does not currently refer to a live order).
func (p *Pool) Get(id ID) (*Order, bool) {
	rec, ok := p.orders[id]
	if !ok || !rec.live {
		return nil, false
	}
	return rec, true
}

// Free returns id's slot to the free-list stack. Callers must have already
// released any remaining collateral and emitted IndexingFinalizeEvent.
func (p *Pool) Free(id ID) {
	rec, ok := p.orders[id]
	if !ok || !rec.live {
		return
	}
	rec.live = false
	rec.Metadata = Metadata{}
	rec.PriceLevelID = 0
	rec.Collateral = fixedpoint.FP{}
	rec.next = p.free
	p.free = id
	p.generation[id]++
}

// Generation returns the slot's current reuse-epoch counter (§1c
// supplemental), bumped every time id's slot is freed. Used only for the
// object-pool-safety testable property; it is not part of the order's
// public identity and is not exposed over the wire.
func (p *Pool) Generation(id ID) uint32 { return p.generation[id] }

// Live and Allocated support the object-pool-safety testable property
// (§8.8): Live + len(freelist) == Allocated always.
func (p *Pool) Allocated() int { return len(p.orders) }

func (p *Pool) Live() int {
	n := 0
	for _, rec := range p.orders {
		if rec.live {
			n++
		}
	}
	return n
}
