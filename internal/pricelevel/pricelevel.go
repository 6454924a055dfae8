// Package pricelevel implements PriceLevel (§3): the list of orders resting
// at one exact price on one side, plus the pooled table that allocates and
// recycles PriceLevel records the same way orderpool recycles Order records.
package pricelevel

import (
	"fenrir/internal/fixedpoint"
	"fenrir/internal/nodelist"
	"fenrir/internal/orderpool"
)

// ID is a handle into the level pool. Like orderpool.ID, it is recyclable
// and not a stable identity once the level empties and is freed.
type ID uint32

// Order is the (orderID, qty) record stored in a level's order list. qty is
// the order's quantity at this level that the crank has not yet settled: it
// includes any portion that has already matched and is only awaiting
// settlement, which the crank consumes from the head of the list.
type Order struct {
	OrderID orderpool.ID
	Qty     fixedpoint.FP
}

// listCapacity bounds how many PriceLevelOrder entries live in one NodeList
// node before a new one is chained on; kept small since most price levels
// hold only a handful of resting orders.
const listCapacity = 8

// Level is one price's resting-order queue, matched head-to-tail for
// price-time priority (§5 ordering guarantees).
type Level struct {
	Price fixedpoint.FP
	list  *nodelist.List[Order]
	next  ID
	live  bool
}

func (l *Level) Len() int      { return l.list.Len() }
func (l *Level) IsEmpty() bool { return l.list.IsEmpty() }

// PushBack appends a newly-booked order in arrival order.
func (l *Level) PushBack(o Order) { l.list.PushBack(o) }

// Front peeks the head order without removing it.
func (l *Level) Front() (Order, bool) { return l.list.Front() }

// PopFront removes and returns the head order.
func (l *Level) PopFront() (Order, bool) { return l.list.PopFront() }

// UpdateFront rewrites the head entry's quantity in place (the crank's
// partial-consumption case).
func (l *Level) UpdateFront(o Order) bool { return l.list.UpdateFront(o) }

// DropFront evicts n entries from the head without returning them.
func (l *Level) DropFront(n int) { l.list.DropFront(n) }

// Each walks the level head to tail; used by cancel_order's FIFO
// pending-qty attribution walk (§4.4 step 3).
func (l *Level) Each(fn func(Order) bool) { l.list.Each(fn) }

// UpdateOrder rewrites the list entry belonging to orderID in place, used
// when cancel_order leaves a pending-crank remainder resting at a
// non-head position in the level.
func (l *Level) UpdateOrder(orderID orderpool.ID, newQty fixedpoint.FP) bool {
	return l.list.UpdateMatch(func(o Order) bool { return o.OrderID == orderID }, Order{OrderID: orderID, Qty: newQty})
}

// RemoveOrder splices orderID's entry out of the list entirely, used when
// cancel_order cancels all of an order's remaining (non-pending) quantity.
func (l *Level) RemoveOrder(orderID orderpool.ID) (Order, bool) {
	return l.list.RemoveMatch(func(o Order) bool { return o.OrderID == orderID })
}

// Pool is the keyed, reusable table of Level records (PriceLevelReuseTable).
type Pool struct {
	levels     map[ID]*Level
	free       ID
	nextID     ID
	generation map[ID]uint32
}

func NewPool() *Pool {
	return &Pool{levels: make(map[ID]*Level), generation: make(map[ID]uint32)}
}

// Alloc pops the free list or grows the pool for a new price level.
func (p *Pool) Alloc(price fixedpoint.FP) ID {
	var id ID
	if p.free != 0 {
		id = p.free
		rec := p.levels[id]
		p.free = rec.next
	} else {
		p.nextID++
		id = p.nextID
		p.levels[id] = &Level{}
	}
	rec := p.levels[id]
	*rec = Level{Price: price, list: nodelist.New[Order](listCapacity), live: true}
	return id
}

func (p *Pool) Get(id ID) (*Level, bool) {
	rec, ok := p.levels[id]
	if !ok || !rec.live {
		return nil, false
	}
	return rec, true
}

// Free returns id to the free-list stack once its order list has drained
// empty (§4.10 PriceLevel lifecycle: In-use (empty) -> Unused).
func (p *Pool) Free(id ID) {
	rec, ok := p.levels[id]
	if !ok || !rec.live {
		return
	}
	rec.live = false
	rec.list = nil
	rec.next = p.free
	p.free = id
	p.generation[id]++
}

// Generation returns the slot's current reuse-epoch counter (§1c
// supplemental), bumped every time id's slot is freed. Diagnostic only;
// does not change the level id's external representation.
func (p *Pool) Generation(id ID) uint32 { return p.generation[id] }

func (p *Pool) Allocated() int { return len(p.levels) }

func (p *Pool) Live() int {
	n := 0
	for _, rec := range p.levels {
		if rec.live {
			n++
		}
	}
	return n
}
