package orderpool

import (
	"testing"

	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"

	"github.com/stretchr/testify/require"
)

func TestAllocAssignsDistinctIDs(t *testing.T) {
	p := NewPool()
	id1 := p.Alloc(Metadata{Side: common.Buy, OriginalQty: fixedpoint.FromUnits(1)}, fixedpoint.FromUnits(10))
	id2 := p.Alloc(Metadata{Side: common.Sell, OriginalQty: fixedpoint.FromUnits(1)}, fixedpoint.FromUnits(10))
	require.NotEqual(t, id1, id2)
	require.Equal(t, 2, p.Allocated())
	require.Equal(t, 2, p.Live())
}

func TestGetReturnsFalseForFreeSlot(t *testing.T) {
	p := NewPool()
	id := p.Alloc(Metadata{}, fixedpoint.Zero)
	p.Free(id)
	_, ok := p.Get(id)
	require.False(t, ok)
}

func TestFreeRecyclesSlotAndBumpsGeneration(t *testing.T) {
	// §8.8/§1c: the freelist-then-realloc cycle reuses the slot and the
	// generation counter tracks every Free so stale handles are
	// distinguishable from a live order occupying the same slot.
	p := NewPool()
	id1 := p.Alloc(Metadata{Side: common.Buy}, fixedpoint.Zero)
	require.Equal(t, uint32(0), p.Generation(id1))
	p.Free(id1)
	require.Equal(t, uint32(1), p.Generation(id1))

	id2 := p.Alloc(Metadata{Side: common.Sell}, fixedpoint.Zero)
	require.Equal(t, id1, id2, "freed slot should be recycled before growing the pool")
	require.Equal(t, uint32(1), p.Generation(id2))

	p.Free(id2)
	require.Equal(t, uint32(2), p.Generation(id2))
}

func TestAllocatedLiveInvariant(t *testing.T) {
	// §8.8: Live + len(freelist) == Allocated always.
	p := NewPool()
	ids := make([]ID, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, p.Alloc(Metadata{}, fixedpoint.Zero))
	}
	p.Free(ids[1])
	p.Free(ids[3])
	require.Equal(t, 5, p.Allocated())
	require.Equal(t, 3, p.Live())

	// Reallocating should only ever reuse freed slots or grow by one.
	id := p.Alloc(Metadata{}, fixedpoint.Zero)
	require.Equal(t, 5, p.Allocated())
	require.Equal(t, 4, p.Live())
	require.Contains(t, []ID{ids[1], ids[3]}, id)
}

func TestFreeClearsMetadataAndCollateral(t *testing.T) {
	p := NewPool()
	id := p.Alloc(Metadata{Side: common.Buy, OriginalQty: fixedpoint.FromUnits(5)}, fixedpoint.FromUnits(5))
	p.Free(id)

	// Reallocate the same slot and confirm no stale state leaked through.
	id2 := p.Alloc(Metadata{Side: common.Sell, OriginalQty: fixedpoint.FromUnits(1)}, fixedpoint.FromUnits(1))
	require.Equal(t, id, id2)
	rec, ok := p.Get(id2)
	require.True(t, ok)
	require.Equal(t, common.Sell, rec.Metadata.Side)
	require.Equal(t, fixedpoint.FromUnits(1), rec.Metadata.OriginalQty)
	require.Equal(t, fixedpoint.FromUnits(1), rec.Collateral)
}

func TestDoubleFreeIsNoop(t *testing.T) {
	p := NewPool()
	id := p.Alloc(Metadata{}, fixedpoint.Zero)
	p.Free(id)
	gen := p.Generation(id)
	p.Free(id) // already free; must not double-push the freelist or rebump generation
	require.Equal(t, gen, p.Generation(id))
	require.Equal(t, 1, p.Allocated())
	require.Equal(t, 0, p.Live())
}

func TestIsFinalizedPlainOrder(t *testing.T) {
	o := &Order{live: true, Metadata: Metadata{UnfilledQty: fixedpoint.FromUnits(1)}}
	require.False(t, o.IsFinalized())
	o.Metadata.UnfilledQty = fixedpoint.Zero
	require.True(t, o.IsFinalized())
}

func TestIsFinalizedPendingCrankBlocksFinalization(t *testing.T) {
	o := &Order{live: true, Metadata: Metadata{
		UnfilledQty:          fixedpoint.Zero,
		TakerCrankPendingQty: fixedpoint.FromUnits(1),
	}}
	require.False(t, o.IsFinalized(), "quantity still awaiting a crank keeps the order alive")
}

func TestIsFinalizedMarketBuyExhaustedCollateral(t *testing.T) {
	// §9: a market buy that has spent all its collateral is finalized even
	// though nominal unfilled quantity remains, since it can never fill more.
	o := &Order{live: true, Metadata: Metadata{
		Side:                         common.Buy,
		LimitPrice:                   fixedpoint.Zero,
		UnfilledQty:                  fixedpoint.FromUnits(100),
		MarketBuyRemainingCollateral: fixedpoint.Zero,
	}}
	require.True(t, o.Metadata.IsMarketBuy())
	require.True(t, o.IsFinalized())
}

func TestIsMarketAndIsMarketBuy(t *testing.T) {
	limit := Metadata{LimitPrice: fixedpoint.FromUnits(5), Side: common.Buy}
	require.False(t, limit.IsMarket())
	require.False(t, limit.IsMarketBuy())

	marketBuy := Metadata{LimitPrice: fixedpoint.Zero, Side: common.Buy}
	require.True(t, marketBuy.IsMarket())
	require.True(t, marketBuy.IsMarketBuy())

	marketSell := Metadata{LimitPrice: fixedpoint.Zero, Side: common.Sell}
	require.True(t, marketSell.IsMarket())
	require.False(t, marketSell.IsMarketBuy())
}

func TestTakerRemaining(t *testing.T) {
	o := &Order{live: true, Metadata: Metadata{
		UnfilledQty:          fixedpoint.FromUnits(10),
		TakerCrankPendingQty: fixedpoint.FromUnits(3),
	}}
	rem, err := o.TakerRemaining()
	require.NoError(t, err)
	require.Equal(t, fixedpoint.FromUnits(7), rem)
}
