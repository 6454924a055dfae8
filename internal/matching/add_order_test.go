package matching

import (
	"testing"

	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
	"fenrir/internal/orderpool"

	"github.com/stretchr/testify/require"
)

func TestAddOrderRestsWhenNonCrossing(t *testing.T) {
	book, iStore, qStore, _ := newTestBook(4)
	sellKey := openFunded(t, book, iStore, qStore, "seller", 10, 0)

	id, err := book.AddOrder(AddOrderParams{
		Owner:      "seller",
		AccountKey: sellKey,
		Side:       common.Sell,
		Behavior:   common.GTC,
		Price:      fixedpoint.FromUnits(10),
		Qty:        fixedpoint.FromUnits(5),
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	sum := book.SideSummary(common.Sell)
	require.Equal(t, 1, sum.CacheSize)
	require.Equal(t, fixedpoint.FromUnits(5), sum.CacheQty)

	order, ok := book.Orders.Get(orderpool.ID(id))
	require.True(t, ok)
	require.Equal(t, fixedpoint.FromUnits(5), order.Metadata.UnfilledQty)
}

func TestAddOrderCrossAndCrankSettlesConservingValue(t *testing.T) {
	book, iStore, qStore, sink := newTestBook(4)
	sellKey := openFunded(t, book, iStore, qStore, "seller", 10, 0)
	buyKey := openFunded(t, book, iStore, qStore, "buyer", 0, 100)

	_, err := book.AddOrder(AddOrderParams{
		Owner: "seller", AccountKey: sellKey, Side: common.Sell, Behavior: common.GTC,
		Price: fixedpoint.FromUnits(10), Qty: fixedpoint.FromUnits(5),
	})
	require.NoError(t, err)

	buyID, err := book.AddOrder(AddOrderParams{
		Owner: "buyer", AccountKey: buyKey, Side: common.Buy, Behavior: common.GTC,
		Price: fixedpoint.FromUnits(10), Qty: fixedpoint.FromUnits(5),
	})
	require.NoError(t, err)
	require.NotZero(t, buyID)

	require.Equal(t, 1, book.Queue.Len())

	require.NoError(t, book.Crank(10, 0))
	require.Equal(t, 0, book.Queue.Len())
	require.Len(t, sink.Executions, 1)
	require.Equal(t, fixedpoint.FromUnits(5).Raw, sink.Executions[0].Qty)

	buyAcct, err := book.Accounts.Get(buyKey)
	require.NoError(t, err)
	require.Equal(t, fixedpoint.FromUnits(5), buyAcct.InstrumentBalance)
	require.Equal(t, fixedpoint.FromUnits(50), buyAcct.QuoteBalance)

	sellAcct, err := book.Accounts.Get(sellKey)
	require.NoError(t, err)
	require.True(t, sellAcct.InstrumentBalance.IsZero())
	require.Equal(t, fixedpoint.FromUnits(50), sellAcct.QuoteBalance)

	// §8.1 conservation: the instrument that left the seller's balance
	// equals exactly what the buyer received.
	require.Equal(t, fixedpoint.FromUnits(5), buyAcct.InstrumentBalance)
	require.True(t, sellAcct.InstrumentBalance.IsZero())

	// And the taker order itself has finalized out of the pool.
	_, ok := book.Orders.Get(orderpool.ID(buyID))
	require.False(t, ok)
}

func TestIOCNonCrossingCancelsImmediately(t *testing.T) {
	book, iStore, qStore, sink := newTestBook(4)
	buyKey := openFunded(t, book, iStore, qStore, "buyer", 0, 100)

	id, err := book.AddOrder(AddOrderParams{
		Owner: "buyer", AccountKey: buyKey, Side: common.Buy, Behavior: common.IOC,
		Price: fixedpoint.FromUnits(5), Qty: fixedpoint.FromUnits(3),
	})
	require.NoError(t, err)
	require.Zero(t, id)
	require.Len(t, sink.Finalizes, 1)

	buyAcct, _ := book.Accounts.Get(buyKey)
	require.Equal(t, fixedpoint.FromUnits(100), buyAcct.QuoteBalance, "nothing should ever be reserved for a cancel-on-arrival IOC")
}

func TestPostCrossingCancelsWithoutBooking(t *testing.T) {
	book, iStore, qStore, sink := newTestBook(4)
	sellKey := openFunded(t, book, iStore, qStore, "seller", 10, 0)
	buyKey := openFunded(t, book, iStore, qStore, "buyer", 0, 100)

	_, err := book.AddOrder(AddOrderParams{
		Owner: "seller", AccountKey: sellKey, Side: common.Sell, Behavior: common.GTC,
		Price: fixedpoint.FromUnits(10), Qty: fixedpoint.FromUnits(5),
	})
	require.NoError(t, err)

	id, err := book.AddOrder(AddOrderParams{
		Owner: "buyer", AccountKey: buyKey, Side: common.Buy, Behavior: common.POST,
		Price: fixedpoint.FromUnits(10), Qty: fixedpoint.FromUnits(5),
	})
	require.NoError(t, err)
	require.Zero(t, id)
	require.Len(t, sink.Finalizes, 1)
}

func TestFOKNotFullyCoverableCancelsWithoutPartialFill(t *testing.T) {
	book, iStore, qStore, _ := newTestBook(4)
	sellKey := openFunded(t, book, iStore, qStore, "seller", 10, 0)
	buyKey := openFunded(t, book, iStore, qStore, "buyer", 0, 100)

	_, err := book.AddOrder(AddOrderParams{
		Owner: "seller", AccountKey: sellKey, Side: common.Sell, Behavior: common.GTC,
		Price: fixedpoint.FromUnits(10), Qty: fixedpoint.FromUnits(3),
	})
	require.NoError(t, err)

	id, err := book.AddOrder(AddOrderParams{
		Owner: "buyer", AccountKey: buyKey, Side: common.Buy, Behavior: common.FOK,
		Price: fixedpoint.FromUnits(10), Qty: fixedpoint.FromUnits(5),
	})
	require.NoError(t, err)
	require.Zero(t, id)
	require.Equal(t, 0, book.Queue.Len(), "FOK must never leave a partial match queued")

	sum := book.SideSummary(common.Sell)
	require.Equal(t, fixedpoint.FromUnits(3), sum.CacheQty, "resting maker must be untouched")

	buyAcct, _ := book.Accounts.Get(buyKey)
	require.Equal(t, fixedpoint.FromUnits(100), buyAcct.QuoteBalance)
}

func TestFOKFullyCoverableMatches(t *testing.T) {
	book, iStore, qStore, _ := newTestBook(4)
	sellKey := openFunded(t, book, iStore, qStore, "seller", 10, 0)
	buyKey := openFunded(t, book, iStore, qStore, "buyer", 0, 100)

	_, err := book.AddOrder(AddOrderParams{
		Owner: "seller", AccountKey: sellKey, Side: common.Sell, Behavior: common.GTC,
		Price: fixedpoint.FromUnits(10), Qty: fixedpoint.FromUnits(5),
	})
	require.NoError(t, err)

	id, err := book.AddOrder(AddOrderParams{
		Owner: "buyer", AccountKey: buyKey, Side: common.Buy, Behavior: common.FOK,
		Price: fixedpoint.FromUnits(10), Qty: fixedpoint.FromUnits(5),
	})
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Equal(t, 1, book.Queue.Len())
}

func TestMarketBuyClampsFillToCollateral(t *testing.T) {
	book, iStore, qStore, _ := newTestBook(4)
	sellKey := openFunded(t, book, iStore, qStore, "seller", 10, 0)
	buyKey := openFunded(t, book, iStore, qStore, "buyer", 0, 100)

	_, err := book.AddOrder(AddOrderParams{
		Owner: "seller", AccountKey: sellKey, Side: common.Sell, Behavior: common.GTC,
		Price: fixedpoint.FromUnits(10), Qty: fixedpoint.FromUnits(10),
	})
	require.NoError(t, err)

	id, err := book.AddOrder(AddOrderParams{
		Owner: "buyer", AccountKey: buyKey, Side: common.Buy, Behavior: common.IOC,
		Price: fixedpoint.Zero, Qty: fixedpoint.FromUnits(1000),
		MarketBuyMaxCollateral: fixedpoint.FromUnits(25),
	})
	require.NoError(t, err)
	// Collateral (25) divided by price (10) affords exactly 2.5 units, which
	// exhausts it exactly; the market buy stays live until the crank settles
	// that pending fill.
	require.NotZero(t, id)
	require.Equal(t, 1, book.Queue.Len())

	require.NoError(t, book.Crank(10, 0))
	sum := book.SideSummary(common.Sell)
	wantFilled, err := fixedpoint.FromUnits(25).Div(fixedpoint.FromUnits(10), fixedpoint.RoundTrunc)
	require.NoError(t, err)
	want, err := fixedpoint.FromUnits(10).Sub(wantFilled)
	require.NoError(t, err)
	require.Equal(t, want, sum.CacheQty)
}

func TestFOKCancelledAgainstEmptyBook(t *testing.T) {
	book, iStore, qStore, sink := newTestBook(4)
	buyKey := openFunded(t, book, iStore, qStore, "buyer", 0, 100)

	price, err := fixedpoint.FromUnits(17).Div(fixedpoint.FromUnits(2), fixedpoint.RoundNoLoss)
	require.NoError(t, err)
	id, err := book.AddOrder(AddOrderParams{
		Owner: "buyer", AccountKey: buyKey, Side: common.Buy, Behavior: common.FOK,
		Price: price, Qty: fixedpoint.FromUnits(10),
	})
	require.NoError(t, err)
	require.Zero(t, id)
	require.Len(t, sink.Finalizes, 1)
	require.Equal(t, 0, book.Queue.Len())

	buyAcct, _ := book.Accounts.Get(buyKey)
	require.Equal(t, fixedpoint.FromUnits(100), buyAcct.QuoteBalance, "empty book leaves nothing reserved")
}

func TestIOCPartialFillAcrossMultipleLevels(t *testing.T) {
	book, iStore, qStore, _ := newTestBook(4)
	sellKey := openFunded(t, book, iStore, qStore, "seller", 20, 0)
	buyKey := openFunded(t, book, iStore, qStore, "buyer", 0, 1000)

	for _, lvl := range []struct {
		price, qty uint64
	}{{5, 3}, {6, 3}, {7, 5}, {8, 4}, {9, 3}} {
		_, err := book.AddOrder(AddOrderParams{
			Owner: "seller", AccountKey: sellKey, Side: common.Sell, Behavior: common.GTC,
			Price: fixedpoint.FromUnits(lvl.price), Qty: fixedpoint.FromUnits(lvl.qty),
		})
		require.NoError(t, err)
	}

	price, err := fixedpoint.FromUnits(15).Div(fixedpoint.FromUnits(2), fixedpoint.RoundNoLoss)
	require.NoError(t, err)
	id, err := book.AddOrder(AddOrderParams{
		Owner: "buyer", AccountKey: buyKey, Side: common.Buy, Behavior: common.IOC,
		Price: price, Qty: fixedpoint.FromUnits(12),
	})
	require.NoError(t, err)
	require.NotZero(t, id, "IOC with a real partial fill rests as a live (already-pending) order until crank")
	require.Equal(t, 3, book.Queue.Len(), "only the 5,6,7 levels cross a 7.5 limit")

	require.NoError(t, book.Crank(10, 0))
	sum := book.SideSummary(common.Sell)
	// maxCacheSize=4, so levels 5,6,7,8 filled the cache and 9 overflowed to
	// the tree; only the cache's three lowest (5,6,7) crossed the 7.5 limit,
	// leaving just level 8 in the cache and level 9 untouched in the tree.
	require.Equal(t, fixedpoint.FromUnits(4), sum.CacheQty)
	require.Equal(t, fixedpoint.FromUnits(9), sum.TreeBound, "level 9 was never touched")

	buyAcct, _ := book.Accounts.Get(buyKey)
	require.Equal(t, fixedpoint.FromUnits(11), buyAcct.InstrumentBalance)
	require.Equal(t, fixedpoint.FromUnits(1000-68), buyAcct.QuoteBalance)
}

func TestCrossingAtIdenticalPriceLeavesMakerRemainder(t *testing.T) {
	book, iStore, qStore, _ := newTestBook(4)
	sellKey := openFunded(t, book, iStore, qStore, "seller", 10, 0)
	buyKey := openFunded(t, book, iStore, qStore, "buyer", 0, 100)

	_, err := book.AddOrder(AddOrderParams{
		Owner: "seller", AccountKey: sellKey, Side: common.Sell, Behavior: common.GTC,
		Price: fixedpoint.FromUnits(8), Qty: fixedpoint.FromUnits(3),
	})
	require.NoError(t, err)

	_, err = book.AddOrder(AddOrderParams{
		Owner: "buyer", AccountKey: buyKey, Side: common.Buy, Behavior: common.GTC,
		Price: fixedpoint.FromUnits(8), Qty: fixedpoint.FromUnits(2),
	})
	require.NoError(t, err)

	require.Equal(t, 1, book.Queue.Len())
	sum := book.SideSummary(common.Sell)
	require.Equal(t, fixedpoint.FromUnits(1), sum.CacheQty, "2 of the resting 3 matched, 1 remains")
}

func TestValidateRejectsInvalidSideAndBehavior(t *testing.T) {
	book, iStore, qStore, _ := newTestBook(4)
	key := openFunded(t, book, iStore, qStore, "trader", 10, 100)

	_, err := book.AddOrder(AddOrderParams{Owner: "trader", AccountKey: key, Side: 0, Behavior: common.GTC, Price: fixedpoint.FromUnits(1), Qty: fixedpoint.FromUnits(1)})
	require.ErrorIs(t, err, common.ErrInvalidSide)

	_, err = book.AddOrder(AddOrderParams{Owner: "trader", AccountKey: key, Side: common.Buy, Behavior: 0, Price: fixedpoint.FromUnits(1), Qty: fixedpoint.FromUnits(1)})
	require.ErrorIs(t, err, common.ErrInvalidBehavior)
}

func TestValidateRejectsMarketOrderWithGTCBehavior(t *testing.T) {
	book, iStore, qStore, _ := newTestBook(4)
	key := openFunded(t, book, iStore, qStore, "trader", 10, 100)

	_, err := book.AddOrder(AddOrderParams{
		Owner: "trader", AccountKey: key, Side: common.Buy, Behavior: common.GTC,
		Price: fixedpoint.Zero, Qty: fixedpoint.FromUnits(1), MarketBuyMaxCollateral: fixedpoint.FromUnits(10),
	})
	require.ErrorIs(t, err, common.ErrInvalidBehavior)
}

func TestValidateRejectsLimitOrderWithMaxCollateralSet(t *testing.T) {
	book, iStore, qStore, _ := newTestBook(4)
	key := openFunded(t, book, iStore, qStore, "trader", 10, 100)

	_, err := book.AddOrder(AddOrderParams{
		Owner: "trader", AccountKey: key, Side: common.Buy, Behavior: common.GTC,
		Price: fixedpoint.FromUnits(5), Qty: fixedpoint.FromUnits(1), MarketBuyMaxCollateral: fixedpoint.FromUnits(10),
	})
	require.ErrorIs(t, err, common.ErrInvalidMaxCollateralAmt)
}

func TestAddOrderRejectsUnauthorizedCaller(t *testing.T) {
	book, iStore, qStore, _ := newTestBook(4)
	key := openFunded(t, book, iStore, qStore, "owner", 10, 100)

	_, err := book.AddOrder(AddOrderParams{
		Owner: "mallory", AccountKey: key, Side: common.Sell, Behavior: common.GTC,
		Price: fixedpoint.FromUnits(5), Qty: fixedpoint.FromUnits(1),
	})
	require.ErrorIs(t, err, common.ErrNotOwner)
}
