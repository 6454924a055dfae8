// Package orderbook implements component #11 of the design: the facade
// that binds a PriceStore pair, the order and price-level pools, the
// account registry, and the execution queue into the public API a hosting
// platform actually calls (§4.1). Everything it does is delegate into the
// lower components; its own job is argument translation and the one-time
// config validation performed at init_market.
package orderbook

import (
	"fenrir/internal/account"
	"fenrir/internal/coin"
	"fenrir/internal/common"
	"fenrir/internal/fees"
	"fenrir/internal/fixedpoint"
	"fenrir/internal/matching"
)

// Config carries init_market's arguments (§4.1).
type Config struct {
	IDecimals      uint8
	QDecimals      uint8
	MaxCacheSize   int
	FeeType        fees.Type
	InstrumentType string
	QuoteType      string
}

// Market is one running instance of the core: a single instrument/quote
// pair bound to its matching engine, its account registry, and the coin
// stores it settles against.
type Market struct {
	book     *matching.Book
	accounts *account.Registry
}

// InitMarket implements §4.1's init_market: validates that the pair's
// canonical precision fits within both underlying coins' own decimals, then
// constructs an empty market with an empty summary and no orders.
func InitMarket(cfg Config, iStore, qStore coin.Store, sink common.Sink, schedule fees.Schedule) (*Market, error) {
	if !iStore.IsInitialized() || !qStore.IsInitialized() {
		return nil, common.ErrCoinUninitialized
	}
	iCoinDecimals, err := iStore.Decimals()
	if err != nil {
		return nil, err
	}
	qCoinDecimals, err := qStore.Decimals()
	if err != nil {
		return nil, err
	}
	if cfg.IDecimals > iCoinDecimals || cfg.QDecimals > qCoinDecimals {
		return nil, common.ErrCoinDecimalsExceedMax
	}
	if uint16(cfg.IDecimals)+uint16(cfg.QDecimals) > fixedpoint.Scale {
		return nil, common.ErrInvalidConfig
	}
	if cfg.MaxCacheSize <= 0 {
		return nil, common.ErrInvalidConfig
	}

	accounts := account.NewRegistry(iStore, qStore, cfg.IDecimals, cfg.QDecimals)
	book := matching.NewBook(cfg.IDecimals, cfg.QDecimals, cfg.MaxCacheSize, accounts, sink, schedule, cfg.FeeType, cfg.InstrumentType, cfg.QuoteType)
	return &Market{book: book, accounts: accounts}, nil
}

// OpenMarketAccount implements §4.1's open_market_account. Re-opening an
// existing key is rejected (idempotency is explicitly not guaranteed).
func (m *Market) OpenMarketAccount(owner string, key common.AccountKey) error {
	_, err := m.accounts.Open(key, owner)
	return err
}

// Deposit implements §4.1's deposit: moves coins from the external store
// into the account's canonical balances. caller must be the account owner
// or the protocol.
func (m *Market) Deposit(caller string, key common.AccountKey, iAmt, qAmt uint64) error {
	return m.accounts.Deposit(caller, key, iAmt, qAmt)
}

// Withdraw implements §4.1's withdraw: moves coins out of the account's
// canonical balances and delivers them to the owner.
func (m *Market) Withdraw(caller string, key common.AccountKey, iAmt, qAmt uint64) error {
	return m.accounts.Withdraw(caller, key, iAmt, qAmt)
}

// AddOrder implements §4.1/§4.2's add_order.
func (m *Market) AddOrder(p matching.AddOrderParams) (uint32, error) {
	return m.book.AddOrder(p)
}

// CancelOrder implements §4.1/§4.4's cancel_order.
func (m *Market) CancelOrder(owner string, orderID uint32, ts int64) error {
	return m.book.CancelOrder(owner, orderID, ts)
}

// Rebalance implements §4.1/§4.5's rebalance.
func (m *Market) Rebalance(limit int) { m.book.Rebalance(limit) }

// Crank implements §4.1/§4.6's crank.
func (m *Market) Crank(limit int, ts int64) error { return m.book.Crank(limit, ts) }

// BuySummary and SellSummary expose the per-side MarketSummary (§3) for
// callers that want top-of-book data without reaching into the engine.
func (m *Market) BuySummary() matching.SideSummary  { return m.book.SideSummary(common.Buy) }
func (m *Market) SellSummary() matching.SideSummary { return m.book.SideSummary(common.Sell) }

// Account exposes the live account record for read-only inspection (tests,
// CLI demo balance queries).
func (m *Market) Account(key common.AccountKey) (*account.Account, error) {
	return m.accounts.Get(key)
}

// Book exposes the underlying matching engine. Most callers should prefer
// the Market methods above; this exists for tests that need to assert on
// pool/summary internals directly.
func (m *Market) Book() *matching.Book { return m.book }
