// Package coin is the capability-style external collaborator described in
// §6: the matching engine withdraws and deposits collateral through this
// interface rather than touching any concrete ledger, so the core stays
// agnostic to whatever coin framework a hosting platform actually uses.
//
// Monetary units at this boundary are raw integers in the coin's own
// decimals, not the engine's canonical fixedpoint.Scale-decimal form;
// callers convert with fixedpoint.Convert at the boundary.
package coin

import "errors"

var (
	ErrUninitialized    = errors.New("coin: type is not initialized")
	ErrInsufficientFunds = errors.New("coin: insufficient balance")
)

// Coin is a bearer amount of one coin type, exactly as it would be carried
// around inside a transaction on a coin-framework substrate (the "hot
// potato" resource pattern): it must be fully merged or deposited before
// the operation that produced it completes.
type Coin struct {
	amount uint64
}

func Zero() Coin { return Coin{} }

// New constructs a bearer Coin of the given amount. Used at the boundary
// where a hosting platform's own mint/transfer primitives would otherwise
// hand the core a Coin value directly.
func New(amount uint64) Coin { return Coin{amount: amount} }

func (c Coin) Value() uint64 { return c.amount }

// Merge folds other into c, consuming other.
func (c *Coin) Merge(other Coin) { c.amount += other.amount }

// Extract splits amount out of c into a new Coin, failing if c does not
// hold enough.
func (c *Coin) Extract(amount uint64) (Coin, error) {
	if amount > c.amount {
		return Coin{}, ErrInsufficientFunds
	}
	c.amount -= amount
	return Coin{amount: amount}, nil
}

// ExtractAll drains c entirely into a new Coin.
func (c *Coin) ExtractAll() Coin {
	out := Coin{amount: c.amount}
	c.amount = 0
	return out
}

// Store is the per-address, per-coin-type ledger the engine withdraws from
// and deposits into. A production deployment backs this with whatever
// coin/account framework the platform provides; the in-memory
// implementation below is what the engine's own tests and the CLI demo use.
type Store interface {
	Decimals() (uint8, error)
	IsInitialized() bool
	IsAccountRegistered(addr string) bool
	Balance(addr string) (uint64, error)
	Withdraw(owner string, amount uint64) (Coin, error)
	Deposit(addr string, c Coin) error
}

// MemoryStore is a simple map-backed Store, sufficient to exercise the
// engine's collateral-acquisition and settlement paths without a real
// coin framework wired in.
type MemoryStore struct {
	decimals  uint8
	balances  map[string]uint64
}

func NewMemoryStore(decimals uint8) *MemoryStore {
	return &MemoryStore{decimals: decimals, balances: make(map[string]uint64)}
}

func (m *MemoryStore) Decimals() (uint8, error) { return m.decimals, nil }
func (m *MemoryStore) IsInitialized() bool      { return true }

func (m *MemoryStore) IsAccountRegistered(addr string) bool {
	_, ok := m.balances[addr]
	return ok
}

func (m *MemoryStore) Balance(addr string) (uint64, error) {
	return m.balances[addr], nil
}

// Credit seeds an address's balance; used by tests and the demo CLI to fund
// accounts before trading begins. It is not part of the Store interface
// because a real deployment's coin framework provides its own mint/transfer
// entry points outside the matching engine's purview.
func (m *MemoryStore) Credit(addr string, amount uint64) {
	m.balances[addr] += amount
}

func (m *MemoryStore) Withdraw(owner string, amount uint64) (Coin, error) {
	bal := m.balances[owner]
	if amount > bal {
		return Coin{}, ErrInsufficientFunds
	}
	m.balances[owner] = bal - amount
	return Coin{amount: amount}, nil
}

func (m *MemoryStore) Deposit(addr string, c Coin) error {
	m.balances[addr] += c.amount
	return nil
}
