// Package account implements MarketAccount (§3): the per-(protocol,user)
// ledger of instrument and quote balances the matching engine debits and
// credits as it reserves collateral for resting orders and settles fills.
package account

import (
	"fenrir/internal/coin"
	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
)

// Account is one user's balances and active-order set within a single
// market. ownerAddress never changes after Open; balances change only
// through Deposit/Withdraw or matching-engine settlement.
type Account struct {
	Key               common.AccountKey
	OwnerAddress      string
	InstrumentBalance fixedpoint.FP
	QuoteBalance      fixedpoint.FP
	ActiveOrders      map[uint32]struct{}
}

// IsOwnerOrProtocol implements the "owner-or-protocol may act on an
// account" auth model from §6.
func (a *Account) IsOwnerOrProtocol(caller string) bool {
	return caller == a.OwnerAddress || caller == a.Key.ProtocolAddress
}

// Registry owns every Account in one market plus the two coin stores
// (instrument and quote) deposits/withdrawals move through.
type Registry struct {
	accounts   map[common.AccountKey]*Account
	iStore     coin.Store
	qStore     coin.Store
	iDecimals  uint8
	qDecimals  uint8
}

func NewRegistry(iStore, qStore coin.Store, iDecimals, qDecimals uint8) *Registry {
	return &Registry{
		accounts:  make(map[common.AccountKey]*Account),
		iStore:    iStore,
		qStore:    qStore,
		iDecimals: iDecimals,
		qDecimals: qDecimals,
	}
}

// Open creates a new MarketAccount. Re-opening an existing key is rejected:
// idempotency is explicitly not guaranteed (§4.1).
func (r *Registry) Open(key common.AccountKey, owner string) (*Account, error) {
	if _, exists := r.accounts[key]; exists {
		return nil, common.ErrAccountExists
	}
	acct := &Account{
		Key:          key,
		OwnerAddress: owner,
		ActiveOrders: make(map[uint32]struct{}),
	}
	r.accounts[key] = acct
	return acct, nil
}

func (r *Registry) Get(key common.AccountKey) (*Account, error) {
	acct, ok := r.accounts[key]
	if !ok {
		return nil, common.ErrNoMarketAccount
	}
	return acct, nil
}

// Deposit moves iAmt/qAmt raw coin units from the external coin store into
// the account's canonical-scale balances. caller must be the owner or the
// protocol (§4.1).
func (r *Registry) Deposit(caller string, key common.AccountKey, iAmt, qAmt uint64) error {
	acct, err := r.Get(key)
	if err != nil {
		return err
	}
	if !acct.IsOwnerOrProtocol(caller) {
		return common.ErrNotOwner
	}
	if iAmt > 0 {
		c, err := r.iStore.Withdraw(acct.OwnerAddress, iAmt)
		if err != nil {
			return err
		}
		canonical, err := fixedpoint.Convert(c.Value(), r.iDecimals, fixedpoint.Scale, fixedpoint.RoundNoLoss)
		if err != nil {
			return err
		}
		acct.InstrumentBalance, err = acct.InstrumentBalance.Add(fixedpoint.FromRaw(canonical))
		if err != nil {
			return err
		}
	}
	if qAmt > 0 {
		c, err := r.qStore.Withdraw(acct.OwnerAddress, qAmt)
		if err != nil {
			return err
		}
		canonical, err := fixedpoint.Convert(c.Value(), r.qDecimals, fixedpoint.Scale, fixedpoint.RoundNoLoss)
		if err != nil {
			return err
		}
		acct.QuoteBalance, err = acct.QuoteBalance.Add(fixedpoint.FromRaw(canonical))
		if err != nil {
			return err
		}
	}
	return nil
}

// Withdraw moves iAmt/qAmt raw coin units out of the account's canonical
// balances and delivers them to the account owner.
//
// The source this engine was adapted from merges withdrawn coins back into
// the account instead of paying out the owner, which the design notes flag
// as almost certainly a bug. This implementation intentionally does not
// preserve that behavior: funds are delivered to the owner's external coin
// address, which is the only sensible reading of "withdraw".
func (r *Registry) Withdraw(caller string, key common.AccountKey, iAmt, qAmt uint64) error {
	acct, err := r.Get(key)
	if err != nil {
		return err
	}
	if !acct.IsOwnerOrProtocol(caller) {
		return common.ErrNotOwner
	}
	if iAmt > 0 {
		canonical, err := fixedpoint.Convert(iAmt, r.iDecimals, fixedpoint.Scale, fixedpoint.RoundNoLoss)
		if err != nil {
			return err
		}
		acct.InstrumentBalance, err = acct.InstrumentBalance.Sub(fixedpoint.FromRaw(canonical))
		if err != nil {
			return err
		}
		if err := r.iStore.Deposit(acct.OwnerAddress, coin.New(iAmt)); err != nil {
			return err
		}
	}
	if qAmt > 0 {
		canonical, err := fixedpoint.Convert(qAmt, r.qDecimals, fixedpoint.Scale, fixedpoint.RoundNoLoss)
		if err != nil {
			return err
		}
		acct.QuoteBalance, err = acct.QuoteBalance.Sub(fixedpoint.FromRaw(canonical))
		if err != nil {
			return err
		}
		if err := r.qStore.Deposit(acct.OwnerAddress, coin.New(qAmt)); err != nil {
			return err
		}
	}
	return nil
}

// ReserveQuote debits qty of canonical quote balance, the collateral a buy
// order withdraws at add_order time (§4.2 step 4).
func (a *Account) ReserveQuote(amount fixedpoint.FP) error {
	bal, err := a.QuoteBalance.Sub(amount)
	if err != nil {
		return err
	}
	a.QuoteBalance = bal
	return nil
}

// ReserveInstrument debits qty of canonical instrument balance, the
// collateral a sell order withdraws at add_order time.
func (a *Account) ReserveInstrument(amount fixedpoint.FP) error {
	bal, err := a.InstrumentBalance.Sub(amount)
	if err != nil {
		return err
	}
	a.InstrumentBalance = bal
	return nil
}

// ReleaseQuote credits canonical quote balance back (cancellation refunds,
// market-buy surplus refunds, order finalization residuals).
func (a *Account) ReleaseQuote(amount fixedpoint.FP) {
	sum, _ := a.QuoteBalance.Add(amount)
	a.QuoteBalance = sum
}

// ReleaseInstrument credits canonical instrument balance back.
func (a *Account) ReleaseInstrument(amount fixedpoint.FP) {
	sum, _ := a.InstrumentBalance.Add(amount)
	a.InstrumentBalance = sum
}

func (a *Account) AddActiveOrder(orderID uint32)    { a.ActiveOrders[orderID] = struct{}{} }
func (a *Account) RemoveActiveOrder(orderID uint32) { delete(a.ActiveOrders, orderID) }
