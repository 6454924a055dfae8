// Package fees is the external fee-tier collaborator described in §6: a
// pure function of (fee type, caller's fee-token balance) the crank
// consults once per settlement. The tiering schedule itself is out of
// scope for the core (§1 Non-goals); this package exists so the crank has
// something real to call rather than inlining a TODO.
package fees

// Type selects which fee schedule a market was configured with at
// init_market time.
type Type uint8

const (
	Standard Type = iota
)

// Bps are expressed in hundredths of a basis point of notional, matching
// the precision the crank's settlement arithmetic already carries.
type Bps uint32

// Schedule resolves (takerFee, makerFee) and the separate protocolFee given
// a caller's balance of the platform's fee token. The numbers are reserved
// for a future tiering registry (per the source this was distilled from);
// until that registry lands, every tier resolves to zero so the crank's
// fee-deduction step is a real, callable no-op rather than an assertion.
type Schedule interface {
	TakerMakerFee(feeType Type, tokenBalance uint64) (taker, maker Bps)
	ProtocolFee(feeType Type, tokenBalance uint64) Bps
}

// ZeroSchedule implements Schedule with all fees reserved at zero.
type ZeroSchedule struct{}

func (ZeroSchedule) TakerMakerFee(Type, uint64) (Bps, Bps) { return 0, 0 }
func (ZeroSchedule) ProtocolFee(Type, uint64) Bps          { return 0 }

// Apply deducts b/1,000,000 of notional (b in hundredths of a basis point)
// from notional, rounding the fee down, and
// returns (net, feeAmount).
func (b Bps) Apply(notional uint64) (net uint64, fee uint64) {
	fee = (notional * uint64(b)) / 1_000_000
	return notional - fee, fee
}
