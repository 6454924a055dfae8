package common

import "errors"

// Kind tags every error the core can raise so a hosting substrate can
// translate it to its own concrete error type (§7). Errors are compared
// with errors.Is against these sentinels, never by string matching.
type Kind int

const (
	KindInvalidConfig Kind = iota
	KindInvalidSide
	KindInvalidBehavior
	KindInvalidMaxCollateralAmt
	KindCoinUninitialized
	KindCoinDecimalsExceedMax
	KindUnknownOrder
	KindNotOwner
	KindPendingCrank
	KindNoMarketAccount
	KindAccountExists
	KindPriceStoreElemNotFound
	KindTreeElemDoesNotExist
	KindCacheItemNotFound
	KindCrankUnfulfilledQty
	KindFpPrecisionLoss
	KindFpExceedDecimals
	KindExceedMaxExp
)

// Error wraps a Kind with the concrete message produced at the call site.
// Internal invariant kinds (PriceStoreElemNotFound, CrankUnfulfilledQty, ...)
// are assertion-grade: a correct implementation must never surface them.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newErr(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

var (
	ErrInvalidConfig           = newErr(KindInvalidConfig, "invalid market configuration")
	ErrInvalidSide             = newErr(KindInvalidSide, "invalid side")
	ErrInvalidBehavior         = newErr(KindInvalidBehavior, "invalid behavior")
	ErrInvalidMaxCollateralAmt = newErr(KindInvalidMaxCollateralAmt, "invalid market-buy max collateral amount")
	ErrCoinUninitialized       = newErr(KindCoinUninitialized, "coin type is not initialized")
	ErrCoinDecimalsExceedMax   = newErr(KindCoinDecimalsExceedMax, "coin decimals exceed configured maximum")
	ErrUnknownOrder            = newErr(KindUnknownOrder, "order is not live")
	ErrNotOwner                = newErr(KindNotOwner, "caller is neither account owner nor protocol")
	ErrPendingCrank            = newErr(KindPendingCrank, "requested quantity is matched and awaiting crank")
	ErrNoMarketAccount         = newErr(KindNoMarketAccount, "market account has not been opened")
	ErrAccountExists           = newErr(KindAccountExists, "market account already exists")
	ErrPriceStoreElemNotFound  = newErr(KindPriceStoreElemNotFound, "price store element not found")
	ErrTreeElemDoesNotExist    = newErr(KindTreeElemDoesNotExist, "tree element does not exist")
	ErrCacheItemNotFound       = newErr(KindCacheItemNotFound, "cache item not found")
	ErrCrankUnfulfilledQty     = newErr(KindCrankUnfulfilledQty, "queued event could not be fully settled")
)

// Is allows errors.Is(err, common.ErrUnknownOrder) style checks even though
// each call site constructs its own *Error value with a tailored message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}
