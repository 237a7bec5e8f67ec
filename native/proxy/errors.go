package proxy

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// Access control failures.
	ErrNotAManager = errors.New("proxy: caller is not a manager")
	ErrNotAnAdmin  = errors.New("proxy: caller is not an admin")
	ErrZeroAdmin   = errors.New("proxy: admin must not be the zero identity")

	// Configuration failures.
	ErrFeeTooHigh             = errors.New("proxy: token fee rate exceeds denominator")
	ErrShareTooHigh           = errors.New("proxy: share rate exceeds denominator")
	ErrMinMustBeLowerThanMax  = errors.New("proxy: min amount must be lower than max")
	ErrMaxMustBeBiggerThanMin = errors.New("proxy: max amount must be bigger than min")
	ErrLengthMismatch         = errors.New("proxy: parallel slices must have equal length")
	ErrAlreadyInitialized     = errors.New("proxy: state already initialised")

	// Whitelist failures.
	ErrProviderAlreadyListed = errors.New("proxy: provider already whitelisted")
	ErrProviderNotAvailable  = errors.New("proxy: provider not available")
	ErrRouterNotAvailable    = errors.New("proxy: router not available")

	// Dispatch failures.
	ErrPaused               = errors.New("proxy: paused")
	ErrNotPaused            = errors.New("proxy: not paused")
	ErrAmountOutOfBounds    = errors.New("proxy: amount out of bounds")
	ErrWrongNativeValue     = errors.New("proxy: supplied native value does not match the required amount")
	ErrDifferentAmountSpent = errors.New("proxy: provider spent a different amount than granted")
	ErrExternalCallFailed   = errors.New("proxy: external provider call failed")
	ErrDispatchInProgress   = errors.New("proxy: operation already in progress")

	// Recovery failures.
	ErrSweepExceedsFreeBalance = errors.New("proxy: sweep exceeds the balance not owed to beneficiaries")
)

// ProviderNotAvailableError carries the offending pair so callers can tell
// which target failed the whitelist check. Only the rejected identity is set;
// the other is left zero.
type ProviderNotAvailableError struct {
	Router  [20]byte
	Gateway [20]byte
}

func (e *ProviderNotAvailableError) Error() string {
	return fmt.Sprintf("proxy: provider not available (router %x, gateway %x)", e.Router, e.Gateway)
}

func (e *ProviderNotAvailableError) Is(target error) bool {
	return target == ErrProviderNotAvailable
}

// RouterNotAvailableError is the native-path variant where only the router is
// checked.
type RouterNotAvailableError struct {
	Router [20]byte
}

func (e *RouterNotAvailableError) Error() string {
	return fmt.Sprintf("proxy: router %x not available", e.Router)
}

func (e *RouterNotAvailableError) Is(target error) bool {
	return target == ErrRouterNotAvailable
}

// AmountOutOfBoundsError reports a dispatch amount outside the configured
// per-asset window.
type AmountOutOfBoundsError struct {
	Amount *big.Int
	Min    *big.Int
	Max    *big.Int
}

func (e *AmountOutOfBoundsError) Error() string {
	return fmt.Sprintf("proxy: amount %s outside [%s, %s]", e.Amount, e.Min, e.Max)
}

func (e *AmountOutOfBoundsError) Is(target error) bool {
	return target == ErrAmountOutOfBounds
}

// DifferentAmountSpentError reports a mismatch between the granted spending
// capacity and what the provider actually consumed.
type DifferentAmountSpentError struct {
	Granted *big.Int
	Spent   *big.Int
}

func (e *DifferentAmountSpentError) Error() string {
	return fmt.Sprintf("proxy: granted %s but provider spent %s", e.Granted, e.Spent)
}

func (e *DifferentAmountSpentError) Is(target error) bool {
	return target == ErrDifferentAmountSpent
}

// ExternalCallError wraps the underlying provider failure so the reason
// remains inspectable through errors.Unwrap.
type ExternalCallError struct {
	Reason error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("proxy: external provider call failed: %v", e.Reason)
}

func (e *ExternalCallError) Unwrap() error { return e.Reason }

func (e *ExternalCallError) Is(target error) bool {
	return target == ErrExternalCallFailed
}
