package proxy

import (
	"fmt"
	"math/big"
	"strings"
)

// FeeLedger is the accounting store of fees owed but not yet withdrawn,
// keyed by asset and beneficiary. Only the dispatcher credits it; collection
// operations drain entries to exactly zero. A running per-asset total backs
// the solvency check used by the emergency sweep.
type FeeLedger struct {
	store Storage
}

// NewFeeLedger binds the fee ledger to the supplied state view.
func NewFeeLedger(store Storage) *FeeLedger {
	return &FeeLedger{store: store}
}

// Credit accrues amount to the beneficiary's entry for the asset. A zero
// amount is a no-op; negative amounts are rejected.
func (l *FeeLedger) Credit(asset [20]byte, beneficiary Beneficiary, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("proxy: ledger credit must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := l.BalanceOf(asset, beneficiary)
	if err != nil {
		return err
	}
	if err := l.write(entryKey(asset, beneficiary), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	total, err := l.TotalOutstanding(asset)
	if err != nil {
		return err
	}
	return l.write(ledgerTotalKey(asset), new(big.Int).Add(total, amount))
}

// BalanceOf returns the accrued, unwithdrawn amount for the beneficiary.
func (l *FeeLedger) BalanceOf(asset [20]byte, beneficiary Beneficiary) (*big.Int, error) {
	return l.read(entryKey(asset, beneficiary))
}

// Drain zeroes the beneficiary's entry and returns the prior value. Draining
// a zero balance is a successful no-op returning zero.
func (l *FeeLedger) Drain(asset [20]byte, beneficiary Beneficiary) (*big.Int, error) {
	balance, err := l.BalanceOf(asset, beneficiary)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := l.write(entryKey(asset, beneficiary), big.NewInt(0)); err != nil {
		return nil, err
	}
	total, err := l.TotalOutstanding(asset)
	if err != nil {
		return nil, err
	}
	remaining := new(big.Int).Sub(total, balance)
	if remaining.Sign() < 0 {
		return nil, fmt.Errorf("proxy: ledger total underflow for asset %x", asset)
	}
	if err := l.write(ledgerTotalKey(asset), remaining); err != nil {
		return nil, err
	}
	return balance, nil
}

// TotalOutstanding returns the sum of all beneficiary entries for the asset.
// The engine never promises more than it custodies, so this total is always
// covered by the custody account's balance.
func (l *FeeLedger) TotalOutstanding(asset [20]byte) (*big.Int, error) {
	return l.read(ledgerTotalKey(asset))
}

func entryKey(asset [20]byte, beneficiary Beneficiary) []byte {
	if beneficiary.Kind == BeneficiaryIntegrator {
		return ledgerIntegratorKey(asset, beneficiary.Integrator)
	}
	return ledgerPlatformKey(asset)
}

func (l *FeeLedger) read(key []byte) (*big.Int, error) {
	var stored string
	ok, err := l.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(stored) == "" {
		return big.NewInt(0), nil
	}
	amount, valid := new(big.Int).SetString(stored, 10)
	if !valid {
		return nil, fmt.Errorf("proxy: invalid stored ledger amount %q", stored)
	}
	return amount, nil
}

func (l *FeeLedger) write(key []byte, amount *big.Int) error {
	return l.store.KVPut(key, amount.String())
}
