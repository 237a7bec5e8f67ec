package token

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Storage abstracts the subset of state manager functionality required by the
// token ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	ErrInvalidAmount         = errors.New("token: amount must be non-negative")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// NativeAsset is the sentinel identifier for the network's native currency.
// It carries no metadata and never applies a transfer tax.
var NativeAsset [20]byte

const taxDenominatorBps = 10_000

var (
	metaPrefix      = []byte("token/meta/")
	balancePrefix   = []byte("token/bal/")
	allowancePrefix = []byte("token/allow/")
)

// Metadata describes a registered asset. TransferTaxBps, when non-zero, burns
// that fraction of every transfer on the receiving side, modelling
// fee-on-transfer assets.
type Metadata struct {
	Symbol         string
	TransferTaxBps uint32
}

type storedMetadata struct {
	Symbol         string
	TransferTaxBps uint32
}

// Ledger tracks balances and owner-to-spender allowances per asset in the
// underlying key-value store. Assets do not need to be registered before use;
// registration only attaches metadata such as a transfer tax.
type Ledger struct {
	store Storage
}

// NewLedger constructs a token ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

// Register attaches metadata to an asset identifier. Registering the native
// asset is rejected since its behaviour is fixed.
func (l *Ledger) Register(asset [20]byte, meta Metadata) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token: ledger not initialised")
	}
	if asset == NativeAsset {
		return fmt.Errorf("token: native asset metadata is fixed")
	}
	if meta.TransferTaxBps > taxDenominatorBps {
		return fmt.Errorf("token: transfer tax %d exceeds %d bps", meta.TransferTaxBps, taxDenominatorBps)
	}
	stored := storedMetadata{Symbol: strings.TrimSpace(meta.Symbol), TransferTaxBps: meta.TransferTaxBps}
	return l.store.KVPut(metaKey(asset), stored)
}

// Metadata resolves the metadata registered for an asset.
func (l *Ledger) Metadata(asset [20]byte) (Metadata, bool, error) {
	if l == nil || l.store == nil {
		return Metadata{}, false, fmt.Errorf("token: ledger not initialised")
	}
	var stored storedMetadata
	ok, err := l.store.KVGet(metaKey(asset), &stored)
	if err != nil || !ok {
		return Metadata{}, ok, err
	}
	return Metadata{Symbol: stored.Symbol, TransferTaxBps: stored.TransferTaxBps}, true, nil
}

// BalanceOf returns the balance held by addr for the given asset.
func (l *Ledger) BalanceOf(asset, addr [20]byte) (*big.Int, error) {
	return l.readAmount(balanceKey(asset, addr))
}

// Allowance returns the remaining spending capacity spender holds over
// owner's balance of the asset.
func (l *Ledger) Allowance(asset, owner, spender [20]byte) (*big.Int, error) {
	return l.readAmount(allowanceKey(asset, owner, spender))
}

// Mint credits newly issued units of the asset to the recipient.
func (l *Ledger) Mint(asset, to [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	balance, err := l.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	return l.writeAmount(balanceKey(asset, to), new(big.Int).Add(balance, amount))
}

// Transfer moves amount from one holder to another. The sender is always
// debited the full amount; when the asset carries a transfer tax the
// recipient is credited the post-tax remainder and the difference is burned.
func (l *Ledger) Transfer(asset, from, to [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	fromBalance, err := l.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	credited, err := l.afterTax(asset, amount)
	if err != nil {
		return err
	}
	if err := l.writeAmount(balanceKey(asset, from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := l.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	return l.writeAmount(balanceKey(asset, to), new(big.Int).Add(toBalance, credited))
}

// Approve sets spender's spending capacity over owner's balance to exactly
// amount, replacing any previous value.
func (l *Ledger) Approve(asset, owner, spender [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	return l.writeAmount(allowanceKey(asset, owner, spender), amount)
}

// TransferFrom moves amount of owner's balance to the recipient, consuming
// spender's allowance.
func (l *Ledger) TransferFrom(asset, owner, spender, to [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	allowance, err := l.Allowance(asset, owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.writeAmount(allowanceKey(asset, owner, spender), new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return l.Transfer(asset, owner, to, amount)
}

func (l *Ledger) afterTax(asset [20]byte, amount *big.Int) (*big.Int, error) {
	if asset == NativeAsset {
		return new(big.Int).Set(amount), nil
	}
	meta, ok, err := l.Metadata(asset)
	if err != nil {
		return nil, err
	}
	if !ok || meta.TransferTaxBps == 0 {
		return new(big.Int).Set(amount), nil
	}
	kept := new(big.Int).Mul(amount, big.NewInt(int64(taxDenominatorBps-meta.TransferTaxBps)))
	return kept.Div(kept, big.NewInt(taxDenominatorBps)), nil
}

func (l *Ledger) readAmount(key []byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("token: ledger not initialised")
	}
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
		return nil, fmt.Errorf("token: invalid stored amount %q", stored)
	}
	return amount, nil
}

func (l *Ledger) writeAmount(key []byte, amount *big.Int) error {
	return l.store.KVPut(key, amount.String())
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func metaKey(asset [20]byte) []byte {
	return appendHex(metaPrefix, asset[:])
}

func balanceKey(asset, addr [20]byte) []byte {
	return appendHex(appendHex(balancePrefix, asset[:]), addr[:])
}

func allowanceKey(asset, owner, spender [20]byte) []byte {
	return appendHex(appendHex(appendHex(allowancePrefix, asset[:]), owner[:]), spender[:])
}

func appendHex(prefix []byte, raw []byte) []byte {
	buf := make([]byte, len(prefix), len(prefix)+hex.EncodedLen(len(raw))+1)
	copy(buf, prefix)
	buf = append(buf, hex.EncodeToString(raw)...)
	buf = append(buf, '/')
	return buf
}
