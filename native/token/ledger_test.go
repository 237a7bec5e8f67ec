package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

type mockStorage struct {
	kv map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{kv: make(map[string][]byte)}
}

func (m *mockStorage) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockStorage) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestMintAndTransfer(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	asset := addr(0xAA)
	alice := addr(1)
	bob := addr(2)

	if err := ledger.Mint(asset, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(asset, alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	balance, err := ledger.BalanceOf(asset, alice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected 600, got %s", balance)
	}
	balance, err = ledger.BalanceOf(asset, bob)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected 400, got %s", balance)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	asset := addr(0xAA)
	if err := ledger.Transfer(asset, addr(1), addr(2), big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestTransferTaxBurnsOnReceipt(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	asset := addr(0xAB)
	alice := addr(1)
	bob := addr(2)

	if err := ledger.Register(asset, Metadata{Symbol: "DEFL", TransferTaxBps: 100}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := ledger.Mint(asset, alice, big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(asset, alice, bob, big.NewInt(10_000)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	// Sender is debited the full amount.
	balance, _ := ledger.BalanceOf(asset, alice)
	if balance.Sign() != 0 {
		t.Fatalf("expected sender drained, got %s", balance)
	}
	// Recipient sees the post-tax remainder.
	balance, _ = ledger.BalanceOf(asset, bob)
	if balance.Cmp(big.NewInt(9_900)) != 0 {
		t.Fatalf("expected 9900 after 1%% tax, got %s", balance)
	}
}

func TestApproveAndTransferFrom(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	asset := addr(0xAA)
	owner := addr(1)
	spender := addr(2)
	sink := addr(3)

	if err := ledger.Mint(asset, owner, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Approve(asset, owner, spender, big.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(asset, owner, spender, sink, big.NewInt(301)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}
	if err := ledger.TransferFrom(asset, owner, spender, sink, big.NewInt(300)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	allowance, _ := ledger.Allowance(asset, owner, spender)
	if allowance.Sign() != 0 {
		t.Fatalf("expected allowance consumed, got %s", allowance)
	}
	balance, _ := ledger.BalanceOf(asset, sink)
	if balance.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected 300, got %s", balance)
	}
}

func TestApproveReplacesPriorValue(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	asset := addr(0xAA)
	if err := ledger.Approve(asset, addr(1), addr(2), big.NewInt(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.Approve(asset, addr(1), addr(2), big.NewInt(0)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	allowance, _ := ledger.Allowance(asset, addr(1), addr(2))
	if allowance.Sign() != 0 {
		t.Fatalf("expected revoked allowance, got %s", allowance)
	}
}

func TestNegativeAmountsRejected(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	if err := ledger.Mint(addr(0xAA), addr(1), big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := ledger.Mint(addr(0xAA), addr(1), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for nil, got %v", err)
	}
}
