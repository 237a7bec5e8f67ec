package proxy

import (
	"math/big"

	"bridgeproxy/native/token"
)

// SpendCapacity tracks a bounded spending grant handed to an external
// provider over custodied funds. Consumption is measured from the custody
// account's balance delta rather than the residual allowance, so the
// measurement cannot be skewed by assets that manipulate their own allowance
// bookkeeping; the allowance is still unconditionally revoked afterwards.
type SpendCapacity struct {
	tokens  *token.Ledger
	asset   [20]byte
	owner   [20]byte
	spender [20]byte
	granted *big.Int
	opening *big.Int
}

// grantCapacity approves spender for exactly amount over owner's holdings of
// the asset and snapshots the custody balance for later measurement.
func grantCapacity(tokens *token.Ledger, asset, owner, spender [20]byte, amount *big.Int) (*SpendCapacity, error) {
	if err := tokens.Approve(asset, owner, spender, amount); err != nil {
		return nil, err
	}
	opening, err := tokens.BalanceOf(asset, owner)
	if err != nil {
		return nil, err
	}
	return &SpendCapacity{
		tokens:  tokens,
		asset:   asset,
		owner:   owner,
		spender: spender,
		granted: cloneBigInt(amount),
		opening: opening,
	}, nil
}

// Consumed reports how much of the grant the spender drew out of custody.
func (c *SpendCapacity) Consumed() (*big.Int, error) {
	current, err := c.tokens.BalanceOf(c.asset, c.owner)
	if err != nil {
		return nil, err
	}
	consumed := new(big.Int).Sub(c.opening, current)
	if consumed.Sign() < 0 {
		consumed = big.NewInt(0)
	}
	return consumed, nil
}

// Revoke resets the spender's allowance to zero, clearing any residual
// capacity the callee left behind.
func (c *SpendCapacity) Revoke() error {
	return c.tokens.Approve(c.asset, c.owner, c.spender, big.NewInt(0))
}

// Verify enforces exact consumption of the grant: the provider must have
// spent precisely what it was given, and any leftover capacity is revoked
// before returning.
func (c *SpendCapacity) Verify() error {
	consumed, err := c.Consumed()
	if err != nil {
		return err
	}
	if err := c.Revoke(); err != nil {
		return err
	}
	if consumed.Cmp(c.granted) != 0 {
		return &DifferentAmountSpentError{Granted: cloneBigInt(c.granted), Spent: consumed}
	}
	return nil
}
