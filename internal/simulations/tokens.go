package simulations

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
)

// DebtToken is the minted stable token. Minting and burning go straight through the bank.
type DebtToken struct {
	bank    *Bank
	address common.Address
}

func NewDebtToken(bank *Bank, address common.Address) *DebtToken {
	bank.RegisterToken(address, 18)
	return &DebtToken{bank: bank, address: address}
}

func (t *DebtToken) Address() common.Address { return t.address }

func (t *DebtToken) Mint(_ context.Context, to common.Address, amount sdkmath.Int) error {
	return t.bank.Mint(t.address, to, amount)
}

func (t *DebtToken) Burn(_ context.Context, from common.Address, amount sdkmath.Int) error {
	return t.bank.Burn(t.address, from, amount)
}

// WETH wraps the native asset one to one. The contract address holds the native backing.
type WETH struct {
	bank    *Bank
	address common.Address
}

func NewWETH(bank *Bank, address common.Address) *WETH {
	bank.RegisterToken(address, 18)
	return &WETH{bank: bank, address: address}
}

func (w *WETH) Address() common.Address { return w.address }

// Deposit wraps amount of holder's native balance.
func (w *WETH) Deposit(_ context.Context, holder common.Address, amount sdkmath.Int) error {
	if err := w.bank.Transfer(types.NativeAddress, holder, w.address, amount); err != nil {
		return errorsmod.Wrapf(err, "wrapping %s", amount)
	}
	return w.bank.Mint(w.address, holder, amount)
}

// Withdraw unwraps amount back to holder's native balance.
func (w *WETH) Withdraw(_ context.Context, holder common.Address, amount sdkmath.Int) error {
	if err := w.bank.Burn(w.address, holder, amount); err != nil {
		return errorsmod.Wrapf(err, "unwrapping %s", amount)
	}
	return w.bank.Transfer(types.NativeAddress, w.address, holder, amount)
}
