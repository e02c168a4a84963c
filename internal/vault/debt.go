package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/utils"
)

// Mint issues amount to the recipient and the mint fee to the treasury. Both count as debt.
func (l *Ledger) Mint(ctx context.Context, caller, to common.Address, amount sdkmath.Int) error {
	return l.execute(ctx, "mint", func(ctx context.Context) error {
		if err := l.requireOwner(caller); err != nil {
			return err
		}
		if err := l.requireOpen(); err != nil {
			return err
		}
		if amount.IsNil() || !amount.IsPositive() {
			return errorsmod.Wrap(types.ErrInvalidAmount, "mint must be positive")
		}

		fee := utils.ApplyRate(amount, l.deps.Params.MintFeeRate(), types.HundredPercent)
		v, err := l.value(ctx)
		if err != nil {
			return err
		}
		debt := l.minted.Add(amount).Add(fee)
		if limit := l.maxMintable(v.total); debt.GT(limit) {
			return errorsmod.Wrapf(types.ErrUndercollateralised, "debt %s would exceed %s", debt, limit)
		}

		if err := l.deps.Debt.Mint(ctx, to, amount); err != nil {
			return errorsmod.Wrapf(types.ErrTransferFailed, "minting: %v", err)
		}
		if err := l.deps.Debt.Mint(ctx, l.deps.Params.Treasury(), fee); err != nil {
			return errorsmod.Wrapf(types.ErrTransferFailed, "minting fee: %v", err)
		}
		l.minted = debt

		l.logger.Info().
			Str("to", to.Hex()).
			Str("amount", amount.String()).
			Str("fee", fee.String()).
			Str("minted", l.minted.String()).
			Msg("Minted against vault")
		return nil
	})
}

// Burn repays amount of principal. The burn fee is paid on top by the caller and does not reduce the debt.
func (l *Ledger) Burn(ctx context.Context, caller common.Address, amount sdkmath.Int) error {
	return l.execute(ctx, "burn", func(ctx context.Context) error {
		if err := l.requireOwner(caller); err != nil {
			return err
		}
		if err := l.requireOpen(); err != nil {
			return err
		}
		if amount.IsNil() || !amount.IsPositive() {
			return errorsmod.Wrap(types.ErrInvalidAmount, "burn must be positive")
		}
		if amount.GT(l.minted) {
			return errorsmod.Wrapf(types.ErrOverrepay, "burning %s of %s minted", amount, l.minted)
		}

		fee := utils.ApplyRate(amount, l.deps.Params.BurnFeeRate(), types.HundredPercent)
		if err := l.deps.Debt.Burn(ctx, caller, amount); err != nil {
			return errorsmod.Wrapf(types.ErrTransferFailed, "burning: %v", err)
		}
		if err := l.deps.Bank.Transfer(l.deps.Debt.Address(), caller, l.deps.Params.Treasury(), fee); err != nil {
			return errorsmod.Wrapf(types.ErrTransferFailed, "paying burn fee: %v", err)
		}
		l.minted = l.minted.Sub(amount)

		l.logger.Info().
			Str("amount", amount.String()).
			Str("fee", fee.String()).
			Str("minted", l.minted.String()).
			Msg("Burned against vault")
		return nil
	})
}
