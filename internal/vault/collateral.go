package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
)

// Deposit tops up the vault with an accepted asset. Anyone may deposit, also into a liquidated vault.
func (l *Ledger) Deposit(ctx context.Context, from common.Address, symbol types.Symbol, amount sdkmath.Int) error {
	return l.execute(ctx, "deposit", func(ctx context.Context) error {
		if amount.IsNil() || !amount.IsPositive() {
			return errorsmod.Wrap(types.ErrInvalidAmount, "deposit must be positive")
		}
		asset, err := l.deps.Registry.TokenBySymbol(symbol)
		if err != nil {
			return err
		}
		if err := l.deps.Bank.Transfer(asset.Address, from, l.address, amount); err != nil {
			return errorsmod.Wrapf(types.ErrTransferFailed, "depositing %s %s: %v", amount, symbol, err)
		}
		return nil
	})
}

// RemoveCollateral sends an accepted asset to the given recipient, provided the vault stays solvent.
func (l *Ledger) RemoveCollateral(ctx context.Context, caller common.Address, symbol types.Symbol, amount sdkmath.Int, to common.Address) error {
	return l.execute(ctx, "remove_collateral", func(ctx context.Context) error {
		asset, err := l.deps.Registry.TokenBySymbol(symbol)
		if err != nil {
			return err
		}
		return l.removeCollateral(ctx, caller, asset, amount, to)
	})
}

// RemoveCollateralNative is RemoveCollateral for the native asset.
func (l *Ledger) RemoveCollateralNative(ctx context.Context, caller common.Address, amount sdkmath.Int, to common.Address) error {
	return l.execute(ctx, "remove_collateral_native", func(ctx context.Context) error {
		asset, err := l.deps.Registry.TokenByAddress(types.NativeAddress)
		if err != nil {
			return err
		}
		return l.removeCollateral(ctx, caller, asset, amount, to)
	})
}

func (l *Ledger) removeCollateral(ctx context.Context, caller common.Address, asset types.CollateralAsset, amount sdkmath.Int, to common.Address) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if err := l.requireOpen(); err != nil {
		return err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidAmount, "removal must be positive")
	}
	if err := l.deps.Bank.Transfer(asset.Address, l.address, to, amount); err != nil {
		return errorsmod.Wrapf(types.ErrTransferFailed, "removing %s %s: %v", amount, asset.Symbol, err)
	}
	return l.checkSolvency(ctx)
}

// RemoveAsset withdraws any token the vault holds, collateral or not. Solvency is only re-checked when the token
// is currently accepted collateral. It is the one withdrawal still open after liquidation.
func (l *Ledger) RemoveAsset(ctx context.Context, caller, token common.Address, amount sdkmath.Int, to common.Address) error {
	return l.execute(ctx, "remove_asset", func(ctx context.Context) error {
		if err := l.requireOwner(caller); err != nil {
			return err
		}
		if amount.IsNil() || !amount.IsPositive() {
			return errorsmod.Wrap(types.ErrInvalidAmount, "removal must be positive")
		}
		if err := l.deps.Bank.Transfer(token, l.address, to, amount); err != nil {
			return errorsmod.Wrapf(types.ErrTransferFailed, "removing %s of %s: %v", amount, token.Hex(), err)
		}
		if _, err := l.deps.Registry.TokenByAddress(token); err != nil {
			return nil
		}
		return l.checkSolvency(ctx)
	})
}
