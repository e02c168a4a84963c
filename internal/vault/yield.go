package vault

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
)

// DepositYield moves the whole balance of an asset into liquidity pools through the yield manager.
// stablePercentage of it goes to the stable pool, the rest to the asset's own pool.
func (l *Ledger) DepositYield(ctx context.Context, caller common.Address, symbol types.Symbol, stablePercentage, minCollateralPercentage uint64, deadline time.Time) error {
	return l.execute(ctx, "deposit_yield", func(ctx context.Context) error {
		if err := l.requireOwner(caller); err != nil {
			return err
		}
		if err := l.requireOpen(); err != nil {
			return err
		}
		if err := l.requireDeadline(deadline); err != nil {
			return err
		}
		asset, err := l.deps.Registry.TokenBySymbol(symbol)
		if err != nil {
			return err
		}
		balance := l.deps.Bank.BalanceOf(asset.Address, l.address)
		if !balance.IsPositive() {
			return errorsmod.Wrapf(types.ErrInvalidAmount, "vault holds no %s", symbol)
		}

		token := asset.Address
		if asset.IsNative() {
			if err := l.deps.WETH.Deposit(ctx, l.address, balance); err != nil {
				return errorsmod.Wrapf(types.ErrTransferFailed, "wrapping %s: %v", symbol, err)
			}
			token = l.deps.WETH.Address()
		}
		if err := l.deps.Bank.Transfer(token, l.address, l.deps.Yield.Address(), balance); err != nil {
			return errorsmod.Wrapf(types.ErrTransferFailed, "handing %s to yield manager: %v", symbol, err)
		}

		hypervisors, err := l.deps.Yield.Deposit(ctx, types.YieldDeposit{
			Vault:            l.address,
			Token:            token,
			Amount:           balance,
			StablePercentage: stablePercentage,
			Deadline:         deadline,
		})
		if err != nil {
			return err
		}
		for _, hypervisor := range hypervisors {
			l.addHypervisor(hypervisor)
		}

		l.logger.Info().
			Str("symbol", symbol.String()).
			Str("amount", balance.String()).
			Uint64("stablePercentage", stablePercentage).
			Int("hypervisors", len(l.hypervisors)).
			Msg("Deposited collateral for yield")
		return l.checkYieldFloor(ctx, minCollateralPercentage)
	})
}

// WithdrawYield redeems every share the vault holds in hypervisor and takes the proceeds back as symbol.
func (l *Ledger) WithdrawYield(ctx context.Context, caller, hypervisor common.Address, symbol types.Symbol, minCollateralPercentage uint64, deadline time.Time) error {
	return l.execute(ctx, "withdraw_yield", func(ctx context.Context) error {
		if err := l.requireOwner(caller); err != nil {
			return err
		}
		if err := l.requireOpen(); err != nil {
			return err
		}
		if err := l.requireDeadline(deadline); err != nil {
			return err
		}
		asset, err := l.deps.Registry.TokenBySymbol(symbol)
		if err != nil {
			return err
		}
		shares := l.deps.Bank.BalanceOf(hypervisor, l.address)
		if !shares.IsPositive() {
			return errorsmod.Wrapf(types.ErrInvalidAmount, "vault holds no shares of %s", hypervisor.Hex())
		}
		if err := l.deps.Bank.Transfer(hypervisor, l.address, l.deps.Yield.Address(), shares); err != nil {
			return errorsmod.Wrapf(types.ErrTransferFailed, "handing shares to yield manager: %v", err)
		}

		token := asset.Address
		if asset.IsNative() {
			token = l.deps.WETH.Address()
		}
		received, err := l.deps.Yield.Withdraw(ctx, types.YieldWithdrawal{
			Vault:      l.address,
			Hypervisor: hypervisor,
			Token:      token,
			Shares:     shares,
			Deadline:   deadline,
		})
		if err != nil {
			return err
		}
		if asset.IsNative() && received.IsPositive() {
			if err := l.deps.WETH.Withdraw(ctx, l.address, received); err != nil {
				return errorsmod.Wrapf(types.ErrTransferFailed, "unwrapping %s: %v", symbol, err)
			}
		}
		l.removeHypervisor(hypervisor)

		l.logger.Info().
			Str("hypervisor", hypervisor.Hex()).
			Str("symbol", symbol.String()).
			Str("shares", shares.String()).
			Str("received", received.String()).
			Msg("Withdrew collateral from yield")
		return l.checkYieldFloor(ctx, minCollateralPercentage)
	})
}

// checkYieldFloor rejects an undercollateralised vault, and one with debt whose collateral percentage fell below floor.
func (l *Ledger) checkYieldFloor(ctx context.Context, floor uint64) error {
	v, err := l.value(ctx)
	if err != nil {
		return err
	}
	if limit := l.maxMintable(v.total); l.minted.GT(limit) {
		return errorsmod.Wrapf(types.ErrUndercollateralised, "vault %d minted %s, collateral supports %s", l.id, l.minted, limit)
	}
	if l.minted.IsPositive() {
		pct := l.collateralPercentage(v.total)
		if pct.LT(sdkmath.NewIntFromUint64(floor)) {
			return errorsmod.Wrapf(types.ErrCollateralFloor, "collateral percentage %s below %d", pct, floor)
		}
	}
	return nil
}

func (l *Ledger) addHypervisor(hypervisor common.Address) {
	for _, held := range l.hypervisors {
		if held == hypervisor {
			return
		}
	}
	l.hypervisors = append(l.hypervisors, hypervisor)
}

func (l *Ledger) removeHypervisor(hypervisor common.Address) {
	kept := l.hypervisors[:0:0]
	for _, held := range l.hypervisors {
		if held != hypervisor {
			kept = append(kept, held)
		}
	}
	l.hypervisors = kept
}
