package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/metrics"
	"github.com/the-standard/smart-vault/internal/types"
)

// Liquidate seizes every accepted asset and every LP share of an undercollateralised vault to recipient and
// clears its debt. Only the vault manager may call it.
func (l *Ledger) Liquidate(ctx context.Context, caller, recipient common.Address) error {
	return l.execute(ctx, "liquidate", func(ctx context.Context) error {
		if caller != l.manager {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not the vault manager", caller.Hex())
		}
		if err := l.requireOpen(); err != nil {
			return err
		}
		under, err := l.undercollateralised(ctx)
		if err != nil {
			return err
		}
		if !under {
			return errorsmod.Wrapf(types.ErrNotUndercollateralised, "vault %d", l.id)
		}

		seized := make(map[types.Symbol]sdkmath.Int)
		for _, asset := range l.deps.Registry.AcceptedTokens() {
			balance := l.deps.Bank.BalanceOf(asset.Address, l.address)
			if !balance.IsPositive() {
				continue
			}
			if err := l.deps.Bank.Transfer(asset.Address, l.address, recipient, balance); err != nil {
				return errorsmod.Wrapf(types.ErrTransferFailed, "seizing %s: %v", asset.Symbol, err)
			}
			seized[asset.Symbol] = balance
		}
		for _, hypervisor := range l.hypervisors {
			shares := l.deps.Bank.BalanceOf(hypervisor, l.address)
			if !shares.IsPositive() {
				continue
			}
			if err := l.deps.Bank.Transfer(hypervisor, l.address, recipient, shares); err != nil {
				return errorsmod.Wrapf(types.ErrTransferFailed, "seizing shares of %s: %v", hypervisor.Hex(), err)
			}
		}

		debt := l.minted
		l.minted = sdkmath.ZeroInt()
		l.hypervisors = nil
		l.liquidated = true
		metrics.Vault().ObserveLiquidation(debt)

		logEvent := l.logger.Warn().
			Str("recipient", recipient.Hex()).
			Str("debt", debt.String())
		for symbol, amount := range seized {
			logEvent = logEvent.Str("seized_"+symbol.String(), amount.String())
		}
		logEvent.Msg("Vault liquidated")
		return nil
	})
}
