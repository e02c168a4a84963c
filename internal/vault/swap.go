package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/utils"
)

// Swap exchanges one collateral asset for another through the router. The swap fee is taken from the input before
// routing, and the minimum output is raised to whatever keeps the vault solvent.
func (l *Ledger) Swap(ctx context.Context, caller common.Address, req types.SwapRequest) error {
	return l.execute(ctx, "swap", func(ctx context.Context) error {
		if err := l.requireOwner(caller); err != nil {
			return err
		}
		if err := l.requireOpen(); err != nil {
			return err
		}
		if err := l.requireDeadline(req.Deadline); err != nil {
			return err
		}
		if req.AmountIn.IsNil() || !req.AmountIn.IsPositive() {
			return errorsmod.Wrap(types.ErrInvalidAmount, "swap input must be positive")
		}
		in, err := l.deps.Registry.TokenBySymbol(req.TokenIn)
		if err != nil {
			return err
		}
		out, err := l.deps.Registry.TokenBySymbol(req.TokenOut)
		if err != nil {
			return err
		}
		if in.Address == out.Address {
			return errorsmod.Wrapf(types.ErrInvalidRoute, "%s swapped into itself", in.Symbol)
		}

		minOut, err := l.solvencyMinOut(ctx, in, out, req.AmountIn)
		if err != nil {
			return err
		}
		if !req.MinOut.IsNil() {
			minOut = utils.MaxInt(minOut, req.MinOut)
		}

		fee := utils.ApplyRate(req.AmountIn, l.deps.Params.SwapFeeRate(), types.HundredPercent)
		if err := l.deps.Bank.Transfer(in.Address, l.address, l.deps.Params.Treasury(), fee); err != nil {
			return errorsmod.Wrapf(types.ErrTransferFailed, "paying swap fee: %v", err)
		}
		net := req.AmountIn.Sub(fee)

		tokenIn, tokenOut := in.Address, out.Address
		if in.IsNative() {
			if err := l.deps.WETH.Deposit(ctx, l.address, net); err != nil {
				return errorsmod.Wrapf(types.ErrSwapFailed, "wrapping input: %v", err)
			}
			tokenIn = l.deps.WETH.Address()
		}
		if out.IsNative() {
			tokenOut = l.deps.WETH.Address()
		}
		poolFee := req.PoolFee
		if poolFee == 0 {
			poolFee = l.deps.Params.DefaultPoolFee()
		}

		received, err := l.deps.Router.ExactInputSingle(ctx, types.ExactInputSingleParams{
			TokenIn:          tokenIn,
			TokenOut:         tokenOut,
			Fee:              poolFee,
			Sender:           l.address,
			Recipient:        l.address,
			Deadline:         req.Deadline,
			AmountIn:         net,
			AmountOutMinimum: minOut,
		})
		if err != nil {
			return err
		}
		if out.IsNative() {
			if err := l.deps.WETH.Withdraw(ctx, l.address, received); err != nil {
				return errorsmod.Wrapf(types.ErrSwapFailed, "unwrapping output: %v", err)
			}
		}

		l.logger.Info().
			Str("tokenIn", in.Symbol.String()).
			Str("tokenOut", out.Symbol.String()).
			Str("amountIn", req.AmountIn.String()).
			Str("fee", fee.String()).
			Str("minOut", minOut.String()).
			Str("received", received.String()).
			Msg("Swapped vault collateral")
		return l.checkSolvency(ctx)
	})
}

// solvencyMinOut is the output needed to restore the required collateral value once amountIn has left the vault.
// It is zero when the rest of the collateral already covers the debt.
func (l *Ledger) solvencyMinOut(ctx context.Context, in, out types.CollateralAsset, amountIn sdkmath.Int) (sdkmath.Int, error) {
	v, err := l.value(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	required := utils.ApplyRate(l.minted, l.deps.Params.CollateralRate(), types.HundredPercent)
	inValue, err := l.deps.Oracle.TokenValue(ctx, in, amountIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	remaining := v.total.Sub(inValue)
	if remaining.GTE(required) {
		return sdkmath.ZeroInt(), nil
	}
	return l.deps.Oracle.ValueToToken(ctx, out, required.Sub(remaining))
}
