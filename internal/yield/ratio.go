package yield

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/utils"
)

// executionPrice is pOut units of tokenB per pIn units of tokenA.
type executionPrice struct {
	pIn  sdkmath.Int
	pOut sdkmath.Int
}

// swapToRatio swaps between tokenA and tokenB until the manager's tokenB balance lies within the band the pool
// accepts alongside its tokenA balance. The first step prices the swap from the oracle, later steps from the
// swap just observed.
func (m *Manager) swapToRatio(ctx context.Context, hypervisor, tokenA, tokenB common.Address, fee uint32, deadline time.Time) error {
	var price executionPrice
	for i := 0; i < m.maxIterations; i++ {
		balA := m.bank.BalanceOf(tokenA, m.address)
		balB := m.bank.BalanceOf(tokenB, m.address)
		low, high, err := m.pools.GetDepositAmount(ctx, hypervisor, tokenA, balA)
		if err != nil {
			return err
		}
		if balB.GTE(low) && balB.LTE(high) {
			m.logger.Debug().
				Str("hypervisor", hypervisor.Hex()).
				Int("swaps", i).
				Str("balanceA", balA.String()).
				Str("balanceB", balB.String()).
				Msg("Deposit ratio reached")
			return nil
		}
		mid := low.Add(high).QuoRaw(2)

		if price.pIn.IsNil() {
			price, err = m.oraclePrice(ctx, tokenA, tokenB, balA)
			if err != nil {
				return err
			}
		}
		denom := price.pOut.Mul(balA).Add(mid.Mul(price.pIn))
		if denom.IsZero() {
			continue
		}

		if balB.LT(mid) {
			x, _ := utils.MulDiv(mid.Sub(balB).Mul(price.pIn), balA, denom)
			if !x.IsPositive() {
				continue
			}
			out, err := m.swapSingle(ctx, tokenA, tokenB, fee, x, deadline)
			if err != nil {
				return err
			}
			price = executionPrice{pIn: x, pOut: out}
		} else {
			y, _ := utils.MulDiv(balB.Sub(mid).Mul(price.pOut), balA, denom)
			if !y.IsPositive() {
				continue
			}
			out, err := m.swapSingle(ctx, tokenB, tokenA, fee, y, deadline)
			if err != nil {
				return err
			}
			price = executionPrice{pIn: out, pOut: y}
		}
	}
	return errorsmod.Wrapf(types.ErrRatio, "hypervisor %s not balanced after %d swaps", hypervisor.Hex(), m.maxIterations)
}

// oraclePrice quotes amountA of tokenA in tokenB. A zero tokenA balance is quoted on one whole unit instead.
func (m *Manager) oraclePrice(ctx context.Context, tokenA, tokenB common.Address, amountA sdkmath.Int) (executionPrice, error) {
	if !amountA.IsPositive() {
		amountA = utils.Pow10(18)
	}
	amountB, err := m.quote(ctx, tokenA, tokenB, amountA)
	if err != nil {
		return executionPrice{}, err
	}
	return executionPrice{pIn: amountA, pOut: amountB}, nil
}
