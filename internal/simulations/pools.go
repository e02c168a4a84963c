package simulations

import (
	"context"
	"sync"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/utils"
)

// DefaultDepositTolerance is the band accepted around the quoted deposit ratio (1%).
const DefaultDepositTolerance uint64 = 1000

type hypervisor struct {
	token0 common.Address
	token1 common.Address
}

// UniProxy is the deposit proxy together with the two-asset pools it serves. Pool reserves and LP shares are
// ordinary bank balances: reserves are held by the pool address and shares are the token at the pool address.
type UniProxy struct {
	mu          sync.RWMutex
	bank        *Bank
	hypervisors map[common.Address]hypervisor
	ratios      map[pair]sdkmath.Int // (pool, token) -> other token per token, scaled by 1e18
	tolerance   uint64
}

func NewUniProxy(bank *Bank) *UniProxy {
	return &UniProxy{
		bank:        bank,
		hypervisors: make(map[common.Address]hypervisor),
		ratios:      make(map[pair]sdkmath.Int),
		tolerance:   DefaultDepositTolerance,
	}
}

// DeployHypervisor creates an empty pool for token0/token1. LP shares have 18 decimals.
func (p *UniProxy) DeployHypervisor(pool, token0, token1 common.Address) {
	p.bank.RegisterToken(pool, 18)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hypervisors[pool] = hypervisor{token0: token0, token1: token1}
}

// SetRatio sets how much of the pool's other token is quoted per unit of token.
func (p *UniProxy) SetRatio(pool, token common.Address, ratio sdkmath.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ratios[pair{in: pool, out: token}] = ratio
}

// SetTolerance sets the accepted band around the quoted ratio, scaled by types.HundredPercent.
func (p *UniProxy) SetTolerance(rate uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tolerance = rate
}

func (p *UniProxy) lookup(pool common.Address) (hypervisor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hv, ok := p.hypervisors[pool]
	if !ok {
		return hypervisor{}, errorsmod.Wrapf(types.ErrPoolCallFailed, "no hypervisor at %s", pool.Hex())
	}
	return hv, nil
}

// Tokens returns the pool's token0 and token1.
func (p *UniProxy) Tokens(pool common.Address) (common.Address, common.Address, error) {
	hv, err := p.lookup(pool)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return hv.token0, hv.token1, nil
}

// GetDepositAmount returns the band of the other token accepted alongside amount of token.
func (p *UniProxy) GetDepositAmount(_ context.Context, pool, token common.Address, amount sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	hv, err := p.lookup(pool)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	if token != hv.token0 && token != hv.token1 {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrPoolCallFailed, "%s is not in pool %s", token.Hex(), pool.Hex())
	}
	p.mu.RLock()
	ratio, ok := p.ratios[pair{in: pool, out: token}]
	tolerance := p.tolerance
	p.mu.RUnlock()
	if !ok {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrPoolCallFailed, "no ratio quoted for %s in %s", token.Hex(), pool.Hex())
	}
	mid, err := utils.MulDiv(amount, ratio, RateScale)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errorsmod.Wrap(types.ErrPoolCallFailed, err.Error())
	}
	band := utils.ApplyRate(mid, tolerance, types.HundredPercent)
	return mid.Sub(band), mid.Add(band), nil
}

// Deposit moves both legs from the depositor into the pool and mints LP shares to the recipient.
func (p *UniProxy) Deposit(ctx context.Context, deposit types.PoolDeposit) (sdkmath.Int, error) {
	hv, err := p.lookup(deposit.Hypervisor)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if deposit.Deposit0.IsZero() && deposit.Deposit1.IsZero() {
		return sdkmath.ZeroInt(), errorsmod.Wrap(types.ErrPoolCallFailed, "empty deposit")
	}
	if deposit.Deposit0.IsPositive() && deposit.Deposit1.IsPositive() {
		low, high, err := p.GetDepositAmount(ctx, deposit.Hypervisor, hv.token0, deposit.Deposit0)
		if err == nil && (deposit.Deposit1.LT(low) || deposit.Deposit1.GT(high)) {
			return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrPoolCallFailed, "improper ratio: %s outside [%s, %s]", deposit.Deposit1, low, high)
		}
	}

	total0, total1 := p.reserves(deposit.Hypervisor, hv)
	shares, err := p.sharesFor(deposit.Hypervisor, hv, deposit.Deposit0, deposit.Deposit1, total0, total1)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := p.bank.Transfer(hv.token0, deposit.From, deposit.Hypervisor, deposit.Deposit0); err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrPoolCallFailed, "token0 deposit: %v", err)
	}
	if err := p.bank.Transfer(hv.token1, deposit.From, deposit.Hypervisor, deposit.Deposit1); err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrPoolCallFailed, "token1 deposit: %v", err)
	}
	if err := p.bank.Mint(deposit.Hypervisor, deposit.To, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}

	poolLogger := logger.GetForComponent("join_pool_simulator")
	poolLogger.Debug().
		Str("hypervisor", deposit.Hypervisor.Hex()).
		Str("deposit0", deposit.Deposit0.String()).
		Str("deposit1", deposit.Deposit1.String()).
		Str("shares", shares.String()).
		Msg("Simulated pool deposit")
	return shares, nil
}

// sharesFor prices a deposit by its 18 decimal normalised size relative to the reserves.
func (p *UniProxy) sharesFor(pool common.Address, hv hypervisor, amount0, amount1, total0, total1 sdkmath.Int) (sdkmath.Int, error) {
	contribution, err := p.normalised(hv, amount0, amount1)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	supply := p.bank.TotalSupply(pool)
	if supply.IsZero() {
		return contribution, nil
	}
	reserves, err := p.normalised(hv, total0, total1)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	shares, err := utils.MulDiv(supply, contribution, reserves)
	if err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrap(types.ErrPoolCallFailed, err.Error())
	}
	return shares, nil
}

func (p *UniProxy) normalised(hv hypervisor, amount0, amount1 sdkmath.Int) (sdkmath.Int, error) {
	dec0, err := p.bank.Decimals(hv.token0)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	dec1, err := p.bank.Decimals(hv.token1)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return scaleTo18(amount0, dec0).Add(scaleTo18(amount1, dec1)), nil
}

func scaleTo18(amount sdkmath.Int, decimals uint8) sdkmath.Int {
	if decimals >= 18 {
		return amount.Quo(utils.Pow10(decimals - 18))
	}
	return amount.Mul(utils.Pow10(18 - decimals))
}

func (p *UniProxy) reserves(pool common.Address, hv hypervisor) (sdkmath.Int, sdkmath.Int) {
	return p.bank.BalanceOf(hv.token0, pool), p.bank.BalanceOf(hv.token1, pool)
}

// TotalAmounts returns the pool's reserves of token0 and token1.
func (p *UniProxy) TotalAmounts(_ context.Context, pool common.Address) (sdkmath.Int, sdkmath.Int, error) {
	hv, err := p.lookup(pool)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	total0, total1 := p.reserves(pool, hv)
	return total0, total1, nil
}

func (p *UniProxy) TotalSupply(_ context.Context, pool common.Address) (sdkmath.Int, error) {
	if _, err := p.lookup(pool); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return p.bank.TotalSupply(pool), nil
}

// Withdraw burns shares held by from and pays the proportional reserves to to.
func (p *UniProxy) Withdraw(_ context.Context, pool common.Address, shares sdkmath.Int, to, from common.Address) (sdkmath.Int, sdkmath.Int, error) {
	hv, err := p.lookup(pool)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	supply := p.bank.TotalSupply(pool)
	if supply.IsZero() || shares.IsZero() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrPoolCallFailed, "nothing to withdraw from %s", pool.Hex())
	}
	total0, total1 := p.reserves(pool, hv)
	amount0, _ := utils.MulDiv(shares, total0, supply)
	amount1, _ := utils.MulDiv(shares, total1, supply)
	if err := p.bank.Burn(pool, from, shares); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrPoolCallFailed, "burning shares: %v", err)
	}
	if err := p.bank.Transfer(hv.token0, pool, to, amount0); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	if err := p.bank.Transfer(hv.token1, pool, to, amount1); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	exitLogger := logger.GetForComponent("exit_pool_simulator")
	exitLogger.Debug().
		Str("hypervisor", pool.Hex()).
		Str("shares", shares.String()).
		Str("amount0", amount0.String()).
		Str("amount1", amount1.String()).
		Msg("Simulated pool withdrawal")
	return amount0, amount1, nil
}
