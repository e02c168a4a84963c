/*

Yield manager: turns a vault's collateral into liquidity pool shares and back.

A deposit splits the asset in two. The stable slice is routed to USDC, balanced against USDs and deposited into the
canonical USDs/USDC pool; the remainder is balanced against the asset's partner in its own pool. LP shares are minted
straight to the vault. A withdrawal redeems shares held by the manager (the vault hands them over first), swaps the
pool's legs back to the requested asset, skims the protocol fee and pays the rest to the vault.

*/

package yield

import (
	"context"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/utils"
)

const (
	// MinStablePercentage is the smallest share of a deposit that must go to the stable pool (10%).
	MinStablePercentage uint64 = 10000
	// DefaultStablePoolFee is the fee tier of USDs/USDC swaps.
	DefaultStablePoolFee uint32 = 500
	// DefaultSlippage bounds every yield swap against the oracle price (1%).
	DefaultSlippage uint64 = 1000
	// DefaultMaxIterations caps the swaps spent balancing one pool deposit.
	DefaultMaxIterations = 20
	// DefaultFeeRate is the protocol fee on withdrawals (1%).
	DefaultFeeRate uint64 = 1000
)

type Bank interface {
	BalanceOf(token, holder common.Address) sdkmath.Int
	Transfer(token, from, to common.Address, amount sdkmath.Int) error
}

type Router interface {
	ExactInputSingle(ctx context.Context, params types.ExactInputSingleParams) (sdkmath.Int, error)
	ExactInput(ctx context.Context, params types.ExactInputParams) (sdkmath.Int, error)
}

// Pools is the deposit proxy in front of the two-asset pools. LP shares are bank tokens at the pool address.
type Pools interface {
	Tokens(pool common.Address) (common.Address, common.Address, error)
	GetDepositAmount(ctx context.Context, pool, token common.Address, amount sdkmath.Int) (sdkmath.Int, sdkmath.Int, error)
	Deposit(ctx context.Context, deposit types.PoolDeposit) (sdkmath.Int, error)
	Withdraw(ctx context.Context, pool common.Address, shares sdkmath.Int, to, from common.Address) (sdkmath.Int, sdkmath.Int, error)
	TotalAmounts(ctx context.Context, pool common.Address) (sdkmath.Int, sdkmath.Int, error)
	TotalSupply(ctx context.Context, pool common.Address) (sdkmath.Int, error)
}

// Pricer converts between token amounts and USD for slippage bounds and first-step ratio prices.
type Pricer interface {
	AddressToUSD(ctx context.Context, token common.Address, amount sdkmath.Int) (sdkmath.Int, error)
	USDToAddress(ctx context.Context, token common.Address, usd sdkmath.Int) (sdkmath.Int, error)
}

type Config struct {
	Address          common.Address // account holding funds in transit
	Owner            common.Address
	USDs             common.Address
	USDC             common.Address
	StableHypervisor common.Address // USDs/USDC pool
	StablePoolFee    uint32
	FeeRate          uint64
	FeeCollector     common.Address
	Slippage         uint64
	MaxIterations    int

	Bank   Bank
	Router Router
	Pools  Pools
	Pricer Pricer
}

type Manager struct {
	address          common.Address
	owner            common.Address
	usds             common.Address
	usdc             common.Address
	stableHypervisor common.Address
	stablePoolFee    uint32
	slippage         uint64
	maxIterations    int

	bank   Bank
	router Router
	pools  Pools
	pricer Pricer

	mu           sync.RWMutex
	data         map[common.Address]types.HypervisorData
	feeRate      uint64
	feeCollector common.Address

	logger zerolog.Logger
}

func NewManager(cfg Config) (*Manager, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	m := &Manager{
		address:          cfg.Address,
		owner:            cfg.Owner,
		usds:             cfg.USDs,
		usdc:             cfg.USDC,
		stableHypervisor: cfg.StableHypervisor,
		stablePoolFee:    cfg.StablePoolFee,
		slippage:         cfg.Slippage,
		maxIterations:    cfg.MaxIterations,
		bank:             cfg.Bank,
		router:           cfg.Router,
		pools:            cfg.Pools,
		pricer:           cfg.Pricer,
		data:             make(map[common.Address]types.HypervisorData),
		feeRate:          cfg.FeeRate,
		feeCollector:     cfg.FeeCollector,
		logger:           logger.GetForComponent("yield_manager"),
	}
	if m.stablePoolFee == 0 {
		m.stablePoolFee = DefaultStablePoolFee
	}
	if m.slippage == 0 {
		m.slippage = DefaultSlippage
	}
	if m.maxIterations == 0 {
		m.maxIterations = DefaultMaxIterations
	}
	if m.feeRate == 0 {
		m.feeRate = DefaultFeeRate
	}
	return m, nil
}

func validateConfig(cfg Config) error {
	if cfg.Bank == nil || cfg.Router == nil || cfg.Pools == nil || cfg.Pricer == nil {
		return errorsmod.Wrap(types.ErrInvalidParameter, "yield manager needs a bank, a router, pools and a pricer")
	}
	zero := common.Address{}
	if cfg.Address == zero || cfg.Owner == zero || cfg.USDs == zero || cfg.USDC == zero || cfg.StableHypervisor == zero {
		return errorsmod.Wrap(types.ErrInvalidAddress, "yield manager, owner, USDs, USDC and stable pool addresses must be set")
	}
	if cfg.FeeCollector == zero {
		return errorsmod.Wrap(types.ErrInvalidAddress, "fee collector must be set")
	}
	if cfg.FeeRate >= types.HundredPercent || cfg.Slippage >= types.HundredPercent {
		return errorsmod.Wrapf(types.ErrInvalidParameter, "fee rate %d and slippage %d must be below 100%%", cfg.FeeRate, cfg.Slippage)
	}
	if cfg.MaxIterations < 0 {
		return errorsmod.Wrap(types.ErrInvalidParameter, "negative iteration cap")
	}
	return nil
}

// Address is the account vaults hand collateral and shares to.
func (m *Manager) Address() common.Address { return m.address }

func (m *Manager) StableHypervisor() common.Address { return m.stableHypervisor }

func (m *Manager) requireOwner(caller common.Address) error {
	if caller != m.owner {
		return errorsmod.Wrapf(types.ErrNotOwner, "%s does not own the yield manager", caller.Hex())
	}
	return nil
}

// AddHypervisorData registers where asset is deposited and how it is routed to and from USDC.
func (m *Manager) AddHypervisorData(caller common.Address, data types.HypervisorData) error {
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	if err := m.validateData(data); err != nil {
		return err
	}
	m.mu.Lock()
	m.data[data.Asset] = data
	m.mu.Unlock()

	m.logger.Info().
		Str("asset", data.Asset.Hex()).
		Str("hypervisor", data.Hypervisor.Hex()).
		Uint32("poolFee", data.PoolFee).
		Msg("Hypervisor data set")
	return nil
}

func (m *Manager) validateData(data types.HypervisorData) error {
	if data.Asset == (common.Address{}) || data.Hypervisor == (common.Address{}) {
		return errorsmod.Wrap(types.ErrInvalidAddress, "hypervisor data needs an asset and a hypervisor")
	}
	if data.PoolFee == 0 || data.PoolFee >= types.MaxPoolFee {
		return errorsmod.Wrapf(types.ErrInvalidParameter, "pool fee %d out of range", data.PoolFee)
	}
	if err := data.ToStable.Validate(); err != nil {
		return err
	}
	if err := data.FromStable.Validate(); err != nil {
		return err
	}
	if data.ToStable.TokenIn() != data.Asset || data.ToStable.TokenOut() != m.usdc {
		return errorsmod.Wrapf(types.ErrInvalidRoute, "route to stable must run %s -> %s", data.Asset.Hex(), m.usdc.Hex())
	}
	if data.FromStable.TokenIn() != m.usdc || data.FromStable.TokenOut() != data.Asset {
		return errorsmod.Wrapf(types.ErrInvalidRoute, "route from stable must run %s -> %s", m.usdc.Hex(), data.Asset.Hex())
	}
	token0, token1, err := m.pools.Tokens(data.Hypervisor)
	if err != nil {
		return err
	}
	if data.Asset != token0 && data.Asset != token1 {
		return errorsmod.Wrapf(types.ErrIncompatibleHypervisor, "%s is not in hypervisor %s", data.Asset.Hex(), data.Hypervisor.Hex())
	}
	return nil
}

func (m *Manager) RemoveHypervisorData(caller, asset common.Address) error {
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[asset]; !ok {
		return errorsmod.Wrapf(types.ErrHypervisorData, "no data for %s", asset.Hex())
	}
	delete(m.data, asset)
	m.logger.Info().Str("asset", asset.Hex()).Msg("Hypervisor data removed")
	return nil
}

// HypervisorData returns the data registered for asset.
func (m *Manager) HypervisorData(asset common.Address) (types.HypervisorData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[asset]
	if !ok {
		return types.HypervisorData{}, errorsmod.Wrapf(types.ErrHypervisorData, "no data for %s", asset.Hex())
	}
	return data, nil
}

// SetFeeData changes the withdrawal fee and where it is paid.
func (m *Manager) SetFeeData(caller common.Address, rate uint64, collector common.Address) error {
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	if rate >= types.HundredPercent {
		return errorsmod.Wrapf(types.ErrInvalidParameter, "fee rate %d must be below 100%%", rate)
	}
	if collector == (common.Address{}) {
		return errorsmod.Wrap(types.ErrInvalidAddress, "fee collector must be set")
	}
	m.mu.Lock()
	m.feeRate = rate
	m.feeCollector = collector
	m.mu.Unlock()
	return nil
}

func (m *Manager) feeData() (uint64, common.Address) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feeRate, m.feeCollector
}

// Deposit places deposit.Amount of deposit.Token, already held by the manager, into pools on behalf of the vault.
// It returns the pools the vault received shares of.
func (m *Manager) Deposit(ctx context.Context, deposit types.YieldDeposit) ([]common.Address, error) {
	if deposit.StablePercentage < MinStablePercentage || deposit.StablePercentage > types.HundredPercent {
		return nil, errorsmod.Wrapf(types.ErrInvalidStablePercentage, "%d outside [%d, %d]",
			deposit.StablePercentage, MinStablePercentage, types.HundredPercent)
	}
	if !deposit.Amount.IsPositive() {
		return nil, errorsmod.Wrap(types.ErrInvalidAmount, "yield deposit must be positive")
	}
	data, err := m.HypervisorData(deposit.Token)
	if err != nil {
		return nil, err
	}
	if held := m.bank.BalanceOf(deposit.Token, m.address); held.LT(deposit.Amount) {
		return nil, errorsmod.Wrapf(types.ErrInsufficientBalance, "manager holds %s of %s", held, deposit.Amount)
	}

	var hypervisors []common.Address
	stableAmount := utils.ApplyRate(deposit.Amount, deposit.StablePercentage, types.HundredPercent)
	if stableAmount.IsPositive() {
		if err := m.depositStable(ctx, data, stableAmount, deposit.Vault, deposit.Deadline); err != nil {
			return nil, err
		}
		hypervisors = append(hypervisors, m.stableHypervisor)
	}
	if remaining := deposit.Amount.Sub(stableAmount); remaining.IsPositive() {
		if err := m.depositOther(ctx, data, deposit.Vault, deposit.Deadline); err != nil {
			return nil, err
		}
		hypervisors = append(hypervisors, data.Hypervisor)
	}

	m.logger.Info().
		Str("vault", deposit.Vault.Hex()).
		Str("token", deposit.Token.Hex()).
		Str("amount", deposit.Amount.String()).
		Uint64("stablePercentage", deposit.StablePercentage).
		Msg("Yield deposit")
	return hypervisors, nil
}

func (m *Manager) depositStable(ctx context.Context, data types.HypervisorData, amount sdkmath.Int, vault common.Address, deadline time.Time) error {
	minOut, err := m.minimumOut(ctx, data.Asset, m.usdc, amount)
	if err != nil {
		return err
	}
	if _, err := m.router.ExactInput(ctx, types.ExactInputParams{
		Path:             data.ToStable,
		Sender:           m.address,
		Recipient:        m.address,
		Deadline:         deadline,
		AmountIn:         amount,
		AmountOutMinimum: minOut,
	}); err != nil {
		return err
	}
	if err := m.swapToRatio(ctx, m.stableHypervisor, m.usdc, m.usds, m.stablePoolFee, deadline); err != nil {
		return err
	}
	return m.depositBalances(ctx, m.stableHypervisor, vault)
}

func (m *Manager) depositOther(ctx context.Context, data types.HypervisorData, vault common.Address, deadline time.Time) error {
	token0, token1, err := m.pools.Tokens(data.Hypervisor)
	if err != nil {
		return err
	}
	partner := token1
	if data.Asset == token1 {
		partner = token0
	}
	if err := m.swapToRatio(ctx, data.Hypervisor, data.Asset, partner, data.PoolFee, deadline); err != nil {
		return err
	}
	return m.depositBalances(ctx, data.Hypervisor, vault)
}

// depositBalances puts everything the manager holds of the pool's tokens into the pool for vault.
func (m *Manager) depositBalances(ctx context.Context, hypervisor, vault common.Address) error {
	token0, token1, err := m.pools.Tokens(hypervisor)
	if err != nil {
		return err
	}
	shares, err := m.pools.Deposit(ctx, types.PoolDeposit{
		Hypervisor: hypervisor,
		Deposit0:   m.bank.BalanceOf(token0, m.address),
		Deposit1:   m.bank.BalanceOf(token1, m.address),
		From:       m.address,
		To:         vault,
	})
	if err != nil {
		return err
	}
	m.logger.Debug().Str("hypervisor", hypervisor.Hex()).Str("shares", shares.String()).Msg("Pool deposit")
	return nil
}

// Withdraw redeems withdrawal.Shares, held by the manager, and pays the proceeds in withdrawal.Token to the vault
// less the protocol fee. It returns the amount paid to the vault.
func (m *Manager) Withdraw(ctx context.Context, withdrawal types.YieldWithdrawal) (sdkmath.Int, error) {
	if !withdrawal.Shares.IsPositive() {
		return sdkmath.ZeroInt(), errorsmod.Wrap(types.ErrInvalidAmount, "no shares to withdraw")
	}
	if withdrawal.Hypervisor == m.stableHypervisor {
		if err := m.withdrawStable(ctx, withdrawal); err != nil {
			return sdkmath.ZeroInt(), err
		}
	} else if err := m.withdrawOther(ctx, withdrawal); err != nil {
		return sdkmath.ZeroInt(), err
	}

	out := m.bank.BalanceOf(withdrawal.Token, m.address)
	rate, collector := m.feeData()
	fee := utils.ApplyRate(out, rate, types.HundredPercent)
	if err := m.bank.Transfer(withdrawal.Token, m.address, collector, fee); err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrTransferFailed, "paying yield fee: %v", err)
	}
	credited := out.Sub(fee)
	if err := m.bank.Transfer(withdrawal.Token, m.address, withdrawal.Vault, credited); err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrTransferFailed, "crediting vault: %v", err)
	}

	m.logger.Info().
		Str("vault", withdrawal.Vault.Hex()).
		Str("hypervisor", withdrawal.Hypervisor.Hex()).
		Str("token", withdrawal.Token.Hex()).
		Str("credited", credited.String()).
		Str("fee", fee.String()).
		Msg("Yield withdrawal")
	return credited, nil
}

func (m *Manager) withdrawStable(ctx context.Context, withdrawal types.YieldWithdrawal) error {
	data, err := m.HypervisorData(withdrawal.Token)
	if err != nil {
		return err
	}
	if _, _, err := m.pools.Withdraw(ctx, m.stableHypervisor, withdrawal.Shares, m.address, m.address); err != nil {
		return err
	}
	if err := m.swapAll(ctx, m.usds, m.usdc, m.stablePoolFee, withdrawal.Deadline); err != nil {
		return err
	}
	usdc := m.bank.BalanceOf(m.usdc, m.address)
	if !usdc.IsPositive() {
		return nil
	}
	minOut, err := m.minimumOut(ctx, m.usdc, withdrawal.Token, usdc)
	if err != nil {
		return err
	}
	_, err = m.router.ExactInput(ctx, types.ExactInputParams{
		Path:             data.FromStable,
		Sender:           m.address,
		Recipient:        m.address,
		Deadline:         withdrawal.Deadline,
		AmountIn:         usdc,
		AmountOutMinimum: minOut,
	})
	return err
}

func (m *Manager) withdrawOther(ctx context.Context, withdrawal types.YieldWithdrawal) error {
	data, err := m.HypervisorData(withdrawal.Token)
	if err != nil {
		return err
	}
	if data.Hypervisor != withdrawal.Hypervisor {
		return errorsmod.Wrapf(types.ErrIncompatibleHypervisor, "%s is deposited in %s, not %s",
			withdrawal.Token.Hex(), data.Hypervisor.Hex(), withdrawal.Hypervisor.Hex())
	}
	token0, token1, err := m.pools.Tokens(withdrawal.Hypervisor)
	if err != nil {
		return err
	}
	if _, _, err := m.pools.Withdraw(ctx, withdrawal.Hypervisor, withdrawal.Shares, m.address, m.address); err != nil {
		return err
	}
	other := token0
	if withdrawal.Token == token0 {
		other = token1
	}
	return m.swapAll(ctx, other, withdrawal.Token, data.PoolFee, withdrawal.Deadline)
}

// swapAll swaps the manager's whole balance of tokenIn into tokenOut.
func (m *Manager) swapAll(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, deadline time.Time) error {
	amount := m.bank.BalanceOf(tokenIn, m.address)
	if !amount.IsPositive() {
		return nil
	}
	_, err := m.swapSingle(ctx, tokenIn, tokenOut, fee, amount, deadline)
	return err
}

func (m *Manager) swapSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amount sdkmath.Int, deadline time.Time) (sdkmath.Int, error) {
	minOut, err := m.minimumOut(ctx, tokenIn, tokenOut, amount)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return m.router.ExactInputSingle(ctx, types.ExactInputSingleParams{
		TokenIn:          tokenIn,
		TokenOut:         tokenOut,
		Fee:              fee,
		Sender:           m.address,
		Recipient:        m.address,
		Deadline:         deadline,
		AmountIn:         amount,
		AmountOutMinimum: minOut,
	})
}

// minimumOut is the oracle quote for amount of tokenIn in tokenOut, less the slippage allowance.
func (m *Manager) minimumOut(ctx context.Context, tokenIn, tokenOut common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	quote, err := m.quote(ctx, tokenIn, tokenOut, amount)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return utils.ApplyRate(quote, types.HundredPercent-m.slippage, types.HundredPercent), nil
}

func (m *Manager) quote(ctx context.Context, tokenIn, tokenOut common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	usd, err := m.pricer.AddressToUSD(ctx, tokenIn, amount)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return m.pricer.USDToAddress(ctx, tokenOut, usd)
}

// Position values holder's shares of hypervisor in both pool tokens.
func (m *Manager) Position(ctx context.Context, hypervisor, holder common.Address) (types.YieldPosition, error) {
	token0, token1, err := m.pools.Tokens(hypervisor)
	if err != nil {
		return types.YieldPosition{}, err
	}
	total0, total1, err := m.pools.TotalAmounts(ctx, hypervisor)
	if err != nil {
		return types.YieldPosition{}, err
	}
	supply, err := m.pools.TotalSupply(ctx, hypervisor)
	if err != nil {
		return types.YieldPosition{}, err
	}
	position := types.YieldPosition{
		Hypervisor: hypervisor,
		Token0:     token0,
		Amount0:    sdkmath.ZeroInt(),
		Token1:     token1,
		Amount1:    sdkmath.ZeroInt(),
		Shares:     m.bank.BalanceOf(hypervisor, holder),
	}
	if supply.IsZero() || position.Shares.IsZero() {
		return position, nil
	}
	position.Amount0, _ = utils.MulDiv(position.Shares, total0, supply)
	position.Amount1, _ = utils.MulDiv(position.Shares, total1, supply)
	return position, nil
}
