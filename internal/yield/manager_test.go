package yield

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-standard/smart-vault/internal/oracle"
	"github.com/the-standard/smart-vault/internal/registry"
	"github.com/the-standard/smart-vault/internal/simulations"
	"github.com/the-standard/smart-vault/internal/types"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	collector = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	vault     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	manager   = common.HexToAddress("0x00000000000000000000000000000000000000c2")

	usdc = common.HexToAddress("0x000000000000000000000000000000000000dc00")
	wbtc = common.HexToAddress("0x00000000000000000000000000000000000b7c00")

	ethFeed  = common.HexToAddress("0xfeed000000000000000000000000000000000001")
	wbtcFeed = common.HexToAddress("0xfeed000000000000000000000000000000000002")

	stablePool = common.HexToAddress("0x0000000000000000000000000000000000005001")
	wbtcPool   = common.HexToAddress("0x0000000000000000000000000000000000005002")
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// stuckPools quotes a deposit band no swap can reach for one pool.
type stuckPools struct {
	*simulations.UniProxy
	pool common.Address
}

func (p stuckPools) GetDepositAmount(ctx context.Context, pool, token common.Address, amount sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if pool == p.pool {
		band := sdkmath.NewIntWithDecimal(1, 40)
		return band, band, nil
	}
	return p.UniProxy.GetDepositAmount(ctx, pool, token, amount)
}

type fixture struct {
	ctx    context.Context
	world  *simulations.World
	pricer *oracle.Adapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), world: simulations.NewWorld(now, simulations.DefaultAddresses())}
	w := f.world
	w.Bank.RegisterToken(usdc, 6)
	w.Bank.RegisterToken(wbtc, 8)
	w.Feeds.Deploy(ethFeed, 8)
	w.Feeds.Deploy(wbtcFeed, 8)
	w.Feeds.SetPrice(ethFeed, sdkmath.NewIntWithDecimal(1600, 8), now)
	w.Feeds.SetPrice(wbtcFeed, sdkmath.NewIntWithDecimal(32000, 8), now)

	reg, err := registry.New(owner, types.CollateralAsset{Symbol: "ETH", Decimals: 18, Feed: ethFeed, FeedDecimals: 8}, nil)
	require.NoError(t, err)
	require.NoError(t, reg.AddToken(f.ctx, owner, types.CollateralAsset{Symbol: "WBTC", Address: wbtc, Decimals: 8, Feed: wbtcFeed, FeedDecimals: 8}))
	f.pricer, err = oracle.NewAdapter(oracle.Config{
		Feeds:         w.Feeds,
		Assets:        reg,
		Stablecoins:   map[common.Address]uint8{usdc: 6, w.Debt.Address(): 18},
		WrappedNative: w.WETH.Address(),
		Clock:         w.Clock.Now,
	})
	require.NoError(t, err)

	weth, usds := w.WETH.Address(), w.Debt.Address()
	w.Proxy.DeployHypervisor(stablePool, usds, usdc)
	w.Proxy.SetRatio(stablePool, usdc, sdkmath.NewIntWithDecimal(1, 30))
	w.Proxy.SetRatio(stablePool, usds, sdkmath.NewIntWithDecimal(1, 6))
	w.Proxy.DeployHypervisor(wbtcPool, weth, wbtc)
	w.Proxy.SetRatio(wbtcPool, weth, sdkmath.NewInt(5_000_000))
	w.Proxy.SetRatio(wbtcPool, wbtc, sdkmath.NewIntWithDecimal(20, 28))

	w.Router.SetRate(weth, usdc, sdkmath.NewIntWithDecimal(16, 8))
	w.Router.SetRate(usdc, weth, sdkmath.NewIntWithDecimal(625, 24))
	w.Router.SetRate(usdc, usds, sdkmath.NewIntWithDecimal(1, 30))
	w.Router.SetRate(usds, usdc, sdkmath.NewIntWithDecimal(1, 6))
	w.Router.SetRate(weth, wbtc, sdkmath.NewInt(5_000_000))
	w.Router.SetRate(wbtc, weth, sdkmath.NewIntWithDecimal(20, 28))
	w.Router.SetRate(wbtc, usdc, sdkmath.NewIntWithDecimal(32, 19))
	w.Router.SetRate(usdc, wbtc, sdkmath.NewIntWithDecimal(3125, 12))
	ra := w.Router.Address()
	require.NoError(t, w.Bank.Mint(usdc, ra, sdkmath.NewIntWithDecimal(1_000_000, 6)))
	require.NoError(t, w.Bank.Mint(usds, ra, sdkmath.NewIntWithDecimal(1_000_000, 18)))
	require.NoError(t, w.Bank.Mint(wbtc, ra, sdkmath.NewIntWithDecimal(10, 8)))
	require.NoError(t, w.Bank.Mint(weth, ra, sdkmath.NewIntWithDecimal(10, 18)))
	return f
}

func (f *fixture) manager(t *testing.T, pools Pools) *Manager {
	t.Helper()
	if pools == nil {
		pools = f.world.Proxy
	}
	m, err := NewManager(Config{
		Address:          manager,
		Owner:            owner,
		USDs:             f.world.Debt.Address(),
		USDC:             usdc,
		StableHypervisor: stablePool,
		FeeCollector:     collector,
		Bank:             f.world.Bank,
		Router:           f.world.Router,
		Pools:            pools,
		Pricer:           f.pricer,
	})
	require.NoError(t, err)
	weth := f.world.WETH.Address()
	require.NoError(t, m.AddHypervisorData(owner, types.HypervisorData{
		Asset: weth, Hypervisor: wbtcPool, PoolFee: 500,
		ToStable: types.NewRoute(weth, 3000, usdc), FromStable: types.NewRoute(usdc, 3000, weth),
	}))
	require.NoError(t, m.AddHypervisorData(owner, types.HypervisorData{
		Asset: wbtc, Hypervisor: wbtcPool, PoolFee: 500,
		ToStable: types.NewRoute(wbtc, 3000, usdc), FromStable: types.NewRoute(usdc, 3000, wbtc),
	}))
	return m
}

// fund hands amount of token to the manager the way a vault does before calling Deposit.
func (f *fixture) fund(t *testing.T, token common.Address, amount sdkmath.Int) {
	t.Helper()
	require.NoError(t, f.world.Bank.Mint(token, manager, amount))
}

func (f *fixture) deposit(token common.Address, amount sdkmath.Int, stable uint64) types.YieldDeposit {
	return types.YieldDeposit{Vault: vault, Token: token, Amount: amount, StablePercentage: stable, Deadline: now.Add(time.Minute)}
}

func TestNewManagerValidation(t *testing.T) {
	f := newFixture(t)

	_, err := NewManager(Config{Address: manager, Owner: owner, USDs: f.world.Debt.Address(), USDC: usdc, StableHypervisor: stablePool})
	require.ErrorIs(t, err, types.ErrInvalidParameter)

	_, err = NewManager(Config{
		Address: manager, Owner: owner, USDC: usdc, StableHypervisor: stablePool,
		Bank: f.world.Bank, Router: f.world.Router, Pools: f.world.Proxy, Pricer: f.pricer,
	})
	require.ErrorIs(t, err, types.ErrInvalidAddress)

	_, err = NewManager(Config{
		Address: manager, Owner: owner, USDs: f.world.Debt.Address(), USDC: usdc, StableHypervisor: stablePool,
		Bank: f.world.Bank, Router: f.world.Router, Pools: f.world.Proxy, Pricer: f.pricer,
	})
	require.ErrorIs(t, err, types.ErrInvalidAddress)
}

func TestHypervisorDataIsOwnerOnlyAndValidated(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)
	weth := f.world.WETH.Address()
	data := types.HypervisorData{
		Asset: weth, Hypervisor: wbtcPool, PoolFee: 500,
		ToStable: types.NewRoute(weth, 3000, usdc), FromStable: types.NewRoute(usdc, 3000, weth),
	}

	require.ErrorIs(t, m.AddHypervisorData(vault, data), types.ErrNotOwner)

	bad := data
	bad.ToStable = types.NewRoute(weth, 3000, wbtc)
	require.ErrorIs(t, m.AddHypervisorData(owner, bad), types.ErrInvalidRoute)

	bad = data
	bad.Hypervisor = stablePool
	require.ErrorIs(t, m.AddHypervisorData(owner, bad), types.ErrIncompatibleHypervisor)

	bad = data
	bad.PoolFee = 0
	require.ErrorIs(t, m.AddHypervisorData(owner, bad), types.ErrInvalidParameter)

	require.ErrorIs(t, m.RemoveHypervisorData(vault, weth), types.ErrNotOwner)
	require.NoError(t, m.RemoveHypervisorData(owner, weth))
	require.ErrorIs(t, m.RemoveHypervisorData(owner, weth), types.ErrHypervisorData)
	_, err := m.HypervisorData(weth)
	require.ErrorIs(t, err, types.ErrHypervisorData)
}

func TestDepositBalancesBothPools(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)
	weth := f.world.WETH.Address()
	f.fund(t, weth, sdkmath.NewIntWithDecimal(1, 17))

	hypervisors, err := m.Deposit(f.ctx, f.deposit(weth, sdkmath.NewIntWithDecimal(1, 17), 50000))
	require.NoError(t, err)
	assert.Equal(t, []common.Address{stablePool, wbtcPool}, hypervisors)

	stable, err := m.Position(f.ctx, stablePool, vault)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(40, 18).String(), stable.Amount0.String())
	assert.Equal(t, int64(40_000_000), stable.Amount1.Int64())

	pool, err := m.Position(f.ctx, wbtcPool, vault)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(25, 15).String(), pool.Amount0.String())
	assert.Equal(t, int64(125_000), pool.Amount1.Int64())

	// nothing is left behind in transit
	for _, token := range []common.Address{weth, wbtc, usdc, f.world.Debt.Address()} {
		assert.True(t, f.world.Bank.BalanceOf(token, manager).IsZero(), token.Hex())
	}
}

func TestDepositAllStable(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)
	f.fund(t, wbtc, sdkmath.NewInt(1_000_000))

	hypervisors, err := m.Deposit(f.ctx, f.deposit(wbtc, sdkmath.NewInt(1_000_000), 100000))
	require.NoError(t, err)
	assert.Equal(t, []common.Address{stablePool}, hypervisors)

	// 0.01 WBTC is 320 USDC, split evenly against USDs
	position, err := m.Position(f.ctx, stablePool, vault)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(160, 18).String(), position.Amount0.String())
	assert.Equal(t, int64(160_000_000), position.Amount1.Int64())
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)
	weth := f.world.WETH.Address()

	_, err := m.Deposit(f.ctx, f.deposit(weth, sdkmath.NewInt(1), MinStablePercentage-1))
	require.ErrorIs(t, err, types.ErrInvalidStablePercentage)
	_, err = m.Deposit(f.ctx, f.deposit(weth, sdkmath.NewInt(1), 100001))
	require.ErrorIs(t, err, types.ErrInvalidStablePercentage)
	_, err = m.Deposit(f.ctx, f.deposit(usdc, sdkmath.NewInt(1), 50000))
	require.ErrorIs(t, err, types.ErrHypervisorData)
	_, err = m.Deposit(f.ctx, f.deposit(weth, sdkmath.NewInt(1), 50000))
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestRatioNotReachedWithinIterations(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, stuckPools{UniProxy: f.world.Proxy, pool: wbtcPool})
	weth := f.world.WETH.Address()
	f.fund(t, weth, sdkmath.NewIntWithDecimal(1, 17))

	_, err := m.Deposit(f.ctx, f.deposit(weth, sdkmath.NewIntWithDecimal(1, 17), 50000))
	require.ErrorIs(t, err, types.ErrRatio)
	assert.Equal(t, types.KindConvergence, types.KindOf(err))
}

// poolSwaps lists the single hop swaps between weth and wbtc as "in->out" amount pairs, in order.
func (f *fixture) poolSwaps() [][2]string {
	weth := f.world.WETH.Address()
	var out [][2]string
	for _, s := range f.world.Router.Singles() {
		switch {
		case s.TokenIn == weth && s.TokenOut == wbtc:
			out = append(out, [2]string{"weth->wbtc", s.AmountIn.String()})
		case s.TokenIn == wbtc && s.TokenOut == weth:
			out = append(out, [2]string{"wbtc->weth", s.AmountIn.String()})
		}
	}
	return out
}

func TestRatioRefinesAfterWorseExecution(t *testing.T) {
	f := newFixture(t)
	weth := f.world.WETH.Address()
	f.world.Proxy.SetTolerance(100)
	// 0.6% below the oracle price
	f.world.Router.SetRate(weth, wbtc, sdkmath.NewInt(4_970_000))
	m := f.manager(t, nil)
	f.fund(t, weth, sdkmath.NewIntWithDecimal(1, 17))

	_, err := m.Deposit(f.ctx, f.deposit(weth, sdkmath.NewIntWithDecimal(1, 17), 50000))
	require.NoError(t, err)

	// the first swap lands short of the band, the second is priced from the first
	assert.Equal(t, [][2]string{
		{"weth->wbtc", "25000000000000000"},
		{"weth->wbtc", "75225677031093"},
	}, f.poolSwaps())

	pool, err := m.Position(f.ctx, wbtcPool, vault)
	require.NoError(t, err)
	assert.Equal(t, "24924774322968907", pool.Amount0.String())
	assert.Equal(t, int64(124_623), pool.Amount1.Int64())
}

func TestRatioSwapsBackAfterOvershoot(t *testing.T) {
	f := newFixture(t)
	weth := f.world.WETH.Address()
	f.world.Proxy.SetTolerance(100)
	// 1% above the oracle price
	f.world.Router.SetRate(weth, wbtc, sdkmath.NewInt(5_050_000))
	m := f.manager(t, nil)
	f.fund(t, weth, sdkmath.NewIntWithDecimal(1, 17))

	_, err := m.Deposit(f.ctx, f.deposit(weth, sdkmath.NewIntWithDecimal(1, 17), 50000))
	require.NoError(t, err)

	assert.Equal(t, [][2]string{
		{"weth->wbtc", "25000000000000000"},
		{"wbtc->weth", "628"},
	}, f.poolSwaps())

	pool, err := m.Position(f.ctx, wbtcPool, vault)
	require.NoError(t, err)
	assert.Equal(t, "25125600000000000", pool.Amount0.String())
	assert.Equal(t, int64(125_622), pool.Amount1.Int64())
	assert.True(t, f.world.Bank.BalanceOf(weth, manager).IsZero())
	assert.True(t, f.world.Bank.BalanceOf(wbtc, manager).IsZero())
}

func TestRatioStopsAtIterationCap(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, stuckPools{UniProxy: f.world.Proxy, pool: wbtcPool})
	m.maxIterations = 3
	weth := f.world.WETH.Address()
	f.fund(t, weth, sdkmath.NewIntWithDecimal(1, 17))

	_, err := m.Deposit(f.ctx, f.deposit(weth, sdkmath.NewIntWithDecimal(1, 17), 50000))
	require.ErrorIs(t, err, types.ErrRatio)
	assert.Contains(t, err.Error(), "after 3 swaps")
	assert.NotEmpty(t, f.poolSwaps())
	assert.LessOrEqual(t, len(f.poolSwaps()), 3)
}

func TestWithdrawChargesFee(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)
	weth := f.world.WETH.Address()
	f.fund(t, weth, sdkmath.NewIntWithDecimal(1, 17))
	_, err := m.Deposit(f.ctx, f.deposit(weth, sdkmath.NewIntWithDecimal(1, 17), 50000))
	require.NoError(t, err)

	shares := f.world.Bank.BalanceOf(wbtcPool, vault)
	require.NoError(t, f.world.Bank.Transfer(wbtcPool, vault, manager, shares))
	credited, err := m.Withdraw(f.ctx, types.YieldWithdrawal{
		Vault: vault, Hypervisor: wbtcPool, Token: wbtc, Shares: shares, Deadline: now.Add(time.Minute),
	})
	require.NoError(t, err)

	// 0.025 WETH swaps to 125000 sats, joined by the 125000 in the pool; 1% goes to the collector
	assert.Equal(t, int64(247_500), credited.Int64())
	assert.Equal(t, int64(247_500), f.world.Bank.BalanceOf(wbtc, vault).Int64())
	assert.Equal(t, int64(2_500), f.world.Bank.BalanceOf(wbtc, collector).Int64())
}

func TestWithdrawRejectsForeignHypervisor(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)
	otherPool := common.HexToAddress("0x0000000000000000000000000000000000005003")
	f.world.Proxy.DeployHypervisor(otherPool, f.world.WETH.Address(), usdc)

	_, err := m.Withdraw(f.ctx, types.YieldWithdrawal{Vault: vault, Hypervisor: otherPool, Token: wbtc, Shares: sdkmath.NewInt(1)})
	require.ErrorIs(t, err, types.ErrIncompatibleHypervisor)

	_, err = m.Withdraw(f.ctx, types.YieldWithdrawal{Vault: vault, Hypervisor: wbtcPool, Token: usdc, Shares: sdkmath.NewInt(1)})
	require.ErrorIs(t, err, types.ErrHypervisorData)

	_, err = m.Withdraw(f.ctx, types.YieldWithdrawal{Vault: vault, Hypervisor: wbtcPool, Token: wbtc, Shares: sdkmath.ZeroInt()})
	require.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestSetFeeData(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)

	require.ErrorIs(t, m.SetFeeData(vault, 500, collector), types.ErrNotOwner)
	require.ErrorIs(t, m.SetFeeData(owner, types.HundredPercent, collector), types.ErrInvalidParameter)
	require.ErrorIs(t, m.SetFeeData(owner, 500, common.Address{}), types.ErrInvalidAddress)
	rate, to := m.feeData()
	assert.Equal(t, DefaultFeeRate, rate)
	assert.Equal(t, collector, to)

	require.NoError(t, m.SetFeeData(owner, 500, vault))
	rate, to = m.feeData()
	assert.Equal(t, uint64(500), rate)
	assert.Equal(t, vault, to)
}
