package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/the-standard/smart-vault/internal/config"
	"github.com/the-standard/smart-vault/internal/oracle"
	"github.com/the-standard/smart-vault/internal/registry"
	"github.com/the-standard/smart-vault/internal/simulations"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/yield"
)

var (
	protocolOwner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	treasuryAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	liquidator    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	managerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	userAddr      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	otherUser     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	vaultAddr     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	yieldAddr     = common.HexToAddress("0x00000000000000000000000000000000000000c2")

	usdcAddr = common.HexToAddress("0x000000000000000000000000000000000000dc00")
	wbtcAddr = common.HexToAddress("0x00000000000000000000000000000000000b7c00")
	usdtAddr = common.HexToAddress("0x0000000000000000000000000000000000005d70")

	ethFeed  = common.HexToAddress("0xfeed000000000000000000000000000000000001")
	wbtcFeed = common.HexToAddress("0xfeed000000000000000000000000000000000002")
	usdtFeed = common.HexToAddress("0xfeed000000000000000000000000000000000003")

	stableHypervisor   = common.HexToAddress("0x0000000000000000000000000000000000005001")
	wethWBTCHypervisor = common.HexToAddress("0x0000000000000000000000000000000000005002")
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx      context.Context
	world    *simulations.World
	registry *registry.Registry
	oracle   *oracle.Adapter
	params   *config.ProtocolParameters
	yield    *yield.Manager
	ledger   *Ledger
	records  []types.VaultRecord
	failNext error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background()}
	f.world = simulations.NewWorld(start, simulations.DefaultAddresses())
	bank := f.world.Bank
	bank.RegisterToken(usdcAddr, 6)
	bank.RegisterToken(wbtcAddr, 8)
	bank.RegisterToken(usdtAddr, 6)

	for _, feed := range []common.Address{ethFeed, wbtcFeed, usdtFeed} {
		f.world.Feeds.Deploy(feed, 8)
	}
	f.setPrice(ethFeed, 1600)
	f.setPrice(wbtcFeed, 32000)
	f.setPrice(usdtFeed, 1)

	reg, err := registry.New(protocolOwner, types.CollateralAsset{Symbol: "ETH", Decimals: 18, Feed: ethFeed, FeedDecimals: 8}, nil)
	require.NoError(t, err)
	require.NoError(t, reg.AddToken(f.ctx, protocolOwner, types.CollateralAsset{Symbol: "WBTC", Address: wbtcAddr, Decimals: 8, Feed: wbtcFeed, FeedDecimals: 8}))
	require.NoError(t, reg.AddToken(f.ctx, protocolOwner, types.CollateralAsset{Symbol: "USDT", Address: usdtAddr, Decimals: 6, Feed: usdtFeed, FeedDecimals: 8}))
	f.registry = reg

	f.oracle, err = oracle.NewAdapter(oracle.Config{
		Feeds:         f.world.Feeds,
		Assets:        reg,
		Stablecoins:   map[common.Address]uint8{usdcAddr: 6, f.world.Debt.Address(): 18},
		WrappedNative: f.world.WETH.Address(),
		Clock:         f.world.Clock.Now,
	})
	require.NoError(t, err)

	f.params, err = config.NewProtocolParameters(config.DefaultParametersView(protocolOwner, treasuryAddr, liquidator))
	require.NoError(t, err)

	f.deployPools(t)
	f.stockRouter(t)

	f.yield, err = yield.NewManager(yield.Config{
		Address:          yieldAddr,
		Owner:            protocolOwner,
		USDs:             f.world.Debt.Address(),
		USDC:             usdcAddr,
		StableHypervisor: stableHypervisor,
		FeeCollector:     treasuryAddr,
		Bank:             bank,
		Router:           f.world.Router,
		Pools:            f.world.Proxy,
		Pricer:           f.oracle,
	})
	require.NoError(t, err)
	weth := f.world.WETH.Address()
	require.NoError(t, f.yield.AddHypervisorData(protocolOwner, types.HypervisorData{
		Asset: weth, Hypervisor: wethWBTCHypervisor, PoolFee: 500,
		ToStable: types.NewRoute(weth, 3000, usdcAddr), FromStable: types.NewRoute(usdcAddr, 3000, weth),
	}))
	require.NoError(t, f.yield.AddHypervisorData(protocolOwner, types.HypervisorData{
		Asset: wbtcAddr, Hypervisor: wethWBTCHypervisor, PoolFee: 500,
		ToStable: types.NewRoute(wbtcAddr, 3000, usdcAddr), FromStable: types.NewRoute(usdcAddr, 3000, wbtcAddr),
	}))

	f.ledger, err = NewLedger(f.deps(), 1, vaultAddr, managerAddr, userAddr, f.commit)
	require.NoError(t, err)
	return f
}

func (f *fixture) deps() Deps {
	return Deps{
		Bank:       f.world.Bank,
		Checkpoint: f.world.Bank,
		Debt:       f.world.Debt,
		WETH:       f.world.WETH,
		Router:     f.world.Router,
		Oracle:     f.oracle,
		Registry:   f.registry,
		Yield:      f.yield,
		Params:     f.params,
		Sequencer:  NewSequencer(),
		Clock:      f.world.Clock.Now,
	}
}

func (f *fixture) commit(_ context.Context, record types.VaultRecord) error {
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fixture) lastRecord(t *testing.T) types.VaultRecord {
	t.Helper()
	require.NotEmpty(t, f.records)
	return f.records[len(f.records)-1]
}

func (f *fixture) setPrice(feed common.Address, usd int64) {
	f.world.Feeds.SetPrice(feed, sdkmath.NewIntWithDecimal(usd, 8), f.world.Clock.Now())
}

// deployPools mirrors a 1:1 USDs/USDC pool and a WETH/WBTC pool at 20 ETH per WBTC.
func (f *fixture) deployPools(t *testing.T) {
	t.Helper()
	proxy := f.world.Proxy
	usds, weth := f.world.Debt.Address(), f.world.WETH.Address()
	proxy.DeployHypervisor(stableHypervisor, usds, usdcAddr)
	proxy.SetRatio(stableHypervisor, usdcAddr, sdkmath.NewIntWithDecimal(1, 30))
	proxy.SetRatio(stableHypervisor, usds, sdkmath.NewIntWithDecimal(1, 6))
	proxy.DeployHypervisor(wethWBTCHypervisor, weth, wbtcAddr)
	proxy.SetRatio(wethWBTCHypervisor, weth, sdkmath.NewInt(5_000_000))
	proxy.SetRatio(wethWBTCHypervisor, wbtcAddr, sdkmath.NewIntWithDecimal(20, 28))
}

// stockRouter sets fair rates at ETH 1600 / WBTC 32000 and funds the router with every output token.
func (f *fixture) stockRouter(t *testing.T) {
	t.Helper()
	router, bank := f.world.Router, f.world.Bank
	usds, weth := f.world.Debt.Address(), f.world.WETH.Address()
	router.SetRate(weth, usdcAddr, sdkmath.NewIntWithDecimal(16, 8))
	router.SetRate(usdcAddr, weth, sdkmath.NewIntWithDecimal(625, 24))
	router.SetRate(usdcAddr, usds, sdkmath.NewIntWithDecimal(1, 30))
	router.SetRate(usds, usdcAddr, sdkmath.NewIntWithDecimal(1, 6))
	router.SetRate(weth, wbtcAddr, sdkmath.NewInt(5_000_000))
	router.SetRate(wbtcAddr, weth, sdkmath.NewIntWithDecimal(20, 28))
	router.SetRate(wbtcAddr, usdcAddr, sdkmath.NewIntWithDecimal(32, 19))
	router.SetRate(usdcAddr, wbtcAddr, sdkmath.NewIntWithDecimal(3125, 12))

	ra := router.Address()
	require.NoError(t, bank.Mint(usdcAddr, ra, sdkmath.NewIntWithDecimal(1_000_000, 6)))
	require.NoError(t, bank.Mint(usds, ra, sdkmath.NewIntWithDecimal(1_000_000, 18)))
	require.NoError(t, bank.Mint(wbtcAddr, ra, sdkmath.NewIntWithDecimal(10, 8)))
	require.NoError(t, bank.Mint(types.NativeAddress, ra, sdkmath.NewIntWithDecimal(10, 18)))
	require.NoError(t, f.world.WETH.Deposit(f.ctx, ra, sdkmath.NewIntWithDecimal(10, 18)))
}

// depositNative gives the user amount of the native asset and deposits it into the vault.
func (f *fixture) depositNative(t *testing.T, amount sdkmath.Int) {
	t.Helper()
	require.NoError(t, f.world.Bank.Mint(types.NativeAddress, userAddr, amount))
	require.NoError(t, f.ledger.Deposit(f.ctx, userAddr, "ETH", amount))
}

func (f *fixture) balance(token, holder common.Address) sdkmath.Int {
	return f.world.Bank.BalanceOf(token, holder)
}

func (f *fixture) deadline() time.Time {
	return f.world.Clock.Now().Add(time.Minute)
}

func ether(whole int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(whole, 18)
}

// milliEther returns thousandths of one native unit.
func milliEther(m int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(m, 15)
}

func intOf(t *testing.T, s string) sdkmath.Int {
	t.Helper()
	v, ok := sdkmath.NewIntFromString(s)
	require.True(t, ok, s)
	return v
}

var errStoreDown = errors.New("store down")
