package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-standard/smart-vault/internal/config"
	"github.com/the-standard/smart-vault/internal/directory"
	"github.com/the-standard/smart-vault/internal/oracle"
	"github.com/the-standard/smart-vault/internal/registry"
	"github.com/the-standard/smart-vault/internal/simulations"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/vault"
	"github.com/the-standard/smart-vault/internal/yield"
)

var (
	protocolOwner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	treasury      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	liquidator    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	directoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	alice         = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	yieldAddr     = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	usdc          = common.HexToAddress("0x000000000000000000000000000000000000dc00")
	ethFeed       = common.HexToAddress("0xfeed000000000000000000000000000000000001")
	stablePool    = common.HexToAddress("0x0000000000000000000000000000000000005001")
)

type staticSweeps []types.SweepResult

func (s staticSweeps) RecentSweeps(_ context.Context, limit int) ([]types.SweepResult, error) {
	if limit > len(s) {
		limit = len(s)
	}
	return s[:limit], nil
}

type fixture struct {
	world  *simulations.World
	dir    *directory.Directory
	server *WebServer
}

func newFixture(t *testing.T, sweeps Sweeps, ping func(context.Context) error) *fixture {
	t.Helper()
	w := simulations.NewWorld(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), simulations.DefaultAddresses())
	w.Bank.RegisterToken(usdc, 6)
	w.Feeds.Deploy(ethFeed, 8)
	w.Feeds.SetPrice(ethFeed, sdkmath.NewIntWithDecimal(1600, 8), w.Clock.Now())

	reg, err := registry.New(protocolOwner, types.CollateralAsset{Symbol: "ETH", Decimals: 18, Feed: ethFeed, FeedDecimals: 8}, nil)
	require.NoError(t, err)
	adapter, err := oracle.NewAdapter(oracle.Config{
		Feeds:         w.Feeds,
		Assets:        reg,
		Stablecoins:   map[common.Address]uint8{usdc: 6, w.Debt.Address(): 18},
		WrappedNative: w.WETH.Address(),
		Clock:         w.Clock.Now,
	})
	require.NoError(t, err)
	params, err := config.NewProtocolParameters(config.DefaultParametersView(protocolOwner, treasury, liquidator))
	require.NoError(t, err)

	w.Proxy.DeployHypervisor(stablePool, w.Debt.Address(), usdc)
	manager, err := yield.NewManager(yield.Config{
		Address:          yieldAddr,
		Owner:            protocolOwner,
		USDs:             w.Debt.Address(),
		USDC:             usdc,
		StableHypervisor: stablePool,
		FeeCollector:     treasury,
		Bank:             w.Bank,
		Router:           w.Router,
		Pools:            w.Proxy,
		Pricer:           adapter,
	})
	require.NoError(t, err)

	dir, err := directory.New(directory.Config{
		Address: directoryAddr,
		Params:  params,
		Deps: vault.Deps{
			Bank:       w.Bank,
			Checkpoint: w.Bank,
			Debt:       w.Debt,
			WETH:       w.WETH,
			Router:     w.Router,
			Oracle:     adapter,
			Registry:   reg,
			Yield:      manager,
			Sequencer:  vault.NewSequencer(),
			Clock:      w.Clock.Now,
		},
	})
	require.NoError(t, err)

	server := NewWebServer(Config{Directory: dir, Collateral: reg, Parameters: params, Sweeps: sweeps, Ping: ping})
	return &fixture{world: w, dir: dir, server: server}
}

func (f *fixture) openVault(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	ledger, err := f.dir.Open(ctx, alice)
	require.NoError(t, err)
	one := sdkmath.NewIntWithDecimal(1, 18)
	require.NoError(t, f.world.Bank.Mint(types.NativeAddress, alice, one))
	require.NoError(t, ledger.Deposit(ctx, alice, "ETH", one))
	require.NoError(t, ledger.Mint(ctx, alice, alice, sdkmath.NewIntWithDecimal(100, 18)))
}

func (f *fixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestGetVault(t *testing.T) {
	f := newFixture(t, staticSweeps{}, nil)
	f.openVault(t)

	rec, body := f.get(t, "/api/vaults/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "101000000000000000000", body["minted"])
	assert.Equal(t, "1600000000000000000000", body["total_collateral_value"])
	assert.Equal(t, false, body["liquidated"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, body = f.get(t, "/api/vaults/1/yield")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["positions"])
}

func TestGetVaultErrors(t *testing.T) {
	f := newFixture(t, staticSweeps{}, nil)
	f.openVault(t)

	rec, body := f.get(t, "/api/vaults/9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, true, body["error"])

	rec, _ = f.get(t, "/api/vaults/abc")
	assert.Equal(t, http.StatusNotFound, rec.Code) // no route matches a non-numeric id

	f.world.Clock.Advance(25 * time.Hour)
	rec, body = f.get(t, "/api/vaults/1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["message"], "stale price")
}

func TestGetOwnerVaults(t *testing.T) {
	f := newFixture(t, staticSweeps{}, nil)
	f.openVault(t)

	rec, body := f.get(t, "/api/owners/"+alice.Hex()+"/vaults")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = f.get(t, "/api/owners/not-an-address/vaults")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCollateralAndParameters(t *testing.T) {
	f := newFixture(t, staticSweeps{}, nil)

	rec, body := f.get(t, "/api/collateral")
	require.Equal(t, http.StatusOK, rec.Code)
	assets := body["assets"].([]interface{})
	require.Len(t, assets, 1)
	assert.Equal(t, "ETH", assets[0].(map[string]interface{})["symbol"])

	rec, body = f.get(t, "/api/parameters")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(config.DefaultCollateralRate), body["collateral_rate"])
	assert.Equal(t, "USDs", body["vault_type"])
}

func TestGetSweeps(t *testing.T) {
	sweeps := staticSweeps{
		{CycleID: "b", CycleNumber: 2, Liquidated: []uint64{1}},
		{CycleID: "a", CycleNumber: 1, Liquidated: []uint64{}},
	}
	f := newFixture(t, sweeps, nil)

	rec, body := f.get(t, "/api/sweeps?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(1), body["limit"])
	first := body["sweeps"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "b", first["cycle_id"])

	_, body = f.get(t, "/api/sweeps?limit=5000")
	assert.Equal(t, float64(defaultSweepPage), body["limit"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t, staticSweeps{{CycleID: "a", CycleNumber: 1}}, nil)
	rec, body := f.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "disabled", body["vaults"].(map[string]interface{})["database"])

	down := newFixture(t, staticSweeps{}, func(context.Context) error { return errors.New("connection refused") })
	rec, body = down.get(t, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEGRADED", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, staticSweeps{}, nil)
	rec, _ := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(types.ErrVaultNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(types.ErrSequencerDown))
	assert.Equal(t, http.StatusInternalServerError, statusFor(types.ErrRatio))
}
