package service

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-standard/smart-vault/internal/config"
	"github.com/the-standard/smart-vault/internal/types"
)

const deployment = `
start = 2026-03-01T12:00:00Z

[accounts]
protocol_owner = "0x00000000000000000000000000000000000000a1"
treasury = "0x00000000000000000000000000000000000000a2"
liquidator = "0x00000000000000000000000000000000000000a3"
directory = "0x00000000000000000000000000000000000000a4"
yield_manager = "0x00000000000000000000000000000000000000a5"
weth = "0x0000000000000000000000000000000000001003"
debt = "0x0000000000000000000000000000000000001004"

[oracle]
stablecoins = [{ address = "0x0000000000000000000000000000000000001001", decimals = 6 }]

[yield]
usdc = "0x0000000000000000000000000000000000001001"
stable_hypervisor = "0x0000000000000000000000000000000000005001"

[native]
symbol = "ETH"
decimals = 18
feed = "0x0000000000000000000000000000000000002001"
feed_decimals = 8

[[collateral]]
symbol = "WBTC"
address = "0x0000000000000000000000000000000000001002"
decimals = 8
feed = "0x0000000000000000000000000000000000002002"
feed_decimals = 8

[[tokens]]
address = "0x0000000000000000000000000000000000001001"
decimals = 6

[[feeds]]
address = "0x0000000000000000000000000000000000002001"
decimals = 8
answer = "1600_00000000"

[[feeds]]
address = "0x0000000000000000000000000000000000002002"
decimals = 8
answer = "32000_00000000"

[[pools]]
address = "0x0000000000000000000000000000000000005001"
token0 = "0x0000000000000000000000000000000000001004"
token1 = "0x0000000000000000000000000000000000001001"
ratio0 = "1000000"
ratio1 = "1000000000000000000000000000000"

[[funding]]
token = "0x0000000000000000000000000000000000001002"
holder = "0x00000000000000000000000000000000000000b1"
amount = "100000000"
`

var alice = common.HexToAddress("0x00000000000000000000000000000000000000b1")

type memVaults struct{ records map[uint64]types.VaultRecord }

func (m *memVaults) SaveVaultRecord(_ context.Context, record types.VaultRecord) error {
	m.records[record.ID] = record
	return nil
}

func (m *memVaults) all() []types.VaultRecord {
	out := make([]types.VaultRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out
}

type memAssets struct{ saves int }

func (m *memAssets) SaveCollateralAssets(context.Context, []types.CollateralAsset) error {
	m.saves++
	return nil
}

func parse(t *testing.T) config.Bootstrap {
	t.Helper()
	b, err := config.ParseBootstrap(deployment)
	require.NoError(t, err)
	return b
}

func TestBuildFromBootstrap(t *testing.T) {
	ctx := context.Background()
	assets := &memAssets{}
	s, err := Build(ctx, parse(t), Stores{Assets: assets}, Persisted{})
	require.NoError(t, err)

	accepted := s.Registry.AcceptedTokens()
	require.Len(t, accepted, 2)
	assert.Equal(t, types.Symbol("ETH"), accepted[0].Symbol)
	assert.Equal(t, types.Symbol("WBTC"), accepted[1].Symbol)
	assert.Equal(t, 1, assets.saves)

	assert.Equal(t, common.HexToAddress("0x1003"), s.World.WETH.Address())
	assert.Equal(t, "100000000", s.World.Bank.BalanceOf(common.HexToAddress("0x1002"), alice).String())

	wbtc, err := s.Registry.TokenBySymbol("WBTC")
	require.NoError(t, err)
	value, err := s.Oracle.TokenValue(ctx, wbtc, sdkmath.NewInt(100000000))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(32000, 18).String(), value.String())
}

func TestBuildReplaysPersistedVaults(t *testing.T) {
	ctx := context.Background()
	store := &memVaults{records: make(map[uint64]types.VaultRecord)}
	first, err := Build(ctx, parse(t), Stores{Vaults: store}, Persisted{})
	require.NoError(t, err)

	ledger, err := first.Directory.Open(ctx, alice)
	require.NoError(t, err)
	wbtc := common.HexToAddress("0x1002")
	require.NoError(t, first.World.Bank.Transfer(wbtc, alice, ledger.Address(), sdkmath.NewInt(50000000)))
	require.NoError(t, ledger.Mint(ctx, alice, alice, sdkmath.NewIntWithDecimal(1000, 18)))

	second, err := Build(ctx, parse(t), Stores{}, Persisted{Records: store.all()})
	require.NoError(t, err)

	restored, err := second.Directory.Vault(1)
	require.NoError(t, err)
	assert.Equal(t, alice, restored.Owner(ctx))
	assert.Equal(t, sdkmath.NewIntWithDecimal(1010, 18).String(), restored.Minted(ctx).String())
	assert.Equal(t, "50000000", second.World.Bank.BalanceOf(wbtc, ledger.Address()).String())

	status, err := restored.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(16000, 18).String(), status.TotalCollateralValue.String())

	next, err := second.Directory.Open(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next.ID())
}

func TestPersistedAssetsReplaceBootstrapCollateral(t *testing.T) {
	ctx := context.Background()
	b := parse(t)
	assets := &memAssets{}
	s, err := Build(ctx, b, Stores{Assets: assets}, Persisted{Assets: []types.CollateralAsset{b.Native}})
	require.NoError(t, err)

	require.Len(t, s.Registry.AcceptedTokens(), 1)
	assert.Zero(t, assets.saves)
}

func TestBuildRejectsUnknownBalances(t *testing.T) {
	ctx := context.Background()
	record := types.VaultRecord{
		SchemaVersion: types.CurrentSchemaVersion,
		ID:            1,
		Owner:         alice,
		Minted:        sdkmath.ZeroInt(),
		Balances:      map[types.Symbol]sdkmath.Int{"DOGE": sdkmath.NewInt(5)},
	}
	_, err := Build(ctx, parse(t), Stores{}, Persisted{Records: []types.VaultRecord{record}})
	require.ErrorIs(t, err, types.ErrTokenNotFound)
}
