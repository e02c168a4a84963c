package vault

import (
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-standard/smart-vault/internal/types"
)

func TestNewLedgerValidation(t *testing.T) {
	f := newFixture(t)

	deps := f.deps()
	deps.Oracle = nil
	_, err := NewLedger(deps, 2, vaultAddr, managerAddr, userAddr, nil)
	require.ErrorIs(t, err, types.ErrInvalidParameter)

	_, err = NewLedger(f.deps(), 2, vaultAddr, managerAddr, common.Address{}, nil)
	require.ErrorIs(t, err, types.ErrInvalidAddress)
}

func TestStatusOfEmptyVault(t *testing.T) {
	f := newFixture(t)

	status, err := f.ledger.Status(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.ID)
	assert.Equal(t, userAddr, status.Owner)
	assert.True(t, status.Minted.IsZero())
	assert.True(t, status.TotalCollateralValue.IsZero())
	assert.True(t, status.CollateralPercentage.IsZero())
	assert.Len(t, status.Collateral, 3)
	assert.Empty(t, status.Yield)
	assert.Equal(t, uint8(4), status.Version)
	assert.Equal(t, types.Symbol("USDs"), status.VaultType)
}

func TestDepositIsPermissionless(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.world.Bank.Mint(wbtcAddr, otherUser, sdkmath.NewInt(50_000_000)))
	require.NoError(t, f.ledger.Deposit(f.ctx, otherUser, "WBTC", sdkmath.NewInt(50_000_000)))
	f.depositNative(t, ether(1))

	status, err := f.ledger.Status(f.ctx)
	require.NoError(t, err)
	// 0.5 WBTC at 32000 plus 1 ETH at 1600
	assert.Equal(t, ether(17600).String(), status.TotalCollateralValue.String())
	assert.Equal(t, intOf(t, "14666666666666666666666").String(), status.MaxMintable.String())

	err = f.ledger.Deposit(f.ctx, otherUser, "DOGE", sdkmath.NewInt(1))
	require.ErrorIs(t, err, types.ErrTokenNotFound)
	err = f.ledger.Deposit(f.ctx, otherUser, "WBTC", sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestMintChargesFeeAsDebt(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))

	require.ErrorIs(t, f.ledger.Mint(f.ctx, otherUser, otherUser, ether(100)), types.ErrNotOwner)

	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(100)))
	debt := f.world.Debt.Address()
	assert.Equal(t, ether(100).String(), f.balance(debt, userAddr).String())
	assert.Equal(t, ether(1).String(), f.balance(debt, treasuryAddr).String())
	assert.Equal(t, ether(101).String(), f.ledger.Minted(f.ctx).String())

	status, err := f.ledger.Status(f.ctx)
	require.NoError(t, err)
	// 1600 / 101 = 1584.158...%
	assert.Equal(t, int64(1584158), status.CollateralPercentage.Int64())

	assert.Equal(t, ether(101).String(), f.lastRecord(t).Minted.String())
}

func TestMintUpToCollateralLimit(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))

	// 1600 / 1.2 = 1333.33 supports 1320 plus its 13.2 fee, but not 1321 plus 13.21
	err := f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1321))
	require.ErrorIs(t, err, types.ErrUndercollateralised)
	assert.True(t, f.ledger.Minted(f.ctx).IsZero())
	assert.True(t, f.balance(f.world.Debt.Address(), userAddr).IsZero())

	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1320)))
	assert.Equal(t, intOf(t, "1333200000000000000000").String(), f.ledger.Minted(f.ctx).String())
}

func TestBurnRepaysPrincipalOnly(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))
	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(100)))

	require.ErrorIs(t, f.ledger.Burn(f.ctx, userAddr, sdkmath.ZeroInt()), types.ErrInvalidAmount)
	require.ErrorIs(t, f.ledger.Burn(f.ctx, userAddr, ether(102)), types.ErrOverrepay)

	require.NoError(t, f.ledger.Burn(f.ctx, userAddr, ether(50)))
	debt := f.world.Debt.Address()
	assert.Equal(t, ether(51).String(), f.ledger.Minted(f.ctx).String())
	assert.Equal(t, intOf(t, "49500000000000000000").String(), f.balance(debt, userAddr).String())
	assert.Equal(t, intOf(t, "1500000000000000000").String(), f.balance(debt, treasuryAddr).String())
}

func TestBurnWithoutFeeBalanceReverts(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))
	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(100)))

	// the user holds exactly 100, so burning 100 leaves nothing for the 1 fee
	err := f.ledger.Burn(f.ctx, userAddr, ether(100))
	require.ErrorIs(t, err, types.ErrTransferFailed)
	assert.Equal(t, ether(101).String(), f.ledger.Minted(f.ctx).String())
	assert.Equal(t, ether(100).String(), f.balance(f.world.Debt.Address(), userAddr).String())
}

func TestRemoveCollateralAtExactBoundary(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))
	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1000)))

	// 1010 debt needs 1212 of value, i.e. 0.7575 ETH; 0.2425 ETH is free
	free := intOf(t, "242500000000000000")
	err := f.ledger.RemoveCollateralNative(f.ctx, userAddr, free.AddRaw(1), otherUser)
	require.ErrorIs(t, err, types.ErrUndercollateralised)
	assert.True(t, f.balance(types.NativeAddress, otherUser).IsZero())

	require.NoError(t, f.ledger.RemoveCollateralNative(f.ctx, userAddr, free, otherUser))
	assert.Equal(t, free.String(), f.balance(types.NativeAddress, otherUser).String())

	under, err := f.ledger.Undercollateralised(f.ctx)
	require.NoError(t, err)
	assert.False(t, under)
}

func TestRemoveCollateralBySymbol(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.world.Bank.Mint(wbtcAddr, userAddr, sdkmath.NewInt(100_000_000)))
	require.NoError(t, f.ledger.Deposit(f.ctx, userAddr, "WBTC", sdkmath.NewInt(100_000_000)))

	require.ErrorIs(t, f.ledger.RemoveCollateral(f.ctx, otherUser, "WBTC", sdkmath.NewInt(1), otherUser), types.ErrNotOwner)
	require.NoError(t, f.ledger.RemoveCollateral(f.ctx, userAddr, "WBTC", sdkmath.NewInt(40_000_000), userAddr))
	assert.Equal(t, int64(60_000_000), f.balance(wbtcAddr, vaultAddr).Int64())
}

func TestRemoveAssetSkipsSolvencyForForeignTokens(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))
	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1300)))

	// USDC is not accepted collateral, so removing it never touches solvency
	require.NoError(t, f.world.Bank.Mint(usdcAddr, vaultAddr, sdkmath.NewInt(5_000_000)))
	require.NoError(t, f.ledger.RemoveAsset(f.ctx, userAddr, usdcAddr, sdkmath.NewInt(5_000_000), userAddr))
	assert.Equal(t, int64(5_000_000), f.balance(usdcAddr, userAddr).Int64())

	err := f.ledger.RemoveAsset(f.ctx, userAddr, types.NativeAddress, milliEther(100), userAddr)
	require.ErrorIs(t, err, types.ErrUndercollateralised)
}

func TestPriceDropMakesVaultLiquidatable(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))
	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1000)))

	err := f.ledger.Liquidate(f.ctx, managerAddr, treasuryAddr)
	require.ErrorIs(t, err, types.ErrNotUndercollateralised)

	f.setPrice(ethFeed, 1000)
	under, err := f.ledger.Undercollateralised(f.ctx)
	require.NoError(t, err)
	assert.True(t, under)

	require.ErrorIs(t, f.ledger.Liquidate(f.ctx, userAddr, userAddr), types.ErrUnauthorized)

	require.NoError(t, f.ledger.Liquidate(f.ctx, managerAddr, treasuryAddr))
	assert.True(t, f.ledger.Liquidated(f.ctx))
	assert.True(t, f.ledger.Minted(f.ctx).IsZero())
	assert.Equal(t, ether(1).String(), f.balance(types.NativeAddress, treasuryAddr).String())
	assert.True(t, f.balance(types.NativeAddress, vaultAddr).IsZero())

	require.ErrorIs(t, f.ledger.Liquidate(f.ctx, managerAddr, treasuryAddr), types.ErrVaultLiquidated)
	require.ErrorIs(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1)), types.ErrVaultLiquidated)

	record := f.lastRecord(t)
	assert.True(t, record.Liquidated)
	assert.Empty(t, record.Balances)
}

func TestLiquidatedVaultStillAcceptsDepositsAndAssetRemoval(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))
	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1000)))
	f.setPrice(ethFeed, 1000)
	require.NoError(t, f.ledger.Liquidate(f.ctx, managerAddr, treasuryAddr))

	f.depositNative(t, milliEther(100))
	require.ErrorIs(t, f.ledger.RemoveCollateralNative(f.ctx, userAddr, milliEther(100), userAddr), types.ErrVaultLiquidated)
	require.NoError(t, f.ledger.RemoveAsset(f.ctx, userAddr, types.NativeAddress, milliEther(100), userAddr))
	assert.Equal(t, milliEther(100).String(), f.balance(types.NativeAddress, userAddr).String())
}

func TestSwapRaisesMinimumOutputToStaySolvent(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))
	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1000)))

	err := f.ledger.Swap(f.ctx, userAddr, types.SwapRequest{
		TokenIn:  "ETH",
		TokenOut: "WBTC",
		AmountIn: milliEther(500),
		MinOut:   sdkmath.NewInt(1_000_000),
		Deadline: f.deadline(),
	})
	require.NoError(t, err)

	swap, ok := f.world.Router.LastSingle()
	require.True(t, ok)
	// 1212 required, 800 left after the swap: 412 of WBTC at 32000
	assert.Equal(t, int64(1_287_500), swap.AmountOutMinimum.Int64())
	assert.Equal(t, f.world.WETH.Address(), swap.TokenIn)
	assert.Equal(t, uint32(3000), swap.Fee)
	assert.Equal(t, milliEther(495).String(), swap.AmountIn.String())

	assert.Equal(t, milliEther(5).String(), f.balance(types.NativeAddress, treasuryAddr).String())
	assert.Equal(t, milliEther(500).String(), f.balance(types.NativeAddress, vaultAddr).String())
	assert.Equal(t, int64(2_475_000), f.balance(wbtcAddr, vaultAddr).Int64())
}

func TestSwapKeepsCallerMinimumWhenHigher(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))

	err := f.ledger.Swap(f.ctx, userAddr, types.SwapRequest{
		TokenIn:  "ETH",
		TokenOut: "WBTC",
		AmountIn: milliEther(100),
		MinOut:   sdkmath.NewInt(490_000),
		PoolFee:  500,
		Deadline: f.deadline(),
	})
	require.NoError(t, err)
	swap, _ := f.world.Router.LastSingle()
	assert.Equal(t, int64(490_000), swap.AmountOutMinimum.Int64())
	assert.Equal(t, uint32(500), swap.Fee)
}

func TestSwapAtBrokenRateRevertsEverything(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))
	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1000)))
	f.world.Router.SetRate(f.world.WETH.Address(), wbtcAddr, sdkmath.NewInt(1_000_000))

	err := f.ledger.Swap(f.ctx, userAddr, types.SwapRequest{
		TokenIn: "ETH", TokenOut: "WBTC", AmountIn: milliEther(500), Deadline: f.deadline(),
	})
	require.ErrorIs(t, err, types.ErrSwapFailed)
	assert.Equal(t, types.KindExternal, types.KindOf(err))

	assert.Equal(t, ether(1).String(), f.balance(types.NativeAddress, vaultAddr).String())
	assert.True(t, f.balance(types.NativeAddress, treasuryAddr).IsZero())
	assert.True(t, f.balance(f.world.WETH.Address(), vaultAddr).IsZero())
}

func TestSwapIntoNativeUnwraps(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.world.Bank.Mint(wbtcAddr, userAddr, sdkmath.NewInt(10_000_000)))
	require.NoError(t, f.ledger.Deposit(f.ctx, userAddr, "WBTC", sdkmath.NewInt(10_000_000)))

	err := f.ledger.Swap(f.ctx, userAddr, types.SwapRequest{
		TokenIn: "WBTC", TokenOut: "ETH", AmountIn: sdkmath.NewInt(10_000_000), Deadline: f.deadline(),
	})
	require.NoError(t, err)
	// 0.099 WBTC after the fee, 20 ETH per WBTC
	assert.Equal(t, intOf(t, "1980000000000000000").String(), f.balance(types.NativeAddress, vaultAddr).String())
	assert.True(t, f.balance(f.world.WETH.Address(), vaultAddr).IsZero())
	assert.Equal(t, int64(100_000), f.balance(wbtcAddr, treasuryAddr).Int64())
}

func TestSwapRejectsExpiredDeadlineAndSameToken(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))

	err := f.ledger.Swap(f.ctx, userAddr, types.SwapRequest{
		TokenIn: "ETH", TokenOut: "WBTC", AmountIn: milliEther(1), Deadline: f.world.Clock.Now().Add(-time.Second),
	})
	require.ErrorIs(t, err, types.ErrDeadlineExpired)

	err = f.ledger.Swap(f.ctx, userAddr, types.SwapRequest{
		TokenIn: "ETH", TokenOut: "ETH", AmountIn: milliEther(1), Deadline: f.deadline(),
	})
	require.ErrorIs(t, err, types.ErrInvalidRoute)
}

func TestFailedCommitRevertsOperation(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))
	committed := len(f.records)

	f.failNext = errStoreDown
	err := f.ledger.Mint(f.ctx, userAddr, userAddr, ether(100))
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, types.KindUnknown, types.KindOf(err))

	assert.True(t, f.ledger.Minted(f.ctx).IsZero())
	assert.True(t, f.balance(f.world.Debt.Address(), userAddr).IsZero())
	assert.Len(t, f.records, committed)
}

func TestStaleOracleBlocksMinting(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))

	f.world.Clock.Advance(25 * time.Hour)
	err := f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1))
	require.ErrorIs(t, err, types.ErrStalePrice)
	assert.Equal(t, types.KindOracle, types.KindOf(err))
}

func TestSetOwnerIsManagerOnly(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.ledger.SetOwner(f.ctx, userAddr, otherUser), types.ErrUnauthorized)
	require.NoError(t, f.ledger.SetOwner(f.ctx, managerAddr, otherUser))
	assert.Equal(t, otherUser, f.ledger.Owner(f.ctx))

	f.depositNative(t, ether(1))
	require.ErrorIs(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(1)), types.ErrNotOwner)
	require.NoError(t, f.ledger.Mint(f.ctx, otherUser, otherUser, ether(1)))
}

func TestRestoreFromRecord(t *testing.T) {
	f := newFixture(t)
	f.depositNative(t, ether(1))
	require.NoError(t, f.ledger.Mint(f.ctx, userAddr, userAddr, ether(100)))
	record := f.ledger.Record(f.ctx)
	assert.Equal(t, ether(1).String(), record.Balances["ETH"].String())

	restored, err := NewLedger(f.deps(), 1, vaultAddr, managerAddr, otherUser, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(f.ctx, record))
	assert.Equal(t, userAddr, restored.Owner(f.ctx))
	assert.Equal(t, ether(101).String(), restored.Minted(f.ctx).String())

	other, err := NewLedger(f.deps(), 2, common.HexToAddress("0xc3"), managerAddr, userAddr, nil)
	require.NoError(t, err)
	require.ErrorIs(t, other.Restore(f.ctx, record), types.ErrInvalidParameter)
}

func TestMigrateRecord(t *testing.T) {
	legacy := types.VaultRecord{
		ID:          7,
		Owner:       userAddr,
		Minted:      ether(5),
		Hypervisors: []common.Address{stableHypervisor},
	}
	migrated, err := MigrateRecord(legacy)
	require.NoError(t, err)
	assert.Equal(t, types.CurrentSchemaVersion, migrated.SchemaVersion)
	assert.Equal(t, uint8(4), migrated.Version)
	assert.Equal(t, types.Symbol("USDs"), migrated.VaultType)
	assert.Empty(t, migrated.Hypervisors)
	assert.NotNil(t, migrated.Balances)
	assert.NotNil(t, migrated.Shares)

	current := types.VaultRecord{SchemaVersion: 2, Version: 4, VaultType: "EUROs", Hypervisors: []common.Address{stableHypervisor}}
	migrated, err = MigrateRecord(current)
	require.NoError(t, err)
	assert.Equal(t, types.Symbol("EUROs"), migrated.VaultType)
	assert.Equal(t, []common.Address{stableHypervisor}, migrated.Hypervisors)
	assert.True(t, migrated.Minted.IsZero())

	_, err = MigrateRecord(types.VaultRecord{SchemaVersion: types.CurrentSchemaVersion + 1})
	require.ErrorIs(t, err, types.ErrUnsupportedSchema)
	assert.True(t, errorsmod.IsOf(err, types.ErrUnsupportedSchema))
}
