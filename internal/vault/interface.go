package vault

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
)

// AssetBank holds the token balances of every account, the vault included.
type AssetBank interface {
	BalanceOf(token, holder common.Address) sdkmath.Int
	Transfer(token, from, to common.Address, amount sdkmath.Int) error
}

// Checkpointer captures and restores the world state around one ledger operation.
// Every Snapshot is closed by exactly one RevertToSnapshot or Commit.
type Checkpointer interface {
	Snapshot() int
	RevertToSnapshot(id int)
	Commit(id int)
}

// DebtToken is the minted stable token.
type DebtToken interface {
	Address() common.Address
	Mint(ctx context.Context, to common.Address, amount sdkmath.Int) error
	Burn(ctx context.Context, from common.Address, amount sdkmath.Int) error
}

// WrappedNative wraps and unwraps the native asset for swaps and pool deposits.
type WrappedNative interface {
	Address() common.Address
	Deposit(ctx context.Context, holder common.Address, amount sdkmath.Int) error
	Withdraw(ctx context.Context, holder common.Address, amount sdkmath.Int) error
}

type SwapRouter interface {
	ExactInputSingle(ctx context.Context, params types.ExactInputSingleParams) (sdkmath.Int, error)
}

// Valuer converts raw token amounts to 18 decimal values in the vault currency and back.
type Valuer interface {
	TokenValue(ctx context.Context, asset types.CollateralAsset, amount sdkmath.Int) (sdkmath.Int, error)
	ValueToToken(ctx context.Context, asset types.CollateralAsset, value sdkmath.Int) (sdkmath.Int, error)
	AddressValue(ctx context.Context, token common.Address, amount sdkmath.Int) (sdkmath.Int, error)
}

type AssetRegistry interface {
	AcceptedTokens() []types.CollateralAsset
	TokenBySymbol(symbol types.Symbol) (types.CollateralAsset, error)
	TokenByAddress(addr common.Address) (types.CollateralAsset, error)
}

// YieldManager moves collateral into and out of liquidity pools. Deposit returns every pool the vault now holds
// shares of because of the deposit.
type YieldManager interface {
	Address() common.Address
	Deposit(ctx context.Context, deposit types.YieldDeposit) ([]common.Address, error)
	Withdraw(ctx context.Context, withdrawal types.YieldWithdrawal) (sdkmath.Int, error)
	Position(ctx context.Context, hypervisor, holder common.Address) (types.YieldPosition, error)
}

// Params are the protocol parameters read on every operation.
type Params interface {
	CollateralRate() uint64
	MintFeeRate() uint64
	BurnFeeRate() uint64
	SwapFeeRate() uint64
	DefaultPoolFee() uint32
	Treasury() common.Address
	VaultVersion() uint8
	VaultType() types.Symbol
}

// Deps are the collaborators shared by every ledger of a directory.
type Deps struct {
	Bank       AssetBank
	Checkpoint Checkpointer
	Debt       DebtToken
	WETH       WrappedNative
	Router     SwapRouter
	Oracle     Valuer
	Registry   AssetRegistry
	Yield      YieldManager
	Params     Params
	Sequencer  *Sequencer
	Clock      func() time.Time
}
