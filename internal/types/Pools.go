/*

Types shared with the external swap router and the two-asset liquidity pools (hypervisors).

*/

package types

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// MaxPoolFee is the largest fee tier a route hop may carry (100% in hundredths of a bip).
const MaxPoolFee uint32 = 1_000_000

// Route is a multi-hop swap path: Tokens[i] -> Tokens[i+1] through the pool with fee tier Fees[i].
type Route struct {
	Tokens []common.Address `json:"tokens" toml:"tokens"`
	Fees   []uint32         `json:"fees" toml:"fees"`
}

// NewRoute builds a single hop route.
func NewRoute(tokenIn common.Address, fee uint32, tokenOut common.Address) Route {
	return Route{Tokens: []common.Address{tokenIn, tokenOut}, Fees: []uint32{fee}}
}

func (r Route) TokenIn() common.Address {
	if len(r.Tokens) == 0 {
		return common.Address{}
	}
	return r.Tokens[0]
}

func (r Route) TokenOut() common.Address {
	if len(r.Tokens) == 0 {
		return common.Address{}
	}
	return r.Tokens[len(r.Tokens)-1]
}

// Validate checks hop count, fee tiers and that no hop swaps a token into itself.
func (r Route) Validate() error {
	if len(r.Tokens) < 2 {
		return errorsmod.Wrapf(ErrInvalidRoute, "route needs at least two tokens, got %d", len(r.Tokens))
	}
	if len(r.Fees) != len(r.Tokens)-1 {
		return errorsmod.Wrapf(ErrInvalidRoute, "route has %d tokens but %d fees", len(r.Tokens), len(r.Fees))
	}
	for i, fee := range r.Fees {
		if fee == 0 || fee >= MaxPoolFee {
			return errorsmod.Wrapf(ErrInvalidRoute, "hop %d fee tier %d out of range", i, fee)
		}
		if r.Tokens[i] == r.Tokens[i+1] {
			return errorsmod.Wrapf(ErrInvalidRoute, "hop %d swaps %s into itself", i, r.Tokens[i].Hex())
		}
		if r.Tokens[i] == (common.Address{}) || r.Tokens[i+1] == (common.Address{}) {
			return errorsmod.Wrapf(ErrInvalidRoute, "hop %d uses the zero address", i)
		}
	}
	return nil
}

// HypervisorData tells the yield manager where an asset is deposited and how it reaches the stable token.
type HypervisorData struct {
	Asset      common.Address `json:"asset" toml:"asset"`             // collateral token (wrapped native for the native asset)
	Hypervisor common.Address `json:"hypervisor" toml:"hypervisor"`   // asset specific pool
	PoolFee    uint32         `json:"pool_fee" toml:"pool_fee"`       // fee tier for swaps between the pool's two tokens
	ToStable   Route          `json:"to_stable" toml:"to_stable"`     // asset -> stable token
	FromStable Route          `json:"from_stable" toml:"from_stable"` // stable token -> asset
}

// ExactInputSingleParams mirrors a single pool exact-input swap. Sender pays AmountIn.
type ExactInputSingleParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              uint32
	Sender           common.Address
	Recipient        common.Address
	Deadline         time.Time
	AmountIn         sdkmath.Int
	AmountOutMinimum sdkmath.Int
}

// ExactInputParams mirrors a multi-hop exact-input swap along Path.
type ExactInputParams struct {
	Path             Route
	Sender           common.Address
	Recipient        common.Address
	Deadline         time.Time
	AmountIn         sdkmath.Int
	AmountOutMinimum sdkmath.Int
}

// PoolDeposit is a two-sided deposit into a hypervisor through the deposit proxy.
type PoolDeposit struct {
	Hypervisor common.Address
	Deposit0   sdkmath.Int
	Deposit1   sdkmath.Int
	From       common.Address
	To         common.Address
}

// YieldPosition is derived from LP share balances and never stored on its own.
type YieldPosition struct {
	Hypervisor common.Address `json:"hypervisor"`
	Token0     common.Address `json:"token0"`
	Amount0    sdkmath.Int    `json:"amount0"`
	Token1     common.Address `json:"token1"`
	Amount1    sdkmath.Int    `json:"amount1"`
	Shares     sdkmath.Int    `json:"shares"`
}

// YieldDeposit is handed from a vault to the yield manager. The vault transfers Amount of Token beforehand.
type YieldDeposit struct {
	Vault            common.Address
	Token            common.Address
	Amount           sdkmath.Int
	StablePercentage uint64
	Deadline         time.Time
}

// YieldWithdrawal is handed from a vault to the yield manager after the vault transferred its shares.
type YieldWithdrawal struct {
	Vault      common.Address
	Hypervisor common.Address
	Token      common.Address
	Shares     sdkmath.Int
	Deadline   time.Time
}
