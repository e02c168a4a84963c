/*

Registered domain errors. The codespace of each error is its kind, so callers can classify any wrapped error
with KindOf without string matching.

*/

package types

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// ErrorKind groups domain errors by how callers should react to them.
type ErrorKind string

const (
	KindAuthorization ErrorKind = "authorization"
	KindSolvency      ErrorKind = "solvency"
	KindState         ErrorKind = "state"
	KindOracle        ErrorKind = "oracle"
	KindExternal      ErrorKind = "external"
	KindConvergence   ErrorKind = "convergence"
	KindUnknown       ErrorKind = "unknown"
)

var (
	ErrUnauthorized   = errorsmod.Register(string(KindAuthorization), 2, "invalid user")
	ErrNotOwner       = errorsmod.Register(string(KindAuthorization), 3, "caller is not the owner")
	ErrNotLiquidator  = errorsmod.Register(string(KindAuthorization), 4, "caller is not the liquidator")
	ErrNotVaultHolder = errorsmod.Register(string(KindAuthorization), 5, "caller does not hold the vault")
)

var (
	ErrUndercollateralised    = errorsmod.Register(string(KindSolvency), 2, "vault undercollateralised")
	ErrNotUndercollateralised = errorsmod.Register(string(KindSolvency), 3, "vault-not-undercollateralised")
	ErrOverrepay              = errorsmod.Register(string(KindSolvency), 4, "burn exceeds minted debt")
	ErrCollateralFloor        = errorsmod.Register(string(KindSolvency), 5, "collateral percentage below requested floor")
)

var (
	ErrVaultLiquidated         = errorsmod.Register(string(KindState), 2, "vault liquidated")
	ErrTokenExists             = errorsmod.Register(string(KindState), 3, "err-token-exists")
	ErrTokenNotFound           = errorsmod.Register(string(KindState), 4, "token not accepted")
	ErrNativeTokenRemoval      = errorsmod.Register(string(KindState), 5, "native token cannot be removed")
	ErrDeadlineExpired         = errorsmod.Register(string(KindState), 6, "deadline expired")
	ErrInvalidAmount           = errorsmod.Register(string(KindState), 7, "invalid amount")
	ErrInvalidSymbol           = errorsmod.Register(string(KindState), 8, "invalid symbol")
	ErrInvalidAsset            = errorsmod.Register(string(KindState), 9, "invalid collateral descriptor")
	ErrVaultLimit              = errorsmod.Register(string(KindState), 10, "err-vault-limit")
	ErrVaultNotFound           = errorsmod.Register(string(KindState), 11, "vault not found")
	ErrNoLiquidatableVaults    = errorsmod.Register(string(KindState), 12, "no-liquidatable-vaults")
	ErrInvalidParameter        = errorsmod.Register(string(KindState), 13, "invalid parameter")
	ErrParameterUnchanged      = errorsmod.Register(string(KindState), 14, "parameter unchanged")
	ErrHypervisorData          = errorsmod.Register(string(KindState), 15, "hypervisor data missing")
	ErrIncompatibleHypervisor  = errorsmod.Register(string(KindState), 16, "incompatible hypervisor")
	ErrInvalidStablePercentage = errorsmod.Register(string(KindState), 17, "stable percentage out of range")
	ErrInvalidRoute            = errorsmod.Register(string(KindState), 18, "invalid swap route")
	ErrUnsupportedSchema       = errorsmod.Register(string(KindState), 19, "unsupported record schema")
	ErrInvalidAddress          = errorsmod.Register(string(KindState), 20, "invalid address")
)

var (
	ErrInvalidRoundID = errorsmod.Register(string(KindOracle), 2, "invalid round id")
	ErrInvalidPrice   = errorsmod.Register(string(KindOracle), 3, "invalid price")
	ErrInvalidUpdate  = errorsmod.Register(string(KindOracle), 4, "invalid update time")
	ErrStalePrice     = errorsmod.Register(string(KindOracle), 5, "stale price")
	ErrSequencerDown  = errorsmod.Register(string(KindOracle), 6, "sequencer down")
	ErrFeedNotFound   = errorsmod.Register(string(KindOracle), 7, "price feed not found")
	ErrUnpricedAsset  = errorsmod.Register(string(KindOracle), 8, "asset has no price source")
)

var (
	ErrInsufficientBalance = errorsmod.Register(string(KindExternal), 2, "insufficient balance")
	ErrSwapFailed          = errorsmod.Register(string(KindExternal), 3, "swap failed")
	ErrPoolCallFailed      = errorsmod.Register(string(KindExternal), 4, "liquidity pool call failed")
	ErrTransferFailed      = errorsmod.Register(string(KindExternal), 5, "transfer failed")
)

var (
	ErrRatio = errorsmod.Register(string(KindConvergence), 2, "ratio not reached within swap iterations")
)

// KindOf returns the taxonomy kind of err, or KindUnknown for errors outside the domain set.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var domainErr *errorsmod.Error
	if errors.As(err, &domainErr) {
		return ErrorKind(domainErr.Codespace())
	}
	return KindUnknown
}
