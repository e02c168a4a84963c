/*

Collateral descriptors. A descriptor is immutable once registered; the registry only adds or removes whole entries.

*/

package types

import (
	"fmt"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
)

// HundredPercent is the scale of every rate and percentage (120000 = 120%).
const HundredPercent uint64 = 100000

// MaxSymbolLength matches the fixed-width identifiers used by the deployed contracts.
const MaxSymbolLength = 32

// NativeAddress marks the native asset in descriptors and bank balances.
var NativeAddress = common.Address{}

// Symbol identifies a collateral asset, e.g. "ETH" or "WBTC".
type Symbol string

// ParseSymbol validates a raw identifier.
func ParseSymbol(raw string) (Symbol, error) {
	if raw == "" {
		return "", errorsmod.Wrap(ErrInvalidSymbol, "symbol is empty")
	}
	if len(raw) > MaxSymbolLength {
		return "", errorsmod.Wrapf(ErrInvalidSymbol, "symbol %q longer than %d bytes", raw, MaxSymbolLength)
	}
	if strings.TrimSpace(raw) != raw {
		return "", errorsmod.Wrapf(ErrInvalidSymbol, "symbol %q has surrounding whitespace", raw)
	}
	for _, r := range raw {
		if r < 0x21 || r > 0x7e {
			return "", errorsmod.Wrapf(ErrInvalidSymbol, "symbol %q has non printable characters", raw)
		}
	}
	return Symbol(raw), nil
}

func (s Symbol) String() string { return string(s) }

type CollateralAsset struct {
	Symbol       Symbol         `json:"symbol" toml:"symbol"`               // e.g., "WBTC"
	Address      common.Address `json:"address" toml:"address"`             // zero address for the native asset
	Decimals     uint8          `json:"decimals" toml:"decimals"`           // e.g., 8
	Feed         common.Address `json:"feed" toml:"feed"`                   // price feed quoting the asset in USD
	FeedDecimals uint8          `json:"feed_decimals" toml:"feed_decimals"` // e.g., 8
}

// IsNative reports whether the descriptor is the native asset.
func (a CollateralAsset) IsNative() bool {
	return a.Address == NativeAddress
}

// Validate checks the descriptor fields.
func (a CollateralAsset) Validate() error {
	if _, err := ParseSymbol(string(a.Symbol)); err != nil {
		return err
	}
	if a.Decimals > 36 {
		return errorsmod.Wrapf(ErrInvalidAsset, "%s decimals %d out of range", a.Symbol, a.Decimals)
	}
	if a.Feed == (common.Address{}) {
		return errorsmod.Wrapf(ErrInvalidAsset, "%s has no price feed", a.Symbol)
	}
	if a.FeedDecimals > 36 {
		return errorsmod.Wrapf(ErrInvalidAsset, "%s feed decimals %d out of range", a.Symbol, a.FeedDecimals)
	}
	return nil
}

func (a CollateralAsset) String() string {
	return fmt.Sprintf("%s(%s, %d dec)", a.Symbol, a.Address.Hex(), a.Decimals)
}
