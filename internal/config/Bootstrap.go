/*

The bootstrap file describes the deployment the engine runs against: protocol accounts, accepted collateral,
price feeds, liquidity pools, swap rates and yield routing. The service builds its in-memory world from it
at start-up; persisted vault records are then replayed on top.

Amounts are decimal strings in the raw units of the token or feed ("1600_00000000" for $1600 on an 8 decimal
feed). Durations use Go syntax ("24h", "90s").

*/

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
)

// Amount is a non-negative integer read from a TOML string.
type Amount struct {
	sdkmath.Int
}

func (a *Amount) UnmarshalText(text []byte) error {
	raw := strings.ReplaceAll(strings.TrimSpace(string(text)), "_", "")
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok || v.IsNegative() {
		return fmt.Errorf("invalid amount %q", string(text))
	}
	a.Int = v
	return nil
}

// Duration is a time.Duration read from a TOML string.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

type Accounts struct {
	ProtocolOwner common.Address `toml:"protocol_owner"`
	Treasury      common.Address `toml:"treasury"`
	Liquidator    common.Address `toml:"liquidator"`
	Directory     common.Address `toml:"directory"`
	YieldManager  common.Address `toml:"yield_manager"`
	// Core contracts; zero values fall back to the default labelled addresses.
	WETH   common.Address `toml:"weth"`
	Debt   common.Address `toml:"debt"`
	Router common.Address `toml:"router"`
}

type StableToken struct {
	Address  common.Address `toml:"address"`
	Decimals uint8          `toml:"decimals"`
}

type OracleSettings struct {
	StaleTimeout  Duration       `toml:"stale_timeout"`
	SequencerFeed common.Address `toml:"sequencer_feed"`
	GracePeriod   Duration       `toml:"grace_period"`
	PegFeed       common.Address `toml:"peg_feed"`
	TWAPWindow    Duration       `toml:"twap_window"`
	// AverageValuation values collateral for status and liquidation with the TWAP instead of the latest round.
	AverageValuation bool          `toml:"average_valuation"`
	Stablecoins      []StableToken `toml:"stablecoins"`
}

type YieldSettings struct {
	USDC             common.Address `toml:"usdc"`
	StableHypervisor common.Address `toml:"stable_hypervisor"`
	StablePoolFee    uint32         `toml:"stable_pool_fee"`
	FeeRate          uint64         `toml:"fee_rate"`
	Slippage         uint64         `toml:"slippage"`
	MaxIterations    int            `toml:"max_iterations"`
}

// TokenSpec registers a plain token with the bank.
type TokenSpec struct {
	Address  common.Address `toml:"address"`
	Decimals uint8          `toml:"decimals"`
}

type FeedSpec struct {
	Address  common.Address `toml:"address"`
	Decimals uint8          `toml:"decimals"`
	Answer   Amount         `toml:"answer"`
}

// PoolSpec deploys a two-asset pool. Ratio0 is the amount of token1 accepted per 1e18 units of token0.
type PoolSpec struct {
	Address common.Address `toml:"address"`
	Token0  common.Address `toml:"token0"`
	Token1  common.Address `toml:"token1"`
	Ratio0  Amount         `toml:"ratio0"`
	Ratio1  Amount         `toml:"ratio1"`
}

// RateSpec is a swap rate: tokenOut received per 1e18 units of tokenIn.
type RateSpec struct {
	In   common.Address `toml:"in"`
	Out  common.Address `toml:"out"`
	Rate Amount         `toml:"rate"`
}

// Funding mints Amount of Token to Holder at start-up, e.g. router liquidity.
type Funding struct {
	Token  common.Address `toml:"token"`
	Holder common.Address `toml:"holder"`
	Amount Amount         `toml:"amount"`
}

type Bootstrap struct {
	Start          time.Time               `toml:"start"` // zero starts the world clock at the wall clock
	Accounts       Accounts                `toml:"accounts"`
	Parameters     ParametersView          `toml:"parameters"` // zero fields keep the defaults
	Oracle         OracleSettings          `toml:"oracle"`
	Yield          YieldSettings           `toml:"yield"`
	Native         types.CollateralAsset   `toml:"native"`
	Collateral     []types.CollateralAsset `toml:"collateral"`
	Tokens         []TokenSpec             `toml:"tokens"`
	Feeds          []FeedSpec              `toml:"feeds"`
	Pools          []PoolSpec              `toml:"pools"`
	Rates          []RateSpec              `toml:"rates"`
	Funding        []Funding               `toml:"funding"`
	HypervisorData []types.HypervisorData  `toml:"hypervisor_data"`
}

// LoadBootstrap reads and validates a bootstrap file.
func LoadBootstrap(path string) (Bootstrap, error) {
	var b Bootstrap
	meta, err := toml.DecodeFile(path, &b)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("failed to decode bootstrap file %s: %w", path, err)
	}
	return finishBootstrap(b, meta)
}

// ParseBootstrap decodes a bootstrap document held in memory.
func ParseBootstrap(doc string) (Bootstrap, error) {
	var b Bootstrap
	meta, err := toml.Decode(doc, &b)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("failed to decode bootstrap: %w", err)
	}
	return finishBootstrap(b, meta)
}

func finishBootstrap(b Bootstrap, meta toml.MetaData) (Bootstrap, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Bootstrap{}, fmt.Errorf("unknown bootstrap keys: %s", strings.Join(keys, ", "))
	}
	if err := b.Validate(); err != nil {
		return Bootstrap{}, err
	}
	return b, nil
}

// Validate checks what the world builder cannot recover from.
func (b Bootstrap) Validate() error {
	var errs []error
	required := map[string]common.Address{
		"accounts.protocol_owner": b.Accounts.ProtocolOwner,
		"accounts.treasury":       b.Accounts.Treasury,
		"accounts.liquidator":     b.Accounts.Liquidator,
		"accounts.directory":      b.Accounts.Directory,
		"accounts.yield_manager":  b.Accounts.YieldManager,
		"yield.usdc":              b.Yield.USDC,
		"yield.stable_hypervisor": b.Yield.StableHypervisor,
		"native.feed":             b.Native.Feed,
	}
	for name, addr := range required {
		if addr == (common.Address{}) {
			errs = append(errs, fmt.Errorf("%s must be set", name))
		}
	}
	if !b.Native.IsNative() {
		errs = append(errs, errors.New("native.address must be empty"))
	}
	if err := b.Native.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("native: %w", err))
	}
	for _, asset := range b.Collateral {
		if err := asset.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("collateral %s: %w", asset.Symbol, err))
		}
		if asset.IsNative() {
			errs = append(errs, fmt.Errorf("collateral %s: only [native] may use the zero address", asset.Symbol))
		}
	}
	for _, data := range b.HypervisorData {
		if err := data.ToStable.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("hypervisor data %s: %w", data.Asset.Hex(), err))
		}
		if err := data.FromStable.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("hypervisor data %s: %w", data.Asset.Hex(), err))
		}
	}
	for _, rate := range b.Rates {
		if rate.Rate.IsNil() || !rate.Rate.IsPositive() {
			errs = append(errs, fmt.Errorf("rate %s -> %s must be positive", rate.In.Hex(), rate.Out.Hex()))
		}
	}
	for _, fund := range b.Funding {
		if fund.Amount.IsNil() {
			errs = append(errs, fmt.Errorf("funding of %s has no amount", fund.Holder.Hex()))
		}
	}
	if _, err := NewProtocolParameters(b.ParametersView()); err != nil {
		errs = append(errs, fmt.Errorf("parameters: %w", err))
	}
	return errors.Join(errs...)
}

// ParametersView merges the [parameters] overrides onto the defaults for the configured accounts.
func (b Bootstrap) ParametersView() ParametersView {
	view := DefaultParametersView(b.Accounts.ProtocolOwner, b.Accounts.Treasury, b.Accounts.Liquidator)
	o := b.Parameters
	if o.CollateralRate != 0 {
		view.CollateralRate = o.CollateralRate
	}
	if o.MintFeeRate != 0 {
		view.MintFeeRate = o.MintFeeRate
	}
	if o.BurnFeeRate != 0 {
		view.BurnFeeRate = o.BurnFeeRate
	}
	if o.SwapFeeRate != 0 {
		view.SwapFeeRate = o.SwapFeeRate
	}
	if o.VaultLimit != 0 {
		view.VaultLimit = o.VaultLimit
	}
	if o.DefaultPoolFee != 0 {
		view.DefaultPoolFee = o.DefaultPoolFee
	}
	if o.VaultVersion != 0 {
		view.VaultVersion = o.VaultVersion
	}
	if o.VaultType != "" {
		view.VaultType = o.VaultType
	}
	return view
}

// StablecoinDecimals maps each configured stable token to its decimals.
func (b Bootstrap) StablecoinDecimals() map[common.Address]uint8 {
	out := make(map[common.Address]uint8, len(b.Oracle.Stablecoins))
	for _, s := range b.Oracle.Stablecoins {
		out[s.Address] = s.Decimals
	}
	return out
}
