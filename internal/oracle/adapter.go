package oracle

import (
	"context"
	"math/big"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/utils"
)

// ValueDecimals is the fixed point precision of every value returned by the adapter.
const ValueDecimals uint8 = 18

const (
	DefaultTWAPWindow    = 4 * time.Hour
	DefaultMaxTWAPRounds = 96
)

// AssetResolver looks up registered collateral by token address.
type AssetResolver interface {
	TokenByAddress(addr common.Address) (types.CollateralAsset, error)
}

type Config struct {
	Feeds          FeedReader
	Assets         AssetResolver
	DefaultTimeout time.Duration
	Timeouts       map[common.Address]time.Duration
	SequencerFeed  common.Address // zero disables the uptime check
	GracePeriod    time.Duration
	PegFeed        common.Address // zero keeps values in USD
	Stablecoins    map[common.Address]uint8
	WrappedNative  common.Address // priced as the native asset
	TWAPWindow     time.Duration
	MaxTWAPRounds  int
	// AverageValuation prices TokenValue and ValueToToken with the time weighted average.
	AverageValuation bool
	Clock            func() time.Time
}

// Adapter turns validated feed readings into 18 decimal values.
type Adapter struct {
	feeds          FeedReader
	assets         AssetResolver
	defaultTimeout time.Duration
	timeouts       map[common.Address]time.Duration
	sequencerFeed  common.Address
	gracePeriod    time.Duration
	pegFeed        common.Address
	stablecoins    map[common.Address]uint8
	wrappedNative  common.Address
	twapWindow     time.Duration
	maxTWAPRounds  int
	averageValue   bool
	clock          func() time.Time
	logger         zerolog.Logger
}

// NewAdapter validates cfg and fills in defaults.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Feeds == nil {
		return nil, errorsmod.Wrap(types.ErrInvalidParameter, "oracle needs a feed reader")
	}
	if cfg.Assets == nil {
		return nil, errorsmod.Wrap(types.ErrInvalidParameter, "oracle needs an asset resolver")
	}
	if cfg.DefaultTimeout < 0 || cfg.GracePeriod < 0 || cfg.TWAPWindow < 0 || cfg.MaxTWAPRounds < 0 {
		return nil, errorsmod.Wrap(types.ErrInvalidParameter, "negative oracle duration or round cap")
	}

	a := &Adapter{
		feeds:          cfg.Feeds,
		assets:         cfg.Assets,
		defaultTimeout: cfg.DefaultTimeout,
		timeouts:       make(map[common.Address]time.Duration, len(cfg.Timeouts)),
		sequencerFeed:  cfg.SequencerFeed,
		gracePeriod:    cfg.GracePeriod,
		pegFeed:        cfg.PegFeed,
		stablecoins:    make(map[common.Address]uint8, len(cfg.Stablecoins)),
		wrappedNative:  cfg.WrappedNative,
		twapWindow:     cfg.TWAPWindow,
		maxTWAPRounds:  cfg.MaxTWAPRounds,
		averageValue:   cfg.AverageValuation,
		clock:          cfg.Clock,
		logger:         logger.GetForComponent("price_oracle"),
	}
	if a.defaultTimeout == 0 {
		a.defaultTimeout = DefaultTimeout
	}
	if a.twapWindow == 0 {
		a.twapWindow = DefaultTWAPWindow
	}
	if a.maxTWAPRounds == 0 {
		a.maxTWAPRounds = DefaultMaxTWAPRounds
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	for feed, timeout := range cfg.Timeouts {
		if timeout <= 0 {
			return nil, errorsmod.Wrapf(types.ErrInvalidParameter, "timeout for feed %s must be positive", feed.Hex())
		}
		a.timeouts[feed] = timeout
	}
	for token, decimals := range cfg.Stablecoins {
		if token == types.NativeAddress {
			return nil, errorsmod.Wrap(types.ErrInvalidParameter, "native asset cannot be a stablecoin")
		}
		if decimals > 36 {
			return nil, errorsmod.Wrapf(types.ErrInvalidParameter, "stablecoin %s has %d decimals", token.Hex(), decimals)
		}
		a.stablecoins[token] = decimals
	}
	return a, nil
}

// IsStable reports whether token converts through the stablecoin fast path.
func (a *Adapter) IsStable(token common.Address) bool {
	_, ok := a.stablecoins[token]
	return ok
}

// Pegged reports whether values are expressed in a peg currency rather than USD.
func (a *Adapter) Pegged() bool {
	return a.pegFeed != (common.Address{})
}

// conversion is the exact value of one raw token unit: value = amount * num / den.
type conversion struct {
	num *big.Int
	den *big.Int
}

func (c conversion) forward(amount sdkmath.Int) sdkmath.Int {
	out := new(big.Int).Mul(amount.BigInt(), c.num)
	return sdkmath.NewIntFromBigInt(out.Quo(out, c.den))
}

func (c conversion) inverse(value sdkmath.Int) sdkmath.Int {
	out := new(big.Int).Mul(value.BigInt(), c.den)
	return sdkmath.NewIntFromBigInt(out.Quo(out, c.num))
}

// through divides the conversion by a second price, e.g. EUR/USD.
func (c conversion) through(price sdkmath.Int, decimals uint8) conversion {
	return conversion{
		num: new(big.Int).Mul(c.num, utils.Pow10(decimals).BigInt()),
		den: new(big.Int).Mul(c.den, price.BigInt()),
	}
}

func priced(price sdkmath.Int, feedDecimals, tokenDecimals uint8) conversion {
	return conversion{
		num: new(big.Int).Mul(price.BigInt(), utils.Pow10(ValueDecimals).BigInt()),
		den: new(big.Int).Mul(utils.Pow10(tokenDecimals).BigInt(), utils.Pow10(feedDecimals).BigInt()),
	}
}

func stable(tokenDecimals uint8) conversion {
	return conversion{
		num: utils.Pow10(ValueDecimals).BigInt(),
		den: utils.Pow10(tokenDecimals).BigInt(),
	}
}

func (a *Adapter) usdConversion(ctx context.Context, asset types.CollateralAsset) (conversion, error) {
	if err := a.CheckSequencer(ctx); err != nil {
		return conversion{}, err
	}
	if decimals, ok := a.stablecoins[asset.Address]; ok && !asset.IsNative() {
		return stable(decimals), nil
	}
	if asset.Feed == (common.Address{}) {
		return conversion{}, errorsmod.Wrapf(types.ErrUnpricedAsset, "%s has no feed", asset.Symbol)
	}
	quote, err := a.LatestQuote(ctx, asset.Feed)
	if err != nil {
		return conversion{}, err
	}
	return priced(quote.Price, quote.Decimals, asset.Decimals), nil
}

func (a *Adapter) valueConversion(ctx context.Context, asset types.CollateralAsset) (conversion, error) {
	if a.averageValue {
		return a.averageConversion(ctx, asset, true)
	}
	conv, err := a.usdConversion(ctx, asset)
	if err != nil {
		return conversion{}, err
	}
	if !a.Pegged() {
		return conv, nil
	}
	peg, err := a.LatestQuote(ctx, a.pegFeed)
	if err != nil {
		return conversion{}, err
	}
	return conv.through(peg.Price, peg.Decimals), nil
}

// TokenToUSD values a raw token amount in 18 decimal USD.
func (a *Adapter) TokenToUSD(ctx context.Context, asset types.CollateralAsset, amount sdkmath.Int) (sdkmath.Int, error) {
	conv, err := a.usdConversion(ctx, asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return conv.forward(amount), nil
}

// USDToToken converts 18 decimal USD into a raw token amount.
func (a *Adapter) USDToToken(ctx context.Context, asset types.CollateralAsset, usd sdkmath.Int) (sdkmath.Int, error) {
	conv, err := a.usdConversion(ctx, asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return conv.inverse(usd), nil
}

// TokenValue values a raw token amount in the vault currency: USD, or the peg currency when a peg feed is set.
// With AverageValuation it uses the time weighted average instead of the latest round.
func (a *Adapter) TokenValue(ctx context.Context, asset types.CollateralAsset, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := a.CheckSequencer(ctx); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	conv, err := a.valueConversion(ctx, asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return conv.forward(amount), nil
}

// ValueToToken is the inverse of TokenValue.
func (a *Adapter) ValueToToken(ctx context.Context, asset types.CollateralAsset, value sdkmath.Int) (sdkmath.Int, error) {
	if err := a.CheckSequencer(ctx); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if value.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	conv, err := a.valueConversion(ctx, asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return conv.inverse(value), nil
}

// resolve maps a token address to something priceable. Wrapped native is priced as the native asset.
func (a *Adapter) resolve(token common.Address) (types.CollateralAsset, error) {
	if decimals, ok := a.stablecoins[token]; ok {
		return types.CollateralAsset{Address: token, Decimals: decimals}, nil
	}
	lookup := token
	if token == a.wrappedNative && token != (common.Address{}) {
		lookup = types.NativeAddress
	}
	asset, err := a.assets.TokenByAddress(lookup)
	if err != nil {
		return types.CollateralAsset{}, errorsmod.Wrapf(types.ErrUnpricedAsset, "token %s: %v", token.Hex(), err)
	}
	return asset, nil
}

// AddressToUSD values a raw amount of any priceable token address in USD.
func (a *Adapter) AddressToUSD(ctx context.Context, token common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	asset, err := a.resolve(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return a.TokenToUSD(ctx, asset, amount)
}

func (a *Adapter) USDToAddress(ctx context.Context, token common.Address, usd sdkmath.Int) (sdkmath.Int, error) {
	asset, err := a.resolve(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return a.USDToToken(ctx, asset, usd)
}

// AddressValue values a raw amount of any priceable token address in the vault currency.
func (a *Adapter) AddressValue(ctx context.Context, token common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	asset, err := a.resolve(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return a.TokenValue(ctx, asset, amount)
}
