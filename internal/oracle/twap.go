package oracle

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
)

// AveragePrice averages the latest validated round with the rounds before it, walking back until the first round
// updated at or before now - window. That boundary round is part of the average. Unreadable or invalid rounds on
// the way are skipped.
func (a *Adapter) AveragePrice(ctx context.Context, feedAddr common.Address) (types.PriceQuote, error) {
	latest, err := a.LatestQuote(ctx, feedAddr)
	if err != nil {
		return types.PriceQuote{}, err
	}

	cutoff := a.clock().Add(-a.twapWindow)
	sum := latest.Price
	count := int64(1)
	roundID := latest.RoundID
	updatedAt := latest.UpdatedAt

	for steps := 0; updatedAt.After(cutoff) && roundID > 1 && steps < a.maxTWAPRounds; steps++ {
		roundID--
		round, err := a.feeds.GetRoundData(ctx, feedAddr, roundID)
		if err != nil {
			a.logger.Debug().Err(err).Uint64("round_id", roundID).Str("feed", feedAddr.Hex()).Msg("Skipping unreadable round")
			continue
		}
		if !a.usableHistoricRound(round) {
			continue
		}
		updatedAt = round.UpdatedAt
		sum = sum.Add(round.Answer)
		count++
	}

	return types.PriceQuote{
		Price:     sum.QuoRaw(count),
		RoundID:   latest.RoundID,
		UpdatedAt: latest.UpdatedAt,
		Decimals:  latest.Decimals,
	}, nil
}

// usableHistoricRound applies the reading checks without the staleness timeout.
func (a *Adapter) usableHistoricRound(round types.RoundData) bool {
	return round.RoundID != 0 &&
		!round.Answer.IsNil() && round.Answer.IsPositive() &&
		!round.UpdatedAt.IsZero() && round.UpdatedAt.Unix() != 0 &&
		!round.UpdatedAt.After(a.clock())
}

func (a *Adapter) averageConversion(ctx context.Context, asset types.CollateralAsset, pegged bool) (conversion, error) {
	if err := a.CheckSequencer(ctx); err != nil {
		return conversion{}, err
	}
	var conv conversion
	if decimals, ok := a.stablecoins[asset.Address]; ok && !asset.IsNative() {
		conv = stable(decimals)
	} else {
		if asset.Feed == (common.Address{}) {
			return conversion{}, errorsmod.Wrapf(types.ErrUnpricedAsset, "%s has no feed", asset.Symbol)
		}
		quote, err := a.AveragePrice(ctx, asset.Feed)
		if err != nil {
			return conversion{}, err
		}
		conv = priced(quote.Price, quote.Decimals, asset.Decimals)
	}
	if !pegged || !a.Pegged() {
		return conv, nil
	}
	peg, err := a.AveragePrice(ctx, a.pegFeed)
	if err != nil {
		return conversion{}, err
	}
	return conv.through(peg.Price, peg.Decimals), nil
}

// TokenToUSDAverage is TokenToUSD priced with the time weighted average.
func (a *Adapter) TokenToUSDAverage(ctx context.Context, asset types.CollateralAsset, amount sdkmath.Int) (sdkmath.Int, error) {
	conv, err := a.averageConversion(ctx, asset, false)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return conv.forward(amount), nil
}

// TokenValueAverage is TokenValue priced with the time weighted average of both the asset and the peg feed.
func (a *Adapter) TokenValueAverage(ctx context.Context, asset types.CollateralAsset, amount sdkmath.Int) (sdkmath.Int, error) {
	conv, err := a.averageConversion(ctx, asset, true)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return conv.forward(amount), nil
}
