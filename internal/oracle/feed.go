/*

Feed access and reading validation. Every price used by the engine passes ValidateQuote first; an invalid reading
fails the enclosing operation and is never approximated.

*/

package oracle

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/metrics"
	"github.com/the-standard/smart-vault/internal/types"
)

// DefaultTimeout applies to feeds without an explicit timeout.
const DefaultTimeout = 24 * time.Hour

// Sequencer uptime feed answers.
const (
	SequencerUp   int64 = 0
	SequencerDown int64 = 1
)

// FeedReader reads aggregator feeds by address.
type FeedReader interface {
	Decimals(ctx context.Context, feed common.Address) (uint8, error)
	LatestRoundData(ctx context.Context, feed common.Address) (types.RoundData, error)
	GetRoundData(ctx context.Context, feed common.Address, roundID uint64) (types.RoundData, error)
}

// ValidateQuote rejects readings that must not be used for valuation. A reading aged exactly the timeout is accepted.
func (a *Adapter) ValidateQuote(feed common.Address, round types.RoundData) error {
	now := a.clock()
	switch {
	case round.RoundID == 0:
		return a.reject("round", errorsmod.Wrapf(types.ErrInvalidRoundID, "feed %s", feed.Hex()))
	case round.Answer.IsNil() || !round.Answer.IsPositive():
		return a.reject("price", errorsmod.Wrapf(types.ErrInvalidPrice, "feed %s answered %s", feed.Hex(), round.Answer))
	case round.UpdatedAt.IsZero() || round.UpdatedAt.Unix() == 0:
		return a.reject("update", errorsmod.Wrapf(types.ErrInvalidUpdate, "feed %s round %d never updated", feed.Hex(), round.RoundID))
	case round.UpdatedAt.After(now):
		return a.reject("update", errorsmod.Wrapf(types.ErrInvalidUpdate, "feed %s round %d updated in the future", feed.Hex(), round.RoundID))
	}

	timeout := a.timeoutFor(feed)
	if age := now.Sub(round.UpdatedAt); age > timeout {
		return a.reject("stale", errorsmod.Wrapf(types.ErrStalePrice, "feed %s is %s old, timeout %s", feed.Hex(), age, timeout))
	}
	return nil
}

// CheckSequencer fails while the sequencer is down and during the grace period after it comes back.
func (a *Adapter) CheckSequencer(ctx context.Context) error {
	if a.sequencerFeed == (common.Address{}) {
		return nil
	}
	round, err := a.feeds.LatestRoundData(ctx, a.sequencerFeed)
	if err != nil {
		return a.reject("sequencer", errorsmod.Wrapf(types.ErrSequencerDown, "reading uptime feed: %v", err))
	}
	if round.Answer.IsNil() || !round.Answer.IsInt64() || round.Answer.Int64() != SequencerUp {
		return a.reject("sequencer", errorsmod.Wrap(types.ErrSequencerDown, "sequencer reported down"))
	}
	if round.StartedAt.IsZero() {
		return a.reject("sequencer", errorsmod.Wrap(types.ErrSequencerDown, "uptime round not started"))
	}
	if since := a.clock().Sub(round.StartedAt); since <= a.gracePeriod {
		return a.reject("sequencer", errorsmod.Wrapf(types.ErrSequencerDown, "grace period not over, up for %s", since))
	}
	return nil
}

// LatestQuote reads and validates the latest round of a feed.
func (a *Adapter) LatestQuote(ctx context.Context, feedAddr common.Address) (types.PriceQuote, error) {
	if err := a.CheckSequencer(ctx); err != nil {
		return types.PriceQuote{}, err
	}
	round, err := a.feeds.LatestRoundData(ctx, feedAddr)
	if err != nil {
		return types.PriceQuote{}, errorsmod.Wrapf(types.ErrFeedNotFound, "latest round of %s: %v", feedAddr.Hex(), err)
	}
	if err := a.ValidateQuote(feedAddr, round); err != nil {
		return types.PriceQuote{}, err
	}
	decimals, err := a.feeds.Decimals(ctx, feedAddr)
	if err != nil {
		return types.PriceQuote{}, errorsmod.Wrapf(types.ErrFeedNotFound, "decimals of %s: %v", feedAddr.Hex(), err)
	}
	return types.PriceQuote{
		Price:     round.Answer,
		RoundID:   round.RoundID,
		UpdatedAt: round.UpdatedAt,
		Decimals:  decimals,
	}, nil
}

func (a *Adapter) timeoutFor(feed common.Address) time.Duration {
	if timeout, ok := a.timeouts[feed]; ok {
		return timeout
	}
	return a.defaultTimeout
}

func (a *Adapter) reject(reason string, err error) error {
	metrics.Oracle().RecordRejection(reason)
	a.logger.Warn().Err(err).Str("reason", reason).Msg("Rejected price reading")
	return err
}
