package simulations

import (
	"context"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
)

// Feeds holds aggregator feeds by address. Round ids start at 1 and follow insertion order.
type Feeds struct {
	mu       sync.RWMutex
	decimals map[common.Address]uint8
	rounds   map[common.Address][]types.RoundData
	failing  map[common.Address]map[uint64]bool
}

func NewFeeds() *Feeds {
	return &Feeds{
		decimals: make(map[common.Address]uint8),
		rounds:   make(map[common.Address][]types.RoundData),
		failing:  make(map[common.Address]map[uint64]bool),
	}
}

// Deploy registers a feed with no rounds.
func (f *Feeds) Deploy(feed common.Address, decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decimals[feed] = decimals
	if _, ok := f.rounds[feed]; !ok {
		f.rounds[feed] = nil
	}
}

// SetPrice appends a round answered at updatedAt and returns its id.
func (f *Feeds) SetPrice(feed common.Address, answer sdkmath.Int, updatedAt time.Time) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uint64(len(f.rounds[feed]) + 1)
	f.rounds[feed] = append(f.rounds[feed], types.RoundData{
		RoundID:         id,
		Answer:          answer,
		StartedAt:       updatedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: id,
	})
	return id
}

// SetRound appends a raw round as the latest one, keeping whatever id it carries.
func (f *Feeds) SetRound(feed common.Address, round types.RoundData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds[feed] = append(f.rounds[feed], round)
}

// SetSequencer appends an uptime round: answer 0 when up, 1 when down.
func (f *Feeds) SetSequencer(feed common.Address, up bool, startedAt time.Time) {
	answer := sdkmath.OneInt()
	if up {
		answer = sdkmath.ZeroInt()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uint64(len(f.rounds[feed]) + 1)
	f.rounds[feed] = append(f.rounds[feed], types.RoundData{
		RoundID:         id,
		Answer:          answer,
		StartedAt:       startedAt,
		UpdatedAt:       startedAt,
		AnsweredInRound: id,
	})
}

// FailRound makes GetRoundData error for one historic round.
func (f *Feeds) FailRound(feed common.Address, roundID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[feed] == nil {
		f.failing[feed] = make(map[uint64]bool)
	}
	f.failing[feed][roundID] = true
}

func (f *Feeds) Decimals(_ context.Context, feed common.Address) (uint8, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	decimals, ok := f.decimals[feed]
	if !ok {
		return 0, errorsmod.Wrapf(types.ErrFeedNotFound, "%s", feed.Hex())
	}
	return decimals, nil
}

func (f *Feeds) LatestRoundData(_ context.Context, feed common.Address) (types.RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rounds, ok := f.rounds[feed]
	if !ok {
		return types.RoundData{}, errorsmod.Wrapf(types.ErrFeedNotFound, "%s", feed.Hex())
	}
	if len(rounds) == 0 {
		return types.RoundData{Answer: sdkmath.ZeroInt()}, nil
	}
	return rounds[len(rounds)-1], nil
}

func (f *Feeds) GetRoundData(_ context.Context, feed common.Address, roundID uint64) (types.RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rounds, ok := f.rounds[feed]
	if !ok {
		return types.RoundData{}, errorsmod.Wrapf(types.ErrFeedNotFound, "%s", feed.Hex())
	}
	if f.failing[feed][roundID] {
		return types.RoundData{}, errorsmod.Wrapf(types.ErrFeedNotFound, "round %d of %s unavailable", roundID, feed.Hex())
	}
	for i := len(rounds) - 1; i >= 0; i-- {
		if rounds[i].RoundID == roundID {
			return rounds[i], nil
		}
	}
	return types.RoundData{}, errorsmod.Wrapf(types.ErrInvalidRoundID, "round %d of %s", roundID, feed.Hex())
}
