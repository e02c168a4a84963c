/*

The keeper runs the liquidation sweep on a fixed interval on behalf of the configured liquidator account.

Each sweep gets a uuid for log correlation and a sequential number from the counter. A sweep that finds nothing
to liquidate is recorded as empty rather than failed. Results are kept in memory and, when a recorder is
configured, persisted.

*/

package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/metrics"
	"github.com/the-standard/smart-vault/internal/types"
)

// HistorySize is the number of sweeps kept in memory.
const HistorySize = 100

// Directory is the part of the vault directory the keeper drives.
type Directory interface {
	LiquidateVaults(ctx context.Context, caller common.Address) ([]uint64, error)
	AllVaultIDs() []uint64
}

// Counter numbers sweeps. Implemented by state.CycleCounter.
type Counter interface {
	Next(ctx context.Context) (int, error)
}

// Recorder persists sweep results. Implemented by state.SweepStore.
type Recorder interface {
	SaveSweep(ctx context.Context, sweep types.SweepResult) error
}

type Config struct {
	Directory  Directory
	Liquidator common.Address
	Counter    Counter  // optional, sweeps are numbered in memory without it
	Recorder   Recorder // optional
	Now        func() time.Time
}

type Keeper struct {
	directory  Directory
	liquidator common.Address
	counter    Counter
	recorder   Recorder
	now        func() time.Time

	mu      sync.Mutex
	local   int
	history []types.SweepResult // oldest first

	logger zerolog.Logger
}

func New(cfg Config) (*Keeper, error) {
	if cfg.Directory == nil {
		return nil, fmt.Errorf("keeper needs a vault directory")
	}
	if cfg.Liquidator == (common.Address{}) {
		return nil, fmt.Errorf("keeper needs a liquidator account")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Keeper{
		directory:  cfg.Directory,
		liquidator: cfg.Liquidator,
		counter:    cfg.Counter,
		recorder:   cfg.Recorder,
		now:        now,
		logger:     logger.GetForComponent("keeper"),
	}, nil
}

// RunLoop sweeps immediately and then every interval until ctx is cancelled.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().Dur("interval", interval).Msg("Starting liquidation keeper")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper stopped due to context cancellation")
			return
		case <-ticker.C:
			k.RunCycle(ctx)
		}
	}
}

// RunCycle runs one liquidation sweep and records its outcome.
func (k *Keeper) RunCycle(ctx context.Context) types.SweepResult {
	started := k.now()
	result := types.SweepResult{
		CycleID:     uuid.New().String(),
		CycleNumber: k.nextNumber(ctx),
		StartedAt:   started,
		Checked:     len(k.directory.AllVaultIDs()),
		Liquidated:  []uint64{},
	}
	cycleLogger := k.logger.With().Str("cycle_id", result.CycleID).Int("cycle", result.CycleNumber).Logger()
	cycleLogger.Debug().Int("vaults", result.Checked).Msg("Starting liquidation sweep")

	liquidated, err := k.directory.LiquidateVaults(ctx, k.liquidator)
	elapsed := k.now().Sub(started)
	result.Duration = elapsed.Seconds()

	outcome := "liquidated"
	switch {
	case errors.Is(err, types.ErrNoLiquidatableVaults):
		outcome = "empty"
		cycleLogger.Debug().Msg("No undercollateralised vaults")
	case err != nil:
		outcome = "failed"
		result.Error = err.Error()
		cycleLogger.Error().Err(err).Str("kind", string(types.KindOf(err))).Msg("Liquidation sweep failed")
	default:
		result.Liquidated = liquidated
		cycleLogger.Warn().Interface("vaultIDs", liquidated).Msg("Vaults liquidated")
	}
	metrics.Sweep().ObserveSweep(outcome, elapsed)

	k.remember(result)
	if k.recorder != nil {
		if err := k.recorder.SaveSweep(ctx, result); err != nil {
			cycleLogger.Error().Err(err).Msg("Failed to persist sweep result")
		}
	}
	return result
}

// RecentSweeps returns up to limit sweeps from memory, newest first.
func (k *Keeper) RecentSweeps(_ context.Context, limit int) ([]types.SweepResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if limit <= 0 || limit > len(k.history) {
		limit = len(k.history)
	}
	out := make([]types.SweepResult, 0, limit)
	for i := len(k.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, k.history[i])
	}
	return out, nil
}

func (k *Keeper) nextNumber(ctx context.Context) int {
	if k.counter != nil {
		n, err := k.counter.Next(ctx)
		if err == nil {
			return n
		}
		k.logger.Error().Err(err).Msg("Failed to advance sweep counter, numbering locally")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.local++
	return k.local
}

func (k *Keeper) remember(result types.SweepResult) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.history = append(k.history, result)
	if len(k.history) > HistorySize {
		k.history = k.history[len(k.history)-HistorySize:]
	}
}
