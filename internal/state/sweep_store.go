// ./internal/state/sweep_store.go
package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/the-standard/smart-vault/internal/types"
)

// MaxSweepPage bounds RecentSweeps.
const MaxSweepPage = 100

// SweepStore records the keeper's liquidation sweeps.
type SweepStore struct{}

// SaveSweep stores one sweep result.
func (SweepStore) SaveSweep(ctx context.Context, sweep types.SweepResult) error {
	if DB == nil {
		return ErrNotInitialized
	}

	query := `
		INSERT INTO sweep_cycles (cycle_id, cycle_number, started_at, duration_seconds, checked, liquidated, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`
	var sweepErr sql.NullString
	if sweep.Error != "" {
		sweepErr = sql.NullString{String: sweep.Error, Valid: true}
	}
	if _, err := DB.ExecContext(ctx, query,
		sweep.CycleID, sweep.CycleNumber, sweep.StartedAt, sweep.Duration, sweep.Checked,
		pq.Array(toInt64s(sweep.Liquidated)), sweepErr,
	); err != nil {
		return fmt.Errorf("failed to save sweep %s: %w", sweep.CycleID, err)
	}
	return nil
}

// RecentSweeps returns the latest sweeps, newest first. limit is clamped to (0, MaxSweepPage].
func (SweepStore) RecentSweeps(ctx context.Context, limit int) ([]types.SweepResult, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}
	limit = clampLimit(limit)

	rows, err := DB.QueryContext(ctx, `
		SELECT cycle_id, cycle_number, started_at, duration_seconds, checked, liquidated, error
		FROM sweep_cycles
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sweeps: %w", err)
	}
	defer rows.Close()

	sweeps := make([]types.SweepResult, 0, limit)
	for rows.Next() {
		var sweep types.SweepResult
		var liquidated []int64
		var sweepErr sql.NullString
		if err := rows.Scan(
			&sweep.CycleID, &sweep.CycleNumber, &sweep.StartedAt, &sweep.Duration, &sweep.Checked,
			pq.Array(&liquidated), &sweepErr,
		); err != nil {
			storeLogger().Error().Err(err).Msg("Failed to scan sweep row")
			continue
		}
		sweep.Liquidated = toUint64s(liquidated)
		sweep.Error = sweepErr.String
		sweeps = append(sweeps, sweep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sweep rows: %w", err)
	}
	return sweeps, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > MaxSweepPage {
		return MaxSweepPage
	}
	return limit
}

// Vault ids are stored as BIGINT; ids never reach the sign bit.
func toInt64s(ids []uint64) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func toUint64s(ids []int64) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}
