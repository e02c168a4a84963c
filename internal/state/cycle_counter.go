/*

Persistent sweep counter. The keeper numbers its liquidation sweeps from this row so numbering survives restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CycleCounter implements the keeper's counter over the cycle_counter table.
type CycleCounter struct{}

// Current returns the number of the last sweep.
func (CycleCounter) Current(ctx context.Context) (int, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}

	var current int
	err := DB.QueryRowContext(ctx, `SELECT current_cycle FROM cycle_counter WHERE id = 1;`).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		storeLogger().Warn().Msg("No cycle counter row found, starting from 0")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}
	return current, nil
}

// Next increments the counter and returns the new sweep number.
func (CycleCounter) Next(ctx context.Context) (int, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}

	updateQuery := `
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_cycle;`

	var next int
	if err := DB.QueryRowContext(ctx, updateQuery).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}
	return next, nil
}

// Reset sets the counter to cycleNumber. Used by scripts/reset_db.go.
func (CycleCounter) Reset(ctx context.Context, cycleNumber int) error {
	if DB == nil {
		return ErrNotInitialized
	}
	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}

	result, err := DB.ExecContext(ctx, `
		UPDATE cycle_counter
		SET current_cycle = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`, cycleNumber)
	if err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", cycleNumber, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting cycle number")
	}

	storeLogger().Warn().Int("cycleNumber", cycleNumber).Msg("Reset cycle counter")
	return nil
}
