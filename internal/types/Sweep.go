package types

import "time"

// SweepResult summarises one liquidation sweep run by the keeper.
type SweepResult struct {
	CycleID     string    `json:"cycle_id"`
	CycleNumber int       `json:"cycle_number"`
	StartedAt   time.Time `json:"started_at"`
	Duration    float64   `json:"duration_seconds"`
	Checked     int       `json:"checked"`
	Liquidated  []uint64  `json:"liquidated"`
	Error       string    `json:"error,omitempty"`
}
