/*

Price feed readings in the shape exposed by aggregator feeds.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

type RoundData struct {
	RoundID         uint64      `json:"round_id"`          // 0 is never a valid round
	Answer          sdkmath.Int `json:"answer"`            // raw price in feed decimals
	StartedAt       time.Time   `json:"started_at"`        // sequencer feeds use this for the grace period
	UpdatedAt       time.Time   `json:"updated_at"`        // zero time means the round never completed
	AnsweredInRound uint64      `json:"answered_in_round"` // round the answer was computed in
}

// PriceQuote is a validated reading together with the feed decimals it is expressed in.
type PriceQuote struct {
	Price     sdkmath.Int `json:"price"`
	RoundID   uint64      `json:"round_id"`
	UpdatedAt time.Time   `json:"updated_at"`
	Decimals  uint8       `json:"decimals"`
}
