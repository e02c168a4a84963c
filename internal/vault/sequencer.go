package vault

import (
	"context"
	"sync"
)

type sequencerKey struct{}

// Sequencer gives every mutating operation exclusive access to the engine. A context returned by Acquire carries
// the hold, so nested operations (a sweep liquidating vaults) run without re-locking.
type Sequencer struct {
	mu sync.Mutex
}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Acquire blocks until the caller holds the sequencer. The returned release func must be called exactly once.
func (s *Sequencer) Acquire(ctx context.Context) (context.Context, func()) {
	if held, ok := ctx.Value(sequencerKey{}).(*Sequencer); ok && held == s {
		return ctx, func() {}
	}
	s.mu.Lock()
	return context.WithValue(ctx, sequencerKey{}, s), s.mu.Unlock
}
