package lottery

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hzblue/lottery-backend/internal/store"
)

// PrizeCache serves the enabled-prize set to the draw hot path so selection
// never waits on the database. Readers get the last good snapshot; a failed
// refresh keeps it in place (stale beats erroring).
type PrizeCache struct {
	store *store.Store

	mu       sync.RWMutex
	snapshot []PrizeSnapshot
}

func NewPrizeCache(st *store.Store) *PrizeCache {
	return &PrizeCache{store: st}
}

// Snapshot never blocks on a refresh. Empty until the first successful one.
func (c *PrizeCache) Snapshot() []PrizeSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PrizeSnapshot, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}

func (c *PrizeCache) RefreshOnce(ctx context.Context) error {
	prizes, err := c.store.EnabledPrizes(ctx)
	if err != nil {
		return err
	}
	next := make([]PrizeSnapshot, 0, len(prizes))
	for _, p := range prizes {
		next = append(next, PrizeSnapshot{ID: p.ID, Name: p.Name, Weight: p.Weight})
	}
	c.mu.Lock()
	c.snapshot = next
	c.mu.Unlock()
	return nil
}

// Run refreshes on interval until ctx is cancelled. Callers start it with go.
func (c *PrizeCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.RefreshOnce(ctx); err != nil {
				logrus.WithError(err).Warn("prize cache refresh failed")
			}
		}
	}
}
