package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger holds the counters behind one mutex, which gives the same
// indivisibility the redis scripts provide server-side. Used by tests and by
// single-process deployments without redis configured as a fast path.
type MemoryLedger struct {
	mu        sync.Mutex
	cooldowns map[uuid.UUID]time.Time
	stock     map[uuid.UUID]int64
	sold      map[uuid.UUID]int64
	now       func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		cooldowns: make(map[uuid.UUID]time.Time),
		stock:     make(map[uuid.UUID]int64),
		sold:      make(map[uuid.UUID]int64),
		now:       time.Now,
	}
}

// SetClock replaces the time source for cooldown expiry in tests.
func (l *MemoryLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// onCooldown reports and lazily expires the user's flag. Caller holds mu.
func (l *MemoryLedger) onCooldown(userID uuid.UUID) bool {
	until, ok := l.cooldowns[userID]
	if !ok {
		return false
	}
	if l.now().After(until) {
		delete(l.cooldowns, userID)
		return false
	}
	return true
}

func (l *MemoryLedger) CooldownOnly(_ context.Context, userID uuid.UUID, ttl time.Duration) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onCooldown(userID) {
		return Denied, nil
	}
	l.cooldowns[userID] = l.now().Add(ttl)
	return Committed, nil
}

func (l *MemoryLedger) CooldownAndDecrement(_ context.Context, userID, prizeID uuid.UUID, ttl time.Duration) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onCooldown(userID) {
		return Denied, nil
	}
	if l.stock[prizeID] <= 0 {
		l.cooldowns[userID] = l.now().Add(ttl)
		return OutOfStock, nil
	}
	l.stock[prizeID]--
	l.sold[prizeID]++
	l.cooldowns[userID] = l.now().Add(ttl)
	return Committed, nil
}

func (l *MemoryLedger) Stock(_ context.Context, prizeID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[prizeID], nil
}

func (l *MemoryLedger) SeedStock(_ context.Context, prizeID uuid.UUID, remaining int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[prizeID] = remaining
	delete(l.sold, prizeID)
	return nil
}

func (l *MemoryLedger) DrainSold(_ context.Context, prizeID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.sold[prizeID]
	delete(l.sold, prizeID)
	return n, nil
}

func (l *MemoryLedger) AddSold(_ context.Context, prizeID uuid.UUID, n int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sold[prizeID] += n
	return nil
}
