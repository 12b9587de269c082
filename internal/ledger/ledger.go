// Package ledger is the fast-path counter store backing accelerated draws.
// It keeps one stock counter and one sold-delta counter per prize and one
// cooldown flag per user. The two composite operations are the load-bearing
// atomicity of the whole fast path: all of their reads and writes must be
// indivisible with respect to concurrent calls on the same keys.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Result int

const (
	// Committed: cooldown set and, for CooldownAndDecrement, stock decremented.
	Committed Result = iota
	// Denied: the user's cooldown flag was already set.
	Denied
	// OutOfStock: stock counter was <= 0. The cooldown flag is still set so
	// retries against an exhausted prize stay throttled.
	OutOfStock
)

// Ledger is satisfied by the redis implementation in production and the
// in-memory implementation in tests and redis-less deployments.
type Ledger interface {
	// CooldownOnly throttles a no-win draw.
	CooldownOnly(ctx context.Context, userID uuid.UUID, ttl time.Duration) (Result, error)

	// CooldownAndDecrement atomically checks the cooldown, decrements the
	// prize's stock counter and bumps its sold-delta counter.
	CooldownAndDecrement(ctx context.Context, userID, prizeID uuid.UUID, ttl time.Duration) (Result, error)

	// Stock reads the current stock counter. Missing keys read as zero.
	Stock(ctx context.Context, prizeID uuid.UUID) (int64, error)

	// SeedStock overwrites the stock counter from durable remaining_count and
	// clears the sold delta. Callers must drain the delta into the durable row
	// first or pending decrements are lost.
	SeedStock(ctx context.Context, prizeID uuid.UUID, remaining int64) error

	// DrainSold atomically fetches the sold-delta counter and resets it to
	// zero, so concurrent decrements are neither lost nor double-counted.
	DrainSold(ctx context.Context, prizeID uuid.UUID) (int64, error)

	// AddSold adds back a drained delta that could not be applied durably.
	AddSold(ctx context.Context, prizeID uuid.UUID, n int64) error
}
