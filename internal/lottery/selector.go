package lottery

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// PrizeSnapshot is the trimmed prize view used for selection. It carries no
// remaining count: on the fast path stock truth lives in the ledger.
type PrizeSnapshot struct {
	ID     uuid.UUID
	Name   string
	Weight int
}

// WeightScale is the fixed budget prize weights are read against. Weight left
// under the scale becomes the no-win share; weights summing past it leave no
// no-win share at all.
const WeightScale = 100

// RollBound returns the inclusive upper bound for a roll, never below 1.
func RollBound(prizes []PrizeSnapshot) int {
	total := 0
	for _, p := range prizes {
		if p.Weight > 0 {
			total += p.Weight
		}
	}
	noWin := WeightScale - total
	if noWin < 0 {
		noWin = 0
	}
	if total+noWin < 1 {
		return 1
	}
	return total + noWin
}

// PickAt resolves a roll in [1, RollBound(prizes)] against the list by
// cumulative weight walk. False means no win. Deterministic for a fixed list
// and roll, which is what the tests pin down.
func PickAt(prizes []PrizeSnapshot, roll int) (PrizeSnapshot, bool) {
	acc := 0
	for _, p := range prizes {
		if p.Weight > 0 {
			acc += p.Weight
		}
		if roll <= acc {
			return p, true
		}
	}
	return PrizeSnapshot{}, false
}

// Selector draws with its own rand source so tests can seed it.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSelector(src rand.Source) *Selector {
	return &Selector{rng: rand.New(src)}
}

func (s *Selector) Pick(prizes []PrizeSnapshot) (PrizeSnapshot, bool) {
	bound := RollBound(prizes)
	s.mu.Lock()
	roll := s.rng.Intn(bound) + 1
	s.mu.Unlock()
	return PickAt(prizes, roll)
}
