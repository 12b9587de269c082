package lottery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hzblue/lottery-backend/internal/ledger"
	"github.com/hzblue/lottery-backend/internal/store"
)

// Reconciler folds the ledger's accumulated sold deltas back into the durable
// prize rows, restoring the database as the long-term source of truth. It is
// the only writer that decreases remaining_count while the fast path is
// active.
type Reconciler struct {
	store  *store.Store
	ledger ledger.Ledger
}

func NewReconciler(st *store.Store, led ledger.Ledger) *Reconciler {
	return &Reconciler{store: st, ledger: led}
}

// SyncOnce drains every enabled prize's sold delta into its durable row.
// One prize failing must not starve the rest; a drained delta that fails to
// apply is pushed back into the ledger for the next tick.
func (r *Reconciler) SyncOnce(ctx context.Context) error {
	prizes, err := r.store.EnabledPrizes(ctx)
	if err != nil {
		return err
	}
	for _, p := range prizes {
		delta, err := r.ledger.DrainSold(ctx, p.ID)
		if err != nil {
			logrus.WithError(err).WithField("prize_id", p.ID).Warn("sold delta drain failed")
			continue
		}
		if delta <= 0 {
			continue
		}
		if err := r.store.ApplySoldDelta(ctx, p.ID, delta); err != nil {
			logrus.WithError(err).WithField("prize_id", p.ID).Error("sold delta apply failed")
			// push the drained delta back so the next tick retries it;
			// additive, so it composes with racing decrements
			if aerr := r.ledger.AddSold(ctx, p.ID, delta); aerr != nil {
				logrus.WithError(aerr).WithField("prize_id", p.ID).Error("sold delta requeue failed")
			}
		}
	}
	return nil
}

// SeedPrize populates the ledger's stock counter from the durable row.
// Pending deltas are drained and applied first so a seed can never erase
// decrements that have not reached the database yet. Required at startup and
// after prize creation, enabling, or a manual durable-side stock edit; an
// unseeded counter reads as zero and reports every draw out of stock.
func (r *Reconciler) SeedPrize(ctx context.Context, prizeID uuid.UUID) error {
	delta, err := r.ledger.DrainSold(ctx, prizeID)
	if err != nil {
		return err
	}
	if delta > 0 {
		if err := r.store.ApplySoldDelta(ctx, prizeID, delta); err != nil {
			return err
		}
	}
	p, err := r.store.GetPrize(ctx, prizeID)
	if err != nil {
		return err
	}
	return r.ledger.SeedStock(ctx, prizeID, p.RemainingCount)
}

// SeedAll seeds every enabled prize, typically at service start.
func (r *Reconciler) SeedAll(ctx context.Context) error {
	prizes, err := r.store.EnabledPrizes(ctx)
	if err != nil {
		return err
	}
	for _, p := range prizes {
		if err := r.SeedPrize(ctx, p.ID); err != nil {
			logrus.WithError(err).WithField("prize_id", p.ID).Error("stock seed failed")
		}
	}
	return nil
}

// Run reconciles on interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.SyncOnce(ctx); err != nil {
				logrus.WithError(err).Warn("stock reconciliation failed")
			}
		}
	}
}
