package lottery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hzblue/lottery-backend/internal/ledger"
	"github.com/hzblue/lottery-backend/internal/models"
	"github.com/hzblue/lottery-backend/internal/store"
)

// ErrRateLimited means the user's cooldown window has not elapsed yet.
var ErrRateLimited = errors.New("draw rate limited")

type DrawResult struct {
	Won       bool       `json:"won"`
	PrizeID   *uuid.UUID `json:"prize_id"`
	PrizeName *string    `json:"prize_name"`
}

// Service is the draw orchestrator. With a ledger it runs the accelerated
// path: cache snapshot, weighted pick, one atomic ledger commit, async
// persistence. Without one, or when the ledger errors, it runs the whole draw
// inside a single durable transaction.
type Service struct {
	store    *store.Store
	ledger   ledger.Ledger
	cache    *PrizeCache
	selector *Selector
	cooldown time.Duration

	// persistTimeout bounds the detached record write after a committed draw.
	persistTimeout time.Duration
}

func NewService(st *store.Store, led ledger.Ledger, cache *PrizeCache, sel *Selector, cooldown time.Duration) *Service {
	return &Service{
		store:          st,
		ledger:         led,
		cache:          cache,
		selector:       sel,
		cooldown:       cooldown,
		persistTimeout: 5 * time.Second,
	}
}

func (s *Service) Draw(ctx context.Context, userID uuid.UUID) (DrawResult, error) {
	if s.ledger != nil {
		res, err := s.drawFast(ctx, userID)
		if err == nil || errors.Is(err, ErrRateLimited) {
			return res, err
		}
		logrus.WithError(err).Warn("ledger unavailable, falling back to transactional draw")
	}
	return s.drawFallback(ctx, userID)
}

func (s *Service) drawFast(ctx context.Context, userID uuid.UUID) (DrawResult, error) {
	prizes := s.cache.Snapshot()
	if len(prizes) == 0 {
		rows, err := s.store.EnabledPrizes(ctx)
		if err != nil {
			return DrawResult{}, err
		}
		for _, p := range rows {
			prizes = append(prizes, PrizeSnapshot{ID: p.ID, Name: p.Name, Weight: p.Weight})
		}
	}

	picked, won := s.selector.Pick(prizes)

	var result DrawResult
	if won {
		r, err := s.ledger.CooldownAndDecrement(ctx, userID, picked.ID, s.cooldown)
		if err != nil {
			return DrawResult{}, err
		}
		switch r {
		case ledger.Denied:
			return DrawResult{}, ErrRateLimited
		case ledger.Committed:
			name := picked.Name
			id := picked.ID
			result = DrawResult{Won: true, PrizeID: &id, PrizeName: &name}
		default:
			// exhausted prize reads as a plain no-win, not an error
			result = DrawResult{}
		}
	} else {
		r, err := s.ledger.CooldownOnly(ctx, userID, s.cooldown)
		if err != nil {
			return DrawResult{}, err
		}
		if r == ledger.Denied {
			return DrawResult{}, ErrRateLimited
		}
	}

	// The ledger already holds the decrement, so the caller gets the outcome
	// now; a crash before this write loses one audit record, never stock.
	go s.persistOutcome(userID, result)

	return result, nil
}

func (s *Service) persistOutcome(userID uuid.UUID, res DrawResult) {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	now := time.Now()
	rec := models.DrawRecord{
		ID:        uuid.New(),
		UserID:    userID,
		PrizeID:   res.PrizeID,
		PrizeName: res.PrizeName,
		CreatedAt: now,
	}
	if err := s.store.CreateDrawRecord(ctx, &rec); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("draw record write failed")
	}
	if err := s.store.UpdateLastDraw(ctx, userID, now); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("last draw update failed")
	}
}

func (s *Service) drawFallback(ctx context.Context, userID uuid.UUID) (DrawResult, error) {
	var result DrawResult
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := store.LockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.LastDrawAt != nil && time.Since(*user.LastDrawAt) < s.cooldown {
			return ErrRateLimited
		}

		rows, err := store.EligiblePrizes(tx)
		if err != nil {
			return err
		}
		prizes := make([]PrizeSnapshot, 0, len(rows))
		for _, p := range rows {
			prizes = append(prizes, PrizeSnapshot{ID: p.ID, Name: p.Name, Weight: p.Weight})
		}

		result = DrawResult{}
		if picked, won := s.selector.Pick(prizes); won {
			ok, err := store.DecrementStock(tx, picked.ID)
			if err != nil {
				return err
			}
			// a zero-row update lost the race to a concurrent draw: no win
			if ok {
				name := picked.Name
				id := picked.ID
				result = DrawResult{Won: true, PrizeID: &id, PrizeName: &name}
			}
		}

		now := time.Now()
		rec := models.DrawRecord{
			ID:        uuid.New(),
			UserID:    userID,
			PrizeID:   result.PrizeID,
			PrizeName: result.PrizeName,
			CreatedAt: now,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			Update("last_draw_at", now).Error
	})
	if err != nil {
		return DrawResult{}, err
	}
	return result, nil
}
