package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hzblue/lottery-backend/internal/models"
)

// Store wraps the durable relational schema. It is the long-term source of
// truth for prize stock; the fast-path ledger only caches it between
// reconciliation cycles.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&models.User{}, &models.Activity{}, &models.Prize{}, &models.DrawRecord{})
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&n).Error
	return n > 0, err
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpdateLastDraw(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("last_draw_at", at).Error
}

// --- activities ---

func (s *Store) CreateActivity(ctx context.Context, a *models.Activity) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *Store) ListActivities(ctx context.Context) ([]models.Activity, error) {
	var rows []models.Activity
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// --- prizes ---

func (s *Store) CreatePrize(ctx context.Context, p *models.Prize) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetPrize(ctx context.Context, id uuid.UUID) (*models.Prize, error) {
	var p models.Prize
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPrizes(ctx context.Context) ([]models.Prize, error) {
	var rows []models.Prize
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// EnabledPrizes backs the metadata cache snapshot. No stock filter: on the
// fast path stock truth lives in the ledger, not in this row.
func (s *Store) EnabledPrizes(ctx context.Context) ([]models.Prize, error) {
	var rows []models.Prize
	err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&rows).Error
	return rows, err
}

// AvailablePrizes is the public listing: enabled with durable stock left.
func (s *Store) AvailablePrizes(ctx context.Context) ([]models.Prize, error) {
	var rows []models.Prize
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND remaining_count > 0", true).
		Order("updated_at DESC").Find(&rows).Error
	return rows, err
}

func (s *Store) SetPrizeEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.Prize{}).Where("id = ?", id).
		Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ApplySoldDelta folds a reconciled sold delta into the durable row, clamped
// at zero so a reseed after manual stock edits can never drive it negative.
func (s *Store) ApplySoldDelta(ctx context.Context, prizeID uuid.UUID, delta int64) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE prizes
		 SET remaining_count = CASE WHEN remaining_count > ? THEN remaining_count - ? ELSE 0 END,
		     updated_at = ?
		 WHERE id = ?`,
		delta, delta, time.Now(), prizeID).Error
}

// --- draw records ---

func (s *Store) CreateDrawRecord(ctx context.Context, r *models.DrawRecord) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *Store) UserHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.DrawRecord, error) {
	var rows []models.DrawRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *Store) GlobalHistory(ctx context.Context, limit int) ([]models.DrawRecord, error) {
	var rows []models.DrawRecord
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// --- transactional fallback helpers ---

// LockUser reads the user's row inside tx, with FOR UPDATE on postgres so
// concurrent draws by the same user serialize on the row. sqlite has a single
// writer and rejects the clause, so it is dialect-gated.
func LockUser(tx *gorm.DB, userID uuid.UUID) (*models.User, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var u models.User
	if err := q.First(&u, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// EligiblePrizes reads prizes winnable inside the fallback transaction.
func EligiblePrizes(tx *gorm.DB) ([]models.Prize, error) {
	var rows []models.Prize
	err := tx.Where("enabled = ? AND remaining_count > 0", true).Find(&rows).Error
	return rows, err
}

// DecrementStock performs the conditional decrement. A false return means the
// row had no stock left: the caller lost the race and must treat the draw as
// a no-win, not an error.
func DecrementStock(tx *gorm.DB, prizeID uuid.UUID) (bool, error) {
	res := tx.Model(&models.Prize{}).
		Where("id = ? AND remaining_count > 0", prizeID).
		Update("remaining_count", gorm.Expr("remaining_count - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
