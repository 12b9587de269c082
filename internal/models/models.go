package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Username     string     `json:"username" gorm:"uniqueIndex;size:64"`
	PasswordHash string     `json:"-"`
	Email        *string    `json:"email"`
	LastDrawAt   *time.Time `json:"lastDrawAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

const (
	ActivityPlanned = "planned"
	ActivityOngoing = "ongoing"
	ActivityPaused  = "paused"
	ActivityEnded   = "ended"
)

type Activity struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Status      string    `json:"status" gorm:"size:16;default:planned"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Prize stock invariant: 0 <= RemainingCount <= TotalCount in durable storage.
// Under the fast path the ledger's counter is authoritative between
// reconciliation cycles and the durable row may lag briefly.
type Prize struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ActivityID     uuid.UUID `json:"activityId" gorm:"type:uuid;index"`
	Name           string    `json:"name"`
	Description    *string   `json:"description"`
	TotalCount     int64     `json:"totalCount"`
	RemainingCount int64     `json:"remainingCount"`
	Weight         int       `json:"weight"` // points out of a 100-point scale
	Enabled        bool      `json:"enabled" gorm:"index"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// DrawRecord is append-only. PrizeID is nil for a no-win draw; PrizeName is
// denormalized so history survives prize renaming or deletion.
type DrawRecord struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID  `json:"userId" gorm:"type:uuid;index"`
	PrizeID   *uuid.UUID `json:"prizeId" gorm:"type:uuid"`
	PrizeName *string    `json:"prizeName"`
	CreatedAt time.Time  `json:"createdAt" gorm:"index"`
}
