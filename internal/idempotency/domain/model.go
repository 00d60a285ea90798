package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Scope partitions idempotency keys by the kind of fact they guard.
type Scope string

const (
	ScopePaymentEvent Scope = "payment_event"
	ScopeCatalogItem  Scope = "catalog_item"
)

// Outcome is the recorded result of a reservation.
type Outcome string

const (
	// OutcomePending marks a reservation whose side effect has not finished.
	OutcomePending Outcome = "pending"
	// OutcomeProcessed marks a finalized reservation with a result reference.
	OutcomeProcessed Outcome = "processed"
	// OutcomeSkipped is reported to callers that lose the race for a key.
	OutcomeSkipped Outcome = "skipped"
)

// Record is one idempotency key ever seen. The key is never deleted; a
// finalized record is never rewritten.
type Record struct {
	Key         string     `gorm:"primaryKey;type:text"`
	Scope       Scope      `gorm:"type:text;not null"`
	Outcome     Outcome    `gorm:"type:text;not null"`
	ResultRef   *string    `gorm:"type:text"`
	CreatedAt   time.Time  `gorm:"not null"`
	FinalizedAt *time.Time `gorm:""`
}

func (Record) TableName() string { return "idempotency_records" }

// Reservation is the result of attempting to claim a key.
type Reservation struct {
	Acquired  bool
	Outcome   Outcome
	ResultRef string
}

type Service interface {
	// Reserve atomically claims key for scope. Exactly one concurrent
	// caller per key observes Acquired; the rest observe the prior
	// outcome. An unfinalized reservation older than the store TTL is
	// reclaimed by the retrying caller.
	Reserve(ctx context.Context, key string, scope Scope) (Reservation, error)
	// Finalize attaches the eventual result reference to a reservation.
	Finalize(ctx context.Context, key string, resultRef string) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *Record) (bool, error)
	Find(ctx context.Context, db *gorm.DB, key string) (*Record, error)
	Reclaim(ctx context.Context, db *gorm.DB, key string, staleBefore time.Time, now time.Time) (bool, error)
	Finalize(ctx context.Context, db *gorm.DB, key string, resultRef string, at time.Time) (bool, error)
}

var (
	ErrInvalidKey   = errors.New("invalid_idempotency_key")
	ErrInvalidScope = errors.New("invalid_idempotency_scope")
	ErrNotReserved  = errors.New("idempotency_key_not_reserved")
)
