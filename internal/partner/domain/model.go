package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Tier buckets partners for reporting; the commission rate on the row is
// authoritative, the tier is descriptive.
type Tier string

const (
	TierStandard Tier = "standard"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
)

// Partner rows are owned by the onboarding collaborator; this service
// only reads them.
type Partner struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	Name           string          `json:"name" gorm:"type:text;not null"`
	Tier           Tier            `json:"tier" gorm:"type:text;not null"`
	CommissionRate decimal.Decimal `json:"commission_rate" gorm:"type:decimal(6,4);not null"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

func (Partner) TableName() string { return "partners" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Partner, error)
}

var ErrNotFound = errors.New("partner_not_found")
