package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/commissary/internal/partner/domain"
	"github.com/smallbiznis/commissary/internal/webhook"
)

// Sale is created exactly once per verified payment event.
type Sale struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	PartnerID          snowflake.ID    `json:"partner_id" gorm:"not null;index"`
	CustomerRef        string          `json:"customer_ref" gorm:"type:text"`
	Amount             decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Currency           string          `json:"currency" gorm:"type:text;not null"`
	Source             string          `json:"source" gorm:"type:text"`
	ExternalPaymentRef string          `json:"external_payment_ref" gorm:"type:text;not null;uniqueIndex"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null"`
}

func (Sale) TableName() string { return "sales" }

// CommissionRecord is derived from its sale and immutable. The rate is
// snapshotted at write time so later partner rate changes do not alter
// history.
type CommissionRecord struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	SaleID      snowflake.ID    `json:"sale_id" gorm:"not null;uniqueIndex"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Rate        decimal.Decimal `json:"rate" gorm:"type:decimal(6,4);not null"`
	PartnerTier domain.Tier     `json:"partner_tier" gorm:"type:text;not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

func (CommissionRecord) TableName() string { return "commission_records" }

// LedgerResult reports the outcome of recording a sale, including
// replays of already-processed events.
type LedgerResult struct {
	SaleID           snowflake.ID    `json:"sale_id"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	Duplicate        bool            `json:"duplicate"`
}

type Service interface {
	RecordSale(ctx context.Context, event *webhook.SaleEvent) (*LedgerResult, error)
}

var (
	ErrUnknownPartner = errors.New("unknown_partner")
	ErrInvalidEvent   = errors.New("invalid_sale_event")
	// ErrLedgerConflict reports a concurrent write for the same payment
	// that is not yet readable; the delivery should be retried.
	ErrLedgerConflict = errors.New("ledger_conflict")
)
