package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Product is a remote catalog entity; this service mirrors it but does
// not own it.
type Product struct {
	Project  string          `json:"project"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Type     string          `json:"type"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// ContentHash is the stable idempotency key for a candidate. Two
// candidates with the same project, name and price are the same item no
// matter how often they appear in a snapshot.
func (p Product) ContentHash() string {
	material := fmt.Sprintf("%s|%s|%s",
		strings.TrimSpace(p.Project),
		strings.TrimSpace(p.Name),
		p.Price.Round(2).String(),
	)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// SyncRecord is the durable fact that a product has been mirrored.
type SyncRecord struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	ContentHash string          `json:"content_hash" gorm:"type:text;not null;uniqueIndex"`
	Project     string          `json:"project" gorm:"type:text;not null"`
	Name        string          `json:"name" gorm:"type:text;not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(20,2);not null"`
	RemoteID    string          `json:"remote_id" gorm:"type:text"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

func (SyncRecord) TableName() string { return "sync_records" }

// Summary reports one reconciliation run.
type Summary struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Client creates products with the external catalog service.
type Client interface {
	CreateProduct(ctx context.Context, product Product) (remoteID string, err error)
}

type Service interface {
	// Reconcile creates exactly the candidates not seen before. Running
	// it again over an unchanged snapshot creates nothing.
	Reconcile(ctx context.Context, candidates []Product) (Summary, error)
}

var (
	ErrInvalidProduct     = errors.New("invalid_product")
	ErrCatalogUnavailable = errors.New("catalog_unavailable")
)
