package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	partnerdomain "github.com/smallbiznis/commissary/internal/partner/domain"
	"gorm.io/gorm"
)

const (
	demoPartnerName = "Demo Partner"
	demoPartnerRate = "0.15"
)

// EnsureDemoPartner seeds one partner for local development. Partner
// rows are otherwise owned by the onboarding system.
func EnsureDemoPartner(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing partnerdomain.Partner
		if err := tx.WithContext(ctx).Raw(
			`SELECT id FROM partners WHERE name = ? LIMIT 1`,
			demoPartnerName,
		).Scan(&existing).Error; err != nil {
			return err
		}
		if existing.ID != 0 {
			return nil
		}

		rate, err := decimal.NewFromString(demoPartnerRate)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		return tx.WithContext(ctx).Exec(
			`INSERT INTO partners (id, name, tier, commission_rate, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			node.Generate(),
			demoPartnerName,
			partnerdomain.TierStandard,
			rate,
			now,
			now,
		).Error
	})
}
