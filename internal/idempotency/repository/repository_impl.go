package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/commissary/internal/idempotency/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.Record) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO idempotency_records (
			key, scope, outcome, result_ref, created_at, finalized_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING`,
		record.Key,
		record.Scope,
		record.Outcome,
		record.ResultRef,
		record.CreatedAt,
		record.FinalizedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, key string) (*domain.Record, error) {
	var item domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT key, scope, outcome, result_ref, created_at, finalized_at
		 FROM idempotency_records
		 WHERE key = ?
		 LIMIT 1`,
		key,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Key == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Reclaim(ctx context.Context, db *gorm.DB, key string, staleBefore time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE idempotency_records
		 SET created_at = ?
		 WHERE key = ? AND finalized_at IS NULL AND created_at < ?`,
		now,
		key,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Finalize(ctx context.Context, db *gorm.DB, key string, resultRef string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE idempotency_records
		 SET outcome = ?, result_ref = ?, finalized_at = ?
		 WHERE key = ? AND finalized_at IS NULL`,
		domain.OutcomeProcessed,
		resultRef,
		at,
		key,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
