package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/commissary/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/commissary/internal/catalog/domain"
	idempotencydomain "github.com/smallbiznis/commissary/internal/idempotency/domain"
	"github.com/smallbiznis/commissary/internal/metrics"
	"github.com/smallbiznis/commissary/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Idempotency idempotencydomain.Service
	AuditSvc    auditdomain.Service
	Client      catalogdomain.Client
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	idempotency idempotencydomain.Service
	auditSvc    auditdomain.Service
	client      catalogdomain.Client
}

func NewService(p Params) catalogdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("catalog.service"),
		genID:       p.GenID,
		idempotency: p.Idempotency,
		auditSvc:    p.AuditSvc,
		client:      p.Client,
	}
}

func (s *Service) Reconcile(ctx context.Context, candidates []catalogdomain.Product) (catalogdomain.Summary, error) {
	var summary catalogdomain.Summary

	for _, candidate := range candidates {
		switch err := s.reconcileItem(ctx, candidate); {
		case err == nil:
			summary.Created++
			metrics.ReconcileItems.WithLabelValues("created").Inc()
		case err == errItemSkipped:
			summary.Skipped++
			metrics.ReconcileItems.WithLabelValues("skipped").Inc()
		default:
			// The item's reservation is left unfinalized so a later run
			// retries it; other items keep going.
			summary.Errors++
			metrics.ReconcileItems.WithLabelValues("error").Inc()
			s.log.Warn("catalog item failed",
				zap.String("project", candidate.Project),
				zap.String("name", candidate.Name),
				zap.Error(err),
			)
		}
	}

	if err := s.auditSvc.Record(ctx, "catalog.reconcile_completed", "reconciliation", nil, map[string]any{
		"candidates": len(candidates),
		"created":    summary.Created,
		"skipped":    summary.Skipped,
		"errors":     summary.Errors,
	}); err != nil {
		s.log.Warn("failed to audit reconciliation summary", zap.Error(err))
	}

	return summary, nil
}

// errItemSkipped is the non-error control value for already-mirrored
// candidates.
var errItemSkipped = errSentinel("item_skipped")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

func (s *Service) reconcileItem(ctx context.Context, candidate catalogdomain.Product) error {
	if strings.TrimSpace(candidate.Name) == "" || candidate.Price.IsNegative() {
		return catalogdomain.ErrInvalidProduct
	}

	key := candidate.ContentHash()
	reservation, err := s.idempotency.Reserve(ctx, key, idempotencydomain.ScopeCatalogItem)
	if err != nil {
		return err
	}
	if !reservation.Acquired {
		return errItemSkipped
	}

	remoteID, err := s.client.CreateProduct(ctx, candidate)
	if err != nil {
		return err
	}

	record := catalogdomain.SyncRecord{
		ID:          s.genID.Generate(),
		ContentHash: key,
		Project:     strings.TrimSpace(candidate.Project),
		Name:        strings.TrimSpace(candidate.Name),
		Price:       candidate.Price.Round(2),
		RemoteID:    remoteID,
		CreatedAt:   time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO sync_records (
				id, content_hash, project, name, price, remote_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			record.ID,
			record.ContentHash,
			record.Project,
			record.Name,
			record.Price,
			record.RemoteID,
			record.CreatedAt,
		).Error; err != nil {
			return err
		}

		syncID := record.ID.String()
		return s.auditSvc.RecordTx(ctx, tx, "catalog.item_created", "sync_record", &syncID, map[string]any{
			"content_hash": record.ContentHash,
			"project":      record.Project,
			"name":         record.Name,
			"price":        record.Price.String(),
			"remote_id":    record.RemoteID,
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A prior attempt committed the record but never finalized
			// its reservation. Close it out and report a skip.
			if err := s.idempotency.Finalize(ctx, key, ""); err != nil {
				return err
			}
			return errItemSkipped
		}
		return err
	}

	return s.idempotency.Finalize(ctx, key, record.ID.String())
}
