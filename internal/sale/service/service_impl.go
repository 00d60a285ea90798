package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/commissary/internal/audit/domain"
	"github.com/smallbiznis/commissary/internal/commission"
	idempotencydomain "github.com/smallbiznis/commissary/internal/idempotency/domain"
	"github.com/smallbiznis/commissary/internal/metrics"
	partnerdomain "github.com/smallbiznis/commissary/internal/partner/domain"
	saledomain "github.com/smallbiznis/commissary/internal/sale/domain"
	"github.com/smallbiznis/commissary/internal/webhook"
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
	PartnerRepo partnerdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	idempotency idempotencydomain.Service
	auditSvc    auditdomain.Service
	partnerRepo partnerdomain.Repository
}

func NewService(p Params) saledomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("sale.service"),
		genID:       p.GenID,
		idempotency: p.Idempotency,
		auditSvc:    p.AuditSvc,
		partnerRepo: p.PartnerRepo,
	}
}

// RecordSale writes the sale, its commission record and an audit entry
// for a verified event, exactly once per event id. Safe to call again
// with the same event any number of times.
func (s *Service) RecordSale(ctx context.Context, event *webhook.SaleEvent) (*saledomain.LedgerResult, error) {
	if event == nil || event.EventID == "" {
		return nil, saledomain.ErrInvalidEvent
	}

	reservation, err := s.idempotency.Reserve(ctx, event.EventID, idempotencydomain.ScopePaymentEvent)
	if err != nil {
		return nil, err
	}
	if !reservation.Acquired {
		metrics.DuplicateDeliveries.Inc()
		return s.priorResult(ctx, reservation)
	}

	partner, err := s.partnerRepo.FindByID(ctx, s.db, event.PartnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		s.auditRejection(ctx, event)
		return nil, saledomain.ErrUnknownPartner
	}

	commissionAmount, err := commission.Compute(event.Amount, partner.CommissionRate)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	now := start.UTC()
	sale := saledomain.Sale{
		ID:                 s.genID.Generate(),
		PartnerID:          partner.ID,
		CustomerRef:        event.CustomerRef,
		Amount:             event.Amount,
		Currency:           event.Currency,
		Source:             event.Source,
		ExternalPaymentRef: event.PaymentRef,
		CreatedAt:          now,
	}
	record := saledomain.CommissionRecord{
		ID:          s.genID.Generate(),
		SaleID:      sale.ID,
		Amount:      commissionAmount,
		Rate:        partner.CommissionRate,
		PartnerTier: partner.Tier,
		CreatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO sales (
				id, partner_id, customer_ref, amount, currency, source,
				external_payment_ref, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sale.ID,
			sale.PartnerID,
			sale.CustomerRef,
			sale.Amount,
			sale.Currency,
			sale.Source,
			sale.ExternalPaymentRef,
			sale.CreatedAt,
		).Error; err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO commission_records (
				id, sale_id, amount, rate, partner_tier, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			record.ID,
			record.SaleID,
			record.Amount,
			record.Rate,
			record.PartnerTier,
			record.CreatedAt,
		).Error; err != nil {
			return err
		}

		saleID := sale.ID.String()
		return s.auditSvc.RecordTx(ctx, tx, "commission.tracked", "sale", &saleID, map[string]any{
			"event_id":          event.EventID,
			"partner_id":        partner.ID.String(),
			"partner_tier":      string(partner.Tier),
			"sale_amount":       sale.Amount.String(),
			"commission_amount": record.Amount.String(),
			"commission_rate":   record.Rate.String(),
			"payment_ref":       sale.ExternalPaymentRef,
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Same payment delivered under a different event id. The
			// existing sale is the result; record it against this event
			// so its redeliveries stop here too.
			return s.existingSaleByPaymentRef(ctx, event)
		}
		// The reservation stays unfinalized; after the TTL a redelivery
		// of the same event retries the write.
		return nil, err
	}

	if err := s.idempotency.Finalize(ctx, event.EventID, sale.ID.String()); err != nil {
		s.log.Warn("failed to finalize reservation",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.SalesRecorded.Inc()
	metrics.LedgerWriteDuration.Observe(float64(time.Since(start).Milliseconds()))

	return &saledomain.LedgerResult{
		SaleID:           sale.ID,
		CommissionAmount: record.Amount,
	}, nil
}

func (s *Service) existingSaleByPaymentRef(ctx context.Context, event *webhook.SaleEvent) (*saledomain.LedgerResult, error) {
	var sale saledomain.Sale
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, partner_id, customer_ref, amount, currency, source,
			external_payment_ref, created_at
		 FROM sales
		 WHERE external_payment_ref = ?
		 LIMIT 1`,
		event.PaymentRef,
	).Scan(&sale).Error; err != nil {
		return nil, err
	}
	if sale.ID == 0 {
		// The unique index said the sale exists but the row is not
		// readable yet; let the source redeliver.
		return nil, saledomain.ErrLedgerConflict
	}

	if err := s.idempotency.Finalize(ctx, event.EventID, sale.ID.String()); err != nil {
		return nil, err
	}
	metrics.DuplicateDeliveries.Inc()

	result := &saledomain.LedgerResult{SaleID: sale.ID, Duplicate: true}
	var record saledomain.CommissionRecord
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, sale_id, amount, rate, partner_tier, created_at
		 FROM commission_records
		 WHERE sale_id = ?
		 LIMIT 1`,
		sale.ID,
	).Scan(&record).Error; err != nil {
		return nil, err
	}
	if record.ID != 0 {
		result.CommissionAmount = record.Amount
	}
	return result, nil
}

// priorResult reconstructs the response for a delivery that lost the
// reservation, from the finalized result reference when there is one.
func (s *Service) priorResult(ctx context.Context, reservation idempotencydomain.Reservation) (*saledomain.LedgerResult, error) {
	result := &saledomain.LedgerResult{Duplicate: true}
	if reservation.ResultRef == "" {
		return result, nil
	}

	saleID, err := snowflake.ParseString(reservation.ResultRef)
	if err != nil {
		return result, nil
	}
	result.SaleID = saleID

	var record saledomain.CommissionRecord
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, sale_id, amount, rate, partner_tier, created_at
		 FROM commission_records
		 WHERE sale_id = ?
		 LIMIT 1`,
		saleID,
	).Scan(&record).Error; err != nil {
		return nil, err
	}
	if record.ID != 0 {
		result.CommissionAmount = record.Amount
	}
	return result, nil
}

func (s *Service) auditRejection(ctx context.Context, event *webhook.SaleEvent) {
	if err := s.auditSvc.Record(ctx, "sale.rejected", "payment_event", &event.EventID, map[string]any{
		"reason":     "unknown_partner",
		"partner_id": event.PartnerID.String(),
		"amount":     event.Amount.String(),
	}); err != nil {
		s.log.Warn("failed to audit rejected sale", zap.String("event_id", event.EventID), zap.Error(err))
	}
}
