package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditrepo "github.com/smallbiznis/commissary/internal/audit/repository"
	auditservice "github.com/smallbiznis/commissary/internal/audit/service"
	"github.com/smallbiznis/commissary/internal/config"
	idempotencyrepo "github.com/smallbiznis/commissary/internal/idempotency/repository"
	idempotencyservice "github.com/smallbiznis/commissary/internal/idempotency/service"
	partnerdomain "github.com/smallbiznis/commissary/internal/partner/domain"
	partnerrepo "github.com/smallbiznis/commissary/internal/partner/repository"
	saledomain "github.com/smallbiznis/commissary/internal/sale/domain"
	saleservice "github.com/smallbiznis/commissary/internal/sale/service"
	"github.com/smallbiznis/commissary/internal/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	// One pooled connection so concurrent deliveries serialize on the
	// database instead of tripping sqlite table locks.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE idempotency_records (
			key TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			outcome TEXT NOT NULL,
			result_ref TEXT,
			created_at DATETIME NOT NULL,
			finalized_at DATETIME
		)`,
		`CREATE TABLE partners (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			tier TEXT NOT NULL,
			commission_rate DECIMAL(6,4) NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE sales (
			id BIGINT PRIMARY KEY,
			partner_id BIGINT NOT NULL,
			customer_ref TEXT,
			amount DECIMAL(20,2) NOT NULL,
			currency TEXT NOT NULL,
			source TEXT,
			external_payment_ref TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_sales_external_payment_ref ON sales(external_payment_ref)`,
		`CREATE TABLE commission_records (
			id BIGINT PRIMARY KEY,
			sale_id BIGINT NOT NULL,
			amount DECIMAL(20,2) NOT NULL,
			rate DECIMAL(6,4) NOT NULL,
			partner_tier TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_commission_records_sale_id ON commission_records(sale_id)`,
		`CREATE TABLE audit_logs (
			id BIGINT PRIMARY KEY,
			actor_type TEXT NOT NULL,
			actor_id TEXT,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT,
			metadata TEXT,
			ip_address TEXT,
			user_agent TEXT,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

func setupSaleService(t *testing.T, db *gorm.DB) saledomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
	idempotencySvc := idempotencyservice.NewService(idempotencyservice.Params{
		DB:  db,
		Log: zap.NewNop(),
		Cfg: config.Config{IdempotencyTTL: 15 * time.Minute},
	}, idempotencyrepo.Provide())

	return saleservice.NewService(saleservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Idempotency: idempotencySvc,
		AuditSvc:    auditSvc,
		PartnerRepo: partnerrepo.Provide(),
	})
}

func seedPartner(t *testing.T, db *gorm.DB, id snowflake.ID, rate string) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO partners (id, name, tier, commission_rate, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, "Acme Resellers", partnerdomain.TierStandard, decimal.RequireFromString(rate), now, now,
	).Error; err != nil {
		t.Fatalf("seed partner: %v", err)
	}
}

func saleEvent(eventID string, partnerID snowflake.ID, amount string, paymentRef string) *webhook.SaleEvent {
	return &webhook.SaleEvent{
		EventID:     eventID,
		PartnerID:   partnerID,
		CustomerRef: "cus_1",
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Source:      "checkout",
		PaymentRef:  paymentRef,
		OccurredAt:  time.Now().UTC(),
	}
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d", expected, count)
	}
}

func TestRecordSaleCreatesLedgerRows(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := setupSaleService(t, db)

	partnerID := snowflake.ID(7000000001)
	seedPartner(t, db, partnerID, "0.15")

	result, err := svc.RecordSale(ctx, saleEvent("evt_1", partnerID, "200.00", "pay_1"))
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("expected first delivery not to be a duplicate")
	}
	if result.CommissionAmount.String() != "30" {
		t.Fatalf("expected commission 30, got %s", result.CommissionAmount)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM sales", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM commission_records", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM audit_logs WHERE action = 'commission.tracked'", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM idempotency_records WHERE outcome = 'processed' AND finalized_at IS NOT NULL", 1)

	var rate decimal.Decimal
	if err := db.Raw("SELECT rate FROM commission_records LIMIT 1").Scan(&rate).Error; err != nil {
		t.Fatalf("read rate: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("expected snapshotted rate 0.15, got %s", rate)
	}
}

func TestRecordSaleDistinctEvents(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := setupSaleService(t, db)

	partnerID := snowflake.ID(7000000002)
	seedPartner(t, db, partnerID, "0.10")

	if _, err := svc.RecordSale(ctx, saleEvent("evt_a", partnerID, "50.00", "pay_a")); err != nil {
		t.Fatalf("record first sale: %v", err)
	}
	if _, err := svc.RecordSale(ctx, saleEvent("evt_b", partnerID, "75.00", "pay_b")); err != nil {
		t.Fatalf("record second sale: %v", err)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM sales", 2)
	assertCount(t, db, "SELECT COUNT(1) FROM commission_records", 2)
}

func TestRecordSaleDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := setupSaleService(t, db)

	partnerID := snowflake.ID(7000000003)
	seedPartner(t, db, partnerID, "0.15")

	first, err := svc.RecordSale(ctx, saleEvent("evt_dup", partnerID, "200.00", "pay_dup"))
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	for i := 0; i < 3; i++ {
		again, err := svc.RecordSale(ctx, saleEvent("evt_dup", partnerID, "200.00", "pay_dup"))
		if err != nil {
			t.Fatalf("redeliver sale: %v", err)
		}
		if !again.Duplicate {
			t.Fatalf("expected redelivery to report duplicate")
		}
		if again.SaleID != first.SaleID {
			t.Fatalf("expected the original sale id %s, got %s", first.SaleID, again.SaleID)
		}
		if !again.CommissionAmount.Equal(first.CommissionAmount) {
			t.Fatalf("expected commission %s, got %s", first.CommissionAmount, again.CommissionAmount)
		}
	}

	assertCount(t, db, "SELECT COUNT(1) FROM sales", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM commission_records", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM idempotency_records", 1)
}

func TestRecordSaleConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := setupSaleService(t, db)

	partnerID := snowflake.ID(7000000005)
	seedPartner(t, db, partnerID, "0.15")

	const workers = 6
	results := make([]*saledomain.LedgerResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.RecordSale(ctx, saleEvent("evt_burst", partnerID, "200.00", "pay_burst"))
		}(i)
	}
	wg.Wait()

	recorded := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if !results[i].Duplicate {
			recorded++
		}
	}
	if recorded != 1 {
		t.Fatalf("expected exactly one delivery to record the sale, got %d", recorded)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM sales", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM commission_records", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM idempotency_records", 1)
}

func TestRecordSaleSamePaymentDifferentEventID(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := setupSaleService(t, db)

	partnerID := snowflake.ID(7000000004)
	seedPartner(t, db, partnerID, "0.15")

	first, err := svc.RecordSale(ctx, saleEvent("evt_x", partnerID, "200.00", "pay_same"))
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	// The processor re-sent the same payment under a fresh event id; the
	// unique payment reference still keeps the ledger to one sale.
	again, err := svc.RecordSale(ctx, saleEvent("evt_y", partnerID, "200.00", "pay_same"))
	if err != nil {
		t.Fatalf("record resent sale: %v", err)
	}
	if !again.Duplicate || again.SaleID != first.SaleID {
		t.Fatalf("expected the original sale, got %+v", again)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM sales", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM commission_records", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM idempotency_records WHERE finalized_at IS NOT NULL", 2)
}

func TestRecordSaleUnknownPartner(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := setupSaleService(t, db)

	_, err := svc.RecordSale(ctx, saleEvent("evt_orphan", snowflake.ID(9999999999), "200.00", "pay_orphan"))
	if err != saledomain.ErrUnknownPartner {
		t.Fatalf("expected ErrUnknownPartner, got %v", err)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM sales", 0)
	assertCount(t, db, "SELECT COUNT(1) FROM commission_records", 0)
	assertCount(t, db, "SELECT COUNT(1) FROM audit_logs WHERE action = 'sale.rejected'", 1)
	// The reservation stays unfinalized; replays keep failing the same
	// way instead of silently creating rows later.
	assertCount(t, db, "SELECT COUNT(1) FROM idempotency_records WHERE finalized_at IS NULL", 1)
}
