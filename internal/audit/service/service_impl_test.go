package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/commissary/internal/audit/domain"
	auditrepo "github.com/smallbiznis/commissary/internal/audit/repository"
	auditservice "github.com/smallbiznis/commissary/internal/audit/service"
	"github.com/smallbiznis/commissary/pkg/db/pagination"
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

	if err := db.Exec(`CREATE TABLE audit_logs (
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
	)`).Error; err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func setupAuditService(t *testing.T, db *gorm.DB) auditdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(12)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
}

func paginationWith(token string, size int32) pagination.Pagination {
	return pagination.Pagination{PageToken: token, PageSize: size}
}

func TestRecordAndListAuditLogs(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := setupAuditService(t, db)

	saleID := "42"
	if err := svc.Record(ctx, "commission.tracked", "sale", &saleID, map[string]any{
		"commission_amount": "30",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.Record(ctx, "sale.rejected", "payment_event", nil, map[string]any{
		"reason": "unknown_partner",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.AuditLogs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.AuditLogs))
	}

	resp, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "commission.tracked"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(resp.AuditLogs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(resp.AuditLogs))
	}
	entry := resp.AuditLogs[0]
	if entry.TargetType != "sale" || entry.TargetID == nil || *entry.TargetID != saleID {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Metadata["commission_amount"] != "30" {
		t.Fatalf("expected metadata to round-trip, got %v", entry.Metadata)
	}
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := setupAuditService(t, db)

	if err := svc.Record(ctx, "  ", "sale", nil, nil); err != auditdomain.ErrInvalidAction {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := setupAuditService(t, db)

	for i := 0; i < 5; i++ {
		if err := svc.Record(ctx, "commission.tracked", "sale", nil, map[string]any{"n": i}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	var seen int
	var token string
	for page := 0; page < 10; page++ {
		resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
			Pagination: paginationWith(token, 2),
		})
		if err != nil {
			t.Fatalf("list page %d: %v", page, err)
		}
		seen += len(resp.AuditLogs)
		if !resp.HasMore {
			break
		}
		token = resp.NextPageToken
	}
	if seen != 5 {
		t.Fatalf("expected to page through 5 entries, got %d", seen)
	}
}

func TestListRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := setupAuditService(t, db)

	if _, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: paginationWith("not-a-token", 10),
	}); err != auditdomain.ErrInvalidPageToken {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}

	start := time.Now()
	end := start.Add(-time.Hour)
	if _, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		StartAt: &start,
		EndAt:   &end,
	}); err != auditdomain.ErrInvalidTimeRange {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}
}
