package migration

import (
	auditdomain "github.com/smallbiznis/commissary/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/commissary/internal/catalog/domain"
	"github.com/smallbiznis/commissary/internal/config"
	idempotencydomain "github.com/smallbiznis/commissary/internal/idempotency/domain"
	partnerdomain "github.com/smallbiznis/commissary/internal/partner/domain"
	saledomain "github.com/smallbiznis/commissary/internal/sale/domain"
	"github.com/smallbiznis/commissary/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// golang-migrate carries only the postgres driver here; the
			// other dialects are for local development and tests.
			if err := conn.AutoMigrate(
				&idempotencydomain.Record{},
				&partnerdomain.Partner{},
				&saledomain.Sale{},
				&saledomain.CommissionRecord{},
				&catalogdomain.SyncRecord{},
				&auditdomain.AuditLog{},
			); err != nil {
				return err
			}
		}

		if cfg.IsDevelopment() {
			return seed.EnsureDemoPartner(conn)
		}
		return nil
	}),
)
