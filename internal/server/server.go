package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/commissary/internal/audit"
	auditdomain "github.com/smallbiznis/commissary/internal/audit/domain"
	"github.com/smallbiznis/commissary/internal/catalog"
	catalogdomain "github.com/smallbiznis/commissary/internal/catalog/domain"
	"github.com/smallbiznis/commissary/internal/config"
	"github.com/smallbiznis/commissary/internal/idempotency"
	"github.com/smallbiznis/commissary/internal/partner"
	partnerdomain "github.com/smallbiznis/commissary/internal/partner/domain"
	"github.com/smallbiznis/commissary/internal/sale"
	saledomain "github.com/smallbiznis/commissary/internal/sale/domain"
	"github.com/smallbiznis/commissary/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	audit.Module,
	idempotency.Module,
	partner.Module,
	sale.Module,
	catalog.Module,
	fx.Provide(NewEngine),
	fx.Provide(newVerifier),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func newVerifier(cfg config.Config) *webhook.Verifier {
	return webhook.NewVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
}

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestContextMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	verifier    *webhook.Verifier
	saleSvc     saledomain.Service
	catalogSvc  catalogdomain.Service
	auditSvc    auditdomain.Service
	partnerRepo partnerdomain.Repository
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Verifier    *webhook.Verifier
	SaleSvc     saledomain.Service
	CatalogSvc  catalogdomain.Service
	AuditSvc    auditdomain.Service
	PartnerRepo partnerdomain.Repository
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("http.server"),
		verifier:    p.Verifier,
		saleSvc:     p.SaleSvc,
		catalogSvc:  p.CatalogSvc,
		auditSvc:    p.AuditSvc,
		partnerRepo: p.PartnerRepo,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhooks/payments", s.HandlePaymentWebhook)
	s.engine.POST("/reconciliation/catalog", s.HandleCatalogReconciliation)
	s.engine.GET("/audit-logs", s.ListAuditLogs)
	s.engine.GET("/partners/:id", s.GetPartner)
}
