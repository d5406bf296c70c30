package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/crateflow/internal/audit"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	"github.com/smallbiznis/crateflow/internal/config"
	"github.com/smallbiznis/crateflow/internal/delivery"
	deliverydomain "github.com/smallbiznis/crateflow/internal/delivery/domain"
	"github.com/smallbiznis/crateflow/internal/invoice"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	"github.com/smallbiznis/crateflow/internal/masterdata"
	"github.com/smallbiznis/crateflow/internal/observability"
	obsmiddleware "github.com/smallbiznis/crateflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/crateflow/internal/observability/metrics"
	obstracing "github.com/smallbiznis/crateflow/internal/observability/tracing"
	"github.com/smallbiznis/crateflow/internal/payment"
	paymentdomain "github.com/smallbiznis/crateflow/internal/payment/domain"
	"github.com/smallbiznis/crateflow/internal/pricing"
	pricingdomain "github.com/smallbiznis/crateflow/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	masterdata.Module,
	audit.Module,
	pricing.Module,
	delivery.Module,
	invoice.Module,
	payment.Module,
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		QuietRoutes:     []string{"/health", "/metrics"},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	auditSvc    auditdomain.Service
	pricingSvc  pricingdomain.Service
	deliverySvc deliverydomain.Service
	invoiceSvc  invoicedomain.Service
	paymentSvc  paymentdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	AuditSvc    auditdomain.Service
	PricingSvc  pricingdomain.Service
	DeliverySvc deliverydomain.Service
	InvoiceSvc  invoicedomain.Service
	PaymentSvc  paymentdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		auditSvc:    p.AuditSvc,
		pricingSvc:  p.PricingSvc,
		deliverySvc: p.DeliverySvc,
		invoiceSvc:  p.InvoiceSvc,
		paymentSvc:  p.PaymentSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(ActorContext())

	// -------- Prices --------
	api.POST("/prices", s.CreatePrice)
	api.GET("/prices", s.ListPrices)
	api.GET("/prices/resolve", s.ResolvePrice)

	// -------- Deliveries --------
	api.POST("/deliveries", s.RecordDeliveryTrip)
	api.GET("/clients/:id/container-balance", s.GetContainerBalance)
	api.GET("/clients/:id/deliveries/unbilled", s.ListUnbilledDeliveries)

	// -------- Billing --------
	billing := api.Group("/billing")
	{
		billing.POST("/generate/:client_id", s.GenerateDraftInvoice)
		billing.POST("/generate-all", s.GenerateAllInvoices)

		billing.GET("/invoices", s.ListInvoices)
		billing.GET("/invoices/:id", s.GetInvoiceByID)
		billing.GET("/invoices/:id/deliveries", s.ListInvoiceDeliveries)
		billing.POST("/invoices/:id/confirm", s.ConfirmInvoice)
		billing.POST("/invoices/:id/cancel", s.CancelInvoice)
		billing.POST("/invoices/:id/void-reissue", s.VoidAndReissueInvoice)
	}

	// -------- Payments --------
	api.POST("/payments/invoices/:id", s.RecordPayment)
	api.GET("/payments/invoices/:id", s.ListInvoicePayments)
	api.POST("/payments/monthly", s.PayMonth)

	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
