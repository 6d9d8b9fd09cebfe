package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingservice "github.com/smallbiznis/antaeus/internal/billing/service"
	"github.com/smallbiznis/antaeus/internal/config"
	customerdomain "github.com/smallbiznis/antaeus/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
	"github.com/smallbiznis/antaeus/internal/observability"
	obsmiddleware "github.com/smallbiznis/antaeus/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/antaeus/internal/observability/metrics"
	obstracing "github.com/smallbiznis/antaeus/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultHTTPPort = "7000"

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	port := strings.TrimSpace(cfg.HTTPPort)
	if port == "" {
		port = defaultHTTPPort
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http.server.start", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.Error(err))
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
	invoiceSvc  invoicedomain.Service
	customerSvc customerdomain.Service
	billing     *billingservice.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	InvoiceSvc  invoicedomain.Service
	CustomerSvc customerdomain.Service
	Billing     *billingservice.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		invoiceSvc:  p.InvoiceSvc,
		customerSvc: p.CustomerSvc,
		billing:     p.Billing,
	}

	svc.registerRESTRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRESTRoutes() {
	rest := s.engine.Group("/rest")

	rest.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := rest.Group("/v1")
	{
		v1.GET("/invoices", s.ListInvoices)
		v1.GET("/invoices/:id", s.GetInvoiceByID)

		v1.GET("/customers", s.ListCustomers)
		v1.GET("/customers/:id", s.GetCustomerByID)

		v1.POST("/billing", BillingStrategy(), s.ExecuteBilling)
		v1.GET("/billing/schedule", s.GetBillingSchedule)
	}
}
