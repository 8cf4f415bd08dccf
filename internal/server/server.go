package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/webafza/billing/internal/audit"
	auditdomain "github.com/webafza/billing/internal/audit/domain"
	"github.com/webafza/billing/internal/authorization"
	"github.com/webafza/billing/internal/cart"
	cartdomain "github.com/webafza/billing/internal/cart/domain"
	"github.com/webafza/billing/internal/catalog"
	catalogdomain "github.com/webafza/billing/internal/catalog/domain"
	"github.com/webafza/billing/internal/client"
	"github.com/webafza/billing/internal/clock"
	"github.com/webafza/billing/internal/config"
	"github.com/webafza/billing/internal/currency"
	currencydomain "github.com/webafza/billing/internal/currency/domain"
	"github.com/webafza/billing/internal/invoice"
	invoicedomain "github.com/webafza/billing/internal/invoice/domain"
	"github.com/webafza/billing/internal/observability"
	obsmiddleware "github.com/webafza/billing/internal/observability/logger"
	obsmetrics "github.com/webafza/billing/internal/observability/metrics"
	obstracing "github.com/webafza/billing/internal/observability/tracing"
	"github.com/webafza/billing/internal/payment"
	paymentdomain "github.com/webafza/billing/internal/payment/domain"
	"github.com/webafza/billing/internal/promotion"
	promotiondomain "github.com/webafza/billing/internal/promotion/domain"
	"github.com/webafza/billing/internal/provisioning"
	provisioningdomain "github.com/webafza/billing/internal/provisioning/domain"
	"github.com/webafza/billing/internal/ratelimit"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	clock.Module,
	authorization.Module,
	audit.Module,
	catalog.Module,
	client.Module,
	currency.Module,
	cart.Module,
	promotion.Module,
	invoice.Module,
	payment.Module,
	provisioning.Module,
	ratelimit.Module,
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

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	cartSvc         cartdomain.Service
	catalogSvc      catalogdomain.Service
	currencySvc     currencydomain.Service
	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	promotionSvc    promotiondomain.Service
	provisioningSvc provisioningdomain.Reader
	bucket          *ratelimit.TokenBucket
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	CartSvc         cartdomain.Service
	CatalogSvc      catalogdomain.Service
	CurrencySvc     currencydomain.Service
	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	PromotionSvc    promotiondomain.Service
	ProvisioningSvc provisioningdomain.Reader
	Bucket          *ratelimit.TokenBucket `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		cartSvc:         p.CartSvc,
		catalogSvc:      p.CatalogSvc,
		currencySvc:     p.CurrencySvc,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		promotionSvc:    p.PromotionSvc,
		provisioningSvc: p.ProvisioningSvc,
		bucket:          p.Bucket,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(identityMiddleware())
	api.Use(rateLimitMiddleware(s.bucket, 20, 40))

	api.POST("/checkout", s.checkout)

	api.GET("/cart", s.getCart)
	api.POST("/cart/items", s.addCartItem)
	api.DELETE("/cart/items/:id", s.removeCartItem)
	api.POST("/cart/promotion", s.applyCartPromotion)
	api.DELETE("/cart/promotion", s.removeCartPromotion)
	api.PUT("/cart/currency", s.setCartCurrency)

	api.GET("/invoices", s.listInvoices)
	api.GET("/invoices/:id", s.getInvoice)
	api.PATCH("/invoices/:id", s.updateInvoice)
	api.DELETE("/invoices/:id", s.deleteInvoice)

	api.GET("/payments", s.listPayments)
	api.GET("/services", s.listServices)

	api.GET("/categories", s.listCategories)
	api.POST("/categories", s.createCategory)
	api.GET("/packages", s.listPackages)
	api.POST("/packages", s.createPackage)

	api.GET("/promotions", s.listPromotions)
	api.POST("/promotions", s.createPromotion)
	api.PATCH("/promotions/:id", s.updatePromotion)
	api.DELETE("/promotions/:id", s.deletePromotion)

	api.GET("/rates", s.listRates)
	api.PUT("/rates/:code", s.setRate)

	api.GET("/audit-logs", s.listAuditLogs)
}
