package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vantage/internal/apperrors"
	"vantage/internal/config"
	"vantage/internal/handlers"
	"vantage/internal/metrics"
	"vantage/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	TrustScore  *handlers.TrustScoreHandler
	Marketplace *handlers.MarketplaceHandler
	Health      *handlers.HealthHandler
}

// NewRouter builds the gin engine with the middleware chain and every route.
// gatherer may be nil when metrics are disabled.
func NewRouter(cfg *config.Config, h Handlers, gatherer prometheus.Gatherer, collector *metrics.Collector, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(collector))
	router.Use(middleware.CORS(cfg.Security.CORS))
	if cfg.Security.RateLimiting.Enabled {
		router.Use(middleware.NewRateLimiter(cfg.Security.RateLimiting, logger).Middleware())
	}
	router.Use(middleware.ErrorHandler(logger))

	router.NoRoute(func(c *gin.Context) {
		middleware.RenderError(c, logger, apperrors.NotFound("Route not found"))
	})

	router.GET("/health", h.Health.Health)
	if cfg.Metrics.Enabled && gatherer != nil {
		router.GET(cfg.Metrics.Endpoint, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")

	trust := v1.Group("/trust-score")
	{
		trust.POST("", h.TrustScore.GetTrustScore)
		trust.POST("/calculate", h.TrustScore.CalculateTrustScore)
		trust.GET("/calculations/:id", h.TrustScore.GetCalculation)
		trust.GET("/quota", h.TrustScore.CheckQuota)
		trust.POST("/quota", h.TrustScore.ProvisionQuota)
		trust.GET("/history", h.TrustScore.GetHistory)
	}

	market := v1.Group("/marketplace")
	{
		market.GET("/items", h.Marketplace.ListItems)
		market.POST("/items", h.Marketplace.CreateItem)
		market.GET("/items/:id", h.Marketplace.GetItem)
		market.PATCH("/items/:id", h.Marketplace.UpdateItem)
		market.POST("/items/:id/purchase", h.Marketplace.PurchaseItem)
		market.POST("/items/:id/reviews", h.Marketplace.CreateReview)
		market.GET("/purchases", h.Marketplace.ListPurchases)
		market.GET("/compliance-checks", h.Marketplace.ListComplianceChecks)
		market.PATCH("/compliance-checks/:id", h.Marketplace.UpdateComplianceCheck)
		market.GET("/stats", h.Marketplace.Stats)
	}

	return router
}
