package handler

import (
	"github.com/SergeiKhy/link-tracker/internal/middleware"
	"github.com/SergeiKhy/link-tracker/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(
	linkService service.LinkService,
	recorder service.ClickRecorder,
	analytics service.AnalyticsService,
	rateLimiter *middleware.RateLimiter,
	apiKeyMiddleware gin.HandlerFunc,
	healthChecks map[string]HealthCheck,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// Rate limiting для всех запросов
	if rateLimiter != nil {
		router.Use(rateLimiter.Middleware())
	}

	linkHandler := NewLinkHandler(linkService, recorder, logger)
	analyticsHandler := NewAnalyticsHandler(analytics, logger)

	// Защищённые маршруты получают владельца из API ключа
	owned := []gin.HandlerFunc{}
	if apiKeyMiddleware != nil {
		owned = append(owned, apiKeyMiddleware)
	}

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthHandler(healthChecks))

		links := v1.Group("/links", owned...)
		links.POST("", linkHandler.CreateLink)
		links.GET("", linkHandler.ListLinks)
		links.GET("/summary", analyticsHandler.Dashboard)
		links.GET("/:code", linkHandler.GetLink)
		links.DELETE("/:code", linkHandler.DeleteLink)
		links.GET("/:code/stats", analyticsHandler.GetStats)
		links.POST("/:code/variables", linkHandler.AddVariable)
		links.DELETE("/:code/variables/:id", linkHandler.DeleteVariable)
	}

	reports := router.Group("/analytics", owned...)
	{
		reports.GET("/:code", analyticsHandler.Summary)
		reports.GET("/:code/export", analyticsHandler.Export)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Редирект - без API key проверки
	router.GET("/tracker/:code", linkHandler.Redirect)
	router.GET("/:code", linkHandler.Redirect)

	return router
}
