package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/link-tracker/internal/config"
	"github.com/SergeiKhy/link-tracker/internal/enrichment"
	"github.com/SergeiKhy/link-tracker/internal/handler"
	"github.com/SergeiKhy/link-tracker/internal/logger"
	"github.com/SergeiKhy/link-tracker/internal/middleware"
	"github.com/SergeiKhy/link-tracker/internal/repository"
	"github.com/SergeiKhy/link-tracker/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	zapLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	gin.SetMode(gin.ReleaseMode)
	ctx := context.Background()

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(ctx, cfg.DB)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	zapLogger.Info("Connected to PostgreSQL")

	if err := repository.Migrate(ctx, db); err != nil {
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Подключение к Redis (общий бюджет удалённых geo-запросов)
	redis, err := repository.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	zapLogger.Info("Connected to Redis")

	// Инициализация репозиториев
	linkRepo := repository.NewLinkRepository(db)
	variableRepo := repository.NewVariableRepository(db)
	clickRepo := repository.NewClickRepository(db)
	quotaRepo := repository.NewQuotaRepository(redis)

	// Обогащение кликов
	countryReader, err := enrichment.OpenCountryDB(cfg.GeoIP.DBPath, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open GeoIP database", zap.Error(err))
	}
	var countryDB enrichment.CountryDB
	if countryReader != nil {
		countryDB = countryReader
		defer countryReader.Close()
	}

	var remote enrichment.CountryLookup
	if cfg.GeoIP.FallbackURL != "" {
		remote = enrichment.NewRemoteLookup(
			cfg.GeoIP.FallbackURL,
			quotaRepo,
			cfg.GeoIP.FallbackPerMin,
			&http.Client{Timeout: cfg.GeoIP.FallbackTimeout},
		)
	}
	geo := enrichment.NewGeoResolver(countryDB, remote, cfg.GeoIP.FallbackTimeout, zapLogger)
	devices := enrichment.NewDeviceClassifier()

	// Инициализация сервисов
	linkService := service.NewLinkService(linkRepo, variableRepo, cfg.ShortID, cfg.App.BaseURL, zapLogger)
	recorder := service.NewClickRecorder(linkRepo, variableRepo, clickRepo, devices, geo, zapLogger)
	analytics := service.NewAnalyticsService(linkRepo, variableRepo, clickRepo, cfg.Analytics, zapLogger)

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Stop()

	var apiKeyMiddleware gin.HandlerFunc
	if len(cfg.Auth.APIKeys) > 0 {
		apiKeyMiddleware = middleware.RequireAPIKey(cfg.Auth.APIKeys)
		zapLogger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	} else {
		zapLogger.Warn("API keys not configured, all links share the anonymous owner")
	}

	healthChecks := map[string]handler.HealthCheck{
		"postgres": db.Pool.Ping,
		"redis": func(ctx context.Context) error {
			return redis.Client.Ping(ctx).Err()
		},
	}

	// Настройка роутера
	router := handler.NewRouter(linkService, recorder, analytics, rateLimiter, apiKeyMiddleware, healthChecks, zapLogger)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("Server starting", zap.String("port", cfg.App.Port), zap.String("base_url", cfg.App.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}
