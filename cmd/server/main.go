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

	"go.uber.org/zap"

	"github.com/nekogravitycat/lesson-booking-backend/internal/app"
	"github.com/nekogravitycat/lesson-booking-backend/internal/config"
	"github.com/nekogravitycat/lesson-booking-backend/internal/db"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
)

func main() {
	// For receiving Ctrl+C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.IsProduction)
	defer func() { _ = logger.Sync() }()

	// Connect DB
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		version, err := db.Migrate(ctx, pool)
		if err != nil {
			logger.Fatal("failed to migrate db", zap.Error(err))
		}
		logger.Info("database migrated", zap.Int64("version", version))
	}

	container := app.NewContainer(ctx, app.Config{
		IsProduction:         cfg.IsProduction,
		ProdOrigins:          cfg.ProdOrigins,
		DBPool:               pool,
		JWTSecret:            cfg.JWTSecret,
		JWTTTL:               cfg.JWTAccessTokenTTL,
		BcryptCost:           cfg.BcryptCost,
		RateLimitPerSec:      cfg.RateLimitPerSec,
		RateLimitBurst:       cfg.RateLimitBurst,
		Scheduling:           cfg.Scheduling,
		AvailabilityCacheTTL: cfg.AvailabilityCacheTTL,
		RedisAddr:            cfg.RedisAddr,
		RedisPassword:        cfg.RedisPassword,
		RedisDB:              cfg.RedisDB,
		AMQPURL:              cfg.AMQPURL,
		Logger:               logger,
	})
	defer container.Close()

	// Seed the product catalog
	if cfg.CatalogPath != "" {
		products, err := product.LoadCatalogFile(cfg.CatalogPath)
		if err != nil {
			logger.Fatal("failed to load catalog", zap.String("path", cfg.CatalogPath), zap.Error(err))
		}
		if err := container.ProductService.Seed(ctx, products); err != nil {
			logger.Fatal("failed to seed catalog", zap.Error(err))
		}
		logger.Info("catalog seeded", zap.Int("products", len(products)))
	}

	// Use http.Server for graceful shutdown
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           container.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in separate goroutine
	go func() {
		logger.Info("server running", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for Ctrl+C
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Create a shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}
