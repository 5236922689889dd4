package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/erp/subledger/internal/application/subledger"
	"github.com/erp/subledger/internal/infrastructure/auth"
	"github.com/erp/subledger/internal/infrastructure/config"
	"github.com/erp/subledger/internal/infrastructure/logger"
	"github.com/erp/subledger/internal/infrastructure/persistence"
	"github.com/erp/subledger/internal/infrastructure/telemetry"
	"github.com/erp/subledger/internal/interfaces/http/handler"
	"github.com/erp/subledger/internal/interfaces/http/middleware"
	"github.com/erp/subledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting subledger engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize tracing
	ctx := context.Background()
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	if cfg.Telemetry.Enabled {
		if err := db.EnableTracing(); err != nil {
			log.Fatal("Failed to enable database tracing", zap.Error(err))
		}
	}

	// Initialize repositories and stores
	openItemRepo := persistence.NewGormOpenItemRepository(db.DB)
	receiptRepo := persistence.NewGormReceiptRepository(db.DB)
	allocationRepo := persistence.NewGormAllocationRepository(db.DB)
	journalLineRepo := persistence.NewGormJournalLineRepository(db.DB)
	statementStore := persistence.NewGormStatementStore(db.DB)
	ruleStore := persistence.NewGormMatchingRuleStore(db.DB)
	txManager := persistence.NewGormTransactionManager(db.DB)

	// Initialize application services
	agingService := app.NewAgingService(openItemRepo)
	openItemService := app.NewOpenItemService(openItemRepo, allocationRepo)
	cashService := app.NewCashApplicationService(receiptRepo, txManager, cfg.Clearing.MaxOpenItemsPerApplication)
	dunningService := app.NewDunningService(openItemRepo)
	reconService := app.NewReconciliationService(statementStore, ruleStore, journalLineRepo, txManager, cfg.Clearing.DateWindowDays)
	writeOffService := app.NewWriteOffService(txManager)

	// Initialize authentication
	jwtService := auth.NewJWTService(cfg.JWT)

	// Initialize handlers
	agingHandler := handler.NewAgingHandler(agingService)
	openItemHandler := handler.NewOpenItemHandler(openItemService)
	cashHandler := handler.NewCashApplicationHandler(cashService)
	dunningHandler := handler.NewDunningHandler(dunningService)
	reconHandler := handler.NewReconciliationHandler(reconService)
	writeOffHandler := handler.NewWriteOffHandler(writeOffService)

	// Setup Gin
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))

	// Health check endpoint (outside API versioning and authentication)
	engine.GET("/health", healthHandler(db, log))

	// JWT authentication for API routes
	jwtConfig := middleware.JWTConfig{
		JWTService: jwtService,
		SkipPaths:  []string{"/health"},
		Logger:     log,
	}
	engine.Use(middleware.JWTAuthWithConfig(jwtConfig))

	// Register API routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(agingHandler).
		Register(openItemHandler).
		Register(cashHandler).
		Register(dunningHandler).
		Register(reconHandler).
		Register(writeOffHandler)
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			log.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
