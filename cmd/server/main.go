package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/segyhp/fund-ledger/internal/config"
	"github.com/segyhp/fund-ledger/internal/handler"
	"github.com/segyhp/fund-ledger/internal/idempotency"
	"github.com/segyhp/fund-ledger/internal/lock"
	"github.com/segyhp/fund-ledger/internal/logger"
	"github.com/segyhp/fund-ledger/internal/policy"
	"github.com/segyhp/fund-ledger/internal/repository"
	"github.com/segyhp/fund-ledger/internal/service"
	"github.com/segyhp/fund-ledger/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("Running database migrations", "source", cfg.Database.MigrationsPath)
	applied, err := repository.Migrate(cfg.Database.DSN(), cfg.Database.MigrationsPath)
	if err != nil {
		logger.Error("Failed to apply migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("Database schema ready", "applied", applied)

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize Redis
	redisClient := initRedis(cfg)
	defer redisClient.Close()

	store := repository.NewStore(db)
	approval := policy.FromConfig(cfg)

	ledgerService := service.NewLedgerService(store, lock.NewFundLocker())
	loanService := service.NewLoanService(store, ledgerService, approval)
	allocator := service.NewAllocatorService(ledgerService, approval.AllocationTolerance,
		idempotency.NewRedisGuard(redisClient, cfg.Redis.ClaimTTL))

	ledgerHandler := handler.NewLedgerHandler(ledgerService, loanService, allocator)
	healthHandler := handler.NewHealthHandler(db, redisClient, cfg.GetHealthTimeout())

	router := setupRoutes(ledgerHandler, healthHandler)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      response.CORSMiddleware(response.LoggingMiddleware(logger.WithService("http"))(router)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server starting", "addr", server.Addr, "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}

	logger.Info("Server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(ledgerHandler *handler.LedgerHandler, healthHandler *handler.HealthHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	ledgerHandler.RegisterRoutes(api)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "route not found")
	})

	return router
}
