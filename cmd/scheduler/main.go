package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/segyhp/fund-ledger/internal/config"
	"github.com/segyhp/fund-ledger/internal/jobs"
	"github.com/segyhp/fund-ledger/internal/lock"
	"github.com/segyhp/fund-ledger/internal/logger"
	"github.com/segyhp/fund-ledger/internal/policy"
	"github.com/segyhp/fund-ledger/internal/repository"
	"github.com/segyhp/fund-ledger/internal/service"
)

const jobTimeout = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting fund ledger scheduler")

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	// Jobs only read, so the in-process locker is never contended here.
	store := repository.NewStore(db)
	ledgerService := service.NewLedgerService(store, lock.NewFundLocker())
	loanService := service.NewLoanService(store, ledgerService, policy.FromConfig(cfg))

	runner := jobs.NewRunner(loanService, ledgerService, jobTimeout)

	if len(os.Args) > 1 && os.Args[1] == "run-once" {
		runner.RunAll()
		return
	}

	scheduler, err := jobs.NewScheduler(runner, cfg.Scheduler, cfg.GetSchedulerLocation())
	if err != nil {
		logger.Error("Failed to schedule jobs", "error", err)
		os.Exit(1)
	}

	scheduler.Start()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler")
	select {
	case <-scheduler.Stop().Done():
	case <-time.After(jobTimeout):
		logger.Warn("Scheduler stopped with jobs still running")
	}
	logger.Info("Scheduler stopped")
}
