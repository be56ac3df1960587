package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/segyhp/fund-ledger/internal/config"
	"github.com/segyhp/fund-ledger/internal/logger"
)

// Scheduler runs the Runner's jobs on cron specs.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
}

// NewScheduler registers every job. Specs use six fields (seconds first) or descriptors like @daily.
func NewScheduler(runner *Runner, cfg config.SchedulerConfig, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		runner: runner,
	}

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"overdue_sweep", cfg.OverdueSweep, runner.SweepOverdueLoans},
		{"reconciliation", cfg.Reconciliation, runner.ReconcileFunds},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return nil, fmt.Errorf("register %s job: %w", j.name, err)
		}
		logger.Info("Registered job", "job", j.name, "spec", j.spec, "location", loc.String())
	}

	return s, nil
}

// Entries returns how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Scheduler started")
}

// Stop prevents new runs and returns a context that is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	logger.Info("Scheduler stopping")
	return s.cron.Stop()
}
