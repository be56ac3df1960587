package jobs

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/segyhp/fund-ledger/internal/domain"
	"github.com/segyhp/fund-ledger/internal/logger"
)

// OverdueLister reports loans that are past due at call time.
type OverdueLister interface {
	ListOverdueLoans(ctx context.Context) ([]domain.LoanView, error)
}

// Reconciler compares cached balances to the ledger fold.
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]*domain.Reconciliation, error)
}

// Runner executes the periodic read-only jobs. None of them change loans or balances.
type Runner struct {
	loans   OverdueLister
	ledger  Reconciler
	timeout time.Duration
}

// SweepResult summarizes one overdue sweep.
type SweepResult struct {
	Overdue     int
	Outstanding decimal.Decimal
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Funds      int
	Imbalanced []string
}

func NewRunner(loans OverdueLister, ledger Reconciler, timeout time.Duration) *Runner {
	return &Runner{
		loans:   loans,
		ledger:  ledger,
		timeout: timeout,
	}
}

// runWithRecovery bounds a job by the runner timeout and keeps a panic from killing the scheduler.
func (r *Runner) runWithRecovery(name string, job func(ctx context.Context) error) {
	log := logger.WithJob(name)
	defer func() {
		if p := recover(); p != nil {
			log.Error("Job panicked", "panic", p)
		}
	}()

	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	log.Info("Starting job")
	if err := job(ctx); err != nil {
		log.Error("Job failed", "error", err, "duration", time.Since(start).String())
		return
	}
	log.Info("Job completed", "duration", time.Since(start).String())
}

// SweepOverdueLoans logs every loan that is currently overdue.
func (r *Runner) SweepOverdueLoans() {
	r.runWithRecovery("overdue_sweep", func(ctx context.Context) error {
		_, err := r.sweep(ctx)
		return err
	})
}

func (r *Runner) sweep(ctx context.Context) (*SweepResult, error) {
	loans, err := r.loans.ListOverdueLoans(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.WithJob("overdue_sweep")
	result := &SweepResult{Outstanding: decimal.Zero}
	for _, loan := range loans {
		result.Overdue++
		result.Outstanding = result.Outstanding.Add(loan.PendingAmount)
		log.WarnContext(ctx, "Loan overdue",
			"loan_id", loan.ID,
			"lender_fund_id", loan.LenderFundID,
			"borrower_fund_id", loan.BorrowerFundID,
			"due_date", loan.DueDate.Format(time.DateOnly),
			"pending_amount", loan.PendingAmount.StringFixed(2))
	}

	log.InfoContext(ctx, "Overdue sweep finished",
		"overdue", result.Overdue, "outstanding", result.Outstanding.StringFixed(2))
	return result, nil
}

// ReconcileFunds checks every fund's cached balance against its entries.
func (r *Runner) ReconcileFunds() {
	r.runWithRecovery("reconciliation", func(ctx context.Context) error {
		_, err := r.reconcile(ctx)
		return err
	})
}

func (r *Runner) reconcile(ctx context.Context) (*ReconcileResult, error) {
	results, err := r.ledger.ReconcileAll(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.WithJob("reconciliation")
	out := &ReconcileResult{Funds: len(results)}
	for _, rec := range results {
		if rec.Balanced {
			continue
		}
		out.Imbalanced = append(out.Imbalanced, rec.FundID)
		log.ErrorContext(ctx, "Fund balance does not match ledger",
			"fund_id", rec.FundID,
			"cached_balance", rec.CachedBalance.StringFixed(2),
			"ledger_balance", rec.LedgerBalance.StringFixed(2),
			"difference", rec.Difference.StringFixed(2))
	}

	log.InfoContext(ctx, "Reconciliation finished", "funds", out.Funds, "imbalanced", len(out.Imbalanced))
	return out, nil
}

// RunAll runs every job once, for manual execution.
func (r *Runner) RunAll() {
	r.SweepOverdueLoans()
	r.ReconcileFunds()
}
