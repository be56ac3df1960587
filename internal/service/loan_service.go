package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/fund-ledger/internal/domain"
	"github.com/segyhp/fund-ledger/internal/logger"
	"github.com/segyhp/fund-ledger/internal/policy"
	"github.com/segyhp/fund-ledger/internal/repository"
	customError "github.com/segyhp/fund-ledger/pkg/errors"
	"github.com/segyhp/fund-ledger/pkg/utils"
)

// LoanService drives the inter-fund loan lifecycle. Money only moves through the ledger.
type LoanService struct {
	store  repository.Store
	ledger *LedgerService
	policy policy.ApprovalPolicy
	log    *slog.Logger
}

func NewLoanService(store repository.Store, ledger *LedgerService, approval policy.ApprovalPolicy) *LoanService {
	return &LoanService{
		store:  store,
		ledger: ledger,
		policy: approval,
		log:    logger.WithService("loans"),
	}
}

func (s *LoanService) now() time.Time {
	return s.ledger.now()
}

// RequestLoan creates a PENDING loan. Every violated constraint is reported together.
func (s *LoanService) RequestLoan(ctx context.Context, actor domain.Actor, req *domain.LoanRequest) (*domain.LoanView, error) {
	if !actor.CanOperate() {
		return nil, customError.WrapForbidden(actor.ID, "request loans")
	}

	now := s.now()
	reason := strings.TrimSpace(req.Reason)

	var v customError.Violations
	v.Addf(req.LenderFundID == "" || req.BorrowerFundID == "", "lender and borrower funds are required")
	v.Addf(req.LenderFundID != "" && req.LenderFundID == req.BorrowerFundID, "lender and borrower funds must differ")
	v.Addf(!req.Amount.IsPositive(), "amount must be greater than 0")
	v.Addf(!utils.IsWholeCents(req.Amount), "amount must not have more than 2 decimal places")
	v.Addf(!s.policy.ReasonAllowed(reason), "reason must be at least %d characters", s.policy.MinReasonLength)
	if !s.policy.DueDateAllowed(now, req.DueDate) {
		earliest, latest := s.policy.DueDateWindow(now)
		v.Addf(true, "due date must be between %s and %s", earliest.Format(time.DateOnly), latest.Format(time.DateOnly))
	}

	var lender, borrower *domain.Fund
	if req.LenderFundID != "" {
		f, err := s.loanParty(ctx, &v, "lender", req.LenderFundID)
		if err != nil {
			return nil, err
		}
		lender = f
	}
	if req.BorrowerFundID != "" && req.BorrowerFundID != req.LenderFundID {
		f, err := s.loanParty(ctx, &v, "borrower", req.BorrowerFundID)
		if err != nil {
			return nil, err
		}
		borrower = f
	}

	if lender != nil {
		v.Addf(!lender.IsActive, "lender fund %s is inactive", lender.Code)
		if req.Amount.IsPositive() {
			maxAmount := s.policy.MaxLoanAmount(lender)
			v.Addf(req.Amount.GreaterThan(maxAmount),
				"amount %s exceeds lending cap %s (%s of lender balance %s)",
				req.Amount.StringFixed(2), maxAmount.StringFixed(2),
				s.policy.LendingCapRatio.String(), lender.CurrentBalance.StringFixed(2))
			v.Addf(req.Amount.GreaterThan(lender.CurrentBalance),
				"lender balance %s is below requested amount %s",
				lender.CurrentBalance.StringFixed(2), req.Amount.StringFixed(2))
		}
	}
	if borrower != nil {
		v.Addf(!borrower.IsActive, "borrower fund %s is inactive", borrower.Code)
	}

	if err := v.Err("loan request"); err != nil {
		s.log.WarnContext(ctx, "loan request rejected", "lender_fund_id", req.LenderFundID, "error", err.Error())
		return nil, err
	}

	loan := &domain.FundLoan{
		ID:             uuid.New().String(),
		LenderFundID:   req.LenderFundID,
		BorrowerFundID: req.BorrowerFundID,
		Amount:         req.Amount,
		Reason:         reason,
		RequestedAt:    now,
		DueDate:        req.DueDate,
		Status:         domain.LoanStatusPending,
		RequestedBy:    actor.ID,
		TotalRepaid:    decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		return tx.Loans().Create(ctx, loan)
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.log.InfoContext(ctx, "loan requested",
		"loan_id", loan.ID, "lender_fund_id", loan.LenderFundID, "borrower_fund_id", loan.BorrowerFundID,
		"amount", loan.Amount.String())
	return s.view(loan), nil
}


// loanParty loads one side of a loan request. An unknown fund is recorded in v instead of returned.
func (s *LoanService) loanParty(ctx context.Context, v *customError.Violations, role, id string) (*domain.Fund, error) {
	f, err := s.store.Funds().GetByID(ctx, id)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, customError.ErrNotFound):
		v.Addf(true, "%s fund %s not found", role, id)
		return nil, nil
	default:
		return nil, storageError(err)
	}
}
// ApproveLoan moves a PENDING loan to APPROVED. Amounts at or above the threshold need an elevated role.
func (s *LoanService) ApproveLoan(ctx context.Context, actor domain.Actor, id string, req *domain.ApproveLoanRequest) (*domain.LoanView, error) {
	loan, err := s.transition(ctx, id, domain.LoanStatusApproved, func(loan *domain.FundLoan, at time.Time) error {
		if !s.policy.CanApprove(actor, loan.Amount) {
			return customError.WrapForbidden(actor.ID, "approve loan "+loan.ID+" of "+loan.Amount.StringFixed(2))
		}
		approver := actor.ID
		loan.ApprovedBy = &approver
		loan.ApprovedAt = &at
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			loan.ApprovalNotes = &notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "loan approved", "loan_id", id, "approver", actor.ID)
	return s.view(loan), nil
}

// RejectLoan moves a PENDING loan to REJECTED.
func (s *LoanService) RejectLoan(ctx context.Context, actor domain.Actor, id, reason string) (*domain.LoanView, error) {
	reason = strings.TrimSpace(reason)
	if !actor.CanOperate() {
		return nil, customError.WrapForbidden(actor.ID, "reject loans")
	}
	if reason == "" {
		return nil, customError.WrapValidation("loan rejection", "reason is required")
	}

	loan, err := s.transition(ctx, id, domain.LoanStatusRejected, func(loan *domain.FundLoan, _ time.Time) error {
		loan.RejectionReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "loan rejected", "loan_id", id, "actor", actor.ID)
	return s.view(loan), nil
}

// CancelLoan moves a PENDING or APPROVED loan to CANCELLED. Disbursed loans must be repaid instead.
func (s *LoanService) CancelLoan(ctx context.Context, actor domain.Actor, id, reason string) (*domain.LoanView, error) {
	reason = strings.TrimSpace(reason)
	if !actor.CanOperate() {
		return nil, customError.WrapForbidden(actor.ID, "cancel loans")
	}
	if reason == "" {
		return nil, customError.WrapValidation("loan cancellation", "reason is required")
	}

	loan, err := s.transition(ctx, id, domain.LoanStatusCancelled, func(loan *domain.FundLoan, _ time.Time) error {
		loan.CancellationReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "loan cancelled", "loan_id", id, "actor", actor.ID)
	return s.view(loan), nil
}

// transition applies a status change that moves no money.
func (s *LoanService) transition(ctx context.Context, id string, next domain.LoanStatus, mutate func(loan *domain.FundLoan, at time.Time) error) (*domain.FundLoan, error) {
	var loan *domain.FundLoan
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		loan, err = tx.Loans().GetForUpdate(ctx, id)
		if err != nil {
			return storageError(err)
		}

		at := s.now()
		if err := loan.TransitionTo(next, at); err != nil {
			return err
		}
		if err := mutate(loan, at); err != nil {
			return err
		}
		return storageError(tx.Loans().Update(ctx, loan))
	})
	if err != nil {
		s.log.WarnContext(ctx, "loan transition rejected", "loan_id", id, "to", next, "code", customError.CodeOf(err))
		return nil, storageError(err)
	}
	return loan, nil
}

// DisburseLoan moves an APPROVED loan to DISBURSED and the principal from lender to borrower in one step.
// The lender balance is checked again under the fund lock; on shortfall nothing changes.
func (s *LoanService) DisburseLoan(ctx context.Context, actor domain.Actor, id string) (*domain.LoanView, error) {
	if !actor.CanOperate() {
		return nil, customError.WrapForbidden(actor.ID, "disburse loans")
	}

	current, err := s.store.Loans().GetByID(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}

	var loan *domain.FundLoan
	err = s.ledger.inLedgerTx(ctx, actor, []string{current.LenderFundID, current.BorrowerFundID}, func(l *ledgerTx) error {
		var err error
		loan, err = l.tx.Loans().GetForUpdate(ctx, id)
		if err != nil {
			return storageError(err)
		}
		if err := loan.TransitionTo(domain.LoanStatusDisbursed, l.at); err != nil {
			return err
		}
		if err := l.requireActive(loan.LenderFundID, loan.BorrowerFundID); err != nil {
			return err
		}

		_, _, err = l.transfer(ctx, loan.LenderFundID, loan.BorrowerFundID, loan.Amount,
			domain.KindLoanDisbursement, domain.Reference{Type: domain.RefLoan, ID: loan.ID},
			"Loan disbursement: "+loan.Reason)
		if err != nil {
			return err
		}

		at := l.at
		loan.DisbursedAt = &at
		return storageError(l.tx.Loans().Update(ctx, loan))
	})
	if err != nil {
		s.log.WarnContext(ctx, "loan disbursement rejected", "loan_id", id, "code", customError.CodeOf(err))
		return nil, err
	}

	s.log.InfoContext(ctx, "loan disbursed",
		"loan_id", id, "lender_fund_id", loan.LenderFundID, "borrower_fund_id", loan.BorrowerFundID,
		"amount", loan.Amount.String())
	return s.view(loan), nil
}

// RecordLoanPayment credits the lender with a repayment. The loan becomes FULLY_REPAID when nothing is pending.
func (s *LoanService) RecordLoanPayment(ctx context.Context, actor domain.Actor, id string, amount decimal.Decimal) (*domain.LoanView, error) {
	if !actor.CanOperate() {
		return nil, customError.WrapForbidden(actor.ID, "record loan payments")
	}

	current, err := s.store.Loans().GetByID(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}

	var loan *domain.FundLoan
	err = s.ledger.inLedgerTx(ctx, actor, []string{current.LenderFundID}, func(l *ledgerTx) error {
		var err error
		loan, err = l.tx.Loans().GetForUpdate(ctx, id)
		if err != nil {
			return storageError(err)
		}

		if loan.Status != domain.LoanStatusDisbursed && loan.Status != domain.LoanStatusRepaying {
			return customError.WrapInvalidTransition(loan.ID, string(loan.Status), string(domain.LoanStatusRepaying))
		}

		pending := loan.PendingAmount()
		var v customError.Violations
		v.Addf(!amount.IsPositive(), "amount must be greater than 0")
		v.Addf(!utils.IsWholeCents(amount), "amount must not have more than 2 decimal places")
		v.Addf(amount.GreaterThan(pending), "amount %s exceeds pending amount %s", amount.StringFixed(2), pending.StringFixed(2))
		if err := v.Err("loan payment"); err != nil {
			return err
		}

		next := domain.LoanStatusRepaying
		if amount.Equal(pending) {
			next = domain.LoanStatusFullyRepaid
		}
		if err := loan.TransitionTo(next, l.at); err != nil {
			return err
		}

		entry, err := l.applyEntry(ctx, domain.Posting{
			FundID:             loan.LenderFundID,
			Direction:          domain.Credit,
			Amount:             amount,
			Kind:               domain.KindLoanRepayment,
			CounterpartyFundID: loan.BorrowerFundID,
			Reference:          domain.Reference{Type: domain.RefLoan, ID: loan.ID},
			Description:        "Loan repayment",
		})
		if err != nil {
			return err
		}

		payment := &domain.LoanPayment{
			ID:         uuid.New().String(),
			LoanID:     loan.ID,
			Amount:     amount,
			PaidAt:     l.at,
			RecordedBy: actor.ID,
			EntryID:    entry.ID,
		}
		if err := l.tx.LoanPayments().Create(ctx, payment); err != nil {
			return storageError(err)
		}

		loan.TotalRepaid = loan.TotalRepaid.Add(amount)
		return storageError(l.tx.Loans().Update(ctx, loan))
	})
	if err != nil {
		s.log.WarnContext(ctx, "loan payment rejected", "loan_id", id, "code", customError.CodeOf(err))
		return nil, err
	}

	s.log.InfoContext(ctx, "loan payment recorded",
		"loan_id", id, "amount", amount.String(), "pending", loan.PendingAmount().String(), "status", loan.Status)
	return s.view(loan), nil
}

func (s *LoanService) GetLoan(ctx context.Context, id string) (*domain.LoanView, error) {
	loan, err := s.store.Loans().GetByID(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	return s.view(loan), nil
}

// ListLoans filters on stored fields in the repository and on the overdue condition here, against now.
func (s *LoanService) ListLoans(ctx context.Context, filter domain.LoanFilter) ([]domain.LoanView, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, customError.WrapValidation("loan filter", "unknown status "+string(filter.Status))
	}

	loans, err := s.store.Loans().List(ctx, filter)
	if err != nil {
		return nil, storageError(err)
	}

	now := s.now()
	views := make([]domain.LoanView, 0, len(loans))
	for _, loan := range loans {
		view := loan.View(now)
		if filter.OverdueOnly && !view.IsOverdue {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

// ListOverdueLoans is the read-only overdue query. It never changes a loan.
func (s *LoanService) ListOverdueLoans(ctx context.Context) ([]domain.LoanView, error) {
	return s.ListLoans(ctx, domain.LoanFilter{OverdueOnly: true})
}

func (s *LoanService) ListLoanPayments(ctx context.Context, loanID string) ([]*domain.LoanPayment, error) {
	if _, err := s.store.Loans().GetByID(ctx, loanID); err != nil {
		return nil, storageError(err)
	}

	payments, err := s.store.LoanPayments().ListByLoan(ctx, loanID)
	if err != nil {
		return nil, storageError(err)
	}
	return payments, nil
}

// LoanStatistics aggregates counts and amounts by status, optionally for one fund.
func (s *LoanService) LoanStatistics(ctx context.Context, fundID string) (*domain.LoanStatistics, error) {
	if fundID != "" {
		if _, err := s.store.Funds().GetByID(ctx, fundID); err != nil {
			return nil, storageError(err)
		}
	}

	loans, err := s.store.Loans().List(ctx, domain.LoanFilter{FundID: fundID})
	if err != nil {
		return nil, storageError(err)
	}

	now := s.now()
	stats := &domain.LoanStatistics{
		FundID:   fundID,
		ByStatus: make(map[domain.LoanStatus]domain.StatusTotals, len(domain.AllLoanStatuses)),
	}
	for _, status := range domain.AllLoanStatuses {
		stats.ByStatus[status] = domain.StatusTotals{Amount: decimal.Zero}
	}

	for _, loan := range loans {
		bucket := stats.ByStatus[loan.Status]
		bucket.Count++
		bucket.Amount = bucket.Amount.Add(loan.Amount)
		stats.ByStatus[loan.Status] = bucket

		stats.Total.Count++
		stats.Total.Amount = stats.Total.Amount.Add(loan.Amount)
		stats.TotalRepaid = stats.TotalRepaid.Add(loan.TotalRepaid)

		if loan.IsOverdue(now) {
			stats.Overdue.Count++
			stats.Overdue.Amount = stats.Overdue.Amount.Add(loan.PendingAmount())
		}

		disbursed := loan.Status == domain.LoanStatusDisbursed ||
			loan.Status == domain.LoanStatusRepaying ||
			loan.Status == domain.LoanStatusFullyRepaid
		if !disbursed {
			continue
		}
		if loan.Status != domain.LoanStatusFullyRepaid {
			stats.Outstanding = stats.Outstanding.Add(loan.PendingAmount())
		}
		if fundID != "" && loan.LenderFundID == fundID {
			stats.AmountLent = stats.AmountLent.Add(loan.Amount)
		}
		if fundID != "" && loan.BorrowerFundID == fundID {
			stats.AmountBorrowed = stats.AmountBorrowed.Add(loan.Amount)
		}
	}

	return stats, nil
}

func (s *LoanService) view(loan *domain.FundLoan) *domain.LoanView {
	v := loan.View(s.now())
	return &v
}
