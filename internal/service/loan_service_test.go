package service

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/fund-ledger/internal/domain"
	customError "github.com/segyhp/fund-ledger/pkg/errors"
)

func (f *fixture) requestLoan(t *testing.T, lender, borrower string, amt int64) *domain.LoanView {
	t.Helper()
	loan, err := f.loans.RequestLoan(t.Context(), operator, &domain.LoanRequest{
		LenderFundID:   lender,
		BorrowerFundID: borrower,
		Amount:         amount(amt),
		Reason:         "field trip supplies",
		DueDate:        f.now.AddDate(0, 0, 30),
	})
	require.NoError(t, err)
	return loan
}

func (f *fixture) disbursedLoan(t *testing.T, lender, borrower string, amt int64) *domain.LoanView {
	t.Helper()
	loan := f.requestLoan(t, lender, borrower, amt)
	_, err := f.loans.ApproveLoan(t.Context(), director, loan.ID, &domain.ApproveLoanRequest{})
	require.NoError(t, err)
	disbursed, err := f.loans.DisburseLoan(t.Context(), operator, loan.ID)
	require.NoError(t, err)
	return disbursed
}

func TestLoanService_ExampleScenario(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 1000000)
	b := f.seedFund("B", 50000)

	loan := f.requestLoan(t, a, b, 200000)
	assert.Equal(t, domain.LoanStatusPending, loan.Status)
	assert.True(t, f.balance(t, a).Equal(amount(1000000)))

	approved, err := f.loans.ApproveLoan(t.Context(), operator, loan.ID, &domain.ApproveLoanRequest{Notes: "ok for the trip"})
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, operator.ID, *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovalNotes)

	disbursed, err := f.loans.DisburseLoan(t.Context(), operator, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusDisbursed, disbursed.Status)
	assert.True(t, f.balance(t, a).Equal(amount(800000)))
	assert.True(t, f.balance(t, b).Equal(amount(250000)))

	repaying, err := f.loans.RecordLoanPayment(t.Context(), operator, loan.ID, amount(50000))
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusRepaying, repaying.Status)
	assert.True(t, repaying.PendingAmount.Equal(amount(150000)))
	assert.True(t, f.balance(t, a).Equal(amount(850000)))

	repaid, err := f.loans.RecordLoanPayment(t.Context(), operator, loan.ID, amount(150000))
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusFullyRepaid, repaid.Status)
	assert.True(t, repaid.PendingAmount.IsZero())
	assert.NotNil(t, repaid.ArchivedAt)

	payments, err := f.loans.ListLoanPayments(t.Context(), loan.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, payments[0].Amount.Equal(amount(50000)))
	assert.NotEmpty(t, payments[1].EntryID)

	_, err = f.loans.RecordLoanPayment(t.Context(), operator, loan.ID, amount(1))
	assert.True(t, errors.Is(err, customError.ErrInvalidTransition))

	f.requireBalanced(t)
}

func TestLoanService_RequestExceedingCap(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 1000000)
	b := f.seedFund("B", 0)

	_, err := f.loans.RequestLoan(t.Context(), operator, &domain.LoanRequest{
		LenderFundID:   a,
		BorrowerFundID: b,
		Amount:         amount(300001),
		Reason:         "field trip supplies",
		DueDate:        f.now.AddDate(0, 0, 30),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, customError.ErrValidation))
	assert.Contains(t, err.Error(), "lending cap 300000.00")
	assert.Empty(t, f.store.AllLoans())
}

func TestLoanService_RequestListsEveryViolation(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 100)

	_, err := f.loans.RequestLoan(t.Context(), operator, &domain.LoanRequest{
		LenderFundID:   a,
		BorrowerFundID: a,
		Amount:         amount(500),
		Reason:         "short",
		DueDate:        f.now.AddDate(0, 0, -1),
	})
	require.Error(t, err)

	var be *customError.BusinessError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, customError.ErrCodeValidation, be.Code)
	assert.Len(t, be.Details, 5)
	assert.Contains(t, err.Error(), "must differ")
	assert.Contains(t, err.Error(), "at least 10 characters")
	assert.Contains(t, err.Error(), "due date")
	assert.Contains(t, err.Error(), "lending cap")
	assert.Contains(t, err.Error(), "below requested amount")
	assert.Empty(t, f.store.AllLoans())
}

func TestLoanService_RequestUnknownFundsAreViolations(t *testing.T) {
	f := newFixture(t)
	b := f.seedFund("B", 0)

	_, err := f.loans.RequestLoan(t.Context(), operator, &domain.LoanRequest{
		LenderFundID:   "fund-ghost",
		BorrowerFundID: "fund-phantom",
		Amount:         decimal.RequireFromString("100.005"),
		Reason:         "short",
		DueDate:        f.now.AddDate(0, 0, 30),
	})
	require.Error(t, err)

	var be *customError.BusinessError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, customError.ErrCodeValidation, be.Code)
	assert.False(t, errors.Is(err, customError.ErrNotFound))
	assert.ElementsMatch(t, []string{
		"amount must not have more than 2 decimal places",
		"reason must be at least 10 characters",
		"lender fund fund-ghost not found",
		"borrower fund fund-phantom not found",
	}, be.Details)

	_, err = f.loans.RequestLoan(t.Context(), operator, &domain.LoanRequest{
		LenderFundID:   "fund-ghost",
		BorrowerFundID: b,
		Amount:         amount(100),
		Reason:         "field trip supplies",
		DueDate:        f.now.AddDate(0, 0, 30),
	})
	require.True(t, errors.As(err, &be))
	assert.Equal(t, []string{"lender fund fund-ghost not found"}, be.Details)
	assert.Empty(t, f.store.AllLoans())
}

func TestLoanService_RequestDueDateBounds(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 1000000)
	b := f.seedFund("B", 0)

	tests := []struct {
		name    string
		due     time.Time
		allowed bool
	}{
		{"same day", f.now.Add(2 * time.Hour), false},
		{"next day", f.now.AddDate(0, 0, 1), true},
		{"horizon", f.now.AddDate(0, 0, 365), true},
		{"beyond horizon", f.now.AddDate(0, 0, 366), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.loans.RequestLoan(t.Context(), operator, &domain.LoanRequest{
				LenderFundID:   a,
				BorrowerFundID: b,
				Amount:         amount(1000),
				Reason:         "bridge until tuition arrives",
				DueDate:        tt.due,
			})
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, customError.ErrValidation))
			}
		})
	}
}

func TestLoanService_ApproveRequiresElevatedRoleAboveThreshold(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 30000000)
	b := f.seedFund("B", 0)

	loan := f.requestLoan(t, a, b, 6000000)

	_, err := f.loans.ApproveLoan(t.Context(), operator, loan.ID, &domain.ApproveLoanRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, customError.ErrForbidden))

	stored, err := f.loans.GetLoan(t.Context(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusPending, stored.Status)
	assert.Nil(t, stored.ApprovedBy)

	approved, err := f.loans.ApproveLoan(t.Context(), director, loan.ID, &domain.ApproveLoanRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusApproved, approved.Status)

	_, err = f.loans.ApproveLoan(t.Context(), director, loan.ID, &domain.ApproveLoanRequest{})
	assert.True(t, errors.Is(err, customError.ErrInvalidTransition))
}

func TestLoanService_DisburseRevalidatesBalance(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 1000000)
	b := f.seedFund("B", 0)

	loan := f.requestLoan(t, a, b, 300000)
	_, err := f.loans.ApproveLoan(t.Context(), operator, loan.ID, &domain.ApproveLoanRequest{})
	require.NoError(t, err)

	_, err = f.ledger.RecordExpense(t.Context(), operator, a, &domain.MovementRequest{Amount: amount(800000), Description: "Roof repair"})
	require.NoError(t, err)

	_, err = f.loans.DisburseLoan(t.Context(), operator, loan.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, customError.ErrInsufficientFunds))

	stored, err := f.loans.GetLoan(t.Context(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusApproved, stored.Status)
	assert.Nil(t, stored.DisbursedAt)
	assert.True(t, f.balance(t, a).Equal(amount(200000)))
	assert.True(t, f.balance(t, b).IsZero())
	f.requireBalanced(t)
}

func TestLoanService_DisburseIsAtomicTransfer(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 1000000)
	b := f.seedFund("B", 10)

	loan := f.disbursedLoan(t, a, b, 250000)
	assert.NotNil(t, loan.DisbursedAt)

	var disbursement []domain.LedgerEntry
	for _, e := range f.store.AllEntries() {
		if e.Kind == domain.KindLoanDisbursement {
			disbursement = append(disbursement, e)
		}
	}
	require.Len(t, disbursement, 2)
	assert.Equal(t, *disbursement[0].GroupID, *disbursement[1].GroupID)
	assert.Equal(t, loan.ID, *disbursement[0].ReferenceID)
	assert.True(t, f.balance(t, a).Equal(amount(750000)))
	assert.True(t, f.balance(t, b).Equal(amount(250010)))

	_, err := f.loans.DisburseLoan(t.Context(), operator, loan.ID)
	assert.True(t, errors.Is(err, customError.ErrInvalidTransition))
	assert.True(t, f.balance(t, a).Equal(amount(750000)))
}

func TestLoanService_CancelAndReject(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 1000000)
	b := f.seedFund("B", 0)

	t.Run("cancel pending", func(t *testing.T) {
		loan := f.requestLoan(t, a, b, 1000)
		cancelled, err := f.loans.CancelLoan(t.Context(), operator, loan.ID, "plans changed")
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancellationReason)
		assert.NotNil(t, cancelled.ArchivedAt)
	})

	t.Run("cancel requires reason", func(t *testing.T) {
		loan := f.requestLoan(t, a, b, 1000)
		_, err := f.loans.CancelLoan(t.Context(), operator, loan.ID, "  ")
		assert.True(t, errors.Is(err, customError.ErrValidation))
	})

	t.Run("cancel after disbursement is refused", func(t *testing.T) {
		loan := f.disbursedLoan(t, a, b, 1000)
		_, err := f.loans.CancelLoan(t.Context(), operator, loan.ID, "too late")
		require.Error(t, err)
		assert.True(t, errors.Is(err, customError.ErrInvalidTransition))
		assert.Contains(t, err.Error(), "DISBURSED")
		assert.Contains(t, err.Error(), "CANCELLED")
	})

	t.Run("reject pending", func(t *testing.T) {
		loan := f.requestLoan(t, a, b, 1000)
		rejected, err := f.loans.RejectLoan(t.Context(), operator, loan.ID, "budget freeze")
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusRejected, rejected.Status)
		require.NotNil(t, rejected.RejectionReason)
		assert.Equal(t, "budget freeze", *rejected.RejectionReason)

		_, err = f.loans.ApproveLoan(t.Context(), director, loan.ID, &domain.ApproveLoanRequest{})
		assert.True(t, errors.Is(err, customError.ErrInvalidTransition))
	})

	t.Run("reject requires reason", func(t *testing.T) {
		loan := f.requestLoan(t, a, b, 1000)
		_, err := f.loans.RejectLoan(t.Context(), operator, loan.ID, "")
		assert.True(t, errors.Is(err, customError.ErrValidation))
	})

	t.Run("unknown loan", func(t *testing.T) {
		_, err := f.loans.RejectLoan(t.Context(), operator, "missing", "why not")
		assert.True(t, errors.Is(err, customError.ErrNotFound))
	})
}

func TestLoanService_RecordPaymentGuards(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 1000000)
	b := f.seedFund("B", 0)

	approved := f.requestLoan(t, a, b, 1000)
	_, err := f.loans.ApproveLoan(t.Context(), operator, approved.ID, &domain.ApproveLoanRequest{})
	require.NoError(t, err)
	_, err = f.loans.RecordLoanPayment(t.Context(), operator, approved.ID, amount(10))
	assert.True(t, errors.Is(err, customError.ErrInvalidTransition))

	loan := f.disbursedLoan(t, a, b, 1000)

	_, err = f.loans.RecordLoanPayment(t.Context(), operator, loan.ID, amount(1001))
	require.Error(t, err)
	assert.True(t, errors.Is(err, customError.ErrValidation))
	assert.Contains(t, err.Error(), "exceeds pending amount")

	_, err = f.loans.RecordLoanPayment(t.Context(), operator, loan.ID, amount(0))
	assert.True(t, errors.Is(err, customError.ErrValidation))

	_, err = f.loans.RecordLoanPayment(t.Context(), operator, loan.ID, decimal.RequireFromString("10.001"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, customError.ErrValidation))
	assert.Contains(t, err.Error(), "more than 2 decimal places")

	stored, err := f.loans.GetLoan(t.Context(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusDisbursed, stored.Status)
	assert.True(t, stored.TotalRepaid.IsZero())

	full, err := f.loans.RecordLoanPayment(t.Context(), operator, loan.ID, amount(1000))
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusFullyRepaid, full.Status)
	f.requireBalanced(t)
}

func TestLoanService_OverdueIsDerivedOnRead(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 1000000)
	b := f.seedFund("B", 0)

	loan := f.disbursedLoan(t, a, b, 1000)
	f.requestLoan(t, a, b, 500)

	overdue, err := f.loans.ListOverdueLoans(t.Context())
	require.NoError(t, err)
	assert.Empty(t, overdue)

	f.now = f.now.AddDate(0, 0, 30).Add(13 * time.Hour)
	overdue, err = f.loans.ListOverdueLoans(t.Context())
	require.NoError(t, err)
	assert.Empty(t, overdue, "a loan is not overdue on its due date")

	f.now = f.now.Add(time.Hour)

	first, err := f.loans.ListLoans(t.Context(), domain.LoanFilter{OverdueOnly: true})
	require.NoError(t, err)
	second, err := f.loans.ListLoans(t.Context(), domain.LoanFilter{OverdueOnly: true})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, loan.ID, first[0].ID)
	assert.True(t, first[0].IsOverdue)

	stored, err := f.loans.GetLoan(t.Context(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusDisbursed, stored.Status)
	assert.Equal(t, loan.UpdatedAt, stored.UpdatedAt)

	_, err = f.loans.RecordLoanPayment(t.Context(), operator, loan.ID, amount(1000))
	require.NoError(t, err)
	overdue, err = f.loans.ListOverdueLoans(t.Context())
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestLoanService_ListLoansFilters(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 1000000)
	b := f.seedFund("B", 0)
	c := f.seedFund("C", 1000000)

	f.requestLoan(t, a, b, 100)
	f.requestLoan(t, c, a, 200)
	f.disbursedLoan(t, c, b, 300)

	byFund, err := f.loans.ListLoans(t.Context(), domain.LoanFilter{FundID: a})
	require.NoError(t, err)
	assert.Len(t, byFund, 2)

	byStatus, err := f.loans.ListLoans(t.Context(), domain.LoanFilter{Status: domain.LoanStatusDisbursed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, c, byStatus[0].LenderFundID)

	_, err = f.loans.ListLoans(t.Context(), domain.LoanFilter{Status: "OVERDUE"})
	assert.True(t, errors.Is(err, customError.ErrValidation))
}

func TestLoanService_LoanStatistics(t *testing.T) {
	f := newFixture(t)
	a := f.seedFund("A", 1000000)
	b := f.seedFund("B", 0)

	f.requestLoan(t, a, b, 1000)
	repaying := f.disbursedLoan(t, a, b, 4000)
	_, err := f.loans.RecordLoanPayment(t.Context(), operator, repaying.ID, amount(1500))
	require.NoError(t, err)
	cancelled := f.requestLoan(t, a, b, 700)
	_, err = f.loans.CancelLoan(t.Context(), operator, cancelled.ID, "not needed")
	require.NoError(t, err)

	f.now = f.now.AddDate(0, 0, 45)

	stats, err := f.loans.LoanStatistics(t.Context(), a)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total.Count)
	assert.True(t, stats.Total.Amount.Equal(amount(5700)))
	assert.Equal(t, 1, stats.ByStatus[domain.LoanStatusPending].Count)
	assert.Equal(t, 1, stats.ByStatus[domain.LoanStatusRepaying].Count)
	assert.Equal(t, 1, stats.ByStatus[domain.LoanStatusCancelled].Count)
	assert.Equal(t, 0, stats.ByStatus[domain.LoanStatusRejected].Count)
	assert.Equal(t, 1, stats.Overdue.Count)
	assert.True(t, stats.Overdue.Amount.Equal(amount(2500)))
	assert.True(t, stats.Outstanding.Equal(amount(2500)))
	assert.True(t, stats.TotalRepaid.Equal(amount(1500)))
	assert.True(t, stats.AmountLent.Equal(amount(4000)))
	assert.True(t, stats.AmountBorrowed.IsZero())

	all, err := f.loans.LoanStatistics(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total.Count)

	_, err = f.loans.LoanStatistics(t.Context(), "ghost")
	assert.True(t, errors.Is(err, customError.ErrNotFound))
}
