package domain

import (
	"time"

	"github.com/shopspring/decimal"

	customError "github.com/segyhp/fund-ledger/pkg/errors"
	"github.com/segyhp/fund-ledger/pkg/utils"
)

// LoanStatus is the stored state of an inter-fund loan. OVERDUE is never stored.
type LoanStatus string

const (
	LoanStatusPending     LoanStatus = "PENDING"
	LoanStatusApproved    LoanStatus = "APPROVED"
	LoanStatusRejected    LoanStatus = "REJECTED"
	LoanStatusDisbursed   LoanStatus = "DISBURSED"
	LoanStatusRepaying    LoanStatus = "REPAYING"
	LoanStatusFullyRepaid LoanStatus = "FULLY_REPAID"
	LoanStatusCancelled   LoanStatus = "CANCELLED"
)

// AllLoanStatuses lists every stored status in lifecycle order.
var AllLoanStatuses = []LoanStatus{
	LoanStatusPending,
	LoanStatusApproved,
	LoanStatusRejected,
	LoanStatusDisbursed,
	LoanStatusRepaying,
	LoanStatusFullyRepaid,
	LoanStatusCancelled,
}

// loanTransitions is the only place the loan state machine is defined.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:   {LoanStatusApproved, LoanStatusRejected, LoanStatusCancelled},
	LoanStatusApproved:  {LoanStatusDisbursed, LoanStatusCancelled},
	LoanStatusDisbursed: {LoanStatusRepaying, LoanStatusFullyRepaid},
	LoanStatusRepaying:  {LoanStatusRepaying, LoanStatusFullyRepaid},
}

// Valid reports whether s is a stored loan status.
func (s LoanStatus) Valid() bool {
	for _, known := range AllLoanStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s LoanStatus) Terminal() bool {
	return len(loanTransitions[s]) == 0
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to LoanStatus) bool {
	for _, next := range loanTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FundLoan is a temporary transfer from a lender fund to a borrower fund with a repayment obligation.
type FundLoan struct {
	ID                 string          `json:"id" db:"id"`
	LenderFundID       string          `json:"lender_fund_id" db:"lender_fund_id"`
	BorrowerFundID     string          `json:"borrower_fund_id" db:"borrower_fund_id"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	Reason             string          `json:"reason" db:"reason"`
	RequestedAt        time.Time       `json:"requested_at" db:"requested_at"`
	DueDate            time.Time       `json:"due_date" db:"due_date"`
	Status             LoanStatus      `json:"status" db:"status"`
	RequestedBy        string          `json:"requested_by" db:"requested_by"`
	ApprovedBy         *string         `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	ApprovalNotes      *string         `json:"approval_notes,omitempty" db:"approval_notes"`
	RejectionReason    *string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CancellationReason *string         `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	DisbursedAt        *time.Time      `json:"disbursed_at,omitempty" db:"disbursed_at"`
	TotalRepaid        decimal.Decimal `json:"total_repaid" db:"total_repaid"`
	ArchivedAt         *time.Time      `json:"archived_at,omitempty" db:"archived_at"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// PendingAmount is principal minus everything repaid so far.
func (l *FundLoan) PendingAmount() decimal.Decimal {
	return l.Amount.Sub(l.TotalRepaid)
}

// IsOverdue is derived from now on every call: an outstanding disbursed loan past its due date.
func (l *FundLoan) IsOverdue(now time.Time) bool {
	if l.Status != LoanStatusDisbursed && l.Status != LoanStatusRepaying {
		return false
	}
	return utils.IsDateOverdue(l.DueDate, now) && l.PendingAmount().IsPositive()
}

// TransitionTo moves the loan to next if the state machine allows it.
func (l *FundLoan) TransitionTo(next LoanStatus, at time.Time) error {
	if !CanTransition(l.Status, next) {
		return customError.WrapInvalidTransition(l.ID, string(l.Status), string(next))
	}
	l.Status = next
	l.UpdatedAt = at
	if next == LoanStatusFullyRepaid || next == LoanStatusCancelled {
		archived := at
		l.ArchivedAt = &archived
	}
	return nil
}

// View returns the loan with its derived fields computed against now.
func (l *FundLoan) View(now time.Time) LoanView {
	return LoanView{
		FundLoan:      *l,
		PendingAmount: l.PendingAmount(),
		IsOverdue:     l.IsOverdue(now),
	}
}

// LoanView is what callers see: the stored loan plus values derived at read time.
type LoanView struct {
	FundLoan
	PendingAmount decimal.Decimal `json:"pending_amount"`
	IsOverdue     bool            `json:"is_overdue"`
}

// LoanPayment is an append-only repayment record.
type LoanPayment struct {
	ID         string          `json:"id" db:"id"`
	LoanID     string          `json:"loan_id" db:"loan_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	PaidAt     time.Time       `json:"paid_at" db:"paid_at"`
	RecordedBy string          `json:"recorded_by" db:"recorded_by"`
	EntryID    string          `json:"entry_id" db:"entry_id"`
}

// LoanFilter narrows ListLoans. Zero values mean "any".
type LoanFilter struct {
	Status      LoanStatus
	FundID      string
	OverdueOnly bool
}

// StatusTotals is the count and principal of loans in one status.
type StatusTotals struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// LoanStatistics aggregates loans, optionally scoped to one fund.
type LoanStatistics struct {
	FundID         string                      `json:"fund_id,omitempty"`
	ByStatus       map[LoanStatus]StatusTotals `json:"by_status"`
	Total          StatusTotals                `json:"total"`
	Overdue        StatusTotals                `json:"overdue"`
	Outstanding    decimal.Decimal             `json:"outstanding"`
	TotalRepaid    decimal.Decimal             `json:"total_repaid"`
	AmountLent     decimal.Decimal             `json:"amount_lent,omitempty"`
	AmountBorrowed decimal.Decimal             `json:"amount_borrowed,omitempty"`
}

// DTOs for requests and responses

type LoanRequest struct {
	LenderFundID   string          `json:"lender_fund_id" validate:"required"`
	BorrowerFundID string          `json:"borrower_fund_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason"`
	DueDate        time.Time       `json:"due_date" validate:"required"`
}

type ApproveLoanRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type LoanPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,money_positive"`
}
