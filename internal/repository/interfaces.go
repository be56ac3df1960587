package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/segyhp/fund-ledger/internal/domain"
)

// FundRepository defines the interface for fund data operations
type FundRepository interface {
	// Create creates a new fund
	Create(ctx context.Context, fund *domain.Fund) error

	// GetByID retrieves a fund by its ID
	GetByID(ctx context.Context, id string) (*domain.Fund, error)

	// GetByCode retrieves a fund by its human code
	GetByCode(ctx context.Context, code string) (*domain.Fund, error)

	// GetForUpdate row-locks the given funds in ascending id order. Must run inside WithinTx.
	GetForUpdate(ctx context.Context, ids []string) (map[string]*domain.Fund, error)

	// List returns funds ordered by code
	List(ctx context.Context, activeOnly bool) ([]*domain.Fund, error)

	// UpdateBalance stores a new cached balance. Only the ledger calls this.
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error

	// SetActive flips the active flag
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
}

// EntryRepository is the append-only ledger. There is no update or delete.
type EntryRepository interface {
	// Create appends an entry
	Create(ctx context.Context, entry *domain.LedgerEntry) error

	// ListByFund returns a fund's entries, newest first
	ListByFund(ctx context.Context, fundID string, limit, offset int) ([]*domain.LedgerEntry, error)

	// Totals folds a fund's entries by kind and direction
	Totals(ctx context.Context, fundID string) (*domain.FundTotals, error)

	// ExistsByReference reports whether any entry already points at the reference
	ExistsByReference(ctx context.Context, ref domain.Reference) (bool, error)
}

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.FundLoan) error

	// GetByID retrieves a loan by its ID
	GetByID(ctx context.Context, id string) (*domain.FundLoan, error)

	// GetForUpdate retrieves and row-locks a loan. Must run inside WithinTx.
	GetForUpdate(ctx context.Context, id string) (*domain.FundLoan, error)

	// Update persists status, approval, repayment and archive fields
	Update(ctx context.Context, loan *domain.FundLoan) error

	// List returns loans matching the stored-field part of the filter. Overdue is derived by the caller.
	List(ctx context.Context, filter domain.LoanFilter) ([]*domain.FundLoan, error)
}

// LoanPaymentRepository is append-only.
type LoanPaymentRepository interface {
	// Create records a repayment
	Create(ctx context.Context, payment *domain.LoanPayment) error

	// ListByLoan returns a loan's repayments in the order they were made
	ListByLoan(ctx context.Context, loanID string) ([]*domain.LoanPayment, error)
}

// Store groups the repositories so a unit of work can span all of them.
type Store interface {
	Funds() FundRepository
	Entries() EntryRepository
	Loans() LoanRepository
	LoanPayments() LoanPaymentRepository

	// WithinTx runs fn against a transactional Store. The transaction commits only if fn returns nil.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
