package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/fund-ledger/internal/domain"
)

type loanPaymentRepository struct {
	q sqlx.ExtContext
}

// NewLoanPaymentRepository returns a LoanPaymentRepository outside of any transaction.
func NewLoanPaymentRepository(db *sqlx.DB) LoanPaymentRepository {
	return &loanPaymentRepository{q: db}
}

func (r *loanPaymentRepository) Create(ctx context.Context, payment *domain.LoanPayment) error {
	query := `
		INSERT INTO loan_payments (id, loan_id, amount, paid_at, recorded_by, entry_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.ExecContext(ctx, query,
		payment.ID,
		payment.LoanID,
		payment.Amount,
		payment.PaidAt,
		payment.RecordedBy,
		payment.EntryID,
	)

	return err
}

func (r *loanPaymentRepository) ListByLoan(ctx context.Context, loanID string) ([]*domain.LoanPayment, error) {
	query := `
		SELECT id, loan_id, amount, paid_at, recorded_by, entry_id
		FROM loan_payments
		WHERE loan_id = $1
		ORDER BY paid_at, id
	`

	var payments []*domain.LoanPayment
	if err := sqlx.SelectContext(ctx, r.q, &payments, query, loanID); err != nil {
		return nil, err
	}

	return payments, nil
}
