package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/fund-ledger/internal/domain"
)

const loanColumns = `id, lender_fund_id, borrower_fund_id, amount, reason, requested_at, due_date, status, requested_by,
	approved_by, approved_at, approval_notes, rejection_reason, cancellation_reason, disbursed_at,
	total_repaid, archived_at, created_at, updated_at`

type loanRepository struct {
	q sqlx.ExtContext
}

// NewLoanRepository returns a LoanRepository outside of any transaction.
func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{q: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.FundLoan) error {
	query := `
		INSERT INTO fund_loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.q.ExecContext(ctx, query,
		loan.ID,
		loan.LenderFundID,
		loan.BorrowerFundID,
		loan.Amount,
		loan.Reason,
		loan.RequestedAt,
		loan.DueDate,
		loan.Status,
		loan.RequestedBy,
		loan.ApprovedBy,
		loan.ApprovedAt,
		loan.ApprovalNotes,
		loan.RejectionReason,
		loan.CancellationReason,
		loan.DisbursedAt,
		loan.TotalRepaid,
		loan.ArchivedAt,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id string) (*domain.FundLoan, error) {
	query := `SELECT ` + loanColumns + ` FROM fund_loans WHERE id = $1`

	var loan domain.FundLoan
	if err := sqlx.GetContext(ctx, r.q, &loan, query, id); err != nil {
		return nil, notFound(err, "Loan", id)
	}

	return &loan, nil
}

func (r *loanRepository) GetForUpdate(ctx context.Context, id string) (*domain.FundLoan, error) {
	query := `SELECT ` + loanColumns + ` FROM fund_loans WHERE id = $1 FOR UPDATE`

	var loan domain.FundLoan
	if err := sqlx.GetContext(ctx, r.q, &loan, query, id); err != nil {
		return nil, notFound(err, "Loan", id)
	}

	return &loan, nil
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.FundLoan) error {
	query := `
		UPDATE fund_loans
		SET status = $2, approved_by = $3, approved_at = $4, approval_notes = $5, rejection_reason = $6,
			cancellation_reason = $7, disbursed_at = $8, total_repaid = $9, archived_at = $10, updated_at = $11
		WHERE id = $1
	`

	res, err := r.q.ExecContext(ctx, query,
		loan.ID,
		loan.Status,
		loan.ApprovedBy,
		loan.ApprovedAt,
		loan.ApprovalNotes,
		loan.RejectionReason,
		loan.CancellationReason,
		loan.DisbursedAt,
		loan.TotalRepaid,
		loan.ArchivedAt,
		loan.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return requireRow(res, "Loan", loan.ID)
}

func (r *loanRepository) List(ctx context.Context, filter domain.LoanFilter) ([]*domain.FundLoan, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.FundID != "" {
		args = append(args, filter.FundID)
		conditions = append(conditions, fmt.Sprintf("(lender_fund_id = $%d OR borrower_fund_id = $%d)", len(args), len(args)))
	}
	if filter.OverdueOnly {
		conditions = append(conditions, fmt.Sprintf("status IN ('%s', '%s')", domain.LoanStatusDisbursed, domain.LoanStatusRepaying))
	}

	query := `SELECT ` + loanColumns + ` FROM fund_loans`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY requested_at DESC, id`

	var loans []*domain.FundLoan
	if err := sqlx.SelectContext(ctx, r.q, &loans, query, args...); err != nil {
		return nil, err
	}

	return loans, nil
}
