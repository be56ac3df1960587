package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/segyhp/fund-ledger/internal/domain"
	customError "github.com/segyhp/fund-ledger/pkg/errors"
)

const uniqueViolation = "23505"

const fundColumns = `id, code, name, type, is_active, current_balance, initial_balance, created_at, updated_at`

type fundRepository struct {
	q sqlx.ExtContext
}

// NewFundRepository returns a FundRepository outside of any transaction.
func NewFundRepository(db *sqlx.DB) FundRepository {
	return &fundRepository{q: db}
}

func (r *fundRepository) Create(ctx context.Context, fund *domain.Fund) error {
	query := `
		INSERT INTO funds (id, code, name, type, is_active, current_balance, initial_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		fund.ID,
		fund.Code,
		fund.Name,
		fund.Type,
		fund.IsActive,
		fund.CurrentBalance,
		fund.InitialBalance,
		fund.CreatedAt,
		fund.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return customError.WrapDuplicate("fund code", fund.Code)
	}

	return err
}

func (r *fundRepository) GetByID(ctx context.Context, id string) (*domain.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE id = $1`

	var fund domain.Fund
	if err := sqlx.GetContext(ctx, r.q, &fund, query, id); err != nil {
		return nil, notFound(err, "Fund", id)
	}

	return &fund, nil
}

func (r *fundRepository) GetByCode(ctx context.Context, code string) (*domain.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE code = $1`

	var fund domain.Fund
	if err := sqlx.GetContext(ctx, r.q, &fund, query, code); err != nil {
		return nil, notFound(err, "Fund", code)
	}

	return &fund, nil
}

func (r *fundRepository) GetForUpdate(ctx context.Context, ids []string) (map[string]*domain.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	var funds []*domain.Fund
	if err := sqlx.SelectContext(ctx, r.q, &funds, query, pq.Array(ids)); err != nil {
		return nil, err
	}

	locked := make(map[string]*domain.Fund, len(funds))
	for _, f := range funds {
		locked[f.ID] = f
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return nil, customError.WrapNotFound("Fund", id)
		}
	}

	return locked, nil
}

func (r *fundRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY code`

	var funds []*domain.Fund
	if err := sqlx.SelectContext(ctx, r.q, &funds, query); err != nil {
		return nil, err
	}

	return funds, nil
}

func (r *fundRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error {
	query := `UPDATE funds SET current_balance = $2, updated_at = $3 WHERE id = $1`

	res, err := r.q.ExecContext(ctx, query, id, balance, at)
	if err != nil {
		return err
	}

	return requireRow(res, "Fund", id)
}

func (r *fundRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	query := `UPDATE funds SET is_active = $2, updated_at = $3 WHERE id = $1`

	res, err := r.q.ExecContext(ctx, query, id, active, at)
	if err != nil {
		return err
	}

	return requireRow(res, "Fund", id)
}
