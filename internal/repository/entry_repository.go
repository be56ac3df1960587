package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/segyhp/fund-ledger/internal/domain"
)

const entryColumns = `id, fund_id, direction, amount, kind, counterparty_fund_id, group_id, reference_type, reference_id, balance_after, description, created_by, created_at`

type entryRepository struct {
	q sqlx.ExtContext
}

// NewEntryRepository returns an EntryRepository outside of any transaction.
func NewEntryRepository(db *sqlx.DB) EntryRepository {
	return &entryRepository{q: db}
}

func (r *entryRepository) Create(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.q.ExecContext(ctx, query,
		entry.ID,
		entry.FundID,
		entry.Direction,
		entry.Amount,
		entry.Kind,
		entry.CounterpartyFundID,
		entry.GroupID,
		entry.ReferenceType,
		entry.ReferenceID,
		entry.BalanceAfter,
		entry.Description,
		entry.CreatedBy,
		entry.CreatedAt,
	)

	return err
}

func (r *entryRepository) ListByFund(ctx context.Context, fundID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE fund_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	var entries []*domain.LedgerEntry
	if err := sqlx.SelectContext(ctx, r.q, &entries, query, fundID, limit, offset); err != nil {
		return nil, err
	}

	return entries, nil
}

type totalsRow struct {
	Kind      domain.EntryKind `db:"kind"`
	Direction domain.Direction `db:"direction"`
	Total     decimal.Decimal  `db:"total"`
	Entries   int              `db:"entries"`
}

func (r *entryRepository) Totals(ctx context.Context, fundID string) (*domain.FundTotals, error) {
	query := `
		SELECT kind, direction, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS entries
		FROM ledger_entries
		WHERE fund_id = $1
		GROUP BY kind, direction
	`

	var rows []totalsRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, fundID); err != nil {
		return nil, err
	}

	totals := &domain.FundTotals{}
	for _, row := range rows {
		totals.Add(row.Kind, row.Direction, row.Total, row.Entries)
	}

	return totals, nil
}

func (r *entryRepository) ExistsByReference(ctx context.Context, ref domain.Reference) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE reference_type = $1 AND reference_id = $2)`

	var exists bool
	if err := sqlx.GetContext(ctx, r.q, &exists, query, string(ref.Type), ref.ID); err != nil {
		return false, err
	}

	return exists, nil
}
