package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	customError "github.com/segyhp/fund-ledger/pkg/errors"
)

type sqlStore struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewStore returns a Store backed by postgres through sqlx.
func NewStore(db *sqlx.DB) Store {
	return &sqlStore{db: db, q: db}
}

func (s *sqlStore) Funds() FundRepository { return &fundRepository{q: s.q} }

func (s *sqlStore) Entries() EntryRepository { return &entryRepository{q: s.q} }

func (s *sqlStore) Loans() LoanRepository { return &loanRepository{q: s.q} }

func (s *sqlStore) LoanPayments() LoanPaymentRepository { return &loanPaymentRepository{q: s.q} }

func (s *sqlStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	// Nested calls join the outer transaction.
	if _, ok := s.q.(*sqlx.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlStore{db: s.db, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return customError.WrapNotFound(kind, id)
	}
	return err
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return customError.WrapNotFound(kind, id)
	}
	return nil
}
