// Package repotest provides an in-memory repository.Store for tests.
// Transactions run concurrently: writes stay in a per-transaction overlay
// until commit, and GetForUpdate takes row locks held until the transaction ends.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/segyhp/fund-ledger/internal/domain"
	"github.com/segyhp/fund-ledger/internal/repository"
	customError "github.com/segyhp/fund-ledger/pkg/errors"
)

type state struct {
	funds    map[string]*domain.Fund
	entries  []*domain.LedgerEntry
	loans    map[string]*domain.FundLoan
	payments []*domain.LoanPayment
}

func newState() *state {
	return &state{
		funds: make(map[string]*domain.Fund),
		loans: make(map[string]*domain.FundLoan),
	}
}

// merge returns base with the overlay's rows on top. Rows are shared, not copied.
func (s *state) merge(overlay *state) *state {
	m := newState()
	for id, f := range s.funds {
		m.funds[id] = f
	}
	for id, f := range overlay.funds {
		m.funds[id] = f
	}
	for id, l := range s.loans {
		m.loans[id] = l
	}
	for id, l := range overlay.loans {
		m.loans[id] = l
	}
	m.entries = append(append([]*domain.LedgerEntry(nil), s.entries...), overlay.entries...)
	m.payments = append(append([]*domain.LoanPayment(nil), s.payments...), overlay.payments...)
	return m
}

func (s *state) apply(overlay *state) {
	for id, f := range overlay.funds {
		s.funds[id] = f
	}
	for id, l := range overlay.loans {
		s.loans[id] = l
	}
	s.entries = append(s.entries, overlay.entries...)
	s.payments = append(s.payments, overlay.payments...)
}

var _ repository.Store = (*Store)(nil)

// Store is an in-memory repository.Store.
type Store struct {
	root *root
	tx   *txn
}

type root struct {
	mu        sync.Mutex
	committed *state
	failing   map[string]error
	rows      map[string]*sync.Mutex
}

type txn struct {
	writes *state
	held   map[string]*sync.Mutex
}

func (t *txn) release() {
	for _, m := range t.held {
		m.Unlock()
	}
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{root: &root{
		committed: newState(),
		failing:   make(map[string]error),
		rows:      make(map[string]*sync.Mutex),
	}}
}

// FailEntriesFor makes every ledger entry insert for fundID fail with err.
func (s *Store) FailEntriesFor(fundID string, err error) {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	s.root.failing[fundID] = err
}

// SeedFund inserts a fund directly, bypassing the ledger.
func (s *Store) SeedFund(f domain.Fund) *domain.Fund {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	s.root.committed.funds[f.ID] = &f
	copied := f
	return &copied
}

// AllEntries returns a snapshot of every committed entry in insertion order.
func (s *Store) AllEntries() []domain.LedgerEntry {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range s.root.committed.entries {
		out = append(out, *e)
	}
	return out
}

// AllLoans returns a snapshot of every committed loan.
func (s *Store) AllLoans() []domain.FundLoan {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	var out []domain.FundLoan
	for _, l := range s.root.committed.loans {
		out = append(out, *l)
	}
	return out
}

// view runs fn against committed rows plus this transaction's own writes.
// fn must not modify what it reads.
func (s *Store) view(fn func(st *state) error) error {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	if s.tx == nil {
		return fn(s.root.committed)
	}
	return fn(s.root.committed.merge(s.tx.writes))
}

// write runs fn against the state that receives writes: the committed state
// outside a transaction, the overlay inside one. The second argument is the
// merged view used for lookups.
func (s *Store) write(fn func(dst, seen *state) error) error {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	if s.tx == nil {
		return fn(s.root.committed, s.root.committed)
	}
	return fn(s.tx.writes, s.root.committed.merge(s.tx.writes))
}

// lockRows blocks until the transaction holds every key. Keys already held
// by the transaction are skipped.
func (s *Store) lockRows(ctx context.Context, keys ...string) error {
	if s.tx == nil {
		return nil
	}
	for _, key := range keys {
		if _, ok := s.tx.held[key]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.root.mu.Lock()
		m, ok := s.root.rows[key]
		if !ok {
			m = &sync.Mutex{}
			s.root.rows[key] = m
		}
		s.root.mu.Unlock()

		m.Lock()
		s.tx.held[key] = m
	}
	return nil
}

func (s *Store) Funds() repository.FundRepository { return &fundRepo{s: s} }

func (s *Store) Entries() repository.EntryRepository { return &entryRepo{s: s} }

func (s *Store) Loans() repository.LoanRepository { return &loanRepo{s: s} }

func (s *Store) LoanPayments() repository.LoanPaymentRepository { return &paymentRepo{s: s} }

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx := &txn{writes: newState(), held: make(map[string]*sync.Mutex)}
	defer tx.release()

	if err := fn(&Store{root: s.root, tx: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.root.mu.Lock()
	s.root.committed.apply(tx.writes)
	s.root.mu.Unlock()
	return nil
}

type fundRepo struct{ s *Store }

func (r *fundRepo) Create(ctx context.Context, fund *domain.Fund) error {
	return r.s.write(func(dst, seen *state) error {
		for _, f := range seen.funds {
			if f.Code == fund.Code {
				return customError.WrapDuplicate("fund code", fund.Code)
			}
		}
		copied := *fund
		dst.funds[fund.ID] = &copied
		return nil
	})
}

func (r *fundRepo) GetByID(ctx context.Context, id string) (*domain.Fund, error) {
	var out *domain.Fund
	err := r.s.view(func(st *state) error {
		f, ok := st.funds[id]
		if !ok {
			return customError.WrapNotFound("Fund", id)
		}
		copied := *f
		out = &copied
		return nil
	})
	return out, err
}

func (r *fundRepo) GetByCode(ctx context.Context, code string) (*domain.Fund, error) {
	var out *domain.Fund
	err := r.s.view(func(st *state) error {
		for _, f := range st.funds {
			if f.Code == code {
				copied := *f
				out = &copied
				return nil
			}
		}
		return customError.WrapNotFound("Fund", code)
	})
	return out, err
}

// GetForUpdate locks the rows in ascending id order, like ORDER BY id FOR UPDATE.
func (r *fundRepo) GetForUpdate(ctx context.Context, ids []string) (map[string]*domain.Fund, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, "fund:"+id)
	}
	sort.Strings(keys)
	if err := r.s.lockRows(ctx, keys...); err != nil {
		return nil, err
	}

	out := make(map[string]*domain.Fund, len(ids))
	err := r.s.view(func(st *state) error {
		for _, id := range ids {
			f, ok := st.funds[id]
			if !ok {
				return customError.WrapNotFound("Fund", id)
			}
			copied := *f
			out[id] = &copied
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fundRepo) List(ctx context.Context, activeOnly bool) ([]*domain.Fund, error) {
	var out []*domain.Fund
	err := r.s.view(func(st *state) error {
		for _, f := range st.funds {
			if activeOnly && !f.IsActive {
				continue
			}
			copied := *f
			out = append(out, &copied)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *fundRepo) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error {
	return r.update(id, func(f *domain.Fund) {
		f.CurrentBalance = balance
		f.UpdatedAt = at
	})
}

func (r *fundRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	return r.update(id, func(f *domain.Fund) {
		f.IsActive = active
		f.UpdatedAt = at
	})
}

func (r *fundRepo) update(id string, fn func(f *domain.Fund)) error {
	return r.s.write(func(dst, seen *state) error {
		f, ok := seen.funds[id]
		if !ok {
			return customError.WrapNotFound("Fund", id)
		}
		copied := *f
		fn(&copied)
		dst.funds[id] = &copied
		return nil
	})
}

type entryRepo struct{ s *Store }

func (r *entryRepo) Create(ctx context.Context, entry *domain.LedgerEntry) error {
	return r.s.write(func(dst, _ *state) error {
		if failure := r.s.root.failing[entry.FundID]; failure != nil {
			return failure
		}
		copied := *entry
		dst.entries = append(dst.entries, &copied)
		return nil
	})
}

func (r *entryRepo) ListByFund(ctx context.Context, fundID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	var matched []*domain.LedgerEntry
	err := r.s.view(func(st *state) error {
		for i := len(st.entries) - 1; i >= 0; i-- {
			if st.entries[i].FundID == fundID {
				copied := *st.entries[i]
				matched = append(matched, &copied)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *entryRepo) Totals(ctx context.Context, fundID string) (*domain.FundTotals, error) {
	totals := &domain.FundTotals{}
	err := r.s.view(func(st *state) error {
		for _, e := range st.entries {
			if e.FundID == fundID {
				totals.Add(e.Kind, e.Direction, e.Amount, 1)
			}
		}
		return nil
	})
	return totals, err
}

func (r *entryRepo) ExistsByReference(ctx context.Context, ref domain.Reference) (bool, error) {
	var exists bool
	err := r.s.view(func(st *state) error {
		for _, e := range st.entries {
			if e.ReferenceType != nil && e.ReferenceID != nil &&
				*e.ReferenceType == string(ref.Type) && *e.ReferenceID == ref.ID {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

type loanRepo struct{ s *Store }

func (r *loanRepo) Create(ctx context.Context, loan *domain.FundLoan) error {
	return r.s.write(func(dst, _ *state) error {
		copied := *loan
		dst.loans[loan.ID] = &copied
		return nil
	})
}

func (r *loanRepo) GetByID(ctx context.Context, id string) (*domain.FundLoan, error) {
	var out *domain.FundLoan
	err := r.s.view(func(st *state) error {
		l, ok := st.loans[id]
		if !ok {
			return customError.WrapNotFound("Loan", id)
		}
		copied := *l
		out = &copied
		return nil
	})
	return out, err
}

func (r *loanRepo) GetForUpdate(ctx context.Context, id string) (*domain.FundLoan, error) {
	if err := r.s.lockRows(ctx, "loan:"+id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *loanRepo) Update(ctx context.Context, loan *domain.FundLoan) error {
	return r.s.write(func(dst, seen *state) error {
		if _, ok := seen.loans[loan.ID]; !ok {
			return customError.WrapNotFound("Loan", loan.ID)
		}
		copied := *loan
		dst.loans[loan.ID] = &copied
		return nil
	})
}

func (r *loanRepo) List(ctx context.Context, filter domain.LoanFilter) ([]*domain.FundLoan, error) {
	var out []*domain.FundLoan
	err := r.s.view(func(st *state) error {
		for _, l := range st.loans {
			if filter.Status != "" && l.Status != filter.Status {
				continue
			}
			if filter.FundID != "" && l.LenderFundID != filter.FundID && l.BorrowerFundID != filter.FundID {
				continue
			}
			if filter.OverdueOnly && l.Status != domain.LoanStatusDisbursed && l.Status != domain.LoanStatusRepaying {
				continue
			}
			copied := *l
			out = append(out, &copied)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

type paymentRepo struct{ s *Store }

func (r *paymentRepo) Create(ctx context.Context, payment *domain.LoanPayment) error {
	return r.s.write(func(dst, _ *state) error {
		copied := *payment
		dst.payments = append(dst.payments, &copied)
		return nil
	})
}

func (r *paymentRepo) ListByLoan(ctx context.Context, loanID string) ([]*domain.LoanPayment, error) {
	var out []*domain.LoanPayment
	err := r.s.view(func(st *state) error {
		for _, p := range st.payments {
			if p.LoanID == loanID {
				copied := *p
				out = append(out, &copied)
			}
		}
		return nil
	})
	return out, err
}
