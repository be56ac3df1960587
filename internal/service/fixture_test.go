package service

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/fund-ledger/internal/domain"
	"github.com/segyhp/fund-ledger/internal/idempotency"
	"github.com/segyhp/fund-ledger/internal/lock"
	"github.com/segyhp/fund-ledger/internal/logger"
	"github.com/segyhp/fund-ledger/internal/policy"
	"github.com/segyhp/fund-ledger/internal/repository/repotest"
)

var (
	operator = domain.Actor{ID: "u-operator", Role: domain.RoleOperator}
	director = domain.Actor{ID: "u-director", Role: domain.RoleDirector}
	viewer   = domain.Actor{ID: "u-viewer", Role: domain.RoleViewer}
)

type fixture struct {
	store  *repotest.Store
	ledger *LedgerService
	loans  *LoanService
	alloc  *AllocatorService
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithGuard(t, nil)
}

func newFixtureWithGuard(t *testing.T, guard idempotency.Guard) *fixture {
	t.Helper()
	logger.InitializeWithWriter(io.Discard, "error", "text")

	f := &fixture{
		store: repotest.NewStore(),
		now:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	p := policy.DefaultPolicy()
	f.ledger = NewLedgerService(f.store, lock.NewFundLocker())
	f.ledger.now = func() time.Time { return f.now }
	f.loans = NewLoanService(f.store, f.ledger, p)
	f.alloc = NewAllocatorService(f.ledger, p.AllocationTolerance, guard)
	return f
}

func (f *fixture) seedFund(code string, balance int64) string {
	id := "fund-" + strings.ToLower(code)
	f.store.SeedFund(domain.Fund{
		ID:             id,
		Code:           code,
		Name:           code + " fund",
		Type:           domain.FundTypeOperational,
		IsActive:       true,
		CurrentBalance: decimal.NewFromInt(balance),
		InitialBalance: decimal.NewFromInt(balance),
		CreatedAt:      f.now,
		UpdatedAt:      f.now,
	})
	return id
}

func (f *fixture) balance(t *testing.T, fundID string) decimal.Decimal {
	t.Helper()
	fund, err := f.store.Funds().GetByID(t.Context(), fundID)
	require.NoError(t, err)
	return fund.CurrentBalance
}

// requireBalanced checks the fold invariant for every fund.
func (f *fixture) requireBalanced(t *testing.T) {
	t.Helper()
	results, err := f.ledger.ReconcileAll(t.Context())
	require.NoError(t, err)
	for _, r := range results {
		require.True(t, r.Balanced, "fund %s: cached %s, ledger %s", r.FundID, r.CachedBalance, r.LedgerBalance)
		require.False(t, r.CachedBalance.IsNegative(), "fund %s went negative", r.FundID)
	}
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
