package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/fund-ledger/internal/domain"
	"github.com/segyhp/fund-ledger/internal/lock"
	"github.com/segyhp/fund-ledger/internal/logger"
	"github.com/segyhp/fund-ledger/internal/repository"
	customError "github.com/segyhp/fund-ledger/pkg/errors"
	"github.com/segyhp/fund-ledger/pkg/utils"
)

const (
	defaultEntryPageSize = 50
	maxEntryPageSize     = 500
)

// LedgerService owns fund balances. Every balance change goes through ledgerTx.applyEntry.
type LedgerService struct {
	store repository.Store
	locks *lock.FundLocker
	now   func() time.Time
	log   *slog.Logger
}

func NewLedgerService(store repository.Store, locks *lock.FundLocker) *LedgerService {
	return &LedgerService{
		store: store,
		locks: locks,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.WithService("ledger"),
	}
}

// CreateFund registers a fund. The initial balance is the fold's starting point, not an entry.
func (s *LedgerService) CreateFund(ctx context.Context, actor domain.Actor, req *domain.CreateFundRequest) (*domain.Fund, error) {
	if !actor.CanOperate() {
		return nil, customError.WrapForbidden(actor.ID, "create funds")
	}

	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.Name)

	var v customError.Violations
	v.Addf(code == "", "code is required")
	v.Addf(name == "", "name is required")
	v.Addf(!req.Type.Valid(), "type %q is not a known fund type", req.Type)
	v.Addf(req.InitialBalance.IsNegative(), "initial balance must not be negative")
	v.Addf(!utils.IsWholeCents(req.InitialBalance), "initial balance must not have more than 2 decimal places")
	if err := v.Err("fund"); err != nil {
		return nil, err
	}

	now := s.now()
	fund := &domain.Fund{
		ID:             uuid.New().String(),
		Code:           code,
		Name:           name,
		Type:           req.Type,
		IsActive:       true,
		CurrentBalance: req.InitialBalance,
		InitialBalance: req.InitialBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		existing, err := tx.Funds().GetByCode(ctx, code)
		switch {
		case err == nil:
			return customError.WrapDuplicate("fund code", existing.Code)
		case !errors.Is(err, customError.ErrNotFound):
			return err
		}
		return tx.Funds().Create(ctx, fund)
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.log.InfoContext(ctx, "fund created", "fund_id", fund.ID, "code", fund.Code, "initial_balance", fund.InitialBalance.String())
	return fund, nil
}

func (s *LedgerService) GetFund(ctx context.Context, id string) (*domain.Fund, error) {
	fund, err := s.store.Funds().GetByID(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	return fund, nil
}

// ListActiveFunds returns active funds ordered by code; balances are included only when asked for.
func (s *LedgerService) ListActiveFunds(ctx context.Context, withBalance bool) ([]domain.FundSummary, error) {
	funds, err := s.store.Funds().List(ctx, true)
	if err != nil {
		return nil, storageError(err)
	}

	summaries := make([]domain.FundSummary, 0, len(funds))
	for _, f := range funds {
		summaries = append(summaries, f.Summary(withBalance))
	}
	return summaries, nil
}

// DeactivateFund retires a fund. Its entries and balance stay as they are.
func (s *LedgerService) DeactivateFund(ctx context.Context, actor domain.Actor, id string) (*domain.Fund, error) {
	if !actor.CanOperate() {
		return nil, customError.WrapForbidden(actor.ID, "deactivate funds")
	}

	var fund *domain.Fund
	err := s.inLedgerTx(ctx, actor, []string{id}, func(l *ledgerTx) error {
		fund = l.funds[id]
		if !fund.IsActive {
			return nil
		}
		if err := l.tx.Funds().SetActive(ctx, id, false, l.at); err != nil {
			return storageError(err)
		}
		fund.IsActive = false
		fund.UpdatedAt = l.at
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "fund deactivated", "fund_id", id, "actor", actor.ID)
	return fund, nil
}

func (s *LedgerService) RecordIncome(ctx context.Context, actor domain.Actor, fundID string, req *domain.MovementRequest) (*domain.LedgerEntry, error) {
	return s.recordMovement(ctx, actor, fundID, domain.Credit, domain.KindIncome, req)
}

func (s *LedgerService) RecordExpense(ctx context.Context, actor domain.Actor, fundID string, req *domain.MovementRequest) (*domain.LedgerEntry, error) {
	return s.recordMovement(ctx, actor, fundID, domain.Debit, domain.KindExpense, req)
}

func (s *LedgerService) recordMovement(ctx context.Context, actor domain.Actor, fundID string, dir domain.Direction, kind domain.EntryKind, req *domain.MovementRequest) (*domain.LedgerEntry, error) {
	if !actor.CanOperate() {
		return nil, customError.WrapForbidden(actor.ID, "record "+strings.ToLower(string(kind)))
	}

	var v customError.Violations
	v.Addf(!req.Amount.IsPositive(), "amount must be greater than 0")
	v.Addf(!utils.IsWholeCents(req.Amount), "amount must not have more than 2 decimal places")
	v.Addf(strings.TrimSpace(req.Description) == "", "description is required")
	v.Addf(req.ReferenceType != domain.RefNone && req.ReferenceID == "", "reference id is required with reference type")
	if err := v.Err(strings.ToLower(string(kind))); err != nil {
		return nil, err
	}

	var entry *domain.LedgerEntry
	err := s.inLedgerTx(ctx, actor, []string{fundID}, func(l *ledgerTx) error {
		if err := l.requireActive(fundID); err != nil {
			return err
		}
		var err error
		entry, err = l.applyEntry(ctx, domain.Posting{
			FundID:      fundID,
			Direction:   dir,
			Amount:      req.Amount,
			Kind:        kind,
			Reference:   domain.Reference{Type: req.ReferenceType, ID: req.ReferenceID},
			Description: req.Description,
		})
		return err
	})
	if err != nil {
		s.log.WarnContext(ctx, "movement rejected", "fund_id", fundID, "kind", kind, "code", customError.CodeOf(err))
		return nil, err
	}

	s.log.InfoContext(ctx, "movement recorded",
		"fund_id", fundID, "kind", kind, "amount", entry.Amount.String(), "balance_after", entry.BalanceAfter.String())
	return entry, nil
}

// TransferFunds moves money between two active funds as one debit/credit pair.
func (s *LedgerService) TransferFunds(ctx context.Context, actor domain.Actor, req *domain.TransferRequest) ([]*domain.LedgerEntry, error) {
	if !actor.CanOperate() {
		return nil, customError.WrapForbidden(actor.ID, "transfer between funds")
	}

	var v customError.Violations
	v.Addf(req.SourceFundID == "" || req.DestinationFundID == "", "source and destination funds are required")
	v.Addf(req.SourceFundID != "" && req.SourceFundID == req.DestinationFundID, "source and destination funds must differ")
	v.Addf(!req.Amount.IsPositive(), "amount must be greater than 0")
	v.Addf(!utils.IsWholeCents(req.Amount), "amount must not have more than 2 decimal places")
	if err := v.Err("transfer"); err != nil {
		return nil, err
	}

	var entries []*domain.LedgerEntry
	err := s.inLedgerTx(ctx, actor, []string{req.SourceFundID, req.DestinationFundID}, func(l *ledgerTx) error {
		if err := l.requireActive(req.SourceFundID, req.DestinationFundID); err != nil {
			return err
		}
		debit, credit, err := l.transfer(ctx, req.SourceFundID, req.DestinationFundID, req.Amount,
			domain.KindTransfer, domain.Reference{}, req.Description)
		if err != nil {
			return err
		}
		entries = []*domain.LedgerEntry{debit, credit}
		return nil
	})
	if err != nil {
		s.log.WarnContext(ctx, "transfer rejected",
			"source_fund_id", req.SourceFundID, "destination_fund_id", req.DestinationFundID, "code", customError.CodeOf(err))
		return nil, err
	}

	s.log.InfoContext(ctx, "transfer recorded",
		"source_fund_id", req.SourceFundID, "destination_fund_id", req.DestinationFundID,
		"amount", req.Amount.String(), "group_id", *entries[0].GroupID)
	return entries, nil
}

// ListEntries returns a page of a fund's ledger, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, fundID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	if _, err := s.GetFund(ctx, fundID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultEntryPageSize
	}
	if limit > maxEntryPageSize {
		limit = maxEntryPageSize
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.store.Entries().ListByFund(ctx, fundID, limit, offset)
	if err != nil {
		return nil, storageError(err)
	}
	return entries, nil
}

// FundStatistics breaks a fund's ledger down by kind.
func (s *LedgerService) FundStatistics(ctx context.Context, fundID string) (*domain.FundStatistics, error) {
	fund, totals, err := s.snapshot(ctx, fundID)
	if err != nil {
		return nil, err
	}

	return &domain.FundStatistics{
		FundID:         fund.ID,
		InitialBalance: fund.InitialBalance,
		CurrentBalance: fund.CurrentBalance,
		TotalIncome:    totals.Amount(domain.KindIncome, domain.Credit),
		TotalExpense:   totals.Amount(domain.KindExpense, domain.Debit),
		TransfersIn:    totals.Amount(domain.KindTransfer, domain.Credit),
		TransfersOut:   totals.Amount(domain.KindTransfer, domain.Debit),
		LoansOut:       totals.Amount(domain.KindLoanDisbursement, domain.Debit),
		LoansIn:        totals.Amount(domain.KindLoanDisbursement, domain.Credit),
		Repayments:     totals.Amount(domain.KindLoanRepayment, domain.Credit),
		Utilization:    fund.Utilization(),
		EntryCount:     totals.Entries,
	}, nil
}

// ReconcileFund folds the ledger and compares it against the cached balance.
func (s *LedgerService) ReconcileFund(ctx context.Context, fundID string) (*domain.Reconciliation, error) {
	fund, totals, err := s.snapshot(ctx, fundID)
	if err != nil {
		return nil, err
	}
	return reconcile(fund, totals), nil
}

// ReconcileAll reconciles every fund, active or not.
func (s *LedgerService) ReconcileAll(ctx context.Context) ([]*domain.Reconciliation, error) {
	funds, err := s.store.Funds().List(ctx, false)
	if err != nil {
		return nil, storageError(err)
	}

	results := make([]*domain.Reconciliation, 0, len(funds))
	for _, f := range funds {
		fund, totals, err := s.snapshot(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, reconcile(fund, totals))
	}
	return results, nil
}

// snapshot reads a fund and its ledger totals while holding the fund row,
// so no movement can commit between the two reads.
func (s *LedgerService) snapshot(ctx context.Context, fundID string) (*domain.Fund, *domain.FundTotals, error) {
	var (
		fund   *domain.Fund
		totals *domain.FundTotals
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		funds, err := tx.Funds().GetForUpdate(ctx, []string{fundID})
		if err != nil {
			return err
		}
		fund = funds[fundID]

		totals, err = tx.Entries().Totals(ctx, fundID)
		return err
	})
	if err != nil {
		return nil, nil, storageError(err)
	}
	return fund, totals, nil
}

func reconcile(fund *domain.Fund, totals *domain.FundTotals) *domain.Reconciliation {
	ledger := fund.InitialBalance.Add(totals.Credits).Sub(totals.Debits)
	diff := fund.CurrentBalance.Sub(ledger)
	return &domain.Reconciliation{
		FundID:        fund.ID,
		CachedBalance: fund.CurrentBalance,
		LedgerBalance: ledger,
		Difference:    diff,
		Balanced:      diff.IsZero(),
	}
}

// ledgerTx is one unit of work over a set of locked funds.
type ledgerTx struct {
	tx    repository.Store
	funds map[string]*domain.Fund
	actor domain.Actor
	at    time.Time
}

// inLedgerTx holds the per-fund sections for fundIDs, opens a transaction, row-locks the funds
// and runs fn. The sections are released only after the transaction has committed or rolled back.
func (s *LedgerService) inLedgerTx(ctx context.Context, actor domain.Actor, fundIDs []string, fn func(l *ledgerTx) error) error {
	unlock := s.locks.Lock(fundIDs...)
	defer unlock()

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		funds, err := tx.Funds().GetForUpdate(ctx, uniqueSorted(fundIDs))
		if err != nil {
			return storageError(err)
		}
		return fn(&ledgerTx{tx: tx, funds: funds, actor: actor, at: s.now()})
	})
	return storageError(err)
}

// requireActive fails with a validation error naming every inactive fund.
func (l *ledgerTx) requireActive(ids ...string) error {
	var v customError.Violations
	for _, id := range ids {
		if f, ok := l.funds[id]; ok {
			v.Addf(!f.IsActive, "fund %s (%s) is inactive", f.Code, f.ID)
		}
	}
	return v.Err("fund selection")
}

// applyEntry is the single place a fund balance changes: it validates, appends the entry and
// writes the new cached balance in the caller's transaction.
func (l *ledgerTx) applyEntry(ctx context.Context, p domain.Posting) (*domain.LedgerEntry, error) {
	if !p.Amount.IsPositive() {
		return nil, customError.WrapValidation("ledger entry", "amount must be greater than 0")
	}
	if !utils.IsWholeCents(p.Amount) {
		return nil, customError.WrapValidation("ledger entry", "amount must not have more than 2 decimal places")
	}

	fund, ok := l.funds[p.FundID]
	if !ok {
		return nil, fmt.Errorf("fund %s is not locked in this transaction", p.FundID)
	}

	var balance decimal.Decimal
	switch p.Direction {
	case domain.Credit:
		balance = fund.CurrentBalance.Add(p.Amount)
	case domain.Debit:
		if fund.CurrentBalance.LessThan(p.Amount) {
			return nil, customError.WrapInsufficientFunds(fund.ID, fund.CurrentBalance, p.Amount)
		}
		balance = fund.CurrentBalance.Sub(p.Amount)
	default:
		return nil, customError.WrapValidation("ledger entry", fmt.Sprintf("unknown direction %q", p.Direction))
	}

	entry := &domain.LedgerEntry{
		ID:           uuid.New().String(),
		FundID:       fund.ID,
		Direction:    p.Direction,
		Amount:       p.Amount,
		Kind:         p.Kind,
		BalanceAfter: balance,
		Description:  p.Description,
		CreatedBy:    l.actor.ID,
		CreatedAt:    l.at,
	}
	if p.CounterpartyFundID != "" {
		entry.CounterpartyFundID = optional(p.CounterpartyFundID)
	}
	if p.GroupID != "" {
		entry.GroupID = optional(p.GroupID)
	}
	if !p.Reference.IsZero() {
		entry.ReferenceType = optional(string(p.Reference.Type))
		entry.ReferenceID = optional(p.Reference.ID)
	}

	if err := l.tx.Entries().Create(ctx, entry); err != nil {
		return nil, storageError(err)
	}
	if err := l.tx.Funds().UpdateBalance(ctx, fund.ID, balance, l.at); err != nil {
		return nil, storageError(err)
	}

	fund.CurrentBalance = balance
	fund.UpdatedAt = l.at
	return entry, nil
}

// transfer writes the debit on from and the credit on to under one group id.
func (l *ledgerTx) transfer(ctx context.Context, from, to string, amount decimal.Decimal, kind domain.EntryKind, ref domain.Reference, description string) (*domain.LedgerEntry, *domain.LedgerEntry, error) {
	group := uuid.New().String()

	debit, err := l.applyEntry(ctx, domain.Posting{
		FundID:             from,
		Direction:          domain.Debit,
		Amount:             amount,
		Kind:               kind,
		CounterpartyFundID: to,
		GroupID:            group,
		Reference:          ref,
		Description:        description,
	})
	if err != nil {
		return nil, nil, err
	}

	credit, err := l.applyEntry(ctx, domain.Posting{
		FundID:             to,
		Direction:          domain.Credit,
		Amount:             amount,
		Kind:               kind,
		CounterpartyFundID: from,
		GroupID:            group,
		Reference:          ref,
		Description:        description,
	})
	if err != nil {
		return nil, nil, err
	}

	return debit, credit, nil
}

// storageError passes business errors through and wraps everything else as a database failure.
func storageError(err error) error {
	if err == nil || customError.CodeOf(err) != "" {
		return err
	}
	return customError.WrapDatabaseError(err)
}

func optional(s string) *string {
	return &s
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
