package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/fund-ledger/internal/domain"
	"github.com/segyhp/fund-ledger/internal/idempotency"
	"github.com/segyhp/fund-ledger/internal/logger"
	customError "github.com/segyhp/fund-ledger/pkg/errors"
	"github.com/segyhp/fund-ledger/pkg/utils"
)

// AllocatorService splits one external payment across destination funds.
type AllocatorService struct {
	ledger    *LedgerService
	tolerance decimal.Decimal
	guard     idempotency.Guard
	log       *slog.Logger
}

// NewAllocatorService builds the allocator. A nil guard leaves duplicate detection to the ledger lookup alone.
func NewAllocatorService(ledger *LedgerService, tolerance decimal.Decimal, guard idempotency.Guard) *AllocatorService {
	return &AllocatorService{
		ledger:    ledger,
		tolerance: tolerance,
		guard:     guard,
		log:       logger.WithService("allocator"),
	}
}

// AllocatePayment credits every allocation as income in one transaction, or nothing at all.
func (s *AllocatorService) AllocatePayment(ctx context.Context, actor domain.Actor, req *domain.AllocationRequest) ([]*domain.LedgerEntry, error) {
	if !actor.CanOperate() {
		return nil, customError.WrapForbidden(actor.ID, "allocate payments")
	}

	if err := validateAllocation(req); err != nil {
		return nil, err
	}

	amounts := make([]decimal.Decimal, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		amounts = append(amounts, a.Amount)
	}
	sum := utils.SumAmounts(amounts...)
	if !utils.WithinTolerance(sum, req.Total, s.tolerance) {
		err := customError.WrapUnbalancedAllocation(req.Total, sum)
		s.log.WarnContext(ctx, "allocation rejected", "payment_reference", req.PaymentReference, "error", err.Error())
		return nil, err
	}

	ref := req.Reference()
	key := idempotency.Key(string(ref.Type), ref.ID)
	if s.guard != nil {
		claimed, err := s.guard.Claim(ctx, key)
		if err != nil {
			return nil, customError.WrapCacheError(err)
		}
		if !claimed {
			return nil, customError.WrapDuplicate("payment allocation", ref.ID)
		}
	}

	entries, err := s.apply(ctx, actor, req, ref)
	if err != nil {
		if s.guard != nil {
			if rerr := s.guard.Release(ctx, key); rerr != nil {
				s.log.ErrorContext(ctx, "failed to release allocation claim", "key", key, "error", rerr.Error())
			}
		}
		s.log.WarnContext(ctx, "allocation rejected", "payment_reference", req.PaymentReference, "code", customError.CodeOf(err))
		return nil, err
	}

	s.log.InfoContext(ctx, "payment allocated",
		"payment_reference", req.PaymentReference, "funds", len(entries), "total", sum.String())
	return entries, nil
}

func (s *AllocatorService) apply(ctx context.Context, actor domain.Actor, req *domain.AllocationRequest, ref domain.Reference) ([]*domain.LedgerEntry, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Payment allocation " + req.PaymentReference
	}

	var entries []*domain.LedgerEntry
	err := s.ledger.inLedgerTx(ctx, actor, req.FundIDs(), func(l *ledgerTx) error {
		exists, err := l.tx.Entries().ExistsByReference(ctx, ref)
		if err != nil {
			return storageError(err)
		}
		if exists {
			return customError.WrapDuplicate("payment allocation", ref.ID)
		}

		if err := l.requireActive(req.FundIDs()...); err != nil {
			return err
		}

		group := uuid.New().String()
		entries = make([]*domain.LedgerEntry, 0, len(req.Allocations))
		for _, a := range req.Allocations {
			entry, err := l.applyEntry(ctx, domain.Posting{
				FundID:      a.FundID,
				Direction:   domain.Credit,
				Amount:      a.Amount,
				Kind:        domain.KindIncome,
				GroupID:     group,
				Reference:   ref,
				Description: description,
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func validateAllocation(req *domain.AllocationRequest) error {
	var v customError.Violations
	v.Addf(strings.TrimSpace(req.PaymentReference) == "", "payment reference is required")
	v.Addf(!req.Total.IsPositive(), "payment total must be greater than 0")
	v.Addf(!utils.IsWholeCents(req.Total), "payment total must not have more than 2 decimal places")
	v.Addf(len(req.Allocations) == 0, "at least one allocation is required")

	seen := make(map[string]struct{}, len(req.Allocations))
	for i, a := range req.Allocations {
		v.Addf(a.FundID == "", "allocation %d: fund is required", i+1)
		v.Addf(!a.Amount.IsPositive(), "allocation %d: amount must be greater than 0", i+1)
		v.Addf(!utils.IsWholeCents(a.Amount), "allocation %d: amount must not have more than 2 decimal places", i+1)
		if a.FundID == "" {
			continue
		}
		if _, dup := seen[a.FundID]; dup {
			v.Addf(true, "allocation %d: fund %s appears more than once", i+1, a.FundID)
		}
		seen[a.FundID] = struct{}{}
	}

	return v.Err("payment allocation")
}
