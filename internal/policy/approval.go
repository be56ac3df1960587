// Package policy holds the approval rules consulted by the loan engine.
// It owns no state; every decision is a function of its inputs.
package policy

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/segyhp/fund-ledger/internal/config"
	"github.com/segyhp/fund-ledger/internal/domain"
	"github.com/segyhp/fund-ledger/pkg/utils"
)

// ApprovalPolicy holds the configurable thresholds for inter-fund lending.
type ApprovalPolicy struct {
	LendingCapRatio     decimal.Decimal
	ApprovalThreshold   decimal.Decimal
	MinLeadDays         int
	MaxHorizonDays      int
	MinReasonLength     int
	AllocationTolerance decimal.Decimal
	ElevatedRoles       map[domain.Role]struct{}
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() ApprovalPolicy {
	return ApprovalPolicy{
		LendingCapRatio:     decimal.NewFromFloat(0.30),
		ApprovalThreshold:   decimal.NewFromInt(5000000),
		MinLeadDays:         1,
		MaxHorizonDays:      365,
		MinReasonLength:     10,
		AllocationTolerance: decimal.NewFromFloat(0.01),
		ElevatedRoles: map[domain.Role]struct{}{
			domain.RoleAdmin:    {},
			domain.RoleDirector: {},
		},
	}
}

// FromConfig builds the policy from the business section of the configuration.
func FromConfig(cfg *config.Config) ApprovalPolicy {
	roles := make(map[domain.Role]struct{})
	for _, r := range cfg.GetElevatedRoles() {
		roles[domain.Role(r)] = struct{}{}
	}
	return ApprovalPolicy{
		LendingCapRatio:     cfg.GetLendingCapRatio(),
		ApprovalThreshold:   cfg.GetApprovalThreshold(),
		MinLeadDays:         cfg.Business.MinLoanLeadDays,
		MaxHorizonDays:      cfg.Business.MaxLoanHorizonDays,
		MinReasonLength:     cfg.Business.MinLoanReasonLength,
		AllocationTolerance: cfg.GetAllocationTolerance(),
		ElevatedRoles:       roles,
	}
}

// RequiresElevatedApproval reports whether a loan of amount needs an elevated approver.
func (p ApprovalPolicy) RequiresElevatedApproval(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(p.ApprovalThreshold)
}

// MaxLoanAmount is floor(currentBalance * lendingCapRatio).
func (p ApprovalPolicy) MaxLoanAmount(fund *domain.Fund) decimal.Decimal {
	if fund == nil || !fund.CurrentBalance.IsPositive() {
		return decimal.Zero
	}
	return utils.FloorFraction(fund.CurrentBalance, p.LendingCapRatio)
}

// IsElevated reports whether role may approve loans at or above the threshold.
func (p ApprovalPolicy) IsElevated(role domain.Role) bool {
	_, ok := p.ElevatedRoles[role]
	return ok
}

// CanApprove reports whether actor may approve a loan of amount.
func (p ApprovalPolicy) CanApprove(actor domain.Actor, amount decimal.Decimal) bool {
	if !actor.CanOperate() {
		return false
	}
	if p.RequiresElevatedApproval(amount) {
		return p.IsElevated(actor.Role)
	}
	return true
}

// DueDateWindow returns the earliest and latest acceptable due dates for a request made at now.
func (p ApprovalPolicy) DueDateWindow(now time.Time) (earliest, latest time.Time) {
	start := utils.StartOfDay(now)
	return start.AddDate(0, 0, p.MinLeadDays), start.AddDate(0, 0, p.MaxHorizonDays)
}

// DueDateAllowed reports whether dueDate falls within [minLeadDays, maxHorizon] of now, by calendar day.
func (p ApprovalPolicy) DueDateAllowed(now, dueDate time.Time) bool {
	days := utils.DaysBetween(now, dueDate)
	return days >= p.MinLeadDays && days <= p.MaxHorizonDays
}

// ReasonAllowed reports whether the trimmed reason meets the minimum length.
func (p ApprovalPolicy) ReasonAllowed(reason string) bool {
	return len([]rune(strings.TrimSpace(reason))) >= p.MinReasonLength
}
