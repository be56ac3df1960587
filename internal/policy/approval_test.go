package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/segyhp/fund-ledger/internal/config"
	"github.com/segyhp/fund-ledger/internal/domain"
)

func TestApprovalPolicy_MaxLoanAmount(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		fund     *domain.Fund
		expected decimal.Decimal
	}{
		{"thirty percent of balance", &domain.Fund{CurrentBalance: decimal.NewFromInt(1000000)}, decimal.NewFromInt(300000)},
		{"floored", &domain.Fund{CurrentBalance: decimal.NewFromInt(1001)}, decimal.NewFromInt(300)},
		{"empty fund", &domain.Fund{CurrentBalance: decimal.Zero}, decimal.Zero},
		{"nil fund", nil, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, p.MaxLoanAmount(tt.fund).Equal(tt.expected))
		})
	}
}

func TestApprovalPolicy_RequiresElevatedApproval(t *testing.T) {
	p := DefaultPolicy()

	assert.False(t, p.RequiresElevatedApproval(decimal.NewFromInt(4999999)))
	assert.True(t, p.RequiresElevatedApproval(decimal.NewFromInt(5000000)))
	assert.True(t, p.RequiresElevatedApproval(decimal.NewFromInt(7500000)))
}

func TestApprovalPolicy_CanApprove(t *testing.T) {
	p := DefaultPolicy()
	small := decimal.NewFromInt(200000)
	large := decimal.NewFromInt(6000000)

	operator := domain.Actor{ID: "u1", Role: domain.RoleOperator}
	admin := domain.Actor{ID: "u2", Role: domain.RoleAdmin}
	viewer := domain.Actor{ID: "u3", Role: domain.RoleViewer}
	anonymous := domain.Actor{Role: domain.RoleAdmin}

	assert.True(t, p.CanApprove(operator, small))
	assert.False(t, p.CanApprove(operator, large))
	assert.True(t, p.CanApprove(admin, large))
	assert.False(t, p.CanApprove(viewer, small))
	assert.False(t, p.CanApprove(anonymous, small))
}

func TestApprovalPolicy_DueDateAllowed(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)

	assert.False(t, p.DueDateAllowed(now, now.Add(2*time.Hour)), "same day is below the lead time")
	assert.True(t, p.DueDateAllowed(now, now.AddDate(0, 0, 1)))
	assert.True(t, p.DueDateAllowed(now, now.AddDate(0, 0, 30)))
	assert.True(t, p.DueDateAllowed(now, now.AddDate(0, 0, 365)))
	assert.False(t, p.DueDateAllowed(now, now.AddDate(0, 0, 366)))
	assert.False(t, p.DueDateAllowed(now, now.AddDate(0, 0, -1)))

	earliest, latest := p.DueDateWindow(now)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), earliest)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), latest)
}

func TestApprovalPolicy_ReasonAllowed(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.ReasonAllowed("field trip supplies"))
	assert.False(t, p.ReasonAllowed("   short   "))
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{Business: config.BusinessConfig{
		LendingCapRatio:     "0.25",
		ApprovalThreshold:   "100000",
		MinLoanLeadDays:     3,
		MaxLoanHorizonDays:  90,
		MinLoanReasonLength: 5,
		AllocationTolerance: "0.05",
		ElevatedRoles:       "treasurer",
	}}

	p := FromConfig(cfg)
	assert.True(t, p.LendingCapRatio.Equal(decimal.NewFromFloat(0.25)))
	assert.True(t, p.ApprovalThreshold.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, 3, p.MinLeadDays)
	assert.Equal(t, 90, p.MaxHorizonDays)
	assert.True(t, p.IsElevated("treasurer"))
	assert.False(t, p.IsElevated(domain.RoleAdmin))
}
