package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundType is the closed set of fund categories.
type FundType string

const (
	FundTypeOperational FundType = "operational"
	FundTypeTuition     FundType = "tuition"
	FundTypeEvents      FundType = "events"
	FundTypeExternal    FundType = "external"
	FundTypeEmergency   FundType = "emergency"
	FundTypeScholarship FundType = "scholarship"
	FundTypeMaintenance FundType = "maintenance"
)

var fundTypes = map[FundType]struct{}{
	FundTypeOperational: {},
	FundTypeTuition:     {},
	FundTypeEvents:      {},
	FundTypeExternal:    {},
	FundTypeEmergency:   {},
	FundTypeScholarship: {},
	FundTypeMaintenance: {},
}

// Valid reports whether t belongs to the closed set of fund types.
func (t FundType) Valid() bool {
	_, ok := fundTypes[t]
	return ok
}

// Fund is a named pool of money. CurrentBalance is only ever changed by the ledger.
type Fund struct {
	ID             string          `json:"id" db:"id"`
	Code           string          `json:"code" db:"code"`
	Name           string          `json:"name" db:"name"`
	Type           FundType        `json:"type" db:"type"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	CurrentBalance decimal.Decimal `json:"current_balance" db:"current_balance"`
	InitialBalance decimal.Decimal `json:"initial_balance" db:"initial_balance"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// FundSummary is the list view of a fund; the balance is omitted unless requested.
type FundSummary struct {
	ID             string           `json:"id"`
	Code           string           `json:"code"`
	Name           string           `json:"name"`
	Type           FundType         `json:"type"`
	CurrentBalance *decimal.Decimal `json:"current_balance,omitempty"`
}

// Summary returns the list view of the fund.
func (f *Fund) Summary(withBalance bool) FundSummary {
	s := FundSummary{ID: f.ID, Code: f.Code, Name: f.Name, Type: f.Type}
	if withBalance {
		balance := f.CurrentBalance
		s.CurrentBalance = &balance
	}
	return s
}

// Utilization is (initial - current) / initial as a percentage. A fund that started empty reports zero.
func (f *Fund) Utilization() decimal.Decimal {
	if !f.InitialBalance.IsPositive() {
		return decimal.Zero
	}
	used := f.InitialBalance.Sub(f.CurrentBalance)
	return used.Div(f.InitialBalance).Mul(decimal.NewFromInt(100)).Round(2)
}

// DTOs for requests and responses

type CreateFundRequest struct {
	Code           string          `json:"code" validate:"required,max=32"`
	Name           string          `json:"name" validate:"required,max=128"`
	Type           FundType        `json:"type" validate:"required"`
	InitialBalance decimal.Decimal `json:"initial_balance" validate:"money_nonnegative"`
}
