package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a ledger entry relative to its fund.
type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

// EntryKind classifies what caused a balance change.
type EntryKind string

const (
	KindIncome           EntryKind = "INCOME"
	KindExpense          EntryKind = "EXPENSE"
	KindTransfer         EntryKind = "TRANSFER"
	KindLoanDisbursement EntryKind = "LOAN_DISBURSEMENT"
	KindLoanRepayment    EntryKind = "LOAN_REPAYMENT"
)

// ReferenceType names what originated an entry.
type ReferenceType string

const (
	RefNone    ReferenceType = ""
	RefPayment ReferenceType = "payment"
	RefInvoice ReferenceType = "invoice"
	RefLoan    ReferenceType = "loan"
	RefManual  ReferenceType = "manual"
)

// Reference points at the payment, invoice or loan an entry came from.
type Reference struct {
	Type ReferenceType `json:"type,omitempty"`
	ID   string        `json:"id,omitempty"`
}

// IsZero reports whether no reference was given.
func (r Reference) IsZero() bool {
	return r.Type == RefNone && r.ID == ""
}

// LedgerEntry is an immutable balance-affecting record. Corrections are new offsetting entries.
type LedgerEntry struct {
	ID                 string          `json:"id" db:"id"`
	FundID             string          `json:"fund_id" db:"fund_id"`
	Direction          Direction       `json:"direction" db:"direction"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	Kind               EntryKind       `json:"kind" db:"kind"`
	CounterpartyFundID *string         `json:"counterparty_fund_id,omitempty" db:"counterparty_fund_id"`
	GroupID            *string         `json:"group_id,omitempty" db:"group_id"`
	ReferenceType      *string         `json:"reference_type,omitempty" db:"reference_type"`
	ReferenceID        *string         `json:"reference_id,omitempty" db:"reference_id"`
	BalanceAfter       decimal.Decimal `json:"balance_after" db:"balance_after"`
	Description        string          `json:"description" db:"description"`
	CreatedBy          string          `json:"created_by" db:"created_by"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// Signed returns the amount with the sign it contributes to the fund balance.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.Direction == Debit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Posting is a request to the ledger for a single balance change.
type Posting struct {
	FundID             string
	Direction          Direction
	Amount             decimal.Decimal
	Kind               EntryKind
	CounterpartyFundID string
	GroupID            string
	Reference          Reference
	Description        string
}

// DirectionTotals sums amounts per direction.
type DirectionTotals map[Direction]decimal.Decimal

// FundTotals aggregates a fund's ledger by kind and direction.
type FundTotals struct {
	Credits decimal.Decimal               `json:"credits"`
	Debits  decimal.Decimal               `json:"debits"`
	ByKind  map[EntryKind]DirectionTotals `json:"by_kind"`
	Entries int                           `json:"entries"`
}

// Add folds one entry into the totals.
func (t *FundTotals) Add(kind EntryKind, dir Direction, amount decimal.Decimal, count int) {
	if t.ByKind == nil {
		t.ByKind = make(map[EntryKind]DirectionTotals)
	}
	if t.ByKind[kind] == nil {
		t.ByKind[kind] = make(DirectionTotals)
	}
	t.ByKind[kind][dir] = t.ByKind[kind][dir].Add(amount)
	if dir == Credit {
		t.Credits = t.Credits.Add(amount)
	} else {
		t.Debits = t.Debits.Add(amount)
	}
	t.Entries += count
}

// Amount returns the total for a kind/direction pair.
func (t *FundTotals) Amount(kind EntryKind, dir Direction) decimal.Decimal {
	return t.ByKind[kind][dir]
}

// FundStatistics is the audit breakdown of one fund.
type FundStatistics struct {
	FundID         string          `json:"fund_id"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	TotalIncome    decimal.Decimal `json:"total_income"`
	TotalExpense   decimal.Decimal `json:"total_expense"`
	TransfersIn    decimal.Decimal `json:"transfers_in"`
	TransfersOut   decimal.Decimal `json:"transfers_out"`
	LoansOut       decimal.Decimal `json:"loans_disbursed_out"`
	LoansIn        decimal.Decimal `json:"loans_received"`
	Repayments     decimal.Decimal `json:"repayments_received"`
	Utilization    decimal.Decimal `json:"utilization_percentage"`
	EntryCount     int             `json:"entry_count"`
}

// Reconciliation compares the cached balance against the ledger fold.
type Reconciliation struct {
	FundID        string          `json:"fund_id"`
	CachedBalance decimal.Decimal `json:"cached_balance"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	Difference    decimal.Decimal `json:"difference"`
	Balanced      bool            `json:"balanced"`
}

// DTOs for requests and responses

type MovementRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"required,money_positive"`
	Description   string          `json:"description" validate:"required,max=255"`
	ReferenceType ReferenceType   `json:"reference_type" validate:"omitempty,oneof=payment invoice loan manual"`
	ReferenceID   string          `json:"reference_id" validate:"required_with=ReferenceType"`
}

type TransferRequest struct {
	SourceFundID      string          `json:"source_fund_id" validate:"required"`
	DestinationFundID string          `json:"destination_fund_id" validate:"required,nefield=SourceFundID"`
	Amount            decimal.Decimal `json:"amount" validate:"required,money_positive"`
	Description       string          `json:"description" validate:"required,max=255"`
}
