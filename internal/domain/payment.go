package domain

import (
	"github.com/shopspring/decimal"
)

// Allocation is one share of an external payment routed to a fund.
type Allocation struct {
	FundID string          `json:"fund_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// AllocationRequest splits one paid invoice or payment across destination funds.
// The allocations are transient; only the resulting ledger entries are stored.
type AllocationRequest struct {
	PaymentReference string          `json:"payment_reference" validate:"required,max=64"`
	ReferenceType    ReferenceType   `json:"reference_type" validate:"omitempty,oneof=payment invoice"`
	Total            decimal.Decimal `json:"total"`
	Description      string          `json:"description" validate:"max=255"`
	Allocations      []Allocation    `json:"allocations" validate:"required,min=1,dive"`
}

// Reference returns the originating payment reference attached to every entry.
func (r *AllocationRequest) Reference() Reference {
	refType := r.ReferenceType
	if refType == RefNone {
		refType = RefPayment
	}
	return Reference{Type: refType, ID: r.PaymentReference}
}

// FundIDs returns the referenced fund ids in request order.
func (r *AllocationRequest) FundIDs() []string {
	ids := make([]string, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		ids = append(ids, a.FundID)
	}
	return ids
}
