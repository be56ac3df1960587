package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/segyhp/fund-ledger/internal/domain"
	"github.com/segyhp/fund-ledger/pkg/response"
)

// CreateFund handles POST /funds
func (h *LedgerHandler) CreateFund(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateFundRequest
	if !h.decode(w, r, &req) {
		return
	}

	fund, err := h.funds.CreateFund(r.Context(), actorFrom(r), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Created(w, fund)
}

// GetFund handles GET /funds/{fundId}
func (h *LedgerHandler) GetFund(w http.ResponseWriter, r *http.Request) {
	fund, err := h.funds.GetFund(r.Context(), mux.Vars(r)["fundId"])
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, fund)
}

// ListActiveFunds handles GET /funds?with_balance=true
func (h *LedgerHandler) ListActiveFunds(w http.ResponseWriter, r *http.Request) {
	withBalance, err := queryBool(r, "with_balance")
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	funds, err := h.funds.ListActiveFunds(r.Context(), withBalance)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, funds)
}

func (h *LedgerHandler) DeactivateFund(w http.ResponseWriter, r *http.Request) {
	fund, err := h.funds.DeactivateFund(r.Context(), actorFrom(r), mux.Vars(r)["fundId"])
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, fund)
}

// RecordIncome handles POST /funds/{fundId}/income
func (h *LedgerHandler) RecordIncome(w http.ResponseWriter, r *http.Request) {
	var req domain.MovementRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.funds.RecordIncome(r.Context(), actorFrom(r), mux.Vars(r)["fundId"], &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Created(w, entry)
}

// RecordExpense handles POST /funds/{fundId}/expenses
func (h *LedgerHandler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.MovementRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.funds.RecordExpense(r.Context(), actorFrom(r), mux.Vars(r)["fundId"], &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Created(w, entry)
}

func (h *LedgerHandler) TransferFunds(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	entries, err := h.funds.TransferFunds(r.Context(), actorFrom(r), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Created(w, entries)
}

// ListEntries handles GET /funds/{fundId}/entries?limit=&offset=
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		response.BusinessError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	entries, err := h.funds.ListEntries(r.Context(), mux.Vars(r)["fundId"], limit, offset)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, entries)
}

func (h *LedgerHandler) FundStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.funds.FundStatistics(r.Context(), mux.Vars(r)["fundId"])
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, stats)
}

func (h *LedgerHandler) ReconcileFund(w http.ResponseWriter, r *http.Request) {
	result, err := h.funds.ReconcileFund(r.Context(), mux.Vars(r)["fundId"])
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, result)
}

// AllocatePayment handles POST /allocations
func (h *LedgerHandler) AllocatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.AllocationRequest
	if !h.decode(w, r, &req) {
		return
	}

	entries, err := h.allocator.AllocatePayment(r.Context(), actorFrom(r), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Created(w, entries)
}
