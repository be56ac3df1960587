package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/segyhp/fund-ledger/internal/domain"
	"github.com/segyhp/fund-ledger/pkg/response"
)

// RequestLoan handles POST /loans
func (h *LedgerHandler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.LoanRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.loans.RequestLoan(r.Context(), actorFrom(r), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Created(w, loan)
}

// GetLoan handles GET /loans/{loanId}
func (h *LedgerHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.GetLoan(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, loan)
}

// ListLoans handles GET /loans?status=&fund_id=&overdue_only=
func (h *LedgerHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	overdueOnly, err := queryBool(r, "overdue_only")
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	filter := domain.LoanFilter{
		Status:      domain.LoanStatus(r.URL.Query().Get("status")),
		FundID:      r.URL.Query().Get("fund_id"),
		OverdueOnly: overdueOnly,
	}

	loans, err := h.loans.ListLoans(r.Context(), filter)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, loans)
}

// LoanStatistics handles GET /loans/statistics?fund_id=
func (h *LedgerHandler) LoanStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.loans.LoanStatistics(r.Context(), r.URL.Query().Get("fund_id"))
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, stats)
}

func (h *LedgerHandler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.ApproveLoanRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	loan, err := h.loans.ApproveLoan(r.Context(), actorFrom(r), mux.Vars(r)["loanId"], &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, loan)
}

func (h *LedgerHandler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.ReasonRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.loans.RejectLoan(r.Context(), actorFrom(r), mux.Vars(r)["loanId"], req.Reason)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, loan)
}

func (h *LedgerHandler) DisburseLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.DisburseLoan(r.Context(), actorFrom(r), mux.Vars(r)["loanId"])
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, loan)
}

func (h *LedgerHandler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.ReasonRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.loans.CancelLoan(r.Context(), actorFrom(r), mux.Vars(r)["loanId"], req.Reason)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, loan)
}

// RecordLoanPayment handles POST /loans/{loanId}/payments
func (h *LedgerHandler) RecordLoanPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.LoanPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.loans.RecordLoanPayment(r.Context(), actorFrom(r), mux.Vars(r)["loanId"], req.Amount)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Created(w, loan)
}

func (h *LedgerHandler) ListLoanPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.loans.ListLoanPayments(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, payments)
}
