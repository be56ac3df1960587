package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/segyhp/fund-ledger/internal/domain"
	customError "github.com/segyhp/fund-ledger/pkg/errors"
	"github.com/segyhp/fund-ledger/pkg/response"
)

const (
	actorIDHeader   = "X-Actor-ID"
	actorRoleHeader = "X-Actor-Role"
)

// FundService is the fund store and ledger surface.
type FundService interface {
	CreateFund(ctx context.Context, actor domain.Actor, req *domain.CreateFundRequest) (*domain.Fund, error)
	GetFund(ctx context.Context, id string) (*domain.Fund, error)
	ListActiveFunds(ctx context.Context, withBalance bool) ([]domain.FundSummary, error)
	DeactivateFund(ctx context.Context, actor domain.Actor, id string) (*domain.Fund, error)
	RecordIncome(ctx context.Context, actor domain.Actor, fundID string, req *domain.MovementRequest) (*domain.LedgerEntry, error)
	RecordExpense(ctx context.Context, actor domain.Actor, fundID string, req *domain.MovementRequest) (*domain.LedgerEntry, error)
	TransferFunds(ctx context.Context, actor domain.Actor, req *domain.TransferRequest) ([]*domain.LedgerEntry, error)
	ListEntries(ctx context.Context, fundID string, limit, offset int) ([]*domain.LedgerEntry, error)
	FundStatistics(ctx context.Context, fundID string) (*domain.FundStatistics, error)
	ReconcileFund(ctx context.Context, fundID string) (*domain.Reconciliation, error)
}

// LoanService is the loan engine surface.
type LoanService interface {
	RequestLoan(ctx context.Context, actor domain.Actor, req *domain.LoanRequest) (*domain.LoanView, error)
	ApproveLoan(ctx context.Context, actor domain.Actor, id string, req *domain.ApproveLoanRequest) (*domain.LoanView, error)
	RejectLoan(ctx context.Context, actor domain.Actor, id, reason string) (*domain.LoanView, error)
	DisburseLoan(ctx context.Context, actor domain.Actor, id string) (*domain.LoanView, error)
	RecordLoanPayment(ctx context.Context, actor domain.Actor, id string, amount decimal.Decimal) (*domain.LoanView, error)
	CancelLoan(ctx context.Context, actor domain.Actor, id, reason string) (*domain.LoanView, error)
	GetLoan(ctx context.Context, id string) (*domain.LoanView, error)
	ListLoans(ctx context.Context, filter domain.LoanFilter) ([]domain.LoanView, error)
	ListLoanPayments(ctx context.Context, loanID string) ([]*domain.LoanPayment, error)
	LoanStatistics(ctx context.Context, fundID string) (*domain.LoanStatistics, error)
}

// PaymentAllocator is the payment allocation surface.
type PaymentAllocator interface {
	AllocatePayment(ctx context.Context, actor domain.Actor, req *domain.AllocationRequest) ([]*domain.LedgerEntry, error)
}

type LedgerHandler struct {
	funds     FundService
	loans     LoanService
	allocator PaymentAllocator
	validator *validator.Validate
}

func NewLedgerHandler(funds FundService, loans LoanService, allocator PaymentAllocator) *LedgerHandler {
	return &LedgerHandler{
		funds:     funds,
		loans:     loans,
		allocator: allocator,
		validator: NewValidator(),
	}
}

// RegisterRoutes mounts the ledger API on r.
func (h *LedgerHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/funds", h.CreateFund).Methods("POST")
	r.HandleFunc("/funds", h.ListActiveFunds).Methods("GET")
	r.HandleFunc("/funds/{fundId}", h.GetFund).Methods("GET")
	r.HandleFunc("/funds/{fundId}/deactivate", h.DeactivateFund).Methods("POST")
	r.HandleFunc("/funds/{fundId}/income", h.RecordIncome).Methods("POST")
	r.HandleFunc("/funds/{fundId}/expenses", h.RecordExpense).Methods("POST")
	r.HandleFunc("/funds/{fundId}/entries", h.ListEntries).Methods("GET")
	r.HandleFunc("/funds/{fundId}/statistics", h.FundStatistics).Methods("GET")
	r.HandleFunc("/funds/{fundId}/reconciliation", h.ReconcileFund).Methods("GET")

	r.HandleFunc("/transfers", h.TransferFunds).Methods("POST")
	r.HandleFunc("/allocations", h.AllocatePayment).Methods("POST")

	r.HandleFunc("/loans", h.RequestLoan).Methods("POST")
	r.HandleFunc("/loans", h.ListLoans).Methods("GET")
	r.HandleFunc("/loans/statistics", h.LoanStatistics).Methods("GET")
	r.HandleFunc("/loans/{loanId}", h.GetLoan).Methods("GET")
	r.HandleFunc("/loans/{loanId}/approve", h.ApproveLoan).Methods("POST")
	r.HandleFunc("/loans/{loanId}/reject", h.RejectLoan).Methods("POST")
	r.HandleFunc("/loans/{loanId}/disburse", h.DisburseLoan).Methods("POST")
	r.HandleFunc("/loans/{loanId}/cancel", h.CancelLoan).Methods("POST")
	r.HandleFunc("/loans/{loanId}/payments", h.RecordLoanPayment).Methods("POST")
	r.HandleFunc("/loans/{loanId}/payments", h.ListLoanPayments).Methods("GET")
}

// NewValidator returns a validator that understands decimal amounts.
func NewValidator() *validator.Validate {
	v := validator.New()

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("money_positive", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	_ = v.RegisterValidation("money_nonnegative", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && !d.IsNegative()
	})

	return v
}

// actorFrom reads the caller identity set by the upstream gateway.
func actorFrom(r *http.Request) domain.Actor {
	return domain.Actor{
		ID:   r.Header.Get(actorIDHeader),
		Role: domain.Role(r.Header.Get(actorRoleHeader)),
	}
}

// decode reads a JSON body into dst and runs struct validation.
func (h *LedgerHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BusinessError(w, customError.WrapValidation("request body", err.Error()))
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			response.BusinessError(w, customError.WrapValidation("request", err.Error()))
			return false
		}
		details := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag()))
		}
		response.BusinessError(w, customError.WrapValidation("request", details...))
		return false
	}

	return true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, customError.WrapValidation("query", fmt.Sprintf("%s must be an integer", key))
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, customError.WrapValidation("query", fmt.Sprintf("%s must be true or false", key))
	}
	return b, nil
}
