package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/fund-ledger/internal/domain"
	"github.com/segyhp/fund-ledger/internal/handler"
	"github.com/segyhp/fund-ledger/internal/mocks"
	customError "github.com/segyhp/fund-ledger/pkg/errors"
)

var operator = domain.Actor{ID: "u-1", Role: domain.RoleOperator}

type apiResponse struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details []string        `json:"details"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	router    *mux.Router
	funds     *mocks.MockFundService
	loans     *mocks.MockLoanService
	allocator *mocks.MockPaymentAllocator
}

func newTestAPI() *testAPI {
	api := &testAPI{
		router:    mux.NewRouter(),
		funds:     &mocks.MockFundService{},
		loans:     &mocks.MockLoanService{},
		allocator: &mocks.MockPaymentAllocator{},
	}
	handler.NewLedgerHandler(api.funds, api.loans, api.allocator).RegisterRoutes(api.router)
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", operator.ID)
	req.Header.Set("X-Actor-Role", string(operator.Role))

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestLedgerHandler_CreateFund(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		setupMock      func(*mocks.MockFundService)
		expectedStatus int
		expectedCode   string
		detail         string
	}{
		{
			name: "created",
			body: map[string]interface{}{"code": "TUI", "name": "Tuition", "type": "tuition", "initial_balance": "250000.00"},
			setupMock: func(m *mocks.MockFundService) {
				m.On("CreateFund", mock.Anything, operator, mock.MatchedBy(func(req *domain.CreateFundRequest) bool {
					return req.Code == "TUI" && req.InitialBalance.Equal(decimal.NewFromInt(250000))
				})).Return(&domain.Fund{ID: "f-1", Code: "TUI"}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			body:           map[string]interface{}{"code": "TUI", "type": "tuition"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeValidation,
			detail:         "Name failed on the 'required' rule",
		},
		{
			name:           "negative opening balance",
			body:           map[string]interface{}{"code": "TUI", "name": "Tuition", "type": "tuition", "initial_balance": "-1"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeValidation,
			detail:         "InitialBalance failed on the 'money_nonnegative' rule",
		},
		{
			name:           "malformed json",
			body:           `{"code": `,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeValidation,
		},
		{
			name: "duplicate code",
			body: map[string]interface{}{"code": "TUI", "name": "Tuition", "type": "tuition", "initial_balance": "0"},
			setupMock: func(m *mocks.MockFundService) {
				m.On("CreateFund", mock.Anything, operator, mock.Anything).
					Return(nil, customError.WrapDuplicate("fund", "TUI")).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   customError.ErrCodeDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			if tt.setupMock != nil {
				tt.setupMock(api.funds)
			}

			w, resp := api.do(t, http.MethodPost, "/funds", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCode, resp.Code)
			if tt.detail != "" {
				assert.Contains(t, resp.Details, tt.detail)
			}
			api.funds.AssertExpectations(t)
		})
	}
}

func TestLedgerHandler_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"insufficient funds", customError.WrapInsufficientFunds("f-1", decimal.NewFromInt(10), decimal.NewFromInt(20)), http.StatusConflict},
		{"forbidden", customError.WrapForbidden("u-1", "record expenses"), http.StatusForbidden},
		{"not found", customError.WrapNotFound("Fund", "f-1"), http.StatusNotFound},
		{"storage", customError.WrapDatabaseError(errors.New("pq: connection refused")), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			api.funds.On("RecordExpense", mock.Anything, operator, "f-1", mock.Anything).Return(nil, tt.err).Once()

			w, resp := api.do(t, http.MethodPost, "/funds/f-1/expenses", map[string]interface{}{
				"amount":      "20.00",
				"description": "Lab equipment",
			})

			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}

func TestLedgerHandler_MovementValidation(t *testing.T) {
	api := newTestAPI()

	w, resp := api.do(t, http.MethodPost, "/funds/f-1/income", map[string]interface{}{
		"amount":         "0",
		"description":    "Donation",
		"reference_type": "payment",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Details, "Amount failed on the 'money_positive' rule")
	assert.Contains(t, resp.Details, "ReferenceID failed on the 'required_with' rule")
	api.funds.AssertNotCalled(t, "RecordIncome", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLedgerHandler_TransferFunds(t *testing.T) {
	t.Run("same fund rejected before the service", func(t *testing.T) {
		api := newTestAPI()
		w, resp := api.do(t, http.MethodPost, "/transfers", map[string]interface{}{
			"source_fund_id":      "f-1",
			"destination_fund_id": "f-1",
			"amount":              "10",
			"description":         "Rebalance",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, resp.Details, "DestinationFundID failed on the 'nefield' rule")
	})

	t.Run("returns both legs", func(t *testing.T) {
		api := newTestAPI()
		group := "g-1"
		api.funds.On("TransferFunds", mock.Anything, operator, mock.Anything).Return([]*domain.LedgerEntry{
			{ID: "e-1", FundID: "f-1", Direction: domain.Debit, GroupID: &group},
			{ID: "e-2", FundID: "f-2", Direction: domain.Credit, GroupID: &group},
		}, nil).Once()

		w, resp := api.do(t, http.MethodPost, "/transfers", map[string]interface{}{
			"source_fund_id":      "f-1",
			"destination_fund_id": "f-2",
			"amount":              "10",
			"description":         "Rebalance",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var entries []domain.LedgerEntry
		require.NoError(t, json.Unmarshal(resp.Data, &entries))
		assert.Len(t, entries, 2)
	})
}

func TestLedgerHandler_ActorHeaders(t *testing.T) {
	api := newTestAPI()
	director := domain.Actor{ID: "u-9", Role: domain.RoleDirector}
	api.loans.On("DisburseLoan", mock.Anything, director, "L-1").
		Return(&domain.LoanView{FundLoan: domain.FundLoan{ID: "L-1", Status: domain.LoanStatusDisbursed}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/loans/L-1/disburse", nil)
	req.Header.Set("X-Actor-ID", director.ID)
	req.Header.Set("X-Actor-Role", string(director.Role))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	api.loans.AssertExpectations(t)
}

func TestLedgerHandler_Loans(t *testing.T) {
	view := &domain.LoanView{
		FundLoan:      domain.FundLoan{ID: "L-1", Amount: decimal.NewFromInt(200000), Status: domain.LoanStatusPending},
		PendingAmount: decimal.NewFromInt(200000),
	}

	t.Run("request", func(t *testing.T) {
		api := newTestAPI()
		due := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
		api.loans.On("RequestLoan", mock.Anything, operator, mock.MatchedBy(func(req *domain.LoanRequest) bool {
			return req.LenderFundID == "f-a" && req.DueDate.Equal(due)
		})).Return(view, nil).Once()

		w, resp := api.do(t, http.MethodPost, "/loans", map[string]interface{}{
			"lender_fund_id":   "f-a",
			"borrower_fund_id": "f-b",
			"amount":           "200000",
			"reason":           "Bridge for lab equipment",
			"due_date":         due.Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusCreated, w.Code)

		var got domain.LoanView
		require.NoError(t, json.Unmarshal(resp.Data, &got))
		assert.Equal(t, "L-1", got.ID)
		assert.True(t, got.PendingAmount.Equal(decimal.NewFromInt(200000)))
	})

	t.Run("approve without body", func(t *testing.T) {
		api := newTestAPI()
		api.loans.On("ApproveLoan", mock.Anything, operator, "L-1", &domain.ApproveLoanRequest{}).Return(view, nil).Once()

		w, _ := api.do(t, http.MethodPost, "/loans/L-1/approve", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		api.loans.AssertExpectations(t)
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		api := newTestAPI()
		w, resp := api.do(t, http.MethodPost, "/loans/L-1/reject", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, resp.Details, "Reason failed on the 'required' rule")
	})

	t.Run("cancel after disbursement", func(t *testing.T) {
		api := newTestAPI()
		api.loans.On("CancelLoan", mock.Anything, operator, "L-1", "No longer needed").
			Return(nil, customError.WrapInvalidTransition("L-1", "DISBURSED", "CANCELLED")).Once()

		w, resp := api.do(t, http.MethodPost, "/loans/L-1/cancel", map[string]string{"reason": "No longer needed"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, customError.ErrCodeInvalidTransition, resp.Code)
	})

	t.Run("payment", func(t *testing.T) {
		api := newTestAPI()
		api.loans.On("RecordLoanPayment", mock.Anything, operator, "L-1", mock.MatchedBy(func(d decimal.Decimal) bool {
			return d.Equal(decimal.NewFromInt(50000))
		})).Return(view, nil).Once()

		w, _ := api.do(t, http.MethodPost, "/loans/L-1/payments", map[string]string{"amount": "50000"})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("list filters", func(t *testing.T) {
		api := newTestAPI()
		api.loans.On("ListLoans", mock.Anything, domain.LoanFilter{
			Status:      domain.LoanStatusDisbursed,
			FundID:      "f-a",
			OverdueOnly: true,
		}).Return([]domain.LoanView{*view}, nil).Once()

		w, _ := api.do(t, http.MethodGet, "/loans?status=DISBURSED&fund_id=f-a&overdue_only=true", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		api.loans.AssertExpectations(t)
	})

	t.Run("bad overdue flag", func(t *testing.T) {
		api := newTestAPI()
		w, _ := api.do(t, http.MethodGet, "/loans?overdue_only=maybe", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("statistics route is not a loan id", func(t *testing.T) {
		api := newTestAPI()
		api.loans.On("LoanStatistics", mock.Anything, "f-a").Return(&domain.LoanStatistics{FundID: "f-a"}, nil).Once()

		w, _ := api.do(t, http.MethodGet, "/loans/statistics?fund_id=f-a", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		api.loans.AssertNotCalled(t, "GetLoan", mock.Anything, mock.Anything)
	})
}

func TestLedgerHandler_AllocatePayment(t *testing.T) {
	t.Run("unbalanced is unprocessable", func(t *testing.T) {
		api := newTestAPI()
		api.allocator.On("AllocatePayment", mock.Anything, operator, mock.Anything).
			Return(nil, customError.WrapUnbalancedAllocation(decimal.NewFromInt(100), decimal.NewFromInt(90))).Once()

		w, resp := api.do(t, http.MethodPost, "/allocations", map[string]interface{}{
			"payment_reference": "PAY-1",
			"total":             "100",
			"allocations":       []map[string]string{{"fund_id": "f-1", "amount": "90"}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, resp.Message, "shortfall of 10.00")
	})

	t.Run("allocation needs a fund", func(t *testing.T) {
		api := newTestAPI()
		w, resp := api.do(t, http.MethodPost, "/allocations", map[string]interface{}{
			"payment_reference": "PAY-1",
			"total":             "100",
			"allocations":       []map[string]string{{"amount": "100"}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, resp.Details, "FundID failed on the 'required' rule")
	})
}

func TestLedgerHandler_ListEntries(t *testing.T) {
	api := newTestAPI()
	api.funds.On("ListEntries", mock.Anything, "f-1", 20, 40).Return([]*domain.LedgerEntry{}, nil).Once()

	w, _ := api.do(t, http.MethodGet, "/funds/f-1/entries?limit=20&offset=40", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := api.do(t, http.MethodGet, "/funds/f-1/entries?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Details, "limit must be an integer")
	api.funds.AssertExpectations(t)
}
