package mocks

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/fund-ledger/internal/domain"
)

type MockFundService struct {
	mock.Mock
}

func (m *MockFundService) CreateFund(ctx context.Context, actor domain.Actor, req *domain.CreateFundRequest) (*domain.Fund, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Fund), args.Error(1)
}

func (m *MockFundService) GetFund(ctx context.Context, id string) (*domain.Fund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Fund), args.Error(1)
}

func (m *MockFundService) ListActiveFunds(ctx context.Context, withBalance bool) ([]domain.FundSummary, error) {
	args := m.Called(ctx, withBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FundSummary), args.Error(1)
}

func (m *MockFundService) DeactivateFund(ctx context.Context, actor domain.Actor, id string) (*domain.Fund, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Fund), args.Error(1)
}

func (m *MockFundService) RecordIncome(ctx context.Context, actor domain.Actor, fundID string, req *domain.MovementRequest) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, actor, fundID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Error(1)
}

func (m *MockFundService) RecordExpense(ctx context.Context, actor domain.Actor, fundID string, req *domain.MovementRequest) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, actor, fundID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Error(1)
}

func (m *MockFundService) TransferFunds(ctx context.Context, actor domain.Actor, req *domain.TransferRequest) ([]*domain.LedgerEntry, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LedgerEntry), args.Error(1)
}

func (m *MockFundService) ListEntries(ctx context.Context, fundID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	args := m.Called(ctx, fundID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LedgerEntry), args.Error(1)
}

func (m *MockFundService) FundStatistics(ctx context.Context, fundID string) (*domain.FundStatistics, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FundStatistics), args.Error(1)
}

func (m *MockFundService) ReconcileFund(ctx context.Context, fundID string) (*domain.Reconciliation, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reconciliation), args.Error(1)
}

type MockLoanService struct {
	mock.Mock
}

func (m *MockLoanService) loan(args mock.Arguments) (*domain.LoanView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanView), args.Error(1)
}

func (m *MockLoanService) RequestLoan(ctx context.Context, actor domain.Actor, req *domain.LoanRequest) (*domain.LoanView, error) {
	return m.loan(m.Called(ctx, actor, req))
}

func (m *MockLoanService) ApproveLoan(ctx context.Context, actor domain.Actor, id string, req *domain.ApproveLoanRequest) (*domain.LoanView, error) {
	return m.loan(m.Called(ctx, actor, id, req))
}

func (m *MockLoanService) RejectLoan(ctx context.Context, actor domain.Actor, id, reason string) (*domain.LoanView, error) {
	return m.loan(m.Called(ctx, actor, id, reason))
}

func (m *MockLoanService) DisburseLoan(ctx context.Context, actor domain.Actor, id string) (*domain.LoanView, error) {
	return m.loan(m.Called(ctx, actor, id))
}

func (m *MockLoanService) RecordLoanPayment(ctx context.Context, actor domain.Actor, id string, amount decimal.Decimal) (*domain.LoanView, error) {
	return m.loan(m.Called(ctx, actor, id, amount))
}

func (m *MockLoanService) CancelLoan(ctx context.Context, actor domain.Actor, id, reason string) (*domain.LoanView, error) {
	return m.loan(m.Called(ctx, actor, id, reason))
}

func (m *MockLoanService) GetLoan(ctx context.Context, id string) (*domain.LoanView, error) {
	return m.loan(m.Called(ctx, id))
}

func (m *MockLoanService) ListLoans(ctx context.Context, filter domain.LoanFilter) ([]domain.LoanView, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LoanView), args.Error(1)
}

func (m *MockLoanService) ListLoanPayments(ctx context.Context, loanID string) ([]*domain.LoanPayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanPayment), args.Error(1)
}

func (m *MockLoanService) LoanStatistics(ctx context.Context, fundID string) (*domain.LoanStatistics, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanStatistics), args.Error(1)
}

type MockPaymentAllocator struct {
	mock.Mock
}

func (m *MockPaymentAllocator) AllocatePayment(ctx context.Context, actor domain.Actor, req *domain.AllocationRequest) ([]*domain.LedgerEntry, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LedgerEntry), args.Error(1)
}
