package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) Claim(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockGuard) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// NewMockGuard creates a guard mock
func NewMockGuard() *MockGuard {
	return &MockGuard{}
}
