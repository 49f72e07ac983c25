package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stepflow/stepflow/pkg/invoker"
)

// MockInvoker is a mock implementation of invoker.Invoker.
type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, functionID string, input map[string]any) (*invoker.Result, error) {
	args := m.Called(ctx, functionID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*invoker.Result), args.Error(1)
}
