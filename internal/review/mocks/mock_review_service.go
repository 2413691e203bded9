package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docgov/internal/auth"
	"docgov/internal/review"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Override(ctx context.Context, reviewer auth.Identity, docID, action string) (*review.OverrideResult, error) {
	args := m.Called(ctx, reviewer, docID, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*review.OverrideResult), args.Error(1)
}
