package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docgov/internal/model"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) EnqueueReview(ctx context.Context, msg model.ReviewMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockNotifier) AnnounceProcessed(ctx context.Context, n model.ProcessedNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
