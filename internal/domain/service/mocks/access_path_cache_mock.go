package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockAccessPathCache struct {
	mock.Mock
}

func (m *MockAccessPathCache) Get(ctx context.Context, subject string) []string {
	args := m.Called(ctx, subject)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockAccessPathCache) Invalidate(ctx context.Context, subject string, match func(path string) bool, force bool) {
	m.Called(ctx, subject, match, force)
}

func (m *MockAccessPathCache) InvalidateMatching(ctx context.Context, match func(path string) bool) {
	m.Called(ctx, match)
}
