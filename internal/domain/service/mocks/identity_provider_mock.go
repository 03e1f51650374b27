package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) GetAuthorizationPaths(ctx context.Context, subject string) ([]string, error) {
	args := m.Called(ctx, subject)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
