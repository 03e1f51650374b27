package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/psn/internal/domain/models"
)

type MockDomainConfigCache struct {
	mock.Mock
}

func (m *MockDomainConfigCache) Get(ctx context.Context, name string) (*models.Domain, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Domain), args.Error(1)
}

func (m *MockDomainConfigCache) Set(ctx context.Context, domain *models.Domain) error {
	args := m.Called(ctx, domain)
	return args.Error(0)
}

func (m *MockDomainConfigCache) Delete(ctx context.Context, names ...string) error {
	args := m.Called(ctx, names)
	return args.Error(0)
}
