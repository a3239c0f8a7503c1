package host

import (
	"context"

	"github.com/ruteri/data-exchange-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockService mocks the interfaces.RegistryService interface
type MockService struct {
	mock.Mock
}

var _ interfaces.RegistryService = (*MockService)(nil)

// Initialize mocks the Initialize method
func (m *MockService) Initialize(ctx context.Context, caller interfaces.Identity) error {
	args := m.Called(ctx, caller)
	return args.Error(0)
}

// AddRequesters mocks the AddRequesters method
func (m *MockService) AddRequesters(ctx context.Context, caller interfaces.Identity, ids []interfaces.Identity) error {
	args := m.Called(ctx, caller, ids)
	return args.Error(0)
}

// AddProviders mocks the AddProviders method
func (m *MockService) AddProviders(ctx context.Context, caller interfaces.Identity, ids []interfaces.Identity) error {
	args := m.Called(ctx, caller, ids)
	return args.Error(0)
}

// CreateRequest mocks the CreateRequest method
func (m *MockService) CreateRequest(ctx context.Context, caller interfaces.Identity, id interfaces.RequestID, req interfaces.Request) error {
	args := m.Called(ctx, caller, id, req)
	return args.Error(0)
}

// ProvideData mocks the ProvideData method
func (m *MockService) ProvideData(ctx context.Context, caller interfaces.Identity, id interfaces.RequestID, result string) (interfaces.Response, error) {
	args := m.Called(ctx, caller, id, result)
	return args.Get(0).(interfaces.Response), args.Error(1)
}

// GetDataResponse mocks the GetDataResponse method
func (m *MockService) GetDataResponse(ctx context.Context, id interfaces.RequestID) (*interfaces.Response, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Response), args.Error(1)
}

// GetAllRequests mocks the GetAllRequests method
func (m *MockService) GetAllRequests(ctx context.Context) ([]interfaces.Request, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.Request), args.Error(1)
}

// GetRequest mocks the GetRequest method
func (m *MockService) GetRequest(ctx context.Context, id interfaces.RequestID) (*interfaces.Request, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Request), args.Error(1)
}

// Members mocks the Members method
func (m *MockService) Members(ctx context.Context) (interfaces.Membership, error) {
	args := m.Called(ctx)
	return args.Get(0).(interfaces.Membership), args.Error(1)
}
