package http

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"licensehub/internal/exporter"
	"licensehub/internal/license"
	"licensehub/internal/services"
)

type MockLicenseService struct {
	mock.Mock
}

func (m *MockLicenseService) AddLicense(ctx context.Context, req services.AddLicenseRequest) (license.License, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(license.License), args.Error(1)
}

func (m *MockLicenseService) ListLicenses(ctx context.Context) ([]license.License, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]license.License), args.Error(1)
}

func (m *MockLicenseService) ToggleActive(ctx context.Context, id int64) (license.License, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(license.License), args.Error(1)
}

func (m *MockLicenseService) DeleteLicense(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLicenseService) ResetKey(ctx context.Context, key string) (license.License, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(license.License), args.Error(1)
}

func (m *MockLicenseService) CheckKey(ctx context.Context, req services.CheckKeyRequest) (services.CheckKeyResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(services.CheckKeyResponse), args.Error(1)
}

func (m *MockLicenseService) Export(ctx context.Context, w io.Writer, format exporter.Format) error {
	args := m.Called(ctx, w, format)
	if fn, ok := args.Get(0).(func(io.Writer) error); ok {
		return fn(w)
	}
	return args.Error(0)
}

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, password string) (services.TokenResponse, error) {
	args := m.Called(ctx, password)
	return args.Get(0).(services.TokenResponse), args.Error(1)
}
