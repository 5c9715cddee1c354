package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"licensehub/internal/security"
)

type mockIssuer struct {
	mock.Mock
}

func (m *mockIssuer) Issue() (string, time.Time, error) {
	args := m.Called()
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func TestAuthServiceLogin(t *testing.T) {
	hash, err := security.HashPassword("s3cret-pass", bcrypt.MinCost)
	require.NoError(t, err)
	expires := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	t.Run("valid password issues token", func(t *testing.T) {
		issuer := &mockIssuer{}
		issuer.On("Issue").Return("signed.jwt.token", expires, nil).Once()

		resp, err := NewAuthService(hash, issuer, nil).Login(context.Background(), "s3cret-pass")
		require.NoError(t, err)
		assert.Equal(t, "signed.jwt.token", resp.Token)
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.Equal(t, expires, resp.ExpiresAt)
		issuer.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		issuer := &mockIssuer{}
		_, err := NewAuthService(hash, issuer, nil).Login(context.Background(), "guess")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		issuer.AssertNotCalled(t, "Issue")
	})

	t.Run("no hash configured", func(t *testing.T) {
		_, err := NewAuthService("", &mockIssuer{}, nil).Login(context.Background(), "anything")
		assert.ErrorIs(t, err, ErrAuthDisabled)
	})

	t.Run("issuer failure", func(t *testing.T) {
		issuer := &mockIssuer{}
		boom := errors.New("signing failed")
		issuer.On("Issue").Return("", time.Time{}, boom)

		_, err := NewAuthService(hash, issuer, nil).Login(context.Background(), "s3cret-pass")
		assert.ErrorIs(t, err, boom)
	})
}
