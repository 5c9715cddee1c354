package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"licensehub/internal/infrastructure"
	"licensehub/internal/security"
)

// TokenIssuer mints admin tokens.
type TokenIssuer interface {
	Issue() (string, time.Time, error)
}

// AuthService exchanges the admin password for a bearer token.
type AuthService struct {
	passwordHash string
	issuer       TokenIssuer
	logger       *slog.Logger
}

func NewAuthService(passwordHash string, issuer TokenIssuer, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		passwordHash: passwordHash,
		issuer:       issuer,
		logger:       infrastructure.WithComponent(logger, "auth_service"),
	}
}

// Login checks password against the configured bcrypt hash.
func (s *AuthService) Login(ctx context.Context, password string) (TokenResponse, error) {
	if s.passwordHash == "" {
		return TokenResponse{}, ErrAuthDisabled
	}
	if err := security.CheckPassword(s.passwordHash, password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			s.logger.WarnContext(ctx, "admin login rejected")
			return TokenResponse{}, ErrInvalidCredentials
		}
		return TokenResponse{}, fmt.Errorf("check admin password: %w", err)
	}

	token, expiresAt, err := s.issuer.Issue()
	if err != nil {
		return TokenResponse{}, fmt.Errorf("issue admin token: %w", err)
	}
	s.logger.InfoContext(ctx, "admin token issued", slog.Time("expires_at", expiresAt))
	return TokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}
