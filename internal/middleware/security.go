package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "licensehub/internal/errors"
	"licensehub/internal/security"
)

// SecureHeaders provides configurable security headers
type SecureHeaders struct {
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	ContentSecurityPolicy string
	XFrameOptions         string
	XContentTypeOptions   string
	ReferrerPolicy        string
}

// DefaultSecureHeaders returns headers suited to a JSON API
func DefaultSecureHeaders() *SecureHeaders {
	return &SecureHeaders{
		HSTSMaxAge:            63072000,
		HSTSIncludeSubdomains: true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
	}
}

// Handler returns the middleware handler
func (sh *SecureHeaders) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Upgrade responses are hijacked; headers would be ignored.
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		if sh.HSTSMaxAge > 0 && r.TLS != nil {
			hsts := fmt.Sprintf("max-age=%d", sh.HSTSMaxAge)
			if sh.HSTSIncludeSubdomains {
				hsts += "; includeSubDomains"
			}
			h.Set("Strict-Transport-Security", hsts)
		}
		if sh.ContentSecurityPolicy != "" {
			h.Set("Content-Security-Policy", sh.ContentSecurityPolicy)
		}
		if sh.XFrameOptions != "" {
			h.Set("X-Frame-Options", sh.XFrameOptions)
		}
		if sh.XContentTypeOptions != "" {
			h.Set("X-Content-Type-Options", sh.XContentTypeOptions)
		}
		if sh.ReferrerPolicy != "" {
			h.Set("Referrer-Policy", sh.ReferrerPolicy)
		}
		next.ServeHTTP(w, r)
	})
}

// TokenVerifier validates admin tokens
type TokenVerifier interface {
	Verify(raw string) (security.Claims, error)
}

type claimsKey struct{}

// ClaimsFromContext returns the admin claims placed by AdminAuth
func ClaimsFromContext(ctx context.Context) (security.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(security.Claims)
	return c, ok
}

// AuthOption adjusts AdminAuth
type AuthOption func(*authOptions)

type authOptions struct {
	queryParam string
}

// WithQueryToken also accepts the token from the named query parameter.
// Browsers cannot set headers on websocket upgrades.
func WithQueryToken(param string) AuthOption {
	return func(o *authOptions) { o.queryParam = param }
}

// AdminAuth rejects requests without a valid admin bearer token
func AdminAuth(verifier TokenVerifier, errorHandler *apierrors.ErrorHandler, logger *slog.Logger, opts ...AuthOption) func(next http.Handler) http.Handler {
	var o authOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.With(slog.String("component", "admin_auth"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, err := bearerToken(r, o.queryParam)
			if err != nil {
				logger.WarnContext(ctx, "rejected admin request",
					slog.String("reason", err.Error()),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				errorHandler.HandleError(w, r, apierrors.Unauthorized(err.Error()))
				return
			}

			claims, err := verifier.Verify(raw)
			if err != nil {
				logger.WarnContext(ctx, "admin token rejected",
					slog.String("error", err.Error()),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				errorHandler.HandleError(w, r, apierrors.Unauthorized("Invalid or expired token"))
				return
			}

			ctx = context.WithValue(ctx, claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request, queryParam string) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if queryParam != "" {
			if token := r.URL.Query().Get(queryParam); token != "" {
				return token, nil
			}
		}
		return "", fmt.Errorf("missing authorization header")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("invalid authorization format, use: Bearer <token>")
	}
	return strings.TrimSpace(token), nil
}
