package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensehub/internal/config"
	apierrors "licensehub/internal/errors"
	"licensehub/internal/security"
)

type stubVerifier map[string]security.Claims

func (s stubVerifier) Verify(raw string) (security.Claims, error) {
	c, ok := s[raw]
	if !ok {
		return security.Claims{}, errors.New("bad token")
	}
	return c, nil
}

func testTelemetry() config.TelemetryConfig {
	return config.TelemetryConfig{ServiceName: "test", ServiceVersion: "test", MetricsEnabled: true, TraceSampleRate: 1}
}

func TestAdminAuth(t *testing.T) {
	verifier := stubVerifier{"good": {Subject: security.AdminSubject, TokenID: "t1"}}
	eh := apierrors.NewErrorHandler(slog.Default(), false)

	var gotClaims security.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		header     string
		query      string
		queryAuth  bool
		wantStatus int
	}{
		{"valid bearer", "Bearer good", "", false, http.StatusNoContent},
		{"lowercase scheme", "bearer good", "", false, http.StatusNoContent},
		{"missing", "", "", false, http.StatusUnauthorized},
		{"wrong scheme", "Basic good", "", false, http.StatusUnauthorized},
		{"bad token", "Bearer nope", "", false, http.StatusUnauthorized},
		{"query ignored by default", "", "good", false, http.StatusUnauthorized},
		{"query accepted when enabled", "", "good", true, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotClaims = security.Claims{}
			var opts []AuthOption
			if tt.queryAuth {
				opts = append(opts, WithQueryToken("token"))
			}
			h := AdminAuth(verifier, eh, slog.Default(), opts...)(next)

			target := "/api/licenses"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, "t1", gotClaims.TokenID)
				return
			}
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, apierrors.TypeUnauthorized, body["type"])
		})
	}
}
