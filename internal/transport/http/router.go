package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "licensehub/internal/errors"
	"licensehub/internal/middleware"
	"licensehub/internal/services"
	"licensehub/internal/websocket"
)

var timeNow = time.Now

// RouterConfig carries everything the HTTP surface is assembled from.
// Optional parts are disabled when nil.
type RouterConfig struct {
	Logger       *slog.Logger
	ErrorHandler *apierrors.ErrorHandler
	Validator    *middleware.Validator

	Licenses services.LicenseService
	Auth     Authenticator
	Health   *services.HealthService
	Verifier middleware.TokenVerifier

	Hub               *websocket.Hub
	WSReadBufferSize  int
	WSWriteBufferSize int
	OTel              *middleware.OTelMiddleware
	MetricsHandler    http.Handler
	CORS              middleware.CORSConfig
	RequestTimeout    time.Duration
	APIRateLimiter    *middleware.RateLimiter
	PublicRateLimiter *middleware.RateLimiter
}

// NewRouter builds the chi router with the global middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := cfg.ErrorHandler
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger, false)
	}
	validator := cfg.Validator
	if validator == nil {
		validator = middleware.NewValidator()
	}

	licenses := NewLicenseHandler(cfg.Licenses, validator, errorHandler, logger)
	auth := NewAuthHandler(cfg.Auth, validator, errorHandler, logger)
	adminAuth := middleware.AdminAuth(cfg.Verifier, errorHandler, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.OTel != nil {
		r.Use(cfg.OTel.Handler)
	}
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(errorHandler))
	r.Use(middleware.DefaultSecureHeaders().Handler)
	r.Use(middleware.CORS(cfg.CORS))

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	// Long-lived dashboard connections stay outside the request timeout.
	if cfg.Hub != nil {
		ws := NewWebSocketHandler(cfg.Hub, cfg.CORS.AllowedOrigins, cfg.WSReadBufferSize, cfg.WSWriteBufferSize, logger)
		r.With(middleware.AdminAuth(cfg.Verifier, errorHandler, logger, middleware.WithQueryToken("token"))).
			Handle("/ws", ws)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Get("/", licenses.Home)
		if cfg.Health != nil {
			health := NewHealthHandler(cfg.Health, logger)
			r.Get("/healthz", health.HealthCheck)
			r.Get("/readyz", health.ReadinessCheck)
		}
		if cfg.MetricsHandler != nil {
			r.Handle("/metrics", cfg.MetricsHandler)
		}

		r.Route("/api", func(r chi.Router) {
			if cfg.APIRateLimiter != nil {
				r.Use(cfg.APIRateLimiter.Handler)
			}

			r.Group(func(r chi.Router) {
				if cfg.PublicRateLimiter != nil {
					r.Use(cfg.PublicRateLimiter.Handler)
				}
				r.Post("/check_key_details", licenses.CheckKeyDetails)
				r.Post("/admin/token", auth.IssueToken)
			})

			r.Group(func(r chi.Router) {
				r.Use(adminAuth)
				licenses.AdminRoutes(r)
			})
		})
	})

	return r
}
