package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"licensehub/internal/events"
	"licensehub/internal/exporter"
	"licensehub/internal/infrastructure"
	"licensehub/internal/license"
	"licensehub/internal/security"
)

// LicenseService is the license surface used by the HTTP handlers and the
// operator CLI.
type LicenseService interface {
	AddLicense(ctx context.Context, req AddLicenseRequest) (license.License, error)
	ListLicenses(ctx context.Context) ([]license.License, error)
	ToggleActive(ctx context.Context, id int64) (license.License, error)
	DeleteLicense(ctx context.Context, id int64) error
	ResetKey(ctx context.Context, key string) (license.License, error)
	CheckKey(ctx context.Context, req CheckKeyRequest) (CheckKeyResponse, error)
	Export(ctx context.Context, w io.Writer, format exporter.Format) error
}

// Engine is the part of *license.Engine the service drives.
type Engine interface {
	CreateLicense(ctx context.Context, p license.CreateParams) (license.License, error)
	List(ctx context.Context) ([]license.License, error)
	ToggleActive(ctx context.Context, id int64) (license.License, error)
	DeleteLicense(ctx context.Context, id int64) error
	ResetKey(ctx context.Context, key string) (license.License, error)
	ActivateOrCheck(ctx context.Context, key, deviceID string) (license.Result, error)
}

type licenseService struct {
	engine    Engine
	telemetry *license.Telemetry
	publisher events.Publisher
	clock     license.Clock
	logger    *slog.Logger
}

// NewLicenseService wires the engine to telemetry and event publishing. A nil
// publisher discards events.
func NewLicenseService(engine Engine, telemetry *license.Telemetry, publisher events.Publisher, clock license.Clock, logger *slog.Logger) LicenseService {
	if telemetry == nil {
		telemetry = license.NewTelemetry(nil)
	}
	if publisher == nil {
		publisher = events.Nop
	}
	if clock == nil {
		clock = license.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &licenseService{
		engine:    engine,
		telemetry: telemetry,
		publisher: publisher,
		clock:     clock,
		logger:    infrastructure.WithComponent(logger, "license_service"),
	}
}

func (s *licenseService) AddLicense(ctx context.Context, req AddLicenseRequest) (license.License, error) {
	keyType, err := license.ParseKeyType(req.KeyType)
	if err != nil {
		return license.License{}, err
	}
	subscription, err := license.ParseSubscriptionType(req.SubscriptionType)
	if err != nil {
		return license.License{}, err
	}

	var created license.License
	err = s.telemetry.TraceAdmin(ctx, "create", func(ctx context.Context) error {
		created, err = s.engine.CreateLicense(ctx, license.CreateParams{
			Key:              req.Key,
			KeyType:          keyType,
			SubscriptionType: subscription,
			Days:             req.Days,
			Hours:            req.Hours,
			SupportName:      req.SupportName,
			MultiDevice:      req.MultiDevice,
		})
		return err
	})
	if err != nil {
		return license.License{}, err
	}

	s.publish(ctx, events.LicenseCreated, created, map[string]any{
		"subscription_type": created.SubscriptionType,
		"key_type":          created.KeyType,
		"multi_device":      created.MultiDevice,
		"expiration_date":   created.ExpirationDate,
	})
	return created, nil
}

func (s *licenseService) ListLicenses(ctx context.Context) ([]license.License, error) {
	var out []license.License
	err := s.telemetry.TraceAdmin(ctx, "list", func(ctx context.Context) error {
		var err error
		out, err = s.engine.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []license.License{}
	}
	return out, nil
}

func (s *licenseService) ToggleActive(ctx context.Context, id int64) (license.License, error) {
	var toggled license.License
	err := s.telemetry.TraceAdmin(ctx, "toggle_active", func(ctx context.Context) error {
		var err error
		toggled, err = s.engine.ToggleActive(ctx, id)
		return err
	})
	if err != nil {
		return license.License{}, err
	}
	s.publish(ctx, events.LicenseToggled, toggled, map[string]any{"active": toggled.Active})
	return toggled, nil
}

func (s *licenseService) DeleteLicense(ctx context.Context, id int64) error {
	err := s.telemetry.TraceAdmin(ctx, "delete", func(ctx context.Context) error {
		return s.engine.DeleteLicense(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.LicenseDeleted, license.License{ID: id}, nil)
	return nil
}

func (s *licenseService) ResetKey(ctx context.Context, key string) (license.License, error) {
	var reset license.License
	err := s.telemetry.TraceAdmin(ctx, "reset_key", func(ctx context.Context) error {
		var err error
		reset, err = s.engine.ResetKey(ctx, key)
		return err
	})
	if err != nil {
		return license.License{}, err
	}
	s.publish(ctx, events.LicenseReset, reset, nil)
	return reset, nil
}

// CheckKey runs the activation check. Denials come back as a response with
// Valid false and a nil error.
func (s *licenseService) CheckKey(ctx context.Context, req CheckKeyRequest) (CheckKeyResponse, error) {
	res, err := s.telemetry.TraceActivation(ctx, security.Fingerprint(req.Key), func(ctx context.Context) (license.Result, error) {
		return s.engine.ActivateOrCheck(ctx, req.Key, req.DeviceID)
	})
	if err != nil {
		return CheckKeyResponse{}, err
	}

	if !res.Valid {
		s.logger.InfoContext(ctx, "license check denied",
			slog.String("key", security.MaskKey(req.Key)),
			slog.String("key_hash", security.Fingerprint(req.Key)),
			slog.String("reason", string(res.Reason)))
	}
	if res.Bound {
		s.publish(ctx, events.LicenseActivated, res.License, map[string]any{
			"device_hash": security.Fingerprint(res.License.DeviceID),
		})
	}
	return NewCheckKeyResponse(res, s.clock.Now()), nil
}

// Export writes every license to w.
func (s *licenseService) Export(ctx context.Context, w io.Writer, format exporter.Format) error {
	licenses, err := s.ListLicenses(ctx)
	if err != nil {
		return err
	}
	if err := exporter.Write(w, format, licenses, s.clock.Now()); err != nil {
		return fmt.Errorf("export licenses: %w", err)
	}
	s.logger.InfoContext(ctx, "licenses exported",
		slog.String("format", string(format)),
		slog.Int("count", len(licenses)))
	return nil
}

func (s *licenseService) publish(ctx context.Context, t events.Type, l license.License, data map[string]any) {
	e := events.New(t, l.ID, security.MaskKey(l.Key), s.clock.Now(), data)
	if err := s.publisher.Publish(ctx, e); err != nil {
		infrastructure.WithError(s.logger, err).WarnContext(ctx, "license event not delivered",
			slog.String("event_type", string(t)),
			slog.Int64("license_id", l.ID))
	}
}
