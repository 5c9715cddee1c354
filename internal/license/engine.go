package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

// Mutator edits a license in place during a compare-and-update.
type Mutator func(*License) error

// Repository is the storage contract the engine relies on. CompareAndUpdate
// must apply the mutator and persist the whole record atomically only when
// the stored version equals expectedVersion, failing with ErrConflict otherwise.
type Repository interface {
	Create(ctx context.Context, l License) (License, error)
	Get(ctx context.Context, id int64) (License, error)
	FindByKey(ctx context.Context, key string) (License, error)
	List(ctx context.Context) ([]License, error)
	CompareAndUpdate(ctx context.Context, id, expectedVersion int64, mutate Mutator) (License, error)
	Delete(ctx context.Context, id int64) error
}

const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 2 * time.Millisecond
	maxAttemptsCeiling = 10
)

// Engine owns the license lifecycle and the activation algorithm.
type Engine struct {
	repo        Repository
	clock       Clock
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
	freeTrial   time.Duration
	onConflict  func(ctx context.Context, op string, attempt int)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxAttempts bounds the compare-and-update retry loop. Values are clamped
// to 1..10.
func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) {
		switch {
		case n < 1:
			n = 1
		case n > maxAttemptsCeiling:
			n = maxAttemptsCeiling
		}
		e.maxAttempts = n
	}
}

// WithBackoff sets the base delay between conflicting attempts.
func WithBackoff(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.backoff = d
		}
	}
}

// WithFreeTrialSpan sets the lifetime of "Free Trial" licenses.
func WithFreeTrialSpan(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.freeTrial = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConflictObserver registers a callback invoked on every lost
// compare-and-update race.
func WithConflictObserver(fn func(ctx context.Context, op string, attempt int)) EngineOption {
	return func(e *Engine) {
		e.onConflict = fn
	}
}

// NewEngine creates an engine over repo. A nil clock means SystemClock.
func NewEngine(repo Repository, clock Clock, opts ...EngineOption) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	e := &Engine{
		repo:        repo,
		clock:       clock,
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		freeTrial:   DefaultFreeTrialSpan,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "license.engine"))
	return e
}

// CreateParams are the inputs of CreateLicense. Days and Hours are only read
// for the Hours and Days subscription types.
type CreateParams struct {
	Key              string
	KeyType          KeyType
	SubscriptionType SubscriptionType
	Days             int
	Hours            int
	SupportName      string
	MultiDevice      bool
}

// CreateLicense issues a new active, unactivated license.
func (e *Engine) CreateLicense(ctx context.Context, p CreateParams) (License, error) {
	key := strings.TrimSpace(p.Key)
	if key == "" {
		return License{}, ErrInvalidKey
	}
	if p.KeyType != KeyTypeRestricted && p.KeyType != KeyTypeUnrestricted {
		return License{}, fmt.Errorf("%w: %q", ErrInvalidKeyType, p.KeyType)
	}
	span, err := Span(p.SubscriptionType, p.Days, p.Hours, e.freeTrial)
	if err != nil {
		return License{}, err
	}

	now := e.clock.Now()
	created, err := e.repo.Create(ctx, License{
		Key:              key,
		Active:           true,
		ExpirationDate:   now.Add(span),
		SubscriptionType: p.SubscriptionType,
		KeyType:          p.KeyType,
		MultiDevice:      p.MultiDevice,
		SupportName:      strings.TrimSpace(p.SupportName),
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return License{}, fmt.Errorf("create license: %w", err)
	}

	e.logger.InfoContext(ctx, "license created",
		slog.Int64("license_id", created.ID),
		slog.String("subscription_type", string(created.SubscriptionType)),
		slog.String("key_type", string(created.KeyType)),
		slog.Bool("multi_device", created.MultiDevice),
		slog.Time("expiration_date", created.ExpirationDate))
	return created, nil
}

// Get returns the license with the given id.
func (e *Engine) Get(ctx context.Context, id int64) (License, error) {
	return e.repo.Get(ctx, id)
}

// List returns all licenses in ascending id order.
func (e *Engine) List(ctx context.Context) ([]License, error) {
	return e.repo.List(ctx)
}

// ToggleActive flips the administrative kill-switch.
func (e *Engine) ToggleActive(ctx context.Context, id int64) (License, error) {
	var out License
	err := e.withRetry(ctx, "toggle_active", func(ctx context.Context) error {
		cur, err := e.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		out, err = e.repo.CompareAndUpdate(ctx, cur.ID, cur.Version, func(l *License) error {
			l.Active = !l.Active
			l.UpdatedAt = now
			return nil
		})
		return err
	})
	if err != nil {
		return License{}, fmt.Errorf("toggle license %d: %w", id, err)
	}

	e.logger.InfoContext(ctx, "license toggled",
		slog.Int64("license_id", out.ID),
		slog.Bool("active", out.Active))
	return out, nil
}

// DeleteLicense removes a license permanently. A delete that races a
// concurrent write is retried like the other mutations.
func (e *Engine) DeleteLicense(ctx context.Context, id int64) error {
	err := e.withRetry(ctx, "delete", func(ctx context.Context) error {
		return e.repo.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete license %d: %w", id, err)
	}
	e.logger.InfoContext(ctx, "license deleted", slog.Int64("license_id", id))
	return nil
}

// ResetKey clears the activation and device binding of the license holding
// key. Resetting an unactivated key succeeds without writing.
func (e *Engine) ResetKey(ctx context.Context, key string) (License, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return License{}, ErrInvalidKey
	}

	var out License
	err := e.withRetry(ctx, "reset_key", func(ctx context.Context) error {
		cur, err := e.repo.FindByKey(ctx, key)
		if err != nil {
			return err
		}
		if !cur.Activated && !cur.Bound() {
			out = cur
			return nil
		}
		now := e.clock.Now()
		out, err = e.repo.CompareAndUpdate(ctx, cur.ID, cur.Version, func(l *License) error {
			l.Activated = false
			l.DeviceID = ""
			l.UpdatedAt = now
			return nil
		})
		return err
	})
	if err != nil {
		return License{}, fmt.Errorf("reset license key: %w", err)
	}

	e.logger.InfoContext(ctx, "license key reset", slog.Int64("license_id", out.ID))
	return out, nil
}

// ActivateOrCheck validates key for deviceID and binds the device when the
// license allows it. Checks run in order: existence, active flag, expiration,
// device binding. The first failing check decides the reason.
func (e *Engine) ActivateOrCheck(ctx context.Context, key, deviceID string) (Result, error) {
	key = strings.TrimSpace(key)
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return Result{}, ErrInvalidDevice
	}
	if key == "" {
		return Result{Reason: ReasonKeyNotFound}, nil
	}

	var res Result
	err := e.withRetry(ctx, "activate", func(ctx context.Context) error {
		cur, err := e.repo.FindByKey(ctx, key)
		if errors.Is(err, ErrNotFound) {
			res = Result{Reason: ReasonKeyNotFound}
			return nil
		}
		if err != nil {
			return err
		}

		now := e.clock.Now()
		reason, mutate := evaluate(cur, deviceID, now)
		if reason != "" {
			res = Result{Reason: reason, License: cur}
			return nil
		}
		if mutate == nil {
			res = Result{Valid: true, License: cur}
			return nil
		}

		updated, err := e.repo.CompareAndUpdate(ctx, cur.ID, cur.Version, func(l *License) error {
			mutate(l)
			l.UpdatedAt = now
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			res = Result{Reason: ReasonKeyNotFound}
			return nil
		}
		if err != nil {
			return err
		}
		res = Result{
			Valid:   true,
			License: updated,
			Bound:   !cur.Bound() && updated.Bound(),
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("activate license: %w", err)
	}

	if res.Valid {
		e.logger.DebugContext(ctx, "license check passed",
			slog.Int64("license_id", res.License.ID),
			slog.Bool("bound", res.Bound))
	} else {
		e.logger.DebugContext(ctx, "license check denied",
			slog.Int64("license_id", res.License.ID),
			slog.String("reason", string(res.Reason)))
	}
	return res, nil
}

// evaluate decides the outcome for a read snapshot. A non-empty reason is a
// denial; a nil mutator with no reason is a success that needs no write.
func evaluate(l License, deviceID string, now time.Time) (Reason, func(*License)) {
	if !l.Active {
		return ReasonLicenseDeactivated, nil
	}
	if l.Expired(now) {
		return ReasonLicenseExpired, nil
	}

	switch {
	case l.KeyType == KeyTypeUnrestricted:
		// Device is recorded for audit only.
		if l.Activated && l.DeviceID == deviceID {
			return "", nil
		}
		return "", func(m *License) {
			m.Activated = true
			m.DeviceID = deviceID
		}

	case l.MultiDevice:
		if l.Activated && l.Bound() {
			return "", nil
		}
		return "", func(m *License) {
			m.Activated = true
			if m.DeviceID == "" {
				m.DeviceID = deviceID
			}
		}

	default:
		if l.Bound() && l.DeviceID != deviceID {
			return ReasonDeviceMismatch, nil
		}
		if l.Bound() && l.Activated {
			return "", nil
		}
		return "", func(m *License) {
			m.Activated = true
			m.DeviceID = deviceID
		}
	}
}

// withRetry runs attempt until it stops failing with ErrConflict or the
// attempt budget is spent.
func (e *Engine) withRetry(ctx context.Context, op string, attempt func(context.Context) error) error {
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := attempt(ctx)
		if !errors.Is(err, ErrConflict) {
			return err
		}

		if e.onConflict != nil {
			e.onConflict(ctx, op, n)
		}
		if n >= e.maxAttempts {
			e.logger.WarnContext(ctx, "retry budget exhausted",
				slog.String("operation", op),
				slog.Int("attempts", n))
			return fmt.Errorf("%w after %d attempts", ErrConflict, n)
		}

		if err := sleep(ctx, e.delay(n)); err != nil {
			return err
		}
	}
}

func (e *Engine) delay(attempt int) time.Duration {
	if e.backoff <= 0 {
		return 0
	}
	return e.backoff*time.Duration(attempt) + rand.N(e.backoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
