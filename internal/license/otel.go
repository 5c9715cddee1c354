package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "licensehub/license"
	MeterName  = "licensehub/license"
)

// Metrics holds the license OpenTelemetry instruments.
type Metrics struct {
	ActivationAttempts metric.Int64Counter
	ActivationOutcomes metric.Int64Counter
	ActivationDuration metric.Float64Histogram
	DeviceBindings     metric.Int64Counter

	AdminOperations metric.Int64Counter
	AdminFailures   metric.Int64Counter
	AdminDuration   metric.Float64Histogram

	UpdateConflicts metric.Int64Counter
}

// InitializeMetrics creates all license instruments on meter.
func InitializeMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ActivationAttempts, err = meter.Int64Counter(
		"license_activation_attempts_total",
		metric.WithDescription("Total number of activation checks"),
	); err != nil {
		return nil, fmt.Errorf("failed to create activation attempts counter: %w", err)
	}

	if m.ActivationOutcomes, err = meter.Int64Counter(
		"license_activation_outcomes_total",
		metric.WithDescription("Activation checks by outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create activation outcomes counter: %w", err)
	}

	if m.ActivationDuration, err = meter.Float64Histogram(
		"license_activation_duration_seconds",
		metric.WithDescription("Activation check duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create activation duration histogram: %w", err)
	}

	if m.DeviceBindings, err = meter.Int64Counter(
		"license_device_bindings_total",
		metric.WithDescription("Number of first-time device bindings"),
	); err != nil {
		return nil, fmt.Errorf("failed to create device bindings counter: %w", err)
	}

	if m.AdminOperations, err = meter.Int64Counter(
		"license_admin_operations_total",
		metric.WithDescription("Administrative license operations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create admin operations counter: %w", err)
	}

	if m.AdminFailures, err = meter.Int64Counter(
		"license_admin_failures_total",
		metric.WithDescription("Failed administrative license operations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create admin failures counter: %w", err)
	}

	if m.AdminDuration, err = meter.Float64Histogram(
		"license_admin_duration_seconds",
		metric.WithDescription("Administrative operation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create admin duration histogram: %w", err)
	}

	if m.UpdateConflicts, err = meter.Int64Counter(
		"license_update_conflicts_total",
		metric.WithDescription("Lost compare-and-update races"),
	); err != nil {
		return nil, fmt.Errorf("failed to create update conflicts counter: %w", err)
	}

	return m, nil
}

// Telemetry wraps engine calls in spans and records metrics. A Telemetry with
// nil metrics only traces.
type Telemetry struct {
	tracer  trace.Tracer
	metrics *Metrics
}

func NewTelemetry(metrics *Metrics) *Telemetry {
	return &Telemetry{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}
}

// TraceActivation traces one ActivateOrCheck call. keyHash must already be
// a fingerprint; raw keys never reach span attributes.
func (t *Telemetry) TraceActivation(ctx context.Context, keyHash string, fn func(context.Context) (Result, error)) (Result, error) {
	ctx, span := t.tracer.Start(ctx, "license.activate",
		trace.WithAttributes(
			attribute.String("license.operation", "activate"),
			attribute.String("license.key_hash", keyHash),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := fn(ctx)
	duration := time.Since(start)

	outcome := activationOutcome(res, err)
	span.SetAttributes(
		attribute.String("license.outcome", outcome),
		attribute.Bool("license.valid", res.Valid),
		attribute.Bool("license.bound", res.Bound),
	)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !res.Valid:
		span.SetStatus(codes.Unset, string(res.Reason))
	default:
		span.SetStatus(codes.Ok, "license valid")
		span.AddEvent("license.activation.valid")
	}

	if t.metrics != nil {
		labels := metric.WithAttributes(attribute.String("outcome", outcome))
		t.metrics.ActivationAttempts.Add(ctx, 1)
		t.metrics.ActivationOutcomes.Add(ctx, 1, labels)
		t.metrics.ActivationDuration.Record(ctx, duration.Seconds(), labels)
		if res.Bound {
			t.metrics.DeviceBindings.Add(ctx, 1)
		}
	}
	return res, err
}

// TraceAdmin traces one administrative operation.
func (t *Telemetry) TraceAdmin(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, "license."+op,
		trace.WithAttributes(attribute.String("license.operation", op)),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("license.error_type", ClassifyError(err)))
	} else {
		span.SetStatus(codes.Ok, op+" completed")
	}

	if t.metrics != nil {
		labels := metric.WithAttributes(attribute.String("operation", op))
		t.metrics.AdminOperations.Add(ctx, 1, labels)
		t.metrics.AdminDuration.Record(ctx, duration.Seconds(), labels)
		if err != nil {
			t.metrics.AdminFailures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("operation", op),
				attribute.String("error_type", ClassifyError(err)),
			))
		}
	}
	return err
}

// RecordConflict counts a lost compare-and-update race. It matches the
// signature expected by WithConflictObserver.
func (t *Telemetry) RecordConflict(ctx context.Context, op string, attempt int) {
	trace.SpanFromContext(ctx).AddEvent("license.update.conflict", trace.WithAttributes(
		attribute.String("license.operation", op),
		attribute.Int("license.attempt", attempt),
	))
	if t.metrics != nil {
		t.metrics.UpdateConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}

func activationOutcome(res Result, err error) string {
	switch {
	case err != nil:
		return ClassifyError(err)
	case res.Valid:
		return "valid"
	default:
		return string(res.Reason)
	}
}

// ClassifyError returns a low-cardinality label for err.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateKey):
		return "duplicate_key"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case IsValidationError(err):
		return "invalid_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "store_error"
	}
}
