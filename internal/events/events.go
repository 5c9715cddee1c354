// Package events carries license lifecycle notifications to Kafka, the
// dashboard websocket hub and the log.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle event.
type Type string

const (
	LicenseCreated   Type = "license.created"
	LicenseToggled   Type = "license.toggled"
	LicenseDeleted   Type = "license.deleted"
	LicenseReset     Type = "license.reset"
	LicenseActivated Type = "license.activated"
)

// Event is one lifecycle notification. Key is always the masked form.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	LicenseID  int64          `json:"license_id"`
	Key        string         `json:"key"`
	Data       map[string]any `json:"data,omitempty"`
}

// New stamps an event with a fresh id.
func New(t Type, licenseID int64, maskedKey string, at time.Time, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: at.UTC(),
		LicenseID:  licenseID,
		Key:        maskedKey,
		Data:       data,
	}
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// LogPublisher writes each event as an info record.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With(slog.String("component", "events"))}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "license event",
		slog.String("event_id", e.ID),
		slog.String("event_type", string(e.Type)),
		slog.Int64("license_id", e.LicenseID),
		slog.String("key", e.Key),
	)
	return nil
}

// Fanout delivers to every sink. A failing sink is logged and does not stop
// the others; the joined error is returned for callers that care.
type Fanout struct {
	sinks  []Publisher
	logger *slog.Logger
}

func NewFanout(logger *slog.Logger, sinks ...Publisher) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	kept := make([]Publisher, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Fanout{sinks: kept, logger: logger.With(slog.String("component", "events"))}
}

func (f *Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, e); err != nil {
			f.logger.WarnContext(ctx, "event publish failed",
				slog.String("event_type", string(e.Type)),
				slog.String("event_id", e.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
