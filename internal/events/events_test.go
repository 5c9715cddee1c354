package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensehub/internal/shared/testutil"
)

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewStampsEvent(t *testing.T) {
	local := at.In(time.FixedZone("UTC+3", 3*3600))
	e := New(LicenseCreated, 7, "ABC-****", local, map[string]any{"key_type": "restricted"})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, LicenseCreated, e.Type)
	assert.Equal(t, int64(7), e.LicenseID)
	assert.Equal(t, time.UTC, e.OccurredAt.Location())
	assert.True(t, e.OccurredAt.Equal(at))

	other := New(LicenseCreated, 7, "ABC-****", at, nil)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestLogPublisher(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	p := NewLogPublisher(logger)

	require.NoError(t, p.Publish(context.Background(), New(LicenseReset, 3, "XYZ-****", at, nil)))

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "license event")
	testutil.AssertLogAttr(t, handler, "event_type", "license.reset")
	testutil.AssertLogAttr(t, handler, "key", "XYZ-****")
	testutil.AssertLogAttr(t, handler, "component", "events")
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	boom := errors.New("broker down")
	failing := &recorder{err: boom}
	healthy := &recorder{}

	f := NewFanout(logger, failing, nil, healthy)
	err := f.Publish(context.Background(), New(LicenseToggled, 1, "K-****", at, nil))

	assert.ErrorIs(t, err, boom)
	assert.Len(t, failing.snapshot(), 1)
	assert.Len(t, healthy.snapshot(), 1)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "event publish failed")
}

func TestKafkaPublisher(t *testing.T) {
	t.Run("requires brokers and topic", func(t *testing.T) {
		_, err := NewKafkaPublisher(nil, "license-events")
		assert.Error(t, err)
		_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
		assert.Error(t, err)
	})

	t.Run("writes keyed json message", func(t *testing.T) {
		w := &fakeWriter{}
		p := &KafkaPublisher{writer: w, topic: "license-events"}
		e := New(LicenseActivated, 42, "ABC-****", at, map[string]any{"device_bound": true})

		require.NoError(t, p.Publish(context.Background(), e))
		require.Len(t, w.msgs, 1)

		msg := w.msgs[0]
		assert.Equal(t, "license-events", msg.Topic)
		assert.Equal(t, "42", string(msg.Key))
		assert.True(t, msg.Time.Equal(at))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "license.activated", string(msg.Headers[0].Value))

		var decoded Event
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, e.ID, decoded.ID)
		assert.Equal(t, LicenseActivated, decoded.Type)
		assert.Equal(t, true, decoded.Data["device_bound"])

		require.NoError(t, p.Close())
		assert.True(t, w.closed)
	})

	t.Run("wraps writer errors", func(t *testing.T) {
		boom := errors.New("leader not available")
		p := &KafkaPublisher{writer: &fakeWriter{err: boom}, topic: "t"}
		err := p.Publish(context.Background(), New(LicenseDeleted, 1, "K-****", at, nil))
		assert.ErrorIs(t, err, boom)
	})
}

func TestAsyncDeliversInBackground(t *testing.T) {
	sink := &recorder{}
	a := NewAsync(sink, 8, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, a.Publish(context.Background(), New(LicenseCreated, i, "K-****", at, nil)))
	}
	assert.Eventually(t, func() bool { return len(sink.snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestAsyncDropsWhenFull(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	sink := &recorder{}
	a := NewAsync(sink, 1, logger)

	require.NoError(t, a.Publish(context.Background(), New(LicenseCreated, 1, "K-****", at, nil)))
	require.NoError(t, a.Publish(context.Background(), New(LicenseCreated, 2, "K-****", at, nil)))
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "event queue full")

	// A cancelled Run still drains the queued event.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Run(ctx))

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].LicenseID)
}
