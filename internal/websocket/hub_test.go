package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensehub/internal/events"
	"licensehub/internal/infrastructure"
	"licensehub/internal/shared/testutil"
)

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func startHub(t *testing.T, logger *slog.Logger) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, cancel
}

// textFrames decodes every text frame written to conn.
func textFrames(t *testing.T, conn *MockConnection) []Message {
	t.Helper()
	var out []Message
	for _, m := range conn.Written() {
		if m.Type != websocket.TextMessage {
			continue
		}
		var msg Message
		require.NoError(t, json.Unmarshal(m.Data, &msg))
		out = append(out, msg)
	}
	return out
}

func TestHubRegisterSendsWelcome(t *testing.T) {
	hub, _ := startHub(t, slog.Default())
	conn := NewMockConnection()

	client, err := Serve(hub, conn, "trace-1", slog.Default())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(textFrames(t, conn)) == 1 }, time.Second, 5*time.Millisecond)

	welcome := textFrames(t, conn)[0]
	assert.Equal(t, TypeConnection, welcome.Type)
	assert.Equal(t, "trace-1", welcome.TraceID)
	data, ok := welcome.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, client.ID(), data["client_id"])
	assert.Eventually(t, func() bool { return conn.ReadLimit() == maxMessageSize }, time.Second, 5*time.Millisecond)
}

func TestHubPublishBroadcastsEvent(t *testing.T) {
	hub, _ := startHub(t, slog.Default())
	first, second := NewMockConnection(), NewMockConnection()
	_, err := Serve(hub, first, "", nil)
	require.NoError(t, err)
	_, err = Serve(hub, second, "", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	ctx := infrastructure.WithTraceID(context.Background(), "req-9")
	e := events.New(events.LicenseToggled, 5, "ABC-****", at, map[string]any{"active": false})
	require.NoError(t, hub.Publish(ctx, e))

	for _, conn := range []*MockConnection{first, second} {
		require.Eventually(t, func() bool { return len(textFrames(t, conn)) == 2 }, time.Second, 5*time.Millisecond)
		msg := textFrames(t, conn)[1]
		assert.Equal(t, "license.toggled", msg.Type)
		assert.Equal(t, "req-9", msg.TraceID)
		assert.True(t, msg.Timestamp.Equal(at))
		data, ok := msg.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "ABC-****", data["key"])
		assert.Equal(t, float64(5), data["license_id"])
	}
}

func TestHubUnregistersClosedClient(t *testing.T) {
	hub, _ := startHub(t, slog.Default())
	conn := NewMockConnection()
	_, err := Serve(hub, conn, "", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// A close frame from the peer ends the read pump.
	conn.Feed(websocket.CloseMessage, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure})

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, conn.IsClosed, time.Second, 5*time.Millisecond)
}

func TestHubEvictsSlowConsumer(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	hub, _ := startHub(t, logger)

	// Registered directly so no write pump drains the buffer.
	client := NewClient(hub, NewMockConnection(), "", logger)
	require.NoError(t, hub.Register(client))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < sendBuffer+5; i++ {
		require.NoError(t, hub.Publish(context.Background(), events.New(events.LicenseCreated, int64(i), "K-****", at, nil)))
	}

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return handler.ContainsMessage("client send buffer full") }, time.Second, 5*time.Millisecond)
	testutil.AssertLogAttr(t, handler, "reason", "slow_consumer")
}

func TestHubStopped(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	conn := NewMockConnection()
	_, err := Serve(hub, conn, "", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, 0, hub.ClientCount())
	assert.Eventually(t, conn.IsClosed, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, hub.Register(NewClient(hub, NewMockConnection(), "", nil)), ErrHubStopped)

	_, err = Serve(hub, NewMockConnection(), "", nil)
	assert.ErrorIs(t, err, ErrHubStopped)
}
