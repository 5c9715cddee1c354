package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"licensehub/internal/shared/testutil"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubCounter int

func (c stubCounter) ClientCount() int { return int(c) }

func TestHealthCheck(t *testing.T) {
	hs := NewHealthService("1.2.3", stubPinger{}, stubCounter(3), nil)

	status := hs.HealthCheck(context.Background())
	assert.Equal(t, StatusOK, status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, 3, status.Runtime["websocket_clients"])
	assert.NotEmpty(t, status.Runtime["go_version"])

	withoutHub := NewHealthService("1.2.3", stubPinger{}, nil, nil).HealthCheck(context.Background())
	assert.NotContains(t, withoutHub.Runtime, "websocket_clients")
}

func TestReadinessCheck(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		status, ok := NewHealthService("v", stubPinger{}, nil, nil).ReadinessCheck(context.Background())
		assert.True(t, ok)
		assert.Equal(t, StatusReady, status.Status)
		assert.Equal(t, StatusHealthy, status.Services["store"].Status)
	})

	t.Run("store down", func(t *testing.T) {
		logger, handler := testutil.NewTestLogger(t)
		status, ok := NewHealthService("v", stubPinger{err: errors.New("connection refused")}, nil, logger).ReadinessCheck(context.Background())
		assert.False(t, ok)
		assert.Equal(t, StatusNotReady, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Services["store"].Status)
		testutil.AssertLogAttr(t, handler, "dependency", "store")
	})
}
