package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensehub/internal/store"
	"licensehub/internal/store/storetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := New(client, "test", nil)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := Connect(ctx, mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	client, err = Connect(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = Connect(ctx, "redis://%zz")
	assert.Error(t, err)
}

func TestKeyLayout(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, storetestLicense("LAYOUT-1"))
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:license:1"))
	got, err := mr.Get("test:license:key:LAYOUT-1")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	require.NoError(t, s.Delete(ctx, created.ID))
	assert.False(t, mr.Exists("test:license:1"))
	assert.False(t, mr.Exists("test:license:key:LAYOUT-1"))
}
