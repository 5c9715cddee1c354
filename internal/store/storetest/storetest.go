// Package storetest is a conformance suite run against every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"licensehub/internal/license"
	"licensehub/internal/store"
)

// Factory returns an empty store. Cleanup is registered on t by the factory.
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(key string) license.License {
	return license.License{
		Key:              key,
		Active:           true,
		ExpirationDate:   epoch.Add(7 * 24 * time.Hour),
		SubscriptionType: license.SubscriptionWeek,
		KeyType:          license.KeyTypeRestricted,
		SupportName:      "support",
		CreatedAt:        epoch,
		UpdatedAt:        epoch,
	}
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAssignsIDAndVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, sample("ABC-123"))
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, int64(1), created.Version)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "ABC-123", got.Key)
		assert.True(t, got.Active)
		assert.False(t, got.Activated)
		assert.Empty(t, got.DeviceID)
		assert.Equal(t, "support", got.SupportName)
		assert.Equal(t, license.SubscriptionWeek, got.SubscriptionType)
		assert.Equal(t, license.KeyTypeRestricted, got.KeyType)
		assert.True(t, got.ExpirationDate.Equal(epoch.Add(7*24*time.Hour)), "expiration round trip: %s", got.ExpirationDate)
	})

	t.Run("CreateRejectsDuplicateKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, sample("DUP"))
		require.NoError(t, err)
		_, err = s.Create(ctx, sample("DUP"))
		assert.ErrorIs(t, err, store.ErrDuplicateKey)
	})

	t.Run("MissingRecords", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Get(ctx, 4242)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.FindByKey(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.CompareAndUpdate(ctx, 4242, 1, func(*license.License) error { return nil })
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, 4242), store.ErrNotFound)
	})

	t.Run("ListIsOrderedByID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_, err := s.Create(ctx, sample(fmt.Sprintf("KEY-%d", 5-i)))
			require.NoError(t, err)
		}
		all, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].ID, all[i].ID)
		}
		assert.Equal(t, "KEY-5", all[0].Key)
	})

	t.Run("CompareAndUpdateBumpsVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, sample("CAS"))
		require.NoError(t, err)

		updated, err := s.CompareAndUpdate(ctx, created.ID, created.Version, func(l *license.License) error {
			l.Activated = true
			l.DeviceID = "dev1"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, created.Version+1, updated.Version)
		assert.Equal(t, "dev1", updated.DeviceID)

		stored, err := s.FindByKey(ctx, "CAS")
		require.NoError(t, err)
		assert.Equal(t, updated.Version, stored.Version)
		assert.True(t, stored.Activated)
		assert.Equal(t, "dev1", stored.DeviceID)

		// Clearing the device must persist as unset.
		_, err = s.CompareAndUpdate(ctx, created.ID, stored.Version, func(l *license.License) error {
			l.Activated = false
			l.DeviceID = ""
			return nil
		})
		require.NoError(t, err)
		stored, err = s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.DeviceID)
		assert.False(t, stored.Activated)
	})

	t.Run("CompareAndUpdateRejectsStaleVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, sample("STALE"))
		require.NoError(t, err)
		_, err = s.CompareAndUpdate(ctx, created.ID, created.Version, func(l *license.License) error {
			l.Active = false
			return nil
		})
		require.NoError(t, err)

		_, err = s.CompareAndUpdate(ctx, created.ID, created.Version, func(l *license.License) error {
			l.DeviceID = "late"
			return nil
		})
		assert.ErrorIs(t, err, store.ErrConflict)

		stored, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.DeviceID)
	})

	t.Run("MutatorErrorAbortsWrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, sample("ABORT"))
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = s.CompareAndUpdate(ctx, created.ID, created.Version, func(l *license.License) error {
			l.Active = false
			return boom
		})
		assert.ErrorIs(t, err, boom)

		stored, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, stored.Active)
		assert.Equal(t, created.Version, stored.Version)
	})

	t.Run("DeleteFreesKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, sample("GONE"))
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, created.ID))
		assert.ErrorIs(t, s.Delete(ctx, created.ID), store.ErrNotFound)

		_, err = s.FindByKey(ctx, "GONE")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.Create(ctx, sample("GONE"))
		assert.NoError(t, err)
	})

	t.Run("ConcurrentFirstActivationHasOneWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		clock := license.NewFixedClock(epoch)
		engine := license.NewEngine(s, clock, license.WithBackoff(time.Millisecond))

		_, err := engine.CreateLicense(ctx, license.CreateParams{
			Key:              "RACE-1",
			KeyType:          license.KeyTypeRestricted,
			SubscriptionType: license.SubscriptionWeek,
		})
		require.NoError(t, err)

		const devices = 50
		results := make([]license.Result, devices)
		start := make(chan struct{})
		var g errgroup.Group
		for i := 0; i < devices; i++ {
			g.Go(func() error {
				<-start
				res, err := engine.ActivateOrCheck(ctx, "RACE-1", fmt.Sprintf("device-%02d", i))
				results[i] = res
				return err
			})
		}
		close(start)
		require.NoError(t, g.Wait())

		var winners []string
		mismatches := 0
		for i, res := range results {
			if res.Valid {
				winners = append(winners, fmt.Sprintf("device-%02d", i))
				continue
			}
			assert.Equal(t, license.ReasonDeviceMismatch, res.Reason)
			mismatches++
		}
		require.Len(t, winners, 1)
		assert.Equal(t, devices-1, mismatches)

		stored, err := s.FindByKey(ctx, "RACE-1")
		require.NoError(t, err)
		assert.Equal(t, winners[0], stored.DeviceID)
		assert.True(t, stored.Activated)
		assert.Equal(t, int64(2), stored.Version)
	})

	t.Run("ConcurrentTogglesAreSerialized", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		engine := license.NewEngine(s, license.NewFixedClock(epoch),
			license.WithMaxAttempts(10), license.WithBackoff(time.Millisecond))

		created, err := engine.CreateLicense(ctx, license.CreateParams{
			Key:              "TOGGLE-1",
			KeyType:          license.KeyTypeRestricted,
			SubscriptionType: license.SubscriptionMonth,
		})
		require.NoError(t, err)

		var committed atomic.Int64
		var g errgroup.Group
		for i := 0; i < 20; i++ {
			g.Go(func() error {
				_, err := engine.ToggleActive(ctx, created.ID)
				if errors.Is(err, license.ErrConflict) {
					return nil
				}
				if err == nil {
					committed.Add(1)
				}
				return err
			})
		}
		require.NoError(t, g.Wait())

		stored, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		n := committed.Load()
		assert.Equal(t, 1+n, stored.Version, "every committed toggle bumps the version once")
		assert.Equal(t, n%2 == 0, stored.Active)
	})
}
