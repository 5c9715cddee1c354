// Package memory is an in-process license store guarded by a single RWMutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"licensehub/internal/license"
	"licensehub/internal/store"
)

// Store keeps licenses in maps. The zero value is not usable; call New.
type Store struct {
	mu     sync.RWMutex
	byID   map[int64]license.License
	byKey  map[string]int64
	nextID int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		byID:  make(map[int64]license.License),
		byKey: make(map[string]int64),
	}
}

func (s *Store) Create(ctx context.Context, l license.License) (license.License, error) {
	if err := ctx.Err(); err != nil {
		return license.License{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[l.Key]; exists {
		return license.License{}, fmt.Errorf("create %q: %w", l.Key, store.ErrDuplicateKey)
	}
	s.nextID++
	l.ID = s.nextID
	l.Version = 1
	s.byID[l.ID] = l
	s.byKey[l.Key] = l.ID
	return l, nil
}

func (s *Store) Get(ctx context.Context, id int64) (license.License, error) {
	if err := ctx.Err(); err != nil {
		return license.License{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.byID[id]
	if !ok {
		return license.License{}, store.ErrNotFound
	}
	return l, nil
}

func (s *Store) FindByKey(ctx context.Context, key string) (license.License, error) {
	if err := ctx.Err(); err != nil {
		return license.License{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return license.License{}, store.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *Store) List(ctx context.Context) ([]license.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]license.License, 0, len(s.byID))
	for _, l := range s.byID {
		out = append(out, l)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CompareAndUpdate(ctx context.Context, id, expectedVersion int64, m store.Mutator) (license.License, error) {
	if err := ctx.Err(); err != nil {
		return license.License{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return license.License{}, store.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return license.License{}, store.ErrConflict
	}

	next, err := store.Apply(cur, m)
	if err != nil {
		return license.License{}, err
	}
	s.byID[id] = next
	return next, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byKey, l.Key)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
