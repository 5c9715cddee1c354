// Package store defines the durable license storage contract shared by the
// memory, sqlite, redis and postgres implementations.
package store

import (
	"context"

	"licensehub/internal/license"
)

// Mutator edits a record inside CompareAndUpdate.
type Mutator = license.Mutator

var (
	ErrNotFound     = license.ErrNotFound
	ErrDuplicateKey = license.ErrDuplicateKey
	ErrConflict     = license.ErrConflict
)

// Store is durable keyed storage for license records.
//
// Create assigns the id and sets Version to 1. List returns records in
// ascending id order. CompareAndUpdate applies the mutator and writes the
// whole record with Version+1 only if the stored version still equals
// expectedVersion; a mutator error aborts the write and is returned as is.
type Store interface {
	license.Repository

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by configuration.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Apply runs m on a copy of cur and returns the record to persist with its
// version bumped. It is shared by implementations that mutate in Go before
// writing.
func Apply(cur license.License, m Mutator) (license.License, error) {
	next := cur
	if err := m(&next); err != nil {
		return license.License{}, err
	}
	// Identity fields are owned by the store.
	next.ID = cur.ID
	next.Key = cur.Key
	next.CreatedAt = cur.CreatedAt
	next.Version = cur.Version + 1
	return next, nil
}
