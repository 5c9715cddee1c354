// Package sqlite stores licenses in a SQLite database file using the pure Go
// modernc driver. The schema is managed by goose migrations embedded in the
// binary.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"licensehub/internal/license"
	"licensehub/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite backed license store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens the database at path, applies pending migrations and returns a
// ready store. Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "store.sqlite"))

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.InfoContext(ctx, "sqlite store opened", slog.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func dsn(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
}

// Migrate applies all pending migrations to db.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

const licenseCols = `id, license_key, active, activated, expiration_date, subscription_type,
	key_type, multi_device, device_id, support_name, version, created_at, updated_at`

func scanLicense(scanner interface{ Scan(...any) error }) (license.License, error) {
	var (
		l           license.License
		subType     string
		keyType     string
		deviceID    sql.NullString
		supportName sql.NullString
	)
	err := scanner.Scan(
		&l.ID, &l.Key, &l.Active, &l.Activated, &l.ExpirationDate, &subType,
		&keyType, &l.MultiDevice, &deviceID, &supportName, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return license.License{}, err
	}
	l.SubscriptionType = license.SubscriptionType(subType)
	l.KeyType = license.KeyType(keyType)
	l.DeviceID = deviceID.String
	l.SupportName = supportName.String
	l.ExpirationDate = l.ExpirationDate.UTC()
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func utc(t time.Time) time.Time { return t.UTC() }

func (s *Store) Create(ctx context.Context, l license.License) (license.License, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO licenses (license_key, active, activated, expiration_date, subscription_type,
			key_type, multi_device, device_id, support_name, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		l.Key, l.Active, l.Activated, utc(l.ExpirationDate), string(l.SubscriptionType),
		string(l.KeyType), l.MultiDevice, nullString(l.DeviceID), nullString(l.SupportName),
		utc(l.CreatedAt), utc(l.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return license.License{}, fmt.Errorf("insert license %q: %w", l.Key, store.ErrDuplicateKey)
		}
		return license.License{}, fmt.Errorf("insert license: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return license.License{}, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Store) Get(ctx context.Context, id int64) (license.License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseCols+` FROM licenses WHERE id = ?`, id)
	l, err := scanLicense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return license.License{}, store.ErrNotFound
	}
	if err != nil {
		return license.License{}, fmt.Errorf("get license %d: %w", id, err)
	}
	return l, nil
}

func (s *Store) FindByKey(ctx context.Context, key string) (license.License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseCols+` FROM licenses WHERE license_key = ?`, key)
	l, err := scanLicense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return license.License{}, store.ErrNotFound
	}
	if err != nil {
		return license.License{}, fmt.Errorf("find license by key: %w", err)
	}
	return l, nil
}

func (s *Store) List(ctx context.Context) ([]license.License, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+licenseCols+` FROM licenses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var out []license.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CompareAndUpdate mutates in Go and writes with a version guarded UPDATE, so
// the write is a single atomic statement.
func (s *Store) CompareAndUpdate(ctx context.Context, id, expectedVersion int64, m store.Mutator) (license.License, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return license.License{}, err
	}
	if cur.Version != expectedVersion {
		return license.License{}, store.ErrConflict
	}
	next, err := store.Apply(cur, m)
	if err != nil {
		return license.License{}, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET active = ?, activated = ?, expiration_date = ?, subscription_type = ?,
			key_type = ?, multi_device = ?, device_id = ?, support_name = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		next.Active, next.Activated, utc(next.ExpirationDate), string(next.SubscriptionType),
		string(next.KeyType), next.MultiDevice, nullString(next.DeviceID), nullString(next.SupportName),
		next.Version, utc(next.UpdatedAt),
		id, expectedVersion,
	)
	if err != nil {
		return license.License{}, fmt.Errorf("update license %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return license.License{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return license.License{}, store.ErrConflict
	}
	return next, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM licenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete license %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
