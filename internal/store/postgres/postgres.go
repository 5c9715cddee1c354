// Package postgres stores licenses in PostgreSQL through GORM.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"licensehub/internal/license"
	"licensehub/internal/store"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Connect opens and validates a Postgres backed GORM connection pool.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded SQL files in lexical order. Every file
// is written to be re-runnable.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}

type licenseModel struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Key              string    `gorm:"column:license_key"`
	Active           bool      `gorm:"column:active"`
	Activated        bool      `gorm:"column:activated"`
	ExpirationDate   time.Time `gorm:"column:expiration_date"`
	SubscriptionType string    `gorm:"column:subscription_type"`
	KeyType          string    `gorm:"column:key_type"`
	MultiDevice      bool      `gorm:"column:multi_device"`
	DeviceID         *string   `gorm:"column:device_id"`
	SupportName      *string   `gorm:"column:support_name"`
	Version          int64     `gorm:"column:version"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (licenseModel) TableName() string { return "licenses" }

func toModel(l license.License) licenseModel {
	return licenseModel{
		ID:               l.ID,
		Key:              l.Key,
		Active:           l.Active,
		Activated:        l.Activated,
		ExpirationDate:   l.ExpirationDate.UTC(),
		SubscriptionType: string(l.SubscriptionType),
		KeyType:          string(l.KeyType),
		MultiDevice:      l.MultiDevice,
		DeviceID:         optional(l.DeviceID),
		SupportName:      optional(l.SupportName),
		Version:          l.Version,
		CreatedAt:        l.CreatedAt.UTC(),
		UpdatedAt:        l.UpdatedAt.UTC(),
	}
}

func (m licenseModel) toDomain() license.License {
	return license.License{
		ID:               m.ID,
		Key:              m.Key,
		Active:           m.Active,
		Activated:        m.Activated,
		ExpirationDate:   m.ExpirationDate.UTC(),
		SubscriptionType: license.SubscriptionType(m.SubscriptionType),
		KeyType:          license.KeyType(m.KeyType),
		MultiDevice:      m.MultiDevice,
		DeviceID:         deref(m.DeviceID),
		SupportName:      deref(m.SupportName),
		Version:          m.Version,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Store is a GORM backed license store.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With(slog.String("component", "store.postgres"))}
}

func (s *Store) Create(ctx context.Context, l license.License) (license.License, error) {
	l.Version = 1
	m := toModel(l)
	m.ID = 0
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return license.License{}, fmt.Errorf("insert license %q: %w", l.Key, store.ErrDuplicateKey)
		}
		return license.License{}, fmt.Errorf("insert license: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) Get(ctx context.Context, id int64) (license.License, error) {
	var m licenseModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return license.License{}, store.ErrNotFound
	}
	if err != nil {
		return license.License{}, fmt.Errorf("get license %d: %w", id, err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindByKey(ctx context.Context, key string) (license.License, error) {
	var m licenseModel
	err := s.db.WithContext(ctx).Where("license_key = ?", key).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return license.License{}, store.ErrNotFound
	}
	if err != nil {
		return license.License{}, fmt.Errorf("find license by key: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) List(ctx context.Context) ([]license.License, error) {
	var models []licenseModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	out := make([]license.License, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (s *Store) CompareAndUpdate(ctx context.Context, id, expectedVersion int64, mut store.Mutator) (license.License, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return license.License{}, err
	}
	if cur.Version != expectedVersion {
		return license.License{}, store.ErrConflict
	}
	next, err := store.Apply(cur, mut)
	if err != nil {
		return license.License{}, err
	}

	m := toModel(next)
	res := s.db.WithContext(ctx).
		Model(&licenseModel{}).
		Where("id = ?", id).
		Where("version = ?", expectedVersion).
		Updates(map[string]any{
			"active":            m.Active,
			"activated":         m.Activated,
			"expiration_date":   m.ExpirationDate,
			"subscription_type": m.SubscriptionType,
			"key_type":          m.KeyType,
			"multi_device":      m.MultiDevice,
			"device_id":         m.DeviceID,
			"support_name":      m.SupportName,
			"version":           m.Version,
			"updated_at":        m.UpdatedAt,
		})
	if res.Error != nil {
		return license.License{}, fmt.Errorf("update license %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return license.License{}, store.ErrConflict
	}
	return next, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&licenseModel{})
	if res.Error != nil {
		return fmt.Errorf("delete license %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
