// Package redis stores licenses as JSON documents in Redis. Conditional
// updates use WATCH/MULTI optimistic transactions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"licensehub/internal/license"
	"licensehub/internal/store"
)

const DefaultPrefix = "licensehub"

// Connect builds a client from a redis:// URL or a bare host:port address.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Store is a Redis backed license store.
//
// Layout under prefix p:
//
//	p:license:<id>       JSON record
//	p:license:key:<key>  id of the record holding key
//	p:licenses           sorted set of ids, scored by id
//	p:licenses:seq       id sequence
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

func New(client *redis.Client, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger.With(slog.String("component", "store.redis")),
	}
}

func (s *Store) recordKey(id int64) string  { return s.prefix + ":license:" + strconv.FormatInt(id, 10) }
func (s *Store) keyIndex(key string) string { return s.prefix + ":license:key:" + key }
func (s *Store) idsKey() string             { return s.prefix + ":licenses" }
func (s *Store) seqKey() string             { return s.prefix + ":licenses:seq" }

func (s *Store) Create(ctx context.Context, l license.License) (license.License, error) {
	idx := s.keyIndex(l.Key)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, idx).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrDuplicateKey
		}

		id, err := tx.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return err
		}
		l.ID = id
		l.Version = 1
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("encode license: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.recordKey(id), data, 0)
			pipe.Set(ctx, idx, id, 0)
			pipe.ZAdd(ctx, s.idsKey(), redis.Z{Score: float64(id), Member: id})
			return nil
		})
		return err
	}, idx)

	switch {
	case errors.Is(err, store.ErrDuplicateKey), errors.Is(err, redis.TxFailedErr):
		// A failed watch on the key index means another writer claimed the key.
		return license.License{}, fmt.Errorf("create %q: %w", l.Key, store.ErrDuplicateKey)
	case err != nil:
		return license.License{}, fmt.Errorf("create license: %w", err)
	}
	return l, nil
}

func (s *Store) Get(ctx context.Context, id int64) (license.License, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return license.License{}, store.ErrNotFound
	}
	if err != nil {
		return license.License{}, fmt.Errorf("get license %d: %w", id, err)
	}
	return decode(raw)
}

func (s *Store) FindByKey(ctx context.Context, key string) (license.License, error) {
	id, err := s.client.Get(ctx, s.keyIndex(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return license.License{}, store.ErrNotFound
	}
	if err != nil {
		return license.License{}, fmt.Errorf("find license by key: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Store) List(ctx context.Context) ([]license.License, error) {
	ids, err := s.client.ZRange(ctx, s.idsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list license ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + ":license:" + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load licenses: %w", err)
	}

	out := make([]license.License, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Deleted between ZRANGE and MGET.
			continue
		}
		l, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Store) CompareAndUpdate(ctx context.Context, id, expectedVersion int64, m store.Mutator) (license.License, error) {
	rk := s.recordKey(id)
	var next license.License

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, rk).Bytes()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decode(raw)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return store.ErrConflict
		}

		next, err = store.Apply(cur, m)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode license: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, data, 0)
			return nil
		})
		return err
	}, rk)

	if errors.Is(err, redis.TxFailedErr) {
		return license.License{}, store.ErrConflict
	}
	if err != nil {
		return license.License{}, err
	}
	return next, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	rk := s.recordKey(id)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, rk).Bytes()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decode(raw)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rk, s.keyIndex(cur.Key))
			pipe.ZRem(ctx, s.idsKey(), id)
			return nil
		})
		return err
	}, rk)

	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrConflict
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete license %d: %w", id, err)
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func decode(raw []byte) (license.License, error) {
	var l license.License
	if err := json.Unmarshal(raw, &l); err != nil {
		return license.License{}, fmt.Errorf("decode license: %w", err)
	}
	return l, nil
}
