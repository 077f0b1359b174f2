package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "montevecchio:group"

// RedisStore keeps the document in a single hash with body, version and
// updated_at fields. Save uses WATCH/MULTI for the version check.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Document, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Document{}, fmt.Errorf("redis load: %w", err)
	}
	if len(fields) == 0 {
		return Document{}, ErrNotFound
	}
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return Document{}, fmt.Errorf("redis load: bad version %q: %w", fields["version"], err)
	}
	doc := Document{Body: []byte(fields["body"]), Version: version}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		doc.UpdatedAt = ts
	}
	return doc, nil
}

func (s *RedisStore) Save(ctx context.Context, body []byte, expectedVersion int64) (int64, error) {
	var next int64
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, s.key, "version").Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != expectedVersion {
			return ErrVersionConflict
		}
		next = current + 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.key,
				"body", body,
				"version", next,
				"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
			)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, s.key)
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return 0, ErrVersionConflict
	default:
		return 0, fmt.Errorf("redis save: %w", err)
	}
}

func (s *RedisStore) Put(ctx context.Context, doc Document) error {
	updated := doc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	err := s.client.HSet(ctx, s.key,
		"body", doc.Body,
		"version", doc.Version,
		"updated_at", updated.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
