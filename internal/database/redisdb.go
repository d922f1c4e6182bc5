package database

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/y0ug/hashguard/internal/database/models"
)

// RedisDB implements the Database interface using Redis.
type RedisDB struct {
	client *redis.Client
}

// NewRedisDB initializes a new RedisDB instance.
func NewRedisDB(ctx context.Context, cfg *DatabaseConfig) (*RedisDB, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	return NewRedisDBFromClient(rdb), nil
}

// NewRedisDBFromClient wraps an existing client.
func NewRedisDBFromClient(client *redis.Client) *RedisDB {
	return &RedisDB{client: client}
}

// Initialize is a no-op: Redis is schema-less.
func (r *RedisDB) Initialize(ctx context.Context) error {
	return nil
}

// GetEntry retrieves a specific reputation entry.
func (r *RedisDB) GetEntry(ctx context.Context, key string) (models.ReputationEntry, error) {
	val, err := r.client.Get(ctx, entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ReputationEntry{}, ErrEntryNotFound
		}
		return models.ReputationEntry{}, err
	}
	return decodeEntry(val)
}

// PutEntry stores the entry without expiry. Stale entries stay readable as a fallback.
func (r *RedisDB) PutEntry(ctx context.Context, entry models.ReputationEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, entryKey(entry.URLKey), data, 0).Err()
}

// DeleteEntry removes a reputation entry.
func (r *RedisDB) DeleteEntry(ctx context.Context, key string) error {
	return r.client.Del(ctx, entryKey(key)).Err()
}

// CountEntries scans the reputation keyspace.
func (r *RedisDB) CountEntries(ctx context.Context) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, entryKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the Redis client connection.
func (r *RedisDB) Close(ctx context.Context) error {
	return r.client.Close()
}
