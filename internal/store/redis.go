package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	entryKeyPrefix  = "trend:"
	optionKeyPrefix = "options:"

	regionWorldwide = "ww"
	ownerAnonymous  = "anon"
)

// RedisStore implements Store on Redis. Server-side key expiry is the TTL
// reaping guarantee: expired entries become invisible without any
// application-level polling.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func entryKey(key EntryKey) string {
	region := key.Region
	if region == "" {
		region = regionWorldwide
	}
	owner := key.Owner
	if owner == "" {
		owner = ownerAnonymous
	}
	return fmt.Sprintf("%s%s:%s:%s:%s", entryKeyPrefix, key.Scope, region, owner, key.QueryKey)
}

func optionKey(name string) string {
	return optionKeyPrefix + name
}

// GetEntry returns the entry for the key, or ErrNotFound.
func (s *RedisStore) GetEntry(ctx context.Context, key EntryKey) (*CacheEntry, error) {
	val, err := s.client.Get(ctx, entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// PutEntry upserts the entry and starts a fresh TTL.
func (s *RedisStore) PutEntry(ctx context.Context, entry *CacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if err := s.client.Set(ctx, entryKey(entry.Key()), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// incrementRetries bounds the optimistic-transaction retries when racing
// writers keep invalidating the watched key.
const incrementRetries = 5

// IncrementHit bumps the hit counter, keeping the remaining TTL so that
// CreatedAt stays the expiry anchor regardless of how often the entry is
// read. The read-modify-write runs under WATCH so concurrent hits across
// instances never lose increments. A concurrent expiry between read and
// write surfaces as ErrNotFound.
func (s *RedisStore) IncrementHit(ctx context.Context, key EntryKey) (int64, error) {
	k := entryKey(key)

	var count int64
	bump := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, k).Bytes()
		if err != nil {
			return err
		}

		var entry CacheEntry
		if err := json.Unmarshal(val, &entry); err != nil {
			return fmt.Errorf("failed to unmarshal entry: %w", err)
		}

		entry.HitCount++
		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, k, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			count = entry.HitCount
		}
		return err
	}

	for i := 0; i < incrementRetries; i++ {
		err := s.client.Watch(ctx, bump, k)
		switch {
		case err == nil:
			return count, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return 0, ErrNotFound
		default:
			return 0, fmt.Errorf("redis increment error: %w", err)
		}
	}
	return 0, fmt.Errorf("redis increment error: %w", redis.TxFailedErr)
}

// PurgeEntries deletes every trend-type record via SCAN to avoid blocking
// Redis the way KEYS would.
func (s *RedisStore) PurgeEntries(ctx context.Context) (int64, error) {
	var deleted int64
	iter := s.client.Scan(ctx, 0, entryKeyPrefix+"*", 100).Iterator()

	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, batch...).Result()
		deleted += n
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("redis delete error: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan error: %w", err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("redis delete error: %w", err)
	}
	return deleted, nil
}

// GetOptionSet returns the named option set, or ErrNotFound.
func (s *RedisStore) GetOptionSet(ctx context.Context, name string) (*OptionSet, error) {
	val, err := s.client.Get(ctx, optionKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var set OptionSet
	if err := json.Unmarshal(val, &set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal option set: %w", err)
	}
	return &set, nil
}

// PutOptionSet replaces the named option set with a TTL running to its
// ExpiresAt.
func (s *RedisStore) PutOptionSet(ctx context.Context, set *OptionSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to marshal option set: %w", err)
	}

	ttl := time.Until(set.ExpiresAt)
	if ttl <= 0 {
		ttl = OptionSetTTL
	}
	if err := s.client.Set(ctx, optionKey(set.Name), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable, used by readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
