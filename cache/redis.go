package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys in a shared Redis database
const DefaultRedisPrefix = "airwave:cache:"

// RedisStore implements Store on Redis. Values are JSON encoded entries and
// expire natively after their TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	clock  Clock
}

// NewRedisStore creates a Redis-backed store on an existing client
func NewRedisStore(client *redis.Client, prefix string, clock Clock) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &RedisStore{client: client, prefix: prefix, clock: clock}
}

// DialRedis connects and pings a Redis server
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Get implements Reader
func (r *RedisStore) Get(ctx context.Context, key, version string) (*Entry, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	if !entry.Valid(r.clock.Now(), version) {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Set implements Writer
func (r *RedisStore) Set(ctx context.Context, entry *Entry) error {
	cp := *entry
	if cp.InsertedAt.IsZero() {
		cp.InsertedAt = r.clock.Now()
	}

	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	// the remaining lifetime, not the full TTL, so a backfilled entry
	// does not outlive its original expiry
	var expiry time.Duration
	if cp.TTL > 0 {
		expiry = cp.TTL - cp.Age(r.clock.Now())
		if expiry <= 0 {
			return nil
		}
	}

	if err := r.client.Set(ctx, r.prefix+cp.Key, data, expiry).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete implements Invalidator
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// DeleteMatching implements Invalidator using SCAN so large keyspaces are not
// blocked
func (r *RedisStore) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	match := escapeGlob(r.prefix) + "*" + escapeGlob(pattern) + "*"
	return r.deleteScan(ctx, match)
}

// Clear implements Invalidator. Only keys under the store prefix are removed.
func (r *RedisStore) Clear(ctx context.Context) error {
	_, err := r.deleteScan(ctx, escapeGlob(r.prefix)+"*")
	return err
}

// Len implements Sizer
func (r *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, escapeGlob(r.prefix)+"*", 500).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan error: %w", err)
	}
	return n, nil
}

// Ping checks if Redis is reachable
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) deleteScan(ctx context.Context, match string) (int, error) {
	removed := 0
	batch := make([]string, 0, 100)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis delete error: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	iter := r.client.Scan(ctx, 0, match, 500).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan error: %w", err)
	}
	return removed, flush()
}

// escapeGlob quotes the characters Redis MATCH treats specially
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
