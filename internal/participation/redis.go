package participation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the server-side copy of a device's participations, keyed by
// the device id the client sends. Entries expire on their own after ttl.
type RedisStore struct {
	client   *redis.Client
	deviceID string
	ttl      time.Duration
}

func NewRedisStore(client *redis.Client, deviceID string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, deviceID: deviceID, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	return "participation:" + s.deviceID + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode participation: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode participation: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save participation: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete participation: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	var out []Record
	iter := s.client.Scan(ctx, 0, s.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get participation: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan participations: %w", err)
	}
	sortNewestFirst(out)
	return out, nil
}

// Prune deletes records saved before olderThan. Redis expiry usually got
// there first.
func (s *RedisStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	recs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		if rec.SavedAt.Before(olderThan) {
			if err := s.Delete(ctx, rec.Key()); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// Identity is the device id this store was opened for.
func (s *RedisStore) Identity(_ context.Context) (string, error) {
	if s.deviceID == "" {
		return "", ErrNotFound
	}
	return s.deviceID, nil
}

func (s *RedisStore) SetIdentity(_ context.Context, id string) error {
	s.deviceID = id
	return nil
}
