package statcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "storedesk:stats:"

// genKey sits outside keyPrefix so flushing the stats leaves it in place.
const genKey = "storedesk:stats-gen"

var errStaleGeneration = errors.New("statcache: generation moved")

// RedisStore keeps computed statistics as JSON blobs under a common prefix.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// GetJSON decodes the value at key into dest. It reports false on a cache miss.
func (s *RedisStore) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Generation returns the invalidation counter. A missing counter reads as 0.
func (s *RedisStore) Generation(ctx context.Context) (int64, error) {
	return readGeneration(ctx, s.client)
}

func readGeneration(ctx context.Context, c interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}) (int64, error) {
	gen, err := c.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetJSONAt stores v at key only if the generation still equals gen. It
// reports false when an invalidation happened in between.
func (s *RedisStore) SetJSONAt(ctx context.Context, key string, v any, ttl time.Duration, gen int64) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGeneration(ctx, tx)
		if err != nil {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, keyPrefix+key, data, ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, errStaleGeneration) || errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes keys and bumps the generation in one transaction.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = keyPrefix + k
	}
	return s.deleteKeys(ctx, full)
}

func (s *RedisStore) deleteKeys(ctx context.Context, full []string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		if len(full) > 0 {
			p.Del(ctx, full...)
		}
		return nil
	})
	return err
}

// FlushAll removes every key under the stats prefix.
func (s *RedisStore) FlushAll(ctx context.Context) error {
	return s.DeletePrefix(ctx, "")
}

// DeletePrefix removes every key that starts with prefix.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return s.deleteKeys(ctx, keys)
}
