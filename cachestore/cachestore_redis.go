package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// local (in-process) copies of redis entries are kept at most this long
const maxLocalTTL = time.Minute

// Redis-backed store, with a small in-process cache in front.
//
// LocalTTL is clamped to min(TTL, one minute). Set only keeps a local copy of entries whose TTL is at least LocalTTL, so a local copy made on write never outlives its entry. A value read back from redis is copied locally as well, and may be served for up to LocalTTL after its redis entry expires or is deleted elsewhere.
type RedisCacheStore struct {
	Data     *cache.Cache
	TTL      time.Duration
	LocalTTL time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

func NewRedisCacheStore(redisURL string, ttl time.Duration) (*RedisCacheStore, error) {
	ctx := context.Background()
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	localTTL := min(ttl, maxLocalTTL)
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(10_000, localTTL),
	})
	return &RedisCacheStore{
		Data:     data,
		TTL:      ttl,
		LocalTTL: localTTL,
	}, nil
}

func redisCacheKey(name, key string) string {
	return "cache/" + name + "/" + key
}

func (s RedisCacheStore) Get(ctx context.Context, name, key string) (string, bool, error) {
	var val string
	err := s.Data.Get(ctx, redisCacheKey(name, key), &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// A zero ttl means the store's TTL. Entries with a ttl shorter than LocalTTL live in redis only.
func (s RedisCacheStore) Set(ctx context.Context, name, key string, val string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.TTL
	}
	return s.Data.Set(&cache.Item{
		Ctx:            ctx,
		Key:            redisCacheKey(name, key),
		Value:          val,
		TTL:            ttl,
		SkipLocalCache: ttl < s.LocalTTL,
	})
}

func (s RedisCacheStore) Purge(ctx context.Context, name, key string) error {
	err := s.Data.Delete(ctx, redisCacheKey(name, key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
