package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memEntry struct {
	val     string
	expires time.Time
}

// In-process store. Entries expire after their own TTL, which is capped at the store's TTL.
type MemCacheStore struct {
	Data *expirable.LRU[string, memEntry]
	TTL  time.Duration
}

var _ CacheStore = (*MemCacheStore)(nil)

// A capacity of zero means no size bound.
func NewMemCacheStore(capacity int, ttl time.Duration) MemCacheStore {
	return MemCacheStore{
		Data: expirable.NewLRU[string, memEntry](capacity, nil, ttl),
		TTL:  ttl,
	}
}

func (s MemCacheStore) Get(ctx context.Context, name, key string) (string, bool, error) {
	k := name + "/" + key
	v, ok := s.Data.Get(k)
	if !ok {
		return "", false, nil
	}
	if time.Now().After(v.expires) {
		s.Data.Remove(k)
		return "", false, nil
	}
	return v.val, true, nil
}

func (s MemCacheStore) Set(ctx context.Context, name, key string, val string, ttl time.Duration) error {
	if ttl <= 0 || ttl > s.TTL {
		ttl = s.TTL
	}
	s.Data.Add(name+"/"+key, memEntry{val: val, expires: time.Now().Add(ttl)})
	return nil
}

func (s MemCacheStore) Purge(ctx context.Context, name, key string) error {
	s.Data.Remove(name + "/" + key)
	return nil
}
