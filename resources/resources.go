// TTL-memoized access to platform resources (author activity, author details, remote content) and to author criteria results.
//
// A Cache is shared by everything evaluating policies for one community. It is safe for concurrent use; concurrent misses on the same key result in a single upstream fetch.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/cachestore"
	"github.com/bluesky-social/modpolicy/criteria"
	"github.com/bluesky-social/modpolicy/policy/fragment"
	"github.com/bluesky-social/modpolicy/policy"

	"golang.org/x/sync/singleflight"
)

type Config struct {
	AuthorActivityTTL    time.Duration
	CommunityActivityTTL time.Duration
	AuthorTTL            time.Duration
	// remote content and fragments, unless the reference carries its own TTL
	ContentTTL  time.Duration
	CriteriaTTL time.Duration
	// if true, nothing is memoized
	Disabled bool
	// if true, author activity cache keys leave out the community, so entries are shared by every Cache using the same store
	ShareAuthorActivity bool
}

func DefaultConfig() Config {
	return Config{
		AuthorActivityTTL:    60 * time.Second,
		CommunityActivityTTL: 60 * time.Second,
		AuthorTTL:            5 * time.Minute,
		ContentTTL:           5 * time.Minute,
		CriteriaTTL:          60 * time.Second,
	}
}

type Cache struct {
	Source activity.Source
	Store  cachestore.CacheStore
	// used for remote content; optional
	Fetcher fragment.Fetcher
	// the community (tenant) this cache serves
	Community string
	Config    Config
	Logger    *slog.Logger
	// reference time for criteria matching; defaults to time.Now
	Now func() time.Time

	group singleflight.Group
}

var _ fragment.Fetcher = (*Cache)(nil)

func New(src activity.Source, store cachestore.CacheStore, fetcher fragment.Fetcher, community string, config Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		Source:    src,
		Store:     store,
		Fetcher:   fetcher,
		Community: community,
		Config:    config,
		Logger:    logger.With("component", "resources", "community", community),
	}
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Returns the memoized value for (name, key), or calls fetch and stores its result. Store failures are logged and otherwise ignored: the cache is never authoritative.
func memo[T any](ctx context.Context, c *Cache, name, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if c.Config.Disabled || c.Store == nil {
		cacheRequests.WithLabelValues(name, "disabled").Inc()
		return fetch()
	}

	var out T
	existing, ok, err := c.Store.Get(ctx, name, key)
	if err != nil {
		c.Logger.Warn("resource cache read failed", "name", name, "err", err)
	} else if ok {
		if err := json.Unmarshal([]byte(existing), &out); err == nil {
			cacheRequests.WithLabelValues(name, "hit").Inc()
			return out, nil
		}
		c.Logger.Warn("discarding unparsable resource cache entry", "name", name, "key", key)
	}

	cacheRequests.WithLabelValues(name, "miss").Inc()
	v, err, _ := c.group.Do(name+"/"+key, func() (any, error) {
		val, err := fetch()
		if err != nil {
			return val, err
		}
		b, err := json.Marshal(val)
		if err != nil {
			return val, fmt.Errorf("serializing %s for cache: %w", name, err)
		}
		if err := c.Store.Set(ctx, name, key, string(b), ttl); err != nil {
			c.Logger.Warn("resource cache write failed", "name", name, "err", err)
		}
		return val, nil
	})
	if err != nil {
		return out, err
	}
	return v.(T), nil
}

func (c *Cache) hashKey(parts ...any) (string, error) {
	key, err := policy.Hash(parts...)
	if err != nil {
		return "", fmt.Errorf("computing resource cache key: %w", err)
	}
	return key, nil
}

func (c *Cache) GetAuthorActivities(ctx context.Context, user string, opts activity.ListOptions) ([]activity.Item, error) {
	parts := []any{opts, policy.NormalizeName(user)}
	if !c.Config.ShareAuthorActivity {
		parts = append(parts, policy.NormalizeName(c.Community))
	}
	key, err := c.hashKey(parts...)
	if err != nil {
		return nil, err
	}
	return memo(ctx, c, "author-activity", key, c.Config.AuthorActivityTTL, func() ([]activity.Item, error) {
		return c.Source.GetAuthorActivities(ctx, user, opts)
	})
}

func (c *Cache) GetCommunityActivities(ctx context.Context, opts activity.ListOptions) ([]activity.Item, error) {
	key, err := c.hashKey(opts, policy.NormalizeName(c.Community))
	if err != nil {
		return nil, err
	}
	return memo(ctx, c, "community-activity", key, c.Config.CommunityActivityTTL, func() ([]activity.Item, error) {
		return c.Source.GetCommunityActivities(ctx, c.Community, opts)
	})
}

func (c *Cache) GetAuthor(ctx context.Context, name string) (*activity.Author, error) {
	return memo(ctx, c, "author", policy.NormalizeName(name), c.Config.AuthorTTL, func() (*activity.Author, error) {
		return c.Source.GetAuthor(ctx, name)
	})
}

func (c *Cache) GetAuthorNotes(ctx context.Context, name string) ([]activity.Note, error) {
	key := policy.NormalizeName(c.Community) + "/" + policy.NormalizeName(name)
	return memo(ctx, c, "author-notes", key, c.Config.AuthorTTL, func() ([]activity.Note, error) {
		return c.Source.GetAuthorNotes(ctx, c.Community, name)
	})
}

// Tests whether the author of an item passes a criteria in include mode (author matches) or exclude mode (author does not match). Memoized by item, criteria and mode.
func (c *Cache) TestAuthorCriteria(ctx context.Context, item *activity.Item, m *criteria.Author, include bool) (bool, error) {
	key, err := c.hashKey(item.ID, m.Criteria, include)
	if err != nil {
		return false, err
	}
	return memo(ctx, c, "author-criteria", key, c.Config.CriteriaTTL, func() (bool, error) {
		author, err := c.GetAuthor(ctx, item.Author)
		if err != nil {
			return false, fmt.Errorf("fetching author %s: %w", item.Author, err)
		}
		var notes []activity.Note
		if m.NeedsNotes() {
			notes, err = c.GetAuthorNotes(ctx, item.Author)
			if err != nil {
				return false, fmt.Errorf("fetching notes for %s: %w", item.Author, err)
			}
		}
		return m.Match(author, notes, c.now()) == include, nil
	})
}
