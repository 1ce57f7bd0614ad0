package resources

import (
	"context"
	"fmt"

	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/policy/fragment"
)

// cached form of a fetched fragment
type cachedFetch struct {
	Raw    string        `json:"raw"`
	Format policy.Format `json:"format"`
}

// Fetches a fragment through the underlying fetcher, memoized. The reference's own TTL, if any, overrides the configured content TTL.
func (c *Cache) Fetch(ctx context.Context, ref fragment.Reference) (*fragment.Fetched, error) {
	if c.Fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured for %s", policy.ErrFetch, ref)
	}
	ttl := c.Config.ContentTTL
	if ref.TTL > 0 {
		ttl = ref.TTL
	}
	scope := ref.Scope
	if scope == "" && ref.Kind == fragment.KindNamed {
		scope = c.Community
	}
	key := ref.Kind.String() + "/" + policy.NormalizeName(scope) + "/" + ref.Path
	cf, err := memo(ctx, c, "content", key, ttl, func() (cachedFetch, error) {
		f, err := c.Fetcher.Fetch(ctx, ref)
		if err != nil {
			return cachedFetch{}, err
		}
		return cachedFetch{Raw: string(f.Raw), Format: f.Format}, nil
	})
	if err != nil {
		return nil, err
	}
	return &fragment.Fetched{Raw: []byte(cf.Raw), Format: cf.Format}, nil
}

// Returns literal text unchanged. Text with a recognized reference prefix ("url:" or "wiki:") is fetched, memoized, and returned instead.
func (c *Cache) GetContent(ctx context.Context, text, scope string) (string, error) {
	ref, err := fragment.ClassifyString(text)
	if err != nil {
		return "", err
	}
	if ref.Kind == fragment.KindNone {
		return text, nil
	}
	if ref.Scope == "" {
		ref.Scope = scope
	}
	f, err := c.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	return string(f.Raw), nil
}
