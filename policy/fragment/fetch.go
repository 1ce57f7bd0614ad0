package fragment

import (
	"context"
	"errors"
	"fmt"

	"github.com/bluesky-social/modpolicy/policy"
)

// Raw fragment text, with the serialization format detected at fetch time.
type Fetched struct {
	Raw    []byte
	Format policy.Format
}

// Retrieves the raw text of a remote reference. Implementations should return errors matching policy.ErrNotFound or policy.ErrForbidden where they can tell, and policy.ErrFetch otherwise.
type Fetcher interface {
	Fetch(ctx context.Context, ref Reference) (*Fetched, error)
}

// Platform-hosted named resources (eg, community wiki pages). This is an external collaborator.
type PageSource interface {
	GetPage(ctx context.Context, scope, path string) (string, error)
}

// Fetches KindNamed references from a PageSource.
type PageFetcher struct {
	Pages PageSource
	// community used for references which don't name one
	DefaultScope string
}

var _ Fetcher = (*PageFetcher)(nil)

func (f *PageFetcher) Fetch(ctx context.Context, ref Reference) (*Fetched, error) {
	if ref.Kind != KindNamed {
		return nil, fmt.Errorf("%w: page fetcher can not fetch %s reference", policy.ErrFetch, ref.Kind)
	}
	scope := ref.Scope
	if scope == "" {
		scope = f.DefaultScope
	}
	text, err := f.Pages.GetPage(ctx, scope, ref.Path)
	if err != nil {
		fragmentFetches.WithLabelValues(ref.Kind.String(), "error").Inc()
		if errors.Is(err, policy.ErrFetch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: page %s in %s: %w", policy.ErrFetch, ref.Path, scope, err)
	}
	fragmentFetches.WithLabelValues(ref.Kind.String(), "ok").Inc()
	return &Fetched{
		Raw:    []byte(text),
		Format: policy.DetectFormat("", ref.Path),
	}, nil
}

// Dispatches to a fetcher per reference kind. Nil fetchers cause an error for that kind.
type Router struct {
	URL   Fetcher
	Named Fetcher
}

var _ Fetcher = (*Router)(nil)

func (r *Router) Fetch(ctx context.Context, ref Reference) (*Fetched, error) {
	var f Fetcher
	switch ref.Kind {
	case KindURL:
		f = r.URL
	case KindNamed:
		f = r.Named
	}
	if f == nil {
		return nil, fmt.Errorf("%w: no fetcher configured for %s references", policy.ErrFetch, ref.Kind)
	}
	return f.Fetch(ctx, ref)
}
