package fragment

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bluesky-social/modpolicy/policy"
)

type Kind int

const (
	// literal (or local/named) data, no fetch required
	KindNone Kind = iota
	KindURL
	KindNamed
)

func (k Kind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindNamed:
		return "named"
	default:
		return "none"
	}
}

const (
	PrefixURL   = "url:"
	PrefixNamed = "wiki:"
)

// A classified fragment pointer.
type Reference struct {
	Kind Kind
	// URL (for KindURL) or resource path (for KindNamed), without prefix
	Path string
	// for KindNamed: the community hosting the resource. Empty means the fetcher's default.
	Scope string
	// cache lifetime requested by an include descriptor. Zero means the cache default.
	TTL time.Duration
}

func (r Reference) String() string {
	switch r.Kind {
	case KindURL:
		return PrefixURL + r.Path
	case KindNamed:
		if r.Scope != "" {
			return PrefixNamed + r.Path + "|" + r.Scope
		}
		return PrefixNamed + r.Path
	default:
		return r.Path
	}
}

// Classifies a bare string. Strings without a recognized prefix are KindNone.
func ClassifyString(s string) (Reference, error) {
	trimmed := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(trimmed, PrefixURL):
		raw := strings.TrimSpace(strings.TrimPrefix(trimmed, PrefixURL))
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Reference{}, fmt.Errorf("%w: invalid fragment URL: %q", policy.ErrConfigParse, raw)
		}
		return Reference{Kind: KindURL, Path: raw}, nil
	case strings.HasPrefix(trimmed, PrefixNamed):
		raw := strings.TrimSpace(strings.TrimPrefix(trimmed, PrefixNamed))
		p, scope, _ := strings.Cut(raw, "|")
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p == "" {
			return Reference{}, fmt.Errorf("%w: empty named resource path: %q", policy.ErrConfigParse, s)
		}
		return Reference{Kind: KindNamed, Path: p, Scope: strings.TrimSpace(scope)}, nil
	}
	return Reference{Kind: KindNone, Path: s}, nil
}

// Returns true if an object has the shape of an include descriptor: a "path" key plus only optional descriptor keys.
func isDescriptor(m map[string]any) bool {
	if _, ok := m["path"]; !ok {
		return false
	}
	for k := range m {
		switch k {
		case "path", "ttl":
		default:
			return false
		}
	}
	return true
}

// Classifies any fragment value. The boolean result is true if the value is a string or include descriptor (as opposed to literal object/array data).
//
// Include descriptors must point at a URL or named resource; anything else is ErrConfigParse.
func Classify(v any) (Reference, bool, error) {
	switch t := v.(type) {
	case string:
		ref, err := ClassifyString(t)
		return ref, true, err
	case map[string]any:
		if !isDescriptor(t) {
			return Reference{}, false, nil
		}
		p, ok := t["path"].(string)
		if !ok || strings.TrimSpace(p) == "" {
			return Reference{}, true, fmt.Errorf("%w: include path must be a non-empty string", policy.ErrConfigParse)
		}
		ref, err := ClassifyString(p)
		if err != nil {
			return Reference{}, true, err
		}
		if ref.Kind == KindNone {
			return Reference{}, true, fmt.Errorf("%w: unrecognized include path %q (expected %q or %q prefix)", policy.ErrConfigParse, p, PrefixURL, PrefixNamed)
		}
		ttl, err := parseTTL(t["ttl"])
		if err != nil {
			return Reference{}, true, err
		}
		ref.TTL = ttl
		return ref, true, nil
	}
	return Reference{}, false, nil
}

// accepts seconds (number) or a Go duration string
func parseTTL(v any) (time.Duration, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case int:
		return time.Duration(t) * time.Second, nil
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid include ttl %q: %w", policy.ErrConfigParse, t, err)
		}
		return d, nil
	}
	return 0, fmt.Errorf("%w: invalid include ttl: %v", policy.ErrConfigParse, v)
}
