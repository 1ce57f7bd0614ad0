package activity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bluesky-social/modpolicy/policy"
)

// In-process Source, for tests and local evaluation of fixtures. Also serves community pages (for named policy fragments).
type MemSource struct {
	mu      sync.RWMutex
	authors map[string]Author
	items   []Item
	notes   map[string][]Note
	pages   map[string]string
	// reference time for windowed queries; defaults to time.Now
	Now func() time.Time
}

var _ Source = (*MemSource)(nil)

func NewMemSource() *MemSource {
	return &MemSource{
		authors: make(map[string]Author),
		notes:   make(map[string][]Note),
		pages:   make(map[string]string),
	}
}

func key(parts ...string) string {
	return strings.ToLower(strings.Join(parts, "/"))
}

func (s *MemSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MemSource) PutAuthor(a Author) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authors[key(a.Name)] = a
}

func (s *MemSource) PutItems(items ...Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
}

func (s *MemSource) PutNote(community, author string, n Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(community, author)
	s.notes[k] = append(s.notes[k], n)
}

func (s *MemSource) PutPage(scope, path, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key(scope, strings.Trim(path, "/"))] = text
}

func (s *MemSource) GetAuthor(ctx context.Context, name string) (*Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authors[key(name)]
	if !ok {
		return nil, fmt.Errorf("author not found: %s", name)
	}
	return &a, nil
}

func (s *MemSource) GetAuthorActivities(ctx context.Context, name string, opts ListOptions) ([]Item, error) {
	return s.list(func(i *Item) bool { return strings.EqualFold(i.Author, name) }, opts), nil
}

func (s *MemSource) GetCommunityActivities(ctx context.Context, community string, opts ListOptions) ([]Item, error) {
	return s.list(func(i *Item) bool { return strings.EqualFold(i.Community, community) }, opts), nil
}

func (s *MemSource) GetAuthorNotes(ctx context.Context, community, name string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notes := s.notes[key(community, name)]
	out := make([]Note, len(notes))
	copy(out, notes)
	return out, nil
}

// Implements the page source used for named policy fragments.
func (s *MemSource) GetPage(ctx context.Context, scope, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.pages[key(scope, strings.Trim(path, "/"))]
	if !ok {
		return "", fmt.Errorf("%w: page %s in %s", policy.ErrNotFound, path, scope)
	}
	return text, nil
}

func (s *MemSource) list(match func(*Item) bool, opts ListOptions) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var out []Item
	for i := range s.items {
		item := &s.items[i]
		if !match(item) {
			continue
		}
		if opts.Kind != "" && item.Kind != opts.Kind {
			continue
		}
		if opts.Window > 0 && item.CreatedAt.Before(now.Add(-opts.Window)) {
			continue
		}
		if len(opts.Communities) > 0 && !containsFold(opts.Communities, item.Community) {
			continue
		}
		out = append(out, *item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
