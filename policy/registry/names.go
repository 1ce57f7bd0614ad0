package registry

import (
	"fmt"
	"sort"

	"github.com/bluesky-social/modpolicy/policy"
)

// Case-insensitive table of named entities of one type, for a single hydration pass.
type Names[T policy.Entity[T]] struct {
	// entity type, used in error messages (eg "rule", "author criteria")
	Kind   string
	byName map[string]T
}

func NewNames[T policy.Entity[T]](kind string) *Names[T] {
	return &Names[T]{
		Kind:   kind,
		byName: make(map[string]T),
	}
}

// Registers an entity under its normalized name. Entities without a name are ignored.
//
// Registering the same name more than once is allowed only if the entities are structurally equal, not counting the name itself.
func (n *Names[T]) Register(item T) error {
	key := policy.NormalizeName(item.EntityName())
	if key == "" {
		return nil
	}
	existing, ok := n.byName[key]
	if !ok {
		n.byName[key] = item
		return nil
	}
	same, err := policy.StructurallyEqual(existing.Anonymous(), item.Anonymous())
	if err != nil {
		return fmt.Errorf("comparing %s %q: %w", n.Kind, item.EntityName(), err)
	}
	if !same {
		return fmt.Errorf("%w: %s %q is defined more than once with different content", policy.ErrNamingConflict, n.Kind, item.EntityName())
	}
	return nil
}

func (n *Names[T]) Get(name string) (T, error) {
	item, ok := n.byName[policy.NormalizeName(name)]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: no %s named %q", policy.ErrUnresolvedReference, n.Kind, name)
	}
	return item, nil
}

func (n *Names[T]) Len() int {
	return len(n.byName)
}

// Normalized names, sorted.
func (n *Names[T]) Keys() []string {
	out := make([]string, 0, len(n.byName))
	for k := range n.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
