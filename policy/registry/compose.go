package registry

import (
	"encoding/json"
	"fmt"

	"github.com/bluesky-social/modpolicy/policy"
)

const (
	DefaultPostFail    = policy.BehaviorNext
	DefaultPostTrigger = policy.BehaviorNextRun
)

func schemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", policy.ErrSchemaValidation, fmt.Sprintf(format, args...))
}

// Substitutes every named reference in the filter with its registered criteria. Inline criteria are kept as-is. Returns nil for a nil filter.
func (r *Registry) ComposeAuthor(s *policy.FilterSpec[policy.AuthorCriteria]) (*policy.FilterSpec[policy.AuthorCriteria], error) {
	return compose(r.Authors, s)
}

func (r *Registry) ComposeItem(s *policy.FilterSpec[policy.ItemCriteria]) (*policy.FilterSpec[policy.ItemCriteria], error) {
	return compose(r.Items, s)
}

func compose[T policy.Entity[T]](names *Names[T], s *policy.FilterSpec[T]) (*policy.FilterSpec[T], error) {
	if s == nil {
		return nil, nil
	}
	include, err := composeRefs(names, s.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := composeRefs(names, s.Exclude)
	if err != nil {
		return nil, err
	}
	return &policy.FilterSpec[T]{Include: include, Exclude: exclude}, nil
}

func composeRefs[T policy.Entity[T]](names *Names[T], refs []policy.CriteriaRef[T]) ([]policy.CriteriaRef[T], error) {
	if refs == nil {
		return nil, nil
	}
	out := make([]policy.CriteriaRef[T], len(refs))
	for i, ref := range refs {
		if ref.Criteria != nil {
			out[i] = ref
			continue
		}
		c, err := names.Get(ref.Name)
		if err != nil {
			return nil, err
		}
		out[i] = policy.CriteriaRef[T]{Criteria: &c}
	}
	return out, nil
}

// Extracts the include/exclude author criteria from the config of an author rule. Returns nil if neither is set.
func AuthorRuleCriteria(cfg map[string]any) (*policy.FilterSpec[policy.AuthorCriteria], error) {
	include, exclude := cfg["include"], cfg["exclude"]
	if include == nil && exclude == nil {
		return nil, nil
	}
	var spec policy.FilterSpec[policy.AuthorCriteria]
	if err := policy.Decode(map[string]any{"include": include, "exclude": exclude}, &spec); err != nil {
		return nil, fmt.Errorf("author rule criteria: %w", err)
	}
	return &spec, nil
}

// returns a copy of the config with include/exclude criteria composed and stripped of names, in generic form
func (r *Registry) composeAuthorRuleConfig(cfg map[string]any) (map[string]any, error) {
	spec, err := AuthorRuleCriteria(cfg)
	if err != nil || spec == nil {
		return cfg, err
	}
	composed, err := r.ComposeAuthor(spec)
	if err != nil {
		return nil, err
	}
	// names are labels only; the premise of the rule must not depend on them
	composed = policy.AnonymousFilter(composed)
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	delete(out, "include")
	delete(out, "exclude")
	if len(composed.Include) > 0 {
		if out["include"], err = toGeneric(composed.Include); err != nil {
			return nil, err
		}
	}
	if len(composed.Exclude) > 0 {
		if out["exclude"], err = toGeneric(composed.Exclude); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Picks the source of each filter field for a check. The check's own field wins if defined; otherwise the first level of defaults (nearest first: run, document, global) which defines that field.
//
// Exactly one level supplies each field. Levels are never merged, and a check which defines a field ignores every default for it, even an empty one.
func CheckFilters(check *policy.Check, defaults ...*policy.FilterDefaults) (*policy.FilterSpec[policy.AuthorCriteria], *policy.FilterSpec[policy.ItemCriteria]) {
	author, item := check.AuthorIs, check.ItemIs
	for _, d := range defaults {
		if d == nil {
			continue
		}
		if author == nil {
			author = d.AuthorIs
		}
		if item == nil {
			item = d.ItemIs
		}
	}
	return author, item
}

// Same single-level rule as CheckFilters, for postFail/postTrigger. Falls back to "next" and "nextRun".
func CheckBehavior(check *policy.Check, defaults ...*policy.PostCheckBehavior) (postFail, postTrigger string) {
	postFail, postTrigger = check.PostFail, check.PostTrigger
	for _, d := range defaults {
		if d == nil {
			continue
		}
		if postFail == "" {
			postFail = d.PostFail
		}
		if postTrigger == "" {
			postTrigger = d.PostTrigger
		}
	}
	if postFail == "" {
		postFail = DefaultPostFail
	}
	if postTrigger == "" {
		postTrigger = DefaultPostTrigger
	}
	return postFail, postTrigger
}
