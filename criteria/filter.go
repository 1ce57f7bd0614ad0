package criteria

import (
	"fmt"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/policy"
)

// Compiled author filter. Matching goes through a caller-supplied test (usually memoized), so this type only carries the compiled criteria.
type AuthorFilter struct {
	Include []*Author
	Exclude []*Author
}

type ItemFilter struct {
	Include []*Item
	Exclude []*Item
}

// Compiles a composed filter. All named references must already have been substituted; a nil or empty filter compiles to nil.
func CompileAuthorFilter(s *policy.FilterSpec[policy.AuthorCriteria]) (*AuthorFilter, error) {
	if s.IsEmpty() {
		return nil, nil
	}
	include, err := compileAll(s.Include, CompileAuthor)
	if err != nil {
		return nil, err
	}
	exclude, err := compileAll(s.Exclude, CompileAuthor)
	if err != nil {
		return nil, err
	}
	return &AuthorFilter{Include: include, Exclude: exclude}, nil
}

func CompileItemFilter(s *policy.FilterSpec[policy.ItemCriteria]) (*ItemFilter, error) {
	if s.IsEmpty() {
		return nil, nil
	}
	include, err := compileAll(s.Include, CompileItem)
	if err != nil {
		return nil, err
	}
	exclude, err := compileAll(s.Exclude, CompileItem)
	if err != nil {
		return nil, err
	}
	return &ItemFilter{Include: include, Exclude: exclude}, nil
}

func compileAll[T any, M any](refs []policy.CriteriaRef[T], compile func(T) (M, error)) ([]M, error) {
	out := make([]M, 0, len(refs))
	for _, ref := range refs {
		if ref.Criteria == nil {
			return nil, fmt.Errorf("%w: criteria %q was not resolved", policy.ErrUnresolvedReference, ref.Name)
		}
		m, err := compile(*ref.Criteria)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Applies include/exclude semantics. test reports whether a criteria passes in the given mode: in include mode, whether the subject matches it; in exclude mode, whether the subject does not.
//
// The filter passes when there are no include criteria or any include criteria passes, and every exclude criteria passes. On failure a short reason is returned.
func Evaluate[M any](include, exclude []M, test func(m M, include bool) (bool, error)) (bool, string, error) {
	if len(include) > 0 {
		matched := false
		for _, m := range include {
			ok, err := test(m, true)
			if err != nil {
				return false, "", err
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return false, "did not match any include criteria", nil
		}
	}
	for i, m := range exclude {
		ok, err := test(m, false)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("matched exclude criteria #%d", i+1), nil
		}
	}
	return true, "", nil
}

// Matches an item directly. A nil filter passes everything.
func (f *ItemFilter) Match(item *activity.Item, now time.Time) (bool, string) {
	if f == nil {
		return true, ""
	}
	ok, reason, _ := Evaluate(f.Include, f.Exclude, func(m *Item, include bool) (bool, error) {
		return m.Match(item, now) == include, nil
	})
	return ok, reason
}

// Matches an author directly, with no memoization. A nil filter passes everything.
func (f *AuthorFilter) Match(author *activity.Author, notes []activity.Note, now time.Time) (bool, string) {
	if f == nil {
		return true, ""
	}
	ok, reason, _ := Evaluate(f.Include, f.Exclude, func(m *Author, include bool) (bool, error) {
		return m.Match(author, notes, now) == include, nil
	})
	return ok, reason
}

func (f *AuthorFilter) NeedsNotes() bool {
	if f == nil {
		return false
	}
	for _, list := range [][]*Author{f.Include, f.Exclude} {
		for _, m := range list {
			if m.NeedsNotes() {
				return true
			}
		}
	}
	return false
}
