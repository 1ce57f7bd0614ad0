package criteria

import (
	"fmt"
	"strings"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/policy"
)

type noteTest struct {
	noteType string
	count    *Comparison
}

// Compiled policy.AuthorCriteria. Every set field must match.
type Author struct {
	Criteria policy.AuthorCriteria

	names        map[string]bool
	flair        []string
	age          *Comparison
	totalKarma   *Comparison
	linkKarma    *Comparison
	commentKarma *Comparison
	notes        []noteTest
}

func optionalComparison(field, s string) (*Comparison, error) {
	if s == "" {
		return nil, nil
	}
	c, err := ParseComparison(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return c, nil
}

func CompileAuthor(c policy.AuthorCriteria) (*Author, error) {
	a := &Author{Criteria: c, flair: c.Flair}
	if len(c.Names) > 0 {
		a.names = make(map[string]bool, len(c.Names))
		for _, n := range c.Names {
			a.names[strings.ToLower(strings.TrimSpace(n))] = true
		}
	}

	var err error
	if a.age, err = optionalComparison("age", c.Age); err != nil {
		return nil, err
	}
	if a.age != nil && !a.age.IsDuration() {
		return nil, fmt.Errorf("%w: age must be a duration comparison: %q", policy.ErrSchemaValidation, c.Age)
	}
	if a.totalKarma, err = optionalComparison("totalKarma", c.TotalKarma); err != nil {
		return nil, err
	}
	if a.linkKarma, err = optionalComparison("linkKarma", c.LinkKarma); err != nil {
		return nil, err
	}
	if a.commentKarma, err = optionalComparison("commentKarma", c.CommentKarma); err != nil {
		return nil, err
	}
	for _, n := range c.UserNotes {
		if n.Type == "" {
			return nil, fmt.Errorf("%w: userNotes entry requires a type", policy.ErrSchemaValidation)
		}
		countStr := n.Count
		if countStr == "" {
			countStr = ">= 1"
		}
		count, err := optionalComparison("userNotes", countStr)
		if err != nil {
			return nil, err
		}
		a.notes = append(a.notes, noteTest{noteType: n.Type, count: count})
	}
	return a, nil
}

// Whether matching requires the author's moderator notes.
func (a *Author) NeedsNotes() bool {
	return len(a.notes) > 0
}

func (a *Author) Match(author *activity.Author, notes []activity.Note, now time.Time) bool {
	if author == nil {
		return false
	}
	if a.names != nil && !a.names[strings.ToLower(author.Name)] {
		return false
	}
	if len(a.flair) > 0 && !containsFold(a.flair, author.Flair) {
		return false
	}
	if a.Criteria.IsMod != nil && *a.Criteria.IsMod != author.IsMod {
		return false
	}
	if a.Criteria.Verified != nil && *a.Criteria.Verified != author.Verified {
		return false
	}
	if a.age != nil && !a.age.TestDuration(now.Sub(author.CreatedAt)) {
		return false
	}
	if a.totalKarma != nil && !a.totalKarma.Test(float64(author.TotalKarma())) {
		return false
	}
	if a.linkKarma != nil && !a.linkKarma.Test(float64(author.LinkKarma)) {
		return false
	}
	if a.commentKarma != nil && !a.commentKarma.Test(float64(author.CommentKarma)) {
		return false
	}
	for _, nt := range a.notes {
		count := 0
		for _, n := range notes {
			if strings.EqualFold(n.Type, nt.noteType) {
				count++
			}
		}
		if !nt.count.Test(float64(count)) {
			return false
		}
	}
	return true
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
