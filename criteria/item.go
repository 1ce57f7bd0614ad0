package criteria

import (
	"fmt"
	"strings"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/policy"

	"github.com/araddon/dateparse"
	"github.com/rivo/uniseg"
)

// Compiled policy.ItemCriteria. Every set field must match.
type Item struct {
	Criteria policy.ItemCriteria

	score         *Comparison
	reports       *Comparison
	age           *Comparison
	bodyLength    *Comparison
	createdAfter  time.Time
	createdBefore time.Time
}

func CompileItem(c policy.ItemCriteria) (*Item, error) {
	switch c.Kind {
	case "", activity.KindSubmission, activity.KindComment:
	default:
		return nil, fmt.Errorf("%w: item kind must be %q or %q, got %q", policy.ErrSchemaValidation, activity.KindSubmission, activity.KindComment, c.Kind)
	}

	m := &Item{Criteria: c}
	var err error
	if m.score, err = optionalComparison("score", c.Score); err != nil {
		return nil, err
	}
	if m.reports, err = optionalComparison("reports", c.Reports); err != nil {
		return nil, err
	}
	if m.age, err = optionalComparison("age", c.Age); err != nil {
		return nil, err
	}
	if m.age != nil && !m.age.IsDuration() {
		return nil, fmt.Errorf("%w: age must be a duration comparison: %q", policy.ErrSchemaValidation, c.Age)
	}
	if m.bodyLength, err = optionalComparison("bodyLength", c.BodyLength); err != nil {
		return nil, err
	}
	if c.CreatedAfter != "" {
		if m.createdAfter, err = dateparse.ParseAny(c.CreatedAfter); err != nil {
			return nil, fmt.Errorf("%w: createdAfter: %w", policy.ErrSchemaValidation, err)
		}
	}
	if c.CreatedBefore != "" {
		if m.createdBefore, err = dateparse.ParseAny(c.CreatedBefore); err != nil {
			return nil, fmt.Errorf("%w: createdBefore: %w", policy.ErrSchemaValidation, err)
		}
	}
	return m, nil
}

func (m *Item) Match(item *activity.Item, now time.Time) bool {
	c := &m.Criteria
	if c.Kind != "" && c.Kind != item.Kind {
		return false
	}
	if c.Removed != nil && *c.Removed != item.Removed {
		return false
	}
	if c.Locked != nil && *c.Locked != item.Locked {
		return false
	}
	if c.Deleted != nil && *c.Deleted != item.Deleted {
		return false
	}
	if c.Spam != nil && *c.Spam != item.Spam {
		return false
	}
	if m.score != nil && !m.score.Test(float64(item.Score)) {
		return false
	}
	if m.reports != nil && !m.reports.Test(float64(item.Reports)) {
		return false
	}
	if m.age != nil && !m.age.TestDuration(now.Sub(item.CreatedAt)) {
		return false
	}
	if len(c.Flair) > 0 && !containsFold(c.Flair, item.Flair) {
		return false
	}
	if len(c.Domain) > 0 && !matchDomain(c.Domain, item.Domain) {
		return false
	}
	if m.bodyLength != nil && !m.bodyLength.Test(float64(graphemeCount(item.Body))) {
		return false
	}
	if !m.createdAfter.IsZero() && !item.CreatedAt.After(m.createdAfter) {
		return false
	}
	if !m.createdBefore.IsZero() && !item.CreatedAt.Before(m.createdBefore) {
		return false
	}
	return true
}

// matches exact domains and their subdomains
func matchDomain(domains []string, domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	if domain == "" {
		return false
	}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "www."))
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// user-perceived characters
func graphemeCount(s string) int {
	n := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		n++
	}
	return n
}
