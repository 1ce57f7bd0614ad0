package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/criteria"
	"github.com/bluesky-social/modpolicy/keyword"
	"github.com/bluesky-social/modpolicy/policy"
)

// Triggers when the author has enough recent activity in a set of communities.
type RecentActivity struct {
	Window      time.Duration
	Communities []string
	LookAt      string
	Threshold   *criteria.Comparison
}

type recentActivityConfig struct {
	Window      string   `json:"window"`
	Communities []string `json:"communities"`
	LookAt      string   `json:"lookAt"`
	Threshold   string   `json:"threshold"`
}

func newRecentActivity(config map[string]any) (*RecentActivity, error) {
	var cfg recentActivityConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Communities) == 0 {
		return nil, fmt.Errorf("%w: communities is required", policy.ErrSchemaValidation)
	}
	r := &RecentActivity{Communities: cfg.Communities}
	var err error
	if r.Window, err = parseWindow(cfg.Window, "7 days"); err != nil {
		return nil, err
	}
	if r.LookAt, err = parseLookAt(cfg.LookAt); err != nil {
		return nil, err
	}
	if r.Threshold, err = parseThreshold(cfg.Threshold, ">= 1"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RecentActivity) Kind() string { return policy.KindRecentActivity }

func (r *RecentActivity) Process(ctx context.Context, env *Env, item *activity.Item) (Outcome, error) {
	items, err := env.Resources.GetAuthorActivities(ctx, item.Author, activity.ListOptions{
		Window:      r.Window,
		Kind:        r.LookAt,
		Communities: r.Communities,
	})
	if err != nil {
		return Outcome{}, err
	}
	found := make(map[string]int)
	for _, it := range items {
		found[strings.ToLower(it.Community)]++
	}
	return Outcome{
		Triggered: r.Threshold.Test(float64(len(items))),
		Data: map[string]any{
			"count":       len(items),
			"communities": found,
		},
	}, nil
}

// Triggers when the author has posted the same content repeatedly.
type RepeatActivity struct {
	Window    time.Duration
	Threshold *criteria.Comparison
	// minimum token similarity (percent) for two items to count as the same content
	Similarity float64
	// items with fewer tokens than this are never counted as repeats
	MinWordCount int
}

type repeatActivityConfig struct {
	Window       string   `json:"window"`
	Threshold    string   `json:"threshold"`
	Similarity   *float64 `json:"similarity"`
	MinWordCount int      `json:"minWordCount"`
}

func newRepeatActivity(config map[string]any) (*RepeatActivity, error) {
	var cfg repeatActivityConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	r := &RepeatActivity{Similarity: 100, MinWordCount: cfg.MinWordCount}
	if cfg.Similarity != nil {
		if *cfg.Similarity <= 0 || *cfg.Similarity > 100 {
			return nil, fmt.Errorf("%w: similarity must be in (0, 100]", policy.ErrSchemaValidation)
		}
		r.Similarity = *cfg.Similarity
	}
	var err error
	if r.Window, err = parseWindow(cfg.Window, "7 days"); err != nil {
		return nil, err
	}
	if r.Threshold, err = parseThreshold(cfg.Threshold, ">= 3"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RepeatActivity) Kind() string { return policy.KindRepeatActivity }

func (r *RepeatActivity) same(a, b string) bool {
	if r.Similarity >= 100 {
		return keyword.Fingerprint(a) == keyword.Fingerprint(b)
	}
	return keyword.Similarity(a, b) >= r.Similarity
}

func (r *RepeatActivity) Process(ctx context.Context, env *Env, item *activity.Item) (Outcome, error) {
	content := item.Content()
	if len(keyword.TokenizeText(content)) < max(r.MinWordCount, 1) {
		return Outcome{Triggered: false, Data: map[string]any{"count": 0}}, nil
	}
	items, err := env.Resources.GetAuthorActivities(ctx, item.Author, activity.ListOptions{Window: r.Window})
	if err != nil {
		return Outcome{}, err
	}
	// the item itself always counts, whether or not the listing includes it yet
	count := 1
	for _, it := range items {
		if it.ID == item.ID {
			continue
		}
		if r.same(content, it.Content()) {
			count++
		}
	}
	return Outcome{
		Triggered: r.Threshold.Test(float64(count)),
		Data:      map[string]any{"count": count},
	}, nil
}

// Triggers when a large share of the author's submissions link to the same domain as the item.
type Attribution struct {
	Window    time.Duration
	Threshold *criteria.Comparison
	// fewer submissions than this in the window never trigger
	MinActivityCount int
	// domains to attribute; defaults to the item's own domain
	Domains []string
}

type attributionConfig struct {
	Window           string   `json:"window"`
	Threshold        string   `json:"threshold"`
	MinActivityCount *int     `json:"minActivityCount"`
	Domains          []string `json:"domains"`
}

func newAttribution(config map[string]any) (*Attribution, error) {
	var cfg attributionConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	r := &Attribution{MinActivityCount: 5, Domains: cfg.Domains}
	if cfg.MinActivityCount != nil {
		r.MinActivityCount = *cfg.MinActivityCount
	}
	var err error
	if r.Window, err = parseWindow(cfg.Window, "90 days"); err != nil {
		return nil, err
	}
	if r.Threshold, err = parseThreshold(cfg.Threshold, ">= 20%"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Attribution) Kind() string { return policy.KindAttribution }

func (r *Attribution) Process(ctx context.Context, env *Env, item *activity.Item) (Outcome, error) {
	domains := r.Domains
	if len(domains) == 0 {
		d := itemDomain(item)
		if d == "" {
			return Outcome{Triggered: false, Data: map[string]any{"reason": "item has no domain"}}, nil
		}
		domains = []string{d}
	}

	items, err := env.Resources.GetAuthorActivities(ctx, item.Author, activity.ListOptions{Window: r.Window, Kind: activity.KindSubmission})
	if err != nil {
		return Outcome{}, err
	}
	matched := 0
	for i := range items {
		d := itemDomain(&items[i])
		for _, want := range domains {
			if strings.EqualFold(d, want) {
				matched++
				break
			}
		}
	}
	data := map[string]any{
		"domains": domains,
		"matched": matched,
		"total":   len(items),
	}
	if len(items) < r.MinActivityCount || len(items) == 0 {
		return Outcome{Triggered: false, Data: data}, nil
	}
	percent := 100 * float64(matched) / float64(len(items))
	data["percent"] = percent
	value := float64(matched)
	if r.Threshold.IsPercent() {
		value = percent
	}
	return Outcome{Triggered: r.Threshold.Test(value), Data: data}, nil
}

func itemDomain(item *activity.Item) string {
	if item.Domain != "" {
		return strings.TrimPrefix(strings.ToLower(item.Domain), "www.")
	}
	return keyword.Domain(item.URL)
}

// Triggers based on counts of the author's submissions and comments within a window.
type History struct {
	Window    time.Duration
	Condition string
	Criteria  []HistoryCriteria
}

type HistoryCriteria struct {
	Total      *criteria.Comparison
	Submission *criteria.Comparison
	Comment    *criteria.Comparison
}

type historyConfig struct {
	Window    string `json:"window"`
	Condition string `json:"condition"`
	Criteria  []struct {
		Total      string `json:"total"`
		Submission string `json:"submission"`
		Comment    string `json:"comment"`
	} `json:"criteria"`
}

func newHistory(config map[string]any) (*History, error) {
	var cfg historyConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Criteria) == 0 {
		return nil, fmt.Errorf("%w: at least one criteria is required", policy.ErrSchemaValidation)
	}
	r := &History{}
	var err error
	if r.Window, err = parseWindow(cfg.Window, "30 days"); err != nil {
		return nil, err
	}
	if r.Condition, err = parseCondition(cfg.Condition); err != nil {
		return nil, err
	}
	for i, c := range cfg.Criteria {
		var hc HistoryCriteria
		if c.Total == "" && c.Submission == "" && c.Comment == "" {
			return nil, fmt.Errorf("%w: criteria #%d is empty", policy.ErrSchemaValidation, i+1)
		}
		for _, f := range []struct {
			raw string
			out **criteria.Comparison
		}{{c.Total, &hc.Total}, {c.Submission, &hc.Submission}, {c.Comment, &hc.Comment}} {
			if f.raw == "" {
				continue
			}
			if *f.out, err = criteria.ParseComparison(f.raw); err != nil {
				return nil, err
			}
		}
		r.Criteria = append(r.Criteria, hc)
	}
	return r, nil
}

func (r *History) Kind() string { return policy.KindHistory }

func (r *History) Process(ctx context.Context, env *Env, item *activity.Item) (Outcome, error) {
	items, err := env.Resources.GetAuthorActivities(ctx, item.Author, activity.ListOptions{Window: r.Window})
	if err != nil {
		return Outcome{}, err
	}
	submissions, comments := 0, 0
	for i := range items {
		if items[i].IsSubmission() {
			submissions++
		} else {
			comments++
		}
	}
	results := make([]bool, len(r.Criteria))
	for i, c := range r.Criteria {
		ok := true
		if c.Total != nil && !c.Total.Test(float64(submissions+comments)) {
			ok = false
		}
		if c.Submission != nil && !c.Submission.Test(float64(submissions)) {
			ok = false
		}
		if c.Comment != nil && !c.Comment.Test(float64(comments)) {
			ok = false
		}
		results[i] = ok
	}
	return Outcome{
		Triggered: combine(r.Condition, results),
		Data: map[string]any{
			"submissions": submissions,
			"comments":    comments,
			"results":     results,
		},
	}, nil
}
