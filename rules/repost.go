package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/keyword"
	"github.com/bluesky-social/modpolicy/policy"
)

// Triggers when another author recently posted the same link or title in the community.
type Repost struct {
	Window    time.Duration
	CompareOn []string
	// minimum title similarity (percent)
	Similarity float64
}

type repostConfig struct {
	Window     string   `json:"window"`
	CompareOn  []string `json:"compareOn"`
	Similarity *float64 `json:"similarity"`
}

func newRepost(config map[string]any) (*Repost, error) {
	var cfg repostConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	r := &Repost{CompareOn: cfg.CompareOn, Similarity: 100}
	if len(r.CompareOn) == 0 {
		r.CompareOn = []string{"url", "title"}
	}
	for _, f := range r.CompareOn {
		if f != "url" && f != "title" {
			return nil, fmt.Errorf("%w: can not compare on %q", policy.ErrSchemaValidation, f)
		}
	}
	if cfg.Similarity != nil {
		if *cfg.Similarity <= 0 || *cfg.Similarity > 100 {
			return nil, fmt.Errorf("%w: similarity must be in (0, 100]", policy.ErrSchemaValidation)
		}
		r.Similarity = *cfg.Similarity
	}
	var err error
	if r.Window, err = parseWindow(cfg.Window, "30 days"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repost) Kind() string { return policy.KindRepost }

func (r *Repost) Process(ctx context.Context, env *Env, item *activity.Item) (Outcome, error) {
	if !item.IsSubmission() {
		return Outcome{Triggered: false, Data: map[string]any{"reason": "only submissions can be reposts"}}, nil
	}
	items, err := env.Resources.GetCommunityActivities(ctx, activity.ListOptions{Window: r.Window, Kind: activity.KindSubmission})
	if err != nil {
		return Outcome{}, err
	}
	url := keyword.NormalizeURL(item.URL)
	for i := range items {
		other := &items[i]
		if other.ID == item.ID || strings.EqualFold(other.Author, item.Author) {
			continue
		}
		for _, f := range r.CompareOn {
			var same bool
			switch f {
			case "url":
				same = url != "" && url == keyword.NormalizeURL(other.URL)
			case "title":
				same = item.Title != "" && keyword.Similarity(item.Title, other.Title) >= r.Similarity
			}
			if same {
				return Outcome{
					Triggered: true,
					Data: map[string]any{
						"matchedID":     other.ID,
						"matchedAuthor": other.Author,
						"comparedOn":    f,
					},
				}, nil
			}
		}
	}
	return Outcome{Triggered: false, Data: map[string]any{"compared": len(items)}}, nil
}
