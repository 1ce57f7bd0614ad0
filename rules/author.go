package rules

import (
	"context"
	"fmt"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/criteria"
	"github.com/bluesky-social/modpolicy/policy"
)

// Triggers when the item's author passes the rule's include/exclude criteria. Criteria are compiled when the rule is built; every name must already be resolved.
type Author struct {
	Filter *criteria.AuthorFilter
}

type authorConfig struct {
	Include []policy.CriteriaRef[policy.AuthorCriteria] `json:"include"`
	Exclude []policy.CriteriaRef[policy.AuthorCriteria] `json:"exclude"`
}

func newAuthor(config map[string]any) (*Author, error) {
	var cfg authorConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Include) == 0 && len(cfg.Exclude) == 0 {
		return nil, fmt.Errorf("%w: include or exclude criteria are required", policy.ErrSchemaValidation)
	}
	filter, err := criteria.CompileAuthorFilter(&policy.FilterSpec[policy.AuthorCriteria]{Include: cfg.Include, Exclude: cfg.Exclude})
	if err != nil {
		return nil, err
	}
	return &Author{Filter: filter}, nil
}

func (r *Author) Kind() string { return policy.KindAuthor }

func (r *Author) Process(ctx context.Context, env *Env, item *activity.Item) (Outcome, error) {
	ok, reason, err := criteria.Evaluate(r.Filter.Include, r.Filter.Exclude, func(m *criteria.Author, include bool) (bool, error) {
		return env.Resources.TestAuthorCriteria(ctx, item, m, include)
	})
	if err != nil {
		return Outcome{}, err
	}
	data := map[string]any{}
	if reason != "" {
		data["reason"] = reason
	}
	return Outcome{Triggered: ok, Data: data}, nil
}
