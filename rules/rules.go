// Kind-specific decision logic for policy rules.
//
// The set of rule kinds is closed: New selects an implementation by the rule's kind discriminator, and decodes (and validates) the kind-specific configuration once, when the execution graph is built.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/criteria"
	"github.com/bluesky-social/modpolicy/policy"
)

// What rules may look up while processing an item. Implemented by resources.Cache.
type Resources interface {
	GetAuthorActivities(ctx context.Context, user string, opts activity.ListOptions) ([]activity.Item, error)
	GetCommunityActivities(ctx context.Context, opts activity.ListOptions) ([]activity.Item, error)
	TestAuthorCriteria(ctx context.Context, item *activity.Item, m *criteria.Author, include bool) (bool, error)
	GetContent(ctx context.Context, text, scope string) (string, error)
}

// Per-pass environment handed to every processor.
type Env struct {
	Resources Resources
	// community the item is being evaluated for
	Community string
	Now       time.Time
	Logger    *slog.Logger
}

// Result of processing one item. Once a processor runs, the outcome is always definite.
type Outcome struct {
	Triggered bool
	Data      map[string]any
}

type Processor interface {
	Kind() string
	Process(ctx context.Context, env *Env, item *activity.Item) (Outcome, error)
}

// Names of every supported rule kind, in documentation order.
var Kinds = []string{
	policy.KindRecentActivity,
	policy.KindRepeatActivity,
	policy.KindAuthor,
	policy.KindAttribution,
	policy.KindHistory,
	policy.KindRegex,
	policy.KindRepost,
}

// Instantiates the processor for a rule kind. Unknown kinds and invalid configuration are ErrSchemaValidation.
func New(kind string, config map[string]any) (Processor, error) {
	if config == nil {
		config = map[string]any{}
	}
	var p Processor
	var err error
	switch kind {
	case policy.KindRecentActivity:
		p, err = newRecentActivity(config)
	case policy.KindRepeatActivity:
		p, err = newRepeatActivity(config)
	case policy.KindAuthor:
		p, err = newAuthor(config)
	case policy.KindAttribution:
		p, err = newAttribution(config)
	case policy.KindHistory:
		p, err = newHistory(config)
	case policy.KindRegex:
		p, err = newRegex(config)
	case policy.KindRepost:
		p, err = newRepost(config)
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", policy.ErrSchemaValidation, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s rule: %w", kind, err)
	}
	return p, nil
}

func decodeConfig(config map[string]any, out any) error {
	return policy.Decode(config, out)
}

func parseWindow(s, fallback string) (time.Duration, error) {
	if s == "" {
		s = fallback
	}
	return criteria.ParseDuration(s)
}

func parseThreshold(s, fallback string) (*criteria.Comparison, error) {
	if s == "" {
		s = fallback
	}
	return criteria.ParseComparison(s)
}

func parseCondition(s string) (string, error) {
	switch s {
	case "":
		return policy.ConditionOr, nil
	case policy.ConditionAnd, policy.ConditionOr:
		return s, nil
	}
	return "", fmt.Errorf("%w: condition must be AND or OR, got %q", policy.ErrSchemaValidation, s)
}

func parseLookAt(s string) (string, error) {
	switch s {
	case "", "all":
		return "", nil
	case "submissions", activity.KindSubmission:
		return activity.KindSubmission, nil
	case "comments", activity.KindComment:
		return activity.KindComment, nil
	}
	return "", fmt.Errorf("%w: lookAt must be submissions, comments or all, got %q", policy.ErrSchemaValidation, s)
}

// combines per-criteria results under AND/OR
func combine(condition string, results []bool) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if condition == policy.ConditionOr && r {
			return true
		}
		if condition == policy.ConditionAnd && !r {
			return false
		}
	}
	return condition == policy.ConditionAnd
}
