package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/criteria"
	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/policy/fragment"

	"github.com/puzpuzpuz/xsync/v3"
)

var regexFields = map[string]bool{"title": true, "body": true, "url": true}

// Triggers on regular expression matches against item text.
type Regex struct {
	Condition string
	Criteria  []*RegexCriteria
}

type RegexCriteria struct {
	// pattern as written; may be a "url:" or "wiki:" reference to pattern text
	Pattern string
	TestOn  []string
	// total number of matches (across all tested fields) required
	MatchThreshold *criteria.Comparison

	// set when Pattern is literal
	compiled *regexp.Regexp
}

type regexConfig struct {
	Condition string `json:"condition"`
	Criteria  []struct {
		Regex          string   `json:"regex"`
		TestOn         []string `json:"testOn"`
		MatchThreshold string   `json:"matchThreshold"`
	} `json:"criteria"`
}

// remote patterns, compiled on first use and keyed by pattern text
var remotePatterns = xsync.NewMapOf[string, *regexp.Regexp]()

func newRegex(config map[string]any) (*Regex, error) {
	var cfg regexConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Criteria) == 0 {
		return nil, fmt.Errorf("%w: at least one criteria is required", policy.ErrSchemaValidation)
	}
	r := &Regex{}
	var err error
	if r.Condition, err = parseCondition(cfg.Condition); err != nil {
		return nil, err
	}
	for i, c := range cfg.Criteria {
		rc := &RegexCriteria{Pattern: c.Regex, TestOn: c.TestOn}
		if rc.Pattern == "" {
			return nil, fmt.Errorf("%w: criteria #%d: regex is required", policy.ErrSchemaValidation, i+1)
		}
		if len(rc.TestOn) == 0 {
			rc.TestOn = []string{"title", "body"}
		}
		for _, f := range rc.TestOn {
			if !regexFields[f] {
				return nil, fmt.Errorf("%w: criteria #%d: can not test on %q", policy.ErrSchemaValidation, i+1, f)
			}
		}
		if rc.MatchThreshold, err = parseThreshold(c.MatchThreshold, "> 0"); err != nil {
			return nil, err
		}
		ref, err := fragment.ClassifyString(rc.Pattern)
		if err != nil {
			return nil, err
		}
		if ref.Kind == fragment.KindNone {
			if rc.compiled, err = compilePattern(rc.Pattern); err != nil {
				return nil, fmt.Errorf("%w: criteria #%d: %w", policy.ErrSchemaValidation, i+1, err)
			}
		}
		r.Criteria = append(r.Criteria, rc)
	}
	return r, nil
}

// Compiles a pattern, accepting the "/pattern/flags" form (with flags among i, m, s) as well as plain Go syntax.
func compilePattern(p string) (*regexp.Regexp, error) {
	if len(p) > 2 && strings.HasPrefix(p, "/") {
		if end := strings.LastIndex(p, "/"); end > 0 {
			body, flags := p[1:end], p[end+1:]
			if strings.Trim(flags, "ims") == "" {
				if flags != "" {
					body = "(?" + flags + ")" + body
				}
				return regexp.Compile(body)
			}
		}
	}
	return regexp.Compile(p)
}

func (rc *RegexCriteria) pattern(ctx context.Context, env *Env) (*regexp.Regexp, error) {
	if rc.compiled != nil {
		return rc.compiled, nil
	}
	text, err := env.Resources.GetContent(ctx, rc.Pattern, env.Community)
	if err != nil {
		return nil, fmt.Errorf("loading pattern %s: %w", rc.Pattern, err)
	}
	text = strings.TrimSpace(text)
	if re, ok := remotePatterns.Load(text); ok {
		return re, nil
	}
	re, err := compilePattern(text)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern from %s: %w", rc.Pattern, err)
	}
	remotePatterns.Store(text, re)
	return re, nil
}

func (r *Regex) Kind() string { return policy.KindRegex }

func (r *Regex) Process(ctx context.Context, env *Env, item *activity.Item) (Outcome, error) {
	results := make([]bool, len(r.Criteria))
	matches := make([]int, len(r.Criteria))
	for i, rc := range r.Criteria {
		re, err := rc.pattern(ctx, env)
		if err != nil {
			return Outcome{}, err
		}
		for _, field := range rc.TestOn {
			var text string
			switch field {
			case "title":
				text = item.Title
			case "body":
				text = item.Body
			case "url":
				text = item.URL
			}
			if text == "" {
				continue
			}
			matches[i] += len(re.FindAllStringIndex(text, -1))
		}
		results[i] = rc.MatchThreshold.Test(float64(matches[i]))
	}
	return Outcome{
		Triggered: combine(r.Condition, results),
		Data:      map[string]any{"matches": matches},
	}, nil
}
