package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/criteria"
	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/policy/graph"
	"github.com/bluesky-social/modpolicy/rules"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// runtime for evaluating a policy graph against content items.
//
// An Engine holds no per-item state, and may evaluate items concurrently as long as Resources is safe for concurrent use.
type Engine struct {
	Logger    *slog.Logger
	Graph     *graph.Graph
	Resources rules.Resources
	// community the policy belongs to
	Community string
	// receives the actions of triggered checks (optional)
	Dispatcher Dispatcher
	// record actions without dispatching them
	DryRun bool
	Now    func() time.Time
}

// Runs every run and check of the graph against one item, in declared order, with a fresh premise cache.
//
// A rule processing failure aborts the rest of the pass: the partial result is returned along with an error matching policy.ErrRuleProcess.
func (eng *Engine) Evaluate(ctx context.Context, item *activity.Item) (*Result, error) {
	ctx, span := otel.Tracer("engine").Start(ctx, "Evaluate", trace.WithAttributes(
		attribute.String("item", item.ID),
		attribute.String("kind", item.Kind),
	))
	defer span.End()

	start := time.Now()
	p := &pass{
		eng:      eng,
		item:     item,
		premises: NewPremiseCache(),
		logger:   eng.logger().With("item", item.ID, "author", item.Author),
		env: &rules.Env{
			Resources: eng.Resources,
			Community: eng.Community,
			Now:       eng.now(),
			Logger:    eng.logger(),
		},
	}
	res := &Result{ItemID: item.ID, Kind: item.Kind}
	err := p.evaluate(ctx, res)
	res.Duration = time.Since(start)

	passCount.WithLabelValues(item.Kind).Inc()
	passDuration.WithLabelValues(item.Kind).Observe(res.Duration.Seconds())
	if err != nil {
		res.Error = err.Error()
		passErrorCount.WithLabelValues(item.Kind).Inc()
		span.RecordError(err)
		p.logger.Warn("evaluation pass aborted", "err", err)
		return res, err
	}
	p.logger.Debug("evaluation pass complete", "triggered", res.Triggered, "rulesRun", p.premises.Len(), "cacheHits", p.premises.Hits(), "duration", res.Duration)
	return res, nil
}

func (eng *Engine) logger() *slog.Logger {
	if eng.Logger == nil {
		return slog.Default()
	}
	return eng.Logger
}

func (eng *Engine) now() time.Time {
	if eng.Now != nil {
		return eng.Now()
	}
	return time.Now()
}

// state of one evaluation pass over one item
type pass struct {
	eng      *Engine
	item     *activity.Item
	env      *rules.Env
	premises *PremiseCache
	logger   *slog.Logger
}

// ends the pass early, without error
var errStop = errors.New("stop")

func (p *pass) evaluate(ctx context.Context, res *Result) error {
	for _, run := range p.eng.Graph.Runs {
		rr := &RunResult{Name: run.Name}
		res.Runs = append(res.Runs, rr)
		err := p.evalRun(ctx, run, rr)
		for _, cr := range rr.Checks {
			if cr.Triggered != nil && *cr.Triggered {
				res.Triggered = true
			}
		}
		if errors.Is(err, errStop) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) evalRun(ctx context.Context, run *graph.Run, rr *RunResult) error {
	var err error
	if rr.ItemIs, rr.AuthorIs, rr.Skipped, err = p.gate(ctx, run.ItemFilter, run.AuthorFilter); err != nil {
		return fmt.Errorf("run %s: %w", run.Name, err)
	}
	if rr.Skipped != "" {
		p.logger.Debug("run skipped", "run", run.Name, "reason", rr.Skipped)
		return nil
	}

	for _, check := range run.Checks {
		cr, err := p.evalCheck(ctx, check)
		rr.Checks = append(rr.Checks, cr)
		if err != nil {
			cr.Error = err.Error()
			return err
		}
		switch cr.Behavior {
		case policy.BehaviorStop:
			return errStop
		case policy.BehaviorNextRun:
			return nil
		}
	}
	return nil
}

func (p *pass) evalCheck(ctx context.Context, check *graph.Check) (*CheckResult, error) {
	cr := &CheckResult{Name: check.Name, Condition: check.Condition}
	logger := p.logger.With("check", check.Name)
	switch {
	case !check.Enabled:
		cr.Skipped = "check is disabled"
	case check.Kind != "" && check.Kind != p.item.Kind:
		cr.Skipped = fmt.Sprintf("check applies to %s items", check.Kind)
	}
	if cr.Skipped != "" {
		return cr, nil
	}

	var err error
	if cr.ItemIs, cr.AuthorIs, cr.Skipped, err = p.gate(ctx, check.ItemFilter, check.AuthorFilter); err != nil {
		return cr, fmt.Errorf("check %s: %w", check.Name, err)
	}
	if cr.Skipped != "" {
		logger.Debug("check skipped", "reason", cr.Skipped)
		return cr, nil
	}

	if cr.Triggered, cr.Rules, err = p.evalNodes(ctx, check.Condition, check.Rules); err != nil {
		return cr, err
	}

	if cr.Triggered != nil && *cr.Triggered {
		checkTriggers.Inc()
		cr.Behavior = check.PostTrigger
		logger.Info("check triggered", "actions", len(check.Actions))
		cr.Actions = p.dispatch(ctx, check)
	} else {
		cr.Behavior = check.PostFail
	}
	return cr, nil
}

// Evaluates nodes in declared order, combining with AND or OR and stopping as soon as the outcome is decided. Skipped nodes do not count; if every node was skipped the outcome is nil.
func (p *pass) evalNodes(ctx context.Context, condition string, nodes []graph.Node) (*bool, []*RuleResult, error) {
	results := make([]*RuleResult, 0, len(nodes))
	evaluated := false
	for _, node := range nodes {
		var (
			res *RuleResult
			err error
		)
		switch n := node.(type) {
		case *graph.Rule:
			res, err = p.evalRule(ctx, n)
		case *graph.RuleSet:
			res, err = p.evalRuleSet(ctx, n)
		default:
			err = fmt.Errorf("unexpected graph node type: %T", node)
		}
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return nil, results, err
		}
		if res.Triggered == nil {
			continue
		}
		evaluated = true
		if condition == policy.ConditionOr && *res.Triggered {
			return boolPtr(true), results, nil
		}
		if condition != policy.ConditionOr && !*res.Triggered {
			return boolPtr(false), results, nil
		}
	}
	if !evaluated {
		return nil, results, nil
	}
	return boolPtr(condition != policy.ConditionOr), results, nil
}

func (p *pass) evalRuleSet(ctx context.Context, rs *graph.RuleSet) (*RuleResult, error) {
	res := &RuleResult{Condition: rs.Condition}
	var err error
	if res.ItemIs, res.AuthorIs, res.Skipped, err = p.gate(ctx, rs.ItemFilter, rs.AuthorFilter); err != nil {
		return res, fmt.Errorf("rule set: %w", err)
	}
	if res.Skipped != "" {
		return res, nil
	}
	res.Triggered, res.Members, err = p.evalNodes(ctx, rs.Condition, rs.Rules)
	return res, err
}

// Runs a single rule through the filter gates, then the premise cache, then the rule's own logic.
func (p *pass) evalRule(ctx context.Context, r *graph.Rule) (*RuleResult, error) {
	res := &RuleResult{Name: r.Name, Kind: r.Kind, Premise: r.Premise}

	if r.ItemFilter != nil {
		ok, reason := r.ItemFilter.Match(p.item, p.env.Now)
		res.ItemIs = &FilterResult{Passed: ok, Reason: reason}
		if !ok {
			res.Skipped = "itemIs: " + reason
			ruleSkips.WithLabelValues(r.Kind, "item").Inc()
			return res, nil
		}
	}
	if r.AuthorFilter != nil {
		ok, reason, err := p.testAuthor(ctx, r.AuthorFilter)
		if err != nil {
			ruleErrors.WithLabelValues(r.Kind).Inc()
			return res, ruleError(r, err)
		}
		res.AuthorIs = &FilterResult{Passed: ok, Reason: reason}
		if !ok {
			res.Skipped = "authorIs: " + reason
			ruleSkips.WithLabelValues(r.Kind, "author").Inc()
			return res, nil
		}
	}

	if prior, ok := p.premises.Get(r.Premise); ok {
		premiseCacheHits.WithLabelValues(r.Kind).Inc()
		res.Triggered = prior.Triggered
		res.Data = prior.Data
		res.FromCache = true
		return res, nil
	}

	ruleInvocations.WithLabelValues(r.Kind).Inc()
	out, err := p.process(ctx, r)
	if err != nil {
		ruleErrors.WithLabelValues(r.Kind).Inc()
		return res, ruleError(r, err)
	}
	res.Triggered = boolPtr(out.Triggered)
	res.Data = out.Data
	p.premises.Put(r.Premise, res)
	p.logger.Debug("rule processed", "rule", r.Label(), "kind", r.Kind, "triggered", out.Triggered)
	return res, nil
}

func (p *pass) process(ctx context.Context, r *graph.Rule) (out rules.Outcome, err error) {
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("rule execution exception", "err", rec, "rule", r.Label(), "kind", r.Kind)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	if r.Processor == nil {
		return out, fmt.Errorf("rule was not instantiated")
	}
	return r.Processor.Process(ctx, p.env, p.item)
}

func ruleError(r *graph.Rule, err error) error {
	return fmt.Errorf("%w: %s rule %q: %w", policy.ErrRuleProcess, r.Kind, r.Label(), err)
}

// Applies an item filter then an author filter. A non-empty skip reason means the gate did not pass. Author lookup failures are classified as policy.ErrRuleProcess.
func (p *pass) gate(ctx context.Context, itemFilter *criteria.ItemFilter, authorFilter *criteria.AuthorFilter) (itemRes, authorRes *FilterResult, skipped string, err error) {
	if itemFilter != nil {
		ok, reason := itemFilter.Match(p.item, p.env.Now)
		itemRes = &FilterResult{Passed: ok, Reason: reason}
		if !ok {
			return itemRes, nil, "itemIs: " + reason, nil
		}
	}
	if authorFilter != nil {
		ok, reason, err := p.testAuthor(ctx, authorFilter)
		if err != nil {
			return itemRes, nil, "", fmt.Errorf("%w: author filter: %w", policy.ErrRuleProcess, err)
		}
		authorRes = &FilterResult{Passed: ok, Reason: reason}
		if !ok {
			return itemRes, authorRes, "authorIs: " + reason, nil
		}
	}
	return itemRes, authorRes, "", nil
}

// Author criteria are tested through the resource cache, so results are shared between passes.
func (p *pass) testAuthor(ctx context.Context, f *criteria.AuthorFilter) (bool, string, error) {
	return criteria.Evaluate(f.Include, f.Exclude, func(m *criteria.Author, include bool) (bool, error) {
		return p.env.Resources.TestAuthorCriteria(ctx, p.item, m, include)
	})
}
