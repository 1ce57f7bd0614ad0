package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluesky-social/modpolicy/criteria"
	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/policy/hydrate"
	"github.com/bluesky-social/modpolicy/policy/registry"
	"github.com/bluesky-social/modpolicy/rules"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Turns raw policy documents in to execution graphs.
type Builder struct {
	Hydrator *hydrate.Hydrator
	// lowest-precedence filter defaults, used by checks when neither the check, its run, nor the document defines a field. Criteria names here must be defined in the document.
	Defaults *policy.FilterDefaults
	// lowest-precedence post-check behavior; built-in values apply below this
	Behavior *policy.PostCheckBehavior
	Logger   *slog.Logger
}

func NewBuilder(hydrator *hydrate.Hydrator, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		Hydrator: hydrator,
		Logger:   logger,
	}
}

// Hydrates a raw document (or a reference to one) and builds its graph. Names are extracted once, after hydration, and the graph never refers back to the registry.
func (b *Builder) Build(ctx context.Context, raw any) (*Graph, error) {
	ctx, span := otel.Tracer("graph").Start(ctx, "Build")
	defer span.End()

	start := time.Now()
	doc, err := b.Hydrator.Hydrate(ctx, raw)
	if err != nil {
		span.RecordError(err)
		graphBuilds.WithLabelValues("error").Inc()
		return nil, err
	}
	g, err := b.FromDocument(doc)
	if err != nil {
		span.RecordError(err)
		graphBuilds.WithLabelValues("error").Inc()
		return nil, err
	}
	graphBuilds.WithLabelValues("ok").Inc()
	graphBuildDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("rules", g.RuleCount()))
	return g, nil
}

// Builds the graph of an already hydrated document.
func (b *Builder) FromDocument(doc *policy.Document) (*Graph, error) {
	reg := registry.New()
	if err := reg.Extract(doc); err != nil {
		return nil, err
	}
	w := &walker{
		reg:      reg,
		doc:      doc,
		defaults: b.Defaults,
		behavior: b.Behavior,
	}
	g := &Graph{}
	for i := range doc.Runs {
		run, err := w.run(&doc.Runs[i], policy.Path{}.Push(policy.LevelRun, i+1))
		if err != nil {
			return nil, err
		}
		g.Runs = append(g.Runs, run)
	}
	b.logger().Debug("built policy graph", "runs", len(g.Runs), "rules", g.RuleCount(), "names", reg.Rules.Len())
	return g, nil
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// Outcome of building one tenant's document.
type Result struct {
	Graph *Graph
	Err   error
}

// Builds many tenants' documents concurrently, with at most limit builds in flight (no bound if limit <= 0). A failure only affects the result for its own tenant. Cancelling the context abandons builds which have not started.
func (b *Builder) BuildAll(ctx context.Context, docs map[string]any, limit int) map[string]Result {
	var (
		mu  sync.Mutex
		out = make(map[string]Result, len(docs))
	)
	grp, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		grp.SetLimit(limit)
	}
	for tenant, raw := range docs {
		grp.Go(func() error {
			var res Result
			if err := ctx.Err(); err != nil {
				res.Err = err
			} else {
				res.Graph, res.Err = b.Build(ctx, raw)
			}
			if res.Err != nil {
				b.logger().Warn("policy build failed", "tenant", tenant, "err", res.Err)
			}
			mu.Lock()
			out[tenant] = res
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()
	return out
}

type walker struct {
	reg      *registry.Registry
	doc      *policy.Document
	defaults *policy.FilterDefaults
	behavior *policy.PostCheckBehavior
}

func (w *walker) run(r *policy.Run, path policy.Path) (*Run, error) {
	out := &Run{Name: r.Name}
	var err error
	if out.AuthorIs, out.ItemIs, out.AuthorFilter, out.ItemFilter, err = w.filters(r.AuthorIs, r.ItemIs); err != nil {
		return nil, policy.AtPath(path, err)
	}
	for j := range r.Checks {
		check, err := w.check(r, &r.Checks[j], path.Push(policy.LevelCheck, j+1))
		if err != nil {
			return nil, err
		}
		out.Checks = append(out.Checks, check)
	}
	return out, nil
}

func (w *walker) check(r *policy.Run, c *policy.Check, path policy.Path) (*Check, error) {
	out := &Check{
		Name:      c.Name,
		Kind:      c.Kind,
		Condition: c.Condition,
		Enabled:   c.Enabled(),
	}
	if out.Condition == "" {
		out.Condition = policy.ConditionAnd
	}

	author, item := registry.CheckFilters(c, r.FilterCriteriaDefaults, w.doc.FilterCriteriaDefaults, w.defaults)
	var err error
	if out.AuthorIs, out.ItemIs, out.AuthorFilter, out.ItemFilter, err = w.filters(author, item); err != nil {
		return nil, policy.AtPath(path, err)
	}
	out.PostFail, out.PostTrigger = registry.CheckBehavior(c, r.PostCheckBehaviorDefaults, w.doc.PostCheckBehaviorDefaults, w.behavior)

	if out.Rules, err = w.nodes(c.Rules, path); err != nil {
		return nil, err
	}
	for k, ref := range c.Actions {
		actionPath := path.Push(policy.LevelAction, k+1)
		cfg, err := w.reg.ResolveAction(ref)
		if err != nil {
			return nil, policy.AtPath(actionPath, err)
		}
		action := &Action{
			Name:     cfg.Name,
			Kind:     cfg.Kind,
			Config:   cfg.Config,
			AuthorIs: cfg.AuthorIs,
			ItemIs:   cfg.ItemIs,
		}
		if action.AuthorFilter, action.ItemFilter, err = compileFilters(cfg.AuthorIs, cfg.ItemIs); err != nil {
			return nil, policy.AtPath(actionPath, err)
		}
		out.Actions = append(out.Actions, action)
	}
	return out, nil
}

func (w *walker) nodes(refs []policy.RuleRef, path policy.Path) ([]Node, error) {
	out := make([]Node, 0, len(refs))
	for k, ref := range refs {
		rulePath := path.Push(policy.LevelRule, k+1)
		if ref.RuleSet != nil {
			rs, err := w.ruleSet(ref.RuleSet, rulePath)
			if err != nil {
				return nil, err
			}
			out = append(out, rs)
			continue
		}
		rule, err := w.rule(ref)
		if err != nil {
			return nil, policy.AtPath(rulePath, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func (w *walker) ruleSet(rs *policy.RuleSetConfig, path policy.Path) (*RuleSet, error) {
	out := &RuleSet{Condition: rs.Condition}
	var err error
	if out.AuthorIs, out.ItemIs, out.AuthorFilter, out.ItemFilter, err = w.filters(rs.AuthorIs, rs.ItemIs); err != nil {
		return nil, policy.AtPath(path, err)
	}
	if out.Rules, err = w.nodes(rs.Rules, path); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *walker) rule(ref policy.RuleRef) (*Rule, error) {
	cfg, err := w.reg.ResolveRule(ref)
	if err != nil {
		return nil, err
	}
	premise, err := policy.NewPremise(cfg).Hash()
	if err != nil {
		return nil, fmt.Errorf("%w: hashing rule premise: %w", policy.ErrSchemaValidation, err)
	}
	proc, err := rules.New(cfg.Kind, cfg.Config)
	if err != nil {
		return nil, err
	}
	out := &Rule{
		Name:      cfg.Name,
		Kind:      cfg.Kind,
		Config:    cfg.Config,
		AuthorIs:  cfg.AuthorIs,
		ItemIs:    cfg.ItemIs,
		Premise:   premise,
		Processor: proc,
	}
	if out.AuthorFilter, out.ItemFilter, err = compileFilters(cfg.AuthorIs, cfg.ItemIs); err != nil {
		return nil, err
	}
	return out, nil
}

// Composes named criteria in to a pair of filters, and compiles them.
func (w *walker) filters(author *policy.FilterSpec[policy.AuthorCriteria], item *policy.FilterSpec[policy.ItemCriteria]) (
	*policy.FilterSpec[policy.AuthorCriteria], *policy.FilterSpec[policy.ItemCriteria], *criteria.AuthorFilter, *criteria.ItemFilter, error) {

	author, err := w.reg.ComposeAuthor(author)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	item, err = w.reg.ComposeItem(item)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	af, itf, err := compileFilters(author, item)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return author, item, af, itf, nil
}

func compileFilters(author *policy.FilterSpec[policy.AuthorCriteria], item *policy.FilterSpec[policy.ItemCriteria]) (*criteria.AuthorFilter, *criteria.ItemFilter, error) {
	af, err := criteria.CompileAuthorFilter(author)
	if err != nil {
		return nil, nil, fmt.Errorf("authorIs: %w", err)
	}
	itf, err := criteria.CompileItemFilter(item)
	if err != nil {
		return nil, nil, fmt.Errorf("itemIs: %w", err)
	}
	return af, itf, nil
}
