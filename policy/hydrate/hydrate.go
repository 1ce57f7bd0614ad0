// Expands every fragment reference in a raw policy document, producing a typed policy.Document which contains only literal data (plus named references, resolved later by the registry).
package hydrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/policy/fragment"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type Hydrator struct {
	Resolver *fragment.Resolver
	Logger   *slog.Logger
}

func NewHydrator(fetcher fragment.Fetcher, logger *slog.Logger) *Hydrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hydrator{
		Resolver: &fragment.Resolver{Fetcher: fetcher, Logger: logger},
		Logger:   logger,
	}
}

// Hydrates a raw document (or a reference to one). Processing is sequential and depth-first; the first failure aborts the whole document, with positional context attached (see policy.PositionError).
func (h *Hydrator) Hydrate(ctx context.Context, raw any) (*policy.Document, error) {
	ctx, span := otel.Tracer("hydrate").Start(ctx, "Hydrate")
	defer span.End()

	doc, err := h.hydrateDocument(ctx, raw)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	checks := 0
	for _, run := range doc.Runs {
		checks += len(run.Checks)
	}
	span.SetAttributes(attribute.Int("runs", len(doc.Runs)), attribute.Int("checks", checks))
	h.logger().Debug("hydrated policy document", "runs", len(doc.Runs), "checks", checks)
	return doc, nil
}

func (h *Hydrator) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Hydrator) hydrateDocument(ctx context.Context, raw any) (*policy.Document, error) {
	items, err := h.Resolver.Resolve(ctx, raw, validateObjects("document"))
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, schemaErrorf("document must be a single object, got %d items", len(items))
	}
	m, ok := items[0].(map[string]any)
	if !ok {
		return nil, schemaErrorf("document must be an object")
	}

	children, rest := split(m, "runs", "checks")
	runsList, err := asList("runs", children["runs"])
	if err != nil {
		return nil, err
	}
	checksList, err := asList("checks", children["checks"])
	if err != nil {
		return nil, err
	}
	if len(runsList) > 0 && len(checksList) > 0 {
		return nil, policy.ErrDocumentShape
	}
	// backwards-compatible shape: a bare list of checks is a single run
	if len(checksList) > 0 {
		runsList = []any{map[string]any{"checks": checksList}}
	}

	var doc policy.Document
	if err := policy.Decode(rest, &doc); err != nil {
		return nil, err
	}
	if err := doc.FilterCriteriaDefaults.Validate(); err != nil {
		return nil, err
	}
	if err := doc.PostCheckBehaviorDefaults.Validate(); err != nil {
		return nil, err
	}

	for i, runRaw := range runsList {
		runs, err := h.hydrateRun(ctx, runRaw, policy.Path{}.Push(policy.LevelRun, i+1))
		if err != nil {
			return nil, err
		}
		doc.Runs = append(doc.Runs, runs...)
	}
	for i := range doc.Runs {
		if doc.Runs[i].Name == "" {
			doc.Runs[i].Name = fmt.Sprintf("Run%d", i+1)
		}
	}
	return &doc, nil
}

func (h *Hydrator) hydrateRun(ctx context.Context, raw any, path policy.Path) ([]policy.Run, error) {
	items, err := h.Resolver.Resolve(ctx, raw, validateObjects("run"))
	if err != nil {
		return nil, policy.AtPath(path, err)
	}
	out := make([]policy.Run, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, policy.AtPath(path, schemaErrorf("run must be an object"))
		}
		children, rest := split(m, "checks")
		if _, ok := children["checks"]; !ok {
			return nil, policy.AtPath(path, schemaErrorf("run must define checks"))
		}
		var run policy.Run
		if err := policy.Decode(rest, &run); err != nil {
			return nil, policy.AtPath(path, err)
		}
		if err := run.Validate(); err != nil {
			return nil, policy.AtPath(path, err)
		}
		checksList, err := asList("checks", children["checks"])
		if err != nil {
			return nil, policy.AtPath(path, err)
		}
		for j, checkRaw := range checksList {
			checks, err := h.hydrateCheck(ctx, checkRaw, path.Push(policy.LevelCheck, j+1))
			if err != nil {
				return nil, err
			}
			run.Checks = append(run.Checks, checks...)
		}
		out = append(out, run)
	}
	return out, nil
}

func (h *Hydrator) hydrateCheck(ctx context.Context, raw any, path policy.Path) ([]policy.Check, error) {
	items, err := h.Resolver.Resolve(ctx, raw, validateObjects("check"))
	if err != nil {
		return nil, policy.AtPath(path, err)
	}
	out := make([]policy.Check, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, policy.AtPath(path, schemaErrorf("check must be an object"))
		}
		children, rest := split(m, "rules", "actions")
		var check policy.Check
		if err := policy.Decode(rest, &check); err != nil {
			return nil, policy.AtPath(path, err)
		}
		if err := check.Validate(); err != nil {
			return nil, policy.AtPath(path, err)
		}

		rulesList, err := asList("rules", children["rules"])
		if err != nil {
			return nil, policy.AtPath(path, err)
		}
		for k, ruleRaw := range rulesList {
			refs, err := h.hydrateRule(ctx, ruleRaw, path.Push(policy.LevelRule, k+1))
			if err != nil {
				return nil, err
			}
			check.Rules = append(check.Rules, refs...)
		}

		actionsList, err := asList("actions", children["actions"])
		if err != nil {
			return nil, policy.AtPath(path, err)
		}
		for k, actionRaw := range actionsList {
			refs, err := h.hydrateAction(ctx, actionRaw, path.Push(policy.LevelAction, k+1))
			if err != nil {
				return nil, err
			}
			check.Actions = append(check.Actions, refs...)
		}
		out = append(out, check)
	}
	return out, nil
}

// Hydrates a rule, reference, or rule set. Rule set members get their own positions, nested under the rule set's.
func (h *Hydrator) hydrateRule(ctx context.Context, raw any, path policy.Path) ([]policy.RuleRef, error) {
	items, err := h.Resolver.Resolve(ctx, raw, validateRefs("rule"))
	if err != nil {
		return nil, policy.AtPath(path, err)
	}
	out := make([]policy.RuleRef, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			name, err := literalName(t)
			if err != nil {
				return nil, policy.AtPath(path, err)
			}
			out = append(out, policy.RuleRef{Name: name})
		case map[string]any:
			if _, ok := t["rules"]; ok {
				rs, err := h.hydrateRuleSet(ctx, t, path)
				if err != nil {
					return nil, err
				}
				out = append(out, policy.RuleRef{RuleSet: rs})
				continue
			}
			var rule policy.RuleConfig
			if err := policy.Decode(t, &rule); err != nil {
				return nil, policy.AtPath(path, err)
			}
			if err := rule.Validate(); err != nil {
				return nil, policy.AtPath(path, err)
			}
			out = append(out, policy.RuleRef{Rule: &rule})
		default:
			return nil, policy.AtPath(path, schemaErrorf("rule must be a name or an object"))
		}
	}
	return out, nil
}

func (h *Hydrator) hydrateRuleSet(ctx context.Context, m map[string]any, path policy.Path) (*policy.RuleSetConfig, error) {
	children, rest := split(m, "rules")
	var rs policy.RuleSetConfig
	if err := policy.Decode(rest, &rs); err != nil {
		return nil, policy.AtPath(path, err)
	}
	members, err := asList("rules", children["rules"])
	if err != nil {
		return nil, policy.AtPath(path, err)
	}
	for k, memberRaw := range members {
		refs, err := h.hydrateRule(ctx, memberRaw, path.Push(policy.LevelRule, k+1))
		if err != nil {
			return nil, err
		}
		rs.Rules = append(rs.Rules, refs...)
	}
	if err := rs.Validate(); err != nil {
		return nil, policy.AtPath(path, err)
	}
	return &rs, nil
}

func (h *Hydrator) hydrateAction(ctx context.Context, raw any, path policy.Path) ([]policy.ActionRef, error) {
	items, err := h.Resolver.Resolve(ctx, raw, validateRefs("action"))
	if err != nil {
		return nil, policy.AtPath(path, err)
	}
	out := make([]policy.ActionRef, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			name, err := literalName(t)
			if err != nil {
				return nil, policy.AtPath(path, err)
			}
			out = append(out, policy.ActionRef{Name: name})
		case map[string]any:
			var action policy.ActionConfig
			if err := policy.Decode(t, &action); err != nil {
				return nil, policy.AtPath(path, err)
			}
			if err := action.Validate(); err != nil {
				return nil, policy.AtPath(path, err)
			}
			out = append(out, policy.ActionRef{Action: &action})
		default:
			return nil, policy.AtPath(path, schemaErrorf("action must be a name or an object"))
		}
	}
	return out, nil
}

// Strings inside fetched fragments are names, never further references.
func literalName(s string) (string, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return "", schemaErrorf("empty name reference")
	}
	ref, err := fragment.ClassifyString(name)
	if err != nil {
		return "", err
	}
	if ref.Kind != fragment.KindNone {
		return "", fmt.Errorf("%w: nested fragment reference %q is not supported", policy.ErrConfigParse, name)
	}
	return name, nil
}
