// Named entity registry and filter composition for hydrated policy documents.
//
// A Registry is built once per hydration pass with Extract, after which every named reference in the document can be resolved. Entities are keyed by lower-cased name; a name may be defined more than once only with identical content.
package registry

import (
	"github.com/bluesky-social/modpolicy/policy"
)

type Registry struct {
	Rules   *Names[policy.RuleConfig]
	Actions *Names[policy.ActionConfig]
	Authors *Names[policy.AuthorCriteria]
	Items   *Names[policy.ItemCriteria]
}

func New() *Registry {
	return &Registry{
		Rules:   NewNames[policy.RuleConfig]("rule"),
		Actions: NewNames[policy.ActionConfig]("action"),
		Authors: NewNames[policy.AuthorCriteria]("author criteria"),
		Items:   NewNames[policy.ItemCriteria]("item criteria"),
	}
}

// Registers every named rule, action, and author/item criteria found anywhere in the document. Failures carry the position of the offending element.
func (r *Registry) Extract(doc *policy.Document) error {
	if err := r.registerDefaults(doc.FilterCriteriaDefaults); err != nil {
		return err
	}
	for i := range doc.Runs {
		run := &doc.Runs[i]
		runPath := policy.Path{}.Push(policy.LevelRun, i+1)
		if err := r.registerFilters(run.AuthorIs, run.ItemIs); err != nil {
			return policy.AtPath(runPath, err)
		}
		if err := r.registerDefaults(run.FilterCriteriaDefaults); err != nil {
			return policy.AtPath(runPath, err)
		}
		for j := range run.Checks {
			check := &run.Checks[j]
			checkPath := runPath.Push(policy.LevelCheck, j+1)
			if err := r.registerFilters(check.AuthorIs, check.ItemIs); err != nil {
				return policy.AtPath(checkPath, err)
			}
			for k, ref := range check.Rules {
				if err := r.extractRule(ref, checkPath.Push(policy.LevelRule, k+1)); err != nil {
					return err
				}
			}
			for k, ref := range check.Actions {
				if ref.Action == nil {
					continue
				}
				actionPath := checkPath.Push(policy.LevelAction, k+1)
				if err := r.registerFilters(ref.Action.AuthorIs, ref.Action.ItemIs); err != nil {
					return policy.AtPath(actionPath, err)
				}
				if err := r.Actions.Register(*ref.Action); err != nil {
					return policy.AtPath(actionPath, err)
				}
			}
		}
	}
	return nil
}

func (r *Registry) extractRule(ref policy.RuleRef, path policy.Path) error {
	switch {
	case ref.RuleSet != nil:
		if err := r.registerFilters(ref.RuleSet.AuthorIs, ref.RuleSet.ItemIs); err != nil {
			return policy.AtPath(path, err)
		}
		for k, member := range ref.RuleSet.Rules {
			if err := r.extractRule(member, path.Push(policy.LevelRule, k+1)); err != nil {
				return err
			}
		}
	case ref.Rule != nil:
		if err := r.registerFilters(ref.Rule.AuthorIs, ref.Rule.ItemIs); err != nil {
			return policy.AtPath(path, err)
		}
		if ref.Rule.Kind == policy.KindAuthor {
			spec, err := AuthorRuleCriteria(ref.Rule.Config)
			if err != nil {
				return policy.AtPath(path, err)
			}
			if err := registerCriteria(r.Authors, spec); err != nil {
				return policy.AtPath(path, err)
			}
		}
		if err := r.Rules.Register(*ref.Rule); err != nil {
			return policy.AtPath(path, err)
		}
	}
	return nil
}

func (r *Registry) registerDefaults(d *policy.FilterDefaults) error {
	if d == nil {
		return nil
	}
	return r.registerFilters(d.AuthorIs, d.ItemIs)
}

func (r *Registry) registerFilters(author *policy.FilterSpec[policy.AuthorCriteria], item *policy.FilterSpec[policy.ItemCriteria]) error {
	if err := registerCriteria(r.Authors, author); err != nil {
		return err
	}
	return registerCriteria(r.Items, item)
}

func registerCriteria[T policy.Entity[T]](names *Names[T], s *policy.FilterSpec[T]) error {
	if s == nil {
		return nil
	}
	for _, refs := range [][]policy.CriteriaRef[T]{s.Include, s.Exclude} {
		for _, ref := range refs {
			if ref.Criteria == nil {
				continue
			}
			if err := names.Register(*ref.Criteria); err != nil {
				return err
			}
		}
	}
	return nil
}

// Resolves a rule reference to a rule, with all of its filters (and, for author rules, its criteria config) composed. Named references are looked up case-insensitively. Rule sets are not handled here: callers recurse in to their members.
func (r *Registry) ResolveRule(ref policy.RuleRef) (policy.RuleConfig, error) {
	var rule policy.RuleConfig
	switch {
	case ref.Rule != nil:
		rule = *ref.Rule
	case ref.RuleSet != nil:
		return rule, schemaErrorf("rule set can not be resolved as a single rule")
	default:
		named, err := r.Rules.Get(ref.Name)
		if err != nil {
			return rule, err
		}
		rule = named
	}

	var err error
	if rule.AuthorIs, err = r.ComposeAuthor(rule.AuthorIs); err != nil {
		return rule, err
	}
	if rule.ItemIs, err = r.ComposeItem(rule.ItemIs); err != nil {
		return rule, err
	}
	if rule.Kind == policy.KindAuthor {
		if rule.Config, err = r.composeAuthorRuleConfig(rule.Config); err != nil {
			return rule, err
		}
	}
	return rule, nil
}

func (r *Registry) ResolveAction(ref policy.ActionRef) (policy.ActionConfig, error) {
	var action policy.ActionConfig
	if ref.Action != nil {
		action = *ref.Action
	} else {
		named, err := r.Actions.Get(ref.Name)
		if err != nil {
			return action, err
		}
		action = named
	}

	var err error
	if action.AuthorIs, err = r.ComposeAuthor(action.AuthorIs); err != nil {
		return action, err
	}
	if action.ItemIs, err = r.ComposeItem(action.ItemIs); err != nil {
		return action, err
	}
	return action, nil
}
