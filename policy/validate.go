package policy

import (
	"fmt"
)

func schemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaValidation, fmt.Sprintf(format, args...))
}

func validCondition(c string) bool {
	return c == ConditionAnd || c == ConditionOr
}

func validBehavior(b string) bool {
	switch b {
	case "", BehaviorNext, BehaviorNextRun, BehaviorStop:
		return true
	}
	return false
}

func validateFilter[T any](field string, s *FilterSpec[T]) error {
	if s == nil {
		return nil
	}
	for _, refs := range [][]CriteriaRef[T]{s.Include, s.Exclude} {
		for _, ref := range refs {
			if ref.Criteria == nil && ref.Name == "" {
				return schemaErrorf("%s: empty criteria reference", field)
			}
		}
	}
	return nil
}

func (b *PostCheckBehavior) Validate() error {
	if b == nil {
		return nil
	}
	if !validBehavior(b.PostFail) {
		return schemaErrorf("invalid postFail behavior: %q", b.PostFail)
	}
	if !validBehavior(b.PostTrigger) {
		return schemaErrorf("invalid postTrigger behavior: %q", b.PostTrigger)
	}
	return nil
}

func (d *FilterDefaults) Validate() error {
	if d == nil {
		return nil
	}
	if err := validateFilter("authorIs", d.AuthorIs); err != nil {
		return err
	}
	return validateFilter("itemIs", d.ItemIs)
}

// Checks run-level fields. Does not descend in to checks.
func (r *Run) Validate() error {
	if err := validateFilter("authorIs", r.AuthorIs); err != nil {
		return err
	}
	if err := validateFilter("itemIs", r.ItemIs); err != nil {
		return err
	}
	if err := r.FilterCriteriaDefaults.Validate(); err != nil {
		return err
	}
	return r.PostCheckBehaviorDefaults.Validate()
}

// Checks check-level fields. Does not descend in to rules or actions.
func (c *Check) Validate() error {
	if c.Name == "" {
		return schemaErrorf("check name is required")
	}
	switch c.Kind {
	case "", ItemKindSubmission, ItemKindComment:
	default:
		return schemaErrorf("check %q: kind must be %q or %q, got %q", c.Name, ItemKindSubmission, ItemKindComment, c.Kind)
	}
	if c.Condition != "" && !validCondition(c.Condition) {
		return schemaErrorf("check %q: condition must be AND or OR, got %q", c.Name, c.Condition)
	}
	if !validBehavior(c.PostFail) {
		return schemaErrorf("check %q: invalid postFail behavior: %q", c.Name, c.PostFail)
	}
	if !validBehavior(c.PostTrigger) {
		return schemaErrorf("check %q: invalid postTrigger behavior: %q", c.Name, c.PostTrigger)
	}
	if err := validateFilter("authorIs", c.AuthorIs); err != nil {
		return err
	}
	return validateFilter("itemIs", c.ItemIs)
}

func (r *RuleConfig) Validate() error {
	if r.Kind == "" {
		return schemaErrorf("rule kind is required")
	}
	if err := validateFilter("authorIs", r.AuthorIs); err != nil {
		return err
	}
	return validateFilter("itemIs", r.ItemIs)
}

// Checks rule set fields. Does not descend in to member rules.
func (rs *RuleSetConfig) Validate() error {
	if !validCondition(rs.Condition) {
		return schemaErrorf("rule set condition must be AND or OR, got %q", rs.Condition)
	}
	if len(rs.Rules) == 0 {
		return schemaErrorf("rule set must contain at least one rule")
	}
	if err := validateFilter("authorIs", rs.AuthorIs); err != nil {
		return err
	}
	return validateFilter("itemIs", rs.ItemIs)
}

func (a *ActionConfig) Validate() error {
	if a.Kind == "" {
		return schemaErrorf("action kind is required")
	}
	if err := validateFilter("authorIs", a.AuthorIs); err != nil {
		return err
	}
	return validateFilter("itemIs", a.ItemIs)
}
