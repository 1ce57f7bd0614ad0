// Fully resolved execution graph for a policy document: every fragment expanded, every named reference replaced, every filter composed and compiled, and every rule instantiated.
package graph

import (
	"encoding/json"

	"github.com/bluesky-social/modpolicy/criteria"
	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/rules"
)

type Graph struct {
	Runs []*Run `json:"runs"`
}

// Number of rule instances in the graph, including rule set members.
func (g *Graph) RuleCount() int {
	n := 0
	for _, run := range g.Runs {
		for _, check := range run.Checks {
			n += countRules(check.Rules)
		}
	}
	return n
}

func countRules(nodes []Node) int {
	n := 0
	for _, node := range nodes {
		switch v := node.(type) {
		case *Rule:
			n++
		case *RuleSet:
			n += countRules(v.Rules)
		}
	}
	return n
}

type Run struct {
	Name     string                                    `json:"name"`
	AuthorIs *policy.FilterSpec[policy.AuthorCriteria] `json:"authorIs,omitempty"`
	ItemIs   *policy.FilterSpec[policy.ItemCriteria]   `json:"itemIs,omitempty"`
	Checks   []*Check                                  `json:"checks"`

	AuthorFilter *criteria.AuthorFilter `json:"-"`
	ItemFilter   *criteria.ItemFilter   `json:"-"`
}

type Check struct {
	Name string `json:"name"`
	// empty applies to every item kind
	Kind      string    `json:"kind,omitempty"`
	Condition string    `json:"condition"`
	Enabled   bool      `json:"enabled"`
	Rules     []Node    `json:"rules"`
	Actions   []*Action `json:"actions,omitempty"`
	// composed from the check itself or the nearest defaults level
	AuthorIs    *policy.FilterSpec[policy.AuthorCriteria] `json:"authorIs,omitempty"`
	ItemIs      *policy.FilterSpec[policy.ItemCriteria]   `json:"itemIs,omitempty"`
	PostFail    string                                    `json:"postFail"`
	PostTrigger string                                    `json:"postTrigger"`

	AuthorFilter *criteria.AuthorFilter `json:"-"`
	ItemFilter   *criteria.ItemFilter   `json:"-"`
}

// A member of a check's rule list: either a *Rule or a *RuleSet.
type Node interface {
	isNode()
}

type Rule struct {
	Name     string                                    `json:"name,omitempty"`
	Kind     string                                    `json:"kind"`
	Config   map[string]any                            `json:"config,omitempty"`
	AuthorIs *policy.FilterSpec[policy.AuthorCriteria] `json:"authorIs,omitempty"`
	ItemIs   *policy.FilterSpec[policy.ItemCriteria]   `json:"itemIs,omitempty"`
	// hash of the rule's premise; rules with equal premises share results within an evaluation pass
	Premise string `json:"premise"`

	Processor    rules.Processor        `json:"-"`
	AuthorFilter *criteria.AuthorFilter `json:"-"`
	ItemFilter   *criteria.ItemFilter   `json:"-"`
}

func (*Rule) isNode() {}

// Display name: the rule's own name, or its kind for anonymous rules.
func (r *Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Kind
}

func (r *Rule) MarshalJSON() ([]byte, error) {
	type plain Rule
	return json.Marshal(struct {
		Type string `json:"type"`
		*plain
	}{"rule", (*plain)(r)})
}

type RuleSet struct {
	Condition string                                    `json:"condition"`
	Rules     []Node                                    `json:"rules"`
	AuthorIs  *policy.FilterSpec[policy.AuthorCriteria] `json:"authorIs,omitempty"`
	ItemIs    *policy.FilterSpec[policy.ItemCriteria]   `json:"itemIs,omitempty"`

	AuthorFilter *criteria.AuthorFilter `json:"-"`
	ItemFilter   *criteria.ItemFilter   `json:"-"`
}

func (*RuleSet) isNode() {}

func (rs *RuleSet) MarshalJSON() ([]byte, error) {
	type plain RuleSet
	return json.Marshal(struct {
		Type string `json:"type"`
		*plain
	}{"ruleSet", (*plain)(rs)})
}

type Action struct {
	Name     string                                    `json:"name,omitempty"`
	Kind     string                                    `json:"kind"`
	Config   map[string]any                            `json:"config,omitempty"`
	AuthorIs *policy.FilterSpec[policy.AuthorCriteria] `json:"authorIs,omitempty"`
	ItemIs   *policy.FilterSpec[policy.ItemCriteria]   `json:"itemIs,omitempty"`

	AuthorFilter *criteria.AuthorFilter `json:"-"`
	ItemFilter   *criteria.ItemFilter   `json:"-"`
}
