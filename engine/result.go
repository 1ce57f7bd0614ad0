package engine

import (
	"time"
)

// Outcome of one evaluation pass over one item.
type Result struct {
	ItemID string       `json:"itemID"`
	Kind   string       `json:"kind"`
	Runs   []*RunResult `json:"runs"`
	// true if any check triggered
	Triggered bool `json:"triggered"`
	// set when the pass was aborted by a rule processing failure
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Actions collected from every triggered check, in evaluation order.
func (r *Result) Actions() []*ActionResult {
	var out []*ActionResult
	for _, run := range r.Runs {
		for _, check := range run.Checks {
			out = append(out, check.Actions...)
		}
	}
	return out
}

type RunResult struct {
	Name string `json:"name"`
	// reason the run was not evaluated
	Skipped  string         `json:"skipped,omitempty"`
	ItemIs   *FilterResult  `json:"itemIs,omitempty"`
	AuthorIs *FilterResult  `json:"authorIs,omitempty"`
	Checks   []*CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Name      string `json:"name"`
	Condition string `json:"condition"`
	// nil when the check was skipped, or none of its rules were evaluated
	Triggered *bool           `json:"triggered"`
	Skipped   string          `json:"skipped,omitempty"`
	ItemIs    *FilterResult   `json:"itemIs,omitempty"`
	AuthorIs  *FilterResult   `json:"authorIs,omitempty"`
	Rules     []*RuleResult   `json:"rules,omitempty"`
	Actions   []*ActionResult `json:"actions,omitempty"`
	// post-check behavior which was applied: next, nextRun or stop
	Behavior string `json:"behavior,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result for a single rule, or for a rule set (in which case Members is populated and Kind is empty).
type RuleResult struct {
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Premise string `json:"premise,omitempty"`
	// nil when a filter gate skipped the rule. Once the rule is processed, always true or false.
	Triggered *bool          `json:"triggered"`
	FromCache bool           `json:"fromCache,omitempty"`
	Skipped   string         `json:"skipped,omitempty"`
	ItemIs    *FilterResult  `json:"itemIs,omitempty"`
	AuthorIs  *FilterResult  `json:"authorIs,omitempty"`
	Data      map[string]any `json:"data,omitempty"`

	Condition string        `json:"condition,omitempty"`
	Members   []*RuleResult `json:"members,omitempty"`
}

// Snapshot of a filter gate.
type FilterResult struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

type ActionResult struct {
	Check      string `json:"check"`
	Name       string `json:"name,omitempty"`
	Kind       string `json:"kind"`
	Skipped    string `json:"skipped,omitempty"`
	Content    string `json:"content,omitempty"`
	Dispatched bool   `json:"dispatched"`
	Error      string `json:"error,omitempty"`
}

func boolPtr(b bool) *bool {
	return &b
}
