package policy

import (
	"strings"
)

const (
	ItemKindSubmission = "submission"
	ItemKindComment    = "comment"

	ConditionAnd = "AND"
	ConditionOr  = "OR"

	// continue with the next check in the same run
	BehaviorNext = "next"
	// skip the remaining checks of this run
	BehaviorNextRun = "nextRun"
	// end the evaluation pass
	BehaviorStop = "stop"
)

// Names of the closed set of rule kinds.
const (
	KindRecentActivity = "recentActivity"
	KindRepeatActivity = "repeatActivity"
	KindAuthor         = "author"
	KindAttribution    = "attribution"
	KindHistory        = "history"
	KindRegex          = "regex"
	KindRepost         = "repost"
)

// Implemented by every element which can carry a reusable name.
type Entity[T any] interface {
	EntityName() string
	// returns a copy with the name removed, for structural comparison
	Anonymous() T
}

// Normalized registry key for an entity or reference name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// A fully hydrated policy document: contains no fragment references, but may still contain named references to rules, actions and criteria.
type Document struct {
	Runs                      []Run              `json:"runs"`
	FilterCriteriaDefaults    *FilterDefaults    `json:"filterCriteriaDefaults,omitempty"`
	PostCheckBehaviorDefaults *PostCheckBehavior `json:"postCheckBehaviorDefaults,omitempty"`
}

type FilterDefaults struct {
	AuthorIs *FilterSpec[AuthorCriteria] `json:"authorIs,omitempty"`
	ItemIs   *FilterSpec[ItemCriteria]   `json:"itemIs,omitempty"`
}

type PostCheckBehavior struct {
	PostFail    string `json:"postFail,omitempty"`
	PostTrigger string `json:"postTrigger,omitempty"`
}

type Run struct {
	Name                      string                      `json:"name,omitempty"`
	Checks                    []Check                     `json:"checks"`
	AuthorIs                  *FilterSpec[AuthorCriteria] `json:"authorIs,omitempty"`
	ItemIs                    *FilterSpec[ItemCriteria]   `json:"itemIs,omitempty"`
	FilterCriteriaDefaults    *FilterDefaults             `json:"filterCriteriaDefaults,omitempty"`
	PostCheckBehaviorDefaults *PostCheckBehavior          `json:"postCheckBehaviorDefaults,omitempty"`
}

type Check struct {
	Name string `json:"name"`
	// item kind this check applies to: "submission" or "comment". Empty applies to both.
	Kind string `json:"kind,omitempty"`
	// how rule outcomes combine: "AND" (default) or "OR"
	Condition   string                      `json:"condition,omitempty"`
	Enable      *bool                       `json:"enable,omitempty"`
	Rules       []RuleRef                   `json:"rules,omitempty"`
	Actions     []ActionRef                 `json:"actions,omitempty"`
	AuthorIs    *FilterSpec[AuthorCriteria] `json:"authorIs,omitempty"`
	ItemIs      *FilterSpec[ItemCriteria]   `json:"itemIs,omitempty"`
	PostFail    string                      `json:"postFail,omitempty"`
	PostTrigger string                      `json:"postTrigger,omitempty"`
}

func (c *Check) Enabled() bool {
	return c.Enable == nil || *c.Enable
}

// Either a reference to a named rule, an inline rule, or an inline rule set. Exactly one field is set.
type RuleRef struct {
	Name    string
	Rule    *RuleConfig
	RuleSet *RuleSetConfig
}

func (r RuleRef) IsReference() bool {
	return r.Rule == nil && r.RuleSet == nil
}

// A single rule. Every document key other than name, kind, authorIs and itemIs is kind-specific configuration.
type RuleConfig struct {
	Name     string
	Kind     string
	AuthorIs *FilterSpec[AuthorCriteria]
	ItemIs   *FilterSpec[ItemCriteria]
	Config   map[string]any
}

var _ Entity[RuleConfig] = RuleConfig{}

func (r RuleConfig) EntityName() string { return r.Name }

func (r RuleConfig) Anonymous() RuleConfig {
	r.Name = ""
	return r
}

// An ordered AND/OR group of rules. Rule sets may nest.
type RuleSetConfig struct {
	Condition string                      `json:"condition"`
	Rules     []RuleRef                   `json:"rules"`
	AuthorIs  *FilterSpec[AuthorCriteria] `json:"authorIs,omitempty"`
	ItemIs    *FilterSpec[ItemCriteria]   `json:"itemIs,omitempty"`
}

// Either a reference to a named action, or an inline action.
type ActionRef struct {
	Name   string
	Action *ActionConfig
}

func (a ActionRef) IsReference() bool {
	return a.Action == nil
}

// A side-effecting directive dispatched when a check triggers. Like RuleConfig, unknown keys are kind-specific configuration.
type ActionConfig struct {
	Name     string
	Kind     string
	AuthorIs *FilterSpec[AuthorCriteria]
	ItemIs   *FilterSpec[ItemCriteria]
	Config   map[string]any
}

var _ Entity[ActionConfig] = ActionConfig{}

func (a ActionConfig) EntityName() string { return a.Name }

func (a ActionConfig) Anonymous() ActionConfig {
	a.Name = ""
	return a
}

// Include/exclude predicate lists. In documents this is either a bare array (shorthand for Include) or an object with "include" and/or "exclude" arrays.
//
// An item passes when Include is empty or any Include entry matches, and no Exclude entry matches.
type FilterSpec[T any] struct {
	Include []CriteriaRef[T] `json:"include,omitempty"`
	Exclude []CriteriaRef[T] `json:"exclude,omitempty"`
}

func (s *FilterSpec[T]) IsEmpty() bool {
	return s == nil || (len(s.Include) == 0 && len(s.Exclude) == 0)
}

// Either a reference to named criteria, or inline criteria (which may itself carry a name).
type CriteriaRef[T any] struct {
	Name     string
	Criteria *T
}

func (r CriteriaRef[T]) IsReference() bool {
	return r.Criteria == nil
}

// Returns a copy of the filter with every inline criteria's name removed.
func AnonymousFilter[T Entity[T]](s *FilterSpec[T]) *FilterSpec[T] {
	if s == nil {
		return nil
	}
	strip := func(refs []CriteriaRef[T]) []CriteriaRef[T] {
		if refs == nil {
			return nil
		}
		out := make([]CriteriaRef[T], len(refs))
		for i, ref := range refs {
			if ref.Criteria == nil {
				out[i] = ref
				continue
			}
			anon := (*ref.Criteria).Anonymous()
			out[i] = CriteriaRef[T]{Criteria: &anon}
		}
		return out
	}
	return &FilterSpec[T]{
		Include: strip(s.Include),
		Exclude: strip(s.Exclude),
	}
}

// Predicates over the author of an item. All set fields must match.
type AuthorCriteria struct {
	Name string `json:"name,omitempty"`
	// author usernames, case-insensitive
	Names    []string `json:"names,omitempty"`
	Flair    []string `json:"flair,omitempty"`
	IsMod    *bool    `json:"isMod,omitempty"`
	Verified *bool    `json:"verified,omitempty"`
	// account age comparison, eg "> 30 days"
	Age          string             `json:"age,omitempty"`
	TotalKarma   string             `json:"totalKarma,omitempty"`
	LinkKarma    string             `json:"linkKarma,omitempty"`
	CommentKarma string             `json:"commentKarma,omitempty"`
	UserNotes    []UserNoteCriteria `json:"userNotes,omitempty"`
}

var _ Entity[AuthorCriteria] = AuthorCriteria{}

func (c AuthorCriteria) EntityName() string { return c.Name }

func (c AuthorCriteria) Anonymous() AuthorCriteria {
	c.Name = ""
	return c
}

type UserNoteCriteria struct {
	Type string `json:"type"`
	// comparison on number of notes of this type; defaults to ">= 1"
	Count string `json:"count,omitempty"`
}

// Predicates over the observable state of an item. All set fields must match.
type ItemCriteria struct {
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Removed *bool  `json:"removed,omitempty"`
	Locked  *bool  `json:"locked,omitempty"`
	Deleted *bool  `json:"deleted,omitempty"`
	Spam    *bool  `json:"spam,omitempty"`
	Score   string `json:"score,omitempty"`
	Reports string `json:"reports,omitempty"`
	// item age comparison, eg "< 2 hours"
	Age    string   `json:"age,omitempty"`
	Flair  []string `json:"flair,omitempty"`
	Domain []string `json:"domain,omitempty"`
	// comparison on the number of user-perceived characters in the body
	BodyLength string `json:"bodyLength,omitempty"`
	// free-form dates, eg "2024-01-02" or "Jan 2, 2024"
	CreatedAfter  string `json:"createdAfter,omitempty"`
	CreatedBefore string `json:"createdBefore,omitempty"`
}

var _ Entity[ItemCriteria] = ItemCriteria{}

func (c ItemCriteria) EntityName() string { return c.Name }

func (c ItemCriteria) Anonymous() ItemCriteria {
	c.Name = ""
	return c
}
