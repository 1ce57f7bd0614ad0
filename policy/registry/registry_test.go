package registry

import (
	"testing"

	"github.com/bluesky-social/modpolicy/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeDoc(t *testing.T, text string) *policy.Document {
	raw, _, err := policy.Parse([]byte(text), policy.FormatJSON)
	require.NoError(t, err)
	var doc policy.Document
	require.NoError(t, policy.Decode(raw, &doc))
	return &doc
}

func TestNamesConflict(t *testing.T) {
	assert := assert.New(t)

	names := NewNames[policy.RuleConfig]("rule")
	a := policy.RuleConfig{Name: "A", Kind: "regex", Config: map[string]any{"criteria": []any{"x"}}}
	assert.NoError(names.Register(a))

	// same content, different case and key set representation
	same := policy.RuleConfig{Name: "a", Kind: "regex", Config: map[string]any{"criteria": []any{"x"}, "extra": []any{}}}
	assert.NoError(names.Register(same))
	assert.Equal(1, names.Len())

	different := policy.RuleConfig{Name: "A", Kind: "regex", Config: map[string]any{"criteria": []any{"y"}}}
	err := names.Register(different)
	assert.ErrorIs(err, policy.ErrNamingConflict)
	assert.Contains(err.Error(), `"A"`)

	// unnamed entities are never registered
	assert.NoError(names.Register(policy.RuleConfig{Kind: "author"}))
	assert.Equal(1, names.Len())

	got, err := names.Get("  a ")
	assert.NoError(err)
	assert.Equal("regex", got.Kind)

	_, err = names.Get("Repeat1")
	assert.ErrorIs(err, policy.ErrUnresolvedReference)
	assert.Contains(err.Error(), "Repeat1")
}

func TestExtractAndResolve(t *testing.T) {
	assert := assert.New(t)

	doc := decodeDoc(t, `{
		"filterCriteriaDefaults": {"authorIs": {"exclude": [{"name": "Mods", "isMod": true}]}},
		"runs": [{
			"name": "r1",
			"checks": [
				{
					"name": "c1",
					"kind": "submission",
					"itemIs": [{"name": "fresh", "age": "< 1 hour"}],
					"rules": [
						{"name": "Spammy", "kind": "regex", "criteria": [{"regex": "buy now"}], "authorIs": ["mods"]},
						{"condition": "OR", "rules": [{"name": "Veterans", "kind": "author", "include": [{"name": "old", "age": "> 1 year"}], "exclude": ["mods"]}]}
					],
					"actions": [{"name": "Flag", "kind": "report", "itemIs": ["FRESH"]}]
				},
				{"name": "c2", "kind": "comment", "rules": ["spammy", "veterans"], "actions": ["flag"]}
			]
		}]
	}`)

	reg := New()
	require.NoError(t, reg.Extract(doc))
	assert.Equal([]string{"spammy", "veterans"}, reg.Rules.Keys())
	assert.Equal([]string{"mods", "old"}, reg.Authors.Keys())
	assert.Equal([]string{"fresh"}, reg.Items.Keys())
	assert.Equal([]string{"flag"}, reg.Actions.Keys())

	c2 := doc.Runs[0].Checks[1]
	rule, err := reg.ResolveRule(c2.Rules[0])
	require.NoError(t, err)
	assert.Equal("Spammy", rule.Name)
	require.Len(t, rule.AuthorIs.Include, 1)
	require.NotNil(t, rule.AuthorIs.Include[0].Criteria)
	assert.True(*rule.AuthorIs.Include[0].Criteria.IsMod)

	// author rule criteria names are resolved inside config
	rule, err = reg.ResolveRule(c2.Rules[1])
	require.NoError(t, err)
	spec, err := AuthorRuleCriteria(rule.Config)
	require.NoError(t, err)
	require.Len(t, spec.Exclude, 1)
	require.NotNil(t, spec.Exclude[0].Criteria)
	assert.True(*spec.Exclude[0].Criteria.IsMod)
	// names do not leak into the rule's premise
	assert.Empty(spec.Exclude[0].Criteria.Name)
	require.Len(t, spec.Include, 1)
	assert.Empty(spec.Include[0].Criteria.Name)
	// registered entity is not modified
	registered, err := reg.Rules.Get("veterans")
	require.NoError(t, err)
	assert.Equal([]any{"mods"}, registered.Config["exclude"])

	action, err := reg.ResolveAction(c2.Actions[0])
	require.NoError(t, err)
	assert.Equal("report", action.Kind)
	assert.Equal("< 1 hour", action.ItemIs.Include[0].Criteria.Age)
}

func TestExtractConflictPosition(t *testing.T) {
	assert := assert.New(t)

	doc := decodeDoc(t, `{"runs": [{"checks": [
		{"name": "c1", "rules": [{"name": "A", "kind": "regex", "criteria": ["x"]}]},
		{"name": "c2", "rules": ["x", {"name": "a", "kind": "regex", "criteria": ["z"]}]}
	]}]}`)
	err := New().Extract(doc)
	assert.ErrorIs(err, policy.ErrNamingConflict)
	assert.Contains(err.Error(), "Rule #2 in Check #2 in Run #1")

	// criteria conflicts are detected the same way
	doc = decodeDoc(t, `{"runs": [{"checks": [
		{"name": "c1", "itemIs": [{"name": "big", "score": "> 10"}]},
		{"name": "c2", "itemIs": [{"name": "BIG", "score": "> 100"}]}
	]}]}`)
	err = New().Extract(doc)
	assert.ErrorIs(err, policy.ErrNamingConflict)
	assert.Contains(err.Error(), "Check #2 in Run #1")
}

func TestUnresolvedReference(t *testing.T) {
	assert := assert.New(t)

	doc := decodeDoc(t, `{"runs": [{"checks": [{"name": "c1", "rules": ["Repeat1"], "itemIs": ["nope"]}]}]}`)
	reg := New()
	require.NoError(t, reg.Extract(doc))

	_, err := reg.ResolveRule(doc.Runs[0].Checks[0].Rules[0])
	assert.ErrorIs(err, policy.ErrUnresolvedReference)
	assert.Contains(err.Error(), `"Repeat1"`)

	_, err = reg.ComposeItem(doc.Runs[0].Checks[0].ItemIs)
	assert.ErrorIs(err, policy.ErrUnresolvedReference)
}

func TestCheckFiltersNoMerge(t *testing.T) {
	assert := assert.New(t)

	runDefaults := &policy.FilterDefaults{
		AuthorIs: &policy.FilterSpec[policy.AuthorCriteria]{Include: []policy.CriteriaRef[policy.AuthorCriteria]{{Name: "runAuthor"}}},
		ItemIs:   &policy.FilterSpec[policy.ItemCriteria]{Include: []policy.CriteriaRef[policy.ItemCriteria]{{Name: "runItem"}}},
	}
	docDefaults := &policy.FilterDefaults{
		ItemIs: &policy.FilterSpec[policy.ItemCriteria]{Exclude: []policy.CriteriaRef[policy.ItemCriteria]{{Name: "docItem"}}},
	}
	global := &policy.FilterDefaults{
		AuthorIs: &policy.FilterSpec[policy.AuthorCriteria]{Include: []policy.CriteriaRef[policy.AuthorCriteria]{{Name: "globalAuthor"}}},
	}

	// check defines its own itemIs: run defaults are ignored for that field entirely
	check := &policy.Check{Name: "c", ItemIs: &policy.FilterSpec[policy.ItemCriteria]{Include: []policy.CriteriaRef[policy.ItemCriteria]{{Name: "checkItem"}}}}
	author, item := CheckFilters(check, runDefaults, docDefaults, global)
	assert.Equal(check.ItemIs, item)
	assert.Len(item.Include, 1)
	assert.Empty(item.Exclude)
	assert.Equal(runDefaults.AuthorIs, author)

	// an empty own filter still wins
	check = &policy.Check{Name: "c", ItemIs: &policy.FilterSpec[policy.ItemCriteria]{}}
	_, item = CheckFilters(check, runDefaults, docDefaults, global)
	assert.True(item.IsEmpty())

	// nearest defined level
	check = &policy.Check{Name: "c"}
	author, item = CheckFilters(check, nil, docDefaults, global)
	assert.Equal(global.AuthorIs, author)
	assert.Equal(docDefaults.ItemIs, item)

	author, item = CheckFilters(check)
	assert.Nil(author)
	assert.Nil(item)
}

func TestCheckBehavior(t *testing.T) {
	assert := assert.New(t)

	fail, trigger := CheckBehavior(&policy.Check{})
	assert.Equal(policy.BehaviorNext, fail)
	assert.Equal(policy.BehaviorNextRun, trigger)

	fail, trigger = CheckBehavior(&policy.Check{PostTrigger: policy.BehaviorStop},
		&policy.PostCheckBehavior{PostFail: policy.BehaviorNextRun, PostTrigger: policy.BehaviorNext},
		&policy.PostCheckBehavior{PostFail: policy.BehaviorStop})
	assert.Equal(policy.BehaviorNextRun, fail)
	assert.Equal(policy.BehaviorStop, trigger)
}
