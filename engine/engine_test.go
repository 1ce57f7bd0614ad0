package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/policy/graph"
	"github.com/bluesky-social/modpolicy/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var testActivity = activity.Fixture{
	Authors: []activity.Author{
		{Name: "spammer", CreatedAt: testNow.Add(-2 * time.Hour)},
		{Name: "regular", CreatedAt: testNow.Add(-3 * 365 * 24 * time.Hour), CommentKarma: 12000},
		{Name: "mod", CreatedAt: testNow.Add(-3 * 365 * 24 * time.Hour), IsMod: true},
	},
	Items: []activity.Item{
		{ID: "s1", Kind: activity.KindComment, Community: "pics", Author: "spammer", Body: "great deals at example.com", CreatedAt: testNow.Add(-time.Hour)},
		{ID: "s2", Kind: activity.KindComment, Community: "funny", Author: "spammer", Body: "great deals at example.com", CreatedAt: testNow.Add(-90 * time.Minute)},
		{ID: "r1", Kind: activity.KindSubmission, Community: "pics", Author: "regular", Title: "sunset", CreatedAt: testNow.Add(-48 * time.Hour)},
	},
}

func testEngine(t *testing.T, doc string) *Engine {
	raw, _, err := policy.Parse([]byte(doc), policy.FormatJSON)
	require.NoError(t, err)
	eng, err := EngineTestFixture(context.Background(), testActivity, raw, testNow)
	require.NoError(t, err)
	return eng
}

func spamComment() *activity.Item {
	return &activity.Item{ID: "s3", Kind: activity.KindComment, Community: "pics", Author: "spammer", Body: "great deals at example.com", CreatedAt: testNow}
}

type countingProcessor struct {
	rules.Processor
	calls *int
}

func (c *countingProcessor) Process(ctx context.Context, env *rules.Env, item *activity.Item) (rules.Outcome, error) {
	*c.calls++
	return c.Processor.Process(ctx, env, item)
}

// wraps every rule's processor to count invocations
func countCalls(g *graph.Graph) *int {
	calls := 0
	var wrap func(nodes []graph.Node)
	wrap = func(nodes []graph.Node) {
		for _, node := range nodes {
			switch n := node.(type) {
			case *graph.Rule:
				n.Processor = &countingProcessor{Processor: n.Processor, calls: &calls}
			case *graph.RuleSet:
				wrap(n.Rules)
			}
		}
	}
	for _, run := range g.Runs {
		for _, check := range run.Checks {
			wrap(check.Rules)
		}
	}
	return &calls
}

func TestPremiseCache(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := testEngine(t, `{"checks": [{"name": "dupes", "rules": [
		{"name": "first", "kind": "history", "criteria": [{"total": ">= 2"}]},
		{"name": "second", "kind": "history", "criteria": [{"total": ">= 2"}]}
	]}]}`)
	calls := countCalls(eng.Graph)

	res, err := eng.Evaluate(ctx, spamComment())
	require.NoError(t, err)
	assert.Equal(1, *calls)
	assert.True(res.Triggered)

	rs := res.Runs[0].Checks[0].Rules
	require.Len(t, rs, 2)
	assert.False(rs[0].FromCache)
	assert.True(rs[1].FromCache)
	assert.Equal("second", rs[1].Name)
	assert.Equal(rs[0].Premise, rs[1].Premise)
	assert.Equal(rs[0].Data, rs[1].Data)
	require.NotNil(t, rs[1].Triggered)
	assert.True(*rs[1].Triggered)

	// every pass starts with an empty cache
	_, err = eng.Evaluate(ctx, spamComment())
	require.NoError(t, err)
	assert.Equal(2, *calls)
}

func TestFilterGates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := testEngine(t, `{"checks": [{"name": "gated", "condition": "OR", "rules": [
		{"kind": "history", "criteria": [{"total": ">= 1"}], "itemIs": [{"removed": true}]},
		{"kind": "history", "criteria": [{"total": ">= 1"}], "authorIs": {"exclude": [{"age": "< 1 day"}]}}
	]}]}`)
	calls := countCalls(eng.Graph)

	res, err := eng.Evaluate(ctx, spamComment())
	require.NoError(t, err)
	assert.Equal(0, *calls)
	check := res.Runs[0].Checks[0]
	// all rules skipped: not triggered
	assert.Nil(check.Triggered)
	assert.False(res.Triggered)
	require.Len(t, check.Rules, 2)
	for _, rr := range check.Rules {
		assert.Nil(rr.Triggered)
		assert.NotEmpty(rr.Skipped)
	}
	assert.Contains(check.Rules[0].Skipped, "itemIs")
	assert.False(check.Rules[0].ItemIs.Passed)
	assert.Contains(check.Rules[1].Skipped, "authorIs")
	assert.False(check.Rules[1].AuthorIs.Passed)

	// the author gate passes for an older account
	item := &activity.Item{ID: "r2", Kind: activity.KindComment, Community: "pics", Author: "regular", CreatedAt: testNow}
	res, err = eng.Evaluate(ctx, item)
	require.NoError(t, err)
	assert.Equal(1, *calls)
	assert.True(*res.Runs[0].Checks[0].Triggered)
}

func TestConditions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := testEngine(t, `{"checks": [
		{"name": "or", "condition": "OR", "postTrigger": "next", "rules": [
			{"kind": "history", "criteria": [{"total": ">= 1"}]},
			{"kind": "history", "criteria": [{"total": ">= 100"}]}
		]},
		{"name": "and", "rules": [
			{"kind": "history", "criteria": [{"total": ">= 100"}]},
			{"kind": "history", "criteria": [{"total": ">= 1"}]}
		]},
		{"name": "nested", "rules": [
			{"condition": "OR", "rules": [
				{"kind": "history", "criteria": [{"comment": ">= 100"}]},
				{"kind": "history", "criteria": [{"comment": ">= 2"}]}
			]}
		]}
	]}`)
	calls := countCalls(eng.Graph)

	res, err := eng.Evaluate(ctx, spamComment())
	require.NoError(t, err)
	checks := res.Runs[0].Checks
	require.Len(t, checks, 3)

	assert.True(*checks[0].Triggered)
	assert.Len(checks[0].Rules, 1)
	assert.Equal("next", checks[0].Behavior)

	assert.False(*checks[1].Triggered)
	assert.Len(checks[1].Rules, 1)
	assert.Equal("next", checks[1].Behavior)

	assert.True(*checks[2].Triggered)
	require.Len(t, checks[2].Rules, 1)
	assert.Len(checks[2].Rules[0].Members, 2)
	assert.Equal(policy.ConditionOr, checks[2].Rules[0].Condition)
	assert.Equal("nextRun", checks[2].Behavior)

	// short-circuited rules never run, so nothing was cached for the "and" check
	assert.Equal(4, *calls)
}

func TestBehaviors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := testEngine(t, `{"runs": [
		{"name": "first", "checks": [
			{"name": "hit", "rules": [{"kind": "history", "criteria": [{"total": ">= 1"}]}]},
			{"name": "unreached", "rules": [{"kind": "history", "criteria": [{"total": ">= 1"}]}]}
		]},
		{"name": "second", "checks": [
			{"name": "miss", "postFail": "stop", "rules": [{"kind": "history", "criteria": [{"total": ">= 100"}]}]}
		]},
		{"name": "third", "checks": [
			{"name": "never", "rules": [{"kind": "history", "criteria": [{"total": ">= 1"}]}]}
		]}
	]}`)

	res, err := eng.Evaluate(ctx, spamComment())
	require.NoError(t, err)
	require.Len(t, res.Runs, 2)
	assert.Len(res.Runs[0].Checks, 1)
	assert.Equal("nextRun", res.Runs[0].Checks[0].Behavior)
	assert.Equal("stop", res.Runs[1].Checks[0].Behavior)
	assert.True(res.Triggered)
}

func TestCheckSkips(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := testEngine(t, `{"runs": [
		{"name": "mods only", "authorIs": [{"isMod": true}], "checks": [
			{"name": "c1", "rules": [{"kind": "history", "criteria": [{"total": ">= 0"}]}]}
		]},
		{"checks": [
			{"name": "submissions", "kind": "submission", "rules": [{"kind": "history", "criteria": [{"total": ">= 0"}]}]},
			{"name": "off", "enable": false, "rules": [{"kind": "history", "criteria": [{"total": ">= 0"}]}]},
			{"name": "fresh", "itemIs": [{"age": "> 1 day"}], "rules": [{"kind": "history", "criteria": [{"total": ">= 0"}]}]}
		]}
	]}`)
	calls := countCalls(eng.Graph)

	res, err := eng.Evaluate(ctx, spamComment())
	require.NoError(t, err)
	assert.Equal(0, *calls)
	assert.False(res.Triggered)

	require.Len(t, res.Runs, 2)
	assert.Contains(res.Runs[0].Skipped, "authorIs")
	assert.Empty(res.Runs[0].Checks)
	assert.Equal("Run2", res.Runs[1].Name)
	checks := res.Runs[1].Checks
	require.Len(t, checks, 3)
	assert.Contains(checks[0].Skipped, "submission")
	assert.Contains(checks[1].Skipped, "disabled")
	assert.Contains(checks[2].Skipped, "itemIs")
	for _, c := range checks {
		assert.Nil(c.Triggered)
	}
}

func TestRuleProcessError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := testEngine(t, `{"runs": [
		{"checks": [{"name": "c1", "condition": "OR", "rules": [
			{"name": "missing pattern", "kind": "regex", "criteria": [{"regex": "wiki:patterns/gone"}]}
		]}]},
		{"checks": [{"name": "c2", "rules": [{"kind": "history", "criteria": [{"total": ">= 0"}]}]}]}
	]}`)
	calls := countCalls(eng.Graph)

	res, err := eng.Evaluate(ctx, spamComment())
	assert.ErrorIs(err, policy.ErrRuleProcess)
	assert.ErrorIs(err, policy.ErrNotFound)
	assert.ErrorContains(err, "regex")
	assert.ErrorContains(err, "missing pattern")
	require.NotNil(t, res)
	assert.NotEmpty(res.Error)
	// the pass stops at the failure
	assert.Len(res.Runs, 1)
	assert.NotEmpty(res.Runs[0].Checks[0].Error)
	assert.Equal(1, *calls)

	// failures are not cached; the next pass tries again
	_, err = eng.Evaluate(ctx, spamComment())
	assert.ErrorIs(err, policy.ErrRuleProcess)
	assert.Equal(2, *calls)
}

func TestAuthorFilterError(t *testing.T) {
	ctx := context.Background()
	ghost := &activity.Item{ID: "g1", Kind: activity.KindComment, Community: "pics", Author: "ghost", Body: "hello", CreatedAt: testNow}
	second := `{"checks": [{"name": "c2", "rules": [{"kind": "history", "criteria": [{"total": ">= 0"}]}]}]}`

	for _, tc := range []struct {
		name  string
		first string
	}{
		{"run", `{"authorIs": [{"isMod": true}], "checks": [{"name": "c1", "rules": [{"kind": "history", "criteria": [{"total": ">= 0"}]}]}]}`},
		{"check", `{"checks": [{"name": "c1", "authorIs": [{"isMod": true}], "rules": [{"kind": "history", "criteria": [{"total": ">= 0"}]}]}]}`},
		{"rule set", `{"checks": [{"name": "c1", "rules": [{"condition": "OR", "authorIs": [{"isMod": true}], "rules": [{"kind": "history", "criteria": [{"total": ">= 0"}]}]}]}]}`},
		{"rule", `{"checks": [{"name": "c1", "rules": [{"kind": "history", "authorIs": [{"isMod": true}], "criteria": [{"total": ">= 0"}]}]}]}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			eng := testEngine(t, fmt.Sprintf(`{"runs": [%s, %s]}`, tc.first, second))
			calls := countCalls(eng.Graph)

			res, err := eng.Evaluate(ctx, ghost)
			assert.ErrorIs(err, policy.ErrRuleProcess)
			assert.ErrorContains(err, "ghost")
			require.NotNil(t, res)
			assert.NotEmpty(res.Error)
			assert.False(res.Triggered)
			// the pass stops at the failure
			assert.Len(res.Runs, 1)
			assert.Equal(0, *calls)

			// other items are unaffected
			res, err = eng.Evaluate(ctx, spamComment())
			require.NoError(t, err)
			assert.Empty(res.Error)
			assert.Len(res.Runs, 2)
		})
	}
}

type panicProcessor struct{}

func (panicProcessor) Kind() string { return "panic" }

func (panicProcessor) Process(ctx context.Context, env *rules.Env, item *activity.Item) (rules.Outcome, error) {
	var m map[string]int
	m["boom"]++
	return rules.Outcome{}, nil
}

func TestRulePanic(t *testing.T) {
	assert := assert.New(t)
	eng := testEngine(t, `{"checks": [{"name": "c1", "rules": [{"name": "bad", "kind": "history", "criteria": [{"total": ">= 0"}]}]}]}`)
	eng.Graph.Runs[0].Checks[0].Rules[0].(*graph.Rule).Processor = panicProcessor{}

	_, err := eng.Evaluate(context.Background(), spamComment())
	assert.ErrorIs(err, policy.ErrRuleProcess)
	assert.ErrorContains(err, "panic")
}

func TestActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	doc := `{"checks": [{"name": "spam", "rules": [{"kind": "repeatActivity", "threshold": ">= 3"}], "actions": [
		{"name": "remove", "kind": "remove"},
		{"kind": "ban", "authorIs": [{"totalKarma": "> 1000"}]},
		{"kind": "comment", "content": "{{ check }}: please stop, u/{{ author }} ({{ item.ID }})"}
	]}]}`

	eng := testEngine(t, doc)
	capture := &CaptureDispatcher{}
	eng.Dispatcher = capture

	res, err := eng.Evaluate(ctx, spamComment())
	require.NoError(t, err)
	assert.True(res.Triggered)
	actions := res.Actions()
	require.Len(t, actions, 3)
	assert.True(actions[0].Dispatched)
	assert.False(actions[1].Dispatched)
	assert.Contains(actions[1].Skipped, "authorIs")
	assert.True(actions[2].Dispatched)
	require.Len(t, capture.Dispatched, 2)
	assert.Equal(CapturedAction{ItemID: "s3", Check: "spam", Action: "remove", Kind: "remove"}, capture.Dispatched[0])
	assert.Equal("comment", capture.Dispatched[1].Kind)
	assert.Equal("spam: please stop, u/spammer (s3)", capture.Dispatched[1].Content)
	assert.Equal(capture.Dispatched[1].Content, actions[2].Content)

	// dry run records without dispatching
	eng.DryRun = true
	res, err = eng.Evaluate(ctx, spamComment())
	require.NoError(t, err)
	assert.Len(res.Actions(), 3)
	assert.Len(capture.Dispatched, 2)
	for _, a := range res.Actions() {
		assert.False(a.Dispatched)
	}

	// nothing is dispatched for an item which does not trigger
	eng.DryRun = false
	res, err = eng.Evaluate(ctx, &activity.Item{ID: "r2", Kind: activity.KindComment, Community: "pics", Author: "regular", Body: "nice", CreatedAt: testNow})
	require.NoError(t, err)
	assert.False(res.Triggered)
	assert.Empty(res.Actions())
	assert.Len(capture.Dispatched, 2)
}

func TestSlackDispatcher(t *testing.T) {
	assert := assert.New(t)

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hook" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	d := &SlackDispatcher{SlackWebhookURL: srv.URL + "/hook"}
	err := d.Dispatch(context.Background(), &ActionRequest{
		Item:    spamComment(),
		Check:   "spam",
		Action:  &graph.Action{Name: "remove", Kind: "remove", Config: map[string]any{"note": "x"}},
		Content: "spam is not allowed",
	})
	assert.NoError(err)
	assert.Contains(got, "remove (remove)")
	assert.Contains(got, "spammer")
	assert.Contains(got, "note")
	assert.Contains(got, "spam is not allowed")

	d = &SlackDispatcher{SlackWebhookURL: srv.URL + "/missing"}
	assert.Error(d.Dispatch(context.Background(), &ActionRequest{Item: spamComment(), Check: "spam", Action: &graph.Action{Kind: "remove"}}))
}

func TestRenderContent(t *testing.T) {
	assert := assert.New(t)
	item := spamComment()

	out, err := RenderContent(&graph.Action{Kind: "remove"}, item, "c1")
	assert.NoError(err)
	assert.Empty(out)

	out, err = RenderContent(&graph.Action{Kind: "comment", Config: map[string]any{"content": "Removed from r/{{ community }}{% if item.Body %} ({{ author|upper }}){% endif %}"}}, item, "c1")
	assert.NoError(err)
	assert.Equal("Removed from r/pics (SPAMMER)", out)

	_, err = RenderContent(&graph.Action{Kind: "comment", Config: map[string]any{"content": "{% if %}"}}, item, "c1")
	assert.Error(err)
}
