package rules

import (
	"context"
	"testing"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/cachestore"
	"github.com/bluesky-social/modpolicy/criteria"
	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/policy/fragment"
	"github.com/bluesky-social/modpolicy/resources"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testEnv(t *testing.T, fix activity.Fixture) *Env {
	src := activity.NewMemSource()
	src.Now = func() time.Time { return testNow }
	src.Load(fix)
	fetcher := &fragment.Router{Named: &fragment.PageFetcher{Pages: src, DefaultScope: "pics"}}
	rc := resources.New(src, cachestore.NewMemCacheStore(0, time.Hour), fetcher, "pics", resources.DefaultConfig(), nil)
	rc.Now = func() time.Time { return testNow }
	return &Env{Resources: rc, Community: "pics", Now: testNow}
}

func ago(d time.Duration) time.Time {
	return testNow.Add(-d)
}

func TestNewUnknownKind(t *testing.T) {
	assert := assert.New(t)

	_, err := New("sentiment", nil)
	assert.ErrorIs(err, policy.ErrSchemaValidation)

	// unknown config keys are rejected
	_, err = New(policy.KindRepost, map[string]any{"windw": "1 day"})
	assert.ErrorIs(err, policy.ErrSchemaValidation)

	for _, kind := range Kinds {
		p, err := New(kind, nil)
		if err != nil {
			assert.ErrorIs(err, policy.ErrSchemaValidation, kind)
			continue
		}
		assert.Equal(kind, p.Kind())
	}
}

func TestRecentActivity(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	env := testEnv(t, activity.Fixture{Items: []activity.Item{
		{ID: "a", Kind: activity.KindComment, Community: "FreeKarma", Author: "spammer", CreatedAt: ago(time.Hour)},
		{ID: "b", Kind: activity.KindSubmission, Community: "freekarma", Author: "spammer", CreatedAt: ago(2 * time.Hour)},
		{ID: "c", Kind: activity.KindSubmission, Community: "freekarma", Author: "spammer", CreatedAt: ago(30 * criteria.Day)},
		{ID: "d", Kind: activity.KindSubmission, Community: "pics", Author: "spammer", CreatedAt: ago(time.Hour)},
	}})
	item := &activity.Item{ID: "new", Kind: activity.KindSubmission, Community: "pics", Author: "spammer"}

	p, err := New(policy.KindRecentActivity, map[string]any{"communities": []any{"freekarma"}, "window": "1 week", "threshold": ">= 2"})
	require.NoError(t, err)
	out, err := p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.True(out.Triggered)
	assert.Equal(2, out.Data["count"])

	p, err = New(policy.KindRecentActivity, map[string]any{"communities": []any{"freekarma"}, "lookAt": "submissions", "threshold": ">= 2"})
	require.NoError(t, err)
	out, err = p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.False(out.Triggered)

	_, err = New(policy.KindRecentActivity, map[string]any{})
	assert.ErrorIs(err, policy.ErrSchemaValidation)
}

func TestRepeatActivity(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	env := testEnv(t, activity.Fixture{Items: []activity.Item{
		{ID: "1", Kind: activity.KindComment, Author: "bot", Body: "Buy cheap followers NOW!", CreatedAt: ago(time.Hour)},
		{ID: "2", Kind: activity.KindComment, Author: "bot", Body: "buy cheap followers now", CreatedAt: ago(2 * time.Hour)},
		{ID: "3", Kind: activity.KindComment, Author: "bot", Body: "something else entirely", CreatedAt: ago(3 * time.Hour)},
	}})
	item := &activity.Item{ID: "1", Kind: activity.KindComment, Author: "bot", Body: "Buy cheap followers NOW!"}

	p, err := New(policy.KindRepeatActivity, map[string]any{"threshold": ">= 2"})
	require.NoError(t, err)
	out, err := p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.True(out.Triggered)
	assert.Equal(2, out.Data["count"])

	p, err = New(policy.KindRepeatActivity, map[string]any{"threshold": ">= 2", "minWordCount": 5})
	require.NoError(t, err)
	out, err = p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.False(out.Triggered)

	_, err = New(policy.KindRepeatActivity, map[string]any{"similarity": 0})
	assert.ErrorIs(err, policy.ErrSchemaValidation)
}

func TestAttribution(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	var items []activity.Item
	for i, d := range []string{"youtube.com", "youtube.com", "www.youtube.com", "imgur.com"} {
		items = append(items, activity.Item{ID: string(rune('a' + i)), Kind: activity.KindSubmission, Author: "promo", Domain: d, CreatedAt: ago(time.Duration(i+1) * time.Hour)})
	}
	env := testEnv(t, activity.Fixture{Items: items})
	item := &activity.Item{ID: "new", Kind: activity.KindSubmission, Author: "promo", URL: "https://www.youtube.com/watch?v=1"}

	p, err := New(policy.KindAttribution, map[string]any{"threshold": "> 50%", "minActivityCount": 3})
	require.NoError(t, err)
	out, err := p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.True(out.Triggered)
	assert.Equal(3, out.Data["matched"])
	assert.Equal(75.0, out.Data["percent"])

	// not enough activity
	p, err = New(policy.KindAttribution, map[string]any{"threshold": "> 50%", "minActivityCount": 10})
	require.NoError(t, err)
	out, err = p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.False(out.Triggered)

	// count threshold
	p, err = New(policy.KindAttribution, map[string]any{"threshold": ">= 1", "domains": []any{"imgur.com"}, "minActivityCount": 1})
	require.NoError(t, err)
	out, err = p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.True(out.Triggered)
}

func TestHistory(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	env := testEnv(t, activity.Fixture{Items: []activity.Item{
		{ID: "1", Kind: activity.KindSubmission, Author: "newbie", CreatedAt: ago(time.Hour)},
		{ID: "2", Kind: activity.KindSubmission, Author: "newbie", CreatedAt: ago(time.Hour)},
		{ID: "3", Kind: activity.KindComment, Author: "newbie", CreatedAt: ago(time.Hour)},
	}})
	item := &activity.Item{ID: "x", Kind: activity.KindSubmission, Author: "newbie"}

	p, err := New(policy.KindHistory, map[string]any{
		"criteria": []any{
			map[string]any{"submission": ">= 2", "comment": "< 1"},
			map[string]any{"total": "< 5"},
		},
	})
	require.NoError(t, err)
	out, err := p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.True(out.Triggered)
	assert.Equal([]bool{false, true}, out.Data["results"])

	p, err = New(policy.KindHistory, map[string]any{
		"condition": "AND",
		"criteria": []any{
			map[string]any{"submission": ">= 2", "comment": "< 1"},
			map[string]any{"total": "< 5"},
		},
	})
	require.NoError(t, err)
	out, err = p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.False(out.Triggered)

	_, err = New(policy.KindHistory, map[string]any{"criteria": []any{map[string]any{}}})
	assert.ErrorIs(err, policy.ErrSchemaValidation)
}

func TestRegex(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	env := testEnv(t, activity.Fixture{Pages: []activity.FixturePage{
		{Scope: "pics", Path: "patterns/spam", Text: "/free\\s+money/i\n"},
	}})
	item := &activity.Item{ID: "x", Kind: activity.KindSubmission, Title: "FREE   Money here", Body: "free money, free money", URL: "https://spam.example"}

	p, err := New(policy.KindRegex, map[string]any{
		"criteria": []any{map[string]any{"regex": "/free\\s+money/i", "matchThreshold": ">= 3"}},
	})
	require.NoError(t, err)
	out, err := p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.True(out.Triggered)
	assert.Equal([]int{3}, out.Data["matches"])

	p, err = New(policy.KindRegex, map[string]any{
		"condition": "AND",
		"criteria": []any{
			map[string]any{"regex": "wiki:patterns/spam", "testOn": []any{"title"}},
			map[string]any{"regex": "example", "testOn": []any{"url"}},
		},
	})
	require.NoError(t, err)
	out, err = p.Process(ctx, env, item)
	require.NoError(t, err)
	assert.True(out.Triggered)

	p, err = New(policy.KindRegex, map[string]any{
		"criteria": []any{map[string]any{"regex": "wiki:patterns/missing"}},
	})
	require.NoError(t, err)
	_, err = p.Process(ctx, env, item)
	assert.ErrorIs(err, policy.ErrNotFound)

	_, err = New(policy.KindRegex, map[string]any{"criteria": []any{map[string]any{"regex": "("}}})
	assert.ErrorIs(err, policy.ErrSchemaValidation)
	_, err = New(policy.KindRegex, map[string]any{"criteria": []any{map[string]any{"regex": "x", "testOn": []any{"flair"}}}})
	assert.ErrorIs(err, policy.ErrSchemaValidation)
}

func TestRepost(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	env := testEnv(t, activity.Fixture{Items: []activity.Item{
		{ID: "orig", Kind: activity.KindSubmission, Community: "pics", Author: "op", Title: "My cat", URL: "https://www.example.com/cat.jpg?utm_source=feed", CreatedAt: ago(24 * time.Hour)},
		{ID: "mine", Kind: activity.KindSubmission, Community: "pics", Author: "thief", Title: "Other", URL: "https://example.com/other.jpg", CreatedAt: ago(time.Hour)},
	}})

	p, err := New(policy.KindRepost, nil)
	require.NoError(t, err)

	out, err := p.Process(ctx, env, &activity.Item{ID: "new", Kind: activity.KindSubmission, Community: "pics", Author: "thief", Title: "look at this", URL: "https://example.com/cat.jpg"})
	require.NoError(t, err)
	assert.True(out.Triggered)
	assert.Equal("orig", out.Data["matchedID"])
	assert.Equal("url", out.Data["comparedOn"])

	out, err = p.Process(ctx, env, &activity.Item{ID: "new2", Kind: activity.KindSubmission, Community: "pics", Author: "thief", Title: "my CAT!"})
	require.NoError(t, err)
	assert.True(out.Triggered)
	assert.Equal("title", out.Data["comparedOn"])

	// own items do not count
	out, err = p.Process(ctx, env, &activity.Item{ID: "new3", Kind: activity.KindSubmission, Community: "pics", Author: "op", Title: "My cat"})
	require.NoError(t, err)
	assert.False(out.Triggered)

	out, err = p.Process(ctx, env, &activity.Item{ID: "c", Kind: activity.KindComment, Community: "pics", Author: "thief", Body: "My cat"})
	require.NoError(t, err)
	assert.False(out.Triggered)
}

func TestAuthorRule(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	env := testEnv(t, activity.Fixture{Authors: []activity.Author{
		{Name: "old", CreatedAt: ago(2 * criteria.Year), CommentKarma: 5000},
		{Name: "mod", CreatedAt: ago(2 * criteria.Year), IsMod: true},
		{Name: "fresh", CreatedAt: ago(time.Hour)},
	}})

	p, err := New(policy.KindAuthor, map[string]any{
		"include": []any{map[string]any{"age": "> 1 year"}},
		"exclude": []any{map[string]any{"name": "mods", "isMod": true}},
	})
	require.NoError(t, err)

	fixtures := []struct {
		author    string
		triggered bool
	}{
		{author: "old", triggered: true},
		{author: "mod", triggered: false},
		{author: "fresh", triggered: false},
	}
	for _, fix := range fixtures {
		out, err := p.Process(ctx, env, &activity.Item{ID: "i-" + fix.author, Author: fix.author})
		require.NoError(t, err)
		assert.Equal(fix.triggered, out.Triggered, fix.author)
	}

	_, err = p.Process(ctx, env, &activity.Item{ID: "i-ghost", Author: "ghost"})
	assert.Error(err)

	// names must have been resolved before the rule is built
	_, err = New(policy.KindAuthor, map[string]any{"include": []any{"mods"}})
	assert.ErrorIs(err, policy.ErrUnresolvedReference)
	_, err = New(policy.KindAuthor, map[string]any{})
	assert.ErrorIs(err, policy.ErrSchemaValidation)
}
