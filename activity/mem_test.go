package activity

import (
	"context"
	"testing"
	"time"

	"github.com/bluesky-social/modpolicy/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemSource(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	src := NewMemSource()
	src.Now = func() time.Time { return now }
	src.Load(Fixture{
		Authors: []Author{{Name: "Alice", LinkKarma: 10, CommentKarma: 5}},
		Items: []Item{
			{ID: "1", Kind: KindSubmission, Community: "pics", Author: "alice", CreatedAt: now.Add(-48 * time.Hour)},
			{ID: "2", Kind: KindComment, Community: "pics", Author: "alice", CreatedAt: now.Add(-1 * time.Hour)},
			{ID: "3", Kind: KindSubmission, Community: "news", Author: "alice", CreatedAt: now.Add(-2 * time.Hour)},
			{ID: "4", Kind: KindSubmission, Community: "pics", Author: "bob", CreatedAt: now.Add(-3 * time.Hour)},
		},
		Notes: []FixtureNote{{Community: "pics", Author: "alice", Note: Note{Type: "spamwarn"}}},
		Pages: []FixturePage{{Scope: "pics", Path: "/botconfig/shared/", Text: "[]"}},
	})

	author, err := src.GetAuthor(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(15, author.TotalKarma())

	items, err := src.GetAuthorActivities(ctx, "alice", ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	// newest first
	assert.Equal("2", items[0].ID)
	assert.Equal("1", items[2].ID)

	items, err = src.GetAuthorActivities(ctx, "alice", ListOptions{Window: 24 * time.Hour, Kind: KindSubmission})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal("3", items[0].ID)

	items, err = src.GetCommunityActivities(ctx, "PICS", ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(items, 2)

	notes, err := src.GetAuthorNotes(ctx, "pics", "Alice")
	require.NoError(t, err)
	assert.Len(notes, 1)

	text, err := src.GetPage(ctx, "pics", "botconfig/shared")
	require.NoError(t, err)
	assert.Equal("[]", text)

	_, err = src.GetPage(ctx, "news", "botconfig/shared")
	assert.ErrorIs(err, policy.ErrNotFound)
}
