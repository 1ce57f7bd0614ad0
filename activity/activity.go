// Content items and authors as seen by the rule engine, and the interface to the platform they come from.
package activity

import (
	"context"
	"time"
)

const (
	KindSubmission = "submission"
	KindComment    = "comment"
)

// A submission or comment in a community.
type Item struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Community string    `json:"community"`
	Author    string    `json:"author"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body,omitempty"`
	URL       string    `json:"url,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	Flair     string    `json:"flair,omitempty"`
	Score     int       `json:"score"`
	Reports   int       `json:"reports"`
	Removed   bool      `json:"removed,omitempty"`
	Locked    bool      `json:"locked,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
	Spam      bool      `json:"spam,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (i *Item) IsSubmission() bool {
	return i.Kind == KindSubmission
}

// Text which identifies the content of the item for comparison purposes: title and URL for submissions, body for comments.
func (i *Item) Content() string {
	if i.IsSubmission() {
		if i.Body != "" {
			return i.Title + "\n" + i.URL + "\n" + i.Body
		}
		return i.Title + "\n" + i.URL
	}
	return i.Body
}

type Author struct {
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	LinkKarma    int       `json:"linkKarma"`
	CommentKarma int       `json:"commentKarma"`
	IsMod        bool      `json:"isMod,omitempty"`
	Verified     bool      `json:"verified,omitempty"`
	Flair        string    `json:"flair,omitempty"`
}

func (a *Author) TotalKarma() int {
	return a.LinkKarma + a.CommentKarma
}

// A moderator note attached to an author, scoped to a community.
type Note struct {
	Type      string    `json:"type"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Options for listing activity. Zero values mean "no constraint".
type ListOptions struct {
	// only items created within this duration before the reference time
	Window time.Duration `json:"window,omitempty"`
	// maximum number of items, newest first
	Limit int `json:"limit,omitempty"`
	// "submission", "comment" or empty for both
	Kind string `json:"kind,omitempty"`
	// restrict to these communities
	Communities []string `json:"communities,omitempty"`
}

// The platform API, as consumed by rules. Implementations return items newest first.
type Source interface {
	GetAuthor(ctx context.Context, name string) (*Author, error)
	GetAuthorActivities(ctx context.Context, name string, opts ListOptions) ([]Item, error)
	GetCommunityActivities(ctx context.Context, community string, opts ListOptions) ([]Item, error)
	GetAuthorNotes(ctx context.Context, community, name string) ([]Note, error)
}
