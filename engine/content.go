package engine

import (
	"fmt"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/policy/graph"

	"github.com/flosch/pongo2/v6"
	"github.com/puzpuzpuz/xsync/v3"
)

// parsed content templates, keyed by template text
var contentTemplates = xsync.NewMapOf[string, *pongo2.Template]()

// Renders an action's "content" option (eg a removal reason, or reply text) as a template. The item, its author and community, and the check name are in scope:
//
//	Removed: {{ item.Title }} by u/{{ author }} was flagged by "{{ check }}"
//
// Actions without content render as the empty string.
func RenderContent(action *graph.Action, item *activity.Item, check string) (string, error) {
	raw, ok := action.Config["content"].(string)
	if !ok || raw == "" {
		return "", nil
	}
	tpl, ok := contentTemplates.Load(raw)
	if !ok {
		var err error
		tpl, err = pongo2.FromString(raw)
		if err != nil {
			return "", fmt.Errorf("parsing %s action content: %w", action.Kind, err)
		}
		contentTemplates.Store(raw, tpl)
	}
	out, err := tpl.Execute(pongo2.Context{
		"item":      item,
		"author":    item.Author,
		"community": item.Community,
		"check":     check,
	})
	if err != nil {
		return "", fmt.Errorf("rendering %s action content: %w", action.Kind, err)
	}
	return out, nil
}
