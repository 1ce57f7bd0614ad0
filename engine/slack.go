package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
)

// Dispatcher which posts a short summary of each action to a slack channel, for moderators to follow up on. Nothing is executed against the platform.
type SlackDispatcher struct {
	SlackWebhookURL string
	Client          *http.Client
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func (n *SlackDispatcher) Dispatch(ctx context.Context, req *ActionRequest) error {
	return n.sendSlackMsg(ctx, slackBody(req))
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackDispatcher) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = cleanhttp.DefaultClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(req *ActionRequest) string {
	item, action := req.Item, req.Action
	label := action.Kind
	if action.Name != "" {
		label = fmt.Sprintf("%s (%s)", action.Name, action.Kind)
	}
	msg := fmt.Sprintf("⚠️ Policy Action: `%s` ⚠️\n", label)
	msg += fmt.Sprintf("Check: `%s`\n", req.Check)
	msg += fmt.Sprintf("%s `%s` by `%s` in `%s`\n", item.Kind, item.ID, item.Author, item.Community)
	if item.Title != "" {
		msg += fmt.Sprintf("Title: %s\n", item.Title)
	}
	if item.URL != "" {
		msg += fmt.Sprintf("Link: <%s>\n", item.URL)
	}
	if len(action.Config) > 0 {
		keys := make([]string, 0, len(action.Config))
		for k := range action.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msg += fmt.Sprintf("Options: `%s`\n", strings.Join(keys, ", "))
	}
	if req.Content != "" {
		msg += fmt.Sprintf("> %s\n", strings.ReplaceAll(req.Content, "\n", "\n> "))
	}
	return msg
}
