package engine

import (
	"context"
	"log/slog"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/policy/graph"
)

// Interface for a type which carries out (or forwards) the actions of triggered checks. Executing actions against the platform is up to the implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *ActionRequest) error
}

type ActionRequest struct {
	Item   *activity.Item
	Check  string
	Action *graph.Action
	// rendered "content" option; see RenderContent
	Content string
}

// Dispatcher which only logs.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d *LogDispatcher) Dispatch(ctx context.Context, req *ActionRequest) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("action", "item", req.Item.ID, "author", req.Item.Author, "check", req.Check, "action", req.Action.Name, "kind", req.Action.Kind, "content", req.Content)
	return nil
}

// Sends each action to every dispatcher in order. All dispatchers are tried; the first error is returned.
type MultiDispatcher []Dispatcher

func (md MultiDispatcher) Dispatch(ctx context.Context, req *ActionRequest) error {
	var first error
	for _, d := range md {
		if err := d.Dispatch(ctx, req); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Gates each of a triggered check's actions on its own filters, then hands it to the dispatcher. Dispatch failures are recorded but do not affect the pass.
func (p *pass) dispatch(ctx context.Context, check *graph.Check) []*ActionResult {
	out := make([]*ActionResult, 0, len(check.Actions))
	for _, action := range check.Actions {
		ar := &ActionResult{Check: check.Name, Name: action.Name, Kind: action.Kind}
		out = append(out, ar)

		_, _, skipped, err := p.gate(ctx, action.ItemFilter, action.AuthorFilter)
		if err != nil {
			ar.Error = err.Error()
			continue
		}
		if skipped != "" {
			ar.Skipped = skipped
			continue
		}
		if ar.Content, err = RenderContent(action, p.item, check.Name); err != nil {
			ar.Error = err.Error()
			continue
		}
		if p.eng.DryRun || p.eng.Dispatcher == nil {
			continue
		}
		req := &ActionRequest{Item: p.item, Check: check.Name, Action: action, Content: ar.Content}
		if err := p.eng.Dispatcher.Dispatch(ctx, req); err != nil {
			actionDispatches.WithLabelValues(action.Kind, "error").Inc()
			p.logger.Error("action dispatch failed", "check", check.Name, "action", action.Kind, "err", err)
			ar.Error = err.Error()
			continue
		}
		actionDispatches.WithLabelValues(action.Kind, "ok").Inc()
		ar.Dispatched = true
	}
	return out
}
