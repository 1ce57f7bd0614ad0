package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/cachestore"
	"github.com/bluesky-social/modpolicy/policy/fragment"
	"github.com/bluesky-social/modpolicy/policy/graph"
	"github.com/bluesky-social/modpolicy/policy/hydrate"
	"github.com/bluesky-social/modpolicy/resources"
)

// Community used by engine test fixtures.
const TestCommunity = "pics"

// Builds an engine for a policy document over in-memory activity, pages and caches. The clock is fixed at now, for both the engine and the activity source.
func EngineTestFixture(ctx context.Context, fix activity.Fixture, doc any, now time.Time) (*Engine, error) {
	src := activity.NewMemSource()
	src.Now = func() time.Time { return now }
	src.Load(fix)

	fetcher := &fragment.Router{Named: &fragment.PageFetcher{Pages: src, DefaultScope: TestCommunity}}
	res := resources.New(src, cachestore.NewMemCacheStore(0, time.Hour), fetcher, TestCommunity, resources.DefaultConfig(), slog.Default())
	res.Now = func() time.Time { return now }

	b := graph.NewBuilder(hydrate.NewHydrator(res, slog.Default()), slog.Default())
	g, err := b.Build(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Logger:    slog.Default(),
		Graph:     g,
		Resources: res,
		Community: TestCommunity,
		Now:       func() time.Time { return now },
	}, nil
}

// Dispatcher which records everything it is handed.
type CaptureDispatcher struct {
	Dispatched []CapturedAction
}

type CapturedAction struct {
	ItemID  string
	Check   string
	Action  string
	Kind    string
	Content string
}

func (d *CaptureDispatcher) Dispatch(ctx context.Context, req *ActionRequest) error {
	d.Dispatched = append(d.Dispatched, CapturedAction{
		ItemID:  req.Item.ID,
		Check:   req.Check,
		Action:  req.Action.Name,
		Kind:    req.Action.Kind,
		Content: req.Content,
	})
	return nil
}
