package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bluesky-social/modpolicy/activity"
	"github.com/bluesky-social/modpolicy/cachestore"
	"github.com/bluesky-social/modpolicy/engine"
	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/policy/fragment"
	"github.com/bluesky-social/modpolicy/policy/graph"
	"github.com/bluesky-social/modpolicy/policy/hydrate"
	"github.com/bluesky-social/modpolicy/resources"

	"github.com/araddon/dateparse"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "policyd",
		Usage:   "moderation policy checker and evaluator",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "community",
			Usage:   "community the policy belongs to; default scope for wiki: references",
			Value:   "home",
			EnvVars: []string{"POLICYD_COMMUNITY"},
		},
		&cli.StringFlag{
			Name:    "pages-dir",
			Usage:   "directory of wiki pages, laid out as <dir>/<community>/<path>",
			EnvVars: []string{"POLICYD_PAGES_DIR"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for the resource cache; in-process cache if not set",
			EnvVars: []string{"POLICYD_REDIS_URL", "REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Usage:   "default resource cache TTL",
			Value:   30 * time.Minute,
			EnvVars: []string{"POLICYD_CACHE_TTL"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			EnvVars: []string{"POLICYD_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"POLICYD_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		checkCmd,
		evalCmd,
	}

	return app.Run(args)
}

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "hydrate and build a policy document, then print its execution graph",
	ArgsUsage: "<file | url:... | wiki:...>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the graph as JSON",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		svc, err := setup(cctx, activity.NewMemSource())
		if err != nil {
			return err
		}
		defer svc.shutdown()

		g, err := svc.build(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		if cctx.Bool("json") {
			return printJSON(g)
		}
		fmt.Print(graphTree(g).String())
		return nil
	},
}

var evalCmd = &cli.Command{
	Name:      "eval",
	Usage:     "evaluate a policy against items from an activity fixture file",
	ArgsUsage: "<file | url:... | wiki:...>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "fixture",
			Usage:    "JSON file with authors, items, notes and pages",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "item",
			Usage: "ID of a fixture item to evaluate (repeatable); all items if not set",
		},
		&cli.StringFlag{
			Name:  "now",
			Usage: "evaluate as if at this time (most date formats accepted)",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "record actions without dispatching them",
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "also post dispatched actions to this slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()

		b, err := os.ReadFile(cctx.String("fixture"))
		if err != nil {
			return err
		}
		var fix activity.Fixture
		if err := json.Unmarshal(b, &fix); err != nil {
			return fmt.Errorf("parsing fixture: %w", err)
		}

		src := activity.NewMemSource()
		if s := cctx.String("now"); s != "" {
			now, err := dateparse.ParseAny(s)
			if err != nil {
				return fmt.Errorf("parsing --now: %w", err)
			}
			src.Now = func() time.Time { return now }
		}
		src.Load(fix)

		svc, err := setup(cctx, src)
		if err != nil {
			return err
		}
		defer svc.shutdown()
		svc.resources.Now = src.Now

		g, err := svc.build(ctx, cctx.Args().First())
		if err != nil {
			return err
		}

		dispatchers := engine.MultiDispatcher{&engine.LogDispatcher{Logger: svc.logger}}
		if u := cctx.String("slack-webhook-url"); u != "" {
			dispatchers = append(dispatchers, &engine.SlackDispatcher{SlackWebhookURL: u})
		}
		eng := engine.Engine{
			Logger:     svc.logger,
			Graph:      g,
			Resources:  svc.resources,
			Community:  cctx.String("community"),
			Dispatcher: dispatchers,
			DryRun:     cctx.Bool("dry-run"),
			Now:        src.Now,
		}

		want := make(map[string]bool)
		for _, id := range cctx.StringSlice("item") {
			want[id] = true
		}
		var results []*engine.Result
		for i := range fix.Items {
			item := &fix.Items[i]
			if len(want) > 0 && !want[item.ID] {
				continue
			}
			res, err := eng.Evaluate(ctx, item)
			if err != nil {
				// failures only affect this item
				svc.logger.Error("evaluation failed", "item", item.ID, "err", err)
			}
			results = append(results, res)
		}
		return printJSON(results)
	},
}

// shared wiring for both commands
type service struct {
	logger    *slog.Logger
	resources *resources.Cache
	builder   *graph.Builder
	shutdown  func()
}

func setup(cctx *cli.Context, src *activity.MemSource) (*service, error) {
	logger := configLogger(cctx.String("log-level"))
	shutdown := configOTEL("policyd")

	if addr := cctx.String("metrics-listen"); addr != "" {
		go func() {
			if err := runMetrics(addr); err != nil {
				logger.Error("failed to start metrics endpoint", "error", err)
			}
		}()
	}

	var store cachestore.CacheStore
	ttl := cctx.Duration("cache-ttl")
	if u := cctx.String("redis-url"); u != "" {
		rcs, err := cachestore.NewRedisCacheStore(u, ttl)
		if err != nil {
			shutdown()
			return nil, fmt.Errorf("initializing redis cachestore: %w", err)
		}
		store = rcs
	} else {
		store = cachestore.NewMemCacheStore(0, ttl)
	}

	community := cctx.String("community")
	var pages fragment.PageSource = src
	if dir := cctx.String("pages-dir"); dir != "" {
		pages = &dirPages{Dir: dir, Fallback: src}
	}
	fetcher := &fragment.Router{
		URL:   fragment.NewHTTPFetcher(),
		Named: &fragment.PageFetcher{Pages: pages, DefaultScope: community},
	}
	res := resources.New(src, store, fetcher, community, resources.DefaultConfig(), logger)

	return &service{
		logger:    logger,
		resources: res,
		builder:   graph.NewBuilder(hydrate.NewHydrator(res, logger), logger),
		shutdown:  shutdown,
	}, nil
}

// Builds a policy from a local file, or from a url: or wiki: reference.
func (s *service) build(ctx context.Context, arg string) (*graph.Graph, error) {
	if arg == "" {
		return nil, fmt.Errorf("a policy document is required")
	}
	ref, err := fragment.ClassifyString(arg)
	if err != nil {
		return nil, err
	}
	if ref.Kind != fragment.KindNone {
		return s.builder.Build(ctx, arg)
	}
	b, err := os.ReadFile(arg)
	if err != nil {
		return nil, err
	}
	raw, _, err := policy.Parse(b, policy.DetectFormat("", arg))
	if err != nil {
		return nil, err
	}
	return s.builder.Build(ctx, raw)
}

func configLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "error":
		lvl = slog.LevelError
	case "warn":
		lvl = slog.LevelWarn
	case "debug":
		lvl = slog.LevelDebug
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
	return logger
}

func runMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
