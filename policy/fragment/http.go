package fragment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bluesky-social/modpolicy/policy"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// fragments are small config documents; anything bigger is a mistake
const DefaultMaxFragmentBytes = 1 << 20

type leveledSlog struct {
	inner *slog.Logger
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l leveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (l leveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type ClientOption func(*retryablehttp.Client)

func WithMaxRetries(n int) ClientOption {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

func WithRetryWait(waitMin, waitMax time.Duration) ClientOption {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = waitMin
		c.RetryWaitMax = waitMax
	}
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *retryablehttp.Client) {
		c.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: logger})
	}
}

// HTTP client for fragment fetches, with retries on connection errors and 5xx responses (except 501).
//
// Client errors (eg, 404 or 403) are not retried: they are reported to the document author as-is.
func NewHTTPClient(options ...ClientOption) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: slog.Default().With("subsystem", "fragment-http")})
	retryClient.CheckRetry = retryPolicy

	for _, opt := range options {
		opt(retryClient)
	}

	client := retryClient.StandardClient()
	client.Timeout = 30 * time.Second
	return client
}

// wraps the default policy; rate-limit responses are left to the caller
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Fetches KindURL references over HTTP(S).
type HTTPFetcher struct {
	Client *http.Client
	// optional; shared across all fetches made with this fetcher
	Limiter   *rate.Limiter
	UserAgent string
	MaxBytes  int64
}

var _ Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:    NewHTTPClient(),
		Limiter:   rate.NewLimiter(rate.Limit(10), 5),
		UserAgent: "modpolicy",
		MaxBytes:  DefaultMaxFragmentBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref Reference) (*Fetched, error) {
	if ref.Kind != KindURL {
		return nil, fmt.Errorf("%w: http fetcher can not fetch %s reference", policy.ErrFetch, ref.Kind)
	}
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", policy.ErrFetch, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", policy.ErrConfigParse, err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	start := time.Now()
	resp, err := client.Do(req)
	fragmentFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		fragmentFetches.WithLabelValues(ref.Kind.String(), "error").Inc()
		return nil, fmt.Errorf("%w: %w", policy.ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		fragmentFetches.WithLabelValues(ref.Kind.String(), "not-found").Inc()
		return nil, fmt.Errorf("%w: %s", policy.ErrNotFound, ref.Path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		fragmentFetches.WithLabelValues(ref.Kind.String(), "forbidden").Inc()
		return nil, fmt.Errorf("%w: %s", policy.ErrForbidden, ref.Path)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		fragmentFetches.WithLabelValues(ref.Kind.String(), "error").Inc()
		return nil, fmt.Errorf("%w: HTTP status %d: %s", policy.ErrFetch, resp.StatusCode, ref.Path)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxFragmentBytes
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		fragmentFetches.WithLabelValues(ref.Kind.String(), "error").Inc()
		return nil, fmt.Errorf("%w: reading body: %w", policy.ErrFetch, err)
	}
	if int64(len(raw)) > limit {
		fragmentFetches.WithLabelValues(ref.Kind.String(), "error").Inc()
		return nil, fmt.Errorf("%w: fragment larger than %d bytes: %s", policy.ErrFetch, limit, ref.Path)
	}
	fragmentFetches.WithLabelValues(ref.Kind.String(), "ok").Inc()
	return &Fetched{
		Raw:    raw,
		Format: policy.DetectFormat(resp.Header.Get("Content-Type"), req.URL.Path),
	}, nil
}
