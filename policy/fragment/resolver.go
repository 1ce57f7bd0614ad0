package fragment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bluesky-social/modpolicy/policy"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Called on every resolved fragment value. "fetched" is false for literal data, in which case validators conventionally do nothing; it exists so callers have a single code path.
type ValidateFunc func(data any, fetched bool) error

// Accepts anything.
func NoValidate(data any, fetched bool) error {
	return nil
}

type Resolver struct {
	Fetcher Fetcher
	Logger  *slog.Logger
}

// Resolves a fragment value in to a list of literal values.
//
// Literal objects pass through as a single-element list, and literal arrays as-is; strings without a reference prefix are literal too. References are fetched, parsed (falling back between JSON and YAML) and validated; a fetched array is returned as-is, anything else wrapped in a single-element list.
func (r *Resolver) Resolve(ctx context.Context, v any, validate ValidateFunc) ([]any, error) {
	if validate == nil {
		validate = NoValidate
	}
	ref, _, err := Classify(v)
	if err != nil {
		return nil, err
	}
	if ref.Kind == KindNone {
		if err := validate(v, false); err != nil {
			return nil, err
		}
		if arr, ok := v.([]any); ok {
			return arr, nil
		}
		return []any{v}, nil
	}

	data, err := r.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := validate(data, true); err != nil {
		return nil, fmt.Errorf("fragment %s: %w", ref, err)
	}
	if arr, ok := data.([]any); ok {
		return arr, nil
	}
	return []any{data}, nil
}

func (r *Resolver) fetch(ctx context.Context, ref Reference) (any, error) {
	ctx, span := otel.Tracer("fragment").Start(ctx, "FetchFragment")
	defer span.End()
	span.SetAttributes(attribute.String("kind", ref.Kind.String()), attribute.String("ref", ref.String()))

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if r.Fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured for %s", policy.ErrFetch, ref)
	}

	logger.Debug("fetching policy fragment", "ref", ref.String())
	fetched, err := r.Fetcher.Fetch(ctx, ref)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetching fragment %s: %w", ref, err)
	}
	data, format, err := policy.Parse(fetched.Raw, fetched.Format)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fragment %s: %w", ref, err)
	}
	logger.Debug("parsed policy fragment", "ref", ref.String(), "format", format)
	return data, nil
}
