package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/policy/fragment"
)

// Wiki pages stored as files, at <Dir>/<scope>/<path>. Pages missing on disk are looked up in Fallback, if set.
type dirPages struct {
	Dir      string
	Fallback fragment.PageSource
}

func (d *dirPages) GetPage(ctx context.Context, scope, path string) (string, error) {
	clean := filepath.Clean("/" + strings.Trim(path, "/"))
	name := filepath.Join(d.Dir, strings.ToLower(scope), filepath.FromSlash(clean))
	b, err := os.ReadFile(name)
	switch {
	case err == nil:
		return string(b), nil
	case errors.Is(err, fs.ErrNotExist):
		if d.Fallback != nil {
			return d.Fallback.GetPage(ctx, scope, path)
		}
		return "", fmt.Errorf("%w: page %s in %s", policy.ErrNotFound, path, scope)
	case errors.Is(err, fs.ErrPermission):
		return "", fmt.Errorf("%w: page %s in %s", policy.ErrForbidden, path, scope)
	default:
		return "", fmt.Errorf("%w: reading page %s: %w", policy.ErrFetch, path, err)
	}
}
