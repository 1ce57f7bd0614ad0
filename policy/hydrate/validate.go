package hydrate

import (
	"fmt"

	"github.com/bluesky-social/modpolicy/policy"
	"github.com/bluesky-social/modpolicy/policy/fragment"
)

func schemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", policy.ErrSchemaValidation, fmt.Sprintf(format, args...))
}

// Fetched fragments at document/run/check level must be objects, or arrays of objects. Literal data is checked by the caller.
func validateObjects(level string) fragment.ValidateFunc {
	return func(data any, fetched bool) error {
		if !fetched {
			return nil
		}
		switch t := data.(type) {
		case map[string]any:
			return nil
		case []any:
			for _, v := range t {
				if _, ok := v.(map[string]any); !ok {
					return schemaErrorf("%s fragment must contain only objects", level)
				}
			}
			return nil
		}
		return schemaErrorf("%s fragment must be an object or an array of objects", level)
	}
}

// Fetched fragments at rule/action level may also contain names.
func validateRefs(level string) fragment.ValidateFunc {
	return func(data any, fetched bool) error {
		if !fetched {
			return nil
		}
		check := func(v any) error {
			switch v.(type) {
			case map[string]any, string:
				return nil
			}
			return schemaErrorf("%s fragment entries must be names or objects", level)
		}
		if arr, ok := data.([]any); ok {
			for _, v := range arr {
				if err := check(v); err != nil {
					return err
				}
			}
			return nil
		}
		return check(data)
	}
}

// Separates child collections (which get hydrated individually) from an element's own fields.
func split(m map[string]any, keys ...string) (map[string]any, map[string]any) {
	children := make(map[string]any, len(keys))
	rest := make(map[string]any, len(m))
	for k, v := range m {
		rest[k] = v
	}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			children[k] = v
			delete(rest, k)
		}
	}
	return children, rest
}

func asList(field string, v any) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return t, nil
	}
	return nil, schemaErrorf("%s must be an array", field)
}
