package policy

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Serialization format of a document or fragment.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func (f Format) other() Format {
	if f == FormatYAML {
		return FormatJSON
	}
	return FormatYAML
}

// Guesses a format from a content type and/or file path. Defaults to JSON.
func DetectFormat(contentType, location string) Format {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "yaml") || strings.Contains(ct, "yml") {
		return FormatYAML
	}
	if strings.Contains(ct, "json") {
		return FormatJSON
	}
	switch strings.ToLower(path.Ext(location)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Parses document text in to a generic tree, trying the hinted format first and falling back to the other one.
//
// Returns the format which succeeded. If both fail, the returned error (ErrConfigParse) includes both parser messages.
func Parse(raw []byte, hint Format) (any, Format, error) {
	if hint == "" {
		hint = FormatJSON
	}
	first, firstErr := parseAs(raw, hint)
	if firstErr == nil {
		return first, hint, nil
	}
	second, secondErr := parseAs(raw, hint.other())
	if secondErr == nil {
		return second, hint.other(), nil
	}
	return nil, "", fmt.Errorf("%w: could not parse as %s (%v) or as %s (%v)", ErrConfigParse, hint, firstErr, hint.other(), secondErr)
}

func parseAs(raw []byte, f Format) (any, error) {
	var out any
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return normalizeYAML(out), nil
	default:
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// YAML allows non-string mapping keys; documents only use string keys, so coerce everything to the JSON-compatible shape.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
