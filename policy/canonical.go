package policy

import (
	"encoding/json"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Serializes a value to canonical JSON: object keys sorted, numbers in shortest float form, and null values or empty arrays/objects dropped from objects.
//
// Two values which differ only in key order, integer vs float representation of the same number, or omitted vs empty optional fields have identical canonical forms.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(prune(generic))
}

func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			p := prune(val)
			if isEmpty(p) {
				continue
			}
			out[k] = p
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = prune(val)
		}
		return out
	default:
		return v
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// Returns a fast, compact, deterministic hash of the canonical form of the arguments.
//
// current implementation uses murmur3 (128 bit, default seed) and hex encoding
func Hash(parts ...any) (string, error) {
	b, err := Canonical(parts)
	if err != nil {
		return "", fmt.Errorf("canonicalizing for hash: %w", err)
	}
	h1, h2 := murmur3.Sum128(b)
	return fmt.Sprintf("%016x%016x", h1, h2), nil
}

// Deep structural equality based on canonical form.
func StructurallyEqual(a, b any) (bool, error) {
	ca, err := Canonical(a)
	if err != nil {
		return false, err
	}
	cb, err := Canonical(b)
	if err != nil {
		return false, err
	}
	return string(ca) == string(cb), nil
}

// Canonical identity of a rule instance: everything which affects its outcome, and nothing else (in particular, not its name).
type Premise struct {
	Kind     string                      `json:"kind"`
	Config   map[string]any              `json:"config,omitempty"`
	AuthorIs *FilterSpec[AuthorCriteria] `json:"authorIs,omitempty"`
	ItemIs   *FilterSpec[ItemCriteria]   `json:"itemIs,omitempty"`
}

// Builds the premise of a rule whose filters have already been composed. Criteria names are stripped, so a named criteria and an identical anonymous one produce the same premise.
func NewPremise(r RuleConfig) Premise {
	return Premise{
		Kind:     r.Kind,
		Config:   r.Config,
		AuthorIs: AnonymousFilter(r.AuthorIs),
		ItemIs:   AnonymousFilter(r.ItemIs),
	}
}

func (p Premise) Hash() (string, error) {
	return Hash(p)
}
