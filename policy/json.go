package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decodes a generic tree (as produced by Parse) in to a typed value. Unknown object keys are rejected, except for the flat kind-specific config of rules and actions.
func Decode(data any, out any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaValidation, err)
	}
	if err := decodeStrict(b, out); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaValidation, err)
	}
	return nil
}

func decodeStrict(b []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func isJSONString(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '"'
}

// common shape of rules and actions
type flatEntity struct {
	Name     string
	Kind     string
	AuthorIs *FilterSpec[AuthorCriteria]
	ItemIs   *FilterSpec[ItemCriteria]
	Config   map[string]any
}

func decodeFlat(b []byte) (flatEntity, error) {
	var out flatEntity
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return out, err
	}
	for k, v := range raw {
		var err error
		switch k {
		case "name":
			err = json.Unmarshal(v, &out.Name)
		case "kind":
			err = json.Unmarshal(v, &out.Kind)
		case "authorIs":
			err = json.Unmarshal(v, &out.AuthorIs)
		case "itemIs":
			err = json.Unmarshal(v, &out.ItemIs)
		default:
			var val any
			err = json.Unmarshal(v, &val)
			if out.Config == nil {
				out.Config = make(map[string]any)
			}
			out.Config[k] = val
		}
		if err != nil {
			return out, fmt.Errorf("field %q: %w", k, err)
		}
	}
	return out, nil
}

func encodeFlat(f flatEntity) ([]byte, error) {
	m := make(map[string]any, len(f.Config)+4)
	for k, v := range f.Config {
		m[k] = v
	}
	if f.Name != "" {
		m["name"] = f.Name
	}
	m["kind"] = f.Kind
	if f.AuthorIs != nil {
		m["authorIs"] = f.AuthorIs
	}
	if f.ItemIs != nil {
		m["itemIs"] = f.ItemIs
	}
	return json.Marshal(m)
}

func (r *RuleConfig) UnmarshalJSON(b []byte) error {
	f, err := decodeFlat(b)
	if err != nil {
		return err
	}
	*r = RuleConfig(f)
	return nil
}

func (r RuleConfig) MarshalJSON() ([]byte, error) {
	return encodeFlat(flatEntity(r))
}

func (a *ActionConfig) UnmarshalJSON(b []byte) error {
	f, err := decodeFlat(b)
	if err != nil {
		return err
	}
	*a = ActionConfig(f)
	return nil
}

func (a ActionConfig) MarshalJSON() ([]byte, error) {
	return encodeFlat(flatEntity(a))
}

func (r *RuleRef) UnmarshalJSON(b []byte) error {
	if isJSONString(b) {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*r = RuleRef{Name: name}
		return nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return fmt.Errorf("rule must be a name or an object: %w", err)
	}
	if _, ok := probe["rules"]; ok {
		var rs RuleSetConfig
		if err := decodeStrict(b, &rs); err != nil {
			return fmt.Errorf("rule set: %w", err)
		}
		*r = RuleRef{RuleSet: &rs}
		return nil
	}
	var rc RuleConfig
	if err := json.Unmarshal(b, &rc); err != nil {
		return err
	}
	*r = RuleRef{Rule: &rc}
	return nil
}

func (r RuleRef) MarshalJSON() ([]byte, error) {
	switch {
	case r.RuleSet != nil:
		return json.Marshal(r.RuleSet)
	case r.Rule != nil:
		return json.Marshal(r.Rule)
	default:
		return json.Marshal(r.Name)
	}
}

func (a *ActionRef) UnmarshalJSON(b []byte) error {
	if isJSONString(b) {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*a = ActionRef{Name: name}
		return nil
	}
	var ac ActionConfig
	if err := json.Unmarshal(b, &ac); err != nil {
		return fmt.Errorf("action must be a name or an object: %w", err)
	}
	*a = ActionRef{Action: &ac}
	return nil
}

func (a ActionRef) MarshalJSON() ([]byte, error) {
	if a.Action != nil {
		return json.Marshal(a.Action)
	}
	return json.Marshal(a.Name)
}

func (r *CriteriaRef[T]) UnmarshalJSON(b []byte) error {
	if isJSONString(b) {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*r = CriteriaRef[T]{Name: name}
		return nil
	}
	var c T
	if err := decodeStrict(b, &c); err != nil {
		return fmt.Errorf("criteria: %w", err)
	}
	*r = CriteriaRef[T]{Criteria: &c}
	return nil
}

func (r CriteriaRef[T]) MarshalJSON() ([]byte, error) {
	if r.Criteria != nil {
		return json.Marshal(r.Criteria)
	}
	return json.Marshal(r.Name)
}

// object form of FilterSpec, without the custom decoder
type filterSpecObject[T any] struct {
	Include []CriteriaRef[T] `json:"include"`
	Exclude []CriteriaRef[T] `json:"exclude"`
}

func (s *FilterSpec[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '[':
		var include []CriteriaRef[T]
		if err := json.Unmarshal(b, &include); err != nil {
			return err
		}
		*s = FilterSpec[T]{Include: include}
	case '{':
		var obj filterSpecObject[T]
		if err := decodeStrict(b, &obj); err != nil {
			return err
		}
		*s = FilterSpec[T]{Include: obj.Include, Exclude: obj.Exclude}
	default:
		return fmt.Errorf("filter must be an array or an object with include/exclude")
	}
	return nil
}
