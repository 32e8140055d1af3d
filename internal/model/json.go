package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeJSON parses a JSON model. Unknown top-level fields are rejected.
func DecodeJSON(data []byte) (*Raw, error) {
	var raw Raw
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON model: %w", err)
	}
	raw.Normalize()
	return &raw, nil
}

// eachField walks a JSON object in document order.
func eachField(data []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

// writeField appends `"key":value` to buf, preceded by a comma if needed.
func writeField(buf *bytes.Buffer, first bool, key string, value any) error {
	if !first {
		buf.WriteByte(',')
	}
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// UnmarshalJSON decodes an object of state name to attributes in order.
func (s *States) UnmarshalJSON(data []byte) error {
	var out States
	err := eachField(data, func(key string, value json.RawMessage) error {
		decl := StateDecl{}
		if string(value) != "null" {
			if err := json.Unmarshal(value, &decl); err != nil {
				return fmt.Errorf("state %s: %w", key, err)
			}
		}
		decl.Name = key
		out = append(out, decl)
		return nil
	})
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// MarshalJSON encodes states as an ordered object.
func (s States) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range s {
		if err := writeField(&buf, i == 0, d.Name, d); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of origin to transition list in order.
func (st *StateTransitions) UnmarshalJSON(data []byte) error {
	var out StateTransitions
	err := eachField(data, func(key string, value json.RawMessage) error {
		origin := OriginTransitions{Origin: key}
		if err := json.Unmarshal(value, &origin.Transitions); err != nil {
			return fmt.Errorf("transitions of %s: %w", key, err)
		}
		out = append(out, origin)
		return nil
	})
	if err != nil {
		return err
	}
	*st = out
	return nil
}

// MarshalJSON encodes the transition table as an ordered object.
func (st StateTransitions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, o := range st {
		ts := o.Transitions
		if ts == nil {
			ts = []TransitionDecl{}
		}
		if err := writeField(&buf, i == 0, o.Origin, ts); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts an array of names or one comma-separated string.
func (n *NameList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = splitNames(s)
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("expected a name or a list of names: %w", err)
	}
	*n = names
	return nil
}

// UnmarshalJSON accepts a bool or a string.
func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected a boolean: %w", err)
	}
	*f = parseFlag(s)
	return nil
}
