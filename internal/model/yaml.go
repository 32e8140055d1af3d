package model

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeYAML parses a YAML model. Unknown top-level fields are rejected.
func DecodeYAML(data []byte) (*Raw, error) {
	var raw Raw
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML model: %w", err)
	}
	raw.Normalize()
	return &raw, nil
}

// UnmarshalYAML decodes a mapping of state name to attributes, keeping
// document order.
func (s *States) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: States must be a mapping", node.Line)
	}
	out := make(States, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		decl := StateDecl{Name: node.Content[i].Value}
		if err := node.Content[i+1].Decode(&decl); err != nil {
			return fmt.Errorf("state %s: %w", decl.Name, err)
		}
		decl.Name = node.Content[i].Value
		out = append(out, decl)
	}
	*s = out
	return nil
}

// UnmarshalYAML decodes a mapping of origin state to transition list,
// keeping document order.
func (st *StateTransitions) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: StateTransitions must be a mapping", node.Line)
	}
	out := make(StateTransitions, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		origin := OriginTransitions{Origin: node.Content[i].Value}
		if err := node.Content[i+1].Decode(&origin.Transitions); err != nil {
			return fmt.Errorf("transitions of %s: %w", origin.Origin, err)
		}
		out = append(out, origin)
	}
	*st = out
	return nil
}

// UnmarshalYAML accepts a sequence of names or one comma-separated string.
func (n *NameList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*n = splitNames(node.Value)
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*n = names
		return nil
	}
	return fmt.Errorf("line %d: expected a name or a list of names", node.Line)
}

// UnmarshalYAML accepts a bool or the strings "true"/"false".
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a boolean", node.Line)
	}
	*f = parseFlag(node.Value)
	return nil
}

// parseFlag treats only a case-insensitive "false" (or "0") as false.
func parseFlag(s string) Flag {
	b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return true
	}
	return Flag(b)
}

func splitNames(s string) NameList {
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil
	}
	var out NameList
	for _, p := range strings.Split(s, ",") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
