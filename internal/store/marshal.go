package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/stateengine/internal/compiler"
	"github.com/roach88/stateengine/internal/engine"
)

// marshalNames converts transition names to JSON TEXT for storage.
// A nil slice is stored as "[]".
func marshalNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(names); err != nil {
		return "", fmt.Errorf("marshal transition names: %w", err)
	}
	// Encoder adds a trailing newline
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalNames parses JSON TEXT written by marshalNames. An empty list
// reads back as nil, matching engine.Step for null transitions.
func unmarshalNames(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal transition names: %w", err)
	}
	return names, nil
}

// maskToDB stores a mask with the same bits as a signed INTEGER.
func maskToDB(m uint64) int64 {
	return int64(m)
}

// maskFromDB reverses maskToDB.
func maskFromDB(v int64) uint64 {
	return uint64(v)
}

// errorFields extracts the code and message stored for a failed run.
func errorFields(err error) (code, msg string) {
	if err == nil {
		return "", ""
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code), err.Error()
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ce.Code, err.Error()
	}
	return "", err.Error()
}
