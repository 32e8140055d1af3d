package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/stateengine/internal/compiler"
	"github.com/roach88/stateengine/internal/store"
)

// CLI error codes. Compile errors keep their compiler code (E1xx).
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeLoadFailed   = "E004" // Model file could not be decoded
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeStore        = "E008" // Database could not be opened or read
	ErrCodeRunNotFound  = "E009" // No run with the given id
	ErrCodeNotResumable = "E010" // Run did not end idle
	ErrCodeScenario     = "E011" // Scenario file invalid or not executable
)

// loadModel reads and compiles a model file.
func loadModel(path string) (*compiler.Model, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s: %w", path, os.ErrNotExist)
	}
	return compiler.LoadFile(path)
}

// errorCode classifies an error for CLI output.
func errorCode(err error) string {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var le *compiler.LoadError
	switch {
	case errors.Is(err, os.ErrNotExist):
		return ErrCodeNotFound
	case errors.As(err, &le):
		return ErrCodeLoadFailed
	case errors.Is(err, store.ErrRunNotFound):
		return ErrCodeRunNotFound
	case errors.Is(err, store.ErrNotResumable):
		return ErrCodeNotResumable
	}
	return ErrCodeGeneric
}

// errorMessage returns the message shown next to the code.
func errorMessage(err error) string {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		if ce.Field != "" {
			return ce.Field + ": " + ce.Message
		}
		return ce.Message
	}
	return err.Error()
}
