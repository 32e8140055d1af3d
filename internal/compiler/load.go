package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/stateengine/internal/model"
)

// LoadError reports a model file that could not be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadRaw reads a model file. The format follows the extension: .yaml,
// .yml, .json or .cue. A CUE file may hold the model at its top level or
// under a "workflow" field.
func LoadRaw(path string) (*model.Raw, error) {
	var (
		raw *model.Raw
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = decodeFile(path, model.DecodeYAML)
	case ".json":
		raw, err = decodeFile(path, model.DecodeJSON)
	case ".cue":
		raw, err = loadCUE(path)
	default:
		err = fmt.Errorf("unsupported model format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return raw, nil
}

// LoadFile reads and compiles a model file.
func LoadFile(path string, opts ...Option) (*Model, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	return Compile(raw, opts...)
}

func decodeFile(path string, decode func([]byte) (*model.Raw, error)) (*model.Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func loadCUE(path string) (*model.Raw, error) {
	dir, file := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	ctx := cuecontext.New()
	instances := load.Instances([]string{file}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE: %w", inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	if wf := value.LookupPath(cue.ParsePath("workflow")); wf.Exists() {
		value = wf
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE value is not concrete: %w", err)
	}
	// CUE preserves field order when exporting, which the transition
	// table depends on.
	data, err := value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("exporting CUE value: %w", err)
	}
	return model.DecodeJSON(data)
}
