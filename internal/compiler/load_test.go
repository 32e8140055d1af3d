package compiler

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// LoadRaw / LoadFile
// =============================================================================

func TestLoadFile_Formats(t *testing.T) {
	for _, name := range []string{"linear.yaml", "linear.json", "linear.cue"} {
		t.Run(name, func(t *testing.T) {
			m, err := LoadFile(filepath.Join("testdata", name))
			require.NoError(t, err)

			assert.Equal(t, "Linear", m.Name)
			assert.Equal(t, []string{"AB", "BC"}, m.TransitionNames())
			assert.Equal(t, "A, B, C", m.StateNamesFromMask(1|2|4))
			assert.Equal(t, "A", m.StartState)
			assert.Equal(t, uint64(4), m.TerminalMask)
		})
	}
}

func TestLoadRaw_YAMLAndJSONAgree(t *testing.T) {
	y, err := LoadRaw(filepath.Join("testdata", "linear.yaml"))
	require.NoError(t, err)
	j, err := LoadRaw(filepath.Join("testdata", "linear.json"))
	require.NoError(t, err)

	assert.Equal(t, y, j)

	my, err := Compile(y)
	require.NoError(t, err)
	mj, err := Compile(j)
	require.NoError(t, err)
	assert.Equal(t, my.Hash, mj.Hash)
}

func TestLoadRaw_Errors(t *testing.T) {
	_, err := LoadRaw(filepath.Join("testdata", "linear.toml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, err.Error(), `unsupported model format ".toml"`)

	_, err = LoadRaw(filepath.Join("testdata", "missing.yaml"))
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadFile_CompileError(t *testing.T) {
	_, err := LoadFile(filepath.Join("testdata", "broken.yaml"))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrTerminalHasTransitions))
}
