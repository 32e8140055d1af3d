package testutil

import (
	"embed"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stateengine/internal/model"
)

//go:embed models/*.yaml
var models embed.FS

// Model names available from ModelYAML and RawModel.
const (
	Pipeline  = "pipeline"
	ForkCombo = "forkcombo"
	Reference = "reference"
	IdleWait  = "idlewait"
	SyncCombo = "synccombo"
	Linear    = "linear"
	Loop      = "loop"
)

// ModelYAML returns the YAML source of a fixture model.
func ModelYAML(t testing.TB, name string) []byte {
	t.Helper()
	data, err := models.ReadFile("models/" + name + ".yaml")
	require.NoError(t, err, "fixture model %s", name)
	return data
}

// RawModel decodes a fixture model.
func RawModel(t testing.TB, name string) *model.Raw {
	t.Helper()
	raw, err := model.DecodeYAML(ModelYAML(t, name))
	require.NoError(t, err, "decode fixture model %s", name)
	return raw
}
