package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// modelPath returns the absolute path of a fixture model.
func modelPath(t *testing.T, name string) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("..", "testutil", "models", name+".yaml"))
	require.NoError(t, err)
	return p
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// loopIdleScenario drives the Loop model to its Wait idle state.
func loopIdleScenario(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "loop_idle.yaml", `name: loop_idle
description: "Approve on first review, then wait"
model: `+modelPath(t, "loop")+`
script:
  Review: [Approve]
expect:
  status: idle
  cycles: 4
  states: Wait
  path: [Draft, Review, Wait, Wait]
`)
}

// loopPublishScenario publishes from Wait; used to resume loopIdleScenario.
func loopPublishScenario(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "loop_publish.yaml", `name: loop_publish
description: "Publish a waiting draft"
model: `+modelPath(t, "loop")+`
script:
  Wait: [Publish]
expect:
  status: completed
  states: Done
  path: [Wait, Done]
`)
}
