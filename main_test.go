package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliConfig = `
simulation: {num_simulations: 3, num_steps: 25, seed: 5}
walkers:
  - {kind: grid, count: 2}
  - {kind: nope, count: 1}
barriers:
  - {name: wall, x: 2, y: -1, width: 1, height: 2}
logging: {level: error}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cliConfig), 0644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}

func TestKinds(t *testing.T) {
	out, err := execute(t, "kinds")
	require.NoError(t, err)
	assert.Contains(t, out, "BiasedWalker")
	assert.Contains(t, out, "RandomStepWalker")
}

func TestValidate(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	out, err := execute(t, "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped: walkers[1]")
	assert.Contains(t, out, "ok: 2 walkers, 1 barriers, 0 portal gates")
}

func TestValidateDefaultsHaveNoWalkers(t *testing.T) {
	_, err := execute(t, "validate")
	assert.Error(t, err)
}

func TestRunAndReplay(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	stats := filepath.Join(dir, "stats.json")
	db := filepath.Join(dir, "runs.db")

	out, err := execute(t, "run", "--config", cfgPath, "--out", stats, "--archive", db, "--steps", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "statistics written to "+stats)

	out, err = execute(t, "replay", db)
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.NotEmpty(t, fields)
	batchID := fields[0]
	assert.Contains(t, out, "runs=3")
	assert.Contains(t, out, "steps=10")

	out, err = execute(t, "replay", db, batchID)
	require.NoError(t, err)
	assert.Contains(t, out, `"average lead count"`)

	_, err = execute(t, "replay", db, "missing-batch")
	assert.Error(t, err)
}
