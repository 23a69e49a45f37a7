package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/randwalk/geom"
	"github.com/pthm-cable/randwalk/obstacle"
	"github.com/pthm-cable/randwalk/policy"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Simulation.NumSimulations)
	assert.Equal(t, 1000, cfg.Simulation.NumSteps)
	assert.Equal(t, 1000, cfg.Simulation.MaxAttempts)
	assert.Equal(t, 10.0, cfg.Simulation.EscapeRadius)
	assert.Equal(t, "stats.json", cfg.Output.StatsPath)
	assert.Equal(t, slog.LevelInfo, cfg.Derived.LogLevel)
	assert.Empty(t, cfg.Walkers)

	// Defaults alone have no walkers.
	assert.ErrorIs(t, cfg.Validate(), ErrNoWalkers)
}

const sampleYAML = `
simulation:
  num_simulations: 5
  num_steps: 50
  seed: 42
walkers:
  - kind: BiasedWalker
    count: 2
    params: {up_prob: 1, down_prob: 1, left_prob: 1, right_prob: 1, to_origin_prob: 2}
  - kind: grid
    count: 1
  - kind: NoSuchWalker
    count: 1
  - kind: one_unit
    count: 1
    params: {speed: 3}
barriers:
  - {name: wall, x: 2, y: -1, width: 1, height: 2}
  - {name: overlap, x: 2.5, y: 0, width: 1, height: 1}
  - {name: origin, x: -1, y: -1, width: 2, height: 2}
  - {name: slab, x: 5, y: 5, width: 1, height: 1, z: 0, depth: 1}
  - {name: half, x: 8, y: 8, width: 1, height: 1, z: 0}
portal_gates:
  - {name: gate, x: -3, y: -1, width: 0.5, height: 2, dest_x: 20, dest_y: 20}
  - {name: blocked, x: -6, y: -1, width: 0.5, height: 2, dest_x: 2.5, dest_y: 0}
logging:
  level: debug
  format: text
`

func TestOverlayAndItemErrors(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Simulation.NumSimulations)
	assert.Equal(t, 1000, cfg.Simulation.MaxAttempts, "unset fields keep defaults")
	assert.Equal(t, uint64(42), cfg.Simulation.Seed)
	assert.Equal(t, slog.LevelDebug, cfg.Derived.LogLevel)
	assert.Equal(t, 5, cfg.Derived.TotalWalkers)

	policies, errs := cfg.Policies()
	require.Len(t, policies, 3)
	assert.Equal(t, policy.KindBiased, policies[0].Kind())
	assert.Equal(t, policy.KindBiased, policies[1].Kind())
	assert.Equal(t, policy.KindGrid, policies[2].Kind())
	require.Len(t, errs, 2)

	var item *ItemError
	require.True(t, errors.As(errs[0], &item))
	assert.Equal(t, "walkers", item.Section)
	assert.Equal(t, 2, item.Index)
	assert.ErrorIs(t, errs[0], policy.ErrUnknownKind)
	assert.ErrorIs(t, errs[1], policy.ErrUnknownParam)

	reg, errs := cfg.Registry()
	require.Len(t, errs, 4)
	assert.ErrorIs(t, errs[0], obstacle.ErrOverlap)
	assert.ErrorIs(t, errs[1], obstacle.ErrOriginBlocked)
	require.True(t, errors.As(errs[2], &item))
	assert.Equal(t, "half", item.Name)
	assert.ErrorIs(t, errs[3], obstacle.ErrDestinationBlocked)

	barriers := reg.Barriers()
	require.Len(t, barriers, 2)
	assert.Equal(t, "wall", barriers[0].Name)
	assert.True(t, barriers[1].Box.Is3D())
	portals := reg.Portals()
	require.Len(t, portals, 1)
	assert.Equal(t, geom.Vec{X: 20, Y: 20}, portals[0].Dest)
}

func TestJSONConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.json")
	doc := `{"simulation": {"num_simulations": 2, "num_steps": 10}, ` +
		`"walkers": [{"kind": "RandomStepWalker", "count": 3}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	policies, errs := cfg.Policies()
	assert.Empty(t, errs)
	assert.Len(t, policies, 3)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"zero simulations", func(c *Config) { c.Simulation.NumSimulations = 0 }, ErrInvalid},
		{"zero steps", func(c *Config) { c.Simulation.NumSteps = 0 }, ErrInvalid},
		{"zero attempts", func(c *Config) { c.Simulation.MaxAttempts = 0 }, ErrInvalid},
		{"negative radius", func(c *Config) { c.Simulation.EscapeRadius = -1 }, ErrInvalid},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalid},
		{"no walkers", func(c *Config) { c.Walkers = nil }, ErrNoWalkers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			one := 1
			cfg.Walkers = []WalkerConfig{{Kind: "grid", Count: &one}}
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBadLogLevel(t *testing.T) {
	_, err := Parse([]byte("logging: {level: loud}"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNegativeCount(t *testing.T) {
	cfg, err := Parse([]byte("walkers: [{kind: grid, count: -1}]"))
	require.NoError(t, err)
	policies, errs := cfg.Policies()
	assert.Empty(t, policies)
	require.Len(t, errs, 1)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Simulation, back.Simulation)
	assert.Equal(t, cfg.Walkers, back.Walkers)
	assert.Equal(t, cfg.Barriers, back.Barriers)
	assert.Equal(t, cfg.PortalGates, back.PortalGates)
}

func TestWalkerCount(t *testing.T) {
	cfg, err := Parse([]byte("walkers: [{kind: grid}, {kind: grid, count: 0}, {kind: random_step, count: 2}]"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Derived.TotalWalkers)

	policies, errs := cfg.Policies()
	require.Len(t, policies, 2)
	assert.Equal(t, policy.KindRandomStep, policies[0].Kind())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMissingCount)
	var item *ItemError
	require.True(t, errors.As(errs[0], &item))
	assert.Equal(t, 0, item.Index)
}
