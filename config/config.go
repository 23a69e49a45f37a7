// Package config provides configuration loading and access for the simulator.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/randwalk/geom"
	"github.com/pthm-cable/randwalk/obstacle"
	"github.com/pthm-cable/randwalk/policy"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	// ErrInvalid wraps fatal configuration problems.
	ErrInvalid = errors.New("invalid configuration")
	// ErrNoWalkers is returned when no walker could be configured.
	ErrNoWalkers = errors.New("no walkers configured")
	// ErrMissingCount marks a walker entry without a count.
	ErrMissingCount = errors.New("walker entry has no count")
)

// Config holds all simulator configuration parameters.
type Config struct {
	Simulation  SimulationConfig `yaml:"simulation"`
	Walkers     []WalkerConfig   `yaml:"walkers"`
	Barriers    []BarrierConfig  `yaml:"barriers"`
	PortalGates []PortalConfig   `yaml:"portal_gates"`
	Output      OutputConfig     `yaml:"output"`
	Logging     LoggingConfig    `yaml:"logging"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig controls the batch of runs.
type SimulationConfig struct {
	NumSimulations int     `yaml:"num_simulations"`
	NumSteps       int     `yaml:"num_steps"`
	MaxAttempts    int     `yaml:"max_attempts"`
	Seed           uint64  `yaml:"seed"`
	Parallel       bool    `yaml:"parallel"`
	EscapeRadius   float64 `yaml:"escape_radius"`
}

// WalkerConfig adds Count walkers of one kind. Count is required.
type WalkerConfig struct {
	Kind   string             `yaml:"kind"`
	Count  *int               `yaml:"count"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// BarrierConfig describes an axis-aligned box. Z and Depth are given
// together for a 3D box; without them the box spans every Z.
type BarrierConfig struct {
	Name   string   `yaml:"name"`
	X      float64  `yaml:"x"`
	Y      float64  `yaml:"y"`
	Width  float64  `yaml:"width"`
	Height float64  `yaml:"height"`
	Z      *float64 `yaml:"z,omitempty"`
	Depth  *float64 `yaml:"depth,omitempty"`
}

// PortalConfig is a box that teleports walkers to its destination.
type PortalConfig struct {
	BarrierConfig `yaml:",inline"`
	DestX         float64  `yaml:"dest_x"`
	DestY         float64  `yaml:"dest_y"`
	DestZ         *float64 `yaml:"dest_z,omitempty"`
}

// OutputConfig holds output paths. Empty paths disable that output.
type OutputConfig struct {
	StatsPath       string `yaml:"stats_path"`
	SeriesCSV       string `yaml:"series_csv"`
	TrajectoriesCSV string `yaml:"trajectories_csv"`
	Archive         string `yaml:"archive"`
}

// LoggingConfig selects the log level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	LogLevel     slog.Level
	TotalWalkers int // sum of walker counts
}

// ItemError reports a problem with one entry of a list section. The batch
// continues without the entry.
type ItemError struct {
	Section string // walkers, barriers or portal_gates
	Index   int
	Name    string
	Err     error
}

func (e *ItemError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s[%d] %q: %v", e.Section, e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("%s[%d]: %v", e.Section, e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML or JSON file, merging with embedded
// defaults. If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return Parse(data)
}

// Parse overlays data on the embedded defaults.
func Parse(data []byte) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Unmarshal into same struct - only overwrites fields present in data
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return fmt.Errorf("%w: logging.level %q", ErrInvalid, c.Logging.Level)
	}
	c.Derived.LogLevel = level

	c.Derived.TotalWalkers = 0
	for _, w := range c.Walkers {
		c.Derived.TotalWalkers += w.count()
	}
	return nil
}

func (w WalkerConfig) count() int {
	if w.Count == nil {
		return 0
	}
	return max(*w.Count, 0)
}

// Validate checks the settings that no run can proceed without.
func (c *Config) Validate() error {
	var errs []error
	if c.Simulation.NumSimulations < 1 {
		errs = append(errs, fmt.Errorf("simulation.num_simulations must be at least 1, got %d", c.Simulation.NumSimulations))
	}
	if c.Simulation.NumSteps < 1 {
		errs = append(errs, fmt.Errorf("simulation.num_steps must be at least 1, got %d", c.Simulation.NumSteps))
	}
	if c.Simulation.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("simulation.max_attempts must be at least 1, got %d", c.Simulation.MaxAttempts))
	}
	if c.Simulation.EscapeRadius <= 0 {
		errs = append(errs, fmt.Errorf("simulation.escape_radius must be positive, got %v", c.Simulation.EscapeRadius))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	if len(c.Walkers) == 0 {
		return ErrNoWalkers
	}
	return nil
}

// Policies builds one policy per configured walker, expanding counts.
// Entries that fail are reported as *ItemError and skipped.
func (c *Config) Policies() ([]policy.Policy, []error) {
	var (
		out  []policy.Policy
		errs []error
	)
	for i, w := range c.Walkers {
		if w.Count == nil {
			errs = append(errs, &ItemError{Section: "walkers", Index: i, Name: w.Kind, Err: ErrMissingCount})
			continue
		}
		if *w.Count < 0 {
			errs = append(errs, &ItemError{Section: "walkers", Index: i, Name: w.Kind,
				Err: fmt.Errorf("count must not be negative, got %d", *w.Count)})
			continue
		}
		built := make([]policy.Policy, 0, w.count())
		var err error
		for range w.count() {
			var p policy.Policy
			if p, err = policy.New(w.Kind, w.Params); err != nil {
				break
			}
			built = append(built, p)
		}
		if err != nil {
			errs = append(errs, &ItemError{Section: "walkers", Index: i, Name: w.Kind, Err: err})
			continue
		}
		out = append(out, built...)
	}
	return out, errs
}

// Box returns the geometry of the entry.
func (b BarrierConfig) Box() (geom.Box, error) {
	if (b.Z == nil) != (b.Depth == nil) {
		return geom.Box{}, errors.New("z and depth must be given together")
	}
	if b.Z != nil {
		return geom.NewBox3D(b.X, b.Y, *b.Z, b.Width, b.Height, *b.Depth), nil
	}
	return geom.NewBox2D(b.X, b.Y, b.Width, b.Height), nil
}

// Dest returns the teleport destination. Z defaults to 0.
func (p PortalConfig) Dest() geom.Vec {
	dest := geom.Vec{X: p.DestX, Y: p.DestY}
	if p.DestZ != nil {
		dest.Z = *p.DestZ
	}
	return dest
}

// Registry builds the obstacle registry, barriers first. Entries the
// registry rejects are reported as *ItemError and skipped.
func (c *Config) Registry() (*obstacle.Registry, []error) {
	reg := obstacle.NewRegistry()
	var errs []error
	for i, b := range c.Barriers {
		box, err := b.Box()
		if err == nil {
			err = reg.AddBarrier(b.Name, box)
		}
		if err != nil {
			errs = append(errs, &ItemError{Section: "barriers", Index: i, Name: b.Name, Err: err})
		}
	}
	for i, p := range c.PortalGates {
		box, err := p.Box()
		if err == nil {
			err = reg.AddPortal(p.Name, box, p.Dest())
		}
		if err != nil {
			errs = append(errs, &ItemError{Section: "portal_gates", Index: i, Name: p.Name, Err: err})
		}
	}
	return reg, errs
}

// YAML returns the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
