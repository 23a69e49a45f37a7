// Package sim runs walkers step by step among the obstacles of a registry.
package sim

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/randwalk/components"
	"github.com/pthm-cable/randwalk/geom"
	"github.com/pthm-cable/randwalk/obstacle"
	"github.com/pthm-cable/randwalk/policy"
)

// Engine defaults.
const (
	DefaultMaxAttempts  = 1000
	DefaultEscapeRadius = 10.0
)

var (
	// ErrNoWalkers is returned by Simulate when no walker has been added.
	ErrNoWalkers = errors.New("no walkers")
	// ErrInvalidSteps is returned by Simulate for a step count below 1.
	ErrInvalidSteps = errors.New("step count must be at least 1")
)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAttempts sets the per-step retry cap. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithEscapeRadius sets the distance whose first crossing is recorded.
func WithEscapeRadius(r float64) Option {
	return func(e *Engine) {
		if r > 0 {
			e.escapeRadius = r
		}
	}
}

// WithSeed sets the base seed for per-walker random streams.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.seed = seed }
}

// WithParallel simulates the walkers of a run concurrently.
func WithParallel(on bool) Option {
	return func(e *Engine) { e.parallel = on }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine owns the walkers and drives simulation runs.
type Engine struct {
	world *ecs.World

	walkerMap *ecs.Map4[
		components.Identity,
		components.Motion,
		components.Mover,
		components.Track,
	]
	walkerFilter *ecs.Filter4[
		components.Identity,
		components.Motion,
		components.Mover,
		components.Track,
	]

	// order preserves insertion order; byName indexes it.
	order     []ecs.Entity
	byName    map[string]ecs.Entity
	kindCount map[string]int

	obstacles *obstacle.Registry

	maxAttempts  int
	escapeRadius float64
	seed         uint64
	parallel     bool
	runs         int
	logger       *slog.Logger
}

// New creates an engine over reg. A nil registry means no obstacles.
func New(reg *obstacle.Registry, opts ...Option) *Engine {
	if reg == nil {
		reg = obstacle.NewRegistry()
	}
	world := ecs.NewWorld()
	e := &Engine{
		world: world,
		walkerMap: ecs.NewMap4[
			components.Identity,
			components.Motion,
			components.Mover,
			components.Track,
		](world),
		walkerFilter: ecs.NewFilter4[
			components.Identity,
			components.Motion,
			components.Mover,
			components.Track,
		](world),
		byName:       make(map[string]ecs.Entity),
		kindCount:    make(map[string]int),
		obstacles:    reg,
		maxAttempts:  DefaultMaxAttempts,
		escapeRadius: DefaultEscapeRadius,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Obstacles returns the engine's obstacle registry.
func (e *Engine) Obstacles() *obstacle.Registry {
	return e.obstacles
}

// AddWalker adds a walker at the origin and returns its generated name,
// the policy kind followed by its ordinal among walkers of that kind.
func (e *Engine) AddWalker(p policy.Policy) (string, error) {
	if p == nil {
		return "", errors.New("nil policy")
	}
	kind := p.Kind()
	ordinal := e.kindCount[kind] + 1
	name := fmt.Sprintf("%s%d", kind, ordinal)
	if _, taken := e.byName[name]; taken {
		return "", fmt.Errorf("walker name %q already in use", name)
	}

	ident := &components.Identity{Name: name, Kind: kind, Ordinal: ordinal}
	motion := &components.Motion{}
	mover := &components.Mover{Policy: p}
	track := &components.Track{}
	entity := e.walkerMap.NewEntity(ident, motion, mover, track)

	e.kindCount[kind] = ordinal
	e.order = append(e.order, entity)
	e.byName[name] = entity
	return name, nil
}

// Walkers returns walker names in insertion order.
func (e *Engine) Walkers() []string {
	names := make([]string, len(e.order))
	for i, entity := range e.order {
		ident, _, _, _ := e.walkerMap.Get(entity)
		names[i] = ident.Name
	}
	return names
}

// Len returns the number of walkers.
func (e *Engine) Len() int {
	return len(e.order)
}

// Position returns the walker's current position.
func (e *Engine) Position(name string) (geom.Vec, bool) {
	entity, ok := e.byName[name]
	if !ok {
		return geom.Vec{}, false
	}
	_, motion, _, _ := e.walkerMap.Get(entity)
	return motion.Pos, true
}

// Trajectory returns a copy of the positions the walker visited since the last reset.
func (e *Engine) Trajectory(name string) ([]geom.Vec, bool) {
	entity, ok := e.byName[name]
	if !ok {
		return nil, false
	}
	_, _, _, track := e.walkerMap.Get(entity)
	return append([]geom.Vec(nil), track.Trajectory...), true
}

// Track returns a copy of the walker's accumulated telemetry.
func (e *Engine) Track(name string) (components.Track, bool) {
	entity, ok := e.byName[name]
	if !ok {
		return components.Track{}, false
	}
	_, _, _, track := e.walkerMap.Get(entity)
	return components.Track{
		Trajectory: append([]geom.Vec(nil), track.Trajectory...),
		Crossings:  append([]int(nil), track.Crossings...),
		EscapeStep: track.EscapeStep,
		Truncated:  track.Truncated,
		Attempts:   track.Attempts,
	}, true
}

// Runs returns how many runs the engine has simulated.
func (e *Engine) Runs() int {
	return e.runs
}

// Reset clears every walker's telemetry and returns it to the origin.
// Walkers and obstacles are kept.
func (e *Engine) Reset() {
	query := e.walkerFilter.Query()
	for query.Next() {
		_, motion, _, track := query.Get()
		*motion = components.Motion{}
		track.Clear()
	}
}

// Simulate runs every walker for the given number of steps and returns the
// per-walker records. A walker that cannot find a barrier-free move within
// the retry cap stops early; the rest of the run continues.
func (e *Engine) Simulate(steps int) (Run, error) {
	if steps < 1 {
		return Run{}, fmt.Errorf("%w: got %d", ErrInvalidSteps, steps)
	}
	if len(e.order) == 0 {
		return Run{}, ErrNoWalkers
	}

	e.runs++
	run := Run{
		Index:     e.runs,
		Steps:     steps,
		Obstacles: e.obstacles.Snapshot(),
	}

	jobs := e.snapshotWalkers()
	records := make([]Record, len(jobs))
	if e.parallel && len(jobs) >= parallelThreshold {
		if err := e.walkParallel(jobs, steps, run.Index, records); err != nil {
			return Run{}, err
		}
	} else {
		for i, job := range jobs {
			records[i] = e.walk(job, steps, run.Index)
		}
	}

	e.applyRecords(jobs, records)
	run.Records = records

	if truncated := run.Truncated(); len(truncated) > 0 {
		e.logger.Warn("run finished with truncated walkers", "run", run.Index, "walkers", truncated)
	}
	return run, nil
}

// walkerJob captures the read-only state a walk needs.
type walkerJob struct {
	entity ecs.Entity
	name   string
	kind   string
	motion components.Motion
	policy policy.Policy
}

func (e *Engine) snapshotWalkers() []walkerJob {
	jobs := make([]walkerJob, len(e.order))
	for i, entity := range e.order {
		ident, motion, mover, _ := e.walkerMap.Get(entity)
		jobs[i] = walkerJob{
			entity: entity,
			name:   ident.Name,
			kind:   ident.Kind,
			motion: *motion,
			policy: mover.Policy,
		}
	}
	return jobs
}

// applyRecords writes run results back into the walker components.
func (e *Engine) applyRecords(jobs []walkerJob, records []Record) {
	for i, job := range jobs {
		rec := records[i]
		_, motion, _, track := e.walkerMap.Get(job.entity)

		if n := len(rec.Trajectory); n > 0 {
			motion.Pos = rec.Trajectory[n-1]
			if n > 1 {
				motion.Prev = rec.Trajectory[n-2]
			} else {
				motion.Prev = job.motion.Pos
			}
		}

		track.Trajectory = append(track.Trajectory, rec.Trajectory...)
		track.Crossings = append(track.Crossings, rec.Crossings...)
		track.EscapeStep = rec.EscapeStep
		track.Truncated = track.Truncated || rec.Truncated
		track.Attempts += rec.Attempts
	}
}
