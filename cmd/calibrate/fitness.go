package main

import (
	"io"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/randwalk/config"
	"github.com/pthm-cable/randwalk/policy"
	"github.com/pthm-cable/randwalk/sim"
	"github.com/pthm-cable/randwalk/telemetry"
)

// failedFitness is returned when an evaluation cannot run at all.
const failedFitness = 1e9

// FitnessEvaluator simulates a biased walker and scores how close its mean
// escape step is to the target.
type FitnessEvaluator struct {
	params *ParamVector
	base   *config.Config
	seeds  []uint64
	target float64
	runs   int
	steps  int

	mu         sync.Mutex
	lastEscape float64 // mean escape step of the most recent evaluation
	lastNever  float64 // fraction of runs that never escaped
}

// NewFitnessEvaluator creates a new evaluator. Obstacles and simulation
// limits come from base.
func NewFitnessEvaluator(params *ParamVector, base *config.Config, seeds []uint64, target float64, runs, steps int) *FitnessEvaluator {
	return &FitnessEvaluator{
		params: params,
		base:   base,
		seeds:  seeds,
		target: target,
		runs:   runs,
		steps:  steps,
	}
}

// Last returns the mean escape step and never-escaped fraction of the most
// recent evaluation.
func (fe *FitnessEvaluator) Last() (escape, never float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastEscape, fe.lastNever
}

// seedResult holds the escape outcome of one seed.
type seedResult struct {
	escapeSum float64
	escaped   int
	never     int
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	params := fe.params.Params(x)

	results := make([]seedResult, len(fe.seeds))
	var g errgroup.Group
	for i, seed := range fe.seeds {
		g.Go(func() error {
			r, err := fe.runSeed(params, seed)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("evaluation failed", "error", err)
		return failedFitness
	}

	var total seedResult
	for _, r := range results {
		total.escapeSum += r.escapeSum
		total.escaped += r.escaped
		total.never += r.never
	}

	var mean *float64
	if total.escaped > 0 {
		m := total.escapeSum / float64(total.escaped)
		mean = &m
	}
	neverFrac := float64(total.never) / float64(total.escaped+total.never)

	fe.mu.Lock()
	if mean != nil {
		fe.lastEscape = *mean
	} else {
		fe.lastEscape = math.NaN()
	}
	fe.lastNever = neverFrac
	fe.mu.Unlock()

	return computeFitness(mean, neverFrac, fe.target)
}

// runSeed runs every simulation for one seed with a fresh engine.
func (fe *FitnessEvaluator) runSeed(params map[string]float64, seed uint64) (seedResult, error) {
	reg, _ := fe.base.Registry()
	p, err := policy.New(policy.KindBiased, params)
	if err != nil {
		return seedResult{}, err
	}

	engine := sim.New(reg,
		sim.WithSeed(seed),
		sim.WithMaxAttempts(fe.base.Simulation.MaxAttempts),
		sim.WithEscapeRadius(fe.base.Simulation.EscapeRadius),
		sim.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	name, err := engine.AddWalker(p)
	if err != nil {
		return seedResult{}, err
	}

	agg := telemetry.NewAggregator()
	for range fe.runs {
		run, err := engine.Simulate(fe.steps)
		if err != nil {
			return seedResult{}, err
		}
		agg.AddRun(run)
		engine.Reset()
	}

	stats := agg.EscapeRadius()[name]
	steps := agg.EscapeSteps(name)
	var sum float64
	for _, s := range steps {
		sum += s
	}
	return seedResult{escapeSum: sum, escaped: len(steps), never: stats.ZeroCount}, nil
}

// computeFitness is the squared relative error of the mean escape step
// plus the fraction of runs that never escaped. No escape at all counts as
// a relative error of 1.
func computeFitness(mean *float64, neverFrac, target float64) float64 {
	rel := 1.0
	if mean != nil {
		rel = (*mean - target) / target
	}
	return rel*rel + neverFrac
}
