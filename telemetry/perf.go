package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one batch run.
const (
	PhaseSimulate  = "simulate"
	PhaseAggregate = "aggregate"
	PhaseRecord    = "record" // trajectory CSV and archive writes
	PhaseReset     = "reset"
)

var phases = []string{PhaseSimulate, PhaseAggregate, PhaseRecord, PhaseReset}

// PerfSample holds timing data for a single run.
type PerfSample struct {
	RunDuration time.Duration
	WalkerSteps int // accepted steps summed over every walker
	Phases      map[string]time.Duration
}

// PerfCollector tracks run timings over a rolling window, plus totals for
// the whole batch.
type PerfCollector struct {
	windowSize  int
	samples     []PerfSample
	writeIndex  int
	sampleCount int

	totalRuns     int
	totalSteps    int
	totalDuration time.Duration

	currentPhases map[string]time.Duration
	runStart      time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a collector averaging over the last windowSize runs.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 20
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartRun begins timing a run.
func (p *PerfCollector) StartRun() {
	p.runStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase ends the previous phase, if any, and begins timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndRun finishes timing the current run and records the sample together
// with the number of walker steps the run accepted.
func (p *PerfCollector) EndRun(walkerSteps int) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	d := now.Sub(p.runStart)
	p.samples[p.writeIndex] = PerfSample{
		RunDuration: d,
		WalkerSteps: walkerSteps,
		Phases:      p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	p.totalRuns++
	p.totalSteps += walkerSteps
	p.totalDuration += d
}

// PerfStats holds aggregated timing statistics. Durations, rates and phase
// shares cover the window; Runs, WalkerSteps and Elapsed the whole batch.
type PerfStats struct {
	Runs        int
	WalkerSteps int
	Elapsed     time.Duration

	AvgRunDuration time.Duration
	MinRunDuration time.Duration
	MaxRunDuration time.Duration

	// Phase share of run time, in percent
	PhasePct map[string]float64

	RunsPerSecond  float64
	StepsPerSecond float64 // accepted walker steps
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	stats := PerfStats{
		Runs:        p.totalRuns,
		WalkerSteps: p.totalSteps,
		Elapsed:     p.totalDuration,
		PhasePct:    make(map[string]float64),
	}
	if p.sampleCount == 0 {
		return stats
	}

	var total time.Duration
	steps := 0
	phaseSum := make(map[string]time.Duration)
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.RunDuration
		steps += s.WalkerSteps
		if i == 0 || s.RunDuration < stats.MinRunDuration {
			stats.MinRunDuration = s.RunDuration
		}
		if s.RunDuration > stats.MaxRunDuration {
			stats.MaxRunDuration = s.RunDuration
		}
		for phase, d := range s.Phases {
			phaseSum[phase] += d
		}
	}

	stats.AvgRunDuration = total / time.Duration(p.sampleCount)
	if total > 0 {
		for phase, sum := range phaseSum {
			stats.PhasePct[phase] = float64(sum) / float64(total) * 100
		}
		stats.StepsPerSecond = float64(steps) / total.Seconds()
	}
	if stats.AvgRunDuration > 0 {
		stats.RunsPerSecond = float64(time.Second) / float64(stats.AvgRunDuration)
	}
	return stats
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("runs", s.Runs),
		slog.Int("walker_steps", s.WalkerSteps),
		slog.Duration("elapsed", s.Elapsed),
		slog.Int64("avg_run_us", s.AvgRunDuration.Microseconds()),
		slog.Int64("min_run_us", s.MinRunDuration.Microseconds()),
		slog.Int64("max_run_us", s.MaxRunDuration.Microseconds()),
		slog.Float64("runs_per_sec", s.RunsPerSecond),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}
