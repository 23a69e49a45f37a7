// Package telemetry aggregates simulation runs into per-walker statistics
// and writes them out as JSON and CSV.
package telemetry

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/randwalk/geom"
	"github.com/pthm-cable/randwalk/sim"
)

// Mode selects how positions are averaged across runs.
type Mode uint8

const (
	// Signed averages raw coordinates. Used for distance from origin.
	Signed Mode = iota
	// Absolute averages coordinate magnitudes. Used for per-step locations
	// and distances from an axis.
	Absolute
)

func (m Mode) String() string {
	if m == Absolute {
		return "absolute"
	}
	return "signed"
}

// sample is one walker's contribution from one run.
type sample struct {
	run        string
	trajectory []geom.Vec
	escapeStep int
	crossings  []int
}

// walkerSamples holds every run recorded for one walker.
type walkerSamples struct {
	name    string
	samples []sample
}

// longest returns the length of the longest trajectory recorded.
func (w *walkerSamples) longest() int {
	n := 0
	for _, s := range w.samples {
		n = max(n, len(s.trajectory))
	}
	return n
}

// Aggregator accumulates run records and derives per-walker series.
//
// A run truncated by retry exhaustion contributes only the steps it reached:
// each per-step mean divides by the number of runs that reached that step,
// and series run to the longest trajectory seen.
type Aggregator struct {
	runs    int
	walkers []*walkerSamples // first-seen order
	index   map[string]int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{index: make(map[string]int)}
}

// AddRun folds one run into the aggregate under the id "Simulation N".
func (a *Aggregator) AddRun(run sim.Run) {
	a.runs++
	id := fmt.Sprintf("Simulation %d", a.runs)
	for _, rec := range run.Records {
		w := a.walker(rec.Walker)
		w.samples = append(w.samples, sample{
			run:        id,
			trajectory: append([]geom.Vec(nil), rec.Trajectory...),
			escapeStep: rec.EscapeStep,
			crossings:  append([]int(nil), rec.Crossings...),
		})
	}
}

func (a *Aggregator) walker(name string) *walkerSamples {
	if i, ok := a.index[name]; ok {
		return a.walkers[i]
	}
	w := &walkerSamples{name: name}
	a.index[name] = len(a.walkers)
	a.walkers = append(a.walkers, w)
	return w
}

// Runs returns the number of runs added.
func (a *Aggregator) Runs() int {
	return a.runs
}

// Walkers returns walker names in first-seen order.
func (a *Aggregator) Walkers() []string {
	names := make([]string, len(a.walkers))
	for i, w := range a.walkers {
		names[i] = w.name
	}
	return names
}

// RunIDs returns the run identifiers recorded for a walker.
func (a *Aggregator) RunIDs(name string) []string {
	i, ok := a.index[name]
	if !ok {
		return nil
	}
	ids := make([]string, len(a.walkers[i].samples))
	for j, s := range a.walkers[i].samples {
		ids[j] = s.run
	}
	return ids
}

// AveragePositions returns each walker's mean position per step.
func (a *Aggregator) AveragePositions(mode Mode) map[string][]geom.Vec {
	out := make(map[string][]geom.Vec, len(a.walkers))
	for _, w := range a.walkers {
		out[w.name] = averagePositions(w, mode)
	}
	return out
}

func averagePositions(w *walkerSamples, mode Mode) []geom.Vec {
	n := w.longest()
	sums := make([]geom.Vec, n)
	counts := make([]int, n)
	for _, s := range w.samples {
		for i, p := range s.trajectory {
			if mode == Absolute {
				p = geom.Abs(p)
			}
			sums[i] = r3.Add(sums[i], p)
			counts[i]++
		}
	}
	for i := range sums {
		sums[i] = r3.Scale(1/float64(counts[i]), sums[i])
	}
	return sums
}

// DistanceFromOrigin returns the norm of each signed average position.
func (a *Aggregator) DistanceFromOrigin() map[string][]float64 {
	out := make(map[string][]float64, len(a.walkers))
	for _, w := range a.walkers {
		avg := averagePositions(w, Signed)
		dist := make([]float64, len(avg))
		for i, p := range avg {
			dist[i] = geom.Dist(p)
		}
		out[w.name] = dist
	}
	return out
}

// DistancesFromAxis returns the distance of each absolute average position
// from the given axis line.
func (a *Aggregator) DistancesFromAxis(axis geom.Axis) map[string][]float64 {
	out := make(map[string][]float64, len(a.walkers))
	for _, w := range a.walkers {
		avg := averagePositions(w, Absolute)
		dist := make([]float64, len(avg))
		for i, p := range avg {
			dist[i] = geom.AxisDistance(p, axis)
		}
		out[w.name] = dist
	}
	return out
}

// EscapeStats summarizes when a walker first left the escape radius.
// Average is nil when no run escaped.
type EscapeStats struct {
	Average   *float64 `json:"average"`
	ZeroCount int      `json:"zero_count"`
}

// EscapeRadius returns escape statistics per walker.
func (a *Aggregator) EscapeRadius() map[string]EscapeStats {
	out := make(map[string]EscapeStats, len(a.walkers))
	for _, w := range a.walkers {
		var stats EscapeStats
		total, escaped := 0, 0
		for _, s := range w.samples {
			if s.escapeStep == 0 {
				stats.ZeroCount++
				continue
			}
			total += s.escapeStep
			escaped++
		}
		if escaped > 0 {
			avg := float64(total) / float64(escaped)
			stats.Average = &avg
		}
		out[w.name] = stats
	}
	return out
}

// EscapeSteps returns the non-zero escape steps recorded for a walker.
func (a *Aggregator) EscapeSteps(name string) []float64 {
	i, ok := a.index[name]
	if !ok {
		return nil
	}
	var steps []float64
	for _, s := range a.walkers[i].samples {
		if s.escapeStep > 0 {
			steps = append(steps, float64(s.escapeStep))
		}
	}
	return steps
}

// AveragePassedY returns the mean Y-axis crossing count per step.
func (a *Aggregator) AveragePassedY() map[string][]float64 {
	out := make(map[string][]float64, len(a.walkers))
	for _, w := range a.walkers {
		n := 0
		for _, s := range w.samples {
			n = max(n, len(s.crossings))
		}
		sums := make([]float64, n)
		counts := make([]int, n)
		for _, s := range w.samples {
			for i, c := range s.crossings {
				sums[i] += float64(c)
				counts[i]++
			}
		}
		for i := range sums {
			sums[i] /= float64(counts[i])
		}
		out[w.name] = sums
	}
	return out
}

// AverageLeads returns how many steps each walker led, per run. At each step
// index the leader is the walker whose distance from origin, summed over runs,
// is greatest; earlier walkers win ties. The leader is credited once for every
// run at that step, and tallies are divided by the run count.
func (a *Aggregator) AverageLeads() map[string]float64 {
	out := make(map[string]float64, len(a.walkers))
	for _, w := range a.walkers {
		out[w.name] = 0
	}
	if a.runs == 0 {
		return out
	}

	n := 0
	for _, w := range a.walkers {
		n = max(n, w.longest())
	}

	tally := make([]int, len(a.walkers))
	for step := 0; step < n; step++ {
		leader := -1
		best := 0.0
		for i, w := range a.walkers {
			sum, reached := 0.0, false
			for _, s := range w.samples {
				if step < len(s.trajectory) {
					sum += geom.Dist(s.trajectory[step])
					reached = true
				}
			}
			if !reached {
				continue
			}
			if leader < 0 || sum > best {
				leader, best = i, sum
			}
		}
		if leader >= 0 {
			tally[leader] += a.runs
		}
	}

	for i, w := range a.walkers {
		out[w.name] = float64(tally[i]) / float64(a.runs)
	}
	return out
}

// LogValue implements slog.LogValuer for structured logging.
func (a *Aggregator) LogValue() slog.Value {
	escape := a.EscapeRadius()
	attrs := make([]slog.Attr, 0, len(a.walkers)+1)
	attrs = append(attrs, slog.Int("runs", a.runs))
	for _, w := range a.walkers {
		dist := EscapeDistribution(a.EscapeSteps(w.name))
		attrs = append(attrs, slog.Group(w.name,
			slog.Int("never_escaped", escape[w.name].ZeroCount),
			slog.Float64("escape_p50", dist.P50),
		))
	}
	return slog.GroupValue(attrs...)
}
