package sim

import (
	"log/slog"

	"github.com/pthm-cable/randwalk/geom"
	"github.com/pthm-cable/randwalk/obstacle"
)

// Record is one walker's result for one run.
type Record struct {
	Walker     string
	Kind       string
	Trajectory []geom.Vec // one position per accepted step
	EscapeStep int        // first step beyond the escape radius, 0 if never
	Crossings  []int      // running Y-axis crossing count after each step
	Truncated  bool       // stopped early after exhausting retries
	Attempts   int        // rejected candidates during the run
}

// Steps returns the number of accepted steps.
func (r Record) Steps() int {
	return len(r.Trajectory)
}

// Final returns the last accepted position, or the origin for an empty record.
func (r Record) Final() geom.Vec {
	if len(r.Trajectory) == 0 {
		return geom.Origin
	}
	return r.Trajectory[len(r.Trajectory)-1]
}

// Run is the outcome of one Simulate call. Records follow walker insertion order.
type Run struct {
	Index     int // 1-based run number within the engine
	Steps     int // requested steps per walker
	Records   []Record
	Obstacles obstacle.Snapshot
}

// Truncated returns the names of walkers whose run stopped early.
func (r Run) Truncated() []string {
	var names []string
	for _, rec := range r.Records {
		if rec.Truncated {
			names = append(names, rec.Walker)
		}
	}
	return names
}

// AcceptedSteps returns the accepted steps summed over every walker.
func (r Run) AcceptedSteps() int {
	n := 0
	for _, rec := range r.Records {
		n += len(rec.Trajectory)
	}
	return n
}

// LogValue implements slog.LogValuer for structured logging.
func (r Run) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("run", r.Index),
		slog.Int("steps", r.Steps),
		slog.Int("walkers", len(r.Records)),
		slog.Int("truncated", len(r.Truncated())),
		slog.Int("barriers", len(r.Obstacles.Barriers)),
		slog.Int("portal_gates", len(r.Obstacles.PortalGates)),
	)
}
