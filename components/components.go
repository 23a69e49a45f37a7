// Package components defines ECS components for simulated walkers.
package components

import (
	"github.com/pthm-cable/randwalk/geom"
	"github.com/pthm-cable/randwalk/policy"
)

// Identity names a walker. Ordinal counts walkers of the same kind, from 1.
type Identity struct {
	Name    string
	Kind    string
	Ordinal int
}

// Motion holds a walker's current position and the position before its
// last accepted step.
type Motion struct {
	Pos  geom.Vec
	Prev geom.Vec
}

// Mover carries the walker's movement policy.
type Mover struct {
	Policy policy.Policy
}

// Track accumulates a walker's telemetry since the last reset.
type Track struct {
	Trajectory []geom.Vec // one entry per accepted step
	Crossings  []int      // running Y-axis crossing count after each step
	EscapeStep int        // first step beyond the escape radius, 0 if none
	Truncated  bool       // a run stopped early on retry exhaustion
	Attempts   int        // rejected candidates, summed over runs
}

// Clear drops recorded telemetry while keeping allocated capacity.
func (t *Track) Clear() {
	t.Trajectory = t.Trajectory[:0]
	t.Crossings = t.Crossings[:0]
	t.EscapeStep = 0
	t.Truncated = false
	t.Attempts = 0
}
