package sim

import (
	"math/rand/v2"

	"github.com/pthm-cable/randwalk/geom"
	"github.com/pthm-cable/randwalk/policy"
)

// crossings counts sign changes of X, ignoring positions on the Y axis.
// The reference X starts at 0 for every run.
type crossings struct {
	lastX float64
	count int
}

func (c *crossings) observe(x float64) int {
	if x*c.lastX < 0 {
		c.count++
	}
	if x != 0 {
		c.lastX = x
	}
	return c.count
}

// walk advances one walker for up to steps accepted moves.
func (e *Engine) walk(job walkerJob, steps, run int) Record {
	rng := walkerRNG(e.seed, run, job.name)
	rec := Record{
		Walker:     job.name,
		Kind:       job.kind,
		Trajectory: make([]geom.Vec, 0, steps),
		Crossings:  make([]int, 0, steps),
	}

	pos, prev := job.motion.Pos, job.motion.Prev
	var cross crossings

	for step := 1; step <= steps; step++ {
		next, rejected, ok := e.advance(job.policy, pos, prev, rng)
		rec.Attempts += rejected
		if !ok {
			rec.Truncated = true
			e.logger.Warn("walker exhausted retries",
				"walker", job.name,
				"run", run,
				"step", step,
				"attempts", e.maxAttempts,
				"pos", pos,
			)
			break
		}

		prev, pos = pos, next
		rec.Trajectory = append(rec.Trajectory, pos)
		rec.Crossings = append(rec.Crossings, cross.observe(pos.X))
		if rec.EscapeStep == 0 && geom.Dist(pos) > e.escapeRadius {
			rec.EscapeStep = step
		}
	}
	return rec
}

// advance proposes candidates until one clears every barrier. A candidate
// whose move passes through a portal gate lands on the gate's destination.
// It returns the accepted position and the number of rejected candidates.
func (e *Engine) advance(p policy.Policy, pos, prev geom.Vec, rng *rand.Rand) (geom.Vec, int, bool) {
	state := policy.State{Pos: pos, Prev: prev}
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		cand := p.Advance(state, rng)
		if _, blocked := e.obstacles.Barrier(pos, cand); blocked {
			continue
		}
		if gate, ok := e.obstacles.Portal(pos, cand); ok {
			return gate.Dest, attempt, true
		}
		return cand, attempt, true
	}
	return pos, e.maxAttempts, false
}
