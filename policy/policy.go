// Package policy defines walker movement policies.
//
// A policy turns the walker's current and previous positions into exactly one
// candidate next position. Policies may consume randomness from the generator
// they are handed but never look at other walkers.
package policy

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/randwalk/geom"
)

// State is what a policy may observe about its walker.
type State struct {
	Pos  geom.Vec // current position
	Prev geom.Vec // position before the last accepted step
}

// Displacement returns the last accepted move.
func (s State) Displacement() geom.Vec {
	return geom.Vec{X: s.Pos.X - s.Prev.X, Y: s.Pos.Y - s.Prev.Y, Z: s.Pos.Z - s.Prev.Z}
}

// Policy produces candidate positions for a walker.
type Policy interface {
	// Kind is the walker type name used to derive walker names.
	Kind() string
	// Advance returns one candidate next position.
	Advance(s State, rng *rand.Rand) geom.Vec
}

// Direction is one of the four unit grid moves.
type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

var allDirections = [...]Direction{Up, Down, Left, Right}

// Delta returns the unit displacement for d.
func (d Direction) Delta() geom.Vec {
	switch d {
	case Up:
		return geom.Vec{Y: 1}
	case Down:
		return geom.Vec{Y: -1}
	case Left:
		return geom.Vec{X: -1}
	default:
		return geom.Vec{X: 1}
	}
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

// String returns the lowercase direction name.
func (d Direction) String() string {
	return [...]string{"up", "down", "left", "right"}[d]
}

// directionOf maps an exact unit grid displacement back to its direction.
func directionOf(v geom.Vec) (Direction, bool) {
	if v.Z != 0 {
		return 0, false
	}
	for _, d := range allDirections {
		if d.Delta() == v {
			return d, true
		}
	}
	return 0, false
}

// Move returns p shifted one unit in direction d.
func Move(p geom.Vec, d Direction) geom.Vec {
	delta := d.Delta()
	return geom.Vec{X: p.X + delta.X, Y: p.Y + delta.Y, Z: p.Z}
}

// polar returns p moved length units at angle theta within the XY plane.
func polar(p geom.Vec, theta, length float64) geom.Vec {
	return geom.Vec{
		X: p.X + length*math.Cos(theta),
		Y: p.Y + length*math.Sin(theta),
		Z: p.Z,
	}
}

// uniformAngle draws an angle in [0, 2π).
func uniformAngle(rng *rand.Rand) float64 {
	return distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: rng}.Rand()
}
