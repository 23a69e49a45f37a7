package policy

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/randwalk/geom"
)

// Canonical kind names. Walker names are built from these.
const (
	KindBiased        = "BiasedWalker"
	KindProbabilistic = "ProbabilisticWalker"
	KindUniformAngle  = "OneUnitRandomWalker"
	KindGrid          = "DiscreteStepWalker"
	KindNoReversal    = "NoRepeatWalker"
	KindRandomStep    = "RandomStepWalker"
)

// ErrInvalidWeights is returned when biased weights are negative or all zero.
var ErrInvalidWeights = errors.New("invalid weights")

// Weights are the relative likelihoods of each biased move.
type Weights struct {
	Up, Down, Left, Right, ToOrigin float64
}

// DefaultWeights matches an unbiased grid walk.
var DefaultWeights = Weights{Up: 0.25, Down: 0.25, Left: 0.25, Right: 0.25}

func (w Weights) slice() []float64 {
	return []float64{w.Up, w.Down, w.Left, w.Right, w.ToOrigin}
}

// Biased picks one of up, down, left, right or toward-origin by weighted draw.
// The ProbabilisticWalker kind shares this policy under its own name.
type Biased struct {
	kind  string
	probs []float64 // normalized, sums to 1
}

// NewBiased normalizes w so the weights sum to 1.
func NewBiased(w Weights) (*Biased, error) {
	return newWeighted(KindBiased, w)
}

func newWeighted(kind string, w Weights) (*Biased, error) {
	probs := w.slice()
	for _, p := range probs {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: weights must be finite and non-negative", ErrInvalidWeights)
		}
	}
	total := floats.Sum(probs)
	if total <= 0 {
		return nil, fmt.Errorf("%w: total weight must be positive", ErrInvalidWeights)
	}
	floats.Scale(1/total, probs)
	return &Biased{kind: kind, probs: probs}, nil
}

// Probabilities returns the normalized weights.
func (b *Biased) Probabilities() Weights {
	return Weights{Up: b.probs[0], Down: b.probs[1], Left: b.probs[2], Right: b.probs[3], ToOrigin: b.probs[4]}
}

func (b *Biased) Kind() string { return b.kind }

func (b *Biased) Advance(s State, rng *rand.Rand) geom.Vec {
	choice := int(distuv.NewCategorical(b.probs, rng).Rand())
	if choice < len(allDirections) {
		return Move(s.Pos, allDirections[choice])
	}
	return TowardOrigin(s.Pos)
}

// TowardOrigin moves p one unit along the unit vector pointing at the origin.
// A walker already at the origin stays put.
func TowardOrigin(p geom.Vec) geom.Vec {
	norm := r3.Norm(p)
	if norm == 0 {
		return p
	}
	return r3.Sub(p, r3.Scale(1/norm, p))
}

// UniformAngle moves one unit at a uniformly random angle in the XY plane.
type UniformAngle struct{}

func (UniformAngle) Kind() string { return KindUniformAngle }

func (UniformAngle) Advance(s State, rng *rand.Rand) geom.Vec {
	return polar(s.Pos, uniformAngle(rng), 1)
}

// Grid moves one unit up, down, left or right with equal probability.
type Grid struct{}

func (Grid) Kind() string { return KindGrid }

func (Grid) Advance(s State, rng *rand.Rand) geom.Vec {
	return Move(s.Pos, allDirections[rng.IntN(len(allDirections))])
}

// NoReversal is a grid walk that never immediately undoes its previous move.
type NoReversal struct{}

func (NoReversal) Kind() string { return KindNoReversal }

func (NoReversal) Advance(s State, rng *rand.Rand) geom.Vec {
	last, ok := directionOf(s.Displacement())
	if !ok {
		return Move(s.Pos, allDirections[rng.IntN(len(allDirections))])
	}

	excluded := last.Opposite()
	candidates := make([]Direction, 0, len(allDirections)-1)
	for _, d := range allDirections {
		if d != excluded {
			candidates = append(candidates, d)
		}
	}
	return Move(s.Pos, candidates[rng.IntN(len(candidates))])
}

// RandomStep moves a random length in [0.5, 1.5] at a uniformly random angle.
type RandomStep struct{}

const (
	minRandomStep = 0.5
	maxRandomStep = 1.5
)

func (RandomStep) Kind() string { return KindRandomStep }

func (RandomStep) Advance(s State, rng *rand.Rand) geom.Vec {
	theta := uniformAngle(rng)
	length := distuv.Uniform{Min: minRandomStep, Max: maxRandomStep, Src: rng}.Rand()
	return polar(s.Pos, theta, length)
}
