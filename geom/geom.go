// Package geom provides the positions and axis-aligned boxes used for walker
// movement and obstacle collision.
package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec is a walker or obstacle position. 2D callers keep Z at 0.
type Vec = r3.Vec

// Origin is the starting point of every walker.
var Origin = Vec{}

// Axis names a coordinate axis.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// String returns the axis letter.
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	}
	return fmt.Sprintf("Axis(%d)", uint8(a))
}

// ParseAxis accepts "x", "y" or "z" in either case.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// ErrInvalidBox is returned for boxes with negative extents or non-finite values.
var ErrInvalidBox = errors.New("invalid box")

// Box is a closed axis-aligned box. A box built from 2D parameters spans the
// whole Z axis so that it blocks walkers at any depth.
type Box struct {
	Min, Max Vec
}

// NewBox2D builds a box from its lower-left corner and size.
func NewBox2D(x, y, width, height float64) Box {
	return Box{
		Min: Vec{X: x, Y: y, Z: math.Inf(-1)},
		Max: Vec{X: x + width, Y: y + height, Z: math.Inf(1)},
	}
}

// NewBox3D builds a box from its minimum corner and size.
func NewBox3D(x, y, z, width, height, depth float64) Box {
	return Box{
		Min: Vec{X: x, Y: y, Z: z},
		Max: Vec{X: x + width, Y: y + height, Z: z + depth},
	}
}

// SegmentBox returns the smallest box containing both endpoints.
func SegmentBox(a, b Vec) Box {
	return Box{
		Min: Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
	}
}

// Is3D reports whether the box has a finite Z extent.
func (b Box) Is3D() bool {
	return !math.IsInf(b.Min.Z, 0) && !math.IsInf(b.Max.Z, 0)
}

// Validate checks that X and Y bounds are finite, the Z bounds are either both
// finite or the 2D sentinel, and no extent is negative.
func (b Box) Validate() error {
	for _, v := range []float64{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite bound", ErrInvalidBox)
		}
	}
	if math.IsNaN(b.Min.Z) || math.IsNaN(b.Max.Z) {
		return fmt.Errorf("%w: non-finite bound", ErrInvalidBox)
	}
	if !b.Is3D() && !(math.IsInf(b.Min.Z, -1) && math.IsInf(b.Max.Z, 1)) {
		return fmt.Errorf("%w: half-open depth", ErrInvalidBox)
	}
	if b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z {
		return fmt.Errorf("%w: negative extent", ErrInvalidBox)
	}
	return nil
}

// Intersects reports whether the projections of b and o overlap on every axis.
// Intervals are closed, so boxes that only touch intersect.
func (b Box) Intersects(o Box) bool {
	return overlap(b.Min.X, b.Max.X, o.Min.X, o.Max.X) &&
		overlap(b.Min.Y, b.Max.Y, o.Min.Y, o.Max.Y) &&
		overlap(b.Min.Z, b.Max.Z, o.Min.Z, o.Max.Z)
}

// Contains reports whether p lies inside b or on its boundary.
func (b Box) Contains(p Vec) bool {
	return b.Min.X <= p.X && p.X <= b.Max.X &&
		b.Min.Y <= p.Y && p.Y <= b.Max.Y &&
		b.Min.Z <= p.Z && p.Z <= b.Max.Z
}

// SegmentIntersects reports whether the bounding box of segment a→b
// intersects the box.
func (b Box) SegmentIntersects(a, c Vec) bool {
	return b.Intersects(SegmentBox(a, c))
}

func overlap(aMin, aMax, bMin, bMax float64) bool {
	return !(aMax < bMin || aMin > bMax)
}

// Dist returns the Euclidean distance of p from the origin.
func Dist(p Vec) float64 {
	return r3.Norm(p)
}

// AxisDistance returns the distance of p from the named axis line, using
// the two components that are not that axis.
func AxisDistance(p Vec, axis Axis) float64 {
	switch axis {
	case AxisX:
		return math.Hypot(p.Y, p.Z)
	case AxisY:
		return math.Hypot(p.X, p.Z)
	default:
		return math.Hypot(p.X, p.Y)
	}
}

// Abs returns p with every component replaced by its absolute value.
func Abs(p Vec) Vec {
	return Vec{X: math.Abs(p.X), Y: math.Abs(p.Y), Z: math.Abs(p.Z)}
}

// Component returns the coordinate of p along axis.
func Component(p Vec, axis Axis) float64 {
	switch axis {
	case AxisX:
		return p.X
	case AxisY:
		return p.Y
	default:
		return p.Z
	}
}
