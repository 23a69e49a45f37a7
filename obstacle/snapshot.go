package obstacle

import "github.com/pthm-cable/randwalk/geom"

// Spec is the flat, serializable description of an obstacle. Z and Depth are
// set only for 3D boxes; Dest only for portal gates.
type Spec struct {
	Name   string    `json:"name" csv:"name"`
	Kind   string    `json:"kind" csv:"kind"`
	X      float64   `json:"x" csv:"x"`
	Y      float64   `json:"y" csv:"y"`
	Width  float64   `json:"width" csv:"width"`
	Height float64   `json:"height" csv:"height"`
	Z      *float64  `json:"z,omitempty" csv:"-"`
	Depth  *float64  `json:"depth,omitempty" csv:"-"`
	Dest   *geom.Vec `json:"dest,omitempty" csv:"-"`
}

// Spec returns the serializable form of o.
func (o Obstacle) Spec() Spec {
	s := Spec{
		Name:   o.Name,
		Kind:   o.Kind.String(),
		X:      o.Box.Min.X,
		Y:      o.Box.Min.Y,
		Width:  o.Box.Max.X - o.Box.Min.X,
		Height: o.Box.Max.Y - o.Box.Min.Y,
	}
	if o.Box.Is3D() {
		z, depth := o.Box.Min.Z, o.Box.Max.Z-o.Box.Min.Z
		s.Z, s.Depth = &z, &depth
	}
	if o.Kind == KindPortal {
		dest := o.Dest
		s.Dest = &dest
	}
	return s
}

// Box rebuilds the geometry described by s.
func (s Spec) Box() geom.Box {
	if s.Z != nil && s.Depth != nil {
		return geom.NewBox3D(s.X, s.Y, *s.Z, s.Width, s.Height, *s.Depth)
	}
	return geom.NewBox2D(s.X, s.Y, s.Width, s.Height)
}

// Snapshot is a point-in-time copy of the registry for overlay rendering.
type Snapshot struct {
	Barriers    []Spec `json:"barriers"`
	PortalGates []Spec `json:"portal_gates"`
}

// Snapshot copies the current obstacles in insertion order.
func (r *Registry) Snapshot() Snapshot {
	barriers := r.Barriers()
	portals := r.Portals()
	snap := Snapshot{
		Barriers:    make([]Spec, len(barriers)),
		PortalGates: make([]Spec, len(portals)),
	}
	for i, b := range barriers {
		snap.Barriers[i] = b.Spec()
	}
	for i, p := range portals {
		snap.PortalGates[i] = p.Spec()
	}
	return snap
}
