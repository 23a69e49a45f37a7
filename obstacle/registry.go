// Package obstacle holds the barriers and portal gates walkers move among.
//
// The registry enforces its invariants at insertion time: no two obstacles
// overlap, none covers the origin, and a portal never sends walkers into an
// existing obstacle. Lookups test the bounding box of a movement segment
// against obstacle boxes, with an R-tree as broad phase.
package obstacle

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/pthm-cable/randwalk/geom"
)

// Insertion errors. Returned errors wrap one of these.
var (
	ErrInvalid            = errors.New("invalid obstacle")
	ErrOverlap            = errors.New("obstacle overlaps an existing obstacle")
	ErrOriginBlocked      = errors.New("obstacle covers the origin")
	ErrDestinationBlocked = errors.New("portal destination lies inside an obstacle")
	ErrDuplicateName      = errors.New("obstacle name already in use")
)

// Kind distinguishes barriers from portal gates.
type Kind uint8

const (
	KindBarrier Kind = iota
	KindPortal
)

func (k Kind) String() string {
	if k == KindPortal {
		return "portal_gate"
	}
	return "barrier"
}

// Obstacle is an immutable registered obstacle. Dest is only meaningful for portals.
type Obstacle struct {
	Name string
	Kind Kind
	Box  geom.Box
	Dest geom.Vec
}

// R-tree parameters. The tree indexes XY only; depth is checked exactly.
const (
	treeDim      = 2
	treeMinChild = 4
	treeMaxChild = 16
	// rtreego treats touching rectangles as disjoint and rejects zero-length
	// sides, so both stored and query rectangles are padded.
	treePad = 1e-6
)

type entry struct {
	Obstacle
	seq  uint64
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

// Registry holds named barriers and portal gates.
type Registry struct {
	mu       sync.RWMutex
	tree     *rtreego.Rtree
	barriers map[string]*entry
	portals  map[string]*entry
	nextSeq  uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tree:     rtreego.NewTree(treeDim, treeMinChild, treeMaxChild),
		barriers: make(map[string]*entry),
		portals:  make(map[string]*entry),
	}
}

// AddBarrier registers a barrier.
func (r *Registry) AddBarrier(name string, box geom.Box) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkInsert(name, box, r.barriers); err != nil {
		return fmt.Errorf("barrier %q: %w", name, err)
	}
	r.insert(Obstacle{Name: name, Kind: KindBarrier, Box: box}, r.barriers)
	return nil
}

// AddPortal registers a portal gate that teleports walkers to dest.
func (r *Registry) AddPortal(name string, box geom.Box, dest geom.Vec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkInsert(name, box, r.portals); err != nil {
		return fmt.Errorf("portal gate %q: %w", name, err)
	}
	if hit := r.firstIntersecting(geom.SegmentBox(dest, dest), nil); hit != nil {
		return fmt.Errorf("portal gate %q: %w (%s)", name, ErrDestinationBlocked, hit.Name)
	}
	r.insert(Obstacle{Name: name, Kind: KindPortal, Box: box, Dest: dest}, r.portals)
	return nil
}

func (r *Registry) checkInsert(name string, box geom.Box, namespace map[string]*entry) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalid)
	}
	if err := box.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, exists := namespace[name]; exists {
		return ErrDuplicateName
	}
	if hit := r.firstIntersecting(box, nil); hit != nil {
		return fmt.Errorf("%w (%s)", ErrOverlap, hit.Name)
	}
	if box.Contains(geom.Origin) {
		return ErrOriginBlocked
	}
	return nil
}

func (r *Registry) insert(o Obstacle, namespace map[string]*entry) {
	e := &entry{Obstacle: o, seq: r.nextSeq, rect: paddedRect(o.Box)}
	r.nextSeq++
	namespace[o.Name] = e
	r.tree.Insert(e)
}

// Remove deletes the named obstacle, barriers first, and reports whether one was found.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, namespace := range []map[string]*entry{r.barriers, r.portals} {
		if e, ok := namespace[name]; ok {
			delete(namespace, name)
			r.tree.Delete(e)
			return true
		}
	}
	return false
}

// Barrier returns the earliest-inserted barrier hit by the segment a→b.
func (r *Registry) Barrier(a, b geom.Vec) (Obstacle, bool) {
	return r.lookup(a, b, KindBarrier)
}

// Portal returns the earliest-inserted portal gate crossed by the segment a→b.
func (r *Registry) Portal(a, b geom.Vec) (Obstacle, bool) {
	return r.lookup(a, b, KindPortal)
}

func (r *Registry) lookup(a, b geom.Vec, kind Kind) (Obstacle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k := kind
	if e := r.firstIntersecting(geom.SegmentBox(a, b), &k); e != nil {
		return e.Obstacle, true
	}
	return Obstacle{}, false
}

// firstIntersecting runs the broad phase, then the exact closed-interval test.
// Callers hold r.mu.
func (r *Registry) firstIntersecting(box geom.Box, kind *Kind) *entry {
	if r.tree.Size() == 0 {
		return nil
	}
	var best *entry
	for _, s := range r.tree.SearchIntersect(paddedRect(box)) {
		e := s.(*entry)
		if kind != nil && e.Kind != *kind {
			continue
		}
		if !e.Box.Intersects(box) {
			continue
		}
		if best == nil || e.seq < best.seq {
			best = e
		}
	}
	return best
}

// Len returns the number of registered obstacles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.barriers) + len(r.portals)
}

// Barriers returns all barriers in insertion order.
func (r *Registry) Barriers() []Obstacle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ordered(r.barriers)
}

// Portals returns all portal gates in insertion order.
func (r *Registry) Portals() []Obstacle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ordered(r.portals)
}

func ordered(namespace map[string]*entry) []Obstacle {
	entries := make([]*entry, 0, len(namespace))
	for _, e := range namespace {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]Obstacle, len(entries))
	for i, e := range entries {
		out[i] = e.Obstacle
	}
	return out
}

func paddedRect(b geom.Box) rtreego.Rect {
	p := rtreego.Point{b.Min.X - treePad, b.Min.Y - treePad}
	lengths := []float64{b.Max.X - b.Min.X + 2*treePad, b.Max.Y - b.Min.Y + 2*treePad}
	// Lengths are positive for any validated box, so NewRect cannot fail here.
	rect, _ := rtreego.NewRect(p, lengths)
	return rect
}
