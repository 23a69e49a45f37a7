package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownKind is returned by New for unregistered kinds.
var ErrUnknownKind = errors.New("unknown walker kind")

// ErrUnknownParam is returned when a parameter map carries keys the kind does not accept.
var ErrUnknownParam = errors.New("unknown parameter")

// Constructor builds a policy from a parameter map.
type Constructor func(params map[string]float64) (Policy, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
	aliases    = map[string]string{}
)

func init() {
	Register(KindBiased, weightedFromParams(KindBiased), "biased")
	Register(KindProbabilistic, weightedFromParams(KindProbabilistic), "probabilistic")
	Register(KindUniformAngle, noParams(UniformAngle{}), "one_unit", "uniform_angle")
	Register(KindGrid, noParams(Grid{}), "grid", "discrete")
	Register(KindNoReversal, noParams(NoReversal{}), "no_repeat", "no_reversal")
	Register(KindRandomStep, noParams(RandomStep{}), "random_step")
}

// Register adds a policy kind. Later registrations replace earlier ones.
func Register(kind string, ctor Constructor, alias ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = ctor
	for _, a := range alias {
		aliases[strings.ToLower(a)] = kind
	}
}

// Canonical resolves an alias to its registered kind name.
func Canonical(kind string) (string, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if _, ok := registry[kind]; ok {
		return kind, true
	}
	k, ok := aliases[strings.ToLower(kind)]
	return k, ok
}

// Kinds returns the registered kind names, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New builds a policy of the given kind.
func New(kind string, params map[string]float64) (Policy, error) {
	canonical, ok := Canonical(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	registryMu.RLock()
	ctor := registry[canonical]
	registryMu.RUnlock()
	return ctor(params)
}

func noParams(p Policy) Constructor {
	return func(params map[string]float64) (Policy, error) {
		if len(params) > 0 {
			return nil, fmt.Errorf("%w: %s takes no parameters, got %s", ErrUnknownParam, p.Kind(), keys(params))
		}
		return p, nil
	}
}

// Parameter names accepted by BiasedWalker and ProbabilisticWalker.
const (
	ParamUp       = "up_prob"
	ParamDown     = "down_prob"
	ParamLeft     = "left_prob"
	ParamRight    = "right_prob"
	ParamToOrigin = "to_origin_prob"
)

func weightedFromParams(kind string) Constructor {
	return func(params map[string]float64) (Policy, error) {
		w, err := weightsFromParams(kind, params)
		if err != nil {
			return nil, err
		}
		b, err := newWeighted(kind, w)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

func weightsFromParams(kind string, params map[string]float64) (Weights, error) {
	w := DefaultWeights
	for k, v := range params {
		switch k {
		case ParamUp:
			w.Up = v
		case ParamDown:
			w.Down = v
		case ParamLeft:
			w.Left = v
		case ParamRight:
			w.Right = v
		case ParamToOrigin:
			w.ToOrigin = v
		default:
			return w, fmt.Errorf("%w: %s does not accept %q", ErrUnknownParam, kind, k)
		}
	}
	return w, nil
}

func keys(m map[string]float64) string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return strings.Join(ks, ", ")
}
