package main

import (
	"github.com/pthm-cable/randwalk/config"
	"github.com/pthm-cable/randwalk/policy"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // BiasedWalker parameter name
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the biased walker weights being calibrated. Weights are
// relative; the walker normalizes them.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: policy.ParamUp, Min: 0.01, Max: 1, Default: 0.25},
			{Name: policy.ParamDown, Min: 0.01, Max: 1, Default: 0.25},
			{Name: policy.ParamLeft, Min: 0.01, Max: 1, Default: 0.25},
			{Name: policy.ParamRight, Min: 0.01, Max: 1, Default: 0.25},
			{Name: policy.ParamToOrigin, Min: 0.01, Max: 1, Default: 0.05},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// Params returns clamped values keyed by parameter name.
func (pv *ParamVector) Params(values []float64) map[string]float64 {
	clamped := pv.Clamp(values)
	params := make(map[string]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		params[spec.Name] = clamped[i]
	}
	return params
}

// ApplyToConfig replaces the walker list with one BiasedWalker using values.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	one := 1
	cfg.Walkers = []config.WalkerConfig{{
		Kind:   policy.KindBiased,
		Count:  &one,
		Params: pv.Params(values),
	}}
}

// ExtractFromConfig returns the weights of the first BiasedWalker entry,
// with defaults for anything it leaves unset.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	v := pv.DefaultVector()
	for _, w := range cfg.Walkers {
		canonical, ok := policy.Canonical(w.Kind)
		if !ok || canonical != policy.KindBiased {
			continue
		}
		for i, spec := range pv.Specs {
			if p, set := w.Params[spec.Name]; set {
				v[i] = p
			}
		}
		break
	}
	return pv.Clamp(v)
}
