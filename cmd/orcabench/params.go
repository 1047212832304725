package main

import "github.com/pthm-cable/orca3d/sim"

// paramSpec bounds one tunable agent parameter for CMA-ES search.
type paramSpec struct {
	Name string
	Min  float64
	Max  float64
}

// paramVector is the ordered set of agent parameters orcabench tunes.
// Every evaluation searches in [0,1]^dim normalized space and
// denormalizes into the spec bounds before building a Simulator.
type paramVector struct {
	Specs []paramSpec
}

func newParamVector() *paramVector {
	return &paramVector{
		Specs: []paramSpec{
			{Name: "time_horizon", Min: 1, Max: 20},
			{Name: "neighbor_dist", Min: 2, Max: 30},
		},
	}
}

func (p *paramVector) Dim() int { return len(p.Specs) }

// DefaultVector returns the midpoint of every bound as a starting guess.
func (p *paramVector) DefaultVector() []float64 {
	raw := make([]float64, len(p.Specs))
	for i, spec := range p.Specs {
		raw[i] = (spec.Min + spec.Max) / 2
	}
	return raw
}

// Normalize maps raw parameter values into [0,1] per spec bound.
func (p *paramVector) Normalize(raw []float64) []float64 {
	x := make([]float64, len(raw))
	for i, spec := range p.Specs {
		x[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return x
}

// Denormalize maps [0,1] search-space values back to raw parameter
// values, clamping out-of-range inputs to the spec bounds.
func (p *paramVector) Denormalize(x []float64) []float64 {
	raw := make([]float64, len(x))
	for i, spec := range p.Specs {
		v := spec.Min + x[i]*(spec.Max-spec.Min)
		switch {
		case v < spec.Min:
			v = spec.Min
		case v > spec.Max:
			v = spec.Max
		}
		raw[i] = v
	}
	return raw
}

// ApplyToDefaults overrides the tuned fields of defaults with raw.
func (p *paramVector) ApplyToDefaults(defaults *sim.AgentParams, raw []float64) {
	for i, spec := range p.Specs {
		switch spec.Name {
		case "time_horizon":
			defaults.TimeHorizon = float32(raw[i])
		case "neighbor_dist":
			defaults.NeighborDist = float32(raw[i])
		}
	}
}
