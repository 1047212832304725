package main

import (
	"math"

	"github.com/pthm-cable/orca3d/sim"
	"github.com/pthm-cable/orca3d/spatial"
)

// circleScenario returns n agents evenly spaced on a circle of the
// given radius, each with a preferred velocity pointing at the
// opposite side — the classic ORCA stress scenario where every agent
// must cross through the center at once.
func circleScenario(n int, radius float32) ([]spatial.Vec3, []spatial.Vec3) {
	positions := make([]spatial.Vec3, n)
	prefVelocities := make([]spatial.Vec3, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		p := spatial.Vec3{X: radius * float32(math.Cos(angle)), Y: radius * float32(math.Sin(angle))}
		positions[i] = p
		prefVelocities[i] = p.Negate().Normalize()
	}
	return positions, prefVelocities
}

// fitnessEvaluator scores a candidate (timeHorizon, neighborDist) pair
// by running the circle scenario to completion and measuring how
// quickly agents reach their goal without ever coming too close to
// one another.
type fitnessEvaluator struct {
	params    *paramVector
	defaults  sim.AgentParams
	numAgents int
	radius    float32
	maxSteps  int
	timeStep  float32

	lastMinGap float64
}

func newFitnessEvaluator(params *paramVector, defaults sim.AgentParams, numAgents int, radius float32, maxSteps int, timeStep float32) *fitnessEvaluator {
	return &fitnessEvaluator{
		params:    params,
		defaults:  defaults,
		numAgents: numAgents,
		radius:    radius,
		maxSteps:  maxSteps,
		timeStep:  timeStep,
	}
}

// Evaluate runs one candidate parameter vector and returns a cost to
// minimize: steps-to-convergence, penalized heavily for any collision.
func (f *fitnessEvaluator) Evaluate(raw []float64) float64 {
	defaults := f.defaults
	f.params.ApplyToDefaults(&defaults, raw)

	s := sim.New()
	s.SetTimeStep(f.timeStep)
	s.SetAgentDefaults(defaults)

	positions, prefVelocities := circleScenario(f.numAgents, f.radius)
	ids := make([]uint32, f.numAgents)
	goals := make([]spatial.Vec3, f.numAgents)
	for i, p := range positions {
		id, err := s.AddAgent(p)
		if err != nil {
			return math.Inf(1)
		}
		ids[i] = id
		goals[i] = p.Negate()
		s.SetAgentPrefVelocity(id, prefVelocities[i])
	}

	minGap := math.Inf(1)
	converged := f.maxSteps

	for step := 0; step < f.maxSteps; step++ {
		s.DoStep()

		stepMinGapSq := float32(math.Inf(1))
		for i := 0; i < len(ids); i++ {
			pi, _ := s.AgentPosition(ids[i])
			for j := i + 1; j < len(ids); j++ {
				pj, _ := s.AgentPosition(ids[j])
				d := pi.Sub(pj)
				distSq := d.LengthSq()
				if distSq < stepMinGapSq {
					stepMinGapSq = distSq
				}
			}
		}
		gap := math.Sqrt(float64(stepMinGapSq)) - float64(2*f.defaults.Radius)
		if gap < minGap {
			minGap = gap
		}

		allArrived := true
		for i, id := range ids {
			p, _ := s.AgentPosition(id)
			if p.Sub(goals[i]).Length() > f.defaults.Radius {
				allArrived = false
				break
			}
		}
		if allArrived {
			converged = step + 1
			break
		}
	}

	f.lastMinGap = minGap

	cost := float64(converged)
	if minGap < 0 {
		// Collision: penalize proportionally to overlap depth.
		cost += 1e6 * (-minGap)
	}
	return cost
}

// LastMinGap returns the smallest agent-to-agent surface gap observed
// during the most recent Evaluate call (negative means overlap).
func (f *fitnessEvaluator) LastMinGap() float64 { return f.lastMinGap }
