package sim

import (
	"math"

	"github.com/pthm-cable/orca3d/groups"
	"github.com/pthm-cable/orca3d/kdtree"
	"github.com/pthm-cable/orca3d/lp"
	"github.com/pthm-cable/orca3d/spatial"
)

// AgentParams is the set of per-agent parameters a caller supplies either
// as a simulator-wide default (SetAgentDefaults) or explicitly per agent
// (AddAgentWithParams).
type AgentParams struct {
	NeighborDist   float32
	MaxNeighbors   int
	TimeHorizon    float32
	Radius         float32
	MaxSpeed       float32
	AvoidanceGroup groups.Groups
	GroupsToAvoid  groups.Groups
	GroupsToIgnore groups.Groups
	Velocity       spatial.Vec3
}

// Agent is the per-agent state container. Fields are unexported; callers
// mutate an agent only through Simulator's per-agent setters, matching
// the ownership model in spec.md §3/§9.
type Agent struct {
	id    uint32
	index int // position in Simulator.agents, kept in sync on removal

	position     spatial.Vec3
	velocity     spatial.Vec3
	prefVelocity spatial.Vec3
	newVelocity  spatial.Vec3

	radius       float32
	maxSpeed     float32
	neighborDist float32
	timeHorizon  float32
	maxNeighbors int

	avoidanceGroup groups.Groups
	groupsToAvoid  groups.Groups
	groupsToIgnore groups.Groups
	ignoreIDs      map[uint32]struct{}

	neighbors  []kdtree.Neighbor
	orcaPlanes []spatial.Plane

	valid bool
}

// AgentID implements kdtree.Agent.
func (a *Agent) AgentID() uint32 { return a.id }

// AgentPosition implements kdtree.Agent.
func (a *Agent) AgentPosition() spatial.Vec3 { return a.position }

// AgentGroup implements kdtree.Agent.
func (a *Agent) AgentGroup() groups.Groups { return a.avoidanceGroup }

// computeNeighbors rebuilds a's neighbour list from tree, clearing any
// previous contents first.
func (a *Agent) computeNeighbors(tree *kdtree.Tree) {
	a.neighbors = a.neighbors[:0]
	if a.maxNeighbors <= 0 {
		return
	}
	rangeSq := a.neighborDist * a.neighborDist
	a.neighbors = tree.ComputeNeighbors(a, a.groupsToAvoid, a.groupsToIgnore, a.ignoreIDs, a.maxNeighbors, rangeSq, a.neighbors)
}

// computeNewVelocity builds one ORCA plane per neighbour, runs the 3D
// linear program, falls back to the 4D relaxation on infeasibility, and
// stores the result in newVelocity. It does not mutate velocity or
// position — that happens in update.
func (a *Agent) computeNewVelocity(timeStep float32) {
	a.orcaPlanes = a.orcaPlanes[:0]
	valid := true
	invTimeHorizon := 1 / a.timeHorizon

	for _, nb := range a.neighbors {
		other := nb.Agent.(*Agent)

		relativePosition := other.position.Sub(a.position)
		relativeVelocity := a.velocity.Sub(other.velocity)
		distSq := relativePosition.LengthSq()
		combinedRadius := a.radius + other.radius
		combinedRadiusSq := combinedRadius * combinedRadius

		var plane spatial.Plane
		var u spatial.Vec3

		if distSq > combinedRadiusSq {
			// No collision.
			w := relativeVelocity.Sub(relativePosition.Scale(invTimeHorizon))
			wLengthSq := w.LengthSq()
			dotProduct := w.Dot(relativePosition)

			if dotProduct < 0 && dotProduct*dotProduct > combinedRadiusSq*wLengthSq {
				// Project on cut-off sphere.
				wLength := sqrt32(wLengthSq)
				unitW := w.Div(wLength)

				plane.Normal = unitW
				u = unitW.Scale(combinedRadius*invTimeHorizon - wLength)

				if valid && isNaN32(wLength) {
					valid = false
				}
			} else {
				// Project on cone.
				aCoef := distSq
				bCoef := relativePosition.Dot(relativeVelocity)
				cCoef := relativeVelocity.LengthSq() - relativePosition.Cross(relativeVelocity).LengthSq()/(distSq-combinedRadiusSq)
				t := (bCoef + sqrt32(bCoef*bCoef-aCoef*cCoef)) / aCoef
				cw := relativeVelocity.Sub(relativePosition.Scale(t))
				wLength := cw.Length()
				unitW := cw.Div(wLength)

				plane.Normal = unitW
				u = unitW.Scale(combinedRadius*t - wLength)

				if valid && isNaN32(wLength) {
					valid = false
				}
			}
		} else {
			// Collision.
			invTimeStep := 1 / timeStep
			w := relativeVelocity.Sub(relativePosition.Scale(invTimeStep))
			wLength := w.Length()
			unitW := w.Div(wLength)

			plane.Normal = unitW
			u = unitW.Scale(combinedRadius*invTimeStep - wLength)

			if valid && isNaN32(wLength) {
				valid = false
			}
		}

		plane.Point = a.velocity.Add(u.Scale(0.5))
		a.orcaPlanes = append(a.orcaPlanes, plane)
	}

	result, failedPlane := lp.Solve3D(a.orcaPlanes, a.maxSpeed, a.prefVelocity, false)
	if failedPlane < len(a.orcaPlanes) {
		result = lp.Solve4D(a.orcaPlanes, failedPlane, a.maxSpeed, result)
	}

	a.newVelocity = result
	a.valid = valid
}

// update commits the velocity computed by computeNewVelocity and
// advances position by one time step.
func (a *Agent) update(timeStep float32) {
	a.velocity = a.newVelocity
	a.position = a.position.Add(a.velocity.Scale(timeStep))
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

func isNaN32(x float32) bool {
	return x != x
}
