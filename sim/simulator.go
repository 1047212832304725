// Package sim implements a 3D reciprocal velocity-obstacle (ORCA) crowd
// simulator: a k-d tree is rebuilt every step to find each agent's
// neighbours, a set of ORCA half-space constraints is derived from those
// neighbours, and a nested linear program picks the velocity closest to
// the agent's preference that satisfies every constraint.
package sim

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/pthm-cable/orca3d/groups"
	"github.com/pthm-cable/orca3d/kdtree"
	"github.com/pthm-cable/orca3d/spatial"
	"github.com/pthm-cable/orca3d/telemetry"
)

// Simulator owns every agent's state and advances them one ORCA step at
// a time. The zero value is not usable; construct with New.
type Simulator struct {
	agents []*Agent
	byID   map[uint32]*Agent
	nextID uint32

	tree       *kdtree.Tree
	treeAgents []kdtree.Agent

	timeStep   float32
	globalTime float32

	defaults *AgentParams

	// parallelism is the number of worker goroutines used by DoStep's
	// compute phase. 0 (the default) runs the compute phase
	// sequentially, which keeps results bit-for-bit reproducible
	// regardless of GOMAXPROCS; callers that want throughput over
	// determinism opt in via SetParallelism.
	parallelism int

	logger *slog.Logger
	perf   *telemetry.PerfCollector
}

// New returns a Simulator with no agents and a zero time step. Call
// SetTimeStep before DoStep, and SetAgentDefaults or use
// AddAgentWithParams before adding agents.
func New() *Simulator {
	return &Simulator{
		byID: make(map[uint32]*Agent),
		tree: kdtree.New(),
	}
}

// SetLogger attaches a structured logger used for step-level diagnostics
// (agent counts, invalid-velocity warnings). A nil logger (the default)
// disables all logging, so Simulator performs no I/O unless a caller
// opts in.
func (s *Simulator) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetPerfCollector attaches a telemetry.PerfCollector that DoStep feeds
// with per-phase timings (tree build, neighbour search, velocity
// compute, apply) on every call. A nil collector (the default) skips
// all instrumentation, so DoStep pays no timer overhead unless a
// caller opts in.
func (s *Simulator) SetPerfCollector(pc *telemetry.PerfCollector) {
	s.perf = pc
}

// SetParallelism sets the number of worker goroutines DoStep's compute
// phase uses. 0 means sequential. Values are clamped to at least 0.
func (s *Simulator) SetParallelism(n int) {
	if n < 0 {
		n = 0
	}
	s.parallelism = n
}

// SetTimeStep sets the duration, in seconds, advanced by each DoStep.
func (s *Simulator) SetTimeStep(dt float32) {
	s.timeStep = dt
}

// TimeStep returns the current time step.
func (s *Simulator) TimeStep() float32 { return s.timeStep }

// GlobalTime returns the total simulated time elapsed across all DoStep
// calls so far.
func (s *Simulator) GlobalTime() float32 { return s.globalTime }

// NumAgents returns the number of live agents.
func (s *Simulator) NumAgents() int { return len(s.agents) }

// SetAgentDefaults installs the parameter set AddAgent uses for agents
// that don't specify their own. AddAgentWithParams does not consult
// them.
func (s *Simulator) SetAgentDefaults(p AgentParams) {
	d := p
	s.defaults = &d
}

// AddAgent creates an agent at position using the simulator-wide
// defaults set by SetAgentDefaults. It returns ErrNoDefaults if no
// defaults have been set.
func (s *Simulator) AddAgent(position spatial.Vec3) (uint32, error) {
	if s.defaults == nil {
		return 0, ErrNoDefaults
	}
	return s.AddAgentWithParams(position, *s.defaults)
}

// AddAgentWithParams creates an agent at position with an explicit
// parameter set, ignoring any simulator-wide defaults.
func (s *Simulator) AddAgentWithParams(position spatial.Vec3, p AgentParams) (uint32, error) {
	id := s.nextID
	s.nextID++

	a := &Agent{
		id:             id,
		index:          len(s.agents),
		position:       position,
		velocity:       p.Velocity,
		prefVelocity:   p.Velocity,
		radius:         p.Radius,
		maxSpeed:       p.MaxSpeed,
		neighborDist:   p.NeighborDist,
		timeHorizon:    p.TimeHorizon,
		maxNeighbors:   p.MaxNeighbors,
		avoidanceGroup: p.AvoidanceGroup,
		groupsToAvoid:  p.GroupsToAvoid,
		groupsToIgnore: p.GroupsToIgnore,
		valid:          true,
	}

	s.agents = append(s.agents, a)
	s.byID[id] = a

	if s.logger != nil {
		s.logger.Debug("agent added", "id", id, "total", len(s.agents))
	}

	return id, nil
}

// RemoveAgent deletes the agent with the given id in O(1) by swapping it
// with the last agent in the backing slice. It returns ErrUnknownAgent
// if id does not name a live agent.
func (s *Simulator) RemoveAgent(id uint32) error {
	a, ok := s.byID[id]
	if !ok {
		return ErrUnknownAgent
	}

	last := len(s.agents) - 1
	s.agents[a.index] = s.agents[last]
	s.agents[a.index].index = a.index
	s.agents[last] = nil
	s.agents = s.agents[:last]

	delete(s.byID, id)

	if s.logger != nil {
		s.logger.Debug("agent removed", "id", id, "total", len(s.agents))
	}

	return nil
}

func (s *Simulator) lookup(id uint32) (*Agent, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrUnknownAgent
	}
	return a, nil
}

// DoStep rebuilds the neighbour-search tree, computes each agent's new
// velocity against the current snapshot of all agents, then applies
// every agent's velocity and position update, and finally advances
// GlobalTime by TimeStep. The compute phase runs across SetParallelism
// goroutines when set, or sequentially otherwise.
func (s *Simulator) DoStep() {
	n := len(s.agents)
	if n == 0 {
		s.globalTime += s.timeStep
		return
	}

	if s.perf != nil {
		s.perf.StartStep()
		s.perf.StartPhase(telemetry.PhaseTreeBuild)
	}

	if cap(s.treeAgents) < n {
		s.treeAgents = make([]kdtree.Agent, n)
	}
	s.treeAgents = s.treeAgents[:n]
	for i, a := range s.agents {
		s.treeAgents[i] = a
	}
	s.tree.Build(s.treeAgents)

	if s.perf != nil {
		s.perf.StartPhase(telemetry.PhaseNeighborSearch)
	}
	for _, a := range s.agents {
		a.computeNeighbors(s.tree)
	}

	if s.perf != nil {
		s.perf.StartPhase(telemetry.PhaseVelocityCompute)
	}
	if s.parallelism > 0 {
		s.computeParallel()
	} else {
		for _, a := range s.agents {
			a.computeNewVelocity(s.timeStep)
		}
	}

	if s.perf != nil {
		s.perf.StartPhase(telemetry.PhaseApply)
	}
	invalidCount := 0
	for _, a := range s.agents {
		if !a.valid {
			invalidCount++
		}
		a.update(s.timeStep)
	}
	if s.perf != nil {
		s.perf.EndStep()
	}

	if s.logger != nil {
		if invalidCount > 0 {
			s.logger.Warn("step produced invalid velocities", "count", invalidCount, "agents", n)
		}
		s.logger.Debug("step complete", "agents", n, "time", s.globalTime)
	}

	s.globalTime += s.timeStep
}

// PerfStats returns the current rolling-window performance statistics
// from the attached PerfCollector. It returns the zero PerfStats if no
// collector has been attached via SetPerfCollector.
func (s *Simulator) PerfStats() telemetry.PerfStats {
	if s.perf == nil {
		return telemetry.PerfStats{}
	}
	return s.perf.Stats()
}

// StepRecord summarizes the agent state left by the most recent DoStep
// into a telemetry.StepRecord, under the given step counter (Simulator
// itself has no notion of a step index, only GlobalTime). The minimum
// pairwise gap is approximated from each agent's nearest neighbour as
// found by that step's neighbour search, i.e. from positions before the
// step advanced them; agents with no neighbours contribute nothing, and
// the gap is reported as 0 when no agent has a neighbour.
func (s *Simulator) StepRecord(step int32) telemetry.StepRecord {
	samples := make([]telemetry.StepSample, len(s.agents))
	var minGap float64
	haveGap := false

	for i, a := range s.agents {
		samples[i] = telemetry.StepSample{
			NumNeighbors: len(a.neighbors),
			Speed:        float64(a.velocity.Length()),
			Valid:        a.valid,
		}

		if len(a.neighbors) > 0 {
			nearest := a.neighbors[0]
			other := s.byID[nearest.Agent.AgentID()]
			gap := float64(sqrt32(nearest.DistSq) - a.radius - other.radius)
			if !haveGap || gap < minGap {
				minGap = gap
				haveGap = true
			}
		}
	}

	return telemetry.Summarize(step, float64(s.globalTime), samples, minGap)
}

// computeParallel runs computeNewVelocity for every agent across
// s.parallelism worker goroutines, chunked contiguously over s.agents.
// It never mutates shared state beyond each agent's own fields, so
// results are identical to the sequential path up to floating-point
// associativity.
func (s *Simulator) computeParallel() {
	n := len(s.agents)
	numWorkers := s.parallelism
	if max := runtime.GOMAXPROCS(0); numWorkers > max {
		numWorkers = max
	}
	if numWorkers > n {
		numWorkers = n
	}
	chunkSize := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(i0, i1 int) {
			defer wg.Done()
			for i := i0; i < i1; i++ {
				s.agents[i].computeNewVelocity(s.timeStep)
			}
		}(start, end)
	}
	wg.Wait()
}

// --- per-agent getters and setters ---

// AgentPosition returns the current position of the agent with id.
func (s *Simulator) AgentPosition(id uint32) (spatial.Vec3, error) {
	a, err := s.lookup(id)
	if err != nil {
		return spatial.Vec3{}, err
	}
	return a.position, nil
}

// SetAgentPosition overrides the position of the agent with id.
func (s *Simulator) SetAgentPosition(id uint32, p spatial.Vec3) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.position = p
	return nil
}

// AgentVelocity returns the current (post-ORCA) velocity of the agent
// with id.
func (s *Simulator) AgentVelocity(id uint32) (spatial.Vec3, error) {
	a, err := s.lookup(id)
	if err != nil {
		return spatial.Vec3{}, err
	}
	return a.velocity, nil
}

// SetAgentVelocity overrides the current velocity of the agent with id.
func (s *Simulator) SetAgentVelocity(id uint32, v spatial.Vec3) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.velocity = v
	return nil
}

// AgentPrefVelocity returns the preferred velocity of the agent with id.
func (s *Simulator) AgentPrefVelocity(id uint32) (spatial.Vec3, error) {
	a, err := s.lookup(id)
	if err != nil {
		return spatial.Vec3{}, err
	}
	return a.prefVelocity, nil
}

// SetAgentPrefVelocity sets the velocity the agent with id would choose
// absent any neighbours; DoStep's linear program treats this as the
// point to optimise towards.
func (s *Simulator) SetAgentPrefVelocity(id uint32, v spatial.Vec3) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.prefVelocity = v
	return nil
}

// AgentRadius returns the collision radius of the agent with id.
func (s *Simulator) AgentRadius(id uint32) (float32, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return a.radius, nil
}

// SetAgentRadius sets the collision radius of the agent with id.
func (s *Simulator) SetAgentRadius(id uint32, r float32) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.radius = r
	return nil
}

// AgentMaxSpeed returns the speed limit of the agent with id.
func (s *Simulator) AgentMaxSpeed(id uint32) (float32, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return a.maxSpeed, nil
}

// SetAgentMaxSpeed sets the speed limit of the agent with id.
func (s *Simulator) SetAgentMaxSpeed(id uint32, v float32) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.maxSpeed = v
	return nil
}

// AgentNeighborDist returns the neighbour search radius of the agent
// with id.
func (s *Simulator) AgentNeighborDist(id uint32) (float32, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return a.neighborDist, nil
}

// SetAgentNeighborDist sets the neighbour search radius of the agent
// with id.
func (s *Simulator) SetAgentNeighborDist(id uint32, d float32) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.neighborDist = d
	return nil
}

// AgentMaxNeighbors returns the neighbour count cap of the agent with
// id.
func (s *Simulator) AgentMaxNeighbors(id uint32) (int, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return a.maxNeighbors, nil
}

// SetAgentMaxNeighbors sets the neighbour count cap of the agent with
// id.
func (s *Simulator) SetAgentMaxNeighbors(id uint32, n int) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.maxNeighbors = n
	return nil
}

// AgentTimeHorizon returns the collision look-ahead window of the agent
// with id.
func (s *Simulator) AgentTimeHorizon(id uint32) (float32, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return a.timeHorizon, nil
}

// SetAgentTimeHorizon sets the collision look-ahead window of the agent
// with id.
func (s *Simulator) SetAgentTimeHorizon(id uint32, t float32) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.timeHorizon = t
	return nil
}

// AgentAvoidanceGroup returns the group membership bits of the agent
// with id, i.e. the groups other agents see it as belonging to.
func (s *Simulator) AgentAvoidanceGroup(id uint32) (groups.Groups, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return a.avoidanceGroup, nil
}

// SetAgentAvoidanceGroup sets the group membership bits of the agent
// with id.
func (s *Simulator) SetAgentAvoidanceGroup(id uint32, g groups.Groups) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.avoidanceGroup = g
	return nil
}

// AgentGroupsToAvoid returns the mask of groups the agent with id tries
// to avoid colliding with.
func (s *Simulator) AgentGroupsToAvoid(id uint32) (groups.Groups, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return a.groupsToAvoid, nil
}

// SetAgentGroupsToAvoid sets the mask of groups the agent with id tries
// to avoid colliding with.
func (s *Simulator) SetAgentGroupsToAvoid(id uint32, g groups.Groups) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.groupsToAvoid = g
	return nil
}

// AgentGroupsToIgnore returns the mask of groups the agent with id never
// avoids, overriding GroupsToAvoid.
func (s *Simulator) AgentGroupsToIgnore(id uint32) (groups.Groups, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return a.groupsToIgnore, nil
}

// SetAgentGroupsToIgnore sets the mask of groups the agent with id never
// avoids, overriding GroupsToAvoid.
func (s *Simulator) SetAgentGroupsToIgnore(id uint32, g groups.Groups) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.groupsToIgnore = g
	return nil
}

// --- per-agent ignore-set management ---

// AddIgnoredNeighbor marks otherID as an agent id to be skipped
// entirely during id's neighbour search, regardless of group masks.
func (s *Simulator) AddIgnoredNeighbor(id, otherID uint32) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	if a.ignoreIDs == nil {
		a.ignoreIDs = make(map[uint32]struct{})
	}
	a.ignoreIDs[otherID] = struct{}{}
	return nil
}

// RemoveIgnoredNeighbor undoes a prior AddIgnoredNeighbor.
func (s *Simulator) RemoveIgnoredNeighbor(id, otherID uint32) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	delete(a.ignoreIDs, otherID)
	return nil
}

// ClearIgnoredNeighbors removes every id-based ignore entry for id.
func (s *Simulator) ClearIgnoredNeighbors(id uint32) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.ignoreIDs = nil
	return nil
}

// SetAgentIgnoredNeighbors replaces id's entire ignore set with
// ignored in one call, discarding whatever AddIgnoredNeighbor calls
// came before it. Passing an empty slice is equivalent to
// ClearIgnoredNeighbors.
func (s *Simulator) SetAgentIgnoredNeighbors(id uint32, ignored []uint32) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	if len(ignored) == 0 {
		a.ignoreIDs = nil
		return nil
	}
	set := make(map[uint32]struct{}, len(ignored))
	for _, otherID := range ignored {
		set[otherID] = struct{}{}
	}
	a.ignoreIDs = set
	return nil
}

// --- inspection ---

// AgentNumNeighbors returns the number of neighbours found for the
// agent with id on the most recent DoStep.
func (s *Simulator) AgentNumNeighbors(id uint32) (int, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return len(a.neighbors), nil
}

// AgentNeighbor returns the agent id of the i-th neighbour (ordered by
// ascending squared distance) found for the agent with id on the most
// recent DoStep.
func (s *Simulator) AgentNeighbor(id uint32, i int) (uint32, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(a.neighbors) {
		return 0, fmt.Errorf("sim: neighbor index %d out of range [0,%d)", i, len(a.neighbors))
	}
	return a.neighbors[i].Agent.AgentID(), nil
}

// AgentNumORCAPlanes returns the number of ORCA half-space constraints
// built for the agent with id on the most recent DoStep.
func (s *Simulator) AgentNumORCAPlanes(id uint32) (int, error) {
	a, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return len(a.orcaPlanes), nil
}

// AgentORCAPlane returns the i-th ORCA half-space constraint built for
// the agent with id on the most recent DoStep.
func (s *Simulator) AgentORCAPlane(id uint32, i int) (spatial.Plane, error) {
	a, err := s.lookup(id)
	if err != nil {
		return spatial.Plane{}, err
	}
	if i < 0 || i >= len(a.orcaPlanes) {
		return spatial.Plane{}, fmt.Errorf("sim: plane index %d out of range [0,%d)", i, len(a.orcaPlanes))
	}
	return a.orcaPlanes[i], nil
}

// IsAgentValid reports whether the most recent DoStep computed a
// numerically well-defined velocity for the agent with id. A false
// result means a degenerate neighbour configuration (e.g. exactly
// coincident positions) produced a NaN intermediate that the linear
// program masked with a fallback value.
func (s *Simulator) IsAgentValid(id uint32) (bool, error) {
	a, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	return a.valid, nil
}
