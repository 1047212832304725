package sim

import (
	"math"
	"testing"

	"github.com/pthm-cable/orca3d/groups"
	"github.com/pthm-cable/orca3d/spatial"
	"github.com/pthm-cable/orca3d/telemetry"
)

func newTestSimulator(t *testing.T) *Simulator {
	t.Helper()
	s := New()
	s.SetTimeStep(0.25)
	s.SetAgentDefaults(AgentParams{
		NeighborDist:   15,
		MaxNeighbors:   10,
		TimeHorizon:    10,
		Radius:         0.5,
		MaxSpeed:       2,
		AvoidanceGroup: groups.All,
		GroupsToAvoid:  groups.All,
	})
	return s
}

func TestAddAgentWithoutDefaultsFails(t *testing.T) {
	s := New()
	if _, err := s.AddAgent(spatial.Vec3{}); err != ErrNoDefaults {
		t.Fatalf("expected ErrNoDefaults, got %v", err)
	}
}

func TestAddAgentAssignsSequentialIDs(t *testing.T) {
	s := newTestSimulator(t)
	a, _ := s.AddAgent(spatial.Vec3{})
	b, _ := s.AddAgent(spatial.Vec3{X: 1})
	if a != 0 || b != 1 {
		t.Fatalf("expected ids 0,1, got %d,%d", a, b)
	}
	if s.NumAgents() != 2 {
		t.Fatalf("expected 2 agents, got %d", s.NumAgents())
	}
}

func TestRemoveAgentUnknownID(t *testing.T) {
	s := newTestSimulator(t)
	if err := s.RemoveAgent(99); err != ErrUnknownAgent {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestRemoveAgentSwapWithLastKeepsOthersReachable(t *testing.T) {
	s := newTestSimulator(t)
	a, _ := s.AddAgent(spatial.Vec3{X: 0})
	b, _ := s.AddAgent(spatial.Vec3{X: 1})
	c, _ := s.AddAgent(spatial.Vec3{X: 2})

	if err := s.RemoveAgent(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.NumAgents() != 2 {
		t.Fatalf("expected 2 agents after removal, got %d", s.NumAgents())
	}
	if _, err := s.AgentPosition(b); err != nil {
		t.Errorf("agent b should still be reachable: %v", err)
	}
	if _, err := s.AgentPosition(c); err != nil {
		t.Errorf("agent c should still be reachable: %v", err)
	}
	if _, err := s.AgentPosition(a); err != ErrUnknownAgent {
		t.Errorf("removed agent should be unreachable, got %v", err)
	}
}

// TestEmptySkyAgentReachesPrefVelocity covers scenario S2: a single
// agent with no neighbours converges its velocity to prefVelocity
// (clamped to MaxSpeed) in one step.
func TestEmptySkyAgentReachesPrefVelocity(t *testing.T) {
	s := newTestSimulator(t)
	id, _ := s.AddAgent(spatial.Vec3{})
	if err := s.SetAgentPrefVelocity(id, spatial.Vec3{X: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.DoStep()

	v, err := s.AgentVelocity(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(float64(v.X-1)) > 1e-4 || v.Y != 0 || v.Z != 0 {
		t.Errorf("expected velocity (1,0,0), got %+v", v)
	}

	n, err := s.AgentNumNeighbors(id)
	if err != nil || n != 0 {
		t.Errorf("expected 0 neighbors, got %d (err=%v)", n, err)
	}
}

// TestHeadOnPairDiverges covers scenario S1: two agents approaching
// head-on along the X axis must each acquire a nonzero lateral (Y/Z)
// velocity component to avoid passing through one another.
func TestHeadOnPairDiverges(t *testing.T) {
	s := newTestSimulator(t)
	left, _ := s.AddAgent(spatial.Vec3{X: -5})
	right, _ := s.AddAgent(spatial.Vec3{X: 5})
	s.SetAgentPrefVelocity(left, spatial.Vec3{X: 1})
	s.SetAgentPrefVelocity(right, spatial.Vec3{X: -1})

	for i := 0; i < 8; i++ {
		s.DoStep()
	}

	vl, _ := s.AgentVelocity(left)
	vr, _ := s.AgentVelocity(right)

	if vl.Y == 0 && vl.Z == 0 {
		t.Errorf("expected left agent to acquire lateral velocity, got %+v", vl)
	}
	if vr.Y == 0 && vr.Z == 0 {
		t.Errorf("expected right agent to acquire lateral velocity, got %+v", vr)
	}

	pl, _ := s.AgentPosition(left)
	pr, _ := s.AgentPosition(right)
	dx := pr.X - pl.X
	dy := pr.Y - pl.Y
	dz := pr.Z - pl.Z
	distSq := dx*dx + dy*dy + dz*dz
	combined := float32(1.0) // two radii of 0.5
	if distSq < combined*combined*0.25 {
		t.Errorf("agents appear to have collided: distSq=%f", distSq)
	}
}

// TestGroupsToIgnoreOverridesAvoid covers the ignore-dominates-avoid
// semantics: an agent configured to both avoid and ignore one specific
// group must pass straight through a neighbour in that group.
func TestGroupsToIgnoreOverridesAvoid(t *testing.T) {
	s := newTestSimulator(t)

	mover, _ := s.AddAgentWithParams(spatial.Vec3{X: -2}, AgentParams{
		NeighborDist:   15, MaxNeighbors: 10, TimeHorizon: 10, Radius: 0.5, MaxSpeed: 2,
		AvoidanceGroup: 1 << 0, GroupsToAvoid: 1 << 1, GroupsToIgnore: 1 << 1,
		Velocity: spatial.Vec3{X: 1},
	})
	s.SetAgentPrefVelocity(mover, spatial.Vec3{X: 1})

	_, _ = s.AddAgentWithParams(spatial.Vec3{X: 0}, AgentParams{
		NeighborDist: 15, MaxNeighbors: 10, TimeHorizon: 10, Radius: 0.5, MaxSpeed: 0,
		AvoidanceGroup: 1 << 1, GroupsToAvoid: groups.None,
	})

	s.DoStep()

	v, _ := s.AgentVelocity(mover)
	if math.Abs(float64(v.X-1)) > 1e-4 || v.Y != 0 || v.Z != 0 {
		t.Errorf("expected ignored obstacle to have no effect, got velocity %+v", v)
	}
}

// TestMaxNeighborsTruncation covers scenario S5: with many agents
// clustered together, the simulator must still produce a valid step
// when MaxNeighbors caps the neighbour list below the cluster size.
func TestMaxNeighborsTruncation(t *testing.T) {
	s := newTestSimulator(t)
	s.SetAgentDefaults(AgentParams{
		NeighborDist: 50, MaxNeighbors: 3, TimeHorizon: 10, Radius: 0.5, MaxSpeed: 2,
		AvoidanceGroup: groups.All, GroupsToAvoid: groups.All,
	})

	var ids []uint32
	for i := 0; i < 20; i++ {
		id, _ := s.AddAgent(spatial.Vec3{X: float32(i % 5), Y: float32(i / 5)})
		ids = append(ids, id)
		s.SetAgentPrefVelocity(id, spatial.Vec3{X: 1})
	}

	s.DoStep()

	for _, id := range ids {
		n, err := s.AgentNumNeighbors(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n > 3 {
			t.Errorf("agent %d has %d neighbors, want <= 3", id, n)
		}
		valid, err := s.IsAgentValid(id)
		if err != nil || !valid {
			t.Errorf("agent %d expected valid velocity, valid=%v err=%v", id, valid, err)
		}
	}
}

// TestLP4FallbackStaysWithinSpeedLimit covers scenario S6: when an
// agent is surrounded closely enough that LP3 is infeasible, the LP4
// relaxation must still respect MaxSpeed.
func TestLP4FallbackStaysWithinSpeedLimit(t *testing.T) {
	s := newTestSimulator(t)
	s.SetAgentDefaults(AgentParams{
		NeighborDist: 10, MaxNeighbors: 10, TimeHorizon: 2, Radius: 0.5, MaxSpeed: 1,
		AvoidanceGroup: groups.All, GroupsToAvoid: groups.All,
	})

	center, _ := s.AddAgent(spatial.Vec3{})
	s.SetAgentPrefVelocity(center, spatial.Vec3{})

	dirs := []spatial.Vec3{
		{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1},
	}
	for _, d := range dirs {
		id, _ := s.AddAgentWithParams(d.Scale(0.9), AgentParams{
			NeighborDist: 10, MaxNeighbors: 10, TimeHorizon: 2, Radius: 0.5, MaxSpeed: 1,
			AvoidanceGroup: groups.All, GroupsToAvoid: groups.All,
			Velocity: d.Scale(-1),
		})
		s.SetAgentPrefVelocity(id, d.Scale(-1))
	}

	s.DoStep()

	v, _ := s.AgentVelocity(center)
	if v.Length() > 1.0001 {
		t.Errorf("expected velocity within speed limit, got length %f", v.Length())
	}
}

func TestZeroAgentStepAdvancesTime(t *testing.T) {
	s := newTestSimulator(t)
	s.DoStep()
	if s.GlobalTime() != 0.25 {
		t.Errorf("expected global time 0.25, got %f", s.GlobalTime())
	}
}

func TestParallelComputeMatchesSequential(t *testing.T) {
	build := func(parallelism int) []spatial.Vec3 {
		s := newTestSimulator(t)
		s.SetParallelism(parallelism)
		var ids []uint32
		for i := 0; i < 12; i++ {
			id, _ := s.AddAgent(spatial.Vec3{X: float32(i), Y: float32(i % 3)})
			ids = append(ids, id)
			s.SetAgentPrefVelocity(id, spatial.Vec3{X: -1})
		}
		s.DoStep()
		out := make([]spatial.Vec3, len(ids))
		for i, id := range ids {
			out[i], _ = s.AgentVelocity(id)
		}
		return out
	}

	seq := build(0)
	par := build(4)

	for i := range seq {
		if math.Abs(float64(seq[i].X-par[i].X)) > 1e-5 ||
			math.Abs(float64(seq[i].Y-par[i].Y)) > 1e-5 ||
			math.Abs(float64(seq[i].Z-par[i].Z)) > 1e-5 {
			t.Errorf("agent %d: sequential %+v != parallel %+v", i, seq[i], par[i])
		}
	}
}

func TestIgnoredNeighborIDExcludedFromNeighborList(t *testing.T) {
	s := newTestSimulator(t)
	a, _ := s.AddAgent(spatial.Vec3{})
	b, _ := s.AddAgent(spatial.Vec3{X: 1})

	if err := s.AddIgnoredNeighbor(a, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.DoStep()

	n, _ := s.AgentNumNeighbors(a)
	if n != 0 {
		t.Errorf("expected ignored neighbor to be excluded, got %d neighbors", n)
	}

	if err := s.RemoveIgnoredNeighbor(a, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.DoStep()
	n, _ = s.AgentNumNeighbors(a)
	if n != 1 {
		t.Errorf("expected neighbor visible again after RemoveIgnoredNeighbor, got %d", n)
	}
}

func TestAgentORCAPlaneIndexOutOfRange(t *testing.T) {
	s := newTestSimulator(t)
	id, _ := s.AddAgent(spatial.Vec3{})
	s.DoStep()

	if _, err := s.AgentORCAPlane(id, 0); err == nil {
		t.Errorf("expected error indexing into empty plane list")
	}
}

func TestSetAgentIgnoredNeighborsReplacesSetWholesale(t *testing.T) {
	s := newTestSimulator(t)
	a, _ := s.AddAgent(spatial.Vec3{})
	b, _ := s.AddAgent(spatial.Vec3{X: 1})
	c, _ := s.AddAgent(spatial.Vec3{X: -1})

	if err := s.AddIgnoredNeighbor(a, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Bulk-replace should drop b from the ignore set and add c instead,
	// in one call rather than an Add/Remove pair.
	if err := s.SetAgentIgnoredNeighbors(a, []uint32{c}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.DoStep()

	n, _ := s.AgentNumNeighbors(a)
	if n != 1 {
		t.Fatalf("expected exactly 1 neighbor (b) visible, got %d", n)
	}
	neighborID, _ := s.AgentNeighbor(a, 0)
	if neighborID != b {
		t.Errorf("expected b (%d) to be the visible neighbor, got %d", b, neighborID)
	}
}

func TestSetAgentIgnoredNeighborsEmptySliceClears(t *testing.T) {
	s := newTestSimulator(t)
	a, _ := s.AddAgent(spatial.Vec3{})
	b, _ := s.AddAgent(spatial.Vec3{X: 1})

	if err := s.AddIgnoredNeighbor(a, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetAgentIgnoredNeighbors(a, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.DoStep()

	n, _ := s.AgentNumNeighbors(a)
	if n != 1 {
		t.Errorf("expected ignore set cleared and b visible again, got %d neighbors", n)
	}
}

func TestSetAgentIgnoredNeighborsUnknownAgent(t *testing.T) {
	s := newTestSimulator(t)
	if err := s.SetAgentIgnoredNeighbors(99, []uint32{1}); err != ErrUnknownAgent {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestPerfCollectorRecordsAllFourPhases(t *testing.T) {
	s := newTestSimulator(t)
	pc := telemetry.NewPerfCollector(10)
	s.SetPerfCollector(pc)

	a, _ := s.AddAgent(spatial.Vec3{})
	s.SetAgentPrefVelocity(a, spatial.Vec3{X: 1})
	s.AddAgent(spatial.Vec3{X: 1})

	s.DoStep()

	stats := s.PerfStats()
	for _, phase := range []string{
		telemetry.PhaseTreeBuild, telemetry.PhaseNeighborSearch,
		telemetry.PhaseVelocityCompute, telemetry.PhaseApply,
	} {
		if _, ok := stats.PhaseAvg[phase]; !ok {
			t.Errorf("expected phase %q to be recorded", phase)
		}
	}
}

func TestPerfStatsZeroWithoutCollector(t *testing.T) {
	s := newTestSimulator(t)
	s.AddAgent(spatial.Vec3{})
	s.DoStep()

	if stats := s.PerfStats(); stats.AvgStepDuration != 0 {
		t.Errorf("expected zero PerfStats when no collector attached, got %+v", stats)
	}
}

func TestStepRecordSummarizesCurrentAgents(t *testing.T) {
	s := newTestSimulator(t)
	a, _ := s.AddAgent(spatial.Vec3{})
	s.SetAgentPrefVelocity(a, spatial.Vec3{X: 1})
	b, _ := s.AddAgent(spatial.Vec3{X: 2})
	s.SetAgentPrefVelocity(b, spatial.Vec3{X: -1})

	s.DoStep()

	rec := s.StepRecord(1)
	if rec.NumAgents != 2 {
		t.Fatalf("expected 2 agents in record, got %d", rec.NumAgents)
	}
	if rec.Step != 1 {
		t.Errorf("expected step 1, got %d", rec.Step)
	}
	if rec.InvalidAgents != 0 {
		t.Errorf("expected 0 invalid agents, got %d", rec.InvalidAgents)
	}
}
