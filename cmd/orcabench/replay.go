package main

import (
	"fmt"

	"github.com/pthm-cable/orca3d/sim"
	"github.com/pthm-cable/orca3d/telemetry"
)

// replayBest runs the circle scenario once more under the winning
// parameters with full telemetry enabled, writing telemetry.csv (one
// row per step) and perf.csv (one rolling-window snapshot at the end)
// into outputDir via an OutputManager.
func replayBest(defaults sim.AgentParams, numAgents int, radius float32, maxSteps int, dt float32, outputDir string) error {
	om, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return fmt.Errorf("opening telemetry output: %w", err)
	}
	defer om.Close()

	s := sim.New()
	s.SetTimeStep(dt)
	s.SetAgentDefaults(defaults)
	s.SetPerfCollector(telemetry.NewPerfCollector(maxSteps))

	positions, prefVelocities := circleScenario(numAgents, radius)
	for i, p := range positions {
		id, err := s.AddAgent(p)
		if err != nil {
			return fmt.Errorf("adding agent %d: %w", i, err)
		}
		if err := s.SetAgentPrefVelocity(id, prefVelocities[i]); err != nil {
			return fmt.Errorf("setting preferred velocity for agent %d: %w", i, err)
		}
	}

	for step := 0; step < maxSteps; step++ {
		s.DoStep()
		if err := om.WriteStep(s.StepRecord(int32(step + 1))); err != nil {
			return fmt.Errorf("step %d: %w", step+1, err)
		}
	}

	return om.WritePerf(s.PerfStats(), int32(maxSteps))
}
