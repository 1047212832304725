// Package telemetry instruments a running Simulator: per-phase timing
// rolling averages, and flat CSV-friendly records a caller can persist
// with an OutputManager.
package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one DoStep call. These match the four phases
// sim.Simulator.DoStep actually executes, in order.
const (
	PhaseTreeBuild       = "tree_build"
	PhaseNeighborSearch  = "neighbor_search"
	PhaseVelocityCompute = "velocity_compute"
	PhaseApply           = "apply"
)

var stepPhases = []string{PhaseTreeBuild, PhaseNeighborSearch, PhaseVelocityCompute, PhaseApply}

// PerfSample holds timing data for a single DoStep call.
type PerfSample struct {
	StepDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks DoStep timing over a rolling window of steps. A
// Simulator feeds it via StartStep/StartPhase/EndStep from inside
// DoStep; it never reaches back into agent state.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	stepStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a collector averaging over the last
// windowSize DoStep calls. windowSize < 1 defaults to 120, enough to
// smooth over a couple of wall-clock seconds at a 60Hz step rate.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 120
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartStep begins timing a new DoStep call.
func (p *PerfCollector) StartStep() {
	p.stepStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase closes out the previous phase (if any) and begins timing
// the named one. Call with one of the Phase* constants, in the order
// DoStep executes them.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndStep closes out the final phase and records the completed step
// into the rolling window.
func (p *PerfCollector) EndStep() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		StepDuration: now.Sub(p.stepStart),
		Phases:       p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics over the window.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	// PhaseAvg is the average duration spent in each phase per step.
	PhaseAvg map[string]time.Duration
	// PhasePct is each phase's average share of AvgStepDuration, in percent.
	PhasePct map[string]float64

	StepsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalStep time.Duration
	var minStep, maxStep time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalStep += s.StepDuration

		if i == 0 || s.StepDuration < minStep {
			minStep = s.StepDuration
		}
		if s.StepDuration > maxStep {
			maxStep = s.StepDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgStep := totalStep / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgStep > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgStep) * 100
		}
	}

	var stepsPerSec float64
	if avgStep > 0 {
		stepsPerSec = float64(time.Second) / float64(avgStep)
	}

	return PerfStats{
		AvgStepDuration: avgStep,
		MinStepDuration: minStep,
		MaxStepDuration: maxStep,
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		StepsPerSecond:  stepsPerSec,
	}
}

// LogStats logs performance statistics via the default slog logger.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_step_us", s.AvgStepDuration.Microseconds(),
		"min_step_us", s.MinStepDuration.Microseconds(),
		"max_step_us", s.MaxStepDuration.Microseconds(),
		"steps_per_sec", int(s.StepsPerSecond),
	}

	for _, phase := range stepPhases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}

	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgStepDuration.Microseconds()),
		slog.Int64("min_step_us", s.MinStepDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxStepDuration.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}

	for phase, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(phase+"_pct", pct))
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd          int32   `csv:"window_end"`
	AvgStepUS          int64   `csv:"avg_step_us"`
	MinStepUS          int64   `csv:"min_step_us"`
	MaxStepUS          int64   `csv:"max_step_us"`
	StepsPerSec        float64 `csv:"steps_per_sec"`
	TreeBuildPct       float64 `csv:"tree_build_pct"`
	NeighborSearchPct  float64 `csv:"neighbor_search_pct"`
	VelocityComputePct float64 `csv:"velocity_compute_pct"`
	ApplyPct           float64 `csv:"apply_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int32) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:          windowEnd,
		AvgStepUS:          s.AvgStepDuration.Microseconds(),
		MinStepUS:          s.MinStepDuration.Microseconds(),
		MaxStepUS:          s.MaxStepDuration.Microseconds(),
		StepsPerSec:        s.StepsPerSecond,
		TreeBuildPct:       s.PhasePct[PhaseTreeBuild],
		NeighborSearchPct:  s.PhasePct[PhaseNeighborSearch],
		VelocityComputePct: s.PhasePct[PhaseVelocityCompute],
		ApplyPct:           s.PhasePct[PhaseApply],
	}
}
