package telemetry

// StepRecord is one row of per-step simulation telemetry, flat so it
// can be marshaled directly to CSV.
type StepRecord struct {
	Step           int32   `csv:"step"`
	SimTimeSec     float64 `csv:"sim_time"`
	NumAgents      int     `csv:"num_agents"`
	InvalidAgents  int     `csv:"invalid_agents"`
	AvgNeighbors   float64 `csv:"avg_neighbors"`
	MaxNeighbors   int     `csv:"max_neighbors"`
	AvgSpeed       float64 `csv:"avg_speed"`
	MaxSpeed       float64 `csv:"max_speed"`
	MinPairwiseGap float64 `csv:"min_pairwise_gap"`
}

// StepSample is the raw per-agent data a caller collects once per step
// and feeds to Summarize; it deliberately avoids importing package sim
// so telemetry stays usable from any caller shape.
type StepSample struct {
	NumNeighbors int
	Speed        float64
	Valid        bool
}

// Summarize reduces a step's per-agent samples and the minimum gap
// observed between any pair of agents into a StepRecord.
func Summarize(step int32, simTime float64, samples []StepSample, minPairwiseGap float64) StepRecord {
	rec := StepRecord{
		Step:           step,
		SimTimeSec:     simTime,
		NumAgents:      len(samples),
		MinPairwiseGap: minPairwiseGap,
	}

	if len(samples) == 0 {
		return rec
	}

	var neighborSum, speedSum float64
	for _, s := range samples {
		if !s.Valid {
			rec.InvalidAgents++
		}
		neighborSum += float64(s.NumNeighbors)
		if s.NumNeighbors > rec.MaxNeighbors {
			rec.MaxNeighbors = s.NumNeighbors
		}
		speedSum += s.Speed
		if s.Speed > rec.MaxSpeed {
			rec.MaxSpeed = s.Speed
		}
	}

	rec.AvgNeighbors = neighborSum / float64(len(samples))
	rec.AvgSpeed = speedSum / float64(len(samples))

	return rec
}
