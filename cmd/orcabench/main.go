// Command orcabench searches for the (TimeHorizon, NeighborDist) pair
// that lets a circle-crossing crowd of ORCA agents reach their goals
// fastest without ever colliding, using CMA-ES.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/orca3d/config"
)

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	numAgents := flag.Int("agents", 8, "Number of agents in the circle scenario")
	radius := flag.Float64("radius", 10, "Circle radius")
	maxSteps := flag.Int("max-steps", 2000, "Maximum steps per evaluation before giving up")
	dt := flag.Float64("dt", 0.1, "Simulator time step in seconds")
	maxEvals := flag.Int("max-evals", 100, "Maximum number of CMA-ES evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	configPath := flag.String("config", "", "Optional YAML file overriding the embedded agent defaults")
	outputDir := flag.String("output", "", "Output directory for the evaluation log")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	groupIndex := config.GroupIndex([]string{"agents"})
	defaults := cfg.AgentParams(groupIndex)
	// The circle scenario puts every agent in sight of every other one,
	// so cap neighbours at the agent count rather than the config's
	// general-purpose default.
	defaults.MaxNeighbors = *numAgents

	params := newParamVector()
	evaluator := newFitnessEvaluator(params, defaults, *numAgents, float32(*radius), *maxSteps, float32(*dt))

	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return evaluator.Evaluate(params.Denormalize(x))
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0,
	}

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}

	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	logPath := filepath.Join(*outputDir, "orcabench_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	logWriter := csv.NewWriter(logFile)
	defer logWriter.Flush()

	header := []string{"eval", "cost", "min_gap"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	logWriter.Write(header)

	evalCount := 0
	bestCost := 1e18
	var bestRaw []float64
	startTime := time.Now()

	originalFunc := problem.Func
	problem.Func = func(x []float64) float64 {
		cost := originalFunc(x)
		evalCount++

		raw := params.Denormalize(x)
		if cost < bestCost {
			bestCost = cost
			bestRaw = append([]float64(nil), raw...)
		}

		row := []string{strconv.Itoa(evalCount), fmt.Sprintf("%.6f", cost), fmt.Sprintf("%.6f", evaluator.LastMinGap())}
		for _, v := range raw {
			row = append(row, fmt.Sprintf("%.6f", v))
		}
		logWriter.Write(row)
		logWriter.Flush()

		elapsed := time.Since(startTime)
		avgPerEval := elapsed / time.Duration(evalCount)
		remaining := time.Duration(*maxEvals-evalCount) * avgPerEval
		fmt.Printf("Eval %d/%d: cost=%.1f min_gap=%.3f (best=%.1f) | elapsed: %s, ETA: %s\n",
			evalCount, *maxEvals, cost, evaluator.LastMinGap(), bestCost,
			formatDuration(elapsed), formatDuration(remaining))

		return cost
	}

	fmt.Printf("Searching %d parameters over %d agents, population=%d, max_evals=%d\n",
		dim, *numAgents, popSize, *maxEvals)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}

	if bestRaw == nil {
		bestRaw = params.Denormalize(result.X)
	}

	totalTime := time.Since(startTime)
	fmt.Printf("\nSearch complete after %d evaluations in %s\n", evalCount, formatDuration(totalTime))
	fmt.Printf("Best cost: %.1f\n", bestCost)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Name, bestRaw[i])
	}

	bestDefaults := defaults
	params.ApplyToDefaults(&bestDefaults, bestRaw)
	replayDir := filepath.Join(*outputDir, "best_run")
	if err := os.MkdirAll(replayDir, 0755); err != nil {
		log.Fatalf("failed to create replay directory: %v", err)
	}
	if err := replayBest(bestDefaults, *numAgents, float32(*radius), *maxSteps, float32(*dt), replayDir); err != nil {
		log.Fatalf("failed to replay best parameters: %v", err)
	}
	fmt.Printf("\nReplayed best parameters with full telemetry under %s\n", replayDir)
}
