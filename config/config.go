// Package config loads simulation scenario configuration: agent
// defaults and named presets, with embedded YAML defaults overridable
// from a user-supplied file.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/orca3d/groups"
	"github.com/pthm-cable/orca3d/sim"
	"github.com/pthm-cable/orca3d/spatial"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds everything needed to seed a Simulator for a scenario
// run: its time step, default agent parameters, and a named scenario
// catalog (e.g. "circle", "corridor").
type Config struct {
	Physics   PhysicsConfig             `yaml:"physics"`
	Defaults  AgentDefaultsConfig       `yaml:"defaults"`
	Scenarios map[string]ScenarioConfig `yaml:"scenarios"`
}

// PhysicsConfig holds the simulator-wide time step.
type PhysicsConfig struct {
	DT float64 `yaml:"dt"`
}

// AgentDefaultsConfig mirrors sim.AgentParams with YAML tags; group
// fields are names resolved against a scenario's Groups table rather
// than raw bitmasks.
type AgentDefaultsConfig struct {
	NeighborDist   float64  `yaml:"neighbor_dist"`
	MaxNeighbors   int      `yaml:"max_neighbors"`
	TimeHorizon    float64  `yaml:"time_horizon"`
	Radius         float64  `yaml:"radius"`
	MaxSpeed       float64  `yaml:"max_speed"`
	AvoidanceGroup []string `yaml:"avoidance_group"`
	GroupsToAvoid  []string `yaml:"groups_to_avoid"`
	GroupsToIgnore []string `yaml:"groups_to_ignore"`
}

// ScenarioConfig describes a named starting configuration: a fixed set
// of group names mapped to bit positions, and a list of agents placed
// at explicit positions with explicit preferred velocities.
type ScenarioConfig struct {
	Groups []string        `yaml:"groups"`
	Agents []ScenarioAgent `yaml:"agents"`
	Radius float64         `yaml:"radius"`
}

// ScenarioAgent is one agent's initial placement within a scenario.
type ScenarioAgent struct {
	Position     [3]float64 `yaml:"position"`
	PrefVelocity [3]float64 `yaml:"pref_velocity"`
	Group        string     `yaml:"group"`
}

// Load reads configuration from a YAML file, falling back to the
// embedded defaults for any field the file doesn't set. If path is
// empty, only the embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return cfg, nil
}

// AgentParams converts the default agent configuration into
// sim.AgentParams, resolving group names against groupIndex.
func (c *Config) AgentParams(groupIndex map[string]uint) sim.AgentParams {
	return sim.AgentParams{
		NeighborDist:   float32(c.Defaults.NeighborDist),
		MaxNeighbors:   c.Defaults.MaxNeighbors,
		TimeHorizon:    float32(c.Defaults.TimeHorizon),
		Radius:         float32(c.Defaults.Radius),
		MaxSpeed:       float32(c.Defaults.MaxSpeed),
		AvoidanceGroup: resolveGroups(c.Defaults.AvoidanceGroup, groupIndex),
		GroupsToAvoid:  resolveGroups(c.Defaults.GroupsToAvoid, groupIndex),
		GroupsToIgnore: resolveGroups(c.Defaults.GroupsToIgnore, groupIndex),
	}
}

// GroupIndex assigns each name in names a distinct bit position,
// starting at bit 0, in the order given.
func GroupIndex(names []string) map[string]uint {
	idx := make(map[string]uint, len(names))
	for i, name := range names {
		idx[name] = uint(i)
	}
	return idx
}

func resolveGroups(names []string, index map[string]uint) groups.Groups {
	var g groups.Groups
	for _, name := range names {
		if bit, ok := index[name]; ok {
			g = g.Add(1 << bit)
		}
	}
	return g
}

// PositionVec converts a scenario agent's raw [3]float64 position into
// spatial.Vec3.
func (a ScenarioAgent) PositionVec() spatial.Vec3 {
	return spatial.Vec3{X: float32(a.Position[0]), Y: float32(a.Position[1]), Z: float32(a.Position[2])}
}

// PrefVelocityVec converts the scenario agent's preferred velocity into
// spatial.Vec3.
func (a ScenarioAgent) PrefVelocityVec() spatial.Vec3 {
	return spatial.Vec3{X: float32(a.PrefVelocity[0]), Y: float32(a.PrefVelocity[1]), Z: float32(a.PrefVelocity[2])}
}
