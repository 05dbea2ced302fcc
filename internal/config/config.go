// Package config loads and validates the engine configuration from a JSON
// file. All fields are pointer-valued so that absent keys fall back to
// defaults rather than zero values; the same file can be re-read at runtime
// to drive a filter-chain reload.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Vertex is a footprint vertex in the robot base frame, metres.
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StageConfig describes one transformation stage of the derivation chain.
// Type selects the implementation from the stage registry; Params carries
// per-stage thresholds and neighbourhood sizes owned by the stage.
type StageConfig struct {
	Type   string             `json:"type"`
	Name   string             `json:"name,omitempty"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	// Frame identifiers are opaque tags, carried through to output maps.
	MapFrameID   *string `json:"map_frame_id,omitempty"`
	RobotFrameID *string `json:"robot_frame_id,omitempty"`

	// Score assumed for cells with no data.
	TraversabilityDefault *float64 `json:"traversability_default,omitempty"`

	// Footprint: either a vertex polygon or a disc. When both are given
	// the polygon wins for path checks and the disc for circular bakes.
	FootprintVertices    []Vertex `json:"footprint_vertices,omitempty"`
	FootprintRadius      *float64 `json:"footprint_radius,omitempty"`
	FootprintInnerRadius *float64 `json:"footprint_inner_radius,omitempty"`

	// Geometric hazard thresholds.
	MaxStepHeightM        *float64 `json:"max_step_height_m,omitempty"`
	MaxSlopeDegrees       *float64 `json:"max_slope_degrees,omitempty"`
	MaxInclinationDegrees *float64 `json:"max_inclination_degrees,omitempty"`
	StepWindowCells       *int     `json:"step_window_cells,omitempty"`
	SlopeWindowCells      *int     `json:"slope_window_cells,omitempty"`
	MinFeatureCells       *int     `json:"min_feature_cells,omitempty"`
	SampleSpacingM        *float64 `json:"sample_spacing_m,omitempty"`

	// Daemon behaviour.
	RecomputeInterval *string `json:"recompute_interval,omitempty"` // duration string like "5s"
	PersistSnapshots  *bool   `json:"persist_snapshots,omitempty"`

	// Ordered derivation chain.
	Chain []StageConfig `json:"chain,omitempty"`
}

// Default returns the configuration used when no file is supplied: a 1x1m
// box footprint and a slope/step/roughness chain with stage defaults.
func Default() *Config {
	c := &Config{
		FootprintVertices: []Vertex{
			{X: 0.5, Y: -0.5}, {X: 0.5, Y: 0.5}, {X: -0.5, Y: 0.5}, {X: -0.5, Y: -0.5},
		},
		Chain: []StageConfig{
			{Type: "slope"},
			{Type: "step"},
			{Type: "roughness"},
			{Type: "robot_slope"},
		},
	}
	c.ApplyDefaults()
	return c
}

// Load reads and parses a config file, then applies defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}

// ApplyDefaults fills every nil field with its default value.
func (c *Config) ApplyDefaults() {
	if c.MapFrameID == nil {
		c.MapFrameID = ptrString("map")
	}
	if c.RobotFrameID == nil {
		c.RobotFrameID = ptrString("base")
	}
	if c.TraversabilityDefault == nil {
		c.TraversabilityDefault = ptrFloat64(0.5)
	}
	if c.FootprintRadius == nil {
		c.FootprintRadius = ptrFloat64(0.5)
	}
	if c.FootprintInnerRadius == nil {
		c.FootprintInnerRadius = ptrFloat64(0)
	}
	if c.MaxStepHeightM == nil {
		c.MaxStepHeightM = ptrFloat64(0.1)
	}
	if c.MaxSlopeDegrees == nil {
		c.MaxSlopeDegrees = ptrFloat64(30)
	}
	if c.MaxInclinationDegrees == nil {
		c.MaxInclinationDegrees = ptrFloat64(25)
	}
	if c.StepWindowCells == nil {
		c.StepWindowCells = ptrInt(1)
	}
	if c.SlopeWindowCells == nil {
		c.SlopeWindowCells = ptrInt(1)
	}
	if c.MinFeatureCells == nil {
		c.MinFeatureCells = ptrInt(3)
	}
	if c.SampleSpacingM == nil {
		c.SampleSpacingM = ptrFloat64(0.05)
	}
	if c.RecomputeInterval == nil {
		c.RecomputeInterval = ptrString("5s")
	}
	if c.PersistSnapshots == nil {
		c.PersistSnapshots = ptrBool(false)
	}
}

// Validate checks field consistency after defaults are applied.
func (c *Config) Validate() error {
	if *c.TraversabilityDefault < 0 || *c.TraversabilityDefault > 1 {
		return fmt.Errorf("traversability_default %g outside [0,1]", *c.TraversabilityDefault)
	}
	if n := len(c.FootprintVertices); n > 0 && n < 3 {
		return fmt.Errorf("footprint_vertices needs at least 3 vertices, got %d", n)
	}
	if *c.FootprintRadius <= 0 {
		return fmt.Errorf("footprint_radius must be positive, got %g", *c.FootprintRadius)
	}
	if *c.FootprintInnerRadius < 0 || *c.FootprintInnerRadius >= *c.FootprintRadius {
		return fmt.Errorf("footprint_inner_radius %g outside [0, radius)", *c.FootprintInnerRadius)
	}
	if *c.SampleSpacingM <= 0 {
		return fmt.Errorf("sample_spacing_m must be positive, got %g", *c.SampleSpacingM)
	}
	if _, err := time.ParseDuration(*c.RecomputeInterval); err != nil {
		return fmt.Errorf("recompute_interval: %w", err)
	}
	for i, sc := range c.Chain {
		if sc.Type == "" {
			return fmt.Errorf("chain[%d]: missing stage type", i)
		}
	}
	return nil
}

// RecomputeEvery returns the parsed recompute interval.
func (c *Config) RecomputeEvery() time.Duration {
	d, err := time.ParseDuration(*c.RecomputeInterval)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }
