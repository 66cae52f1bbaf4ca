package localizer

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Strategy int

const (
	FallingEdge Strategy = iota
	RisingEdge
	FullCircle
)

var strategyNames = map[Strategy]string{
	FallingEdge: "falling_edge",
	RisingEdge:  "rising_edge",
	FullCircle:  "full_circle",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

func ParseStrategy(name string) (Strategy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for s, n := range strategyNames {
		if n == normalized {
			return s, nil
		}
	}
	return 0, errors.Errorf("unknown localization strategy %q", name)
}

func (s *Strategy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseStrategy(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Strategy) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

type Config struct {
	Strategy Strategy `yaml:"strategy"`

	// A reading below WallDist means a wall is in front of the sensor.
	// WallGap is the hysteresis band used when leaving the current state.
	WallDist float64 `yaml:"wall_dist"`
	WallGap  float64 `yaml:"wall_gap"`

	// Wheel speed and acceleration while localizing, in wheel degrees.
	RotationSpeed float64 `yaml:"rotation_speed"`
	Acceleration  float64 `yaml:"acceleration"`

	// Each sweep phase of the edge strategies must finish within EdgeTimeout.
	// EdgeInterval paces the sensor reads; zero is a tight loop.
	EdgeTimeout  time.Duration `yaml:"edge_timeout"`
	EdgeInterval time.Duration `yaml:"edge_interval"`

	Scan ScanConfig `yaml:"scan"`
}

// ScanConfig controls the full circle strategy.
type ScanConfig struct {
	Capacity       int           `yaml:"capacity"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	Timeout        time.Duration `yaml:"timeout"`

	// The first few readings after the sensor starts are unreliable.
	WarmupSamples int `yaml:"warmup_samples"`
	// Readings within Capacity*ExclusionFraction samples of the nearest wall
	// are not considered for the second wall.
	ExclusionFraction float64 `yaml:"exclusion_fraction"`
	// Detected minima lag the true wall direction; they are pushed forward by
	// Capacity/IndexCorrectionDivisor samples.
	IndexCorrectionDivisor int `yaml:"index_correction_divisor"`
	// If set, the second wall is instead pushed forward by its own index
	// divided by IndexCorrectionDivisor.
	SecondWallSelfCorrection bool `yaml:"second_wall_self_correction"`

	// The chosen wall heading minus HeadingOffset faces the corner diagonal,
	// which is then declared to be CornerHeading.
	HeadingOffset float64 `yaml:"heading_offset"`
	CornerHeading float64 `yaml:"corner_heading"`

	// After turning, the robot drives onto the centre of the corner tile.
	TileCM         float64 `yaml:"tile_cm"`
	SensorOffsetCM float64 `yaml:"sensor_offset_cm"`

	// Readings at or above MaxRangeCM mean nothing was seen.
	MaxRangeCM float64 `yaml:"max_range_cm"`
}

func DefaultConfig() Config {
	return Config{
		Strategy:      FullCircle,
		WallDist:      35,
		WallGap:       3,
		RotationSpeed: 160,
		Acceleration:  800,
		EdgeTimeout:   30 * time.Second,
		Scan:          DefaultScanConfig(),
	}
}

func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Capacity:                 250,
		PollInterval:             25 * time.Millisecond,
		SampleInterval:           50 * time.Millisecond,
		Timeout:                  time.Minute,
		WarmupSamples:            4,
		ExclusionFraction:        0.1,
		IndexCorrectionDivisor:   25,
		SecondWallSelfCorrection: true,
		HeadingOffset:            145,
		CornerHeading:            45,
		TileCM:                   30.4,
		SensorOffsetCM:           10,
		MaxRangeCM:               255,
	}
}

func (c Config) Validate() error {
	if _, ok := strategyNames[c.Strategy]; !ok {
		return errors.Errorf("unknown localization strategy %d", c.Strategy)
	}
	if c.WallDist <= 0 || c.WallGap < 0 || c.WallGap >= c.WallDist {
		return errors.Errorf("need 0 <= wall_gap < wall_dist (wall_dist=%v wall_gap=%v)", c.WallDist, c.WallGap)
	}
	if c.RotationSpeed <= 0 {
		return errors.Errorf("rotation_speed must be positive, not %v", c.RotationSpeed)
	}
	if c.EdgeTimeout < 0 || c.EdgeInterval < 0 {
		return errors.New("edge durations must not be negative")
	}
	return errors.Wrap(c.Scan.Validate(), "bad scan config")
}

func (c ScanConfig) Validate() error {
	if c.Capacity <= c.WarmupSamples {
		return errors.Errorf("capacity (%d) must exceed warmup_samples (%d)", c.Capacity, c.WarmupSamples)
	}
	if c.WarmupSamples < 0 {
		return errors.New("warmup_samples must not be negative")
	}
	if c.IndexCorrectionDivisor <= 0 {
		return errors.Errorf("index_correction_divisor must be positive, not %d", c.IndexCorrectionDivisor)
	}
	if c.ExclusionFraction < 0 || c.ExclusionFraction >= 0.5 {
		return errors.Errorf("exclusion_fraction must be in [0, 0.5), not %v", c.ExclusionFraction)
	}
	if c.MaxRangeCM <= 0 {
		return errors.Errorf("max_range_cm must be positive, not %v", c.MaxRangeCM)
	}
	if c.PollInterval < 0 || c.SampleInterval < 0 || c.Timeout < 0 {
		return errors.New("scan durations must not be negative")
	}
	return nil
}
