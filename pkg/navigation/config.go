package navigation

import (
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	// Wheel speeds in degrees/second.  Fast is used when driving, slow when turning.
	FastSpeed float64 `yaml:"fast_speed"`
	SlowSpeed float64 `yaml:"slow_speed"`

	// Arrival tolerances.
	CmError     float64 `yaml:"cm_error"`
	DegreeError float64 `yaml:"degree_error"`

	Acceleration float64 `yaml:"acceleration"`

	// TravelToAndAvoid hands over to the wall avoider when the range sensor
	// reads below ProximityCM.  The avoider gets a point LookaheadCM ahead.
	ProximityCM float64 `yaml:"proximity_cm"`
	LookaheadCM float64 `yaml:"lookahead_cm"`

	LightLocalizationSpeed float64 `yaml:"light_localization_speed"`

	SettleDelay     time.Duration `yaml:"settle_delay"`
	ControlInterval time.Duration `yaml:"control_interval"`
	TurnTimeout     time.Duration `yaml:"turn_timeout"`
	TravelTimeout   time.Duration `yaml:"travel_timeout"`
}

func DefaultConfig() Config {
	return Config{
		FastSpeed:              120,
		SlowSpeed:              90,
		CmError:                0.5,
		DegreeError:            2.0,
		Acceleration:           1000,
		ProximityCM:            13,
		LookaheadCM:            10,
		LightLocalizationSpeed: 180,
		SettleDelay:            100 * time.Millisecond,
		ControlInterval:        5 * time.Millisecond,
		TurnTimeout:            20 * time.Second,
		TravelTimeout:          2 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.CmError <= 0 {
		return errors.Errorf("cm_error must be positive, not %v", c.CmError)
	}
	if c.DegreeError <= 0 {
		return errors.Errorf("degree_error must be positive, not %v", c.DegreeError)
	}
	if c.FastSpeed <= 0 || c.SlowSpeed <= 0 {
		return errors.Errorf("speeds must be positive (fast=%v slow=%v)", c.FastSpeed, c.SlowSpeed)
	}
	if c.SettleDelay < 0 || c.ControlInterval < 0 || c.TurnTimeout < 0 || c.TravelTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}
