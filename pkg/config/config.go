// Package config loads the robot's YAML configuration.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	yaml "gopkg.in/yaml.v2"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/avoider"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/localizer"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/navigation"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/picobldc"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/sound"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/ultrasonic"
)

const DefaultPath = "/cfg/navigator.yaml"

type Config struct {
	Chassis      chassis.Dimensions `yaml:"chassis"`
	Navigation   navigation.Config  `yaml:"navigation"`
	Localization localizer.Config   `yaml:"localization"`
	Avoider      avoider.Config     `yaml:"avoider"`
	Hardware     Hardware           `yaml:"hardware"`
	Sounds       sound.Config       `yaml:"sounds"`
	Sim          Sim                `yaml:"sim"`
	Log          Log                `yaml:"log"`

	// Overrides for named tunables, applied after everything is built.
	Tunables map[string]float64 `yaml:"tunables"`
}

type Hardware struct {
	Drive          picobldc.DriveConfig `yaml:"drive"`
	Ultrasonic     ultrasonic.Config    `yaml:"ultrasonic"`
	OdometerPeriod time.Duration        `yaml:"odometer_period"`
}

// Sim configures the simulated arena used by --sim.
type Sim struct {
	Step         time.Duration `yaml:"step"`
	ArenaTiles   float64       `yaml:"arena_tiles"`
	StartX       float64       `yaml:"start_x"`
	StartY       float64       `yaml:"start_y"`
	StartHeading float64       `yaml:"start_heading"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	return Config{
		Chassis:      chassis.Default(),
		Navigation:   navigation.DefaultConfig(),
		Localization: localizer.DefaultConfig(),
		Avoider:      avoider.DefaultConfig(),
		Hardware: Hardware{
			Drive:          picobldc.DefaultDriveConfig(),
			Ultrasonic:     ultrasonic.DefaultConfig(),
			OdometerPeriod: 10 * time.Millisecond,
		},
		Sounds: sound.DefaultConfig(),
		Sim: Sim{
			Step:         25 * time.Millisecond,
			ArenaTiles:   8,
			StartX:       12,
			StartY:       18,
			StartHeading: 30,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the config file at path over the defaults.  An empty path means
// use the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config")
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse %s", path)
	}
	return cfg, errors.Wrapf(cfg.Validate(), "invalid config in %s", path)
}

// Save writes the config out, so that there's a record of what a run used.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0666), "failed to write config")
}

func (c Config) Validate() error {
	var err error
	if c.Chassis.WheelRadiusCM <= 0 || c.Chassis.TrackCM <= 0 {
		err = multierr.Append(err, errors.New("chassis dimensions must be positive"))
	}
	if c.Hardware.OdometerPeriod <= 0 {
		err = multierr.Append(err, errors.New("odometer_period must be positive"))
	}
	if c.Sim.Step <= 0 || c.Sim.ArenaTiles <= 0 {
		err = multierr.Append(err, errors.New("sim step and arena_tiles must be positive"))
	}
	if _, levelErr := c.Log.level(); levelErr != nil {
		err = multierr.Append(err, levelErr)
	}
	return multierr.Combine(
		err,
		errors.Wrap(c.Navigation.Validate(), "navigation"),
		errors.Wrap(c.Localization.Validate(), "localization"),
		errors.Wrap(c.Avoider.Validate(), "avoider"),
		errors.Wrap(c.Hardware.Drive.Validate(), "drive"),
		errors.Wrap(c.Hardware.Ultrasonic.Validate(), "ultrasonic"),
		errors.Wrap(c.Sounds.Validate(), "sounds"),
	)
}

func (l Log) level() (zapcore.Level, error) {
	var level zapcore.Level
	if l.Level == "" {
		return zapcore.InfoLevel, nil
	}
	err := level.UnmarshalText([]byte(strings.ToLower(l.Level)))
	return level, errors.Wrapf(err, "bad log level %q", l.Level)
}

// Build makes the root logger.
func (l Log) Build() (*zap.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
