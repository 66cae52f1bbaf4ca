// Package avoider steps the robot sideways around something blocking its path.
package avoider

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/poll"
)

var ErrBoxedIn = errors.New("blocked on both sides")

// Driver is the part of the navigator the avoider drives with.
type Driver interface {
	SetSpeeds(left, right float64) error
	TurnTo(ctx context.Context, heading float64, stop bool) error
	TravelTo(ctx context.Context, x, y float64) error
}

type Config struct {
	BackoffCM    float64       `yaml:"backoff_cm"`
	BackoffSpeed float64       `yaml:"backoff_speed"`
	ClearanceCM  float64       `yaml:"clearance_cm"`
	Timeout      time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		BackoffCM:    5,
		BackoffSpeed: 90,
		ClearanceCM:  20,
		Timeout:      10 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.BackoffCM < 0 {
		return errors.New("avoider backoff_cm must not be negative")
	}
	if c.BackoffSpeed <= 0 || c.ClearanceCM <= 0 {
		return errors.New("avoider backoff_speed and clearance_cm must be positive")
	}
	return nil
}

type Deps struct {
	Driver   Driver
	Odometer hardware.Odometer
	Sensor   hardware.RangeSensor
	Clock    clock.Clock
}

// Avoider backs away from the obstacle, turns a right angle towards whichever
// side is clear (preferring the side the destination is on), moves across by
// the lookahead distance and then faces the destination again.
type Avoider struct {
	cfg    Config
	log    *zap.SugaredLogger
	driver Driver
	odo    hardware.Odometer
	sensor hardware.RangeSensor
	clock  clock.Clock
}

var _ hardware.WallAvoider = (*Avoider)(nil)

func New(cfg Config, deps Deps, log *zap.SugaredLogger) (*Avoider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Driver == nil || deps.Odometer == nil || deps.Sensor == nil {
		return nil, errors.New("avoider needs a driver, an odometer and a range sensor")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Avoider{
		cfg:    cfg,
		log:    log,
		driver: deps.Driver,
		odo:    deps.Odometer,
		sensor: deps.Sensor,
		clock:  deps.Clock,
	}, nil
}

func (a *Avoider) AvoidWall(ctx context.Context, lookahead, destination r2.Point) error {
	if err := a.backOff(ctx); err != nil {
		return err
	}

	pose := a.odo.Pose()
	sidestep := lookahead.Sub(pose.Point()).Norm()
	toDest := destination.Sub(pose.Point())
	ahead := r2.Point{X: math.Cos(angle.Radians(pose.Heading)), Y: math.Sin(angle.Radians(pose.Heading))}

	// Positive cross product means the destination is to our left.
	turns := []float64{90, -90}
	if ahead.Cross(toDest) < 0 {
		turns = []float64{-90, 90}
	}

	var heading float64
	found := false
	for _, turn := range turns {
		heading = angle.Normalize360(pose.Heading + turn)
		if err := a.driver.TurnTo(ctx, heading, true); err != nil {
			return err
		}
		dist, err := a.sensor.Distance()
		if err != nil {
			return errors.Wrap(err, "failed to read range sensor")
		}
		a.log.Debugf("Heading %.1f: %.1fcm clear", heading, dist)
		if dist >= a.cfg.ClearanceCM {
			found = true
			break
		}
	}
	if !found {
		return ErrBoxedIn
	}

	here := a.odo.Pose().Point()
	r := angle.Radians(heading)
	target := here.Add(r2.Point{X: math.Cos(r), Y: math.Sin(r)}.Mul(sidestep))
	a.log.Infof("Side-stepping %.1fcm to (%.1f, %.1f)", sidestep, target.X, target.Y)
	if err := a.driver.TravelTo(ctx, target.X, target.Y); err != nil {
		return err
	}

	here = a.odo.Pose().Point()
	bearing := angle.Bearing(destination.X-here.X, destination.Y-here.Y)
	return a.driver.TurnTo(ctx, bearing, true)
}

// backOff reverses in a straight line until the robot is BackoffCM from where
// it started.
func (a *Avoider) backOff(ctx context.Context) error {
	if a.cfg.BackoffCM == 0 {
		return nil
	}
	start := a.odo.Pose().Point()
	speed := a.cfg.BackoffSpeed
	if err := a.driver.SetSpeeds(-speed, -speed); err != nil {
		return err
	}
	err := poll.Until(ctx, a.clock, a.cfg.Timeout, 0, func() (bool, error) {
		return a.odo.Pose().Point().Sub(start).Norm() >= a.cfg.BackoffCM, nil
	})
	stopErr := a.driver.SetSpeeds(0, 0)
	if err != nil {
		return errors.Wrap(err, "failed to back off")
	}
	return stopErr
}
