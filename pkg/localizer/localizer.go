// Package localizer works out the robot's heading, and in full circle mode its
// position, from a single forward facing range sensor when the robot starts in
// a corner tile of a rectangular arena.
package localizer

import (
	"context"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/poll"
)

var (
	ErrBufferExhausted = errors.New("scan buffer filled before a full turn")
	ErrDegenerateScan  = errors.New("scan has no usable wall readings")
)

// Driver is the part of the navigator the localizer steers with.
type Driver interface {
	SetSpeeds(left, right float64) error
	TurnTo(ctx context.Context, heading float64, stop bool) error
	TravelTo(ctx context.Context, x, y float64) error
}

type Deps struct {
	Driver      Driver
	Left, Right hardware.Motor
	Odometer    hardware.Odometer
	Sensor      hardware.RangeSensor
	// Optional; beeps when the scan buffer fills up.
	Alerter hardware.Alerter
	Chassis chassis.Dimensions
	Clock   clock.Clock
}

type Localizer struct {
	cfg Config
	log *zap.SugaredLogger

	nav         Driver
	left, right hardware.Motor
	odo         hardware.Odometer
	sensor      hardware.RangeSensor
	alerter     hardware.Alerter
	chassis     chassis.Dimensions
	clock       clock.Clock
}

// Result describes one localization run.
type Result struct {
	Strategy Strategy

	// Edge strategies only.
	HeadingA, HeadingB float64
	ZeroPoint          float64

	// Full circle only.
	Samples  []Sample
	Analysis *Analysis

	// The pose written to the odometer.
	Pose hardware.Pose
}

func New(cfg Config, deps Deps, log *zap.SugaredLogger) (*Localizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Driver == nil || deps.Left == nil || deps.Right == nil || deps.Odometer == nil || deps.Sensor == nil {
		return nil, errors.New("localizer needs a driver, both motors, an odometer and a range sensor")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Localizer{
		cfg:     cfg,
		log:     log,
		nav:     deps.Driver,
		left:    deps.Left,
		right:   deps.Right,
		odo:     deps.Odometer,
		sensor:  deps.Sensor,
		alerter: deps.Alerter,
		chassis: deps.Chassis,
		clock:   deps.Clock,
	}, nil
}

// Localize runs the configured strategy once.  On failure the wheels are left
// stopped.
func (l *Localizer) Localize(ctx context.Context) (Result, error) {
	l.log.Infof("Localizing using %v", l.cfg.Strategy)
	if err := l.prepareMotors(); err != nil {
		return Result{Strategy: l.cfg.Strategy}, err
	}

	var res Result
	var err error
	switch l.cfg.Strategy {
	case FallingEdge:
		res, err = l.edgeLocalize(ctx, fallingEdge)
	case RisingEdge:
		res, err = l.edgeLocalize(ctx, risingEdge)
	default:
		res, err = l.fullCircle(ctx)
	}
	res.Strategy = l.cfg.Strategy
	if err != nil {
		if stopErr := l.stopWheels(); stopErr != nil {
			l.log.Warnf("Failed to stop wheels: %v", stopErr)
		}
		return res, errors.Wrapf(err, "%v localization failed", l.cfg.Strategy)
	}
	l.log.Infof("Localized: pose now (%.1f, %.1f) heading %.1f", res.Pose.X, res.Pose.Y, res.Pose.Heading)
	return res, nil
}

func (l *Localizer) prepareMotors() error {
	return errors.Wrap(multierr.Combine(
		l.left.SetAcceleration(l.cfg.Acceleration),
		l.right.SetAcceleration(l.cfg.Acceleration),
		l.left.SetSpeed(l.cfg.RotationSpeed),
		l.right.SetSpeed(l.cfg.RotationSpeed),
	), "failed to prepare motors")
}

// stopWheels brakes both wheels without touching their speed settings.
func (l *Localizer) stopWheels() error {
	return errors.Wrap(multierr.Combine(l.left.Stop(), l.right.Stop()), "failed to stop wheels")
}

type rotation int

const (
	clockwise rotation = iota
	anticlockwise
)

func (r rotation) reverse() rotation {
	if r == clockwise {
		return anticlockwise
	}
	return clockwise
}

func (r rotation) String() string {
	if r == clockwise {
		return "clockwise"
	}
	return "anticlockwise"
}

type edge int

const (
	// The distance drops below the wall threshold: a wall comes into view.
	fallingEdge edge = iota
	// The distance rises above the wall threshold: the wall goes out of view.
	risingEdge
)

// edgeLocalize latches the heading of the same edge sweeping both ways, then
// turns to face along the X axis.
func (l *Localizer) edgeLocalize(ctx context.Context, e edge) (Result, error) {
	var res Result
	first, offset, finalHeading := clockwise, 45.0, 0.0
	if e == risingEdge {
		first, offset, finalHeading = anticlockwise, -45.0, 90.0
	}

	if err := l.sweepToEdge(ctx, first, e); err != nil {
		return res, err
	}
	res.HeadingA = l.odo.Pose().Heading
	l.log.Infof("Latched heading A: %.1f", res.HeadingA)

	if err := l.sweepToEdge(ctx, first.reverse(), e); err != nil {
		return res, err
	}
	if err := l.stopWheels(); err != nil {
		return res, err
	}
	res.HeadingB = l.odo.Pose().Heading
	l.log.Infof("Latched heading B: %.1f", res.HeadingB)

	res.ZeroPoint = zeroPoint(res.HeadingA, res.HeadingB, offset)
	l.log.Infof("Rotating %.1f degrees clockwise to the zero point", res.ZeroPoint)
	if err := l.spinClockwise(ctx, res.ZeroPoint); err != nil {
		return res, err
	}

	res.Pose = hardware.Pose{Heading: finalHeading}
	l.odo.SetPosition(res.Pose, hardware.AllFields)
	return res, nil
}

// sweepToEdge spins in the given direction until the sensor crosses the wall
// threshold the given way.  It first spins until the sensor is clearly on the
// other side of the threshold, so an edge already in view isn't latched.
func (l *Localizer) sweepToEdge(ctx context.Context, dir rotation, e edge) error {
	leave := func(d float64) bool { return d < l.cfg.WallDist+l.cfg.WallGap }
	reach := func(d float64) bool { return d > l.cfg.WallDist }
	if e == risingEdge {
		leave = func(d float64) bool { return d > l.cfg.WallDist-l.cfg.WallGap }
		reach = func(d float64) bool { return d < l.cfg.WallDist }
	}

	if err := l.spin(dir); err != nil {
		return err
	}
	if err := l.spinWhile(ctx, leave); err != nil {
		return errors.Wrapf(err, "spinning %v to leave the edge", dir)
	}
	if err := l.spinWhile(ctx, reach); err != nil {
		return errors.Wrapf(err, "spinning %v to find the edge", dir)
	}
	return nil
}

func (l *Localizer) spin(dir rotation) error {
	s := l.cfg.RotationSpeed
	if dir == clockwise {
		return l.nav.SetSpeeds(s, -s)
	}
	return l.nav.SetSpeeds(-s, s)
}

func (l *Localizer) spinWhile(ctx context.Context, cond func(dist float64) bool) error {
	return poll.Until(ctx, l.clock, l.cfg.EdgeTimeout, l.cfg.EdgeInterval, func() (bool, error) {
		dist, err := l.sensor.Distance()
		if err != nil {
			return false, errors.Wrap(err, "failed to read range sensor")
		}
		return !cond(dist), nil
	})
}

// spinClockwise turns in place by a fixed angle using wheel rotation targets
// rather than the odometer.  Negative angles turn anticlockwise.
func (l *Localizer) spinClockwise(ctx context.Context, degrees float64) error {
	wheelDegrees := float64(l.chassis.WheelDegreesForSpin(degrees))
	if err := l.left.Rotate(ctx, wheelDegrees, false); err != nil {
		return errors.Wrap(err, "failed to rotate left wheel")
	}
	return errors.Wrap(l.right.Rotate(ctx, -wheelDegrees, true), "failed to rotate right wheel")
}

// zeroPoint returns how far to turn clockwise from heading b to face along the
// X axis, given the headings a and b at which the same edge was seen sweeping
// each way.  The bisector of a and b points into the corner.
func zeroPoint(a, b, offset float64) float64 {
	if a > b {
		a -= 360
	}
	avg := (a + b) / 2
	return b - avg + offset
}

func (l *Localizer) fullCircle(ctx context.Context) (Result, error) {
	var res Result
	samples, err := l.scan(ctx)
	res.Samples = samples
	if err != nil {
		if errors.Is(err, ErrBufferExhausted) && l.alerter != nil {
			l.alerter.Alert()
		}
		return res, err
	}
	if err := l.stopWheels(); err != nil {
		return res, err
	}
	l.log.Infof("Scan finished with %d samples", len(samples))

	analysis, err := AnalyzeScan(samples, l.cfg.Scan)
	if err != nil {
		return res, err
	}
	res.Analysis = &analysis
	l.log.Infof("Walls at samples %d (%.1fcm) and %d (%.1fcm); turning to %.1f",
		analysis.FirstWall, analysis.FirstWallDistance,
		analysis.SecondWall, analysis.SecondWallDistance,
		analysis.TargetHeading)

	if err := l.nav.TurnTo(ctx, analysis.TargetHeading, true); err != nil {
		return res, err
	}
	l.odo.SetTheta(l.cfg.Scan.CornerHeading)

	c := math.Max(l.cfg.Scan.TileCM-l.cfg.Scan.SensorOffsetCM-analysis.FirstWallDistance, 0)
	if err := l.nav.TravelTo(ctx, c, c); err != nil {
		return res, err
	}
	res.Pose = l.odo.Pose()
	return res, nil
}
