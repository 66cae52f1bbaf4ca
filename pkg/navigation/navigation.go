// Package navigation implements the closed loop motion primitives (turn to a
// heading, travel to a point) on top of two regulated wheel motors and the
// odometer.
package navigation

import (
	"context"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/poll"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/tunable"
)

// Names under which the navigator registers its tunables.
const (
	TunableFastSpeed   = "nav.fast_speed"
	TunableSlowSpeed   = "nav.slow_speed"
	TunableCmError     = "nav.cm_error"
	TunableDegreeError = "nav.degree_error"
)

type Deps struct {
	Left, Right hardware.Motor
	Odometer    hardware.Odometer

	// Only needed by TravelToAndAvoid.
	Sensor  hardware.RangeSensor
	Avoider hardware.WallAvoider
	Alerter hardware.Alerter

	Chassis chassis.Dimensions
	Clock   clock.Clock

	// If set, the speed and tolerance tunables are registered here so they
	// can be overridden by name.
	Tunables *tunable.Tunables
}

type Navigator struct {
	cfg Config
	log *zap.SugaredLogger

	left, right hardware.Motor
	odo         hardware.Odometer
	sensor      hardware.RangeSensor
	avoider     hardware.WallAvoider
	alerter     hardware.Alerter
	chassis     chassis.Dimensions
	clock       clock.Clock

	fast, slow           *tunable.Tunable
	cmError, degreeError *tunable.Tunable
}

func New(cfg Config, deps Deps, log *zap.SugaredLogger) (*Navigator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Left == nil || deps.Right == nil || deps.Odometer == nil {
		return nil, errors.New("navigator needs both motors and an odometer")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	tunables := deps.Tunables
	if tunables == nil {
		tunables = &tunable.Tunables{}
	}

	n := &Navigator{
		cfg:         cfg,
		log:         log,
		left:        deps.Left,
		right:       deps.Right,
		odo:         deps.Odometer,
		sensor:      deps.Sensor,
		avoider:     deps.Avoider,
		alerter:     deps.Alerter,
		chassis:     deps.Chassis,
		clock:       deps.Clock,
		fast:        tunables.Create(TunableFastSpeed, cfg.FastSpeed),
		slow:        tunables.Create(TunableSlowSpeed, cfg.SlowSpeed),
		cmError:     tunables.Create(TunableCmError, cfg.CmError),
		degreeError: tunables.Create(TunableDegreeError, cfg.DegreeError),
	}

	if err := n.setAcceleration(cfg.Acceleration); err != nil {
		return nil, err
	}
	return n, nil
}

// SetWallAvoider installs the avoider used by TravelToAndAvoid.  Avoiders
// usually drive the robot through the navigator, so they can't be passed to New.
func (n *Navigator) SetWallAvoider(a hardware.WallAvoider) {
	n.avoider = a
}

func (n *Navigator) SetFastSpeed(speed float64) {
	n.fast.Set(speed)
}

func (n *Navigator) SetSlowSpeed(speed float64) {
	n.slow.Set(speed)
}

func (n *Navigator) SetCmError(cm float64) error {
	if cm <= 0 {
		return errors.Errorf("cm error must be positive, not %v", cm)
	}
	n.cmError.Set(cm)
	return nil
}

func (n *Navigator) SetDegreeError(deg float64) error {
	if deg <= 0 {
		return errors.Errorf("degree error must be positive, not %v", deg)
	}
	n.degreeError.Set(deg)
	return nil
}

// SetSpeeds drives both wheels; a negative speed drives that wheel backwards.
// (0, 0) brakes both wheels and holds them.
func (n *Navigator) SetSpeeds(left, right float64) error {
	// Speeds first, then direction, so a wheel never briefly runs the old speed
	// in the new direction.
	if err := multierr.Combine(
		n.left.SetSpeed(math.Abs(left)),
		n.right.SetSpeed(math.Abs(right)),
	); err != nil {
		return errors.Wrap(err, "failed to set wheel speeds")
	}
	if err := multierr.Combine(
		setDirection(n.left, left),
		setDirection(n.right, right),
	); err != nil {
		return errors.Wrap(err, "failed to set wheel directions")
	}
	if left == 0 && right == 0 {
		if err := multierr.Combine(n.left.Stop(), n.right.Stop()); err != nil {
			return errors.Wrap(err, "failed to stop wheels")
		}
	}
	return nil
}

func setDirection(m hardware.Motor, speed float64) error {
	if speed < 0 {
		return m.Backward()
	}
	return m.Forward()
}

// SetFloat stops both wheels and then lets them coast.
func (n *Navigator) SetFloat() error {
	return errors.Wrap(multierr.Combine(
		n.left.Stop(),
		n.right.Stop(),
		n.left.Float(),
		n.right.Float(),
	), "failed to float wheels")
}

// TurnTo rotates in place until the heading is within the degree tolerance of
// the target, always turning the short way round.  The wheels are only
// stopped afterwards if stop is true, so that turns can be chained into other
// motions.
func (n *Navigator) TurnTo(ctx context.Context, heading float64, stop bool) error {
	target := angle.Normalize360(heading)
	err := poll.Until(ctx, n.clock, n.cfg.TurnTimeout, n.cfg.ControlInterval, func() (bool, error) {
		e := angle.Error(target, n.odo.Pose().Heading)
		if e.Abs() <= n.degreeError.Get() {
			return true, nil
		}
		slow := n.slow.Get()
		if e.Float() > 0 {
			// Anticlockwise.
			return false, n.SetSpeeds(-slow, slow)
		}
		return false, n.SetSpeeds(slow, -slow)
	})
	if err != nil {
		n.halt()
		return errors.Wrapf(err, "failed to turn to %.1f", target)
	}
	if stop {
		return n.SetSpeeds(0, 0)
	}
	return nil
}

// TravelTo drives to (x, y), re-aiming at the target on every iteration so
// the path curves onto the target rather than following the initial bearing.
func (n *Navigator) TravelTo(ctx context.Context, x, y float64) error {
	return n.pursue(ctx, r2.Point{X: x, Y: y}, false)
}

// TravelToAndAvoid is TravelTo, but hands over to the wall avoider whenever
// something comes within the proximity threshold.
func (n *Navigator) TravelToAndAvoid(ctx context.Context, x, y float64) error {
	if n.sensor == nil || n.avoider == nil {
		return errors.New("travelling with avoidance needs a range sensor and a wall avoider")
	}
	return n.pursue(ctx, r2.Point{X: x, Y: y}, true)
}

func (n *Navigator) pursue(ctx context.Context, dest r2.Point, avoid bool) error {
	n.log.Debugf("Travelling to (%.1f, %.1f)", dest.X, dest.Y)
	err := poll.Until(ctx, n.clock, n.cfg.TravelTimeout, n.cfg.ControlInterval, func() (bool, error) {
		pose := n.odo.Pose()
		cmError := n.cmError.Get()
		if math.Abs(dest.X-pose.X) <= cmError && math.Abs(dest.Y-pose.Y) <= cmError {
			return true, nil
		}

		bearing := angle.Bearing(dest.X-pose.X, dest.Y-pose.Y)
		if err := n.TurnTo(ctx, bearing, false); err != nil {
			return false, err
		}
		fast := n.fast.Get()
		if err := n.SetSpeeds(fast, fast); err != nil {
			return false, err
		}

		if avoid {
			return false, n.avoidIfBlocked(ctx, dest)
		}
		return false, nil
	})
	stopErr := n.SetSpeeds(0, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to travel to (%.1f, %.1f)", dest.X, dest.Y)
	}
	return stopErr
}

func (n *Navigator) avoidIfBlocked(ctx context.Context, dest r2.Point) error {
	dist, err := n.sensor.Distance()
	if err != nil {
		return errors.Wrap(err, "failed to read range sensor")
	}
	if dist >= n.cfg.ProximityCM {
		return nil
	}

	n.log.Infof("Obstacle at %.1fcm, handing over to wall avoider", dist)
	if n.alerter != nil {
		n.alerter.Alert()
		n.alerter.Alert()
	}
	if err := n.SetSpeeds(0, 0); err != nil {
		return err
	}

	pose := n.odo.Pose()
	lookahead := pose.Point().Add(unitVector(pose.Heading).Mul(n.cfg.LookaheadCM))
	if err := n.avoider.AvoidWall(ctx, lookahead, dest); err != nil {
		return errors.Wrap(err, "wall avoider failed")
	}
	n.log.Info("Way is clear, resuming")

	fast := n.fast.Get()
	return n.SetSpeeds(fast, fast)
}

// GoForward drives the given distance along the current heading.
func (n *Navigator) GoForward(ctx context.Context, distance float64) error {
	pose := n.odo.Pose()
	dest := pose.Point().Add(unitVector(pose.Heading).Mul(distance))
	return n.TravelTo(ctx, dest.X, dest.Y)
}

func unitVector(heading float64) r2.Point {
	h := angle.Radians(heading)
	return r2.Point{X: math.Cos(h), Y: math.Sin(h)}
}

// Rotate spins the wheels open loop at the given raw speeds.
func (n *Navigator) Rotate(left, right float64) error {
	if err := n.setAcceleration(n.cfg.Acceleration); err != nil {
		return err
	}
	return n.SetSpeeds(left, right)
}

// StopMotor zeroes both wheel speeds and gives the wheels time to halt.  If ctx
// ends during the wait its error is returned.
func (n *Navigator) StopMotor(ctx context.Context) error {
	err := errors.Wrap(multierr.Combine(n.left.SetSpeed(0), n.right.SetSpeed(0)), "failed to stop wheels")
	poll.Sleep(ctx, n.clock, n.cfg.SettleDelay)
	return multierr.Append(err, ctx.Err())
}

func (n *Navigator) IsRotating() (bool, error) {
	l, err := n.left.IsMoving()
	if err != nil {
		return false, errors.Wrap(err, "failed to read left wheel state")
	}
	r, err := n.right.IsMoving()
	if err != nil {
		return false, errors.Wrap(err, "failed to read right wheel state")
	}
	return l || r, nil
}

// RotateForLightLocalization starts a full anticlockwise spin and returns
// immediately; poll IsRotating to find out when it's done.
func (n *Navigator) RotateForLightLocalization(ctx context.Context) error {
	speed := n.cfg.LightLocalizationSpeed
	if err := multierr.Combine(n.left.SetSpeed(speed), n.right.SetSpeed(speed)); err != nil {
		return errors.Wrap(err, "failed to set wheel speeds")
	}
	wheelDegrees := float64(n.chassis.WheelDegreesForSpin(360))
	return errors.Wrap(multierr.Combine(
		n.left.Rotate(ctx, -wheelDegrees, false),
		n.right.Rotate(ctx, wheelDegrees, false),
	), "failed to start spin")
}

func (n *Navigator) setAcceleration(accel float64) error {
	return errors.Wrap(multierr.Combine(
		n.left.SetAcceleration(accel),
		n.right.SetAcceleration(accel),
	), "failed to set acceleration")
}

// halt stops both wheels after a failure. Its own errors are only logged.
func (n *Navigator) halt() {
	if err := n.SetSpeeds(0, 0); err != nil {
		n.log.Warnf("Failed to stop wheels: %v", err)
	}
}
