// Package sim is a kinematic simulation of a two wheeled robot in a
// rectangular arena.  It implements the hardware interfaces so that the
// navigation and localization code can run without a robot.
//
// Simulated time only advances when the robot observes the world: every call
// to Pose or Distance moves the robot forward by one Step, as does every step
// of a blocking wheel rotation.  That keeps runs deterministic regardless of
// how fast the host is.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/odometer"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/poll"
)

type Config struct {
	Chassis chassis.Dimensions

	// Simulated time per observation.
	Step time.Duration

	// Arena interior, walls at x=0, y=0, x=ArenaWidthCM and y=ArenaHeightCM.
	ArenaWidthCM  float64
	ArenaHeightCM float64

	MaxRangeCM float64
	// Distance from the centre of the wheelbase to the sensor face.
	SensorOffsetCM float64

	// Where the robot really is.  The odometer starts at the origin facing 0.
	Start hardware.Pose

	// MaxRotateSteps bounds a blocking wheel rotation.
	MaxRotateSteps int
}

func DefaultConfig() Config {
	return Config{
		Chassis:        chassis.Default(),
		Step:           10 * time.Millisecond,
		ArenaWidthCM:   8 * 30.48,
		ArenaHeightCM:  8 * 30.48,
		MaxRangeCM:     255,
		SensorOffsetCM: 0,
		Start:          hardware.Pose{X: 15, Y: 15},
		MaxRotateSteps: 100000,
	}
}

// DistanceFunc overrides the ray cast range model.  It's given the true pose.
type DistanceFunc func(truth hardware.Pose) float64

type World struct {
	lock sync.Mutex
	cfg  Config

	truth, estimate hardware.Pose
	left, right     *Motor

	distanceFunc DistanceFunc
	sensorErr    error
	pollInterval time.Duration

	steps  int
	alerts int
}

func New(cfg Config) *World {
	w := &World{
		cfg:   cfg,
		truth: cfg.Start,
	}
	w.truth.Heading = angle.Normalize360(w.truth.Heading)
	w.left = &Motor{w: w}
	w.right = &Motor{w: w}
	return w
}

var (
	_ hardware.Odometer    = (*World)(nil)
	_ hardware.RangeSensor = (*World)(nil)
	_ hardware.Alerter     = (*World)(nil)
	_ hardware.Motor       = (*Motor)(nil)
)

func (w *World) Left() *Motor  { return w.left }
func (w *World) Right() *Motor { return w.right }

func (w *World) SetDistanceFunc(f DistanceFunc) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.distanceFunc = f
}

// SetSensorError makes every subsequent Distance call fail with err.
func (w *World) SetSensorError(err error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.sensorErr = err
}

func (w *World) Truth() hardware.Pose {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.truth
}

func (w *World) Steps() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.steps
}

func (w *World) Alerts() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.alerts
}

func (w *World) PollInterval() time.Duration {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.pollInterval
}

func (w *World) Pose() hardware.Pose {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.step()
	return w.estimate
}

func (w *World) SetPosition(p hardware.Pose, fields hardware.PoseField) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if fields&hardware.FieldX != 0 {
		w.estimate.X = p.X
	}
	if fields&hardware.FieldY != 0 {
		w.estimate.Y = p.Y
	}
	if fields&hardware.FieldHeading != 0 {
		w.estimate.Heading = angle.Normalize360(p.Heading)
	}
}

func (w *World) SetTheta(heading float64) {
	w.SetPosition(hardware.Pose{Heading: heading}, hardware.FieldHeading)
}

func (w *World) Distance() (float64, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.step()
	if w.sensorErr != nil {
		return 0, w.sensorErr
	}
	var d float64
	if w.distanceFunc != nil {
		d = w.distanceFunc(w.truth)
	} else {
		d = w.rayCast()
	}
	return math.Min(d, w.cfg.MaxRangeCM), nil
}

func (w *World) SetPollInterval(interval time.Duration) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.pollInterval = interval
}

func (w *World) Alert() {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.alerts++
}

// rayCast returns the distance from the sensor face to the first arena wall
// straight ahead.
func (w *World) rayCast() float64 {
	h := angle.Radians(w.truth.Heading)
	dir := r2.Point{X: math.Cos(h), Y: math.Sin(h)}
	origin := w.truth.Point().Add(dir.Mul(w.cfg.SensorOffsetCM))

	best := math.Inf(1)
	consider := func(t float64) {
		if t >= 0 && t < best {
			best = t
		}
	}
	if dir.X < 0 {
		consider(-origin.X / dir.X)
	} else if dir.X > 0 {
		consider((w.cfg.ArenaWidthCM - origin.X) / dir.X)
	}
	if dir.Y < 0 {
		consider(-origin.Y / dir.Y)
	} else if dir.Y > 0 {
		consider((w.cfg.ArenaHeightCM - origin.Y) / dir.Y)
	}
	return best
}

// step advances the simulation by one Step.  Must be called with the lock held.
func (w *World) step() {
	w.steps++
	dt := w.cfg.Step.Seconds()
	dl := w.left.advance(dt)
	dr := w.right.advance(dt)

	radius := w.cfg.Chassis.WheelRadiusCM
	sl := angle.Radians(dl) * radius
	sr := angle.Radians(dr) * radius
	w.truth = odometer.Integrate(w.truth, sl, sr, w.cfg.Chassis.TrackCM)
	w.estimate = odometer.Integrate(w.estimate, sl, sr, w.cfg.Chassis.TrackCM)
}

// Motor is a simulated regulated wheel motor.
type Motor struct {
	w *World

	speed, accel float64
	dir          int
	floating     bool

	rotating  bool
	remaining float64

	tacho float64
	err   error
}

// SetError makes every subsequent command on this motor fail with err.
func (m *Motor) SetError(err error) {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	m.err = err
}

// Speed returns the commanded speed magnitude and direction (+1, -1 or 0).
func (m *Motor) Speed() (float64, int) {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	return m.speed, m.dir
}

func (m *Motor) Floating() bool {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	return m.floating
}

func (m *Motor) Acceleration() float64 {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	return m.accel
}

// Tacho returns the total signed wheel rotation in degrees.
func (m *Motor) Tacho() float64 {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	return m.tacho
}

func (m *Motor) command(f func()) error {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	if m.err != nil {
		return m.err
	}
	f()
	return nil
}

func (m *Motor) SetSpeed(degPerSec float64) error {
	return m.command(func() { m.speed = math.Abs(degPerSec) })
}

func (m *Motor) SetAcceleration(degPerSec2 float64) error {
	return m.command(func() { m.accel = degPerSec2 })
}

func (m *Motor) Forward() error {
	return m.command(func() { m.run(1) })
}

func (m *Motor) Backward() error {
	return m.command(func() { m.run(-1) })
}

func (m *Motor) run(dir int) {
	m.dir = dir
	m.floating = false
	m.rotating = false
}

func (m *Motor) Stop() error {
	return m.command(func() { m.run(0) })
}

func (m *Motor) Float() error {
	return m.command(func() {
		m.run(0)
		m.floating = true
	})
}

func (m *Motor) Rotate(ctx context.Context, degrees float64, block bool) error {
	err := m.command(func() {
		m.run(1)
		if degrees < 0 {
			m.dir = -1
		}
		m.rotating = true
		m.remaining = math.Abs(degrees)
		if m.remaining == 0 {
			m.run(0)
		}
	})
	if err != nil || !block {
		return err
	}

	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	for i := 0; m.rotating; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i >= m.w.cfg.MaxRotateSteps {
			m.run(0)
			return errors.Wrapf(poll.ErrSensorTimeout, "wheel rotation of %.0f degrees after %d steps", degrees, i)
		}
		m.w.step()
	}
	return nil
}

func (m *Motor) IsMoving() (bool, error) {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.dir != 0 && m.speed > 0, nil
}

// advance returns the signed wheel rotation over dt.  Must be called with the
// world lock held.
func (m *Motor) advance(dt float64) float64 {
	if m.dir == 0 {
		return 0
	}
	d := m.speed * dt * float64(m.dir)
	if m.rotating {
		if math.Abs(d) >= m.remaining {
			d = math.Copysign(m.remaining, d)
			m.run(0)
		} else {
			m.remaining -= math.Abs(d)
		}
	}
	m.tacho += d
	return d
}
