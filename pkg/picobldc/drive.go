package picobldc

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/poll"
)

type DriveConfig struct {
	Bus  string `yaml:"bus"`
	Addr int    `yaml:"addr"`

	LeftChannel  int `yaml:"left_channel"`
	RightChannel int `yaml:"right_channel"`
	// Set for a motor mounted the other way round.
	LeftReversed  bool `yaml:"left_reversed"`
	RightReversed bool `yaml:"right_reversed"`

	// Controller speed units per wheel degree/second.
	RawPerDegPerSec float64 `yaml:"raw_per_deg_per_sec"`

	LoopPeriod time.Duration `yaml:"loop_period"`
	Watchdog   time.Duration `yaml:"watchdog"`

	// A blocking rotation gives up after twice its run time at the set speed
	// plus this margin.
	RotateMargin time.Duration `yaml:"rotate_margin"`
}

func DefaultDriveConfig() DriveConfig {
	return DriveConfig{
		Bus:             DefaultBus,
		Addr:            DefaultAddr,
		LeftChannel:     2,
		RightChannel:    1,
		RightReversed:   true,
		RawPerDegPerSec: 10,
		LoopPeriod:      25 * time.Millisecond,
		Watchdog:        500 * time.Millisecond,
		RotateMargin:    2 * time.Second,
	}
}

func (c DriveConfig) Validate() error {
	for _, ch := range []int{c.LeftChannel, c.RightChannel} {
		if ch < 0 || ch >= NumChannels {
			return errors.Errorf("motor channel %d out of range", ch)
		}
	}
	if c.LeftChannel == c.RightChannel {
		return errors.New("left and right wheels need different channels")
	}
	if c.RawPerDegPerSec <= 0 || c.LoopPeriod <= 0 {
		return errors.New("raw_per_deg_per_sec and loop_period must be positive")
	}
	if c.RotateMargin <= 0 {
		return errors.New("rotate_margin must be positive")
	}
	return nil
}

// Drive runs both wheels from a control loop that ramps speeds, tracks the
// encoders and finishes rotation targets.
type Drive struct {
	log   *zap.SugaredLogger
	clock clock.Clock
	cfg   DriveConfig

	pico     Controller
	encoders *Encoders

	lock        sync.Mutex
	left, right *Wheel
	lastUpdate  time.Time
}

func NewDrive(cfg DriveConfig, pico Controller, clk clock.Clock, log *zap.SugaredLogger) (*Drive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	d := &Drive{
		log:      log,
		clock:    clk,
		cfg:      cfg,
		pico:     pico,
		encoders: NewEncoders(pico),
	}
	d.left = &Wheel{d: d, name: "left", channel: cfg.LeftChannel, sign: 1}
	if cfg.LeftReversed {
		d.left.sign = -1
	}
	d.right = &Wheel{d: d, name: "right", channel: cfg.RightChannel, sign: 1}
	if cfg.RightReversed {
		d.right.sign = -1
	}
	return d, nil
}

func (d *Drive) Left() *Wheel  { return d.left }
func (d *Drive) Right() *Wheel { return d.right }

func (d *Drive) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if err := d.pico.SetMotorSpeeds(PerMotorVal[int16]{}); err != nil {
			d.log.Warnf("Failed to stop motors on exit: %v", err)
		}
	}()

	ticker := d.clock.Ticker(d.cfg.LoopPeriod)
	defer ticker.Stop()

	d.log.Info("Drive loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := d.Update(); err != nil {
			d.log.Errorf("Drive update failed: %v", err)
		}
	}
}

// Update runs one iteration of the control loop.
func (d *Drive) Update() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	now := d.clock.Now()
	dt := d.cfg.LoopPeriod.Seconds()
	if !d.lastUpdate.IsZero() {
		dt = now.Sub(d.lastUpdate).Seconds()
	}
	d.lastUpdate = now

	if err := d.encoders.Poll(); err != nil {
		return errors.Wrap(err, "failed to poll encoders")
	}
	degrees := d.encoders.Degrees()

	var speeds PerMotorVal[int16]
	for _, w := range []*Wheel{d.left, d.right} {
		w.degrees = degrees[w.channel] * w.sign
		w.update(dt)
		speeds[w.channel] = w.raw(d.cfg.RawPerDegPerSec)
	}
	return errors.Wrap(d.pico.SetMotorSpeeds(speeds), "failed to set motor speeds")
}

// Wheel is one drive wheel.  Its state is guarded by the drive's lock.
type Wheel struct {
	d       *Drive
	name    string
	channel int
	sign    float64

	speed, accel float64
	dir          int
	floating     bool

	rotating bool
	target   float64

	velocity float64
	degrees  float64
}

var _ hardware.Motor = (*Wheel)(nil)

func (w *Wheel) set(f func()) error {
	w.d.lock.Lock()
	defer w.d.lock.Unlock()
	f()
	return nil
}

func (w *Wheel) SetSpeed(degPerSec float64) error {
	return w.set(func() { w.speed = math.Abs(degPerSec) })
}

func (w *Wheel) SetAcceleration(degPerSec2 float64) error {
	return w.set(func() { w.accel = math.Abs(degPerSec2) })
}

func (w *Wheel) Forward() error {
	return w.set(func() { w.run(1) })
}

func (w *Wheel) Backward() error {
	return w.set(func() { w.run(-1) })
}

func (w *Wheel) Stop() error {
	return w.set(func() {
		w.run(0)
		w.velocity = 0
	})
}

// Float cuts the drive.  The board has no coast mode so it's a zero speed
// command that isn't ramped.
func (w *Wheel) Float() error {
	return w.set(func() {
		w.run(0)
		w.velocity = 0
		w.floating = true
	})
}

func (w *Wheel) run(dir int) {
	w.dir = dir
	w.floating = false
	w.rotating = false
}

func (w *Wheel) Rotate(ctx context.Context, degrees float64, block bool) error {
	var timeout time.Duration
	_ = w.set(func() {
		timeout = w.d.cfg.RotateMargin
		if w.speed > 0 {
			timeout += 2 * time.Duration(math.Abs(degrees)/w.speed*float64(time.Second))
		}
		if degrees == 0 {
			w.run(0)
			return
		}
		w.run(1)
		if degrees < 0 {
			w.dir = -1
		}
		w.rotating = true
		w.target = w.degrees + degrees
	})
	if !block {
		return nil
	}
	err := poll.Until(ctx, w.d.clock, timeout, w.d.cfg.LoopPeriod, func() (bool, error) {
		moving, err := w.IsMoving()
		return !moving, err
	})
	if err != nil {
		// Jammed wheel or stalled encoder; don't leave it driving.
		_ = w.Stop()
		w.d.log.Warnf("Stopped %s wheel rotation of %.0f degrees at %.0f: %v", w.name, degrees, w.Degrees(), err)
	}
	return errors.Wrapf(err, "%s wheel rotation", w.name)
}

func (w *Wheel) IsMoving() (bool, error) {
	w.d.lock.Lock()
	defer w.d.lock.Unlock()
	return w.dir != 0 && w.speed > 0, nil
}

// Degrees returns the total signed wheel rotation seen by the encoder.
func (w *Wheel) Degrees() float64 {
	w.d.lock.Lock()
	defer w.d.lock.Unlock()
	return w.degrees
}

func (w *Wheel) update(dt float64) {
	if w.rotating {
		remaining := (w.target - w.degrees) * float64(w.dir)
		if remaining <= 0 {
			w.run(0)
			w.velocity = 0
		}
	}

	desired := float64(w.dir) * w.speed
	if w.accel <= 0 {
		w.velocity = desired
		return
	}
	step := w.accel * dt
	switch {
	case desired > w.velocity:
		w.velocity = math.Min(w.velocity+step, desired)
	case desired < w.velocity:
		w.velocity = math.Max(w.velocity-step, desired)
	}
}

func (w *Wheel) raw(rawPerDegPerSec float64) int16 {
	v := w.velocity * w.sign * rawPerDegPerSec
	v = math.Max(math.Min(v, math.MaxInt16), math.MinInt16)
	return int16(v)
}
