// Package odometer tracks the robot's pose by dead reckoning from the wheel
// encoders.
package odometer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
)

// Encoder reports the total signed rotation of one wheel in degrees.
type Encoder interface {
	Degrees() float64
}

type Odometer struct {
	log     *zap.SugaredLogger
	clock   clock.Clock
	chassis chassis.Dimensions
	period  time.Duration

	left, right Encoder

	lock         sync.Mutex
	lastL, lastR float64
	pose         hardware.Pose
}

var _ hardware.Odometer = (*Odometer)(nil)

func New(dims chassis.Dimensions, left, right Encoder, period time.Duration, clk clock.Clock, log *zap.SugaredLogger) *Odometer {
	if clk == nil {
		clk = clock.New()
	}
	return &Odometer{
		log:     log,
		clock:   clk,
		chassis: dims,
		period:  period,
		left:    left,
		right:   right,
		lastL:   left.Degrees(),
		lastR:   right.Degrees(),
	}
}

func (o *Odometer) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := o.clock.Ticker(o.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		o.Update()
	}
}

// Update folds the wheel movement since the last update into the pose.
func (o *Odometer) Update() {
	l, r := o.left.Degrees(), o.right.Degrees()

	o.lock.Lock()
	defer o.lock.Unlock()
	dl := angle.Radians(l-o.lastL) * o.chassis.WheelRadiusCM
	dr := angle.Radians(r-o.lastR) * o.chassis.WheelRadiusCM
	o.lastL, o.lastR = l, r
	o.pose = Integrate(o.pose, dl, dr, o.chassis.TrackCM)
}

// Integrate moves p by the given left and right wheel ground distances, in cm,
// assuming the robot followed a circular arc.
func Integrate(p hardware.Pose, dl, dr, trackCM float64) hardware.Pose {
	ds := (dl + dr) / 2
	dTheta := (dr - dl) / trackCM
	mid := angle.Radians(p.Heading) + dTheta/2
	p.X += ds * math.Cos(mid)
	p.Y += ds * math.Sin(mid)
	p.Heading = angle.Normalize360(p.Heading + dTheta*180/math.Pi)
	return p
}

func (o *Odometer) Pose() hardware.Pose {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.pose
}

func (o *Odometer) SetPosition(p hardware.Pose, fields hardware.PoseField) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if fields&hardware.FieldX != 0 {
		o.pose.X = p.X
	}
	if fields&hardware.FieldY != 0 {
		o.pose.Y = p.Y
	}
	if fields&hardware.FieldHeading != 0 {
		o.pose.Heading = angle.Normalize360(p.Heading)
	}
	o.log.Debugf("Pose set to (%.1f, %.1f) heading %.1f", o.pose.X, o.pose.Y, o.pose.Heading)
}

func (o *Odometer) SetTheta(heading float64) {
	o.SetPosition(hardware.Pose{Heading: heading}, hardware.FieldHeading)
}
