package hardware

import (
	"context"
	"time"

	"github.com/golang/geo/r2"
)

// Motor is one regulated wheel motor. Speeds and angles are in wheel degrees.
type Motor interface {
	// SetSpeed sets the speed magnitude; the sign is ignored, use Forward/Backward.
	SetSpeed(degPerSec float64) error
	SetAcceleration(degPerSec2 float64) error
	Forward() error
	Backward() error
	// Stop brakes and holds position. It returns without waiting for the wheel to halt.
	Stop() error
	// Float removes power and lets the wheel coast.
	Float() error
	// Rotate turns the wheel by the given angle at the current speed.  If block is
	// false it returns as soon as the command has been issued.
	Rotate(ctx context.Context, degrees float64, block bool) error
	IsMoving() (bool, error)
}

// Pose is the robot's position in cm and heading in degrees, anticlockwise
// from the positive X axis, in [0, 360).
type Pose struct {
	X, Y    float64
	Heading float64
}

func (p Pose) Point() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// PoseField selects which fields of a Pose an update applies to.
type PoseField uint8

const (
	FieldX PoseField = 1 << iota
	FieldY
	FieldHeading

	AllFields = FieldX | FieldY | FieldHeading
)

// Odometer is the pose provider.
type Odometer interface {
	Pose() Pose
	SetPosition(p Pose, fields PoseField)
	SetTheta(heading float64)
}

// RangeSensor is the forward facing distance sensor.
type RangeSensor interface {
	// Distance returns the latest filtered reading in cm.
	Distance() (float64, error)
	SetPollInterval(interval time.Duration)
}

// WallAvoider steers around an obstacle in front of the robot and returns once
// the way is clear.
type WallAvoider interface {
	AvoidWall(ctx context.Context, lookahead, destination r2.Point) error
}

type Alerter interface {
	Alert()
}
