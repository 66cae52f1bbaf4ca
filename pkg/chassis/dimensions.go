package chassis

import "math"

// Defaults for the EV3-style two wheel chassis.
const (
	DefaultWheelRadiusCM = 2.1
	DefaultTrackCM       = 15.2
)

type Dimensions struct {
	WheelRadiusCM float64 `yaml:"wheel_radius_cm"`
	// Distance between the two wheel contact points.
	TrackCM float64 `yaml:"track_cm"`
}

func Default() Dimensions {
	return Dimensions{
		WheelRadiusCM: DefaultWheelRadiusCM,
		TrackCM:       DefaultTrackCM,
	}
}

func (d Dimensions) WheelCircumCM() float64 {
	return 2 * math.Pi * d.WheelRadiusCM
}

// WheelDegreesForDistance returns how far a wheel must turn, in whole degrees,
// to roll the given distance.
func (d Dimensions) WheelDegreesForDistance(cm float64) int {
	return int((180.0 * cm) / (math.Pi * d.WheelRadiusCM))
}

// WheelDegreesForSpin returns how far each wheel must turn, in opposite
// directions, to spin the robot in place by the given angle.
func (d Dimensions) WheelDegreesForSpin(degrees float64) int {
	return d.WheelDegreesForDistance(math.Pi * d.TrackCM * degrees / 360.0)
}

// WheelSpeedCMPerSec converts a wheel speed in degrees/second to ground speed.
func (d Dimensions) WheelSpeedCMPerSec(degPerSec float64) float64 {
	return degPerSec * math.Pi / 180 * d.WheelRadiusCM
}
