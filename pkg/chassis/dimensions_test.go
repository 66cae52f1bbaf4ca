package chassis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversions(t *testing.T) {
	d := Dimensions{WheelRadiusCM: 2, TrackCM: 16}

	// One wheel revolution rolls one circumference.
	assert.Equal(t, 360, d.WheelDegreesForDistance(d.WheelCircumCM()+1e-9))
	assert.Equal(t, 0, d.WheelDegreesForDistance(0))
	assert.Equal(t, -180, d.WheelDegreesForDistance(-math.Pi*2-1e-9))

	// A full spin moves each wheel around a circle of diameter TrackCM: 16π cm = 4 revolutions.
	assert.Equal(t, 1440, d.WheelDegreesForSpin(360+1e-9))
	assert.Equal(t, 360, d.WheelDegreesForSpin(90+1e-9))

	assert.InDelta(t, 2*math.Pi, d.WheelSpeedCMPerSec(180), 1e-9)
}
