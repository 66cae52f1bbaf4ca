package sim

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/poll"
)

func TestSpinInPlace(t *testing.T) {
	cfg := DefaultConfig()
	w := New(cfg)
	wheelDegrees := float64(cfg.Chassis.WheelDegreesForSpin(90))

	require.NoError(t, w.Left().SetSpeed(160))
	require.NoError(t, w.Right().SetSpeed(160))
	require.NoError(t, w.Left().Rotate(context.Background(), -wheelDegrees, false))
	require.NoError(t, w.Right().Rotate(context.Background(), wheelDegrees, true))

	truth := w.Truth()
	assert.InDelta(t, 90, truth.Heading, 0.5)
	assert.InDelta(t, cfg.Start.X, truth.X, 1e-9)
	assert.InDelta(t, cfg.Start.Y, truth.Y, 1e-9)
	assert.InDelta(t, 90, w.Pose().Heading, 0.5)

	moving, err := w.Left().IsMoving()
	require.NoError(t, err)
	assert.False(t, moving)
}

func TestRotateFinishesPartialStep(t *testing.T) {
	w := New(DefaultConfig())
	// 1.8 degrees per step, so neither target is a whole number of steps.
	require.NoError(t, w.Left().SetSpeed(180))
	require.NoError(t, w.Right().SetSpeed(180))
	require.NoError(t, w.Left().Rotate(context.Background(), 10, true))
	require.NoError(t, w.Right().Rotate(context.Background(), -10, true))

	assert.InDelta(t, 10, w.Left().Tacho(), 1e-9)
	assert.InDelta(t, -10, w.Right().Tacho(), 1e-9)
	moving, err := w.Right().IsMoving()
	require.NoError(t, err)
	assert.False(t, moving)
}

func TestRotateWithoutSpeedTimesOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRotateSteps = 50
	w := New(cfg)
	err := w.Left().Rotate(context.Background(), 10, true)
	assert.True(t, errors.Is(err, poll.ErrSensorTimeout), "unexpected error: %v", err)
	assert.Equal(t, 50, w.Steps())
}

func TestDriveStraight(t *testing.T) {
	cfg := DefaultConfig()
	w := New(cfg)
	require.NoError(t, w.Left().SetSpeed(120))
	require.NoError(t, w.Right().SetSpeed(120))
	require.NoError(t, w.Left().Forward())
	require.NoError(t, w.Right().Forward())
	for i := 0; i < 100; i++ {
		w.Pose()
	}
	// 100 steps of 10ms at 120 deg/s on a 2.1cm wheel.
	expected := cfg.Chassis.WheelSpeedCMPerSec(120)
	assert.InDelta(t, expected, w.Pose().X, 0.1)
	assert.InDelta(t, 0, w.Pose().Y, 1e-9)
}

func TestRayCast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ArenaWidthCM = 100
	cfg.ArenaHeightCM = 50
	cfg.SensorOffsetCM = 5
	cfg.MaxRangeCM = 80
	cfg.Start = hardware.Pose{X: 20, Y: 10}

	for _, tc := range []struct {
		heading  float64
		expected float64
	}{
		{heading: 0, expected: 75},
		{heading: 90, expected: 35},
		{heading: 180, expected: 15},
		{heading: 270, expected: 5},
		{heading: 45, expected: 40*1.4142135623730951 - 5},
	} {
		cfg.Start.Heading = tc.heading
		w := New(cfg)
		d, err := w.Distance()
		require.NoError(t, err)
		assert.InDelta(t, tc.expected, d, 1e-6, "heading %v", tc.heading)
	}

	cfg.Start.Heading = 0
	cfg.Start.X = 0.5
	w := New(cfg)
	d, err := w.Distance()
	require.NoError(t, err)
	assert.Equal(t, 80.0, d, "clamped to max range")
}

func TestOdometerOverwritesOnlySelectedFields(t *testing.T) {
	w := New(DefaultConfig())
	w.SetPosition(hardware.Pose{X: 1, Y: 2, Heading: 370}, hardware.AllFields)
	assert.Equal(t, hardware.Pose{X: 1, Y: 2, Heading: 10}, w.Pose())

	w.SetPosition(hardware.Pose{X: 5, Y: 6, Heading: 7}, hardware.FieldY)
	assert.Equal(t, hardware.Pose{X: 1, Y: 6, Heading: 10}, w.Pose())

	w.SetTheta(-90)
	assert.Equal(t, hardware.Pose{X: 1, Y: 6, Heading: 270}, w.Pose())
	// The true pose is untouched by odometer writes.
	assert.Equal(t, DefaultConfig().Start, w.Truth())
}
