package avoider

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/navigation"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/sim"
)

func newSimAvoider(t *testing.T) (*Avoider, *navigation.Navigator, *sim.World) {
	t.Helper()
	simCfg := sim.DefaultConfig()
	simCfg.Start = hardware.Pose{X: 100, Y: 100}
	world := sim.New(simCfg)
	world.SetPosition(simCfg.Start, hardware.AllFields)
	world.SetDistanceFunc(func(hardware.Pose) float64 { return 255 })

	navCfg := navigation.DefaultConfig()
	navCfg.ControlInterval = 0
	navCfg.SettleDelay = 0
	log := zaptest.NewLogger(t).Sugar()
	nav, err := navigation.New(navCfg, navigation.Deps{
		Left:     world.Left(),
		Right:    world.Right(),
		Odometer: world,
		Sensor:   world,
		Alerter:  world,
		Chassis:  simCfg.Chassis,
		Clock:    clock.New(),
	}, log)
	require.NoError(t, err)

	a, err := New(DefaultConfig(), Deps{
		Driver:   nav,
		Odometer: world,
		Sensor:   world,
	}, log)
	require.NoError(t, err)
	nav.SetWallAvoider(a)
	return a, nav, world
}

// blockedAround reports an obstacle 10cm away when the robot faces within 45
// degrees of the given heading.
func blockedAround(headings ...float64) sim.DistanceFunc {
	return func(truth hardware.Pose) float64 {
		for _, h := range headings {
			if angle.Error(h, truth.Heading).Abs() < 45 {
				return 10
			}
		}
		return 255
	}
}

func expectPose(t *testing.T, world *sim.World, x, y, heading float64) {
	t.Helper()
	p := world.Truth()
	assert.InDelta(t, x, p.X, 1.0, "x")
	assert.InDelta(t, y, p.Y, 1.0, "y")
	assert.InDelta(t, 0, angle.Error(heading, p.Heading).Float(), 2.5, "heading")
}

func TestSidestepsTowardsDestination(t *testing.T) {
	a, _, world := newSimAvoider(t)
	err := a.AvoidWall(context.Background(), r2.Point{X: 110, Y: 100}, r2.Point{X: 200, Y: 100})
	require.NoError(t, err)

	// Backs off 5, turns left, moves across 15, faces the destination.
	expectPose(t, world, 95, 115, angle.Bearing(105, -15))
}

func TestSidestepsRightWhenDestinationIsRight(t *testing.T) {
	a, _, world := newSimAvoider(t)
	err := a.AvoidWall(context.Background(), r2.Point{X: 110, Y: 100}, r2.Point{X: 200, Y: 50})
	require.NoError(t, err)
	expectPose(t, world, 95, 85, angle.Bearing(105, -35))
}

func TestTriesOtherSideWhenBlocked(t *testing.T) {
	a, _, world := newSimAvoider(t)
	world.SetDistanceFunc(blockedAround(90))
	err := a.AvoidWall(context.Background(), r2.Point{X: 110, Y: 100}, r2.Point{X: 200, Y: 100})
	require.NoError(t, err)
	expectPose(t, world, 95, 85, angle.Bearing(105, 15))
}

func TestBoxedIn(t *testing.T) {
	a, _, world := newSimAvoider(t)
	world.SetDistanceFunc(blockedAround(90, 270))
	err := a.AvoidWall(context.Background(), r2.Point{X: 110, Y: 100}, r2.Point{X: 200, Y: 100})
	assert.True(t, errors.Is(err, ErrBoxedIn))
}

func TestSensorFailure(t *testing.T) {
	a, _, world := newSimAvoider(t)
	world.SetSensorError(errors.New("no echo"))
	err := a.AvoidWall(context.Background(), r2.Point{X: 110, Y: 100}, r2.Point{X: 200, Y: 100})
	assert.Error(t, err)
}

func TestNoBackoff(t *testing.T) {
	a, _, world := newSimAvoider(t)
	a.cfg.BackoffCM = 0
	err := a.AvoidWall(context.Background(), r2.Point{X: 110, Y: 100}, r2.Point{X: 200, Y: 100})
	require.NoError(t, err)
	expectPose(t, world, 100, 110, angle.Bearing(100, -10))
}

func TestTravelAroundObstacle(t *testing.T) {
	_, nav, world := newSimAvoider(t)
	// A post in the way at (130, 100).
	world.SetDistanceFunc(func(truth hardware.Pose) float64 {
		post := r2.Point{X: 130, Y: 100}
		d := post.Sub(truth.Point())
		if d.Norm() < 15 && angle.Error(angle.Bearing(d.X, d.Y), truth.Heading).Abs() < 20 {
			return d.Norm()
		}
		return 255
	})

	require.NoError(t, nav.TravelToAndAvoid(context.Background(), 160, 100))
	p := world.Truth()
	assert.InDelta(t, 160, p.X, 1.0)
	assert.InDelta(t, 100, p.Y, 1.0)
	assert.GreaterOrEqual(t, world.Alerts(), 2)
}

func TestNewNeedsDeps(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{}, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.ClearanceCM = 0
	assert.Error(t, cfg.Validate())
}
