package odometer

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
)

type fakeEncoder struct {
	lock    sync.Mutex
	degrees float64
}

func (f *fakeEncoder) Degrees() float64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.degrees
}

func (f *fakeEncoder) add(d float64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.degrees += d
}

func newTestOdometer(t *testing.T, clk clock.Clock) (*Odometer, *fakeEncoder, *fakeEncoder) {
	l, r := &fakeEncoder{}, &fakeEncoder{}
	return New(chassis.Default(), l, r, 10*time.Millisecond, clk, zaptest.NewLogger(t).Sugar()), l, r
}

func TestIntegrateStraight(t *testing.T) {
	p := Integrate(hardware.Pose{Heading: 90}, 10, 10, 15)
	assert.InDelta(t, 0, p.X, 1e-9)
	assert.InDelta(t, 10, p.Y, 1e-9)
	assert.InDelta(t, 90, p.Heading, 1e-9)
}

func TestIntegrateSpin(t *testing.T) {
	// Half a turn anticlockwise: the right wheel covers pi*track/2.
	track := 15.0
	d := math.Pi * track / 2
	p := Integrate(hardware.Pose{X: 5, Y: 5}, -d/2, d/2, track)
	assert.InDelta(t, 5, p.X, 1e-9)
	assert.InDelta(t, 5, p.Y, 1e-9)
	assert.InDelta(t, 90, p.Heading, 1e-9)

	p = Integrate(hardware.Pose{Heading: 10}, d/2, -d/2, track)
	assert.InDelta(t, 280, p.Heading, 1e-9)
}

func TestUpdateUsesEncoderDeltas(t *testing.T) {
	o, l, r := newTestOdometer(t, nil)
	dims := chassis.Default()

	// One wheel turn forward.
	l.add(360)
	r.add(360)
	o.Update()
	assert.InDelta(t, 2*math.Pi*dims.WheelRadiusCM, o.Pose().X, 1e-9)
	assert.InDelta(t, 0, o.Pose().Y, 1e-9)

	// No movement, no change.
	before := o.Pose()
	o.Update()
	assert.Equal(t, before, o.Pose())

	// Spin a quarter turn clockwise.
	deg := float64(dims.WheelDegreesForSpin(90))
	l.add(deg)
	r.add(-deg)
	o.Update()
	assert.InDelta(t, 270, o.Pose().Heading, 1.0)
}

func TestStartsFromCurrentEncoderReading(t *testing.T) {
	l, r := &fakeEncoder{degrees: 1000}, &fakeEncoder{degrees: -50}
	o := New(chassis.Default(), l, r, time.Second, nil, zaptest.NewLogger(t).Sugar())
	o.Update()
	assert.Equal(t, hardware.Pose{}, o.Pose())
}

func TestSetPositionSelectsFields(t *testing.T) {
	o, l, r := newTestOdometer(t, nil)
	l.add(360)
	r.add(360)
	o.Update()
	x := o.Pose().X

	o.SetPosition(hardware.Pose{X: 1, Y: 2, Heading: 400}, hardware.FieldY|hardware.FieldHeading)
	assert.Equal(t, hardware.Pose{X: x, Y: 2, Heading: 40}, o.Pose())

	o.SetTheta(-90)
	assert.Equal(t, 270.0, o.Pose().Heading)
	assert.Equal(t, 2.0, o.Pose().Y)
}

func TestLoopUpdatesOnTick(t *testing.T) {
	mockClock := clock.NewMock()
	o, l, r := newTestOdometer(t, mockClock)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go o.Loop(ctx, &wg)

	l.add(360)
	r.add(360)
	assert.Eventually(t, func() bool {
		mockClock.Add(10 * time.Millisecond)
		return o.Pose().X > 0
	}, time.Second, time.Millisecond)

	cancel()
	wg.Wait()
}
