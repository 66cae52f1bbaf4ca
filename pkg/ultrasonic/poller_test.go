package ultrasonic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scriptedReader struct {
	lock     sync.Mutex
	readings []float64
	err      error
	calls    int
}

func (s *scriptedReader) MeasureCM() (float64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	if len(s.readings) == 0 {
		return 255, nil
	}
	d := s.readings[0]
	s.readings = s.readings[1:]
	return d, nil
}

func (s *scriptedReader) numCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.calls
}

func newTestPoller(t *testing.T, r Reader, clk clock.Clock) *Poller {
	p, err := NewPoller(DefaultConfig(), r, clk, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return p
}

func expectDistance(t *testing.T, p *Poller, expected float64) {
	t.Helper()
	d, err := p.Distance()
	require.NoError(t, err)
	assert.Equal(t, expected, d)
}

func TestNoReadingYet(t *testing.T) {
	p := newTestPoller(t, &scriptedReader{}, nil)
	_, err := p.Distance()
	assert.True(t, errors.Is(err, ErrNoReading))
}

func TestFilterDiscardsShortRunsOfMaxRange(t *testing.T) {
	r := &scriptedReader{readings: []float64{30, 255, 255, 255, 31, 255, 255, 255, 300}}
	p := newTestPoller(t, r, nil)

	p.Poll()
	expectDistance(t, p, 30)
	for i := 0; i < 3; i++ {
		p.Poll()
		expectDistance(t, p, 30)
	}
	p.Poll()
	expectDistance(t, p, 31)

	// The fourth consecutive max reading is believed, and clamped.
	for i := 0; i < 3; i++ {
		p.Poll()
		expectDistance(t, p, 31)
	}
	p.Poll()
	expectDistance(t, p, 255)
}

func TestFirstReadingIsAlwaysAccepted(t *testing.T) {
	p := newTestPoller(t, &scriptedReader{readings: []float64{255}}, nil)
	p.Poll()
	expectDistance(t, p, 255)
}

func TestReadErrorsAreReported(t *testing.T) {
	r := &scriptedReader{readings: []float64{40}}
	p := newTestPoller(t, r, nil)
	p.Poll()

	r.err = errors.New("echo pin stuck")
	p.Poll()
	_, err := p.Distance()
	assert.Error(t, err)

	r.err = nil
	r.readings = []float64{41}
	p.Poll()
	expectDistance(t, p, 41)
}

func TestBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilterOut = -1
	_, err := NewPoller(cfg, &scriptedReader{}, nil, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}

func TestLoopFollowsPollInterval(t *testing.T) {
	mockClock := clock.NewMock()
	r := &scriptedReader{}
	p := newTestPoller(t, r, mockClock)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go p.Loop(ctx, &wg)

	require.Eventually(t, func() bool { return r.numCalls() == 1 }, time.Second, time.Millisecond)

	// Changing the interval takes a reading straight away.
	p.SetPollInterval(10 * time.Millisecond)
	require.Eventually(t, func() bool { return r.numCalls() == 2 }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		mockClock.Add(10 * time.Millisecond)
		return r.numCalls() >= 4
	}, time.Second, time.Millisecond)

	cancel()
	wg.Wait()
}
