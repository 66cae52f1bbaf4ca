package sound

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func drainStreamer(s beep.Streamer) int {
	buf := make([][2]float64, 512)
	total := 0
	for {
		n, ok := s.Stream(buf)
		total += n
		if !ok {
			return total
		}
	}
}

func TestToneLength(t *testing.T) {
	s := Tone(440, 100*time.Millisecond)
	assert.Equal(t, 4410, drainStreamer(s))

	buf := make([][2]float64, 1)
	n, ok := s.Stream(buf)
	assert.Equal(t, 0, n)
	assert.False(t, ok)
}

func TestToneAmplitude(t *testing.T) {
	buf := make([][2]float64, 100)
	n, _ := Tone(1000, time.Second).Stream(buf)
	require.Equal(t, 100, n)
	for _, sample := range buf {
		assert.LessOrEqual(t, sample[0], 0.5)
		assert.GreaterOrEqual(t, sample[0], -0.5)
		assert.Equal(t, sample[0], sample[1])
	}
}

type recorder struct {
	lock   sync.Mutex
	played []int
}

func (r *recorder) play(ctx context.Context, s beep.Streamer) {
	n := drainStreamer(s)
	r.lock.Lock()
	defer r.lock.Unlock()
	r.played = append(r.played, n)
}

func (r *recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.played)
}

func newTestPlayer(t *testing.T, initErr error) (*Player, *recorder) {
	cfg := DefaultConfig()
	cfg.ToneDuration = 10 * time.Millisecond
	cfg.Gap = 0
	p, err := New(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	r := &recorder{}
	p.initSpeaker = func() error { return initErr }
	p.play = r.play
	return p, r
}

func TestAlertPlaysTone(t *testing.T) {
	p, r := newTestPlayer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go p.Loop(ctx, &wg)

	p.Alert()
	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{441}, r.played)

	cancel()
	wg.Wait()
}

func TestRepeatedAlertsPlayInTurn(t *testing.T) {
	p, r := newTestPlayer(t, nil)
	p.cfg.Gap = 5 * time.Millisecond
	// Both are queued before anything is playing.
	p.Alert()
	p.Alert()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go p.Loop(ctx, &wg)

	require.Eventually(t, func() bool { return r.count() == 2 }, time.Second, time.Millisecond)
	// Each beep is followed by its own silence.
	assert.Equal(t, []int{441 + 220, 441 + 220}, r.played)

	cancel()
	wg.Wait()
}

func TestSilence(t *testing.T) {
	buf := make([][2]float64, 512)
	n, ok := Silence(5 * time.Millisecond).Stream(buf)
	assert.True(t, ok)
	assert.Equal(t, 220, n)
	for _, sample := range buf[:n] {
		assert.Equal(t, [2]float64{}, sample)
	}
	assert.Equal(t, 0, drainStreamer(Silence(0)))
}

func TestAlertNeverBlocks(t *testing.T) {
	p, _ := newTestPlayer(t, nil)
	// Nothing is draining the queue.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.Alert()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Alert blocked")
	}
}

func TestNoSpeaker(t *testing.T) {
	p, r := newTestPlayer(t, errors.New("no audio device"))
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go p.Loop(ctx, &wg)

	for i := 0; i < 5; i++ {
		p.Alert()
	}
	cancel()
	wg.Wait()
	assert.Equal(t, 0, r.count())
}

func TestMissingFileIsSkipped(t *testing.T) {
	p, r := newTestPlayer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go p.Loop(ctx, &wg)

	p.Play("/does/not/exist.wav")
	require.Eventually(t, func() bool { return len(p.requests) == 0 }, time.Second, time.Millisecond)
	p.Alert()
	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, time.Millisecond)

	cancel()
	wg.Wait()
}

func TestConfigNeedsSomethingToPlay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ToneHz = 0
	assert.Error(t, cfg.Validate())
	cfg.AlertFile = "alert.wav"
	assert.NoError(t, cfg.Validate())
}
