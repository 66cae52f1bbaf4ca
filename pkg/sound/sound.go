// Package sound plays alert noises through the speaker.
package sound

import (
	"context"
	"math"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
)

const SampleRate = beep.SampleRate(44100)

// QueueLength is how many sounds can wait to be played.
const QueueLength = 4

type Config struct {
	Enabled bool `yaml:"enabled"`
	// WAV file to play as the alert.  If empty, a tone is played instead.
	AlertFile    string        `yaml:"alert_file"`
	ToneHz       float64       `yaml:"tone_hz"`
	ToneDuration time.Duration `yaml:"tone_duration"`
	// Silence after each sound, so repeated alerts are heard separately.
	Gap time.Duration `yaml:"gap"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		ToneHz:       880,
		ToneDuration: 300 * time.Millisecond,
		Gap:          150 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.AlertFile == "" && (c.ToneHz <= 0 || c.ToneDuration <= 0) {
		return errors.New("sound needs an alert_file or a positive tone_hz and tone_duration")
	}
	if c.Gap < 0 {
		return errors.New("gap must not be negative")
	}
	return nil
}

// Player plays queued sounds one after another from its own goroutine.
type Player struct {
	log      *zap.SugaredLogger
	cfg      Config
	requests chan string

	initSpeaker func() error
	// play returns once s has finished or ctx is done.
	play func(ctx context.Context, s beep.Streamer)
}

var _ hardware.Alerter = (*Player)(nil)

func New(cfg Config, log *zap.SugaredLogger) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Player{
		log:      log,
		cfg:      cfg,
		requests: make(chan string, QueueLength),
		initSpeaker: func() error {
			return speaker.Init(SampleRate, SampleRate.N(time.Second/5))
		},
		play: playOnSpeaker,
	}, nil
}

func playOnSpeaker(ctx context.Context, s beep.Streamer) {
	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(s, beep.Callback(func() { close(done) }))}
	speaker.Play(ctrl)
	select {
	case <-done:
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Paused = true
		ctrl.Streamer = nil
		speaker.Unlock()
	}
}

func (p *Player) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("Sound player crashed: %v", r)
		}
	}()

	if !p.cfg.Enabled {
		p.drain(ctx, "sound disabled")
		return
	}
	if err := p.initSpeaker(); err != nil {
		p.log.Warnf("Failed to open speaker: %v", err)
		p.drain(ctx, "no speaker")
		return
	}

	for {
		var name string
		select {
		case <-ctx.Done():
			return
		case name = <-p.requests:
		}

		if name == "" {
			p.play(ctx, beep.Seq(Tone(p.cfg.ToneHz, p.cfg.ToneDuration), Silence(p.cfg.Gap)))
			continue
		}
		s, err := openWAV(name)
		if err != nil {
			p.log.Warnf("Failed to load sound: %v", err)
			continue
		}
		p.play(ctx, beep.Seq(s, Silence(p.cfg.Gap)))
		_ = s.Close()
	}
}

func (p *Player) drain(ctx context.Context, reason string) {
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-p.requests:
			p.log.Infof("Unable to play %q: %s", name, reason)
		}
	}
}

// Play queues a WAV file.  It never blocks; if the queue is full the new sound
// is dropped.
func (p *Player) Play(file string) {
	select {
	case p.requests <- file:
	default:
		p.log.Debugf("Sound queue full, dropping %q", file)
	}
}

func (p *Player) Alert() {
	p.Play(p.cfg.AlertFile)
}

func openWAV(name string) (beep.StreamSeekCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	s, _, err := wav.Decode(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "failed to decode %s", name)
	}
	return s, nil
}

// Silence streams d of nothing.
func Silence(d time.Duration) beep.Streamer {
	return generate(d, func(int) float64 { return 0 })
}

// Tone is a sine wave at half volume.
func Tone(hz float64, d time.Duration) beep.Streamer {
	return generate(d, func(pos int) float64 {
		return 0.5 * math.Sin(2*math.Pi*hz*float64(pos)/float64(SampleRate))
	})
}

func generate(d time.Duration, sample func(pos int) float64) beep.Streamer {
	total := SampleRate.N(d)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if pos >= total {
			return 0, false
		}
		for i := range samples {
			if pos >= total {
				break
			}
			v := sample(pos)
			samples[i][0], samples[i][1] = v, v
			pos++
			n++
		}
		return n, true
	})
}
