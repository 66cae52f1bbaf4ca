// Package ultrasonic reads the forward facing HC-SR04 range sensor in the
// background and filters out spurious "nothing there" readings.
package ultrasonic

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
)

var ErrNoReading = errors.New("no ultrasonic reading yet")

// Reader takes a single raw measurement.
type Reader interface {
	MeasureCM() (float64, error)
}

type Config struct {
	EchoPin    string `yaml:"echo_pin"`
	TriggerPin string `yaml:"trigger_pin"`

	PollInterval time.Duration `yaml:"poll_interval"`
	// Readings at or beyond this are "no wall".
	MaxRangeCM float64 `yaml:"max_range_cm"`
	// Number of consecutive max range readings to discard before believing
	// one.  The sensor drops single echoes quite often.
	FilterOut int `yaml:"filter_out"`
}

func DefaultConfig() Config {
	return Config{
		EchoPin:      "GPIO24",
		TriggerPin:   "GPIO23",
		PollInterval: 50 * time.Millisecond,
		MaxRangeCM:   255,
		FilterOut:    3,
	}
}

func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("ultrasonic poll_interval must be positive")
	}
	if c.MaxRangeCM <= 0 {
		return errors.New("ultrasonic max_range_cm must be positive")
	}
	if c.FilterOut < 0 {
		return errors.New("ultrasonic filter_out must not be negative")
	}
	return nil
}

// Poller samples a Reader on a timer and keeps the latest filtered distance.
type Poller struct {
	log    *zap.SugaredLogger
	clock  clock.Clock
	reader Reader
	cfg    Config

	lock      sync.Mutex
	interval  time.Duration
	changed   chan struct{}
	distance  float64
	haveValue bool
	maxCount  int
	err       error
}

var _ hardware.RangeSensor = (*Poller)(nil)

func NewPoller(cfg Config, reader Reader, clk clock.Clock, log *zap.SugaredLogger) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Poller{
		log:      log,
		clock:    clk,
		reader:   reader,
		cfg:      cfg,
		interval: cfg.PollInterval,
		changed:  make(chan struct{}, 1),
	}, nil
}

func (p *Poller) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		p.Poll()

		timer := p.clock.Timer(p.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.changed:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Poll takes one reading and feeds it through the filter.
func (p *Poller) Poll() {
	d, err := p.reader.MeasureCM()

	p.lock.Lock()
	defer p.lock.Unlock()
	if err != nil {
		if p.err == nil {
			p.log.Warnf("Ultrasonic read failed: %v", err)
		}
		p.err = err
		return
	}
	p.err = nil

	if d >= p.cfg.MaxRangeCM {
		if p.haveValue && p.maxCount < p.cfg.FilterOut {
			p.maxCount++
			return
		}
		p.distance = p.cfg.MaxRangeCM
		p.haveValue = true
		return
	}
	p.maxCount = 0
	p.distance = d
	p.haveValue = true
}

// Distance returns the latest filtered reading in cm.
func (p *Poller) Distance() (float64, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.err != nil {
		return 0, errors.Wrap(p.err, "ultrasonic sensor failed")
	}
	if !p.haveValue {
		return 0, ErrNoReading
	}
	return p.distance, nil
}

func (p *Poller) SetPollInterval(interval time.Duration) {
	if interval <= 0 {
		interval = p.cfg.PollInterval
	}
	p.lock.Lock()
	p.interval = interval
	p.lock.Unlock()

	select {
	case p.changed <- struct{}{}:
	default:
	}
}

func (p *Poller) pollInterval() time.Duration {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.interval
}
