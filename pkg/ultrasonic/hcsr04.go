package ultrasonic

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// Speed of sound at around 21C, in cm/us.
const cmPerMicrosecond = 0.0344

var ErrNoEcho = errors.New("no echo from ultrasonic sensor")

// HCSR04 is an HC-SR04 ultrasonic ranging module on two GPIO pins.
type HCSR04 struct {
	echo    gpio.PinIO
	trigger gpio.PinIO
	// Echoes longer than this are reported as out of range.
	maxEcho time.Duration
}

// NewHCSR04 opens the sensor.  Pin names are in the format gpioreg.ByName
// expects; on a Raspberry Pi that's the BCM number.
func NewHCSR04(echoPin, triggerPin string, maxRangeCM float64) (*HCSR04, error) {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialise periph")
	}

	s := &HCSR04{
		echo:    gpioreg.ByName(echoPin),
		trigger: gpioreg.ByName(triggerPin),
		maxEcho: time.Duration(2*maxRangeCM/cmPerMicrosecond) * time.Microsecond,
	}
	if s.echo == nil {
		return nil, errors.Errorf("no GPIO pin named %q for echo", echoPin)
	}
	if s.trigger == nil {
		return nil, errors.Errorf("no GPIO pin named %q for trigger", triggerPin)
	}
	if err := s.trigger.Out(gpio.Low); err != nil {
		return nil, errors.Wrap(err, "failed to configure trigger pin")
	}
	if err := s.echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, errors.Wrap(err, "failed to configure echo pin")
	}
	return s, nil
}

// MeasureCM triggers one ping and times the echo pulse.
func (s *HCSR04) MeasureCM() (float64, error) {
	if err := s.echo.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return 0, err
	}

	if err := s.trigger.Out(gpio.High); err != nil {
		return 0, err
	}
	time.Sleep(10 * time.Microsecond)
	if err := s.trigger.Out(gpio.Low); err != nil {
		return 0, err
	}

	if !s.echo.WaitForEdge(100 * time.Millisecond) {
		return 0, ErrNoEcho
	}
	start := time.Now()

	if err := s.echo.In(gpio.PullDown, gpio.FallingEdge); err != nil {
		return 0, err
	}
	if !s.echo.WaitForEdge(s.maxEcho) {
		// Nothing within range.
		return float64(s.maxEcho.Microseconds()) * cmPerMicrosecond / 2, nil
	}
	flight := time.Since(start)

	return float64(flight.Microseconds()) * cmPerMicrosecond / 2, nil
}

func (s *HCSR04) Close() error {
	return s.echo.In(gpio.PullNoChange, gpio.NoEdge)
}
