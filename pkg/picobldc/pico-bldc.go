package picobldc

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/io/i2c"
)

const (
	DefaultBus  = "/dev/i2c-1"
	DefaultAddr = 0x42
)

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegWatchdogTimeout
	RegFaultCount

	RegMot0V
	RegMot1V
	RegMot2V
	RegMot3V

	RegMot0Calib
	RegMot1Calib
	RegMot2Calib
	RegMot3Calib

	RegBattV // LSB=4mV
	RegCurrent
	RegPower

	RegTemperature // LSB = 0.01C

	// Free running encoder counters, LSB = 1/256 revolution.
	RegMot0Travel
	RegMot1Travel
	RegMot2Travel
	RegMot3Travel
)

const (
	BattVLSB       = 0.004
	CurrentLSB     = 0.0001831054688
	PowerLSB       = CurrentLSB * 20
	TemperatureLSB = 0.01
)

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlDoCalib
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	RegStatusFault StatusFlag = 1 << iota
	RegStatusCalibDone
	RegStatusWatchdogExpired
)

// NumChannels is the number of motor channels on the controller board.
const NumChannels = 4

// PerMotorVal holds one value per controller channel.
type PerMotorVal[T any] [NumChannels]T

// Controller is the part of the board the drive needs.
type Controller interface {
	SetMotorSpeeds(speeds PerMotorVal[int16]) error
	RawDistancesTraveled() (PerMotorVal[int16], error)
}

// port is the subset of *i2c.Device that we use.
type port interface {
	ReadReg(reg byte, buf []byte) error
	Write(buf []byte) error
	Close() error
}

type PicoBLDC struct {
	log   *zap.SugaredLogger
	clock clock.Clock

	open func() (port, error)
	dev  port

	lastConfigWord  uint16
	lastConfigTime  time.Time
	watchdogEnabled bool

	calibrationTimeout time.Duration
}

var _ Controller = (*PicoBLDC)(nil)

var (
	ErrWriteFailed        = errors.New("Pico-BLDC write failed")
	ErrCalibrationTimeout = errors.New("Pico-BLDC calibration did not finish")
)

func New(bus string, addr int, log *zap.SugaredLogger) (*PicoBLDC, error) {
	open := func() (port, error) {
		return i2c.Open(&i2c.Devfs{Dev: bus}, addr)
	}
	return newWithPort(open, clock.New(), log)
}

func newWithPort(open func() (port, error), clk clock.Clock, log *zap.SugaredLogger) (*PicoBLDC, error) {
	dev, err := open()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Pico-BLDC")
	}
	return &PicoBLDC{
		log:                log,
		clock:              clk,
		open:               open,
		dev:                dev,
		calibrationTimeout: 30 * time.Second,
	}, nil
}

func (p *PicoBLDC) Reset() error {
	return p.maybeConfigure(true, false)
}

func (p *PicoBLDC) SetWatchdog(timeout time.Duration) error {
	if timeout == 0 {
		// Disable.
		p.watchdogEnabled = false
		return p.maybeConfigure(false, false)
	}

	ms := timeout.Milliseconds()
	if ms > math.MaxUint16 {
		ms = math.MaxUint16
	}
	err := p.writeReg(RegWatchdogTimeout, uint16(ms))
	if err != nil {
		return err
	}

	p.watchdogEnabled = true
	return p.maybeConfigure(false, false)
}

func (p *PicoBLDC) SetMotorSpeeds(speeds PerMotorVal[int16]) error {
	if err := p.maybeConfigure(false, true); err != nil {
		return err
	}
	for m, v := range speeds {
		if err := p.writeReg(RegMot0V+Register(m), uint16(v)); err != nil {
			return err
		}
	}
	return nil
}

func (p *PicoBLDC) RawDistancesTraveled() (raw PerMotorVal[int16], err error) {
	for m := range raw {
		v, err := p.readReg(RegMot0Travel + Register(m))
		if err != nil {
			return raw, errors.Wrapf(err, "failed to read encoder %d", m)
		}
		raw[m] = int16(v)
	}
	return raw, nil
}

func (p *PicoBLDC) Close() error {
	_ = p.Reset()
	return p.dev.Close()
}

func (p *PicoBLDC) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < 20; tries++ {
		err = p.dev.Write(data)
		if err == nil {
			if tries > 0 {
				p.log.Infof("Successfully programmed Pico-BLDC after %d retries", tries)
			}
			return nil
		}
		p.log.Warnf("Failed to write to Pico-BLDC: %v", err)
		p.clock.Sleep(1 * time.Millisecond)
		_ = p.dev.Close()
		dev, openErr := p.open()
		if openErr != nil {
			continue
		}
		p.dev = dev
	}
	return errors.Wrapf(ErrWriteFailed, "giving up after retries: %v", err)
}

func (p *PicoBLDC) maybeConfigure(resetMotorSpeeds bool, enableMotors bool) error {
	// Figure out if the config word has changed.
	var configWord uint16 = RegCtrlEnableI2CControl
	if resetMotorSpeeds {
		configWord |= RegCtrlReset
	}
	if enableMotors {
		configWord |= RegCtrlRun
	}
	if p.watchdogEnabled {
		configWord |= RegCtrlWatchdogEnable
	}

	if configWord == p.lastConfigWord && p.clock.Since(p.lastConfigTime) < 100*time.Millisecond {
		// Skip writing config if we've done it recently.
		return nil
	}

	if p.lastConfigWord == 0 {
		// First time.  Figure out calibration...
		calib, err := p.readReg(RegMot3Calib)
		if err != nil {
			return err
		}
		if calib == 0 {
			// Calibration register empty; the wheels must be off the ground.
			p.log.Info("Pico-BLDC not calibrated, running calibration...")
			configWord |= RegCtrlDoCalib
		}
	}

	if err := p.writeReg(RegCtrl, configWord); err != nil {
		return err
	}

	if configWord&RegCtrlDoCalib != 0 {
		if err := p.waitForCalibration(); err != nil {
			return err
		}
	}

	if err := p.writeReg(RegStatus, uint16(RegStatusCalibDone)); err != nil {
		return err
	}

	p.lastConfigTime = p.clock.Now()
	p.lastConfigWord = configWord & (^RegCtrlReset) /* Reset flag is not persistent */
	return nil
}

func (p *PicoBLDC) waitForCalibration() error {
	start := p.clock.Now()
	var lastPrint time.Time
	for {
		status, err := p.readReg(RegStatus)
		if err != nil {
			p.log.Warnf("Failed to read status register: %v", err)
		}
		if status&uint16(RegStatusCalibDone) != 0 {
			break
		}
		if p.clock.Since(start) > p.calibrationTimeout {
			return ErrCalibrationTimeout
		}
		if p.clock.Since(lastPrint) > time.Second {
			p.log.Infof("Waiting for calibration to finish... Status=%x", status)
			lastPrint = p.clock.Now()
		}
		p.clock.Sleep(10 * time.Millisecond)
	}

	var words []uint16
	for r := RegMot0Calib; r <= RegMot3Calib; r++ {
		v, err := p.readReg(r)
		if err != nil {
			return err
		}
		words = append(words, v)
	}
	p.log.Infof("Calibration words: %04x", words)
	return nil
}

func (p *PicoBLDC) BattVolts() (float32, error) {
	raw, err := p.readReg(RegBattV)
	if err != nil {
		return 0, err
	}
	v := float32(raw) * BattVLSB
	return v, nil
}

func (p *PicoBLDC) CurrentAmps() (float32, error) {
	raw, err := p.readReg(RegCurrent)
	if err != nil {
		return 0, err
	}
	v := float32(raw) * CurrentLSB
	return v, nil
}

func (p *PicoBLDC) PowerWatts() (float32, error) {
	raw, err := p.readReg(RegPower)
	if err != nil {
		return 0, err
	}
	v := float32(raw) * PowerLSB
	return v, nil
}

func (p *PicoBLDC) TemperatureC() (float32, error) {
	raw, err := p.readReg(RegTemperature)
	if err != nil {
		return 0, err
	}
	v := float32(raw) * TemperatureLSB
	return v, nil
}

func (p *PicoBLDC) Status() (StatusFlag, error) {
	raw, err := p.readReg(RegStatus)
	if err != nil {
		return 0, err
	}
	return StatusFlag(raw), nil
}

func (p *PicoBLDC) writeReg(reg Register, value uint16) error {
	return p.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

func (p *PicoBLDC) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	err := p.dev.ReadReg(byte(reg), buf[:])
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}
