// Package robot wires the drivers, the navigator and the localizer together,
// either on the real hardware or in the simulator.
package robot

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/avoider"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/localizer"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/navigation"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/odometer"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/picobldc"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/sim"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/sound"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/tunable"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/ultrasonic"
)

type loop func(ctx context.Context, wg *sync.WaitGroup)

type Robot struct {
	log *zap.SugaredLogger

	Left, Right hardware.Motor
	Odometer    hardware.Odometer
	Sensor      hardware.RangeSensor
	Alerter     hardware.Alerter

	Tunables  *tunable.Tunables
	Navigator *navigation.Navigator
	Avoider   *avoider.Avoider
	Localizer *localizer.Localizer

	// Only set when simulating.
	World *sim.World

	loops   []loop
	closers []func() error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the real hardware.
func New(cfg config.Config, log *zap.SugaredLogger) (*Robot, error) {
	r := &Robot{log: log}
	if err := r.open(cfg); err != nil {
		_ = r.close()
		return nil, err
	}
	return r, nil
}

func (r *Robot) open(cfg config.Config) error {
	log := r.log

	driveCfg := cfg.Hardware.Drive
	pico, err := picobldc.New(driveCfg.Bus, driveCfg.Addr, log.Named("pico"))
	if err != nil {
		return err
	}
	r.closers = append(r.closers, pico.Close)
	if err := pico.SetWatchdog(driveCfg.Watchdog); err != nil {
		return errors.Wrap(err, "failed to set watchdog")
	}
	drive, err := picobldc.NewDrive(driveCfg, pico, nil, log.Named("drive"))
	if err != nil {
		return err
	}
	r.Left, r.Right = drive.Left(), drive.Right()

	odo := odometer.New(cfg.Chassis, drive.Left(), drive.Right(), cfg.Hardware.OdometerPeriod, nil, log.Named("odo"))
	r.Odometer = odo

	usCfg := cfg.Hardware.Ultrasonic
	hcsr04, err := ultrasonic.NewHCSR04(usCfg.EchoPin, usCfg.TriggerPin, usCfg.MaxRangeCM)
	if err != nil {
		return err
	}
	r.closers = append(r.closers, hcsr04.Close)
	poller, err := ultrasonic.NewPoller(usCfg, hcsr04, nil, log.Named("us"))
	if err != nil {
		return err
	}
	r.Sensor = poller

	player, err := sound.New(cfg.Sounds, log.Named("sound"))
	if err != nil {
		return err
	}
	r.Alerter = player

	r.loops = []loop{drive.Loop, odo.Loop, poller.Loop, player.Loop}
	return r.build(cfg)
}

// NewSim builds the robot on top of a simulated world.  The simulated range
// sensor sits at the centre of the wheelbase.
func NewSim(cfg config.Config, log *zap.SugaredLogger) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	simCfg := sim.DefaultConfig()
	simCfg.Chassis = cfg.Chassis
	simCfg.Step = cfg.Sim.Step
	simCfg.ArenaWidthCM = cfg.Sim.ArenaTiles * cfg.Localization.Scan.TileCM
	simCfg.ArenaHeightCM = simCfg.ArenaWidthCM
	simCfg.MaxRangeCM = cfg.Localization.Scan.MaxRangeCM
	simCfg.Start = hardware.Pose{X: cfg.Sim.StartX, Y: cfg.Sim.StartY, Heading: cfg.Sim.StartHeading}
	world := sim.New(simCfg)

	r := &Robot{
		log:      log,
		Left:     world.Left(),
		Right:    world.Right(),
		Odometer: world,
		Sensor:   world,
		Alerter:  world,
		World:    world,
	}
	if err := r.build(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Robot) build(cfg config.Config) error {
	r.Tunables = &tunable.Tunables{}

	nav, err := navigation.New(cfg.Navigation, navigation.Deps{
		Left:     r.Left,
		Right:    r.Right,
		Odometer: r.Odometer,
		Sensor:   r.Sensor,
		Alerter:  r.Alerter,
		Chassis:  cfg.Chassis,
		Tunables: r.Tunables,
	}, r.log.Named("nav"))
	if err != nil {
		return err
	}
	r.Navigator = nav

	r.Avoider, err = avoider.New(cfg.Avoider, avoider.Deps{
		Driver:   nav,
		Odometer: r.Odometer,
		Sensor:   r.Sensor,
	}, r.log.Named("avoid"))
	if err != nil {
		return err
	}
	nav.SetWallAvoider(r.Avoider)

	r.Localizer, err = localizer.New(cfg.Localization, localizer.Deps{
		Driver:   nav,
		Left:     r.Left,
		Right:    r.Right,
		Odometer: r.Odometer,
		Sensor:   r.Sensor,
		Alerter:  r.Alerter,
		Chassis:  cfg.Chassis,
	}, r.log.Named("usl"))
	if err != nil {
		return err
	}

	return errors.Wrap(r.Tunables.Apply(cfg.Tunables), "bad tunables")
}

// Start runs the background loops.  They stop when ctx is cancelled or on
// Shutdown.
func (r *Robot) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, l := range r.loops {
		r.wg.Add(1)
		go l(ctx, &r.wg)
	}
}

func (r *Robot) Shutdown() error {
	r.log.Info("Shutting down")
	err := r.Navigator.SetSpeeds(0, 0)
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return multierr.Append(err, r.close())
}

func (r *Robot) close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i]())
	}
	r.closers = nil
	return err
}
