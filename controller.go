package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/localizer"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/poll"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/robot"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/scanplot"
)

const (
	flagConfig     = "config"
	flagSim        = "sim"
	flagPlot       = "plot"
	flagSaveConfig = "save-config"
	flagStrategy   = "strategy"
	flagNoStop     = "no-stop"
)

func main() {
	app := &cli.App{
		Name:  "navigator",
		Usage: "localize and drive the robot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagConfig,
				Usage: "YAML config file; built in defaults if empty",
			},
			&cli.BoolFlag{
				Name:  flagSim,
				Usage: "run against the simulator instead of the hardware",
			},
			&cli.StringFlag{
				Name:  flagSaveConfig,
				Usage: "write the config in use to this file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "localize",
				Usage: "find the robot's heading (and position) from the arena walls",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagStrategy,
						Usage: "falling_edge, rising_edge or full_circle; overrides the config",
					},
					&cli.StringFlag{
						Name:  flagPlot,
						Usage: "write a polar plot of a full circle scan to this PNG",
					},
				},
				Action: withRobot(localizeAction),
			},
			{
				Name:      "travel",
				Usage:     "drive to a point",
				ArgsUsage: "<x> <y>",
				Action:    withRobot(travelAction(false)),
			},
			{
				Name:      "avoid",
				Usage:     "drive to a point, going around anything in the way",
				ArgsUsage: "<x> <y>",
				Action:    withRobot(travelAction(true)),
			},
			{
				Name:      "forward",
				Usage:     "drive straight ahead",
				ArgsUsage: "<cm>",
				Action:    withRobot(forwardAction),
			},
			{
				Name:      "turn",
				Usage:     "turn to a heading",
				ArgsUsage: "<degrees>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagNoStop,
						Usage: "leave the wheels turning once on heading",
					},
				},
				Action: withRobot(turnAction),
			},
			{
				Name:   "spin",
				Usage:  "spin once on the spot, as for light sensor localization",
				Action: withRobot(spinAction),
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type robotAction func(ctx context.Context, c *cli.Context, r *robot.Robot, log *zap.SugaredLogger) error

func withRobot(action robotAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String(flagConfig))
		if err != nil {
			return err
		}
		if s := c.String(flagStrategy); s != "" {
			if cfg.Localization.Strategy, err = localizer.ParseStrategy(s); err != nil {
				return err
			}
		}
		if path := c.String(flagSaveConfig); path != "" {
			if err := config.Save(path, cfg); err != nil {
				return err
			}
		}

		logger, err := cfg.Log.Build()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		log := logger.Sugar()
		log.Infof("---- Navigator ---- GOMAXPROCS %d", runtime.GOMAXPROCS(0))

		// Our global context, cancelled to trigger shutdown.
		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		var r *robot.Robot
		if c.Bool(flagSim) {
			r, err = robot.NewSim(cfg, log)
		} else {
			r, err = robot.New(cfg, log)
		}
		if err != nil {
			return errors.Wrap(err, "failed to set up robot")
		}
		r.Start(ctx)
		defer func() {
			if err := r.Shutdown(); err != nil {
				log.Warnf("Shutdown: %v", err)
			}
		}()

		start := time.Now()
		err = action(ctx, c, r, log)
		log.Infof("Finished in %v", time.Since(start).Round(time.Millisecond))
		if r.World != nil {
			t := r.World.Truth()
			log.Infof("Simulated robot ended at (%.1f, %.1f) heading %.1f", t.X, t.Y, t.Heading)
		}
		return err
	}
}

func floatArgs(c *cli.Context, n int) ([]float64, error) {
	if c.NArg() != n {
		return nil, errors.Errorf("expected %d arguments, got %d", n, c.NArg())
	}
	out := make([]float64, n)
	for i := range out {
		v, err := strconv.ParseFloat(c.Args().Get(i), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad argument %q", c.Args().Get(i))
		}
		out[i] = v
	}
	return out, nil
}

func localizeAction(ctx context.Context, c *cli.Context, r *robot.Robot, log *zap.SugaredLogger) error {
	res, err := r.Localizer.Localize(ctx)
	if path := c.String(flagPlot); path != "" && len(res.Samples) > 0 {
		opts := scanplot.DefaultOptions()
		if plotErr := scanplot.SavePNG(path, res.Samples, res.Analysis, opts); plotErr != nil {
			log.Warnf("Failed to plot scan: %v", plotErr)
		} else {
			log.Infof("Scan plot written to %s", path)
		}
	}
	if err != nil {
		return err
	}
	log.Infof("Localized with %v: pose (%.1f, %.1f) heading %.1f",
		res.Strategy, res.Pose.X, res.Pose.Y, res.Pose.Heading)
	return nil
}

func travelAction(avoid bool) robotAction {
	return func(ctx context.Context, c *cli.Context, r *robot.Robot, log *zap.SugaredLogger) error {
		args, err := floatArgs(c, 2)
		if err != nil {
			return err
		}
		if avoid {
			err = r.Navigator.TravelToAndAvoid(ctx, args[0], args[1])
		} else {
			err = r.Navigator.TravelTo(ctx, args[0], args[1])
		}
		if err != nil {
			return err
		}
		p := r.Odometer.Pose()
		log.Infof("Arrived at (%.1f, %.1f)", p.X, p.Y)
		return nil
	}
}

func forwardAction(ctx context.Context, c *cli.Context, r *robot.Robot, log *zap.SugaredLogger) error {
	args, err := floatArgs(c, 1)
	if err != nil {
		return err
	}
	return r.Navigator.GoForward(ctx, args[0])
}

func turnAction(ctx context.Context, c *cli.Context, r *robot.Robot, log *zap.SugaredLogger) error {
	args, err := floatArgs(c, 1)
	if err != nil {
		return err
	}
	if err := r.Navigator.TurnTo(ctx, args[0], !c.Bool(flagNoStop)); err != nil {
		return err
	}
	log.Infof("Heading now %.1f", r.Odometer.Pose().Heading)
	return nil
}

func spinAction(ctx context.Context, c *cli.Context, r *robot.Robot, log *zap.SugaredLogger) error {
	if err := r.Navigator.RotateForLightLocalization(ctx); err != nil {
		return err
	}
	return poll.Until(ctx, clock.New(), time.Minute, 50*time.Millisecond, func() (bool, error) {
		log.Debugf("Heading %.1f", r.Odometer.Pose().Heading)
		rotating, err := r.Navigator.IsRotating()
		return !rotating, err
	})
}
