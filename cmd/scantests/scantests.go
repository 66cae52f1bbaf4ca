package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/localizer"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/robot"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/scanplot"
)

// scantests runs full circle scans in the simulator from a range of starting
// poses and plots each one, for tuning the scan analysis.
func main() {
	app := &cli.App{
		Name:  "scantests",
		Usage: "simulate full circle scans and plot them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file"},
			&cli.StringFlag{Name: "out", Value: ".", Usage: "directory for the plots"},
			&cli.Float64SliceFlag{Name: "heading", Value: cli.NewFloat64Slice(0, 45, 90, 180, 270), Usage: "starting headings"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Println("Failed:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	cfg.Localization.Strategy = localizer.FullCircle
	cfg.Localization.Scan.SampleInterval = 0
	cfg.Navigation.ControlInterval = 0
	cfg.Navigation.SettleDelay = 0

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	log := logger.Sugar()

	for _, heading := range c.Float64Slice("heading") {
		cfg.Sim.StartHeading = heading
		r, err := robot.NewSim(cfg, log.With("start_heading", heading))
		if err != nil {
			return err
		}

		res, err := r.Localizer.Localize(context.Background())
		truth := r.World.Truth()
		switch {
		case err != nil:
			fmt.Printf("start %5.1f: failed after %d samples: %v\n", heading, len(res.Samples), err)
		default:
			a := res.Analysis
			fmt.Printf("start %5.1f: %d samples, walls %d/%d, chose %d, ended at (%.1f, %.1f) facing %.1f\n",
				heading, len(res.Samples), a.FirstWall, a.SecondWall, a.Chosen, truth.X, truth.Y, truth.Heading)
		}

		if len(res.Samples) > 0 {
			path := fmt.Sprintf("%s/scan-%03.0f.png", c.String("out"), heading)
			if err := scanplot.SavePNG(path, res.Samples, res.Analysis, scanplot.DefaultOptions()); err != nil {
				return err
			}
		}
		if err := r.Shutdown(); err != nil {
			return err
		}
	}
	return nil
}
