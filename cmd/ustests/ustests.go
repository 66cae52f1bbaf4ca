package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/ultrasonic"
)

func main() {
	defaults := ultrasonic.DefaultConfig()
	app := &cli.App{
		Name:  "ustests",
		Usage: "print raw HC-SR04 readings",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "echo", Value: defaults.EchoPin, Usage: "echo GPIO pin"},
			&cli.StringFlag{Name: "trigger", Value: defaults.TriggerPin, Usage: "trigger GPIO pin"},
			&cli.Float64Flag{Name: "max-range", Value: defaults.MaxRangeCM, Usage: "max range, cm"},
			&cli.DurationFlag{Name: "interval", Value: defaults.PollInterval, Usage: "time between pings"},
		},
		Action: func(c *cli.Context) error {
			s, err := ultrasonic.NewHCSR04(c.String("echo"), c.String("trigger"), c.Float64("max-range"))
			if err != nil {
				return err
			}
			defer s.Close()

			for {
				d, err := s.MeasureCM()
				if err != nil {
					fmt.Println("Read failed:", err)
				} else {
					fmt.Printf("%6.1fcm\n", d)
				}
				time.Sleep(c.Duration("interval"))
			}
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Println("Failed:", err)
		os.Exit(1)
	}
}
