package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/picobldc"
)

func main() {
	app := &cli.App{
		Name:  "picotest",
		Usage: "spin on the spot, printing encoder and power readings",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bus", Value: picobldc.DefaultBus, Usage: "I2C bus device"},
			&cli.Float64Flag{Name: "speed", Value: 90, Usage: "wheel speed, degrees/second"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Println("Failed:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	log := logger.Sugar()

	fmt.Println("Pico-BLDC test program")
	pico, err := picobldc.New(c.String("bus"), picobldc.DefaultAddr, log)
	if err != nil {
		return err
	}
	defer pico.Close()
	fmt.Println("Created PicoBLDC object. Enabling watchdog...")
	if err := pico.SetWatchdog(time.Second); err != nil {
		return err
	}
	fmt.Println("Watchdog enabled.")

	cfg := picobldc.DefaultDriveConfig()
	cfg.Bus = c.String("bus")
	drive, err := picobldc.NewDrive(cfg, pico, nil, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go drive.Loop(ctx, &wg)
	defer wg.Wait()

	speed := c.Float64("speed")
	for _, err := range []error{
		drive.Left().SetSpeed(speed),
		drive.Right().SetSpeed(speed),
		drive.Left().Backward(),
		drive.Right().Forward(),
	} {
		if err != nil {
			return err
		}
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		battV, _ := pico.BattVolts()
		current, _ := pico.CurrentAmps()
		power, _ := pico.PowerWatts()
		tempC, _ := pico.TemperatureC()
		status, _ := pico.Status()
		fmt.Printf("L=%.1f R=%.1f %.1fC %.2fV %.3fA %.3fW Status=%x\n",
			drive.Left().Degrees(), drive.Right().Degrees(), tempC, battV, current, power, status)
	}
}
