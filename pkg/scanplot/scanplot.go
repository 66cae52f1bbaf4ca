// Package scanplot draws a full circle ultrasonic scan as a polar plot.
package scanplot

import (
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/localizer"
)

type Options struct {
	Size       int
	MaxRangeCM float64
}

func DefaultOptions() Options {
	return Options{Size: 512, MaxRangeCM: 100}
}

// Render plots each sample as a dot at its heading and distance, with the
// robot in the middle and heading 0 pointing right.  If a is non-nil the walls
// it found and the chosen target heading are drawn over the top.
func Render(samples []localizer.Sample, a *localizer.Analysis, opts Options) image.Image {
	s := float64(opts.Size)
	dc := gg.NewContext(opts.Size, opts.Size)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	cx, cy := s/2, s/2
	scale := (s/2 - 10) / opts.MaxRangeCM
	toXY := func(heading, dist float64) (float64, float64) {
		r := gg.Radians(heading)
		// Screen Y runs downwards.
		return cx + dist*scale*math.Cos(r), cy - dist*scale*math.Sin(r)
	}

	// Range rings every 25cm.
	dc.SetRGBA(1, 1, 1, 0.2)
	dc.SetLineWidth(1)
	for r := 25.0; r <= opts.MaxRangeCM; r += 25 {
		dc.DrawCircle(cx, cy, r*scale)
		dc.Stroke()
	}

	dc.SetRGBA(1, 0.9, 0, 1)
	for _, sample := range samples {
		if sample.Distance <= 0 || sample.Distance > opts.MaxRangeCM {
			continue
		}
		x, y := toXY(sample.Heading, sample.Distance)
		dc.DrawPoint(x, y, 2)
		dc.Fill()
	}

	if a != nil {
		drawRay := func(idx int, width float64) {
			if idx < 0 || idx >= len(samples) {
				return
			}
			sample := samples[idx]
			x, y := toXY(sample.Heading, math.Min(sample.Distance, opts.MaxRangeCM))
			dc.SetLineWidth(width)
			dc.DrawLine(cx, cy, x, y)
			dc.Stroke()
		}
		dc.SetRGB(1, 0, 0)
		drawRay(a.FirstWall, 2)
		drawRay(a.SecondWall, 2)
		dc.SetRGB(0, 1, 0)
		drawRay(a.Chosen, 3)

		dc.SetRGB(0, 0.6, 1)
		x, y := toXY(a.TargetHeading, opts.MaxRangeCM)
		dc.SetLineWidth(1)
		dc.DrawLine(cx, cy, x, y)
		dc.Stroke()

		dc.SetRGB(1, 1, 1)
		dc.DrawString(fmt.Sprintf("walls %d, %d  target %.1f", a.FirstWall, a.SecondWall, a.TargetHeading), 5, 15)
	}

	dc.SetRGB(1, 1, 1)
	dc.DrawCircle(cx, cy, 3)
	dc.Fill()

	return dc.Image()
}

func SavePNG(path string, samples []localizer.Sample, a *localizer.Analysis, opts Options) error {
	if opts.Size <= 0 || opts.MaxRangeCM <= 0 {
		return errors.New("plot size and range must be positive")
	}
	return errors.Wrap(gg.SavePNG(path, Render(samples, a, opts)), "failed to save scan plot")
}
