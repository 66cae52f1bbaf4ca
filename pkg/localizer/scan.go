package localizer

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/poll"
)

// Sample is one full circle scan reading.
type Sample struct {
	Heading  float64
	Distance float64
}

// Analysis is what AnalyzeScan found in a full circle scan.  Indices refer to
// the scan samples.
type Analysis struct {
	// Samples at or beyond Boundary are not part of the revolution.
	Boundary int

	FirstWall, SecondWall                 int
	FirstWallDistance, SecondWallDistance float64

	// Wall indices after the lag correction.
	CorrectedFirst, CorrectedSecond int

	Chosen        int
	TargetHeading float64
}

// scan spins anticlockwise recording (heading, distance) pairs until one
// revolution has been seen.  The wheels are left running.
func (l *Localizer) scan(ctx context.Context) ([]Sample, error) {
	cfg := l.cfg.Scan
	l.sensor.SetPollInterval(cfg.PollInterval)

	speed := l.cfg.RotationSpeed
	if err := l.nav.SetSpeeds(-speed, speed); err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, cfg.Capacity)
	passedHalfTurn := false
	err := poll.Until(ctx, l.clock, cfg.Timeout, cfg.SampleInterval, func() (bool, error) {
		heading := l.odo.Pose().Heading
		if len(samples) >= cfg.Capacity {
			return false, errors.Wrapf(ErrBufferExhausted, "%d samples without a full turn", len(samples))
		}
		dist, err := l.sensor.Distance()
		if err != nil {
			return false, errors.Wrap(err, "failed to read range sensor")
		}
		samples = append(samples, Sample{Heading: heading, Distance: dist})
		l.log.Debugf("Sample %d: heading %.1f distance %.1f", len(samples)-1, heading, dist)

		if heading > 180 && heading < 300 {
			passedHalfTurn = true
		}
		return passedHalfTurn && (heading > 358 || (heading > 0 && heading < 100)), nil
	})
	return samples, err
}

// AnalyzeScan finds the two arena walls in a full circle scan and picks the
// heading to turn to so that the robot faces along the corner diagonal.
func AnalyzeScan(samples []Sample, cfg ScanConfig) (Analysis, error) {
	var a Analysis
	if err := cfg.Validate(); err != nil {
		return a, err
	}

	a.Boundary = validBoundary(samples, cfg)
	if a.Boundary <= cfg.WarmupSamples {
		return a, errors.Wrapf(ErrDegenerateScan, "only %d usable samples", a.Boundary)
	}

	distances := make([]float64, a.Boundary)
	for i := range distances {
		distances[i] = samples[i].Distance
		if distances[i] <= 0 {
			// Only seen while the sensor warms up.
			distances[i] = math.Inf(1)
		}
	}

	a.FirstWall = cfg.WarmupSamples + floats.MinIdx(distances[cfg.WarmupSamples:])
	a.FirstWallDistance = distances[a.FirstWall]
	if a.FirstWallDistance >= cfg.MaxRangeCM {
		return a, errors.Wrap(ErrDegenerateScan, "no wall in range")
	}

	exclusion := int(float64(cfg.Capacity) * cfg.ExclusionFraction)
	candidates := make([]float64, len(distances))
	copy(candidates, distances)
	for i := range candidates {
		if i >= a.FirstWall-exclusion && i <= a.FirstWall+exclusion {
			candidates[i] = math.Inf(1)
		}
	}
	a.SecondWall = floats.MinIdx(candidates)
	a.SecondWallDistance = candidates[a.SecondWall]
	if math.IsInf(a.SecondWallDistance, 1) {
		return a, errors.Wrap(ErrDegenerateScan, "no second wall candidate")
	}

	a.CorrectedFirst = a.FirstWall + cfg.Capacity/cfg.IndexCorrectionDivisor
	if cfg.SecondWallSelfCorrection {
		a.CorrectedSecond = a.SecondWall + a.SecondWall/cfg.IndexCorrectionDivisor
	} else {
		a.CorrectedSecond = a.SecondWall + cfg.Capacity/cfg.IndexCorrectionDivisor
	}
	// Wrap past the end of the revolution.  A large correction on a short scan
	// can overshoot by more than one boundary, so this is a modulo rather than
	// a single subtraction.
	a.CorrectedFirst %= a.Boundary
	a.CorrectedSecond %= a.Boundary

	a.Chosen = chooseWall(a.CorrectedFirst, a.CorrectedSecond, a.Boundary)
	a.TargetHeading = angle.Normalize360(samples[a.Chosen].Heading - cfg.HeadingOffset)
	return a, nil
}

// validBoundary is the index of the first unfilled reading after warm up.  A
// completely full buffer loses its last sample.
func validBoundary(samples []Sample, cfg ScanConfig) int {
	n := len(samples)
	if n > cfg.Capacity {
		n = cfg.Capacity
	}
	for i := cfg.WarmupSamples; i < n; i++ {
		if samples[i].Distance == 0 {
			return i
		}
	}
	if n == cfg.Capacity {
		return n - 1
	}
	return n
}

// chooseWall picks between the two walls by comparing the gap between them
// with the gap going the other way round the scan.
func chooseWall(first, second, boundary int) int {
	if second > first {
		if second-first > boundary-second+first {
			return second
		}
		return first
	}
	if first-second > boundary-first+second {
		return first
	}
	return second
}
