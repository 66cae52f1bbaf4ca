package angle

import (
	"math"
	"testing"
)

func TestFromFloat(t *testing.T) {
	expectPM180(t, 0, 0)
	expectPM180(t, 179, 179)
	expectPM180(t, -179, -179)
	expectPM180(t, 180, 180)
	expectPM180(t, -180, 180)
	expectPM180(t, 360, 0)
	expectPM180(t, 361, 1)
	expectPM180(t, 359, -1)
	expectPM180(t, 720+190, -170)
	expectPM180(t, -540, 180)
}

func TestNormalize360(t *testing.T) {
	expect360(t, 0, 0)
	expect360(t, 359.5, 359.5)
	expect360(t, 360, 0)
	expect360(t, -1, 359)
	expect360(t, -360, 0)
	expect360(t, 725, 5)
	expect360(t, -1e-15, 0)
}

func TestErrorTakesShortestPath(t *testing.T) {
	for target := 0.0; target < 360; target += 7.5 {
		for current := 0.0; current < 360; current += 11.25 {
			e := Error(target, current)
			if e.Abs() > 180 {
				t.Errorf("target %v current %v: error %v longer than half a turn", target, current, e.Float())
			}
			if got := Normalize360(current + e.Float()); math.Abs(got-target) > 1e-9 {
				t.Errorf("target %v current %v: current+error = %v", target, current, got)
			}
		}
	}
}

func TestBearing(t *testing.T) {
	expect360(t, Bearing(1, 0), 0)
	expect360(t, Bearing(0, 1), 90)
	expect360(t, Bearing(-1, 0), 180)
	expect360(t, Bearing(0, -1), 270)
	expect360(t, Bearing(1, -1), 315)
}

func expectPM180(t *testing.T, in, expected float64) {
	t.Helper()
	if a := FromFloat(in).Float(); math.Abs(a-expected) > 1e-9 {
		t.Errorf("FromFloat(%v) = %v, expected %v", in, a, expected)
	}
}

func expect360(t *testing.T, in, expected float64) {
	t.Helper()
	if a := Normalize360(in); math.Abs(a-expected) > 1e-9 {
		t.Errorf("Normalize360(%v) = %v, expected %v", in, a, expected)
	}
}
