package angle

import "math"

// PlusMinus180 is an angle in degrees, stored as a value in range (-180, 180].
// All operations clamp their output into range.
type PlusMinus180 struct {
	float64
}

func (a PlusMinus180) Add(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 + b.float64)
}

func (a PlusMinus180) Sub(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 - b.float64)
}

// Float returns the angle in degrees, range (-180, 180].
func (a PlusMinus180) Float() float64 {
	return a.float64
}

// Abs returns the magnitude of the angle, range [0, 180].
func (a PlusMinus180) Abs() float64 {
	return math.Abs(a.float64)
}

// FromFloat converts a float of any magnitude to a PlusMinus180 by calculating
// f mod 360 and shifting into range.
func FromFloat(f float64) PlusMinus180 {
	d := math.Mod(f, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return PlusMinus180{d}
}

// Error returns the signed shortest rotation from current to target.
// Positive means anticlockwise (increasing heading).
func Error(target, current float64) PlusMinus180 {
	return FromFloat(target - current)
}

// Normalize360 maps any heading in degrees into [0, 360).
func Normalize360(f float64) float64 {
	d := math.Mod(f, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		// -tiny + 360 rounds to 360.
		d = 0
	}
	return d
}

// Bearing returns the heading, in [0, 360), of the vector (dx, dy).
func Bearing(dx, dy float64) float64 {
	return Normalize360(math.Atan2(dy, dx) * 180 / math.Pi)
}

func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}
