package picobldc

// CountsPerRev is the resolution of the board's travel counters.
const CountsPerRev = 256

type travelSource interface {
	RawDistancesTraveled() (PerMotorVal[int16], error)
}

// Encoders accumulates the board's wrapping 16 bit travel counters into
// unbounded per channel wheel angles.  Poll must run often enough that no
// counter moves by half its range between calls.
type Encoders struct {
	src travelSource

	primed bool
	last   PerMotorVal[int16]
	counts PerMotorVal[int64]
}

func NewEncoders(src travelSource) *Encoders {
	return &Encoders{src: src}
}

func (e *Encoders) Poll() error {
	raw, err := e.src.RawDistancesTraveled()
	if err != nil {
		return err
	}
	if e.primed {
		for ch := range raw {
			// int16 subtraction wraps the same way the counter does.
			e.counts[ch] += int64(raw[ch] - e.last[ch])
		}
	}
	e.last = raw
	e.primed = true
	return nil
}

// Degrees returns how far each channel has turned since the first Poll or the
// last Reset.
func (e *Encoders) Degrees() (deg PerMotorVal[float64]) {
	for ch, c := range e.counts {
		deg[ch] = float64(c) * 360 / CountsPerRev
	}
	return
}

func (e *Encoders) Reset() {
	e.counts = PerMotorVal[int64]{}
}
