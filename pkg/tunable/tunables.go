package tunable

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Tunable is a named value that can be changed while a control loop is running.
// Loops read it once per iteration, so a change applies from the next iteration.
type Tunable struct {
	Name string
	bits uint64
}

func (t *Tunable) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&t.bits))
}

func (t *Tunable) Set(v float64) {
	atomic.StoreUint64(&t.bits, math.Float64bits(v))
}

func (t *Tunable) Add(delta float64) float64 {
	for {
		old := atomic.LoadUint64(&t.bits)
		newV := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(&t.bits, old, math.Float64bits(newV)) {
			return newV
		}
	}
}

type Tunables struct {
	lock sync.Mutex
	all  []*Tunable
}

func (t *Tunables) Create(name string, value float64) *Tunable {
	t.lock.Lock()
	defer t.lock.Unlock()

	newTunable := &Tunable{Name: name}
	newTunable.Set(value)
	t.all = append(t.all, newTunable)
	return newTunable
}

func (t *Tunables) Lookup(name string) (*Tunable, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, tn := range t.all {
		if tn.Name == name {
			return tn, true
		}
	}
	return nil, false
}

// Apply sets each named tunable to the given value. Unknown names are an error,
// nothing is changed in that case.
func (t *Tunables) Apply(values map[string]float64) error {
	names := maps.Keys(values)
	slices.Sort(names)
	for _, name := range names {
		if _, ok := t.Lookup(name); !ok {
			return errors.Errorf("unknown tunable %q", name)
		}
	}
	for _, name := range names {
		tn, _ := t.Lookup(name)
		tn.Set(values[name])
	}
	return nil
}

// Snapshot returns the current value of every tunable, keyed by name.
func (t *Tunables) Snapshot() map[string]float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	out := make(map[string]float64, len(t.all))
	for _, tn := range t.all {
		out[tn.Name] = tn.Get()
	}
	return out
}
