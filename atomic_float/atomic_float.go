package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 cell for lock-free reads and writes from a single
// training goroutine and any number of reporting goroutines. The bits are held in
// an atomic.Uint64, so the zero value holds 0.0 and is ready to use.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 encapsulates a float64 for atomic operations.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.AtomicSet(val)
	return af
}

// Atomically read the float64.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicSet unconditionally stores the value.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// AtomicAdd attempts a single compare-and-swap of old+addend.
// If the cell changes while we're operating upon it, the add is dropped and
// succeeded is false, so the caller can decide to retry or recalculate.
func (af *AtomicFloat64) AtomicAdd(addend float64) (newVal float64, succeeded bool) {
	return af.update(func(old float64) float64 { return old + addend })
}

// Smooth moves the value toward target by the fraction alpha, retrying until it lands.
// Returns the new value.
func (af *AtomicFloat64) Smooth(target, alpha float64) float64 {
	return af.mustUpdate(func(old float64) float64 { return old + alpha*(target-old) })
}

// Scale multiplies the value by factor, retrying until it lands. Returns the new value.
func (af *AtomicFloat64) Scale(factor float64) float64 {
	return af.mustUpdate(func(old float64) float64 { return old * factor })
}

func (af *AtomicFloat64) update(fn func(float64) float64) (newVal float64, succeeded bool) {
	oldBits := af.bits.Load()
	newVal = fn(math.Float64frombits(oldBits))
	succeeded = af.bits.CompareAndSwap(oldBits, math.Float64bits(newVal))
	return
}

func (af *AtomicFloat64) mustUpdate(fn func(float64) float64) float64 {
	for {
		if newVal, ok := af.update(fn); ok {
			return newVal
		}
	}
}
