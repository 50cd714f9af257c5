// value_map holds a smoothed per-cell estimate of the agent's state values,
// written by the training loop and read by reporters.
package value_map

import (
	"fmt"
	"log"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"basurahan/atomic_float"

	channerics "github.com/niceyeti/channerics/channels"
)

const (
	// Smoothing factor for incoming values.
	Alpha = 0.1
	// When the tracked range exceeds this magnitude, all cells are divided by the range's max magnitude.
	NormalizeThreshold = 1000.0

	DefaultMin = -20.0
	DefaultMax = 50.0
)

// Cell is a snapshot of one grid position, usable directly by views.
type Cell struct {
	X, Y  int
	Value float64
	// Mean is the plain average of every value reported for the cell.
	Mean   float64
	Visits int64
}

// ValueMap is a square grid of smoothed values indexed [y][x]. Updates come from a single
// training goroutine; snapshots may be taken concurrently and may observe a partially
// normalized grid.
type ValueMap struct {
	values [][]atomic_float.AtomicFloat64
	sums   [][]atomic_float.AtomicFloat64
	visits [][]atomic.Int64
	min    atomic_float.AtomicFloat64
	max    atomic_float.AtomicFloat64
}

func NewValueMap(size int) *ValueMap {
	vm := &ValueMap{
		values: make([][]atomic_float.AtomicFloat64, size),
		sums:   make([][]atomic_float.AtomicFloat64, size),
		visits: make([][]atomic.Int64, size),
	}
	for y := 0; y < size; y++ {
		vm.values[y] = make([]atomic_float.AtomicFloat64, size)
		vm.sums[y] = make([]atomic_float.AtomicFloat64, size)
		vm.visits[y] = make([]atomic.Int64, size)
	}
	vm.min.AtomicSet(DefaultMin)
	vm.max.AtomicSet(DefaultMax)
	return vm
}

func (vm *ValueMap) Size() int {
	return len(vm.values)
}

// UpdateStateValue folds value into the cell at (x,y). Out-of-range positions and
// non-finite values are dropped.
func (vm *ValueMap) UpdateStateValue(x, y int, value float64) {
	if y < 0 || y >= len(vm.values) || x < 0 || x >= len(vm.values[y]) {
		log.Printf("value map: position (%d,%d) outside %dx%d grid", x, y, len(vm.values), len(vm.values))
		return
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		log.Printf("value map: dropping non-finite value %v at (%d,%d)", value, x, y)
		return
	}

	smoothed := vm.values[y][x].Smooth(value, Alpha)
	for _, ok := vm.sums[y][x].AtomicAdd(value); !ok; _, ok = vm.sums[y][x].AtomicAdd(value) {
	}
	vm.visits[y][x].Add(1)
	if smoothed < vm.min.AtomicRead() {
		vm.min.AtomicSet(smoothed)
	}
	if smoothed > vm.max.AtomicRead() {
		vm.max.AtomicSet(smoothed)
	}

	lo, hi := vm.Range()
	if math.Abs(lo) > NormalizeThreshold || math.Abs(hi) > NormalizeThreshold {
		vm.normalize(math.Max(math.Abs(lo), math.Abs(hi)))
	}
}

func (vm *ValueMap) normalize(maxAbs float64) {
	factor := 1 / maxAbs
	vm.visit(func(x, y int) {
		vm.values[y][x].Scale(factor)
		vm.sums[y][x].Scale(factor)
	})
	vm.min.Scale(factor)
	vm.max.Scale(factor)
}

// Value returns the smoothed value at (x,y).
func (vm *ValueMap) Value(x, y int) float64 {
	return vm.values[y][x].AtomicRead()
}

// Range returns the tracked min and max values.
func (vm *ValueMap) Range() (min, max float64) {
	return vm.min.AtomicRead(), vm.max.AtomicRead()
}

// Reset zeroes every cell and restores the default range, as when the grid is edited.
func (vm *ValueMap) Reset() {
	vm.visit(func(x, y int) {
		vm.values[y][x].AtomicSet(0)
		vm.sums[y][x].AtomicSet(0)
		vm.visits[y][x].Store(0)
	})
	vm.min.AtomicSet(DefaultMin)
	vm.max.AtomicSet(DefaultMax)
}

// Snapshot copies the current grid.
func (vm *ValueMap) Snapshot() [][]Cell {
	cells := make([][]Cell, len(vm.values))
	for y := range vm.values {
		cells[y] = make([]Cell, len(vm.values[y]))
	}
	vm.visit(func(x, y int) {
		cell := Cell{
			X:      x,
			Y:      y,
			Value:  vm.values[y][x].AtomicRead(),
			Visits: vm.visits[y][x].Load(),
		}
		if cell.Visits > 0 {
			cell.Mean = vm.sums[y][x].AtomicRead() / float64(cell.Visits)
		}
		cells[y][x] = cell
	})
	return cells
}

// Snapshots publishes a snapshot every period until done is closed.
// Snapshots are dropped while the reader is busy.
func (vm *ValueMap) Snapshots(done <-chan struct{}, period time.Duration) <-chan [][]Cell {
	snapshots := make(chan [][]Cell)
	go func() {
		defer close(snapshots)
		for range channerics.NewTicker(done, period) {
			select {
			case snapshots <- vm.Snapshot():
			case <-done:
				return
			default:
			}
		}
	}()
	return snapshots
}

func (vm *ValueMap) visit(fn func(x, y int)) {
	for y := range vm.values {
		for x := range vm.values[y] {
			fn(x, y)
		}
	}
}

// Format renders a snapshot for the console, one row per line. Unvisited cells print as dashes.
func Format(cells [][]Cell) string {
	sb := strings.Builder{}
	total := 0.0
	for _, row := range cells {
		sb.WriteString(" ")
		for _, cell := range row {
			if cell.Visits == 0 {
				sb.WriteString("   -    ")
				continue
			}
			fmt.Fprintf(&sb, "%7.2f ", cell.Value)
			total += cell.Value
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Total: %.2f\n", total)
	return sb.String()
}
