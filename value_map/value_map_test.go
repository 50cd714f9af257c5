package value_map

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestUpdateStateValue(t *testing.T) {
	Convey("When state values are reported", t, func() {
		vm := NewValueMap(3)

		vm.UpdateStateValue(1, 2, 10)
		So(vm.Value(1, 2), ShouldAlmostEqual, 1.0)
		vm.UpdateStateValue(1, 2, 10)
		So(vm.Value(1, 2), ShouldAlmostEqual, 1.9)

		cells := vm.Snapshot()
		So(cells[2][1].Visits, ShouldEqual, 2)
		So(cells[2][1].Mean, ShouldAlmostEqual, 10)
		So(cells[0][0].Mean, ShouldEqual, 0)
		So(cells[0][0].Visits, ShouldEqual, 0)
		So(cells[2][1].X, ShouldEqual, 1)
		So(cells[2][1].Y, ShouldEqual, 2)

		Convey("Out of range and non-finite reports are dropped", func() {
			vm.UpdateStateValue(3, 0, 5)
			vm.UpdateStateValue(0, -1, 5)
			vm.UpdateStateValue(0, 0, math.NaN())
			vm.UpdateStateValue(0, 0, math.Inf(1))
			So(vm.Snapshot()[0][0].Visits, ShouldEqual, 0)
			So(vm.Value(0, 0), ShouldEqual, 0)
		})

		Convey("Reset clears values and visits", func() {
			vm.Reset()
			So(vm.Value(1, 2), ShouldEqual, 0)
			So(vm.Snapshot()[2][1].Visits, ShouldEqual, 0)
			lo, hi := vm.Range()
			So(lo, ShouldEqual, DefaultMin)
			So(hi, ShouldEqual, DefaultMax)
		})
	})

	Convey("When a value drives the range past the threshold", t, func() {
		vm := NewValueMap(2)
		vm.UpdateStateValue(0, 0, 100)
		vm.UpdateStateValue(1, 1, 200000)

		lo, hi := vm.Range()
		So(math.Abs(lo), ShouldBeLessThanOrEqualTo, 1.0)
		So(math.Abs(hi), ShouldBeLessThanOrEqualTo, 1.0)
		So(vm.Value(1, 1), ShouldAlmostEqual, 1.0)
		So(vm.Value(0, 0), ShouldBeLessThan, vm.Value(1, 1))
		cells := vm.Snapshot()
		So(cells[0][0].Mean, ShouldBeLessThan, cells[1][1].Mean)
		So(math.Abs(cells[1][1].Mean), ShouldBeLessThanOrEqualTo, 200000)
	})

	Convey("When several goroutines report the same cell", t, func() {
		vm := NewValueMap(1)
		wg := sync.WaitGroup{}
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 250; i++ {
					vm.UpdateStateValue(0, 0, 2)
				}
			}()
		}
		wg.Wait()
		cell := vm.Snapshot()[0][0]
		So(cell.Visits, ShouldEqual, 1000)
		So(cell.Mean, ShouldAlmostEqual, 2)
	})
}

func TestSnapshots(t *testing.T) {
	Convey("When snapshots are published", t, func() {
		vm := NewValueMap(2)
		vm.UpdateStateValue(0, 1, 10)
		done := make(chan struct{})

		snapshots := vm.Snapshots(done, time.Millisecond)
		cells := <-snapshots
		So(cells[1][0].Value, ShouldAlmostEqual, 1.0)

		close(done)
		for range snapshots {
		}

		Convey("A snapshot formats as a grid", func() {
			out := Format(cells)
			So(strings.Count(out, "\n"), ShouldEqual, 3)
			So(out, ShouldContainSubstring, "1.00")
			So(out, ShouldContainSubstring, "-")
		})
	})
}
