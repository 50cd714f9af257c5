package reinforcement

import (
	"math"
	"sort"

	. "basurahan/grid_world"

	"gonum.org/v1/gonum/floats"
)

// Row holds one value per action.
type Row [NumActions]float64

// Table maps state keys to action values. Rows are created zeroed on first reference.
type Table struct {
	rows map[StateKey]*Row
}

func NewTable() *Table {
	return &Table{rows: map[StateKey]*Row{}}
}

// Row returns the mutable row for key, creating it if needed.
func (t *Table) Row(key StateKey) *Row {
	row, ok := t.rows[key]
	if !ok {
		row = &Row{}
		t.rows[key] = row
	}
	return row
}

// Lookup returns a copy of the row for key without creating it. A missing row is all zeros.
func (t *Table) Lookup(key StateKey) (row Row, ok bool) {
	if r, found := t.rows[key]; found {
		return *r, true
	}
	return Row{}, false
}

// Len is the number of states in the table.
func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Clear() {
	t.rows = map[StateKey]*Row{}
}

// Entry is a single (state, action, value) triple.
type Entry struct {
	Key    StateKey
	Action Action
	Value  float64
}

// Entries lists every value in key order, then action order.
func (t *Table) Entries() []Entry {
	keys := t.Keys()
	entries := make([]Entry, 0, len(keys)*NumActions)
	for _, key := range keys {
		for a, v := range t.rows[key] {
			entries = append(entries, Entry{Key: key, Action: Action(a), Value: v})
		}
	}
	return entries
}

// Keys returns the table's states in a stable order.
func (t *Table) Keys() []StateKey {
	keys := make([]StateKey, 0, len(t.rows))
	for key := range t.rows {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch {
		case a.WallEY != b.WallEY:
			return a.WallEY < b.WallEY
		case a.WallEX != b.WallEX:
			return a.WallEX < b.WallEX
		case a.EvilY != b.EvilY:
			return a.EvilY < b.EvilY
		case a.EvilX != b.EvilX:
			return a.EvilX < b.EvilX
		}
		return a.Trash < b.Trash
	})
	return keys
}

// Greedy returns the arg-max action for every state.
func (t *Table) Greedy() map[StateKey]Action {
	policy := make(map[StateKey]Action, len(t.rows))
	for key, row := range t.rows {
		policy[key] = Action(ArgMax(row[:]))
	}
	return policy
}

// Visit calls fn with every mutable row.
func (t *Table) Visit(fn func(key StateKey, row *Row)) {
	for key, row := range t.rows {
		fn(key, row)
	}
}

// Rescale maps every value affinely from [lo, hi] onto [targetLo, targetHi].
// The map is increasing, so each row keeps its order.
func (t *Table) Rescale(lo, hi, targetLo, targetHi float64) {
	span := hi - lo
	if span <= 0 || math.IsInf(span, 0) || math.IsNaN(span) {
		return
	}
	scale := (targetHi - targetLo) / span
	t.Visit(func(_ StateKey, row *Row) {
		for a := range row {
			row[a] = (row[a]-lo)*scale + targetLo
		}
	})
}

// Stats summarizes a table for reporting.
type Stats struct {
	States   int
	Entries  int
	NonZero  int
	Coverage float64
	Min      float64
	Max      float64
	Mean     float64
}

// NonZeroTolerance is the magnitude below which an entry counts as unlearned.
const NonZeroTolerance = 0.001

func (t *Table) Stats() Stats {
	stats := Stats{States: len(t.rows), Entries: len(t.rows) * NumActions}
	if stats.Entries == 0 {
		return stats
	}

	values := make([]float64, 0, stats.Entries)
	t.Visit(func(_ StateKey, row *Row) {
		values = append(values, row[:]...)
	})
	for _, v := range values {
		if math.Abs(v) > NonZeroTolerance {
			stats.NonZero++
		}
	}
	stats.Coverage = float64(stats.NonZero) / float64(stats.Entries)
	stats.Min = floats.Min(values)
	stats.Max = floats.Max(values)
	stats.Mean = floats.Sum(values) / float64(len(values))
	return stats
}
