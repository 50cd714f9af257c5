package reinforcement

import (
	"log"
	"math"

	. "basurahan/grid_world"

	"golang.org/x/exp/rand"
)

// Values beyond this magnitude trigger a rescale of the whole table.
const RescaleThreshold = 1000.0

// tabular holds what the two table-driven agents share: the table, epsilon-greedy
// selection over it, and the common parameters.
type tabular struct {
	table        *Table
	learningRate float64
	gamma        float64
	epsilon      float64
	sink         ValueSink
	valueRange   ValueRange
	rng          *rand.Rand
}

func newTabular(opts Options) tabular {
	tb := tabular{
		table:      NewTable(),
		sink:       opts.Sink,
		valueRange: opts.valueRange(),
		rng:        rand.New(rand.NewSource(opts.Seed)),
	}
	tb.UpdateParams(withDefaults(opts.Params))
	return tb
}

// SelectAction is epsilon-greedy over the state's row; unseen states act on a zero row,
// so the first action wins ties. The row's max value is reported to the sink.
func (tb *tabular) SelectAction(state EnvState) Action {
	key, err := KeyOf(state)
	if err != nil {
		log.Printf("select action: %v, acting randomly", err)
		return randomAction(tb.rng)
	}

	row, seen := tb.table.Lookup(key)
	if seen {
		report(tb.sink, tb.valueRange, state.WallE, row[ArgMax(row[:])])
	}
	if tb.rng.Float64() < tb.epsilon {
		return randomAction(tb.rng)
	}
	return Action(ArgMax(row[:]))
}

func (tb *tabular) UpdateParams(params Params) {
	applyParams(params, []param{
		{LearningRate, &tb.learningRate, stepSize},
		{Gamma, &tb.gamma, unitInterval},
		{Epsilon, &tb.epsilon, unitInterval},
	})
}

// Table exposes the learned values to exporters. Callers must not mutate it during training.
func (tb *tabular) Table() *Table {
	return tb.table
}

// QLearning learns one-step action values off-policy:
//
//	Q[s][a] += alpha * (r + gamma * max Q[s'] - Q[s][a])
//
// It bootstraps on every transition, terminal or not.
type QLearning struct {
	tabular
	// Running extremes of the values written, seeded with the value range.
	minQ, maxQ float64
}

func NewQLearning(opts Options) *QLearning {
	q := &QLearning{tabular: newTabular(opts)}
	q.resetRange()
	return q
}

func (q *QLearning) Update(t Transition) error {
	if err := validateTransition(t); err != nil {
		log.Printf("q-learning update: %v", err)
		return err
	}
	key, _ := KeyOf(t.State)
	nextKey, err := KeyOf(t.NextState)
	if err != nil {
		log.Printf("q-learning update: next state: %v", err)
		return wrapTransition(err)
	}

	row := q.table.Row(key)
	next := q.table.Row(nextKey)
	target := t.Reward + q.gamma*next[ArgMax(next[:])]
	row[t.Action] += q.learningRate * (target - row[t.Action])

	q.track(row[t.Action])
	return nil
}

// track folds v into the running extremes, rescaling the whole table into the value
// range once either extreme grows past the threshold.
func (q *QLearning) track(v float64) {
	q.minQ = math.Min(q.minQ, v)
	q.maxQ = math.Max(q.maxQ, v)
	if math.Abs(q.minQ) > RescaleThreshold || math.Abs(q.maxQ) > RescaleThreshold {
		log.Printf("q-learning: rescaling table from [%.2f, %.2f]", q.minQ, q.maxQ)
		q.table.Rescale(q.minQ, q.maxQ, q.valueRange.Min, q.valueRange.Max)
		q.resetRange()
	}
}

func (q *QLearning) resetRange() {
	q.minQ, q.maxQ = q.valueRange.Min, q.valueRange.Max
}

// EpisodeEnd is a no-op; Q-learning learns per transition.
func (q *QLearning) EpisodeEnd() error {
	return nil
}

func (q *QLearning) Reset() {
	q.table.Clear()
	q.resetRange()
}
