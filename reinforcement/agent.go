package reinforcement

/*
Three interchangeable learners for the trash-collecting grid world:
  - QLearning: one-step off-policy tabular updates, bootstrapping from the next state.
  - MonteCarlo: every-visit tabular return estimates, updated only at episode end.
  - ActorCritic: a softmax policy network and a value network, both trained toward
    Monte Carlo returns at episode end.

All agents are driven the same way: SelectAction per step, Update per transition, and
EpisodeEnd once the environment reports done. None of them are safe for concurrent use;
the only state shared with other goroutines is the ValueSink.
*/

import (
	"errors"
	"fmt"
	"log"
	"math"

	. "basurahan/grid_world"

	"golang.org/x/exp/rand"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownAlgorithm  = errors.New("unknown algorithm")
)

// Agent is the capability set every learner implements.
type Agent interface {
	SelectAction(state EnvState) Action
	Update(t Transition) error
	EpisodeEnd() error
	// Reset discards everything learned.
	Reset()
	UpdateParams(params Params)
}

// EpisodeAborter is implemented by agents that buffer an episode, so a failed
// episode can be dropped without learning from it.
type EpisodeAborter interface {
	AbortEpisode()
}

// ValueSink receives a per-position value estimate each time an agent selects an action.
// Implementations must tolerate concurrent readers of their own.
type ValueSink interface {
	UpdateStateValue(x, y int, value float64)
}

// ValueRange bounds the values reported to a ValueSink.
type ValueRange struct {
	Min, Max float64
}

var DefaultValueRange = ValueRange{Min: -20, Max: 50}

// Params are named hyper-parameters. Agents ignore names they do not recognize.
type Params map[string]float64

const (
	LearningRate       = "learningRate"
	Gamma              = "gamma"
	Epsilon            = "epsilon"
	ActorLearningRate  = "actorLearningRate"
	CriticLearningRate = "criticLearningRate"
	Temperature        = "temperature"
	// Nudge scales the negative update applied to the actions that were not taken.
	Nudge = "nudge"
)

// Defaults for every recognized parameter.
var DefaultParams = Params{
	LearningRate:       0.1,
	Gamma:              0.99,
	Epsilon:            0.1,
	ActorLearningRate:  0.001,
	CriticLearningRate: 0.01,
	Temperature:        1.0,
	Nudge:              0.05,
}

// Options configure a new agent. Zero values select defaults.
type Options struct {
	Params Params
	Sink   ValueSink
	Range  ValueRange
	Seed   uint64
	// GridSize fixes the width of the actor-critic's encoded input.
	GridSize int
}

func (opts Options) valueRange() ValueRange {
	if opts.Range == (ValueRange{}) {
		return DefaultValueRange
	}
	return opts.Range
}

// param checks a named parameter against its admissible range.
type param struct {
	name  string
	dst   *float64
	valid func(float64) bool
}

func unitInterval(v float64) bool { return v >= 0 && v <= 1 }
func positive(v float64) bool     { return v > 0 && !math.IsInf(v, 1) }
func stepSize(v float64) bool     { return v > 0 && v <= 1 }

// applyParams copies recognized, valid values from params into the targets.
// Invalid values are logged and ignored.
func applyParams(params Params, targets []param) {
	for _, p := range targets {
		v, ok := params[p.name]
		if !ok {
			continue
		}
		if math.IsNaN(v) || !p.valid(v) {
			log.Printf("update params: ignoring %s=%v", p.name, v)
			continue
		}
		*p.dst = v
	}
}

// withDefaults overlays params onto DefaultParams.
func withDefaults(params Params) Params {
	merged := Params{}
	for k, v := range DefaultParams {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// report clamps value into the range and hands it to the sink, if there is one.
func report(sink ValueSink, vr ValueRange, pos Position, value float64) {
	if sink == nil || math.IsNaN(value) {
		return
	}
	sink.UpdateStateValue(pos.X, pos.Y, Clamp(value, vr.Min, vr.Max))
}

func randomAction(rng *rand.Rand) Action {
	return Action(rng.Intn(NumActions))
}

// validateTransition checks the fields every agent relies on.
func validateTransition(t Transition) error {
	if !t.Action.Valid() {
		return fmt.Errorf("%w: action %d", ErrInvalidTransition, int(t.Action))
	}
	if math.IsNaN(t.Reward) || math.IsInf(t.Reward, 0) {
		return fmt.Errorf("%w: reward %v", ErrInvalidTransition, t.Reward)
	}
	if err := t.State.Validate(); err != nil {
		return wrapTransition(err)
	}
	return nil
}

func wrapTransition(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
}
