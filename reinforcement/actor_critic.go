package reinforcement

import (
	"fmt"
	"log"

	. "basurahan/grid_world"
	"basurahan/neural"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/exp/rand"
)

const (
	// The error G - V is clipped to ±AdvantageClip before it reaches either network.
	AdvantageClip = 50.0
	hidden1       = 64
	hidden2       = 32
)

// ActorCritic keeps a policy network (actor) producing action logits and a value network
// (critic) producing a state value. Both learn at episode end from Monte Carlo returns:
// the critic toward G_t, and the actor by raising the taken action's logit in proportion
// to the clipped advantage G_t - V(s_t) while nudging the others the opposite way.
type ActorCritic struct {
	gridSize int
	actor    *neural.Network
	critic   *neural.Network

	actorLearningRate  float64
	criticLearningRate float64
	gamma              float64
	temperature        float64
	epsilon            float64
	nudge              float64

	sink       ValueSink
	valueRange ValueRange
	src        rand.Source
	rng        *rand.Rand

	// episode buffers
	inputs  [][]float64
	actions []Action
	rewards []float64
}

func NewActorCritic(opts Options) (*ActorCritic, error) {
	if opts.GridSize < 1 {
		return nil, fmt.Errorf("actor-critic: grid size %d", opts.GridSize)
	}
	src := rand.NewSource(opts.Seed)
	ac := &ActorCritic{
		gridSize:   opts.GridSize,
		sink:       opts.Sink,
		valueRange: opts.valueRange(),
		src:        src,
		rng:        rand.New(src),
	}
	ac.UpdateParams(withDefaults(opts.Params))
	if err := ac.buildNetworks(); err != nil {
		return nil, err
	}
	return ac, nil
}

func (ac *ActorCritic) buildNetworks() (err error) {
	in := EncodedLen(ac.gridSize)
	if ac.actor, err = neural.New([]int{in, hidden1, hidden2, NumActions}, ac.src); err != nil {
		return
	}
	ac.critic, err = neural.New([]int{in, hidden1, hidden2, 1}, ac.src)
	return
}

// SelectAction samples from the temperature softmax over the actor's logits, with
// epsilon-greedy exploration on top. Non-finite logits or a degenerate distribution
// fall back to a random action.
func (ac *ActorCritic) SelectAction(state EnvState) Action {
	input := EncodeState(state, ac.gridSize)
	logits, err := ac.actor.Forward(input)
	if err != nil || !isFinite(logits) {
		log.Printf("actor-critic select: bad logits %v (%v), acting randomly", logits, err)
		return randomAction(ac.rng)
	}

	if state.Validate() == nil {
		if value, err := ac.critic.Forward(input); err != nil || !isFinite(value) {
			log.Printf("actor-critic select: critic value %v (%v), not reported", value, err)
		} else {
			report(ac.sink, ac.valueRange, state.WallE, value[0])
		}
	}

	probs, err := Softmax(logits, ac.temperature)
	if err != nil {
		log.Printf("actor-critic select: %v, acting randomly", err)
		return randomAction(ac.rng)
	}
	if ac.rng.Float64() < ac.epsilon {
		return randomAction(ac.rng)
	}
	return Action(Roulette(probs, ac.rng.Float64()))
}

// Update buffers the transition, and ends the episode when it is terminal.
func (ac *ActorCritic) Update(t Transition) error {
	if err := validateTransition(t); err != nil {
		log.Printf("actor-critic update: %v", err)
		return err
	}
	ac.inputs = append(ac.inputs, EncodeState(t.State, ac.gridSize))
	ac.actions = append(ac.actions, t.Action)
	ac.rewards = append(ac.rewards, t.Reward)
	if t.Done {
		return ac.EpisodeEnd()
	}
	return nil
}

// EpisodeEnd trains both networks on the buffered episode and clears the buffers.
// Values are computed for every step before either network changes.
func (ac *ActorCritic) EpisodeEnd() error {
	defer ac.AbortEpisode()
	if len(ac.rewards) == 0 {
		return nil
	}

	values := make([]float64, len(ac.inputs))
	for t, input := range ac.inputs {
		out, err := ac.critic.Forward(input)
		if err != nil || !isFinite(out) {
			log.Printf("actor-critic episode end: critic value %v (%v) at step %d, using 0", out, err, t)
			continue
		}
		values[t] = out[0]
	}
	returns := Returns(ac.rewards, ac.gamma)

	var errs error
	for t, input := range ac.inputs {
		// Both networks see the clipped error.
		advantage := Clamp(returns[t]-values[t], -AdvantageClip, AdvantageClip)
		if err := ac.critic.Backward(input, []float64{advantage}, ac.criticLearningRate); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("critic step %d: %w", t, err))
		}
		if err := ac.actor.Backward(input, ac.policyGradient(ac.actions[t], advantage), ac.actorLearningRate); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("actor step %d: %w", t, err))
		}
	}
	return errs
}

// policyGradient is the advantage at the taken action and a small opposite nudge elsewhere.
func (ac *ActorCritic) policyGradient(taken Action, advantage float64) []float64 {
	grad := make([]float64, NumActions)
	for a := range grad {
		if Action(a) == taken {
			grad[a] = advantage
		} else {
			grad[a] = -ac.nudge * advantage
		}
	}
	return grad
}

// AbortEpisode drops the buffered episode without learning from it.
func (ac *ActorCritic) AbortEpisode() {
	ac.inputs = ac.inputs[:0]
	ac.actions = ac.actions[:0]
	ac.rewards = ac.rewards[:0]
}

// Reset rebuilds both networks with fresh weights and clears the buffers.
func (ac *ActorCritic) Reset() {
	if err := ac.buildNetworks(); err != nil {
		log.Printf("actor-critic reset: %v", err)
	}
	ac.inputs, ac.actions, ac.rewards = nil, nil, nil
}

func (ac *ActorCritic) UpdateParams(params Params) {
	applyParams(params, []param{
		{ActorLearningRate, &ac.actorLearningRate, stepSize},
		{CriticLearningRate, &ac.criticLearningRate, stepSize},
		{Gamma, &ac.gamma, unitInterval},
		{Temperature, &ac.temperature, positive},
		{Epsilon, &ac.epsilon, unitInterval},
		{Nudge, &ac.nudge, unitInterval},
	})
}

// Policy returns the softmax action probabilities for a state.
func (ac *ActorCritic) Policy(state EnvState) ([]float64, error) {
	logits, err := ac.actor.Forward(EncodeState(state, ac.gridSize))
	if err != nil {
		return nil, err
	}
	return Softmax(logits, ac.temperature)
}

// Value returns the critic's estimate for a state.
func (ac *ActorCritic) Value(state EnvState) (float64, error) {
	out, err := ac.critic.Forward(EncodeState(state, ac.gridSize))
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func (ac *ActorCritic) Actor() *neural.Network {
	return ac.actor
}

func (ac *ActorCritic) Critic() *neural.Network {
	return ac.critic
}

// Pending is the number of buffered transitions.
func (ac *ActorCritic) Pending() int {
	return len(ac.rewards)
}
