package reinforcement

import (
	"log"

	. "basurahan/grid_world"

	"gonum.org/v1/gonum/floats"
)

// MonteCarlo estimates action returns with every-visit Monte Carlo control. Transitions
// are buffered, and the table only changes at EpisodeEnd:
//
//	Q[s_t][a_t] += alpha * (G_t - Q[s_t][a_t])
//
// applied for every step in temporal order, so repeated visits each count.
type MonteCarlo struct {
	tabular
	episode []visit
	last    ReturnStats
}

type visit struct {
	key    StateKey
	action Action
	reward float64
}

// ReturnStats summarizes the returns of the most recent completed episode.
type ReturnStats struct {
	Steps int
	Min   float64
	Max   float64
	Mean  float64
}

func NewMonteCarlo(opts Options) *MonteCarlo {
	return &MonteCarlo{tabular: newTabular(opts)}
}

// Update buffers the transition.
func (mc *MonteCarlo) Update(t Transition) error {
	if err := validateTransition(t); err != nil {
		log.Printf("monte carlo update: %v", err)
		return err
	}
	key, _ := KeyOf(t.State)
	mc.episode = append(mc.episode, visit{key: key, action: t.Action, reward: t.Reward})
	return nil
}

// EpisodeEnd folds the buffered episode's returns into the table and clears the buffer.
// An empty episode is a no-op.
func (mc *MonteCarlo) EpisodeEnd() error {
	defer mc.AbortEpisode()
	if len(mc.episode) == 0 {
		return nil
	}

	rewards := make([]float64, len(mc.episode))
	for i, v := range mc.episode {
		rewards[i] = v.reward
	}
	returns := Returns(rewards, mc.gamma)

	for i, v := range mc.episode {
		row := mc.table.Row(v.key)
		row[v.action] += mc.learningRate * (returns[i] - row[v.action])
	}

	mc.last = ReturnStats{
		Steps: len(returns),
		Min:   floats.Min(returns),
		Max:   floats.Max(returns),
		Mean:  floats.Sum(returns) / float64(len(returns)),
	}
	return nil
}

// AbortEpisode drops the buffered episode without learning from it.
func (mc *MonteCarlo) AbortEpisode() {
	mc.episode = mc.episode[:0]
}

func (mc *MonteCarlo) Reset() {
	mc.table.Clear()
	mc.episode = nil
	mc.last = ReturnStats{}
}

// LastReturns describes the most recent completed episode.
func (mc *MonteCarlo) LastReturns() ReturnStats {
	return mc.last
}

// Pending is the number of buffered transitions.
func (mc *MonteCarlo) Pending() int {
	return len(mc.episode)
}

// Policy returns the greedy action for every state seen.
func (mc *MonteCarlo) Policy() map[StateKey]Action {
	return mc.table.Greedy()
}
