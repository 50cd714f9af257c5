package reinforcement

import (
	"errors"
	"fmt"
	"math"

	. "basurahan/grid_world"

	"gonum.org/v1/gonum/floats"
)

var ErrDegenerateDistribution = errors.New("degenerate distribution")

// StateKey identifies a tabular state: both positions and the remaining trash.
// The grid itself is not part of the key, since it is determined by the trash
// collected so far for a fixed layout.
type StateKey struct {
	WallEX, WallEY int
	EvilX, EvilY   int
	Trash          int
}

// KeyOf returns the table key for a state, or an error if the state is malformed.
func KeyOf(state EnvState) (StateKey, error) {
	if err := state.Validate(); err != nil {
		return StateKey{}, err
	}
	return StateKey{
		WallEX: state.WallE.X,
		WallEY: state.WallE.Y,
		EvilX:  state.EvilRobot.X,
		EvilY:  state.EvilRobot.Y,
		Trash:  state.TrashCount,
	}, nil
}

func (k StateKey) String() string {
	return fmt.Sprintf("%d,%d,%d,%d,%d", k.WallEX, k.WallEY, k.EvilX, k.EvilY, k.Trash)
}

// EncodedLen is the length of an encoded state for a gridSize x gridSize grid.
func EncodedLen(gridSize int) int {
	return 2*gridSize*gridSize + 1
}

// EncodeState returns a one-hot of the agent's cell, a one-hot of the adversary's cell,
// and the fraction of trash remaining. A malformed state, or one from a grid of another
// size, encodes as all zeros.
func EncodeState(state EnvState, gridSize int) []float64 {
	enc := make([]float64, EncodedLen(gridSize))
	if gridSize < 1 || state.GridSize != gridSize || state.Validate() != nil {
		return enc
	}

	cells := gridSize * gridSize
	enc[state.WallE.Y*gridSize+state.WallE.X] = 1
	enc[cells+state.EvilRobot.Y*gridSize+state.EvilRobot.X] = 1
	if state.TotalTrash > 0 {
		enc[2*cells] = float64(state.TrashCount) / float64(state.TotalTrash)
	}
	return enc
}

// Returns computes the discounted return at every step by scanning the rewards backward:
// G_t = r_t + gamma*G_{t+1}, with G after the last step equal to zero.
func Returns(rewards []float64, gamma float64) []float64 {
	returns := make([]float64, len(rewards))
	g := 0.0
	for _, t := range Rev(len(rewards)) {
		g = rewards[t] + gamma*g
		returns[t] = g
	}
	return returns
}

// Softmax converts logits to probabilities at the given temperature, subtracting the max
// logit first for stability. Non-finite input or a degenerate normalizer is an error.
func Softmax(logits []float64, temperature float64) ([]float64, error) {
	if len(logits) == 0 {
		return nil, fmt.Errorf("%w: no logits", ErrDegenerateDistribution)
	}
	if !(temperature > 0) || math.IsInf(temperature, 1) {
		return nil, fmt.Errorf("%w: temperature %v", ErrDegenerateDistribution, temperature)
	}
	if !isFinite(logits) {
		return nil, fmt.Errorf("%w: logits %v", ErrDegenerateDistribution, logits)
	}

	max := floats.Max(logits)
	probs := make([]float64, len(logits))
	for i, logit := range logits {
		probs[i] = math.Exp((logit - max) / temperature)
	}
	sum := floats.Sum(probs)
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: normalizer %v", ErrDegenerateDistribution, sum)
	}
	floats.Scale(1/sum, probs)
	return probs, nil
}

// Roulette picks the index whose cumulative probability first exceeds u, for u in [0,1).
// If rounding leaves a residual, the last index is picked.
func Roulette(probs []float64, u float64) int {
	cum := 0.0
	for i, p := range probs {
		cum += p
		if u < cum {
			return i
		}
	}
	return len(probs) - 1
}

// ArgMax returns the index of the first maximum.
func ArgMax(row []float64) int {
	return floats.MaxIdx(row)
}

func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func isFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
