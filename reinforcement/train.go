package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"log"

	. "basurahan/grid_world"

	"gonum.org/v1/gonum/stat"
)

// Number of recent episodes averaged in EpisodeResult.AverageReward.
const RewardWindow = 10

// EpisodeResult describes one finished (or abandoned) episode.
type EpisodeResult struct {
	Episode        int
	TotalReward    float64
	Steps          int
	TrashCollected int
	Success        bool
	// Aborted is set when a step failed and the episode was dropped.
	Aborted bool
	// AverageReward is the mean total reward of the last RewardWindow episodes.
	AverageReward float64
}

// Summary describes a training run.
type Summary struct {
	Episodes   int
	Successes  int
	Aborted    int
	BestReward float64
}

func (s Summary) SuccessRate() float64 {
	if s.Episodes == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Episodes)
}

// ProgressFunc is a callback by which the training method can lend progress details,
// while exercising some level of control over its cancellation to prevent blocking.
// ProgressFunc is synchronous/blocking and should be defined to complete quickly.
type ProgressFunc func(context.Context, EpisodeResult)

// Train runs episodes until maxEpisodes have completed (zero for no limit) or ctx is done.
// A layout error from the environment ends training; a failed step only ends its episode.
func Train(
	ctx context.Context,
	env *Environment,
	agent Agent,
	maxEpisodes int,
	progressFn ProgressFunc,
) (Summary, error) {
	summary := Summary{}
	window := make([]float64, 0, RewardWindow)

	for ep := 1; maxEpisodes <= 0 || ep <= maxEpisodes; ep++ {
		if ctx.Err() != nil {
			return summary, nil
		}

		result, err := RunEpisode(ctx, env, agent)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, nil
			}
			return summary, err
		}

		if len(window) == RewardWindow {
			window = window[1:]
		}
		window = append(window, result.TotalReward)
		result.Episode = ep
		result.AverageReward = stat.Mean(window, nil)

		if summary.Episodes == 0 || result.TotalReward > summary.BestReward {
			summary.BestReward = result.TotalReward
		}
		summary.Episodes++
		if result.Success {
			summary.Successes++
		}
		if result.Aborted {
			summary.Aborted++
		}

		if progressFn != nil {
			progressFn(ctx, result)
		}
	}
	return summary, nil
}

// RunEpisode resets the environment and plays one episode with the agent. The returned
// error is either a layout error from Reset or the context's error; step failures abandon
// the episode and are reported through EpisodeResult.Aborted.
func RunEpisode(ctx context.Context, env *Environment, agent Agent) (EpisodeResult, error) {
	result := EpisodeResult{}
	state, err := env.Reset()
	if err != nil {
		return result, fmt.Errorf("reset: %w", err)
	}
	completions := env.SuccessfulCompletions()

	for done := false; !done; {
		if err = ctx.Err(); err != nil {
			abort(agent)
			return result, err
		}

		action := agent.SelectAction(state)
		next, reward, stepDone, err := env.Step(action)
		if err != nil {
			log.Printf("episode abandoned at step %d: %v", result.Steps, err)
			abort(agent)
			result.Aborted = true
			return result, nil
		}

		// Rejected transitions are logged by the agent and otherwise skipped.
		if err = agent.Update(Transition{
			State:     state,
			Action:    action,
			Reward:    reward,
			NextState: next,
			Done:      stepDone,
		}); err != nil && !errors.Is(err, ErrInvalidTransition) {
			log.Printf("update: %v", err)
		}

		result.TotalReward += reward
		result.Steps++
		state, done = next, stepDone
	}

	if err = agent.EpisodeEnd(); err != nil {
		log.Printf("episode end: %v", err)
	}
	result.TrashCollected = state.TotalTrash - state.TrashCount
	result.Success = env.SuccessfulCompletions() > completions
	return result, nil
}

func abort(agent Agent) {
	if aborter, ok := agent.(EpisodeAborter); ok {
		aborter.AbortEpisode()
	}
}
