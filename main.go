/*
Basurahan trains a small robot to collect the trash in a square grid world and carry it to
the exit, while avoiding mines and a patrolling adversary. Three learners are available,
selected in config.yaml: tabular Q-learning, every-visit Monte Carlo, and an actor-critic
pair of small feed-forward networks. While training runs, the learner's per-cell value
estimates are smoothed into a value map that is periodically printed to the console.
*/

package main

import (
	"context"
	"flag"
	"log"
	"time"

	"basurahan/grid_world"
	"basurahan/reinforcement"
	"basurahan/value_map"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

var (
	configPath   *string
	dbg          *bool
	reportPeriod *time.Duration
)

func init() {
	configPath = flag.String("config", "./config.yaml", "path to the training config")
	dbg = flag.Bool("debug", false, "debug mode: log every episode")
	reportPeriod = flag.Duration("report", time.Second*2, "how often to print the value map")
	flag.Parse()
}

func runApp() (err error) {
	var cfg *reinforcement.TrainingConfig
	if cfg, err = reinforcement.FromYaml(*configPath); err != nil {
		return
	}

	appCtx, appCancel := context.WithCancel(context.TODO())
	defer appCancel()

	trainingCtx, trainingCancel, err := cfg.WithTrainingDeadline(appCtx)
	if err != nil {
		return
	}
	defer trainingCancel()

	var env *grid_world.Environment
	if env, err = grid_world.NewEnvironment(cfg.EnvConfig()); err != nil {
		return
	}
	size := env.Layout().Size()
	if *dbg {
		var start grid_world.EnvState
		if start, err = env.Reset(); err != nil {
			return
		}
		grid_world.ShowGrid(start)
	}

	values := value_map.NewValueMap(size)
	var agent reinforcement.Agent
	if agent, err = cfg.NewAgent(values, size); err != nil {
		return
	}
	log.Printf("training %s on a %dx%d grid", cfg.AlgorithmName(), size, size)

	var summary reinforcement.Summary
	group, groupCtx := errgroup.WithContext(trainingCtx)
	reportCtx, stopReports := context.WithCancel(groupCtx)
	defer stopReports()

	group.Go(func() (err error) {
		defer stopReports()
		summary, err = reinforcement.Train(groupCtx, env, agent, cfg.Episodes, logProgress)
		return
	})
	group.Go(func() error {
		done := reportCtx.Done()
		for view := range channerics.Convert(done, values.Snapshots(done, *reportPeriod), value_map.Format) {
			log.Printf("value map:\n%s", view)
		}
		return nil
	})

	if err = group.Wait(); err != nil {
		return
	}

	log.Printf("trained %d episodes: %d successes (%.1f%%), %d aborted, best reward %.1f",
		summary.Episodes,
		summary.Successes,
		100*summary.SuccessRate(),
		summary.Aborted,
		summary.BestReward)
	log.Printf("final value map:\n%s", value_map.Format(values.Snapshot()))
	if tabular, ok := agent.(interface{ Table() *reinforcement.Table }); ok {
		stats := tabular.Table().Stats()
		log.Printf("table: %d states, %.1f%% of entries learned, values in [%.2f, %.2f]",
			stats.States, 100*stats.Coverage, stats.Min, stats.Max)
	}
	return
}

// Called after every episode by the training loop.
func logProgress(_ context.Context, result reinforcement.EpisodeResult) {
	if *dbg || result.Episode%100 == 1 {
		log.Printf("episode %d: reward %.1f (avg %.1f) in %d steps, %d trash, success=%t",
			result.Episode,
			result.TotalReward,
			result.AverageReward,
			result.Steps,
			result.TrashCollected,
			result.Success)
	}
}

func main() {
	if err := runApp(); err != nil {
		log.Fatal(err)
	}
}
