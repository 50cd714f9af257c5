package reinforcement

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"basurahan/grid_world"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig encodes algorithmic and training parameters outside of code.
// Viper lowercases every key it reads, so the def section is decoded by yaml.v3 using
// its default lowercased field names rather than yaml tags.
type TrainingConfig struct {
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter `mapstructure:"hyperParams"`
	// Algorithm is an alg selector: algorithm.name is one of the Alg* names.
	Algorithm map[string]string `mapstructure:"algorithm"`
	// TrainingDeadline is a duration describing when to terminate training.
	TrainingDeadline map[string]string `mapstructure:"trainingDeadline"`
	// Environment configures the grid world.
	Environment grid_world.EnvConfig `mapstructure:"environment"`
	// Episodes caps the number of training episodes; zero trains until the deadline.
	Episodes int `mapstructure:"episodes"`
	// Seed feeds every random source.
	Seed uint64 `mapstructure:"seed"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

const (
	AlgQLearning   = "q_learning"
	AlgMonteCarlo  = "monte_carlo"
	AlgActorCritic = "actor_critic"
)

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// Params returns every recognized hyper-parameter, configured or default, in the
// form agents accept. Unrecognized keys are logged and left out.
func (cfg *TrainingConfig) Params() Params {
	params := Params{}
	for name, defaultVal := range DefaultParams {
		params[name] = cfg.GetHyperParamOrDefault(name, defaultVal)
	}
	for _, kvp := range cfg.HyperParams {
		if _, ok := DefaultParams[kvp.Key]; !ok {
			log.Printf("config: ignoring unknown hyper-parameter %q", kvp.Key)
		}
	}
	return params
}

// AlgorithmName returns the selected algorithm, defaulting to Q-learning.
func (cfg *TrainingConfig) AlgorithmName() string {
	if name, ok := cfg.Algorithm["name"]; ok && name != "" {
		return name
	}
	return AlgQLearning
}

// EnvConfig returns the environment config, seeded from the training seed unless it has its own.
func (cfg *TrainingConfig) EnvConfig() grid_world.EnvConfig {
	env := cfg.Environment
	if env.Seed == 0 {
		env.Seed = cfg.Seed
	}
	return env
}

// NewAgent builds the configured algorithm for a gridSize x gridSize world.
func (cfg *TrainingConfig) NewAgent(sink ValueSink, gridSize int) (Agent, error) {
	opts := Options{
		Params:   cfg.Params(),
		Sink:     sink,
		Seed:     cfg.Seed,
		GridSize: gridSize,
	}
	switch name := cfg.AlgorithmName(); name {
	case AlgQLearning:
		return NewQLearning(opts), nil
	case AlgMonteCarlo:
		return NewMonteCarlo(opts), nil
	case AlgActorCritic:
		return NewActorCritic(opts)
	default:
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "algorithm %q", name)
	}
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, errors.Wrap(err, "training deadline")
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a training config wrapped in the kind/def envelope.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}

	var def []byte
	if def, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, errors.WithMessage(err, "re-encoding def")
	}

	innerConfig := &TrainingConfig{}
	if err = yaml.Unmarshal(def, innerConfig); err != nil {
		return nil, errors.WithMessage(err, "decoding def")
	}

	return innerConfig, nil
}
