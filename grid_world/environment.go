package grid_world

import (
	"errors"
	"fmt"
	"log"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/exp/rand"
)

const (
	DefaultMaxSteps           = 200
	DefaultEvilRobotMoveDelay = 3
)

var (
	ErrNotReady     = errors.New("environment not ready, reset with a valid layout")
	ErrEpisodeOver  = errors.New("episode is over, reset to begin another")
	ErrInvalidSteps = errors.New("max steps must be positive")
)

// EnvConfig holds the environment parameters. Zero values select the defaults.
type EnvConfig struct {
	// Layout rows, see Convert. Empty selects DefaultTrack.
	Layout             []string
	MaxSteps           int
	EvilRobotMoveDelay int
	EvilRobotDisabled  bool
	// Seed drives the random action substituted for invalid actions.
	Seed uint64
}

// Environment simulates the trash-collecting agent and the patrolling adversary.
// An Environment is not safe for concurrent use; one driving loop owns it.
type Environment struct {
	defaultLayout *Layout
	custom        *Layout

	grid       [][]Cell
	wallE      Position
	evilRobot  Position
	evilDir    Action
	evilCount  int
	trashCount int
	totalTrash int
	steps      int

	maxSteps     int
	evilDelay    int
	evilDisabled bool

	ready       bool
	over        bool
	completions int
	rng         *rand.Rand
}

// NewEnvironment builds an environment from the config. It is not ready until Reset succeeds.
func NewEnvironment(cfg EnvConfig) (*Environment, error) {
	rows := cfg.Layout
	if len(rows) == 0 {
		rows = DefaultTrack
	}
	layout, err := Convert(rows)
	if err != nil {
		return nil, err
	}

	env := &Environment{
		defaultLayout: layout,
		maxSteps:      DefaultMaxSteps,
		evilDelay:     DefaultEvilRobotMoveDelay,
		evilDisabled:  cfg.EvilRobotDisabled,
		rng:           rand.New(rand.NewSource(cfg.Seed)),
	}
	if cfg.MaxSteps != 0 {
		if err = env.SetMaxSteps(cfg.MaxSteps); err != nil {
			return nil, err
		}
	}
	if cfg.EvilRobotMoveDelay > 0 {
		env.evilDelay = cfg.EvilRobotMoveDelay
	}
	return env, nil
}

// Validate reports every problem that prevents the layout from starting an episode.
func (l *Layout) Validate() error {
	var errs error
	size := l.Size()
	for y := range l.Grid {
		if len(l.Grid[y]) != size {
			errs = multierror.Append(errs, fmt.Errorf("row %d has width %d, expected %d", y, len(l.Grid[y]), size))
		}
	}
	if errs != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLayout, errs)
	}

	if l.Count(Exit) == 0 {
		errs = multierror.Append(errs, errors.New("no exit"))
	}
	if l.Count(Trash) == 0 {
		errs = multierror.Append(errs, errors.New("no trash"))
	}
	starts := []struct {
		name string
		pos  Position
	}{
		{"agent", l.WallE},
		{"adversary", l.EvilRobot},
	}
	for _, start := range starts {
		if !start.pos.InBounds(size) {
			errs = multierror.Append(errs, fmt.Errorf("%s at %v is outside the grid", start.name, start.pos))
		} else if l.Grid[start.pos.Y][start.pos.X] == Wall {
			errs = multierror.Append(errs, fmt.Errorf("%s at %v is on a wall", start.name, start.pos))
		}
	}
	if l.WallE == l.EvilRobot {
		errs = multierror.Append(errs, fmt.Errorf("agent and adversary share %v", l.WallE))
	}
	if errs != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLayout, errs)
	}
	return nil
}

// Reset restores the custom layout if one was set, else the default layout, and
// begins a new episode. On a configuration error the environment stays not ready
// and editable.
func (env *Environment) Reset() (EnvState, error) {
	layout := env.Layout()
	if err := layout.Validate(); err != nil {
		env.ready = false
		return EnvState{}, err
	}

	env.grid = layout.Grid
	env.wallE = layout.WallE
	env.evilRobot = layout.EvilRobot
	env.evilDir = Up
	env.evilCount = 0
	env.trashCount = layout.Count(Trash)
	env.totalTrash = env.trashCount
	env.steps = 0
	env.ready = true
	env.over = false
	return env.State(), nil
}

// Step advances the episode by one agent action. Invalid actions are replaced by a random
// action. The returned bool is the terminal flag.
func (env *Environment) Step(action Action) (EnvState, float64, bool, error) {
	if !env.ready {
		return EnvState{}, 0, true, ErrNotReady
	}
	if env.over {
		return env.State(), 0, true, ErrEpisodeOver
	}

	env.steps++
	if env.steps >= env.maxSteps {
		env.over = true
		return env.State(), TimeoutReward, true, nil
	}

	if !action.Valid() {
		sub := Action(env.rng.Intn(NumActions))
		log.Printf("step: invalid action %d, substituting %v", int(action), sub)
		action = sub
	}

	prev := env.wallE
	if next := action.Apply(prev); env.isValidMove(next) {
		env.wallE = next
	}

	reward, done, success := env.reward(prev)
	if !done && !env.evilDisabled {
		env.evilCount++
		if env.evilCount >= env.evilDelay {
			env.moveEvilRobot()
			env.evilCount = 0
		}
	}

	if env.wallE == env.evilRobot {
		reward, done, success = CollisionReward, true, false
	}
	if success {
		env.completions++
	}

	if done {
		env.over = true
	}
	return env.State(), reward, done, nil
}

// Computes the reward for the agent's current cell, collecting trash as a side effect.
// success marks an exit with all trash collected; a collision may still override it.
func (env *Environment) reward(prev Position) (reward float64, done, success bool) {
	if prev == env.wallE {
		return BumpReward, false, false
	}

	cell := &env.grid[env.wallE.Y][env.wallE.X]
	switch *cell {
	case Trash:
		*cell = Empty
		env.trashCount--
		return TrashReward, false, false
	case Mine:
		return MineReward, true, false
	case Exit:
		if env.trashCount == 0 {
			return ExitBonus * float64(env.totalTrash), true, true
		}
		return EarlyExitReward, true, false
	}
	return StepReward, false, false
}

// The adversary walks in its facing direction, turning clockwise when blocked.
// After four blocked directions it stays put.
func (env *Environment) moveEvilRobot() {
	for attempts := 0; attempts < NumActions; attempts++ {
		if next := env.evilDir.Apply(env.evilRobot); env.isValidMove(next) {
			env.evilRobot = next
			return
		}
		env.evilDir = (env.evilDir + 1) % NumActions
	}
}

func (env *Environment) isValidMove(pos Position) bool {
	return pos.InBounds(len(env.grid)) && env.grid[pos.Y][pos.X] != Wall
}

// State returns a copy of the current state.
func (env *Environment) State() EnvState {
	return EnvState{
		GridSize:   len(env.grid),
		Grid:       copyGrid(env.grid),
		WallE:      env.wallE,
		EvilRobot:  env.evilRobot,
		TrashCount: env.trashCount,
		TotalTrash: env.totalTrash,
	}
}

// SetMaxSteps sets the step budget; the step that reaches it ends the episode.
func (env *Environment) SetMaxSteps(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidSteps, n)
	}
	env.maxSteps = n
	return nil
}

// SetLayout replaces the layout used by subsequent resets. The layout is copied,
// and is only validated on Reset, so that an incomplete layout may still be edited.
func (env *Environment) SetLayout(layout *Layout) {
	if layout == nil {
		env.ClearLayout()
		return
	}
	env.custom = layout.Clone()
	env.ready = false
}

// ClearLayout reverts to the default layout on the next reset.
func (env *Environment) ClearLayout() {
	env.custom = nil
	env.ready = false
}

// Layout returns a copy of the layout the next reset will use.
func (env *Environment) Layout() *Layout {
	if env.custom != nil {
		return env.custom.Clone()
	}
	return env.defaultLayout.Clone()
}

func (env *Environment) SetEvilRobotEnabled(enabled bool) {
	env.evilDisabled = !enabled
}

func (env *Environment) EvilRobotEnabled() bool {
	return !env.evilDisabled
}

// SuccessfulCompletions counts exits reached with all trash collected, across episodes.
func (env *Environment) SuccessfulCompletions() int {
	return env.completions
}

func (env *Environment) Steps() int {
	return env.steps
}

func (env *Environment) MaxSteps() int {
	return env.maxSteps
}

func (env *Environment) Ready() bool {
	return env.ready
}
