package grid_world

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestEnv(rows []string, delay int, evilDisabled bool) (*Environment, EnvState) {
	env, err := NewEnvironment(EnvConfig{
		Layout:             rows,
		EvilRobotMoveDelay: delay,
		EvilRobotDisabled:  evilDisabled,
		Seed:               7,
	})
	So(err, ShouldBeNil)
	state, err := env.Reset()
	So(err, ShouldBeNil)
	return env, state
}

func TestConvert(t *testing.T) {
	Convey("When the default track is converted", t, func() {
		layout, err := Convert(DefaultTrack)
		So(err, ShouldBeNil)
		So(layout.Size(), ShouldEqual, 6)
		So(layout.WallE, ShouldResemble, Position{X: 0, Y: 0})
		So(layout.EvilRobot, ShouldResemble, Position{X: 3, Y: 3})
		So(layout.Grid[1][1], ShouldEqual, Wall)
		So(layout.Grid[0][2], ShouldEqual, Trash)
		So(layout.Grid[2][2], ShouldEqual, Mine)
		So(layout.Grid[5][5], ShouldEqual, Exit)
		So(layout.Count(Trash), ShouldEqual, 3)
		So(layout.Count(Wall), ShouldEqual, 3)
		So(layout.Rows(), ShouldResemble, DefaultTrack)
	})

	Convey("When a track has no start markers", t, func() {
		layout, err := Convert([]string{"T..", "...", "..E"})
		So(err, ShouldBeNil)
		So(layout.WallE, ShouldResemble, Position{X: 0, Y: 0})
		So(layout.EvilRobot, ShouldResemble, Position{X: 1, Y: 1})
	})

	Convey("When a track is malformed", t, func() {
		Convey("Ragged rows are rejected", func() {
			_, err := Convert([]string{"A..", "..", "T.E"})
			So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)
		})
		Convey("Unknown cells are rejected", func() {
			_, err := Convert([]string{"A..", ".x.", "T.E"})
			So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)
		})
		Convey("Duplicate agents are rejected", func() {
			_, err := Convert([]string{"A..", ".A.", "T.E"})
			So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)
		})
		Convey("Empty tracks are rejected", func() {
			_, err := Convert(nil)
			So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)
		})
	})
}

func TestReset(t *testing.T) {
	Convey("When the default environment is reset", t, func() {
		env, state := newTestEnv(nil, 0, false)

		So(state.GridSize, ShouldEqual, 6)
		So(state.WallE, ShouldResemble, Position{X: 0, Y: 0})
		So(state.EvilRobot, ShouldResemble, Position{X: 3, Y: 3})
		So(state.TrashCount, ShouldEqual, 3)
		So(state.TotalTrash, ShouldEqual, 3)
		So(state.Validate(), ShouldBeNil)
		So(env.Ready(), ShouldBeTrue)

		Convey("Mutating the returned grid does not touch the environment", func() {
			state.Grid[0][2] = Empty
			So(env.State().Grid[0][2], ShouldEqual, Trash)
		})

		Convey("Reset after collecting trash restores the layout", func() {
			_, _, _, err := env.Step(Right)
			So(err, ShouldBeNil)
			state, _, _, err = env.Step(Right)
			So(err, ShouldBeNil)
			So(state.TrashCount, ShouldEqual, 2)

			state, err = env.Reset()
			So(err, ShouldBeNil)
			So(state.TrashCount, ShouldEqual, 3)
			So(state.Grid[0][2], ShouldEqual, Trash)
			So(env.Steps(), ShouldEqual, 0)
		})
	})

	Convey("When the layout is missing an exit and trash", t, func() {
		env, err := NewEnvironment(EnvConfig{Layout: []string{"A..", ".R.", "..."}})
		So(err, ShouldBeNil)

		_, err = env.Reset()
		So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "no exit")
		So(err.Error(), ShouldContainSubstring, "no trash")
		So(env.Ready(), ShouldBeFalse)

		_, _, _, err = env.Step(Up)
		So(errors.Is(err, ErrNotReady), ShouldBeTrue)

		Convey("The environment remains editable", func() {
			layout := env.Layout()
			layout.Grid[2][2] = Exit
			layout.Grid[0][2] = Trash
			env.SetLayout(layout)

			state, err := env.Reset()
			So(err, ShouldBeNil)
			So(state.TotalTrash, ShouldEqual, 1)
		})
	})

	Convey("When the agent and adversary start on the same cell", t, func() {
		env, err := NewEnvironment(EnvConfig{Layout: []string{"T..", ".A.", "..E"}})
		So(err, ShouldBeNil)
		_, err = env.Reset()
		So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "share")
	})

	Convey("When a start position is on a wall", t, func() {
		env, err := NewEnvironment(EnvConfig{})
		So(err, ShouldBeNil)
		layout := env.Layout()
		layout.EvilRobot = Position{X: 1, Y: 1}
		env.SetLayout(layout)

		_, err = env.Reset()
		So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "adversary")

		Convey("Clearing the layout restores the default", func() {
			env.ClearLayout()
			_, err = env.Reset()
			So(err, ShouldBeNil)
		})
	})
}

func TestStep(t *testing.T) {
	Convey("When the agent bumps a boundary", t, func() {
		env, _ := newTestEnv([]string{"AT.", "...", "R.E"}, 0, true)
		state, reward, done, err := env.Step(Up)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, BumpReward)
		So(done, ShouldBeFalse)
		So(state.WallE, ShouldResemble, Position{X: 0, Y: 0})
	})

	Convey("When the agent bumps a wall", t, func() {
		env, _ := newTestEnv([]string{"AW.", "T..", "R.E"}, 0, true)
		state, reward, done, err := env.Step(Right)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, BumpReward)
		So(done, ShouldBeFalse)
		So(state.WallE, ShouldResemble, Position{X: 0, Y: 0})
	})

	Convey("When the agent moves onto an empty cell", t, func() {
		env, _ := newTestEnv([]string{"A..", "T..", "R.E"}, 0, true)
		state, reward, done, err := env.Step(Right)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, StepReward)
		So(done, ShouldBeFalse)
		So(state.WallE, ShouldResemble, Position{X: 1, Y: 0})
	})

	Convey("When the agent collects trash", t, func() {
		env, _ := newTestEnv([]string{"ATT", "...", "R.E"}, 0, true)
		state, reward, done, err := env.Step(Right)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, TrashReward)
		So(done, ShouldBeFalse)
		So(state.TrashCount, ShouldEqual, 1)
		So(state.Grid[0][1], ShouldEqual, Empty)

		Convey("Returning to the emptied cell is an ordinary step", func() {
			_, _, _, err = env.Step(Left)
			So(err, ShouldBeNil)
			_, reward, _, err = env.Step(Right)
			So(err, ShouldBeNil)
			So(reward, ShouldEqual, StepReward)
			So(env.State().TrashCount, ShouldEqual, 1)
		})
	})

	Convey("When the agent steps on a mine", t, func() {
		env, _ := newTestEnv([]string{"AM.", "T..", "R.E"}, 0, true)
		_, reward, done, err := env.Step(Right)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, MineReward)
		So(done, ShouldBeTrue)

		Convey("Further steps are rejected until reset", func() {
			_, _, done, err = env.Step(Right)
			So(errors.Is(err, ErrEpisodeOver), ShouldBeTrue)
			So(done, ShouldBeTrue)
		})
	})

	Convey("When the agent exits with trash remaining", t, func() {
		env, _ := newTestEnv([]string{"AE.", "T..", "..R"}, 0, true)
		_, reward, done, err := env.Step(Right)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, EarlyExitReward)
		So(done, ShouldBeTrue)
		So(env.SuccessfulCompletions(), ShouldEqual, 0)
	})

	Convey("When the agent exits with all trash collected", t, func() {
		env, _ := newTestEnv([]string{"ATT", "..E", "R.."}, 0, true)
		_, reward, _, err := env.Step(Right)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, TrashReward)
		_, reward, _, err = env.Step(Right)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, TrashReward)

		state, reward, done, err := env.Step(Down)
		So(err, ShouldBeNil)
		So(state.TrashCount, ShouldEqual, 0)
		So(reward, ShouldEqual, ExitBonus*2)
		So(done, ShouldBeTrue)
		So(env.SuccessfulCompletions(), ShouldEqual, 1)
	})

	Convey("When the adversary moves onto the agent", t, func() {
		Convey("The collision overrides a step reward", func() {
			env, _ := newTestEnv([]string{"A..", ".R.", "T.E"}, 1, false)
			state, reward, done, err := env.Step(Right)
			So(err, ShouldBeNil)
			So(state.EvilRobot, ShouldResemble, Position{X: 1, Y: 0})
			So(reward, ShouldEqual, CollisionReward)
			So(done, ShouldBeTrue)
		})

		Convey("The collision overrides a trash reward", func() {
			env, _ := newTestEnv([]string{"AT.", ".R.", "T.E"}, 1, false)
			state, reward, done, err := env.Step(Right)
			So(err, ShouldBeNil)
			So(state.TrashCount, ShouldEqual, 1)
			So(reward, ShouldEqual, CollisionReward)
			So(done, ShouldBeTrue)
		})
	})

	Convey("When the agent walks into a stationary adversary", t, func() {
		env, _ := newTestEnv([]string{"AR.", "T..", "..E"}, 0, true)
		_, reward, done, err := env.Step(Right)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, CollisionReward)
		So(done, ShouldBeTrue)
	})

	Convey("When the adversary is blocked", t, func() {
		env, _ := newTestEnv([]string{"AR.", "...", "T.E"}, 1, false)
		state, _, done, err := env.Step(Down)
		So(err, ShouldBeNil)
		So(done, ShouldBeFalse)
		// Up is blocked by the boundary so the adversary turns right.
		So(state.EvilRobot, ShouldResemble, Position{X: 2, Y: 0})
	})

	Convey("When the adversary moves on a delay", t, func() {
		env, start := newTestEnv(nil, 3, false)
		for i := 0; i < 2; i++ {
			state, _, _, err := env.Step(Down)
			So(err, ShouldBeNil)
			So(state.EvilRobot, ShouldResemble, start.EvilRobot)
		}
		state, _, _, err := env.Step(Down)
		So(err, ShouldBeNil)
		// Up is a wall, so the adversary turns right.
		So(state.EvilRobot, ShouldResemble, Position{X: 4, Y: 3})
	})

	Convey("When the step budget runs out", t, func() {
		env, _ := newTestEnv([]string{"A..", "T..", "R.E"}, 0, true)
		So(env.SetMaxSteps(2), ShouldBeNil)

		_, _, done, err := env.Step(Right)
		So(err, ShouldBeNil)
		So(done, ShouldBeFalse)

		state, reward, done, err := env.Step(Right)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, TimeoutReward)
		So(done, ShouldBeTrue)
		So(state.WallE, ShouldResemble, Position{X: 1, Y: 0})
	})

	Convey("When max steps is not positive", t, func() {
		env, _ := newTestEnv(nil, 0, false)
		So(errors.Is(env.SetMaxSteps(0), ErrInvalidSteps), ShouldBeTrue)
		So(env.MaxSteps(), ShouldEqual, DefaultMaxSteps)
	})

	Convey("When the action is out of range", t, func() {
		env, _ := newTestEnv([]string{"R..", ".A.", "T.E"}, 0, true)
		state, reward, done, err := env.Step(Action(7))
		So(err, ShouldBeNil)
		So(done, ShouldBeFalse)
		So(reward, ShouldEqual, StepReward)
		So(state.WallE, ShouldNotResemble, Position{X: 1, Y: 1})
	})

	Convey("When the adversary is switched off", t, func() {
		env, start := newTestEnv(nil, 1, false)
		So(env.EvilRobotEnabled(), ShouldBeTrue)
		env.SetEvilRobotEnabled(false)
		So(env.EvilRobotEnabled(), ShouldBeFalse)
		for i := 0; i < 3; i++ {
			state, _, _, err := env.Step(Down)
			So(err, ShouldBeNil)
			So(state.EvilRobot, ShouldResemble, start.EvilRobot)
		}
		So(env.Steps(), ShouldEqual, 3)
	})

	Convey("When the agent reaches the exit with all trash but the adversary stands on it", t, func() {
		env, err := NewEnvironment(EnvConfig{EvilRobotDisabled: true})
		So(err, ShouldBeNil)
		env.SetLayout(&Layout{
			Grid:      [][]Cell{{Trash, Exit}, {Empty, Empty}},
			WallE:     Position{X: 0, Y: 1},
			EvilRobot: Position{X: 1, Y: 0},
		})
		_, err = env.Reset()
		So(err, ShouldBeNil)

		_, reward, done, err := env.Step(Up)
		So(err, ShouldBeNil)
		So(reward, ShouldEqual, TrashReward)
		So(done, ShouldBeFalse)

		state, reward, done, err := env.Step(Right)
		So(err, ShouldBeNil)
		So(state.TrashCount, ShouldEqual, 0)
		So(reward, ShouldEqual, CollisionReward)
		So(done, ShouldBeTrue)
		So(env.SuccessfulCompletions(), ShouldEqual, 0)
	})
}
