package grid_world

import (
	"errors"
	"fmt"
	"strings"
)

// Cell is the content of a single grid position. Cells are written as runes so that
// layouts can be declared as string slices, like a race track.
type Cell rune

const (
	Empty Cell = '.'
	Wall  Cell = 'W'
	Trash Cell = 'T'
	Mine  Cell = 'M'
	Exit  Cell = 'E'

	// Start markers are only meaningful in a layout; they are stored as Empty cells.
	agentStart     = 'A'
	evilRobotStart = 'R'
)

func (c Cell) String() string {
	switch c {
	case Empty:
		return "empty"
	case Wall:
		return "wall"
	case Trash:
		return "trash"
	case Mine:
		return "mine"
	case Exit:
		return "exit"
	}
	return fmt.Sprintf("cell(%q)", rune(c))
}

// Position is a grid coordinate; Y indexes rows and X indexes columns, so
// a grid is always addressed as grid[y][x].
type Position struct {
	X, Y int
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// InBounds reports whether the position lies on a size x size grid.
func (p Position) InBounds(size int) bool {
	return p.X >= 0 && p.X < size && p.Y >= 0 && p.Y < size
}

// Action is one of the four agent moves.
type Action int

const (
	Up Action = iota
	Right
	Down
	Left

	NumActions = 4
)

// Row/column deltas per action, indexed by Action.
var moves = [NumActions][2]int{
	{-1, 0},
	{0, 1},
	{1, 0},
	{0, -1},
}

var actionNames = [NumActions]string{"Up", "Right", "Down", "Left"}

func (a Action) Valid() bool {
	return a >= 0 && a < NumActions
}

// Delta returns the row and column displacement of the action.
func (a Action) Delta() (dy, dx int) {
	return moves[a][0], moves[a][1]
}

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// Apply returns the position reached by taking the action from p, ignoring walls and bounds.
func (a Action) Apply(p Position) Position {
	dy, dx := a.Delta()
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Rewards
const (
	BumpReward      = -1.0
	TrashReward     = 10.0
	MineReward      = -20.0
	ExitBonus       = 50.0 // per piece of trash present at the start of the episode
	EarlyExitReward = -10.0
	StepReward      = -0.1
	CollisionReward = -50.0
	TimeoutReward   = -1.0
)

// The built-in layout. Rows are y, columns are x.
var DefaultTrack []string = []string{
	"A.T...",
	".W....",
	"..MW..",
	".T.R..",
	".M..W.",
	"...T.E",
}

var (
	ErrInvalidLayout = errors.New("invalid layout")
	ErrInvalidState  = errors.New("invalid state")
)

// Layout is an editable description of an episode's initial grid and start positions.
type Layout struct {
	Grid      [][]Cell
	WallE     Position
	EvilRobot Position
}

// Convert parses a layout from rows of runes. A missing agent marker places the agent
// at (0,0); a missing adversary marker places it at the center of the grid.
// Convert only checks the syntax of the rows; see Validate for semantic checks.
func Convert(track []string) (*Layout, error) {
	if len(track) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidLayout)
	}

	size := len(track)
	layout := &Layout{
		Grid:      make([][]Cell, size),
		EvilRobot: Position{X: size / 2, Y: size / 2},
	}
	var sawAgent, sawRobot bool
	for y, row := range track {
		runes := []rune(row)
		if len(runes) != size {
			return nil, fmt.Errorf("%w: row %d has width %d, expected %d", ErrInvalidLayout, y, len(runes), size)
		}
		layout.Grid[y] = make([]Cell, size)
		for x, r := range runes {
			switch r {
			case agentStart:
				if sawAgent {
					return nil, fmt.Errorf("%w: second agent start at %v", ErrInvalidLayout, Position{X: x, Y: y})
				}
				sawAgent = true
				layout.WallE = Position{X: x, Y: y}
				r = rune(Empty)
			case evilRobotStart:
				if sawRobot {
					return nil, fmt.Errorf("%w: second adversary start at %v", ErrInvalidLayout, Position{X: x, Y: y})
				}
				sawRobot = true
				layout.EvilRobot = Position{X: x, Y: y}
				r = rune(Empty)
			}

			switch c := Cell(r); c {
			case Empty, Wall, Trash, Mine, Exit:
				layout.Grid[y][x] = c
			default:
				return nil, fmt.Errorf("%w: unknown cell %q at %v", ErrInvalidLayout, r, Position{X: x, Y: y})
			}
		}
	}

	return layout, nil
}

// Size is the side length of the square grid.
func (l *Layout) Size() int {
	return len(l.Grid)
}

// Clone deep-copies the layout.
func (l *Layout) Clone() *Layout {
	return &Layout{
		Grid:      copyGrid(l.Grid),
		WallE:     l.WallE,
		EvilRobot: l.EvilRobot,
	}
}

// Count returns the number of cells of the passed type.
func (l *Layout) Count(cell Cell) (n int) {
	Visit(l.Grid, func(_ Position, c Cell) {
		if c == cell {
			n++
		}
	})
	return
}

// Rows renders the layout back into its rune form.
func (l *Layout) Rows() []string {
	rows := make([]string, len(l.Grid))
	for y := range l.Grid {
		sb := strings.Builder{}
		for x, c := range l.Grid[y] {
			pos := Position{X: x, Y: y}
			switch pos {
			case l.WallE:
				sb.WriteRune(agentStart)
			case l.EvilRobot:
				sb.WriteRune(evilRobotStart)
			default:
				sb.WriteRune(rune(c))
			}
		}
		rows[y] = sb.String()
	}
	return rows
}

// EnvState is a snapshot of the environment. The grid is a copy, so holders may not
// mutate the environment through it.
type EnvState struct {
	GridSize   int
	Grid       [][]Cell
	WallE      Position
	EvilRobot  Position
	TrashCount int
	// TotalTrash is the trash present when the episode began.
	TotalTrash int
}

// Clone deep-copies the state.
func (s EnvState) Clone() EnvState {
	s.Grid = copyGrid(s.Grid)
	return s
}

// Validate checks the fields that agents depend on: positions and trash counts.
func (s EnvState) Validate() error {
	switch {
	case s.GridSize <= 0:
		return fmt.Errorf("%w: grid size %d", ErrInvalidState, s.GridSize)
	case !s.WallE.InBounds(s.GridSize):
		return fmt.Errorf("%w: agent at %v", ErrInvalidState, s.WallE)
	case !s.EvilRobot.InBounds(s.GridSize):
		return fmt.Errorf("%w: adversary at %v", ErrInvalidState, s.EvilRobot)
	case s.TrashCount < 0 || s.TotalTrash < s.TrashCount:
		return fmt.Errorf("%w: trash %d of %d", ErrInvalidState, s.TrashCount, s.TotalTrash)
	}
	return nil
}

// Transition is a single time step of an agent: do action a in state s,
// observe reward r and successor s'.
type Transition struct {
	State     EnvState
	Action    Action
	Reward    float64
	NextState EnvState
	Done      bool
}

func copyGrid(grid [][]Cell) [][]Cell {
	if grid == nil {
		return nil
	}
	cp := make([][]Cell, len(grid))
	for y := range grid {
		cp[y] = append([]Cell(nil), grid[y]...)
	}
	return cp
}

// Visits every cell using the passed function.
func Visit(grid [][]Cell, fn func(pos Position, c Cell)) {
	for y := range grid {
		for x := range grid[y] {
			fn(Position{X: x, Y: y}, grid[y][x])
		}
	}
}

// Returns reversed indices of a slice, e.g. for ranging over.
func Rev(length int) []int {
	indices := make([]int, length)
	for i := 0; i < length; i++ {
		indices[i] = length - i - 1
	}
	return indices
}

// Show the grid, for visual reference. The agent and adversary are drawn
// with their layout markers.
func ShowGrid(state EnvState) {
	for y := range state.Grid {
		for x, c := range state.Grid[y] {
			switch (Position{X: x, Y: y}) {
			case state.WallE:
				fmt.Printf("%c ", agentStart)
			case state.EvilRobot:
				fmt.Printf("%c ", evilRobotStart)
			default:
				fmt.Printf("%c ", c)
			}
		}
		fmt.Println("")
	}
}
