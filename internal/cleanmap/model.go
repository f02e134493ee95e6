package cleanmap

// Grid is a row-major width x height array of cells, origin top-left.
// It has no mutators; accessors return copies.
type Grid struct {
	width  int
	height int
	cells  []Cell
}

func newGrid(width, height int, cells []Cell) Grid {
	if width <= 0 || height <= 0 {
		return Grid{}
	}
	out := make([]Cell, width*height)
	copy(out, cells)
	return Grid{width: width, height: height, cells: out}
}

func (g Grid) Width() int  { return g.width }
func (g Grid) Height() int { return g.height }

// Present reports whether the grid has any area.
func (g Grid) Present() bool {
	return g.width > 0 && g.height > 0
}

// At returns the cell at (col, row). Out-of-range positions are Unknown.
func (g Grid) At(col, row int) Cell {
	if col < 0 || row < 0 || col >= g.width || row >= g.height {
		return CellUnknown
	}
	return g.cells[row*g.width+col]
}

// Row returns a copy of one row.
func (g Grid) Row(row int) []Cell {
	if row < 0 || row >= g.height {
		return nil
	}
	out := make([]Cell, g.width)
	copy(out, g.cells[row*g.width:(row+1)*g.width])
	return out
}

// Count returns how many cells have the given state.
func (g Grid) Count(c Cell) int {
	n := 0
	for _, cell := range g.cells {
		if cell == c {
			n++
		}
	}
	return n
}

// Pose is a grid position with a heading in degrees (0 points along +x).
type Pose struct {
	X     int
	Y     int
	Angle float64
	Valid bool
}

// UnknownPose is the pose of something the device has not reported.
var UnknownPose = Pose{X: -1, Y: -1}

// NewPose builds a pose, unknown when either coordinate is negative.
func NewPose(x, y int, angle float64) Pose {
	if x < 0 || y < 0 {
		return UnknownPose
	}
	return Pose{X: x, Y: y, Angle: angle, Valid: true}
}

// MapModel is one decoded map snapshot. It is never modified after decode.
type MapModel struct {
	grid    Grid
	robot   Pose
	charger Pose
	cleaned int
}

// EmptyModel is the "no map yet" model.
func EmptyModel() *MapModel {
	return &MapModel{robot: UnknownPose, charger: UnknownPose}
}

// NewMapModel builds a model from cells already classified. The charger
// heading is dropped.
func NewMapModel(width, height int, cells []Cell, robot, charger Pose) *MapModel {
	grid := newGrid(width, height, cells)
	charger.Angle = 0
	return &MapModel{
		grid:    grid,
		robot:   robot,
		charger: charger,
		cleaned: grid.Count(CellFloor),
	}
}

// HasData distinguishes "no map yet" from an all-unknown grid.
func (m *MapModel) HasData() bool {
	return m != nil && m.grid.Present()
}

func (m *MapModel) Grid() Grid {
	if m == nil {
		return Grid{}
	}
	return m.grid
}

func (m *MapModel) RobotPose() Pose {
	if m == nil {
		return UnknownPose
	}
	return m.robot
}

func (m *MapModel) ChargerPose() Pose {
	if m == nil {
		return UnknownPose
	}
	return m.charger
}

// CleanedCellCount is the number of floor cells.
func (m *MapModel) CleanedCellCount() int {
	if m == nil {
		return 0
	}
	return m.cleaned
}

// CleanedAreaSqm is the covered floor area in square meters.
func (m *MapModel) CleanedAreaSqm() float64 {
	return float64(m.CleanedCellCount()) * CellAreaSqm
}

// TotalCells is width * height, zero without a grid.
func (m *MapModel) TotalCells() int {
	if m == nil {
		return 0
	}
	return m.grid.width * m.grid.height
}
