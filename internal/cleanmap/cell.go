// Package cleanmap decodes a robot's cleaning map snapshot and renders it
// through a pan/zoom viewport.
package cleanmap

// Cell is the state of one grid square.
type Cell uint8

const (
	CellUnknown Cell = iota
	CellFloor
	CellWall
)

const (
	// CellSizeMM is the side of one cell on the floor.
	CellSizeMM = 50
	// CellAreaSqm is the floor area of one cell (50mm x 50mm).
	CellAreaSqm = 0.0025
	// CellSizePx is the side of one cell on screen at scale 1.
	CellSizePx = 8
)

// CellFromByte maps a raw grid byte to a cell. Unrecognized codes are walls.
func CellFromByte(b byte) Cell {
	switch b {
	case 0:
		return CellUnknown
	case 1:
		return CellFloor
	default:
		return CellWall
	}
}

func (c Cell) String() string {
	switch c {
	case CellUnknown:
		return "unknown"
	case CellFloor:
		return "floor"
	case CellWall:
		return "wall"
	default:
		return "invalid"
	}
}
