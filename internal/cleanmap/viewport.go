package cleanmap

import "math"

const (
	MinScale = 0.5
	MaxScale = 8.0
	// fitFill is the share of the canvas a fitted grid occupies.
	fitFill = 0.9
)

// Viewport maps grid pixels (CellSizePx per cell) to screen pixels:
// screen = grid*scale + translate. Scale stays within [MinScale, MaxScale].
type Viewport struct {
	scale      float64
	translateX float64
	translateY float64
}

// NewViewport returns a viewport with the scale clamped.
func NewViewport(scale, translateX, translateY float64) Viewport {
	return Viewport{scale: clampScale(scale), translateX: translateX, translateY: translateY}
}

// DefaultViewport is scale 1 with no translation.
func DefaultViewport() Viewport {
	return NewViewport(1, 0, 0)
}

func (v Viewport) Scale() float64      { return v.effectiveScale() }
func (v Viewport) TranslateX() float64 { return v.translateX }
func (v Viewport) TranslateY() float64 { return v.translateY }

// FitToCanvas scales the grid to 90% of the canvas and centers it.
// Zero-sized grids or canvases leave the viewport unchanged.
func (v *Viewport) FitToCanvas(gridWidthPx, gridHeightPx, canvasWidth, canvasHeight float64) bool {
	if gridWidthPx <= 0 || gridHeightPx <= 0 || canvasWidth <= 0 || canvasHeight <= 0 {
		return false
	}
	v.scale = clampScale(math.Min(canvasWidth/gridWidthPx, canvasHeight/gridHeightPx) * fitFill)
	v.translateX = (canvasWidth - gridWidthPx*v.scale) / 2
	v.translateY = (canvasHeight - gridHeightPx*v.scale) / 2
	return true
}

// FitGrid fits a grid measured in cells.
func (v *Viewport) FitGrid(g Grid, canvasWidth, canvasHeight int) bool {
	return v.FitToCanvas(
		float64(g.Width()*CellSizePx),
		float64(g.Height()*CellSizePx),
		float64(canvasWidth),
		float64(canvasHeight),
	)
}

// Pan moves the viewport by a screen delta. It is not bounded by the grid.
func (v *Viewport) Pan(dx, dy float64) bool {
	if dx == 0 && dy == 0 {
		return false
	}
	v.translateX += dx
	v.translateY += dy
	return true
}

// Zoom multiplies the scale around the translated origin.
func (v *Viewport) Zoom(factor float64) bool {
	if !validFactor(factor) {
		return false
	}
	before := v.effectiveScale()
	v.scale = clampScale(before * factor)
	return v.scale != before
}

// ZoomAt multiplies the scale keeping the grid point under (focalX, focalY)
// fixed on screen.
func (v *Viewport) ZoomAt(factor, focalX, focalY float64) bool {
	if !validFactor(factor) {
		return false
	}
	gx, gy := v.ScreenToGrid(focalX, focalY)
	before := v.effectiveScale()
	v.scale = clampScale(before * factor)
	if v.scale == before {
		return false
	}
	sx, sy := v.GridToScreen(gx, gy)
	v.translateX += focalX - sx
	v.translateY += focalY - sy
	return true
}

// GridToScreen converts a position in cells to screen pixels.
func (v Viewport) GridToScreen(col, row float64) (x, y float64) {
	s := v.effectiveScale() * CellSizePx
	return col*s + v.translateX, row*s + v.translateY
}

// ScreenToGrid converts screen pixels to a position in cells.
func (v Viewport) ScreenToGrid(x, y float64) (col, row float64) {
	s := v.effectiveScale() * CellSizePx
	return (x - v.translateX) / s, (y - v.translateY) / s
}

// effectiveScale treats the zero value as scale 1.
func (v Viewport) effectiveScale() float64 {
	if v.scale == 0 {
		return 1
	}
	return v.scale
}

func validFactor(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func clampScale(s float64) float64 {
	if math.IsNaN(s) {
		return 1
	}
	if s < MinScale {
		return MinScale
	}
	if s > MaxScale {
		return MaxScale
	}
	return s
}
