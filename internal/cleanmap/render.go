package cleanmap

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

const placeholderText = "no map"

var (
	colorCanvas      = color.RGBA{0x16, 0x21, 0x3E, 0xFF}
	colorFloor       = color.RGBA{0xE3, 0xF2, 0xFD, 0xFF}
	colorWall        = color.RGBA{0x37, 0x47, 0x4F, 0xFF}
	colorUnexplored  = color.RGBA{0x1A, 0x1A, 0x2E, 0xFF}
	colorRobot       = color.RGBA{0x4F, 0xC3, 0xF7, 0xFF}
	colorCharger     = color.RGBA{0x66, 0xBB, 0x6A, 0xFF}
	colorHeading     = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	colorLegendBG    = color.NRGBA{0x16, 0x21, 0x3E, 0xAA}
	colorText        = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	colorPlaceholder = color.RGBA{0x88, 0x88, 0x88, 0xFF}
)

// RenderImage draws a frame into a new width x height image.
func RenderImage(model *MapModel, vp Viewport, width, height int) *image.RGBA {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	Render(img, model, vp)
	return img
}

// Render draws model through vp onto dst. It reads but never modifies either.
func Render(dst draw.Image, model *MapModel, vp Viewport) {
	b := dst.Bounds()
	draw.Draw(dst, b, image.NewUniform(colorCanvas), image.Point{}, draw.Src)

	if !model.HasData() {
		drawPlaceholder(dst)
		return
	}

	// Viewport coordinates are relative to the top-left of dst.
	vp.translateX += float64(b.Min.X)
	vp.translateY += float64(b.Min.Y)

	grid := model.Grid()
	drawGrid(dst, grid, vp)

	cell := vp.Scale() * CellSizePx
	if charger := model.ChargerPose(); charger.Valid {
		cx, cy := vp.GridToScreen(float64(charger.X)+0.5, float64(charger.Y)+0.5)
		fillPolygon(dst, circlePoints(cx, cy, 1.5*cell), colorCharger)
	}
	if robot := model.RobotPose(); robot.Valid {
		rx, ry := vp.GridToScreen(float64(robot.X)+0.5, float64(robot.Y)+0.5)
		fillPolygon(dst, circlePoints(rx, ry, 2*cell), colorRobot)

		rad := robot.Angle * math.Pi / 180
		length := 2.5 * cell
		ax := rx + math.Cos(rad)*length
		ay := ry + math.Sin(rad)*length
		fillPolygon(dst, linePoints(rx, ry, ax, ay, 2*vp.Scale()), colorHeading)
	}

	drawLegend(dst, model)
}

func drawGrid(dst draw.Image, grid Grid, vp Viewport) {
	b := dst.Bounds()
	cell := vp.Scale() * CellSizePx

	x0, y0 := vp.GridToScreen(0, 0)
	x1, y1 := vp.GridToScreen(float64(grid.Width()), float64(grid.Height()))
	bg := image.Rect(floor(x0), floor(y0), floor(x1), floor(y1))
	draw.Draw(dst, bg, image.NewUniform(colorUnexplored), image.Point{}, draw.Src)

	// Only visit cells that can land on the canvas.
	colMin := clampInt(int(math.Floor((float64(b.Min.X)-vp.translateX)/cell)), 0, grid.Width())
	colMax := clampInt(int(math.Ceil((float64(b.Max.X)-vp.translateX)/cell)), 0, grid.Width())
	rowMin := clampInt(int(math.Floor((float64(b.Min.Y)-vp.translateY)/cell)), 0, grid.Height())
	rowMax := clampInt(int(math.Ceil((float64(b.Max.Y)-vp.translateY)/cell)), 0, grid.Height())

	floorSrc := image.NewUniform(colorFloor)
	wallSrc := image.NewUniform(colorWall)
	for row := rowMin; row < rowMax; row++ {
		top := floor(vp.translateY + float64(row)*cell)
		bottom := floor(vp.translateY + float64(row+1)*cell)
		for col := colMin; col < colMax; col++ {
			var src *image.Uniform
			switch grid.At(col, row) {
			case CellFloor:
				src = floorSrc
			case CellWall:
				src = wallSrc
			default:
				continue
			}
			left := floor(vp.translateX + float64(col)*cell)
			right := floor(vp.translateX + float64(col+1)*cell)
			draw.Draw(dst, image.Rect(left, top, right, bottom), src, image.Point{}, draw.Src)
		}
	}
}

func drawPlaceholder(dst draw.Image) {
	b := dst.Bounds()
	face := basicfont.Face7x13
	width := font.MeasureString(face, placeholderText).Ceil()
	ascent := face.Metrics().Ascent.Ceil()
	x := b.Min.X + (b.Dx()-width)/2
	y := b.Min.Y + (b.Dy()+ascent)/2
	drawText(dst, x, y, placeholderText, colorPlaceholder)
}

// drawLegend draws the fixed screen-space key in the bottom-left corner.
func drawLegend(dst draw.Image, model *MapModel) {
	b := dst.Bounds()
	x := float64(b.Min.X) + 20
	y := float64(b.Max.Y) - 120

	fillPolygon(dst, roundedRectPoints(x-10, y-40, x+300, y+90, 12), colorLegendBG)

	drawText(dst, int(x), int(y)-16, fmt.Sprintf("Cleaned area %.2f m2", model.CleanedAreaSqm()), colorText)

	draw.Draw(dst, image.Rect(int(x), int(y), int(x)+20, int(y)+20), image.NewUniform(colorFloor), image.Point{}, draw.Src)
	drawText(dst, int(x)+28, int(y)+16, "Cleaned", colorText)

	draw.Draw(dst, image.Rect(int(x), int(y)+30, int(x)+20, int(y)+50), image.NewUniform(colorWall), image.Point{}, draw.Src)
	drawText(dst, int(x)+28, int(y)+46, "Wall", colorText)

	fillPolygon(dst, circlePoints(x+10, y+70, 10), colorRobot)
	drawText(dst, int(x)+28, int(y)+76, "Robot", colorText)
}

func drawText(dst draw.Image, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

type point struct{ x, y float64 }

// fillPolygon rasterizes a closed polygon with anti-aliasing. The rasterizer
// only covers the polygon's bounding box.
func fillPolygon(dst draw.Image, pts []point, c color.Color) {
	if len(pts) < 3 {
		return
	}
	minX, minY := pts[0].x, pts[0].y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX, maxX = math.Min(minX, p.x), math.Max(maxX, p.x)
		minY, maxY = math.Min(minY, p.y), math.Max(maxY, p.y)
	}
	r := image.Rect(floor(minX), floor(minY), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
	if r.Empty() || !r.Overlaps(dst.Bounds()) {
		return
	}

	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	z.MoveTo(float32(pts[0].x-ox), float32(pts[0].y-oy))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.x-ox), float32(p.y-oy))
	}
	z.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, r.Dx(), r.Dy()))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	draw.DrawMask(dst, r, image.NewUniform(c), image.Point{}, mask, image.Point{}, draw.Over)
}

func circlePoints(cx, cy, radius float64) []point {
	const segments = 48
	pts := make([]point, segments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / segments
		pts[i] = point{cx + radius*math.Cos(a), cy + radius*math.Sin(a)}
	}
	return pts
}

// linePoints returns a quad covering a segment of the given width.
func linePoints(x0, y0, x1, y1, width float64) []point {
	dx, dy := x1-x0, y1-y0
	length := math.Hypot(dx, dy)
	if length == 0 {
		return nil
	}
	nx, ny := -dy/length*width/2, dx/length*width/2
	return []point{
		{x0 + nx, y0 + ny},
		{x1 + nx, y1 + ny},
		{x1 - nx, y1 - ny},
		{x0 - nx, y0 - ny},
	}
}

func roundedRectPoints(x0, y0, x1, y1, radius float64) []point {
	const steps = 6
	corners := []struct{ cx, cy, start float64 }{
		{x1 - radius, y0 + radius, -math.Pi / 2},
		{x1 - radius, y1 - radius, 0},
		{x0 + radius, y1 - radius, math.Pi / 2},
		{x0 + radius, y0 + radius, math.Pi},
	}
	pts := make([]point, 0, len(corners)*(steps+1))
	for _, c := range corners {
		for i := 0; i <= steps; i++ {
			a := c.start + (math.Pi/2)*float64(i)/steps
			pts = append(pts, point{c.cx + radius*math.Cos(a), c.cy + radius*math.Sin(a)})
		}
	}
	return pts
}

// EncodePNG encodes a rendered frame.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func floor(v float64) int {
	return int(math.Floor(v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
