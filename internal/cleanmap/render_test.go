package cleanmap

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func floorModel(width, height int, robot, charger Pose) *MapModel {
	cells := make([]Cell, width*height)
	for i := range cells {
		cells[i] = CellFloor
	}
	return NewMapModel(width, height, cells, robot, charger)
}

func rgbaAt(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

func TestRenderPlaceholder(t *testing.T) {
	img := RenderImage(EmptyModel(), DefaultViewport(), 200, 100)
	if rgbaAt(img, 0, 0) != colorCanvas {
		t.Fatalf("expected canvas background")
	}
	found := false
	for y := 40; y < 60 && !found; y++ {
		for x := 70; x < 130; x++ {
			if rgbaAt(img, x, y) != colorCanvas {
				found = true
				break
			}
		}
	}
	if !found {
		t.Fatalf("expected placeholder text near the center")
	}
	if rgbaAt(img, 30, 90) != colorCanvas {
		t.Fatalf("placeholder frame should not draw a legend")
	}
}

func TestRenderCells(t *testing.T) {
	model := NewMapModel(3, 1, []Cell{CellFloor, CellUnknown, CellWall}, UnknownPose, UnknownPose)
	img := RenderImage(model, DefaultViewport(), 300, 300)

	if got := rgbaAt(img, 4, 4); got != colorFloor {
		t.Fatalf("floor pixel %v", got)
	}
	if got := rgbaAt(img, 12, 4); got != colorUnexplored {
		t.Fatalf("unknown pixel %v", got)
	}
	if got := rgbaAt(img, 20, 4); got != colorWall {
		t.Fatalf("wall pixel %v", got)
	}
	if got := rgbaAt(img, 4, 12); got != colorCanvas {
		t.Fatalf("outside grid pixel %v", got)
	}
}

func TestRenderScaledAndTranslated(t *testing.T) {
	model := NewMapModel(2, 1, []Cell{CellWall, CellFloor}, UnknownPose, UnknownPose)
	img := RenderImage(model, NewViewport(2, 10, 20), 300, 300)
	// Each cell is 16px wide starting at x=10.
	if got := rgbaAt(img, 11, 21); got != colorWall {
		t.Fatalf("wall pixel %v", got)
	}
	if got := rgbaAt(img, 30, 35); got != colorFloor {
		t.Fatalf("floor pixel %v", got)
	}
	if got := rgbaAt(img, 9, 21); got != colorCanvas {
		t.Fatalf("left of grid %v", got)
	}
}

func TestRenderMarkers(t *testing.T) {
	model := floorModel(10, 10, NewPose(5, 5, 0), NewPose(1, 1, 0))
	img := RenderImage(model, DefaultViewport(), 300, 300)

	if got := rgbaAt(img, 44, 34); got != colorRobot {
		t.Fatalf("robot body pixel %v", got)
	}
	if got := rgbaAt(img, 62, 44); got != colorHeading {
		t.Fatalf("heading pixel %v", got)
	}
	if got := rgbaAt(img, 12, 12); got != colorCharger {
		t.Fatalf("charger pixel %v", got)
	}

	down := floorModel(10, 10, NewPose(5, 5, 90), UnknownPose)
	img = RenderImage(down, DefaultViewport(), 300, 300)
	if got := rgbaAt(img, 44, 62); got != colorHeading {
		t.Fatalf("heading at 90 degrees %v", got)
	}
	if got := rgbaAt(img, 62, 44); got != colorFloor {
		t.Fatalf("expected floor where the 0 degree heading would be, got %v", got)
	}
	if got := rgbaAt(img, 12, 12); got != colorFloor {
		t.Fatalf("unknown charger should not be drawn, got %v", got)
	}
}

func TestRenderLegendIsScreenSpace(t *testing.T) {
	model := floorModel(4, 4, UnknownPose, UnknownPose)
	for _, vp := range []Viewport{DefaultViewport(), NewViewport(8, -5000, 7000)} {
		img := RenderImage(model, vp, 400, 300)
		if got := rgbaAt(img, 30, 190); got != colorFloor {
			t.Fatalf("legend floor swatch %v", got)
		}
		if got := rgbaAt(img, 30, 220); got != colorWall {
			t.Fatalf("legend wall swatch %v", got)
		}
		if got := rgbaAt(img, 30, 250); got != colorRobot {
			t.Fatalf("legend robot swatch %v", got)
		}
	}
}

func TestRenderLeavesModelAlone(t *testing.T) {
	model := Decode(gridJSON(3, 2, []byte{1, 1, 2, 0, 1, 2}), strptr("1,1,45"), strptr("0,0"))
	before := model.CleanedCellCount()
	vp := NewViewport(3, 5, 5)
	RenderImage(model, vp, 120, 80)
	if model.CleanedCellCount() != before || vp.Scale() != 3 || vp.TranslateX() != 5 {
		t.Fatalf("render mutated its inputs")
	}
}

func TestEncodePNG(t *testing.T) {
	img := RenderImage(floorModel(2, 2, NewPose(0, 0, 0), UnknownPose), DefaultViewport(), 64, 48)
	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 48 {
		t.Fatalf("unexpected bounds %v", decoded.Bounds())
	}
}
