package cleanmap

import (
	"encoding/base64"
	"fmt"
	"math"
	"testing"
)

func strptr(s string) *string { return &s }

func gridJSON(width, height int, data []byte) *string {
	return strptr(fmt.Sprintf(`{"width":%d,"height":%d,"grid":%q}`, width, height, base64.StdEncoding.EncodeToString(data)))
}

func TestCellFromByte(t *testing.T) {
	cases := map[byte]Cell{0: CellUnknown, 1: CellFloor, 2: CellWall, 7: CellWall, 255: CellWall}
	for b, want := range cases {
		if got := CellFromByte(b); got != want {
			t.Fatalf("CellFromByte(%d) = %s, want %s", b, got, want)
		}
	}
}

func TestDecodeEndToEnd(t *testing.T) {
	model := Decode(gridJSON(2, 1, []byte{1, 2}), strptr("0,0,0"), nil)

	if !model.HasData() {
		t.Fatalf("expected data")
	}
	grid := model.Grid()
	if grid.Width() != 2 || grid.Height() != 1 {
		t.Fatalf("unexpected dims %dx%d", grid.Width(), grid.Height())
	}
	if grid.At(0, 0) != CellFloor || grid.At(1, 0) != CellWall {
		t.Fatalf("unexpected cells %v", grid.Row(0))
	}
	if model.CleanedCellCount() != 1 {
		t.Fatalf("unexpected cleaned count %d", model.CleanedCellCount())
	}
	robot := model.RobotPose()
	if !robot.Valid || robot.X != 0 || robot.Y != 0 || robot.Angle != 0 {
		t.Fatalf("unexpected robot pose %+v", robot)
	}
	if model.ChargerPose().Valid {
		t.Fatalf("expected charger unknown")
	}
}

func TestDecodeMissingGrid(t *testing.T) {
	for _, raw := range []*string{nil, strptr(""), strptr("null"), strptr("  ")} {
		model, diag := DecodeWithDiagnostics(raw, strptr("1,2,3"), strptr("4,5"))
		if model.HasData() {
			t.Fatalf("expected no data for %v", raw)
		}
		if model.RobotPose().Valid || model.ChargerPose().Valid {
			t.Fatalf("expected unknown poses")
		}
		if model.CleanedCellCount() != 0 || model.TotalCells() != 0 {
			t.Fatalf("expected empty counts")
		}
		if !diag.Has(MissingData) {
			t.Fatalf("expected MissingData diagnostic")
		}
	}
}

func TestDecodeAllNull(t *testing.T) {
	model := Decode(nil, nil, nil)
	if model.HasData() || model.RobotPose().Valid || model.ChargerPose().Valid || model.CleanedCellCount() != 0 {
		t.Fatalf("unexpected model for all-null input")
	}
}

func TestDecodeCountsEveryFloorCell(t *testing.T) {
	data := make([]byte, 12*9)
	for i := range data {
		data[i] = byte(i * 37 % 5)
	}
	model := Decode(gridJSON(12, 9, data), nil, nil)
	grid := model.Grid()

	floors := 0
	for row := 0; row < grid.Height(); row++ {
		for col := 0; col < grid.Width(); col++ {
			cell := grid.At(col, row)
			if cell != CellUnknown && cell != CellFloor && cell != CellWall {
				t.Fatalf("invalid cell %v", cell)
			}
			if want := CellFromByte(data[row*12+col]); cell != want {
				t.Fatalf("cell (%d,%d) = %s, want %s", col, row, cell, want)
			}
			if cell == CellFloor {
				floors++
			}
		}
	}
	if model.CleanedCellCount() != floors {
		t.Fatalf("cleaned %d, counted %d", model.CleanedCellCount(), floors)
	}
	if model.TotalCells() != 108 {
		t.Fatalf("unexpected total %d", model.TotalCells())
	}
}

func TestDecodeTruncatedGrid(t *testing.T) {
	data := []byte{1, 2, 1, 1, 2}
	model, diag := DecodeWithDiagnostics(gridJSON(4, 3, data), nil, nil)
	if !diag.Has(TruncatedGrid) {
		t.Fatalf("expected TruncatedGrid diagnostic")
	}
	grid := model.Grid()
	for i := 0; i < 12; i++ {
		cell := grid.At(i%4, i/4)
		if i < len(data) {
			if cell != CellFromByte(data[i]) {
				t.Fatalf("cell %d decoded as %s", i, cell)
			}
			continue
		}
		if cell != CellUnknown {
			t.Fatalf("cell %d should be unknown, got %s", i, cell)
		}
	}
	if model.CleanedCellCount() != 3 {
		t.Fatalf("unexpected cleaned count %d", model.CleanedCellCount())
	}
}

func TestDecodeDefaultsDimensions(t *testing.T) {
	raw := strptr(`{"grid":"` + base64.StdEncoding.EncodeToString([]byte{1}) + `"}`)
	model := Decode(raw, nil, nil)
	if model.Grid().Width() != DefaultGridWidth || model.Grid().Height() != DefaultGridHeight {
		t.Fatalf("expected default 64x64, got %dx%d", model.Grid().Width(), model.Grid().Height())
	}
	if model.Grid().At(0, 0) != CellFloor {
		t.Fatalf("expected first cell floor")
	}
}

func TestDecodeLenientPayloads(t *testing.T) {
	unpadded := base64.RawStdEncoding.EncodeToString([]byte{1, 1, 1, 1})
	wrapped := `AQEB\nAQ==`
	cases := map[string]int{
		`{"width":"2","height":2,"grid":"` + unpadded + `"}`: 4,
		`{"width":2,"height":2,"grid":"` + wrapped + `"}`:    4,
		`{"width":2,"height":2,"grid":""}`:                   0,
	}
	for raw, want := range cases {
		model := Decode(strptr(raw), nil, nil)
		if model.CleanedCellCount() != want {
			t.Fatalf("%s: cleaned %d, want %d", raw, model.CleanedCellCount(), want)
		}
	}
}

func TestDecodeMalformedGridDegrades(t *testing.T) {
	model, diag := DecodeWithDiagnostics(strptr("{not json"), strptr("3,4"), nil)
	if !diag.Has(MalformedGrid) {
		t.Fatalf("expected MalformedGrid")
	}
	if !model.HasData() || model.CleanedCellCount() != 0 {
		t.Fatalf("expected empty default grid")
	}
	if !model.RobotPose().Valid {
		t.Fatalf("robot pose should survive a bad grid")
	}

	model, diag = DecodeWithDiagnostics(strptr(`{"width":2,"height":2,"grid":"!!!"}`), nil, nil)
	if !diag.Has(MalformedGrid) || model.Grid().Width() != 2 {
		t.Fatalf("expected 2x2 grid with MalformedGrid, got %+v", diag)
	}
}

func TestDecodeDimensionBounds(t *testing.T) {
	model := Decode(strptr(`{"width":-3,"height":5,"grid":""}`), nil, nil)
	if model.HasData() {
		t.Fatalf("negative width should make the grid absent")
	}

	model, diag := DecodeWithDiagnostics(strptr(`{"width":100000,"height":1,"grid":""}`), nil, nil)
	if model.Grid().Width() != MaxGridDimension {
		t.Fatalf("expected width capped, got %d", model.Grid().Width())
	}
	if !diag.Has(MalformedGrid) {
		t.Fatalf("expected cap to be reported")
	}
}

func TestDecodeHugeDimensions(t *testing.T) {
	model, diag := DecodeWithDiagnostics(strptr(`{"width":1e20,"height":2,"grid":"AQE="}`), nil, nil)
	if !model.HasData() || model.Grid().Width() != MaxGridDimension || model.Grid().Height() != 2 {
		t.Fatalf("expected %dx2 grid, got %dx%d", MaxGridDimension, model.Grid().Width(), model.Grid().Height())
	}
	if issue, ok := diag.Field("width"); !ok || issue.Kind != MalformedGrid {
		t.Fatalf("expected width cap issue, got %+v", diag)
	}

	model = Decode(strptr(`{"width":-1e20,"height":2,"grid":"AQE="}`), nil, nil)
	if model.HasData() {
		t.Fatalf("hugely negative width should make the grid absent")
	}
}

func TestDecodePoses(t *testing.T) {
	model := Decode(gridJSON(1, 1, []byte{1}), strptr("12,34,90.0"), strptr("5,6"))
	robot := model.RobotPose()
	if robot != (Pose{X: 12, Y: 34, Angle: 90, Valid: true}) {
		t.Fatalf("unexpected robot pose %+v", robot)
	}
	charger := model.ChargerPose()
	if charger != (Pose{X: 5, Y: 6, Valid: true}) {
		t.Fatalf("unexpected charger pose %+v", charger)
	}

	model = Decode(gridJSON(1, 1, []byte{1}), strptr(" 7 , 8 "), strptr("5,6,45"))
	if model.RobotPose() != (Pose{X: 7, Y: 8, Valid: true}) {
		t.Fatalf("expected trimmed robot pose, got %+v", model.RobotPose())
	}
	if model.ChargerPose().Angle != 0 {
		t.Fatalf("charger angle must be ignored")
	}
}

func TestDecodeMalformedPose(t *testing.T) {
	cases := []string{"abc", "1", "1,x", "1,2,north", "1,2,NaN"}
	for _, raw := range cases {
		model, diag := DecodeWithDiagnostics(gridJSON(2, 1, []byte{1, 2}), strptr(raw), nil)
		if model.RobotPose().Valid {
			t.Fatalf("%q: expected unknown robot pose", raw)
		}
		if !diag.Has(MalformedPose) {
			t.Fatalf("%q: expected MalformedPose", raw)
		}
		if issue, ok := diag.Field("robot"); !ok || issue.Kind != MalformedPose {
			t.Fatalf("%q: expected robot issue, got %+v", raw, issue)
		}
		if !model.HasData() || model.CleanedCellCount() != 1 {
			t.Fatalf("%q: grid decode affected", raw)
		}
	}
}

func TestDecodeNegativePoseIsUnknown(t *testing.T) {
	model, diag := DecodeWithDiagnostics(gridJSON(1, 1, []byte{1}), strptr("-1,4,10"), strptr("3,-2"))
	if model.RobotPose().Valid || model.ChargerPose().Valid {
		t.Fatalf("negative coordinates should be unknown")
	}
	if diag.Has(MalformedPose) {
		t.Fatalf("negative coordinates are not malformed")
	}
}

func TestCleanedArea(t *testing.T) {
	cells := make([]Cell, 400)
	for i := range cells {
		cells[i] = CellFloor
	}
	model := NewMapModel(20, 20, cells, UnknownPose, UnknownPose)
	if model.CleanedCellCount() != 400 {
		t.Fatalf("unexpected count %d", model.CleanedCellCount())
	}
	if math.Abs(model.CleanedAreaSqm()-1.0) > 1e-12 {
		t.Fatalf("unexpected area %v", model.CleanedAreaSqm())
	}
}

func TestGridRowIsCopy(t *testing.T) {
	model := Decode(gridJSON(2, 1, []byte{1, 2}), nil, nil)
	row := model.Grid().Row(0)
	row[0] = CellWall
	if model.Grid().At(0, 0) != CellFloor {
		t.Fatalf("Row must not alias the model grid")
	}
	if model.Grid().At(5, 5) != CellUnknown || model.Grid().Row(3) != nil {
		t.Fatalf("out-of-range access should be unknown")
	}
}
