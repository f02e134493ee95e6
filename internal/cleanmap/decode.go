package cleanmap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultGridWidth  = 64
	DefaultGridHeight = 64
	// MaxGridDimension bounds memory for hostile payloads.
	MaxGridDimension = 4096
)

// RawMap carries the three device properties a map is built from. Each
// field is independently optional.
type RawMap struct {
	Grid    *string `json:"grid,omitempty"`
	Robot   *string `json:"robot,omitempty"`
	Charger *string `json:"charger,omitempty"`
}

// IssueKind classifies a decode degradation.
type IssueKind string

const (
	MissingData   IssueKind = "missing_data"
	MalformedPose IssueKind = "malformed_pose"
	TruncatedGrid IssueKind = "truncated_grid"
	MalformedGrid IssueKind = "malformed_grid"
)

// Issue is one degradation observed while decoding.
type Issue struct {
	Kind   IssueKind
	Field  string
	Detail string
}

// Diagnostics lists what was degraded during a decode. Decoding itself never fails.
type Diagnostics struct {
	Issues []Issue
}

func (d *Diagnostics) add(kind IssueKind, field, detail string) {
	d.Issues = append(d.Issues, Issue{Kind: kind, Field: field, Detail: detail})
}

// Has reports whether any issue of the given kind was recorded.
func (d Diagnostics) Has(kind IssueKind) bool {
	for _, issue := range d.Issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

// Field returns the first issue recorded for a field.
func (d Diagnostics) Field(field string) (Issue, bool) {
	for _, issue := range d.Issues {
		if issue.Field == field {
			return issue, true
		}
	}
	return Issue{}, false
}

// Decode builds a MapModel from raw property values.
func Decode(rawGrid, rawRobot, rawCharger *string) *MapModel {
	model, _ := DecodeWithDiagnostics(rawGrid, rawRobot, rawCharger)
	return model
}

// DecodeRaw is Decode over a RawMap.
func DecodeRaw(raw RawMap) (*MapModel, Diagnostics) {
	return DecodeWithDiagnostics(raw.Grid, raw.Robot, raw.Charger)
}

// DecodeWithDiagnostics is Decode plus a report of every degradation.
func DecodeWithDiagnostics(rawGrid, rawRobot, rawCharger *string) (*MapModel, Diagnostics) {
	var diag Diagnostics

	if missing(rawGrid) {
		diag.add(MissingData, "grid", "no map payload")
		return EmptyModel(), diag
	}

	width, height, data := decodeGridPayload(*rawGrid, &diag)

	var cells []Cell
	cleaned := 0
	if width > 0 && height > 0 {
		total := width * height
		cells = make([]Cell, total)
		n := total
		if len(data) < total {
			n = len(data)
			diag.add(TruncatedGrid, "grid", fmt.Sprintf("%d of %d cells present", len(data), total))
		}
		for i := 0; i < n; i++ {
			cell := CellFromByte(data[i])
			cells[i] = cell
			if cell == CellFloor {
				cleaned++
			}
		}
	}

	robot := decodePose("robot", rawRobot, true, &diag)
	charger := decodePose("charger", rawCharger, false, &diag)

	model := &MapModel{
		robot:   robot,
		charger: charger,
		cleaned: cleaned,
	}
	if width > 0 && height > 0 {
		model.grid = Grid{width: width, height: height, cells: cells}
	}
	return model, diag
}

type gridPayload struct {
	Width  json.RawMessage `json:"width"`
	Height json.RawMessage `json:"height"`
	Grid   json.RawMessage `json:"grid"`
}

func decodeGridPayload(raw string, diag *Diagnostics) (int, int, []byte) {
	var payload gridPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		diag.add(MalformedGrid, "grid", "payload is not a JSON object: "+err.Error())
		return DefaultGridWidth, DefaultGridHeight, nil
	}

	width := dimension("width", payload.Width, DefaultGridWidth, diag)
	height := dimension("height", payload.Height, DefaultGridHeight, diag)

	encoded := jsonString(payload.Grid)
	if encoded == "" {
		return width, height, nil
	}
	data, err := decodeBase64(encoded)
	if err != nil {
		diag.add(MalformedGrid, "grid", "grid is not base64: "+err.Error())
		return width, height, nil
	}
	return width, height, data
}

// dimension reads a width or height leniently: numbers or numeric strings,
// default when absent, clamped to [0, MaxGridDimension].
func dimension(field string, raw json.RawMessage, def int, diag *Diagnostics) int {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return def
	}
	text = strings.Trim(text, `"`)
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		diag.add(MalformedGrid, field, "not a number: "+string(raw))
		return def
	}
	// Range-check before converting; int() of an out-of-range float is
	// implementation-defined.
	if value < 0 {
		diag.add(MalformedGrid, field, "negative dimension")
		return 0
	}
	if value > MaxGridDimension {
		diag.add(MalformedGrid, field, fmt.Sprintf("capped at %d", MaxGridDimension))
		return MaxGridDimension
	}
	return int(value)
}

func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// decodeBase64 accepts padded or unpadded standard base64 with embedded
// line breaks, plus the URL-safe alphabet.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	trimmed := strings.TrimRight(s, "=")
	if strings.ContainsAny(trimmed, "-_") {
		return base64.RawURLEncoding.DecodeString(trimmed)
	}
	return base64.RawStdEncoding.DecodeString(trimmed)
}

func decodePose(field string, raw *string, withAngle bool, diag *Diagnostics) Pose {
	if missing(raw) {
		diag.add(MissingData, field, "no position")
		return UnknownPose
	}
	pose, err := parsePose(*raw, withAngle)
	if err != nil {
		diag.add(MalformedPose, field, err.Error())
		return UnknownPose
	}
	return pose
}

func parsePose(raw string, withAngle bool) (Pose, error) {
	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		return UnknownPose, fmt.Errorf("expected x,y in %q", raw)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return UnknownPose, fmt.Errorf("parse x: %w", err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return UnknownPose, fmt.Errorf("parse y: %w", err)
	}
	angle := 0.0
	if withAngle && len(parts) >= 3 {
		angle, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return UnknownPose, fmt.Errorf("parse angle: %w", err)
		}
		if math.IsNaN(angle) || math.IsInf(angle, 0) {
			return UnknownPose, fmt.Errorf("angle is not finite")
		}
	}
	return NewPose(x, y, angle), nil
}

func missing(raw *string) bool {
	if raw == nil {
		return true
	}
	s := strings.TrimSpace(*raw)
	return s == "" || s == "null"
}
