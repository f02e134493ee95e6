package cleanmap

import "fmt"

// EventKind is the type of an input event.
type EventKind int

const (
	PointerDown EventKind = iota + 1
	PointerMove
	PointerUp
	PinchStart
	PinchScale
	PinchEnd
)

var eventKindNames = map[EventKind]string{
	PointerDown: "pointer_down",
	PointerMove: "pointer_move",
	PointerUp:   "pointer_up",
	PinchStart:  "pinch_start",
	PinchScale:  "pinch_scale",
	PinchEnd:    "pinch_end",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(name string) (EventKind, error) {
	for kind, n := range eventKindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// Event is one pointer or pinch input. X and Y are screen pixels; for pinch
// events they are the focal point. Scale is the incremental pinch factor.
type Event struct {
	Kind  EventKind
	X     float64
	Y     float64
	Scale float64
}

// Gesture turns input events into viewport changes. It is not safe for
// concurrent use and belongs to the goroutine that owns the viewport.
type Gesture struct {
	vp        *Viewport
	focalZoom bool

	down     bool
	pinching bool
	lastX    float64
	lastY    float64
}

func NewGesture(vp *Viewport, focalZoom bool) *Gesture {
	return &Gesture{vp: vp, focalZoom: focalZoom}
}

// Pinching reports whether a pinch is in progress.
func (g *Gesture) Pinching() bool { return g.pinching }

// Handle applies one event and reports whether the viewport changed.
func (g *Gesture) Handle(ev Event) bool {
	switch ev.Kind {
	case PointerDown:
		g.down = true
		g.lastX, g.lastY = ev.X, ev.Y
		return false
	case PointerMove:
		changed := false
		if g.down && !g.pinching {
			changed = g.vp.Pan(ev.X-g.lastX, ev.Y-g.lastY)
		}
		g.lastX, g.lastY = ev.X, ev.Y
		return changed
	case PointerUp:
		g.down = false
		g.pinching = false
		return false
	case PinchStart:
		g.pinching = true
		return false
	case PinchScale:
		if g.focalZoom {
			return g.vp.ZoomAt(ev.Scale, ev.X, ev.Y)
		}
		return g.vp.Zoom(ev.Scale)
	case PinchEnd:
		g.pinching = false
		return false
	default:
		return false
	}
}
