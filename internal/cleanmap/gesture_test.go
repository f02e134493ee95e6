package cleanmap

import "testing"

func TestGesturePan(t *testing.T) {
	vp := DefaultViewport()
	g := NewGesture(&vp, false)

	g.Handle(Event{Kind: PointerDown, X: 10, Y: 10})
	if !g.Handle(Event{Kind: PointerMove, X: 25, Y: 5}) {
		t.Fatalf("expected move to change viewport")
	}
	g.Handle(Event{Kind: PointerMove, X: 30, Y: 5})
	if vp.TranslateX() != 20 || vp.TranslateY() != -5 {
		t.Fatalf("unexpected translation (%v,%v)", vp.TranslateX(), vp.TranslateY())
	}

	g.Handle(Event{Kind: PointerUp})
	if g.Handle(Event{Kind: PointerMove, X: 100, Y: 100}) {
		t.Fatalf("move after pointer up should not pan")
	}
}

func TestGesturePinchSuppressesPan(t *testing.T) {
	vp := DefaultViewport()
	g := NewGesture(&vp, false)

	g.Handle(Event{Kind: PointerDown, X: 0, Y: 0})
	g.Handle(Event{Kind: PinchStart, X: 50, Y: 50})
	if g.Handle(Event{Kind: PointerMove, X: 40, Y: 40}) {
		t.Fatalf("pan during pinch")
	}
	if !g.Handle(Event{Kind: PinchScale, X: 50, Y: 50, Scale: 2}) {
		t.Fatalf("expected pinch to zoom")
	}
	if vp.Scale() != 2 || vp.TranslateX() != 0 {
		t.Fatalf("unexpected viewport after pinch: %+v", vp)
	}
	g.Handle(Event{Kind: PinchEnd})

	// The last position kept moving during the pinch, so there is no jump.
	g.Handle(Event{Kind: PointerMove, X: 45, Y: 40})
	if vp.TranslateX() != 5 || vp.TranslateY() != 0 {
		t.Fatalf("unexpected translation after pinch (%v,%v)", vp.TranslateX(), vp.TranslateY())
	}
}

func TestGestureFocalPinch(t *testing.T) {
	vp := DefaultViewport()
	g := NewGesture(&vp, true)
	g.Handle(Event{Kind: PinchStart})
	g.Handle(Event{Kind: PinchScale, X: 100, Y: 100, Scale: 2})
	if vp.TranslateX() != -100 || vp.TranslateY() != -100 {
		t.Fatalf("focal zoom should keep (100,100) fixed, got %+v", vp)
	}
}

func TestParseEventKind(t *testing.T) {
	for kind := PointerDown; kind <= PinchEnd; kind++ {
		parsed, err := ParseEventKind(kind.String())
		if err != nil || parsed != kind {
			t.Fatalf("round trip %s: %v %v", kind, parsed, err)
		}
	}
	if _, err := ParseEventKind("tap"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
