package cleanmap

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitFrame(t *testing.T, frames <-chan Frame, match func(Frame) bool) Frame {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-frames:
			if match(f) {
				return f
			}
		case <-timeout:
			t.Fatalf("timed out waiting for frame")
		}
	}
}

func TestScreenFitsOncePerModel(t *testing.T) {
	frames := make(chan Frame, 128)
	errs := make(chan error, 4)
	s := NewScreen(nil, ScreenOptions{
		OnFrame: func(f Frame) { frames <- f },
		OnError: func(err error) { errs <- err },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	model := NewMapModel(2, 1, []Cell{CellFloor, CellWall}, UnknownPose, UnknownPose)
	s.Resize(400, 300)
	s.Deliver(ctx, FetchResult{Model: model})

	f := waitFrame(t, frames, func(f Frame) bool { return f.Model == model })
	if f.Viewport.Scale() != MaxScale {
		t.Fatalf("unexpected fitted scale %v", f.Viewport.Scale())
	}
	if f.Viewport.TranslateX() != 136 || f.Viewport.TranslateY() != 118 {
		t.Fatalf("unexpected fitted translation (%v,%v)", f.Viewport.TranslateX(), f.Viewport.TranslateY())
	}
	if f.Image.Bounds().Dx() != 400 || f.Image.Bounds().Dy() != 300 {
		t.Fatalf("unexpected frame size %v", f.Image.Bounds())
	}

	s.Input(Event{Kind: PointerDown, X: 0, Y: 0})
	s.Input(Event{Kind: PointerMove, X: 10, Y: 0})
	waitFrame(t, frames, func(f Frame) bool { return f.Viewport.TranslateX() == 146 })

	s.Resize(500, 300)
	f = waitFrame(t, frames, func(f Frame) bool { return f.Image.Bounds().Dx() == 500 })
	if f.Viewport.TranslateX() != 146 {
		t.Fatalf("resize should not refit the same model, got %v", f.Viewport.TranslateX())
	}

	s.Deliver(ctx, FetchResult{Err: errors.New("HTTP 503")})
	select {
	case err := <-errs:
		if err.Error() != "HTTP 503" {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected error notification")
	}
	if s.Model() != model {
		t.Fatalf("failed fetch must keep the current model")
	}
}

func TestScreenLastCompletedFetchWins(t *testing.T) {
	gate := make(chan *MapModel)
	frames := make(chan Frame, 128)
	s := NewScreen(func(ctx context.Context) (*MapModel, error) {
		return <-gate, nil
	}, ScreenOptions{OnFrame: func(f Frame) { frames <- f }})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	s.Resize(100, 100)

	first := floorModel(2, 2, UnknownPose, UnknownPose)
	second := floorModel(3, 3, UnknownPose, UnknownPose)
	s.Refresh(ctx)
	s.Refresh(ctx)

	gate <- second
	waitFrame(t, frames, func(f Frame) bool { return f.Model == second })
	gate <- first
	waitFrame(t, frames, func(f Frame) bool { return f.Model == first })

	if s.Model() != first {
		t.Fatalf("expected the last completed fetch to be installed")
	}
}

func TestScreenDefersFitUntilSized(t *testing.T) {
	frames := make(chan Frame, 16)
	s := NewScreen(nil, ScreenOptions{OnFrame: func(f Frame) { frames <- f }})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	model := floorModel(10, 10, UnknownPose, UnknownPose)
	s.Deliver(ctx, FetchResult{Model: model})
	s.Resize(160, 80)

	f := waitFrame(t, frames, func(f Frame) bool { return f.Model == model })
	// min(160/80, 80/80) * 0.9
	if f.Viewport.Scale() != 0.9 {
		t.Fatalf("expected deferred fit, scale %v", f.Viewport.Scale())
	}
}

func TestScreenRunStops(t *testing.T) {
	s := NewScreen(nil, ScreenOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	// Sends after shutdown return instead of blocking.
	s.Resize(10, 10)
	s.Input(Event{Kind: PointerDown})
}
