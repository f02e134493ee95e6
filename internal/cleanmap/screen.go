package cleanmap

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
)

// FetchFunc produces a fresh model, typically by fetching and decoding.
type FetchFunc func(ctx context.Context) (*MapModel, error)

// FetchResult is the outcome of one fetch: a model or an error.
type FetchResult struct {
	Model *MapModel
	Err   error
}

// Frame is one rendered view handed to the host.
type Frame struct {
	Image    *image.RGBA
	Model    *MapModel
	Viewport Viewport
}

// ScreenOptions configures a Screen.
type ScreenOptions struct {
	FocalZoom bool
	OnFrame   func(Frame)
	OnError   func(error)
}

type canvasSize struct{ width, height int }

// Screen presents one model at a time. Run owns the viewport and is the only
// goroutine that renders; fetches run elsewhere and hand their results back.
type Screen struct {
	fetch FetchFunc
	opts  ScreenOptions

	model atomic.Pointer[MapModel]

	events  chan Event
	results chan FetchResult
	resizes chan canvasSize
	done    chan struct{}
	once    sync.Once

	// Owned by Run.
	vp      Viewport
	gesture *Gesture
	size    canvasSize
	fitted  bool
}

func NewScreen(fetch FetchFunc, opts ScreenOptions) *Screen {
	s := &Screen{
		fetch:   fetch,
		opts:    opts,
		events:  make(chan Event, 64),
		results: make(chan FetchResult, 4),
		resizes: make(chan canvasSize, 4),
		done:    make(chan struct{}),
		vp:      DefaultViewport(),
	}
	s.gesture = NewGesture(&s.vp, opts.FocalZoom)
	s.model.Store(EmptyModel())
	return s
}

// Model returns the currently installed model.
func (s *Screen) Model() *MapModel {
	return s.model.Load()
}

// Refresh starts a fetch and returns immediately. Concurrent fetches are not
// cancelled; the one that completes last is installed last.
func (s *Screen) Refresh(ctx context.Context) {
	go func() {
		model, err := s.fetch(ctx)
		s.deliver(ctx, FetchResult{Model: model, Err: err})
	}()
}

// Deliver hands a fetch result to the loop, for hosts that fetch themselves.
func (s *Screen) Deliver(ctx context.Context, result FetchResult) {
	s.deliver(ctx, result)
}

func (s *Screen) deliver(ctx context.Context, result FetchResult) {
	select {
	case s.results <- result:
	case <-s.done:
	case <-ctx.Done():
	}
}

// Input queues a pointer or pinch event.
func (s *Screen) Input(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Resize reports the canvas size. The first non-zero size is the signal
// that a pending fit can run.
func (s *Screen) Resize(width, height int) {
	select {
	case s.resizes <- canvasSize{width: width, height: height}:
	case <-s.done:
	}
}

// Run processes events until ctx is done.
func (s *Screen) Run(ctx context.Context) error {
	defer s.once.Do(func() { close(s.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			if s.gesture.Handle(ev) {
				s.draw()
			}
		case size := <-s.resizes:
			s.size = size
			s.fitIfPending()
			s.draw()
		case result := <-s.results:
			s.install(result)
		}
	}
}

func (s *Screen) install(result FetchResult) {
	if result.Err != nil {
		if s.opts.OnError != nil {
			s.opts.OnError(result.Err)
		}
		return
	}
	model := result.Model
	if model == nil {
		model = EmptyModel()
	}
	s.model.Store(model)
	s.fitted = false
	s.fitIfPending()
	s.draw()
}

func (s *Screen) fitIfPending() {
	if s.fitted || s.size.width <= 0 || s.size.height <= 0 {
		return
	}
	model := s.model.Load()
	if !model.HasData() {
		return
	}
	s.vp.FitGrid(model.Grid(), s.size.width, s.size.height)
	s.fitted = true
}

func (s *Screen) draw() {
	if s.opts.OnFrame == nil || s.size.width <= 0 || s.size.height <= 0 {
		return
	}
	model := s.model.Load()
	s.opts.OnFrame(Frame{
		Image:    RenderImage(model, s.vp, s.size.width, s.size.height),
		Model:    model,
		Viewport: s.vp,
	})
}
