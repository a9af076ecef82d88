package polycrop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sebnyberg/polycrop/geom"
	"github.com/sebnyberg/polycrop/imgbuf"
	"github.com/sebnyberg/polycrop/polygon"
	"github.com/sebnyberg/polycrop/viewport"
)

// Session is one crop interaction over a single source image.
//
// Viewport and drawing methods are meant to be called from one goroutine,
// normally through Run. Commit may be called from any goroutine: at most one
// crop runs at a time and overlapping requests are dropped.
type Session struct {
	src     *imgbuf.Buffer
	cropper Cropper
	onCrop  func(*imgbuf.Buffer)
	opts    options
	log     *zap.Logger

	view   *viewport.Viewport
	points *polygon.Collector

	// mu guards view and points against a Commit running on another
	// goroutine than the event loop.
	mu       sync.Mutex
	inflight atomic.Bool
	closed   atomic.Bool
	done     chan struct{}
}

// New starts a session over src. Each successful commit passes the result
// to onCrop. The session begins outside polygon mode with an empty path.
func New(src *imgbuf.Buffer, c Cropper, onCrop func(*imgbuf.Buffer), opts ...Option) (*Session, error) {
	if src == nil {
		return nil, imgbuf.ErrEmpty
	}
	if c == nil {
		return nil, errors.New("polycrop: nil cropper")
	}
	if onCrop == nil {
		return nil, errors.New("polycrop: nil crop handler")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}
	s := &Session{
		src:     src,
		cropper: c,
		onCrop:  onCrop,
		opts:    o,
		log:     o.logger.Named("session"),
		view: viewport.New(src.Width(), src.Height(),
			viewport.WithMargin(o.margin),
			viewport.WithScaleLimits(o.minScale, o.maxScale),
		),
		points: polygon.NewCollector(o.maxPoints),
		done:   make(chan struct{}),
	}
	if o.containerW > 0 && o.containerH > 0 {
		s.view.OnResize(o.containerW, o.containerH)
	}
	s.log.Info("session started",
		zap.Int("width", src.Width()),
		zap.Int("height", src.Height()),
		zap.String("format", src.Format()),
	)
	return s, nil
}

// Source returns the image being cropped.
func (s *Session) Source() *imgbuf.Buffer { return s.src }

// Transform returns the current local-to-scene transform.
func (s *Session) Transform() geom.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Transform()
}

// State returns the drawing state.
func (s *Session) State() polygon.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points.State()
}

// PolygonMode reports whether clicks currently place points.
func (s *Session) PolygonMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points.Active()
}

// Points returns the path in scene coordinates.
func (s *Session) Points() geom.Polygon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points.Points()
}

// LocalPoints returns the path mapped into the image's coordinates.
func (s *Session) LocalPoints() geom.Polygon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Transform().PolygonToLocal(s.points.Points())
}

// Resize refits the image to a new container size. Zero or negative sizes
// are ignored and false is returned.
func (s *Session) Resize(w, h int) bool {
	var ok bool
	s.moveView(func(v *viewport.Viewport) { ok = v.OnResize(w, h) })
	return ok
}

// Zoom scales the view by factor around the scene point at.
func (s *Session) Zoom(at geom.Point, factor float64) {
	s.moveView(func(v *viewport.Viewport) { v.ZoomAt(at, factor) })
}

// Wheel applies one mouse wheel step at the pointer position.
func (s *Session) Wheel(deltaY float64, at geom.Point) {
	s.moveView(func(v *viewport.Viewport) { v.Wheel(deltaY, at) })
}

// Pan drags the image by d. It reports false while polygon mode has the
// image handles disabled.
func (s *Session) Pan(d geom.Point) bool {
	var ok bool
	s.moveView(func(v *viewport.Viewport) { ok = v.Pan(d) })
	return ok
}

func (s *Session) PinchStart(a, b geom.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.PinchStart(a, b)
}

func (s *Session) PinchMove(a, b geom.Point) {
	s.moveView(func(v *viewport.Viewport) { v.PinchMove(a, b) })
}

func (s *Session) PinchEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.PinchEnd()
}

// moveView runs fn against the viewport and carries the drawn path along so
// that it keeps covering the same image pixels.
func (s *Session) moveView(fn func(v *viewport.Viewport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.view.Transform()
	fn(s.view)
	after := s.view.Transform()
	if before == after || s.points.Len() == 0 {
		return
	}
	s.points.Map(func(p geom.Point) geom.Point {
		return after.ToScene(before.ToLocal(p))
	})
}

// TogglePolygonMode enters or leaves polygon mode and returns the new mode.
// Entering disables the image's move handles; leaving discards the path
// and restores them.
func (s *Session) TogglePolygonMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.points.Toggle()
	s.view.SetHandlesEnabled(!active)
	s.log.Debug("polygon mode", zap.Bool("active", active))
	return active
}

// PointerDown places a point at the scene position p. Outside polygon mode
// the click is not collected and false is returned.
func (s *Session) PointerDown(p geom.Point) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.points.Add(p)
	if err != nil {
		s.log.Warn("point rejected", zap.Stringer("point", p), zap.Error(err))
	}
	return ok, err
}

// Cancel clears the path without producing a result. Polygon mode stays on.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points.Reset()
}

// Commit closes the current path and crops the source to it. The result is
// handed to the crop handler, after which the path is cleared and the
// session returns to Idle, still in polygon mode.
//
// Commit reports false without error when there is nothing to crop: fewer
// than three points, or another commit still in flight. On failure the
// path is kept so the user can retry, and the error wraps ErrRasterization.
func (s *Session) Commit(ctx context.Context) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	if !s.inflight.CompareAndSwap(false, true) {
		s.log.Debug("commit ignored: already in flight")
		return false, nil
	}
	defer s.inflight.Store(false)

	s.mu.Lock()
	n := s.points.Len()
	gen := s.points.Generation()
	local := s.view.Transform().PolygonToLocal(s.points.Points()).Snap()
	s.mu.Unlock()
	if n < polygon.MinPoints {
		s.log.Debug("commit ignored: not enough points", zap.Int("points", n))
		return false, nil
	}

	start := time.Now()
	res, err := s.crop(ctx, local)
	if err != nil {
		s.log.Warn("crop failed", zap.Int("points", n), zap.Error(err))
		return false, err
	}
	s.log.Debug("crop done",
		zap.Int("points", n),
		zap.Stringer("region", res.Bounds()),
		zap.Duration("took", time.Since(start)),
	)

	// Points placed while the crop ran start the next path. A path that was
	// cancelled or replaced meanwhile is left alone.
	s.mu.Lock()
	if s.points.Generation() == gen {
		s.points.Drop(n)
	}
	s.mu.Unlock()
	s.onCrop(res)
	return true, nil
}

func (s *Session) crop(ctx context.Context, local geom.Polygon) (*imgbuf.Buffer, error) {
	r, err := Region(local, s.opts.maxPixels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRasterization, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRasterization, err)
	}
	res, err := s.cropper.Crop(ctx, s.src, local)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRasterization, err)
	}
	if res == nil || res.Width() != r.Dx() || res.Height() != r.Dy() {
		return nil, fmt.Errorf("%w: backend returned wrong size", ErrRasterization)
	}
	return res, nil
}

// Preview renders the container as the user sees it: the image at the
// current transform with the in-progress path drawn on top. It returns nil
// until the session has a container size.
func (s *Session) Preview() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := s.view.Render(s.src.Image(), s.opts.background)
	if frame == nil {
		return nil
	}
	s.opts.overlay.Draw(frame, s.points.Points())
	return frame
}

// Close ends the session. Pending Run loops return, later calls fail with
// ErrClosed, and a cropper holding resources is closed.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)
	s.mu.Lock()
	s.points.Exit()
	s.view.SetHandlesEnabled(true)
	s.mu.Unlock()

	var err error
	if c, ok := s.cropper.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	s.log.Info("session closed")
	return err
}
