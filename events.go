package polycrop

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sebnyberg/polycrop/geom"
)

// Event is a UI input for a Session. Hosts translate their toolkit's
// events into these and feed them to Run.
type Event interface {
	apply(ctx context.Context, s *Session) error
}

// PointerDown is a primary click or tap at a scene position.
type PointerDown struct{ At geom.Point }

// Resize reports a new container size.
type Resize struct{ W, H int }

// Wheel is one mouse wheel step at the pointer position.
type Wheel struct {
	DeltaY float64
	At     geom.Point
}

// Zoom scales the view by Factor around At.
type Zoom struct {
	At     geom.Point
	Factor float64
}

// Pan drags the image by D scene units.
type Pan struct{ D geom.Point }

// PinchStart, PinchMove and PinchEnd carry a two-finger gesture.
type PinchStart struct{ A, B geom.Point }

type PinchMove struct{ A, B geom.Point }

type PinchEnd struct{}

// TogglePolygon flips polygon mode.
type TogglePolygon struct{}

// Cancel discards the current path.
type Cancel struct{}

// Commit requests a crop of the current path.
type Commit struct{}

func (e PointerDown) apply(_ context.Context, s *Session) error {
	_, err := s.PointerDown(e.At)
	return err
}

func (e Resize) apply(_ context.Context, s *Session) error {
	s.Resize(e.W, e.H)
	return nil
}

func (e Wheel) apply(_ context.Context, s *Session) error {
	s.Wheel(e.DeltaY, e.At)
	return nil
}

func (e Zoom) apply(_ context.Context, s *Session) error {
	s.Zoom(e.At, e.Factor)
	return nil
}

func (e Pan) apply(_ context.Context, s *Session) error {
	s.Pan(e.D)
	return nil
}

func (e PinchStart) apply(_ context.Context, s *Session) error {
	s.PinchStart(e.A, e.B)
	return nil
}

func (e PinchMove) apply(_ context.Context, s *Session) error {
	s.PinchMove(e.A, e.B)
	return nil
}

func (PinchEnd) apply(_ context.Context, s *Session) error {
	s.PinchEnd()
	return nil
}

func (TogglePolygon) apply(_ context.Context, s *Session) error {
	s.TogglePolygonMode()
	return nil
}

func (Cancel) apply(_ context.Context, s *Session) error {
	s.Cancel()
	return nil
}

func (Commit) apply(ctx context.Context, s *Session) error {
	_, err := s.Commit(ctx)
	return err
}

// Run dispatches events and commit signals until ctx is done, events is
// closed or the session is closed. A nil commit signal means commits only
// arrive as Commit events.
//
// Errors from individual events do not stop the loop; they go to the
// handler set with WithErrorHandler. Run returns ctx.Err() on
// cancellation and nil otherwise.
func (s *Session) Run(ctx context.Context, events <-chan Event, commit *Signal) error {
	if s.closed.Load() {
		return ErrClosed
	}
	requests := make(chan struct{}, 1)
	if commit != nil {
		unsubscribe := commit.Subscribe(func() {
			// Emits during a crop collapse into one pending request.
			select {
			case requests <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.report(ev.apply(ctx, s))
		case <-requests:
			s.report(Commit{}.apply(ctx, s))
		}
	}
}

func (s *Session) report(err error) {
	if err == nil || errors.Is(err, ErrClosed) {
		return
	}
	if s.opts.onError != nil {
		s.opts.onError(err)
		return
	}
	s.log.Error("event failed", zap.Error(err))
}
