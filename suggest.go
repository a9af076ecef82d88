package polycrop

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"
	"go.uber.org/zap"

	"github.com/sebnyberg/polycrop/geom"
)

var ErrBadAspect = errors.New("polycrop: aspect ratio must be positive")

// Suggest proposes a starting region: the most interesting rectangle of the
// source with the aspect ratio aspectW:aspectH, found by content analysis.
// The rectangle replaces the current path as a four point polygon and
// polygon mode is entered, so the user can commit it as is or cancel and
// draw their own.
func (s *Session) Suggest(ctx context.Context, aspectW, aspectH int) (geom.Polygon, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if aspectW <= 0 || aspectH <= 0 {
		return nil, ErrBadAspect
	}
	r, err := suggestRect(ctx, s.src.Image(), aspectW, aspectH)
	if err != nil {
		return nil, err
	}
	s.log.Debug("suggested region", zap.Stringer("region", r))

	local := geom.Polygon{
		geom.Pt(float64(r.Min.X), float64(r.Min.Y)),
		geom.Pt(float64(r.Max.X), float64(r.Min.Y)),
		geom.Pt(float64(r.Max.X), float64(r.Max.Y)),
		geom.Pt(float64(r.Min.X), float64(r.Max.Y)),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	scene := s.view.Transform().PolygonToScene(local)
	if err := s.points.Set(scene); err != nil {
		return nil, err
	}
	s.view.SetHandlesEnabled(false)
	return scene, nil
}

// suggestRect runs the analyzer off the caller's goroutine so that a
// cancelled ctx returns promptly. The analysis itself cannot be stopped.
func suggestRect(ctx context.Context, img image.Image, w, h int) (image.Rectangle, error) {
	analyzer := smartcrop.NewAnalyzer(resizer{filter: imaging.Linear})

	type result struct {
		r   image.Rectangle
		err error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := analyzer.FindBestCrop(img, w, h)
		ch <- result{r, err}
	}()

	select {
	case <-ctx.Done():
		return image.Rectangle{}, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return image.Rectangle{}, fmt.Errorf("find best crop err, %w", res.err)
		}
		return res.r.Intersect(img.Bounds()).Sub(img.Bounds().Min), nil
	}
}

// resizer adapts imaging to the analyzer's downscaling hook.
type resizer struct {
	filter imaging.ResampleFilter
}

func (r resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.filter)
}
