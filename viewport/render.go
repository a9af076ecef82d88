package viewport

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/sebnyberg/polycrop/geom"
)

// Render draws src at the current transform onto a container-sized frame
// filled with bg. Only the part of src that is visible in the container is
// resampled, with a Lanczos filter. Render returns nil until the viewport
// has a container size.
func (v *Viewport) Render(src image.Image, bg color.Color) *image.NRGBA {
	if !v.ready {
		return nil
	}
	frame := imaging.New(v.contW, v.contH, bg)

	// Local rectangle visible through the container, snapped outwards to
	// whole source pixels.
	tl := v.t.ToLocal(geom.Pt(0, 0))
	br := v.t.ToLocal(geom.Pt(float64(v.contW), float64(v.contH)))
	visible := geom.Rect{Min: tl, Max: br}.Pixels().Intersect(src.Bounds())
	if visible.Empty() {
		return frame
	}

	origin := v.t.ToScene(geom.Pt(float64(visible.Min.X), float64(visible.Min.Y)))
	pos := image.Pt(int(math.Round(origin.X)), int(math.Round(origin.Y)))
	w := int(math.Round(float64(visible.Dx()) * v.t.Scale))
	h := int(math.Round(float64(visible.Dy()) * v.t.Scale))
	if w <= 0 || h <= 0 {
		return frame
	}

	part := imaging.Crop(src, visible)
	if w != visible.Dx() || h != visible.Dy() {
		part = imaging.Resize(part, w, h, imaging.Lanczos)
	}
	return imaging.Overlay(frame, part, pos, 1)
}
