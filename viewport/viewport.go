// Package viewport maintains the mapping between the scene (the container the
// user clicks in) and the local coordinate space of the displayed image
// under fit-to-container, wheel zoom, pinch zoom and pan.
package viewport

import (
	"math"

	"github.com/sebnyberg/polycrop/geom"
)

const (
	DefaultMargin   = 10
	DefaultMinScale = 0.01
	DefaultMaxScale = 64

	wheelOut      = 0.9
	wheelIn       = 1.1
	minPinchRatio = 0.1
)

// Option configures a Viewport.
type Option func(*Viewport)

// WithMargin sets the padding, in image pixels, added to each image
// dimension when fitting it to the container.
func WithMargin(m float64) Option {
	return func(v *Viewport) {
		if m >= 0 {
			v.margin = m
		}
	}
}

// WithScaleLimits bounds the scale reachable through zooming.
func WithScaleLimits(min, max float64) Option {
	return func(v *Viewport) {
		if min > 0 && max >= min {
			v.minScale, v.maxScale = min, max
		}
	}
}

// Viewport is not safe for concurrent use; it belongs to the goroutine that
// dispatches UI events.
type Viewport struct {
	imgW, imgH   int
	contW, contH int
	t            geom.Transform
	ready        bool

	margin             float64
	minScale, maxScale float64
	handlesDisabled    bool

	pinch *pinchState
}

type pinchState struct {
	dist float64
	t    geom.Transform
}

// New creates a viewport for an image of the given natural size. Until the
// first valid OnResize the transform is the identity.
func New(imageW, imageH int, opts ...Option) *Viewport {
	v := &Viewport{
		imgW:     imageW,
		imgH:     imageH,
		t:        geom.Identity(),
		margin:   DefaultMargin,
		minScale: DefaultMinScale,
		maxScale: DefaultMaxScale,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Transform returns the current local-to-scene transform.
func (v *Viewport) Transform() geom.Transform { return v.t }

// Ready reports whether a valid container size has been applied.
func (v *Viewport) Ready() bool { return v.ready }

// Container returns the last valid container size.
func (v *Viewport) Container() (w, h int) { return v.contW, v.contH }

// ToLocal maps a scene point into image-local coordinates.
func (v *Viewport) ToLocal(p geom.Point) geom.Point { return v.t.ToLocal(p) }

// ToScene maps an image-local point into scene coordinates.
func (v *Viewport) ToScene(p geom.Point) geom.Point { return v.t.ToScene(p) }

// SetImageSize replaces the image dimensions, e.g. after a new capture, and
// refits to the current container when one is known.
func (v *Viewport) SetImageSize(w, h int) bool {
	v.imgW, v.imgH = w, h
	if v.contW > 0 && v.contH > 0 {
		return v.OnResize(v.contW, v.contH)
	}
	return false
}

// OnResize fits the image into a container of the given size: the longer
// side fits with a margin, the image is centered, and the fit scale never
// exceeds 1. If either the container or the image has a zero dimension the
// call is a no-op and false is returned.
func (v *Viewport) OnResize(containerW, containerH int) bool {
	if containerW <= 0 || containerH <= 0 || v.imgW <= 0 || v.imgH <= 0 {
		return false
	}
	cw, ch := float64(containerW), float64(containerH)
	iw, ih := float64(v.imgW), float64(v.imgH)
	scale := math.Min(math.Min(cw/(iw+v.margin), ch/(ih+v.margin)), 1)
	v.t = geom.Transform{
		Scale:  scale,
		Offset: geom.Pt((cw-iw*scale)/2, (ch-ih*scale)/2),
	}
	v.contW, v.contH = containerW, containerH
	v.ready = true
	v.pinch = nil
	return true
}

// ZoomAt multiplies the scale by factor, keeping the image point under at
// visually fixed. Non-positive factors are ignored.
func (v *Viewport) ZoomAt(at geom.Point, factor float64) {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return
	}
	v.zoomTo(v.t, at, v.t.Scale*factor)
}

func (v *Viewport) zoomTo(from geom.Transform, at geom.Point, scale float64) {
	scale = math.Max(v.minScale, math.Min(v.maxScale, scale))
	v.t = from.ZoomAt(at, scale)
}

// Wheel zooms out for a positive deltaY and in otherwise, anchored at the
// pointer position.
func (v *Viewport) Wheel(deltaY float64, at geom.Point) {
	if deltaY > 0 {
		v.ZoomAt(at, wheelOut)
		return
	}
	v.ZoomAt(at, wheelIn)
}

// PinchStart records the initial two-finger distance.
func (v *Viewport) PinchStart(a, b geom.Point) {
	d := a.Dist(b)
	if d == 0 {
		v.pinch = nil
		return
	}
	v.pinch = &pinchState{dist: d, t: v.t}
}

// PinchMove rescales relative to the transform at PinchStart by the ratio of
// the current to the initial finger distance, anchored at the midpoint of
// the two touches. The ratio never drops below 0.1.
func (v *Viewport) PinchMove(a, b geom.Point) {
	if v.pinch == nil {
		return
	}
	ratio := math.Max(a.Dist(b)/v.pinch.dist, minPinchRatio)
	v.zoomTo(v.t, a.Mid(b), v.pinch.t.Scale*ratio)
}

// PinchEnd ends the current gesture.
func (v *Viewport) PinchEnd() { v.pinch = nil }

// Pinching reports whether a pinch gesture is in progress.
func (v *Viewport) Pinching() bool { return v.pinch != nil }

// Pan moves the image by d scene units. Ignored while handles are disabled.
func (v *Viewport) Pan(d geom.Point) bool {
	if v.handlesDisabled {
		return false
	}
	v.t = v.t.Translate(d)
	return true
}

// SetHandlesEnabled toggles the move/resize handles of the image. Polygon
// drawing disables them so that clicks place points instead of dragging.
func (v *Viewport) SetHandlesEnabled(enabled bool) {
	v.handlesDisabled = !enabled
}

// HandlesEnabled reports whether Pan is currently allowed.
func (v *Viewport) HandlesEnabled() bool { return !v.handlesDisabled }
