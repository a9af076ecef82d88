package polycrop

import (
	"image/color"

	"go.uber.org/zap"

	"github.com/sebnyberg/polycrop/polygon"
	"github.com/sebnyberg/polycrop/viewport"
)

type options struct {
	maxPoints  int
	maxPixels  int
	margin     float64
	minScale   float64
	maxScale   float64
	containerW int
	containerH int
	onError    func(error)
	logger     *zap.Logger
	overlay    polygon.Overlay
	background color.Color
}

func defaultOptions() options {
	return options{
		maxPoints:  polygon.DefaultMaxPoints,
		maxPixels:  DefaultMaxPixels,
		margin:     viewport.DefaultMargin,
		minScale:   viewport.DefaultMinScale,
		maxScale:   viewport.DefaultMaxScale,
		overlay:    polygon.DefaultOverlay(),
		background: color.Transparent,
	}
}

// Option configures a Session.
type Option func(*options)

// WithMaxPoints caps the number of points in a path. Non-positive values
// are ignored.
func WithMaxPoints(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPoints = n
		}
	}
}

// WithMaxPixels caps the area of a crop result. Zero disables the cap.
func WithMaxPixels(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxPixels = n
		}
	}
}

// WithMargin sets the fit margin used when the container is resized.
func WithMargin(m float64) Option {
	return func(o *options) {
		if m >= 0 {
			o.margin = m
		}
	}
}

// WithScaleLimits bounds the zoom range.
func WithScaleLimits(min, max float64) Option {
	return func(o *options) {
		if min > 0 && max >= min {
			o.minScale, o.maxScale = min, max
		}
	}
}

// WithContainer applies an initial container size, as if Resize had been
// called right after New.
func WithContainer(w, h int) Option {
	return func(o *options) {
		o.containerW, o.containerH = w, h
	}
}

// WithErrorHandler registers a callback for errors raised while Run
// dispatches events and commit requests. Errors from direct method calls are
// returned to the caller instead.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithLogger overrides the package logger for one session.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithOverlay sets how the in-progress path is drawn by Preview.
func WithOverlay(ov polygon.Overlay) Option {
	return func(o *options) {
		o.overlay = ov
	}
}

// WithBackground sets the color Preview paints outside the image.
func WithBackground(c color.Color) Option {
	return func(o *options) {
		if c != nil {
			o.background = c
		}
	}
}
