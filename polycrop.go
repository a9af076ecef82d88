// Package polycrop cuts an arbitrary polygon out of an image.
//
// A Session owns one source image, the viewport it is displayed through and
// the polygon the user is drawing. Points arrive in scene (display)
// coordinates; on commit they are mapped back into the image's own
// coordinate space and handed to a Cropper, which rasterizes the enclosed
// pixels into a new image sized to the polygon's bounding box. Everything
// outside the polygon is transparent.
//
// Croppers live in their own packages (vectorx, ggx, vipsx); one is picked
// per deployment.
package polycrop

import (
	"context"
	"errors"
	"image"

	"github.com/sebnyberg/polycrop/geom"
	"github.com/sebnyberg/polycrop/imgbuf"
)

// DefaultMaxPixels caps the area of a crop result (8192x8192).
const DefaultMaxPixels = 8192 * 8192

var (
	// ErrRasterization wraps every failure to produce a crop result.
	ErrRasterization = errors.New("polycrop: rasterization failed")
	// ErrCanvasTooLarge is returned when the result would exceed the pixel cap.
	ErrCanvasTooLarge = errors.New("polycrop: crop region too large")
	// ErrEmptyRegion is returned for polygons whose bounding box has no area.
	ErrEmptyRegion = errors.New("polycrop: crop region is empty")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("polycrop: session closed")
)

type Cropper interface {
	// Crop clips src to poly, given in src's local pixel coordinates, and
	// returns a new buffer covering exactly the polygon's pixel bounding
	// box. Pixels outside the polygon, or outside src, are transparent.
	Crop(ctx context.Context, src *imgbuf.Buffer, poly geom.Polygon) (*imgbuf.Buffer, error)
}

// Region returns the output rectangle of a crop: the pixel bounding box of
// the local polygon. Fewer than three points, or a box with zero width or
// height, is ErrEmptyRegion. A maxPixels <= 0 disables the size cap.
func Region(poly geom.Polygon, maxPixels int) (image.Rectangle, error) {
	r := poly.PixelBounds()
	if len(poly) < 3 || r.Empty() {
		return r, ErrEmptyRegion
	}
	if maxPixels > 0 && int64(r.Dx())*int64(r.Dy()) > int64(maxPixels) {
		return r, ErrCanvasTooLarge
	}
	return r, nil
}
