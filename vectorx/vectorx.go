// Package vectorx crops with the pure Go scanline rasterizer from
// golang.org/x/image/vector. It needs no cgo and is the default backend.
package vectorx

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/vector"

	"github.com/sebnyberg/polycrop"
	"github.com/sebnyberg/polycrop/geom"
	"github.com/sebnyberg/polycrop/imgbuf"
)

var _ polycrop.Cropper = new(Cropper)

// Cropper reuses one rasterizer between crops. It is safe for concurrent
// use; crops are serialized.
type Cropper struct {
	mtx       sync.Mutex
	z         *vector.Rasterizer
	maxPixels int
	cropCount int
}

// NewCropper returns a cropper that refuses results larger than maxPixels.
// Zero disables the cap.
func NewCropper(maxPixels int) *Cropper {
	return &Cropper{maxPixels: maxPixels}
}

func (c *Cropper) Crop(ctx context.Context, src *imgbuf.Buffer, poly geom.Polygon) (*imgbuf.Buffer, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	r, err := polycrop.Region(poly, c.maxPixels)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.z == nil {
		c.z = vector.NewRasterizer(r.Dx(), r.Dy())
	} else {
		c.z.Reset(r.Dx(), r.Dy())
	}
	c.cropCount++
	polycrop.Logger().Debug("vectorx crop",
		zap.Int("n", c.cropCount),
		zap.Stringer("region", r),
	)
	return crop(c.z, src.Image(), poly, r)
}

// Crop clips src to poly with a fresh rasterizer. See Cropper.Crop.
func Crop(src *imgbuf.Buffer, poly geom.Polygon, maxPixels int) (*imgbuf.Buffer, error) {
	r, err := polycrop.Region(poly, maxPixels)
	if err != nil {
		return nil, err
	}
	return crop(vector.NewRasterizer(r.Dx(), r.Dy()), src.Image(), poly, r)
}

func crop(z *vector.Rasterizer, src image.Image, poly geom.Polygon, r image.Rectangle) (*imgbuf.Buffer, error) {
	addPath(z, poly, r.Min)
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	// Src keeps fully covered pixels identical to the source. Reads past
	// the source bounds yield transparent black.
	z.DrawOp = draw.Src
	z.Draw(dst, dst.Bounds(), src, r.Min.Add(src.Bounds().Min))

	buf, err := imgbuf.FromImage(dst)
	if err != nil {
		return nil, fmt.Errorf("wrap crop result err, %w", err)
	}
	return buf, nil
}

// Mask returns the coverage of poly over r: 0xff inside, 0 outside and
// anti-aliased in between. Pixel (0,0) of the mask is r.Min in poly's
// coordinates.
func Mask(poly geom.Polygon, r image.Rectangle) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, r.Dx(), r.Dy()))
	if r.Empty() || len(poly) < 3 {
		return mask
	}
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	addPath(z, poly, r.Min)
	z.DrawOp = draw.Src
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

// addPath adds the closed polygon to z, shifted so that origin lands on the
// rasterizer's (0,0). Coverage is accumulated by absolute winding, which
// fills self-intersecting paths by the non-zero rule.
func addPath(z *vector.Rasterizer, poly geom.Polygon, origin image.Point) {
	ox, oy := float64(origin.X), float64(origin.Y)
	z.MoveTo(float32(poly[0].X-ox), float32(poly[0].Y-oy))
	for _, p := range poly[1:] {
		z.LineTo(float32(p.X-ox), float32(p.Y-oy))
	}
	z.ClosePath()
}
