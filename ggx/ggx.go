// Package ggx crops through the gogpu/gg 2D canvas: the polygon becomes the
// canvas clip path and the source is drawn into it. gg picks a GPU
// accelerator when one is registered and falls back to its CPU rasterizer
// otherwise.
package ggx

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gg"
	"go.uber.org/zap"

	"github.com/sebnyberg/polycrop"
	"github.com/sebnyberg/polycrop/geom"
	"github.com/sebnyberg/polycrop/imgbuf"
)

var _ polycrop.Cropper = new(Cropper)

// Cropper caches the gg copy of the last source, so repeated crops of the
// same image skip the conversion.
type Cropper struct {
	mtx       sync.Mutex
	maxPixels int
	last      *imgbuf.Buffer
	lastBuf   *gg.ImageBuf
}

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
	if c.last != src {
		c.last, c.lastBuf = src, gg.ImageBufFromImage(src.Image())
	}

	dc := gg.NewContext(r.Dx(), r.Dy())
	defer dc.Close()

	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	dc.SetFillRule(gg.FillRuleNonZero)
	dc.MoveTo(poly[0].X-ox, poly[0].Y-oy)
	for _, p := range poly[1:] {
		dc.LineTo(p.X-ox, p.Y-oy)
	}
	dc.ClosePath()
	dc.Clip()
	dc.DrawImageEx(c.lastBuf, gg.DrawImageOptions{
		X:             -ox,
		Y:             -oy,
		Interpolation: gg.InterpNearest,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	})

	polycrop.Logger().Debug("ggx crop", zap.Stringer("region", r))
	buf, err := imgbuf.FromImage(dc.Image())
	if err != nil {
		return nil, fmt.Errorf("wrap crop result err, %w", err)
	}
	return buf, nil
}
