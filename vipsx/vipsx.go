// Package vipsx crops with libvips through govips. The source is loaded from
// its original encoding, the bounding box is cut out by libvips and the
// polygon coverage, scaled by the source alpha, is joined on as the alpha
// band.
//
// libvips is started on first use and stays up for the life of the process;
// call Shutdown before exiting.
package vipsx

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"go.uber.org/zap"

	"github.com/sebnyberg/polycrop"
	"github.com/sebnyberg/polycrop/geom"
	"github.com/sebnyberg/polycrop/imgbuf"
	"github.com/sebnyberg/polycrop/vectorx"
)

var _ polycrop.Cropper = new(Cropper)

var startOnce sync.Once

// Startup initializes libvips, routing its messages to the polycrop logger.
// It is called by NewCropper and only has an effect once.
func Startup() {
	startOnce.Do(func() {
		vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
			l := polycrop.Logger().Named("vips")
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				l.Error(msg, zap.String("domain", domain))
			case vips.LogLevelWarning:
				l.Warn(msg, zap.String("domain", domain))
			default:
				l.Debug(msg, zap.String("domain", domain))
			}
		}, vips.LogLevelWarning)
		vips.Startup(nil)
	})
}

// Shutdown releases libvips. No crop may run afterwards.
func Shutdown() {
	vips.Shutdown()
}

// Cropper keeps the last loaded source in libvips so that repeated crops of
// one image decode it once. Crops are serialized.
type Cropper struct {
	mtx       sync.Mutex
	maxPixels int
	src       *imgbuf.Buffer
	ref       *vips.ImageRef
	cropCount int
}

func NewCropper(maxPixels int) *Cropper {
	Startup()
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
	in := r.Intersect(src.Bounds())
	if in.Empty() {
		// Nothing of the source is covered: the result is all transparent.
		return imgbuf.FromImage(image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy())))
	}

	if err := c.load(src); err != nil {
		return nil, err
	}
	img, err := c.ref.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy source err, %w", err)
	}
	defer img.Close()
	c.cropCount++
	polycrop.Logger().Debug("vipsx crop",
		zap.Int("n", c.cropCount),
		zap.Stringer("region", r),
	)

	if err := img.ExtractArea(in.Min.X, in.Min.Y, in.Dx(), in.Dy()); err != nil {
		return nil, fmt.Errorf("extract area err, %w", err)
	}
	if in != r {
		d := in.Min.Sub(r.Min)
		if err := img.Embed(d.X, d.Y, r.Dx(), r.Dy(), vips.ExtendBlack); err != nil {
			return nil, fmt.Errorf("embed err, %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mask, err := maskImage(poly, r, in, src.Image())
	if err != nil {
		return nil, err
	}
	defer mask.Close()
	if err := img.BandJoin(mask); err != nil {
		return nil, fmt.Errorf("join mask err, %w", err)
	}

	out, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("export png err, %w", err)
	}
	return imgbuf.FromBytes(out)
}

// load decodes src into libvips unless it is the cached source. The cached
// reference is upright three band sRGB; the source alpha is applied by
// maskImage.
func (c *Cropper) load(src *imgbuf.Buffer) error {
	if c.src == src && c.ref != nil {
		return nil
	}
	c.release()

	raw, err := encoded(src)
	if err != nil {
		return err
	}
	ref, err := vips.NewImageFromBuffer(raw)
	if err != nil {
		return fmt.Errorf("load image err, %w", err)
	}
	// imgbuf applies EXIF orientation on decode; local coordinates refer to
	// the rotated image.
	if err := ref.AutoRotate(); err != nil {
		ref.Close()
		return fmt.Errorf("auto rotate err, %w", err)
	}
	if err := ref.ToColorSpace(vips.InterpretationSRGB); err != nil {
		ref.Close()
		return fmt.Errorf("to srgb err, %w", err)
	}
	if ref.HasAlpha() || ref.Bands() > 3 {
		if err := ref.ExtractBand(0, 3); err != nil {
			ref.Close()
			return fmt.Errorf("drop alpha err, %w", err)
		}
	}
	if ref.Width() != src.Width() || ref.Height() != src.Height() {
		ref.Close()
		return fmt.Errorf("libvips sees %dx%d, decoder saw %dx%d",
			ref.Width(), ref.Height(), src.Width(), src.Height())
	}
	c.src, c.ref = src, ref
	return nil
}

// encoded returns bytes libvips can load without optional loaders. Formats
// it may lack, such as BMP, are handed over as PNG.
func encoded(src *imgbuf.Buffer) ([]byte, error) {
	switch src.Format() {
	case "jpeg", "png", "gif", "tiff", "webp":
		return src.Encoded()
	}
	return src.PNG()
}

func (c *Cropper) release() {
	if c.ref != nil {
		c.ref.Close()
	}
	c.src, c.ref = nil, nil
}

// Close drops the cached source.
func (c *Cropper) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.release()
	return nil
}

// maskImage rasterizes the polygon coverage over r into a one band libvips
// image and multiplies it by the alpha of src. Coverage outside in, the part
// of r backed by the source, is cleared.
func maskImage(poly geom.Polygon, r, in image.Rectangle, src image.Image) (*vips.ImageRef, error) {
	m := vectorx.Mask(poly, r)
	valid := in.Sub(r.Min)
	opaque := isOpaque(src)
	sb := src.Bounds()
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := m.PixOffset(x, y)
			switch {
			case m.Pix[i] == 0:
			case !image.Pt(x, y).In(valid):
				m.Pix[i] = 0
			case !opaque:
				_, _, _, a := src.At(sb.Min.X+r.Min.X+x, sb.Min.Y+r.Min.Y+y).RGBA()
				m.Pix[i] = uint8((uint32(m.Pix[i])*(a>>8) + 127) / 255)
			}
		}
	}
	// Encoded as gray so that libvips loads a single band.
	gray := &image.Gray{Pix: m.Pix, Stride: m.Stride, Rect: m.Rect}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("encode mask err, %w", err)
	}
	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load mask err, %w", err)
	}
	return ref, nil
}

func isOpaque(img image.Image) bool {
	o, ok := img.(interface{ Opaque() bool })
	return ok && o.Opaque()
}
