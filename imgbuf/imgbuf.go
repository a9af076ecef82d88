// Package imgbuf provides Buffer, the immutable image handle that is passed
// between acquisition, the crop engine and the host.
package imgbuf

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	// Formats a camera, file picker or scanner may hand us.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels caps the decoded size of an image (16384x16384). Larger images
// are rejected from their header, before any pixel memory is allocated.
const MaxPixels = 16384 * 16384

var (
	ErrNotDataURL = errors.New("imgbuf: not a base64 data URL")
	ErrEmpty      = errors.New("imgbuf: empty image")
	ErrTooLarge   = errors.New("imgbuf: image too large")
)

// Buffer is a decoded raster image plus its natural dimensions. A Buffer is
// never modified after construction: callers must treat Image() as read-only.
//
// When the buffer was decoded from bytes, those bytes and the detected
// format are retained so that backends working on encoded input (libvips)
// can skip a re-encode.
type Buffer struct {
	img    image.Image
	raw    []byte
	format string
}

// Decode reads an encoded image from r. EXIF orientation is applied, so a
// portrait camera shot comes out upright.
func Decode(r io.Reader) (*Buffer, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image err, %w", err)
	}
	return FromBytes(raw)
}

// FromBytes decodes an encoded image held in memory. The Buffer keeps its own
// reference to raw; the caller must not modify it afterwards. Images over
// MaxPixels fail with ErrTooLarge.
func FromBytes(raw []byte) (*Buffer, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image config err, %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrEmpty
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %s is %dx%d", ErrTooLarge, format, cfg.Width, cfg.Height)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s image err, %w", format, err)
	}
	b, err := FromImage(img)
	if err != nil {
		return nil, err
	}
	b.raw = raw
	b.format = format
	return b, nil
}

// FromDataURL decodes a base64 data URL such as the ones produced by
// canvas.toDataURL() or a camera capture widget.
func FromDataURL(s string) (*Buffer, error) {
	payload, err := parseDataURL(s)
	if err != nil {
		return nil, err
	}
	return FromBytes(payload)
}

// FromImage wraps an already decoded image. Images whose bounds do not start
// at the origin are copied so that pixel (0,0) is always the top-left corner.
func FromImage(img image.Image) (*Buffer, error) {
	if img == nil {
		return nil, ErrEmpty
	}
	r := img.Bounds()
	if r.Empty() {
		return nil, ErrEmpty
	}
	if r.Min != (image.Point{}) {
		img = imaging.Clone(img)
	}
	return &Buffer{img: img}, nil
}

// Image returns the decoded image. Its bounds always start at (0,0).
func (b *Buffer) Image() image.Image { return b.img }

// Width returns the natural (unscaled) width in pixels.
func (b *Buffer) Width() int { return b.img.Bounds().Dx() }

// Height returns the natural (unscaled) height in pixels.
func (b *Buffer) Height() int { return b.img.Bounds().Dy() }

// Bounds is image.Rect(0, 0, Width(), Height()).
func (b *Buffer) Bounds() image.Rectangle { return b.img.Bounds() }

// Format returns the format name detected at decode time, or "" for buffers
// built from an image.
func (b *Buffer) Format() string { return b.format }

// Encoded returns the bytes the buffer was decoded from, or a PNG encoding
// when there are none.
func (b *Buffer) Encoded() ([]byte, error) {
	if b.raw != nil {
		return b.raw, nil
	}
	return b.PNG()
}

// PNG encodes the image as PNG.
func (b *Buffer) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.img); err != nil {
		return nil, fmt.Errorf("encode png err, %w", err)
	}
	return buf.Bytes(), nil
}

// WritePNG writes the PNG encoding of the image to w.
func (b *Buffer) WritePNG(w io.Writer) error {
	if err := png.Encode(w, b.img); err != nil {
		return fmt.Errorf("encode png err, %w", err)
	}
	return nil
}

// DataURL encodes the image as a PNG data URL.
func (b *Buffer) DataURL() (string, error) {
	p, err := b.PNG()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(p), nil
}

func parseDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, ErrNotDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, ErrNotDataURL
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	enc := base64.StdEncoding
	if !strings.HasSuffix(payload, "=") && len(payload)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	data, err := enc.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URL payload err, %w", err)
	}
	return data, nil
}
