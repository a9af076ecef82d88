package bmpx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
)

const (
	fileHeaderLen   = 14
	infoHeaderLen   = 40
	v4InfoHeaderLen = 108
	v5InfoHeaderLen = 124
	paletteLen      = 256 * 4
)

var errNotBMP = errors.New("bmpx: not a bmp")

// Header is what Window needs to know about a BMP.
type Header struct {
	Width, Height int
	BitsPerPixel  int
	TopDown       bool
	AllowAlpha    bool
	// HeaderBytes holds everything before the pixel data, palette
	// included, so that it can be written back out for a window.
	HeaderBytes []byte
}

func (h Header) Bounds() image.Rectangle {
	return image.Rect(0, 0, h.Width, h.Height)
}

// DecodeHeader reads the file and info headers, and the palette for 8 bit
// images, leaving r at the first pixel row. The accepted layouts follow
// golang.org/x/image/bmp: BITMAPINFOHEADER, V4 or V5 headers, one plane,
// 8, 24 or 32 bits per pixel, no compression.
func DecodeHeader(r io.Reader) (Header, error) {
	var h Header
	var b [fileHeaderLen + v5InfoHeaderLen + paletteLen]byte
	if _, err := io.ReadFull(r, b[:fileHeaderLen+4]); err != nil {
		return h, fmt.Errorf("read file header err, %w", unexpectedEOF(err))
	}
	if string(b[:2]) != "BM" {
		return h, errNotBMP
	}
	le := binary.LittleEndian
	offset := le.Uint32(b[10:14])
	infoLen := le.Uint32(b[14:18])
	if infoLen != infoHeaderLen && infoLen != v4InfoHeaderLen && infoLen != v5InfoHeaderLen {
		return h, fmt.Errorf("%w: info header of %d bytes", ErrUnsupported, infoLen)
	}
	if _, err := io.ReadFull(r, b[fileHeaderLen+4:fileHeaderLen+infoLen]); err != nil {
		return h, fmt.Errorf("read info header err, %w", unexpectedEOF(err))
	}

	h.Width = int(int32(le.Uint32(b[18:22])))
	h.Height = int(int32(le.Uint32(b[22:26])))
	if h.Height < 0 {
		h.Height, h.TopDown = -h.Height, true
	}
	if h.Width < 0 {
		return h, fmt.Errorf("%w: negative width", ErrUnsupported)
	}

	planes, bpp, compression := le.Uint16(b[26:28]), le.Uint16(b[28:30]), le.Uint32(b[30:34])
	// BI_BITFIELDS with the default masks is the same as no compression.
	if compression == 3 && infoLen > infoHeaderLen &&
		le.Uint32(b[54:58]) == 0xff0000 && le.Uint32(b[58:62]) == 0xff00 &&
		le.Uint32(b[62:66]) == 0xff && le.Uint32(b[66:70]) == 0xff000000 {
		compression = 0
	}
	if planes != 1 || compression != 0 {
		return h, fmt.Errorf("%w: planes %d, compression %d", ErrUnsupported, planes, compression)
	}

	want := fileHeaderLen + infoLen
	switch bpp {
	case 8:
		want += paletteLen
	case 24:
	case 32:
		// Only V4 and later headers carry an alpha mask; plain info headers
		// are treated as opaque, as x/image/bmp does.
		h.AllowAlpha = infoLen > infoHeaderLen
	default:
		return h, fmt.Errorf("%w: %d bits per pixel", ErrUnsupported, bpp)
	}
	if offset != want {
		return h, fmt.Errorf("%w: pixel data at %d, expected %d", ErrUnsupported, offset, want)
	}
	if bpp == 8 {
		if _, err := io.ReadFull(r, b[fileHeaderLen+infoLen:offset]); err != nil {
			return h, fmt.Errorf("read palette err, %w", unexpectedEOF(err))
		}
	}
	h.BitsPerPixel = int(bpp)
	h.HeaderBytes = append([]byte(nil), b[:offset]...)
	return h, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// IsBMP reports whether the magic bytes in head start a BMP file.
func IsBMP(head []byte) bool {
	return len(head) >= 2 && head[0] == 'B' && head[1] == 'M'
}
