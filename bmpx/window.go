// Package bmpx cuts a rectangular window out of an uncompressed BMP without
// decoding it. Only the header, the palette and the rows inside the window
// are read; everything else is skipped, by seeking when the source allows it.
//
// Polygon crops of very large BMP sources use it to bring the polygon's
// bounding box into memory instead of the whole image.
package bmpx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
)

// ErrUnsupported is returned for BMP variants that cannot be windowed:
// top-down row order, alpha, compression or unusual headers. Callers fall
// back to a full decode.
var ErrUnsupported = errors.New("bmpx: unsupported bmp")

// ErrOutside is returned when the window does not overlap the image.
var ErrOutside = errors.New("bmpx: window outside image")

// Window writes the part of the BMP in src that lies inside region to dst,
// as a BMP of its own. region is clipped to the image and the clipped
// rectangle, in source coordinates, is returned.
//
// If src is an io.Seeker, rows and columns outside the window are skipped
// with Seek; otherwise they are read and discarded. Memory use is one row.
func Window(src io.Reader, dst io.Writer, region image.Rectangle) (image.Rectangle, error) {
	hdr, err := DecodeHeader(src)
	if err != nil {
		return image.Rectangle{}, err
	}
	if hdr.TopDown || hdr.AllowAlpha {
		return image.Rectangle{}, ErrUnsupported
	}
	region = hdr.Bounds().Intersect(region)
	if region.Empty() {
		return image.Rectangle{}, ErrOutside
	}

	// The header is reused with the new size fields.
	out := append([]byte(nil), hdr.HeaderBytes...)
	bpp := hdr.BitsPerPixel / 8
	outRow := rowBytes(region.Dx(), hdr.BitsPerPixel)
	binary.LittleEndian.PutUint32(out[2:6], uint32(len(out)+outRow*region.Dy()))
	binary.LittleEndian.PutUint32(out[18:22], uint32(region.Dx()))
	binary.LittleEndian.PutUint32(out[22:26], uint32(region.Dy()))
	binary.LittleEndian.PutUint32(out[34:38], uint32(outRow*region.Dy()))
	if _, err := dst.Write(out); err != nil {
		return image.Rectangle{}, fmt.Errorf("write header err, %w", err)
	}

	skip := skipper(src)
	inRow := rowBytes(hdr.Width, hdr.BitsPerPixel)

	// Rows are stored bottom-up, so the window starts after the rows below
	// it.
	if err := skip(inRow * (hdr.Height - region.Max.Y)); err != nil {
		return image.Rectangle{}, fmt.Errorf("skip rows err, %w", err)
	}
	left := bpp * region.Min.X
	mid := bpp * region.Dx()
	right := inRow - left - mid
	row := make([]byte, outRow)
	for y := 0; y < region.Dy(); y++ {
		if err := skip(left); err != nil {
			return image.Rectangle{}, fmt.Errorf("skip row start err, %w", err)
		}
		// Bytes past mid stay zero: they are the row padding.
		if _, err := io.ReadFull(src, row[:mid]); err != nil {
			return image.Rectangle{}, fmt.Errorf("read row err, %w", err)
		}
		if _, err := dst.Write(row); err != nil {
			return image.Rectangle{}, fmt.Errorf("write row err, %w", err)
		}
		if y < region.Dy()-1 {
			if err := skip(right); err != nil {
				return image.Rectangle{}, fmt.Errorf("skip row end err, %w", err)
			}
		}
	}
	return region, nil
}

// rowBytes is the stored size of one row: rows are padded to 4 bytes.
func rowBytes(width, bitsPerPixel int) int {
	return ((width*bitsPerPixel + 31) / 32) * 4
}

func skipper(r io.Reader) func(n int) error {
	if s, ok := r.(io.Seeker); ok {
		return func(n int) error {
			_, err := s.Seek(int64(n), io.SeekCurrent)
			return err
		}
	}
	return func(n int) error {
		_, err := io.CopyN(io.Discard, r, int64(n))
		return err
	}
}
