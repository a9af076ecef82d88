package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go"
	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"

	"github.com/sebnyberg/polycrop/bmpx"
	"github.com/sebnyberg/polycrop/imgbuf"
)

// ErrOutside is returned by RequestWindow when the window misses the image.
var ErrOutside = errors.New("source: window outside image")

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Encoding is how an image file is stored on disk.
type Encoding int

const (
	Plain Encoding = iota
	// Zstd is a zstd stream, read front to back.
	Zstd
	// ZstdSeekable is zstd in the seekable format: independent frames plus a
	// seek table, so readers can skip without decompressing.
	ZstdSeekable
)

func (e Encoding) String() string {
	switch e {
	case Plain:
		return "plain"
	case Zstd:
		return "zstd"
	case ZstdSeekable:
		return "zstd-seekable"
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// File reads an image from disk. Zstd compressed files, seekable or not, are
// recognized by their magic bytes and decompressed on the fly.
type File struct {
	Path string
}

func (f File) RequestImage(ctx context.Context) (*imgbuf.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := f.open()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	buf, err := imgbuf.Decode(s)
	if err != nil {
		return nil, notImage(fmt.Errorf("decode %q err, %w", f.Path, err))
	}
	return buf, nil
}

// Encoding reports how the file is stored.
func (f File) Encoding() (Encoding, error) {
	s, err := f.open()
	if err != nil {
		return Plain, err
	}
	defer s.Close()
	return s.enc, nil
}

// RequestWindow returns only the part of the image inside r, together with
// the position of that part in the full image. Uncompressed bottom-up BMPs
// are windowed without decoding the rest, seeking past skipped rows when the
// file is plain or seekable zstd. Other images are decoded in full and cut.
func (f File) RequestWindow(ctx context.Context, r image.Rectangle) (*imgbuf.Buffer, image.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, image.Point{}, err
	}
	buf, at, err := f.bmpWindow(r)
	if err == nil {
		return buf, at, nil
	}
	if !errors.Is(err, bmpx.ErrUnsupported) {
		return nil, image.Point{}, err
	}

	full, err := f.RequestImage(ctx)
	if err != nil {
		return nil, image.Point{}, err
	}
	clip := r.Intersect(full.Bounds())
	switch {
	case clip.Empty():
		return nil, image.Point{}, ErrOutside
	case clip == full.Bounds():
		return full, image.Point{}, nil
	}
	buf, err = imgbuf.FromImage(imaging.Crop(full.Image(), clip))
	if err != nil {
		return nil, image.Point{}, err
	}
	return buf, clip.Min, nil
}

// bmpWindow returns bmpx.ErrUnsupported when the file cannot be windowed.
func (f File) bmpWindow(r image.Rectangle) (*imgbuf.Buffer, image.Point, error) {
	s, err := f.open()
	if err != nil {
		return nil, image.Point{}, err
	}
	defer s.Close()
	head, err := s.peek(2)
	if err != nil || !bmpx.IsBMP(head) {
		return nil, image.Point{}, bmpx.ErrUnsupported
	}

	var out bytes.Buffer
	got, err := bmpx.Window(s.Reader, &out, r)
	switch {
	case errors.Is(err, bmpx.ErrOutside):
		return nil, image.Point{}, ErrOutside
	case errors.Is(err, bmpx.ErrUnsupported):
		return nil, image.Point{}, err
	case err != nil:
		return nil, image.Point{}, notImage(fmt.Errorf("window %q err, %w", f.Path, err))
	}
	buf, err := imgbuf.FromBytes(out.Bytes())
	if err != nil {
		return nil, image.Point{}, notImage(err)
	}
	return buf, got.Min, nil
}

// stream is an opened file with any decompression applied. Its Reader is
// an io.Seeker for plain and seekable zstd files.
type stream struct {
	io.Reader
	enc   Encoding
	close func() error
}

func (s *stream) Close() error { return s.close() }

// peek returns the first n bytes without consuming them.
func (s *stream) peek(n int) ([]byte, error) {
	if sk, ok := s.Reader.(io.Seeker); ok {
		b := make([]byte, n)
		_, err := io.ReadFull(s.Reader, b)
		if _, serr := sk.Seek(0, io.SeekStart); serr != nil {
			return nil, serr
		}
		return b, err
	}
	br := bufio.NewReader(s.Reader)
	s.Reader = br
	return br.Peek(n)
}

func (f File) open() (*stream, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, classify(fmt.Errorf("open file %q err, %w", f.Path, err))
	}
	var magic [4]byte
	n, err := io.ReadFull(fh, magic[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		fh.Close()
		return nil, classify(fmt.Errorf("read file %q err, %w", f.Path, err))
	}
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		fh.Close()
		return nil, err
	}
	if n < len(magic) || !bytes.Equal(magic[:], zstdMagic) {
		return &stream{Reader: fh, enc: Plain, close: fh.Close}, nil
	}

	// The seekable format is plain zstd with a trailing seek table, so try it
	// first and fall back to streaming when there is no table.
	dec, err := zstd.NewReader(nil)
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("new zstd decoder err, %w", err)
	}
	if sr, err := seekable.NewReader(fh, dec); err == nil {
		return &stream{Reader: sr, enc: ZstdSeekable, close: func() error {
			err := sr.Close()
			dec.Close()
			return multierr.Append(err, fh.Close())
		}}, nil
	}
	dec.Close()

	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		fh.Close()
		return nil, err
	}
	zr, err := zstd.NewReader(fh)
	if err != nil {
		fh.Close()
		return nil, notImage(fmt.Errorf("zstd reader for %q err, %w", f.Path, err))
	}
	return &stream{Reader: zr, enc: Zstd, close: func() error {
		zr.Close()
		return fh.Close()
	}}, nil
}
