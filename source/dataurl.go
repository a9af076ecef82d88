package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sebnyberg/polycrop/imgbuf"
)

// DataURL reads a single base64 image data URL, such as a camera capture
// piped in by a browser host, from R.
type DataURL struct {
	R io.Reader
}

func (d DataURL) RequestImage(ctx context.Context) (*imgbuf.Buffer, error) {
	if d.R == nil {
		return nil, ErrNoSource
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(d.R)
	if err != nil {
		return nil, classify(fmt.Errorf("read data url err, %w", err))
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return nil, &AcquisitionError{Kind: NoSource, Err: io.ErrUnexpectedEOF}
	}
	buf, err := imgbuf.FromDataURL(s)
	if err != nil {
		return nil, notImage(err)
	}
	return buf, nil
}
