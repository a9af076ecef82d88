// Package source acquires the image a crop session starts from.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/sebnyberg/polycrop/imgbuf"
)

// Source hands out one image per request.
type Source interface {
	RequestImage(ctx context.Context) (*imgbuf.Buffer, error)
}

// Kind classifies acquisition failures.
type Kind int

const (
	// PermissionDenied: the host refused access to the source.
	PermissionDenied Kind = iota + 1
	// NoSource: nothing to read from.
	NoSource
	// NotImage: data was read but could not be decoded as an image.
	NotImage
)

func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	case NoSource:
		return "no source"
	case NotImage:
		return "not an image"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// AcquisitionError reports why an image could not be obtained. It matches
// the Err* kind sentinels with errors.Is.
type AcquisitionError struct {
	Kind Kind
	Err  error
}

var (
	ErrPermissionDenied = &AcquisitionError{Kind: PermissionDenied}
	ErrNoSource         = &AcquisitionError{Kind: NoSource}
	ErrNotImage         = &AcquisitionError{Kind: NotImage}
)

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return "acquire image: " + e.Kind.String()
	}
	return fmt.Sprintf("acquire image: %v: %v", e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

func (e *AcquisitionError) Is(target error) bool {
	t, ok := target.(*AcquisitionError)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// classify maps an open or read error to its acquisition kind.
func classify(err error) error {
	var ae *AcquisitionError
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, fs.ErrPermission):
		return &AcquisitionError{Kind: PermissionDenied, Err: err}
	case errors.Is(err, fs.ErrNotExist):
		return &AcquisitionError{Kind: NoSource, Err: err}
	}
	return err
}

func notImage(err error) error {
	return &AcquisitionError{Kind: NotImage, Err: err}
}
