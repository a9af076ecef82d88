package polycrop_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sebnyberg/polycrop"
	"github.com/sebnyberg/polycrop/geom"
	"github.com/sebnyberg/polycrop/imgbuf"
	"github.com/sebnyberg/polycrop/polygon"
	"github.com/sebnyberg/polycrop/vectorx"
)

func randRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				uint8(rand.Intn(256)), uint8(rand.Intn(256)), uint8(rand.Intn(256)), 0xff,
			})
		}
	}
	return img
}

type cropFunc func(ctx context.Context, src *imgbuf.Buffer, poly geom.Polygon) (*imgbuf.Buffer, error)

func (f cropFunc) Crop(ctx context.Context, src *imgbuf.Buffer, poly geom.Polygon) (*imgbuf.Buffer, error) {
	return f(ctx, src, poly)
}

type closingCropper struct {
	polycrop.Cropper
	closed bool
}

func (c *closingCropper) Close() error {
	c.closed = true
	return errors.New("close failed")
}

// results collects crop results handed to the session callback.
type results struct {
	mu  sync.Mutex
	got []*imgbuf.Buffer
}

func (r *results) add(b *imgbuf.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, b)
}

func (r *results) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *results) last() *imgbuf.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[len(r.got)-1]
}

func newSession(t *testing.T, img image.Image, c polycrop.Cropper, opts ...polycrop.Option) (*polycrop.Session, *results) {
	t.Helper()
	src, err := imgbuf.FromImage(img)
	require.NoError(t, err)
	if c == nil {
		c = vectorx.NewCropper(0)
	}
	res := new(results)
	opts = append([]polycrop.Option{polycrop.WithLogger(zaptest.NewLogger(t))}, opts...)
	s, err := polycrop.New(src, c, res.add, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, res
}

func draw(t *testing.T, s *polycrop.Session, pts ...geom.Point) {
	t.Helper()
	for _, p := range pts {
		ok, err := s.PointerDown(p)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestNewValidates(t *testing.T) {
	src, err := imgbuf.FromImage(randRGBA(4, 4))
	require.NoError(t, err)
	c := vectorx.NewCropper(0)

	_, err = polycrop.New(nil, c, func(*imgbuf.Buffer) {})
	require.ErrorIs(t, err, imgbuf.ErrEmpty)
	_, err = polycrop.New(src, nil, func(*imgbuf.Buffer) {})
	require.Error(t, err)
	_, err = polycrop.New(src, c, nil)
	require.Error(t, err)
}

func TestCommitTriangle(t *testing.T) {
	img := randRGBA(200, 200)
	// Margin 20 in a 220x220 container: scale 1, image at (10,10).
	s, res := newSession(t, img, nil, polycrop.WithMargin(20), polycrop.WithContainer(220, 220))
	require.Equal(t, geom.Transform{Scale: 1, Offset: geom.Pt(10, 10)}, s.Transform())

	require.True(t, s.TogglePolygonMode())
	draw(t, s, geom.Pt(20, 20), geom.Pt(120, 20))
	require.Equal(t, polygon.Drawing, s.State())
	draw(t, s, geom.Pt(70, 110))
	require.Equal(t, polygon.Ready, s.State())
	require.Equal(t, geom.Polygon{geom.Pt(10, 10), geom.Pt(110, 10), geom.Pt(60, 100)}, s.LocalPoints())

	ok, err := s.Commit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, res.len())
	out := res.last()
	require.Equal(t, 100, out.Width())
	require.Equal(t, 90, out.Height())
	require.Equal(t, img.At(60, 40), color.RGBAModel.Convert(out.Image().At(50, 30)))

	// Back to idle, still in polygon mode for the next cut.
	require.Equal(t, polygon.Idle, s.State())
	require.True(t, s.PolygonMode())
	require.Empty(t, s.Points())
}

func TestCommitNeedsThreePoints(t *testing.T) {
	s, res := newSession(t, randRGBA(50, 50), nil, polycrop.WithContainer(100, 100))
	s.TogglePolygonMode()
	draw(t, s, geom.Pt(30, 30), geom.Pt(60, 30))

	ok, err := s.Commit(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, res.len())
	require.Equal(t, 2, len(s.Points()))
}

func TestClicksOutsidePolygonModeIgnored(t *testing.T) {
	s, _ := newSession(t, randRGBA(50, 50), nil)
	ok, err := s.PointerDown(geom.Pt(1, 1))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, polygon.Idle, s.State())
}

func TestCancelAndToggleDiscardPath(t *testing.T) {
	s, res := newSession(t, randRGBA(50, 50), nil)
	s.TogglePolygonMode()
	draw(t, s, geom.Pt(1, 1), geom.Pt(9, 1), geom.Pt(5, 9))
	s.Cancel()
	require.Equal(t, polygon.Idle, s.State())
	require.True(t, s.PolygonMode())

	draw(t, s, geom.Pt(1, 1), geom.Pt(9, 1), geom.Pt(5, 9))
	require.False(t, s.TogglePolygonMode())
	require.Empty(t, s.Points())
	require.Zero(t, res.len())
}

func TestPolygonModeDisablesPan(t *testing.T) {
	s, _ := newSession(t, randRGBA(50, 50), nil, polycrop.WithContainer(100, 100))
	require.True(t, s.Pan(geom.Pt(5, 0)))
	s.TogglePolygonMode()
	before := s.Transform()
	require.False(t, s.Pan(geom.Pt(5, 0)))
	require.Equal(t, before, s.Transform())
	s.TogglePolygonMode()
	require.True(t, s.Pan(geom.Pt(5, 0)))
}

func TestCommitIgnoresViewChanges(t *testing.T) {
	img := randRGBA(100, 80)
	// Scale 1 with the image centered at (60,50).
	opts := []polycrop.Option{polycrop.WithContainer(220, 180)}
	tri := []geom.Point{geom.Pt(70, 60), geom.Pt(150, 70), geom.Pt(100, 120)}

	s, res := newSession(t, img, nil, opts...)
	s.TogglePolygonMode()
	draw(t, s, tri...)
	ok, err := s.Commit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	want := res.last()

	// Same clicks, then zoom in and out before committing: the path follows
	// the image, so the same pixels are cut.
	draw(t, s, tri...)
	s.Zoom(geom.Pt(100, 100), 2)
	s.Zoom(geom.Pt(30, 170), 0.5)
	s.Zoom(geom.Pt(64, 64), 4)
	require.NotEqual(t, geom.Polygon(tri), s.Points())
	ok, err = s.Commit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want.Image(), res.last().Image())

	// And the same as cropping the local polygon directly.
	src, err := imgbuf.FromImage(img)
	require.NoError(t, err)
	local := geom.Polygon{geom.Pt(10, 10), geom.Pt(90, 20), geom.Pt(40, 70)}
	direct, err := vectorx.Crop(src, local, 0)
	require.NoError(t, err)
	require.Equal(t, direct.Image(), want.Image())
}

func TestResizeCarriesPath(t *testing.T) {
	s, _ := newSession(t, randRGBA(100, 100), nil, polycrop.WithMargin(0), polycrop.WithContainer(100, 100))
	s.TogglePolygonMode()
	draw(t, s, geom.Pt(50, 50))
	local := s.LocalPoints()

	require.True(t, s.Resize(200, 100))
	require.Equal(t, geom.Pt(100, 50), s.Points()[0])
	require.Equal(t, local, s.LocalPoints())

	require.False(t, s.Resize(0, 100))
	require.Equal(t, geom.Pt(100, 50), s.Points()[0])
}

func TestCommitFailureKeepsPath(t *testing.T) {
	boom := errors.New("boom")
	c := cropFunc(func(context.Context, *imgbuf.Buffer, geom.Polygon) (*imgbuf.Buffer, error) {
		return nil, boom
	})
	s, res := newSession(t, randRGBA(50, 50), c)
	s.TogglePolygonMode()
	draw(t, s, geom.Pt(1, 1), geom.Pt(9, 1), geom.Pt(5, 9))

	ok, err := s.Commit(context.Background())
	require.False(t, ok)
	require.ErrorIs(t, err, polycrop.ErrRasterization)
	require.ErrorIs(t, err, boom)
	require.Equal(t, polygon.Ready, s.State())
	require.Zero(t, res.len())
}

func TestCommitRegionErrors(t *testing.T) {
	s, _ := newSession(t, randRGBA(50, 50), nil, polycrop.WithMaxPixels(100))
	s.TogglePolygonMode()
	draw(t, s, geom.Pt(0, 0), geom.Pt(40, 0), geom.Pt(20, 40))
	_, err := s.Commit(context.Background())
	require.ErrorIs(t, err, polycrop.ErrRasterization)
	require.ErrorIs(t, err, polycrop.ErrCanvasTooLarge)

	s.Cancel()
	draw(t, s, geom.Pt(0, 5), geom.Pt(40, 5), geom.Pt(20, 5))
	_, err = s.Commit(context.Background())
	require.ErrorIs(t, err, polycrop.ErrEmptyRegion)
	require.Equal(t, polygon.Ready, s.State())
}

func TestConcurrentCommitIsDropped(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	inner := vectorx.NewCropper(0)
	c := cropFunc(func(ctx context.Context, src *imgbuf.Buffer, poly geom.Polygon) (*imgbuf.Buffer, error) {
		close(entered)
		<-release
		return inner.Crop(ctx, src, poly)
	})
	s, res := newSession(t, randRGBA(50, 50), c)
	s.TogglePolygonMode()
	draw(t, s, geom.Pt(1, 1), geom.Pt(30, 1), geom.Pt(15, 30))

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result)
	go func() {
		ok, err := s.Commit(context.Background())
		done <- result{ok, err}
	}()
	<-entered
	ok, err := s.Commit(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	close(release)
	first := <-done
	require.NoError(t, first.err)
	require.True(t, first.ok)
	require.Equal(t, 1, res.len())
}

func TestCommitKeepsPointsPlacedDuringCrop(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	inner := vectorx.NewCropper(0)
	c := cropFunc(func(ctx context.Context, src *imgbuf.Buffer, poly geom.Polygon) (*imgbuf.Buffer, error) {
		close(entered)
		<-release
		return inner.Crop(ctx, src, poly)
	})
	s, res := newSession(t, randRGBA(50, 50), c)
	s.TogglePolygonMode()
	draw(t, s, geom.Pt(1, 1), geom.Pt(30, 1), geom.Pt(15, 30))

	done := make(chan error)
	go func() {
		_, err := s.Commit(context.Background())
		done <- err
	}()
	<-entered
	draw(t, s, geom.Pt(5, 5), geom.Pt(6, 6))
	close(release)
	require.NoError(t, <-done)

	require.Equal(t, 1, res.len())
	require.Equal(t, image.Rect(0, 0, 29, 29), res.last().Bounds())
	require.Equal(t, geom.Polygon{geom.Pt(5, 5), geom.Pt(6, 6)}, s.Points())
	require.Equal(t, polygon.Drawing, s.State())
}

func TestCommitLeavesReplacedPath(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	inner := vectorx.NewCropper(0)
	c := cropFunc(func(ctx context.Context, src *imgbuf.Buffer, poly geom.Polygon) (*imgbuf.Buffer, error) {
		close(entered)
		<-release
		return inner.Crop(ctx, src, poly)
	})
	s, res := newSession(t, randRGBA(50, 50), c)
	s.TogglePolygonMode()
	draw(t, s, geom.Pt(1, 1), geom.Pt(30, 1), geom.Pt(15, 30))

	done := make(chan error)
	go func() {
		_, err := s.Commit(context.Background())
		done <- err
	}()
	<-entered
	s.Cancel()
	draw(t, s, geom.Pt(2, 2), geom.Pt(3, 3), geom.Pt(4, 2), geom.Pt(9, 9))
	close(release)
	require.NoError(t, <-done)

	require.Equal(t, 1, res.len())
	require.Len(t, s.Points(), 4)
	require.Equal(t, geom.Pt(2, 2), s.Points()[0])
}

func TestCommitAtFractionalScales(t *testing.T) {
	img := randRGBA(1000, 700)
	src, err := imgbuf.FromImage(img)
	require.NoError(t, err)
	local := geom.Polygon{geom.Pt(10, 10), geom.Pt(110, 10), geom.Pt(60, 100)}
	want, err := vectorx.Crop(src, local, 0)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 100, 90), want.Bounds())

	for _, container := range []int{384, 500, 640, 777, 999} {
		for _, wheel := range []int{0, 3, 7} {
			s, res := newSession(t, img, nil, polycrop.WithContainer(container, container))
			for i := 0; i < wheel; i++ {
				s.Wheel(-1, geom.Pt(float64(container)/3, float64(container)/4))
			}
			s.TogglePolygonMode()
			draw(t, s, s.Transform().PolygonToScene(local)...)
			// Zooming with the path in place reprojects it.
			for i := 0; i < wheel; i++ {
				s.Wheel(1, geom.Pt(float64(container)/2, 10))
			}

			ok, err := s.Commit(context.Background())
			require.NoError(t, err)
			require.True(t, ok, "container %d, %d wheel steps", container, wheel)
			got := res.last()
			require.Equal(t, want.Bounds(), got.Bounds(), "container %d, %d wheel steps", container, wheel)
			require.Equal(t, want.Image(), got.Image(), "container %d, %d wheel steps", container, wheel)
		}
	}
}

func TestRunDispatchesEvents(t *testing.T) {
	var errs []error
	var mu sync.Mutex
	s, res := newSession(t, randRGBA(60, 60), nil,
		polycrop.WithMargin(0),
		polycrop.WithMaxPoints(4),
		polycrop.WithErrorHandler(func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}),
	)
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan polycrop.Event)
	var commit polycrop.Signal
	runErr := make(chan error)
	go func() { runErr <- s.Run(ctx, events, &commit) }()

	for _, ev := range []polycrop.Event{
		polycrop.Resize{W: 60, H: 60},
		polycrop.TogglePolygon{},
		polycrop.PointerDown{At: geom.Pt(5, 5)},
		polycrop.PointerDown{At: geom.Pt(50, 5)},
		polycrop.PointerDown{At: geom.Pt(25, 50)},
		polycrop.Commit{},
	} {
		events <- ev
	}
	require.Eventually(t, func() bool { return res.len() == 1 }, time.Second, time.Millisecond)

	// Commit through the host signal.
	for _, p := range []geom.Point{geom.Pt(5, 5), geom.Pt(50, 5), geom.Pt(25, 50)} {
		events <- polycrop.PointerDown{At: p}
	}
	require.Eventually(t, func() bool { return s.State() == polygon.Ready }, time.Second, time.Millisecond)
	commit.Emit()
	require.Eventually(t, func() bool { return res.len() == 2 }, time.Second, time.Millisecond)

	// Too many points reach the error handler, the loop keeps going.
	for i := 0; i < 5; i++ {
		events <- polycrop.PointerDown{At: geom.Pt(float64(i), 1)}
	}
	events <- polycrop.Cancel{}
	require.Eventually(t, func() bool { return s.State() == polygon.Idle }, time.Second, time.Millisecond)
	mu.Lock()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], polygon.ErrTooManyPoints)
	mu.Unlock()

	cancel()
	require.ErrorIs(t, <-runErr, context.Canceled)
	require.Zero(t, commit.Len())
}

func TestRunStopsOnClose(t *testing.T) {
	s, _ := newSession(t, randRGBA(10, 10), nil)
	events := make(chan polycrop.Event)
	runErr := make(chan error)
	go func() { runErr <- s.Run(context.Background(), events, nil) }()
	// The loop is running once it has taken an event.
	events <- polycrop.Resize{W: 20, H: 20}
	require.NoError(t, s.Close())
	require.NoError(t, <-runErr)
	require.ErrorIs(t, s.Run(context.Background(), nil, nil), polycrop.ErrClosed)
}

func TestClose(t *testing.T) {
	c := &closingCropper{Cropper: vectorx.NewCropper(0)}
	s, _ := newSession(t, randRGBA(10, 10), c)
	s.TogglePolygonMode()
	draw(t, s, geom.Pt(1, 1))

	require.Error(t, s.Close())
	require.True(t, c.closed)
	require.NoError(t, s.Close())

	_, err := s.Commit(context.Background())
	require.ErrorIs(t, err, polycrop.ErrClosed)
	_, err = s.PointerDown(geom.Pt(1, 1))
	require.ErrorIs(t, err, polycrop.ErrClosed)
	require.False(t, s.PolygonMode())
}

func TestPreview(t *testing.T) {
	red := color.NRGBA{0xff, 0, 0, 0xff}
	s, _ := newSession(t, imaging.New(20, 10, red), nil)
	require.Nil(t, s.Preview())

	s.Resize(40, 40)
	frame := s.Preview()
	require.Equal(t, image.Rect(0, 0, 40, 40), frame.Bounds())
	require.Equal(t, red, frame.NRGBAAt(20, 20))
	require.Zero(t, frame.NRGBAAt(1, 1).A)

	s.TogglePolygonMode()
	draw(t, s, geom.Pt(12, 17), geom.Pt(28, 17))
	frame = s.Preview()
	require.Equal(t, polygon.DefaultOverlay().MarkerColor, color.Color(frame.NRGBAAt(12, 17)))
}

func TestSuggest(t *testing.T) {
	// A bright square on a dark, flat background.
	img := imaging.New(160, 120, color.NRGBA{0x10, 0x10, 0x10, 0xff})
	img = imaging.Paste(img, randRGBA(40, 40), image.Pt(100, 60))
	s, res := newSession(t, img, nil, polycrop.WithMargin(0), polycrop.WithContainer(160, 120))

	_, err := s.Suggest(context.Background(), 0, 1)
	require.ErrorIs(t, err, polycrop.ErrBadAspect)

	pts, err := s.Suggest(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, pts, 4)
	require.True(t, s.PolygonMode())
	require.Equal(t, polygon.Ready, s.State())
	require.False(t, s.Pan(geom.Pt(1, 1)))

	ok, err := s.Commit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	out := res.last()
	require.InDelta(t, out.Width(), out.Height(), 2)
	require.LessOrEqual(t, out.Width(), 160)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Suggest(ctx, 1, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRegion(t *testing.T) {
	r, err := polycrop.Region(geom.Polygon{geom.Pt(0.5, 1.5), geom.Pt(10.2, 1.5), geom.Pt(4, 7.9)}, 0)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 1, 11, 8), r)

	_, err = polycrop.Region(geom.Polygon{geom.Pt(0, 0), geom.Pt(1, 1)}, 0)
	require.ErrorIs(t, err, polycrop.ErrEmptyRegion)
	_, err = polycrop.Region(geom.Polygon{geom.Pt(3, 0), geom.Pt(3, 5), geom.Pt(3, 9)}, 0)
	require.ErrorIs(t, err, polycrop.ErrEmptyRegion)
	_, err = polycrop.Region(geom.Polygon{geom.Pt(0, 0), geom.Pt(10, 0), geom.Pt(0, 10)}, 99)
	require.ErrorIs(t, err, polycrop.ErrCanvasTooLarge)
}
