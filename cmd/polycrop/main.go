// Command polycrop cuts a polygon out of an image.
//
//	polycrop -in photo.jpg -out crop.png -points "10,10;110,10;60,100"
//
// Points are given in scene space by default, i.e. as clicks on the image
// displayed fit-to-container (see -container and -zoom). With -space local
// they are image pixel coordinates.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/sebnyberg/polycrop"
	"github.com/sebnyberg/polycrop/config"
	"github.com/sebnyberg/polycrop/geom"
	"github.com/sebnyberg/polycrop/ggx"
	"github.com/sebnyberg/polycrop/imgbuf"
	"github.com/sebnyberg/polycrop/source"
	"github.com/sebnyberg/polycrop/vectorx"
	"github.com/sebnyberg/polycrop/vipsx"
)

type args struct {
	in, out    string
	points     string
	space      string
	container  string
	zoom       string
	backend    string
	suggest    string
	preview    string
	dataURL    bool
	configPath string
	logFile    string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "polycrop:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdin *os.File, stdout io.Writer) error {
	fs := flag.NewFlagSet("polycrop", flag.ContinueOnError)
	var a args
	fs.StringVar(&a.in, "in", "", "input image file, optionally zstd compressed")
	fs.StringVar(&a.out, "out", "-", "output PNG file, - for stdout")
	fs.StringVar(&a.points, "points", "", `polygon as "x,y;x,y;..."`)
	fs.StringVar(&a.space, "space", "scene", "coordinate space of -points: scene or local")
	fs.StringVar(&a.container, "container", "", "container size WxH, overrides the config")
	fs.StringVar(&a.zoom, "zoom", "", `zoom "x,y,factor" applied before placing points`)
	fs.StringVar(&a.backend, "backend", "", "rasterizer: vector, gg or vips")
	fs.StringVar(&a.suggest, "suggest", "", `suggest a region with aspect "w:h" instead of -points`)
	fs.StringVar(&a.preview, "preview", "", "write the container preview PNG to this file")
	fs.BoolVar(&a.dataURL, "data-url", false, "read a data URL from stdin and write one to -out")
	fs.StringVar(&a.configPath, "config", "", "TOML config file")
	fs.StringVar(&a.logFile, "log-file", "", "log to this file with rotation")
	fs.BoolVar(&a.verbose, "v", false, "debug logging")
	if err := fs.Parse(argv); err != nil {
		return err
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, a); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	polycrop.SetLogger(logger)
	defer polycrop.SetLogger(nil)

	caps := source.Probe(stdin)
	logger.Debug("environment", zap.Bool("terminal", caps.Terminal), zap.Bool("stdin_capture", caps.StdinCapture))

	cropper, closeCropper := newCropper(cfg)
	defer closeCropper()

	j, err := plan(a)
	if err != nil {
		return err
	}
	src, offset, err := acquire(ctx, a, caps, stdin, j)
	if err != nil {
		return err
	}
	if offset != (geom.Point{}) {
		j.points = j.points.Translate(offset.Mul(-1))
		logger.Debug("windowed source", zap.Stringer("offset", offset))
	}

	res, err := crop(ctx, cfg, cropper, src, j, a.preview)
	if err != nil {
		return err
	}
	return writeResult(res, a.out, a.dataURL, stdout)
}

// applyFlags layers explicitly given flags over the config.
func applyFlags(cfg *config.Config, a args) error {
	if a.backend != "" {
		cfg.Backend = a.backend
	}
	if a.container != "" {
		w, h, err := parseSize(a.container)
		if err != nil {
			return err
		}
		cfg.View.Width, cfg.View.Height = w, h
	}
	if a.logFile != "" {
		cfg.Log.File = a.logFile
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg.Validate()
}

func newCropper(cfg *config.Config) (polycrop.Cropper, func()) {
	switch cfg.Backend {
	case config.BackendGG:
		return ggx.NewCropper(cfg.MaxPixels), func() {}
	case config.BackendVips:
		c := vipsx.NewCropper(cfg.MaxPixels)
		return c, func() {
			c.Close()
			vipsx.Shutdown()
		}
	}
	return vectorx.NewCropper(cfg.MaxPixels), func() {}
}

// job is what to cut, decoded from the flags.
type job struct {
	points geom.Polygon
	local  bool
	zoom   *zoom
	aspect [2]int
}

func plan(a args) (job, error) {
	var j job
	switch a.space {
	case "scene":
	case "local":
		j.local = true
	default:
		return j, fmt.Errorf("-space must be scene or local, got %q", a.space)
	}
	if a.zoom != "" {
		z, err := parseZoom(a.zoom)
		if err != nil {
			return j, err
		}
		j.zoom = &z
	}
	switch {
	case a.suggest != "" && a.points != "":
		return j, errors.New("-suggest and -points are exclusive")
	case a.suggest != "":
		w, h, err := parseAspect(a.suggest)
		if err != nil {
			return j, err
		}
		j.aspect = [2]int{w, h}
	case a.points != "":
		pts, err := parsePoints(a.points)
		if err != nil {
			return j, err
		}
		j.points = pts
	default:
		return j, errors.New("one of -points or -suggest is required")
	}
	return j, nil
}

// acquire loads the source image. For local points on a file only the
// polygon's bounding box is loaded when the format allows it; the returned
// offset is where that window sits in the full image.
func acquire(ctx context.Context, a args, caps source.Capabilities, stdin io.Reader, j job) (*imgbuf.Buffer, geom.Point, error) {
	if a.dataURL {
		if !caps.StdinCapture {
			return nil, geom.Point{}, errors.New("-data-url needs the image piped to stdin")
		}
		buf, err := source.DataURL{R: stdin}.RequestImage(ctx)
		return buf, geom.Point{}, err
	}
	if a.in == "" {
		return nil, geom.Point{}, source.ErrNoSource
	}
	f := source.File{Path: a.in}
	if enc, err := f.Encoding(); err == nil {
		polycrop.Logger().Debug("source", zap.String("path", a.in), zap.Stringer("encoding", enc))
	}
	if j.local && len(j.points) > 0 && a.preview == "" {
		buf, at, err := f.RequestWindow(ctx, j.points.PixelBounds())
		switch {
		case err == nil:
			return buf, geom.Pt(float64(at.X), float64(at.Y)), nil
		case !errors.Is(err, source.ErrOutside):
			return nil, geom.Point{}, err
		}
	}
	buf, err := f.RequestImage(ctx)
	return buf, geom.Point{}, err
}

func crop(ctx context.Context, cfg *config.Config, c polycrop.Cropper, src *imgbuf.Buffer, j job, preview string) (*imgbuf.Buffer, error) {
	var res *imgbuf.Buffer
	s, err := polycrop.New(src, c, func(b *imgbuf.Buffer) { res = b },
		polycrop.WithMaxPoints(cfg.MaxPoints),
		polycrop.WithMaxPixels(cfg.MaxPixels),
		polycrop.WithMargin(cfg.View.Margin),
		polycrop.WithScaleLimits(cfg.View.MinScale, cfg.View.MaxScale),
		polycrop.WithContainer(cfg.View.Width, cfg.View.Height),
	)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if j.zoom != nil {
		s.Zoom(j.zoom.at, j.zoom.factor)
	}
	if j.aspect[0] > 0 {
		if _, err := s.Suggest(ctx, j.aspect[0], j.aspect[1]); err != nil {
			return nil, err
		}
	} else {
		s.TogglePolygonMode()
		t := s.Transform()
		for _, p := range j.points {
			if j.local {
				p = t.ToScene(p)
			}
			if _, err := s.PointerDown(p); err != nil {
				return nil, err
			}
		}
	}

	if preview != "" {
		if err := writePreview(s, preview); err != nil {
			return nil, err
		}
	}
	ok, err := s.Commit(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("need at least 3 points, got %d", len(s.Points()))
	}
	return res, nil
}

func writePreview(s *polycrop.Session, path string) error {
	frame := s.Preview()
	if frame == nil {
		return errors.New("no container size for preview")
	}
	buf, err := imgbuf.FromImage(frame)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview err, %w", err)
	}
	defer f.Close()
	if err := buf.WritePNG(f); err != nil {
		return err
	}
	return f.Close()
}

func writeResult(res *imgbuf.Buffer, out string, dataURL bool, stdout io.Writer) error {
	w := stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output err, %w", err)
		}
		defer f.Close()
		w = f
	}
	if dataURL {
		s, err := res.DataURL()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, s)
		return err
	}
	return res.WritePNG(w)
}
