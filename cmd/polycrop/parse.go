package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sebnyberg/polycrop/geom"
)

type zoom struct {
	at     geom.Point
	factor float64
}

// parsePoints parses "x,y;x,y;...". Empty segments are skipped so a
// trailing separator is accepted.
func parsePoints(s string) (geom.Polygon, error) {
	var pts geom.Polygon
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		p, err := parsePoint(seg)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("no points in %q", s)
	}
	return pts, nil
}

func parsePoint(s string) (geom.Point, error) {
	fs, err := parseFloats(s, ",", 2)
	if err != nil {
		return geom.Point{}, fmt.Errorf("invalid point %q, %w", s, err)
	}
	return geom.Pt(fs[0], fs[1]), nil
}

// parseZoom parses "x,y,factor".
func parseZoom(s string) (zoom, error) {
	fs, err := parseFloats(s, ",", 3)
	if err != nil {
		return zoom{}, fmt.Errorf("invalid zoom %q, %w", s, err)
	}
	if fs[2] <= 0 {
		return zoom{}, fmt.Errorf("invalid zoom %q, factor must be positive", s)
	}
	return zoom{at: geom.Pt(fs[0], fs[1]), factor: fs[2]}, nil
}

// parseSize parses "WxH".
func parseSize(s string) (int, int, error) {
	w, h, err := parseIntPair(s, "x")
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size %q, %w", s, err)
	}
	return w, h, nil
}

// parseAspect parses "W:H".
func parseAspect(s string) (int, int, error) {
	w, h, err := parseIntPair(s, ":")
	if err != nil {
		return 0, 0, fmt.Errorf("invalid aspect %q, %w", s, err)
	}
	return w, h, nil
}

func parseIntPair(s, sep string) (int, int, error) {
	a, b, ok := strings.Cut(s, sep)
	if !ok {
		return 0, 0, fmt.Errorf("missing %q", sep)
	}
	x, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, err
	}
	if x <= 0 || y <= 0 {
		return 0, 0, fmt.Errorf("values must be positive")
	}
	return x, y, nil
}

func parseFloats(s, sep string, n int) ([]float64, error) {
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return nil, fmt.Errorf("want %d values, got %d", n, len(parts))
	}
	fs := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		fs[i] = f
	}
	return fs, nil
}
