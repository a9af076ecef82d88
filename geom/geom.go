// Package geom holds the 2D primitives shared by the viewport, the polygon
// collector and the crop backends.
package geom

import (
	"fmt"
	"image"
	"math"
)

// Point is a 2D point in either scene or image-local coordinates. Which space
// a point lives in is determined by the API that returned it.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Mul(k float64) Point {
	return Point{p.X * k, p.Y * k}
}

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Mid returns the midpoint of p and q.
func (p Point) Mid(q Point) Point {
	return Point{(p.X + q.X) / 2, (p.Y + q.Y) / 2}
}

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

// Rect is an axis-aligned float rectangle. Max is exclusive for pixel
// purposes only once converted with Pixels.
type Rect struct {
	Min, Max Point
}

func (r Rect) Dx() float64 { return r.Max.X - r.Min.X }
func (r Rect) Dy() float64 { return r.Max.Y - r.Min.Y }

// SnapTolerance is how close to an integer a coordinate must be to count as
// that integer. Points mapped scene to local and back pick up rounding
// noise far below it.
const SnapTolerance = 1e-6

// Snap returns the nearest integer when v is within SnapTolerance of it,
// and v otherwise.
func Snap(v float64) float64 {
	if r := math.Round(v); math.Abs(v-r) <= SnapTolerance {
		return r
	}
	return v
}

// Pixels returns the smallest integer rectangle covering r. Edges within
// SnapTolerance of a pixel boundary are taken to lie on it.
func (r Rect) Pixels() image.Rectangle {
	return image.Rect(
		int(math.Floor(Snap(r.Min.X))),
		int(math.Floor(Snap(r.Min.Y))),
		int(math.Ceil(Snap(r.Max.X))),
		int(math.Ceil(Snap(r.Max.Y))),
	)
}

// Polygon is a closed polygon given by its vertices in order. The closing
// edge from the last vertex back to the first is implicit.
type Polygon []Point

// Bounds returns the axis-aligned bounding box of the polygon. The zero Rect
// is returned for an empty polygon.
func (pg Polygon) Bounds() Rect {
	if len(pg) == 0 {
		return Rect{}
	}
	r := Rect{Min: pg[0], Max: pg[0]}
	for _, p := range pg[1:] {
		r.Min.X = math.Min(r.Min.X, p.X)
		r.Min.Y = math.Min(r.Min.Y, p.Y)
		r.Max.X = math.Max(r.Max.X, p.X)
		r.Max.Y = math.Max(r.Max.Y, p.Y)
	}
	return r
}

// PixelBounds is Bounds().Pixels().
func (pg Polygon) PixelBounds() image.Rectangle {
	return pg.Bounds().Pixels()
}

// Translate returns a copy of the polygon moved by d.
func (pg Polygon) Translate(d Point) Polygon {
	out := make(Polygon, len(pg))
	for i, p := range pg {
		out[i] = p.Add(d)
	}
	return out
}

// Snap returns a copy with every coordinate passed through Snap.
func (pg Polygon) Snap() Polygon {
	if pg == nil {
		return nil
	}
	out := make(Polygon, len(pg))
	for i, p := range pg {
		out[i] = Pt(Snap(p.X), Snap(p.Y))
	}
	return out
}

// Clone returns a copy that shares no memory with pg.
func (pg Polygon) Clone() Polygon {
	if pg == nil {
		return nil
	}
	return append(Polygon(nil), pg...)
}
