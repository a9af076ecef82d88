package polygon

import (
	"image/color"
	"image/draw"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"

	"github.com/sebnyberg/polycrop/geom"
)

// Overlay renders the live feedback for an in-progress path: the open
// polyline in click order and a round marker on every point.
type Overlay struct {
	MarkerRadius float64
	MarkerColor  color.Color
	LineWidth    float64
	LineColor    color.Color
}

// DefaultOverlay matches the capture widget: green 3px markers on a thin
// blue line.
func DefaultOverlay() Overlay {
	return Overlay{
		MarkerRadius: 3,
		MarkerColor:  color.NRGBA{0x55, 0xfa, 0x02, 0xff},
		LineWidth:    1,
		LineColor:    color.NRGBA{0x02, 0x0f, 0xfa, 0xff},
	}
}

// Draw paints the feedback for pts, given in dst's pixel coordinates, onto
// dst. The path is not closed; closing is implied only at commit.
func (o Overlay) Draw(dst draw.Image, pts geom.Polygon) {
	if len(pts) == 0 {
		return
	}
	b := dst.Bounds()
	origin := geom.Pt(float64(b.Min.X), float64(b.Min.Y))
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), dst, b)

	if len(pts) > 1 && o.LineWidth > 0 {
		s := rasterx.NewStroker(b.Dx(), b.Dy(), scanner)
		s.SetStroke(fixed.Int26_6(o.LineWidth*64), 4<<6, rasterx.RoundCap, nil, rasterx.RoundGap, rasterx.Round)
		s.Start(toFixed(pts[0].Sub(origin)))
		for _, p := range pts[1:] {
			s.Line(toFixed(p.Sub(origin)))
		}
		s.Stop(false)
		s.SetColor(o.LineColor)
		s.Draw()
		s.Clear()
	}

	if o.MarkerRadius > 0 {
		f := rasterx.NewFiller(b.Dx(), b.Dy(), scanner)
		for _, p := range pts {
			p = p.Sub(origin)
			rasterx.AddCircle(p.X, p.Y, o.MarkerRadius, f)
		}
		f.SetColor(o.MarkerColor)
		f.Draw()
		f.Clear()
	}
}

func toFixed(p geom.Point) fixed.Point26_6 {
	return rasterx.ToFixedP(p.X, p.Y)
}
