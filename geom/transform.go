package geom

// Transform maps image-local coordinates to scene coordinates with a uniform
// scale followed by a translation:
//
//	scene = local*Scale + Offset
//
// The zero Transform is not invertible; use Identity.
type Transform struct {
	Scale  float64
	Offset Point
}

// Identity returns the transform that maps every point to itself.
func Identity() Transform {
	return Transform{Scale: 1}
}

// Invertible reports whether ToLocal is defined.
func (t Transform) Invertible() bool {
	return t.Scale != 0
}

// ToScene maps a local point into scene space.
func (t Transform) ToScene(p Point) Point {
	return Point{
		X: p.X*t.Scale + t.Offset.X,
		Y: p.Y*t.Scale + t.Offset.Y,
	}
}

// ToLocal maps a scene point into local space. It is the inverse of ToScene.
func (t Transform) ToLocal(p Point) Point {
	return Point{
		X: (p.X - t.Offset.X) / t.Scale,
		Y: (p.Y - t.Offset.Y) / t.Scale,
	}
}

// Inverse returns the transform mapping scene to local space.
func (t Transform) Inverse() Transform {
	return Transform{
		Scale:  1 / t.Scale,
		Offset: Point{-t.Offset.X / t.Scale, -t.Offset.Y / t.Scale},
	}
}

// PolygonToLocal maps every vertex of a scene polygon into local space.
func (t Transform) PolygonToLocal(pg Polygon) Polygon {
	out := make(Polygon, len(pg))
	for i, p := range pg {
		out[i] = t.ToLocal(p)
	}
	return out
}

// PolygonToScene maps every vertex of a local polygon into scene space.
func (t Transform) PolygonToScene(pg Polygon) Polygon {
	out := make(Polygon, len(pg))
	for i, p := range pg {
		out[i] = t.ToScene(p)
	}
	return out
}

// ZoomAt returns t rescaled to scale while keeping the local point under
// the scene point at fixed.
func (t Transform) ZoomAt(at Point, scale float64) Transform {
	local := t.ToLocal(at)
	return Transform{
		Scale: scale,
		Offset: Point{
			X: at.X - local.X*scale,
			Y: at.Y - local.Y*scale,
		},
	}
}

// Translate returns t moved by d in scene space.
func (t Transform) Translate(d Point) Transform {
	t.Offset = t.Offset.Add(d)
	return t
}
