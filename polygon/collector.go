// Package polygon turns pointer-down events into a polygon path and tracks
// the per-session drawing state.
package polygon

import (
	"errors"
	"fmt"

	"github.com/sebnyberg/polycrop/geom"
)

// MinPoints is the smallest number of points that encloses a region.
const MinPoints = 3

// DefaultMaxPoints caps the length of a path.
const DefaultMaxPoints = 4096

var ErrTooManyPoints = errors.New("polygon: too many points")

// State of a crop session.
type State int

const (
	Idle State = iota
	Drawing
	Ready
	Committed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	case Ready:
		return "ready"
	case Committed:
		return "committed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Collector accumulates scene-space points while polygon mode is active.
// It is owned by the event goroutine and is not safe for concurrent use.
type Collector struct {
	active    bool
	path      geom.Polygon
	maxPoints int
	// gen changes whenever the path is cleared or replaced. Appends and
	// Map keep it.
	gen uint64
}

// NewCollector returns an inactive collector. A non-positive maxPoints
// selects DefaultMaxPoints.
func NewCollector(maxPoints int) *Collector {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Collector{maxPoints: maxPoints}
}

// Active reports whether polygon mode is on.
func (c *Collector) Active() bool { return c.active }

// Enter turns polygon mode on with an empty path.
func (c *Collector) Enter() {
	c.active = true
	c.Reset()
}

// Exit turns polygon mode off and discards any uncommitted points.
func (c *Collector) Exit() {
	c.active = false
	c.Reset()
}

// Toggle flips polygon mode and returns the new value.
func (c *Collector) Toggle() bool {
	if c.active {
		c.Exit()
	} else {
		c.Enter()
	}
	return c.active
}

// Add appends a scene point. It returns false without error when polygon
// mode is off, and ErrTooManyPoints once the cap is reached.
func (c *Collector) Add(p geom.Point) (bool, error) {
	if !c.active {
		return false, nil
	}
	if len(c.path) >= c.maxPoints {
		return false, fmt.Errorf("%w: limit is %d", ErrTooManyPoints, c.maxPoints)
	}
	c.path = append(c.path, p)
	return true, nil
}

// Set replaces the path, e.g. with a suggested region. Polygon mode is
// turned on.
func (c *Collector) Set(pts geom.Polygon) error {
	if len(pts) > c.maxPoints {
		return fmt.Errorf("%w: limit is %d", ErrTooManyPoints, c.maxPoints)
	}
	c.active = true
	c.path = append(c.path[:0], pts...)
	c.gen++
	return nil
}

// Points returns a copy of the current path.
func (c *Collector) Points() geom.Polygon { return c.path.Clone() }

// Map rewrites every point in place, e.g. to follow a viewport change.
func (c *Collector) Map(fn func(geom.Point) geom.Point) {
	for i, p := range c.path {
		c.path[i] = fn(p)
	}
}

// Len returns the number of collected points.
func (c *Collector) Len() int { return len(c.path) }

// Reset clears the path but stays in the current mode.
func (c *Collector) Reset() {
	c.path = c.path[:0]
	c.gen++
}

// Generation identifies the current path. It stays the same while points
// are only appended or mapped, so a caller holding a copy of the first n
// points can tell whether they are still the head of the path.
func (c *Collector) Generation() uint64 { return c.gen }

// Drop removes the first n points and keeps the rest in order.
func (c *Collector) Drop(n int) {
	if n >= len(c.path) {
		c.Reset()
		return
	}
	if n <= 0 {
		return
	}
	c.path = append(c.path[:0], c.path[n:]...)
	c.gen++
}

// State derives the session state from the path length.
func (c *Collector) State() State {
	switch n := len(c.path); {
	case n >= MinPoints:
		return Ready
	case n > 0:
		return Drawing
	}
	return Idle
}
