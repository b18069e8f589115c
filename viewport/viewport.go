// Package viewport maps camera and window state to the geographic
// rectangle currently worth loading.
//
// Camera and window values are single precision; that is the precision
// the host render loop works in, and degrading geographic math to match
// it would show at high zooms. The float32 -> float64 conversion happens
// here, at the boundary, and nowhere else.
package viewport

import (
	"log/slog"

	"github.com/Woolyenough/ofm-viewer/geo/project"
	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
)

// Camera is the host loop's 2D camera: a world-space translation plus an
// orthographic zoom scale (1.0 = one world pixel per screen pixel).
type Camera struct {
	Translation [2]float32
	Scale       float32
}

// Window is the drawable surface size in physical pixels.
type Window struct {
	Width  float32
	Height float32
}

// Source supplies camera and window state once per frame. ok is false
// until the host scene has a camera and a measured window; that is an
// expected startup condition every frame until then, not an error.
type Source interface {
	Frame() (Camera, Window, bool)
}

// Mapper computes visible rectangles on a fixed projection plane.
type Mapper struct {
	Plane project.Plane
}

// VisibleWorldRect returns the world-space rectangle to consider loaded
// around the camera. The rectangle is anchored at the raw camera
// translation and extends half a scaled window beyond it on each axis;
// it is deliberately oversized rather than the camera's exact frustum,
// so tiles just offscreen are already resident when a pan brings them
// in. TODO: confirm the anchor should stay at the translation rather
// than centered on it; the margin is asymmetric as-is.
func (m Mapper) VisibleWorldRect(cam Camera, win Window) r2.Rect {
	left := cam.Translation[0]
	right := cam.Translation[0] + (win.Width*cam.Scale)/2.0
	low := cam.Translation[1]
	high := cam.Translation[1] + (win.Height*cam.Scale)/2.0
	return r2.RectFromPoints(
		r2.Point{X: float64(left), Y: float64(low)},
		r2.Point{X: float64(right), Y: float64(high)},
	)
}

// VisibleGeoBound converts the two diagonal corners of the visible world
// rectangle back to geographic degrees. Uses the placement (rounded)
// unprojection so the bound lines up with tile footprints.
func (m Mapper) VisibleGeoBound(cam Camera, win Window) orb.Bound {
	r := m.VisibleWorldRect(cam, win)
	a := m.Plane.ToGeoPlaced(r2.Point{X: r.X.Lo, Y: r.Y.Lo})
	b := m.Plane.ToGeoPlaced(r2.Point{X: r.X.Hi, Y: r.Y.Hi})
	return orb.MultiPoint{a, b}.Bound()
}

// Visible polls the source and returns this frame's geographic bound.
// A missing camera yields ok=false and at most a debug log line.
func (m Mapper) Visible(src Source) (orb.Bound, bool) {
	cam, win, ok := src.Frame()
	if !ok {
		slog.Debug("No camera for frame")
		return orb.Bound{}, false
	}
	return m.VisibleGeoBound(cam, win), true
}
