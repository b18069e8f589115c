package params

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// The projection basis is fixed once at startup. Panning and zooming move
// the camera, never the basis, so world coordinates for different tiles
// stay additive and do not drift from re-projection.
const (
	// DefaultReferenceLat and DefaultReferenceLon pin the world origin
	// over Cambridge, UK.
	DefaultReferenceLat = 52.18492
	DefaultReferenceLon = 0.14281721

	// DefaultReferenceZoom fixes the meters-per-pixel scale of world space.
	DefaultReferenceZoom maptile.Zoom = 14

	// DefaultTileSizePx is the pixel edge of one tile at the reference zoom.
	DefaultTileSizePx = 512
)

type EngineConfig struct {
	// RefCoord is the geographic origin of world space, orb-ordered (lon, lat).
	RefCoord orb.Point

	// RefZoom is the zoom level whose meters-per-tile fixes the world scale.
	RefZoom maptile.Zoom

	// TileSizePx is the pixel edge of a tile. One scheme, one size.
	TileSizePx int

	// RetentionFactor scales the visible rectangle into the retention
	// rectangle. Tiles whose footprint falls wholly outside it are evicted
	// at the end of a frame. 1.0 evicts at the visible edge; larger keeps
	// a margin of offscreen tiles warm for panning.
	RetentionFactor float64

	// FrameTimingWindow is how many recent frame durations to keep for
	// the status report.
	FrameTimingWindow int
}

func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		RefCoord:          orb.Point{DefaultReferenceLon, DefaultReferenceLat},
		RefZoom:           DefaultReferenceZoom,
		TileSizePx:        DefaultTileSizePx,
		RetentionFactor:   3.0,
		FrameTimingWindow: 256,
	}
}
