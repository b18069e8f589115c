/*
Package project converts between the three coordinate spaces the viewer
lives in:

  - geographic degrees (lon/lat, WGS84), carried as orb.Point,
  - slippy-map tile indices (x, y, zoom), carried as maptile.Tile,
  - world space, carried as r2.Point: Web Mercator pixels relative to a
    fixed reference origin at a fixed zoom's meters-per-pixel scale.

All transforms are parameterized by one Plane (origin coordinate +
reference zoom + tile pixel size) fixed at startup. The camera moves;
the Plane never does. That keeps world positions for different tiles
additive and avoids numeric drift from re-deriving the projection basis.

Geographic math is double precision throughout. Screen/camera values are
single precision and converted up at the viewport boundary, not here.
*/
package project

import (
	"fmt"
	"math"

	"github.com/Woolyenough/ofm-viewer/common"
	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Tile returns the slippy-map tile containing the given coordinate.
// Longitude in [-180, 180]; latitude strictly inside ±MercatorLatLimit,
// which the caller is responsible for clamping (see ClampLat).
func Tile(lon, lat float64, zoom maptile.Zoom) maptile.Tile {
	n := math.Exp2(float64(zoom))
	x := math.Floor(n * (lon + 180.0) / 360.0)

	latRad := lat * math.Pi / 180.0
	y := math.Floor(n * (1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0)

	// The east and south edges of the pyramid belong to the last tile.
	limit := n - 1
	x = math.Min(math.Max(x, 0), limit)
	y = math.Min(math.Max(y, 0), limit)

	return maptile.Tile{X: uint32(x), Y: uint32(y), Z: zoom}
}

// TileUpperLeft returns the geographic coordinate of the tile's
// north-west corner.
func TileUpperLeft(t maptile.Tile) orb.Point {
	n := math.Exp2(float64(t.Z))
	lon := float64(t.X)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1.0 - 2.0*float64(t.Y)/n)))
	return orb.Point{lon, latRad * 180.0 / math.Pi}
}

// ClampLat clamps a latitude into the open Mercator-projectable range.
func ClampLat(lat float64) float64 {
	return math.Min(math.Max(lat, -common.MercatorLatLimit), common.MercatorLatLimit)
}

// Plane is the fixed projection basis for world space.
type Plane struct {
	// Origin is the geographic coordinate mapped to world (0, 0).
	Origin orb.Point
	// Zoom fixes the meters-per-pixel scale of the plane.
	Zoom maptile.Zoom
	// TileSizePx is the pixel edge of one tile at Zoom.
	TileSizePx int
}

// MetersPerPixel returns the plane's world scale: one world unit is one
// pixel of a TileSizePx tile at the reference zoom.
func (p Plane) MetersPerPixel() float64 {
	return common.MetersPerPixel(uint32(p.Zoom), p.TileSizePx)
}

// ToWorld projects a geographic coordinate onto the plane.
// Exact inverse of ToGeo; no rounding. World y points north.
func (p Plane) ToWorld(g orb.Point) r2.Point {
	ox, oy := mercator(p.Origin)
	gx, gy := mercator(g)
	s := p.MetersPerPixel()
	return r2.Point{X: (gx - ox) / s, Y: (gy - oy) / s}
}

// ToGeo unprojects a world point back to geographic degrees.
func (p Plane) ToGeo(w r2.Point) orb.Point {
	ox, oy := mercator(p.Origin)
	s := p.MetersPerPixel()
	return inverseMercator(ox+w.X*s, oy+w.Y*s)
}

// ToGeoPlaced is ToGeo with the meter offsets rounded to whole units
// before unprojection. This is the placement path: rounding keeps tile
// seams on aligned boundaries instead of accumulating sub-unit error.
func (p Plane) ToGeoPlaced(w r2.Point) orb.Point {
	ox, oy := mercator(p.Origin)
	s := p.MetersPerPixel()
	return inverseMercator(ox+math.Round(w.X*s), oy+math.Round(w.Y*s))
}

// TileFootprint returns the world-space rectangle the tile occupies,
// with corners rounded to whole world pixels. Adjacent tiles share
// corner coordinates exactly, so rounded footprints share edges exactly
// and render without seams.
func (p Plane) TileFootprint(t maptile.Tile) r2.Rect {
	nw := p.ToWorld(TileUpperLeft(t))
	se := p.ToWorld(TileUpperLeft(maptile.Tile{X: t.X + 1, Y: t.Y + 1, Z: t.Z}))
	return r2.RectFromPoints(
		r2.Point{X: math.Round(nw.X), Y: math.Round(nw.Y)},
		r2.Point{X: math.Round(se.X), Y: math.Round(se.Y)},
	)
}

// mercator is the Web Mercator forward projection, in meters.
// Latitudes at or beyond ±90 have no projection; that input is a
// caller bug, not a recoverable condition.
func mercator(g orb.Point) (x, y float64) {
	lat := g.Lat()
	if lat <= -90 || lat >= 90 {
		panic(fmt.Sprintf("latitude %v not projectable", lat))
	}
	lonRad := g.Lon() * math.Pi / 180.0
	latRad := lat * math.Pi / 180.0
	x = lonRad * common.WebMercatorHalfCircumference / math.Pi
	y = math.Log(math.Tan(math.Pi/4.0+latRad/2.0)) * common.WebMercatorHalfCircumference / math.Pi
	return x, y
}

// inverseMercator maps Web Mercator meters back to degrees.
func inverseMercator(x, y float64) orb.Point {
	lon := x / common.WebMercatorHalfCircumference * 180.0
	latRad := 2.0*math.Atan(math.Exp(y/common.WebMercatorHalfCircumference*math.Pi)) - math.Pi/2.0
	return orb.Point{lon, latRad * 180.0 / math.Pi}
}
