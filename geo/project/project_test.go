package project

import (
	"math"
	"testing"

	"github.com/Woolyenough/ofm-viewer/common"
	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

var testPlane = Plane{
	Origin:     orb.Point{params.DefaultReferenceLon, params.DefaultReferenceLat},
	Zoom:       params.DefaultReferenceZoom,
	TileSizePx: params.DefaultTileSizePx,
}

var sampleCoords = []orb.Point{
	{0.14281721, 52.18492}, // reference origin, Cambridge UK
	{0, 0},
	{-0.1275, 51.507222},     // London
	{-114.0877518, 46.9292804}, // Missoula
	{179.9, 84.9},
	{-179.9, -84.9},
	{13.4, -52.5},
}

func TestTileRoundTrip(t *testing.T) {
	for _, coord := range sampleCoords {
		for zoom := maptile.Zoom(0); zoom <= 20; zoom++ {
			tile := Tile(coord.Lon(), coord.Lat(), zoom)
			ul := TileUpperLeft(tile)
			lr := TileUpperLeft(maptile.Tile{X: tile.X + 1, Y: tile.Y + 1, Z: tile.Z})

			if coord.Lon() < ul.Lon() || coord.Lon() > lr.Lon() {
				t.Errorf("zoom=%d coord=%v: lon %v outside tile span [%v, %v]",
					zoom, coord, coord.Lon(), ul.Lon(), lr.Lon())
			}
			// Latitude decreases with increasing tile y.
			if coord.Lat() > ul.Lat() || coord.Lat() < lr.Lat() {
				t.Errorf("zoom=%d coord=%v: lat %v outside tile span [%v, %v]",
					zoom, coord, coord.Lat(), lr.Lat(), ul.Lat())
			}
		}
	}
}

func TestTileIndexRange(t *testing.T) {
	for _, coord := range sampleCoords {
		for zoom := maptile.Zoom(0); zoom <= 20; zoom++ {
			tile := Tile(coord.Lon(), ClampLat(coord.Lat()), zoom)
			n := uint32(1) << zoom
			if tile.X >= n || tile.Y >= n {
				t.Fatalf("zoom=%d coord=%v: tile %v out of range (n=%d)", zoom, coord, tile, n)
			}
		}
	}
}

// Tile should agree with orb/maptile's own slippy conversion.
func TestTileMatchesMaptile(t *testing.T) {
	for _, coord := range sampleCoords {
		for zoom := maptile.Zoom(0); zoom <= 18; zoom++ {
			got := Tile(coord.Lon(), coord.Lat(), zoom)
			want := maptile.At(coord, zoom)
			if got != want {
				t.Errorf("zoom=%d coord=%v: got %v, maptile.At says %v", zoom, coord, got, want)
			}
		}
	}
}

func TestMercatorRoundTrip(t *testing.T) {
	const tolerance = 1e-6
	for _, coord := range sampleCoords {
		w := testPlane.ToWorld(coord)
		back := testPlane.ToGeo(w)
		if math.Abs(back.Lon()-coord.Lon()) > tolerance || math.Abs(back.Lat()-coord.Lat()) > tolerance {
			t.Errorf("round trip %v -> %v -> %v", coord, w, back)
		}
	}
}

func TestOriginProjectsToZero(t *testing.T) {
	w := testPlane.ToWorld(testPlane.Origin)
	if w.X != 0 || w.Y != 0 {
		t.Fatalf("origin world point = %v, want (0,0)", w)
	}
	g := testPlane.ToGeo(r2.Point{})
	if math.Abs(g.Lon()-testPlane.Origin.Lon()) > 1e-9 || math.Abs(g.Lat()-testPlane.Origin.Lat()) > 1e-9 {
		t.Fatalf("world (0,0) = %v, want %v", g, testPlane.Origin)
	}
}

// ToGeoPlaced rounds meter offsets to whole units; it may differ from the
// exact inverse by at most half a meter of ground distance.
func TestToGeoPlacedNearExact(t *testing.T) {
	// Half a meter in degrees of longitude, generously padded.
	const tolerance = 0.5 / 111_000 * 2
	for _, w := range []r2.Point{{X: 123.456, Y: -789.012}, {X: -0.25, Y: 0.75}, {X: 4000, Y: 4000}} {
		exact := testPlane.ToGeo(w)
		placed := testPlane.ToGeoPlaced(w)
		if math.Abs(exact.Lon()-placed.Lon()) > tolerance || math.Abs(exact.Lat()-placed.Lat()) > tolerance {
			t.Errorf("placed %v drifted: exact=%v placed=%v", w, exact, placed)
		}
	}
}

func TestTileFootprint(t *testing.T) {
	origin := testPlane.Origin
	tile := Tile(origin.Lon(), origin.Lat(), testPlane.Zoom)
	fp := testPlane.TileFootprint(tile)

	// At the reference zoom every footprint is exactly one tile of pixels.
	if got := fp.X.Length(); got != float64(testPlane.TileSizePx) {
		t.Errorf("footprint width = %v, want %v", got, testPlane.TileSizePx)
	}
	if got := fp.Y.Length(); got != float64(testPlane.TileSizePx) {
		t.Errorf("footprint height = %v, want %v", got, testPlane.TileSizePx)
	}

	// The reference coordinate is inside its own tile's footprint.
	if !fp.ContainsPoint(testPlane.ToWorld(origin)) {
		t.Errorf("footprint %v does not contain projected origin", fp)
	}
}

// Neighboring tiles must share footprint edges exactly, or rendered
// tiles show seams.
func TestTileFootprintSeams(t *testing.T) {
	origin := testPlane.Origin
	tile := Tile(origin.Lon(), origin.Lat(), testPlane.Zoom)
	east := maptile.Tile{X: tile.X + 1, Y: tile.Y, Z: tile.Z}
	south := maptile.Tile{X: tile.X, Y: tile.Y + 1, Z: tile.Z}

	fp := testPlane.TileFootprint(tile)
	if fpEast := testPlane.TileFootprint(east); fp.X.Hi != fpEast.X.Lo {
		t.Errorf("east seam: %v != %v", fp.X.Hi, fpEast.X.Lo)
	}
	// World y points north; the southern neighbor sits below.
	if fpSouth := testPlane.TileFootprint(south); fp.Y.Lo != fpSouth.Y.Hi {
		t.Errorf("south seam: %v != %v", fp.Y.Lo, fpSouth.Y.Hi)
	}
}

func TestMercatorPanicsAtPole(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic projecting latitude 90")
		}
	}()
	testPlane.ToWorld(orb.Point{0, 90})
}

func TestMetersPerPixel(t *testing.T) {
	// Zoom 14 with 512px tiles: 2 * 20037508.34 / 2^14 / 512.
	want := common.MetersPerTile(14) / 512
	if got := testPlane.MetersPerPixel(); math.Abs(got-want) > 1e-12 {
		t.Fatalf("meters per pixel = %v, want %v", got, want)
	}
	if math.Abs(want-4.7773) > 0.001 {
		t.Fatalf("unexpected scale for zoom 14 / 512px: %v", want)
	}
}

func TestTileWidthDegrees(t *testing.T) {
	for _, zoom := range []maptile.Zoom{0, 1, 7, 14, 18} {
		width := common.TileWidthDegrees(uint32(zoom))
		// Two longitudinally adjacent tiles are one tile width apart.
		a := TileUpperLeft(maptile.Tile{X: 0, Y: 0, Z: zoom})
		b := TileUpperLeft(maptile.Tile{X: 1, Y: 0, Z: zoom})
		if math.Abs(b.Lon()-a.Lon()-width) > 1e-9 {
			t.Errorf("zoom %d: adjacent corners %v apart, want %v",
				zoom, b.Lon()-a.Lon(), width)
		}
	}
	if common.TileWidthDegrees(0) != 360.0 {
		t.Errorf("zoom 0 tile should span the whole world")
	}
}
