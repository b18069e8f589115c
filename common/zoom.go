package common

import "math"

/*
Level 	# Tiles 	Tile width
(° of longitudes) 	m / pixel
(on Equator) 	~ Scale
(on screen) 	Examples of
areas to represent
0 	1 	360 	156 543 	1:500 million 	whole world
2 	16 	90 	39 136 	1:150 million 	subcontinental area
5 	1 024 	11.25 	4 892 	1:15 million 	large African country
7 	16 384 	2.813 	1 223 	1:4 million 	small country, US state
10 	1 048 576 	0.352 	152.874 	1:500 thousand 	metropolitan area
12 	16 777 216 	0.088 	38.219 	1:150 thousand 	town, or city district
14 	268 435 456 	0.022 	9.555 	1:35 thousand
16 	4 294 967 296 	0.005 	2.389 	1:8 thousand 	street
18 	68 719 476 736 	0.001 	0.597 	1:2 thousand 	some buildings, trees
20 	1 099 511 627 776 	0.00025 	0.149 	1:5 hundred 	A mid-sized building
*/

// WebMercatorHalfCircumference is the half-circumference of the Web
// Mercator (EPSG:3857) plane in meters. The projected world spans
// [-20037508.34, 20037508.34] on both axes. The two-decimal truncation
// is deliberate; world offsets must agree with it bit-for-bit.
const WebMercatorHalfCircumference = 20037508.34

// MercatorLatLimit is the latitude at which the square Web Mercator
// world cuts off: atan(sinh(π)). Forward projection is undefined at and
// beyond ±90, and slippy tiles do not exist beyond ±~85.05.
const MercatorLatLimit = 85.05112878

// TileWidthDegrees returns the longitudinal span of one slippy tile
// at the given zoom level.
func TileWidthDegrees(zoom uint32) float64 {
	return 360.0 / float64(uint64(1)<<zoom)
}

// MetersPerTile returns the Web Mercator edge length of one slippy tile
// at the given zoom level.
func MetersPerTile(zoom uint32) float64 {
	return WebMercatorHalfCircumference * 2.0 / math.Pow(2, float64(zoom))
}

// MetersPerPixel returns the world scale for a tile pyramid rendered with
// tileSizePx-pixel tiles at the given zoom level.
func MetersPerPixel(zoom uint32, tileSizePx int) float64 {
	return MetersPerTile(zoom) / float64(tileSizePx)
}
