// Package tiles defines the loaded-tile record the spatial index owns.
package tiles

import (
	"encoding/json"
	"fmt"

	"github.com/Woolyenough/ofm-viewer/geo/project"
	"github.com/golang/geo/r2"
	"github.com/paulmach/orb/maptile"
)

// Tile is one loaded slippy-map tile. The footprint is derived from the
// index exactly once, at construction; it is never recomputed. Imagery
// is an opaque blob owned by the render collaborator - the engine never
// decodes it.
type Tile struct {
	Index     maptile.Tile
	Footprint r2.Rect
	Imagery   []byte
}

// New builds a Tile for the given index on the given plane.
func New(index maptile.Tile, plane project.Plane, imagery []byte) *Tile {
	return &Tile{
		Index:     index,
		Footprint: plane.TileFootprint(index),
		Imagery:   imagery,
	}
}

// Key is the canonical z/x/y identifier, eg. "14/8198/5445".
func Key(index maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", index.Z, index.X, index.Y)
}

func (t *Tile) Key() string {
	return Key(t.Index)
}

type tileJSON struct {
	X    uint32     `json:"x"`
	Y    uint32     `json:"y"`
	Z    uint32     `json:"z"`
	Min  [2]float64 `json:"min"`
	Max  [2]float64 `json:"max"`
	Size int        `json:"size"`
}

// MarshalJSON reports the index, world footprint, and imagery byte count.
// Imagery itself moves over the tile endpoint, not inside listings.
func (t *Tile) MarshalJSON() ([]byte, error) {
	return json.Marshal(tileJSON{
		X:    t.Index.X,
		Y:    t.Index.Y,
		Z:    uint32(t.Index.Z),
		Min:  [2]float64{t.Footprint.X.Lo, t.Footprint.Y.Lo},
		Max:  [2]float64{t.Footprint.X.Hi, t.Footprint.Y.Hi},
		Size: len(t.Imagery),
	})
}
