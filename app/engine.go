/*
Package app wires the projection plane, the tile store, and the viewport
mapper into one engine instance.

The engine is frame-driven and single-threaded: the host render
loop calls Frame once per tick, and the viewport math, the spatial query,
and the render-set rebuild all run synchronously inside that call.
Nothing here blocks. Tile fetching happens elsewhere, on its own
goroutines, and lands in the store through Store.Insert; the store's lock
is the hand-off point.

The render set is rebuilt wholesale every frame rather than diffed.
Spatial queries are sub-linear and a viewport holds tens of tiles, so a
rebuild is cheap; identical consecutive frames are detected by hashing
the camera state and skipped entirely.
*/
package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Woolyenough/ofm-viewer/common"
	"github.com/Woolyenough/ofm-viewer/geo/project"
	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/Woolyenough/ofm-viewer/tilestore"
	"github.com/Woolyenough/ofm-viewer/types/tiles"
	"github.com/Woolyenough/ofm-viewer/viewport"
	"github.com/ethereum/go-ethereum/event"
	"github.com/golang/geo/r2"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/montanaflynn/stats"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type Engine struct {
	Config *params.EngineConfig
	Plane  project.Plane
	Store  *tilestore.Store
	Mapper viewport.Mapper

	mu            sync.Mutex
	renderSet     []*tiles.Tile
	haveFrame     bool
	lastFrameHash uint64
	lastRevision  uint64
	timings       []float64

	feedRenderSet event.FeedOf[[]*tiles.Tile]

	logger *slog.Logger
}

func NewEngine(config *params.EngineConfig) *Engine {
	if config == nil {
		config = params.DefaultEngineConfig()
	}
	plane := project.Plane{
		Origin:     config.RefCoord,
		Zoom:       config.RefZoom,
		TileSizePx: config.TileSizePx,
	}
	return &Engine{
		Config: config,
		Plane:  plane,
		Store:  tilestore.NewStore(),
		Mapper: viewport.Mapper{Plane: plane},
		logger: slog.With("c", "engine"),
	}
}

// Frame recomputes the render set for the given camera state: visible
// rect, spatial query, wholesale rebuild, then eviction of tiles fallen
// outside the retention margin. Returns the new set.
//
// If neither the camera nor the store contents changed since the last
// call, the previous set is returned without requerying.
func (e *Engine) Frame(cam viewport.Camera, win viewport.Window) []*tiles.Tile {
	frameHash, hashErr := hashstructure.Hash(struct {
		Cam viewport.Camera
		Win viewport.Window
	}{cam, win}, hashstructure.FormatV2, nil)

	e.mu.Lock()
	if hashErr == nil && e.haveFrame &&
		frameHash == e.lastFrameHash && e.lastRevision == e.Store.Revision() {
		set := e.renderSet
		e.mu.Unlock()
		return set
	}
	e.mu.Unlock()

	start := time.Now()

	visible := e.Mapper.VisibleWorldRect(cam, win)
	set := e.Store.Intersecting(visible)

	retain := r2.RectFromCenterSize(visible.Center(), visible.Size().Mul(e.Config.RetentionFactor))
	if evicted := e.Store.EvictOutside(retain); evicted > 0 {
		e.logger.Debug("Evicted tiles", "n", evicted, "loaded", e.Store.Len())
	}

	e.mu.Lock()
	e.renderSet = set
	e.haveFrame = true
	e.lastFrameHash = frameHash
	e.lastRevision = e.Store.Revision()
	e.timings = append(e.timings, float64(time.Since(start).Microseconds())/1000.0)
	if len(e.timings) > e.Config.FrameTimingWindow {
		e.timings = e.timings[len(e.timings)-e.Config.FrameTimingWindow:]
	}
	e.mu.Unlock()

	e.feedRenderSet.Send(set)
	return set
}

// FrameFromSource runs Frame against a camera source, treating an absent
// camera as an empty, expected frame.
func (e *Engine) FrameFromSource(src viewport.Source) ([]*tiles.Tile, bool) {
	cam, win, ok := src.Frame()
	if !ok {
		e.logger.Debug("No camera for frame")
		return nil, false
	}
	return e.Frame(cam, win), true
}

// RenderSet returns the current frame's tile references. The slice is a
// copy; the referenced tiles remain owned by the store.
func (e *Engine) RenderSet() []*tiles.Tile {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*tiles.Tile, len(e.renderSet))
	copy(out, e.renderSet)
	return out
}

// SubscribeRenderSet delivers each rebuilt render set to ch.
func (e *Engine) SubscribeRenderSet(ch chan<- []*tiles.Tile) event.Subscription {
	return e.feedRenderSet.Subscribe(ch)
}

// Missing returns the indices of tiles that intersect the visible bound
// but are not loaded, for the fetch collaborator to go get. The fetcher
// owns in-flight dedupe; this just reports want-minus-have.
func (e *Engine) Missing(cam viewport.Camera, win viewport.Window) []maptile.Tile {
	bound := e.Mapper.VisibleGeoBound(cam, win)
	return e.MissingInBound(bound)
}

// MissingInBound enumerates unloaded tiles covering a geographic bound
// at the reference zoom.
func (e *Engine) MissingInBound(bound orb.Bound) []maptile.Tile {
	// Tile y grows southward, so the bound's max latitude is the min row.
	nw := project.Tile(bound.Min.Lon(), project.ClampLat(bound.Max.Lat()), e.Plane.Zoom)
	se := project.Tile(bound.Max.Lon(), project.ClampLat(bound.Min.Lat()), e.Plane.Zoom)

	var missing []maptile.Tile
	for x := nw.X; x <= se.X; x++ {
		for y := nw.Y; y <= se.Y; y++ {
			index := maptile.Tile{X: x, Y: y, Z: e.Plane.Zoom}
			if !e.Store.Has(index) {
				missing = append(missing, index)
			}
		}
	}
	return missing
}

type FrameStats struct {
	Frames   int     `json:"frames"`
	MeanMs   float64 `json:"mean_ms"`
	MedianMs float64 `json:"median_ms"`
	P95Ms    float64 `json:"p95_ms"`
}

// FrameStats summarizes recent (non-skipped) frame rebuild durations.
func (e *Engine) FrameStats() FrameStats {
	e.mu.Lock()
	timings := make([]float64, len(e.timings))
	copy(timings, e.timings)
	e.mu.Unlock()

	if len(timings) == 0 {
		return FrameStats{}
	}
	mean, _ := stats.Mean(timings)
	median, _ := stats.Median(timings)
	p95, _ := stats.Percentile(timings, 95)
	// Microsecond resolution is plenty for a status report.
	return FrameStats{
		Frames:   len(timings),
		MeanMs:   common.DecimalToFixed(mean, 3),
		MedianMs: common.DecimalToFixed(median, 3),
		P95Ms:    common.DecimalToFixed(p95, 3),
	}
}
