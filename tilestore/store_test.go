package tilestore

import (
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/Woolyenough/ofm-viewer/geo/project"
	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/Woolyenough/ofm-viewer/types/tiles"
	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

var testPlane = project.Plane{
	Origin:     orb.Point{params.DefaultReferenceLon, params.DefaultReferenceLat},
	Zoom:       params.DefaultReferenceZoom,
	TileSizePx: params.DefaultTileSizePx,
}

func originTile() maptile.Tile {
	return project.Tile(testPlane.Origin.Lon(), testPlane.Origin.Lat(), testPlane.Zoom)
}

// newTestStore loads a (2n+1)^2 block of tiles centered on the origin tile.
func newTestStore(t *testing.T, n uint32) (*Store, []*tiles.Tile) {
	t.Helper()
	s := NewStore()
	center := originTile()
	var all []*tiles.Tile
	for x := center.X - n; x <= center.X+n; x++ {
		for y := center.Y - n; y <= center.Y+n; y++ {
			tl := tiles.New(maptile.Tile{X: x, Y: y, Z: center.Z}, testPlane, nil)
			s.Insert(tl)
			all = append(all, tl)
		}
	}
	return s, all
}

func keysOf(ts []*tiles.Tile) []string {
	keys := make([]string, len(ts))
	for i, t := range ts {
		keys[i] = t.Key()
	}
	sort.Strings(keys)
	return keys
}

func sameSet(a, b []*tiles.Tile) bool {
	ka, kb := keysOf(a), keysOf(b)
	if len(ka) != len(kb) {
		return false
	}
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

// The R-tree must return exactly what a linear scan of footprints does:
// no false positives, no false negatives.
func TestIntersectingMatchesBruteForce(t *testing.T) {
	s, all := newTestStore(t, 5)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		cx := (rng.Float64() - 0.5) * 8000
		cy := (rng.Float64() - 0.5) * 8000
		w := rng.Float64() * 3000
		h := rng.Float64() * 3000
		query := r2.Rect{
			X: r1.Interval{Lo: cx - w/2, Hi: cx + w/2},
			Y: r1.Interval{Lo: cy - h/2, Hi: cy + h/2},
		}

		var want []*tiles.Tile
		for _, tl := range all {
			if query.Intersects(tl.Footprint) {
				want = append(want, tl)
			}
		}
		got := s.Intersecting(query)
		if !sameSet(got, want) {
			t.Fatalf("query %v: got %v want %v", query, keysOf(got), keysOf(want))
		}
	}
}

func TestIntersectingIdempotent(t *testing.T) {
	s, _ := newTestStore(t, 3)
	query := r2.Rect{
		X: r1.Interval{Lo: -1000, Hi: 1000},
		Y: r1.Interval{Lo: -1000, Hi: 1000},
	}
	first := s.Intersecting(query)
	if len(first) == 0 {
		t.Fatal("expected hits around the origin")
	}
	for i := 0; i < 10; i++ {
		again := s.Intersecting(query)
		if !sameSet(first, again) {
			t.Fatalf("query #%d returned a different set", i)
		}
	}
}

// Inserting the reference-coordinate tile and querying a rect containing
// the world origin must return that tile.
func TestOriginScenario(t *testing.T) {
	s := NewStore()
	tl := tiles.New(originTile(), testPlane, nil)
	s.Insert(tl)

	query := r2.Rect{
		X: r1.Interval{Lo: -1, Hi: 1},
		Y: r1.Interval{Lo: -1, Hi: 1},
	}
	got := s.Intersecting(query)
	if len(got) != 1 || got[0].Index != tl.Index {
		t.Fatalf("origin query returned %v, want [%s]", keysOf(got), tl.Key())
	}
}

func TestInsertDuplicatePanics(t *testing.T) {
	s := NewStore()
	tl := tiles.New(originTile(), testPlane, nil)
	s.Insert(tl)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate insert")
		}
	}()
	s.Insert(tiles.New(originTile(), testPlane, nil))
}

func TestInsertIfAbsent(t *testing.T) {
	s := NewStore()
	first := tiles.New(originTile(), testPlane, nil)
	if !s.InsertIfAbsent(first) {
		t.Fatal("first insert reported absent index as present")
	}

	// The duplicate is a no-op, not a panic: racing fetchers hit this.
	if s.InsertIfAbsent(tiles.New(originTile(), testPlane, nil)) {
		t.Error("duplicate insert reported as added")
	}
	if s.Len() != 1 {
		t.Errorf("store has %d tiles, want 1", s.Len())
	}
	if got, _ := s.Get(originTile()); got != first {
		t.Error("resident tile replaced by duplicate")
	}
}

func TestRemove(t *testing.T) {
	s, all := newTestStore(t, 1)
	victim := all[0]
	if !s.Remove(victim.Index) {
		t.Fatal("remove reported not present")
	}
	if s.Remove(victim.Index) {
		t.Fatal("second remove reported present")
	}
	if s.Has(victim.Index) {
		t.Fatal("removed tile still present")
	}
	if got := s.Intersecting(victim.Footprint); sameSetContains(got, victim) {
		t.Fatal("removed tile still returned by query")
	}
	if s.Len() != len(all)-1 {
		t.Fatalf("len = %d, want %d", s.Len(), len(all)-1)
	}
}

func sameSetContains(ts []*tiles.Tile, needle *tiles.Tile) bool {
	for _, t := range ts {
		if t.Index == needle.Index {
			return true
		}
	}
	return false
}

func TestEvictOutside(t *testing.T) {
	s, _ := newTestStore(t, 4)
	before := s.Len()

	retain := r2.Rect{
		X: r1.Interval{Lo: -600, Hi: 600},
		Y: r1.Interval{Lo: -600, Hi: 600},
	}
	gone := s.EvictOutside(retain)
	if gone == 0 {
		t.Fatal("expected evictions")
	}
	if s.Len()+gone != before {
		t.Fatalf("len %d + gone %d != before %d", s.Len(), gone, before)
	}
	for _, tl := range s.Intersecting(everything()) {
		if !retain.Intersects(tl.Footprint) {
			t.Fatalf("survivor %s outside retention rect", tl.Key())
		}
	}
}

func everything() r2.Rect {
	return r2.Rect{
		X: r1.Interval{Lo: -1e12, Hi: 1e12},
		Y: r1.Interval{Lo: -1e12, Hi: 1e12},
	}
}

// Inserts race per-frame queries in production; exercise under the race
// detector.
func TestConcurrentInsertQuery(t *testing.T) {
	s := NewStore()
	center := originTile()
	query := everything()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for dx := uint32(0); dx < 20; dx++ {
			tl := tiles.New(maptile.Tile{X: center.X + dx, Y: center.Y, Z: center.Z}, testPlane, nil)
			s.Insert(tl)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Intersecting(query)
		}
	}()
	wg.Wait()

	if s.Len() != 20 {
		t.Fatalf("len = %d, want 20", s.Len())
	}
}

func TestRevisionAndCounters(t *testing.T) {
	s := NewStore()
	r0 := s.Revision()
	tl := tiles.New(originTile(), testPlane, nil)
	s.Insert(tl)
	if s.Revision() == r0 {
		t.Fatal("revision unchanged after insert")
	}
	if s.InsertCount() != 1 {
		t.Fatalf("insert count = %d", s.InsertCount())
	}
	s.Remove(tl.Index)
	if s.EvictionCount() != 1 {
		t.Fatalf("eviction count = %d", s.EvictionCount())
	}
}
