/*
Package tilestore maintains the authoritative set of loaded tiles behind
an R-tree, so that "which tiles intersect this rectangle" stays sub-linear
as the loaded count grows. The query runs at least once per rendered
frame; inserts arrive from fetch goroutines concurrently with those
queries, so all access goes through one lock.

The store owns its Tile records. Query results are non-owning references;
callers must not hold them across a Remove.
*/
package tilestore

import (
	"sync"

	"github.com/Woolyenough/ofm-viewer/types/tiles"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/golang/geo/r2"
	"github.com/paulmach/orb/maptile"
	"github.com/tidwall/rtree"
)

type Store struct {
	mu      sync.RWMutex
	tree    rtree.RTreeG[*tiles.Tile]
	byIndex map[maptile.Tile]*tiles.Tile

	// revision increments on every mutation. Consumers can use it to
	// notice that cached query results have gone stale.
	revision uint64

	feedInserted event.FeedOf[*tiles.Tile]
	feedEvicted  event.FeedOf[maptile.Tile]

	reg       metrics.Registry
	inserts   metrics.Counter
	evictions metrics.Counter
	queries   metrics.Meter
}

func NewStore() *Store {
	s := &Store{
		byIndex:   make(map[maptile.Tile]*tiles.Tile),
		reg:       metrics.NewRegistry(),
		inserts:   metrics.NewCounter(),
		evictions: metrics.NewCounter(),
		queries:   metrics.NewMeter(),
	}
	if err := s.reg.Register("tiles.inserts", s.inserts); err != nil {
		panic(err)
	}
	if err := s.reg.Register("tiles.evictions", s.evictions); err != nil {
		panic(err)
	}
	if err := s.reg.Register("tiles.queries", s.queries); err != nil {
		panic(err)
	}
	return s
}

// Insert adds a tile keyed by its footprint. A duplicate index or a
// degenerate footprint is a contract violation by the producer
// (check Has before insert) and panics rather than silently leaking
// the resident tile's imagery.
func (s *Store) Insert(t *tiles.Tile) {
	if t.Footprint.X.Length() <= 0 || t.Footprint.Y.Length() <= 0 {
		panic("tilestore: degenerate footprint for " + t.Key())
	}
	s.mu.Lock()
	if _, exists := s.byIndex[t.Index]; exists {
		s.mu.Unlock()
		panic("tilestore: duplicate insert for " + t.Key())
	}
	s.byIndex[t.Index] = t
	min, max := boxOf(t.Footprint)
	s.tree.Insert(min, max, t)
	s.revision++
	s.mu.Unlock()

	s.inserts.Inc(1)
	s.feedInserted.Send(t)
}

// InsertIfAbsent adds the tile unless its index is already resident,
// reporting whether it was added. Racing producers for the same index
// degrade to a no-op instead of a duplicate-insert panic; a degenerate
// footprint still panics.
func (s *Store) InsertIfAbsent(t *tiles.Tile) bool {
	if t.Footprint.X.Length() <= 0 || t.Footprint.Y.Length() <= 0 {
		panic("tilestore: degenerate footprint for " + t.Key())
	}
	s.mu.Lock()
	if _, exists := s.byIndex[t.Index]; exists {
		s.mu.Unlock()
		return false
	}
	s.byIndex[t.Index] = t
	min, max := boxOf(t.Footprint)
	s.tree.Insert(min, max, t)
	s.revision++
	s.mu.Unlock()

	s.inserts.Inc(1)
	s.feedInserted.Send(t)
	return true
}

// Has reports whether the index is currently loaded.
func (s *Store) Has(index maptile.Tile) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byIndex[index]
	return ok
}

// Get returns the loaded tile for an index, if any.
func (s *Store) Get(index maptile.Tile) (*tiles.Tile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byIndex[index]
	return t, ok
}

// Remove evicts a tile by index, reporting whether it was present.
func (s *Store) Remove(index maptile.Tile) bool {
	s.mu.Lock()
	t, ok := s.byIndex[index]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.byIndex, index)
	min, max := boxOf(t.Footprint)
	s.tree.Delete(min, max, t)
	s.revision++
	s.mu.Unlock()

	s.evictions.Inc(1)
	s.feedEvicted.Send(index)
	return true
}

// Intersecting returns every loaded tile whose footprint intersects the
// query rectangle. Order is unspecified.
func (s *Store) Intersecting(r r2.Rect) []*tiles.Tile {
	s.mu.RLock()
	var out []*tiles.Tile
	s.tree.Search(
		[2]float64{r.X.Lo, r.Y.Lo},
		[2]float64{r.X.Hi, r.Y.Hi},
		func(_, _ [2]float64, t *tiles.Tile) bool {
			out = append(out, t)
			return true
		})
	s.mu.RUnlock()

	s.queries.Mark(1)
	return out
}

// EvictOutside removes every tile whose footprint does not intersect the
// retention rectangle, returning how many went. The policy of what rect
// to retain belongs to the caller; this is just the efficient bulk op.
func (s *Store) EvictOutside(retain r2.Rect) int {
	s.mu.Lock()
	var doomed []*tiles.Tile
	s.tree.Scan(func(_, _ [2]float64, t *tiles.Tile) bool {
		if !retain.Intersects(t.Footprint) {
			doomed = append(doomed, t)
		}
		return true
	})
	for _, t := range doomed {
		delete(s.byIndex, t.Index)
		min, max := boxOf(t.Footprint)
		s.tree.Delete(min, max, t)
	}
	if len(doomed) > 0 {
		s.revision++
	}
	s.mu.Unlock()

	for _, t := range doomed {
		s.evictions.Inc(1)
		s.feedEvicted.Send(t.Index)
	}
	return len(doomed)
}

// All returns every loaded tile, in no particular order.
func (s *Store) All() []*tiles.Tile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tiles.Tile, 0, len(s.byIndex))
	for _, t := range s.byIndex {
		out = append(out, t)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byIndex)
}

// Revision returns the current mutation counter.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// SubscribeInserted delivers every newly inserted tile to ch until the
// subscription is unsubscribed.
func (s *Store) SubscribeInserted(ch chan<- *tiles.Tile) event.Subscription {
	return s.feedInserted.Subscribe(ch)
}

// SubscribeEvicted delivers the index of every removed tile to ch.
func (s *Store) SubscribeEvicted(ch chan<- maptile.Tile) event.Subscription {
	return s.feedEvicted.Subscribe(ch)
}

// InsertCount and EvictionCount expose the lifetime counters.
func (s *Store) InsertCount() int64   { return s.inserts.Snapshot().Count() }
func (s *Store) EvictionCount() int64 { return s.evictions.Snapshot().Count() }

func boxOf(r r2.Rect) (min, max [2]float64) {
	return [2]float64{r.X.Lo, r.Y.Lo}, [2]float64{r.X.Hi, r.Y.Hi}
}
