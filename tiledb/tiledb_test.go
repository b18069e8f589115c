package tiledb

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/maptile"
)

func TestCache(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "tiles.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	index := maptile.Tile{X: 8198, Y: 5445, Z: 14}
	if _, ok := c.Get(index); ok {
		t.Fatal("empty cache returned a hit")
	}

	imagery := []byte("not actually a tile")
	if err := c.Put(index, imagery); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Get(index)
	if !ok || !bytes.Equal(got, imagery) {
		t.Fatalf("got %q ok=%v", got, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}

	// Same x/y at another zoom is a different key.
	if _, ok := c.Get(maptile.Tile{X: 8198, Y: 5445, Z: 15}); ok {
		t.Fatal("zoom should partition the keyspace")
	}
}
