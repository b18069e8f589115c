// Package tiledb is the persistent tile imagery cache: one bbolt
// database, one bucket, keys are canonical z/x/y strings. The fetcher
// consults it before going to the network; nothing else writes it.
package tiledb

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/Woolyenough/ofm-viewer/types/tiles"
	"github.com/paulmach/orb/maptile"
	"go.etcd.io/bbolt"
)

type Cache struct {
	db *bbolt.DB
}

func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0770); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(params.TileBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Get returns the cached imagery for a tile, if present.
func (c *Cache) Get(index maptile.Tile) ([]byte, bool) {
	var data []byte
	_ = c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(params.TileBucket).Get([]byte(tiles.Key(index)))
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	return data, data != nil
}

func (c *Cache) Put(index maptile.Tile, data []byte) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(params.TileBucket).Put([]byte(tiles.Key(index)), data)
	})
}

// Len returns the number of cached tiles.
func (c *Cache) Len() int {
	var n int
	_ = c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(params.TileBucket).Stats().KeyN
		return nil
	})
	return n
}

func (c *Cache) Path() string {
	return c.db.Path()
}

func (c *Cache) Close() error {
	return c.db.Close()
}
