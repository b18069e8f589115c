package params

import (
	"path/filepath"
	"time"
)

type FetchConfig struct {
	// SourceURL is a tile URL template with {z}/{x}/{y} placeholders,
	// or an s3://bucket/prefix source.
	// Leave empty to resolve the template from TileJSONURL instead.
	SourceURL string

	// TileJSONURL is a TileJSON endpoint whose tiles[0] entry supplies
	// the URL template when SourceURL is empty.
	TileJSONURL string

	// Workers is the number of concurrent tile downloads.
	Workers int

	// Timeout bounds a single tile request.
	Timeout time.Duration

	// InflightTTL is how long a tile request is considered pending before
	// it may be re-requested. Guards against re-fetch storms while a slow
	// request is still on the wire.
	InflightTTL time.Duration

	// RecentLRUSize is the size of the recently-completed dedupe cache.
	RecentLRUSize int

	// HotCacheSize is the number of tile imagery blobs held in memory
	// in front of the disk cache.
	HotCacheSize int

	// CacheDBPath is the bbolt imagery cache. Empty disables disk caching.
	CacheDBPath string

	// PollInterval is how often the fetcher asks the engine for missing
	// tiles when running as a daemon collaborator.
	PollInterval time.Duration
}

func DefaultFetchConfig() *FetchConfig {
	return &FetchConfig{
		TileJSONURL:   "https://tiles.openfreemap.org/planet",
		Workers:       8,
		Timeout:       10 * time.Second,
		InflightTTL:   30 * time.Second,
		RecentLRUSize: 10_000,
		HotCacheSize:  512,
		CacheDBPath:   filepath.Join(DatadirRoot, TileDBName),
		PollInterval:  250 * time.Millisecond,
	}
}
