/*
Package fetch is the tile imagery collaborator: it decides nothing about
what is visible, it just goes and gets what the engine reports missing
and hands completed tiles to the store.

Sources are an HTTP tile server (URL template with {z}/{x}/{y}
placeholders, optionally resolved from a TileJSON endpoint) or an
s3://bucket/prefix layout. Fetched imagery lands in three places: a
small in-memory LRU, the bbolt disk cache, and the store itself.

Request dedupe is the fetcher's job, not the store's: an in-flight TTL
cache stops re-requests while a tile is on the wire, and a failure LRU
stops hammering tiles that recently 404ed.
*/
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Woolyenough/ofm-viewer/app"
	"github.com/Woolyenough/ofm-viewer/metrics/influxdb"
	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/Woolyenough/ofm-viewer/stream"
	"github.com/Woolyenough/ofm-viewer/tiledb"
	"github.com/Woolyenough/ofm-viewer/types/tiles"
	"github.com/Woolyenough/ofm-viewer/viewport"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/dustin/go-humanize"
	"github.com/golang/groupcache/lru"
	lruv2 "github.com/hashicorp/golang-lru/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/tidwall/gjson"
)

type Fetcher struct {
	Config *params.FetchConfig

	engine *app.Engine
	client *http.Client
	disk   *tiledb.Cache

	// hot fronts the disk cache for tiles that bounce in and out of the
	// retention margin while panning.
	hot *lruv2.Cache[maptile.Tile, []byte]

	// admitMu makes admission atomic: the in-flight and failure checks
	// and the in-flight claim happen under one lock, so racing fetchAll
	// calls cannot both claim the same tile.
	admitMu sync.Mutex
	// inflight guards against re-requesting a tile already on the wire.
	inflight *ttlcache.Cache[string, time.Time]
	// failed backs off tiles that recently errored.
	failed *lru.Cache

	// template is the resolved tile URL template, or s3://bucket/prefix.
	template atomic.Value

	totalBytes atomic.Int64
	totalTiles atomic.Int64

	// exportMu guards the batch of fetch events pending InfluxDB
	// export. Export is a no-op unless an endpoint is configured.
	exportMu sync.Mutex
	export   []influxdb.TileFetch

	logger *slog.Logger
}

const exportBatchSize = 64

func NewFetcher(config *params.FetchConfig, engine *app.Engine) (*Fetcher, error) {
	if config == nil {
		config = params.DefaultFetchConfig()
	}
	f := &Fetcher{
		Config: config,
		engine: engine,
		client: &http.Client{Timeout: config.Timeout},
		inflight: ttlcache.New[string, time.Time](
			ttlcache.WithTTL[string, time.Time](config.InflightTTL)),
		failed: lru.New(config.RecentLRUSize),
		logger: slog.With("c", "fetch"),
	}

	hot, err := lruv2.New[maptile.Tile, []byte](config.HotCacheSize)
	if err != nil {
		return nil, err
	}
	f.hot = hot

	if config.CacheDBPath != "" {
		disk, err := tiledb.Open(config.CacheDBPath)
		if err != nil {
			return nil, fmt.Errorf("open tile cache: %w", err)
		}
		f.disk = disk
		f.logger.Info("Tile cache open", "path", disk.Path(), "tiles", disk.Len())
	}

	go f.inflight.Start()
	return f, nil
}

func (f *Fetcher) Close() error {
	f.inflight.Stop()
	f.exportMu.Lock()
	batch := f.export
	f.export = nil
	f.exportMu.Unlock()
	if len(batch) > 0 {
		if err := influxdb.ExportTileFetches(batch); err != nil {
			f.logger.Warn("InfluxDB export failed", "error", err)
		}
	}
	if f.disk != nil {
		return f.disk.Close()
	}
	return nil
}

// ResolveSource establishes the tile URL template, consulting the
// TileJSON endpoint when no explicit template is configured.
func (f *Fetcher) ResolveSource(ctx context.Context) error {
	if f.Config.SourceURL != "" {
		f.template.Store(f.Config.SourceURL)
		return nil
	}
	if f.Config.TileJSONURL == "" {
		return fmt.Errorf("no tile source configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Config.TileJSONURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("tilejson: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tilejson: status %d from %s", resp.StatusCode, f.Config.TileJSONURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	template := gjson.GetBytes(body, "tiles.0").String()
	if template == "" {
		return fmt.Errorf("tilejson: no tiles[0] in %s", f.Config.TileJSONURL)
	}
	f.template.Store(template)
	f.logger.Info("Resolved tile source", "template", template)
	return nil
}

// Run polls the camera source and fetches whatever the visible bound is
// missing, until the context is done.
func (f *Fetcher) Run(ctx context.Context, src viewport.Source) error {
	if err := f.ResolveSource(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(f.Config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		bound, ok := f.engine.Mapper.Visible(src)
		if !ok {
			continue
		}
		f.FetchMissing(ctx, bound)
	}
}

// FetchMissing fetches every unloaded tile intersecting the bound,
// returning how many landed in the store.
func (f *Fetcher) FetchMissing(ctx context.Context, bound orb.Bound) int {
	return f.fetchAll(ctx, f.engine.MissingInBound(bound))
}

// FetchIndices fetches the given tiles, skipping loaded, in-flight, and
// recently-failed ones.
func (f *Fetcher) FetchIndices(ctx context.Context, indices []maptile.Tile) int {
	return f.fetchAll(ctx, indices)
}

func (f *Fetcher) fetchAll(ctx context.Context, indices []maptile.Tile) int {
	want := stream.Filter(ctx, f.admit, stream.Slice(ctx, indices))

	var landed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < f.Config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range want {
				inserted, err := f.fetchOne(ctx, index)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					f.markFailed(index)
					f.logger.Warn("Tile fetch failed", "tile", tiles.Key(index), "error", err)
					continue
				}
				if inserted {
					landed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	return int(landed.Load())
}

// admit decides whether a tile is worth requesting right now, and
// claims it in the in-flight cache if so.
func (f *Fetcher) admit(index maptile.Tile) bool {
	if f.engine.Store.Has(index) {
		return false
	}
	key := tiles.Key(index)

	f.admitMu.Lock()
	defer f.admitMu.Unlock()
	if f.inflight.Has(key) {
		return false
	}
	if _, failed := f.failed.Get(key); failed {
		return false
	}
	f.inflight.Set(key, time.Now(), ttlcache.DefaultTTL)
	return true
}

func (f *Fetcher) markFailed(index maptile.Tile) {
	f.admitMu.Lock()
	f.failed.Add(tiles.Key(index), true)
	f.admitMu.Unlock()
}

func (f *Fetcher) fetchOne(ctx context.Context, index maptile.Tile) (bool, error) {
	key := tiles.Key(index)
	defer f.inflight.Delete(key)

	start := time.Now()
	data, origin, err := f.imagery(ctx, index)
	if err != nil {
		return false, err
	}
	t := tiles.New(index, f.engine.Plane, data)
	// A racer may have landed the same index between admission and now;
	// the store treats the second arrival as a no-op.
	if !f.engine.Store.InsertIfAbsent(t) {
		return false, nil
	}
	f.recordFetch(t, origin, len(data), time.Since(start))

	total := f.totalBytes.Add(int64(len(data)))
	n := f.totalTiles.Add(1)
	f.logger.Debug("↧ Tile",
		"tile", key, "from", origin,
		"size", humanize.Bytes(uint64(len(data))),
		"elapsed", time.Since(start).Round(time.Millisecond))
	if n%100 == 0 {
		f.logger.Info("Fetched tiles", "n", humanize.Comma(n),
			"total", humanize.Bytes(uint64(total)))
	}
	return true, nil
}

func (f *Fetcher) recordFetch(t *tiles.Tile, origin string, size int, elapsed time.Duration) {
	if !influxdb.Enabled() {
		return
	}
	f.exportMu.Lock()
	f.export = append(f.export, influxdb.TileFetch{
		Tile: t, Origin: origin, Bytes: size, Elapsed: elapsed, At: time.Now(),
	})
	var batch []influxdb.TileFetch
	if len(f.export) >= exportBatchSize {
		batch = f.export
		f.export = nil
	}
	f.exportMu.Unlock()
	if batch != nil {
		go func() {
			if err := influxdb.ExportTileFetches(batch); err != nil {
				f.logger.Warn("InfluxDB export failed", "error", err)
			}
		}()
	}
}

// imagery fetches tile bytes, nearest copy first: memory, disk, remote.
func (f *Fetcher) imagery(ctx context.Context, index maptile.Tile) ([]byte, string, error) {
	if data, ok := f.hot.Get(index); ok {
		return data, "hot", nil
	}
	if f.disk != nil {
		if data, ok := f.disk.Get(index); ok {
			f.hot.Add(index, data)
			return data, "disk", nil
		}
	}

	template, _ := f.template.Load().(string)
	if template == "" {
		return nil, "", fmt.Errorf("tile source not resolved")
	}

	var data []byte
	var err error
	if strings.HasPrefix(template, "s3://") {
		data, err = f.remoteS3(ctx, template, index)
	} else {
		data, err = f.remoteHTTP(ctx, template, index)
	}
	if err != nil {
		return nil, "", err
	}

	f.hot.Add(index, data)
	if f.disk != nil {
		if err := f.disk.Put(index, data); err != nil {
			f.logger.Warn("Tile cache write failed", "tile", tiles.Key(index), "error", err)
		}
	}
	return data, "remote", nil
}

func (f *Fetcher) remoteHTTP(ctx context.Context, template string, index maptile.Tile) ([]byte, error) {
	url := TileURL(template, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

// remoteS3 downloads bucket/prefix/z/x/y. The AWS library configures
// itself from the environment.
func (f *Fetcher) remoteS3(ctx context.Context, source string, index maptile.Tile) ([]byte, error) {
	trimmed := strings.TrimPrefix(source, "s3://")
	bucket, prefix, _ := strings.Cut(trimmed, "/")

	sess := session.Must(session.NewSession())
	downloader := s3manager.NewDownloader(sess)

	buf := aws.NewWriteAtBuffer([]byte{})
	_, err := downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path.Join(prefix, tiles.Key(index))),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download: %w", err)
	}
	return buf.Bytes(), nil
}

// TileURL expands a {z}/{x}/{y} template for one tile.
func TileURL(template string, index maptile.Tile) string {
	return strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(index.Z), 10),
		"{x}", strconv.FormatUint(uint64(index.X), 10),
		"{y}", strconv.FormatUint(uint64(index.Y), 10),
	).Replace(template)
}

// Stats reports lifetime fetch volume.
func (f *Fetcher) Stats() (tilesFetched int64, bytesFetched int64) {
	return f.totalTiles.Load(), f.totalBytes.Load()
}
