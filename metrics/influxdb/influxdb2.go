package influxdb

import (
	"strconv"
	"sync"
	"time"

	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/Woolyenough/ofm-viewer/types/tiles"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// TileFetch is one completed tile download.
type TileFetch struct {
	Tile    *tiles.Tile
	Origin  string
	Bytes   int
	Elapsed time.Duration
	At      time.Time
}

// Enabled reports whether an InfluxDB endpoint is configured.
func Enabled() bool {
	return params.INFLUXDB_URL != ""
}

// ExportTileFetches posts fetch events to an InfluxDB Write API.
// Because it accepts a slice, use batches. The Write API will buffer and flush.
// The last error encountered is returned.
func ExportTileFetches(fetches []TileFetch) error {
	opts := influxdb2.DefaultOptions()
	opts.SetPrecision(time.Second)
	client := influxdb2.NewClientWithOptions(params.INFLUXDB_URL, params.INFLUXDB_TOKEN, opts)
	writeAPI := client.WriteAPI(params.INFLUXDB_ORG, params.INFLUXDB_BUCKET)

	// Errors returns a channel for reading errors which occurs during async writes.
	// Must be called before performing any writes for errors to be collected.
	// The chan is unbuffered and must be drained or the writer will block.
	// https://github.com/influxdata/influxdb-client-go?tab=readme-ov-file#reading-async-errors
	errorsCh := writeAPI.Errors()
	var err error
	wait := sync.WaitGroup{}
	wait.Add(1)
	go func() {
		defer wait.Done()
		for e := range errorsCh {
			if e != nil {
				err = e
			}
		}
	}()

	for _, f := range fetches {
		p := influxdb2.NewPointWithMeasurement("tilefetch").
			SetTime(f.At).
			AddTag("zoom", strconv.Itoa(int(f.Tile.Index.Z))).
			AddTag("origin", f.Origin).
			AddField("z", int(f.Tile.Index.Z)).
			AddField("x", int(f.Tile.Index.X)).
			AddField("y", int(f.Tile.Index.Y)).
			AddField("bytes", f.Bytes).
			AddField("elapsed_ms", f.Elapsed.Milliseconds())
		writeAPI.WritePoint(p)
	}
	writeAPI.Flush()
	client.Close()
	wait.Wait()
	return err
}
