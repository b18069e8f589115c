package params

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

var DatadirRoot = func() string {
	home, err := homedir.Dir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(home, ".ofm-viewer")
}()

var TileDBName = "tiles.db"
var TileBucket = []byte("imagery")

// INFLUXDB_* configure the optional tile-event exporter.
// Export is disabled when INFLUXDB_URL is empty.
var (
	INFLUXDB_URL    = os.Getenv("INFLUXDB_URL")
	INFLUXDB_TOKEN  = os.Getenv("INFLUXDB_TOKEN")
	INFLUXDB_ORG    = os.Getenv("INFLUXDB_ORG")
	INFLUXDB_BUCKET = os.Getenv("INFLUXDB_BUCKET")
)
