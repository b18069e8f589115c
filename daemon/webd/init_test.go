package webd

import (
	"time"

	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/Woolyenough/ofm-viewer/types/tiles"
	"github.com/gorilla/mux"
	"github.com/paulmach/orb/maptile"
)

// newTestWebDaemon creates a WebDaemon for testing purposes.
// No fetcher is configured; tests insert tiles by hand.
func newTestWebDaemon() (*WebDaemon, *mux.Router) {
	daemon, err := NewWebDaemon(params.DefaultTestWebDaemonConfig())
	if err != nil {
		panic(err)
	}
	router := daemon.NewRouter()
	daemon.started = time.Now()
	return daemon, router
}

// loadBlock inserts a (2n+1)x(2n+1) block of tiles centered on the
// projection origin.
func loadBlock(d *WebDaemon, n uint32) {
	center := maptile.At(d.engine.Plane.Origin, d.engine.Plane.Zoom)
	for dx := -int(n); dx <= int(n); dx++ {
		for dy := -int(n); dy <= int(n); dy++ {
			index := maptile.New(
				uint32(int(center.X)+dx), uint32(int(center.Y)+dy), center.Z)
			d.engine.Store.Insert(tiles.New(index, d.engine.Plane, nil))
		}
	}
}
