package webd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Woolyenough/ofm-viewer/app"
	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/Woolyenough/ofm-viewer/types/tiles"
	"github.com/Woolyenough/ofm-viewer/viewport"
	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func pingPong(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

type webDaemonStatus struct {
	StartedAt    time.Time               `json:"started_at"`
	Uptime       string                  `json:"uptime"`
	Config       *params.WebDaemonConfig `json:"config"`
	WSOpen       bool                    `json:"ws_open"`
	WSConns      int                     `json:"ws_conns"`
	Tiles        int                     `json:"tiles"`
	Revision     uint64                  `json:"revision"`
	Frames       app.FrameStats          `json:"frames"`
	TilesFetched int64                   `json:"tiles_fetched"`
	BytesFetched int64                   `json:"bytes_fetched"`
}

func (s *WebDaemon) statusReport(w http.ResponseWriter, r *http.Request) {
	st := webDaemonStatus{
		StartedAt: s.started,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Config:    s.Config,
		WSOpen:    !s.melodyInstance.IsClosed(),
		WSConns:   s.melodyInstance.Len(),
		Tiles:     s.engine.Store.Len(),
		Revision:  s.engine.Store.Revision(),
		Frames:    s.engine.FrameStats(),
	}
	if s.fetcher != nil {
		st.TilesFetched, st.BytesFetched = s.fetcher.Stats()
	}
	j, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal status", "error", err)
		http.Error(w, "Failed to marshal status", http.StatusInternalServerError)
		return
	}
	_, err = w.Write(j)
	if err != nil {
		s.logger.Error("Failed to write response", "error", err)
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
	}
}

type viewportRequest struct {
	Camera struct {
		Translation [2]float32 `json:"translation"`
		Scale       float32    `json:"scale"`
	} `json:"camera"`
	Window struct {
		Width  float32 `json:"width"`
		Height float32 `json:"height"`
	} `json:"window"`
}

// handleViewport runs one engine frame for the posted camera and
// returns the render set. When a fetcher is configured, missing visible
// tiles are requested in the background so later frames fill in.
func (s *WebDaemon) handleViewport(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		s.logger.Error("No request body", "method", r.Method, "url", r.URL)
		http.Error(w, "Please send a request body", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("Failed to read request body", "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	var req viewportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Error("Failed to decode viewport", "error", err)
		http.Error(w, "Failed to decode viewport", http.StatusUnprocessableEntity)
		return
	}
	if req.Camera.Scale <= 0 || req.Window.Width <= 0 || req.Window.Height <= 0 {
		http.Error(w, "Scale and window dimensions must be positive", http.StatusUnprocessableEntity)
		return
	}

	cam := viewport.Camera{Translation: req.Camera.Translation, Scale: req.Camera.Scale}
	win := viewport.Window{Width: req.Window.Width, Height: req.Window.Height}
	set := s.engine.Frame(cam, win)

	if s.fetcher != nil {
		if missing := s.engine.Missing(cam, win); len(missing) > 0 {
			// The request context dies with the handler; fetches should not.
			go s.fetcher.FetchIndices(context.WithoutCancel(r.Context()), missing)
		}
	}

	if err := json.NewEncoder(w).Encode(struct {
		Revision uint64        `json:"revision"`
		Count    int           `json:"count"`
		Tiles    []*tiles.Tile `json:"tiles"`
	}{s.engine.Store.Revision(), len(set), set}); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *WebDaemon) handleTiles(w http.ResponseWriter, r *http.Request) {
	all := s.engine.Store.All()
	if err := json.NewEncoder(w).Encode(all); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *WebDaemon) handleTileImagery(w http.ResponseWriter, r *http.Request) {
	index, ok := tileIndexForRequest(w, r)
	if !ok {
		return
	}
	t, ok := s.engine.Store.Get(index)
	if !ok {
		http.Error(w, "Tile not loaded", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(t.Imagery)
}

func tileIndexForRequest(w http.ResponseWriter, r *http.Request) (maptile.Tile, bool) {
	vars := mux.Vars(r)
	z, errZ := strconv.ParseUint(vars["z"], 10, 32)
	x, errX := strconv.ParseUint(vars["x"], 10, 32)
	y, errY := strconv.ParseUint(vars["y"], 10, 32)
	if errZ != nil || errX != nil || errY != nil {
		http.Error(w, "Bad tile index", http.StatusBadRequest)
		return maptile.Tile{}, false
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), true
}

type prefetchRequest struct {
	// Min and Max are [lon, lat] corners of the bound to fill.
	Min [2]float64 `json:"min"`
	Max [2]float64 `json:"max"`
}

// handlePrefetch fills the tile caches for a geographic bound.
func (s *WebDaemon) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		http.Error(w, "No fetcher configured", http.StatusServiceUnavailable)
		return
	}
	var req prefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error("Failed to decode prefetch", "error", err)
		http.Error(w, "Failed to decode prefetch", http.StatusUnprocessableEntity)
		return
	}
	bound := orb.Bound{
		Min: orb.Point{req.Min[0], req.Min[1]},
		Max: orb.Point{req.Max[0], req.Max[1]},
	}
	n := s.fetcher.FetchMissing(r.Context(), bound)
	if err := json.NewEncoder(w).Encode(struct {
		Fetched int `json:"fetched"`
	}{n}); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
