package webd

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Woolyenough/ofm-viewer/app"
	"github.com/Woolyenough/ofm-viewer/fetch"
	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/gorilla/mux"
	"github.com/olahol/melody"
)

// WebDaemon exposes an engine over HTTP: clients POST camera frames and
// get render sets back, and a websocket pushes store changes as they
// happen.
type WebDaemon struct {
	Config         *params.WebDaemonConfig
	logger         *slog.Logger
	melodyInstance *melody.Melody
	engine         *app.Engine
	fetcher        *fetch.Fetcher
	started        time.Time

	// quit stops the websocket broadcast goroutine with the daemon.
	quit chan struct{}
}

func NewWebDaemon(config *params.WebDaemonConfig) (*WebDaemon, error) {
	if config == nil {
		config = params.DefaultWebDaemonConfig()
	}
	d := &WebDaemon{
		Config: config,
		logger: slog.With("d", "web"),
		engine: app.NewEngine(config.EngineConfig),
		quit:   make(chan struct{}),
	}
	if config.FetchConfig != nil {
		f, err := fetch.NewFetcher(config.FetchConfig, d.engine)
		if err != nil {
			return nil, err
		}
		d.fetcher = f
	}
	return d, nil
}

// Run starts the HTTP server and waits for it, returning any server
// error. The fetcher, when configured, resolves its source first.
func (s *WebDaemon) Run(ctx context.Context) error {
	if s.fetcher != nil {
		if err := s.fetcher.ResolveSource(ctx); err != nil {
			return err
		}
		defer s.fetcher.Close()
	}

	router := s.NewRouter()
	listener, err := net.Listen(s.Config.Network, s.Config.Address)
	if err != nil {
		return err
	}
	s.started = time.Now()
	s.logger.Info("Starting web daemon", "network", s.Config.Network, "address", s.Config.Address)

	server := &http.Server{Handler: router}
	go func() {
		<-ctx.Done()
		close(s.quit)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *WebDaemon) NewRouter() *mux.Router {
	s.initMelody()

	router := mux.NewRouter().StrictSlash(false)
	router.Use(loggingMiddleware)

	apiRoutes := router.NewRoute().Subrouter()

	// All API routes use permissive CORS settings.
	apiRoutes.Use(permissiveCorsMiddleware)

	// /ping is a simple server healthcheck endpoint
	apiRoutes.Path("/ping").HandlerFunc(pingPong)

	apiRoutes.Path("/socat").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.melodyInstance.HandleRequest(w, r)
	})

	// Raw imagery bytes, not JSON.
	apiRoutes.Path("/tiles/{z:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}").
		HandlerFunc(s.handleTileImagery).Methods(http.MethodGet)

	apiJSONRoutes := apiRoutes.NewRoute().Subrouter()
	jsonMiddleware := contentTypeMiddlewareFunc("application/json")
	apiJSONRoutes.Use(jsonMiddleware)

	apiJSONRoutes.Path("/status").HandlerFunc(s.statusReport).Methods(http.MethodGet)
	apiJSONRoutes.Path("/tiles").HandlerFunc(s.handleTiles).Methods(http.MethodGet)
	apiJSONRoutes.Path("/viewport").HandlerFunc(s.handleViewport).Methods(http.MethodPost)

	authenticatedAPIRoutes := apiJSONRoutes.NewRoute().Subrouter()
	authenticatedAPIRoutes.Use(tokenAuthenticationMiddleware)

	authenticatedAPIRoutes.Path("/prefetch").HandlerFunc(s.handlePrefetch).Methods(http.MethodPost)

	return router
}
