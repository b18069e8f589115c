package webd

import (
	"encoding/json"
	"log"
	"log/slog"

	"github.com/Woolyenough/ofm-viewer/types/tiles"
	"github.com/olahol/melody"
	"github.com/paulmach/orb/maptile"
)

type websocketAction string

var (
	websocketActionRender  websocketAction = "render"
	websocketActionLoaded  websocketAction = "loaded"
	websocketActionEvicted websocketAction = "evicted"
)

type broadtiles struct {
	Action websocketAction `json:"action"`
	Tiles  []*tiles.Tile   `json:"tiles,omitempty"`
	Keys   []string        `json:"keys,omitempty"`
}

// initMelody sets up the websocket handler.
func (s *WebDaemon) initMelody() {
	s.melodyInstance = melody.New()

	// A fresh client gets the current render set straight away.
	s.melodyInstance.HandleConnect(func(sess *melody.Session) {
		log.Println("[websocket] connected", sess.Request.RemoteAddr)
		set := s.engine.RenderSet()
		if len(set) == 0 {
			return
		}
		b, _ := json.Marshal(broadtiles{
			Action: websocketActionRender,
			Tiles:  set,
		})
		sess.Write(b)
	})

	// Right now don't care about incoming messages from clients. Log and drop.
	s.melodyInstance.HandleMessage(loggingHandler)

	s.melodyInstance.HandleDisconnect(func(sess *melody.Session) {
		log.Println("[websocket] disconnected", sess.Request.RemoteAddr)
	})

	s.melodyInstance.HandleError(func(sess *melody.Session, e error) {
		log.Println("[websocket] error", e, sess.Request.RemoteAddr)
	})

	// Broadcast render-set rebuilds and store changes to all connected
	// clients. Clients render from these pushes; the POST /viewport
	// response is for the client that drove the frame.
	go s.broadcastTiles()
}

// broadcastTiles relays engine and store events to the websocket until
// the daemon quits or a feed closes.
func (s *WebDaemon) broadcastTiles() {
	renders := make(chan []*tiles.Tile)
	renderSub := s.engine.SubscribeRenderSet(renders)
	defer renderSub.Unsubscribe()
	loaded := make(chan *tiles.Tile)
	loadedSub := s.engine.Store.SubscribeInserted(loaded)
	defer loadedSub.Unsubscribe()
	evicted := make(chan maptile.Tile)
	evictedSub := s.engine.Store.SubscribeEvicted(evicted)
	defer evictedSub.Unsubscribe()

	for {
		var bc broadtiles
		select {
		case set := <-renders:
			bc = broadtiles{Action: websocketActionRender, Tiles: set}
		case t := <-loaded:
			bc = broadtiles{Action: websocketActionLoaded, Tiles: []*tiles.Tile{t}}
		case index := <-evicted:
			bc = broadtiles{Action: websocketActionEvicted, Keys: []string{tiles.Key(index)}}
		case err := <-renderSub.Err():
			slog.Error("Render feed closed", "error", err)
			return
		case err := <-loadedSub.Err():
			slog.Error("Insert feed closed", "error", err)
			return
		case err := <-evictedSub.Err():
			slog.Error("Evict feed closed", "error", err)
			return
		case <-s.quit:
			return
		}
		b, err := json.Marshal(bc)
		if err != nil {
			slog.Error("Failed to marshal tile event", "error", err)
			continue
		}
		if err := s.melodyInstance.Broadcast(b); err != nil {
			slog.Warn("Failed to broadcast tile event", "error", err)
		}
	}
}

// on request
func loggingHandler(sess *melody.Session, msg []byte) {
	log.Println("[websocket] message", string(msg))
}
