// Package wssurface is a mapsurface.Surface backed by browser (Leaflet) clients
// connected over WebSocket. Every drawing call is applied to a server-side
// layer registry first and then broadcast, so a browser that connects late
// receives the full picture in its sync message.
package wssurface

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/spaceweb/impactsim/internal/cache"
	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/internal/mapsurface"
	"github.com/spaceweb/impactsim/pkg/streaming"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans map operations out to every connected browser.
type Hub struct {
	log    logging.Logger
	layers *cache.LayerCache
	clicks mapsurface.ClickListeners

	mu       sync.Mutex
	clients  map[*client]struct{}
	view     streaming.ViewPayload
	snapshot []byte
	onLaunch func()
	closed   bool
}

type client struct {
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// New creates a hub whose browsers open at view.
func New(view streaming.ViewPayload, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Hub{
		log:     logger,
		layers:  cache.NewLayerCache(),
		clients: make(map[*client]struct{}),
		view:    view,
	}
}

func layerPayload(l mapsurface.Layer) streaming.LayerPayload {
	p := streaming.LayerPayload{
		Handle:       uint64(l.Handle),
		Kind:         string(l.Kind),
		Lat:          l.Lat,
		Lng:          l.Lng,
		RadiusMeters: l.RadiusMeters,
	}
	if l.Icon != nil {
		p.Icon, _ = json.Marshal(l.Icon)
	}
	if l.Style != nil {
		p.Style, _ = json.Marshal(l.Style)
	}
	return p
}

// broadcastLocked queues msg for every client. A client whose buffer is full
// is dropped; its browser reconnects and resyncs.
func (h *Hub) broadcastLocked(msgType string, payload any) {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		h.log.Error("Failed to encode map message", "type", msgType, "error", err)
		return
	}
	h.sendLocked(msgType, data)
}

func (h *Hub) sendLocked(msgType string, data []byte) {
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("Dropping slow map client", "type", msgType)
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) add(l mapsurface.Layer, msgType string) (mapsurface.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, mapsurface.ErrSurfaceUnavailable
	}
	l = h.layers.Add(l)
	h.broadcastLocked(msgType, layerPayload(l))
	return l.Handle, nil
}

func (h *Hub) AddMarker(lat, lng float64, icon mapsurface.IconSpec) (mapsurface.Handle, error) {
	ic := icon
	return h.add(mapsurface.Layer{Kind: mapsurface.KindMarker, Lat: lat, Lng: lng, Icon: &ic}, streaming.TypeAddMarker)
}

func (h *Hub) AddCircle(lat, lng, radiusMeters float64, style mapsurface.CircleStyle) (mapsurface.Handle, error) {
	st := style
	return h.add(mapsurface.Layer{Kind: mapsurface.KindCircle, Lat: lat, Lng: lng, RadiusMeters: radiusMeters, Style: &st}, streaming.TypeAddCircle)
}

func (h *Hub) RemoveLayer(handle mapsurface.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return mapsurface.ErrSurfaceUnavailable
	}
	if h.layers.Delete(handle) {
		h.broadcastLocked(streaming.TypeRemoveLayer, streaming.RemovePayload{Handle: uint64(handle)})
	}
	return nil
}

// FitBounds asks browsers to fit the union of the given layers. Unknown
// handles are skipped; with nothing to fit no message is sent.
func (h *Hub) FitBounds(handles []mapsurface.Handle, paddingPx int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return mapsurface.ErrSurfaceUnavailable
	}
	b := mapsurface.BoundsOf(h.layers.Lookup(handles))
	if b.IsEmpty() {
		return nil
	}
	c := b.Center()
	h.view.Lat, h.view.Lng = c.Latitude, c.Longitude
	h.broadcastLocked(streaming.TypeFitBounds, streaming.FitBoundsPayload{Bounds: b.LatLngs(), PaddingPx: paddingPx})
	return nil
}

func (h *Hub) SetView(lat, lng float64, zoom int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return mapsurface.ErrSurfaceUnavailable
	}
	h.view = streaming.ViewPayload{Lat: lat, Lng: lng, Zoom: zoom}
	h.broadcastLocked(streaming.TypeSetView, h.view)
	return nil
}

func (h *Hub) OnClick(fn mapsurface.ClickFunc) mapsurface.Subscription {
	return h.clicks.Add(fn)
}

// OnLaunch sets the callback for launch requests sent by browsers.
func (h *Hub) OnLaunch(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLaunch = fn
}

// Publish broadcasts v as the current panel state and keeps it for browsers
// that connect later.
func (h *Hub) Publish(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	data, err := streaming.Marshal(streaming.TypeSnapshot, v)
	if err != nil {
		h.log.Error("Failed to encode snapshot", "error", err)
		return
	}
	h.snapshot = data
	h.sendLocked(streaming.TypeSnapshot, data)
}

// Dispose disconnects every browser; later drawing calls fail with
// mapsurface.ErrSurfaceUnavailable.
func (h *Hub) Dispose() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		c.close()
	}
	clear(h.clients)
	h.layers.Reset()
	h.clicks.Reset()
	return nil
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Layers returns the layers currently drawn.
func (h *Hub) Layers() []mapsurface.Layer {
	return h.layers.List()
}

// register adds a client and queues its sync (and last snapshot) before any
// later broadcast can reach it.
func (h *Hub) register() (*client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, mapsurface.ErrSurfaceUnavailable
	}
	msg := streaming.SyncPayload{View: h.view, Layers: []streaming.LayerPayload{}}
	for _, l := range h.layers.List() {
		msg.Layers = append(msg.Layers, layerPayload(l))
	}
	data, err := streaming.Marshal(streaming.TypeSync, msg)
	if err != nil {
		return nil, err
	}
	c := &client{send: make(chan []byte, sendBuffer)}
	c.send <- data
	if h.snapshot != nil {
		c.send <- h.snapshot
	}
	h.clients[c] = struct{}{}
	return c, nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// ServeWS upgrades the request and serves one browser until it disconnects.
func (h *Hub) ServeWS(ctx *gin.Context) {
	c, err := h.register()
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.unregister(c)
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	defer h.unregister(c)

	go writePump(c, conn)
	h.readPump(conn)
}

func writePump(c *client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				_ = conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env streaming.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.log.Debug("Ignoring malformed map message", "error", err)
			continue
		}
		h.handleMessage(env)
	}
}

func (h *Hub) handleMessage(env streaming.Envelope) {
	switch env.Type {
	case streaming.TypeMapClick:
		var click streaming.ClickPayload
		if err := env.Decode(&click); err != nil {
			h.log.Debug("Ignoring malformed click", "error", err)
			return
		}
		h.clicks.Emit(click.Lat, click.Lng)
	case streaming.TypeLaunch:
		h.mu.Lock()
		fn := h.onLaunch
		h.mu.Unlock()
		if fn != nil {
			fn()
		}
	default:
		h.log.Debug("Ignoring map message", "type", env.Type)
	}
}
