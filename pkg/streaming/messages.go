// Package streaming defines the JSON envelopes exchanged over WebSocket, both with
// browser map clients and with a remote impact-history collector.
package streaming

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spaceweb/impactsim/pkg/core"
)

// Map surface messages, server to browser.
const (
	TypeSync        = "sync"
	TypeAddMarker   = "add_marker"
	TypeAddCircle   = "add_circle"
	TypeRemoveLayer = "remove_layer"
	TypeFitBounds   = "fit_bounds"
	TypeSetView     = "set_view"
	TypeSnapshot    = "snapshot"
)

// Map surface messages, browser to server.
const (
	TypeMapClick = "map_click"
	TypeLaunch   = "launch"
)

// History collector messages.
const (
	TypeHello   = "hello"
	TypeImpact  = "impact"
	TypeGoodbye = "goodbye"
	TypeAck     = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}

// LayerPayload describes one drawn layer. Icon is set for markers, Style for circles.
type LayerPayload struct {
	Handle       uint64          `json:"handle"`
	Kind         string          `json:"kind"`
	Lat          float64         `json:"lat"`
	Lng          float64         `json:"lng"`
	RadiusMeters float64         `json:"radiusMeters,omitempty"`
	Icon         json.RawMessage `json:"icon,omitempty"`
	Style        json.RawMessage `json:"style,omitempty"`
}

// RemovePayload names a layer to drop.
type RemovePayload struct {
	Handle uint64 `json:"handle"`
}

// FitBoundsPayload carries Leaflet-style [[south, west], [north, east]] bounds.
type FitBoundsPayload struct {
	Bounds    [2][2]float64 `json:"bounds"`
	PaddingPx int           `json:"paddingPx"`
}

// ViewPayload centers the map.
type ViewPayload struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom int     `json:"zoom"`
}

// SyncPayload is sent once to a newly connected browser.
type SyncPayload struct {
	View   ViewPayload    `json:"view"`
	Layers []LayerPayload `json:"layers"`
}

// ClickPayload is a map click reported by the browser.
type ClickPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HelloPayload opens a history session with a collector.
type HelloPayload struct {
	Service   string    `json:"service"`
	StartedAt time.Time `json:"startedAt"`
}

// ImpactPayload is one recorded launch.
type ImpactPayload struct {
	Record core.ImpactRecord `json:"record"`
}
