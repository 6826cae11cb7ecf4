// Package server exposes HTTP handlers: the WebSocket upgrade endpoint, a
// health check, and the informational message-history side channel.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Handlers bundles the HTTP surface with its collaborators. The hub and room
// are injected rather than reached through package globals so tests can stand
// up isolated instances.
type Handlers struct {
	hub      *Hub
	room     *Room
	cfg      Config
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewHandlers wires the HTTP surface to a hub and room using cfg for upgrade
// buffer sizes and the origin allow-list.
func NewHandlers(hub *Hub, room *Room, cfg Config, log *slog.Logger) *Handlers {
	policy := newOriginPolicy(cfg.AllowedOrigins, log)
	return &Handlers{
		hub:  hub,
		room: room,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
		log: log,
	}
}

// WebSocket upgrades the request and runs the connect sequence: the client is
// assigned its identifier, receives its welcome and history replay, and its
// join is announced before the pumps start draining inbound traffic.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, h.hub, h.room, r.RemoteAddr, h.cfg, h.log)

	// Queue welcome + replay and announce the join before registering: the
	// pumps only start once the hub processes the registration, so nothing
	// can reach this client's stream ahead of the replay.
	h.room.ClientConnected(client)
	h.hub.Register(client)
}

// Health is a simple liveness endpoint.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Chat relay is running!"))
}

// MessageHistory echoes the request's query parameters back as JSON. It is an
// informational side channel, not part of the relay core.
func (h *Handlers) MessageHistory(w http.ResponseWriter, r *http.Request) {
	params := lo.MapValues(map[string][]string(r.URL.Query()), func(values []string, _ string) string {
		if len(values) == 0 {
			return ""
		}
		return values[0]
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(params); err != nil {
		h.log.Warn("error writing message-history response", "error", err)
	}
}
