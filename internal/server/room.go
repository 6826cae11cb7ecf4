// Package server orchestrates the session lifecycle for the single chat room:
// what happens at connect, for each inbound payload, and at disconnect.
package server

import (
	"encoding/json"
	"log/slog"

	"github.com/shadaxv/chat-app/internal/history"
)

// Room applies chat semantics on top of the hub and the history log. Every
// derived event is appended to history before its broadcast is enqueued, so a
// replaying client can never see an event that live clients had no chance to
// receive.
type Room struct {
	hub  *Hub
	hist history.Log
	log  *slog.Logger
}

// NewRoom creates the session controller for a hub and history log.
func NewRoom(hub *Hub, hist history.Log, log *slog.Logger) *Room {
	return &Room{hub: hub, hist: hist, log: log}
}

// ClientConnected runs the join sequence for a freshly accepted client:
// welcome event carrying its own identifier, replay of recent history oldest
// first, then a join announcement to everyone else. The welcome and replay go
// only to the new client and are queued before its pumps start, so they
// always precede any broadcast in its stream.
func (r *Room) ClientConnected(client *Client) {
	welcome, err := WelcomeEvent(client.ID()).Marshal()
	if err != nil {
		r.log.Error("failed to serialize welcome event", "clientID", client.ID(), "error", err)
	} else {
		client.enqueue(welcome)
	}

	r.replayHistory(client)

	// The joining client already has full context from welcome + replay, so
	// it is excluded from its own join announcement.
	r.emit(JoinEvent(client.ID()), client, false)
}

// ClientMessage classifies one inbound payload and applies it. Malformed or
// unrecognized payloads are dropped without affecting the connection.
func (r *Room) ClientMessage(client *Client, raw []byte) {
	var payload InboundPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		r.log.Debug("dropping malformed payload", "clientID", client.ID(), "error", err)
		return
	}

	switch payload.Type {
	case payloadTypeMessage:
		r.emit(MessageEvent(client.ID(), r.hub.Nickname(client), payload.Message), client, true)
	case payloadTypeNickname:
		r.hub.Rename(client, payload.Nickname)
		r.emit(RenameEvent(client.ID(), payload.Nickname), client, true)
	default:
		r.log.Debug("dropping payload with unknown type", "clientID", client.ID(), "type", payload.Type)
	}
}

// ClientDisconnected announces the departure to the remaining clients and
// removes the registry entry. It is invoked exactly once per connection, from
// the read pump, which only runs after registration completed; a leave can
// therefore never precede its own join.
func (r *Room) ClientDisconnected(client *Client) {
	r.emit(LeaveEvent(client.ID(), r.hub.Nickname(client)), client, false)
	r.hub.Unregister(client)
}

// emit serializes the event once, records it in history, and enqueues the
// identical bytes for broadcast. A history failure is not fatal: the event is
// still delivered live, it just won't appear in later replays.
func (r *Room) emit(event ChatEvent, sender *Client, includeSender bool) {
	payload, err := event.Marshal()
	if err != nil {
		r.log.Error("failed to serialize event", "kind", event.Kind, "error", err)
		return
	}

	if err := r.hist.Append(payload); err != nil {
		r.log.Warn("history append failed, event not recorded", "kind", event.Kind, "error", err)
	}

	r.hub.Broadcast(BroadcastMessage{Sender: sender, Payload: payload, IncludeSender: includeSender})
}

// replayHistory sends the stored events to the client, oldest first, one
// payload per frame.
func (r *Room) replayHistory(client *Client) {
	payloads, err := r.hist.ReadAll()
	if err != nil {
		r.log.Warn("history read failed, skipping replay", "clientID", client.ID(), "error", err)
		return
	}

	for _, payload := range payloads {
		client.enqueue(payload)
	}
}
