// Package server defines the chat event model shared by the hub, the room,
// and the history replay path.
package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SystemSender is the sender identity used for server-originated events.
const SystemSender = "CHAT APP BOT"

// EventKind classifies a ChatEvent. The kind is internal bookkeeping and is
// not part of the wire payload; clients distinguish events by their fields.
type EventKind string

const (
	EventWelcome EventKind = "welcome"
	EventJoin    EventKind = "join"
	EventLeave   EventKind = "leave"
	EventMessage EventKind = "message"
	EventRename  EventKind = "rename-notice"
)

// ChatEvent is one immutable record of something happening in the chat room.
// The serialized form is both the broadcast payload and the history entry, so
// a replayed event is byte-identical to the live one.
type ChatEvent struct {
	Kind           EventKind `json:"-"`
	ID             string    `json:"id"`
	Message        string    `json:"message"`
	Sender         string    `json:"sender,omitempty"`
	SenderNickname string    `json:"senderDisplayName,omitempty"`
	Receiver       string    `json:"receiver,omitempty"`
	Date           time.Time `json:"date"`
}

// Marshal serializes the event for broadcast and history storage.
func (e ChatEvent) Marshal() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s event: %w", e.Kind, err)
	}
	return payload, nil
}

func newEvent(kind EventKind, message, sender, nickname string) ChatEvent {
	return ChatEvent{
		Kind:           kind,
		ID:             uuid.NewString(),
		Message:        message,
		Sender:         sender,
		SenderNickname: nickname,
		Date:           time.Now().UTC(),
	}
}

// WelcomeEvent greets a newly connected client and tells it its own
// identifier via the receiver field. It is sent only to that client and is
// never recorded in history.
func WelcomeEvent(clientID string) ChatEvent {
	event := newEvent(EventWelcome,
		fmt.Sprintf("Welcome to the Chat App! Your Client ID: %s", clientID),
		SystemSender, "")
	event.Receiver = clientID
	return event
}

// JoinEvent announces a new client to the rest of the room.
func JoinEvent(clientID string) ChatEvent {
	return newEvent(EventJoin, "Joined the chatroom!", clientID, "")
}

// LeaveEvent announces a departed client, carrying its last known nickname.
func LeaveEvent(clientID, nickname string) ChatEvent {
	return newEvent(EventLeave, "Left the chat room!", clientID, nickname)
}

// MessageEvent wraps a client's chat text.
func MessageEvent(clientID, nickname, text string) ChatEvent {
	return newEvent(EventMessage, text, clientID, nickname)
}

// RenameEvent announces a client's new nickname to the room.
func RenameEvent(clientID, nickname string) ChatEvent {
	return newEvent(EventRename,
		fmt.Sprintf("My new name is %s", nickname),
		clientID, nickname)
}
