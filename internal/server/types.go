// Package server defines shared payload types and utility helpers that are
// reused across client and hub logic.
package server

import "strings"

const (
	payloadTypeMessage  = "message"
	payloadTypeNickname = "nickname"
)

// InboundPayload is the tagged union clients send over the wire. Type selects
// which of the remaining fields is meaningful.
type InboundPayload struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Nickname string `json:"nickname"`
}

// BroadcastMessage encapsulates one serialized event being fanned out by the
// hub. Sender identifies the originating client; IncludeSender controls
// whether it receives its own event (chat messages and renames echo back,
// join and leave announcements do not).
type BroadcastMessage struct {
	Sender        *Client
	Payload       []byte
	IncludeSender bool
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
