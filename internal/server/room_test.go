package server

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeLog records appends in memory and can be told to fail, standing in for
// an unreachable history backend.
type fakeLog struct {
	mu        sync.Mutex
	entries   [][]byte
	appendErr error
	readErr   error
}

func (f *fakeLog) Append(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, payload)
	return nil
}

func (f *fakeLog) ReadAll() ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return append([][]byte(nil), f.entries...), nil
}

func (f *fakeLog) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func newTestRoom(t *testing.T) (*Room, *Hub, *fakeLog) {
	t.Helper()
	hub := newTestHub(t)
	log := &fakeLog{}
	return NewRoom(hub, log, discardLogger()), hub, log
}

func receiveEvent(t *testing.T, c *Client) ChatEvent {
	t.Helper()
	var event ChatEvent
	require.NoError(t, json.Unmarshal(receivePayload(t, c), &event))
	return event
}

func TestConnectSendsWelcomeReplayThenAnnouncesJoin(t *testing.T) {
	room, hub, log := newTestRoom(t)

	observer := newTestClient(hub, room)
	registerAndWait(t, hub, observer)

	replayed, err := MessageEvent("earlier-client", "", "old news").Marshal()
	require.NoError(t, err)
	require.NoError(t, log.Append(replayed))

	joiner := newTestClient(hub, room)
	room.ClientConnected(joiner)
	registerAndWait(t, hub, joiner)

	welcome := receiveEvent(t, joiner)
	require.Equal(t, joiner.ID(), welcome.Receiver)
	require.Equal(t, SystemSender, welcome.Sender)
	require.Contains(t, welcome.Message, joiner.ID())

	replay := receiveEvent(t, joiner)
	require.Equal(t, "old news", replay.Message)

	join := receiveEvent(t, observer)
	require.Equal(t, joiner.ID(), join.Sender)
	require.Equal(t, "Joined the chatroom!", join.Message)

	// The joining client never receives its own join announcement.
	require.Empty(t, joiner.send)

	// Welcome is not recorded; the join is.
	require.Equal(t, 2, log.len())
}

func TestMessageEchoesToSenderAndOthers(t *testing.T) {
	room, hub, log := newTestRoom(t)
	sender := newTestClient(hub, room)
	other := newTestClient(hub, room)
	registerAndWait(t, hub, sender, other)

	room.ClientMessage(sender, []byte(`{"type":"message","message":"hi"}`))

	for _, c := range []*Client{sender, other} {
		event := receiveEvent(t, c)
		require.Equal(t, "hi", event.Message)
		require.Equal(t, sender.ID(), event.Sender)
		require.Empty(t, event.SenderNickname)
	}
	require.Equal(t, 1, log.len())
}

func TestNicknameRenameThenMessageCarriesNickname(t *testing.T) {
	room, hub, _ := newTestRoom(t)
	sender := newTestClient(hub, room)
	other := newTestClient(hub, room)
	registerAndWait(t, hub, sender, other)

	room.ClientMessage(sender, []byte(`{"type":"nickname","nickname":"Ann"}`))

	rename := receiveEvent(t, other)
	require.Equal(t, "My new name is Ann", rename.Message)
	require.Equal(t, "Ann", rename.SenderNickname)
	require.Equal(t, sender.ID(), rename.Sender)
	require.Equal(t, "Ann", hub.Nickname(sender))

	// The rename echoes back to the sender too.
	require.Equal(t, "Ann", receiveEvent(t, sender).SenderNickname)

	room.ClientMessage(sender, []byte(`{"type":"message","message":"hi"}`))
	message := receiveEvent(t, other)
	require.Equal(t, "hi", message.Message)
	require.Equal(t, "Ann", message.SenderNickname)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	room, hub, log := newTestRoom(t)
	sender := newTestClient(hub, room)
	other := newTestClient(hub, room)
	registerAndWait(t, hub, sender, other)

	room.ClientMessage(sender, []byte("not json"))

	require.Empty(t, other.send)
	require.Zero(t, log.len())

	// The connection stays usable for subsequent valid payloads.
	room.ClientMessage(sender, []byte(`{"type":"message","message":"still here"}`))
	require.Equal(t, "still here", receiveEvent(t, other).Message)
}

func TestUnknownPayloadTypeIsDropped(t *testing.T) {
	room, hub, log := newTestRoom(t)
	sender := newTestClient(hub, room)
	other := newTestClient(hub, room)
	registerAndWait(t, hub, sender, other)

	room.ClientMessage(sender, []byte(`{"type":"presence","message":"??"}`))

	require.Empty(t, other.send)
	require.Zero(t, log.len())
}

func TestHistoryAppendFailureStillBroadcasts(t *testing.T) {
	room, hub, log := newTestRoom(t)
	log.appendErr = errors.New("backend unreachable")

	sender := newTestClient(hub, room)
	other := newTestClient(hub, room)
	registerAndWait(t, hub, sender, other)

	room.ClientMessage(sender, []byte(`{"type":"message","message":"hi"}`))

	require.Equal(t, "hi", receiveEvent(t, other).Message)
	require.Zero(t, log.len())
}

func TestHistoryReadFailureSkipsReplay(t *testing.T) {
	room, hub, log := newTestRoom(t)
	require.NoError(t, log.Append([]byte(`{"message":"unreachable"}`)))
	log.readErr = errors.New("backend unreachable")

	joiner := newTestClient(hub, room)
	room.ClientConnected(joiner)
	registerAndWait(t, hub, joiner)

	// Only the welcome arrives; the failed replay does not break the join.
	welcome := receiveEvent(t, joiner)
	require.Equal(t, joiner.ID(), welcome.Receiver)
	require.Empty(t, joiner.send)
}

func TestDisconnectAnnouncesLeaveAndUnregisters(t *testing.T) {
	room, hub, log := newTestRoom(t)
	leaver := newTestClient(hub, room)
	other := newTestClient(hub, room)
	registerAndWait(t, hub, leaver, other)

	hub.Rename(leaver, "Ann")
	room.ClientDisconnected(leaver)

	leave := receiveEvent(t, other)
	require.Equal(t, "Left the chat room!", leave.Message)
	require.Equal(t, leaver.ID(), leave.Sender)
	require.Equal(t, "Ann", leave.SenderNickname)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, log.len())
}
