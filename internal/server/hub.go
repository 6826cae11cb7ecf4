// Package server coordinates client registration, nickname state, message
// broadcast, and connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Hub is the connection registry and broadcast engine. It owns the set of
// live clients and each client's mutable nickname, and serializes
// registration, unregistration, and broadcast through a single run loop.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan BroadcastMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
}

// NewHub creates an initialized Hub. Call Run in its own goroutine before
// registering clients.
func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan BroadcastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// Register hands a client to the run loop, which adds it to the registry and
// starts its pump goroutines.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the registry and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Broadcast fans msg out to every live client, honoring msg.IncludeSender.
// Calls issued from one goroutine reach each recipient in issue order.
func (h *Hub) Broadcast(msg BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	}
}

// Rename updates a client's nickname. The registry owns nickname state, so
// this is the only place it is ever written.
func (h *Hub) Rename(client *Client, nickname string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	client.nickname = nickname
}

// Nickname returns a client's current nickname, or the empty string when none
// has been set.
func (h *Hub) Nickname(client *Client) string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return client.nickname
}

// ClientCount reports how many clients are currently registered.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	// Hold the lock during the send so unregistration cannot close the
	// channel mid-delivery.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run drives the hub's event loop, handling client registration,
// unregistration, and message broadcasting. It runs until Shutdown and should
// be called in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration, skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("client registered", "clientID", client.id, "addr", client.addr, "clients", clientCount)

			// Clients without a transport exist only in tests; pumps
			// need a real connection.
			if client.conn == nil {
				continue
			}
			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(client.send)
				h.log.Info("client unregistered", "clientID", client.id, "clients", clientCount)
			} else {
				h.mutex.Unlock()
			}

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

// handleBroadcast delivers msg to the current recipient set. Delivery
// failures are per-recipient: a client that cannot accept the message is
// dropped from the registry without affecting the rest of the batch.
func (h *Hub) handleBroadcast(msg BroadcastMessage) {
	clients := h.clientSnapshot()

	var failed []*Client
	for _, client := range clients {
		if !msg.IncludeSender && client == msg.Sender {
			continue
		}
		if !h.safeSend(client, msg.Payload) {
			failed = append(failed, client)
		}
	}

	h.removeFailedClients(failed)
}

// clientSnapshot returns the live clients at one instant. Iteration is not a
// consistent snapshot of a broadcast batch: clients joining or leaving
// mid-broadcast may or may not receive it.
func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return lo.Keys(h.clients)
}

// removeFailedClients drops clients whose send buffers were full and closes
// their channels.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn("client removed due to full send buffer", "clientID", client.id, "addr", client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients empties the registry and closes every client's send
// channel and connection. The run loop has already stopped servicing
// Unregister by the time this runs, so cleanup that normally happens in the
// unregister branch happens here instead; without it the write pumps would
// stay parked on their open send channels until the next ping tick.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := lo.Keys(h.clients)
	for _, client := range clients {
		delete(h.clients, client)
		client.closed = true
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("error closing client connection", "clientID", client.id, "error", err)
			}
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the run loop, closes all client connections, and waits for
// the pump goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
