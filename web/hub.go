// Package web serves the live inventory feed: a websocket hub broadcasting row
// snapshots and command statuses, plus small JSON and metrics endpoints.
package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-pantry/controller"
	"github.com/nvr-ai/go-pantry/inventory"
)

// Message types sent to viewers.
const (
	MessageRows   = "rows"
	MessageStatus = "status"
)

// Message is the envelope written to every viewer.
type Message struct {
	Type   string             `json:"type"`
	Rows   []inventory.Row    `json:"rows,omitempty"`
	Status *controller.Status `json:"status,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Hub fans messages out to connected viewers. Only Run writes to the
// connections.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	rows       []inventory.Row
	logger     *zap.SugaredLogger

	// readDeadline is how long a viewer may stay silent before its
	// connection is dropped. Pongs count, and Run pings every pingPeriod.
	readDeadline time.Duration
	pingPeriod   time.Duration
	writeWait    time.Duration
}

// NewHub creates a hub. Run must be started before viewers connect.
func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		rows:       []inventory.Row{},
		logger:     logger,
	}
	h.setKeepalive(defaultReadDeadline, defaultWriteWait)
	return h
}

// setKeepalive sets the viewer read deadline and the per-write deadline. Pings
// go out at 9/10 of the read deadline.
func (h *Hub) setKeepalive(readDeadline, writeWait time.Duration) {
	h.readDeadline = readDeadline
	h.pingPeriod = readDeadline * 9 / 10
	h.writeWait = writeWait
}

// Run serves registrations and broadcasts until ctx is done, then closes every
// viewer connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			for _, client := range h.snapshotClients() {
				h.write(client, websocket.PingMessage, nil)
			}

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Infow("viewer connected", "viewers", count)

			if snapshot, err := json.Marshal(Message{Type: MessageRows, Rows: h.Rows()}); err == nil {
				h.send(client, snapshot)
			}

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Infow("viewer disconnected", "viewers", count)

		case message := <-h.broadcast:
			for _, client := range h.snapshotClients() {
				h.send(client, message)
			}
		}
	}
}

func (h *Hub) snapshotClients() []*websocket.Conn {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) send(client *websocket.Conn, message []byte) {
	h.write(client, websocket.TextMessage, message)
}

// write sends one frame. A viewer that fails or stalls past writeWait is
// dropped.
func (h *Hub) write(client *websocket.Conn, messageType int, data []byte) {
	client.SetWriteDeadline(time.Now().Add(h.writeWait))
	if err := client.WriteMessage(messageType, data); err != nil {
		h.logger.Warnw("failed to send to viewer", "error", err)
		h.mutex.Lock()
		delete(h.clients, client)
		h.mutex.Unlock()
		client.Close()
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// Register adds a viewer. It blocks until Run accepts it, ctx is done or the
// hub has stopped.
func (h *Hub) Register(ctx context.Context, client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

// Unregister removes a viewer and closes its connection.
func (h *Hub) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Render stores the latest rows and broadcasts them.
func (h *Hub) Render(rows []inventory.Row) {
	snapshot := append([]inventory.Row{}, rows...)

	h.mutex.Lock()
	h.rows = snapshot
	h.mutex.Unlock()

	h.publish(Message{Type: MessageRows, Rows: snapshot})
}

// Notify broadcasts a command status.
func (h *Hub) Notify(status controller.Status) {
	msg := Message{Type: MessageStatus, Status: &status}
	if status.Err != nil {
		msg.Error = status.Err.Error()
	}
	h.publish(msg)
}

// publish never blocks the caller; messages are dropped when the hub is
// backed up.
func (h *Hub) publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorw("failed to encode message", "type", msg.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warnw("dropping message, hub is backed up", "type", msg.Type)
	}
}

// Rows returns the latest rendered rows.
func (h *Hub) Rows() []inventory.Row {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return append([]inventory.Row{}, h.rows...)
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
