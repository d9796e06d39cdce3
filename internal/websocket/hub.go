package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"riskdash/internal/infrastructure"
)

const (
	reasonClosed   = "closed"
	reasonSlow     = "slow_client"
	reasonShutdown = "shutdown"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients, owned by the run loop
	clients map[*Client]struct{}

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	mu          sync.RWMutex
	clientCount int
	sent        int64
	running     bool

	logger  *slog.Logger
	metrics *Metrics

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in its own goroutine
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop ends the hub loop and closes every client's send channel, which
// makes their write pumps close the connections
func (h *Hub) Stop() {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()

	h.stopOnce.Do(func() { close(h.quit) })
	if running {
		<-h.done
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				h.remove(client, reasonShutdown)
			}
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount()
			ctx := client.context()
			h.metrics.recordConnect(ctx)
			h.logger.InfoContext(ctx, "client registered",
				slog.Int("total_clients", len(h.clients)),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			h.deliver(client, Message{
				Type:      TypeConnection,
				Status:    "connected",
				Message:   "Connected to job progress",
				Timestamp: time.Now().UTC(),
				TraceID:   client.traceID,
			})

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client, reasonClosed)
			}

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("error marshaling message",
					slog.String("type", msg.Type),
					slog.String("error", err.Error()))
				continue
			}
			delivered := 0
			for client := range h.clients {
				select {
				case client.send <- data:
					delivered++
				default:
					h.logger.WarnContext(client.context(), "client send buffer full, disconnecting",
						slog.String("client_id", client.id))
					h.remove(client, reasonSlow)
				}
			}
			h.mu.Lock()
			h.sent += int64(delivered)
			h.mu.Unlock()
			h.metrics.recordBroadcast(context.Background(), msg.Type, delivered, len(data))
			h.logger.Debug("broadcast message",
				slog.String("type", msg.Type),
				slog.String("job_id", msg.JobID),
				slog.Int("clients", delivered))
		}
	}
}

// deliver queues one message to a single client
func (h *Hub) deliver(client *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send message, client buffer full", slog.String("client_id", client.id))
	}
}

// remove drops a client and closes its send channel. Only the run loop
// calls it.
func (h *Hub) remove(client *Client, reason string) {
	delete(h.clients, client)
	close(client.send)
	h.setCount()

	ctx := client.context()
	duration := time.Since(client.connectedAt)
	h.metrics.recordDisconnect(ctx, duration, reason)
	h.logger.InfoContext(ctx, "client unregistered",
		slog.Int("total_clients", len(h.clients)),
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", duration))
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.clientCount = len(h.clients)
	h.mu.Unlock()
}

// Broadcast queues a message for every connected client. It returns
// without sending once the hub is stopped.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientCount
}

// Stats reports the number of clients and messages delivered so far
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{
		"active_clients": h.clientCount,
		"messages_sent":  h.sent,
	}
}
