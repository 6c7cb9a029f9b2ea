package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"salesforecast/internal/infrastructure"
	"salesforecast/internal/pipeline"
)

// Message types sent to clients.
const (
	TypeConnection    = "connection"
	TypePipelineEvent = "pipeline_event"
	TypeStatus        = "status"
)

// broadcastQueue bounds the number of messages waiting for the hub loop.
const broadcastQueue = 256

// Message is the envelope of every frame the hub sends.
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMetrics records connection and message counts on m.
func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// Hub maintains the set of active clients and fans messages out to them.
// Registration and delivery are serialised through the Run loop.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *Metrics

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64

	quit    chan struct{}
	running bool
}

// NewHub creates a hub. Call Start before registering clients.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start launches the hub loop. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.Run()
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			ctx := client.context()
			h.logger.InfoContext(ctx, "client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))
			h.metrics.connected(ctx)

			if b, err := h.encode(Message{
				Type: TypeConnection,
				Data: map[string]string{
					"status":    "connected",
					"client_id": client.id,
				},
				TraceID: client.traceID,
			}); err == nil {
				h.mu.RLock()
				if h.clients[client] {
					select {
					case client.send <- b:
					default:
						h.logger.WarnContext(ctx, "client buffer full, connection message dropped",
							slog.String("client_id", client.id))
					}
				}
				h.mu.RUnlock()
			}

		case client := <-h.unregister:
			h.remove(client, "closed")

		case message := <-h.broadcast:
			// Sends never block, so holding the read lock keeps Stop from
			// closing a channel mid-send.
			var slow []*Client
			delivered := 0
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
					delivered++
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()

			h.mu.Lock()
			h.messagesSent += int64(delivered)
			h.mu.Unlock()
			for _, c := range slow {
				h.remove(c, "slow_consumer")
			}
			h.metrics.broadcast(context.Background(), delivered, len(slow))
			if len(slow) > 0 {
				h.logger.Warn("some clients failed to receive broadcast",
					slog.Int("delivered", delivered),
					slog.Int("failed", len(slow)))
			}
		}
	}
}

// remove unregisters c and closes its send channel once.
func (h *Hub) remove(c *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := c.context()
	h.logger.InfoContext(ctx, "client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", c.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", time.Since(c.connectedAt)))
	h.metrics.disconnected(ctx, time.Since(c.connectedAt), reason)
}

// Broadcast queues a message for every connected client. When the queue is
// full the message is dropped rather than blocking the caller.
func (h *Hub) Broadcast(ctx context.Context, msgType string, data any) {
	b, err := h.encode(Message{
		Type:    msgType,
		Data:    data,
		TraceID: infrastructure.GetTraceID(ctx),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "marshal broadcast",
			slog.String("type", msgType),
			slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.mu.Lock()
		h.messagesDropped++
		h.mu.Unlock()
		h.metrics.dropped(ctx)
		h.logger.WarnContext(ctx, "broadcast queue full, message dropped",
			slog.String("type", msgType))
	}
}

// Notify forwards pipeline events to every client, making the hub a
// pipeline.Observer.
func (h *Hub) Notify(ctx context.Context, ev pipeline.Event) {
	h.Broadcast(ctx, TypePipelineEvent, ev)
}

func (h *Hub) encode(m Message) ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return json.Marshal(m)
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats is a point-in-time view of the hub counters.
type Stats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesDropped  int64 `json:"messages_dropped"`
	QueueDepth       int   `json:"queue_depth"`
}

// Stats returns the current hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		ActiveClients:    len(h.clients),
		TotalConnections: h.totalConnections,
		MessagesSent:     h.messagesSent,
		MessagesDropped:  h.messagesDropped,
		QueueDepth:       len(h.broadcast),
	}
}

// Stop ends the hub loop and closes every client. Calling it twice is a no-op.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
