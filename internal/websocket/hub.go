package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"licensehub/internal/events"
	"licensehub/internal/infrastructure"
)

// TypeConnection is sent to a client right after it registers.
const TypeConnection = "connection"

// ErrHubStopped is returned once Run has returned.
var ErrHubStopped = errors.New("websocket hub stopped")

// Message is the envelope written to dashboard clients.
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// Hub maintains the set of active dashboard clients and broadcasts license
// events to them. The client set is owned by the Run goroutine.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	count   atomic.Int64
	logger  *slog.Logger
	metrics *Metrics
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMetrics records hub instruments.
func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

var _ events.Publisher = (*Hub)(nil)

func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket.hub")),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics, _ = NewMetrics(nil)
	}
	return h
}

// Run serves registrations and broadcasts until ctx is done. Remaining
// clients are then disconnected.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(context.WithoutCancel(ctx), client, "shutdown")
			}
			h.logger.Info("hub stopped")
			return nil

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			cctx := client.context()
			h.metrics.recordConnect(cctx)
			h.logger.InfoContext(cctx, "client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", len(h.clients)))

			welcome, err := json.Marshal(Message{
				Type:      TypeConnection,
				Data:      map[string]string{"status": "connected", "client_id": client.id},
				Timestamp: time.Now().UTC(),
				TraceID:   client.traceID,
			})
			if err == nil {
				select {
				case client.send <- welcome:
				default:
				}
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client.context(), client, "normal")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.WarnContext(client.context(), "client send buffer full, disconnecting",
						slog.String("client_id", client.id))
					h.remove(client.context(), client, "slow_consumer")
				}
			}
		}
	}
}

func (h *Hub) remove(ctx context.Context, client *Client, reason string) {
	delete(h.clients, client)
	close(client.send)
	h.count.Store(int64(len(h.clients)))
	h.metrics.recordDisconnect(ctx, time.Since(client.connectedAt), reason)
	h.logger.InfoContext(ctx, "client unregistered",
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", time.Since(client.connectedAt)),
		slog.Int("total_clients", len(h.clients)))
}

// Register adds a client. It fails once the hub has stopped.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Unregister removes a client. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Publish broadcasts a license event to every connected dashboard.
func (h *Hub) Publish(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(Message{
		Type:      string(e.Type),
		Data:      e,
		Timestamp: e.OccurredAt,
		TraceID:   infrastructure.GetTraceID(ctx),
	})
	if err != nil {
		return fmt.Errorf("encode %s message: %w", e.Type, err)
	}

	select {
	case h.broadcast <- payload:
		h.metrics.recordBroadcast(ctx, string(e.Type))
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
