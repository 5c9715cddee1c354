package http

import (
	"log/slog"
	"net/http"
	"slices"

	gorilla "github.com/gorilla/websocket"

	"licensehub/internal/infrastructure"
	"licensehub/internal/websocket"
)

// WebSocketHandler upgrades dashboard connections and hands them to the hub
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler accepts upgrades from allowedOrigins, or from any
// origin when the list contains "*". Requests without an Origin header are
// same-origin or non-browser clients and are allowed.
func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string, readBuffer, writeBuffer int, logger *slog.Logger) *WebSocketHandler {
	logger = logger.With(slog.String("handler", "websocket"))
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin) {
					return true
				}
				logger.WarnContext(r.Context(), "websocket origin not allowed",
					slog.String("origin", origin))
				return false
			},
		},
	}
}

// ServeHTTP handles GET /ws
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the request.
		h.logger.WarnContext(ctx, "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	if _, err := websocket.Serve(h.hub, websocket.NewConnectionWrapper(conn), infrastructure.GetTraceID(ctx), h.logger); err != nil {
		h.logger.WarnContext(ctx, "websocket client rejected", slog.String("error", err.Error()))
	}
}
