package handlers

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"photorank-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsReadTimeout = 60 * time.Second

// WebSocketHandler streams rating updates of one category
type WebSocketHandler struct {
	hub      *services.WSHub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. An empty allowedOrigins accepts any origin.
func NewWebSocketHandler(hub *services.WSHub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowedOrigins) == 0 || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// HandleWebSocket handles GET /ws?category_id=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	categoryID, err := strconv.ParseInt(r.URL.Query().Get("category_id"), 10, 64)
	if err != nil || categoryID <= 0 {
		respondError(w, "category_id required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Subscribe(categoryID, conn)
	defer h.hub.Unsubscribe(categoryID, conn)

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	// clients only listen; reads keep the deadline fresh and detect close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Int64("category_id", categoryID).Msg("WebSocket closed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}
