package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"photorank-backend/internal/ranking"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteTimeout = 5 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	CategoryID int64  `json:"category_id,omitempty"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// RatingUpdate is the payload of a rating_update message
type RatingUpdate struct {
	WinnerID     int64   `json:"winner_id"`
	WinnerRating float64 `json:"winner_rating"`
	LoserID      int64   `json:"loser_id"`
	LoserRating  float64 `json:"loser_rating"`
}

const wsQueueSize = 64

// subscriber owns one connection. Messages are queued on send and written by
// its own goroutine, so a slow client never holds up a vote request.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// enqueue reports false when the queue is full. Callers hold the hub read lock.
func (s *subscriber) enqueue(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// WSHub fans rating changes out to clients watching a category
type WSHub struct {
	mu          sync.RWMutex
	subscribers map[int64]map[*websocket.Conn]*subscriber
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{subscribers: make(map[int64]map[*websocket.Conn]*subscriber)}
}

// Subscribe registers conn for updates of a category
func (h *WSHub) Subscribe(categoryID int64, conn *websocket.Conn) {
	sub := h.add(categoryID, conn)
	go h.writePump(categoryID, sub)
}

func (h *WSHub) add(categoryID int64, conn *websocket.Conn) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[categoryID]
	if !ok {
		subs = make(map[*websocket.Conn]*subscriber)
		h.subscribers[categoryID] = subs
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, wsQueueSize)}
	subs[conn] = sub

	log.Debug().Int64("category_id", categoryID).Int("subscribers", len(subs)).Msg("WebSocket subscribed")
	return sub
}

// writePump drains the queue until Unsubscribe closes it
func (h *WSHub) writePump(categoryID int64, sub *subscriber) {
	for data := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Int64("category_id", categoryID).Msg("Failed to send message, dropping connection")
			h.Unsubscribe(categoryID, sub.conn)
			return
		}
	}
}

// Unsubscribe removes and closes conn
func (h *WSHub) Unsubscribe(categoryID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[categoryID]
	if !ok {
		return
	}
	sub, ok := subs[conn]
	if !ok {
		return
	}
	close(sub.send)
	conn.Close()
	delete(subs, conn)
	if len(subs) == 0 {
		delete(h.subscribers, categoryID)
	}
	log.Debug().Int64("category_id", categoryID).Msg("WebSocket unsubscribed")
}

// Subscribers returns the number of connections watching a category
func (h *WSHub) Subscribers(categoryID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[categoryID])
}

// Broadcast queues message for every subscriber of a category without waiting on the network.
// Subscribers that cannot keep up are dropped.
func (h *WSHub) Broadcast(categoryID int64, message WSMessage) error {
	message.CategoryID = categoryID
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Queues are only closed under the write lock, so enqueueing under the
	// read lock never hits a closed channel.
	var full []*websocket.Conn
	h.mu.RLock()
	for conn, sub := range h.subscribers[categoryID] {
		if !sub.enqueue(data) {
			full = append(full, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range full {
		log.Warn().Int64("category_id", categoryID).Msg("Subscriber queue full, dropping connection")
		h.Unsubscribe(categoryID, conn)
	}
	return nil
}

// BroadcastJudgment publishes the new ratings of a recorded judgment
func (h *WSHub) BroadcastJudgment(outcome *ranking.Outcome) {
	if outcome == nil {
		return
	}
	err := h.Broadcast(outcome.Winner.PartitionID, WSMessage{
		Type:      "rating_update",
		Timestamp: outcome.Judgment.CreatedAt.UnixMilli(),
		Data: RatingUpdate{
			WinnerID:     outcome.Winner.ID,
			WinnerRating: outcome.Winner.Rating,
			LoserID:      outcome.Loser.ID,
			LoserRating:  outcome.Loser.Rating,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to broadcast rating update")
	}
}
