// Package ws fans out discussion events to websocket subscribers. Delivery
// is best-effort per subscriber and order-preserving per session; a failed
// write evicts only that subscriber.
package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/synapsemind/backend/internal/model/discussion"
)

// Event type tags on the wire.
const (
	EventNewMessage       = "new_message"
	EventRoundUpdate      = "round_update"
	EventTyping           = "llm_typing"
	EventStoppedTyping    = "llm_stopped_typing"
	EventConsensusUpdate  = "consensus_update"
	EventSessionCompleted = "session_completed"
	EventUserJoined       = "user_joined"
	EventError            = "error"
)

// Event is the envelope broadcast to subscribers of a session.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) send(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(e)
}

// Hub tracks websocket subscribers per session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*subscriber]struct{}
}

// NewHub bootstraps an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers a connection for a session and announces the join.
// The returned handle must be passed to Unsubscribe when the connection
// closes.
func (h *Hub) Subscribe(sessionID string, conn *websocket.Conn) *subscriber {
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*subscriber]struct{})
	}
	h.sessions[sessionID][sub] = struct{}{}
	count := len(h.sessions[sessionID])
	h.mu.Unlock()

	h.Broadcast(sessionID, Event{
		Type:      EventUserJoined,
		Data:      map[string]any{"connectionCount": count},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return sub
}

// Unsubscribe removes a connection from a session.
func (h *Hub) Unsubscribe(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.sessions[sessionID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

// ConnectionCount reports the current subscriber count for a session.
func (h *Hub) ConnectionCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Broadcast delivers an event to every subscriber of a session. Subscribers
// whose write fails are dropped; the rest still receive the event.
func (h *Hub) Broadcast(sessionID string, event Event) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.sessions[sessionID]))
	for sub := range h.sessions[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var dead []*subscriber
	for _, sub := range subs {
		if err := sub.send(event); err != nil {
			log.Printf("[ws] dropping subscriber of session=%s: %v", sessionID, err)
			dead = append(dead, sub)
		}
	}

	for _, sub := range dead {
		h.Unsubscribe(sessionID, sub)
		sub.conn.Close()
	}
}

func (h *Hub) emit(sessionID, eventType string, data any) {
	h.Broadcast(sessionID, Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// NewMessage announces a persisted message. The provider is nil for user
// and plain system messages.
func (h *Hub) NewMessage(sessionID string, msg discussion.Message, p *discussion.Provider) {
	data := map[string]any{
		"id":        msg.ID,
		"sessionId": msg.SessionID,
		"role":      string(msg.Role),
		"content":   msg.Content,
		"createdAt": msg.CreatedAt.Format(time.RFC3339),
	}
	if msg.ThinkingContent != "" {
		data["thinkingContent"] = msg.ThinkingContent
	}
	if msg.TokensUsed > 0 {
		data["tokensUsed"] = msg.TokensUsed
	}
	if msg.ResponseTimeMS > 0 {
		data["responseTimeMs"] = msg.ResponseTimeMS
	}
	if p != nil {
		data["llmId"] = p.ID
		data["llmName"] = p.DisplayName
		data["llmBrandColor"] = p.BrandColor
	}
	h.emit(sessionID, EventNewMessage, data)
}

// Typing announces that a provider started generating.
func (h *Hub) Typing(sessionID string, p discussion.Provider) {
	h.emit(sessionID, EventTyping, map[string]any{
		"llmId":   p.ID,
		"llmName": p.DisplayName,
	})
}

// StoppedTyping announces that a provider finished or failed generating.
func (h *Hub) StoppedTyping(sessionID string, p discussion.Provider) {
	h.emit(sessionID, EventStoppedTyping, map[string]any{
		"llmId": p.ID,
	})
}

// RoundUpdate announces round progress.
func (h *Hub) RoundUpdate(sessionID string, current, max int, status string) {
	h.emit(sessionID, EventRoundUpdate, map[string]any{
		"currentRound": current,
		"maxRounds":    max,
		"status":       status,
	})
}

// ConsensusUpdate announces the running consensus heuristic.
func (h *Hub) ConsensusUpdate(sessionID string, pct float64, round, totalMessages int) {
	h.emit(sessionID, EventConsensusUpdate, map[string]any{
		"consensusPercentage": pct,
		"currentRound":        round,
		"totalMessages":       totalMessages,
	})
}

// SessionCompleted announces finalization.
func (h *Hub) SessionCompleted(sessionID, summary string, totalRounds, totalMessages int, pct float64) {
	h.emit(sessionID, EventSessionCompleted, map[string]any{
		"summary":             summary,
		"totalRounds":         totalRounds,
		"totalMessages":       totalMessages,
		"consensusPercentage": pct,
	})
}
