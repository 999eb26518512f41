package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/synapsemind/backend/internal/store"
	"github.com/synapsemind/backend/internal/ws"
	"github.com/synapsemind/backend/pkg/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket subscribes a client to a session's event stream. The
// connection only receives events; inbound frames are drained to detect
// disconnects.
func handleWebSocket(hub *ws.Hub, s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			utils.RespondError(w, http.StatusBadRequest, "sessionID is required")
			return
		}

		if _, err := s.GetSession(r.Context(), sessionID); err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				utils.RespondError(w, http.StatusNotFound, "session not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[ws] upgrade failed for session=%s: %v", sessionID, err)
			return
		}

		sub := hub.Subscribe(sessionID, conn)
		defer func() {
			hub.Unsubscribe(sessionID, sub)
			conn.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
