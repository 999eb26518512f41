package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/synapsemind/backend/internal/config"
	"github.com/synapsemind/backend/internal/engine"
	"github.com/synapsemind/backend/internal/handler/provider"
	"github.com/synapsemind/backend/internal/handler/session"
	"github.com/synapsemind/backend/internal/health"
	middlewarePkg "github.com/synapsemind/backend/internal/middleware"
	"github.com/synapsemind/backend/internal/model/discussion"
	"github.com/synapsemind/backend/internal/store"
	"github.com/synapsemind/backend/internal/ws"
	"github.com/synapsemind/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(s store.Store, eng *engine.Engine, hub *ws.Hub, checker *health.Checker, cfg config.EngineConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	providerHandler := provider.New(s, checker)
	sessionHandler := session.New(s, eng, cfg)

	r.Route("/api", func(api chi.Router) {
		providerHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)

		api.Get("/ws/sessions/{sessionID}", handleWebSocket(hub, s))
		api.Get("/stats", handleStats(s))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

func handleStats(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := s.ListProviders(r.Context())
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "failed to load providers")
			return
		}
		sessions, err := s.ListSessions(r.Context())
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "failed to load sessions")
			return
		}
		messageCount, err := s.CountMessages(r.Context())
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "failed to count messages")
			return
		}

		online := 0
		for _, p := range providers {
			if p.Status == discussion.StatusOnline {
				online++
			}
		}
		active, completed := 0, 0
		for _, sess := range sessions {
			if sess.IsCompleted {
				completed++
			} else if sess.IsActive {
				active++
			}
		}

		utils.RespondJSON(w, http.StatusOK, map[string]int{
			"totalProviders":    len(providers),
			"onlineProviders":   online,
			"totalSessions":     len(sessions),
			"activeSessions":    active,
			"completedSessions": completed,
			"totalMessages":     messageCount,
		})
	}
}
