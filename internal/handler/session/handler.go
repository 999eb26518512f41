package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/synapsemind/backend/internal/config"
	"github.com/synapsemind/backend/internal/engine"
	"github.com/synapsemind/backend/internal/model/discussion"
	"github.com/synapsemind/backend/internal/store"
	"github.com/synapsemind/backend/pkg/utils"
)

// Handler exposes session CRUD and run control over HTTP.
type Handler struct {
	store  store.Store
	engine *engine.Engine
	cfg    config.EngineConfig
}

// New creates the session handler.
func New(s store.Store, eng *engine.Engine, cfg config.EngineConfig) *Handler {
	return &Handler{store: s, engine: eng, cfg: cfg}
}

// RegisterRoutes mounts the session endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleList)
	r.Post("/sessions", h.handleCreate)
	r.Get("/sessions/{sessionID}", h.handleGet)
	r.Put("/sessions/{sessionID}", h.handleUpdate)
	r.Delete("/sessions/{sessionID}", h.handleDelete)
	r.Get("/sessions/{sessionID}/messages", h.handleListMessages)
	r.Post("/sessions/{sessionID}/messages", h.handleUserMessage)
	r.Post("/sessions/{sessionID}/start", h.handleStart)
	r.Post("/sessions/{sessionID}/stop", h.handleStop)
}

type createPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Topic       string   `json:"topic"`
	MaxRounds   int      `json:"maxRounds"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   int      `json:"maxTokens"`
	ProviderIDs []string `json:"providerIds"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload.Topic = strings.TrimSpace(payload.Topic)
	if payload.Topic == "" {
		utils.RespondError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if payload.Title == "" {
		payload.Title = payload.Topic
	}
	if payload.MaxRounds <= 0 {
		payload.MaxRounds = h.cfg.DefaultMaxRounds
	}
	temperature := h.cfg.DefaultTemperature
	if payload.Temperature != nil {
		temperature = *payload.Temperature
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = h.cfg.DefaultMaxTokens
	}

	for _, id := range payload.ProviderIDs {
		if _, err := h.store.GetProvider(r.Context(), id); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "unknown provider: "+id)
			return
		}
	}

	sess := discussion.Session{
		Title:       payload.Title,
		Description: payload.Description,
		Topic:       payload.Topic,
		MaxRounds:   payload.MaxRounds,
		Temperature: temperature,
		MaxTokens:   payload.MaxTokens,
	}
	if err := h.store.CreateSession(r.Context(), &sess, payload.ProviderIDs); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []discussion.Session{}
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.store.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	roster, err := h.store.Roster(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load roster")
		return
	}
	messages, err := h.store.ListMessages(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if roster == nil {
		roster = []discussion.Provider{}
	}
	if messages == nil {
		messages = []discussion.Message{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session":   sess,
		"providers": roster,
		"messages":  messages,
		"isRunning": h.engine.IsRunning(sessionID),
	})
}

type updatePayload struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Topic       *string  `json:"topic"`
	MaxRounds   *int     `json:"maxRounds"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"maxTokens"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload updatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, store.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess.IsCompleted {
		utils.RespondError(w, http.StatusBadRequest, "session already completed")
		return
	}

	if payload.Title != nil {
		sess.Title = *payload.Title
	}
	if payload.Description != nil {
		sess.Description = *payload.Description
	}
	if payload.Topic != nil {
		sess.Topic = *payload.Topic
	}
	if payload.MaxRounds != nil && *payload.MaxRounds > 0 {
		sess.MaxRounds = *payload.MaxRounds
	}
	if payload.Temperature != nil {
		sess.Temperature = *payload.Temperature
	}
	if payload.MaxTokens != nil && *payload.MaxTokens > 0 {
		sess.MaxTokens = *payload.MaxTokens
	}

	if err := h.store.UpdateSession(r.Context(), sess); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to update session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.engine.Stop(r.Context(), sessionID)

	err := h.store.DeleteSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.store.ListMessages(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, store.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if messages == nil {
		messages = []discussion.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleUserMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := h.engine.AddUserMessage(r.Context(), chi.URLParam(r, "sessionID"), payload.Content)
	if errors.Is(err, store.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to save message")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	err := h.engine.Start(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, store.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if errors.Is(err, engine.ErrAlreadyCompleted) {
		utils.RespondError(w, http.StatusBadRequest, "session already completed")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	wasRunning := h.engine.IsRunning(sessionID)
	h.engine.Stop(r.Context(), sessionID)

	status := "stopped"
	if !wasRunning {
		status = "not running"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": status})
}
