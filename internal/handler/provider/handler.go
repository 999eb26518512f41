package provider

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/synapsemind/backend/internal/health"
	"github.com/synapsemind/backend/internal/model/discussion"
	"github.com/synapsemind/backend/internal/store"
	"github.com/synapsemind/backend/pkg/utils"
)

// Handler exposes provider management over HTTP.
type Handler struct {
	store   store.Store
	checker *health.Checker
}

// New creates the provider handler.
func New(s store.Store, checker *health.Checker) *Handler {
	return &Handler{store: s, checker: checker}
}

// RegisterRoutes mounts the provider endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/providers", h.handleList)
	r.Post("/providers", h.handleCreate)
	r.Get("/providers/{providerID}", h.handleGet)
	r.Put("/providers/{providerID}", h.handleUpdate)
	r.Delete("/providers/{providerID}", h.handleDelete)
	r.Post("/providers/{providerID}/test", h.handleTest)
}

type providerResponse struct {
	discussion.Provider
	APIKeyMasked string `json:"apiKeyMasked,omitempty"`
}

func toResponse(p discussion.Provider) providerResponse {
	return providerResponse{Provider: p, APIKeyMasked: p.MaskedKey()}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	providers, err := h.store.ListProviders(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list providers")
		return
	}

	out := make([]providerResponse, 0, len(providers))
	for _, p := range providers {
		out = append(out, toResponse(p))
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProvider(r.Context(), chi.URLParam(r, "providerID"))
	if errors.Is(err, store.ErrProviderNotFound) {
		utils.RespondError(w, http.StatusNotFound, "provider not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load provider")
		return
	}
	utils.RespondJSON(w, http.StatusOK, toResponse(p))
}

type createPayload struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Type        string `json:"providerType"`
	ModelName   string `json:"modelName"`
	APIKey      string `json:"apiKey"`
	APIBase     string `json:"apiBase"`
	BrandColor  string `json:"brandColor"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Name == "" || payload.Type == "" || payload.ModelName == "" {
		utils.RespondError(w, http.StatusBadRequest, "name, providerType and modelName are required")
		return
	}
	if payload.DisplayName == "" {
		payload.DisplayName = payload.Name
	}
	if payload.BrandColor == "" {
		payload.BrandColor = "#3b82f6"
	}

	p := discussion.Provider{
		Name:        payload.Name,
		DisplayName: payload.DisplayName,
		Type:        payload.Type,
		ModelName:   payload.ModelName,
		APIKey:      payload.APIKey,
		APIBase:     payload.APIBase,
		BrandColor:  payload.BrandColor,
		Enabled:     true,
		Status:      discussion.StatusOffline,
	}
	if err := h.store.CreateProvider(r.Context(), &p); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create provider")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, toResponse(p))
}

type updatePayload struct {
	DisplayName *string `json:"displayName"`
	ModelName   *string `json:"modelName"`
	APIKey      *string `json:"apiKey"`
	APIBase     *string `json:"apiBase"`
	BrandColor  *string `json:"brandColor"`
	Enabled     *bool   `json:"isEnabled"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload updatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.store.GetProvider(r.Context(), chi.URLParam(r, "providerID"))
	if errors.Is(err, store.ErrProviderNotFound) {
		utils.RespondError(w, http.StatusNotFound, "provider not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load provider")
		return
	}

	if payload.DisplayName != nil {
		p.DisplayName = *payload.DisplayName
	}
	if payload.ModelName != nil {
		p.ModelName = *payload.ModelName
	}
	if payload.APIKey != nil {
		p.APIKey = *payload.APIKey
	}
	if payload.APIBase != nil {
		p.APIBase = *payload.APIBase
	}
	if payload.BrandColor != nil {
		p.BrandColor = *payload.BrandColor
	}
	if payload.Enabled != nil {
		p.Enabled = *payload.Enabled
	}

	if err := h.store.UpdateProvider(r.Context(), p); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to update provider")
		return
	}
	utils.RespondJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteProvider(r.Context(), chi.URLParam(r, "providerID"))
	if errors.Is(err, store.ErrProviderNotFound) {
		utils.RespondError(w, http.StatusNotFound, "provider not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete provider")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProvider(r.Context(), chi.URLParam(r, "providerID"))
	if errors.Is(err, store.ErrProviderNotFound) {
		utils.RespondError(w, http.StatusNotFound, "provider not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load provider")
		return
	}
	if p.APIKey == "" {
		utils.RespondError(w, http.StatusBadRequest, "provider has no API key configured")
		return
	}

	// Mark the provider as testing while the probe is in flight so
	// concurrent readers see the transient state.
	p.Status = discussion.StatusTesting
	if err := h.store.UpdateProvider(r.Context(), p); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to record test state")
		return
	}

	updated := h.checker.Check(r.Context(), p)
	if err := h.store.UpdateProvider(r.Context(), updated); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to record test result")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":        updated.Status == discussion.StatusOnline,
		"status":         updated.Status,
		"responseTimeMs": updated.AvgResponseTime,
	})
}
