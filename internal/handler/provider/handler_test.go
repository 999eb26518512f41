package provider_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/synapsemind/backend/internal/config"
	providerHandler "github.com/synapsemind/backend/internal/handler/provider"
	"github.com/synapsemind/backend/internal/health"
	"github.com/synapsemind/backend/internal/model/discussion"
	providerClient "github.com/synapsemind/backend/internal/provider"
	"github.com/synapsemind/backend/internal/store"
)

type fakeClient struct{}

func (fakeClient) Generate(ctx context.Context, messages []providerClient.Message, opts providerClient.GenerateOptions) (*providerClient.Response, error) {
	return &providerClient.Response{Content: "ok"}, nil
}

func (fakeClient) Probe(ctx context.Context) (float64, error) {
	return 55.5, nil
}

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()

	s := store.NewMemory()
	checker := health.NewChecker(s, func(ctx context.Context, p discussion.Provider) (providerClient.Client, error) {
		return fakeClient{}, nil
	}, config.HealthConfig{})

	r := chi.NewRouter()
	providerHandler.New(s, checker).RegisterRoutes(r)
	return r, s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateProvider(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/providers", map[string]any{
		"name":         "gpt4",
		"providerType": "openai",
		"modelName":    "gpt-4-turbo-preview",
		"apiKey":       "sk-1234567890abcdef",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["displayName"] != "gpt4" {
		t.Fatalf("displayName should default to name, got %v", got["displayName"])
	}
	if got["isEnabled"] != true {
		t.Fatal("new provider should be enabled")
	}
	if got["status"] != string(discussion.StatusOffline) {
		t.Fatalf("new provider should start offline, got %v", got["status"])
	}

	// The raw key never leaves the API; only the masked form does.
	if _, ok := got["apiKey"]; ok {
		t.Fatal("raw API key leaked in response")
	}
	masked, _ := got["apiKeyMasked"].(string)
	if masked == "" || masked == "sk-1234567890abcdef" {
		t.Fatalf("expected masked key, got %q", masked)
	}
}

func TestCreateProviderValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/providers", map[string]any{"name": "incomplete"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetProviderNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/providers/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateProviderPartial(t *testing.T) {
	r, s := newTestRouter(t)

	p := discussion.Provider{Name: "kimi", DisplayName: "Kimi", Type: "kimi", ModelName: "moonshot-v1-8k", APIKey: "k", Enabled: true}
	if err := s.CreateProvider(context.Background(), &p); err != nil {
		t.Fatalf("CreateProvider err: %v", err)
	}

	rec := doJSON(t, r, http.MethodPut, "/providers/"+p.ID, map[string]any{"isEnabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, err := s.GetProvider(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProvider err: %v", err)
	}
	if got.Enabled {
		t.Fatal("provider should be disabled")
	}
	// Fields omitted from the payload stay untouched.
	if got.DisplayName != "Kimi" || got.ModelName != "moonshot-v1-8k" || got.APIKey != "k" {
		t.Fatalf("unrelated fields changed: %+v", got)
	}
}

func TestDeleteProvider(t *testing.T) {
	r, s := newTestRouter(t)

	p := discussion.Provider{Name: "x", DisplayName: "X", Type: "openai", ModelName: "m", Enabled: true}
	if err := s.CreateProvider(context.Background(), &p); err != nil {
		t.Fatalf("CreateProvider err: %v", err)
	}

	rec := doJSON(t, r, http.MethodDelete, "/providers/"+p.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodDelete, "/providers/"+p.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestTestProvider(t *testing.T) {
	r, s := newTestRouter(t)

	p := discussion.Provider{Name: "gpt4", DisplayName: "GPT-4", Type: "openai", ModelName: "m", APIKey: "sk-test", Enabled: true}
	if err := s.CreateProvider(context.Background(), &p); err != nil {
		t.Fatalf("CreateProvider err: %v", err)
	}

	rec := doJSON(t, r, http.MethodPost, "/providers/"+p.ID+"/test", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["success"] != true || got["status"] != string(discussion.StatusOnline) {
		t.Fatalf("unexpected test result: %v", got)
	}
	if got["responseTimeMs"].(float64) != 55.5 {
		t.Fatalf("unexpected latency: %v", got["responseTimeMs"])
	}

	// The outcome is persisted, not just reported.
	stored, err := s.GetProvider(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProvider err: %v", err)
	}
	if stored.Status != discussion.StatusOnline || stored.LastCheckAt == nil {
		t.Fatalf("test result not persisted: %+v", stored)
	}
}

func TestTestProviderMarksTestingDuringProbe(t *testing.T) {
	s := store.NewMemory()

	p := discussion.Provider{Name: "gpt4", DisplayName: "GPT-4", Type: "openai", ModelName: "m", APIKey: "sk-test", Enabled: true}
	if err := s.CreateProvider(context.Background(), &p); err != nil {
		t.Fatalf("CreateProvider err: %v", err)
	}

	// The factory runs while the probe is in flight; observe the status a
	// concurrent reader would see at that moment.
	var observed discussion.ProviderStatus
	checker := health.NewChecker(s, func(ctx context.Context, pr discussion.Provider) (providerClient.Client, error) {
		stored, err := s.GetProvider(ctx, p.ID)
		if err != nil {
			t.Errorf("GetProvider during probe: %v", err)
		}
		observed = stored.Status
		return fakeClient{}, nil
	}, config.HealthConfig{})

	r := chi.NewRouter()
	providerHandler.New(s, checker).RegisterRoutes(r)

	rec := doJSON(t, r, http.MethodPost, "/providers/"+p.ID+"/test", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if observed != discussion.StatusTesting {
		t.Fatalf("expected testing status during probe, got %q", observed)
	}

	stored, err := s.GetProvider(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProvider err: %v", err)
	}
	if stored.Status != discussion.StatusOnline {
		t.Fatalf("final status should reflect the probe outcome, got %q", stored.Status)
	}
}

func TestTestProviderWithoutKey(t *testing.T) {
	r, s := newTestRouter(t)

	p := discussion.Provider{Name: "bare", DisplayName: "Bare", Type: "openai", ModelName: "m", Enabled: true}
	if err := s.CreateProvider(context.Background(), &p); err != nil {
		t.Fatalf("CreateProvider err: %v", err)
	}

	rec := doJSON(t, r, http.MethodPost, "/providers/"+p.ID+"/test", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
