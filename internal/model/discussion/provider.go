package discussion

import "time"

// ProviderStatus tracks the last known health of a provider.
type ProviderStatus string

const (
	StatusOnline  ProviderStatus = "online"
	StatusOffline ProviderStatus = "offline"
	StatusError   ProviderStatus = "error"
	StatusTesting ProviderStatus = "testing"
)

// Provider is one configured model-backed speaker.
type Provider struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Type        string `json:"providerType"`
	ModelName   string `json:"modelName"`
	APIKey      string `json:"-"`
	APIBase     string `json:"apiBase,omitempty"`
	BrandColor  string `json:"brandColor"`
	Enabled     bool   `json:"isEnabled"`

	Status          ProviderStatus `json:"status"`
	AvgResponseTime float64        `json:"avgResponseTime,omitempty"`
	LastCheckAt     *time.Time     `json:"lastCheckAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Eligible reports whether the provider may take turns in a session:
// it must be enabled and carry a credential. Evaluated once at session
// initialization, not re-checked mid-run.
func (p Provider) Eligible() bool {
	return p.Enabled && p.APIKey != ""
}

// MaskedKey returns the API key in a display-safe form.
func (p Provider) MaskedKey() string {
	if p.APIKey == "" {
		return ""
	}
	if len(p.APIKey) <= 8 {
		return "********"
	}
	return p.APIKey[:8] + "********************"
}

// Seed provides the default provider roster installed on first start.
func Seed() []Provider {
	return []Provider{
		{Name: "claude", DisplayName: "Claude 3.5 Sonnet", Type: "anthropic", ModelName: "claude-3-5-sonnet-20241022", BrandColor: "#d97757", Enabled: true, Status: StatusOffline},
		{Name: "gpt4", DisplayName: "GPT-4 Turbo", Type: "openai", ModelName: "gpt-4-turbo-preview", BrandColor: "#10a37f", Enabled: true, Status: StatusOffline},
		{Name: "gemini", DisplayName: "Gemini 1.5 Pro", Type: "gemini", ModelName: "gemini-1.5-pro", BrandColor: "#4285f4", Enabled: true, Status: StatusOffline},
		{Name: "deepseek", DisplayName: "DeepSeek Chat", Type: "deepseek", ModelName: "deepseek-chat", BrandColor: "#4f46e5", Enabled: true, Status: StatusOffline},
		{Name: "kimi", DisplayName: "Kimi Moonshot", Type: "kimi", ModelName: "moonshot-v1-8k", BrandColor: "#3b82f6", Enabled: true, Status: StatusOffline},
		{Name: "qwen", DisplayName: "Qwen Turbo", Type: "qwen", ModelName: "qwen-turbo", BrandColor: "#1677ff", Enabled: true, Status: StatusOffline},
		{Name: "zhipu", DisplayName: "GLM-4", Type: "zhipu", ModelName: "glm-4", BrandColor: "#1a1a1a", Enabled: true, Status: StatusOffline},
		{Name: "doubao", DisplayName: "Doubao (Ark)", Type: "ark", ModelName: "doubao-pro-32k", BrandColor: "#616ef0", Enabled: true, Status: StatusOffline},
	}
}
