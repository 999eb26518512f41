// Package provider implements the model-vendor clients used by the
// discussion engine. One client exists per transport shape: the
// chat-completions compatible HTTP API (serving several vendors behind
// different endpoints), the Anthropic messages API, and Volcengine Ark
// through eino.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/synapsemind/backend/internal/model/discussion"
)

// Message is one ordered entry of the conversation sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions carries the per-session generation parameters.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Response is the outcome of a successful generation call.
type Response struct {
	Content         string
	ThinkingContent string
	TokensUsed      int
	ResponseTimeMS  float64
}

// Client generates text for an ordered conversation. Implementations are
// safe for sequential reuse; the engine never issues two concurrent calls
// for the same session.
type Client interface {
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Response, error)
	// Probe issues a minimal request and reports the observed latency.
	Probe(ctx context.Context) (latencyMS float64, err error)
}

// Factory builds a client for a provider record. The engine takes a
// Factory so tests can substitute fakes.
type Factory func(ctx context.Context, p discussion.Provider) (Client, error)

// Default endpoints for the chat-completions compatible vendors.
var compatibleBases = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"deepseek": "https://api.deepseek.com/v1",
	"kimi":     "https://api.moonshot.cn/v1",
	"qwen":     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"zhipu":    "https://open.bigmodel.cn/api/paas/v4",
	"gemini":   "https://generativelanguage.googleapis.com/v1beta/openai",
}

// New builds the client matching the provider's type.
func New(ctx context.Context, p discussion.Provider) (Client, error) {
	kind := strings.ToLower(strings.TrimSpace(p.Type))

	if base, ok := compatibleBases[kind]; ok {
		if p.APIBase != "" {
			base = p.APIBase
		}
		return NewChatCompat(base, p.APIKey, p.ModelName), nil
	}

	switch kind {
	case "anthropic", "claude":
		return NewAnthropic(p.APIBase, p.APIKey, p.ModelName), nil
	case "ark":
		return NewArk(ctx, p)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", p.Type)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}
