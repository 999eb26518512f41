package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicDefaultBase = "https://api.anthropic.com"

// Anthropic speaks the Anthropic messages API, which differs from the
// chat-completions shape: the system prompt travels in its own field and
// authentication uses the x-api-key header.
type Anthropic struct {
	baseURL string
	apiKey  string
	model   string
	httpc   *http.Client
}

// NewAnthropic builds a client for the Anthropic messages API.
func NewAnthropic(baseURL, apiKey, model string) *Anthropic {
	if baseURL == "" {
		baseURL = anthropicDefaultBase
	}
	return &Anthropic{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpc:   newHTTPClient(),
	}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Anthropic) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Response, error) {
	start := time.Now()

	// Split the leading system instruction off into the dedicated field.
	var system string
	conversation := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		conversation = append(conversation, m)
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		System:      system,
		Messages:    conversation,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var content strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &Response{
		Content:        content.String(),
		TokensUsed:     parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		ResponseTimeMS: float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

func (c *Anthropic) Probe(ctx context.Context) (float64, error) {
	start := time.Now()
	_, err := c.Generate(ctx, []Message{{Role: "user", Content: "Hi"}}, GenerateOptions{Temperature: 0, MaxTokens: 10})
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		return latency, err
	}
	return latency, nil
}
