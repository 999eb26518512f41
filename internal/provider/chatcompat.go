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

// ChatCompat speaks the OpenAI chat-completions wire format, which most
// vendors expose behind their own base URL.
type ChatCompat struct {
	baseURL string
	apiKey  string
	model   string
	httpc   *http.Client
}

// NewChatCompat builds a client against the given chat-completions base URL.
func NewChatCompat(baseURL, apiKey, model string) *ChatCompat {
	return &ChatCompat{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpc:   newHTTPClient(),
	}
}

type chatCompatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatCompatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *ChatCompat) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Response, error) {
	start := time.Now()

	body, err := json.Marshal(chatCompatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatCompatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	return &Response{
		Content:         parsed.Choices[0].Message.Content,
		ThinkingContent: parsed.Choices[0].Message.ReasoningContent,
		TokensUsed:      parsed.Usage.TotalTokens,
		ResponseTimeMS:  float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

func (c *ChatCompat) Probe(ctx context.Context) (float64, error) {
	start := time.Now()
	_, err := c.Generate(ctx, []Message{{Role: "user", Content: "Hi"}}, GenerateOptions{Temperature: 0, MaxTokens: 10})
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		return latency, err
	}
	return latency, nil
}
