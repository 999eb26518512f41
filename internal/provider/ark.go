package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/synapsemind/backend/internal/model/discussion"
)

// Ark wraps a Volcengine Ark chat model behind the Client interface.
type Ark struct {
	chatModel model.ChatModel
}

// NewArk builds an Ark-backed client from the provider record.
func NewArk(ctx context.Context, p discussion.Provider) (*Ark, error) {
	cfg := &ark.ChatModelConfig{
		APIKey: p.APIKey,
		Model:  p.ModelName,
	}
	if p.APIBase != "" {
		cfg.BaseURL = p.APIBase
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ark chat model: %w", err)
	}

	return &Ark{chatModel: chatModel}, nil
}

func (c *Ark) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Response, error) {
	start := time.Now()

	input := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			input = append(input, schema.SystemMessage(m.Content))
		case "assistant":
			input = append(input, schema.AssistantMessage(m.Content, nil))
		default:
			input = append(input, schema.UserMessage(m.Content))
		}
	}

	temperature := float32(opts.Temperature)
	out, err := c.chatModel.Generate(ctx, input,
		model.WithTemperature(temperature),
		model.WithMaxTokens(opts.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("ark generation failed: %w", err)
	}

	resp := &Response{
		Content:         out.Content,
		ThinkingContent: out.ReasoningContent,
		ResponseTimeMS:  float64(time.Since(start)) / float64(time.Millisecond),
	}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		resp.TokensUsed = out.ResponseMeta.Usage.TotalTokens
	}
	return resp, nil
}

func (c *Ark) Probe(ctx context.Context) (float64, error) {
	start := time.Now()
	_, err := c.Generate(ctx, []Message{{Role: "user", Content: "Hi"}}, GenerateOptions{Temperature: 0, MaxTokens: 10})
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		return latency, err
	}
	return latency, nil
}
