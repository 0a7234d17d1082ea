package llm

import (
	"context"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

// AnthropicMessager is the slice of the SDK client the backend needs
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicBackend analyzes clauses through the Anthropic API. Each
// request is preceded by a fixed delay to stay under rate limits.
type AnthropicBackend struct {
	messages AnthropicMessager
	model    anthropic.Model
	delay    time.Duration
	log      *logger.Logger
}

func NewAnthropicBackend(apiKey, model string, delay time.Duration, log *logger.Logger) *AnthropicBackend {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicBackend{
		messages: &c.Messages,
		model:    anthropic.Model(model),
		delay:    delay,
		log:      log,
	}
}

func (a *AnthropicBackend) Analyze(ctx context.Context, clause string) (*Response, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   1000,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(clause)))},
		Temperature: anthropic.Float(0.1),
	})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return ParseResponse(sb.String())
}
