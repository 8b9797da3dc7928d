package guidance

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zenyourself/reflection-core/internal/coerce"
	"github.com/zenyourself/reflection-core/internal/model"
)

const anthropicModel = "claude-3-5-haiku-20241022"

// AnthropicGuide is the Anthropic-backed guidance provider.
type AnthropicGuide struct {
	client *anthropic.Client
}

// NewAnthropicGuide creates a new Anthropic-backed guide.
func NewAnthropicGuide(apiKey string) (*AnthropicGuide, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	return &AnthropicGuide{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

// Name returns the provider name.
func (g *AnthropicGuide) Name() string {
	return "anthropic"
}

// StartSession begins a round.
func (g *AnthropicGuide) StartSession(ctx context.Context, text, locale, tz string) (coerce.Result, error) {
	return g.turn(ctx, model.SessionHandle{}, text, locale, tz, false)
}

// NextTurn continues a round with the user's answer.
func (g *AnthropicGuide) NextTurn(ctx context.Context, sess model.SessionHandle, text, locale, tz string) (coerce.Result, error) {
	return g.turn(ctx, sess, text, locale, tz, false)
}

// Closure requests the closing turn.
func (g *AnthropicGuide) Closure(ctx context.Context, sess model.SessionHandle, answer, locale, tz string) (coerce.Result, error) {
	return g.turn(ctx, sess, answer, locale, tz, true)
}

func (g *AnthropicGuide) turn(ctx context.Context, sess model.SessionHandle, text, locale, tz string, closing bool) (coerce.Result, error) {
	msgs := turnMessages(sess, text, tz, closing)

	messages := make([]anthropic.MessageParam, len(msgs))
	for i, m := range msgs {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(m.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(m.Content),
				},
			}),
		}
	}

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropicModel),
		MaxTokens: anthropic.F(int64(512)),
		System: anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(systemPrompt(locale)),
		}}),
		Messages: anthropic.F(messages),
	})
	if err != nil {
		return coerce.Result{}, err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	return parseTurn(content, sess), nil
}
