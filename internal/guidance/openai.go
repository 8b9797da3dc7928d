package guidance

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/zenyourself/reflection-core/internal/coerce"
	"github.com/zenyourself/reflection-core/internal/model"
)

const openAIModel = "gpt-4o-mini"

// OpenAIGuide is the OpenAI-backed guidance provider.
type OpenAIGuide struct {
	client *openai.Client
}

// NewOpenAIGuide creates a new OpenAI-backed guide.
func NewOpenAIGuide(apiKey string) (*OpenAIGuide, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return &OpenAIGuide{client: openai.NewClient(apiKey)}, nil
}

// Name returns the provider name.
func (g *OpenAIGuide) Name() string {
	return "openai"
}

// StartSession begins a round.
func (g *OpenAIGuide) StartSession(ctx context.Context, text, locale, tz string) (coerce.Result, error) {
	return g.turn(ctx, model.SessionHandle{}, text, locale, tz, false)
}

// NextTurn continues a round with the user's answer.
func (g *OpenAIGuide) NextTurn(ctx context.Context, sess model.SessionHandle, text, locale, tz string) (coerce.Result, error) {
	return g.turn(ctx, sess, text, locale, tz, false)
}

// Closure requests the closing turn.
func (g *OpenAIGuide) Closure(ctx context.Context, sess model.SessionHandle, answer, locale, tz string) (coerce.Result, error) {
	return g.turn(ctx, sess, answer, locale, tz, true)
}

func (g *OpenAIGuide) turn(ctx context.Context, sess model.SessionHandle, text, locale, tz string, closing bool) (coerce.Result, error) {
	msgs := turnMessages(sess, text, tz, closing)

	messages := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(locale),
	})
	for _, m := range msgs {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     openAIModel,
		Messages:  messages,
		MaxTokens: 512,
	})
	if err != nil {
		return coerce.Result{}, err
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	return parseTurn(content, sess), nil
}
