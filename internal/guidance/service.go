// Package guidance provides clients for the external guidance service that
// produces mirror statements and leading questions. The remote Worker is the
// primary backend; LLM-backed providers cover deployments without one. All
// backends return loosely-shaped turn payloads that pass through the coerce
// package.
package guidance

import (
	"context"
	"errors"
	"time"

	"github.com/zenyourself/reflection-core/internal/coerce"
	"github.com/zenyourself/reflection-core/internal/model"
)

// Service is the interface to the external guidance backend.
type Service interface {
	// StartSession begins a round with the user's seed thought.
	StartSession(ctx context.Context, text, locale, tz string) (coerce.Result, error)

	// NextTurn continues a round with the user's answer.
	NextTurn(ctx context.Context, sess model.SessionHandle, text, locale, tz string) (coerce.Result, error)

	// Closure requests the closing mirror and mood-intro turn.
	Closure(ctx context.Context, sess model.SessionHandle, answer, locale, tz string) (coerce.Result, error)

	// Name returns the backend name.
	Name() string
}

// Provider selects a guidance backend.
type Provider string

const (
	ProviderWorker    Provider = "worker"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Config holds backend selection and credentials.
type Config struct {
	Provider        Provider
	WorkerURL       string
	WorkerAPIKey    string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	Timeout         time.Duration
}

// New creates a guidance service for the configured provider.
func New(cfg Config) (Service, error) {
	switch cfg.Provider {
	case ProviderWorker:
		return NewWorkerClient(cfg.WorkerURL, cfg.WorkerAPIKey, cfg.Timeout)
	case ProviderAnthropic:
		return NewAnthropicGuide(cfg.AnthropicAPIKey)
	case ProviderOpenAI:
		return NewOpenAIGuide(cfg.OpenAIAPIKey)
	default:
		return nil, errors.New("unknown guidance provider")
	}
}

// FallbackMirror is the fixed calming sentence shown when a guidance call
// fails or times out. The user never sees a raw error.
const FallbackMirror = "Ich bin bei dir. Magst du mir in Ruhe noch etwas mehr dazu erzählen?"

// FallbackStep builds the step appended on a failed turn: calming mirror,
// no question, no helpers, no risk. It does not advance closure state and
// leaves the round open for a fresh submission.
func FallbackStep(now time.Time) *model.Step {
	return &model.Step{
		Mirror:    FallbackMirror,
		CreatedAt: now,
	}
}
