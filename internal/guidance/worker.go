package guidance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zenyourself/reflection-core/internal/coerce"
	"github.com/zenyourself/reflection-core/internal/model"
)

// WorkerClient talks to the remote reflection Worker over HTTP. The Worker
// owns the actual language understanding, safety classification, and dialogue
// generation; this client only ships text back and forth and absorbs whatever
// payload shape comes back.
type WorkerClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewWorkerClient creates a Worker client.
func NewWorkerClient(baseURL, apiKey string, timeout time.Duration) (*WorkerClient, error) {
	if baseURL == "" {
		return nil, errors.New("worker URL is required")
	}
	return &WorkerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the provider name.
func (c *WorkerClient) Name() string {
	return "worker"
}

type workerRequest struct {
	Text     string               `json:"text"`
	Locale   string               `json:"locale,omitempty"`
	Timezone string               `json:"tz,omitempty"`
	Session  *model.SessionHandle `json:"session,omitempty"`
}

// StartSession begins a round.
func (c *WorkerClient) StartSession(ctx context.Context, text, locale, tz string) (coerce.Result, error) {
	return c.call(ctx, "/v1/reflect/start", workerRequest{
		Text: text, Locale: locale, Timezone: tz,
	})
}

// NextTurn continues a round with the user's answer.
func (c *WorkerClient) NextTurn(ctx context.Context, sess model.SessionHandle, text, locale, tz string) (coerce.Result, error) {
	return c.call(ctx, "/v1/reflect/turn", workerRequest{
		Text: text, Locale: locale, Timezone: tz, Session: &sess,
	})
}

// Closure requests the closing turn.
func (c *WorkerClient) Closure(ctx context.Context, sess model.SessionHandle, answer, locale, tz string) (coerce.Result, error) {
	return c.call(ctx, "/v1/reflect/closure", workerRequest{
		Text: answer, Locale: locale, Timezone: tz, Session: &sess,
	})
}

func (c *WorkerClient) call(ctx context.Context, endpoint string, reqBody workerRequest) (coerce.Result, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return coerce.Result{}, fmt.Errorf("failed to marshal worker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return coerce.Result{}, fmt.Errorf("failed to build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return coerce.Result{}, fmt.Errorf("worker call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return coerce.Result{}, fmt.Errorf("failed to read worker response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return coerce.Result{}, fmt.Errorf("worker returned status %d", resp.StatusCode)
	}

	// The Worker has shipped several response shapes over time; decode into
	// an untyped value and let the coercion layer sort it out. A body that
	// is not even JSON is treated as plain reply text.
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		payload = string(body)
	}
	return coerce.Turn(payload), nil
}
