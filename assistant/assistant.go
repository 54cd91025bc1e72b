// Package assistant talks to the language model that answers chat messages.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrDisabled is returned by Disabled.
var ErrDisabled = errors.New("assistant: disabled")

// Prompt is one request to the model.
type Prompt struct {
	System string
	User   string
}

// Assistant completes prompts.
type Assistant interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Disabled is the Assistant used when no model is configured.
type Disabled struct{}

func (Disabled) Complete(context.Context, Prompt) (string, error) { return "", ErrDisabled }

// Func adapts a function to the Assistant interface.
type Func func(ctx context.Context, p Prompt) (string, error)

func (f Func) Complete(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAI creates a client for baseURL, e.g. "https://api.openai.com/v1".
func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAI{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (o *OpenAI) Complete(ctx context.Context, p Prompt) (string, error) {
	reqBody := chatRequest{Model: o.model}
	if p.System != "" {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "system", Content: p.System})
	}
	reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "user", Content: p.User})
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	o.logger.Debug("assistant.complete", "model", o.model, "status", resp.StatusCode, "ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("model API error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("model API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", errors.New("model returned an empty completion")
	}
	return chatResp.Choices[0].Message.Content, nil
}
