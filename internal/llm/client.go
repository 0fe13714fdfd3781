package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/careai/careai-go/internal/config"
	"github.com/careai/careai-go/internal/logger"
)

// ErrUnavailable is returned when the completion provider is disabled,
// misconfigured, or the provider call itself failed. Callers are expected
// to degrade to a static reply instead of propagating it.
var ErrUnavailable = errors.New("completion provider unavailable")

// SamplingConfig holds the generation parameters for one completion call.
type SamplingConfig struct {
	MaxTokens   int
	Temperature float32
	// TopP is the nucleus sampling cumulative-probability cutoff.
	TopP float32
}

// Completer wraps the OpenAI-compatible chat completion endpoint behind a
// single synchronous call. It performs exactly one attempt per call; retry
// policy belongs to the caller.
type Completer struct {
	client     Client
	deployment string
	enabled    bool
}

// NewCompleter builds a Completer from configuration. A disabled or
// credential-less configuration yields a Completer whose calls all fail
// with ErrUnavailable, so the rest of the service can start and degrade
// gracefully instead of refusing to boot.
func NewCompleter(cfg config.OpenAIConfig) *Completer {
	enabled := cfg.Enabled && cfg.APIKey != ""
	if !enabled {
		logger.L.Warn("completion provider is disabled or not properly configured")
		return &Completer{enabled: false}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Completer{
		client:     openai.NewClientWithConfig(clientCfg),
		deployment: cfg.Deployment(),
		enabled:    true,
	}
}

// NewCompleterWithClient builds a Completer around an existing client.
// Used by tests to substitute a scripted mock.
func NewCompleterWithClient(client Client, deployment string) *Completer {
	return &Completer{client: client, deployment: deployment, enabled: client != nil}
}

// Enabled reports whether the provider is configured and usable.
func (c *Completer) Enabled() bool { return c.enabled }

// Complete sends the ordered message list to the provider and returns the
// single completion string. Any provider failure or empty response surfaces
// as an error wrapping ErrUnavailable.
func (c *Completer) Complete(ctx context.Context, messages []openai.ChatCompletionMessage, sampling SamplingConfig) (string, error) {
	if !c.enabled {
		return "", ErrUnavailable
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.deployment,
		Messages:    messages,
		MaxTokens:   sampling.MaxTokens,
		Temperature: sampling.Temperature,
		TopP:        sampling.TopP,
	})
	if err != nil {
		logger.L.Error("completion call failed", "model", c.deployment, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: provider returned no choices", ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}
