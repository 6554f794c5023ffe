// Package llm provides the shared chat-completion client used by the
// translation, quality and transcription backends.
package llm

import (
	"context"
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/resilience"
)

// Client wraps one chat-completion backend with a fixed model.
type Client struct {
	backend anyllmlib.Provider
	model   string
	name    string
}

// NewGemini creates a Gemini chat client.
func NewGemini(cfg config.GeminiConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", resilience.ErrMissingCredential)
	}
	backend, err := gemini.New(anyllmlib.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Client{backend: backend, model: cfg.Model, name: "gemini"}, nil
}

// NewGroq creates a Groq chat client.
func NewGroq(cfg config.GroqConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq: %w", resilience.ErrMissingCredential)
	}
	backend, err := groq.New(anyllmlib.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("groq: %w", err)
	}
	return &Client{backend: backend, model: cfg.Model, name: "groq"}, nil
}

// NewOllama creates a client for the local model server. No credential is
// required; the server is assumed reachable at the configured base URL.
func NewOllama(cfg config.OllamaConfig) (*Client, error) {
	backend, err := ollama.New(anyllmlib.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return &Client{backend: backend, model: cfg.Model, name: "ollama"}, nil
}

// Name returns the provider name for logging and fallback reporting.
func (c *Client) Name() string {
	return c.name
}

// Complete sends one system+user exchange and returns the reply text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	var messages []anyllmlib.Message
	if systemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: userPrompt,
	})

	params := anyllmlib.CompletionParams{
		Model:    c.model,
		Messages: messages,
	}
	if temperature > 0 {
		t := temperature
		params.Temperature = &t
	}
	if maxTokens > 0 {
		mt := maxTokens
		params.MaxTokens = &mt
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s: completion: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices in response", c.name)
	}
	return resp.Choices[0].Message.ContentString(), nil
}
