// Package stt provides speech-to-text backends and the provider routing
// between them. Hosted providers are tried in a fixed order with fallback on
// quota exhaustion, with the local transcriber as the final resort.
package stt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/media"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/observability"
	"github.com/videovoice/videovoice/internal/resilience"
)

// Result is the outcome of one transcription.
type Result struct {
	Text     string
	Segments []models.Segment
}

// Backend transcribes one audio file. withSegments requests timestamped
// segments in addition to the plain transcript.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, audioPath, language string, withSegments bool) (*Result, error)
}

// autoOrder is the fallback sequence when no engine is pinned.
var autoOrder = []string{"gemini", "groq", "openai", "local"}

// Service routes transcription requests to the configured backends.
type Service struct {
	backends map[string]Backend
	logger   *slog.Logger
}

// NewService wires up every backend the configuration provides credentials
// for. Backends with missing credentials are simply absent from the routing
// table.
func NewService(providers config.ProvidersConfig, mediaOps *media.Ops, logger *slog.Logger) *Service {
	s := &Service{
		backends: make(map[string]Backend),
		logger:   observability.WithComponent(logger, "stt"),
	}

	if providers.Gemini.APIKey != "" {
		s.backends["gemini"] = newGeminiBackend(providers.Gemini, mediaOps, s.logger)
	}
	if providers.Groq.APIKey != "" {
		s.backends["groq"] = newGroqBackend(providers.Groq, mediaOps, s.logger)
	}
	if providers.OpenAI.APIKey != "" {
		s.backends["openai"] = newOpenAIBackend(providers.OpenAI, s.logger)
	}
	if providers.Whisper.BinaryPath != "" && providers.Whisper.ModelPath != "" {
		s.backends["local"] = newLocalBackend(providers.Whisper, s.logger)
	}

	return s
}

// Available reports which engines have usable configuration.
func (s *Service) Available() []string {
	out := make([]string, 0, len(s.backends))
	for _, name := range autoOrder {
		if _, ok := s.backends[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Transcribe runs one transcription. With engine "auto" the hosted providers
// are tried in order and quota or credential failures fall through to the
// next; a pinned engine is used directly with no fallback. The name of the
// backend that produced the result is returned alongside it.
func (s *Service) Transcribe(ctx context.Context, audioPath, language, engine string, withSegments bool) (*Result, string, error) {
	if engine != models.EngineAuto {
		backend, ok := s.backends[engine]
		if !ok {
			return nil, "", fmt.Errorf("stt engine %q: %w", engine, resilience.ErrMissingCredential)
		}
		result, err := backend.Transcribe(ctx, audioPath, language, withSegments)
		if err != nil {
			return nil, engine, err
		}
		return result, engine, nil
	}

	var entries []resilience.Entry[Backend]
	for _, name := range autoOrder {
		if backend, ok := s.backends[name]; ok {
			entries = append(entries, resilience.Entry[Backend]{Name: name, Provider: backend})
		}
	}
	if len(entries) == 0 {
		return nil, "", fmt.Errorf("no stt backend configured: %w", resilience.ErrMissingCredential)
	}

	chain := resilience.NewChain(s.logger, nil, entries...)
	result, name, err := resilience.Execute(ctx, chain,
		func(ctx context.Context, b Backend) (*Result, error) {
			return b.Transcribe(ctx, audioPath, language, withSegments)
		})
	if err != nil {
		return nil, name, err
	}
	return result, name, nil
}

// normalizeSegments drops blank entries and trims whitespace. Transcribers
// frequently emit empty or padded spans around silence.
func normalizeSegments(segments []models.Segment) []models.Segment {
	out := make([]models.Segment, 0, len(segments))
	for _, seg := range segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// whisperLanguage maps the request language to a whisper language hint,
// returning "" when detection should be left to the model.
func whisperLanguage(language string) string {
	if language == "" || language == "auto" {
		return ""
	}
	return language
}
