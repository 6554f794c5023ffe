// Package translate turns transcripts into the target language through the
// configured chat providers, with chunking for long texts and quota fallback
// between providers.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/llm"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/observability"
	"github.com/videovoice/videovoice/internal/resilience"
)

const (
	// translateAttempts bounds retries per chunk, with exponential backoff.
	translateAttempts = 3
	// refineAttempts bounds retries per refinement request.
	refineAttempts = 2
	// minChunkRatio rejects a chunk translation shorter than this fraction
	// of its source, which almost always means the model stopped early.
	minChunkRatio = 0.40

	completionTemperature = 0.3
	completionMaxTokens   = 8192
)

// Translator routes translation requests to the configured chat providers.
type Translator struct {
	gemini *llm.Client
	groq   *llm.Client
	ollama *llm.Client

	minBatchSuccess int
	logger          *slog.Logger
}

// New builds a Translator from the provider credentials. Providers with
// missing credentials are left out of the routing table; Ollama needs no
// credential and is always present.
func New(providers config.ProvidersConfig, tcfg config.TranslationConfig, logger *slog.Logger) *Translator {
	t := &Translator{
		minBatchSuccess: tcfg.MinBatchSuccess,
		logger:          observability.WithComponent(logger, "translate"),
	}

	if client, err := llm.NewGemini(providers.Gemini); err == nil {
		t.gemini = client
	}
	if client, err := llm.NewGroq(providers.Groq); err == nil {
		t.groq = client
	}
	if client, err := llm.NewOllama(providers.Ollama); err == nil {
		t.ollama = client
	} else {
		t.logger.Warn("ollama client unavailable", slog.String("error", err.Error()))
	}

	return t
}

// Available returns the configured provider names in fallback order.
func (t *Translator) Available() []string {
	var out []string
	if t.gemini != nil {
		out = append(out, "gemini")
	}
	if t.groq != nil {
		out = append(out, "groq")
	}
	if t.ollama != nil {
		out = append(out, "ollama")
	}
	return out
}

// chainFor resolves the engine selection into a provider chain. Auto tries
// gemini, groq, then ollama; a pinned gemini still falls back to groq on
// quota exhaustion; other pinned engines get no fallback.
func (t *Translator) chainFor(engine string) ([]resilience.Entry[*llm.Client], error) {
	add := func(entries []resilience.Entry[*llm.Client], c *llm.Client) []resilience.Entry[*llm.Client] {
		if c == nil {
			return entries
		}
		return append(entries, resilience.Entry[*llm.Client]{Name: c.Name(), Provider: c})
	}

	var entries []resilience.Entry[*llm.Client]
	switch engine {
	case models.EngineAuto:
		entries = add(entries, t.gemini)
		entries = add(entries, t.groq)
		entries = add(entries, t.ollama)
	case "gemini":
		entries = add(entries, t.gemini)
		entries = add(entries, t.groq)
	case "groq":
		entries = add(entries, t.groq)
	case "ollama":
		entries = add(entries, t.ollama)
	default:
		return nil, fmt.Errorf("%w: translation engine %q", models.ErrInvalidEngine, engine)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("translation engine %q: %w", engine, resilience.ErrMissingCredential)
	}
	return entries, nil
}

// complete runs one system+user exchange through the chain.
func (t *Translator) complete(ctx context.Context, entries []resilience.Entry[*llm.Client], system, user string) (string, string, error) {
	chain := resilience.NewChain(t.logger, nil, entries...)
	reply, name, err := resilience.Execute(ctx, chain,
		func(ctx context.Context, c *llm.Client) (string, error) {
			return c.Complete(ctx, system, user, completionTemperature, completionMaxTokens)
		})
	if err != nil {
		return "", name, err
	}
	return strings.TrimSpace(llm.StripReasoning(reply)), name, nil
}

// Translate renders text into the target language. Long texts are split on
// sentence boundaries and translated chunk by chunk; the provider that
// produced the result is returned alongside it.
func (t *Translator) Translate(ctx context.Context, text, sourceLang, targetLang string, syncMode models.SyncMode, engine string) (string, string, error) {
	entries, err := t.chainFor(engine)
	if err != nil {
		return "", "", err
	}

	chunks := chunkText(text)
	system := systemPrompt(targetLang, syncMode)

	if len(chunks) == 1 {
		return t.translateChunk(ctx, entries, system, chunks[0], sourceLang, targetLang)
	}

	t.logger.Info("translating in chunks",
		slog.Int("chunks", len(chunks)),
		slog.Int("total_len", len(text)))

	parts := make([]string, 0, len(chunks))
	var provider string
	for i, chunk := range chunks {
		translated, name, err := t.translateChunk(ctx, entries, system, chunk, sourceLang, targetLang)
		if err != nil {
			return "", name, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		parts = append(parts, translated)
		provider = name
	}
	return strings.Join(parts, "\n"), provider, nil
}

// translateChunk translates one chunk with retries. A result much shorter
// than its source is treated as a truncated reply and retried; the longest
// such reply is kept as a last resort if every attempt comes up short.
func (t *Translator) translateChunk(ctx context.Context, entries []resilience.Entry[*llm.Client], system, chunk, sourceLang, targetLang string) (string, string, error) {
	user := translatePrompt(llm.SanitizeInput(chunk), sourceLang, targetLang)

	var best, bestProvider string
	var lastErr error
	for attempt := 1; attempt <= translateAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, resilience.Backoff(attempt-1)); err != nil {
				return "", "", err
			}
		}

		translated, name, err := t.complete(ctx, entries, system, user)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", name, err
			}
			lastErr = err
			t.logger.Warn("translation attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		}

		if float64(len(translated)) < minChunkRatio*float64(len(chunk)) {
			t.logger.Warn("translation suspiciously short, retrying",
				slog.Int("attempt", attempt),
				slog.Int("source_len", len(chunk)),
				slog.Int("result_len", len(translated)))
			if len(translated) > len(best) {
				best, bestProvider = translated, name
			}
			lastErr = fmt.Errorf("translation too short: %d of %d chars", len(translated), len(chunk))
			continue
		}
		return translated, name, nil
	}

	if best != "" {
		t.logger.Warn("keeping longest short translation after retries",
			slog.Int("result_len", len(best)))
		return best, bestProvider, nil
	}
	return "", "", fmt.Errorf("translating chunk after %d attempts: %w", translateAttempts, lastErr)
}

// Refine revises a translation against reviewer issues. Oversized pairs are
// split into matching pieces so each request stays inside the prompt budget.
func (t *Translator) Refine(ctx context.Context, source, translation string, issues []string, sourceLang, targetLang string, syncMode models.SyncMode, engine string) (string, error) {
	entries, err := t.chainFor(engine)
	if err != nil {
		return "", err
	}
	system := systemPrompt(targetLang, syncMode)

	if len(source)+len(translation) <= 2*chunkThreshold {
		return t.refineOnce(ctx, entries, system, source, translation, issues, sourceLang, targetLang)
	}

	pieces := (len(source) + len(translation)) / (2 * chunkTarget)
	if pieces < 2 {
		pieces = 2
	}
	sourceParts := splitProportionally(source, pieces)
	translationParts := splitProportionally(translation, len(sourceParts))

	refined := make([]string, 0, len(sourceParts))
	for i, srcPart := range sourceParts {
		trPart := ""
		if i < len(translationParts) {
			trPart = translationParts[i]
		}
		out, err := t.refineOnce(ctx, entries, system, srcPart, trPart, issues, sourceLang, targetLang)
		if err != nil {
			return "", fmt.Errorf("refining part %d/%d: %w", i+1, len(sourceParts), err)
		}
		refined = append(refined, out)
	}
	return strings.Join(refined, "\n"), nil
}

func (t *Translator) refineOnce(ctx context.Context, entries []resilience.Entry[*llm.Client], system, source, translation string, issues []string, sourceLang, targetLang string) (string, error) {
	user := refinePrompt(llm.SanitizeInput(source), llm.SanitizeInput(translation), issues, sourceLang, targetLang)

	var lastErr error
	for attempt := 1; attempt <= refineAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, resilience.Backoff(attempt-1)); err != nil {
				return "", err
			}
		}
		refined, _, err := t.complete(ctx, entries, system, user)
		if err == nil && refined != "" {
			return refined, nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			lastErr = err
		} else {
			lastErr = fmt.Errorf("empty refinement reply")
		}
	}
	return "", fmt.Errorf("refining after %d attempts: %w", refineAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
