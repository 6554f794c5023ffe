// Package tts synthesizes translated text to speech. Long texts are split on
// sentence boundaries, synthesized chunk by chunk and concatenated, since
// every backend degrades or rejects past a certain input size.
package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/media"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/observability"
	"github.com/videovoice/videovoice/internal/resilience"
)

// synthesisChunkLimit is the maximum text length sent to a backend in one
// request.
const synthesisChunkLimit = 10000

// speaker reference bounds; anything outside is either silence or not a
// voice sample.
const (
	speakerRefMinBytes = 10 * 1024
	speakerRefMaxBytes = 50 * 1024 * 1024
)

// Engine synthesizes one text chunk into a WAV file. speakerRef optionally
// points at a voice sample for engines that support cloning; engines without
// cloning ignore it.
type Engine interface {
	Name() string
	Generate(ctx context.Context, text, speakerRef, outWav, language string) error
}

// Service picks an engine and drives chunked synthesis.
type Service struct {
	engines map[string]Engine
	media   *media.Ops
	logger  *slog.Logger
}

// NewService wires up every engine the configuration supports.
func NewService(providers config.ProvidersConfig, mediaOps *media.Ops, logger *slog.Logger) *Service {
	s := &Service{
		engines: make(map[string]Engine),
		media:   mediaOps,
		logger:  observability.WithComponent(logger, "tts"),
	}

	edge := newEdgeEngine(providers.Edge, mediaOps, s.logger)
	s.engines["edge"] = edge
	s.engines["silero"] = newSileroEngine(providers.Silero, edge, mediaOps, s.logger)

	if providers.XTTS.BaseURL != "" {
		s.engines["xtts"] = newXTTSEngine(providers.XTTS, s.logger)
	}
	if providers.ElevenLabs.APIKey != "" {
		s.engines["elevenlabs"] = newElevenLabsEngine(providers.ElevenLabs, mediaOps, s.logger)
	}
	if providers.OpenAI.APIKey != "" {
		s.engines["openai"] = newOpenAISpeechEngine(providers.OpenAI, mediaOps, s.logger)
	}

	return s
}

// Available reports the configured engine names.
func (s *Service) Available() []string {
	out := make([]string, 0, len(s.engines))
	for _, name := range []string{"xtts", "edge", "silero", "elevenlabs", "openai"} {
		if _, ok := s.engines[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// resolveEngine maps the requested engine to a concrete backend. Auto picks
// ElevenLabs when a key is configured, the clone-capable local server when a
// speaker sample is supplied, Silero for Russian, and Edge otherwise.
func (s *Service) resolveEngine(engine, speakerRef, language string) (Engine, error) {
	if engine != models.EngineAuto {
		e, ok := s.engines[engine]
		if !ok {
			return nil, fmt.Errorf("tts engine %q: %w", engine, resilience.ErrMissingCredential)
		}
		return e, nil
	}

	if e, ok := s.engines["elevenlabs"]; ok {
		return e, nil
	}
	if speakerRef != "" {
		if e, ok := s.engines["xtts"]; ok {
			return e, nil
		}
	}
	if language == "ru" {
		if e, ok := s.engines["silero"]; ok {
			return e, nil
		}
	}
	return s.engines["edge"], nil
}

// Synthesize renders text to outWav with the selected engine, returning the
// engine name actually used.
func (s *Service) Synthesize(ctx context.Context, text, language, engine, speakerRef, outWav string) (string, error) {
	e, err := s.resolveEngine(engine, speakerRef, language)
	if err != nil {
		return "", err
	}

	if speakerRef != "" {
		if err := validateSpeakerRef(speakerRef); err != nil {
			return e.Name(), err
		}
	}

	chunks := splitForSynthesis(text, synthesisChunkLimit)
	if len(chunks) == 1 {
		return e.Name(), e.Generate(ctx, chunks[0], speakerRef, outWav, language)
	}

	s.logger.Info("synthesizing in chunks",
		slog.String("engine", e.Name()),
		slog.Int("chunks", len(chunks)))

	tmpDir, err := os.MkdirTemp("", "tts-chunks-*")
	if err != nil {
		return e.Name(), fmt.Errorf("creating chunk dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		part := filepath.Join(tmpDir, fmt.Sprintf("part_%03d.wav", i))
		if err := e.Generate(ctx, chunk, speakerRef, part, language); err != nil {
			return e.Name(), fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		parts = append(parts, part)
	}

	// A concat failure here is fatal: a partial voice track is worse than
	// no track.
	if err := s.media.ConcatWavs(ctx, parts, outWav); err != nil {
		return e.Name(), fmt.Errorf("joining synthesized chunks: %w", err)
	}
	return e.Name(), nil
}

// validateSpeakerRef checks the voice sample exists and has a plausible size.
func validateSpeakerRef(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("speaker reference: %w", err)
	}
	if info.Size() < speakerRefMinBytes {
		return fmt.Errorf("speaker reference too small: %d bytes", info.Size())
	}
	if info.Size() > speakerRefMaxBytes {
		return fmt.Errorf("speaker reference too large: %d bytes", info.Size())
	}
	return nil
}

// splitForSynthesis breaks text into chunks of at most limit bytes on
// sentence boundaries, falling back to a hard split for pathological
// sentences.
func splitForSynthesis(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range splitSentences(text) {
		for len(sentence) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8.RuneStart(sentence[cut]) {
				cut--
			}
			chunks = append(chunks, sentence[:cut])
			sentence = sentence[cut:]
		}
		if current.Len()+len(sentence)+1 > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
	'…': true,
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if sentenceEnders[r] {
			flush()
		}
	}
	flush()
	return sentences
}
