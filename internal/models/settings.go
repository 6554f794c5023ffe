package models

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Mode selects the output kind of a job.
type Mode string

const (
	// ModeDubbing produces a media file with a translated voice track.
	ModeDubbing Mode = "dubbing"
	// ModeSubtitle produces a video with translated captions.
	ModeSubtitle Mode = "subtitle"
)

// SyncMode selects the strategy for reconciling translated audio length
// against the original video length.
type SyncMode string

const (
	// SyncOptimize copies the video stream and pads or trims the audio.
	SyncOptimize SyncMode = "optimize"
	// SyncSpeedAudio tempo-adjusts the audio to match the video duration.
	SyncSpeedAudio SyncMode = "speed_audio"
	// SyncStretch slows the video down when the audio runs longer.
	SyncStretch SyncMode = "stretch"
)

// InputType classifies the uploaded media.
type InputType string

const (
	InputTypeAudio InputType = "audio"
	InputTypeVideo InputType = "video"
)

// EngineAuto resolves to a concrete engine at run time.
const EngineAuto = "auto"

// Supported languages. Source additionally accepts "auto" for detection.
var SupportedLanguages = []string{
	"en", "ko", "ja", "zh", "ru", "es", "fr", "de", "it",
	"pt", "nl", "pl", "tr", "vi", "th", "ar", "hi",
}

// Engine allow-lists per backend.
var (
	TranslationEngines = []string{EngineAuto, "gemini", "groq", "ollama"}
	STTEngines         = []string{EngineAuto, "local", "gemini", "groq", "openai"}
	TTSEngines         = []string{EngineAuto, "xtts", "edge", "silero", "elevenlabs", "openai"}
)

// Accepted upload extensions.
var (
	VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}
	AudioExtensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg"}
)

// Settings is the immutable per-job configuration bundle. It is validated on
// admission and never mutated afterwards.
type Settings struct {
	SourceLang        string   `json:"source_lang"`
	TargetLang        string   `json:"target_lang"`
	CloneVoice        bool     `json:"clone_voice"`
	VerifyTranslation bool     `json:"verify_translation"`
	SyncMode          SyncMode `json:"sync_mode"`
	TranslationEngine string   `json:"translation_engine"`
	STTEngine         string   `json:"stt_engine"`
	TTSEngine         string   `json:"tts_engine"`
	Mode              Mode     `json:"mode"`
}

// DefaultSettings returns settings with every knob at its default.
func DefaultSettings() Settings {
	return Settings{
		SourceLang:        "auto",
		TargetLang:        "ko",
		SyncMode:          SyncOptimize,
		TranslationEngine: EngineAuto,
		STTEngine:         EngineAuto,
		TTSEngine:         EngineAuto,
		Mode:              ModeDubbing,
	}
}

// Validate checks every field against its allow-list.
func (s Settings) Validate() error {
	if s.SourceLang != "auto" && !slices.Contains(SupportedLanguages, s.SourceLang) {
		return fmt.Errorf("%w: source_lang %q", ErrUnsupportedLanguage, s.SourceLang)
	}
	if !slices.Contains(SupportedLanguages, s.TargetLang) {
		return fmt.Errorf("%w: target_lang %q", ErrUnsupportedLanguage, s.TargetLang)
	}
	switch s.SyncMode {
	case SyncOptimize, SyncSpeedAudio, SyncStretch:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSyncMode, s.SyncMode)
	}
	switch s.Mode {
	case ModeDubbing, ModeSubtitle:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, s.Mode)
	}
	if !slices.Contains(TranslationEngines, s.TranslationEngine) {
		return fmt.Errorf("%w: translation_engine %q", ErrInvalidEngine, s.TranslationEngine)
	}
	if !slices.Contains(STTEngines, s.STTEngine) {
		return fmt.Errorf("%w: stt_engine %q", ErrInvalidEngine, s.STTEngine)
	}
	if !slices.Contains(TTSEngines, s.TTSEngine) {
		return fmt.Errorf("%w: tts_engine %q", ErrInvalidEngine, s.TTSEngine)
	}
	return nil
}

// InputTypeForFilename classifies an upload by extension. The second return
// is false when the extension is not in either allow-list.
func InputTypeForFilename(name string) (InputType, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if slices.Contains(VideoExtensions, ext) {
		return InputTypeVideo, true
	}
	if slices.Contains(AudioExtensions, ext) {
		return InputTypeAudio, true
	}
	return "", false
}
