package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{"defaults are valid", func(s *Settings) {}, nil},
		{"auto source", func(s *Settings) { s.SourceLang = "auto" }, nil},
		{"explicit engines", func(s *Settings) {
			s.TranslationEngine = "gemini"
			s.STTEngine = "groq"
			s.TTSEngine = "edge"
		}, nil},
		{"unknown source language", func(s *Settings) { s.SourceLang = "xx" }, ErrUnsupportedLanguage},
		{"auto target rejected", func(s *Settings) { s.TargetLang = "auto" }, ErrUnsupportedLanguage},
		{"unknown sync mode", func(s *Settings) { s.SyncMode = "fit" }, ErrInvalidSyncMode},
		{"unknown mode", func(s *Settings) { s.Mode = "karaoke" }, ErrInvalidMode},
		{"unknown translation engine", func(s *Settings) { s.TranslationEngine = "deepl" }, ErrInvalidEngine},
		{"unknown stt engine", func(s *Settings) { s.STTEngine = "azure" }, ErrInvalidEngine},
		{"unknown tts engine", func(s *Settings) { s.TTSEngine = "polly" }, ErrInvalidEngine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestInputTypeForFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     InputType
		ok       bool
	}{
		{"mp4", "movie.mp4", InputTypeVideo, true},
		{"uppercase extension", "MOVIE.MKV", InputTypeVideo, true},
		{"wav", "speech.wav", InputTypeAudio, true},
		{"m4a", "voice.m4a", InputTypeAudio, true},
		{"unknown", "report.pdf", "", false},
		{"no extension", "README", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := InputTypeForFilename(tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
