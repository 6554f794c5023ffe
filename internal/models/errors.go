package models

import "errors"

// Validation errors surfaced as 400s by the control plane.
var (
	// ErrUnsupportedLanguage indicates a language outside the allow-list.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrInvalidSyncMode indicates an unknown sync mode.
	ErrInvalidSyncMode = errors.New("invalid sync mode")

	// ErrInvalidMode indicates an unknown job mode.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrInvalidEngine indicates an engine outside its allow-list.
	ErrInvalidEngine = errors.New("invalid engine")

	// ErrUnsupportedExtension indicates a file extension outside the allow-lists.
	ErrUnsupportedExtension = errors.New("unsupported file extension")

	// ErrAudioInputForSubtitle indicates an audio upload for subtitle mode.
	ErrAudioInputForSubtitle = errors.New("subtitle mode requires a video input")
)

// Job state errors.
var (
	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal indicates an operation on a finished job.
	ErrJobTerminal = errors.New("job already in terminal state")

	// ErrJobCancelled signals cooperative cancellation inside a pipeline run.
	ErrJobCancelled = errors.New("cancelled by user")
)
