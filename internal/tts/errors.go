package tts

import (
	"errors"

	"github.com/example/go-air-tts/internal/backbone"
	"github.com/example/go-air-tts/internal/codec"
	"github.com/example/go-air-tts/internal/phoneme"
	"github.com/example/go-air-tts/internal/prompt"
	"github.com/example/go-air-tts/internal/refenc"
)

// Stable sentinels callers can match with errors.Is, re-exported from the
// packages that raise them so the HTTP layer and the CLI depend only on tts.
var (
	ErrInvalidReferenceAudio = refenc.ErrInvalidReferenceAudio
	ErrContextOverflow       = prompt.ErrContextOverflow
	ErrUnsupportedLanguage   = phoneme.ErrUnsupportedLanguage
	ErrPhonemization         = phoneme.ErrPhonemization
	ErrBackend               = backbone.ErrBackend
	ErrDecode                = codec.ErrDecode
)

// ErrEmptyText is returned when a request carries no target text.
var ErrEmptyText = errors.New("target text is empty")

// ErrMissingReference is returned when a request names no reference source.
var ErrMissingReference = errors.New("reference codes, audio, or id required")
