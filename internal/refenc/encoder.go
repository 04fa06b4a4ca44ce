// Package refenc turns reference recordings into reusable speaker-identity
// codec tokens. Encoding is pure, so results are cached keyed on the audio
// content digest and shared across synthesis requests.
package refenc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/example/go-air-tts/internal/audio"
	"github.com/example/go-air-tts/internal/codec"
)

// ErrInvalidReferenceAudio covers all reference validation failures:
// non-mono input, or a duration outside the supported range.
var ErrInvalidReferenceAudio = errors.New("invalid reference audio")

// Encoder validates and encodes reference clips through the codec backend.
// Safe for concurrent use; the cache is shared across sessions.
type Encoder struct {
	codec      codec.Backend
	minSeconds float64
	maxSeconds float64
	cache      *lru.Cache[string, []int64]
}

// New builds an encoder with the supported duration window and an LRU cache
// of cacheSize entries (0 disables caching).
func New(backend codec.Backend, minSeconds, maxSeconds float64, cacheSize int) (*Encoder, error) {
	if minSeconds <= 0 || maxSeconds <= minSeconds {
		return nil, fmt.Errorf("invalid duration window [%v,%v]", minSeconds, maxSeconds)
	}

	e := &Encoder{
		codec:      backend,
		minSeconds: minSeconds,
		maxSeconds: maxSeconds,
	}

	if cacheSize > 0 {
		cache, err := lru.New[string, []int64](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("reference cache: %w", err)
		}
		e.cache = cache
	}

	return e, nil
}

// Encode validates the clip, resamples it to the codec rate, and returns
// its codec tokens. Identical audio content hits the cache.
func (e *Encoder) Encode(ctx context.Context, clip audio.Clip) ([]int64, error) {
	if err := e.validate(clip); err != nil {
		return nil, err
	}

	key := digest(clip)
	if e.cache != nil {
		if codes, ok := e.cache.Get(key); ok {
			return append([]int64(nil), codes...), nil
		}
	}

	samples := audio.Resample(clip.Samples, clip.SampleRate, e.codec.SampleRate())

	codes, err := e.codec.Encode(ctx, samples)
	if err != nil {
		return nil, fmt.Errorf("encode reference: %w", err)
	}

	if e.cache != nil {
		e.cache.Add(key, append([]int64(nil), codes...))
	}

	return codes, nil
}

func (e *Encoder) validate(clip audio.Clip) error {
	if len(clip.Samples) == 0 {
		return fmt.Errorf("%w: empty clip", ErrInvalidReferenceAudio)
	}
	if clip.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidReferenceAudio, clip.SampleRate)
	}

	secs := clip.Seconds()
	if secs < e.minSeconds {
		return fmt.Errorf("%w: %.2fs is shorter than the %.2fs minimum", ErrInvalidReferenceAudio, secs, e.minSeconds)
	}
	if secs > e.maxSeconds {
		return fmt.Errorf("%w: %.2fs is longer than the %.2fs maximum", ErrInvalidReferenceAudio, secs, e.maxSeconds)
	}
	return nil
}

func digest(clip audio.Clip) string {
	h := sha256.New()
	var b [4]byte
	b[0] = byte(clip.SampleRate)
	b[1] = byte(clip.SampleRate >> 8)
	b[2] = byte(clip.SampleRate >> 16)
	b[3] = byte(clip.SampleRate >> 24)
	h.Write(b[:])
	for _, s := range clip.Samples {
		bits := math.Float32bits(s)
		b[0] = byte(bits)
		b[1] = byte(bits >> 8)
		b[2] = byte(bits >> 16)
		b[3] = byte(bits >> 24)
		h.Write(b[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
