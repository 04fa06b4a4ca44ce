// Package codec bridges discrete speech tokens and waveform samples through
// a pluggable neural audio codec backend.
package codec

import (
	"context"
	"errors"
	"fmt"
)

// ErrDecode marks malformed tokens reaching the codec. Token streams are
// produced and chunked upstream, so an out-of-vocabulary id is a programming
// invariant violation rather than a recoverable user error.
var ErrDecode = errors.New("codec decode invariant violation")

// Backend is the codec oracle: encode turns audio into tokens, decode turns
// tokens back into audio. Decoding one chunk shares no state with other
// chunks; overlap tokens are passed purely to stabilize the decoder's own
// receptive field.
type Backend interface {
	Encode(ctx context.Context, samples []float32) ([]int64, error)
	Decode(ctx context.Context, tokens []int64) ([]float32, error)

	// SampleRate is the waveform rate in Hz the codec consumes and emits.
	SampleRate() int
	// FrameRate is the number of tokens per second of audio.
	FrameRate() int
	// VocabSize is the size of the token vocabulary.
	VocabSize() int

	Close()
}

// ValidateTokens checks every token against the vocabulary bound.
func ValidateTokens(tokens []int64, vocabSize int) error {
	for i, tok := range tokens {
		if tok < 0 || tok >= int64(vocabSize) {
			return fmt.Errorf("%w: token %d at position %d outside vocabulary [0,%d)",
				ErrDecode, tok, i, vocabSize)
		}
	}
	return nil
}

// SamplesPerFrame returns how many output samples one token covers.
func SamplesPerFrame(sampleRate, frameRate int) int {
	if frameRate <= 0 {
		return 0
	}
	return sampleRate / frameRate
}
