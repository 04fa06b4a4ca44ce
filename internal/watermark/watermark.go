// Package watermark embeds an imperceptible provenance signal in output
// audio. The embedder is a collaborator interface so the signal scheme can
// be swapped without touching the assembly pipeline.
package watermark

import (
	"crypto/sha256"
	"encoding/binary"
)

// Watermarker embeds a provenance signal into samples. The offset is the
// absolute sample position of the slice within the session's waveform, so
// chunked and whole-buffer application produce identical output.
type Watermarker interface {
	Apply(samples []float32, offset int) []float32
}

// amplitude keeps the signal around -60 dBFS, below audibility for speech.
const amplitude = 1.0 / 1024.0

// Keyed produces a deterministic keyed dither: the sample at absolute
// position p is offset by a value derived solely from (key, p).
type Keyed struct {
	seed uint64
}

// NewKeyed derives the signal seed from the key string.
func NewKeyed(key string) *Keyed {
	sum := sha256.Sum256([]byte(key))
	return &Keyed{seed: binary.LittleEndian.Uint64(sum[:8])}
}

// Apply returns a watermarked copy of samples.
func (k *Keyed) Apply(samples []float32, offset int) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s + k.signalAt(offset+i)
	}
	return out
}

// signalAt maps an absolute sample position to [-amplitude, amplitude].
// splitmix64 gives position-addressable randomness, so the signal is
// seekable and independent of chunking.
func (k *Keyed) signalAt(pos int) float32 {
	x := k.seed + uint64(pos)*0x9e3779b97f4a7c15
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31

	unit := float64(x>>11) / float64(1<<53) // [0,1)
	return float32((unit*2 - 1) * amplitude)
}

// None is the pass-through watermarker used when no key is configured.
type None struct{}

func (None) Apply(samples []float32, _ int) []float32 { return samples }
