package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
)

// Output WAV format for synthesized audio.
const (
	OutputSampleRate = 24000
	OutputChannels   = 1
	OutputBitDepth   = 16
)

// ErrNotMono is returned when reference audio has more than one channel.
var ErrNotMono = errors.New("audio is not mono")

// Clip holds decoded PCM samples with their source rate.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Seconds returns the clip duration.
func (c Clip) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// DecodeWAV decodes WAV bytes into float32 PCM. The source may use any
// sample rate or bit depth the decoder supports, but must be mono; callers
// resample to the codec rate as needed.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("empty WAV input")
	}

	r := bytes.NewReader(data)
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, errors.New("invalid WAV file")
	}

	if dec.NumChans != OutputChannels {
		return Clip{}, fmt.Errorf("%w: %d channels", ErrNotMono, dec.NumChans)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("reading PCM data: %w", err)
	}

	return Clip{Samples: buf.Data, SampleRate: int(dec.SampleRate)}, nil
}
