package pipeline

import (
	"fmt"

	"github.com/example/go-air-tts/internal/audio"
	"github.com/example/go-air-tts/internal/watermark"
)

// AudioSegment is the decoded audio for one chunk, still carrying the
// repeated overlap content at its head.
type AudioSegment struct {
	Index   int
	Samples []float32
	Overlap int // overlap frames included at the head
	Final   bool
}

// PCMChunk is finished output audio in session order. Samples of successive
// chunks concatenate into the session waveform; Final marks the last chunk.
type PCMChunk struct {
	Index   int
	Samples []float32
	Final   bool
}

// SinkFunc receives finished audio. Returning an error aborts the session.
type SinkFunc func(PCMChunk) error

// AudioAssembler trims overlap, crossfades chunk seams, applies the
// watermark, and hands ordered PCM to the sink. Segments may arrive out of
// order; delivery is strictly by index. The last crossfade window of each
// chunk is withheld until the next chunk arrives so the seam can be blended.
type AudioAssembler struct {
	spf       int // samples per codec frame
	crossfade int // seam blend length in samples
	mark      watermark.Watermarker
	sink      SinkFunc

	reorder map[int]AudioSegment
	next    int
	carry   []float32
	offset  int // absolute sample position of the next delivered sample
	started bool
	done    bool

	chunks  int
	samples int
}

func NewAssembler(samplesPerFrame, crossfadeSamples int, mark watermark.Watermarker, sink SinkFunc) *AudioAssembler {
	if mark == nil {
		mark = watermark.None{}
	}
	if crossfadeSamples < 0 {
		crossfadeSamples = 0
	}
	return &AudioAssembler{
		spf:       samplesPerFrame,
		crossfade: crossfadeSamples,
		mark:      mark,
		sink:      sink,
		reorder:   make(map[int]AudioSegment),
	}
}

// Add accepts one segment, delivering every segment that is now in order.
func (a *AudioAssembler) Add(seg AudioSegment) error {
	if a.done {
		return fmt.Errorf("assembler: segment %d after final", seg.Index)
	}
	a.reorder[seg.Index] = seg
	for {
		pending, ok := a.reorder[a.next]
		if !ok {
			return nil
		}
		delete(a.reorder, a.next)
		a.next++
		if err := a.process(pending); err != nil {
			return err
		}
	}
}

// Finish flushes the withheld tail when the stream ended without a final
// segment, as happens on cancellation.
func (a *AudioAssembler) Finish() error {
	if a.done || !a.started {
		return nil
	}
	return a.process(AudioSegment{Index: a.next, Final: true})
}

// Chunks reports how many PCM chunks were delivered.
func (a *AudioAssembler) Chunks() int { return a.chunks }

// Samples reports how many samples were delivered.
func (a *AudioAssembler) Samples() int { return a.samples }

func (a *AudioAssembler) process(seg AudioSegment) error {
	var out []float32
	if !a.started {
		a.started = true
		out = append([]float32(nil), seg.Samples...)
	} else {
		// The head of this segment repeats the previous chunk's tail. Drop
		// the part already delivered and blend the rest over the carry.
		trim := seg.Overlap*a.spf - len(a.carry)
		if trim < 0 {
			trim = 0
		}
		if trim > len(seg.Samples) {
			trim = len(seg.Samples)
		}
		out = audio.CrossfadeInto(a.carry, seg.Samples[trim:], len(a.carry))
		a.carry = nil
	}

	if seg.Final {
		a.done = true
		return a.deliver(out, true)
	}

	hold := a.crossfade
	if hold > len(out) {
		hold = len(out)
	}
	a.carry = append([]float32(nil), out[len(out)-hold:]...)
	return a.deliver(out[:len(out)-hold], false)
}

func (a *AudioAssembler) deliver(samples []float32, final bool) error {
	marked := a.mark.Apply(samples, a.offset)
	a.offset += len(marked)

	chunk := PCMChunk{Index: a.chunks, Samples: marked, Final: final}
	a.chunks++
	a.samples += len(marked)
	return a.sink(chunk)
}
