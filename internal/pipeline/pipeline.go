package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-air-tts/internal/backbone"
	"github.com/example/go-air-tts/internal/codec"
	"github.com/example/go-air-tts/internal/watermark"
)

// Config controls chunking, seam blending, and queue sizing for one session.
type Config struct {
	// ChunkFrames cuts a chunk every N fresh tokens; <= 0 means a single
	// chunk holding the whole stream.
	ChunkFrames int
	// OverlapFrames is how many trailing tokens each chunk repeats at the
	// head of the next one.
	OverlapFrames int
	// CrossfadeMS is the seam blend window in milliseconds. It is clamped
	// to the overlap window; without overlap there is no seam to blend.
	CrossfadeMS float64
	// QueueDepth bounds the stage channels; a slow consumer backpressures
	// generation instead of buffering unbounded audio.
	QueueDepth int

	Watermark watermark.Watermarker
}

// Result summarizes a finished session. Reason StopCancelled means the
// session was interrupted; everything the sink received is valid output.
type Result struct {
	Steps   int
	Chunks  int
	Samples int
	Reason  backbone.StopReason
}

func (r Result) Cancelled() bool { return r.Reason == backbone.StopCancelled }

// Session runs one synthesis: decoder tokens are chunked, decoded through
// the codec, assembled, and delivered to the sink. A Session is single-use,
// like the decoder it drives.
type Session struct {
	Decoder *backbone.Decoder
	Codec   codec.Backend
	Config  Config
	Log     *slog.Logger
}

// Run executes the three pipeline stages. Stage channels are bounded by
// QueueDepth. Cancellation stops generation at a step boundary, lets the
// already produced chunks drain through to the sink, and returns a nil
// error with Reason StopCancelled. Backend and decode failures also keep
// everything delivered so far.
func (s *Session) Run(ctx context.Context, prompt []int64, gen backbone.GenerateConfig, sink SinkFunc) (Result, error) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	spf := codec.SamplesPerFrame(s.Codec.SampleRate(), s.Codec.FrameRate())
	crossfade := int(s.Config.CrossfadeMS * float64(s.Codec.SampleRate()) / 1000.0)
	maxSeam := s.Config.OverlapFrames * spf
	if s.Config.ChunkFrames <= 0 {
		crossfade = 0
	} else if crossfade > maxSeam {
		crossfade = maxSeam
	}
	depth := s.Config.QueueDepth
	if depth < 1 {
		depth = 1
	}

	sched := NewScheduler(s.Config.ChunkFrames, s.Config.OverlapFrames)
	asm := NewAssembler(spf, crossfade, s.Config.Watermark, sink)

	// Internal cancellation stops the decoder when a downstream stage
	// fails; the stages themselves always drain so sends never deadlock.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan Chunk, depth)
	segments := make(chan AudioSegment, depth)

	var (
		g         errgroup.Group
		genResult backbone.GenerateResult
	)

	g.Go(func() error {
		defer close(chunks)

		emit := func(code int64) error {
			if ch, ok := sched.Push(code); ok {
				chunks <- ch
			}
			return nil
		}

		res, err := s.Decoder.Generate(ctx, prompt, gen, emit)
		genResult = res
		if res.Reason == backbone.StopCancelled {
			// Tokens still buffered in the scheduler never formed a
			// complete chunk; drop them.
			return nil
		}
		chunks <- sched.Flush()
		return err
	})

	g.Go(func() error {
		defer close(segments)

		var failed error
		for ch := range chunks {
			if failed != nil {
				continue
			}

			var samples []float32
			if len(ch.Tokens) > 0 {
				// Decode survives session cancellation so queued chunks
				// still turn into partial output.
				out, err := s.Codec.Decode(context.WithoutCancel(ctx), ch.Tokens)
				if err != nil {
					failed = fmt.Errorf("chunk %d: %w", ch.Index, err)
					cancel()
					continue
				}
				samples = out
			}

			segments <- AudioSegment{
				Index:   ch.Index,
				Samples: samples,
				Overlap: ch.Overlap,
				Final:   ch.Final,
			}
		}
		return failed
	})

	g.Go(func() error {
		var failed error
		for seg := range segments {
			if failed != nil {
				continue
			}
			if err := asm.Add(seg); err != nil {
				failed = err
				cancel()
			}
		}
		if failed != nil {
			return failed
		}
		return asm.Finish()
	})

	err := g.Wait()

	result := Result{
		Steps:   genResult.Steps,
		Chunks:  asm.Chunks(),
		Samples: asm.Samples(),
		Reason:  genResult.Reason,
	}

	log.Debug("session finished",
		slog.Int("steps", result.Steps),
		slog.Int("chunks", result.Chunks),
		slog.Int("samples", result.Samples),
		slog.String("reason", result.Reason.String()),
		slog.Bool("failed", err != nil))

	return result, err
}
