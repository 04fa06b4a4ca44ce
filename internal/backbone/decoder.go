package backbone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Phase is the decoder lifecycle state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePrefilling
	PhaseDecoding
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePrefilling:
		return "prefilling"
	case PhaseDecoding:
		return "decoding"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason records why generation ended.
type StopReason int

const (
	StopNone StopReason = iota
	StopToken
	StopMaxSteps
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopToken:
		return "stop-token"
	case StopMaxSteps:
		return "max-steps"
	case StopCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// GenerateConfig controls one generation run.
type GenerateConfig struct {
	// StopToken terminates generation when sampled. It is never emitted.
	StopToken int64
	// SpeechOffset maps backbone speech-token ids down to codec-vocabulary
	// ids: emitted = sampled - SpeechOffset.
	SpeechOffset int64
	// SpeechVocab is the codec vocabulary size; sampled ids outside
	// [SpeechOffset, SpeechOffset+SpeechVocab) end generation.
	SpeechVocab int64
	// MaxSteps bounds the number of decoding steps.
	MaxSteps int
}

// GenerateResult summarizes a finished run.
type GenerateResult struct {
	Steps  int
	Reason StopReason
}

// EmitFunc receives one codec token per decoding step. Returning an error
// aborts generation; the error is propagated unchanged.
type EmitFunc func(token int64) error

// Decoder drives Idle → Prefilling → Decoding → Stopped over a Backend.
// A Decoder is single-use: one Generate call per instance, one instance per
// synthesis session.
type Decoder struct {
	backend Backend
	sampler *Sampler
	phase   atomic.Int32
	log     *slog.Logger
}

func NewDecoder(backend Backend, sampler *Sampler, log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.Default()
	}
	return &Decoder{
		backend: backend,
		sampler: sampler,
		log:     log.With(slog.String("component", "backbone-decoder")),
	}
}

// Phase returns the current lifecycle phase.
func (d *Decoder) Phase() Phase {
	return Phase(d.phase.Load())
}

// Generate runs the autoregressive loop: prefill the prompt, then emit one
// codec token per step until the stop token, the step budget, or context
// cancellation. Cancellation is honored at step boundaries only and is not
// an error; tokens already emitted are valid partial output. Backend
// failures wrap ErrBackend and likewise preserve prior output.
func (d *Decoder) Generate(ctx context.Context, prompt []int64, cfg GenerateConfig, emit EmitFunc) (GenerateResult, error) {
	if len(prompt) == 0 {
		return GenerateResult{}, errors.New("generate: empty prompt")
	}
	if !d.phase.CompareAndSwap(int32(PhaseIdle), int32(PhasePrefilling)) {
		return GenerateResult{}, fmt.Errorf("generate: decoder already used (phase %s)", d.Phase())
	}
	defer d.phase.Store(int32(PhaseStopped))

	state, err := d.backend.Prefill(ctx, prompt)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("%w: prefill: %v", ErrBackend, err)
	}
	defer state.Release()

	d.phase.Store(int32(PhaseDecoding))

	last := prompt[len(prompt)-1]
	result := GenerateResult{}

	for step := range cfg.MaxSteps {
		// Cancellation is only observed between steps, never mid-step.
		if ctx.Err() != nil {
			result.Reason = StopCancelled
			d.log.Debug("generation cancelled", slog.Int("step", step))
			return result, nil
		}

		out, err := d.backend.Step(ctx, state, last)
		if err != nil {
			if ctx.Err() != nil {
				result.Reason = StopCancelled
				return result, nil
			}
			return result, fmt.Errorf("%w: step %d: %v", ErrBackend, step, err)
		}

		token := out.Token
		if !out.Sampled {
			token = d.sampler.Sample(out.Logits)
		}

		if token == cfg.StopToken {
			result.Reason = StopToken
			d.log.Debug("stop token emitted", slog.Int("step", step))
			return result, nil
		}

		code := token - cfg.SpeechOffset
		if code < 0 || code >= cfg.SpeechVocab {
			// The model left the speech-token range; treat it as end of
			// speech rather than feeding a malformed id downstream.
			result.Reason = StopToken
			d.log.Debug("non-speech token ended generation",
				slog.Int64("token", token), slog.Int("step", step))
			return result, nil
		}

		if err := emit(code); err != nil {
			if ctx.Err() != nil {
				result.Reason = StopCancelled
				return result, nil
			}
			return result, err
		}

		result.Steps++
		last = token
	}

	result.Reason = StopMaxSteps
	d.log.Debug("generation hit step budget", slog.Int("steps", result.Steps))
	return result, nil
}
