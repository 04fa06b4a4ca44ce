// Package backbone runs the autoregressive speech-token generator. The
// model itself is an oracle behind the Backend interface; this package owns
// the prefill/decode state machine, sampling, and stop handling.
package backbone

import (
	"context"
	"errors"
)

// ErrBackend wraps inference runtime failures (crash, resource exhaustion).
// Tokens emitted before the failure remain valid partial output.
var ErrBackend = errors.New("backbone backend failure")

// State is the opaque per-session generation state held by a backend
// between steps (a KV cache, or a runner process). It is owned by exactly
// one Decoder run and must be released when generation stops.
type State interface {
	Release()
}

// StepResult carries one decoding step's output. Backends either expose the
// next-token distribution (Logits) for the decoder to sample from, or return
// an already-sampled Token with Sampled set.
type StepResult struct {
	Logits  []float32
	Token   int64
	Sampled bool
}

// Backend is the inference oracle contract shared by the full-precision and
// quantized implementations.
type Backend interface {
	// Prefill consumes the whole prompt in one pass and returns the
	// initialized generation state. No tokens are produced.
	Prefill(ctx context.Context, prompt []int64) (State, error)

	// Step produces the distribution (or sampled token) for the position
	// following last, advancing the state.
	Step(ctx context.Context, state State, last int64) (StepResult, error)

	Close()
}
