package backbone

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/example/go-air-tts/internal/config"
	"github.com/example/go-air-tts/internal/ort"
)

// Graph file names inside the backbone model bundle directory. The prefill
// graph consumes the whole prompt and emits the initial KV cache; the step
// graph advances it one token at a time.
const (
	prefillGraphFile = "prefill.onnx"
	stepGraphFile    = "step.onnx"

	kvOutputPrefix = "present."
	kvInputPrefix  = "past."
)

// ONNXBackend is the full-precision backbone running through ONNX Runtime.
// It is safe for concurrent sessions: each Prefill returns an independent
// state, and the underlying sessions are stateless between Run calls.
type ONNXBackend struct {
	prefill *ort.Runner
	step    *ort.Runner
}

// onnxState carries the KV-cache tensors between steps.
type onnxState struct {
	kv map[string]*ort.Tensor
}

// Release drops the cache tensors. ORT values are copied out after each
// Run, so there is no native memory to free beyond letting the GC reclaim
// the slices.
func (s *onnxState) Release() {
	s.kv = nil
}

// NewONNXBackend loads the prefill and step graphs from the bundle directory.
func NewONNXBackend(cfg config.BackboneConfig) (*ONNXBackend, error) {
	runnerCfg := ort.RunnerConfig{LibraryPath: cfg.ORTLibrary}

	prefill, err := ort.NewRunner("backbone-prefill", filepath.Join(cfg.ModelPath, prefillGraphFile), runnerCfg)
	if err != nil {
		return nil, fmt.Errorf("backbone prefill: %w", err)
	}

	step, err := ort.NewRunner("backbone-step", filepath.Join(cfg.ModelPath, stepGraphFile), runnerCfg)
	if err != nil {
		prefill.Close()
		return nil, fmt.Errorf("backbone step: %w", err)
	}

	return &ONNXBackend{prefill: prefill, step: step}, nil
}

// Prefill runs the prompt through the prefill graph and captures the
// emitted KV cache as the session state.
func (b *ONNXBackend) Prefill(ctx context.Context, prompt []int64) (State, error) {
	in, err := ort.NewTensor(prompt, []int64{1, int64(len(prompt))})
	if err != nil {
		return nil, fmt.Errorf("prefill: %w", err)
	}

	outputs, err := b.prefill.Run(ctx, map[string]*ort.Tensor{"input_ids": in})
	if err != nil {
		return nil, fmt.Errorf("prefill: %w", err)
	}

	st := &onnxState{kv: make(map[string]*ort.Tensor)}
	for name, t := range outputs {
		if strings.HasPrefix(name, kvOutputPrefix) {
			st.kv[strings.TrimPrefix(name, kvOutputPrefix)] = t
		}
	}
	if len(st.kv) == 0 {
		return nil, fmt.Errorf("prefill: graph emitted no %q outputs", kvOutputPrefix)
	}

	return st, nil
}

// Step feeds the last token plus the cached KV state through the step graph
// and returns the next-token logits, replacing the state's cache with the
// updated tensors.
func (b *ONNXBackend) Step(ctx context.Context, state State, last int64) (StepResult, error) {
	st, ok := state.(*onnxState)
	if !ok || st.kv == nil {
		return StepResult{}, fmt.Errorf("step: invalid or released state")
	}

	in, err := ort.NewTensor([]int64{last}, []int64{1, 1})
	if err != nil {
		return StepResult{}, fmt.Errorf("step: %w", err)
	}

	inputs := make(map[string]*ort.Tensor, len(st.kv)+1)
	inputs["input_ids"] = in
	for name, t := range st.kv {
		inputs[kvInputPrefix+name] = t
	}

	outputs, err := b.step.Run(ctx, inputs)
	if err != nil {
		return StepResult{}, fmt.Errorf("step: %w", err)
	}

	logitsTensor, ok := outputs["logits"]
	if !ok {
		return StepResult{}, fmt.Errorf("step: graph produced no %q output", "logits")
	}
	logits, err := logitsTensor.Float32()
	if err != nil {
		return StepResult{}, fmt.Errorf("step: %w", err)
	}

	next := make(map[string]*ort.Tensor, len(st.kv))
	for name, t := range outputs {
		if strings.HasPrefix(name, kvOutputPrefix) {
			next[strings.TrimPrefix(name, kvOutputPrefix)] = t
		}
	}
	st.kv = next

	return StepResult{Logits: logits}, nil
}

// Close releases both graph sessions.
func (b *ONNXBackend) Close() {
	if b.prefill != nil {
		b.prefill.Close()
		b.prefill = nil
	}
	if b.step != nil {
		b.step.Close()
		b.step = nil
	}
}
