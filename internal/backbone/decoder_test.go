package backbone

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// scriptedBackend replays a fixed token script and tracks state release.
type scriptedBackend struct {
	script   []int64
	pos      int
	failAt   int // step index that returns an error; -1 disables
	released *bool
}

type scriptedState struct {
	released *bool
}

func (s *scriptedState) Release() {
	if s.released != nil {
		*s.released = true
	}
}

func newScriptedBackend(script ...int64) *scriptedBackend {
	return &scriptedBackend{script: script, failAt: -1}
}

func (b *scriptedBackend) Prefill(_ context.Context, prompt []int64) (State, error) {
	if len(prompt) == 0 {
		return nil, errors.New("empty prompt")
	}
	return &scriptedState{released: b.released}, nil
}

func (b *scriptedBackend) Step(_ context.Context, _ State, _ int64) (StepResult, error) {
	if b.failAt >= 0 && b.pos == b.failAt {
		return StepResult{}, errors.New("backend crashed")
	}
	if b.pos >= len(b.script) {
		return StepResult{}, errors.New("script exhausted")
	}
	tok := b.script[b.pos]
	b.pos++
	return StepResult{Token: tok, Sampled: true}, nil
}

func (b *scriptedBackend) Close() {}

const (
	testOffset = 1000
	testVocab  = 100
	testStop   = 2000
)

func testCfg(maxSteps int) GenerateConfig {
	return GenerateConfig{
		StopToken:    testStop,
		SpeechOffset: testOffset,
		SpeechVocab:  testVocab,
		MaxSteps:     maxSteps,
	}
}

func collect(dst *[]int64) EmitFunc {
	return func(tok int64) error {
		*dst = append(*dst, tok)
		return nil
	}
}

func TestGenerate_EmitsUntilStopToken(t *testing.T) {
	b := newScriptedBackend(testOffset+5, testOffset+6, testOffset+7, testStop)
	d := NewDecoder(b, NewSampler(SamplerConfig{}), nil)

	var got []int64
	res, err := d.Generate(context.Background(), []int64{1, 2, 3}, testCfg(64), collect(&got))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := []int64{5, 6, 7}
	if len(got) != len(want) {
		t.Fatalf("emitted %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %d; want %d", i, got[i], want[i])
		}
	}
	if res.Reason != StopToken {
		t.Errorf("reason = %s; want stop-token", res.Reason)
	}
	if res.Steps != 3 {
		t.Errorf("steps = %d; want 3", res.Steps)
	}
	if d.Phase() != PhaseStopped {
		t.Errorf("phase = %s; want stopped", d.Phase())
	}
}

func TestGenerate_MaxStepsBound(t *testing.T) {
	script := make([]int64, 10)
	for i := range script {
		script[i] = testOffset + int64(i)
	}
	b := newScriptedBackend(script...)
	d := NewDecoder(b, NewSampler(SamplerConfig{}), nil)

	var got []int64
	res, err := d.Generate(context.Background(), []int64{1}, testCfg(4), collect(&got))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("emitted %d tokens; want 4", len(got))
	}
	if res.Reason != StopMaxSteps {
		t.Errorf("reason = %s; want max-steps", res.Reason)
	}
}

func TestGenerate_NonSpeechTokenStops(t *testing.T) {
	b := newScriptedBackend(testOffset+1, 17) // 17 is below the speech range
	d := NewDecoder(b, NewSampler(SamplerConfig{}), nil)

	var got []int64
	res, err := d.Generate(context.Background(), []int64{1}, testCfg(64), collect(&got))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("emitted %d tokens; want 1", len(got))
	}
	if res.Reason != StopToken {
		t.Errorf("reason = %s; want stop-token", res.Reason)
	}
}

func TestGenerate_BackendErrorPreservesPartialOutput(t *testing.T) {
	b := newScriptedBackend(testOffset+1, testOffset+2, testOffset+3)
	b.failAt = 2
	released := false
	b.released = &released

	d := NewDecoder(b, NewSampler(SamplerConfig{}), nil)

	var got []int64
	res, err := d.Generate(context.Background(), []int64{1}, testCfg(64), collect(&got))
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("error = %v; want ErrBackend", err)
	}
	if len(got) != 2 {
		t.Errorf("emitted %d tokens before failure; want 2", len(got))
	}
	if res.Steps != 2 {
		t.Errorf("steps = %d; want 2", res.Steps)
	}
	if !released {
		t.Error("state was not released after backend failure")
	}
}

func TestGenerate_CancellationIsNotAnError(t *testing.T) {
	b := newScriptedBackend(testOffset+1, testOffset+2, testOffset+3, testOffset+4)
	released := false
	b.released = &released

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDecoder(b, NewSampler(SamplerConfig{}), nil)

	var got []int64
	emit := func(tok int64) error {
		got = append(got, tok)
		if len(got) == 2 {
			cancel()
		}
		return nil
	}

	res, err := d.Generate(ctx, []int64{1}, testCfg(64), emit)
	if err != nil {
		t.Fatalf("Generate after cancel: %v", err)
	}
	if res.Reason != StopCancelled {
		t.Errorf("reason = %s; want cancelled", res.Reason)
	}
	if len(got) != 2 {
		t.Errorf("emitted %d tokens; want exactly 2", len(got))
	}
	if !released {
		t.Error("state was not released after cancellation")
	}
}

func TestGenerate_DecoderIsSingleUse(t *testing.T) {
	b := newScriptedBackend(testStop)
	d := NewDecoder(b, NewSampler(SamplerConfig{}), nil)

	if _, err := d.Generate(context.Background(), []int64{1}, testCfg(8), collect(new([]int64))); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if _, err := d.Generate(context.Background(), []int64{1}, testCfg(8), collect(new([]int64))); err == nil {
		t.Fatal("second Generate should fail")
	}
}

func TestGenerate_EmitErrorPropagates(t *testing.T) {
	b := newScriptedBackend(testOffset+1, testOffset+2)
	d := NewDecoder(b, NewSampler(SamplerConfig{}), nil)

	sentinel := fmt.Errorf("sink full")
	_, err := d.Generate(context.Background(), []int64{1}, testCfg(8), func(int64) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v; want sink sentinel", err)
	}
}
