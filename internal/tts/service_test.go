package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-air-tts/internal/backbone"
	"github.com/example/go-air-tts/internal/config"
	"github.com/example/go-air-tts/internal/prompt"
	"github.com/example/go-air-tts/internal/refenc"
	"github.com/example/go-air-tts/internal/watermark"
)

const (
	testSpeechOffset = int64(200)
	testStopToken    = int64(4)
	testVocab        = 100
	testSPF          = 10 // samples per frame of the fake codec
)

type fakePhonemizer struct{}

func (fakePhonemizer) Phonemize(_ context.Context, text string) (string, error) {
	return text, nil
}
func (fakePhonemizer) Language() string { return "en-us" }

type fakeTokenizer struct{}

func (fakeTokenizer) Encode(text string) ([]int64, error) {
	ids := make([]int64, 0, len(text))
	for _, r := range text {
		ids = append(ids, int64(r)%90+10)
	}
	return ids, nil
}

// fakeCodec decodes each token independently to testSPF samples.
type fakeCodec struct{}

func (fakeCodec) Encode(_ context.Context, samples []float32) ([]int64, error) {
	codes := make([]int64, len(samples)/testSPF)
	for i := range codes {
		codes[i] = int64(i % testVocab)
	}
	return codes, nil
}

func (fakeCodec) Decode(_ context.Context, tokens []int64) ([]float32, error) {
	out := make([]float32, 0, len(tokens)*testSPF)
	for _, tok := range tokens {
		for j := 0; j < testSPF; j++ {
			out = append(out, float32(tok)/float32(testVocab))
		}
	}
	return out, nil
}

func (fakeCodec) SampleRate() int { return 1000 }
func (fakeCodec) FrameRate() int  { return 100 }
func (fakeCodec) VocabSize() int  { return testVocab }
func (fakeCodec) Close()          {}

type fakeState struct{}

func (fakeState) Release() {}

// fakeBackbone replays a script of speech-range tokens, then the stop token.
type fakeBackbone struct {
	steps int
	step  int
}

func (b *fakeBackbone) Prefill(context.Context, []int64) (backbone.State, error) {
	return fakeState{}, nil
}

func (b *fakeBackbone) Step(context.Context, backbone.State, int64) (backbone.StepResult, error) {
	i := b.step
	b.step++
	if i >= b.steps {
		return backbone.StepResult{Token: testStopToken, Sampled: true}, nil
	}
	return backbone.StepResult{Token: testSpeechOffset + int64(i%testVocab), Sampled: true}, nil
}

func (b *fakeBackbone) Close() {}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Backbone.ContextSize = 64
	cfg.Backbone.SpeechOffset = testSpeechOffset
	cfg.Backbone.StopToken = testStopToken
	cfg.Codec.VocabSize = testVocab
	cfg.Synth.GenerationReserve = 16
	cfg.Synth.MaxSteps = 100
	cfg.Synth.Temperature = 0
	cfg.Synth.Seed = 7
	cfg.Synth.ChunkFrames = 5
	cfg.Synth.OverlapFrames = 2
	cfg.Synth.CrossfadeMS = 0
	cfg.Synth.QueueDepth = 4
	return cfg
}

func newTestService(t *testing.T, steps int) *Service {
	t.Helper()
	cfg := testConfig()

	cdc := fakeCodec{}
	refEncoder, err := refenc.New(cdc, cfg.Reference.MinSeconds, cfg.Reference.MaxSeconds, 0)
	if err != nil {
		t.Fatalf("refenc.New: %v", err)
	}
	assembler, err := prompt.NewAssembler(prompt.Template{
		BOS:          cfg.Backbone.BOSToken,
		SpeechStart:  cfg.Backbone.SpeechStartToken,
		StopToken:    cfg.Backbone.StopToken,
		SpeechOffset: cfg.Backbone.SpeechOffset,
	}, cfg.Backbone.ContextSize, cfg.Synth.GenerationReserve)
	if err != nil {
		t.Fatalf("prompt.NewAssembler: %v", err)
	}

	return &Service{
		cfg:        cfg,
		log:        discardLogger(),
		phonemizer: fakePhonemizer{},
		tokenizer:  fakeTokenizer{},
		codec:      cdc,
		backbone:   &fakeBackbone{steps: steps},
		refEncoder: refEncoder,
		assembler:  assembler,
		mark:       watermark.None{},
	}
}

func testRequest() Request {
	return Request{
		Text:     "hello",
		RefText:  "hi",
		RefCodes: []int64{5, 6, 7, 8, 9},
	}
}

func TestSynthesize_Batch(t *testing.T) {
	svc := newTestService(t, 12)

	res, err := svc.Synthesize(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if res.Steps != 12 {
		t.Errorf("steps = %d; want 12", res.Steps)
	}
	if len(res.Samples) != 12*testSPF {
		t.Errorf("samples = %d; want %d", len(res.Samples), 12*testSPF)
	}
	if res.SampleRate != 1000 {
		t.Errorf("sample rate = %d; want 1000", res.SampleRate)
	}
	if res.Cancelled {
		t.Error("uninterrupted run marked cancelled")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	svc := newTestService(t, 4)
	req := testRequest()
	req.Text = ""

	_, err := svc.Synthesize(context.Background(), req)
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("error = %v; want ErrEmptyText", err)
	}
}

func TestSynthesize_MissingReference(t *testing.T) {
	svc := newTestService(t, 4)

	_, err := svc.Synthesize(context.Background(), Request{Text: "hello"})
	if !errors.Is(err, ErrMissingReference) {
		t.Fatalf("error = %v; want ErrMissingReference", err)
	}
}

func TestSynthesize_MissingTranscript(t *testing.T) {
	svc := newTestService(t, 4)
	req := testRequest()
	req.RefText = ""

	if _, err := svc.Synthesize(context.Background(), req); err == nil {
		t.Fatal("expected error for missing reference transcript")
	}
}

func TestSynthesize_OutOfVocabularyCodes(t *testing.T) {
	svc := newTestService(t, 4)
	req := testRequest()
	req.RefCodes = []int64{int64(testVocab) + 5}

	_, err := svc.Synthesize(context.Background(), req)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("error = %v; want ErrDecode", err)
	}
}

func TestSynthesize_UnsupportedLanguage(t *testing.T) {
	svc := newTestService(t, 4)
	req := testRequest()
	req.Language = "xx-zz"

	_, err := svc.Synthesize(context.Background(), req)
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("error = %v; want ErrUnsupportedLanguage", err)
	}
}

func TestSynthesize_LanguageCheckedBeforeReference(t *testing.T) {
	svc := newTestService(t, 4)
	req := Request{
		Text:         "hello",
		Language:     "xx-zz",
		RefAudioPath: filepath.Join(t.TempDir(), "missing.wav"),
		RefText:      "hi",
	}

	_, err := svc.Synthesize(context.Background(), req)
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("error = %v; want ErrUnsupportedLanguage before the reference is touched", err)
	}
}

func TestSynthesize_ContextOverflow(t *testing.T) {
	svc := newTestService(t, 4)
	req := testRequest()
	req.RefCodes = make([]int64, 60) // 64-token window, 16 reserved

	_, err := svc.Synthesize(context.Background(), req)
	if !errors.Is(err, ErrContextOverflow) {
		t.Fatalf("error = %v; want ErrContextOverflow", err)
	}
}

func TestSynthesize_RegistryReference(t *testing.T) {
	dir := t.TempDir()
	codesPath := filepath.Join(dir, "amy.codes.json")
	if err := WriteCodes(codesPath, []int64{1, 2, 3, 4, 5}, 100, testVocab); err != nil {
		t.Fatalf("WriteCodes: %v", err)
	}

	manifest := fmt.Sprintf(`{"references":[{"id":"amy","text":"hi there","codes_path":%q}]}`, "amy.codes.json")
	manifestPath := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	svc := newTestService(t, 6)
	reg, err := LoadRegistry(manifestPath)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	svc.registry = reg

	res, err := svc.Synthesize(context.Background(), Request{Text: "hello", RefID: "amy"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Steps != 6 {
		t.Errorf("steps = %d; want 6", res.Steps)
	}

	if got := svc.References(); len(got) != 1 || got[0].ID != "amy" {
		t.Errorf("References() = %+v; want the manifest entry", got)
	}
}
