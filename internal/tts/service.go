// Package tts is the synthesis facade: it wires the phonemizer, tokenizer,
// codec, and backbone behind one Service and exposes batch and streaming
// voice-cloning synthesis.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/example/go-air-tts/internal/audio"
	"github.com/example/go-air-tts/internal/backbone"
	"github.com/example/go-air-tts/internal/codec"
	"github.com/example/go-air-tts/internal/config"
	"github.com/example/go-air-tts/internal/phoneme"
	"github.com/example/go-air-tts/internal/pipeline"
	"github.com/example/go-air-tts/internal/prompt"
	"github.com/example/go-air-tts/internal/refenc"
	"github.com/example/go-air-tts/internal/tokenizer"
	"github.com/example/go-air-tts/internal/watermark"
)

// ManifestFileName is the registry manifest inside the reference directory.
const ManifestFileName = "references.json"

// PCMChunk is re-exported so callers depend only on this package.
type PCMChunk = pipeline.PCMChunk

// Request describes one synthesis. Exactly one reference source must be
// set: inline codes, a codes file, a registry id, or a reference WAV. The
// reference transcript is required (registry entries carry their own).
type Request struct {
	Text     string
	Language string // empty uses the configured default

	RefID        string
	RefText      string
	RefAudioPath string
	RefCodesPath string
	RefCodes     []int64
}

// Result summarizes one synthesis. Cancelled marks a run interrupted by the
// caller; the samples delivered up to that point are valid output.
type Result struct {
	Samples    []float32
	SampleRate int
	Steps      int
	Chunks     int
	Cancelled  bool
}

type Service struct {
	cfg config.Config
	log *slog.Logger

	phonemizer phoneme.Phonemizer
	tokenizer  tokenizer.Tokenizer
	codec      codec.Backend
	backbone   backbone.Backend
	refEncoder *refenc.Encoder
	assembler  *prompt.Assembler
	registry   *Registry
	mark       watermark.Watermarker
}

// NewService constructs all collaborators from the configuration. The
// reference registry is optional: it is loaded only when the manifest file
// exists in the reference directory.
func NewService(cfg config.Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	codecName, err := config.NormalizeCodec(cfg.Codec.Backend)
	if err != nil {
		return nil, err
	}
	backboneName, err := config.NormalizeBackbone(cfg.Backbone.Backend)
	if err != nil {
		return nil, err
	}

	var cdc codec.Backend
	switch codecName {
	case config.CodecONNX:
		cdc, err = codec.NewONNXBackend(cfg.Codec)
		if err != nil {
			return nil, err
		}
	}

	var bb backbone.Backend
	switch backboneName {
	case config.BackboneONNX:
		bb, err = backbone.NewONNXBackend(cfg.Backbone)
	case config.BackboneExec:
		bb, err = backbone.NewExecBackend(cfg.Backbone.Command)
	}
	if err != nil {
		cdc.Close()
		return nil, err
	}

	phonemizer, err := phoneme.NewEspeak(cfg.Phoneme.Command, cfg.Phoneme.Language)
	if err != nil {
		cdc.Close()
		bb.Close()
		return nil, err
	}

	tok, err := tokenizer.NewSentencePiece(cfg.Paths.TokenizerPath)
	if err != nil {
		cdc.Close()
		bb.Close()
		return nil, err
	}

	refEncoder, err := refenc.New(cdc, cfg.Reference.MinSeconds, cfg.Reference.MaxSeconds, cfg.Reference.CacheSize)
	if err != nil {
		cdc.Close()
		bb.Close()
		return nil, err
	}

	assembler, err := prompt.NewAssembler(prompt.Template{
		BOS:          cfg.Backbone.BOSToken,
		SpeechStart:  cfg.Backbone.SpeechStartToken,
		StopToken:    cfg.Backbone.StopToken,
		SpeechOffset: cfg.Backbone.SpeechOffset,
	}, cfg.Backbone.ContextSize, cfg.Synth.GenerationReserve)
	if err != nil {
		cdc.Close()
		bb.Close()
		return nil, err
	}

	var mark watermark.Watermarker = watermark.None{}
	if cfg.Synth.WatermarkKey != "" {
		mark = watermark.NewKeyed(cfg.Synth.WatermarkKey)
	}

	var registry *Registry
	manifest := filepath.Join(cfg.Paths.ReferenceDir, ManifestFileName)
	if _, statErr := os.Stat(manifest); statErr == nil {
		registry, err = LoadRegistry(manifest)
		if err != nil {
			cdc.Close()
			bb.Close()
			return nil, err
		}
		log.Info("reference registry loaded",
			slog.String("manifest", manifest),
			slog.Int("references", len(registry.List())))
	}

	return &Service{
		cfg:        cfg,
		log:        log,
		phonemizer: phonemizer,
		tokenizer:  tok,
		codec:      cdc,
		backbone:   bb,
		refEncoder: refEncoder,
		assembler:  assembler,
		registry:   registry,
		mark:       mark,
	}, nil
}

// Close releases the inference backends.
func (s *Service) Close() {
	if s.codec != nil {
		s.codec.Close()
	}
	if s.backbone != nil {
		s.backbone.Close()
	}
}

// SampleRate reports the output waveform rate.
func (s *Service) SampleRate() int { return s.codec.SampleRate() }

// References lists the registry entries, if a registry is configured.
func (s *Service) References() []Reference {
	if s.registry == nil {
		return nil
	}
	return s.registry.List()
}

// EncodeReference turns a reference WAV file into codec codes, normalizing
// the level first so quiet recordings condition the backbone consistently.
func (s *Service) EncodeReference(ctx context.Context, wavPath string) ([]int64, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("read reference: %w", err)
	}

	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReferenceAudio, err)
	}
	clip.Samples = audio.PeakNormalize(clip.Samples)

	return s.refEncoder.Encode(ctx, clip)
}

// Synthesize runs one batch synthesis and returns the whole waveform.
func (s *Service) Synthesize(ctx context.Context, req Request) (Result, error) {
	p, gen, err := s.prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}

	var samples []float32
	sink := func(ch PCMChunk) error {
		samples = append(samples, ch.Samples...)
		return nil
	}

	// A failed run still returns the audio assembled before the failure.
	res, err := s.newSession(false).Run(ctx, p.Tokens, gen, sink)

	return Result{
		Samples:    samples,
		SampleRate: s.codec.SampleRate(),
		Steps:      res.Steps,
		Chunks:     res.Chunks,
		Cancelled:  res.Cancelled(),
	}, err
}

// SynthesizeStream runs one streaming synthesis, sending finished chunks on
// out as they are produced. The channel is closed when the stream ends.
// Cancellation is not an error: the chunks already sent are valid output and
// the returned Result is marked Cancelled.
func (s *Service) SynthesizeStream(ctx context.Context, req Request, out chan<- PCMChunk) (Result, error) {
	defer close(out)

	p, gen, err := s.prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}

	sink := func(ch PCMChunk) error {
		select {
		case out <- ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	res, runErr := s.newSession(true).Run(ctx, p.Tokens, gen, sink)

	cancelled := res.Cancelled()
	if runErr != nil && errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		runErr = nil
		cancelled = true
	}

	return Result{
		SampleRate: s.codec.SampleRate(),
		Steps:      res.Steps,
		Chunks:     res.Chunks,
		Cancelled:  cancelled,
	}, runErr
}

// prepare validates the request and assembles the prompt. The language tag
// is checked before the reference is resolved, so a bad request never
// reaches the codec even when it carries raw audio to encode.
func (s *Service) prepare(ctx context.Context, req Request) (prompt.Prompt, backbone.GenerateConfig, error) {
	if req.Text == "" {
		return prompt.Prompt{}, backbone.GenerateConfig{}, ErrEmptyText
	}

	ph, err := s.phonemizerFor(req.Language)
	if err != nil {
		return prompt.Prompt{}, backbone.GenerateConfig{}, err
	}

	refCodes, refText, err := s.resolveReference(ctx, req)
	if err != nil {
		return prompt.Prompt{}, backbone.GenerateConfig{}, err
	}

	refPhonemes, err := ph.Phonemize(ctx, refText)
	if err != nil {
		return prompt.Prompt{}, backbone.GenerateConfig{}, fmt.Errorf("reference text: %w", err)
	}
	targetPhonemes, err := ph.Phonemize(ctx, req.Text)
	if err != nil {
		return prompt.Prompt{}, backbone.GenerateConfig{}, err
	}

	refTokens, err := s.tokenizer.Encode(refPhonemes)
	if err != nil {
		return prompt.Prompt{}, backbone.GenerateConfig{}, fmt.Errorf("tokenize reference text: %w", err)
	}
	targetTokens, err := s.tokenizer.Encode(targetPhonemes)
	if err != nil {
		return prompt.Prompt{}, backbone.GenerateConfig{}, fmt.Errorf("tokenize target text: %w", err)
	}

	p, err := s.assembler.Build(refCodes, refTokens, targetTokens)
	if err != nil {
		return prompt.Prompt{}, backbone.GenerateConfig{}, err
	}

	maxSteps := s.cfg.Synth.MaxSteps
	if p.Budget < maxSteps {
		maxSteps = p.Budget
	}

	gen := backbone.GenerateConfig{
		StopToken:    s.cfg.Backbone.StopToken,
		SpeechOffset: s.cfg.Backbone.SpeechOffset,
		SpeechVocab:  int64(s.cfg.Codec.VocabSize),
		MaxSteps:     maxSteps,
	}

	s.log.Debug("prompt assembled",
		slog.Int("prompt_tokens", len(p.Tokens)),
		slog.Int("ref_frames", p.RefFrames),
		slog.Int("max_steps", maxSteps))

	return p, gen, nil
}

func (s *Service) resolveReference(ctx context.Context, req Request) ([]int64, string, error) {
	refText := req.RefText

	var codes []int64
	switch {
	case len(req.RefCodes) > 0:
		if err := codec.ValidateTokens(req.RefCodes, s.codec.VocabSize()); err != nil {
			return nil, "", err
		}
		codes = req.RefCodes

	case req.RefCodesPath != "":
		loaded, err := ReadCodes(req.RefCodesPath, s.codec.FrameRate(), s.codec.VocabSize())
		if err != nil {
			return nil, "", err
		}
		codes = loaded

	case req.RefID != "":
		if s.registry == nil {
			return nil, "", fmt.Errorf("reference %q: no registry configured", req.RefID)
		}
		ref, path, err := s.registry.Resolve(req.RefID)
		if err != nil {
			return nil, "", err
		}
		loaded, err := ReadCodes(path, s.codec.FrameRate(), s.codec.VocabSize())
		if err != nil {
			return nil, "", err
		}
		codes = loaded
		if refText == "" {
			refText = ref.Text
		}

	case req.RefAudioPath != "":
		encoded, err := s.EncodeReference(ctx, req.RefAudioPath)
		if err != nil {
			return nil, "", err
		}
		codes = encoded

	default:
		return nil, "", ErrMissingReference
	}

	if refText == "" {
		return nil, "", errors.New("reference transcript is required")
	}

	return codes, refText, nil
}

// phonemizerFor returns the default phonemizer, or a per-request one when
// the request overrides the language.
func (s *Service) phonemizerFor(language string) (phoneme.Phonemizer, error) {
	if language == "" {
		return s.phonemizer, nil
	}
	lang, err := phoneme.NormalizeLanguage(language)
	if err != nil {
		return nil, err
	}
	if lang == s.phonemizer.Language() {
		return s.phonemizer, nil
	}
	return phoneme.NewEspeak(s.cfg.Phoneme.Command, lang)
}

func (s *Service) newSession(streaming bool) *pipeline.Session {
	seed := s.cfg.Synth.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	sampler := backbone.NewSampler(backbone.SamplerConfig{
		Temperature: s.cfg.Synth.Temperature,
		TopK:        s.cfg.Synth.TopK,
		TopP:        s.cfg.Synth.TopP,
		Seed:        seed,
	})

	pipeCfg := pipeline.Config{Watermark: s.mark}
	if streaming {
		pipeCfg.ChunkFrames = s.cfg.Synth.ChunkFrames
		pipeCfg.OverlapFrames = s.cfg.Synth.OverlapFrames
		pipeCfg.CrossfadeMS = s.cfg.Synth.CrossfadeMS
		pipeCfg.QueueDepth = s.cfg.Synth.QueueDepth
	}

	return &pipeline.Session{
		Decoder: backbone.NewDecoder(s.backbone, sampler, s.log),
		Codec:   s.codec,
		Config:  pipeCfg,
		Log:     s.log,
	}
}
