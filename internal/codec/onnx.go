package codec

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/example/go-air-tts/internal/config"
	"github.com/example/go-air-tts/internal/ort"
)

// Graph file names inside the codec model bundle directory.
const (
	encoderGraphFile = "encoder.onnx"
	decoderGraphFile = "decoder.onnx"
)

// ONNXBackend runs the codec encoder and decoder graphs through ONNX Runtime.
type ONNXBackend struct {
	encoder    *ort.Runner
	decoder    *ort.Runner
	sampleRate int
	frameRate  int
	vocabSize  int
}

// NewONNXBackend loads the encode/decode graphs from the bundle directory.
func NewONNXBackend(cfg config.CodecConfig) (*ONNXBackend, error) {
	runnerCfg := ort.RunnerConfig{LibraryPath: cfg.ORTLibrary}

	encoder, err := ort.NewRunner("codec-encoder", filepath.Join(cfg.ModelPath, encoderGraphFile), runnerCfg)
	if err != nil {
		return nil, fmt.Errorf("codec encoder: %w", err)
	}

	decoder, err := ort.NewRunner("codec-decoder", filepath.Join(cfg.ModelPath, decoderGraphFile), runnerCfg)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("codec decoder: %w", err)
	}

	return &ONNXBackend{
		encoder:    encoder,
		decoder:    decoder,
		sampleRate: cfg.SampleRate,
		frameRate:  cfg.FrameRate,
		vocabSize:  cfg.VocabSize,
	}, nil
}

func (b *ONNXBackend) SampleRate() int { return b.sampleRate }
func (b *ONNXBackend) FrameRate() int  { return b.frameRate }
func (b *ONNXBackend) VocabSize() int  { return b.vocabSize }

// Encode converts mono samples at the codec rate into codec tokens.
func (b *ONNXBackend) Encode(ctx context.Context, samples []float32) ([]int64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("encode: empty sample slice")
	}

	in, err := ort.NewTensor(samples, []int64{1, 1, int64(len(samples))})
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	outputs, err := b.encoder.Run(ctx, map[string]*ort.Tensor{"audio": in})
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	codes, ok := outputs["codes"]
	if !ok {
		return nil, fmt.Errorf("encode: graph produced no %q output", "codes")
	}

	return codes.Int64()
}

// Decode converts codec tokens into mono samples at the codec rate.
// Out-of-vocabulary tokens fail with ErrDecode.
func (b *ONNXBackend) Decode(ctx context.Context, tokens []int64) ([]float32, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("decode: empty token slice")
	}
	if err := ValidateTokens(tokens, b.vocabSize); err != nil {
		return nil, err
	}

	in, err := ort.NewTensor(tokens, []int64{1, int64(len(tokens))})
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	outputs, err := b.decoder.Run(ctx, map[string]*ort.Tensor{"codes": in})
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	audio, ok := outputs["audio"]
	if !ok {
		return nil, fmt.Errorf("decode: graph produced no %q output", "audio")
	}

	return audio.Float32()
}

// Close releases both graph sessions.
func (b *ONNXBackend) Close() {
	if b.encoder != nil {
		b.encoder.Close()
		b.encoder = nil
	}
	if b.decoder != nil {
		b.decoder.Close()
		b.decoder = nil
	}
}
