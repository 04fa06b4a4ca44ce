package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/example/go-air-tts/internal/audio"
	"github.com/example/go-air-tts/internal/tts"
	"github.com/spf13/cobra"
)

func newSynthCmd() *cobra.Command {
	var (
		text      string
		out       string
		language  string
		refAudio  string
		refCodes  string
		refID     string
		refText   string
		streaming bool
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV in a cloned voice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inputText, err := readSynthText(text, os.Stdin)
			if err != nil {
				return err
			}

			req := tts.Request{
				Text:         inputText,
				Language:     language,
				RefID:        refID,
				RefText:      refText,
				RefAudioPath: refAudio,
				RefCodesPath: refCodes,
			}

			svc, err := tts.NewService(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			if streaming {
				return streamSynth(cmd.Context(), svc, req, out, os.Stdout)
			}
			return batchSynth(cmd.Context(), svc, req, out, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().StringVar(&language, "language", "", "Phonemization language tag (overrides config)")
	cmd.Flags().StringVar(&refAudio, "ref", "", "Reference WAV to clone (1-30 s, mono)")
	cmd.Flags().StringVar(&refCodes, "ref-codes", "", "Pre-encoded reference codes file (see encode-ref)")
	cmd.Flags().StringVar(&refID, "ref-id", "", "Named reference from the registry manifest")
	cmd.Flags().StringVar(&refText, "ref-text", "", "Transcript of the reference recording")
	cmd.Flags().BoolVar(&streaming, "stream", false, "Write audio incrementally as it is generated")

	return cmd
}

func batchSynth(ctx context.Context, svc *tts.Service, req tts.Request, outPath string, stdout io.Writer) error {
	res, err := svc.Synthesize(ctx, req)
	if err != nil {
		return err
	}

	wav, err := audio.EncodeWAV(res.Samples)
	if err != nil {
		return err
	}

	slog.Info("synthesis complete",
		slog.Int("steps", res.Steps),
		slog.Int("samples", len(res.Samples)),
		slog.Bool("cancelled", res.Cancelled))

	return writeSynthOutput(outPath, wav, stdout)
}

// streamSynth writes a streaming WAV (unknown-length header) chunk by chunk,
// so playback through a pipe starts before generation finishes.
func streamSynth(ctx context.Context, svc *tts.Service, req tts.Request, outPath string, stdout io.Writer) error {
	w, closeFn, err := openSynthOutput(outPath, stdout)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := audio.WriteWAVHeaderStreaming(w); err != nil {
		return err
	}

	out := make(chan tts.PCMChunk, 4)
	type outcome struct {
		res tts.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := svc.SynthesizeStream(ctx, req, out)
		done <- outcome{res, err}
	}()

	var writeErr error
	for ch := range out {
		if writeErr != nil || len(ch.Samples) == 0 {
			continue
		}
		if _, err := audio.WritePCM16Samples(w, ch.Samples); err != nil {
			writeErr = err
		}
	}

	oc := <-done
	if oc.err != nil {
		return oc.err
	}
	if writeErr != nil {
		return fmt.Errorf("write stream: %w", writeErr)
	}

	slog.Info("stream complete",
		slog.Int("steps", oc.res.Steps),
		slog.Int("chunks", oc.res.Chunks),
		slog.Bool("cancelled", oc.res.Cancelled))

	return nil
}

func openSynthOutput(outPath string, stdout io.Writer) (io.Writer, func(), error) {
	if outPath == "-" {
		if stdout == nil {
			return nil, nil, fmt.Errorf("stdout writer is nil")
		}
		return stdout, func() {}, nil
	}

	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func writeSynthOutput(outPath string, wavData []byte, stdout io.Writer) error {
	if outPath == "-" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := stdout.Write(wavData)
		return err
	}
	return os.WriteFile(outPath, wavData, 0o644)
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}
	return input, nil
}
