package main

import (
	"fmt"
	"os"

	"github.com/example/go-air-tts/internal/audio"
	"github.com/example/go-air-tts/internal/codec"
	"github.com/example/go-air-tts/internal/refenc"
	"github.com/example/go-air-tts/internal/tts"
	"github.com/spf13/cobra"
)

// encode-ref pre-encodes a reference recording so synthesis requests can
// skip the codec encoder entirely and condition on the persisted codes.
func newEncodeRefCmd() *cobra.Command {
	var (
		audioPath string
		out       string
	)

	cmd := &cobra.Command{
		Use:   "encode-ref",
		Short: "Pre-encode a reference WAV into reusable codes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if audioPath == "" {
				return fmt.Errorf("--audio is required")
			}

			backend, err := codec.NewONNXBackend(cfg.Codec)
			if err != nil {
				return err
			}
			defer backend.Close()

			encoder, err := refenc.New(backend,
				cfg.Reference.MinSeconds, cfg.Reference.MaxSeconds, 0)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(audioPath)
			if err != nil {
				return fmt.Errorf("read reference: %w", err)
			}
			clip, err := audio.DecodeWAV(data)
			if err != nil {
				return err
			}
			clip.Samples = audio.PeakNormalize(clip.Samples)

			codes, err := encoder.Encode(cmd.Context(), clip)
			if err != nil {
				return err
			}

			if err := tts.WriteCodes(out, codes, backend.FrameRate(), backend.VocabSize()); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "encoded %d frames (%.2fs) to %s\n",
				len(codes), float64(len(codes))/float64(backend.FrameRate()), out)
			return err
		},
	}

	cmd.Flags().StringVar(&audioPath, "audio", "", "Reference WAV to encode (1-30 s, mono)")
	cmd.Flags().StringVar(&out, "out", "ref.codes.json", "Output codes file")

	return cmd
}
