package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-air-tts/internal/codec"
)

// Reference is one entry of the pre-encoded reference registry: a named
// speaker identity with its transcript and persisted codec codes.
type Reference struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CodesPath string `json:"codes_path"`
	License   string `json:"license,omitempty"`
}

type referenceManifest struct {
	References []Reference `json:"references"`
}

// Registry resolves named references from a JSON manifest. Relative codes
// paths are resolved against the manifest directory.
type Registry struct {
	baseDir string
	refs    []Reference
	byID    map[string]Reference
}

func LoadRegistry(manifestPath string) (*Registry, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read reference manifest: %w", err)
	}

	var manifest referenceManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode reference manifest: %w", err)
	}

	reg := &Registry{
		baseDir: filepath.Dir(manifestPath),
		refs:    append([]Reference(nil), manifest.References...),
		byID:    make(map[string]Reference, len(manifest.References)),
	}

	for _, r := range manifest.References {
		if r.ID == "" {
			return nil, errors.New("reference manifest contains empty id")
		}
		if r.CodesPath == "" {
			return nil, fmt.Errorf("reference %q has empty codes path", r.ID)
		}
		if r.Text == "" {
			return nil, fmt.Errorf("reference %q has empty transcript", r.ID)
		}
		if _, exists := reg.byID[r.ID]; exists {
			return nil, fmt.Errorf("duplicate reference id %q", r.ID)
		}
		reg.byID[r.ID] = r
	}

	return reg, nil
}

func (r *Registry) List() []Reference {
	return append([]Reference(nil), r.refs...)
}

// Resolve returns the entry and the absolute path of its codes file.
func (r *Registry) Resolve(id string) (Reference, string, error) {
	ref, ok := r.byID[id]
	if !ok {
		return Reference{}, "", fmt.Errorf("unknown reference id %q", id)
	}

	resolved := ref.CodesPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(r.baseDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	if _, err := os.Stat(resolved); err != nil {
		return Reference{}, "", fmt.Errorf("codes file for %q: %w", id, err)
	}

	return ref, resolved, nil
}

// CodesFile is the persisted form of pre-encoded reference codes.
type CodesFile struct {
	FrameRate int     `json:"frame_rate"`
	VocabSize int     `json:"vocab_size"`
	Codes     []int64 `json:"codes"`
}

// WriteCodes persists reference codes as JSON.
func WriteCodes(path string, codes []int64, frameRate, vocabSize int) error {
	data, err := json.MarshalIndent(CodesFile{
		FrameRate: frameRate,
		VocabSize: vocabSize,
		Codes:     codes,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode codes file: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write codes file: %w", err)
	}
	return nil
}

// ReadCodes loads persisted reference codes and validates them against the
// active codec: the file's frame rate and vocabulary size must match, and
// every code must be inside the vocabulary. Codes only carry meaning for the
// codec bundle that produced them, so a mismatch is rejected rather than
// reinterpreted.
func ReadCodes(path string, frameRate, vocabSize int) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read codes file: %w", err)
	}

	var f CodesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode codes file %q: %w", path, err)
	}
	if len(f.Codes) == 0 {
		return nil, fmt.Errorf("codes file %q holds no codes", path)
	}
	if f.VocabSize != vocabSize {
		return nil, fmt.Errorf("%w: codes file %q was encoded for a %d-token codec, active codec has %d tokens",
			ErrInvalidReferenceAudio, path, f.VocabSize, vocabSize)
	}
	if f.FrameRate != frameRate {
		return nil, fmt.Errorf("%w: codes file %q was encoded at %d frames/s, active codec runs at %d",
			ErrInvalidReferenceAudio, path, f.FrameRate, frameRate)
	}
	if err := codec.ValidateTokens(f.Codes, vocabSize); err != nil {
		return nil, fmt.Errorf("codes file %q: %w", path, err)
	}

	return f.Codes, nil
}
