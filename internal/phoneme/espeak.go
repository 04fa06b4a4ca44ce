package phoneme

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// EspeakPhonemizer shells out to an espeak-ng compatible executable to
// phonemize text. Punctuation is preserved and stress marks are kept, which
// the backbone vocabulary expects.
type EspeakPhonemizer struct {
	cmd     []string
	lang    string
	cleanup cleanup
}

// NewEspeak builds a phonemizer for the given language tag from a command
// line (executable plus any fixed arguments).
func NewEspeak(command, language string) (*EspeakPhonemizer, error) {
	lang, err := NormalizeLanguage(language)
	if err != nil {
		return nil, err
	}

	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse phonemizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("phonemizer command is empty")
	}

	return &EspeakPhonemizer{
		cmd:     args,
		lang:    lang,
		cleanup: cleanupFor(lang),
	}, nil
}

func (p *EspeakPhonemizer) Language() string { return p.lang }

// Phonemize runs the external engine and returns the cleaned phoneme string.
func (p *EspeakPhonemizer) Phonemize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty input text", ErrPhonemization)
	}

	args := append([]string(nil), p.cmd[1:]...)
	args = append(args,
		"--ipa",
		"-q",
		"-v", p.lang,
		"--punct",
	)

	cmd := exec.CommandContext(ctx, p.cmd[0], args...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v: %s", ErrPhonemization, err, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("%w: engine produced no output", ErrPhonemization)
	}

	return p.cleanup(out), nil
}
