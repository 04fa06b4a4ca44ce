// Package prompt assembles the bounded token prompt that conditions the
// backbone: reference speech codes, reference transcript, and target text in
// a fixed template order.
package prompt

import (
	"errors"
	"fmt"
)

// ErrContextOverflow is returned when the assembled prompt leaves no room
// for generation inside the context window. The caller must shorten the
// reference or the target text; the prompt is never silently truncated.
var ErrContextOverflow = errors.New("prompt exceeds context window")

// Template holds the special token ids and the speech-token offset for the
// backbone vocabulary.
type Template struct {
	BOS          int64
	SpeechStart  int64
	StopToken    int64
	SpeechOffset int64
}

// Prompt is the assembled, bounded token sequence.
type Prompt struct {
	Tokens    []int64
	RefFrames int // reference code count, for diagnostics
	Budget    int // steps the backbone may generate within the window
}

// Assembler validates prompt layouts against a context budget.
// Deterministic: identical inputs produce identical prompts.
type Assembler struct {
	tmpl        Template
	contextSize int
	reserve     int
}

// NewAssembler builds an assembler for a context window of contextSize
// tokens, keeping at least reserve tokens free for generation.
func NewAssembler(tmpl Template, contextSize, reserve int) (*Assembler, error) {
	if contextSize <= 0 {
		return nil, fmt.Errorf("context size must be positive, got %d", contextSize)
	}
	if reserve <= 0 || reserve >= contextSize {
		return nil, fmt.Errorf("generation reserve %d must be in (0,%d)", reserve, contextSize)
	}
	return &Assembler{tmpl: tmpl, contextSize: contextSize, reserve: reserve}, nil
}

// Build lays out [BOS][reference text][target text][SpeechStart][reference
// codes] and validates the context bound. Reference codes are shifted into
// the backbone's speech-token range; generation continues the speech span
// directly after them.
func (a *Assembler) Build(refCodes, refTextTokens, targetTextTokens []int64) (Prompt, error) {
	if len(targetTextTokens) == 0 {
		return Prompt{}, errors.New("target text tokens must not be empty")
	}

	total := 2 + len(refTextTokens) + len(targetTextTokens) + len(refCodes)
	limit := a.contextSize - a.reserve
	if total > limit {
		return Prompt{}, fmt.Errorf(
			"%w: prompt needs %d tokens, limit is %d (%d-token window minus %d reserved for generation)",
			ErrContextOverflow, total, limit, a.contextSize, a.reserve,
		)
	}

	tokens := make([]int64, 0, total)
	tokens = append(tokens, a.tmpl.BOS)
	tokens = append(tokens, refTextTokens...)
	tokens = append(tokens, targetTextTokens...)
	tokens = append(tokens, a.tmpl.SpeechStart)
	for _, code := range refCodes {
		tokens = append(tokens, code+a.tmpl.SpeechOffset)
	}

	return Prompt{
		Tokens:    tokens,
		RefFrames: len(refCodes),
		Budget:    a.contextSize - total,
	}, nil
}

// ContextSize reports the configured window.
func (a *Assembler) ContextSize() int { return a.contextSize }
