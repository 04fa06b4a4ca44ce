// Package phoneme converts raw text to phoneme strings through an external
// grapheme-to-phoneme engine. The synthesis pipeline treats phonemization as
// a collaborator: any implementation that maps text to an espeak-style IPA
// string can be plugged in.
package phoneme

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedLanguage is returned for language tags without a registered
// phonemization rule set.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrPhonemization wraps failures from the underlying g2p engine.
var ErrPhonemization = errors.New("phonemization failed")

// Phonemizer maps text in one language to a phoneme string.
type Phonemizer interface {
	Phonemize(ctx context.Context, text string) (string, error)
	Language() string
}

// cleanup is a language-specific post-processing hook applied to raw
// phonemizer output.
type cleanup func(string) string

// cleanups holds per-language output fixups. French output carries syllable
// dashes that the tokenizer vocabulary does not contain.
var cleanups = map[string]cleanup{
	"fr-fr": func(p string) string { return strings.ReplaceAll(p, "-", "") },
}

// supportedLanguages lists the language tags the espeak voice inventory
// covers. Tags are matched case-insensitively.
var supportedLanguages = map[string]struct{}{
	"en":    {},
	"en-us": {},
	"en-gb": {},
	"fr-fr": {},
	"de":    {},
	"es":    {},
	"it":    {},
	"pt":    {},
	"nl":    {},
}

// NormalizeLanguage validates and canonicalizes a language tag.
func NormalizeLanguage(tag string) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(tag))
	if lang == "" {
		return "", ErrUnsupportedLanguage
	}
	if _, ok := supportedLanguages[lang]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	return lang, nil
}

func cleanupFor(lang string) cleanup {
	if fn, ok := cleanups[lang]; ok {
		return fn
	}
	return func(p string) string { return p }
}
