// Package tokenizer encodes phoneme strings into backbone vocabulary IDs.
// The primary implementation uses a SentencePiece model shipped alongside
// the backbone weights.
package tokenizer

// Tokenizer encodes a phoneme string into token IDs.
type Tokenizer interface {
	// Encode tokenizes text and returns token IDs.
	Encode(text string) ([]int64, error)
}
