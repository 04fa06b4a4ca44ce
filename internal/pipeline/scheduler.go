// Package pipeline turns the backbone's token stream into finished audio:
// tokens are grouped into chunks, chunks are decoded through the codec, and
// decoded segments are trimmed, blended, watermarked, and delivered in order.
package pipeline

// Chunk is one codec decode unit. Tokens carries Overlap leading tokens
// repeated from the previous chunk so the codec sees continuous context at
// the seam; Tokens[Overlap:] are the fresh tokens this chunk contributes.
type Chunk struct {
	Index   int
	Tokens  []int64
	Overlap int
	Final   bool
}

// ChunkScheduler groups generated tokens into chunks. With chunkFrames > 0
// a chunk is cut every chunkFrames fresh tokens; with chunkFrames <= 0 all
// tokens accumulate into a single final chunk. Concatenating Tokens[Overlap:]
// across the emitted chunks reproduces the generated stream exactly.
type ChunkScheduler struct {
	chunkFrames   int
	overlapFrames int

	pending []int64
	tail    []int64
	index   int
}

func NewScheduler(chunkFrames, overlapFrames int) *ChunkScheduler {
	if overlapFrames < 0 {
		overlapFrames = 0
	}
	return &ChunkScheduler{
		chunkFrames:   chunkFrames,
		overlapFrames: overlapFrames,
	}
}

// Push adds one token and returns a chunk when one is ready.
func (s *ChunkScheduler) Push(token int64) (Chunk, bool) {
	s.pending = append(s.pending, token)
	if s.chunkFrames <= 0 || len(s.pending) < s.chunkFrames {
		return Chunk{}, false
	}
	return s.cut(false), true
}

// Flush emits the remaining tokens as the final chunk. The chunk may carry
// zero fresh tokens when the stream length was an exact chunk multiple; it
// still marks the end of the session.
func (s *ChunkScheduler) Flush() Chunk {
	return s.cut(true)
}

func (s *ChunkScheduler) cut(final bool) Chunk {
	tokens := make([]int64, 0, len(s.tail)+len(s.pending))
	tokens = append(tokens, s.tail...)
	tokens = append(tokens, s.pending...)

	ch := Chunk{
		Index:   s.index,
		Tokens:  tokens,
		Overlap: len(s.tail),
		Final:   final,
	}
	s.index++

	n := s.overlapFrames
	if n > len(s.pending) {
		n = len(s.pending)
	}
	s.tail = append(s.tail[:0], s.pending[len(s.pending)-n:]...)
	s.pending = s.pending[:0]

	return ch
}
