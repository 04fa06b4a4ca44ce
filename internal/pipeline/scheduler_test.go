package pipeline

import "testing"

func pushAll(s *ChunkScheduler, n int) []Chunk {
	var chunks []Chunk
	for i := 0; i < n; i++ {
		if ch, ok := s.Push(int64(i)); ok {
			chunks = append(chunks, ch)
		}
	}
	return chunks
}

// freshTokens concatenates Tokens[Overlap:] across chunks.
func freshTokens(chunks []Chunk) []int64 {
	var out []int64
	for _, ch := range chunks {
		out = append(out, ch.Tokens[ch.Overlap:]...)
	}
	return out
}

func TestScheduler_Streaming(t *testing.T) {
	s := NewScheduler(5, 2)
	chunks := pushAll(s, 12)
	chunks = append(chunks, s.Flush())

	if len(chunks) != 3 {
		t.Fatalf("chunk count = %d; want 3", len(chunks))
	}

	if chunks[0].Overlap != 0 || len(chunks[0].Tokens) != 5 {
		t.Errorf("chunk 0 = %+v; want 5 tokens, no overlap", chunks[0])
	}
	if chunks[1].Overlap != 2 || len(chunks[1].Tokens) != 7 {
		t.Errorf("chunk 1 = %+v; want 7 tokens, overlap 2", chunks[1])
	}
	if chunks[1].Tokens[0] != 3 || chunks[1].Tokens[1] != 4 {
		t.Errorf("chunk 1 overlap = %v; want tail of chunk 0", chunks[1].Tokens[:2])
	}
	if !chunks[2].Final {
		t.Error("flush chunk not marked final")
	}
	if chunks[0].Final || chunks[1].Final {
		t.Error("intermediate chunk marked final")
	}

	fresh := freshTokens(chunks)
	if len(fresh) != 12 {
		t.Fatalf("fresh token count = %d; want 12", len(fresh))
	}
	for i, tok := range fresh {
		if tok != int64(i) {
			t.Fatalf("fresh token %d = %d; stream not conserved", i, tok)
		}
	}
}

func TestScheduler_ExactMultiple(t *testing.T) {
	s := NewScheduler(5, 2)
	chunks := pushAll(s, 10)
	final := s.Flush()

	if len(chunks) != 2 {
		t.Fatalf("chunk count = %d; want 2", len(chunks))
	}
	// The final chunk carries only the repeated overlap; no fresh tokens.
	if len(final.Tokens) != final.Overlap {
		t.Errorf("final chunk = %+v; want overlap only", final)
	}
	if got := freshTokens(append(chunks, final)); len(got) != 10 {
		t.Errorf("fresh token count = %d; want 10", len(got))
	}
}

func TestScheduler_Batch(t *testing.T) {
	s := NewScheduler(0, 0)
	if chunks := pushAll(s, 37); len(chunks) != 0 {
		t.Fatalf("batch scheduler emitted %d chunks before flush", len(chunks))
	}

	ch := s.Flush()
	if !ch.Final || ch.Overlap != 0 || len(ch.Tokens) != 37 {
		t.Fatalf("batch chunk = %+v; want 37 tokens, no overlap, final", ch)
	}
}

func TestScheduler_EmptyFlush(t *testing.T) {
	s := NewScheduler(5, 2)
	ch := s.Flush()
	if !ch.Final || len(ch.Tokens) != 0 {
		t.Fatalf("empty flush = %+v; want empty final chunk", ch)
	}
}

func TestScheduler_Indexing(t *testing.T) {
	s := NewScheduler(3, 1)
	chunks := pushAll(s, 9)
	chunks = append(chunks, s.Flush())
	for i, ch := range chunks {
		if ch.Index != i {
			t.Fatalf("chunk %d has index %d", i, ch.Index)
		}
	}
}
