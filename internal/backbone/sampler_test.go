package backbone

import "testing"

func TestSampler_GreedyPicksArgmax(t *testing.T) {
	s := NewSampler(SamplerConfig{Temperature: 0})
	logits := []float32{0.1, 2.5, -1.0, 2.4}
	if got := s.Sample(logits); got != 1 {
		t.Errorf("Sample = %d; want 1", got)
	}
}

func TestSampler_SeededRunsAreIdentical(t *testing.T) {
	logits := []float32{1.0, 0.9, 0.8, 0.7, 0.6}

	a := NewSampler(SamplerConfig{Temperature: 1.0, TopK: 3, Seed: 42})
	b := NewSampler(SamplerConfig{Temperature: 1.0, TopK: 3, Seed: 42})

	for i := 0; i < 100; i++ {
		x, y := a.Sample(logits), b.Sample(logits)
		if x != y {
			t.Fatalf("draw %d diverged: %d vs %d", i, x, y)
		}
	}
}

func TestSampler_TopKRestrictsSupport(t *testing.T) {
	logits := []float32{5.0, 4.0, -100, -100, -100}
	s := NewSampler(SamplerConfig{Temperature: 1.0, TopK: 2, Seed: 7})

	for i := 0; i < 200; i++ {
		tok := s.Sample(logits)
		if tok != 0 && tok != 1 {
			t.Fatalf("draw %d produced token %d outside top-k support", i, tok)
		}
	}
}

func TestSampler_TopPRestrictsSupport(t *testing.T) {
	// Token 0 holds nearly all probability mass; top-p 0.5 keeps only it.
	logits := []float32{10, 0, 0, 0}
	s := NewSampler(SamplerConfig{Temperature: 1.0, TopP: 0.5, Seed: 3})

	for i := 0; i < 100; i++ {
		if tok := s.Sample(logits); tok != 0 {
			t.Fatalf("draw %d produced token %d; want 0", i, tok)
		}
	}
}

func TestSampler_EmptyLogits(t *testing.T) {
	s := NewSampler(SamplerConfig{})
	if got := s.Sample(nil); got != 0 {
		t.Errorf("Sample(nil) = %d; want 0", got)
	}
}
