package watermark

import (
	"math"
	"testing"
)

func TestKeyed_Deterministic(t *testing.T) {
	in := []float32{0.1, -0.2, 0.3, 0}

	a := NewKeyed("key").Apply(in, 0)
	b := NewKeyed("key").Apply(in, 0)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs across applications", i)
		}
	}
}

func TestKeyed_DifferentKeysDiffer(t *testing.T) {
	in := make([]float32, 256)

	a := NewKeyed("alpha").Apply(in, 0)
	b := NewKeyed("beta").Apply(in, 0)

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different keys produced identical signals")
	}
}

func TestKeyed_ChunkingInvariant(t *testing.T) {
	in := make([]float32, 1000)
	for i := range in {
		in[i] = float32(i%7) * 0.01
	}

	k := NewKeyed("session")
	whole := k.Apply(in, 0)

	head := k.Apply(in[:400], 0)
	tail := k.Apply(in[400:], 400)

	for i := range head {
		if whole[i] != head[i] {
			t.Fatalf("head sample %d differs from whole-buffer application", i)
		}
	}
	for i := range tail {
		if whole[400+i] != tail[i] {
			t.Fatalf("tail sample %d differs from whole-buffer application", i)
		}
	}
}

func TestKeyed_SignalIsImperceptible(t *testing.T) {
	in := make([]float32, 4096)
	out := NewKeyed("k").Apply(in, 0)

	for i, s := range out {
		if math.Abs(float64(s)) > amplitude {
			t.Fatalf("sample %d magnitude %v exceeds amplitude bound", i, s)
		}
	}
}

func TestNone_PassThrough(t *testing.T) {
	in := []float32{1, 2, 3}
	out := None{}.Apply(in, 99)
	for i := range in {
		if out[i] != in[i] {
			t.Fatal("None watermarker modified samples")
		}
	}
}
