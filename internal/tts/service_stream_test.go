package tts

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collectStream(t *testing.T, svc *Service, req Request) (Result, []float32, []PCMChunk) {
	t.Helper()

	out := make(chan PCMChunk, 64)
	res, err := svc.SynthesizeStream(context.Background(), req, out)
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var samples []float32
	var chunks []PCMChunk
	for ch := range out {
		chunks = append(chunks, ch)
		samples = append(samples, ch.Samples...)
	}
	return res, samples, chunks
}

func TestSynthesizeStream_MatchesBatch(t *testing.T) {
	const steps = 23

	batchRes, err := newTestService(t, steps).Synthesize(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	streamRes, streamed, chunks := collectStream(t, newTestService(t, steps), testRequest())

	if streamRes.Steps != batchRes.Steps {
		t.Errorf("steps = %d; batch produced %d", streamRes.Steps, batchRes.Steps)
	}
	if len(streamed) != len(batchRes.Samples) {
		t.Fatalf("streamed %d samples; batch produced %d", len(streamed), len(batchRes.Samples))
	}
	for i := range streamed {
		if math.Abs(float64(streamed[i]-batchRes.Samples[i])) > 1e-4 {
			t.Fatalf("sample %d: stream %v, batch %v", i, streamed[i], batchRes.Samples[i])
		}
	}

	if len(chunks) < 2 {
		t.Fatalf("stream produced %d chunks; want several", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Fatalf("chunk %d has index %d", i, ch.Index)
		}
		if ch.Final != (i == len(chunks)-1) {
			t.Fatalf("chunk %d final flag misplaced", i)
		}
	}
}

func TestSynthesizeStream_ClosesChannelOnError(t *testing.T) {
	svc := newTestService(t, 4)
	req := testRequest()
	req.Text = ""

	out := make(chan PCMChunk, 4)
	if _, err := svc.SynthesizeStream(context.Background(), req, out); err == nil {
		t.Fatal("expected validation error")
	}

	if _, open := <-out; open {
		t.Fatal("channel left open after failed stream")
	}
}

func TestSynthesizeStream_Cancellation(t *testing.T) {
	svc := newTestService(t, 200)
	svc.cfg.Synth.QueueDepth = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan PCMChunk)
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := svc.SynthesizeStream(ctx, testRequest(), out)
		done <- outcome{res, err}
	}()

	var received int
	for range out {
		received++
		if received == 1 {
			cancel()
		}
	}
	got := <-done

	if got.err != nil {
		t.Fatalf("cancelled stream returned error: %v", got.err)
	}
	if !got.res.Cancelled {
		t.Error("result not marked cancelled")
	}
	if received == 0 {
		t.Error("no chunks delivered before cancellation")
	}
}
