// Package server exposes synthesis over HTTP: POST /tts for batch or
// chunked streaming WAV, GET /references for the pre-encoded registry, and
// GET /health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-air-tts/internal/audio"
	"github.com/example/go-air-tts/internal/config"
	"github.com/example/go-air-tts/internal/tts"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Synthesizer is the slice of the tts service the handler needs.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (tts.Result, error)
	SynthesizeStream(ctx context.Context, req tts.Request, out chan<- tts.PCMChunk) (tts.Result, error)
	References() []tts.Reference
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		workers:        2,
		requestTimeout: 120 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /tts.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	synth Synthesizer
	opts  options
	sem   chan struct{} // semaphore for worker pool
	log   *slog.Logger
}

// NewHandler returns an http.Handler serving /health, /references, and POST /tts.
func NewHandler(synth Synthesizer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth: synth,
		opts:  opts,
		log:   opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/references", h.handleReferences)
	mux.HandleFunc("/tts", h.handleTTS)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleReferences(w http.ResponseWriter, _ *http.Request) {
	refs := h.synth.References()
	if refs == nil {
		refs = []tts.Reference{}
	}
	writeJSON(w, http.StatusOK, refs)
}

type ttsRequest struct {
	Text      string  `json:"text"`
	Language  string  `json:"language"`
	Reference string  `json:"reference"` // registry id
	RefText   string  `json:"ref_text"`
	RefCodes  []int64 `json:"ref_codes"`
	Stream    bool    `json:"stream"`
}

func (h *handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	// Acquire a worker slot, honouring cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	synthReq := tts.Request{
		Text:     req.Text,
		Language: req.Language,
		RefID:    req.Reference,
		RefText:  req.RefText,
		RefCodes: req.RefCodes,
	}

	if req.Stream {
		h.streamTTS(ctx, cancel, w, r, synthReq)
		return
	}
	h.batchTTS(ctx, w, r, synthReq)
}

func (h *handler) batchTTS(ctx context.Context, w http.ResponseWriter, r *http.Request, req tts.Request) {
	start := time.Now()
	res, err := h.synth.Synthesize(ctx, req)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.logFailure(r, req, durationMS, err)
		status, msg := statusFor(err)
		writeError(w, status, msg)
		return
	}

	wav, err := audio.EncodeWAV(res.Samples)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "synthesis complete",
		slog.String("reference", req.RefID),
		slog.Int("text_len", len(req.Text)),
		slog.Int("steps", res.Steps),
		slog.Int64("duration_ms", durationMS),
		slog.Int("wav_bytes", len(wav)),
		slog.Bool("cancelled", res.Cancelled),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// streamTTS writes a WAV stream with an unknown-length header, flushing one
// chunk of PCM as each pipeline chunk lands. Once audio bytes are on the
// wire, errors can only truncate the stream.
func (h *handler) streamTTS(ctx context.Context, cancel context.CancelFunc, w http.ResponseWriter, r *http.Request, req tts.Request) {
	out := make(chan tts.PCMChunk, 4)

	type outcome struct {
		res tts.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.synth.SynthesizeStream(ctx, req, out)
		done <- outcome{res, err}
	}()

	flusher, _ := w.(http.Flusher)
	start := time.Now()
	headerWritten := false
	clientGone := false

	for ch := range out {
		if clientGone {
			continue
		}
		if !headerWritten {
			w.Header().Set("Content-Type", "audio/wav")
			w.WriteHeader(http.StatusOK)
			if _, err := audio.WriteWAVHeaderStreaming(w); err != nil {
				cancel()
				clientGone = true
				continue
			}
			headerWritten = true
		}
		if len(ch.Samples) == 0 {
			continue
		}
		if _, err := audio.WritePCM16Samples(w, ch.Samples); err != nil {
			cancel()
			clientGone = true
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	oc := <-done
	durationMS := time.Since(start).Milliseconds()

	if oc.err != nil {
		if !headerWritten {
			status, msg := statusFor(oc.err)
			writeError(w, status, msg)
		}
		h.logFailure(r, req, durationMS, oc.err)
		return
	}

	if !headerWritten {
		// Nothing was generated; still answer with a valid empty stream.
		w.Header().Set("Content-Type", "audio/wav")
		w.WriteHeader(http.StatusOK)
		_, _ = audio.WriteWAVHeaderStreaming(w)
	}

	h.log.InfoContext(r.Context(), "stream complete",
		slog.String("reference", req.RefID),
		slog.Int("text_len", len(req.Text)),
		slog.Int("steps", oc.res.Steps),
		slog.Int("chunks", oc.res.Chunks),
		slog.Int64("duration_ms", durationMS),
		slog.Bool("cancelled", oc.res.Cancelled),
	)
}

func (h *handler) logFailure(r *http.Request, req tts.Request, durationMS int64, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		h.log.WarnContext(r.Context(), "synthesis timed out",
			slog.String("reference", req.RefID),
			slog.Int("text_len", len(req.Text)),
			slog.Int64("duration_ms", durationMS),
		)
		return
	}
	h.log.ErrorContext(r.Context(), "synthesis failed",
		slog.String("reference", req.RefID),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.String("error", err.Error()),
	)
}

// statusFor maps the synthesis error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "synthesis timed out"
	case errors.Is(err, tts.ErrContextOverflow):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, tts.ErrEmptyText),
		errors.Is(err, tts.ErrMissingReference),
		errors.Is(err, tts.ErrInvalidReferenceAudio),
		errors.Is(err, tts.ErrUnsupportedLanguage),
		errors.Is(err, tts.ErrPhonemization):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server — wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

type Server struct {
	cfg             config.Config
	tts             *tts.Service
	shutdownTimeout time.Duration
}

func New(cfg config.Config, svc *tts.Service) *Server {
	return &Server{
		cfg:             cfg,
		tts:             svc,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	svc := s.tts
	if svc == nil {
		var err error
		svc, err = tts.NewService(s.cfg, slog.Default())
		if err != nil {
			return fmt.Errorf("initialize service: %w", err)
		}
		defer svc.Close()
	}

	h := NewHandler(svc,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks the health endpoint of a running server.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
