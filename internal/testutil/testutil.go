// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
package testutil

import (
	"os"
	"os/exec"
	"testing"
)

// RequireEspeak skips the test if no espeak-ng compatible executable is
// found in PATH or at the path given by AIRTTS_PHONEME_COMMAND.
func RequireEspeak(tb testing.TB) {
	tb.Helper()

	exe := os.Getenv("AIRTTS_PHONEME_COMMAND")
	if exe == "" {
		exe = "espeak-ng"
	}

	if _, err := exec.LookPath(exe); err != nil {
		tb.Skipf("phonemizer binary not available (%q not in PATH); set AIRTTS_PHONEME_COMMAND to override", exe)
	}
}

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks the ORT_LIBRARY_PATH and AIRTTS_ORT_LIB env vars, then
// common system library paths.
func RequireONNXRuntime(tb testing.TB) {
	tb.Helper()

	for _, env := range []string{"ORT_LIBRARY_PATH", "AIRTTS_ORT_LIB"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return
			}
			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
		}
	}

	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or AIRTTS_ORT_LIB")
}

// RequireModelBundle skips the test if the model bundle directory named by
// AIRTTS_MODEL_DIR is absent.
func RequireModelBundle(tb testing.TB) {
	tb.Helper()

	dir := os.Getenv("AIRTTS_MODEL_DIR")
	if dir == "" {
		tb.Skip("model bundle not configured; set AIRTTS_MODEL_DIR")
	}
	if _, err := os.Stat(dir); err != nil {
		tb.Skipf("model bundle not available at %q: %v", dir, err)
	}
}
