package config

import (
	"fmt"
	"strings"
)

const (
	// BackboneONNX runs the full-precision backbone through ONNX Runtime.
	BackboneONNX = "onnx"
	// BackboneExec drives a quantized (GGUF) runner process over stdio.
	BackboneExec = "exec"
)

const (
	CodecONNX = "onnx"
)

// NormalizeBackbone canonicalizes a backbone backend name.
// An empty string selects the full-precision default.
func NormalizeBackbone(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackboneONNX
	}
	switch backend {
	case BackboneONNX, BackboneExec:
		return backend, nil
	case "full", "full-precision":
		return BackboneONNX, nil
	case "quantized", "gguf":
		return BackboneExec, nil
	default:
		return "", fmt.Errorf(
			"invalid backbone backend %q (expected %s|%s|full|quantized)",
			raw, BackboneONNX, BackboneExec,
		)
	}
}

// NormalizeCodec canonicalizes a codec backend name.
func NormalizeCodec(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = CodecONNX
	}
	switch backend {
	case CodecONNX:
		return backend, nil
	default:
		return "", fmt.Errorf("invalid codec backend %q (expected %s)", raw, CodecONNX)
	}
}
