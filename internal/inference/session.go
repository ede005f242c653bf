package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	BackendPython = "python"
	BackendNative = "native"
)

var ErrUnsupportedBackend = errors.New("unsupported onnx backend")

// Inputs holds one encoded sequence.
type Inputs struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Session runs an ONNX model over one sequence and returns the first output
// as rows of logits: one row per position for token classification, a single
// row for sequence classification.
type Session interface {
	Run(ctx context.Context, in Inputs) ([][]float32, error)
	Close() error
}

type Config struct {
	Backend       string
	SharedLibrary string
}

// backend resolves the configured backend name; TASKNLP_ONNX_BACKEND wins.
func (c Config) backend() string {
	if env := strings.ToLower(strings.TrimSpace(os.Getenv("TASKNLP_ONNX_BACKEND"))); env != "" {
		return env
	}
	if b := strings.ToLower(strings.TrimSpace(c.Backend)); b != "" {
		return b
	}
	return BackendPython
}

// Open creates a session for the model at modelPath.
func Open(modelPath string, cfg Config) (Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model missing: %w", err)
	}
	switch b := cfg.backend(); b {
	case BackendPython:
		return newPythonSession(modelPath), nil
	case BackendNative:
		return openNativeSession(modelPath, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, b)
	}
}
