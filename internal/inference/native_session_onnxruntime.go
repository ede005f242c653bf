//go:build onnxruntime

package inference

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment(sharedLibrary string) error {
	envOnce.Do(func() {
		if sharedLibrary != "" {
			ort.SetSharedLibraryPath(sharedLibrary)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

type nativeSession struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
}

func openNativeSession(modelPath string, cfg Config) (Session, error) {
	if err := initEnvironment(cfg.SharedLibrary); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model io: %w", err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has no outputs", modelPath)
	}
	inputNames := make([]string, len(inputs))
	for i, in := range inputs {
		inputNames[i] = in.Name
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &nativeSession{session: session, inputNames: inputNames}, nil
}

func (s *nativeSession) Run(ctx context.Context, in Inputs) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqLen := int64(len(in.InputIDs))
	shape := ort.NewShape(1, seqLen)
	values := make([]ort.Value, 0, len(s.inputNames))
	defer func() {
		for _, v := range values {
			_ = v.Destroy()
		}
	}()
	for _, name := range s.inputNames {
		data := make([]int64, seqLen)
		switch {
		case strings.Contains(name, "input_ids"):
			copy(data, in.InputIDs)
		case strings.Contains(name, "attention_mask"):
			copy(data, in.AttentionMask)
		case strings.Contains(name, "token_type_ids"):
			copy(data, in.TokenTypeIDs)
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create input %s: %w", name, err)
		}
		values = append(values, t)
	}

	outputs := []ort.Value{nil}
	if err := s.session.Run(values, outputs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() { _ = outputs[0].Destroy() }()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	return reshapeLogits(out.GetShape(), out.GetData())
}

func (s *nativeSession) Close() error {
	return s.session.Destroy()
}

// reshapeLogits drops the batch dimension of a [1, n, labels] or [1, labels]
// output.
func reshapeLogits(shape ort.Shape, data []float32) ([][]float32, error) {
	var rows, cols int64
	switch len(shape) {
	case 2:
		rows, cols = 1, shape[1]
	case 3:
		rows, cols = shape[1], shape[2]
	default:
		return nil, fmt.Errorf("unexpected output rank %d", len(shape))
	}
	if int64(len(data)) < rows*cols {
		return nil, fmt.Errorf("output has %d values, shape %v", len(data), shape)
	}
	out := make([][]float32, rows)
	for r := int64(0); r < rows; r++ {
		row := make([]float32, cols)
		copy(row, data[r*cols:(r+1)*cols])
		out[r] = row
	}
	return out, nil
}
