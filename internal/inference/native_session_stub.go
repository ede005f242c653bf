//go:build !onnxruntime

package inference

import "fmt"

func openNativeSession(string, Config) (Session, error) {
	return nil, fmt.Errorf("%w: native backend requires build tag 'onnxruntime'", ErrUnsupportedBackend)
}
