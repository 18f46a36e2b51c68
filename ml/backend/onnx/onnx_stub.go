//go:build !onnx || !cgo

package onnx

import (
	"fmt"

	"github.com/easydeploy/infercore/ml"
)

// CoreType is the registered backend name.
const CoreType ml.CoreType = "onnx"

func init() {
	ml.RegisterBackend(CoreType, func(ml.Params) (ml.InferCore, error) {
		return nil, &ml.InitError{
			Backend: string(CoreType),
			Op:      "init runtime",
			Err:     fmt.Errorf("%w: build with -tags onnx", ml.ErrBackendUnavailable),
		}
	})
}
