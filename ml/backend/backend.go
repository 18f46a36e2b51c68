// Package backend registers every compiled-in InferCore backend and driver.
package backend

import (
	_ "github.com/easydeploy/infercore/ml/backend/om"
	_ "github.com/easydeploy/infercore/ml/backend/om/acl"
	_ "github.com/easydeploy/infercore/ml/backend/om/sim"
	_ "github.com/easydeploy/infercore/ml/backend/onnx"
)
