//go:build !ascend || !cgo

package acl

import (
	"fmt"

	"github.com/easydeploy/infercore/ml"
	"github.com/easydeploy/infercore/ml/backend/om"
)

func init() {
	om.RegisterDriver("acl", func() (om.Driver, error) {
		return nil, fmt.Errorf("%w: acl driver requires the ascend build tag and cgo", ml.ErrBackendUnavailable)
	})
}
