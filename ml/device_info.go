// device_info.go
// Dieses Modul enthaelt die DeviceInfo-Struktur, die Backends und Treiber
// fuer ihre Geraete melden.

package ml

import (
	"fmt"

	"github.com/easydeploy/infercore/format"
)

// DeviceInfo describes one device a backend can bind to.
type DeviceInfo struct {
	// Backend is the core type or driver that reported the device.
	Backend string `json:"backend"`

	// ID is the index passed as Params.DeviceID.
	ID int `json:"id"`

	// Name is the name of the device as labeled by the driver.
	Name string `json:"name"`

	// Description is a longer user-friendly identification.
	Description string `json:"description,omitempty"`

	TotalMemory uint64 `json:"total_memory"`
	FreeMemory  uint64 `json:"free_memory"`

	// Unified is set when host and device share one address space and no
	// explicit copies are needed.
	Unified bool `json:"unified,omitempty"`
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s:%d %s (%s free of %s)", d.Backend, d.ID, d.Name,
		format.HumanBytes2(d.FreeMemory), format.HumanBytes2(d.TotalMemory))
}
