// MODUL: om
// ZWECK: InferCore-Backend fuer NPU-Treiber-Stacks mit Status-Code-API
// INPUT: Kompiliertes Modell-Artefakt, Blob-Shapes, Geraete-Index
// OUTPUT: Blob-Container, Inferenz-Ergebnisse in Host-Tensoren
// NEBENEFFEKTE: Belegt Geraete-Kontext, Stream, Modell und Geraetespeicher
// ABHAENGIGKEITEN: Driver-Implementierung (sim, acl)
// HINWEISE: Treiber registrieren sich per RegisterDriver in init()

package om

import (
	"fmt"
	"slices"
	"sync"

	"github.com/easydeploy/infercore/ml"
)

// ============================================================================
// Opake Treiber-Handles
// ============================================================================

type (
	// Context is a device execution context.
	Context uintptr
	// Stream is a device execution stream.
	Stream uintptr
	// Dataset is a list of device buffers passed to Execute.
	Dataset uintptr
	// DevicePtr is an address in device memory.
	DevicePtr uintptr
	// ModelID identifies a loaded model.
	ModelID uint32
)

// RunMode is the addressing mode reported by the driver. RunModeDevice has
// distinct device memory reached by explicit host/device copies, RunModeHost
// addresses device buffers as host memory.
type RunMode int

const (
	RunModeDevice RunMode = iota
	RunModeHost
)

func (m RunMode) String() string {
	if m == RunModeHost {
		return "host"
	}
	return "device"
}

// MemcpyKind is the copy direction passed to the driver.
type MemcpyKind int

const (
	MemcpyHostToHost MemcpyKind = iota
	MemcpyHostToDevice
	MemcpyDeviceToHost
	MemcpyDeviceToDevice
)

// copyKinds returns the upload and download kinds for a run mode.
func copyKinds(m RunMode) (upload, download MemcpyKind) {
	if m == RunModeDevice {
		return MemcpyHostToDevice, MemcpyDeviceToHost
	}
	return MemcpyHostToHost, MemcpyHostToHost
}

// DataType is the driver's native element type enum.
type DataType int32

const (
	DataTypeUndefined DataType = -1
	DataTypeFloat     DataType = 0
	DataTypeFloat16   DataType = 1
	DataTypeInt8      DataType = 2
	DataTypeInt32     DataType = 3
	DataTypeUint8     DataType = 4
	DataTypeInt16     DataType = 6
	DataTypeUint16    DataType = 7
	DataTypeUint32    DataType = 8
	DataTypeInt64     DataType = 9
	DataTypeUint64    DataType = 10
	DataTypeDouble    DataType = 11
	DataTypeBool      DataType = 12
	DataTypeBF16      DataType = 27
)

// ============================================================================
// Driver Interface
// ============================================================================

// Runtime covers process-wide initialization.
type Runtime interface {
	Init() error
	Finalize() error
}

// Devices covers device binding, contexts and streams.
type Devices interface {
	DeviceCount() (int, error)
	DeviceInfo(id int) (ml.DeviceInfo, error)
	SetDevice(id int) error
	ResetDevice(id int) error
	CreateContext(id int) (Context, error)
	DestroyContext(Context) error
	SetCurrentContext(Context) error
	CreateStream() (Stream, error)
	DestroyStream(Stream) error
	SynchronizeStream(Stream) error
	RunMode() (RunMode, error)
}

// Models covers model loading, introspection and execution.
type Models interface {
	LoadModel(path string) (ModelID, error)
	UnloadModel(ModelID) error
	CreateDesc(ModelID) (ModelDesc, error)
	DestroyDesc(ModelDesc) error
	Execute(id ModelID, inputs, outputs Dataset) error
}

// Memory covers device memory, copies and datasets.
type Memory interface {
	Malloc(size int) (DevicePtr, error)
	Free(DevicePtr) error
	MemcpyToDevice(dst DevicePtr, dstMax int, src []byte, kind MemcpyKind) error
	MemcpyToHost(dst []byte, src DevicePtr, count int, kind MemcpyKind) error
	CreateDataset() (Dataset, error)
	AddDatasetBuffer(ds Dataset, ptr DevicePtr, size int) error
	// DestroyDataset releases the dataset and its buffer descriptors, not
	// the device memory they point to.
	DestroyDataset(Dataset) error
}

// Driver is a complete NPU driver stack.
type Driver interface {
	Name() string
	Runtime
	Devices
	Models
	Memory
}

// ModelDesc describes the inputs and outputs of a loaded model.
type ModelDesc interface {
	NumInputs() int
	NumOutputs() int
	InputName(i int) (string, error)
	OutputName(i int) (string, error)
	InputDims(i int) ([]int64, error)
	OutputDims(i int) ([]int64, error)
	InputSize(i int) int
	OutputSize(i int) int
	InputDataType(i int) DataType
	OutputDataType(i int) DataType
	InputIndexByName(name string) (int, error)
	OutputIndexByName(name string) (int, error)
}

// DriverError is a failed driver call with its status code.
type DriverError struct {
	Driver string
	Op     string
	Code   int
	Err    error
}

func (e *DriverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s failed (code %d): %v", e.Driver, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s failed (code %d)", e.Driver, e.Op, e.Code)
}

func (e *DriverError) Unwrap() error { return e.Err }

// ============================================================================
// Treiber-Registrierung
// ============================================================================

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]func() (Driver, error))
)

// RegisterDriver makes a driver available by name. Registering the same name
// twice panics. open must return the same Driver value on every call, the
// runtime reference counts are kept per Driver value.
func RegisterDriver(name string, open func() (Driver, error)) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if _, ok := drivers[name]; ok {
		panic("om: driver already registered: " + name)
	}
	drivers[name] = open
}

// OpenDriver returns the registered driver name.
func OpenDriver(name string) (Driver, error) {
	driversMu.RLock()
	open, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: om driver %q", ml.ErrUnknownBackend, name)
	}
	return open()
}

// Drivers lists registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ListDevices reports all devices of a driver.
func ListDevices(d Driver) ([]ml.DeviceInfo, error) {
	n, err := d.DeviceCount()
	if err != nil {
		return nil, err
	}

	devices := make([]ml.DeviceInfo, 0, n)
	for i := range n {
		info, err := d.DeviceInfo(i)
		if err != nil {
			return nil, err
		}
		devices = append(devices, info)
	}
	return devices, nil
}
