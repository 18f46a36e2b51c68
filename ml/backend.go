// backend.go - InferCore-Interface und Backend-Registrierung
// Dieses Modul definiert den Vertrag, den jedes Backend erfuellt, und die
// Laufzeit-Auswahl des Backends ueber einen Namen.
package ml

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// CoreType names a backend implementation, e.g. "om" or "onnx".
type CoreType string

// InferCore is the uniform contract every inference backend implements.
// One instance is one device-execution lane and is not safe for concurrent
// use; run several instances for parallelism.
type InferCore interface {
	// AllocBlobsBuffer allocates a fresh container matching the resolved
	// input and output shapes. May be called repeatedly.
	AllocBlobsBuffer() (*Blobs, error)

	PreProcess(ctx context.Context, pkg Package) error
	Inference(ctx context.Context, pkg Package) error
	PostProcess(ctx context.Context, pkg Package) error

	// Inputs and Outputs return copies of the resolved shape maps.
	Inputs() *ShapeMap
	Outputs() *ShapeMap

	Type() CoreType
	Name() string

	// Close releases all device resources. Safe to call more than once.
	Close() error
}

// BaseCore provides the default no-op PreProcess and PostProcess stages.
type BaseCore struct{}

func (BaseCore) PreProcess(context.Context, Package) error  { return nil }
func (BaseCore) PostProcess(context.Context, Package) error { return nil }

// Params controls how a core is constructed.
type Params struct {
	// ModelPath is the compiled model artifact.
	ModelPath string

	// Inputs and Outputs declare blob shapes. When nil the backend
	// introspects them from the model.
	Inputs  *ShapeMap
	Outputs *ShapeMap

	// DeviceID is honored at construction only.
	DeviceID int

	// Driver selects the driver stack for backends that support several.
	Driver string

	// NumThreads limits host threads where the backend supports it.
	NumThreads int
}

// Clone deep-copies the parameters.
func (p Params) Clone() Params {
	p.Inputs = p.Inputs.Clone()
	p.Outputs = p.Outputs.Clone()
	return p
}

// Constructor builds a core from parameters.
type Constructor func(Params) (InferCore, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[CoreType]Constructor)
)

// RegisterBackend makes a backend available by type. Registering the same
// type twice panics.
func RegisterBackend(t CoreType, f Constructor) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, ok := backends[t]; ok {
		panic("backend: backend already registered: " + string(t))
	}

	backends[t] = f
}

// Backends lists all registered backend types, sorted.
func Backends() []CoreType {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	types := make([]CoreType, 0, len(backends))
	for t := range backends {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func lookupBackend(t CoreType) (Constructor, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	f, ok := backends[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, t)
	}
	return f, nil
}

// NewCore constructs a core of type t.
func NewCore(t CoreType, p Params) (InferCore, error) {
	f, err := lookupBackend(t)
	if err != nil {
		return nil, err
	}
	return f(p.Clone())
}
