// Package sim - Simulierter NPU-Treiber
//
// Reiner Go-Treiber mit der Semantik einer Status-Code-NPU-API. Er zaehlt
// jede lebende Ressource (Runtime, Geraete, Kontexte, Streams, Modelle,
// Deskriptoren, Speicher, Datasets), damit Tests Lecks nachweisen koennen,
// und erlaubt Fehlerinjektion pro Treiber-Operation.
//
// Modelle sind GGUF-Dateien mit Architektur "om-sim", siehe WriteModel.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/easydeploy/infercore/ml"
	"github.com/easydeploy/infercore/ml/backend/om"
)

// Status-Codes im Stil der Treiber-API
const (
	codeInvalidParam   = 100000
	codeUninitialized  = 100001
	codeRepeatInit     = 100002
	codeInvalidFile    = 100003
	codeInvalidModel   = 100004
	codeInvalidDevice  = 100005
	codeBadAlloc       = 200000
	codeInvalidHandle  = 107000
	codeInternalError  = 500000
	codeInjectedFault  = 500001
	defaultDevices     = 1
	defaultMemoryBytes = 1 << 30
)

// Operation names accepted by FailOn.
const (
	OpInit              = "Init"
	OpFinalize          = "Finalize"
	OpSetDevice         = "SetDevice"
	OpResetDevice       = "ResetDevice"
	OpCreateContext     = "CreateContext"
	OpDestroyContext    = "DestroyContext"
	OpSetCurrentContext = "SetCurrentContext"
	OpCreateStream      = "CreateStream"
	OpDestroyStream     = "DestroyStream"
	OpSynchronizeStream = "SynchronizeStream"
	OpRunMode           = "RunMode"
	OpLoadModel         = "LoadModel"
	OpUnloadModel       = "UnloadModel"
	OpCreateDesc        = "CreateDesc"
	OpDestroyDesc       = "DestroyDesc"
	OpExecute           = "Execute"
	OpMalloc            = "Malloc"
	OpFree              = "Free"
	OpMemcpyToDevice    = "MemcpyToDevice"
	OpMemcpyToHost      = "MemcpyToHost"
	OpCreateDataset     = "CreateDataset"
	OpAddDatasetBuffer  = "AddDatasetBuffer"
	OpDestroyDataset    = "DestroyDataset"
)

// ErrInjected is wrapped by faults injected without an explicit error.
var ErrInjected = errors.New("injected fault")

// Option configures a Driver.
type Option func(*Driver)

// WithRunMode sets the addressing mode reported by RunMode.
func WithRunMode(m om.RunMode) Option {
	return func(d *Driver) { d.runMode = m }
}

// WithDevices sets the number of devices and the memory of each.
func WithDevices(n int, memory uint64) Option {
	return func(d *Driver) {
		d.numDevices = n
		d.memory = memory
	}
}

// WithName overrides the driver name.
func WithName(name string) Option {
	return func(d *Driver) { d.name = name }
}

// Resources counts live driver resources.
type Resources struct {
	Runtime     int
	Devices     int
	Contexts    int
	Streams     int
	Models      int
	Descs       int
	Allocations int
	Datasets    int
	DeviceBytes uint64
}

// Zero reports whether nothing is allocated.
func (r Resources) Zero() bool { return r == Resources{} }

// Stats counts driver calls since creation.
type Stats struct {
	Inits     int
	Loads     int
	Executes  int
	Syncs     int
	CopiesIn  int
	CopiesOut int
}

// Driver is a simulated NPU driver. It is safe for concurrent use.
type Driver struct {
	name       string
	runMode    om.RunMode
	numDevices int
	memory     uint64

	mu          sync.Mutex
	initialized bool
	bound       map[int]bool
	current     om.Context
	contexts    map[om.Context]int
	streams     map[om.Stream]struct{}
	models      map[om.ModelID]*model
	descs       map[*desc]struct{}
	allocs      map[om.DevicePtr]*allocation
	datasets    map[om.Dataset][]buffer
	used        []uint64
	nextHandle  uintptr
	nextAddr    uintptr
	faults      map[string]error
	stats       Stats
}

// NewDriver creates a driver with one device and 1 GiB of device memory
// unless configured otherwise.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		name:       "sim",
		runMode:    om.RunModeDevice,
		numDevices: defaultDevices,
		memory:     defaultMemoryBytes,
		bound:      make(map[int]bool),
		contexts:   make(map[om.Context]int),
		streams:    make(map[om.Stream]struct{}),
		models:     make(map[om.ModelID]*model),
		descs:      make(map[*desc]struct{}),
		allocs:     make(map[om.DevicePtr]*allocation),
		datasets:   make(map[om.Dataset][]buffer),
		nextAddr:   0x10000000,
		faults:     make(map[string]error),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.used = make([]uint64, d.numDevices)
	return d
}

var defaultDriver = sync.OnceValue(func() *Driver { return NewDriver() })

// Default returns the process-wide driver registered as "sim".
func Default() *Driver { return defaultDriver() }

func init() {
	om.RegisterDriver("sim", func() (om.Driver, error) { return Default(), nil })
}

func (d *Driver) Name() string { return d.name }

// FailOn makes every following call of op fail with err until ClearFaults.
func (d *Driver) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	d.faults[op] = err
}

// ClearFaults removes all injected faults.
func (d *Driver) ClearFaults() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.faults)
}

// Live returns the live resource counts.
func (d *Driver) Live() Resources {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := Resources{
		Devices:     len(d.bound),
		Contexts:    len(d.contexts),
		Streams:     len(d.streams),
		Models:      len(d.models),
		Descs:       len(d.descs),
		Allocations: len(d.allocs),
		Datasets:    len(d.datasets),
	}
	if d.initialized {
		r.Runtime = 1
	}
	for _, a := range d.allocs {
		r.DeviceBytes += uint64(len(a.mem))
	}
	return r
}

// Stats returns call counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// call checks injected faults and the runtime state. Callers hold d.mu.
func (d *Driver) call(op string, needInit bool) error {
	if err, ok := d.faults[op]; ok {
		return d.errorf(op, codeInjectedFault, err)
	}
	if needInit && !d.initialized {
		return d.errorf(op, codeUninitialized, errors.New("runtime not initialized"))
	}
	return nil
}

func (d *Driver) errorf(op string, code int, err error) error {
	return &om.DriverError{Driver: d.name, Op: op, Code: code, Err: err}
}

func (d *Driver) handle() uintptr {
	d.nextHandle++
	return d.nextHandle
}

// ============================================================================
// Runtime
// ============================================================================

func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpInit, false); err != nil {
		return err
	}
	if d.initialized {
		return d.errorf(OpInit, codeRepeatInit, errors.New("runtime already initialized"))
	}
	d.initialized = true
	d.stats.Inits++
	return nil
}

func (d *Driver) Finalize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpFinalize, true); err != nil {
		return err
	}
	d.initialized = false
	return nil
}

// ============================================================================
// Geraete, Kontexte, Streams
// ============================================================================

func (d *Driver) DeviceCount() (int, error) {
	return d.numDevices, nil
}

func (d *Driver) DeviceInfo(id int) (ml.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id < 0 || id >= d.numDevices {
		return ml.DeviceInfo{}, d.errorf("DeviceInfo", codeInvalidDevice, fmt.Errorf("device %d out of range", id))
	}
	return ml.DeviceInfo{
		Backend:     d.name,
		ID:          id,
		Name:        fmt.Sprintf("Simulated NPU %d", id),
		Description: "in-process simulated neural processing unit",
		TotalMemory: d.memory,
		FreeMemory:  d.memory - d.used[id],
		Unified:     d.runMode == om.RunModeHost,
	}, nil
}

func (d *Driver) SetDevice(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpSetDevice, true); err != nil {
		return err
	}
	if id < 0 || id >= d.numDevices {
		return d.errorf(OpSetDevice, codeInvalidDevice, fmt.Errorf("device %d out of range", id))
	}
	d.bound[id] = true
	return nil
}

func (d *Driver) ResetDevice(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpResetDevice, true); err != nil {
		return err
	}
	if !d.bound[id] {
		return d.errorf(OpResetDevice, codeInvalidDevice, fmt.Errorf("device %d not bound", id))
	}
	delete(d.bound, id)
	return nil
}

func (d *Driver) CreateContext(id int) (om.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpCreateContext, true); err != nil {
		return 0, err
	}
	if !d.bound[id] {
		return 0, d.errorf(OpCreateContext, codeInvalidDevice, fmt.Errorf("device %d not bound", id))
	}
	ctx := om.Context(d.handle())
	d.contexts[ctx] = id
	d.current = ctx
	return ctx, nil
}

func (d *Driver) DestroyContext(ctx om.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpDestroyContext, true); err != nil {
		return err
	}
	if _, ok := d.contexts[ctx]; !ok {
		return d.errorf(OpDestroyContext, codeInvalidHandle, fmt.Errorf("unknown context %#x", ctx))
	}
	delete(d.contexts, ctx)
	if d.current == ctx {
		d.current = 0
	}
	return nil
}

func (d *Driver) SetCurrentContext(ctx om.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpSetCurrentContext, true); err != nil {
		return err
	}
	if _, ok := d.contexts[ctx]; !ok {
		return d.errorf(OpSetCurrentContext, codeInvalidHandle, fmt.Errorf("unknown context %#x", ctx))
	}
	d.current = ctx
	return nil
}

func (d *Driver) CreateStream() (om.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpCreateStream, true); err != nil {
		return 0, err
	}
	if d.current == 0 {
		return 0, d.errorf(OpCreateStream, codeInvalidHandle, errors.New("no current context"))
	}
	s := om.Stream(d.handle())
	d.streams[s] = struct{}{}
	return s, nil
}

func (d *Driver) DestroyStream(s om.Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpDestroyStream, true); err != nil {
		return err
	}
	if _, ok := d.streams[s]; !ok {
		return d.errorf(OpDestroyStream, codeInvalidHandle, fmt.Errorf("unknown stream %#x", s))
	}
	delete(d.streams, s)
	return nil
}

func (d *Driver) SynchronizeStream(s om.Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpSynchronizeStream, true); err != nil {
		return err
	}
	if _, ok := d.streams[s]; !ok {
		return d.errorf(OpSynchronizeStream, codeInvalidHandle, fmt.Errorf("unknown stream %#x", s))
	}
	d.stats.Syncs++
	return nil
}

func (d *Driver) RunMode() (om.RunMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpRunMode, true); err != nil {
		return 0, err
	}
	return d.runMode, nil
}

var _ om.Driver = (*Driver)(nil)
