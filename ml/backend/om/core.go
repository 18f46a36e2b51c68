// core.go - Ressourcen-Manager einer om Core-Instanz
//
// Lebenszyklus:
//
//	Uninitialized -> DeviceBound -> ModelLoaded -> BuffersReady -> (Ready <-> Executing) -> Released
//
// Jeder Konstruktionsschritt legt seine Ressource in einen scope. Schlaegt
// ein Schritt fehl, wird der scope abgewickelt, bevor der Fehler zurueckgeht.
package om

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/easydeploy/infercore/envconfig"
	"github.com/easydeploy/infercore/logutil"
	"github.com/easydeploy/infercore/ml"
)

// CoreType is the registered backend name.
const CoreType ml.CoreType = "om"

// slotAlignment is the byte alignment of each blob slot in a device block.
const slotAlignment = 32

func init() {
	ml.RegisterBackend(CoreType, func(p ml.Params) (ml.InferCore, error) {
		name := cmp.Or(p.Driver, envconfig.Driver())
		d, err := OpenDriver(name)
		if err != nil {
			return nil, &ml.InitError{Backend: string(CoreType), Op: "open driver", Err: err}
		}
		return New(d, p)
	})
}

// State is the lifecycle state of a core.
type State int32

const (
	StateUninitialized State = iota
	StateDeviceBound
	StateModelLoaded
	StateBuffersReady
	StateReady
	StateExecuting
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDeviceBound:
		return "device-bound"
	case StateModelLoaded:
		return "model-loaded"
	case StateBuffersReady:
		return "buffers-ready"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type slot struct {
	ptr  DevicePtr
	size int
}

// block is one contiguous device allocation split into per-index slots and
// wrapped in a dataset.
type block struct {
	base    DevicePtr
	size    int
	slots   []slot
	dataset Dataset
}

// binding is the resolved name table of one direction.
type binding struct {
	shapes *ml.ShapeMap
	index  map[string]int
	native map[string]DataType
}

// Core runs compiled models through a Driver.
type Core struct {
	ml.BaseCore

	name     string
	driver   Driver
	deviceID int

	runMode          RunMode
	upload, download MemcpyKind

	context Context
	stream  Stream
	model   ModelID
	desc    ModelDesc

	inputs, outputs binding
	types           map[DataType]ml.DType
	in, out         block

	res   *scope
	mu    sync.Mutex
	state atomic.Int32
}

// New constructs a core on driver d. On failure every resource acquired so
// far is released and an *ml.InitError is returned.
func New(d Driver, p ml.Params) (*Core, error) {
	c := &Core{
		name:     fmt.Sprintf("%s/%s:%d", CoreType, d.Name(), p.DeviceID),
		driver:   d,
		deviceID: p.DeviceID,
	}
	c.res = &scope{owner: c.name}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	steps := []struct {
		state State
		run   func() error
	}{
		{StateDeviceBound, c.bindDevice},
		{StateModelLoaded, func() error { return c.loadModel(p) }},
		{StateBuffersReady, c.allocDevice},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			c.res.Close()
			c.setState(StateReleased)
			slog.Debug("om core construction failed", "core", c.name, "error", err)
			return nil, err
		}
		c.setState(step.state)
	}

	c.setState(StateReady)
	slog.Debug("om core ready", "core", c.name, "model", p.ModelPath, "run_mode", c.runMode,
		"inputs", c.inputs.shapes, "outputs", c.outputs.shapes)
	return c, nil
}

func (c *Core) fail(op string, err error) error {
	return &ml.InitError{Backend: c.name, Op: op, Err: err}
}

// bindDevice: Runtime, Geraet, Kontext, Stream, Run-Mode
func (c *Core) bindDevice() error {
	release, err := acquireRuntime(c.driver)
	if err != nil {
		return c.fail("init runtime", err)
	}
	c.res.push("runtime", release)

	release, err = acquireDevice(c.driver, c.deviceID)
	if err != nil {
		return c.fail("set device", err)
	}
	c.res.push(fmt.Sprintf("device %d", c.deviceID), release)

	ctx, err := c.driver.CreateContext(c.deviceID)
	if err != nil {
		return c.fail("create context", err)
	}
	c.context = own(c.res, "context", ctx, c.driver.DestroyContext)

	stream, err := c.driver.CreateStream()
	if err != nil {
		return c.fail("create stream", err)
	}
	c.stream = own(c.res, "stream", stream, c.driver.DestroyStream)

	mode, err := c.driver.RunMode()
	if err != nil {
		return c.fail("get run mode", err)
	}
	c.runMode = mode
	c.upload, c.download = copyKinds(mode)
	return nil
}

// loadModel: Modell laden, Deskriptor holen, Blob-Namen aufloesen
func (c *Core) loadModel(p ml.Params) error {
	id, err := c.driver.LoadModel(p.ModelPath)
	if err != nil {
		return c.fail("load model", fmt.Errorf("%s: %w", p.ModelPath, err))
	}
	c.model = own(c.res, "model", id, c.driver.UnloadModel)

	desc, err := c.driver.CreateDesc(id)
	if err != nil {
		return c.fail("create model desc", err)
	}
	c.desc = own(c.res, "model desc", desc, c.driver.DestroyDesc)

	if c.inputs, err = resolve(inputPort(desc), p.Inputs); err != nil {
		return c.fail("resolve inputs", err)
	}
	if c.outputs, err = resolve(outputPort(desc), p.Outputs); err != nil {
		return c.fail("resolve outputs", err)
	}
	for _, name := range c.outputs.shapes.Names() {
		if _, ok := c.inputs.index[name]; ok {
			return c.fail("resolve outputs", fmt.Errorf("%w: %q is both input and output", ml.ErrDuplicateBlob, name))
		}
	}
	return nil
}

// allocDevice: Typ-Tabelle, Geraetespeicher und Datasets
func (c *Core) allocDevice() error {
	c.types = newTypeTable()

	in, err := c.allocBlock(inputPort(c.desc))
	if err != nil {
		return c.fail("alloc input memory", err)
	}
	out, err := c.allocBlock(outputPort(c.desc))
	if err != nil {
		return c.fail("alloc output memory", err)
	}
	c.in, c.out = in, out

	for _, b := range []struct {
		binding
		block
	}{{c.inputs, c.in}, {c.outputs, c.out}} {
		for name, shape := range b.shapes.All() {
			host, err := shape.ByteSize(c.hostType(b.native[name]))
			if err != nil {
				return c.fail("alloc device memory", fmt.Errorf("blob %q: %w", name, err))
			}
			if device := b.slots[b.index[name]].size; host != device {
				slog.Warn("declared blob shape does not match device size", "core", c.name, "blob", name,
					"shape", shape, "host_bytes", host, "device_bytes", device)
			}
		}
	}
	return nil
}

func (c *Core) allocBlock(p port) (block, error) {
	b := block{slots: make([]slot, p.count)}

	offsets := make([]int, p.count)
	for i := range p.count {
		offsets[i] = b.size
		b.slots[i].size = p.size(i)
		b.size += align(b.slots[i].size, slotAlignment)
	}
	if b.size == 0 {
		return block{}, fmt.Errorf("%w: model %ss need no device memory", ml.ErrNoBlobs, p.kind)
	}

	base, err := c.driver.Malloc(b.size)
	if err != nil {
		return block{}, err
	}
	b.base = own(c.res, p.kind+" memory", base, c.driver.Free)

	ds, err := c.driver.CreateDataset()
	if err != nil {
		return block{}, err
	}
	b.dataset = own(c.res, p.kind+" dataset", ds, c.driver.DestroyDataset)

	for i := range b.slots {
		b.slots[i].ptr = base + DevicePtr(offsets[i])
		if err := c.driver.AddDatasetBuffer(ds, b.slots[i].ptr, b.slots[i].size); err != nil {
			return block{}, fmt.Errorf("%s %d: %w", p.kind, i, err)
		}
	}

	logutil.Trace("device block allocated", "core", c.name, "kind", p.kind, "bytes", b.size, "slots", len(b.slots))
	return b, nil
}

func align(n, a int) int {
	return (n + a - 1) / a * a
}

func (c *Core) hostType(native DataType) ml.DType {
	if t, ok := c.types[native]; ok {
		return t
	}
	return defaultType
}

// ============================================================================
// InferCore
// ============================================================================

// AllocBlobsBuffer allocates a container with one host tensor per resolved
// input and output. Element types follow the model descriptor.
func (c *Core) AllocBlobsBuffer() (*ml.Blobs, error) {
	if c.State() == StateReleased {
		return nil, ml.ErrReleased
	}
	if len(c.types) == 0 {
		return nil, ml.ErrTypeTableEmpty
	}
	if c.inputs.shapes.Len() == 0 || c.outputs.shapes.Len() == 0 {
		return nil, ml.ErrNoBlobs
	}

	blobs := ml.NewBlobs()
	for _, b := range []binding{c.inputs, c.outputs} {
		for name, shape := range b.shapes.All() {
			t, err := ml.NewTensor(name, c.hostType(b.native[name]), shape)
			if err != nil {
				return nil, err
			}
			if err := blobs.Add(t); err != nil {
				return nil, err
			}
		}
	}
	return blobs, nil
}

// Inference copies all inputs to the device, executes the model, copies all
// outputs back and synchronizes the stream. The context is checked between
// input copies, device execution itself cannot be interrupted.
func (c *Core) Inference(ctx context.Context, pkg ml.Package) error {
	fail := func(blob string, err error) error {
		return &ml.ExecError{Backend: c.name, Stage: ml.StageInference, Blob: blob, Err: err}
	}

	if err := c.begin(); err != nil {
		return fail("", err)
	}
	defer c.end()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := c.driver.SetCurrentContext(c.context); err != nil {
		return fail("", err)
	}

	blobs := pkg.Blobs()
	if blobs == nil {
		return fail("", ml.ErrNoBlobs)
	}

	for _, name := range c.inputs.shapes.Names() {
		if err := ctx.Err(); err != nil {
			return fail(name, err)
		}

		t, s, err := c.bind(blobs, name, c.inputs, c.in)
		if err != nil {
			return fail(name, err)
		}
		if err := c.driver.MemcpyToDevice(s.ptr, s.size, t.Bytes(), c.upload); err != nil {
			return fail(name, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fail("", err)
	}
	if err := c.driver.Execute(c.model, c.in.dataset, c.out.dataset); err != nil {
		return fail("", err)
	}

	for _, name := range c.outputs.shapes.Names() {
		t, s, err := c.bind(blobs, name, c.outputs, c.out)
		if err != nil {
			return fail(name, err)
		}
		if err := c.driver.MemcpyToHost(t.Bytes(), s.ptr, s.size, c.download); err != nil {
			return fail(name, err)
		}
	}

	if err := c.driver.SynchronizeStream(c.stream); err != nil {
		return fail("", err)
	}
	return nil
}

// bind looks up the tensor for name and checks it against its device slot.
func (c *Core) bind(blobs *ml.Blobs, name string, b binding, blk block) (*ml.Tensor, slot, error) {
	t, err := blobs.Tensor(name)
	if err != nil {
		return nil, slot{}, err
	}
	if err := t.Validate(); err != nil {
		return nil, slot{}, err
	}

	s := blk.slots[b.index[name]]
	if t.ByteSize() != s.size {
		return nil, slot{}, &ml.SizeMismatchError{Blob: name, Host: t.ByteSize(), Device: s.size}
	}
	return t, s, nil
}

func (c *Core) begin() error {
	if c.State() == StateReleased {
		return ml.ErrReleased
	}
	if !c.mu.TryLock() {
		return ml.ErrBusy
	}
	if c.State() == StateReleased {
		c.mu.Unlock()
		return ml.ErrReleased
	}
	c.setState(StateExecuting)
	return nil
}

func (c *Core) end() {
	c.setState(StateReady)
	c.mu.Unlock()
}

// Close releases all device resources in reverse acquisition order. Release
// failures are logged, Close never fails and may be called repeatedly.
func (c *Core) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateReleased {
		return nil
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := c.driver.SetCurrentContext(c.context); err != nil {
		slog.Warn("failed to select context for release", "core", c.name, "error", err)
	}

	if err := c.res.Close(); err != nil {
		slog.Debug("om core released with errors", "core", c.name, "errors", len(unjoin(err)))
	}
	c.setState(StateReleased)
	slog.Debug("om core released", "core", c.name)
	return nil
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func (c *Core) Inputs() *ml.ShapeMap  { return c.inputs.shapes.Clone() }
func (c *Core) Outputs() *ml.ShapeMap { return c.outputs.shapes.Clone() }
func (c *Core) Type() ml.CoreType     { return CoreType }
func (c *Core) Name() string          { return c.name }

// State returns the current lifecycle state.
func (c *Core) State() State { return State(c.state.Load()) }

func (c *Core) setState(s State) { c.state.Store(int32(s)) }

// RunMode returns the addressing mode queried at construction.
func (c *Core) RunMode() RunMode { return c.runMode }

// ============================================================================
// Beschreibung fuer inspect
// ============================================================================

// BlobInfo describes one resolved blob.
type BlobInfo struct {
	Name        string
	Output      bool
	Index       int
	Shape       ml.Shape
	Native      DataType
	Host        ml.DType
	DeviceBytes int
}

// Describe lists all resolved blobs, inputs first.
func (c *Core) Describe() []BlobInfo {
	var infos []BlobInfo
	for _, b := range []struct {
		binding
		block
		output bool
	}{{c.inputs, c.in, false}, {c.outputs, c.out, true}} {
		for name, shape := range b.shapes.All() {
			i := b.index[name]
			infos = append(infos, BlobInfo{
				Name:        name,
				Output:      b.output,
				Index:       i,
				Shape:       shape,
				Native:      b.native[name],
				Host:        c.hostType(b.native[name]),
				DeviceBytes: b.slots[i].size,
			})
		}
	}
	return infos
}

var _ ml.InferCore = (*Core)(nil)
