//go:build onnx && cgo

// MODUL: onnx
// ZWECK: InferCore-Backend auf Basis der ONNX Runtime
// INPUT: .onnx Modell-Pfad, optionale Blob-Shapes, Thread-Anzahl
// OUTPUT: Blob-Container, Inferenz-Ergebnisse in Host-Tensoren
// NEBENEFFEKTE: Alloziert ONNX Runtime Ressourcen, mit Driver "cuda" GPU Memory
// ABHAENGIGKEITEN: onnxruntime_go, Shared Library aus INFERCORE_ORT_LIBRARY
// HINWEISE: Close() MUSS aufgerufen werden

package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/easydeploy/infercore/envconfig"
	"github.com/easydeploy/infercore/ml"
)

// CoreType is the registered backend name.
const CoreType ml.CoreType = "onnx"

func init() {
	ml.RegisterBackend(CoreType, func(p ml.Params) (ml.InferCore, error) { return New(p) })
}

// ============================================================================
// Runtime (referenzgezaehlt)
// ============================================================================

var env = &environment{
	initialized: ort.IsInitialized,
	init: func() error {
		if lib := envconfig.OrtLibrary(); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		return ort.InitializeEnvironment()
	},
	destroy: ort.DestroyEnvironment,
}

// ============================================================================
// Typen
// ============================================================================

var types = map[ort.TensorElementDataType]ml.DType{
	ort.TensorElementDataTypeFloat:    ml.DTypeF32,
	ort.TensorElementDataTypeFloat16:  ml.DTypeF16,
	ort.TensorElementDataTypeBFloat16: ml.DTypeBF16,
	ort.TensorElementDataTypeDouble:   ml.DTypeF64,
	ort.TensorElementDataTypeInt8:     ml.DTypeI8,
	ort.TensorElementDataTypeInt16:    ml.DTypeI16,
	ort.TensorElementDataTypeInt32:    ml.DTypeI32,
	ort.TensorElementDataTypeInt64:    ml.DTypeI64,
	ort.TensorElementDataTypeUint8:    ml.DTypeU8,
	ort.TensorElementDataTypeUint16:   ml.DTypeU16,
	ort.TensorElementDataTypeUint32:   ml.DTypeU32,
	ort.TensorElementDataTypeUint64:   ml.DTypeU64,
	ort.TensorElementDataTypeBool:     ml.DTypeBool,
}

type blob struct {
	shape  ml.Shape
	dtype  ml.DType
	native ort.TensorElementDataType
}

// ============================================================================
// Core
// ============================================================================

// Core runs an ONNX model through a DynamicAdvancedSession.
type Core struct {
	ml.BaseCore

	name    string
	session *ort.DynamicAdvancedSession

	inputs, outputs *ml.ShapeMap
	blobs           map[string]blob

	mu       sync.Mutex
	released bool
}

// New loads the model at p.ModelPath. Driver "cuda" appends the CUDA
// execution provider on device p.DeviceID.
func New(p ml.Params) (*Core, error) {
	c := &Core{name: fmt.Sprintf("%s:%s", CoreType, p.ModelPath), blobs: make(map[string]blob)}
	fail := func(op string, err error) error {
		return &ml.InitError{Backend: string(CoreType), Op: op, Err: err}
	}

	if err := env.acquire(); err != nil {
		return nil, fail("init runtime", err)
	}

	session, err := c.open(p)
	if err != nil {
		env.release()
		return nil, err
	}
	c.session = session
	return c, nil
}

func (c *Core) open(p ml.Params) (*ort.DynamicAdvancedSession, error) {
	fail := func(op string, err error) error {
		return &ml.InitError{Backend: string(CoreType), Op: op, Err: err}
	}

	ins, outs, err := ort.GetInputOutputInfo(p.ModelPath)
	if err != nil {
		return nil, fail("read model info", err)
	}
	if c.inputs, err = c.resolve(ins, p.Inputs); err != nil {
		return nil, fail("resolve inputs", err)
	}
	if c.outputs, err = c.resolve(outs, p.Outputs); err != nil {
		return nil, fail("resolve outputs", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fail("session options", err)
	}
	defer opts.Destroy()

	if p.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(p.NumThreads); err != nil {
			return nil, fail("session options", err)
		}
	}
	if p.Driver == "cuda" {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fail("cuda provider", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(p.DeviceID)}); err != nil {
			return nil, fail("cuda provider", err)
		}
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, fail("cuda provider", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(p.ModelPath, c.inputs.Names(), c.outputs.Names(), opts)
	if err != nil {
		return nil, fail("create session", err)
	}
	slog.Debug("onnx core ready", "model", p.ModelPath, "inputs", c.inputs, "outputs", c.outputs)
	return session, nil
}

func (c *Core) resolve(infos []ort.InputOutputInfo, declared *ml.ShapeMap) (*ml.ShapeMap, error) {
	byName := make(map[string]ort.InputOutputInfo, len(infos))
	for _, info := range infos {
		if info.OrtValueType != ort.ONNXTypeTensor {
			return nil, fmt.Errorf("%w: %q is not a tensor", ml.ErrUnsupportedType, info.Name)
		}
		if _, ok := types[info.DataType]; !ok {
			return nil, fmt.Errorf("%w: %q has element type %v", ml.ErrUnsupportedType, info.Name, info.DataType)
		}
		if _, ok := c.blobs[info.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ml.ErrDuplicateBlob, info.Name)
		}
		byName[info.Name] = info
	}

	shapes := ml.NewShapeMap()
	if declared != nil {
		if err := declared.Validate(); err != nil {
			return nil, err
		}
		for name, shape := range declared.All() {
			info, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("%w: %q not declared by model", ml.ErrMissingBlob, name)
			}
			shapes.Set(name, shape)
			c.blobs[name] = blob{shape: shape, dtype: types[info.DataType], native: info.DataType}
		}
		return shapes, nil
	}

	for _, info := range infos {
		shape := make(ml.Shape, len(info.Dimensions))
		for i, d := range info.Dimensions {
			if d <= 0 {
				return nil, fmt.Errorf("%w: %q dimension %d is dynamic, declare its shape", ml.ErrInvalidShape, info.Name, i)
			}
			shape[i] = int(d)
		}
		shapes.Set(info.Name, shape)
		c.blobs[info.Name] = blob{shape: shape, dtype: types[info.DataType], native: info.DataType}
	}
	if err := shapes.Validate(); err != nil {
		return nil, err
	}
	return shapes, nil
}

func (c *Core) AllocBlobsBuffer() (*ml.Blobs, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, ml.ErrReleased
	}

	blobs := ml.NewBlobs()
	for _, names := range [][]string{c.inputs.Names(), c.outputs.Names()} {
		for _, name := range names {
			b := c.blobs[name]
			t, err := ml.NewTensor(name, b.dtype, b.shape)
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

// Inference wraps the host buffers as runtime tensors and runs the session.
// Outputs are written in place.
func (c *Core) Inference(ctx context.Context, pkg ml.Package) error {
	fail := func(name string, err error) error {
		return &ml.ExecError{Backend: c.name, Stage: ml.StageInference, Blob: name, Err: err}
	}

	if !c.mu.TryLock() {
		return fail("", ml.ErrBusy)
	}
	defer c.mu.Unlock()
	if c.released {
		return fail("", ml.ErrReleased)
	}

	blobs := pkg.Blobs()
	if blobs == nil {
		return fail("", ml.ErrNoBlobs)
	}

	var values []ort.Value
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()

	wrap := func(names []string) ([]ort.Value, error) {
		out := make([]ort.Value, 0, len(names))
		for _, name := range names {
			t, err := blobs.Tensor(name)
			if err != nil {
				return nil, fail(name, err)
			}
			if err := t.Validate(); err != nil {
				return nil, fail(name, err)
			}
			b := c.blobs[name]
			want, err := b.shape.ByteSize(b.dtype)
			if err != nil {
				return nil, fail(name, err)
			}
			if t.ByteSize() != want {
				return nil, fail(name, &ml.SizeMismatchError{Blob: name, Host: t.ByteSize(), Device: want})
			}

			dims := make([]int64, len(b.shape))
			for i, d := range b.shape {
				dims[i] = int64(d)
			}
			v, err := ort.NewCustomDataTensor(ort.NewShape(dims...), t.Bytes(), b.native)
			if err != nil {
				return nil, fail(name, err)
			}
			values = append(values, v)
			out = append(out, v)
		}
		return out, nil
	}

	in, err := wrap(c.inputs.Names())
	if err != nil {
		return err
	}
	out, err := wrap(c.outputs.Names())
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fail("", err)
	}
	if err := c.session.Run(in, out); err != nil {
		return fail("", err)
	}
	return nil
}

func (c *Core) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true

	if err := c.session.Destroy(); err != nil {
		slog.Warn("failed to destroy onnx session", "core", c.name, "error", err)
	}
	env.release()
	return nil
}

func (c *Core) Inputs() *ml.ShapeMap  { return c.inputs.Clone() }
func (c *Core) Outputs() *ml.ShapeMap { return c.outputs.Clone() }
func (c *Core) Type() ml.CoreType     { return CoreType }
func (c *Core) Name() string          { return c.name }
