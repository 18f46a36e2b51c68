package sim

import (
	"fmt"
	"os"
	"slices"

	"github.com/easydeploy/infercore/fs/gguf"
	"github.com/easydeploy/infercore/ml/backend/om"
)

// Architecture is the general.architecture of simulated model files.
const Architecture = "om-sim"

// Kernels a simulated model can run.
const (
	// KernelZeros clears every output.
	KernelZeros = "zeros"
	// KernelIdentity copies input i to output i.
	KernelIdentity = "identity"
	// KernelAbsDiff computes the channel mean of |in0 - in1| per pixel,
	// a minimal stereo matching cost. Inputs [N,C,H,W], output [N,1,H,W].
	KernelAbsDiff = "absdiff"
	// KernelAffine computes out = in*scale + bias elementwise on f32.
	KernelAffine = "affine"
)

const affineParams = "affine.params"

// IODesc declares one model input or output.
type IODesc struct {
	Name string
	Dims []int64
	Type om.DataType

	// MaxBytes overrides the device size, for models with dynamic dims.
	MaxBytes int
}

func (io IODesc) size() int {
	if io.MaxBytes > 0 {
		return io.MaxBytes
	}
	n := int64(1)
	for _, d := range io.Dims {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return int(n) * io.Type.Size()
}

// Model is a simulated compiled model.
type Model struct {
	Kernel  string
	Inputs  []IODesc
	Outputs []IODesc

	// Scale and Bias parameterize KernelAffine.
	Scale, Bias float32
}

// WriteModel writes m as a simulated model file.
func WriteModel(path string, m Model) error {
	kv := gguf.KV{
		"general.architecture": Architecture,
		"general.name":         m.Kernel,
		"kernel":               m.Kernel,
	}

	var tensors []gguf.Tensor
	if m.Kernel == KernelAffine {
		tensors = append(tensors, gguf.Tensor{
			Name:  affineParams,
			Shape: []uint64{2},
			Type:  gguf.TensorF32,
			Data:  encodeF32([]float32{m.Scale, m.Bias}),
		})
	}

	for _, dir := range []struct {
		key string
		ios []IODesc
	}{{"inputs", m.Inputs}, {"outputs", m.Outputs}} {
		names := make([]string, len(dir.ios))
		for i, io := range dir.ios {
			names[i] = io.Name
			prefix := dir.key + "." + io.Name
			kv[prefix+".dims"] = slices.Clone(io.Dims)
			kv[prefix+".type"] = int32(io.Type)
			if io.MaxBytes > 0 {
				kv[prefix+".max_bytes"] = uint64(io.MaxBytes)
			}
		}
		kv[dir.key] = names
	}

	return gguf.WriteFile(path, kv, tensors)
}

// readModel parses a simulated model file.
func readModel(path string) (*Model, error) {
	f, err := gguf.Open(path)
	if err != nil {
		return nil, err
	}
	if arch := f.KV.Architecture(); arch != Architecture {
		return nil, fmt.Errorf("architecture %q is not %q", arch, Architecture)
	}
	if err := f.KV.Require("kernel", "inputs", "outputs"); err != nil {
		return nil, err
	}

	m := &Model{Kernel: f.KV.String("kernel")}
	for _, dir := range []struct {
		key string
		ios *[]IODesc
	}{{"inputs", &m.Inputs}, {"outputs", &m.Outputs}} {
		names, ok := f.KV.Strings(dir.key)
		if !ok {
			return nil, fmt.Errorf("%s is not a string array", dir.key)
		}
		for _, name := range names {
			prefix := dir.key + "." + name
			dims, ok := f.KV.Ints(prefix + ".dims")
			if !ok {
				return nil, fmt.Errorf("%s: missing dims", prefix)
			}
			typ, _ := f.KV.Value(prefix + ".type")
			t, ok := typ.(int32)
			if !ok {
				return nil, fmt.Errorf("%s: missing type", prefix)
			}
			maxBytes, _ := f.KV.Value(prefix + ".max_bytes")
			mb, _ := maxBytes.(uint64)
			*dir.ios = append(*dir.ios, IODesc{Name: name, Dims: dims, Type: om.DataType(t), MaxBytes: int(mb)})
		}
	}

	if m.Kernel == KernelAffine {
		r, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer r.Close()

		data, err := f.ReadTensor(r, affineParams)
		if err != nil {
			return nil, err
		}
		params := decodeF32(data)
		m.Scale, m.Bias = params[0], params[1]
	}

	if err := validateKernel(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ============================================================================
// Treiber-Operationen fuer Modelle
// ============================================================================

type model struct {
	*Model
	id om.ModelID
}

type desc struct {
	m *Model
}

func (d *Driver) LoadModel(path string) (om.ModelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpLoadModel, true); err != nil {
		return 0, err
	}
	if _, ok := d.contexts[d.current]; !ok {
		return 0, d.errorf(OpLoadModel, codeInvalidHandle, fmt.Errorf("no current context"))
	}

	m, err := readModel(path)
	if os.IsNotExist(err) {
		return 0, d.errorf(OpLoadModel, codeInvalidFile, err)
	} else if err != nil {
		return 0, d.errorf(OpLoadModel, codeInvalidModel, err)
	}

	id := om.ModelID(d.handle())
	d.models[id] = &model{Model: m, id: id}
	d.stats.Loads++
	return id, nil
}

func (d *Driver) UnloadModel(id om.ModelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpUnloadModel, true); err != nil {
		return err
	}
	if _, ok := d.models[id]; !ok {
		return d.errorf(OpUnloadModel, codeInvalidHandle, fmt.Errorf("unknown model %d", id))
	}
	delete(d.models, id)
	return nil
}

func (d *Driver) CreateDesc(id om.ModelID) (om.ModelDesc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpCreateDesc, true); err != nil {
		return nil, err
	}
	m, ok := d.models[id]
	if !ok {
		return nil, d.errorf(OpCreateDesc, codeInvalidHandle, fmt.Errorf("unknown model %d", id))
	}
	ds := &desc{m: m.Model}
	d.descs[ds] = struct{}{}
	return ds, nil
}

func (d *Driver) DestroyDesc(md om.ModelDesc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpDestroyDesc, true); err != nil {
		return err
	}
	ds, ok := md.(*desc)
	if !ok {
		return d.errorf(OpDestroyDesc, codeInvalidHandle, fmt.Errorf("foreign descriptor %T", md))
	}
	if _, ok := d.descs[ds]; !ok {
		return d.errorf(OpDestroyDesc, codeInvalidHandle, fmt.Errorf("unknown descriptor"))
	}
	delete(d.descs, ds)
	return nil
}

func (d *Driver) Execute(id om.ModelID, inputs, outputs om.Dataset) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpExecute, true); err != nil {
		return err
	}
	m, ok := d.models[id]
	if !ok {
		return d.errorf(OpExecute, codeInvalidHandle, fmt.Errorf("unknown model %d", id))
	}

	in, err := d.dataset(inputs)
	if err != nil {
		return d.errorf(OpExecute, codeInvalidParam, err)
	}
	out, err := d.dataset(outputs)
	if err != nil {
		return d.errorf(OpExecute, codeInvalidParam, err)
	}
	if len(in) != len(m.Inputs) || len(out) != len(m.Outputs) {
		return d.errorf(OpExecute, codeInvalidParam, fmt.Errorf("dataset has %d/%d buffers, model needs %d/%d",
			len(in), len(out), len(m.Inputs), len(m.Outputs)))
	}
	for i, io := range m.Inputs {
		if len(in[i]) != io.size() {
			return d.errorf(OpExecute, codeInvalidParam, fmt.Errorf("input %d buffer has %d bytes, need %d", i, len(in[i]), io.size()))
		}
	}
	for i, io := range m.Outputs {
		if len(out[i]) != io.size() {
			return d.errorf(OpExecute, codeInvalidParam, fmt.Errorf("output %d buffer has %d bytes, need %d", i, len(out[i]), io.size()))
		}
	}

	if err := run(m.Model, in, out); err != nil {
		return d.errorf(OpExecute, codeInternalError, err)
	}
	d.stats.Executes++
	return nil
}

// ============================================================================
// ModelDesc
// ============================================================================

func (ds *desc) NumInputs() int  { return len(ds.m.Inputs) }
func (ds *desc) NumOutputs() int { return len(ds.m.Outputs) }

func (ds *desc) InputName(i int) (string, error) {
	return ioAt(ds.m.Inputs, i, func(io IODesc) string { return io.Name })
}
func (ds *desc) OutputName(i int) (string, error) {
	return ioAt(ds.m.Outputs, i, func(io IODesc) string { return io.Name })
}

func (ds *desc) InputDims(i int) ([]int64, error) {
	return ioAt(ds.m.Inputs, i, func(io IODesc) []int64 { return slices.Clone(io.Dims) })
}

func (ds *desc) OutputDims(i int) ([]int64, error) {
	return ioAt(ds.m.Outputs, i, func(io IODesc) []int64 { return slices.Clone(io.Dims) })
}

func (ds *desc) InputSize(i int) int {
	n, _ := ioAt(ds.m.Inputs, i, IODesc.size)
	return n
}

func (ds *desc) OutputSize(i int) int {
	n, _ := ioAt(ds.m.Outputs, i, IODesc.size)
	return n
}

func (ds *desc) InputDataType(i int) om.DataType {
	t, err := ioAt(ds.m.Inputs, i, func(io IODesc) om.DataType { return io.Type })
	if err != nil {
		return om.DataTypeUndefined
	}
	return t
}

func (ds *desc) OutputDataType(i int) om.DataType {
	t, err := ioAt(ds.m.Outputs, i, func(io IODesc) om.DataType { return io.Type })
	if err != nil {
		return om.DataTypeUndefined
	}
	return t
}

func (ds *desc) InputIndexByName(name string) (int, error)  { return indexOf(ds.m.Inputs, name) }
func (ds *desc) OutputIndexByName(name string) (int, error) { return indexOf(ds.m.Outputs, name) }

func ioAt[T any](ios []IODesc, i int, fn func(IODesc) T) (T, error) {
	if i < 0 || i >= len(ios) {
		var zero T
		return zero, fmt.Errorf("index %d out of range [0,%d)", i, len(ios))
	}
	return fn(ios[i]), nil
}

func indexOf(ios []IODesc, name string) (int, error) {
	if i := slices.IndexFunc(ios, func(io IODesc) bool { return io.Name == name }); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("no blob named %q", name)
}
