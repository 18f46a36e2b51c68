package sim

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easydeploy/infercore/ml/backend/om"
)

func bound(t *testing.T, opts ...Option) *Driver {
	t.Helper()
	d := NewDriver(opts...)
	require.NoError(t, d.Init())
	require.NoError(t, d.SetDevice(0))
	_, err := d.CreateContext(0)
	require.NoError(t, err)
	return d
}

func TestRuntimeLifecycle(t *testing.T) {
	d := NewDriver()
	assert.True(t, d.Live().Zero())

	_, err := d.Malloc(16)
	var de *om.DriverError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, codeUninitialized, de.Code)

	require.NoError(t, d.Init())
	require.ErrorAs(t, d.Init(), &de)
	assert.Equal(t, codeRepeatInit, de.Code)

	require.NoError(t, d.SetDevice(0))
	assert.Error(t, d.SetDevice(3))

	ctx, err := d.CreateContext(0)
	require.NoError(t, err)
	s, err := d.CreateStream()
	require.NoError(t, err)
	assert.Equal(t, Resources{Runtime: 1, Devices: 1, Contexts: 1, Streams: 1}, d.Live())

	require.NoError(t, d.SynchronizeStream(s))
	require.NoError(t, d.DestroyStream(s))
	assert.Error(t, d.DestroyStream(s))
	require.NoError(t, d.DestroyContext(ctx))
	require.NoError(t, d.ResetDevice(0))
	require.NoError(t, d.Finalize())
	assert.True(t, d.Live().Zero())
	assert.Equal(t, 1, d.Stats().Syncs)
}

func TestMemcpyBounds(t *testing.T) {
	d := bound(t)

	ptr, err := d.Malloc(64)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), d.Live().DeviceBytes)

	src := make([]byte, 32)
	for i := range src {
		src[i] = byte(i)
	}
	require.NoError(t, d.MemcpyToDevice(ptr+16, 48, src, om.MemcpyHostToDevice))

	dst := make([]byte, 32)
	require.NoError(t, d.MemcpyToHost(dst, ptr+16, 32, om.MemcpyDeviceToHost))
	assert.Equal(t, src, dst)

	assert.Error(t, d.MemcpyToDevice(ptr+48, 16, src, om.MemcpyHostToDevice), "ueber dstMax")
	assert.Error(t, d.MemcpyToDevice(ptr+48, 64, src, om.MemcpyHostToDevice), "ueber Allokation")
	assert.Error(t, d.MemcpyToDevice(ptr, 64, src, om.MemcpyHostToHost), "falsche Richtung")
	assert.Error(t, d.MemcpyToHost(dst, 0x42, 4, om.MemcpyDeviceToHost), "kein Geraetespeicher")

	require.NoError(t, d.Free(ptr))
	assert.Error(t, d.Free(ptr))
	assert.Zero(t, d.Live().Allocations)
}

func TestHostRunModeCopyKind(t *testing.T) {
	d := bound(t, WithRunMode(om.RunModeHost))

	ptr, err := d.Malloc(8)
	require.NoError(t, err)
	assert.Error(t, d.MemcpyToDevice(ptr, 8, make([]byte, 8), om.MemcpyHostToDevice))
	assert.NoError(t, d.MemcpyToDevice(ptr, 8, make([]byte, 8), om.MemcpyHostToHost))

	info, err := d.DeviceInfo(0)
	require.NoError(t, err)
	assert.True(t, info.Unified)
	assert.Equal(t, uint64(defaultMemoryBytes-8), info.FreeMemory)
}

func TestOutOfMemory(t *testing.T) {
	d := bound(t, WithDevices(1, 1024))
	_, err := d.Malloc(2048)

	var de *om.DriverError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, codeBadAlloc, de.Code)
}

func TestFailOn(t *testing.T) {
	d := NewDriver()
	boom := errors.New("boom")
	d.FailOn(OpInit, boom)
	assert.ErrorIs(t, d.Init(), boom)

	d.ClearFaults()
	require.NoError(t, d.Init())

	d.FailOn(OpSetDevice, nil)
	assert.ErrorIs(t, d.SetDevice(0), ErrInjected)
}

func TestLoadModel(t *testing.T) {
	d := bound(t)
	path := filepath.Join(t.TempDir(), "stereo.om")
	require.NoError(t, WriteModel(path, Model{
		Kernel: KernelAbsDiff,
		Inputs: []IODesc{
			{Name: "left", Dims: []int64{1, 3, 4, 8}, Type: om.DataTypeFloat},
			{Name: "right", Dims: []int64{1, 3, 4, 8}, Type: om.DataTypeFloat},
		},
		Outputs: []IODesc{{Name: "disp", Dims: []int64{1, 1, 4, 8}, Type: om.DataTypeFloat}},
	}))

	id, err := d.LoadModel(path)
	require.NoError(t, err)
	md, err := d.CreateDesc(id)
	require.NoError(t, err)

	assert.Equal(t, 2, md.NumInputs())
	assert.Equal(t, 1, md.NumOutputs())
	name, err := md.InputName(1)
	require.NoError(t, err)
	assert.Equal(t, "right", name)
	assert.Equal(t, 3*4*8*4, md.InputSize(0))
	assert.Equal(t, 4*8*4, md.OutputSize(0))
	assert.Equal(t, om.DataTypeFloat, md.OutputDataType(0))
	assert.Equal(t, om.DataTypeUndefined, md.OutputDataType(5))

	i, err := md.OutputIndexByName("disp")
	require.NoError(t, err)
	assert.Zero(t, i)
	_, err = md.InputIndexByName("input_0")
	assert.Error(t, err)

	require.NoError(t, d.DestroyDesc(md))
	require.NoError(t, d.UnloadModel(id))
	assert.Equal(t, 1, d.Stats().Loads)
}

func TestLoadModelErrors(t *testing.T) {
	d := bound(t)
	var de *om.DriverError

	_, err := d.LoadModel(filepath.Join(t.TempDir(), "missing.om"))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, codeInvalidFile, de.Code)

	path := filepath.Join(t.TempDir(), "bad.om")
	require.NoError(t, WriteModel(path, Model{
		Kernel:  KernelAbsDiff,
		Inputs:  []IODesc{{Name: "left", Dims: []int64{1, 3, 4, 4}, Type: om.DataTypeFloat}},
		Outputs: []IODesc{{Name: "disp", Dims: []int64{1, 1, 4, 4}, Type: om.DataTypeFloat}},
	}))
	_, err = d.LoadModel(path)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, codeInvalidModel, de.Code)
	assert.Zero(t, d.Live().Models)
}

func TestKernels(t *testing.T) {
	t.Run("absdiff f32", func(t *testing.T) {
		m := &Model{
			Kernel: KernelAbsDiff,
			Inputs: []IODesc{
				{Name: "l", Dims: []int64{1, 2, 1, 2}, Type: om.DataTypeFloat},
				{Name: "r", Dims: []int64{1, 2, 1, 2}, Type: om.DataTypeFloat},
			},
			Outputs: []IODesc{{Name: "d", Dims: []int64{1, 1, 1, 2}, Type: om.DataTypeFloat}},
		}
		require.NoError(t, validateKernel(m))

		out := [][]byte{make([]byte, 8)}
		in := [][]byte{encodeF32([]float32{1, 2, 3, 4}), encodeF32([]float32{0, 4, 0, 0})}
		require.NoError(t, run(m, in, out))
		assert.Equal(t, []float32{2, 3}, decodeF32(out[0]))
	})

	t.Run("absdiff f16", func(t *testing.T) {
		m := &Model{
			Kernel: KernelAbsDiff,
			Inputs: []IODesc{
				{Name: "l", Dims: []int64{1, 1, 1, 2}, Type: om.DataTypeFloat16},
				{Name: "r", Dims: []int64{1, 1, 1, 2}, Type: om.DataTypeFloat16},
			},
			Outputs: []IODesc{{Name: "d", Dims: []int64{1, 1, 1, 2}, Type: om.DataTypeFloat16}},
		}
		require.NoError(t, validateKernel(m))

		out := [][]byte{make([]byte, 4)}
		in := [][]byte{encode(om.DataTypeFloat16, []float32{1.5, -2}), encode(om.DataTypeFloat16, []float32{0.5, 2})}
		require.NoError(t, run(m, in, out))
		assert.Equal(t, []float32{1, 4}, decode(om.DataTypeFloat16, out[0]))
	})

	t.Run("affine", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "affine.om")
		require.NoError(t, WriteModel(path, Model{
			Kernel:  KernelAffine,
			Inputs:  []IODesc{{Name: "x", Dims: []int64{3}, Type: om.DataTypeFloat}},
			Outputs: []IODesc{{Name: "y", Dims: []int64{3}, Type: om.DataTypeFloat}},
			Scale:   2,
			Bias:    -1,
		}))
		m, err := readModel(path)
		require.NoError(t, err)

		out := [][]byte{make([]byte, 12)}
		require.NoError(t, run(m, [][]byte{encodeF32([]float32{0, 1, 2})}, out))
		assert.Equal(t, []float32{-1, 1, 3}, decodeF32(out[0]))
	})

	t.Run("identity size mismatch", func(t *testing.T) {
		assert.Error(t, validateKernel(&Model{
			Kernel:  KernelIdentity,
			Inputs:  []IODesc{{Name: "a", Dims: []int64{2}, Type: om.DataTypeFloat}},
			Outputs: []IODesc{{Name: "b", Dims: []int64{2}, Type: om.DataTypeFloat16}},
		}))
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, validateKernel(&Model{
			Kernel:  "conv",
			Inputs:  []IODesc{{Name: "a", Dims: []int64{2}, Type: om.DataTypeFloat}},
			Outputs: []IODesc{{Name: "b", Dims: []int64{2}, Type: om.DataTypeFloat}},
		}))
	})
}

func TestDatasetExecute(t *testing.T) {
	d := bound(t)
	path := filepath.Join(t.TempDir(), "id.om")
	require.NoError(t, WriteModel(path, Model{
		Kernel:  KernelIdentity,
		Inputs:  []IODesc{{Name: "x", Dims: []int64{4}, Type: om.DataTypeUint8}},
		Outputs: []IODesc{{Name: "y", Dims: []int64{4}, Type: om.DataTypeUint8}},
	}))
	id, err := d.LoadModel(path)
	require.NoError(t, err)

	inPtr, err := d.Malloc(4)
	require.NoError(t, err)
	outPtr, err := d.Malloc(4)
	require.NoError(t, err)

	in, err := d.CreateDataset()
	require.NoError(t, err)
	out, err := d.CreateDataset()
	require.NoError(t, err)

	assert.Error(t, d.Execute(id, in, out), "leere Datasets")

	require.NoError(t, d.AddDatasetBuffer(in, inPtr, 4))
	require.NoError(t, d.AddDatasetBuffer(out, outPtr, 4))
	require.NoError(t, d.MemcpyToDevice(inPtr, 4, []byte{9, 8, 7, 6}, om.MemcpyHostToDevice))
	require.NoError(t, d.Execute(id, in, out))

	got := make([]byte, 4)
	require.NoError(t, d.MemcpyToHost(got, outPtr, 4, om.MemcpyDeviceToHost))
	assert.Equal(t, []byte{9, 8, 7, 6}, got)

	require.NoError(t, d.DestroyDataset(in))
	require.NoError(t, d.DestroyDataset(out))
	assert.Zero(t, d.Live().Datasets)
	assert.Equal(t, 2, d.Live().Allocations, "Datasets geben den Speicher nicht frei")
}
