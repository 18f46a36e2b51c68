//go:build ascend && cgo

// Package acl - Treiber fuer den Ascend Compute Language Stack
//
// Bindet libascendcl ueber cgo an das om Driver-Interface. Gebaut wird nur
// mit dem Build-Tag "ascend", sonst registriert acl_stub.go einen Treiber,
// der ml.ErrBackendUnavailable liefert.
package acl

/*
#cgo LDFLAGS: -lascendcl
#include <stdlib.h>
#include <acl/acl.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/easydeploy/infercore/ml"
	"github.com/easydeploy/infercore/ml/backend/om"
)

const name = "acl"

func init() {
	om.RegisterDriver(name, func() (om.Driver, error) { return defaultDriver, nil })
}

var defaultDriver = &Driver{
	contexts: make(map[om.Context]C.aclrtContext),
	streams:  make(map[om.Stream]C.aclrtStream),
	datasets: make(map[om.Dataset]*C.aclmdlDataset),
}

// Driver calls into libascendcl. Native handles are kept in tables and
// handed out as opaque ids.
type Driver struct {
	mu       sync.Mutex
	next     uintptr
	contexts map[om.Context]C.aclrtContext
	streams  map[om.Stream]C.aclrtStream
	datasets map[om.Dataset]*C.aclmdlDataset
}

func (d *Driver) Name() string { return name }

func check(op string, ret C.aclError) error {
	if ret == C.ACL_SUCCESS {
		return nil
	}
	return &om.DriverError{Driver: name, Op: op, Code: int(ret)}
}

func (d *Driver) id() uintptr {
	d.next++
	return d.next
}

// ptr converts a device address back to a C pointer. Device memory is owned
// by the driver and never moved.
func ptr(p om.DevicePtr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&p))
}

// ============================================================================
// Runtime und Geraete
// ============================================================================

func (d *Driver) Init() error     { return check("aclInit", C.aclInit(nil)) }
func (d *Driver) Finalize() error { return check("aclFinalize", C.aclFinalize()) }

func (d *Driver) DeviceCount() (int, error) {
	var n C.uint32_t
	if err := check("aclrtGetDeviceCount", C.aclrtGetDeviceCount(&n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (d *Driver) DeviceInfo(id int) (ml.DeviceInfo, error) {
	info := ml.DeviceInfo{Backend: name, ID: id, Name: fmt.Sprintf("Ascend NPU %d", id)}
	if soc := C.aclrtGetSocName(); soc != nil {
		info.Description = C.GoString(soc)
	}

	var free, total C.size_t
	if err := check("aclrtGetMemInfo", C.aclrtGetMemInfo(C.ACL_HBM_MEM, &free, &total)); err == nil {
		info.FreeMemory, info.TotalMemory = uint64(free), uint64(total)
	}
	return info, nil
}

func (d *Driver) SetDevice(id int) error {
	return check("aclrtSetDevice", C.aclrtSetDevice(C.int32_t(id)))
}

func (d *Driver) ResetDevice(id int) error {
	return check("aclrtResetDevice", C.aclrtResetDevice(C.int32_t(id)))
}

func (d *Driver) CreateContext(id int) (om.Context, error) {
	var ctx C.aclrtContext
	if err := check("aclrtCreateContext", C.aclrtCreateContext(&ctx, C.int32_t(id))); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := om.Context(d.id())
	d.contexts[h] = ctx
	return h, nil
}

func (d *Driver) context(h om.Context) (C.aclrtContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, ok := d.contexts[h]
	if !ok {
		return nil, fmt.Errorf("acl: unknown context %d", h)
	}
	return ctx, nil
}

func (d *Driver) DestroyContext(h om.Context) error {
	ctx, err := d.context(h)
	if err != nil {
		return err
	}
	if err := check("aclrtDestroyContext", C.aclrtDestroyContext(ctx)); err != nil {
		return err
	}

	d.mu.Lock()
	delete(d.contexts, h)
	d.mu.Unlock()
	return nil
}

func (d *Driver) SetCurrentContext(h om.Context) error {
	ctx, err := d.context(h)
	if err != nil {
		return err
	}
	return check("aclrtSetCurrentContext", C.aclrtSetCurrentContext(ctx))
}

func (d *Driver) CreateStream() (om.Stream, error) {
	var s C.aclrtStream
	if err := check("aclrtCreateStream", C.aclrtCreateStream(&s)); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := om.Stream(d.id())
	d.streams[h] = s
	return h, nil
}

func (d *Driver) stream(h om.Stream) (C.aclrtStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[h]
	if !ok {
		return nil, fmt.Errorf("acl: unknown stream %d", h)
	}
	return s, nil
}

func (d *Driver) DestroyStream(h om.Stream) error {
	s, err := d.stream(h)
	if err != nil {
		return err
	}
	if err := check("aclrtDestroyStream", C.aclrtDestroyStream(s)); err != nil {
		return err
	}

	d.mu.Lock()
	delete(d.streams, h)
	d.mu.Unlock()
	return nil
}

func (d *Driver) SynchronizeStream(h om.Stream) error {
	s, err := d.stream(h)
	if err != nil {
		return err
	}
	return check("aclrtSynchronizeStream", C.aclrtSynchronizeStream(s))
}

func (d *Driver) RunMode() (om.RunMode, error) {
	var mode C.aclrtRunMode
	if err := check("aclrtGetRunMode", C.aclrtGetRunMode(&mode)); err != nil {
		return 0, err
	}
	if mode == C.ACL_HOST {
		return om.RunModeHost, nil
	}
	return om.RunModeDevice, nil
}

// ============================================================================
// Modelle
// ============================================================================

func (d *Driver) LoadModel(path string) (om.ModelID, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	var id C.uint32_t
	if err := check("aclmdlLoadFromFile", C.aclmdlLoadFromFile(cpath, &id)); err != nil {
		return 0, err
	}
	return om.ModelID(id), nil
}

func (d *Driver) UnloadModel(id om.ModelID) error {
	return check("aclmdlUnload", C.aclmdlUnload(C.uint32_t(id)))
}

func (d *Driver) CreateDesc(id om.ModelID) (om.ModelDesc, error) {
	desc := C.aclmdlCreateDesc()
	if desc == nil {
		return nil, &om.DriverError{Driver: name, Op: "aclmdlCreateDesc", Err: errors.New("allocation failed")}
	}
	if err := check("aclmdlGetDesc", C.aclmdlGetDesc(desc, C.uint32_t(id))); err != nil {
		C.aclmdlDestroyDesc(desc)
		return nil, err
	}
	return &modelDesc{desc: desc}, nil
}

func (d *Driver) DestroyDesc(md om.ModelDesc) error {
	m, ok := md.(*modelDesc)
	if !ok {
		return fmt.Errorf("acl: foreign descriptor %T", md)
	}
	return check("aclmdlDestroyDesc", C.aclmdlDestroyDesc(m.desc))
}

func (d *Driver) Execute(id om.ModelID, inputs, outputs om.Dataset) error {
	d.mu.Lock()
	in, out := d.datasets[inputs], d.datasets[outputs]
	d.mu.Unlock()
	if in == nil || out == nil {
		return errors.New("acl: unknown dataset")
	}
	return check("aclmdlExecute", C.aclmdlExecute(C.uint32_t(id), in, out))
}

type modelDesc struct {
	desc *C.aclmdlDesc
}

func (m *modelDesc) NumInputs() int  { return int(C.aclmdlGetNumInputs(m.desc)) }
func (m *modelDesc) NumOutputs() int { return int(C.aclmdlGetNumOutputs(m.desc)) }

func (m *modelDesc) InputName(i int) (string, error) {
	s := C.aclmdlGetInputNameByIndex(m.desc, C.size_t(i))
	if s == nil {
		return "", fmt.Errorf("acl: input %d has no name", i)
	}
	return C.GoString(s), nil
}

func (m *modelDesc) OutputName(i int) (string, error) {
	s := C.aclmdlGetOutputNameByIndex(m.desc, C.size_t(i))
	if s == nil {
		return "", fmt.Errorf("acl: output %d has no name", i)
	}
	return C.GoString(s), nil
}

func dims(op string, ret C.aclError, d *C.aclmdlIODims) ([]int64, error) {
	if err := check(op, ret); err != nil {
		return nil, err
	}
	out := make([]int64, int(d.dimCount))
	for i := range out {
		out[i] = int64(d.dims[i])
	}
	return out, nil
}

func (m *modelDesc) InputDims(i int) ([]int64, error) {
	var d C.aclmdlIODims
	return dims("aclmdlGetInputDims", C.aclmdlGetInputDims(m.desc, C.size_t(i), &d), &d)
}

func (m *modelDesc) OutputDims(i int) ([]int64, error) {
	var d C.aclmdlIODims
	return dims("aclmdlGetOutputDims", C.aclmdlGetOutputDims(m.desc, C.size_t(i), &d), &d)
}

func (m *modelDesc) InputSize(i int) int {
	return int(C.aclmdlGetInputSizeByIndex(m.desc, C.size_t(i)))
}

func (m *modelDesc) OutputSize(i int) int {
	return int(C.aclmdlGetOutputSizeByIndex(m.desc, C.size_t(i)))
}

func (m *modelDesc) InputDataType(i int) om.DataType {
	return om.DataType(C.aclmdlGetInputDataType(m.desc, C.size_t(i)))
}

func (m *modelDesc) OutputDataType(i int) om.DataType {
	return om.DataType(C.aclmdlGetOutputDataType(m.desc, C.size_t(i)))
}

func (m *modelDesc) InputIndexByName(s string) (int, error) {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))

	var idx C.size_t
	if err := check("aclmdlGetInputIndexByName", C.aclmdlGetInputIndexByName(m.desc, cs, &idx)); err != nil {
		return -1, err
	}
	return int(idx), nil
}

func (m *modelDesc) OutputIndexByName(s string) (int, error) {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))

	var idx C.size_t
	if err := check("aclmdlGetOutputIndexByName", C.aclmdlGetOutputIndexByName(m.desc, cs, &idx)); err != nil {
		return -1, err
	}
	return int(idx), nil
}

// ============================================================================
// Speicher und Datasets
// ============================================================================

func (d *Driver) Malloc(size int) (om.DevicePtr, error) {
	var p unsafe.Pointer
	if err := check("aclrtMalloc", C.aclrtMalloc(&p, C.size_t(size), C.ACL_MEM_MALLOC_HUGE_FIRST)); err != nil {
		return 0, err
	}
	return om.DevicePtr(uintptr(p)), nil
}

func (d *Driver) Free(p om.DevicePtr) error {
	return check("aclrtFree", C.aclrtFree(ptr(p)))
}

func memcpyKind(k om.MemcpyKind) C.aclrtMemcpyKind {
	switch k {
	case om.MemcpyHostToDevice:
		return C.ACL_MEMCPY_HOST_TO_DEVICE
	case om.MemcpyDeviceToHost:
		return C.ACL_MEMCPY_DEVICE_TO_HOST
	case om.MemcpyDeviceToDevice:
		return C.ACL_MEMCPY_DEVICE_TO_DEVICE
	}
	return C.ACL_MEMCPY_HOST_TO_HOST
}

func (d *Driver) MemcpyToDevice(dst om.DevicePtr, dstMax int, src []byte, kind om.MemcpyKind) error {
	if len(src) == 0 {
		return nil
	}
	return check("aclrtMemcpy", C.aclrtMemcpy(ptr(dst), C.size_t(dstMax),
		unsafe.Pointer(&src[0]), C.size_t(len(src)), memcpyKind(kind)))
}

func (d *Driver) MemcpyToHost(dst []byte, src om.DevicePtr, count int, kind om.MemcpyKind) error {
	if count == 0 {
		return nil
	}
	return check("aclrtMemcpy", C.aclrtMemcpy(unsafe.Pointer(&dst[0]), C.size_t(len(dst)),
		ptr(src), C.size_t(count), memcpyKind(kind)))
}

func (d *Driver) CreateDataset() (om.Dataset, error) {
	ds := C.aclmdlCreateDataset()
	if ds == nil {
		return 0, &om.DriverError{Driver: name, Op: "aclmdlCreateDataset", Err: errors.New("allocation failed")}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := om.Dataset(d.id())
	d.datasets[h] = ds
	return h, nil
}

func (d *Driver) AddDatasetBuffer(h om.Dataset, p om.DevicePtr, size int) error {
	d.mu.Lock()
	ds := d.datasets[h]
	d.mu.Unlock()
	if ds == nil {
		return fmt.Errorf("acl: unknown dataset %d", h)
	}

	buf := C.aclCreateDataBuffer(ptr(p), C.size_t(size))
	if buf == nil {
		return &om.DriverError{Driver: name, Op: "aclCreateDataBuffer", Err: errors.New("allocation failed")}
	}
	if err := check("aclmdlAddDatasetBuffer", C.aclmdlAddDatasetBuffer(ds, buf)); err != nil {
		C.aclDestroyDataBuffer(buf)
		return err
	}
	return nil
}

// DestroyDataset destroys the buffer descriptors together with the dataset.
func (d *Driver) DestroyDataset(h om.Dataset) error {
	d.mu.Lock()
	ds := d.datasets[h]
	delete(d.datasets, h)
	d.mu.Unlock()
	if ds == nil {
		return fmt.Errorf("acl: unknown dataset %d", h)
	}

	var errs []error
	for i := range int(C.aclmdlGetDatasetNumBuffers(ds)) {
		buf := C.aclmdlGetDatasetBuffer(ds, C.size_t(i))
		errs = append(errs, check("aclDestroyDataBuffer", C.aclDestroyDataBuffer(buf)))
	}
	errs = append(errs, check("aclmdlDestroyDataset", C.aclmdlDestroyDataset(ds)))
	return errors.Join(errs...)
}

var _ om.Driver = (*Driver)(nil)
