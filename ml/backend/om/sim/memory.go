package sim

import (
	"errors"
	"fmt"

	"github.com/easydeploy/infercore/ml/backend/om"
)

const pageSize = 4096

type allocation struct {
	addr   om.DevicePtr
	device int
	mem    []byte
}

type buffer struct {
	ptr  om.DevicePtr
	size int
}

// lookup resolves [ptr, ptr+n) to the backing memory. Callers hold d.mu.
func (d *Driver) lookup(ptr om.DevicePtr, n int) ([]byte, error) {
	for _, a := range d.allocs {
		end := a.addr + om.DevicePtr(len(a.mem))
		if ptr >= a.addr && ptr < end {
			off := int(ptr - a.addr)
			if off+n > len(a.mem) {
				return nil, fmt.Errorf("range %#x+%d exceeds allocation %#x+%d", ptr, n, a.addr, len(a.mem))
			}
			return a.mem[off : off+n], nil
		}
	}
	return nil, fmt.Errorf("address %#x is not device memory", ptr)
}

func (d *Driver) Malloc(size int) (om.DevicePtr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpMalloc, true); err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, d.errorf(OpMalloc, codeInvalidParam, fmt.Errorf("invalid size %d", size))
	}
	device, ok := d.contexts[d.current]
	if !ok {
		return 0, d.errorf(OpMalloc, codeInvalidHandle, errors.New("no current context"))
	}
	if d.used[device]+uint64(size) > d.memory {
		return 0, d.errorf(OpMalloc, codeBadAlloc, fmt.Errorf("device %d out of memory: %d bytes requested", device, size))
	}

	mem, err := allocMemory(size)
	if err != nil {
		return 0, d.errorf(OpMalloc, codeBadAlloc, err)
	}

	a := &allocation{addr: om.DevicePtr(d.nextAddr), device: device, mem: mem}
	d.nextAddr += uintptr((size+pageSize-1)/pageSize*pageSize + pageSize)
	d.allocs[a.addr] = a
	d.used[device] += uint64(size)
	return a.addr, nil
}

func (d *Driver) Free(ptr om.DevicePtr) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpFree, true); err != nil {
		return err
	}
	a, ok := d.allocs[ptr]
	if !ok {
		return d.errorf(OpFree, codeInvalidParam, fmt.Errorf("address %#x was not returned by Malloc", ptr))
	}
	delete(d.allocs, ptr)
	d.used[a.device] -= uint64(len(a.mem))
	if err := freeMemory(a.mem); err != nil {
		return d.errorf(OpFree, codeInternalError, err)
	}
	return nil
}

func (d *Driver) MemcpyToDevice(dst om.DevicePtr, dstMax int, src []byte, kind om.MemcpyKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpMemcpyToDevice, true); err != nil {
		return err
	}
	want := om.MemcpyHostToDevice
	if d.runMode == om.RunModeHost {
		want = om.MemcpyHostToHost
	}
	if kind != want {
		return d.errorf(OpMemcpyToDevice, codeInvalidParam, fmt.Errorf("copy kind %d invalid in %v run mode", kind, d.runMode))
	}
	if len(src) > dstMax {
		return d.errorf(OpMemcpyToDevice, codeInvalidParam, fmt.Errorf("count %d exceeds destination size %d", len(src), dstMax))
	}

	mem, err := d.lookup(dst, len(src))
	if err != nil {
		return d.errorf(OpMemcpyToDevice, codeInvalidParam, err)
	}
	copy(mem, src)
	d.stats.CopiesIn++
	return nil
}

func (d *Driver) MemcpyToHost(dst []byte, src om.DevicePtr, count int, kind om.MemcpyKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpMemcpyToHost, true); err != nil {
		return err
	}
	want := om.MemcpyDeviceToHost
	if d.runMode == om.RunModeHost {
		want = om.MemcpyHostToHost
	}
	if kind != want {
		return d.errorf(OpMemcpyToHost, codeInvalidParam, fmt.Errorf("copy kind %d invalid in %v run mode", kind, d.runMode))
	}
	if count > len(dst) {
		return d.errorf(OpMemcpyToHost, codeInvalidParam, fmt.Errorf("count %d exceeds destination size %d", count, len(dst)))
	}

	mem, err := d.lookup(src, count)
	if err != nil {
		return d.errorf(OpMemcpyToHost, codeInvalidParam, err)
	}
	copy(dst, mem)
	d.stats.CopiesOut++
	return nil
}

// ============================================================================
// Datasets
// ============================================================================

func (d *Driver) CreateDataset() (om.Dataset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpCreateDataset, true); err != nil {
		return 0, err
	}
	ds := om.Dataset(d.handle())
	d.datasets[ds] = nil
	return ds, nil
}

func (d *Driver) AddDatasetBuffer(ds om.Dataset, ptr om.DevicePtr, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpAddDatasetBuffer, true); err != nil {
		return err
	}
	bufs, ok := d.datasets[ds]
	if !ok {
		return d.errorf(OpAddDatasetBuffer, codeInvalidHandle, fmt.Errorf("unknown dataset %#x", ds))
	}
	if size > 0 {
		if _, err := d.lookup(ptr, size); err != nil {
			return d.errorf(OpAddDatasetBuffer, codeInvalidParam, err)
		}
	}
	d.datasets[ds] = append(bufs, buffer{ptr: ptr, size: size})
	return nil
}

func (d *Driver) DestroyDataset(ds om.Dataset) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.call(OpDestroyDataset, true); err != nil {
		return err
	}
	if _, ok := d.datasets[ds]; !ok {
		return d.errorf(OpDestroyDataset, codeInvalidHandle, fmt.Errorf("unknown dataset %#x", ds))
	}
	delete(d.datasets, ds)
	return nil
}

// dataset returns the backing memory of every buffer. Callers hold d.mu.
func (d *Driver) dataset(ds om.Dataset) ([][]byte, error) {
	bufs, ok := d.datasets[ds]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %#x", ds)
	}

	mems := make([][]byte, len(bufs))
	for i, b := range bufs {
		if b.size == 0 {
			continue
		}
		mem, err := d.lookup(b.ptr, b.size)
		if err != nil {
			return nil, fmt.Errorf("buffer %d: %w", i, err)
		}
		mems[i] = mem
	}
	return mems, nil
}
