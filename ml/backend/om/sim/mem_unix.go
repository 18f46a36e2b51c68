//go:build unix

package sim

import "golang.org/x/sys/unix"

// allocMemory maps anonymous pages so simulated device memory lives outside
// the Go heap, like real device memory.
func allocMemory(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func freeMemory(mem []byte) error {
	return unix.Munmap(mem)
}
