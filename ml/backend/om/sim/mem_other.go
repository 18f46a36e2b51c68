//go:build !unix

package sim

func allocMemory(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func freeMemory([]byte) error {
	return nil
}
