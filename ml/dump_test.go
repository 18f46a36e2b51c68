package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	tensor, err := NewTensor("x", DTypeF32, Shape{2, 3})
	require.NoError(t, err)
	require.NoError(t, tensor.CopyFromFloat32([]float32{0, 1, 2, 3, 4, 5}))

	got := Dump(tensor, DumpWithPrecision(1))
	assert.Equal(t, "[[ 0.0,  1.0,  2.0],\n [ 3.0,  4.0,  5.0]]", got)
}

func TestDumpEdgeItems(t *testing.T) {
	tensor, err := NewTensor("x", DTypeI32, Shape{10})
	require.NoError(t, err)

	values := make([]float32, 10)
	for i := range values {
		values[i] = float32(i)
	}
	require.NoError(t, tensor.CopyFromFloat32(values))

	got := Dump(tensor, DumpWithThreshold(5), DumpWithEdgeItems(2))
	assert.Equal(t, "[ 0,  1, ...,  8,  9]", got)
}

func TestDumpNested(t *testing.T) {
	tensor, err := NewTensor("x", DTypeF32, Shape{2, 2, 2})
	require.NoError(t, err)
	require.NoError(t, tensor.CopyFromFloat32([]float32{0, -1, 2, 3, 4, 5, 6, 7}))

	got := Dump(tensor, DumpWithPrecision(0))
	assert.Equal(t, "[[[ 0, -1],\n  [ 2,  3]],\n\n [[ 4,  5],\n  [ 6,  7]]]", got)
}

func TestDumpRowsTruncated(t *testing.T) {
	tensor, err := NewTensor("x", DTypeU8, Shape{5, 1})
	require.NoError(t, err)
	require.NoError(t, tensor.CopyFromFloat32([]float32{1, 2, 3, 4, 5}))

	got := Dump(tensor, DumpWithThreshold(1), DumpWithEdgeItems(1))
	assert.Equal(t, "[[ 1],\n ..., \n [ 5]]", got)
}
