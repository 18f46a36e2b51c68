package ml

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTensor(t *testing.T, name string, shape ...int) *Tensor {
	t.Helper()
	tensor, err := NewTensor(name, DTypeF32, shape)
	require.NoError(t, err)
	return tensor
}

func TestBlobsOrderAndLookup(t *testing.T) {
	b := NewBlobs()
	require.NoError(t, b.Add(mustTensor(t, "left", 1, 3, 4, 4)))
	require.NoError(t, b.Add(mustTensor(t, "right", 1, 3, 4, 4)))
	require.NoError(t, b.Add(mustTensor(t, "disp", 1, 1, 4, 4)))

	if diff := cmp.Diff([]string{"left", "right", "disp"}, b.Names()); diff != "" {
		t.Errorf("Names (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 2*192+64, b.ByteSize())

	tensor, err := b.Tensor("disp")
	require.NoError(t, err)
	assert.Equal(t, Shape{1, 1, 4, 4}, tensor.Shape())

	_, err = b.Tensor("flow")
	assert.ErrorIs(t, err, ErrMissingBlob)
}

func TestBlobsRejectsDuplicates(t *testing.T) {
	b := NewBlobs()
	require.NoError(t, b.Add(mustTensor(t, "left", 1)))
	assert.ErrorIs(t, b.Add(mustTensor(t, "left", 2)), ErrDuplicateBlob)
	assert.Error(t, b.Add(nil))
	assert.Equal(t, 1, b.Len())
}

func TestBlobsReset(t *testing.T) {
	b := NewBlobs()
	tensor := mustTensor(t, "x", 4)
	require.NoError(t, b.Add(tensor))
	require.NoError(t, tensor.Reshape(Shape{2}))

	require.NoError(t, b.Reset())
	assert.Equal(t, Shape{4}, tensor.Shape())
}

func TestShapeMap(t *testing.T) {
	m := NewShapeMap()
	m.Set("left", Shape{1, 3, 256, 512})
	m.Set("right", Shape{1, 3, 256, 512})
	require.NoError(t, m.Validate())

	c := m.Clone()
	c.Set("extra", Shape{1})
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 3, c.Len())
	assert.False(t, m.Equal(c))
	assert.True(t, m.Equal(m.Clone()))

	shape, ok := m.Get("left")
	require.True(t, ok)
	shape[0] = 9
	again, _ := m.Get("left")
	assert.Equal(t, 1, again[0])

	assert.Equal(t, "left=1x3x256x512 right=1x3x256x512", m.String())
}

func TestShapeMapValidate(t *testing.T) {
	assert.ErrorIs(t, NewShapeMap().Validate(), ErrNoBlobs)

	var nilMap *ShapeMap
	assert.ErrorIs(t, nilMap.Validate(), ErrNoBlobs)
	assert.Nil(t, nilMap.Clone())

	m := NewShapeMap()
	m.Set("left", Shape{1, -3})
	assert.ErrorIs(t, m.Validate(), ErrInvalidShape)
}
