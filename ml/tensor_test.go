package ml

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDTypeSize(t *testing.T) {
	cases := map[DType]int{
		DTypeF32:   4,
		DTypeF16:   2,
		DTypeBF16:  2,
		DTypeI8:    1,
		DTypeI32:   4,
		DTypeI64:   8,
		DTypeU8:    1,
		DTypeU64:   8,
		DTypeOther: 0,
	}
	for dt, want := range cases {
		assert.Equal(t, want, dt.Size(), "Size(%v)", dt)
	}
}

func TestParseDType(t *testing.T) {
	for in, want := range map[string]DType{"float32": DTypeF32, "F16": DTypeF16, "bf16": DTypeBF16, "uint8": DTypeU8, " int64 ": DTypeI64} {
		got, err := ParseDType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseDType("complex64")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestShape(t *testing.T) {
	s, err := ParseShape("1,3,256,512")
	require.NoError(t, err)
	if diff := cmp.Diff(Shape{1, 3, 256, 512}, s); diff != "" {
		t.Errorf("ParseShape (-want +got):\n%s", diff)
	}
	assert.Equal(t, 393216, s.NumElements())
	assert.Equal(t, "1x3x256x512", s.String())

	s2, err := ParseShape("1x1x256x512")
	require.NoError(t, err)
	assert.Equal(t, Shape{1, 1, 256, 512}, s2)

	for _, bad := range []string{"", "1,0,3", "1,-2", "a,b"} {
		_, err := ParseShape(bad)
		assert.ErrorIs(t, err, ErrInvalidShape, "input %q", bad)
	}
}

func TestNewTensorByteSize(t *testing.T) {
	cases := []struct {
		dtype DType
		shape Shape
		want  int
	}{
		{DTypeF32, Shape{1, 1, 256, 512}, 524288},
		{DTypeF16, Shape{1, 3, 4}, 24},
		{DTypeU8, Shape{7}, 7},
		{DTypeI64, Shape{2, 2}, 32},
	}
	for _, tt := range cases {
		tensor, err := NewTensor("x", tt.dtype, tt.shape)
		require.NoError(t, err)
		assert.Equal(t, tt.want, tensor.ByteSize())
		assert.Len(t, tensor.Bytes(), tt.want)
		assert.NoError(t, tensor.Validate())
	}
}

func TestNewTensorRejectsInvalid(t *testing.T) {
	_, err := NewTensor("x", DTypeF32, Shape{1, 0, 3})
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = NewTensor("x", DTypeF32, nil)
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = NewTensor("x", DTypeOther, Shape{1})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestShapeOverflow(t *testing.T) {
	// 3 * 6148914691236517206 wraps to 2 in int64.
	_, err := ParseShape("3,6148914691236517206")
	assert.ErrorIs(t, err, ErrInvalidShape)

	cases := []struct {
		name  string
		dtype DType
		shape Shape
	}{
		{"element count", DTypeU8, Shape{3, 6148914691236517206}},
		{"element count late dim", DTypeU8, Shape{1 << 32, 1 << 32}},
		{"byte size", DTypeF32, Shape{1 << 62}},
		{"byte size i64", DTypeI64, Shape{2, 1 << 60}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.shape.ByteSize(tt.dtype)
			assert.ErrorIs(t, err, ErrInvalidShape)

			_, err = NewTensor("x", tt.dtype, tt.shape)
			assert.ErrorIs(t, err, ErrInvalidShape)
		})
	}

	shapes := NewShapeMap()
	shapes.Set("x", Shape{3, 6148914691236517206})
	assert.ErrorIs(t, shapes.Validate(), ErrInvalidShape)

	tensor, err := NewTensor("x", DTypeF32, Shape{2})
	require.NoError(t, err)
	assert.ErrorIs(t, tensor.Reshape(Shape{1 << 62}), ErrInvalidShape)
	assert.Equal(t, Shape{2}, tensor.Shape(), "Shape nach fehlgeschlagenem Reshape veraendert")

	n, err := Shape{1 << 30, 2}.ByteSize(DTypeU8)
	require.NoError(t, err)
	assert.Equal(t, 1<<31, n)
}

func TestTensorValidateAfterSetBytes(t *testing.T) {
	tensor, err := NewTensor("left", DTypeF32, Shape{2, 2})
	require.NoError(t, err)

	tensor.SetBytes(make([]byte, 12))
	err = tensor.Validate()
	require.ErrorIs(t, err, ErrSizeMismatch)

	var sm *SizeMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Equal(t, "left", sm.Blob)
	assert.Equal(t, 12, sm.Host)
	assert.Equal(t, 16, sm.Device)
}

func TestTensorReshapeAndReset(t *testing.T) {
	tensor, err := NewTensor("disp", DTypeF32, Shape{1, 1, 4, 4})
	require.NoError(t, err)

	require.NoError(t, tensor.Reshape(Shape{1, 1, 2, 4}))
	assert.Equal(t, 32, tensor.ByteSize())
	assert.Len(t, tensor.Bytes(), 32)
	assert.Equal(t, Shape{1, 1, 4, 4}, tensor.DefaultShape())

	assert.ErrorIs(t, tensor.Reshape(Shape{0}), ErrInvalidShape)

	require.NoError(t, tensor.Reset())
	assert.Equal(t, 64, tensor.ByteSize())
	assert.NoError(t, tensor.Validate())
}

func TestTensorShapeIsCopy(t *testing.T) {
	tensor, err := NewTensor("x", DTypeF32, Shape{2, 3})
	require.NoError(t, err)

	s := tensor.Shape()
	s[0] = 100
	assert.Equal(t, Shape{2, 3}, tensor.Shape())
}

func TestTensorFloatConversion(t *testing.T) {
	src := []float32{0, 1, -2.5, 0.25}
	for _, dt := range []DType{DTypeF32, DTypeF16, DTypeBF16, DTypeF64} {
		t.Run(dt.String(), func(t *testing.T) {
			tensor, err := NewTensor("x", dt, Shape{4})
			require.NoError(t, err)
			require.NoError(t, tensor.CopyFromFloat32(src))

			got, err := tensor.Float32s()
			require.NoError(t, err)
			assert.Equal(t, src, got)
		})
	}
}

func TestTensorIntConversion(t *testing.T) {
	tensor, err := NewTensor("x", DTypeI32, Shape{3})
	require.NoError(t, err)
	require.NoError(t, tensor.CopyFromFloat32([]float32{-3, 0, 7}))

	got, err := tensor.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{-3, 0, 7}, got)
	assert.Equal(t, []byte{0xfd, 0xff, 0xff, 0xff}, tensor.Bytes()[:4])
}

func TestTensorFill(t *testing.T) {
	tensor, err := NewTensor("x", DTypeF16, Shape{2, 2})
	require.NoError(t, err)
	require.NoError(t, tensor.Fill(1.5))

	got, err := tensor.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 1.5, 1.5, 1.5}, got)

	tensor.Zero()
	got, err = tensor.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, got)
}

func TestTensorFloat32View(t *testing.T) {
	tensor, err := NewTensor("x", DTypeF32, Shape{2, 2})
	require.NoError(t, err)

	view, err := tensor.Float32View()
	require.NoError(t, err)
	view[3] = 42

	got, err := tensor.Float32s()
	require.NoError(t, err)
	assert.Equal(t, float32(42), got[3])

	half, err := NewTensor("h", DTypeF16, Shape{2})
	require.NoError(t, err)
	_, err = half.Float32View()
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCopyFromFloat32WrongLength(t *testing.T) {
	tensor, err := NewTensor("x", DTypeF32, Shape{4})
	require.NoError(t, err)
	assert.ErrorIs(t, tensor.CopyFromFloat32([]float32{1, 2}), ErrSizeMismatch)
}

func TestCopyBytes(t *testing.T) {
	tensor, err := NewTensor("x", DTypeU8, Shape{3})
	require.NoError(t, err)

	require.NoError(t, tensor.CopyBytes([]byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, tensor.Bytes())
	assert.ErrorIs(t, tensor.CopyBytes([]byte{1}), ErrSizeMismatch)
}
