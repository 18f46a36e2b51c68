// tensor.go - Host-Tensor mit eigenem Byte-Puffer
//
// Ein Tensor besitzt seinen Puffer exklusiv. Die Byte-Groesse wird nie
// gespeichert, sondern immer aus Shape und DType abgeleitet und bei jedem
// Zugriff gegen die Pufferlaenge geprueft.
package ml

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Tensor is a named, typed, shaped host buffer.
type Tensor struct {
	name         string
	dtype        DType
	shape        Shape
	defaultShape Shape
	data         []byte
}

// NewTensor allocates a zeroed tensor. Zero-byte tensors are rejected.
func NewTensor(name string, dtype DType, shape Shape) (*Tensor, error) {
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("tensor %q: %w: %v", name, ErrUnsupportedType, dtype)
	}
	n, err := shape.ByteSize(dtype)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}

	return &Tensor{
		name:         name,
		dtype:        dtype,
		shape:        shape.Clone(),
		defaultShape: shape.Clone(),
		data:         make([]byte, n),
	}, nil
}

func (t *Tensor) Name() string        { return t.name }
func (t *Tensor) DType() DType        { return t.dtype }
func (t *Tensor) Shape() Shape        { return t.shape.Clone() }
func (t *Tensor) DefaultShape() Shape { return t.defaultShape.Clone() }

// ByteSize is product(shape) * dtype.Size().
func (t *Tensor) ByteSize() int {
	return t.shape.NumElements() * t.dtype.Size()
}

// Validate checks that the owned buffer matches the derived byte size.
func (t *Tensor) Validate() error {
	want := t.ByteSize()
	if want <= 0 {
		return fmt.Errorf("tensor %q: %w: zero byte size", t.name, ErrInvalidShape)
	}
	if len(t.data) != want {
		return &SizeMismatchError{Blob: t.name, Host: len(t.data), Device: want}
	}
	return nil
}

// Bytes returns the owned buffer. Writes through the slice are visible to
// the tensor.
func (t *Tensor) Bytes() []byte {
	return t.data
}

// SetBytes adopts b as the tensor buffer without copying. Its length is
// checked on the next Validate.
func (t *Tensor) SetBytes(b []byte) {
	t.data = b
}

// CopyBytes copies b into the tensor. The length must match ByteSize.
func (t *Tensor) CopyBytes(b []byte) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if len(b) != len(t.data) {
		return &SizeMismatchError{Blob: t.name, Host: len(b), Device: len(t.data)}
	}
	copy(t.data, b)
	return nil
}

// Reshape changes the current shape. The buffer is reallocated when the
// byte size changes.
func (t *Tensor) Reshape(shape Shape) error {
	n, err := shape.ByteSize(t.dtype)
	if err != nil {
		return fmt.Errorf("tensor %q: %w", t.name, err)
	}
	t.shape = shape.Clone()
	if n != len(t.data) {
		t.data = make([]byte, n)
	}
	return nil
}

// Reset restores the default shape.
func (t *Tensor) Reset() error {
	return t.Reshape(t.defaultShape)
}

// Zero clears the buffer.
func (t *Tensor) Zero() {
	clear(t.data)
}

// Fill sets every element to v, converted to the tensor type.
func (t *Tensor) Fill(v float32) error {
	if err := t.Validate(); err != nil {
		return err
	}
	size := t.dtype.Size()
	for i := 0; i < len(t.data); i += size {
		if err := putElement(t.dtype, t.data[i:i+size], v); err != nil {
			return fmt.Errorf("tensor %q: %w", t.name, err)
		}
	}
	return nil
}

// CopyFromFloat32 converts src into the tensor type.
func (t *Tensor) CopyFromFloat32(src []float32) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if n := t.shape.NumElements(); len(src) != n {
		return &SizeMismatchError{Blob: t.name, Host: len(src) * t.dtype.Size(), Device: t.ByteSize()}
	}

	switch t.dtype {
	case DTypeF32:
		view, _ := t.Float32View()
		copy(view, src)
	case DTypeBF16:
		copy(t.data, bfloat16.EncodeFloat32(src))
	default:
		size := t.dtype.Size()
		for i, v := range src {
			if err := putElement(t.dtype, t.data[i*size:(i+1)*size], v); err != nil {
				return fmt.Errorf("tensor %q: %w", t.name, err)
			}
		}
	}
	return nil
}

// Float32s returns a converted copy of the elements.
func (t *Tensor) Float32s() ([]float32, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	switch t.dtype {
	case DTypeBF16:
		return bfloat16.DecodeFloat32(t.data), nil
	}

	size := t.dtype.Size()
	out := make([]float32, t.shape.NumElements())
	for i := range out {
		v, err := element(t.dtype, t.data[i*size:(i+1)*size])
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", t.name, err)
		}
		out[i] = v
	}
	return out, nil
}

// Float32View returns a zero-copy float32 view of an f32 tensor.
func (t *Tensor) Float32View() ([]float32, error) {
	if t.dtype != DTypeF32 {
		return nil, fmt.Errorf("tensor %q: %w: view needs f32, have %v", t.name, ErrUnsupportedType, t.dtype)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(t.data))), len(t.data)/4), nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("%s[%v %v]", t.name, t.dtype, t.shape)
}

// =============================================================================
// Element-Konvertierung (Little Endian)
// =============================================================================

func putElement(dtype DType, b []byte, v float32) error {
	switch dtype {
	case DTypeF32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	case DTypeF16:
		binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits())
	case DTypeBF16:
		copy(b, bfloat16.EncodeFloat32([]float32{v}))
	case DTypeF64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(float64(v)))
	case DTypeI8:
		b[0] = byte(int8(v))
	case DTypeU8, DTypeBool:
		b[0] = byte(v)
	case DTypeI16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case DTypeU16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case DTypeI32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case DTypeU32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case DTypeI64:
		binary.LittleEndian.PutUint64(b, uint64(int64(v)))
	case DTypeU64:
		binary.LittleEndian.PutUint64(b, uint64(v))
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedType, dtype)
	}
	return nil
}

func element(dtype DType, b []byte) (float32, error) {
	switch dtype {
	case DTypeF32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
	case DTypeF16:
		return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32(), nil
	case DTypeBF16:
		return bfloat16.DecodeFloat32(b)[0], nil
	case DTypeF64:
		return float32(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case DTypeI8:
		return float32(int8(b[0])), nil
	case DTypeU8, DTypeBool:
		return float32(b[0]), nil
	case DTypeI16:
		return float32(int16(binary.LittleEndian.Uint16(b))), nil
	case DTypeU16:
		return float32(binary.LittleEndian.Uint16(b)), nil
	case DTypeI32:
		return float32(int32(binary.LittleEndian.Uint32(b))), nil
	case DTypeU32:
		return float32(binary.LittleEndian.Uint32(b)), nil
	case DTypeI64:
		return float32(int64(binary.LittleEndian.Uint64(b))), nil
	case DTypeU64:
		return float32(binary.LittleEndian.Uint64(b)), nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnsupportedType, dtype)
}
