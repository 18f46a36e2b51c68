package ml

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Shape is an ordered list of dimension sizes.
type Shape []int

// Validate rejects empty shapes, non-positive dimensions and shapes whose
// element count does not fit in an int.
func (s Shape) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty shape", ErrInvalidShape)
	}
	n := 1
	for i, d := range s {
		if d <= 0 {
			return fmt.Errorf("%w: dimension %d is %d", ErrInvalidShape, i, d)
		}
		if d > math.MaxInt/n {
			return fmt.Errorf("%w: element count of %v overflows int", ErrInvalidShape, s)
		}
		n *= d
	}
	return nil
}

// ByteSize validates s and returns the byte size of a buffer holding its
// elements as dtype.
func (s Shape) ByteSize(dtype DType) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	size := dtype.Size()
	if size == 0 {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedType, dtype)
	}
	n := s.NumElements()
	if n > math.MaxInt/size {
		return 0, fmt.Errorf("%w: %v of %v overflows int bytes", ErrInvalidShape, s, dtype)
	}
	return n * size, nil
}

// NumElements returns the product of all dimensions.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) Equal(o Shape) bool { return slices.Equal(s, o) }

func (s Shape) Clone() Shape { return slices.Clone(s) }

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, "x")
}

// ParseShape parses "1,3,256,512" or "1x3x256x512".
func ParseShape(s string) (Shape, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty shape", ErrInvalidShape)
	}

	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == 'x' || r == 'X' })
	shape := make(Shape, 0, len(fields))
	for _, f := range fields {
		d, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidShape, s, err)
		}
		shape = append(shape, d)
	}

	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return shape, nil
}
