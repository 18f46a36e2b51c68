// types.go - Element-Datentypen fuer Host-Tensoren
// Dieses Modul definiert DType mit Byte-Breite und Namen.
package ml

import (
	"fmt"
	"strings"
)

// DType represents the data type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
	DTypeF64
	DTypeI8
	DTypeI16
	DTypeI32
	DTypeI64
	DTypeU8
	DTypeU16
	DTypeU32
	DTypeU64
	DTypeBool
)

var dtypeInfo = map[DType]struct {
	name string
	size int
}{
	DTypeF32:  {"f32", 4},
	DTypeF16:  {"f16", 2},
	DTypeBF16: {"bf16", 2},
	DTypeF64:  {"f64", 8},
	DTypeI8:   {"i8", 1},
	DTypeI16:  {"i16", 2},
	DTypeI32:  {"i32", 4},
	DTypeI64:  {"i64", 8},
	DTypeU8:   {"u8", 1},
	DTypeU16:  {"u16", 2},
	DTypeU32:  {"u32", 4},
	DTypeU64:  {"u64", 8},
	DTypeBool: {"bool", 1},
}

// Size returns the byte width of one element, 0 for unknown types.
func (t DType) Size() int {
	return dtypeInfo[t].size
}

func (t DType) String() string {
	if info, ok := dtypeInfo[t]; ok {
		return info.name
	}
	return fmt.Sprintf("dtype(%d)", int(t))
}

// IsFloat reports whether the type is a floating point type.
func (t DType) IsFloat() bool {
	switch t {
	case DTypeF32, DTypeF16, DTypeBF16, DTypeF64:
		return true
	}
	return false
}

// ParseDType accepts short ("f32") and long ("float32") names.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f32", "float32", "float", "fp32":
		return DTypeF32, nil
	case "f16", "float16", "half", "fp16":
		return DTypeF16, nil
	case "bf16", "bfloat16":
		return DTypeBF16, nil
	case "f64", "float64", "double":
		return DTypeF64, nil
	case "i8", "int8":
		return DTypeI8, nil
	case "i16", "int16":
		return DTypeI16, nil
	case "i32", "int32":
		return DTypeI32, nil
	case "i64", "int64":
		return DTypeI64, nil
	case "u8", "uint8":
		return DTypeU8, nil
	case "u16", "uint16":
		return DTypeU16, nil
	case "u32", "uint32":
		return DTypeU32, nil
	case "u64", "uint64":
		return DTypeU64, nil
	case "bool":
		return DTypeBool, nil
	}
	return DTypeOther, fmt.Errorf("%w: %q", ErrUnsupportedType, s)
}
