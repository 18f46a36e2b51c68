package sim

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/easydeploy/infercore/ml/backend/om"
)

// validateKernel checks the I/O layout a kernel needs at load time.
func validateKernel(m *Model) error {
	if len(m.Inputs) == 0 || len(m.Outputs) == 0 {
		// Modelle ohne Ein- oder Ausgaben laden, die Aufloesung im Core lehnt sie ab.
		return nil
	}

	switch m.Kernel {
	case KernelZeros:
		return nil
	case KernelIdentity:
		if len(m.Inputs) != len(m.Outputs) {
			return fmt.Errorf("identity: %d inputs but %d outputs", len(m.Inputs), len(m.Outputs))
		}
		for i := range m.Inputs {
			if m.Inputs[i].size() != m.Outputs[i].size() {
				return fmt.Errorf("identity: input %d and output %d differ in size", i, i)
			}
		}
		return nil
	case KernelAffine:
		for _, io := range slices.Concat(m.Inputs, m.Outputs) {
			if io.Type != om.DataTypeFloat {
				return fmt.Errorf("affine: %s must be float32", io.Name)
			}
		}
		if len(m.Inputs) != 1 || len(m.Outputs) != 1 || m.Inputs[0].size() != m.Outputs[0].size() {
			return fmt.Errorf("affine: needs one input and one output of equal size")
		}
		return nil
	case KernelAbsDiff:
		if len(m.Inputs) != 2 || len(m.Outputs) != 1 {
			return fmt.Errorf("absdiff: needs 2 inputs and 1 output")
		}
		l, r, o := m.Inputs[0], m.Inputs[1], m.Outputs[0]
		if len(l.Dims) != 4 || !slices.Equal(l.Dims, r.Dims) {
			return fmt.Errorf("absdiff: inputs must share a [N,C,H,W] shape")
		}
		want := []int64{l.Dims[0], 1, l.Dims[2], l.Dims[3]}
		if !slices.Equal(o.Dims, want) {
			return fmt.Errorf("absdiff: output dims %v, want %v", o.Dims, want)
		}
		for _, io := range []IODesc{l, r, o} {
			if io.Type != l.Type {
				return fmt.Errorf("absdiff: %s has a different element type", io.Name)
			}
			switch io.Type {
			case om.DataTypeFloat, om.DataTypeFloat16, om.DataTypeBF16:
			default:
				return fmt.Errorf("absdiff: unsupported element type %v", io.Type)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown kernel %q", m.Kernel)
}

func run(m *Model, in, out [][]byte) error {
	switch m.Kernel {
	case KernelZeros:
		for _, o := range out {
			clear(o)
		}
	case KernelIdentity:
		for i := range out {
			copy(out[i], in[i])
		}
	case KernelAffine:
		src := decodeF32(in[0])
		for i, v := range src {
			src[i] = v*m.Scale + m.Bias
		}
		copy(out[0], encodeF32(src))
	case KernelAbsDiff:
		dims := m.Inputs[0].Dims
		typ := m.Inputs[0].Type
		left, right := decode(typ, in[0]), decode(typ, in[1])
		n, c, hw := int(dims[0]), int(dims[1]), int(dims[2]*dims[3])

		cost := make([]float32, n*hw)
		for b := range n {
			for ch := range c {
				base := (b*c + ch) * hw
				for p := range hw {
					cost[b*hw+p] += float32(math.Abs(float64(left[base+p] - right[base+p])))
				}
			}
		}
		for i := range cost {
			cost[i] /= float32(c)
		}
		copy(out[0], encode(typ, cost))
	default:
		return fmt.Errorf("unknown kernel %q", m.Kernel)
	}
	return nil
}

// ============================================================================
// Element-Kodierung (Little Endian)
// ============================================================================

func decode(t om.DataType, b []byte) []float32 {
	switch t {
	case om.DataTypeFloat16:
		out := make([]float32, len(b)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(b[i*2:])).Float32()
		}
		return out
	case om.DataTypeBF16:
		return bfloat16.DecodeFloat32(b)
	default:
		return decodeF32(b)
	}
}

func encode(t om.DataType, f []float32) []byte {
	switch t {
	case om.DataTypeFloat16:
		b := make([]byte, len(f)*2)
		for i, v := range f {
			binary.LittleEndian.PutUint16(b[i*2:], float16.Fromfloat32(v).Bits())
		}
		return b
	case om.DataTypeBF16:
		return bfloat16.EncodeFloat32(f)
	default:
		return encodeF32(f)
	}
}

func decodeF32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func encodeF32(f []float32) []byte {
	b := make([]byte, len(f)*4)
	for i, v := range f {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}
