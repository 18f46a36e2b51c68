// dump.go - Textdarstellung von Host-Tensoren fuer Debugging
// Ausgabe im numpy-Stil, grosse Tensoren werden an den Raendern gekuerzt.
package ml

import (
	"strconv"
	"strings"
)

// DumpOptions configures tensor dump output format.
type DumpOptions func(*dumpOptions)

// DumpWithPrecision sets the number of decimal places of float types.
func DumpWithPrecision(n int) DumpOptions {
	return func(opts *dumpOptions) { opts.precision = n }
}

// DumpWithThreshold sets the element count up to which a tensor is printed
// in full. Larger tensors only show the edges of every dimension.
func DumpWithThreshold(n int) DumpOptions {
	return func(opts *dumpOptions) { opts.threshold = n }
}

// DumpWithEdgeItems sets the elements shown at both ends of a dimension.
func DumpWithEdgeItems(n int) DumpOptions {
	return func(opts *dumpOptions) { opts.edgeItems = n }
}

type dumpOptions struct {
	precision, threshold, edgeItems int
}

// Dump converts a host tensor to a human-readable string, outermost
// dimension first.
func Dump(t *Tensor, optsFuncs ...DumpOptions) string {
	opts := dumpOptions{precision: 4, threshold: 1000, edgeItems: 3}
	for _, optsFunc := range optsFuncs {
		optsFunc(&opts)
	}

	values, err := t.Float32s()
	if err != nil {
		return "<" + err.Error() + ">"
	}

	d := dumper{values: values, shape: t.Shape(), edge: opts.edgeItems}
	if d.shape.NumElements() <= opts.threshold {
		d.edge = len(values)
	}

	d.strides = make([]int, len(d.shape))
	stride := 1
	for i := len(d.shape) - 1; i >= 0; i-- {
		d.strides[i] = stride
		stride *= d.shape[i]
	}

	d.format = func(f float32) string {
		return strconv.FormatInt(int64(f), 10)
	}
	if t.DType().IsFloat() {
		d.format = func(f float32) string {
			return strconv.FormatFloat(float64(f), 'f', opts.precision, 32)
		}
	}

	d.write(0, 0)
	return d.sb.String()
}

type dumper struct {
	sb      strings.Builder
	values  []float32
	shape   Shape
	strides []int
	edge    int
	format  func(float32) string
}

func (d *dumper) write(dim, offset int) {
	n := d.shape[dim]
	inner := len(d.shape) - dim - 1
	indent := strings.Repeat("\n", inner) + strings.Repeat(" ", dim+1)

	d.sb.WriteByte('[')
	for i := 0; i < n; i++ {
		if i == d.edge && n-d.edge > d.edge {
			d.sb.WriteString("..., ")
			if inner > 0 {
				d.sb.WriteString(indent)
			}
			i = n - d.edge - 1
			continue
		}

		if inner > 0 {
			d.write(dim+1, offset+i*d.strides[dim])
			if i < n-1 {
				d.sb.WriteString("," + indent)
			}
			continue
		}

		text := d.format(d.values[offset+i])
		if !strings.HasPrefix(text, "-") {
			d.sb.WriteByte(' ')
		}
		d.sb.WriteString(text)
		if i < n-1 {
			d.sb.WriteString(", ")
		}
	}
	d.sb.WriteByte(']')
}
