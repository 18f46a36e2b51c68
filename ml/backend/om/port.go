// port.go - Aufloesung der Blob-Namen und Shapes
//
// Die Name->Index-Tabelle wird genau einmal beim Laden gebaut. Inferenz
// greift nur noch ueber diese Tabelle auf die Geraete-Slots zu.
package om

import (
	"fmt"

	"github.com/easydeploy/infercore/ml"
)

// port is one direction (inputs or outputs) of a model descriptor.
type port struct {
	kind     string
	count    int
	name     func(int) (string, error)
	dims     func(int) ([]int64, error)
	size     func(int) int
	dataType func(int) DataType
	indexOf  func(string) (int, error)
}

func inputPort(d ModelDesc) port {
	return port{
		kind:     "input",
		count:    d.NumInputs(),
		name:     d.InputName,
		dims:     d.InputDims,
		size:     d.InputSize,
		dataType: d.InputDataType,
		indexOf:  d.InputIndexByName,
	}
}

func outputPort(d ModelDesc) port {
	return port{
		kind:     "output",
		count:    d.NumOutputs(),
		name:     d.OutputName,
		dims:     d.OutputDims,
		size:     d.OutputSize,
		dataType: d.OutputDataType,
		indexOf:  d.OutputIndexByName,
	}
}

// resolve builds the name table of one direction. Declared shapes are
// matched by name, otherwise names and shapes are read from the descriptor.
func resolve(p port, declared *ml.ShapeMap) (binding, error) {
	b := binding{
		shapes: ml.NewShapeMap(),
		index:  make(map[string]int),
		native: make(map[string]DataType),
	}

	if declared != nil {
		if err := declared.Validate(); err != nil {
			return binding{}, fmt.Errorf("declared %ss: %w", p.kind, err)
		}
		for name, shape := range declared.All() {
			i, err := p.indexOf(name)
			if err != nil {
				return binding{}, fmt.Errorf("%w: %s %q not declared by model: %v", ml.ErrMissingBlob, p.kind, name, err)
			}
			b.shapes.Set(name, shape)
			b.index[name] = i
			b.native[name] = p.dataType(i)
		}
		return b, nil
	}

	for i := range p.count {
		name, err := p.name(i)
		if err != nil {
			return binding{}, fmt.Errorf("%s %d: %w", p.kind, i, err)
		}
		if name == "" {
			return binding{}, fmt.Errorf("%w: %s %d has no name", ml.ErrInvalidShape, p.kind, i)
		}
		if _, ok := b.index[name]; ok {
			return binding{}, fmt.Errorf("%w: %s %q", ml.ErrDuplicateBlob, p.kind, name)
		}

		dims, err := p.dims(i)
		if err != nil {
			return binding{}, fmt.Errorf("%s %q: %w", p.kind, name, err)
		}
		shape := make(ml.Shape, len(dims))
		for j, d := range dims {
			if d <= 0 {
				return binding{}, fmt.Errorf("%w: %s %q dimension %d is %d", ml.ErrInvalidShape, p.kind, name, j, d)
			}
			shape[j] = int(d)
		}
		if len(shape) == 0 {
			return binding{}, fmt.Errorf("%w: %s %q has no dimensions", ml.ErrInvalidShape, p.kind, name)
		}

		b.shapes.Set(name, shape)
		b.index[name] = i
		b.native[name] = p.dataType(i)
	}

	if b.shapes.Len() == 0 {
		return binding{}, fmt.Errorf("%w: model declares no %ss", ml.ErrNoBlobs, p.kind)
	}
	return b, nil
}
