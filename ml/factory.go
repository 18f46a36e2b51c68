// factory.go - Core-Factory fuer Pooling und Replikation
package ml

import "log/slog"

// Factory produces independent cores from captured parameters.
type Factory interface {
	Create() (InferCore, error)
}

type factory struct {
	typ    CoreType
	params Params
	ctor   Constructor
}

// NewFactory captures a copy of p. Later changes to the caller's shape maps
// do not affect created cores. Create is safe for concurrent use.
func NewFactory(t CoreType, p Params) (Factory, error) {
	ctor, err := lookupBackend(t)
	if err != nil {
		return nil, err
	}
	return &factory{typ: t, params: p.Clone(), ctor: ctor}, nil
}

func (f *factory) Create() (InferCore, error) {
	slog.Debug("creating core", "backend", f.typ, "model", f.params.ModelPath, "device", f.params.DeviceID)
	return f.ctor(f.params.Clone())
}
