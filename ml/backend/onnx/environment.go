package onnx

import (
	"log/slog"
	"sync"
)

// environment counts the cores using the process-wide runtime. The runtime
// is destroyed with the last user, and only when this package created it.
type environment struct {
	sync.Mutex
	refs  int
	owned bool

	initialized func() bool
	init        func() error
	destroy     func() error
}

func (e *environment) acquire() error {
	e.Lock()
	defer e.Unlock()

	if e.refs == 0 && !e.initialized() {
		if err := e.init(); err != nil {
			return err
		}
		e.owned = true
		slog.Debug("onnx runtime initialized")
	}
	e.refs++
	return nil
}

func (e *environment) release() {
	e.Lock()
	defer e.Unlock()

	if e.refs == 0 {
		return
	}
	e.refs--
	if e.refs > 0 || !e.owned {
		return
	}
	if err := e.destroy(); err != nil {
		slog.Warn("failed to destroy onnx runtime", "error", err)
		return
	}
	e.owned = false
}
