// errors.go - Fehlertypen der Inferenz-Pipeline
//
// Drei Klassen:
// - InitError: Konstruktion abgebrochen, Instanz unbrauchbar
// - ExecError: eine Pipeline-Stufe ist fehlgeschlagen, Instanz bleibt nutzbar
// - SizeMismatchError: Host- und Geraetegroesse eines Blobs weichen ab
package ml

import (
	"errors"
	"fmt"
)

var (
	ErrSizeMismatch       = errors.New("blob size mismatch")
	ErrMissingBlob        = errors.New("missing blob")
	ErrDuplicateBlob      = errors.New("duplicate blob")
	ErrInvalidShape       = errors.New("invalid shape")
	ErrNoBlobs            = errors.New("no blobs declared")
	ErrUnsupportedType    = errors.New("unsupported element type")
	ErrTypeTableEmpty     = errors.New("element type table not initialized")
	ErrReleased           = errors.New("core already released")
	ErrBusy               = errors.New("core is executing another request")
	ErrUnknownBackend     = errors.New("unknown backend")
	ErrBackendUnavailable = errors.New("backend not available in this build")
)

// InitError is returned when a core could not be constructed.
// All resources acquired before the failure have been released.
type InitError struct {
	Backend string
	Op      string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s: init failed at %s: %v", e.Backend, e.Op, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Stage identifies one of the three pipeline stages.
type Stage string

const (
	StagePreProcess  Stage = "preprocess"
	StageInference   Stage = "inference"
	StagePostProcess Stage = "postprocess"
)

// ExecError reports a failed pipeline stage for a single request.
type ExecError struct {
	Backend string
	Stage   Stage
	Blob    string
	Err     error
}

func (e *ExecError) Error() string {
	if e.Blob != "" {
		return fmt.Sprintf("%s: %s failed for blob %q: %v", e.Backend, e.Stage, e.Blob, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Backend, e.Stage, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// SizeMismatchError describes a host tensor whose byte size differs from
// the size the device declared for the same blob.
type SizeMismatchError struct {
	Blob   string
	Host   int
	Device int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("blob %q: host buffer has %d bytes, device expects %d", e.Blob, e.Host, e.Device)
}

func (e *SizeMismatchError) Is(target error) bool { return target == ErrSizeMismatch }
