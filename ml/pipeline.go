// pipeline.go - Transportobjekt fuer eine Inferenz-Anfrage
package ml

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/easydeploy/infercore/logutil"
)

// Package carries the blob container of one request through the pipeline
// stages. It is the only way a core reaches request data.
type Package interface {
	Blobs() *Blobs
}

// Request is the default Package implementation.
type Request struct {
	ID    uuid.UUID
	blobs *Blobs
}

// NewRequest wraps blobs in a request with a fresh id.
func NewRequest(blobs *Blobs) *Request {
	return &Request{ID: uuid.New(), blobs: blobs}
}

func (r *Request) Blobs() *Blobs { return r.blobs }

// Process runs the three pipeline stages in order and stops at the first
// failure. Non-core callers should use this instead of calling the stages.
func Process(ctx context.Context, core InferCore, pkg Package) error {
	stages := []struct {
		stage Stage
		run   func(context.Context, Package) error
	}{
		{StagePreProcess, core.PreProcess},
		{StageInference, core.Inference},
		{StagePostProcess, core.PostProcess},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return &ExecError{Backend: core.Name(), Stage: s.stage, Err: err}
		}

		start := time.Now()
		if err := s.run(ctx, pkg); err != nil {
			slog.Debug("pipeline stage failed", "core", core.Name(), "stage", s.stage, "error", err)
			return err
		}
		logutil.TraceContext(ctx, "pipeline stage done", "core", core.Name(), "stage", s.stage, "duration", time.Since(start))
	}
	return nil
}
