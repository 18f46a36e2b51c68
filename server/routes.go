// routes.go - Handler fuer /api/health, /api/blobs und /api/infer

package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/easydeploy/infercore/ml"
)

func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Backend: string(s.backend), Lanes: s.pool.Size()})
}

func (s *Server) BlobsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, BlobsResponse{Core: s.core, Blobs: s.blobs})
}

func (s *Server) InferHandler(c *gin.Context) {
	var req InferRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for name := range req.Inputs {
		if _, ok := s.inputs.Get(name); !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown input %q", name)})
			return
		}
	}

	var resp InferResponse
	start := time.Now()
	err = s.pool.Do(c.Request.Context(), func(l *ml.Lane) error {
		if err := s.bindInputs(l.Blobs, req.Inputs); err != nil {
			return err
		}

		r := ml.NewRequest(l.Blobs)
		if err := ml.Process(c.Request.Context(), l.Core, r); err != nil {
			return err
		}

		resp.ID, resp.Lane = r.ID.String(), l.Index
		resp.Outputs = s.collectOutputs(l.Blobs)
		return nil
	})
	if err != nil {
		slog.Debug("inference request failed", "error", err)
		c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	resp.DurationMs = float64(time.Since(start).Microseconds()) / 1000
	c.JSON(http.StatusOK, resp)
}

func (s *Server) bindInputs(blobs *ml.Blobs, inputs map[string]BlobInput) error {
	for _, name := range s.inputs.Names() {
		t, err := blobs.Tensor(name)
		if err != nil {
			return err
		}
		if err := t.Reset(); err != nil {
			return err
		}

		in := inputs[name]
		switch {
		case in.Data != "":
			b, err := base64.StdEncoding.DecodeString(in.Data)
			if err != nil {
				return fmt.Errorf("%w: input %q: %v", errBadInput, name, err)
			}
			if err := t.CopyBytes(b); err != nil {
				return err
			}
		case in.Fill != nil:
			if err := t.Fill(*in.Fill); err != nil {
				return err
			}
		default:
			t.Zero()
		}
	}
	return nil
}

func (s *Server) collectOutputs(blobs *ml.Blobs) []BlobOutput {
	outputs := make([]BlobOutput, 0, s.outputs.Len())
	for _, name := range s.outputs.Names() {
		t, _ := blobs.Get(name)
		outputs = append(outputs, BlobOutput{
			Name:  name,
			DType: t.DType().String(),
			Shape: t.Shape(),
			Data:  base64.StdEncoding.EncodeToString(t.Bytes()),
		})
	}
	return outputs
}

var errBadInput = errors.New("bad input")

var clientErrors = []error{
	errBadInput,
	ml.ErrSizeMismatch,
	ml.ErrMissingBlob,
	ml.ErrInvalidShape,
	ml.ErrUnsupportedType,
}

func statusOf(err error) int {
	switch {
	case slices.ContainsFunc(clientErrors, func(target error) bool { return errors.Is(err, target) }):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, ml.ErrReleased), errors.Is(err, ml.ErrBusy):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
