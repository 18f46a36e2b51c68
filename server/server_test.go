package server

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easydeploy/infercore/ml"
	"github.com/easydeploy/infercore/ml/backend/om"
	"github.com/easydeploy/infercore/ml/backend/om/sim"
)

func newTestServer(t *testing.T, addr net.Addr) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "affine.om")
	require.NoError(t, sim.WriteModel(path, sim.Model{
		Kernel:  sim.KernelAffine,
		Inputs:  []sim.IODesc{{Name: "x", Dims: []int64{1, 4}, Type: om.DataTypeFloat}},
		Outputs: []sim.IODesc{{Name: "y", Dims: []int64{1, 4}, Type: om.DataTypeFloat}},
		Scale:   2,
		Bias:    1,
	}))

	f, err := ml.NewFactory(om.CoreType, ml.Params{ModelPath: path, Driver: "sim"})
	require.NoError(t, err)
	pool, err := ml.NewPool(t.Context(), f, 2)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return New(pool, addr).GenerateRoutes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func f32bytes(v ...float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeF32(t *testing.T, s string) []float32 {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func TestHealthAndBlobs(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(t, h, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, HealthResponse{Status: "ok", Backend: "om", Lanes: 2}, health)

	w = do(t, h, http.MethodGet, "/api/blobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var blobs BlobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &blobs))

	want := []BlobInfo{
		{Name: "x", Direction: "input", DType: "f32", Shape: ml.Shape{1, 4}, Bytes: 16},
		{Name: "y", Direction: "output", DType: "f32", Shape: ml.Shape{1, 4}, Bytes: 16},
	}
	if diff := cmp.Diff(want, blobs.Blobs); diff != "" {
		t.Errorf("blobs mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "om/sim:0", blobs.Core)
}

func TestInfer(t *testing.T) {
	h := newTestServer(t, nil)

	cases := []struct {
		name string
		body string
		want []float32
	}{
		{"fill", `{"inputs":{"x":{"fill":1.5}}}`, []float32{4, 4, 4, 4}},
		{"data", `{"inputs":{"x":{"data":"` + base64.StdEncoding.EncodeToString(f32bytes(0, 1, 2, 3)) + `"}}}`, []float32{1, 3, 5, 7}},
		{"zero", `{"inputs":{}}`, []float32{1, 1, 1, 1}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/infer", tt.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp InferResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.ID)
			require.Len(t, resp.Outputs, 1)
			assert.Equal(t, "y", resp.Outputs[0].Name)
			assert.Equal(t, ml.Shape{1, 4}, resp.Outputs[0].Shape)
			assert.Equal(t, tt.want, decodeF32(t, resp.Outputs[0].Data))
		})
	}
}

func TestInferErrors(t *testing.T) {
	h := newTestServer(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"invalid json", "{"},
		{"unknown input", `{"inputs":{"z":{"fill":1}}}`},
		{"bad base64", `{"inputs":{"x":{"data":"!!"}}}`},
		{"wrong size", `{"inputs":{"x":{"data":"` + base64.StdEncoding.EncodeToString(f32bytes(1, 2)) + `"}}}`},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/infer", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestAllowedHosts(t *testing.T) {
	h := newTestServer(t, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11480})

	cases := map[string]int{
		"localhost:11480":   http.StatusOK,
		"127.0.0.1:11480":   http.StatusOK,
		"npu-box.local":     http.StatusOK,
		"example.com":       http.StatusForbidden,
		"evil.example:8080": http.StatusForbidden,
	}
	for host, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Host = host
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, host)
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(&ml.SizeMismatchError{Blob: "x"}))
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(&ml.ExecError{Err: ml.ErrReleased}))
	assert.Equal(t, http.StatusInternalServerError, statusOf(bytes.ErrTooLarge))
}
