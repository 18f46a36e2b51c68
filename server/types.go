// types.go - Request- und Response-Typen der HTTP-API

package server

import "github.com/easydeploy/infercore/ml"

// BlobInput sets one input blob. Data is base64 of the raw little-endian
// element bytes, Fill sets every element. Without either the blob is zeroed.
type BlobInput struct {
	Data string   `json:"data,omitempty"`
	Fill *float32 `json:"fill,omitempty"`
}

// InferRequest maps input names to values.
type InferRequest struct {
	Inputs map[string]BlobInput `json:"inputs"`
}

// BlobOutput is one output blob.
type BlobOutput struct {
	Name  string   `json:"name"`
	DType string   `json:"dtype"`
	Shape ml.Shape `json:"shape"`
	Data  string   `json:"data"`
}

// InferResponse is returned by POST /api/infer.
type InferResponse struct {
	ID         string       `json:"id"`
	Lane       int          `json:"lane"`
	Outputs    []BlobOutput `json:"outputs"`
	DurationMs float64      `json:"duration_ms"`
}

// BlobInfo describes one declared blob.
type BlobInfo struct {
	Name      string   `json:"name"`
	Direction string   `json:"direction"`
	DType     string   `json:"dtype"`
	Shape     ml.Shape `json:"shape"`
	Bytes     int      `json:"bytes"`
}

// BlobsResponse is returned by GET /api/blobs.
type BlobsResponse struct {
	Core  string     `json:"core"`
	Blobs []BlobInfo `json:"blobs"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Lanes   int    `json:"lanes"`
}
