// config_features.go - Backend- und Geraete-Konfiguration
//
// Dieses Modul enthaelt:
// - Auswahl von Backend und NPU-Treiber
// - Geraete-Index und Parallelitaet
// - Pfad zur onnxruntime-Library
package envconfig

// =============================================================================
// Backend-Auswahl
// =============================================================================

var (
	// Backend waehlt den InferCore-Typ (om, onnx)
	Backend = StringWithDefault("INFERCORE_BACKEND", "om")

	// Driver waehlt den NPU-Treiber des om-Backends (sim, acl)
	Driver = StringWithDefault("INFERCORE_DRIVER", "sim")

	// OrtLibrary ist der Pfad zur onnxruntime Shared Library
	OrtLibrary = String("INFERCORE_ORT_LIBRARY")
)

// =============================================================================
// Geraete und Parallelitaet
// =============================================================================

var (
	// Device ist der Geraete-Index, -1 bedeutet Host/CPU
	Device = Int("INFERCORE_DEVICE", 0)

	// NumParallel ist die Anzahl unabhaengiger Core-Instanzen im Server
	NumParallel = Uint("INFERCORE_NUM_PARALLEL", 1)

	// NumThreads begrenzt die Threads der generischen Runtime (0 = Runtime-Default)
	NumThreads = Uint("INFERCORE_NUM_THREADS", 0)
)
