// config_utils.go - Getter-Konstruktoren und Export der Konfiguration
//
// Dieses Modul enthaelt:
// - String/StringWithDefault, Int/Uint: Getter mit Default-Wert
// - EnvVar, AsMap, Values: Dokumentation und aktuelle Werte
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Getter
// =============================================================================

// parsed liest key mit parse, ungueltige Werte fallen auf den Default zurueck
func parsed[T any](key string, defaultValue T, parse func(string) (T, error)) func() T {
	return func() T {
		s := Var(key)
		if s == "" {
			return defaultValue
		}

		v, err := parse(s)
		if err != nil {
			slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			return defaultValue
		}
		return v
	}
}

// String gibt eine Funktion zurueck, die einen String liest
func String(key string) func() string {
	return StringWithDefault(key, "")
}

// StringWithDefault gibt eine Funktion zurueck, die einen String mit Default liest
func StringWithDefault(key, defaultValue string) func() string {
	return parsed(key, defaultValue, func(s string) (string, error) { return s, nil })
}

// Int gibt eine Funktion zurueck, die einen int mit Default-Wert liest
func Int(key string, defaultValue int) func() int {
	return parsed(key, defaultValue, strconv.Atoi)
}

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return parsed(key, defaultValue, func(s string) (uint, error) {
		n, err := strconv.ParseUint(s, 10, 0)
		return uint(n), err
	})
}

// =============================================================================
// Export
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

var docs = []struct {
	name, description string
	value             func() any
}{
	{"INFERCORE_DEBUG", "Show additional debug information (e.g. INFERCORE_DEBUG=1)", func() any { return LogLevel() }},
	{"INFERCORE_HOST", "IP Address for the infercore server (default 127.0.0.1:11480)", func() any { return Host() }},
	{"INFERCORE_ORIGINS", "A comma separated list of allowed origins", func() any { return AllowedOrigins() }},
	{"INFERCORE_BACKEND", "Inference core backend (default \"om\")", func() any { return Backend() }},
	{"INFERCORE_DRIVER", "NPU driver used by the om backend (default \"sim\")", func() any { return Driver() }},
	{"INFERCORE_DEVICE", "Device index the cores bind to (default 0)", func() any { return Device() }},
	{"INFERCORE_NUM_PARALLEL", "Number of independent core instances served in parallel", func() any { return NumParallel() }},
	{"INFERCORE_NUM_THREADS", "Intra-op threads for the onnx backend (0 = runtime default)", func() any { return NumThreads() }},
	{"INFERCORE_ORT_LIBRARY", "Path to the onnxruntime shared library", func() any { return OrtLibrary() }},
}

// AsMap gibt Namen, aktuelle Werte und Beschreibungen aller Variablen zurueck
func AsMap() map[string]EnvVar {
	m := make(map[string]EnvVar, len(docs))
	for _, d := range docs {
		m[d.name] = EnvVar{Name: d.name, Value: d.value(), Description: d.description}
	}
	return m
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string, len(docs))
	for k, v := range AsMap() {
		vals[k] = fmt.Sprint(v.Value)
	}
	return vals
}
