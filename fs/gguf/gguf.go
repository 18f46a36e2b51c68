// Package gguf - GGUF Container fuer Modell-Artefakte
//
// Dieses Modul enthaelt die gemeinsamen Typen des Codecs:
// - File: KV-Metadaten, Tensor-Infos und Daten-Offset
// - KV: Key-Value Metadaten mit typisierten Gettern
// - TensorInfo: Name, Shape, Typ und Offset eines Tensors
// - Type-Konstanten fuer die Werttypen
package gguf

import (
	"errors"
	"fmt"
	"strings"
)

// Type-Konstanten fuer GGUF-Werttypen
const (
	typeUint8 uint32 = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeBool
	typeString
	typeArray
	typeUint64
	typeInt64
	typeFloat64
)

// Tensor-Typen, die der Codec fuer Rohdaten kennt
const (
	TensorF32 uint32 = 0
	TensorF16 uint32 = 1
	TensorI8  uint32 = 24
	TensorI16 uint32 = 25
	TensorI32 uint32 = 26
	TensorI64 uint32 = 27
	TensorF64 uint32 = 28
)

// DefaultAlignment gilt, wenn general.alignment fehlt
const DefaultAlignment = 32

// ErrUnsupported wird bei nicht unterstuetzten Formaten oder Versionen zurueckgegeben
var ErrUnsupported = errors.New("unsupported")

// File is a decoded GGUF header.
type File struct {
	Version uint32
	KV      KV
	Tensors []TensorInfo

	// DataOffset is the absolute file offset of the tensor data section.
	DataOffset int64
}

// Tensor looks up a tensor info by name.
func (f *File) Tensor(name string) (TensorInfo, bool) {
	for _, t := range f.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return TensorInfo{}, false
}

// TensorInfo describes one tensor of the data section.
type TensorInfo struct {
	Name   string
	Shape  []uint64
	Type   uint32
	Offset uint64
}

// Elements returns the product of the shape.
func (t TensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// NumBytes returns the raw data size, 0 for unknown tensor types.
func (t TensorInfo) NumBytes() int64 {
	var size uint64
	switch t.Type {
	case TensorI8:
		size = 1
	case TensorF16, TensorI16:
		size = 2
	case TensorF32, TensorI32:
		size = 4
	case TensorI64, TensorF64:
		size = 8
	}
	return int64(t.Elements() * size)
}

// =============================================================================
// KV - Metadaten
// =============================================================================

// KV holds metadata. Keys without "general." prefix are resolved relative to
// general.architecture by the getters.
type KV map[string]any

// Architecture returns general.architecture.
func (kv KV) Architecture() string {
	s, _ := kv["general.architecture"].(string)
	return s
}

func (kv KV) key(k string) string {
	if strings.HasPrefix(k, "general.") {
		return k
	}
	if arch := kv.Architecture(); arch != "" && !strings.HasPrefix(k, arch+".") {
		return arch + "." + k
	}
	return k
}

// Value returns the raw value for key.
func (kv KV) Value(key string) (any, bool) {
	v, ok := kv[kv.key(key)]
	return v, ok
}

// String returns a string value or the optional default.
func (kv KV) String(key string, defaultValue ...string) string {
	if v, ok := keyValue[string](kv, key); ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// Uint returns an unsigned integer value or the optional default.
func (kv KV) Uint(key string, defaultValue ...uint32) uint32 {
	v, _ := kv.Value(key)
	switch v := v.(type) {
	case uint32:
		return v
	case uint64:
		return uint32(v)
	case int32:
		if v >= 0 {
			return uint32(v)
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// Ints returns an integer array as []int64.
func (kv KV) Ints(key string) ([]int64, bool) {
	v, _ := kv.Value(key)
	switch v := v.(type) {
	case []int64:
		return v, true
	case []int32:
		out := make([]int64, len(v))
		for i, e := range v {
			out[i] = int64(e)
		}
		return out, true
	case []uint64:
		out := make([]int64, len(v))
		for i, e := range v {
			out[i] = int64(e)
		}
		return out, true
	case []uint32:
		out := make([]int64, len(v))
		for i, e := range v {
			out[i] = int64(e)
		}
		return out, true
	}
	return nil, false
}

// Strings returns a string array.
func (kv KV) Strings(key string) ([]string, bool) {
	return keyValue[[]string](kv, key)
}

func keyValue[T any](kv KV, key string) (T, bool) {
	v, ok := kv.Value(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Require returns an error naming the first missing key.
func (kv KV) Require(keys ...string) error {
	for _, k := range keys {
		if _, ok := kv.Value(k); !ok {
			return fmt.Errorf("gguf: missing key %q", kv.key(k))
		}
	}
	return nil
}

func padding(offset, align int64) int64 {
	return (align - offset%align) % align
}
