// Package gguf - GGUF Write Operations
//
// Dieses Modul enthaelt Funktionen zum Schreiben von GGUF-Dateien (V3):
// - WriteFile/Write: Schreibt KV-Paare, Tensor-Infos und Tensor-Daten
// - writeValue/writeString/writeArray: typisierte Serialisierung
package gguf

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Tensor is a tensor to write. Offset is assigned by Write.
type Tensor struct {
	Name  string
	Shape []uint64
	Type  uint32
	Data  []byte
}

// WriteFile creates path and writes kv and tensors into it.
func WriteFile(path string, kv KV, tensors []Tensor) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := Write(f, kv, tensors); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write schreibt ein GGUF-File mit KV-Paaren und Tensors (V3 Format)
func Write(f io.WriteSeeker, kv KV, tensors []Tensor) error {
	arch := kv.Architecture()
	if arch == "" {
		return fmt.Errorf("architecture not set")
	}

	for _, v := range []any{[]byte("GGUF"), uint32(3), uint64(len(tensors)), uint64(len(kv))} {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := writeKV(f, arch, k, kv[k]); err != nil {
			return err
		}
	}

	alignment := int64(kv.Uint("general.alignment", DefaultAlignment))

	var s uint64
	infos := make([]TensorInfo, len(tensors))
	for i, t := range tensors {
		infos[i] = TensorInfo{Name: t.Name, Shape: t.Shape, Type: t.Type, Offset: s}
		if n := infos[i].NumBytes(); n != int64(len(t.Data)) {
			return fmt.Errorf("tensor %s: shape needs %d bytes, have %d", t.Name, n, len(t.Data))
		}
		if err := writeTensorInfo(f, infos[i]); err != nil {
			return err
		}
		s += uint64(len(t.Data))
		s += uint64(padding(int64(s), alignment))
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	offset += padding(offset, alignment)

	if len(tensors) == 0 {
		return nil
	}

	wa, ok := f.(io.WriterAt)
	if !ok {
		return fmt.Errorf("gguf: tensor data needs an io.WriterAt, have %T", f)
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, t := range tensors {
		w := io.NewOffsetWriter(wa, offset+int64(infos[i].Offset))
		g.Go(func() error {
			_, err := w.Write(t.Data)
			return err
		})
	}

	return g.Wait()
}

func writeValue[V any](w io.Writer, t uint32, v V) error {
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v)
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeArray[S ~[]E, E any](w io.Writer, t uint32, s S) error {
	for _, v := range []any{typeArray, t, uint64(len(s))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	// Strings muessen einzeln geschrieben werden
	if t == typeString {
		for _, e := range any(s).([]string) {
			if err := writeString(w, e); err != nil {
				return err
			}
		}
		return nil
	}

	return binary.Write(w, binary.LittleEndian, s)
}

func writeKV(w io.Writer, arch, k string, v any) error {
	if !strings.HasPrefix(k, arch+".") && !strings.HasPrefix(k, "general.") {
		k = arch + "." + k
	}

	slog.Debug(k, "type", fmt.Sprintf("%T", v))

	if err := writeString(w, k); err != nil {
		return err
	}

	switch v := v.(type) {
	case uint8:
		return writeValue(w, typeUint8, v)
	case int32:
		return writeValue(w, typeInt32, v)
	case int64:
		return writeValue(w, typeInt64, v)
	case uint32:
		return writeValue(w, typeUint32, v)
	case uint64:
		return writeValue(w, typeUint64, v)
	case float32:
		return writeValue(w, typeFloat32, v)
	case float64:
		return writeValue(w, typeFloat64, v)
	case bool:
		return writeValue(w, typeBool, v)
	case string:
		if err := binary.Write(w, binary.LittleEndian, typeString); err != nil {
			return err
		}
		return writeString(w, v)
	case []int32:
		return writeArray(w, typeInt32, v)
	case []int64:
		return writeArray(w, typeInt64, v)
	case []uint32:
		return writeArray(w, typeUint32, v)
	case []uint64:
		return writeArray(w, typeUint64, v)
	case []float32:
		return writeArray(w, typeFloat32, v)
	case []string:
		return writeArray(w, typeString, v)
	case []bool:
		return writeArray(w, typeBool, v)
	default:
		return fmt.Errorf("improper type for '%s'", k)
	}
}

func writeTensorInfo(w io.Writer, t TensorInfo) error {
	slog.Debug(t.Name, "type", t.Type, "shape", t.Shape, "offset", t.Offset)

	if err := writeString(w, t.Name); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(t.Shape))); err != nil {
		return err
	}
	for _, n := range t.Shape {
		if err := binary.Write(w, binary.LittleEndian, n); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, t.Type); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, t.Offset)
}
