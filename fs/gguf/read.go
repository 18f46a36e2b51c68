// Package gguf - GGUF Read Funktionen
//
// Dieses Modul enthaelt die Lese-Funktionen fuer GGUF-Dateien:
// - Open/Decode: Header, KV-Paare und Tensor-Infos lesen
// - ReadTensor: Rohdaten eines Tensors lesen
// - read[T]: Generische Funktion zum Lesen typisierter Werte
// - readString/readArray: String- und Array-Deserialisierung
package gguf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

type decoder struct {
	r      *bufio.Reader
	order  binary.ByteOrder
	offset int64
	bts    []byte
}

func (d *decoder) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	d.offset += int64(n)
	return n, err
}

// Open liest den Header einer GGUF-Datei
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// Decode liest Magic, Version, KV-Paare und Tensor-Infos
func Decode(r io.Reader) (*File, error) {
	d := &decoder{r: bufio.NewReaderSize(r, 32<<10), order: binary.LittleEndian, bts: make([]byte, 4096)}

	var magic [4]byte
	if _, err := io.ReadFull(d, magic[:]); err != nil {
		return nil, err
	}

	switch {
	case bytes.Equal(magic[:], []byte("GGUF")):
	case bytes.Equal(magic[:], []byte("FUGG")):
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w file type %q", ErrUnsupported, magic[:])
	}

	version, err := read[uint32](d)
	if err != nil {
		return nil, err
	}

	var numTensors, numKV uint64
	switch version {
	case 1:
		nt, err := read[uint32](d)
		if err != nil {
			return nil, err
		}
		nkv, err := read[uint32](d)
		if err != nil {
			return nil, err
		}
		numTensors, numKV = uint64(nt), uint64(nkv)
	case 2, 3:
		if numTensors, err = read[uint64](d); err != nil {
			return nil, err
		}
		if numKV, err = read[uint64](d); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w version %v", ErrUnsupported, version)
	}

	f := &File{Version: version, KV: make(KV, numKV)}
	for range numKV {
		key, value, err := d.readKeyValue()
		if err != nil {
			return nil, err
		}
		f.KV[key] = value
	}

	f.Tensors = make([]TensorInfo, 0, numTensors)
	for range numTensors {
		t, err := d.readTensor()
		if err != nil {
			return nil, err
		}
		f.Tensors = append(f.Tensors, t)
	}

	alignment := int64(f.KV.Uint("general.alignment", DefaultAlignment))
	f.DataOffset = d.offset + padding(d.offset, alignment)
	return f, nil
}

// ReadTensor liest die Rohdaten eines Tensors aus r
func (f *File) ReadTensor(r io.ReaderAt, name string) ([]byte, error) {
	t, ok := f.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}

	n := t.NumBytes()
	if n == 0 {
		return nil, fmt.Errorf("%w tensor type %d", ErrUnsupported, t.Type)
	}

	b := make([]byte, n)
	if _, err := r.ReadAt(b, f.DataOffset+int64(t.Offset)); err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return b, nil
}

func (d *decoder) readTensor() (TensorInfo, error) {
	name, err := readString(d)
	if err != nil {
		return TensorInfo{}, err
	}

	dims, err := read[uint32](d)
	if err != nil {
		return TensorInfo{}, err
	}

	shape := make([]uint64, dims)
	for i := range dims {
		shape[i], err = read[uint64](d)
		if err != nil {
			return TensorInfo{}, err
		}
	}

	type_, err := read[uint32](d)
	if err != nil {
		return TensorInfo{}, err
	}

	offset, err := read[uint64](d)
	if err != nil {
		return TensorInfo{}, err
	}

	return TensorInfo{Name: name, Shape: shape, Type: type_, Offset: offset}, nil
}

func (d *decoder) readKeyValue() (string, any, error) {
	key, err := readString(d)
	if err != nil {
		return "", nil, err
	}

	t, err := read[uint32](d)
	if err != nil {
		return "", nil, err
	}

	var value any
	switch t {
	case typeUint8:
		value, err = read[uint8](d)
	case typeInt8:
		value, err = read[int8](d)
	case typeUint16:
		value, err = read[uint16](d)
	case typeInt16:
		value, err = read[int16](d)
	case typeUint32:
		value, err = read[uint32](d)
	case typeInt32:
		value, err = read[int32](d)
	case typeUint64:
		value, err = read[uint64](d)
	case typeInt64:
		value, err = read[int64](d)
	case typeFloat32:
		value, err = read[float32](d)
	case typeFloat64:
		value, err = read[float64](d)
	case typeBool:
		value, err = read[bool](d)
	case typeString:
		value, err = readString(d)
	case typeArray:
		value, err = readArray(d)
	default:
		return "", nil, fmt.Errorf("%w type %d", ErrUnsupported, t)
	}
	if err != nil {
		return "", nil, fmt.Errorf("key %s: %w", key, err)
	}

	return key, value, nil
}

func read[T any](d *decoder) (t T, err error) {
	err = binary.Read(d, d.order, &t)
	return t, err
}

func readString(d *decoder) (string, error) {
	n, err := read[uint64](d)
	if err != nil {
		return "", err
	}

	if int(n) > len(d.bts) {
		d.bts = make([]byte, n)
	}

	bts := d.bts[:n]
	if _, err := io.ReadFull(d, bts); err != nil {
		return "", err
	}
	defer clear(bts)

	return string(bts), nil
}

func readArray(d *decoder) (any, error) {
	t, err := read[uint32](d)
	if err != nil {
		return nil, err
	}

	n, err := read[uint64](d)
	if err != nil {
		return nil, err
	}

	switch t {
	case typeUint8:
		return readArrayData[uint8](d, n)
	case typeInt8:
		return readArrayData[int8](d, n)
	case typeUint16:
		return readArrayData[uint16](d, n)
	case typeInt16:
		return readArrayData[int16](d, n)
	case typeUint32:
		return readArrayData[uint32](d, n)
	case typeInt32:
		return readArrayData[int32](d, n)
	case typeUint64:
		return readArrayData[uint64](d, n)
	case typeInt64:
		return readArrayData[int64](d, n)
	case typeFloat32:
		return readArrayData[float32](d, n)
	case typeFloat64:
		return readArrayData[float64](d, n)
	case typeBool:
		return readArrayData[bool](d, n)
	case typeString:
		s := make([]string, n)
		for i := range n {
			if s[i], err = readString(d); err != nil {
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w type %d", ErrUnsupported, t)
	}
}

func readArrayData[T any](d *decoder, n uint64) ([]T, error) {
	s := make([]T, n)
	if err := binary.Read(d, d.order, s); err != nil {
		return nil, err
	}
	return s, nil
}
