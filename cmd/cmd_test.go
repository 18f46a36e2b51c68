package cmd

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easydeploy/infercore/ml"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewCLI()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func f32bytes(v ...float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

// affineModel schreibt y = 2x + 1 mit x, y in [1,4].
func affineModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "affine.om")
	_, err := execute(t, "sim-model", path, "--kernel", "affine",
		"--input", "x=1,4", "--output", "y=1,4", "--scale", "2", "--bias", "1")
	require.NoError(t, err)
	return path
}

func TestParseShapeFlags(t *testing.T) {
	shapes, err := parseShapeFlags(nil)
	require.NoError(t, err)
	assert.Nil(t, shapes)

	shapes, err = parseShapeFlags([]string{"right=1,3,256,512", "left=1x3x256x512", " disp =1,1,256,512"})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"right", "left", "disp"}, shapes.Names()); diff != "" {
		t.Errorf("Reihenfolge falsch (-want +got):\n%s", diff)
	}
	shape, _ := shapes.Get("left")
	assert.Equal(t, ml.Shape{1, 3, 256, 512}, shape)

	cases := []struct {
		name   string
		values []string
		want   error
	}{
		{"missing separator", []string{"x1,3"}, nil},
		{"empty name", []string{"=1,3"}, nil},
		{"duplicate", []string{"x=1", "x=2"}, ml.ErrDuplicateBlob},
		{"bad dims", []string{"x=1,a"}, ml.ErrInvalidShape},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			shapes, err := parseShapeFlags(tt.values)
			require.Error(t, err)
			assert.Nil(t, shapes)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestInspect(t *testing.T) {
	path := affineModel(t)

	out, err := execute(t, "inspect", path, "--backend", "om", "--driver", "sim")
	require.NoError(t, err)

	assert.Contains(t, out, "om/sim:0 (om)")
	for _, want := range []string{"x", "y", "input", "output", "1x4", "f32", "16"} {
		assert.Contains(t, out, want)
	}
}

func TestInspectDeclaredShapes(t *testing.T) {
	path := affineModel(t)

	_, err := execute(t, "inspect", path, "--input", "nope=1,4")
	assert.ErrorIs(t, err, ml.ErrMissingBlob)

	_, err = execute(t, "inspect", path, "--input", "x=1,a")
	assert.ErrorIs(t, err, ml.ErrInvalidShape)
}

func TestRun(t *testing.T) {
	path := affineModel(t)

	t.Run("fill", func(t *testing.T) {
		dir := t.TempDir()
		out, err := execute(t, "run", path, "--fill", "1.5", "--save", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "4.0000")
		assert.Contains(t, out, "request ")

		b, err := os.ReadFile(filepath.Join(dir, "y.bin"))
		require.NoError(t, err)
		assert.Equal(t, f32bytes(4, 4, 4, 4), b)
	})

	t.Run("data", func(t *testing.T) {
		in := filepath.Join(t.TempDir(), "x.bin")
		require.NoError(t, os.WriteFile(in, f32bytes(0, 1, 2, 3), 0o644))

		out, err := execute(t, "run", path, "--data", "x="+in)
		require.NoError(t, err)
		for _, want := range []string{"1.0000", "3.0000", "5.0000", "7.0000"} {
			assert.Contains(t, out, want)
		}
	})

	t.Run("unknown input", func(t *testing.T) {
		_, err := execute(t, "run", path, "--data", "z=/dev/null")
		assert.ErrorIs(t, err, ml.ErrMissingBlob)
	})

	t.Run("wrong size", func(t *testing.T) {
		in := filepath.Join(t.TempDir(), "x.bin")
		require.NoError(t, os.WriteFile(in, f32bytes(1, 2), 0o644))

		_, err := execute(t, "run", path, "--data", "x="+in)
		assert.ErrorIs(t, err, ml.ErrSizeMismatch)
	})
}

func TestBench(t *testing.T) {
	path := affineModel(t)

	for parallel, iterations := range map[string]string{"1": "5", "2": "10"} {
		t.Run("parallel "+parallel, func(t *testing.T) {
			csv := filepath.Join(t.TempDir(), "bench.csv")
			out, err := execute(t, "bench", path, "--iterations", "5", "--warmup", "1", "--parallel", parallel, "--csv", csv)
			require.NoError(t, err)
			assert.Contains(t, out, "om/sim:0")
			assert.Contains(t, out, "THROUGHPUT")

			b, err := os.ReadFile(csv)
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSpace(string(b)), "\n")
			require.Len(t, lines, 2)
			assert.True(t, strings.HasPrefix(lines[0], "core;backend;lanes"))
			assert.True(t, strings.HasPrefix(lines[1], "om/sim:0;om;"+parallel+";"+iterations+";"))
		})
	}

	_, err := execute(t, "bench", path, "--iterations", "0")
	assert.Error(t, err)
}

func TestDrivers(t *testing.T) {
	out, err := execute(t, "drivers")
	require.NoError(t, err)

	assert.Contains(t, out, "Simulated NPU 0")
	assert.Contains(t, out, "unavailable")
	assert.Contains(t, out, "devices")
}

func TestSimModelErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.om")

	_, err := execute(t, "sim-model", path, "--input", "x=1,4")
	assert.ErrorContains(t, err, "--output")

	_, err = execute(t, "sim-model", path, "--dtype", "complex64", "--input", "x=1,4", "--output", "y=1,4")
	assert.ErrorIs(t, err, ml.ErrUnsupportedType)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
