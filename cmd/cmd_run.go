// cmd_run.go - run Command
// Hauptfunktionen: RunHandler, loadInputs, saveOutputs
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/easydeploy/infercore/format"
	"github.com/easydeploy/infercore/ml"
)

// RunHandler - Fuehrt eine Inferenz aus und zeigt die Ausgaben
func RunHandler(cmd *cobra.Command, args []string) error {
	core, err := newCore(cmd, args[0])
	if err != nil {
		return err
	}
	defer core.Close()

	blobs, err := core.AllocBlobsBuffer()
	if err != nil {
		return err
	}

	fill, _ := cmd.Flags().GetFloat32("fill")
	data, _ := cmd.Flags().GetStringArray("data")
	if err := loadInputs(blobs, core.Inputs(), fill, data); err != nil {
		return err
	}

	req := ml.NewRequest(blobs)
	start := time.Now()
	if err := ml.Process(cmd.Context(), core, req); err != nil {
		return err
	}
	elapsed := time.Since(start)

	edge, _ := cmd.Flags().GetInt("edge-items")
	out := cmd.OutOrStdout()
	for name := range core.Outputs().All() {
		t, _ := blobs.Get(name)
		fmt.Fprintf(out, "%s %s %s (%s)\n%s\n\n", name, t.DType(), t.Shape(),
			format.HumanBytes2(uint64(t.ByteSize())), ml.Dump(t, ml.DumpWithEdgeItems(edge)))
	}
	fmt.Fprintf(out, "request %s took %s\n", req.ID, elapsed.Round(time.Microsecond))

	if dir, _ := cmd.Flags().GetString("save"); dir != "" {
		return saveOutputs(dir, blobs, core.Outputs())
	}
	return nil
}

// loadInputs - Belegt die Eingaben aus Dateien oder mit einem festen Wert
func loadInputs(blobs *ml.Blobs, inputs *ml.ShapeMap, fill float32, data []string) error {
	files := make(map[string]string, len(data))
	for _, v := range data {
		name, path, ok := strings.Cut(v, "=")
		if !ok || name == "" || path == "" {
			return fmt.Errorf("--data: invalid value %q, expected name=path", v)
		}
		if _, ok := inputs.Get(name); !ok {
			return fmt.Errorf("--data: %w: %q is not an input", ml.ErrMissingBlob, name)
		}
		files[name] = path
	}

	for name := range inputs.All() {
		t, err := blobs.Tensor(name)
		if err != nil {
			return err
		}

		path, ok := files[name]
		if !ok {
			if err := t.Fill(fill); err != nil {
				return err
			}
			continue
		}

		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := t.CopyBytes(b); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		slog.Debug("loaded input", "name", name, "path", path, "bytes", len(b))
	}
	return nil
}

// saveOutputs - Schreibt jede Ausgabe als <name>.bin
func saveOutputs(dir string, blobs *ml.Blobs, outputs *ml.ShapeMap) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for name := range outputs.All() {
		t, _ := blobs.Get(name)
		path := filepath.Join(dir, name+".bin")
		if err := os.WriteFile(path, t.Bytes(), 0o644); err != nil {
			return err
		}
		slog.Info("saved output", "name", name, "path", path)
	}
	return nil
}
