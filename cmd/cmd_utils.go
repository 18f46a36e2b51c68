// cmd_utils.go - Gemeinsame Hilfsfunktionen
// Hauptfunktionen: coreParams, parseShapeFlags, newTable
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/easydeploy/infercore/ml"
)

// parseShapeFlags - Wandelt name=d0,d1,... Angaben in eine geordnete ShapeMap
// Ohne Angaben ist das Ergebnis nil und das Backend liest die Shapes aus dem Modell.
func parseShapeFlags(values []string) (*ml.ShapeMap, error) {
	if len(values) == 0 {
		return nil, nil
	}

	shapes := ml.NewShapeMap()
	for _, v := range values {
		name, dims, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid blob %q, expected name=d0,d1,...", v)
		}
		if _, dup := shapes.Get(name); dup {
			return nil, fmt.Errorf("%w: %q", ml.ErrDuplicateBlob, name)
		}

		shape, err := ml.ParseShape(dims)
		if err != nil {
			return nil, fmt.Errorf("blob %q: %w", name, err)
		}
		shapes.Set(name, shape)
	}
	return shapes, nil
}

// coreParams - Liest Backend und Params aus den Flags
func coreParams(cmd *cobra.Command, model string) (ml.CoreType, ml.Params, error) {
	backend, _ := cmd.Flags().GetString("backend")
	driver, _ := cmd.Flags().GetString("driver")
	device, _ := cmd.Flags().GetInt("device")
	threads, _ := cmd.Flags().GetInt("threads")

	p := ml.Params{
		ModelPath:  model,
		DeviceID:   device,
		Driver:     driver,
		NumThreads: threads,
	}

	for _, f := range []struct {
		flag string
		dst  **ml.ShapeMap
	}{{"input", &p.Inputs}, {"output", &p.Outputs}} {
		values, _ := cmd.Flags().GetStringArray(f.flag)
		shapes, err := parseShapeFlags(values)
		if err != nil {
			return "", ml.Params{}, fmt.Errorf("--%s: %w", f.flag, err)
		}
		*f.dst = shapes
	}

	return ml.CoreType(backend), p, nil
}

// newCore - Erstellt einen InferCore aus den Flags
func newCore(cmd *cobra.Command, model string) (ml.InferCore, error) {
	t, p, err := coreParams(cmd, model)
	if err != nil {
		return nil, err
	}
	return ml.NewCore(t, p)
}

// newTable - Randlose Tabelle mit linksbuendigen Spalten
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoFormatHeaders(false)
	return table
}
