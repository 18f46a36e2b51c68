// cmd_sim.go - sim-model Command
// Hauptfunktionen: SimModelHandler
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/easydeploy/infercore/ml"
	"github.com/easydeploy/infercore/ml/backend/om"
	"github.com/easydeploy/infercore/ml/backend/om/sim"
)

// SimModelHandler - Schreibt eine Modelldatei fuer den simulierten NPU-Treiber
func SimModelHandler(cmd *cobra.Command, args []string) error {
	kernel, _ := cmd.Flags().GetString("kernel")
	dtype, _ := cmd.Flags().GetString("dtype")

	dt, err := ml.ParseDType(dtype)
	if err != nil {
		return err
	}
	native := om.DataTypeOf(dt)
	if native == om.DataTypeUndefined {
		return fmt.Errorf("%w: %s has no device type", ml.ErrUnsupportedType, dt)
	}

	m := sim.Model{Kernel: kernel}
	m.Scale, _ = cmd.Flags().GetFloat32("scale")
	m.Bias, _ = cmd.Flags().GetFloat32("bias")

	for _, f := range []struct {
		flag string
		dst  *[]sim.IODesc
	}{{"input", &m.Inputs}, {"output", &m.Outputs}} {
		values, _ := cmd.Flags().GetStringArray(f.flag)
		shapes, err := parseShapeFlags(values)
		if err != nil {
			return fmt.Errorf("--%s: %w", f.flag, err)
		}
		if shapes == nil {
			return errors.New("sim-model needs at least one --input and one --output")
		}

		for name, shape := range shapes.All() {
			dims := make([]int64, len(shape))
			for i, d := range shape {
				dims[i] = int64(d)
			}
			*f.dst = append(*f.dst, sim.IODesc{Name: name, Dims: dims, Type: native})
		}
	}

	if err := sim.WriteModel(args[0], m); err != nil {
		return err
	}

	slog.Debug("wrote sim model", "path", args[0], "kernel", kernel, "inputs", len(m.Inputs), "outputs", len(m.Outputs))
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d inputs, %d outputs)\n", args[0], kernel, len(m.Inputs), len(m.Outputs))
	return nil
}
