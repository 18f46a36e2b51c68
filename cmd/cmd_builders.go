// cmd_builders.go - Command-Builder Funktionen
// Hauptfunktionen: newInspectCmd, newRunCmd, newBenchCmd, etc.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/easydeploy/infercore/benchmark"
	"github.com/easydeploy/infercore/envconfig"
)

// addShapeFlags - Registriert die wiederholbaren --input/--output Flags
func addShapeFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("input", nil, "Declare an input blob as name=d0,d1,... (repeatable, order is kept)")
	cmd.Flags().StringArray("output", nil, "Declare an output blob as name=d0,d1,... (repeatable, order is kept)")
}

// newInspectCmd - Erstellt den inspect Command
func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect MODEL",
		Short: "Show the resolved blobs of a model",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}
	addShapeFlags(inspectCmd)
	return inspectCmd
}

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run MODEL",
		Short: "Run one inference and print the outputs",
		Args:  cobra.ExactArgs(1),
		RunE:  RunHandler,
	}
	addShapeFlags(runCmd)
	runCmd.Flags().Float32("fill", 0, "Value for every element of inputs without --data")
	runCmd.Flags().StringArray("data", nil, "Load raw input bytes as name=path (repeatable)")
	runCmd.Flags().String("save", "", "Directory to write raw output bytes to")
	runCmd.Flags().Int("edge-items", 3, "Elements shown per dimension edge in the output preview")
	return runCmd
}

// newBenchCmd - Erstellt den bench Command
func newBenchCmd() *cobra.Command {
	cfg := benchmark.DefaultConfig()

	benchCmd := &cobra.Command{
		Use:   "bench MODEL",
		Short: "Measure inference latency and throughput",
		Args:  cobra.ExactArgs(1),
		RunE:  BenchHandler,
	}
	addShapeFlags(benchCmd)
	benchCmd.Flags().Int("iterations", cfg.Iterations, "Measured iterations per lane")
	benchCmd.Flags().Int("warmup", cfg.Warmup, "Unmeasured iterations per lane")
	benchCmd.Flags().Int("parallel", 1, "Independent core instances measured concurrently")
	benchCmd.Flags().String("csv", "", "Also write the results as CSV to this file")
	return benchCmd
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve MODEL",
		Aliases: []string{"start"},
		Short:   "Serve a model over HTTP",
		Args:    cobra.ExactArgs(1),
		RunE:    RunServer,
	}
	addShapeFlags(serveCmd)
	serveCmd.Flags().Int("parallel", int(envconfig.NumParallel()), "Independent core instances serving requests")
	return serveCmd
}

// newDriversCmd - Erstellt den drivers Command
func newDriversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List backends, driver stacks and their devices",
		Args:  cobra.NoArgs,
		RunE:  DriversHandler,
	}
}

// newSimModelCmd - Erstellt den sim-model Command
func newSimModelCmd() *cobra.Command {
	simModelCmd := &cobra.Command{
		Use:   "sim-model PATH",
		Short: "Write a model file for the simulated NPU driver",
		Args:  cobra.ExactArgs(1),
		RunE:  SimModelHandler,
	}
	addShapeFlags(simModelCmd)
	simModelCmd.Flags().String("kernel", "identity", "Kernel to run (zeros, identity, absdiff, affine)")
	simModelCmd.Flags().String("dtype", "f32", "Element type of every blob")
	simModelCmd.Flags().Float32("scale", 1, "Scale of the affine kernel")
	simModelCmd.Flags().Float32("bias", 0, "Bias of the affine kernel")
	return simModelCmd
}
