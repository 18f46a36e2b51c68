// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/easydeploy/infercore/envconfig"
	"github.com/easydeploy/infercore/logutil"
	_ "github.com/easydeploy/infercore/ml/backend"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "infercore",
		Short:         "Run compiled models on NPUs and generic runtimes",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.PersistentFlags().String("backend", envconfig.Backend(), "Inference core backend (om, onnx)")
	rootCmd.PersistentFlags().String("driver", envconfig.Driver(), "Driver stack of the backend (sim, acl, cuda)")
	rootCmd.PersistentFlags().Int("device", envconfig.Device(), "Device index")
	rootCmd.PersistentFlags().Int("threads", int(envconfig.NumThreads()), "Host threads for backends that support it")

	// Commands erstellen
	inspectCmd := newInspectCmd()
	runCmd := newRunCmd()
	benchCmd := newBenchCmd()
	serveCmd := newServeCmd()
	driversCmd := newDriversCmd()
	simModelCmd := newSimModelCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	coreEnvs := []envconfig.EnvVar{
		envVars["INFERCORE_DEBUG"],
		envVars["INFERCORE_BACKEND"],
		envVars["INFERCORE_DRIVER"],
		envVars["INFERCORE_DEVICE"],
		envVars["INFERCORE_NUM_THREADS"],
		envVars["INFERCORE_ORT_LIBRARY"],
	}

	for _, cmd := range []*cobra.Command{
		inspectCmd,
		runCmd,
		benchCmd,
		serveCmd,
		driversCmd,
	} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, append(coreEnvs,
				envVars["INFERCORE_HOST"],
				envVars["INFERCORE_ORIGINS"],
				envVars["INFERCORE_NUM_PARALLEL"],
			))
		case driversCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["INFERCORE_ORT_LIBRARY"]})
		default:
			appendEnvDocs(cmd, coreEnvs)
		}
	}

	rootCmd.AddCommand(
		inspectCmd,
		runCmd,
		benchCmd,
		serveCmd,
		driversCmd,
		simModelCmd,
	)

	return rootCmd
}
