// cmd_serve.go - serve Command
// Hauptfunktionen: RunServer
package cmd

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/easydeploy/infercore/envconfig"
	"github.com/easydeploy/infercore/ml"
	"github.com/easydeploy/infercore/server"
)

// RunServer - Startet den HTTP-Server mit einem Pool von Cores
func RunServer(cmd *cobra.Command, args []string) error {
	parallel, _ := cmd.Flags().GetInt("parallel")
	if parallel < 1 {
		return fmt.Errorf("--parallel must be at least 1, got %d", parallel)
	}

	t, p, err := coreParams(cmd, args[0])
	if err != nil {
		return err
	}

	f, err := ml.NewFactory(t, p)
	if err != nil {
		return err
	}
	pool, err := ml.NewPool(cmd.Context(), f, parallel)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		pool.Close()
		return err
	}

	return server.Serve(cmd.Context(), ln, pool)
}
